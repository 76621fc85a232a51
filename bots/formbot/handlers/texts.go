package handlers

import "github.com/m3rciful/formbot/core/dialogue"

const cancelHint = "\n\nTo stop filling in the form, send /cancel"

const (
	textWelcome = "This bot demonstrates a finite-state dialogue\n\n" +
		"To fill in the form, send /fillform"
	textNothingToCancel = "There is nothing to cancel. You are not filling in the form\n\n" +
		"To start, send /fillform"
	textCancelled = "You left the form\n\n" +
		"To start again, send /fillform"
	textAskName      = "Please enter your name"
	textAskAge       = "Thank you, *%s*!\n\nNow enter your age"
	textAskGender    = "Thank you!\n\nWhat is your gender?"
	textAskPhoto     = "Thank you! Now please upload your photo"
	textAskEducation = "Thank you!\n\nWhat is your education?"
	textAskNews      = "Thank you!\n\nOne last step.\nWould you like to receive news?"
	textSaved        = "Thank you! Your data is saved!\n\nYou left the form"
	textShowTip      = "To see your form, send /showdata"
	textNoForm       = "You have not filled in the form yet. To start, send /fillform"
	textUnknown      = "Sorry, I don't understand"

	warnName      = "That does not look like a name\n\nPlease enter your name" + cancelHint
	warnAge       = "Age must be a whole number from 4 to 120\n\nPlease try again" + cancelHint
	warnGender    = "Please use the buttons to choose your gender" + cancelHint
	warnPhoto     = "Please send your photo at this step" + cancelHint
	warnEducation = "Please use the buttons to choose your education" + cancelHint
	warnNews      = "Please use the buttons!" + cancelHint
)

var (
	genderKeyboard = dialogue.Inline(
		dialogue.Row(
			dialogue.Button{Label: "Male ♂", Value: "male"},
			dialogue.Button{Label: "Female ♀", Value: "female"},
		),
		dialogue.Row(dialogue.Button{Label: "🤷 Rather not say", Value: "undisclosed"}),
	)
	educationKeyboard = dialogue.Inline(
		dialogue.Row(
			dialogue.Button{Label: "Secondary", Value: "secondary"},
			dialogue.Button{Label: "Higher", Value: "higher"},
		),
		dialogue.Row(dialogue.Button{Label: "🤷 None", Value: "none"}),
	)
	newsletterKeyboard = dialogue.Inline(
		dialogue.Row(
			dialogue.Button{Label: "Yes", Value: "yes"},
			dialogue.Button{Label: "No, thanks", Value: "no"},
		),
	)
)
