// Package form describes the questionnaire: its dialogue states, the collected answers and
// the validation rules for free-text input.
package form

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/m3rciful/formbot/core/state"
	"github.com/m3rciful/formbot/core/telegram/format"
)

// Dialogue states in the order they are visited.
const (
	AwaitingName             state.State = "awaiting_name"
	AwaitingAge              state.State = "awaiting_age"
	AwaitingGender           state.State = "awaiting_gender"
	AwaitingPhoto            state.State = "awaiting_photo"
	AwaitingEducation        state.State = "awaiting_education"
	AwaitingNewsletterChoice state.State = "awaiting_newsletter"
)

// States lists every non-idle state; each one needs a fallback.
var States = []state.State{
	AwaitingName,
	AwaitingAge,
	AwaitingGender,
	AwaitingPhoto,
	AwaitingEducation,
	AwaitingNewsletterChoice,
}

// Gender is the answer to the gender question.
type Gender string

const (
	GenderMale        Gender = "male"
	GenderFemale      Gender = "female"
	GenderUndisclosed Gender = "undisclosed"
)

// Genders are the accepted button values.
var Genders = []string{string(GenderMale), string(GenderFemale), string(GenderUndisclosed)}

// Education is the answer to the education question.
type Education string

const (
	EducationSecondary Education = "secondary"
	EducationHigher    Education = "higher"
	EducationNone      Education = "none"
)

// Educations are the accepted button values.
var Educations = []string{string(EducationSecondary), string(EducationHigher), string(EducationNone)}

// Newsletter button values.
const (
	NewsletterYes = "yes"
	NewsletterNo  = "no"
)

// NewsletterChoices are the accepted button values.
var NewsletterChoices = []string{NewsletterYes, NewsletterNo}

// Age bounds, inclusive.
const (
	MinAge = 4
	MaxAge = 120
)

// Data is the questionnaire filled so far. A nil field has not been answered yet.
type Data struct {
	Name            *string    `json:"name,omitempty"`
	Age             *int       `json:"age,omitempty"`
	Gender          *Gender    `json:"gender,omitempty"`
	PhotoID         *string    `json:"photo_id,omitempty"`
	PhotoUniqueID   *string    `json:"photo_unique_id,omitempty"`
	Education       *Education `json:"education,omitempty"`
	WantsNewsletter *bool      `json:"wants_newsletter,omitempty"`
}

// Complete reports whether every question has been answered.
func (d Data) Complete() bool {
	return d.Name != nil && d.Age != nil && d.Gender != nil && d.PhotoID != nil &&
		d.PhotoUniqueID != nil && d.Education != nil && d.WantsNewsletter != nil
}

// ValidName accepts a non-empty string made only of letters.
func ValidName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// ParseAge accepts decimal digits only, within [MinAge, MaxAge]. Leading zeros
// are allowed, so "007" is 7.
func ParseAge(s string) (int, bool) {
	if s == "" || strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
		return 0, false
	}
	digits := strings.TrimLeft(s, "0")
	if len(digits) > len(strconv.Itoa(MaxAge)) {
		return 0, false
	}
	age, _ := strconv.Atoi("0" + digits)
	if age < MinAge || age > MaxAge {
		return 0, false
	}
	return age, true
}

// ValidAge is ParseAge as a predicate.
func ValidAge(s string) bool {
	_, ok := ParseAge(s)
	return ok
}

var (
	genderLabels = map[Gender]string{
		GenderMale:        "male",
		GenderFemale:      "female",
		GenderUndisclosed: "not specified",
	}
	educationLabels = map[Education]string{
		EducationSecondary: "secondary",
		EducationHigher:    "higher",
		EducationNone:      "none",
	}
)

// Caption renders the archived questionnaire as a photo caption.
func Caption(d Data) string {
	var b strings.Builder
	b.WriteString("Name: " + format.OrDash(d.Name) + "\n")
	if age := format.Deref(d.Age, 0); age > 0 {
		b.WriteString("Age: " + strconv.Itoa(age) + "\n")
	} else {
		b.WriteString("Age: -\n")
	}
	gender := "-"
	if d.Gender != nil {
		gender = genderLabels[*d.Gender]
	}
	b.WriteString("Gender: " + gender + "\n")
	education := "-"
	if d.Education != nil {
		education = educationLabels[*d.Education]
	}
	b.WriteString("Education: " + education + "\n")
	news := "-"
	if d.WantsNewsletter != nil {
		news = "no"
		if *d.WantsNewsletter {
			news = "yes"
		}
	}
	b.WriteString("Newsletter: " + news)
	return b.String()
}
