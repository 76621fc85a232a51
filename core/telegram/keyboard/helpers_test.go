package keyboard

import (
	"testing"

	"github.com/m3rciful/formbot/core/dialogue"
)

func TestFromDialogueKeepsLayoutAndValues(t *testing.T) {
	kb := dialogue.Inline(
		dialogue.Row(dialogue.Button{Label: "Male", Value: "male"}, dialogue.Button{Label: "Female", Value: "female"}),
		dialogue.Row(dialogue.Button{Label: "Not sure", Value: "undisclosed"}),
	)
	markup := FromDialogue(kb)
	if markup == nil {
		t.Fatalf("expected markup")
	}
	if len(markup.InlineKeyboard) != 2 || len(markup.InlineKeyboard[0]) != 2 || len(markup.InlineKeyboard[1]) != 1 {
		t.Fatalf("unexpected layout %+v", markup.InlineKeyboard)
	}
	btn := markup.InlineKeyboard[1][0]
	if btn.Text != "Not sure" {
		t.Fatalf("unexpected label %q", btn.Text)
	}
	if btn.Unique != DialogueUnique || btn.Data != "undisclosed" {
		t.Fatalf("unexpected callback unique %q data %q", btn.Unique, btn.Data)
	}
}

func TestFromDialogueNil(t *testing.T) {
	if FromDialogue(nil) != nil || FromDialogue(&dialogue.Keyboard{}) != nil {
		t.Fatalf("expected nil markup")
	}
}
