// Package keyboard renders dialogue keyboards as Telegram inline markup.
package keyboard

import (
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/formbot/core/dialogue"
)

// DialogueUnique is the callback unique shared by every dialogue button; the
// pressed button's value travels as the payload.
const DialogueUnique = "dlg"

// FromDialogue converts kb to inline markup, keeping its row layout. A nil or
// empty keyboard yields nil so the message is sent without markup.
func FromDialogue(kb *dialogue.Keyboard) *tele.ReplyMarkup {
	if kb == nil || len(kb.Rows) == 0 {
		return nil
	}
	markup := &tele.ReplyMarkup{}
	markup.InlineKeyboard = make([][]tele.InlineButton, len(kb.Rows))
	for i, row := range kb.Rows {
		buttons := make([]tele.InlineButton, len(row))
		for j, b := range row {
			buttons[j] = *markup.Data(b.Label, DialogueUnique, b.Value).Inline()
		}
		markup.InlineKeyboard[i] = buttons
	}
	return markup
}
