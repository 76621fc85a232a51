// Package callbacks decodes inline button callback data.
package callbacks

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// ParseData splits telebot's "\f<unique>|<payload>" encoding. Data without the
// leading \f comes from a plain button and is returned whole as the payload.
func ParseData(data string) (unique, payload string) {
	raw, marked := strings.CutPrefix(data, "\f")
	if !marked {
		return "", strings.TrimSpace(data)
	}
	unique, payload, _ = strings.Cut(raw, "|")
	return strings.TrimSpace(unique), payload
}

// ParseCallbackData is ParseData for cb. A callback telebot already matched
// to a registered unique keeps only the payload in Data.
func ParseCallbackData(cb *tele.Callback) (unique, payload string) {
	switch {
	case cb == nil:
		return "", ""
	case cb.Unique != "":
		return cb.Unique, cb.Data
	default:
		return ParseData(cb.Data)
	}
}
