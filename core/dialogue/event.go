package dialogue

import "strings"

// EventKind discriminates inbound events.
type EventKind string

const (
	// KindCommand is a "/name args" message.
	KindCommand EventKind = "command"
	// KindText is a plain text message.
	KindText EventKind = "text"
	// KindButton is an inline button press.
	KindButton EventKind = "button"
	// KindPhoto is a photo upload.
	KindPhoto EventKind = "photo"
	// KindOther covers anything else (stickers, documents, voice...).
	KindOther EventKind = "other"
)

// MessageRef addresses a message that can be edited or deleted.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// IsZero reports whether the reference points nowhere.
func (r MessageRef) IsZero() bool {
	return r.ChatID == 0 && r.MessageID == 0
}

// PhotoVariant is one resolution of an uploaded image.
type PhotoVariant struct {
	FileID   string
	UniqueID string
	Width    int
	Height   int
}

// Area returns the pixel area of the variant.
func (p PhotoVariant) Area() int64 {
	return int64(p.Width) * int64(p.Height)
}

// Event is a transport-neutral inbound update.
type Event struct {
	Kind   EventKind
	UserID int64
	ChatID int64
	// Ref is the message the event originated from: the user's message, or for a button
	// press the bot message carrying the keyboard.
	Ref MessageRef
	// UpdateID is the transport sequence number, used only for logging.
	UpdateID int

	Command string // lower-cased command name without slash, KindCommand only
	Args    string // text after the command
	Text    string // message text or photo caption
	Data    string // button value, KindButton only
	Photos  []PhotoVariant
}

// Largest returns the variant with the largest pixel area. Ties keep the later variant,
// matching the transport's ascending size ordering.
func (e Event) Largest() (PhotoVariant, bool) {
	if len(e.Photos) == 0 {
		return PhotoVariant{}, false
	}
	best := e.Photos[0]
	for _, p := range e.Photos[1:] {
		if p.Area() >= best.Area() {
			best = p
		}
	}
	return best, true
}

// ParseCommand splits "/Name@bot args" into ("name", "args"). ok is false when text is not a command.
func ParseCommand(text string) (name, args string, ok bool) {
	if !strings.HasPrefix(text, "/") || len(text) < 2 {
		return "", "", false
	}
	head, rest, _ := strings.Cut(text[1:], " ")
	head, _, _ = strings.Cut(head, "@")
	if head == "" {
		return "", "", false
	}
	return strings.ToLower(head), strings.TrimSpace(rest), true
}
