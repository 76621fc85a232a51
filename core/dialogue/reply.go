package dialogue

import (
	"context"

	"github.com/m3rciful/formbot/core/state"
)

// Button is a single inline button: a visible label and the opaque value sent back on press.
type Button struct {
	Label string
	Value string
}

// Keyboard is an inline keyboard made of ordered rows.
type Keyboard struct {
	Rows [][]Button
}

// Inline builds a keyboard from rows.
func Inline(rows ...[]Button) *Keyboard {
	return &Keyboard{Rows: rows}
}

// Row is a readability helper for Inline.
func Row(buttons ...Button) []Button {
	return buttons
}

// ReplyKind selects the outbound operation.
type ReplyKind string

const (
	ReplySend   ReplyKind = "send"
	ReplyEdit   ReplyKind = "edit"
	ReplyDelete ReplyKind = "delete"
	ReplyPhoto  ReplyKind = "photo"
)

// Reply is one outbound operation produced by a handler.
type Reply struct {
	Kind     ReplyKind
	ChatID   int64
	Ref      MessageRef
	Text     string
	Keyboard *Keyboard
	PhotoID  string
	Markdown bool
}

// SendText sends text to chatID with an optional inline keyboard.
func SendText(chatID int64, text string, kb *Keyboard) Reply {
	return Reply{Kind: ReplySend, ChatID: chatID, Text: text, Keyboard: kb}
}

// EditMessage replaces the text and keyboard of ref. A nil keyboard removes the buttons.
func EditMessage(ref MessageRef, text string, kb *Keyboard) Reply {
	return Reply{Kind: ReplyEdit, ChatID: ref.ChatID, Ref: ref, Text: text, Keyboard: kb}
}

// DeleteMessage removes ref.
func DeleteMessage(ref MessageRef) Reply {
	return Reply{Kind: ReplyDelete, ChatID: ref.ChatID, Ref: ref}
}

// SendPhoto sends a previously uploaded photo by its file id with a caption.
func SendPhoto(chatID int64, photoID, caption string) Reply {
	return Reply{Kind: ReplyPhoto, ChatID: chatID, PhotoID: photoID, Text: caption}
}

// Transport delivers replies. Implementations may queue and retry; returned errors are logged
// by the supervisor and never roll back a committed transition.
type Transport interface {
	SendText(ctx context.Context, chatID int64, text string, kb *Keyboard, markdown bool) error
	EditMessage(ctx context.Context, ref MessageRef, text string, kb *Keyboard) error
	DeleteMessage(ctx context.Context, ref MessageRef) error
	SendPhoto(ctx context.Context, chatID int64, photoID, caption string) error
}

// Deliver runs reply against t.
func Deliver(ctx context.Context, t Transport, r Reply) error {
	switch r.Kind {
	case ReplySend:
		return t.SendText(ctx, r.ChatID, r.Text, r.Keyboard, r.Markdown)
	case ReplyEdit:
		return t.EditMessage(ctx, r.Ref, r.Text, r.Keyboard)
	case ReplyDelete:
		return t.DeleteMessage(ctx, r.Ref)
	case ReplyPhoto:
		return t.SendPhoto(ctx, r.ChatID, r.PhotoID, r.Text)
	}
	return nil
}

// Commit tells the supervisor how to persist a handler result.
type Commit int

const (
	// CommitNone leaves the stored session untouched.
	CommitNone Commit = iota
	// CommitSet stores Result.Session.
	CommitSet
	// CommitClear resets the user to idle and discards collected data.
	CommitClear
)

func (c Commit) String() string {
	switch c {
	case CommitSet:
		return "set"
	case CommitClear:
		return "clear"
	}
	return "none"
}

// Result is the outcome of a handler: the next session, how to commit it, and the replies.
type Result[D any] struct {
	Session state.Session[D]
	Commit  Commit
	Replies []Reply
}

// Stay keeps sess as is and only replies.
func Stay[D any](sess state.Session[D], replies ...Reply) Result[D] {
	return Result[D]{Session: sess, Commit: CommitNone, Replies: replies}
}

// Transition moves sess to next, storing data.
func Transition[D any](sess state.Session[D], next state.State, data D, replies ...Reply) Result[D] {
	sess.State = next
	sess.Data = data
	return Result[D]{Session: sess, Commit: CommitSet, Replies: replies}
}

// Reset clears the session back to idle.
func Reset[D any](sess state.Session[D], replies ...Reply) Result[D] {
	return Result[D]{Session: state.Idle[D](sess.UserID), Commit: CommitClear, Replies: replies}
}
