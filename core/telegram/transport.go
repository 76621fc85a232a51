package telegram

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/formbot/core/dialogue"
	"github.com/m3rciful/formbot/core/logger"
	"github.com/m3rciful/formbot/core/telegram/keyboard"
	"github.com/m3rciful/formbot/core/telegram/sender"
)

// botAPI is the part of *tele.Bot used for outbound calls.
type botAPI interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Edit(msg tele.Editable, what interface{}, opts ...interface{}) (*tele.Message, error)
	Delete(msg tele.Editable) error
}

// Transport delivers dialogue replies through the Bot API. With a dispatcher, calls are queued
// per chat and retried there; without one they run inline.
type Transport struct {
	bot  botAPI
	disp *sender.Dispatcher
}

var _ dialogue.Transport = (*Transport)(nil)

// NewTransport wraps bot. disp may be nil.
func NewTransport(bot botAPI, disp *sender.Dispatcher) *Transport {
	return &Transport{bot: bot, disp: disp}
}

// SendText implements dialogue.Transport.
func (t *Transport) SendText(ctx context.Context, chatID int64, text string, kb *dialogue.Keyboard, markdown bool) error {
	opts := &tele.SendOptions{ReplyMarkup: keyboard.FromDialogue(kb)}
	if markdown {
		opts.ParseMode = tele.ModeMarkdown
	}
	return t.enqueue(ctx, chatID, "send.text", "sendMessage", func() error {
		_, err := t.bot.Send(tele.ChatID(chatID), text, opts)
		return err
	})
}

// EditMessage implements dialogue.Transport. A nil keyboard drops the inline buttons.
func (t *Transport) EditMessage(ctx context.Context, ref dialogue.MessageRef, text string, kb *dialogue.Keyboard) error {
	msg := storedMessage(ref)
	var opts []interface{}
	if markup := keyboard.FromDialogue(kb); markup != nil {
		opts = append(opts, markup)
	}
	return t.enqueue(ctx, ref.ChatID, "edit.text", "editMessageText", func() error {
		_, err := t.bot.Edit(msg, text, opts...)
		return err
	})
}

// DeleteMessage implements dialogue.Transport.
func (t *Transport) DeleteMessage(ctx context.Context, ref dialogue.MessageRef) error {
	msg := storedMessage(ref)
	return t.enqueue(ctx, ref.ChatID, "delete", "deleteMessage", func() error {
		return t.bot.Delete(msg)
	})
}

// SendPhoto implements dialogue.Transport.
func (t *Transport) SendPhoto(ctx context.Context, chatID int64, photoID, caption string) error {
	photo := &tele.Photo{File: tele.File{FileID: photoID}, Caption: caption}
	return t.enqueue(ctx, chatID, "send.photo", "sendPhoto", func() error {
		_, err := t.bot.Send(tele.ChatID(chatID), photo)
		return err
	})
}

func (t *Transport) enqueue(ctx context.Context, chatID int64, action, endpoint string, run func() error) error {
	if t.disp == nil {
		return run()
	}
	err := t.disp.EnqueueKeyed(ctx, chatID, action, endpoint, run)
	if errors.Is(err, sender.ErrQueueFull) {
		logger.Warn(ctx, "tg.sender", "queue.fallback",
			slog.String("action", action),
			slog.String("endpoint", endpoint),
			slog.Int64("chat_id", chatID),
			slog.String("err", err.Error()),
		)
		return run()
	}
	return err
}

func storedMessage(ref dialogue.MessageRef) tele.StoredMessage {
	return tele.StoredMessage{MessageID: strconv.Itoa(ref.MessageID), ChatID: ref.ChatID}
}
