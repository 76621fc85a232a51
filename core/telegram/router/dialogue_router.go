package router

import (
	"context"
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/formbot/core/dialogue"
	"github.com/m3rciful/formbot/core/logger"
	tg "github.com/m3rciful/formbot/core/telegram"
	"github.com/m3rciful/formbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/formbot/core/telegram/helpers"
)

// EventSink accepts converted updates. *dialogue.Supervisor satisfies it.
type EventSink interface {
	Submit(ctx context.Context, ev dialogue.Event) <-chan error
}

// messageEndpoints are the non-command updates forwarded to the dialogue.
var messageEndpoints = []string{
	tele.OnText,
	tele.OnPhoto,
	tele.OnMedia,
	tele.OnSticker,
	tele.OnLocation,
	tele.OnContact,
	tele.OnCallback,
}

// FailureFunc answers an update whose processing failed after it was queued.
type FailureFunc func(c tele.Context, err error)

// DialogueRoutes wires every inbound update kind, plus the registry's commands, to sink.
// Handlers only convert and enqueue, so the poller is never blocked by one user's dialogue.
// Recovery and request logging come from the bot-wide middleware chain.
func DialogueRoutes(sink EventSink, reg *tg.Registry, onFailed FailureFunc) []tg.Route {
	h := BridgeHandler(sink, onFailed)

	routes := make([]tg.Route, 0, len(messageEndpoints)+8)
	for _, ep := range messageEndpoints {
		routes = append(routes, tg.Route{Endpoint: ep, Handler: h})
	}
	if reg != nil {
		for _, cmd := range reg.CommandNames() {
			routes = append(routes, tg.Route{Endpoint: cmd, Handler: h})
		}
	}

	logger.Info(context.Background(), "tg.wire", "tg.wire",
		slog.String("status", "ok"),
		slog.Int("count", len(routes)),
	)
	return routes
}

// BridgeHandler converts the update and submits it without waiting for processing.
// When onFailed is set, an event that still fails with a retryable error after the
// supervisor's own retries is reported to it, so the user learns to resend.
func BridgeHandler(sink EventSink, onFailed FailureFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		start := time.Now()
		ev, ok := EventFromContext(c)
		if !ok {
			logHandlerSummary(c, "dialogue.unsupported", start, "skip", "ok", nil)
			return nil
		}
		if c.Callback() != nil {
			// Stops the client's loading indicator; the real answer comes from the dialogue.
			_ = c.Respond()
		}

		name := "dialogue." + string(ev.Kind)
		if ev.Kind == dialogue.KindCommand {
			name = "dialogue.command." + normalizeHandlerName(ev.Command)
		}
		ctx := tghelpers.WithHandler(c, name)

		var err error
		result := sink.Submit(ctx, ev)
		select {
		case err = <-result:
		default:
			if onFailed != nil {
				go awaitFailure(ctx, c, result, onFailed)
			}
		}
		status := "queued"
		if err != nil {
			status = ""
		}
		logHandlerSummary(c, name, start, status, "", err, slog.String("kind", string(ev.Kind)))
		return err
	}
}

func awaitFailure(ctx context.Context, c tele.Context, result <-chan error, onFailed FailureFunc) {
	err := <-result
	if !dialogue.IsRetryable(err) {
		return
	}
	logger.Warn(ctx, "tg", "dialogue.retry_later",
		slog.String("status", "fail"),
		slog.String("err", err.Error()),
	)
	onFailed(c, err)
}

// EventFromContext converts a telebot update into a dialogue event. ok is false for updates
// without a sender or message (channel posts, inline queries and the like).
func EventFromContext(c tele.Context) (dialogue.Event, bool) {
	user := c.Sender()
	if user == nil {
		return dialogue.Event{}, false
	}
	ev := dialogue.Event{UserID: user.ID, UpdateID: c.Update().ID}
	if chat := c.Chat(); chat != nil {
		ev.ChatID = chat.ID
	}
	msg := c.Message()
	if msg != nil {
		ev.Ref = dialogue.MessageRef{MessageID: msg.ID, ChatID: ev.ChatID}
		if msg.Chat != nil {
			ev.Ref.ChatID = msg.Chat.ID
		}
	}

	if cb := c.Callback(); cb != nil {
		ev.Kind = dialogue.KindButton
		ev.Data = callbackValue(cb)
		if ev.ChatID == 0 {
			ev.ChatID = user.ID
		}
		return ev, true
	}
	if msg == nil {
		return dialogue.Event{}, false
	}
	if ev.ChatID == 0 {
		ev.ChatID = ev.Ref.ChatID
	}

	switch {
	case msg.Photo != nil:
		ev.Kind = dialogue.KindPhoto
		ev.Text = msg.Caption
		ev.Photos = []dialogue.PhotoVariant{{
			FileID:   msg.Photo.FileID,
			UniqueID: msg.Photo.UniqueID,
			Width:    msg.Photo.Width,
			Height:   msg.Photo.Height,
		}}
	case msg.Text != "":
		if name, args, isCmd := dialogue.ParseCommand(msg.Text); isCmd {
			ev.Kind = dialogue.KindCommand
			ev.Command = name
			ev.Args = args
		} else {
			ev.Kind = dialogue.KindText
		}
		ev.Text = msg.Text
	default:
		ev.Kind = dialogue.KindOther
		ev.Text = msg.Caption
	}
	return ev, true
}

func callbackValue(cb *tele.Callback) string {
	if cb.Unique != "" {
		// Telebot already split "\f<unique>|<payload>" for a registered unique.
		return cb.Data
	}
	_, payload := callbacks.ParseCallbackData(cb)
	return payload
}
