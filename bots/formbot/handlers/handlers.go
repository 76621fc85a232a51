// Package handlers implements the questionnaire dialogue on top of core/dialogue.
package handlers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/m3rciful/formbot/bots/formbot/archive"
	"github.com/m3rciful/formbot/bots/formbot/form"
	"github.com/m3rciful/formbot/core/dialogue"
	"github.com/m3rciful/formbot/core/logger"
	"github.com/m3rciful/formbot/core/state"
	"github.com/m3rciful/formbot/core/telegram/format"
)

// Commands handled by the dialogue.
const (
	CmdStart    = "start"
	CmdFillForm = "fillform"
	CmdCancel   = "cancel"
	CmdShowData = "showdata"
)

type (
	session = state.Session[form.Data]
	result  = dialogue.Result[form.Data]
)

// Set holds the dependencies shared by every handler.
type Set struct {
	archive archive.Store
}

// New returns handlers archiving completed forms into store.
func New(store archive.Store) *Set {
	return &Set{archive: store}
}

// BuildRouter registers the full transition table. It panics if a state lacks a fallback,
// which can only happen through a programming error in this file.
func BuildRouter(store archive.Store) *dialogue.Router[form.Data] {
	h := New(store)
	r := dialogue.NewRouter[form.Data]()

	// State independent commands come first so they win in every state.
	r.Handle("cancel.active", dialogue.Active(), dialogue.IsCommand(CmdCancel), h.CancelActive)
	r.Handle("cancel.idle", dialogue.Idle(), dialogue.IsCommand(CmdCancel), h.CancelIdle)
	r.Handle("start", dialogue.Idle(), dialogue.IsCommand(CmdStart), h.Start)
	r.Handle("fillform", dialogue.Idle(), dialogue.IsCommand(CmdFillForm), h.FillForm)
	r.Handle("showdata", dialogue.Idle(), dialogue.IsCommand(CmdShowData), h.ShowData)

	r.Handle("name", dialogue.InState(form.AwaitingName), dialogue.TextMatches(form.ValidName), h.Name)
	r.Handle("age", dialogue.InState(form.AwaitingAge), dialogue.TextMatches(form.ValidAge), h.Age)
	r.Handle("gender", dialogue.InState(form.AwaitingGender), dialogue.ButtonIn(form.Genders...), h.Gender)
	r.Handle("photo", dialogue.InState(form.AwaitingPhoto), dialogue.HasPhoto(), h.Photo)
	r.Handle("education", dialogue.InState(form.AwaitingEducation), dialogue.ButtonIn(form.Educations...), h.Education)
	r.Handle("newsletter", dialogue.InState(form.AwaitingNewsletterChoice), dialogue.ButtonIn(form.NewsletterChoices...), h.Newsletter)

	r.Fallback(form.AwaitingName, "warn.name", warn(warnName))
	r.Fallback(form.AwaitingAge, "warn.age", warn(warnAge))
	r.Fallback(form.AwaitingGender, "warn.gender", warn(warnGender))
	r.Fallback(form.AwaitingPhoto, "warn.photo", warn(warnPhoto))
	r.Fallback(form.AwaitingEducation, "warn.education", warn(warnEducation))
	r.Fallback(form.AwaitingNewsletterChoice, "warn.newsletter", warn(warnNews))
	r.Fallback(state.StateIdle, "unknown", h.Unknown)

	if err := r.Validate(append([]state.State{state.StateIdle}, form.States...)...); err != nil {
		panic(err)
	}
	return r
}

func (h *Set) Start(_ context.Context, sess session, ev dialogue.Event) (result, error) {
	return dialogue.Stay(sess, dialogue.SendText(ev.ChatID, textWelcome, nil)), nil
}

func (h *Set) CancelIdle(_ context.Context, sess session, ev dialogue.Event) (result, error) {
	return dialogue.Stay(sess, dialogue.SendText(ev.ChatID, textNothingToCancel, nil)), nil
}

// CancelActive drops the form in progress without archiving it.
func (h *Set) CancelActive(_ context.Context, sess session, ev dialogue.Event) (result, error) {
	return dialogue.Reset(sess, dialogue.SendText(ev.ChatID, textCancelled, nil)), nil
}

func (h *Set) FillForm(_ context.Context, sess session, ev dialogue.Event) (result, error) {
	return dialogue.Transition(sess, form.AwaitingName, form.Data{},
		dialogue.SendText(ev.ChatID, textAskName, nil)), nil
}

func (h *Set) Name(_ context.Context, sess session, ev dialogue.Event) (result, error) {
	data := sess.Data
	name := ev.Text
	data.Name = &name

	reply := dialogue.SendText(ev.ChatID, fmt.Sprintf(textAskAge, format.MustEscapeV1(name)), nil)
	reply.Markdown = true
	return dialogue.Transition(sess, form.AwaitingAge, data, reply), nil
}

func (h *Set) Age(_ context.Context, sess session, ev dialogue.Event) (result, error) {
	age, ok := form.ParseAge(ev.Text)
	if !ok {
		return dialogue.Stay(sess, dialogue.SendText(ev.ChatID, warnAge, nil)), nil
	}
	data := sess.Data
	data.Age = &age
	return dialogue.Transition(sess, form.AwaitingGender, data,
		dialogue.SendText(ev.ChatID, textAskGender, genderKeyboard)), nil
}

// Gender removes the keyboard message since the next step expects an upload, not a press.
func (h *Set) Gender(_ context.Context, sess session, ev dialogue.Event) (result, error) {
	data := sess.Data
	g := form.Gender(ev.Data)
	data.Gender = &g

	replies := make([]dialogue.Reply, 0, 2)
	if !ev.Ref.IsZero() {
		replies = append(replies, dialogue.DeleteMessage(ev.Ref))
	}
	replies = append(replies, dialogue.SendText(ev.ChatID, textAskPhoto, nil))
	return dialogue.Transition(sess, form.AwaitingPhoto, data, replies...), nil
}

// Photo keeps only the largest variant.
func (h *Set) Photo(_ context.Context, sess session, ev dialogue.Event) (result, error) {
	largest, ok := ev.Largest()
	if !ok {
		return dialogue.Stay(sess, dialogue.SendText(ev.ChatID, warnPhoto, nil)), nil
	}
	data := sess.Data
	data.PhotoID = &largest.FileID
	data.PhotoUniqueID = &largest.UniqueID
	return dialogue.Transition(sess, form.AwaitingEducation, data,
		dialogue.SendText(ev.ChatID, textAskEducation, educationKeyboard)), nil
}

// Education swaps the keyboard in place for the newsletter question.
func (h *Set) Education(_ context.Context, sess session, ev dialogue.Event) (result, error) {
	data := sess.Data
	e := form.Education(ev.Data)
	data.Education = &e

	reply := dialogue.SendText(ev.ChatID, textAskNews, newsletterKeyboard)
	if !ev.Ref.IsZero() {
		reply = dialogue.EditMessage(ev.Ref, textAskNews, newsletterKeyboard)
	}
	return dialogue.Transition(sess, form.AwaitingNewsletterChoice, data, reply), nil
}

// Newsletter finishes the dialogue. The form is archived before the session is cleared; an
// archive failure is returned as retryable so the whole step runs again.
func (h *Set) Newsletter(ctx context.Context, sess session, ev dialogue.Event) (result, error) {
	data := sess.Data
	wants := ev.Data == form.NewsletterYes
	data.WantsNewsletter = &wants

	if err := h.archive.Save(ctx, sess.UserID, data); err != nil {
		return result{}, dialogue.Retryable(fmt.Errorf("archive form: %w", err))
	}
	logger.Info(ctx, "dialogue", "form.completed",
		slog.Int64("user_id", sess.UserID),
		slog.Bool("newsletter", wants),
	)

	done := dialogue.SendText(ev.ChatID, textSaved, nil)
	if !ev.Ref.IsZero() {
		done = dialogue.EditMessage(ev.Ref, textSaved, nil)
	}
	return dialogue.Reset(sess, done, dialogue.SendText(ev.ChatID, textShowTip, nil)), nil
}

func (h *Set) ShowData(ctx context.Context, sess session, ev dialogue.Event) (result, error) {
	data, ok, err := h.archive.Get(ctx, sess.UserID)
	if err != nil {
		return result{}, dialogue.Retryable(fmt.Errorf("load form: %w", err))
	}
	if !ok {
		return dialogue.Stay(sess, dialogue.SendText(ev.ChatID, textNoForm, nil)), nil
	}
	caption := form.Caption(data)
	if data.PhotoID == nil {
		return dialogue.Stay(sess, dialogue.SendText(ev.ChatID, caption, nil)), nil
	}
	return dialogue.Stay(sess, dialogue.SendPhoto(ev.ChatID, *data.PhotoID, caption)), nil
}

func (h *Set) Unknown(_ context.Context, sess session, ev dialogue.Event) (result, error) {
	return dialogue.Stay(sess, dialogue.SendText(ev.ChatID, textUnknown, nil)), nil
}

// warn re-prompts without touching the session.
func warn(text string) dialogue.HandlerFunc[form.Data] {
	return func(_ context.Context, sess session, ev dialogue.Event) (result, error) {
		return dialogue.Stay(sess, dialogue.SendText(ev.ChatID, text, nil)), nil
	}
}
