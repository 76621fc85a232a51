package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/m3rciful/formbot/bots/formbot/archive"
	"github.com/m3rciful/formbot/bots/formbot/form"
	"github.com/m3rciful/formbot/core/dialogue"
	"github.com/m3rciful/formbot/core/state"
)

type sent struct {
	op   string
	chat int64
	ref  dialogue.MessageRef
	text string
	kb   *dialogue.Keyboard
}

type recorder struct {
	mu  sync.Mutex
	ops []sent
}

func (r *recorder) add(s sent) {
	r.mu.Lock()
	r.ops = append(r.ops, s)
	r.mu.Unlock()
}

func (r *recorder) SendText(_ context.Context, chatID int64, text string, kb *dialogue.Keyboard, _ bool) error {
	r.add(sent{op: "send", chat: chatID, text: text, kb: kb})
	return nil
}

func (r *recorder) EditMessage(_ context.Context, ref dialogue.MessageRef, text string, kb *dialogue.Keyboard) error {
	r.add(sent{op: "edit", chat: ref.ChatID, ref: ref, text: text, kb: kb})
	return nil
}

func (r *recorder) DeleteMessage(_ context.Context, ref dialogue.MessageRef) error {
	r.add(sent{op: "delete", chat: ref.ChatID, ref: ref})
	return nil
}

func (r *recorder) SendPhoto(_ context.Context, chatID int64, photoID, caption string) error {
	r.add(sent{op: "photo:" + photoID, chat: chatID, text: caption})
	return nil
}

func (r *recorder) take() []sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.ops
	r.ops = nil
	return out
}

type harness struct {
	t       *testing.T
	store   state.Store[form.Data]
	archive archive.Store
	tr      *recorder
	sup     *dialogue.Supervisor[form.Data]
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		store:   state.NewMemoryStore[form.Data](),
		archive: archive.NewMemoryStore(),
		tr:      &recorder{},
	}
	h.sup = dialogue.NewSupervisor(h.store, BuildRouter(h.archive), h.tr, dialogue.Options{})
	return h
}

func (h *harness) send(ev dialogue.Event) []sent {
	h.t.Helper()
	if ev.ChatID == 0 {
		ev.ChatID = ev.UserID
	}
	if err := h.sup.Dispatch(context.Background(), ev); err != nil {
		h.t.Fatalf("dispatch %+v: %v", ev, err)
	}
	return h.tr.take()
}

func (h *harness) state(user int64) state.Session[form.Data] {
	h.t.Helper()
	sess, err := h.store.Get(context.Background(), user)
	if err != nil {
		h.t.Fatalf("get: %v", err)
	}
	return sess
}

func cmd(user int64, name string) dialogue.Event {
	return dialogue.Event{Kind: dialogue.KindCommand, UserID: user, Command: name, Text: "/" + name}
}

func text(user int64, s string) dialogue.Event {
	return dialogue.Event{Kind: dialogue.KindText, UserID: user, Text: s}
}

func press(user int64, value string, msgID int) dialogue.Event {
	return dialogue.Event{Kind: dialogue.KindButton, UserID: user, Data: value, Ref: dialogue.MessageRef{ChatID: user, MessageID: msgID}}
}

func photo(user int64) dialogue.Event {
	return dialogue.Event{Kind: dialogue.KindPhoto, UserID: user, Photos: []dialogue.PhotoVariant{
		{FileID: "small", UniqueID: "u-small", Width: 90, Height: 90},
		{FileID: "big", UniqueID: "u-big", Width: 1280, Height: 960},
		{FileID: "mid", UniqueID: "u-mid", Width: 320, Height: 240},
	}}
}

func (h *harness) fill(user int64, name, age, gender, education, news string) {
	h.t.Helper()
	h.send(cmd(user, CmdFillForm))
	h.send(text(user, name))
	h.send(text(user, age))
	h.send(press(user, gender, 10))
	h.send(photo(user))
	h.send(press(user, education, 11))
	h.send(press(user, news, 11))
}

func TestHappyPath(t *testing.T) {
	h := newHarness(t)
	const user = 42

	steps := []struct {
		ev   dialogue.Event
		want state.State
		ops  []string
	}{
		{cmd(user, CmdFillForm), form.AwaitingName, []string{"send"}},
		{text(user, "Ivan"), form.AwaitingAge, []string{"send"}},
		{text(user, "30"), form.AwaitingGender, []string{"send"}},
		{press(user, "male", 10), form.AwaitingPhoto, []string{"delete", "send"}},
		{photo(user), form.AwaitingEducation, []string{"send"}},
		{press(user, "higher", 11), form.AwaitingNewsletterChoice, []string{"edit"}},
		{press(user, "yes", 11), state.StateIdle, []string{"edit", "send"}},
	}
	for i, st := range steps {
		ops := h.send(st.ev)
		if got := h.state(user).State; got != st.want {
			t.Fatalf("step %d: state %s, want %s", i, got, st.want)
		}
		if len(ops) != len(st.ops) {
			t.Fatalf("step %d: replies %+v, want ops %v", i, ops, st.ops)
		}
		for j, op := range st.ops {
			if ops[j].op != op {
				t.Fatalf("step %d reply %d: op %s, want %s", i, j, ops[j].op, op)
			}
		}
	}

	got, ok, err := h.archive.Get(context.Background(), user)
	if err != nil || !ok {
		t.Fatalf("archived form missing: ok=%v err=%v", ok, err)
	}
	if *got.Name != "Ivan" || *got.Age != 30 || *got.Gender != form.GenderMale ||
		*got.Education != form.EducationHigher || !*got.WantsNewsletter {
		t.Fatalf("unexpected archived form %+v", got)
	}
	if *got.PhotoID != "big" || *got.PhotoUniqueID != "u-big" {
		t.Fatalf("largest photo variant not kept: %s/%s", *got.PhotoID, *got.PhotoUniqueID)
	}
	if sess := h.state(user); sess.Data.Name != nil {
		t.Fatalf("session data must be cleared after completion: %+v", sess.Data)
	}
}

func TestGenderStepDeletesKeyboardMessage(t *testing.T) {
	h := newHarness(t)
	h.send(cmd(1, CmdFillForm))
	h.send(text(1, "Anna"))
	ops := h.send(text(1, "25"))
	if ops[0].kb == nil || len(ops[0].kb.Rows) != 2 || len(ops[0].kb.Rows[0]) != 2 || len(ops[0].kb.Rows[1]) != 1 {
		t.Fatalf("gender keyboard must be laid out 2+1: %+v", ops[0].kb)
	}
	ops = h.send(press(1, "female", 77))
	if ops[0].op != "delete" || ops[0].ref.MessageID != 77 {
		t.Fatalf("expected the keyboard message to be deleted, got %+v", ops)
	}
}

func TestInvalidInputKeepsState(t *testing.T) {
	h := newHarness(t)
	const user = 5
	h.send(cmd(user, CmdFillForm))

	cases := []struct {
		ev   dialogue.Event
		want string
	}{
		{text(user, "Anna2"), warnName},
		{text(user, ""), warnName},
		{press(user, "male", 1), warnName},
		{photo(user), warnName},
	}
	for _, tc := range cases {
		ops := h.send(tc.ev)
		if len(ops) != 1 || ops[0].text != tc.want {
			t.Fatalf("event %+v: replies %+v", tc.ev, ops)
		}
		if st := h.state(user).State; st != form.AwaitingName {
			t.Fatalf("state changed to %s on invalid input", st)
		}
	}

	h.send(text(user, "Anna"))
	for _, in := range []string{"3", "121", "12a", "-4", "abc"} {
		ops := h.send(text(user, in))
		if ops[0].text != warnAge || h.state(user).State != form.AwaitingAge {
			t.Fatalf("age %q must be rejected", in)
		}
	}
	if sess := h.state(user); sess.Data.Age != nil {
		t.Fatalf("rejected age must not be stored: %v", *sess.Data.Age)
	}

	h.send(text(user, "4"))
	for _, ev := range []dialogue.Event{text(user, "male"), press(user, "robot", 1), cmd(user, CmdStart)} {
		ops := h.send(ev)
		if ops[0].text != warnGender || h.state(user).State != form.AwaitingGender {
			t.Fatalf("event %+v must be rejected in gender step", ev)
		}
	}

	h.send(press(user, "undisclosed", 2))
	ops := h.send(text(user, "here is my photo"))
	if ops[0].text != warnPhoto {
		t.Fatalf("text must be rejected in photo step: %+v", ops)
	}
	empty := dialogue.Event{Kind: dialogue.KindPhoto, UserID: user}
	if ops := h.send(empty); ops[0].text != warnPhoto {
		t.Fatalf("photo without variants must be rejected: %+v", ops)
	}

	h.send(photo(user))
	if ops := h.send(press(user, "phd", 3)); ops[0].text != warnEducation {
		t.Fatalf("unknown education must be rejected: %+v", ops)
	}
	h.send(press(user, "none", 3))
	if ops := h.send(text(user, "yes")); ops[0].text != warnNews {
		t.Fatalf("typed answer must be rejected in newsletter step: %+v", ops)
	}
	if st := h.state(user).State; st != form.AwaitingNewsletterChoice {
		t.Fatalf("unexpected state %s", st)
	}
}

func TestCancelMidDialogueDiscardsData(t *testing.T) {
	h := newHarness(t)
	const user = 7

	if ops := h.send(cmd(user, CmdShowData)); ops[0].text != textNoForm {
		t.Fatalf("expected no form yet, got %+v", ops)
	}
	if ops := h.send(cmd(user, CmdCancel)); ops[0].text != textNothingToCancel {
		t.Fatalf("idle cancel: %+v", ops)
	}

	h.fill(user, "Ivan", "30", "male", "higher", "no")

	path := []dialogue.Event{
		cmd(user, CmdFillForm), text(user, "Petr"), text(user, "40"),
		press(user, "female", 1), photo(user), press(user, "secondary", 2),
	}
	for k, st := range form.States {
		for _, ev := range path[:k+1] {
			h.send(ev)
		}
		if got := h.state(user).State; got != st {
			t.Fatalf("expected to reach %s, got %s", st, got)
		}
		ops := h.send(cmd(user, CmdCancel))
		if ops[0].text != textCancelled {
			t.Fatalf("cancel from %s: %+v", st, ops)
		}
		sess := h.state(user)
		if sess.State != state.StateIdle || sess.Data.Name != nil {
			t.Fatalf("cancel from %s must reset the session, got %+v", st, sess)
		}
	}

	ops := h.send(cmd(user, CmdShowData))
	if len(ops) != 1 || ops[0].op != "photo:big" || !strings.Contains(ops[0].text, "Name: Ivan") {
		t.Fatalf("showdata must show the previous archived form, got %+v", ops)
	}
}

func TestRefillOverwritesArchivedForm(t *testing.T) {
	h := newHarness(t)
	h.fill(9, "Ivan", "30", "male", "higher", "yes")
	h.fill(9, "Anna", "25", "female", "secondary", "no")

	got, _, _ := h.archive.Get(context.Background(), 9)
	if *got.Name != "Anna" || *got.Age != 25 || *got.Gender != form.GenderFemale ||
		*got.Education != form.EducationSecondary || *got.WantsNewsletter {
		t.Fatalf("refill must overwrite, got %+v", got)
	}
}

func TestIdleCommandsAndUnknown(t *testing.T) {
	h := newHarness(t)
	if ops := h.send(cmd(3, CmdStart)); ops[0].text != textWelcome {
		t.Fatalf("start: %+v", ops)
	}
	if ops := h.send(text(3, "hello")); ops[0].text != textUnknown {
		t.Fatalf("unknown text: %+v", ops)
	}
	if ops := h.send(cmd(3, "help")); ops[0].text != textUnknown {
		t.Fatalf("unknown command: %+v", ops)
	}
	if ops := h.send(press(3, "male", 1)); ops[0].text != textUnknown {
		t.Fatalf("stale button: %+v", ops)
	}
	if st := h.state(3).State; st != state.StateIdle {
		t.Fatalf("idle commands must not change state, got %s", st)
	}
}

func TestConcurrentUsersDoNotMix(t *testing.T) {
	h := newHarness(t)
	var wg sync.WaitGroup
	for u := int64(100); u < 120; u++ {
		wg.Add(1)
		go func(u int64) {
			defer wg.Done()
			name := fmt.Sprintf("User%c", 'A'+rune(u-100))
			evs := []dialogue.Event{
				cmd(u, CmdFillForm), text(u, name), text(u, fmt.Sprint(u-80)),
				press(u, "male", 1), photo(u), press(u, "higher", 2), press(u, "yes", 2),
			}
			var chans []<-chan error
			for _, ev := range evs {
				ev.ChatID = u
				chans = append(chans, h.sup.Submit(context.Background(), ev))
			}
			for _, ch := range chans {
				if err := <-ch; err != nil {
					t.Errorf("user %d: %v", u, err)
				}
			}
		}(u)
	}
	wg.Wait()

	for u := int64(100); u < 120; u++ {
		got, ok, _ := h.archive.Get(context.Background(), u)
		want := fmt.Sprintf("User%c", 'A'+rune(u-100))
		if !ok || *got.Name != want || *got.Age != int(u-80) {
			t.Fatalf("user %d: unexpected form %+v", u, got)
		}
	}
}

type failingArchive struct {
	archive.Store
	fails int
}

func (f *failingArchive) Save(ctx context.Context, userID int64, data form.Data) error {
	if f.fails > 0 {
		f.fails--
		return archive.ErrUnavailable
	}
	return f.Store.Save(ctx, userID, data)
}

func TestArchiveFailureIsRetriedAndKeepsSession(t *testing.T) {
	store := state.NewMemoryStore[form.Data]()
	arch := &failingArchive{Store: archive.NewMemoryStore(), fails: 5}
	sup := dialogue.NewSupervisor(store, BuildRouter(arch), &recorder{}, dialogue.Options{RetryAttempts: 2, RetryBackoff: 1})

	ctx := context.Background()
	for _, ev := range []dialogue.Event{
		cmd(1, CmdFillForm), text(1, "Ivan"), text(1, "30"),
		press(1, "male", 1), photo(1), press(1, "higher", 2),
	} {
		ev.ChatID = 1
		if err := sup.Dispatch(ctx, ev); err != nil {
			t.Fatalf("dispatch: %v", err)
		}
	}

	last := press(1, "yes", 2)
	err := sup.Dispatch(ctx, last)
	if !errors.Is(err, archive.ErrUnavailable) || !dialogue.IsRetryable(err) {
		t.Fatalf("expected retryable archive error, got %v", err)
	}
	if sess, _ := store.Get(ctx, 1); sess.State != form.AwaitingNewsletterChoice {
		t.Fatalf("failed completion must keep the dialogue, got %s", sess.State)
	}

	arch.fails = 0
	if err := sup.Dispatch(ctx, last); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if _, ok, _ := arch.Get(ctx, 1); !ok {
		t.Fatalf("form must be archived after redelivery")
	}
}

func TestBuildRouterCoversEveryState(t *testing.T) {
	r := BuildRouter(archive.NewMemoryStore())
	for _, st := range append([]state.State{state.StateIdle}, form.States...) {
		route, ok := r.Route(st, dialogue.Event{Kind: dialogue.KindOther})
		if !ok || !route.Fallback {
			t.Fatalf("state %s has no fallback", st)
		}
	}
}
