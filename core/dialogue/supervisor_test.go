package dialogue

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/m3rciful/formbot/core/logger"
	"github.com/m3rciful/formbot/core/state"
)

const stCollect state.State = "collect"

type recordingTransport struct {
	mu    sync.Mutex
	texts []string
}

func (t *recordingTransport) SendText(_ context.Context, _ int64, text string, _ *Keyboard, _ bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.texts = append(t.texts, text)
	return nil
}

func (t *recordingTransport) EditMessage(_ context.Context, _ MessageRef, text string, _ *Keyboard) error {
	return t.SendText(context.Background(), 0, "edit:"+text, nil, false)
}

func (t *recordingTransport) DeleteMessage(context.Context, MessageRef) error { return nil }

func (t *recordingTransport) SendPhoto(_ context.Context, _ int64, _, caption string) error {
	return t.SendText(context.Background(), 0, "photo:"+caption, nil, false)
}

func (t *recordingTransport) snapshot() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.texts...)
}

// appendRouter collects every text into the session data.
func appendRouter() *Router[[]string] {
	r := NewRouter[[]string]()
	r.Handle("collect", AnyState(), IsText(), func(_ context.Context, sess state.Session[[]string], ev Event) (Result[[]string], error) {
		data := append(append([]string(nil), sess.Data...), ev.Text)
		return Transition(sess, stCollect, data, SendText(ev.ChatID, ev.Text, nil)), nil
	})
	r.Fallback(state.StateIdle, "idle", func(_ context.Context, sess state.Session[[]string], _ Event) (Result[[]string], error) {
		return Stay(sess), nil
	})
	r.Fallback(stCollect, "collect.fallback", func(_ context.Context, sess state.Session[[]string], _ Event) (Result[[]string], error) {
		return Stay(sess), nil
	})
	return r
}

func waitAll(t *testing.T, chans []<-chan error) {
	t.Helper()
	for i, ch := range chans {
		select {
		case err := <-ch:
			if err != nil {
				t.Fatalf("event %d failed: %v", i, err)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("event %d timed out", i)
		}
	}
}

func TestSupervisorPreservesPerUserOrder(t *testing.T) {
	store := state.NewMemoryStore[[]string]()
	sup := NewSupervisor(store, appendRouter(), &recordingTransport{}, Options{})

	const n = 100
	var chans []<-chan error
	for i := 0; i < n; i++ {
		chans = append(chans, sup.Submit(context.Background(), Event{Kind: KindText, UserID: 7, Text: strconv.Itoa(i)}))
	}
	waitAll(t, chans)

	sess, err := store.Get(context.Background(), 7)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(sess.Data) != n {
		t.Fatalf("expected %d entries, got %d", n, len(sess.Data))
	}
	for i, v := range sess.Data {
		if v != strconv.Itoa(i) {
			t.Fatalf("entry %d out of order: %q", i, v)
		}
	}
}

func TestSupervisorIsolatesUsers(t *testing.T) {
	store := state.NewMemoryStore[[]string]()
	sup := NewSupervisor(store, appendRouter(), &recordingTransport{}, Options{})

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		chans []<-chan error
	)
	for u := int64(1); u <= 8; u++ {
		wg.Add(1)
		go func(uid int64) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				ch := sup.Submit(context.Background(), Event{Kind: KindText, UserID: uid, Text: strconv.FormatInt(uid, 10)})
				mu.Lock()
				chans = append(chans, ch)
				mu.Unlock()
			}
		}(u)
	}
	wg.Wait()
	waitAll(t, chans)

	for u := int64(1); u <= 8; u++ {
		sess, _ := store.Get(context.Background(), u)
		if len(sess.Data) != 25 {
			t.Fatalf("user %d: expected 25 entries, got %d", u, len(sess.Data))
		}
		for _, v := range sess.Data {
			if v != strconv.FormatInt(u, 10) {
				t.Fatalf("user %d saw foreign entry %q", u, v)
			}
		}
	}
	if sup.Pending() != 0 {
		t.Fatalf("expected idle mailboxes to be reaped, got %d", sup.Pending())
	}
}

func TestSupervisorRunsUsersInParallel(t *testing.T) {
	release := make(chan struct{})
	r := NewRouter[int]()
	r.Handle("block", AnyState(), IsCommand("block"), func(_ context.Context, sess state.Session[int], _ Event) (Result[int], error) {
		<-release
		return Stay(sess), nil
	})
	r.Handle("free", AnyState(), IsCommand("free"), func(_ context.Context, sess state.Session[int], _ Event) (Result[int], error) {
		close(release)
		return Stay(sess), nil
	})
	sup := NewSupervisor(state.NewMemoryStore[int](), r, &recordingTransport{}, Options{})

	blocked := sup.Submit(context.Background(), Event{Kind: KindCommand, Command: "block", UserID: 1})
	free := sup.Submit(context.Background(), Event{Kind: KindCommand, Command: "free", UserID: 2})
	waitAll(t, []<-chan error{free, blocked})
}

type flakyStore struct {
	state.Store[int]
	mu       sync.Mutex
	failGets int
}

func (s *flakyStore) Get(ctx context.Context, userID int64) (state.Session[int], error) {
	s.mu.Lock()
	if s.failGets > 0 {
		s.failGets--
		s.mu.Unlock()
		return state.Session[int]{}, state.ErrUnavailable
	}
	s.mu.Unlock()
	return s.Store.Get(ctx, userID)
}

func counterRouter(calls *int) *Router[int] {
	r := NewRouter[int]()
	r.Handle("inc", AnyState(), IsText(), func(_ context.Context, sess state.Session[int], ev Event) (Result[int], error) {
		*calls++
		return Transition(sess, stCollect, sess.Data+1, SendText(ev.ChatID, "inc", nil)), nil
	})
	return r
}

func TestSupervisorRetriesStoreUnavailable(t *testing.T) {
	store := &flakyStore{Store: state.NewMemoryStore[int](), failGets: 2}
	tr := &recordingTransport{}
	var calls int
	var outcomes []Outcome
	sup := NewSupervisor[int](store, counterRouter(&calls), tr, Options{
		RetryAttempts: 3,
		RetryBackoff:  time.Millisecond,
		Observer:      ObserverFunc(func(o Outcome) { outcomes = append(outcomes, o) }),
	})

	if err := sup.Dispatch(context.Background(), Event{Kind: KindText, UserID: 3}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	sess, _ := store.Store.Get(context.Background(), 3)
	if sess.Data != 1 || sess.State != stCollect {
		t.Fatalf("unexpected session %+v", sess)
	}
	if calls != 1 {
		t.Fatalf("handler should run once after store recovers, ran %d", calls)
	}
	if got := tr.snapshot(); len(got) != 1 {
		t.Fatalf("expected exactly one delivered reply, got %v", got)
	}
	if len(outcomes) != 1 || outcomes[0].Attempts != 3 || outcomes[0].To != stCollect {
		t.Fatalf("unexpected outcomes %+v", outcomes)
	}
}

func TestSupervisorGivesUpAfterRetries(t *testing.T) {
	store := &flakyStore{Store: state.NewMemoryStore[int](), failGets: 10}
	tr := &recordingTransport{}
	var calls int
	sup := NewSupervisor[int](store, counterRouter(&calls), tr, Options{RetryAttempts: 2, RetryBackoff: time.Millisecond})

	err := sup.Dispatch(context.Background(), Event{Kind: KindText, UserID: 3})
	if !errors.Is(err, state.ErrUnavailable) || !IsRetryable(err) {
		t.Fatalf("expected retryable store error, got %v", err)
	}
	if calls != 0 || len(tr.snapshot()) != 0 {
		t.Fatalf("failed event must not run the handler or deliver replies")
	}
}

func TestSupervisorHandlerErrorCommitsNothing(t *testing.T) {
	store := state.NewMemoryStore[int]()
	tr := &recordingTransport{}
	boom := errors.New("boom")
	r := NewRouter[int]()
	r.Handle("fail", AnyState(), Always(), func(_ context.Context, sess state.Session[int], _ Event) (Result[int], error) {
		return Transition(sess, stCollect, 42, SendText(1, "never", nil)), boom
	})
	sup := NewSupervisor(store, r, tr, Options{RetryBackoff: time.Millisecond})

	err := sup.Dispatch(context.Background(), Event{Kind: KindText, UserID: 5})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	sess, _ := store.Get(context.Background(), 5)
	if !sess.State.IsIdle() || sess.Data != 0 {
		t.Fatalf("session must stay untouched, got %+v", sess)
	}
	if len(tr.snapshot()) != 0 {
		t.Fatalf("no replies expected")
	}
}

func TestSupervisorRecoversPanics(t *testing.T) {
	r := NewRouter[int]()
	r.Handle("panic", AnyState(), Always(), func(context.Context, state.Session[int], Event) (Result[int], error) {
		panic("kaboom")
	})
	sup := NewSupervisor(state.NewMemoryStore[int](), r, &recordingTransport{}, Options{})

	if err := sup.Dispatch(context.Background(), Event{Kind: KindText, UserID: 1}); !errors.Is(err, ErrHandlerPanic) {
		t.Fatalf("expected ErrHandlerPanic, got %v", err)
	}
}

func TestSupervisorTagsHandlerContext(t *testing.T) {
	store := state.NewMemoryStore[int]()
	_ = store.Set(context.Background(), state.Session[int]{UserID: 4, State: stCollect})
	var gotState, gotRule string
	var gotUser int64
	r := NewRouter[int]()
	r.Handle("collect.text", InState(stCollect), IsText(), func(ctx context.Context, sess state.Session[int], _ Event) (Result[int], error) {
		gotState, gotRule = logger.DialogueFrom(ctx)
		gotUser = logger.UserIDFrom(ctx)
		return Stay(sess), nil
	})
	sup := NewSupervisor(store, r, &recordingTransport{}, Options{})

	if err := sup.Dispatch(context.Background(), Event{Kind: KindText, UserID: 4, Text: "x"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if gotState != "collect" || gotRule != "collect.text" || gotUser != 4 {
		t.Fatalf("unexpected handler context: state=%q rule=%q user=%d", gotState, gotRule, gotUser)
	}
}

func TestSupervisorNoRoute(t *testing.T) {
	sup := NewSupervisor(state.NewMemoryStore[int](), NewRouter[int](), &recordingTransport{}, Options{})
	if err := sup.Dispatch(context.Background(), Event{Kind: KindText, UserID: 1}); !errors.Is(err, ErrNoRoute) {
		t.Fatalf("expected ErrNoRoute, got %v", err)
	}
}

func TestSupervisorResetClearsSession(t *testing.T) {
	store := state.NewMemoryStore[int]()
	_ = store.Set(context.Background(), state.Session[int]{UserID: 9, State: stCollect, Data: 4})
	r := NewRouter[int]()
	r.Handle("reset", Active(), IsCommand("cancel"), func(_ context.Context, sess state.Session[int], ev Event) (Result[int], error) {
		return Reset(sess, SendText(ev.ChatID, "bye", nil)), nil
	})
	sup := NewSupervisor(store, r, &recordingTransport{}, Options{})

	if err := sup.Dispatch(context.Background(), Event{Kind: KindCommand, Command: "cancel", UserID: 9}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	sess, _ := store.Get(context.Background(), 9)
	if !sess.State.IsIdle() || sess.Data != 0 {
		t.Fatalf("expected idle session, got %+v", sess)
	}
}

type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]bool
	failures int
	unlocks  int
}

func (l *fakeLocker) TryLock(_ context.Context, key string, _ time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failures > 0 {
		l.failures--
		return "", errors.New("held elsewhere")
	}
	if l.held[key] {
		return "", errors.New("held")
	}
	l.held[key] = true
	return "tok", nil
}

func (l *fakeLocker) Unlock(_ context.Context, key, _ string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	l.unlocks++
	return nil
}

func TestSupervisorUsesLocker(t *testing.T) {
	lk := &fakeLocker{held: map[string]bool{}, failures: 1}
	var calls int
	sup := NewSupervisor[int](state.NewMemoryStore[int](), counterRouter(&calls), &recordingTransport{}, Options{
		Locker:       lk,
		RetryBackoff: time.Millisecond,
	})

	if err := sup.Dispatch(context.Background(), Event{Kind: KindText, UserID: 11}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if calls != 1 || lk.unlocks != 1 || len(lk.held) != 0 {
		t.Fatalf("unexpected lock usage: calls=%d unlocks=%d held=%v", calls, lk.unlocks, lk.held)
	}
}

func TestSupervisorMailboxLimit(t *testing.T) {
	release := make(chan struct{})
	r := NewRouter[int]()
	r.Handle("wait", AnyState(), Always(), func(_ context.Context, sess state.Session[int], _ Event) (Result[int], error) {
		<-release
		return Stay(sess), nil
	})
	sup := NewSupervisor(state.NewMemoryStore[int](), r, &recordingTransport{}, Options{MaxPending: 1})

	first := sup.Submit(context.Background(), Event{Kind: KindText, UserID: 1})
	// Wait until the first event leaves the queue.
	deadline := time.Now().Add(2 * time.Second)
	for {
		sup.mu.Lock()
		queued := len(sup.boxes[1].queue)
		sup.mu.Unlock()
		if queued == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("first event never started")
		}
		time.Sleep(time.Millisecond)
	}
	second := sup.Submit(context.Background(), Event{Kind: KindText, UserID: 1})
	third := sup.Submit(context.Background(), Event{Kind: KindText, UserID: 1})
	if err := <-third; !errors.Is(err, ErrMailboxFull) {
		t.Fatalf("expected ErrMailboxFull, got %v", err)
	}
	close(release)
	waitAll(t, []<-chan error{first, second})
}

func TestSupervisorCloseDrainsAndRejects(t *testing.T) {
	store := state.NewMemoryStore[[]string]()
	sup := NewSupervisor(store, appendRouter(), &recordingTransport{}, Options{})
	pending := sup.Submit(context.Background(), Event{Kind: KindText, UserID: 1, Text: "a"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sup.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := <-pending; err != nil {
		t.Fatalf("queued event should finish before close returns: %v", err)
	}
	if err := <-sup.Submit(context.Background(), Event{Kind: KindText, UserID: 1}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
