package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/m3rciful/formbot/core/logger"
	"github.com/m3rciful/formbot/core/state"
)

// Locker serializes processing for one user across several processes. The Redis locker in
// core/redis satisfies it.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, error)
	Unlock(ctx context.Context, key, token string) error
}

// Options tunes the supervisor. Zero values get defaults.
type Options struct {
	// RetryAttempts is the total number of tries for a retryable failure.
	RetryAttempts int
	// RetryBackoff is multiplied by the attempt number between tries.
	RetryBackoff time.Duration
	// MaxPending bounds queued events per user; 0 means unbounded.
	MaxPending int
	Locker     Locker
	LockTTL    time.Duration
	// LockKey maps a user to the lock key. Defaults to "lock:<user id>".
	LockKey  func(userID int64) string
	Observer Observer
}

type job struct {
	ctx  context.Context
	ev   Event
	done chan error
}

type mailbox struct {
	queue []job
}

// Supervisor processes events one at a time per user, in arrival order, while different
// users run in parallel. Each user gets a mailbox drained by its own goroutine; the
// goroutine exits once the mailbox is empty.
type Supervisor[D any] struct {
	store     state.Store[D]
	router    *Router[D]
	transport Transport
	opts      Options

	mu     sync.Mutex
	boxes  map[int64]*mailbox
	closed bool
	wg     sync.WaitGroup
}

// NewSupervisor wires a store, router and transport together.
func NewSupervisor[D any](store state.Store[D], router *Router[D], transport Transport, opts Options) *Supervisor[D] {
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 3
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 200 * time.Millisecond
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 10 * time.Second
	}
	if opts.LockKey == nil {
		opts.LockKey = func(userID int64) string { return "lock:" + strconv.FormatInt(userID, 10) }
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	return &Supervisor[D]{
		store:     store,
		router:    router,
		transport: transport,
		opts:      opts,
		boxes:     make(map[int64]*mailbox),
	}
}

// Submit enqueues ev behind any pending events of the same user and returns immediately.
// The channel receives the processing result exactly once.
func (s *Supervisor[D]) Submit(ctx context.Context, ev Event) <-chan error {
	if ctx == nil {
		ctx = context.Background()
	}
	done := make(chan error, 1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		done <- ErrClosed
		return done
	}
	box, running := s.boxes[ev.UserID]
	if !running {
		box = &mailbox{}
		s.boxes[ev.UserID] = box
	}
	if s.opts.MaxPending > 0 && len(box.queue) >= s.opts.MaxPending {
		pending := len(box.queue)
		s.mu.Unlock()
		logger.Warn(ctx, "dialogue", "dialogue.enqueue",
			slog.String("status", "skip"),
			slog.Int64("user_id", ev.UserID),
			slog.Int("pending", pending),
		)
		done <- ErrMailboxFull
		return done
	}
	box.queue = append(box.queue, job{ctx: ctx, ev: ev, done: done})
	if !running {
		s.wg.Add(1)
		go s.drain(ev.UserID, box)
	}
	s.mu.Unlock()
	return done
}

// Dispatch submits ev and waits for it to be processed or for ctx to end.
func (s *Supervisor[D]) Dispatch(ctx context.Context, ev Event) error {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case err := <-s.Submit(ctx, ev):
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of live mailboxes.
func (s *Supervisor[D]) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.boxes)
}

// Close rejects new events and waits until queued ones are processed or ctx ends.
func (s *Supervisor[D]) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	boxes := len(s.boxes)
	s.mu.Unlock()

	logger.Info(ctx, "dialogue", "dialogue.close",
		slog.String("status", "ok"),
		slog.Int("mailboxes", boxes),
	)

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()
	if ctx == nil {
		<-finished
		return nil
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Supervisor[D]) drain(userID int64, box *mailbox) {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		if len(box.queue) == 0 {
			delete(s.boxes, userID)
			s.mu.Unlock()
			return
		}
		j := box.queue[0]
		box.queue[0] = job{}
		box.queue = box.queue[1:]
		s.mu.Unlock()

		j.done <- s.process(j.ctx, j.ev)
	}
}

type stepResult[D any] struct {
	from   state.State
	route  Route[D]
	result Result[D]
}

func (s *Supervisor[D]) process(ctx context.Context, ev Event) error {
	start := time.Now()
	var (
		res     stepResult[D]
		err     error
		attempt int
	)
	for attempt = 1; ; attempt++ {
		res, err = s.step(ctx, ev)
		if err == nil || !IsRetryable(err) || attempt >= s.opts.RetryAttempts {
			break
		}
		delay := s.opts.RetryBackoff * time.Duration(attempt)
		logger.Warn(ctx, "dialogue", "dialogue.retry",
			slog.String("status", "retry"),
			slog.Int64("user_id", ev.UserID),
			slog.String("kind", string(ev.Kind)),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", delay),
			slog.String("err", err.Error()),
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			err = fmt.Errorf("%w (last: %v)", ctx.Err(), err)
		case <-timer.C:
			continue
		}
		break
	}

	outcome := Outcome{
		UserID:   ev.UserID,
		Kind:     ev.Kind,
		From:     res.from,
		Rule:     res.route.Name,
		Fallback: res.route.Fallback,
		Attempts: attempt,
		Err:      err,
	}
	if err != nil {
		outcome.Duration = time.Since(start)
		s.opts.Observer.ObserveDispatch(outcome)
		logger.Error(ctx, "dialogue", "dialogue.failed",
			slog.String("status", "fail"),
			slog.Int64("user_id", ev.UserID),
			slog.String("kind", string(ev.Kind)),
			slog.String("state", res.from.String()),
			slog.String("rule", res.route.Name),
			slog.Int("attempts", attempt),
			slog.Bool("retryable", IsRetryable(err)),
			slog.String("err", err.Error()),
		)
		return err
	}

	// Replies go out only after the transition is stored.
	for _, r := range res.result.Replies {
		if derr := Deliver(ctx, s.transport, r); derr != nil {
			logger.Warn(ctx, "dialogue", "dialogue.deliver",
				slog.String("status", "fail"),
				slog.Int64("user_id", ev.UserID),
				slog.String("kind", string(r.Kind)),
				slog.String("err", derr.Error()),
			)
		}
	}

	next := res.result.Session.State
	if res.result.Commit == CommitNone {
		next = res.from
	}
	outcome.To = next
	outcome.Commit = res.result.Commit
	outcome.Replies = len(res.result.Replies)
	outcome.Duration = time.Since(start)
	s.opts.Observer.ObserveDispatch(outcome)

	logger.Info(ctx, "dialogue", "dialogue.handled",
		slog.String("status", "ok"),
		slog.Int64("user_id", ev.UserID),
		slog.String("kind", string(ev.Kind)),
		slog.String("state", res.from.String()),
		slog.String("next_state", next.String()),
		slog.String("rule", res.route.Name),
		slog.Bool("fallback", res.route.Fallback),
		slog.String("commit", res.result.Commit.String()),
		slog.Int("replies", len(res.result.Replies)),
		slog.Duration("duration", logger.Took(start)),
	)
	return nil
}

// step performs one read-route-handle-commit cycle. Nothing is persisted unless it returns nil.
func (s *Supervisor[D]) step(ctx context.Context, ev Event) (out stepResult[D], err error) {
	if s.opts.Locker != nil {
		key := s.opts.LockKey(ev.UserID)
		token, lerr := s.opts.Locker.TryLock(ctx, key, s.opts.LockTTL)
		if lerr != nil {
			return out, fmt.Errorf("%w: %v", ErrLockBusy, lerr)
		}
		defer func() {
			unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
			defer cancel()
			if uerr := s.opts.Locker.Unlock(unlockCtx, key, token); uerr != nil {
				logger.Warn(ctx, "dialogue", "dialogue.unlock",
					slog.String("status", "fail"),
					slog.String("key", key),
					slog.String("err", uerr.Error()),
				)
			}
		}()
	}

	sess, err := s.store.Get(ctx, ev.UserID)
	if err != nil {
		return out, err
	}
	sess.UserID = ev.UserID
	if sess.State == "" {
		sess.State = state.StateIdle
	}
	out.from = sess.State

	route, ok := s.router.Route(sess.State, ev)
	if !ok {
		return out, fmt.Errorf("%w: state %s kind %s", ErrNoRoute, sess.State, ev.Kind)
	}
	out.route = route

	ctx = logger.WithDialogue(ctx, ev.UserID, string(sess.State), route.Name)
	result, err := invoke(ctx, route, sess, ev)
	if err != nil {
		return out, err
	}
	result.Session.UserID = ev.UserID

	switch result.Commit {
	case CommitSet:
		err = s.store.Set(ctx, result.Session)
	case CommitClear:
		result.Session = state.Idle[D](ev.UserID)
		err = s.store.Clear(ctx, ev.UserID)
	}
	if err != nil {
		return out, err
	}
	out.result = result
	return out, nil
}

func invoke[D any](ctx context.Context, route Route[D], sess state.Session[D], ev Event) (res Result[D], err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", ErrHandlerPanic, route.Name, r)
		}
	}()
	res, err = route.Handler(ctx, sess, ev)
	if err != nil && !errors.Is(err, ErrHandlerPanic) {
		err = fmt.Errorf("%s: %w", route.Name, err)
	}
	return res, err
}
