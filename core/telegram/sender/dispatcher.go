// Package sender runs outbound Bot API calls on a small worker pool.
package sender

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/formbot/core/logger"
	"github.com/m3rciful/formbot/core/telegram/netutil"
)

var (
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	ErrQueueFull   = errors.New("telegram sender: queue full")
	errNilJob      = errors.New("telegram sender: nil run function")
)

// Options controls the dispatcher. Zero values take defaults.
type Options struct {
	// QueueSize is the buffer of each worker.
	QueueSize int
	Workers   int
	// MaxRetries counts retries after the first attempt. Only transient
	// network errors and flood waits are retried.
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds one job including its retries.
	MaxDuration time.Duration
	// OnFailure is called once for every job that gave up.
	OnFailure func(action string, err error)
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	o.MaxRetries = max(o.MaxRetries, 0)
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = 12 * time.Second
	}
	return o
}

type job struct {
	ctx      context.Context
	key      int64
	action   string
	endpoint string
	run      func() error
}

func (j job) attrs(extra ...slog.Attr) []slog.Attr {
	attrs := []slog.Attr{slog.String("action", j.action)}
	if j.endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", j.endpoint))
	}
	if j.key != 0 {
		attrs = append(attrs, slog.Int64("key", j.key))
	}
	return append(attrs, extra...)
}

// Dispatcher executes queued calls with retries. Jobs sharing a key always land
// on the same worker, so replies to one chat go out in the order they were queued.
type Dispatcher struct {
	opts    Options
	workers []chan job
	rr      atomic.Uint64
	failed  atomic.Uint64

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(opts Options) *Dispatcher {
	opts = opts.withDefaults()
	d := &Dispatcher{opts: opts, workers: make([]chan job, opts.Workers)}
	for i := range d.workers {
		ch := make(chan job, opts.QueueSize)
		d.workers[i] = ch
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for j := range ch {
				d.process(j)
			}
		}()
	}
	return d
}

// Enqueue runs fn on whichever worker is next. The closure may run more than once.
func (d *Dispatcher) Enqueue(ctx context.Context, action, endpoint string, fn func() error) error {
	w := d.rr.Add(1) % uint64(len(d.workers))
	return d.push(int(w), job{ctx: ctx, action: action, endpoint: endpoint, run: fn})
}

// EnqueueKeyed runs fn after every job queued earlier under the same key.
func (d *Dispatcher) EnqueueKeyed(ctx context.Context, key int64, action, endpoint string, fn func() error) error {
	k := uint64(key)
	if key < 0 {
		k = uint64(-key)
	}
	return d.push(int(k%uint64(len(d.workers))), job{ctx: ctx, key: key, action: action, endpoint: endpoint, run: fn})
}

func (d *Dispatcher) push(w int, j job) error {
	if j.run == nil {
		return errNilJob
	}
	if j.ctx == nil {
		j.ctx = context.Background()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrQueueClosed
	}
	select {
	case d.workers[w] <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

// ErrorCount is the number of jobs that gave up.
func (d *Dispatcher) ErrorCount() uint64 {
	return d.failed.Load()
}

// Close rejects new jobs and waits for the queued ones. It is safe to call twice.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		for _, ch := range d.workers {
			close(ch)
		}
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) process(j job) {
	// Replies must still go out after the inbound update's context is done.
	ctx := context.WithoutCancel(j.ctx)
	start := time.Now()

	attempts, err := d.runWithRetry(ctx, j)
	elapsed := slog.Duration("elapsed", logger.Took(start))
	if err == nil {
		if attempts > 1 {
			logger.Info(ctx, "tg.sender", "send.retry.success", j.attrs(slog.Int("attempts", attempts), elapsed)...)
		} else {
			logger.Debug(ctx, "tg.sender", "send.success", j.attrs(elapsed)...)
		}
		return
	}

	d.failed.Add(1)
	logger.Error(ctx, "tg.sender", "send.fail", j.attrs(
		slog.String("status", "fail"),
		slog.String("err", redactToken(err)),
		slog.String("err_code", classifyError(err)),
		slog.Int("attempts", attempts),
		elapsed,
	)...)
	if d.opts.OnFailure != nil {
		d.opts.OnFailure(j.action, err)
	}
}

// runWithRetry returns the number of attempts made and the last error.
func (d *Dispatcher) runWithRetry(ctx context.Context, j job) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, d.opts.MaxDuration)
	defer cancel()

	for attempt := 1; ; attempt++ {
		err := j.run()
		if err == nil {
			return attempt, nil
		}
		if attempt > d.opts.MaxRetries || !netutil.ShouldRetry(err) {
			return attempt, err
		}

		delay := d.opts.RetryBackoff * time.Duration(attempt)
		if wait, ok := netutil.RetryAfter(err); ok {
			delay = wait
		}
		logger.Debug(ctx, "tg.sender", "send.retry.backoff", j.attrs(
			slog.Int("attempt", attempt),
			slog.Duration("backoff", delay),
		)...)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
}
