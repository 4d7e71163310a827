package sender

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/qnabot/core/logger"
	"github.com/m3rciful/qnabot/core/telegram/netutil"
)

var (
	// ErrQueueClosed is returned when enqueue is attempted after dispatcher stop.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull indicates the queue is saturated and the job was not accepted.
	ErrQueueFull = errors.New("telegram sender: queue full")
)

// Observer counts finished jobs by action and outcome.
type Observer interface {
	ObserveSend(action, outcome string)
}

// Options controls the behaviour of the outbound dispatcher.
type Options struct {
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent retrying a single job.
	MaxDuration time.Duration
	Observer    Observer
}

type job struct {
	ctx      context.Context
	action   string
	endpoint string
	run      func(ctx context.Context) error
}

// Dispatcher executes outbound Telegram calls asynchronously with retries.
// Jobs are detached from the caller: the job context keeps the caller's
// values but not its cancellation, so a finished update does not abort
// its fan-out.
type Dispatcher struct {
	opts Options
	jobs chan job
	once sync.Once
	wg   sync.WaitGroup
	errs atomic.Uint64

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts a dispatcher with sane defaults if options are zeroed.
func NewDispatcher(opts Options) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 2 * time.Second
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 12 * time.Second
	}

	d := &Dispatcher{
		opts: opts,
		jobs: make(chan job, opts.QueueSize),
	}

	d.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go d.worker()
	}

	return d
}

// Enqueue schedules the provided function for asynchronous execution.
// The run closure must be idempotent if retries are desired; its context
// expires after Options.MaxDuration. Enqueue never waits: a saturated
// queue yields ErrQueueFull.
func (d *Dispatcher) Enqueue(ctx context.Context, action, endpoint string, run func(ctx context.Context) error) error {
	j, err := newJob(ctx, action, endpoint, run)
	if err != nil {
		return err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrQueueClosed
	}
	select {
	case d.jobs <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

// EnqueueWait is Enqueue for bulk producers: it waits for queue space until
// ctx is done. It must not be called from inside a job, since the worker
// it occupies may be the one that would free the space.
func (d *Dispatcher) EnqueueWait(ctx context.Context, action, endpoint string, run func(ctx context.Context) error) error {
	j, err := newJob(ctx, action, endpoint, run)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	// Close waits for this read lock; workers keep draining meanwhile, so
	// the send below always completes or gives up on ctx.
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrQueueClosed
	}
	select {
	case d.jobs <- j:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newJob(ctx context.Context, action, endpoint string, run func(ctx context.Context) error) (job, error) {
	if run == nil {
		return job{}, errors.New("telegram sender: nil run function")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return job{
		ctx:      context.WithoutCancel(ctx),
		action:   action,
		endpoint: endpoint,
		run:      run,
	}, nil
}

// Pending returns the number of queued jobs not yet picked by a worker.
func (d *Dispatcher) Pending() int {
	return len(d.jobs)
}

// ErrorCount returns the number of failed jobs.
func (d *Dispatcher) ErrorCount() uint64 {
	return d.errs.Load()
}

// Close rejects new jobs and returns once the queued ones have run. It is
// safe to call more than once.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.jobs)
		d.mu.Unlock()
		d.wg.Wait()
	})
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.jobs {
		d.handleJob(j)
	}
}

// handleJob runs j until it succeeds, fails permanently, runs out of
// attempts or exceeds MaxDuration.
func (d *Dispatcher) handleJob(j job) {
	ctx, cancel := context.WithTimeout(j.ctx, d.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	attempts := d.opts.MaxRetries + 1
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = j.run(ctx); err == nil {
			d.observe(j.action, "ok")
			logger.Debug(j.ctx, logger.CompSender, "send.success", append(j.attrs(),
				slog.String("status", "ok"),
				slog.Int("attempt", attempt),
				slog.Duration("elapsed", logger.RoundMS(time.Since(start))),
			)...)
			return
		}
		if attempt == attempts || !netutil.ShouldRetry(err) {
			break
		}
		delay := d.backoff(attempt, err)
		logger.Debug(j.ctx, logger.CompSender, "send.retry", append(j.attrs(),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("cause", netutil.Cause(err)),
		)...)
		if werr := wait(ctx, delay); werr != nil {
			err = errors.Join(err, werr)
			break
		}
	}

	d.errs.Add(1)
	d.observe(j.action, "fail")
	logger.Error(j.ctx, logger.CompSender, "send.fail", append(j.attrs(),
		slog.String("status", "fail"),
		slog.String("err", netutil.Redact(err)),
		slog.String("cause", netutil.Cause(err)),
		slog.Int("attempts", attempts),
		slog.Duration("elapsed", logger.RoundMS(time.Since(start))),
	)...)
}

// backoff grows linearly with the attempt number, but never undercuts the
// wait Telegram asked for.
func (d *Dispatcher) backoff(attempt int, err error) time.Duration {
	delay := d.opts.RetryBackoff * time.Duration(attempt)
	if after := netutil.RetryAfter(err); after > delay {
		delay = after
	}
	return delay
}

func wait(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (d *Dispatcher) observe(action, outcome string) {
	if d.opts.Observer != nil {
		d.opts.Observer.ObserveSend(action, outcome)
	}
}

func (j job) attrs() []slog.Attr {
	attrs := []slog.Attr{slog.String("action", j.action)}
	if j.endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", j.endpoint))
	}
	if rid := logger.RIDFrom(j.ctx); rid != "" {
		attrs = append(attrs, slog.String("rid", rid))
	}
	if userID := logger.UserIDFrom(j.ctx); userID != 0 {
		attrs = append(attrs, slog.Int64("user_id", userID))
	}
	return attrs
}
