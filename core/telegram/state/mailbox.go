package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/m3rciful/qnabot/core/logger"
)

var (
	// ErrMailboxFull reports that a user has too many pending events.
	ErrMailboxFull = errors.New("state: mailbox full")
	// ErrClosed reports a submission after Close.
	ErrClosed = errors.New("state: mailboxes closed")
)

// Job is one unit of work for a user, usually an Engine.Dispatch call.
type Job func(ctx context.Context)

// MailboxOptions configure Mailboxes.
type MailboxOptions struct {
	// Workers caps how many jobs run at once across all users.
	Workers int
	// Size caps the pending jobs per user.
	Size int
	// Timeout bounds every job; zero means no limit.
	Timeout time.Duration
}

// Mailboxes run jobs in per-user FIFO order. Jobs of one user never overlap
// and start in submission order; jobs of different users run in parallel,
// bounded by Workers.
type Mailboxes struct {
	opts MailboxOptions
	slot chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	boxes  map[int64][]Job
	closed bool
}

// NewMailboxes starts an empty set of mailboxes.
func NewMailboxes(opts MailboxOptions) *Mailboxes {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Size <= 0 {
		opts.Size = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Mailboxes{
		opts:   opts,
		slot:   make(chan struct{}, opts.Workers),
		ctx:    ctx,
		cancel: cancel,
		boxes:  make(map[int64][]Job),
	}
}

// Submit queues job for userID. The job receives a context carrying the
// values of ctx but not its cancellation, bounded by the job timeout and
// cancelled on forced shutdown.
func (m *Mailboxes) Submit(ctx context.Context, userID int64, job Job) error {
	if job == nil {
		return nil
	}
	values := context.WithoutCancel(ctx)
	wrapped := func(base context.Context) {
		jctx, stop := context.WithCancel(values)
		defer stop()
		unbind := context.AfterFunc(base, stop)
		defer unbind()
		if m.opts.Timeout > 0 {
			var cancel context.CancelFunc
			jctx, cancel = context.WithTimeout(jctx, m.opts.Timeout)
			defer cancel()
		}
		job(jctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	queue, active := m.boxes[userID]
	if len(queue) >= m.opts.Size {
		return fmt.Errorf("%w: user %d has %d pending", ErrMailboxFull, userID, len(queue))
	}
	m.boxes[userID] = append(queue, wrapped)
	if !active {
		m.wg.Add(1)
		go m.drain(userID)
	}
	return nil
}

// Pending reports how many users have queued or running jobs.
func (m *Mailboxes) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.boxes)
}

// drain runs the user's jobs one by one and exits when the mailbox is empty.
// The running job stays at the head of the queue so Submit sees the box as
// active until drain removes it.
func (m *Mailboxes) drain(userID int64) {
	defer m.wg.Done()
	for {
		m.mu.Lock()
		queue := m.boxes[userID]
		if len(queue) == 0 {
			delete(m.boxes, userID)
			m.mu.Unlock()
			return
		}
		job := queue[0]
		m.mu.Unlock()

		m.run(userID, job)

		m.mu.Lock()
		queue = m.boxes[userID]
		queue[0] = nil
		if len(queue) == 1 {
			delete(m.boxes, userID)
			m.mu.Unlock()
			return
		}
		m.boxes[userID] = queue[1:]
		m.mu.Unlock()
	}
}

func (m *Mailboxes) run(userID int64, job Job) {
	select {
	case m.slot <- struct{}{}:
	case <-m.ctx.Done():
		logger.LogEvent(m.ctx, logger.FSM, slog.LevelWarn, "mailbox.drop",
			slog.String("status", "dropped"),
			slog.Int64("user_id", userID),
		)
		return
	}
	defer func() { <-m.slot }()
	defer func() {
		if r := recover(); r != nil {
			logger.LogEvent(m.ctx, logger.FSM, slog.LevelError, "mailbox.panic",
				slog.String("status", "fail"),
				slog.Int64("user_id", userID),
				slog.Any("err", fmt.Errorf("panic: %v", r)),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()
	job(m.ctx)
}

// Close stops accepting jobs and waits for queued ones to finish. When ctx
// ends first, running jobs are cancelled and the rest are dropped.
func (m *Mailboxes) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		m.cancel()
		return nil
	case <-ctx.Done():
		m.cancel()
		<-done
		return ctx.Err()
	}
}
