package middleware

import (
	"sync"
	"time"

	"log/slog"

	"github.com/m3rciful/qnabot/core/logger"
	tghelpers "github.com/m3rciful/qnabot/core/telegram/helpers"
	"golang.org/x/time/rate"

	tele "gopkg.in/telebot.v4"
)

const limiterIdleTTL = 3 * time.Minute

// RateLimitOptions configures behaviour of the rate limit middleware.
type RateLimitOptions struct {
	// Interval is the sustained time between two updates of one user.
	Interval time.Duration
	// Burst is how many updates a user may send back to back.
	Burst     int
	Exclude   map[string]struct{}
	OnLimited tele.HandlerFunc
	// OnDrop is notified of every limited update.
	OnDrop func(kind string)
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// userLimiter keeps a token bucket per user. Idle buckets are swept lazily.
type userLimiter struct {
	every rate.Limit
	burst int

	mu        sync.Mutex
	visitors  map[int64]*visitor
	lastSweep time.Time
}

func newUserLimiter(interval time.Duration, burst int) *userLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &userLimiter{
		every:    rate.Every(interval),
		burst:    burst,
		visitors: make(map[int64]*visitor),
	}
}

func (l *userLimiter) allow(userID int64, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.lastSweep) > time.Minute {
		for id, v := range l.visitors {
			if now.Sub(v.lastSeen) > limiterIdleTTL {
				delete(l.visitors, id)
			}
		}
		l.lastSweep = now
	}
	v, ok := l.visitors[userID]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.every, l.burst)}
		l.visitors[userID] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

func (l *userLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

// UpdateKind classifies an update for rate limit exclusions and metrics.
func UpdateKind(upd tele.Update) string {
	switch {
	case upd.Callback != nil:
		return "callback"
	case upd.Message != nil:
		return "message"
	case upd.Query != nil:
		return "inline_query"
	default:
		return "other"
	}
}

// RateLimitMiddleware returns a middleware that throttles each user with a
// token bucket refilled every Interval.
func RateLimitMiddleware(opts RateLimitOptions) tele.MiddlewareFunc {
	limiter := newUserLimiter(opts.Interval, opts.Burst)
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil || opts.Interval <= 0 {
				return next(c)
			}

			kind := UpdateKind(c.Update())
			if _, skip := opts.Exclude[kind]; skip {
				return next(c)
			}

			if limiter.allow(user.ID, time.Now()) {
				return next(c)
			}

			ctx := tghelpers.BuildContext(c)
			logger.LogEvent(ctx, logger.TG, slog.LevelWarn, "tg.rate_limit",
				slog.String("status", "rate_limited"),
				slog.String("outcome", "rate_limited"),
				slog.String("kind", kind),
			)
			if opts.OnDrop != nil {
				opts.OnDrop(kind)
			}
			if opts.OnLimited != nil {
				_ = opts.OnLimited(c)
			}
			return nil
		}
	}
}
