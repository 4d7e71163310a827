package telegram

import (
	"strings"
	"time"

	coreconfig "github.com/m3rciful/qnabot/core/config"
	"github.com/m3rciful/qnabot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// Observer receives transport measurements for the default middleware chain.
type Observer interface {
	middleware.UpdateObserver
	ObserveRateLimited(kind string)
}

// DefaultMiddlewares builds the shared middleware chain for bots: panic
// recovery, update counting, the receipt log line and per-user rate limiting.
// obs and onLimited may be nil.
func DefaultMiddlewares(cfg *coreconfig.Config, obs Observer, onLimited func(tele.Context) error) []Middleware {
	mws := []Middleware{
		{Name: "recover", Use: middleware.RecoverMiddleware},
		{Name: "logger", Use: middleware.LoggerMiddleware},
	}
	if obs != nil {
		mws = append(mws, Middleware{Name: "metrics", Use: middleware.UpdateCounterMiddleware(obs)})
	}

	if cfg != nil {
		interval := time.Duration(cfg.RateLimit.IntervalMS) * time.Millisecond
		if interval > 0 {
			ex := make(map[string]struct{}, len(cfg.RateLimit.ExcludeUpdates))
			for _, t := range cfg.RateLimit.ExcludeUpdates {
				ex[strings.ToLower(t)] = struct{}{}
			}
			opts := middleware.RateLimitOptions{
				Interval:  interval,
				Burst:     cfg.RateLimit.Burst,
				Exclude:   ex,
				OnLimited: onLimited,
			}
			if obs != nil {
				opts.OnDrop = obs.ObserveRateLimited
			}
			mws = append(mws, Middleware{
				Name: "rate_limit",
				Use:  middleware.RateLimitMiddleware(opts),
			})
		}
	}

	return mws
}
