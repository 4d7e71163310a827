// Package metrics exposes bot measurements in the Prometheus format.
//
// A Collector owns its registry, so several collectors (tests, multiple
// bots in one process) never clash on metric names. All methods are safe on
// a nil *Collector, which lets callers keep metrics optional.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/m3rciful/qnabot/core/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultNamespace = "qnabot"

// Collector records transport, dialog engine and sender measurements.
type Collector struct {
	namespace string
	registry  *prometheus.Registry

	updatesTotal     *prometheus.CounterVec
	rateLimitedTotal *prometheus.CounterVec

	eventsTotal      *prometheus.CounterVec
	eventDuration    *prometheus.HistogramVec
	transitionsTotal *prometheus.CounterVec

	senderJobsTotal *prometheus.CounterVec
}

// NewCollector creates a collector with a private registry. Go runtime and
// process collectors are registered alongside the bot metrics.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = defaultNamespace
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		namespace: namespace,
		registry:  reg,
		updatesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_total",
			Help:      "Telegram updates received, by kind.",
		}, []string{"kind"}),
		rateLimitedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_rate_limited_total",
			Help:      "Telegram updates dropped by the per-user rate limiter, by kind.",
		}, []string{"kind"}),
		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dialog_events_total",
			Help:      "Dialog events processed by the engine, by event kind and outcome.",
		}, []string{"kind", "outcome"}),
		eventDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dialog_event_duration_seconds",
			Help:      "Time spent handling one dialog event under the user lock.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"kind"}),
		transitionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dialog_transitions_total",
			Help:      "Committed state transitions, by source and target kind.",
		}, []string{"from", "to"}),
		senderJobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sender_jobs_total",
			Help:      "Outbound Telegram calls, by action and outcome.",
		}, []string{"action", "outcome"}),
	}
}

// Registry returns the registry backing the collector.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// ObserveUpdate counts an inbound update.
func (c *Collector) ObserveUpdate(kind string) {
	if c == nil {
		return
	}
	c.updatesTotal.WithLabelValues(kind).Inc()
}

// ObserveRateLimited counts an update dropped by the rate limiter.
func (c *Collector) ObserveRateLimited(kind string) {
	if c == nil {
		return
	}
	c.rateLimitedTotal.WithLabelValues(kind).Inc()
}

// ObserveEvent records one engine dispatch.
func (c *Collector) ObserveEvent(event, outcome string, took time.Duration) {
	if c == nil {
		return
	}
	c.eventsTotal.WithLabelValues(event, outcome).Inc()
	c.eventDuration.WithLabelValues(event).Observe(took.Seconds())
}

// ObserveTransition records a committed transition.
func (c *Collector) ObserveTransition(from, to string) {
	if c == nil {
		return
	}
	c.transitionsTotal.WithLabelValues(from, to).Inc()
}

// ObserveSend records one finished outbound call.
func (c *Collector) ObserveSend(action, outcome string) {
	if c == nil {
		return
	}
	c.senderJobsTotal.WithLabelValues(action, outcome).Inc()
}

// WatchGauge exposes fn as a gauge sampled at scrape time, e.g. queue depths.
func (c *Collector) WatchGauge(name, help string, fn func() int) error {
	if c == nil || fn == nil {
		return nil
	}
	g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: c.namespace,
		Name:      name,
		Help:      help,
	}, func() float64 { return float64(fn()) })
	if err := c.registry.Register(g); err != nil {
		return fmt.Errorf("metrics: register gauge %s: %w", name, err)
	}
	return nil
}

// Handler serves the collector registry.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Serve exposes the registry on listen until ctx is done. An empty listen
// address disables the endpoint and Serve blocks until ctx is done.
func (c *Collector) Serve(ctx context.Context, listen, path string) error {
	if c == nil || listen == "" {
		<-ctx.Done()
		return nil
	}
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, c.Handler())
	srv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Info(ctx, logger.CompMetrics, "metrics.serve",
		slog.String("status", "ok"),
		slog.String("listen", listen),
		slog.String("path", path),
	)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics: shutdown: %w", err)
	}
	return nil
}
