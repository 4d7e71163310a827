package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return string(body)
}

func TestCollectorExposesObservations(t *testing.T) {
	c := NewCollector("test")
	c.ObserveUpdate("message")
	c.ObserveUpdate("message")
	c.ObserveRateLimited("callback")
	c.ObserveEvent("callback.ping", "ok", 20*time.Millisecond)
	c.ObserveTransition("empty", "ask_question")
	c.ObserveSend("send.text", "fail")

	body := scrape(t, c)
	assert.Contains(t, body, `test_updates_total{kind="message"} 2`)
	assert.Contains(t, body, `test_updates_rate_limited_total{kind="callback"} 1`)
	assert.Contains(t, body, `test_dialog_events_total{kind="callback.ping",outcome="ok"} 1`)
	assert.Contains(t, body, `test_dialog_event_duration_seconds_count{kind="callback.ping"} 1`)
	assert.Contains(t, body, `test_dialog_transitions_total{from="empty",to="ask_question"} 1`)
	assert.Contains(t, body, `test_sender_jobs_total{action="send.text",outcome="fail"} 1`)
}

func TestCollectorWatchGauge(t *testing.T) {
	c := NewCollector("test")
	depth := 3
	require.NoError(t, c.WatchGauge("mailbox_pending", "Pending dialog jobs.", func() int { return depth }))
	assert.Error(t, c.WatchGauge("mailbox_pending", "again", func() int { return 0 }))

	assert.Contains(t, scrape(t, c), "test_mailbox_pending 3")
	depth = 5
	assert.Contains(t, scrape(t, c), "test_mailbox_pending 5")
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ObserveUpdate("message")
		c.ObserveRateLimited("message")
		c.ObserveEvent("text", "ok", time.Millisecond)
		c.ObserveTransition("a", "b")
		c.ObserveSend("answer", "ok")
	})
	assert.NoError(t, c.WatchGauge("x", "x", func() int { return 1 }))
	assert.Nil(t, c.Registry())
}
