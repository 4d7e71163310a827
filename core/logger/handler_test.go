package logger

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func captureLine(t *testing.T, format logFormat, fn func(*slog.Logger)) string {
	t.Helper()
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	handler := newStructuredHandler(handlerConfig{
		level:    slog.LevelDebug,
		writer:   aw,
		format:   format,
		keyOrder: append([]string(nil), defaultKeyOrder...),
	})
	fn(slog.New(handler))
	if err := aw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	line := strings.TrimSpace(buf.String())
	if line == "" {
		t.Fatal("expected log line")
	}
	return line
}

func TestStructuredHandlerKVOrder(t *testing.T) {
	ctx := WithRID(context.Background(), "rid-123")
	ctx = WithUpdateMeta(ctx, 42, 7, 9)
	ctx = WithState(ctx, "choose_question_areas")

	line := captureLine(t, formatKV, func(log *slog.Logger) {
		LogEvent(ctx, log.With("component", "fsm"), slog.LevelInfo, "dialog.transition",
			slog.String("status", "OK"),
			slog.String("to_state", "empty"),
		)
	})

	tokens := strings.Split(line, " ")
	expected := []string{
		"ts=", "level=INFO", "component=fsm", "event=dialog.transition", "status=ok",
		"rid=rid-123", "update_id=42", "user_id=7", "chat_id=9",
		"state=choose_question_areas", "to_state=empty",
	}
	if len(tokens) < len(expected) {
		t.Fatalf("unexpected token count: %d (%s)", len(tokens), line)
	}
	for i, prefix := range expected {
		if !strings.HasPrefix(tokens[i], prefix) {
			t.Fatalf("token %d = %s, expected prefix %s", i, tokens[i], prefix)
		}
	}
}

func TestStructuredHandlerJSONOrder(t *testing.T) {
	ctx := WithRID(context.Background(), "rid-json")

	line := captureLine(t, formatJSON, func(log *slog.Logger) {
		LogEvent(ctx, log.With("component", CompQNA), slog.LevelError, "question.save",
			slog.String("status", "fail"),
			slog.Any("err", errors.New("boom")),
			slog.Duration("duration", 1500*time.Microsecond),
		)
	})

	prefixes := []string{`{"ts":`, `"level":"ERROR"`, `"component":"service.qna"`, `"event":"question.save"`, `"status":"fail"`, `"rid":"rid-json"`, `"duration_ms":2`, `"err":"boom"`}
	pos := -1
	for _, pref := range prefixes {
		idx := strings.Index(line, pref)
		if idx == -1 || idx < pos {
			t.Fatalf("prefix %s not found in order within %s", pref, line)
		}
		pos = idx
	}
}

func TestStructuredHandlerCompactRID(t *testing.T) {
	rawRID := BuildRID(123, 456, 789)
	ctx := WithRID(context.Background(), rawRID)

	kv := captureLine(t, formatKV, func(log *slog.Logger) {
		LogEvent(ctx, log, slog.LevelInfo, "rid.test")
	})
	if !strings.Contains(kv, "rid="+CompactRID(rawRID)) {
		t.Fatalf("expected compact rid, got %s", kv)
	}
	if strings.Contains(kv, "rid_full=") {
		t.Fatalf("rid_full should be omitted in KV output, got %s", kv)
	}

	js := captureLine(t, formatJSON, func(log *slog.Logger) {
		LogEvent(ctx, log, slog.LevelInfo, "rid.test")
	})
	if !strings.Contains(js, `"rid":"`+CompactRID(rawRID)+`"`) {
		t.Fatalf("expected compact rid in JSON, got %s", js)
	}
	if !strings.Contains(js, `"rid_full":"`+rawRID+`"`) {
		t.Fatalf("expected rid_full in JSON output, got %s", js)
	}
	if !strings.Contains(js, `"component":"app"`) {
		t.Fatalf("expected default component, got %s", js)
	}
}

func TestStructuredHandlerDropsUnknownOutcome(t *testing.T) {
	line := captureLine(t, formatKV, func(log *slog.Logger) {
		log.Info("dialog.event", slog.String("outcome", "exploded"), slog.String("tag", ""))
	})
	if strings.Contains(line, "outcome=") {
		t.Fatalf("unknown outcome should be dropped, got %s", line)
	}
	if strings.Contains(line, "tag=") {
		t.Fatalf("empty attrs should be pruned, got %s", line)
	}
	if !strings.Contains(line, "event=dialog.event") {
		t.Fatalf("message should become the event, got %s", line)
	}
}

func TestRatioSampler(t *testing.T) {
	s := newRatioSampler(1, 3)
	got := []bool{s.Allow(), s.Allow(), s.Allow(), s.Allow()}
	want := []bool{true, false, false, true}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("call %d: got %v want %v", i, got[i], want[i])
		}
	}
	if num, den := parseRatioSpec("2/5"); num != 2 || den != 5 {
		t.Fatalf("parseRatioSpec(2/5) = %d/%d", num, den)
	}
	if num, den := parseRatioSpec("10"); num != 1 || den != 10 {
		t.Fatalf("parseRatioSpec(10) = %d/%d", num, den)
	}
}

func TestSanitizeLimit(t *testing.T) {
	if got := SanitizeLimit("a\u200bb\x07c\nd", 10); got != "abc\nd" {
		t.Fatalf("unexpected sanitize result %q", got)
	}
	if got := SanitizeLimit("привет", 3); got != "при" {
		t.Fatalf("unexpected truncation %q", got)
	}
}
