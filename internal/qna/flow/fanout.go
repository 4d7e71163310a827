package flow

import (
	"context"
	"log/slog"
	"time"

	"github.com/m3rciful/qnabot/core/logger"
	"github.com/m3rciful/qnabot/internal/qna"
)

// Fan-out actions reported by the background dispatcher.
const (
	ActionFanOutSend = "qna.fanout.send"
)

// publish delivers q to the community in the background. Every recipient
// gets a dispatcher job of its own, so a failed delivery never holds up the
// rest.
func (f *Flow) publish(ctx context.Context, q qna.Question) {
	if f.fan == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	f.fanning.Add(1)
	go func() {
		defer f.fanning.Done()
		f.deliver(ctx, q)
	}()
}

// Wait blocks until every started fan-out has handed its jobs to the
// dispatcher. Call it before closing the dispatcher.
func (f *Flow) Wait() {
	f.fanning.Wait()
}

// deliver never fails as a whole: partial results are logged and sent. A
// full queue makes it wait for the workers rather than skip recipients.
func (f *Flow) deliver(ctx context.Context, q qna.Question) {
	start := time.Now()
	recipients, err := f.svc.Recipients(ctx, q)
	if err != nil {
		logger.Warn(ctx, logger.CompQNA, "qna.fanout.resolve",
			slog.String("status", "fail"),
			slog.Int64("question_id", q.ID),
			slog.Int("recipients", len(recipients)),
			slog.Any("err", err),
		)
	}

	queued := 0
	for i, userID := range recipients {
		err := f.fan.EnqueueWait(ctx, ActionFanOutSend, "sendMessage", func(ctx context.Context) error {
			markup, err := f.questionKeyboard(q)
			if err != nil {
				return err
			}
			_, err = f.ch.SendText(ctx, userID, TextQuestionMessage(q), markup)
			return err
		})
		if err != nil {
			// Only a closed dispatcher gets here; the rest would fail the same way.
			logger.Warn(ctx, logger.CompQNA, "qna.fanout.send",
				slog.String("status", "dropped"),
				slog.Int64("question_id", q.ID),
				slog.Int("dropped", len(recipients)-i),
				slog.Any("err", err),
			)
			break
		}
		queued++
	}

	status := "ok"
	if queued < len(recipients) {
		status = "partial"
	}
	logger.Info(ctx, logger.CompQNA, "qna.fanout",
		slog.String("status", status),
		slog.Int64("question_id", q.ID),
		slog.Int("recipients", len(recipients)),
		slog.Int("queued", queued),
		slog.Duration("duration", logger.Took(start)),
	)
}
