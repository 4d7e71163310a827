// Package store implements qna.Repository on Postgres with sqlx.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/m3rciful/qnabot/core/bootstrap"
	"github.com/m3rciful/qnabot/core/logger"
	"github.com/m3rciful/qnabot/internal/qna"
)

const pgForeignKeyViolation = "23503"

// Postgres is the production repository.
type Postgres struct {
	db *sqlx.DB
}

var _ qna.Repository = (*Postgres)(nil)

// New wraps an open database.
func New(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return qna.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pgForeignKeyViolation {
		return qna.ErrNotFound
	}
	return err
}

// UpsertUser implements qna.Repository.
func (p *Postgres) UpsertUser(ctx context.Context, u qna.Profile) error {
	_, err := p.db.NamedExecContext(ctx, `
		INSERT INTO users (id, name, phone, is_admin)
		VALUES (:id, :name, :phone, :is_admin)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, phone = EXCLUDED.phone, is_admin = EXCLUDED.is_admin`, u)
	if err != nil {
		return fmt.Errorf("store: upsert user: %w", err)
	}
	return nil
}

// User implements qna.Repository.
func (p *Postgres) User(ctx context.Context, userID int64) (qna.Profile, error) {
	var u qna.Profile
	err := p.db.GetContext(ctx, &u, `SELECT id, name, phone, is_admin FROM users WHERE id = $1`, userID)
	if err != nil {
		return qna.Profile{}, notFound(err)
	}
	return u, nil
}

// Areas implements qna.Repository.
func (p *Postgres) Areas(ctx context.Context) ([]qna.Area, error) {
	var areas []qna.Area
	if err := p.db.SelectContext(ctx, &areas, `SELECT id, name FROM areas ORDER BY id`); err != nil {
		return nil, fmt.Errorf("store: areas: %w", err)
	}
	return areas, nil
}

// UserAreas implements qna.Repository.
func (p *Postgres) UserAreas(ctx context.Context, userID int64) ([]int64, error) {
	var ids []int64
	err := p.db.SelectContext(ctx, &ids,
		`SELECT area_id FROM user_areas WHERE user_id = $1 ORDER BY area_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("store: user areas: %w", err)
	}
	return ids, nil
}

// SetUserArea implements qna.Repository.
func (p *Postgres) SetUserArea(ctx context.Context, userID, areaID int64, subscribed bool) error {
	var err error
	if subscribed {
		_, err = p.db.ExecContext(ctx,
			`INSERT INTO user_areas (user_id, area_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, userID, areaID)
	} else {
		_, err = p.db.ExecContext(ctx,
			`DELETE FROM user_areas WHERE user_id = $1 AND area_id = $2`, userID, areaID)
	}
	return notFound(err)
}

type questionRow struct {
	ID        int64         `db:"id"`
	AuthorID  int64         `db:"author_id"`
	Intent    string        `db:"intent"`
	Subject   string        `db:"subject"`
	Text      string        `db:"text"`
	Areas     pq.Int64Array `db:"areas"`
	CreatedAt time.Time     `db:"created_at"`
}

func (r questionRow) question() qna.Question {
	return qna.Question{
		ID:        r.ID,
		AuthorID:  r.AuthorID,
		Intent:    qna.QuestionIntent(r.Intent),
		Subject:   r.Subject,
		Text:      r.Text,
		Areas:     []int64(r.Areas),
		CreatedAt: r.CreatedAt,
	}
}

// CreateQuestion implements qna.Repository. The question and its areas are
// written in one transaction.
func (p *Postgres) CreateQuestion(ctx context.Context, q qna.Question) (qna.Question, error) {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return qna.Question{}, fmt.Errorf("store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowxContext(ctx, `
		INSERT INTO questions (author_id, intent, subject, text)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		q.AuthorID, string(q.Intent), q.Subject, q.Text,
	).Scan(&q.ID, &q.CreatedAt)
	if err != nil {
		return qna.Question{}, fmt.Errorf("store: insert question: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO question_areas (question_id, area_id)
		SELECT $1, unnest($2::bigint[])`,
		q.ID, pq.Array(q.Areas),
	)
	if err != nil {
		return qna.Question{}, fmt.Errorf("store: insert question areas: %w", notFound(err))
	}
	if err := tx.Commit(); err != nil {
		return qna.Question{}, fmt.Errorf("store: commit: %w", err)
	}
	return q, nil
}

// Question implements qna.Repository.
func (p *Postgres) Question(ctx context.Context, id int64) (qna.Question, error) {
	var row questionRow
	err := p.db.GetContext(ctx, &row, `
		SELECT q.id, q.author_id, q.intent, q.subject, q.text, q.created_at,
		       COALESCE(array_agg(qa.area_id ORDER BY qa.area_id) FILTER (WHERE qa.area_id IS NOT NULL), '{}') AS areas
		FROM questions q
		LEFT JOIN question_areas qa ON qa.question_id = q.id
		WHERE q.id = $1
		GROUP BY q.id`, id)
	if err != nil {
		return qna.Question{}, notFound(err)
	}
	return row.question(), nil
}

// UsersByArea implements qna.Repository.
func (p *Postgres) UsersByArea(ctx context.Context, areaID, exclude int64) ([]int64, error) {
	var ids []int64
	err := p.db.SelectContext(ctx, &ids, `
		SELECT u.id
		FROM users u
		LEFT JOIN notification_preferences np ON np.user_id = u.id
		WHERE u.id <> $2
		  AND NOT EXISTS (SELECT 1 FROM mute_settings m WHERE m.user_id = u.id)
		  AND (COALESCE(np.preference, $3) = $4
		       OR EXISTS (SELECT 1 FROM user_areas ua WHERE ua.user_id = u.id AND ua.area_id = $1))
		ORDER BY u.id`,
		areaID, exclude, string(qna.DefaultPreference), string(qna.PreferAllAreas),
	)
	if err != nil {
		return nil, fmt.Errorf("store: users by area: %w", err)
	}
	return ids, nil
}

// AddResponse implements qna.Repository.
func (p *Postgres) AddResponse(ctx context.Context, questionID, respondentID int64) (qna.Response, error) {
	var r qna.Response
	err := p.db.GetContext(ctx, &r, `
		INSERT INTO responses (question_id, respondent_id)
		VALUES ($1, $2)
		ON CONFLICT (question_id, respondent_id) DO UPDATE SET question_id = EXCLUDED.question_id
		RETURNING id, question_id, respondent_id, accepted`,
		questionID, respondentID,
	)
	if err != nil {
		return qna.Response{}, notFound(err)
	}
	return r, nil
}

// Response implements qna.Repository.
func (p *Postgres) Response(ctx context.Context, responseID int64) (qna.Response, error) {
	var r qna.Response
	err := p.db.GetContext(ctx, &r, `SELECT id, question_id, respondent_id, accepted FROM responses WHERE id = $1`, responseID)
	if err != nil {
		return qna.Response{}, notFound(err)
	}
	return r, nil
}

// AcceptResponse implements qna.Repository.
func (p *Postgres) AcceptResponse(ctx context.Context, responseID int64) error {
	res, err := p.db.ExecContext(ctx, `UPDATE responses SET accepted = TRUE WHERE id = $1`, responseID)
	if err != nil {
		return fmt.Errorf("store: accept response: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: accept response: %w", err)
	}
	if n == 0 {
		return qna.ErrNotFound
	}
	return nil
}

// NotificationPreference implements qna.Repository.
func (p *Postgres) NotificationPreference(ctx context.Context, userID int64) (qna.NotificationPreference, error) {
	var pref string
	err := p.db.GetContext(ctx, &pref,
		`SELECT preference FROM notification_preferences WHERE user_id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return qna.DefaultPreference, nil
	}
	if err != nil {
		return "", fmt.Errorf("store: notification preference: %w", err)
	}
	return qna.NotificationPreference(pref), nil
}

// SetNotificationPreference implements qna.Repository.
func (p *Postgres) SetNotificationPreference(ctx context.Context, userID int64, pref qna.NotificationPreference) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO notification_preferences (user_id, preference) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET preference = EXCLUDED.preference`,
		userID, string(pref),
	)
	if err != nil {
		return fmt.Errorf("store: set notification preference: %w", err)
	}
	return nil
}

// IsMuted implements qna.Repository.
func (p *Postgres) IsMuted(ctx context.Context, userID int64) (bool, error) {
	var muted bool
	err := p.db.GetContext(ctx, &muted,
		`SELECT EXISTS (SELECT 1 FROM mute_settings WHERE user_id = $1)`, userID)
	if err != nil {
		return false, fmt.Errorf("store: is muted: %w", err)
	}
	return muted, nil
}

// SetMuted implements qna.Repository.
func (p *Postgres) SetMuted(ctx context.Context, userID int64, muted bool) error {
	var err error
	if muted {
		_, err = p.db.ExecContext(ctx,
			`INSERT INTO mute_settings (user_id) VALUES ($1) ON CONFLICT DO NOTHING`, userID)
	} else {
		_, err = p.db.ExecContext(ctx, `DELETE FROM mute_settings WHERE user_id = $1`, userID)
	}
	if err != nil {
		return fmt.Errorf("store: set muted: %w", err)
	}
	return nil
}

// AreaSeeder inserts the configured areas that are missing. Existing areas
// are never renamed or removed.
func AreaSeeder(names []string) bootstrap.Seeder {
	return bootstrap.SeederFunc{
		Label: "areas",
		Fn: func(ctx context.Context, s bootstrap.Storage) error {
			added := 0
			for _, name := range names {
				res, err := s.ExecContext(ctx,
					`INSERT INTO areas (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name)
				if err != nil {
					return fmt.Errorf("seed area %q: %w", name, err)
				}
				if n, _ := res.RowsAffected(); n > 0 {
					added++
				}
			}
			logger.SEED.Debug("areas seeded",
				slog.String("event", "db.seed.areas"),
				slog.Int("configured", len(names)),
				slog.Int("added", added),
			)
			return nil
		},
	}
}
