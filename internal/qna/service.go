package qna

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/m3rciful/qnabot/core/logger"
	"github.com/m3rciful/qnabot/core/telegram/state"
)

const (
	maxSubjectLen  = 256
	maxQuestionLen = 3500
)

// MemberRoles are the roles of registered members.
var MemberRoles = []state.Role{RoleNormal, RoleAdmin}

// ServiceOptions configure a Service.
type ServiceOptions struct {
	// AdminID is always resolved as an admin, registered or not.
	AdminID int64
}

// Service implements the Q&A use-cases on top of a Repository.
type Service struct {
	repo Repository
	opts ServiceOptions
}

// NewService wires a service.
func NewService(repo Repository, opts ServiceOptions) *Service {
	return &Service{repo: repo, opts: opts}
}

// Role resolves the dialog role of a user. Unknown users are unauthenticated.
func (s *Service) Role(ctx context.Context, userID int64) (state.Role, error) {
	if s.opts.AdminID != 0 && userID == s.opts.AdminID {
		return RoleAdmin, nil
	}
	p, err := s.repo.User(ctx, userID)
	switch {
	case errors.Is(err, ErrNotFound):
		return state.RoleUnauthenticated, nil
	case err != nil:
		return state.RoleUnauthenticated, fmt.Errorf("qna: role lookup: %w", err)
	case p.IsAdmin:
		return RoleAdmin, nil
	default:
		return RoleNormal, nil
	}
}

// Resolve implements state.RoleResolver.
func (s *Service) Resolve(ctx context.Context, userID int64) (state.Role, error) {
	return s.Role(ctx, userID)
}

// IsAdmin reports whether userID resolves to the admin role.
func (s *Service) IsAdmin(ctx context.Context, userID int64) bool {
	role, err := s.Role(ctx, userID)
	return err == nil && role == RoleAdmin
}

// Register creates or refreshes a member profile.
func (s *Service) Register(ctx context.Context, p Profile) error {
	p.Name = strings.TrimSpace(p.Name)
	p.Phone = strings.TrimSpace(p.Phone)
	if p.UserID == 0 || p.Name == "" {
		return fmt.Errorf("%w: profile needs an id and a name", ErrInvalid)
	}
	if prev, err := s.repo.User(ctx, p.UserID); err == nil {
		p.IsAdmin = prev.IsAdmin
		if p.Phone == "" {
			p.Phone = prev.Phone
		}
	}
	err := s.repo.UpsertUser(ctx, p)
	logger.Info(ctx, logger.CompQNA, "qna.user.register",
		slog.String("status", logger.Status(err)),
		slog.Int64("member_id", p.UserID),
		slog.Bool("has_phone", p.Phone != ""),
	)
	return err
}

// UserDetails returns a member profile.
func (s *Service) UserDetails(ctx context.Context, userID int64) (Profile, error) {
	return s.repo.User(ctx, userID)
}

// Areas lists the subject areas.
func (s *Service) Areas(ctx context.Context) ([]Area, error) {
	return s.repo.Areas(ctx)
}

// AreaReach counts, per area, the members a question would be delivered to
// now. Muted members and preferences are honoured the same way as in
// Recipients.
func (s *Service) AreaReach(ctx context.Context) ([]AreaReach, error) {
	areas, err := s.repo.Areas(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]AreaReach, 0, len(areas))
	for _, a := range areas {
		users, err := s.repo.UsersByArea(ctx, a.ID, 0)
		if err != nil {
			return nil, fmt.Errorf("area %d: %w", a.ID, err)
		}
		out = append(out, AreaReach{Area: a, Members: len(users)})
	}
	return out, nil
}

// AddQuestion validates and stores a new question.
func (s *Service) AddQuestion(ctx context.Context, authorID int64, intent QuestionIntent, subject, text string, areas []int64) (Question, error) {
	subject = strings.TrimSpace(subject)
	text = strings.TrimSpace(text)
	switch {
	case !intent.Valid():
		return Question{}, fmt.Errorf("%w: unknown intent %q", ErrInvalid, intent)
	case subject == "" || text == "":
		return Question{}, fmt.Errorf("%w: subject and text are required", ErrInvalid)
	case utf8.RuneCountInString(subject) > maxSubjectLen || utf8.RuneCountInString(text) > maxQuestionLen:
		return Question{}, fmt.Errorf("%w: question is too long", ErrInvalid)
	case len(areas) == 0:
		return Question{}, fmt.Errorf("%w: at least one area is required", ErrInvalid)
	}
	areas = slices.Clone(areas)
	slices.Sort(areas)
	areas = slices.Compact(areas)

	q, err := s.repo.CreateQuestion(ctx, Question{
		AuthorID: authorID,
		Intent:   intent,
		Subject:  subject,
		Text:     text,
		Areas:    areas,
	})
	logger.Info(ctx, logger.CompQNA, "qna.question.create",
		slog.String("status", logger.Status(err)),
		slog.Int64("question_id", q.ID),
		slog.String("intent", string(intent)),
		slog.Int("areas", len(areas)),
	)
	if err != nil {
		return Question{}, fmt.Errorf("qna: add question: %w", err)
	}
	return q, nil
}

// QuestionByID returns a stored question.
func (s *Service) QuestionByID(ctx context.Context, id int64) (Question, error) {
	return s.repo.Question(ctx, id)
}

// Recipients resolves who receives a new question: the members of every
// area of q, each once, never the author. A failing area lookup does not
// stop the others; its error is returned along with the partial list.
func (s *Service) Recipients(ctx context.Context, q Question) ([]int64, error) {
	seen := make(map[int64]struct{})
	var (
		out  []int64
		errs []error
	)
	for _, area := range q.Areas {
		users, err := s.repo.UsersByArea(ctx, area, q.AuthorID)
		if err != nil {
			errs = append(errs, fmt.Errorf("area %d: %w", area, err))
			continue
		}
		for _, u := range users {
			if u == q.AuthorID {
				continue
			}
			if _, dup := seen[u]; dup {
				continue
			}
			seen[u] = struct{}{}
			out = append(out, u)
		}
	}
	return out, errors.Join(errs...)
}

// AddResponse records that respondentID offers to answer a question.
func (s *Service) AddResponse(ctx context.Context, questionID, respondentID int64) (Response, error) {
	resp, err := s.repo.AddResponse(ctx, questionID, respondentID)
	logger.Info(ctx, logger.CompQNA, "qna.response.add",
		slog.String("status", logger.Status(err)),
		slog.Int64("question_id", questionID),
		slog.Int64("response_id", resp.ID),
	)
	return resp, err
}

// AcceptResponse marks a response as accepted by the author. The response
// must belong to questionID and respondentID, otherwise ErrNotFound.
func (s *Service) AcceptResponse(ctx context.Context, questionID, respondentID, responseID int64) error {
	err := s.acceptResponse(ctx, questionID, respondentID, responseID)
	logger.Info(ctx, logger.CompQNA, "qna.response.accept",
		slog.String("status", logger.Status(err)),
		slog.Int64("question_id", questionID),
		slog.Int64("response_id", responseID),
	)
	return err
}

func (s *Service) acceptResponse(ctx context.Context, questionID, respondentID, responseID int64) error {
	resp, err := s.repo.Response(ctx, responseID)
	if err != nil {
		return err
	}
	if resp.QuestionID != questionID || resp.RespondentID != respondentID {
		return fmt.Errorf("response %d is not from member %d on question %d: %w", responseID, respondentID, questionID, ErrNotFound)
	}
	return s.repo.AcceptResponse(ctx, responseID)
}

// NotificationPreference returns the member's preference or the default.
func (s *Service) NotificationPreference(ctx context.Context, userID int64) (NotificationPreference, error) {
	return s.repo.NotificationPreference(ctx, userID)
}

// SetNotificationPreference stores a known preference.
func (s *Service) SetNotificationPreference(ctx context.Context, userID int64, p NotificationPreference) error {
	if !p.Valid() {
		return fmt.Errorf("%w: unknown preference %q", ErrInvalid, p)
	}
	err := s.repo.SetNotificationPreference(ctx, userID, p)
	logger.Info(ctx, logger.CompNotify, "notify.preference.set",
		slog.String("status", logger.Status(err)),
		slog.String("preference", string(p)),
	)
	return err
}

// IsMuted reports whether the member turned notifications off.
func (s *Service) IsMuted(ctx context.Context, userID int64) (bool, error) {
	return s.repo.IsMuted(ctx, userID)
}

// SetMuted turns notifications off (true) or back on (false).
func (s *Service) SetMuted(ctx context.Context, userID int64, muted bool) error {
	err := s.repo.SetMuted(ctx, userID, muted)
	logger.Info(ctx, logger.CompNotify, "notify.mute.set",
		slog.String("status", logger.Status(err)),
		slog.Bool("muted", muted),
	)
	return err
}

// UserAreas lists the areas a member subscribed to.
func (s *Service) UserAreas(ctx context.Context, userID int64) ([]int64, error) {
	return s.repo.UserAreas(ctx, userID)
}

// ToggleUserArea flips a subscription and reports whether it is now on.
func (s *Service) ToggleUserArea(ctx context.Context, userID, areaID int64) (bool, error) {
	current, err := s.repo.UserAreas(ctx, userID)
	if err != nil {
		return false, err
	}
	on := !slices.Contains(current, areaID)
	if err := s.repo.SetUserArea(ctx, userID, areaID, on); err != nil {
		return false, err
	}
	logger.Info(ctx, logger.CompNotify, "notify.area.toggle",
		slog.String("status", "ok"),
		slog.Int64("area_id", areaID),
		slog.Bool("subscribed", on),
	)
	return on, nil
}
