package qna

import (
	"context"
	"slices"
	"sync"
	"time"
)

// Repository persists the Q&A domain. Lookups of missing rows return ErrNotFound.
type Repository interface {
	UpsertUser(ctx context.Context, p Profile) error
	User(ctx context.Context, userID int64) (Profile, error)

	Areas(ctx context.Context) ([]Area, error)
	UserAreas(ctx context.Context, userID int64) ([]int64, error)
	SetUserArea(ctx context.Context, userID, areaID int64, subscribed bool) error

	CreateQuestion(ctx context.Context, q Question) (Question, error)
	Question(ctx context.Context, id int64) (Question, error)
	// UsersByArea returns members to notify about a question in area:
	// not muted, not exclude, and either subscribed to area or preferring all areas.
	UsersByArea(ctx context.Context, areaID, exclude int64) ([]int64, error)

	// AddResponse is idempotent per question and respondent.
	AddResponse(ctx context.Context, questionID, respondentID int64) (Response, error)
	Response(ctx context.Context, responseID int64) (Response, error)
	AcceptResponse(ctx context.Context, responseID int64) error

	NotificationPreference(ctx context.Context, userID int64) (NotificationPreference, error)
	SetNotificationPreference(ctx context.Context, userID int64, p NotificationPreference) error
	IsMuted(ctx context.Context, userID int64) (bool, error)
	SetMuted(ctx context.Context, userID int64, muted bool) error
}

// MemoryRepository keeps the domain in process memory. It backs local runs
// without Postgres and the dialog tests.
type MemoryRepository struct {
	mu sync.RWMutex

	users       map[int64]Profile
	areas       []Area
	userAreas   map[int64]map[int64]struct{}
	questions   map[int64]Question
	responses   map[int64]Response
	preferences map[int64]NotificationPreference
	muted       map[int64]struct{}

	nextQuestion int64
	nextResponse int64
	now          func() time.Time
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository returns a repository seeded with areas named in order.
func NewMemoryRepository(areas ...string) *MemoryRepository {
	r := &MemoryRepository{
		users:       make(map[int64]Profile),
		userAreas:   make(map[int64]map[int64]struct{}),
		questions:   make(map[int64]Question),
		responses:   make(map[int64]Response),
		preferences: make(map[int64]NotificationPreference),
		muted:       make(map[int64]struct{}),
		now:         time.Now,
	}
	for i, name := range areas {
		r.areas = append(r.areas, Area{ID: int64(i + 1), Name: name})
	}
	return r
}

// UpsertUser implements Repository.
func (r *MemoryRepository) UpsertUser(_ context.Context, p Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[p.UserID] = p
	return nil
}

// User implements Repository.
func (r *MemoryRepository) User(_ context.Context, userID int64) (Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.users[userID]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return p, nil
}

// Areas implements Repository.
func (r *MemoryRepository) Areas(context.Context) ([]Area, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.areas), nil
}

// UserAreas implements Repository.
func (r *MemoryRepository) UserAreas(_ context.Context, userID int64) ([]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]int64, 0, len(r.userAreas[userID]))
	for id := range r.userAreas[userID] {
		out = append(out, id)
	}
	slices.Sort(out)
	return out, nil
}

// SetUserArea implements Repository.
func (r *MemoryRepository) SetUserArea(_ context.Context, userID, areaID int64, subscribed bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.hasArea(areaID) {
		return ErrNotFound
	}
	set := r.userAreas[userID]
	if set == nil {
		set = make(map[int64]struct{})
		r.userAreas[userID] = set
	}
	if subscribed {
		set[areaID] = struct{}{}
	} else {
		delete(set, areaID)
	}
	return nil
}

func (r *MemoryRepository) hasArea(id int64) bool {
	for _, a := range r.areas {
		if a.ID == id {
			return true
		}
	}
	return false
}

// CreateQuestion implements Repository.
func (r *MemoryRepository) CreateQuestion(_ context.Context, q Question) (Question, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextQuestion++
	q.ID = r.nextQuestion
	q.Areas = slices.Clone(q.Areas)
	q.CreatedAt = r.now()
	r.questions[q.ID] = q
	return q, nil
}

// Question implements Repository.
func (r *MemoryRepository) Question(_ context.Context, id int64) (Question, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.questions[id]
	if !ok {
		return Question{}, ErrNotFound
	}
	q.Areas = slices.Clone(q.Areas)
	return q, nil
}

// DeleteQuestion removes a question and its responses.
func (r *MemoryRepository) DeleteQuestion(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.questions, id)
	for rid, resp := range r.responses {
		if resp.QuestionID == id {
			delete(r.responses, rid)
		}
	}
}

// UsersByArea implements Repository.
func (r *MemoryRepository) UsersByArea(_ context.Context, areaID, exclude int64) ([]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []int64
	for id := range r.users {
		if id == exclude {
			continue
		}
		if _, muted := r.muted[id]; muted {
			continue
		}
		pref, ok := r.preferences[id]
		if !ok {
			pref = DefaultPreference
		}
		_, subscribed := r.userAreas[id][areaID]
		if pref == PreferAllAreas || subscribed {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out, nil
}

// AddResponse implements Repository.
func (r *MemoryRepository) AddResponse(_ context.Context, questionID, respondentID int64) (Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.questions[questionID]; !ok {
		return Response{}, ErrNotFound
	}
	for _, resp := range r.responses {
		if resp.QuestionID == questionID && resp.RespondentID == respondentID {
			return resp, nil
		}
	}
	r.nextResponse++
	resp := Response{ID: r.nextResponse, QuestionID: questionID, RespondentID: respondentID}
	r.responses[resp.ID] = resp
	return resp, nil
}

// Response implements Repository.
func (r *MemoryRepository) Response(_ context.Context, responseID int64) (Response, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	resp, ok := r.responses[responseID]
	if !ok {
		return Response{}, ErrNotFound
	}
	return resp, nil
}

// AcceptResponse implements Repository.
func (r *MemoryRepository) AcceptResponse(_ context.Context, responseID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	resp, ok := r.responses[responseID]
	if !ok {
		return ErrNotFound
	}
	resp.Accepted = true
	r.responses[responseID] = resp
	return nil
}

// NotificationPreference implements Repository.
func (r *MemoryRepository) NotificationPreference(_ context.Context, userID int64) (NotificationPreference, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.preferences[userID]; ok {
		return p, nil
	}
	return DefaultPreference, nil
}

// SetNotificationPreference implements Repository.
func (r *MemoryRepository) SetNotificationPreference(_ context.Context, userID int64, p NotificationPreference) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.preferences[userID] = p
	return nil
}

// IsMuted implements Repository.
func (r *MemoryRepository) IsMuted(_ context.Context, userID int64) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.muted[userID]
	return ok, nil
}

// SetMuted implements Repository.
func (r *MemoryRepository) SetMuted(_ context.Context, userID int64, muted bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if muted {
		r.muted[userID] = struct{}{}
	} else {
		delete(r.muted, userID)
	}
	return nil
}
