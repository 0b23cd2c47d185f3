package db

import (
	"context"
	"hallpass/src/models"
	"hallpass/src/types"
	"sort"
	"sync"
	"time"
)

type passRecord struct {
	mu      sync.Mutex
	pass    models.Pass
	history []models.PassStatusChange
}

func (r *passRecord) snapshot() models.Pass {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pass
}

// MemoryStore is an in-process PassStore. The map lock only guards membership;
// each pass carries its own lock so status updates on different passes never contend.
type MemoryStore struct {
	mu     sync.RWMutex
	passes map[string]*passRecord
	tokens map[string]string
	users  map[string]models.User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		passes: make(map[string]*passRecord),
		tokens: make(map[string]string),
		users:  make(map[string]models.User),
	}
}

func (s *MemoryStore) record(id string) (*passRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.passes[id]
	return rec, ok
}

func (s *MemoryStore) CreatePass(ctx context.Context, pass *models.Pass) error {
	if err := ctx.Err(); err != nil {
		return &types.InfrastructureError{Op: "create pass", Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.passes[pass.ID]; ok {
		return &types.ConflictError{ID: pass.ID, Message: "record already exists"}
	}
	if _, ok := s.tokens[pass.VerificationToken]; ok {
		return &types.ConflictError{ID: pass.ID, Message: "record already exists"}
	}
	if pass.CreatedAt.IsZero() {
		pass.CreatedAt = time.Now()
	}
	pass.UpdatedAt = pass.CreatedAt
	rec := &passRecord{pass: *pass}
	rec.history = append(rec.history, historyRow(pass.ID, "", StatusChange{
		Next:    pass.Status,
		ActorID: pass.StudentID,
		At:      pass.CreatedAt,
	}))
	s.passes[pass.ID] = rec
	s.tokens[pass.VerificationToken] = pass.ID
	return nil
}

func (s *MemoryStore) GetPass(ctx context.Context, id string) (*models.Pass, error) {
	if err := ctx.Err(); err != nil {
		return nil, &types.InfrastructureError{Op: "get pass", Err: err}
	}
	rec, ok := s.record(id)
	if !ok {
		return nil, passNotFound(id)
	}
	pass := rec.snapshot()
	return &pass, nil
}

func (s *MemoryStore) filter(ctx context.Context, op string, keep func(p *models.Pass) bool) ([]models.Pass, error) {
	if err := ctx.Err(); err != nil {
		return nil, &types.InfrastructureError{Op: op, Err: err}
	}
	s.mu.RLock()
	recs := make([]*passRecord, 0, len(s.passes))
	for _, rec := range s.passes {
		recs = append(recs, rec)
	}
	s.mu.RUnlock()

	passes := make([]models.Pass, 0)
	for _, rec := range recs {
		p := rec.snapshot()
		if keep(&p) {
			passes = append(passes, p)
		}
	}
	sort.Slice(passes, func(i, j int) bool {
		if passes[i].StartTime.Equal(passes[j].StartTime) {
			return passes[i].ID > passes[j].ID
		}
		return passes[i].StartTime.After(passes[j].StartTime)
	})
	return passes, nil
}

func (s *MemoryStore) ListByStudent(ctx context.Context, studentID string) ([]models.Pass, error) {
	return s.filter(ctx, "list student passes", func(p *models.Pass) bool {
		return p.StudentID == studentID
	})
}

func (s *MemoryStore) ListByTeacher(ctx context.Context, teacherID string) ([]models.Pass, error) {
	return s.filter(ctx, "list teacher passes", func(p *models.Pass) bool {
		return p.TeacherID == teacherID
	})
}

func (s *MemoryStore) ListPendingForTeacher(ctx context.Context, teacherID string) ([]models.Pass, error) {
	return s.filter(ctx, "list pending passes", func(p *models.Pass) bool {
		return p.TeacherID == teacherID && p.Status == types.PASS_PENDING
	})
}

func (s *MemoryStore) ListExpirable(ctx context.Context, now time.Time, limit int) ([]models.Pass, error) {
	passes, err := s.filter(ctx, "list expirable passes", func(p *models.Pass) bool {
		return p.Status == types.PASS_APPROVED && p.ExpiresAt.Before(now)
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(passes, func(i, j int) bool {
		return passes[i].ExpiresAt.Before(passes[j].ExpiresAt)
	})
	if limit > 0 && len(passes) > limit {
		passes = passes[:limit]
	}
	return passes, nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id string, change StatusChange) (*models.Pass, error) {
	if err := ctx.Err(); err != nil {
		return nil, &types.InfrastructureError{Op: "update pass status", Err: err}
	}
	rec, ok := s.record(id)
	if !ok {
		return nil, passNotFound(id)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.pass.Status != change.Expected {
		return nil, &types.ConflictError{ID: id, Expected: change.Expected, Actual: rec.pass.Status}
	}
	rec.pass.Status = change.Next
	if change.RejectReason != nil {
		reason := *change.RejectReason
		rec.pass.RejectReason = &reason
	}
	if change.DecidedAt != nil {
		decided := *change.DecidedAt
		rec.pass.DecidedAt = &decided
	}
	rec.pass.UpdatedAt = change.At
	rec.history = append(rec.history, historyRow(id, change.Expected, change))
	pass := rec.pass
	return &pass, nil
}

func (s *MemoryStore) History(ctx context.Context, id string) ([]models.PassStatusChange, error) {
	if err := ctx.Err(); err != nil {
		return nil, &types.InfrastructureError{Op: "pass history", Err: err}
	}
	rec, ok := s.record(id)
	if !ok {
		return make([]models.PassStatusChange, 0), nil
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	changes := make([]models.PassStatusChange, len(rec.history))
	copy(changes, rec.history)
	return changes, nil
}

func (s *MemoryStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, &types.InfrastructureError{Op: "get user", Err: err}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return nil, userNotFound(id)
	}
	return &user, nil
}

func (s *MemoryStore) GetUsers(ctx context.Context, ids []string) ([]models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, &types.InfrastructureError{Op: "get users", Err: err}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]models.User, 0, len(ids))
	for _, id := range ids {
		if user, ok := s.users[id]; ok {
			users = append(users, user)
		}
	}
	return users, nil
}

func (s *MemoryStore) ListTeachers(ctx context.Context) ([]models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, &types.InfrastructureError{Op: "list teachers", Err: err}
	}
	s.mu.RLock()
	users := make([]models.User, 0)
	for _, user := range s.users {
		if user.IsTeacher {
			users = append(users, user)
		}
	}
	s.mu.RUnlock()
	sort.Slice(users, func(i, j int) bool {
		if users[i].LastName == users[j].LastName {
			return users[i].FirstName < users[j].FirstName
		}
		return users[i].LastName < users[j].LastName
	})
	return users, nil
}

func (s *MemoryStore) SaveUser(ctx context.Context, user *models.User) error {
	if err := ctx.Err(); err != nil {
		return &types.InfrastructureError{Op: "save user", Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if existing, ok := s.users[user.ID]; ok {
		user.CreatedAt = existing.CreatedAt
	} else {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	s.users[user.ID] = *user
	return nil
}
