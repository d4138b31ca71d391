package appeals

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu      sync.RWMutex
	appeals map[string]*Appeal
	byLog   map[string]string // fraudLogID → appealID
}

// NewMemoryStore creates an in-memory appeal store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		appeals: make(map[string]*Appeal),
		byLog:   make(map[string]string),
	}
}

func cloneAppeal(a *Appeal) *Appeal {
	out := *a
	if a.ResolvedAt != nil {
		t := *a.ResolvedAt
		out.ResolvedAt = &t
	}
	return &out
}

func (s *MemoryStore) Create(ctx context.Context, appeal *Appeal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byLog[appeal.FraudLogID]; ok {
		return ErrDuplicate
	}
	s.appeals[appeal.ID] = cloneAppeal(appeal)
	s.byLog[appeal.FraudLogID] = appeal.ID
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Appeal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.appeals[id]
	if !ok {
		return nil, ErrAppealNotFound
	}
	return cloneAppeal(a), nil
}

func (s *MemoryStore) GetByFraudLog(ctx context.Context, fraudLogID string) (*Appeal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byLog[fraudLogID]
	if !ok {
		return nil, ErrAppealNotFound
	}
	return cloneAppeal(s.appeals[id]), nil
}

func (s *MemoryStore) Update(ctx context.Context, appeal *Appeal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.appeals[appeal.ID]; !ok {
		return ErrAppealNotFound
	}
	s.appeals[appeal.ID] = cloneAppeal(appeal)
	return nil
}

func (s *MemoryStore) ListByStatus(ctx context.Context, status Status, limit int) ([]*Appeal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*Appeal
	for _, a := range s.appeals {
		if a.Status == status {
			result = append(result, cloneAppeal(a))
		}
	}
	// Oldest first so the queue surfaces the longest-waiting appeals.
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *MemoryStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Appeal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*Appeal
	for _, a := range s.appeals {
		if a.UserID == userID {
			result = append(result, cloneAppeal(a))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
