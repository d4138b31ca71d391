package fraud

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nmelo/sentinel/internal/rules"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu   sync.RWMutex
	logs map[string]*FraudLog
}

// NewMemoryStore creates an in-memory fraud log store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{logs: make(map[string]*FraudLog)}
}

func cloneLog(log *FraudLog) *FraudLog {
	out := *log
	if log.Triggered != nil {
		out.Triggered = make([]rules.Trigger, len(log.Triggered))
		copy(out.Triggered, log.Triggered)
	}
	if log.Advisor != nil {
		adv := *log.Advisor
		if log.Advisor.RedFlags != nil {
			adv.RedFlags = append([]string(nil), log.Advisor.RedFlags...)
		}
		out.Advisor = &adv
	}
	if log.ResolvedAt != nil {
		t := *log.ResolvedAt
		out.ResolvedAt = &t
	}
	if log.GroundTruthAt != nil {
		t := *log.GroundTruthAt
		out.GroundTruthAt = &t
	}
	return &out
}

func (s *MemoryStore) Create(ctx context.Context, log *FraudLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[log.ID] = cloneLog(log)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*FraudLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	log, ok := s.logs[id]
	if !ok {
		return nil, ErrLogNotFound
	}
	return cloneLog(log), nil
}

func (s *MemoryStore) Update(ctx context.Context, log *FraudLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.logs[log.ID]; !ok {
		return ErrLogNotFound
	}
	s.logs[log.ID] = cloneLog(log)
	return nil
}

func (s *MemoryStore) collect(match func(*FraudLog) bool) []*FraudLog {
	var result []*FraudLog
	for _, log := range s.logs {
		if match(log) {
			result = append(result, cloneLog(log))
		}
	}
	return result
}

func newestFirst(logs []*FraudLog) {
	sort.Slice(logs, func(i, j int) bool { return logs[i].CreatedAt.After(logs[j].CreatedAt) })
}

func truncate(logs []*FraudLog, limit int) []*FraudLog {
	if limit > 0 && len(logs) > limit {
		return logs[:limit]
	}
	return logs
}

func (s *MemoryStore) ListByUser(ctx context.Context, userID string, limit int) ([]*FraudLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	logs := s.collect(func(l *FraudLog) bool { return l.UserID == userID })
	newestFirst(logs)
	return truncate(logs, limit), nil
}

func (s *MemoryStore) ListByStatus(ctx context.Context, status Status, limit int) ([]*FraudLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	logs := s.collect(func(l *FraudLog) bool { return l.Status == status })
	// Oldest first so review queues surface the longest-waiting logs.
	sort.Slice(logs, func(i, j int) bool { return logs[i].CreatedAt.Before(logs[j].CreatedAt) })
	return truncate(logs, limit), nil
}

func (s *MemoryStore) ListPendingOlderThan(ctx context.Context, before time.Time, limit int) ([]*FraudLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	logs := s.collect(func(l *FraudLog) bool {
		return l.Status == StatusPendingReview && l.CreatedAt.Before(before)
	})
	sort.Slice(logs, func(i, j int) bool { return logs[i].CreatedAt.Before(logs[j].CreatedAt) })
	return truncate(logs, limit), nil
}

func (s *MemoryStore) ListVerified(ctx context.Context) ([]*FraudLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	logs := s.collect(func(l *FraudLog) bool { return l.GroundTruth != "" })
	newestFirst(logs)
	return logs, nil
}

func (s *MemoryStore) ListRecent(ctx context.Context, limit int) ([]*FraudLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	logs := s.collect(func(*FraudLog) bool { return true })
	newestFirst(logs)
	return truncate(logs, limit), nil
}
