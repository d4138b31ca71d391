package wallet

import (
	"context"
	"sync"
	"time"

	"github.com/nmelo/sentinel/internal/idgen"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu       sync.RWMutex
	balances map[string]*Balance
	holds    map[string]*Hold
	entries  map[string][]*Entry // userID → entries, newest last
}

// NewMemoryStore creates an in-memory wallet store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		balances: make(map[string]*Balance),
		holds:    make(map[string]*Hold),
		entries:  make(map[string][]*Entry),
	}
}

// Seed sets a user's available balance directly (test/demo helper).
func (s *MemoryStore) Seed(userID string, available float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[userID] = &Balance{UserID: userID, Available: available, UpdatedAt: time.Now()}
}

func (s *MemoryStore) balance(userID string) *Balance {
	b, ok := s.balances[userID]
	if !ok {
		b = &Balance{UserID: userID, UpdatedAt: time.Now()}
		s.balances[userID] = b
	}
	return b
}

func (s *MemoryStore) record(userID, typ string, amount float64, reference string) {
	s.entries[userID] = append(s.entries[userID], &Entry{
		ID:        idgen.WithPrefix("le_"),
		UserID:    userID,
		Type:      typ,
		Amount:    amount,
		Reference: reference,
		CreatedAt: time.Now(),
	})
}

func (s *MemoryStore) GetBalance(ctx context.Context, userID string) (*Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if b, ok := s.balances[userID]; ok {
		copy := *b
		return &copy, nil
	}
	return &Balance{UserID: userID, UpdatedAt: time.Now()}, nil
}

func (s *MemoryStore) Credit(ctx context.Context, userID string, amount float64, reference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.balance(userID)
	b.Available += amount
	b.UpdatedAt = time.Now()
	s.record(userID, "credit", amount, reference)
	return nil
}

func (s *MemoryStore) Debit(ctx context.Context, userID string, amount float64, reference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.balance(userID)
	if b.Available < amount {
		return ErrInsufficientFunds
	}
	b.Available -= amount
	b.UpdatedAt = time.Now()
	s.record(userID, "debit", amount, reference)
	return nil
}

func (s *MemoryStore) MoveToHeld(ctx context.Context, userID string, amount float64, reference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.balance(userID)
	if b.Available < amount {
		return ErrInsufficientFunds
	}
	b.Available -= amount
	b.Held += amount
	b.UpdatedAt = time.Now()
	s.record(userID, "hold", amount, reference)
	return nil
}

func (s *MemoryStore) SettleHeld(ctx context.Context, userID string, amount float64, reference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.balance(userID)
	if b.Held < amount {
		return ErrInsufficientFunds
	}
	b.Held -= amount
	b.UpdatedAt = time.Now()
	s.record(userID, "settle", amount, reference)
	return nil
}

func (s *MemoryStore) CreateHold(ctx context.Context, hold *Hold) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copy := *hold
	s.holds[hold.ID] = &copy
	return nil
}

func (s *MemoryStore) GetHold(ctx context.Context, id string) (*Hold, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.holds[id]
	if !ok {
		return nil, ErrHoldNotFound
	}
	copy := *h
	return &copy, nil
}

func (s *MemoryStore) GetHoldByReference(ctx context.Context, reference string) (*Hold, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, h := range s.holds {
		if h.Reference == reference {
			copy := *h
			return &copy, nil
		}
	}
	return nil, ErrHoldNotFound
}

func (s *MemoryStore) UpdateHold(ctx context.Context, hold *Hold) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.holds[hold.ID]; !ok {
		return ErrHoldNotFound
	}
	copy := *hold
	s.holds[hold.ID] = &copy
	return nil
}

func (s *MemoryStore) History(ctx context.Context, userID string, limit int) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.entries[userID]
	start := len(all) - limit
	if start < 0 {
		start = 0
	}
	result := make([]*Entry, 0, len(all)-start)
	for i := len(all) - 1; i >= start; i-- {
		copy := *all[i]
		result = append(result, &copy)
	}
	return result, nil
}
