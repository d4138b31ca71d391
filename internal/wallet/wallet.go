// Package wallet tracks user balances and suspense holds.
//
// Flow for a held transaction:
//  1. Decision is REVIEW/BLOCK → HoldAndDebit moves sender funds
//     available → held, referenced by the fraud log
//  2. Approval (admin, auto, or appeal) → Release credits the recipient
//  3. Confirmed fraud → Confiscate finalizes the debit into the
//     platform suspense account; nobody downstream is credited
//
// ALLOW/CHALLENGE transactions use plain Debit/Credit and never create
// a hold.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nmelo/sentinel/internal/idgen"
	"github.com/nmelo/sentinel/internal/syncutil"
)

var (
	ErrInsufficientFunds = errors.New("insufficient available balance")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrHoldNotFound      = errors.New("hold not found")
	ErrHoldResolved      = errors.New("hold already resolved")
)

// SuspenseAccount receives confiscated funds.
const SuspenseAccount = "suspense"

// HoldStatus is the state of a suspense hold.
type HoldStatus string

const (
	HoldActive      HoldStatus = "held"
	HoldReleased    HoldStatus = "released"
	HoldConfiscated HoldStatus = "confiscated"
)

// Hold is money debited from a sender but not yet credited anywhere,
// referenced by the fraud log that created it.
type Hold struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId"`
	RecipientID string     `json:"recipientId,omitempty"`
	Amount      float64    `json:"amount"`
	Reference   string     `json:"reference"` // fraud log ID
	Status      HoldStatus `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	ResolvedAt  *time.Time `json:"resolvedAt,omitempty"`
}

// Balance is a user's current position.
type Balance struct {
	UserID    string    `json:"userId"`
	Available float64   `json:"available"`
	Held      float64   `json:"held"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Entry is one ledger movement, kept for audit.
type Entry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Type      string    `json:"type"` // credit, debit, hold, release, confiscate
	Amount    float64   `json:"amount"`
	Reference string    `json:"reference,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store persists balances, holds, and ledger entries.
type Store interface {
	GetBalance(ctx context.Context, userID string) (*Balance, error)
	Credit(ctx context.Context, userID string, amount float64, reference string) error
	Debit(ctx context.Context, userID string, amount float64, reference string) error
	MoveToHeld(ctx context.Context, userID string, amount float64, reference string) error
	SettleHeld(ctx context.Context, userID string, amount float64, reference string) error
	CreateHold(ctx context.Context, hold *Hold) error
	GetHold(ctx context.Context, id string) (*Hold, error)
	GetHoldByReference(ctx context.Context, reference string) (*Hold, error)
	UpdateHold(ctx context.Context, hold *Hold) error
	History(ctx context.Context, userID string, limit int) ([]*Entry, error)
}

// Service implements balance and hold operations with per-user locking.
type Service struct {
	store Store
	locks syncutil.ShardedMutex
}

// NewService creates a wallet service over the given store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Balance returns a user's current balance.
func (s *Service) Balance(ctx context.Context, userID string) (*Balance, error) {
	return s.store.GetBalance(ctx, userID)
}

// Credit adds to a user's available balance.
func (s *Service) Credit(ctx context.Context, userID string, amount float64, reference string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	unlock := s.locks.Lock(userID)
	defer unlock()
	return s.store.Credit(ctx, userID, amount, reference)
}

// Debit removes from a user's available balance.
func (s *Service) Debit(ctx context.Context, userID string, amount float64, reference string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	unlock := s.locks.Lock(userID)
	defer unlock()

	bal, err := s.store.GetBalance(ctx, userID)
	if err != nil {
		return err
	}
	if bal.Available < amount {
		return ErrInsufficientFunds
	}
	return s.store.Debit(ctx, userID, amount, reference)
}

// HoldAndDebit debits the sender into a suspense hold referenced by the
// fraud log. The recipient is not credited until the hold resolves.
func (s *Service) HoldAndDebit(ctx context.Context, userID, recipientID string, amount float64, reference string) (*Hold, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	unlock := s.locks.Lock(userID)
	defer unlock()

	bal, err := s.store.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	if bal.Available < amount {
		return nil, ErrInsufficientFunds
	}

	if err := s.store.MoveToHeld(ctx, userID, amount, reference); err != nil {
		return nil, fmt.Errorf("move funds to held: %w", err)
	}

	hold := &Hold{
		ID:          idgen.WithPrefix("hold_"),
		UserID:      userID,
		RecipientID: recipientID,
		Amount:      amount,
		Reference:   reference,
		Status:      HoldActive,
		CreatedAt:   time.Now(),
	}
	if err := s.store.CreateHold(ctx, hold); err != nil {
		// Compensate: put the funds back so money and records stay aligned.
		_ = s.store.SettleHeld(ctx, userID, amount, reference)
		_ = s.store.Credit(ctx, userID, amount, reference)
		return nil, fmt.Errorf("create hold record: %w", err)
	}
	return hold, nil
}

// Release resolves a hold in the recipient's favor. A hold with no
// recipient (withdrawals) simply completes the debit.
func (s *Service) Release(ctx context.Context, holdID string) error {
	return s.resolve(ctx, holdID, HoldReleased, func(h *Hold) string { return h.RecipientID })
}

// ReleaseToSender resolves a hold by returning the funds to the sender.
// Used when an appeal overturns a block of an outbound transfer.
func (s *Service) ReleaseToSender(ctx context.Context, holdID string) error {
	return s.resolve(ctx, holdID, HoldReleased, func(h *Hold) string { return h.UserID })
}

// Confiscate resolves a hold into the platform suspense account.
func (s *Service) Confiscate(ctx context.Context, holdID string) error {
	return s.resolve(ctx, holdID, HoldConfiscated, func(*Hold) string { return SuspenseAccount })
}

// ReverseConfiscation undoes a confiscation after an appeal overturns a
// confirmed-fraud finding: funds move from the suspense account back to
// the sender.
func (s *Service) ReverseConfiscation(ctx context.Context, holdID string) error {
	hold, err := s.store.GetHold(ctx, holdID)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(hold.UserID)
	defer unlock()

	hold, err = s.store.GetHold(ctx, holdID)
	if err != nil {
		return err
	}
	if hold.Status != HoldConfiscated {
		return ErrHoldResolved
	}

	dest := hold.UserID
	if err := s.store.Debit(ctx, SuspenseAccount, hold.Amount, hold.Reference); err != nil {
		return fmt.Errorf("debit suspense for hold %s: %w", hold.ID, err)
	}
	if err := s.store.Credit(ctx, dest, hold.Amount, hold.Reference); err != nil {
		_ = s.store.Credit(ctx, SuspenseAccount, hold.Amount, hold.Reference)
		return fmt.Errorf("credit %s for hold %s: %w", dest, hold.ID, err)
	}

	now := time.Now()
	hold.Status = HoldReleased
	hold.ResolvedAt = &now
	return s.store.UpdateHold(ctx, hold)
}

// GetHold returns a hold by ID.
func (s *Service) GetHold(ctx context.Context, holdID string) (*Hold, error) {
	return s.store.GetHold(ctx, holdID)
}

// HoldByReference returns the hold created for a fraud log, if any.
func (s *Service) HoldByReference(ctx context.Context, reference string) (*Hold, error) {
	return s.store.GetHoldByReference(ctx, reference)
}

// History returns a user's recent ledger entries.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.History(ctx, userID, limit)
}

// resolve transitions a hold to a terminal status under the sender's lock.
// Double resolution is a conflict, never a silent no-op.
func (s *Service) resolve(ctx context.Context, holdID string, to HoldStatus, target func(*Hold) string) error {
	hold, err := s.store.GetHold(ctx, holdID)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(hold.UserID)
	defer unlock()

	// Re-read under lock to prevent racing resolutions.
	hold, err = s.store.GetHold(ctx, holdID)
	if err != nil {
		return err
	}
	if hold.Status != HoldActive {
		return ErrHoldResolved
	}

	// Credit the destination first, then clear the held amount; a failure
	// in between is compensated so balances stay consistent.
	dest := target(hold)
	if dest != "" {
		if err := s.store.Credit(ctx, dest, hold.Amount, hold.Reference); err != nil {
			return fmt.Errorf("credit %s for hold %s: %w", dest, hold.ID, err)
		}
	}
	if err := s.store.SettleHeld(ctx, hold.UserID, hold.Amount, hold.Reference); err != nil {
		if dest != "" {
			_ = s.store.Debit(ctx, dest, hold.Amount, hold.Reference)
		}
		return fmt.Errorf("clear held funds: %w", err)
	}

	now := time.Now()
	hold.Status = to
	hold.ResolvedAt = &now
	if err := s.store.UpdateHold(ctx, hold); err != nil {
		return fmt.Errorf("update hold after settlement: %w", err)
	}
	return nil
}
