// Package appeals lets users contest blocked or confirmed-fraud
// decisions. Each fraud log can be appealed exactly once; a granted
// appeal returns the held or confiscated funds to the sender.
package appeals

import (
	"context"
	"errors"
	"time"

	"github.com/nmelo/sentinel/internal/fraud"
)

var (
	ErrAppealNotFound = errors.New("appeal not found")
	ErrDuplicate      = errors.New("fraud log already appealed")
	ErrNotEligible    = errors.New("disposition is not appealable")
	ErrNotOwner       = errors.New("not your fraud log")
	ErrResolved       = errors.New("appeal already resolved")
	ErrEmptyReason    = errors.New("appeal reason required")
)

// Status is the appeal lifecycle state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Appeal is a user's contest of one decision.
type Appeal struct {
	ID          string     `json:"id"`
	FraudLogID  string     `json:"fraudLogId"`
	UserID      string     `json:"userId"`
	Reason      string     `json:"reason"`
	Status      Status     `json:"status"`
	ReviewedBy  string     `json:"reviewedBy,omitempty"`
	ReviewNotes string     `json:"reviewNotes,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	ResolvedAt  *time.Time `json:"resolvedAt,omitempty"`
}

// Store persists appeals.
type Store interface {
	Create(ctx context.Context, appeal *Appeal) error
	Get(ctx context.Context, id string) (*Appeal, error)
	GetByFraudLog(ctx context.Context, fraudLogID string) (*Appeal, error)
	Update(ctx context.Context, appeal *Appeal) error
	ListByStatus(ctx context.Context, status Status, limit int) ([]*Appeal, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*Appeal, error)
}

// DecisionService is the slice of the fraud service appeals needs.
// *fraud.Service satisfies it.
type DecisionService interface {
	Get(ctx context.Context, logID string) (*fraud.FraudLog, error)
	ApproveViaAppeal(ctx context.Context, logID, adminID string) (*fraud.FraudLog, error)
	SetAppealStatus(ctx context.Context, logID string, status fraud.AppealStatus) error
}
