// Package fraud implements transaction risk decisioning and the lifecycle
// of held funds.
//
// Flow:
//  1. A transaction enters CheckTransaction with a context snapshot
//  2. The rule catalog and the external advisor are consulted; their
//     signals fuse into one 0-100 score and an action
//  3. ALLOW/CHALLENGE return immediately; REVIEW/BLOCK hold the sender's
//     funds and persist a FraudLog before the caller learns the outcome
//  4. Held logs resolve by admin action, the 24h auto-approval timer, or
//     an approved appeal
package fraud

import (
	"context"
	"errors"
	"time"

	"github.com/nmelo/sentinel/internal/advisor"
	"github.com/nmelo/sentinel/internal/rules"
	"github.com/nmelo/sentinel/internal/wallet"
)

var (
	ErrLogNotFound       = errors.New("fraud log not found")
	ErrAlreadyResolved   = errors.New("fraud log already resolved")
	ErrInvalidTransition = errors.New("invalid disposition transition")
	ErrInvalidContext    = errors.New("invalid transaction context")
	ErrGroundTruthSet    = errors.New("ground truth already set")
)

// Action is the decision enacted for a transaction.
type Action string

const (
	ActionAllow     Action = "ALLOW"
	ActionChallenge Action = "CHALLENGE" // step-up verification required
	ActionReview    Action = "REVIEW"    // hold funds, queue for admin
	ActionBlock     Action = "BLOCK"     // hold funds, flagged as likely fraud
)

// Holds reports whether the action creates a held-funds state.
func (a Action) Holds() bool {
	return a == ActionReview || a == ActionBlock
}

// RiskLevel buckets the final score.
type RiskLevel string

const (
	LevelMinimal  RiskLevel = "MINIMAL"
	LevelLow      RiskLevel = "LOW"
	LevelMedium   RiskLevel = "MEDIUM"
	LevelHigh     RiskLevel = "HIGH"
	LevelCritical RiskLevel = "CRITICAL"
)

// Status is the disposition state of a FraudLog.
type Status string

const (
	StatusNone           Status = "none" // ALLOW/CHALLENGE: nothing held
	StatusPendingReview  Status = "pending_review"
	StatusBlocked        Status = "blocked"
	StatusAutoApproved   Status = "auto_approved"
	StatusApproved       Status = "approved"
	StatusConfirmedFraud Status = "confirmed_fraud"
)

// Open reports whether the disposition still awaits resolution.
func (s Status) Open() bool {
	return s == StatusPendingReview || s == StatusBlocked
}

// transitions is the central disposition table. Anything not listed is
// rejected; there are no ad hoc status writes outside Transition.
var transitions = map[Status][]Status{
	StatusPendingReview:  {StatusAutoApproved, StatusApproved, StatusConfirmedFraud},
	StatusBlocked:        {StatusApproved, StatusConfirmedFraud},
	StatusConfirmedFraud: {StatusApproved}, // appeal reversal only
}

// CanTransition reports whether from → to is a legal disposition change.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// GroundTruth is an admin-asserted label used only for measuring detector
// accuracy, never for the original decision.
type GroundTruth string

const (
	TruthFraud      GroundTruth = "fraud"
	TruthLegitimate GroundTruth = "legitimate"
)

// AppealStatus mirrors the appeal lifecycle onto the log.
type AppealStatus string

const (
	AppealNone     AppealStatus = "none"
	AppealPending  AppealStatus = "pending"
	AppealApproved AppealStatus = "approved"
	AppealRejected AppealStatus = "rejected"
)

// AdvisorSummary is the persisted digest of an advisory opinion.
type AdvisorSummary struct {
	RiskScore  int            `json:"riskScore"`
	Confidence int            `json:"confidence"`
	Status     advisor.Status `json:"status"`
	LatencyMS  int64          `json:"latencyMs"`
	RedFlags   []string       `json:"redFlags,omitempty"`
	Reasoning  string         `json:"reasoning,omitempty"`
}

// Assessment is the derived decision for one transaction. It is folded
// into the FraudLog rather than stored separately.
type Assessment struct {
	BaseScore          int       `json:"baseScore"`
	SeverityMultiplier float64   `json:"severityMultiplier"`
	CountMultiplier    float64   `json:"countMultiplier"`
	RulesScore         int       `json:"rulesScore"`
	FinalScore         int       `json:"finalScore"`
	RiskLevel          RiskLevel `json:"riskLevel"`
	Action             Action    `json:"action"`
}

// FraudLog is the durable record of one decision. It is append-only
// except for ground truth and appeal status, which change only through
// the verification and appeals components.
type FraudLog struct {
	ID            string          `json:"id"`
	TransactionID string          `json:"transactionId"`
	UserID        string          `json:"userId"`
	RecipientID   string          `json:"recipientId,omitempty"`
	Amount        float64         `json:"amount"`
	Type          string          `json:"type"`
	Assessment    Assessment      `json:"assessment"`
	Triggered     []rules.Trigger `json:"triggeredRules"`
	Advisor       *AdvisorSummary `json:"advisor,omitempty"`
	Status        Status          `json:"status"`
	HoldID        string          `json:"holdId,omitempty"`
	ReleaseSource string          `json:"releaseSource,omitempty"` // admin, auto_24hr, appeal
	ResolvedBy    string          `json:"resolvedBy,omitempty"`
	ResolvedAt    *time.Time      `json:"resolvedAt,omitempty"`
	GroundTruth   GroundTruth     `json:"groundTruth,omitempty"`
	GroundTruthBy string          `json:"groundTruthBy,omitempty"`
	GroundTruthAt *time.Time      `json:"groundTruthAt,omitempty"`
	AppealStatus  AppealStatus    `json:"appealStatus"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// Store persists fraud logs.
type Store interface {
	Create(ctx context.Context, log *FraudLog) error
	Get(ctx context.Context, id string) (*FraudLog, error)
	Update(ctx context.Context, log *FraudLog) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*FraudLog, error)
	ListByStatus(ctx context.Context, status Status, limit int) ([]*FraudLog, error)
	ListPendingOlderThan(ctx context.Context, before time.Time, limit int) ([]*FraudLog, error)
	ListVerified(ctx context.Context) ([]*FraudLog, error)
	ListRecent(ctx context.Context, limit int) ([]*FraudLog, error)
}

// WalletService is the slice of the wallet the decision flow needs.
// *wallet.Service satisfies it.
type WalletService interface {
	Balance(ctx context.Context, userID string) (*wallet.Balance, error)
	HoldAndDebit(ctx context.Context, userID, recipientID string, amount float64, reference string) (*wallet.Hold, error)
	HoldByReference(ctx context.Context, reference string) (*wallet.Hold, error)
	Release(ctx context.Context, holdID string) error
	ReleaseToSender(ctx context.Context, holdID string) error
	Confiscate(ctx context.Context, holdID string) error
	ReverseConfiscation(ctx context.Context, holdID string) error
}
