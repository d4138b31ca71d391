package fraud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nmelo/sentinel/internal/advisor"
	"github.com/nmelo/sentinel/internal/idgen"
	"github.com/nmelo/sentinel/internal/metrics"
	"github.com/nmelo/sentinel/internal/rules"
	"github.com/nmelo/sentinel/internal/syncutil"
	"github.com/nmelo/sentinel/internal/traces"
	"github.com/nmelo/sentinel/internal/wallet"
)

// DefaultHoldingPeriod is how long a pending_review log waits before the
// timer auto-approves it.
const DefaultHoldingPeriod = 24 * time.Hour

// ReleaseSource values recorded on resolved logs.
const (
	SourceAdmin  = "admin"
	SourceAuto   = "auto_24hr"
	SourceAppeal = "appeal"
)

// Notifier receives decision events for the realtime feed. Implementations
// must not block.
type Notifier interface {
	NotifyDecision(log *FraudLog)
}

// Service coordinates rule evaluation, advisory fusion, fund holds, and
// disposition changes.
type Service struct {
	store         Store
	wallet        WalletService
	evaluator     *rules.Evaluator
	advisor       advisor.Adapter
	notifier      Notifier
	logger        *slog.Logger
	locks         syncutil.ShardedMutex
	holdingPeriod time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithHoldingPeriod overrides the auto-approval holding period.
func WithHoldingPeriod(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.holdingPeriod = d
		}
	}
}

// WithNotifier attaches a decision event sink.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithAdvisor sets the advisory adapter. Defaults to advisor.Disabled().
func WithAdvisor(a advisor.Adapter) Option {
	return func(s *Service) {
		if a != nil {
			s.advisor = a
		}
	}
}

// NewService creates a fraud decisioning service.
func NewService(store Store, w WalletService, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:         store,
		wallet:        w,
		evaluator:     rules.NewEvaluator(),
		advisor:       advisor.Disabled(),
		logger:        logger,
		holdingPeriod: DefaultHoldingPeriod,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HoldingPeriod returns the configured auto-approval delay.
func (s *Service) HoldingPeriod() time.Duration {
	return s.holdingPeriod
}

// CheckTransaction runs the full decision flow for one transaction.
// Rules and the advisor run concurrently; the returned log is durable
// before the caller sees it, so a REVIEW/BLOCK answer always has its
// funds held.
func (s *Service) CheckTransaction(ctx context.Context, txCtx *rules.Context, transactionID string) (*FraudLog, error) {
	if txCtx == nil || txCtx.UserID == "" || txCtx.Amount <= 0 {
		return nil, ErrInvalidContext
	}
	if txCtx.Timestamp.IsZero() {
		txCtx.Timestamp = time.Now()
	}

	ctx, span := traces.StartSpan(ctx, "fraud.CheckTransaction",
		traces.UserID(txCtx.UserID), traces.Amount(txCtx.Amount))
	defer span.End()

	// The advisor call and rule evaluation overlap; rules are cheap, the
	// advisor is a network hop with its own timeout budget.
	opCh := make(chan *advisor.Opinion, 1)
	go func() {
		opCh <- s.advisor.Assess(ctx, txCtx)
	}()

	triggers := s.evaluator.Evaluate(txCtx)
	opinion := <-opCh

	assessment := Assess(triggers, opinion)
	fired := rules.Triggered(triggers)
	for _, t := range fired {
		metrics.RuleTriggersTotal.WithLabelValues(t.RuleID).Inc()
	}
	metrics.DecisionsTotal.WithLabelValues(string(assessment.Action)).Inc()
	span.SetAttributes(traces.Action(string(assessment.Action)), traces.Score(assessment.FinalScore))

	log := &FraudLog{
		ID:            idgen.WithPrefix("fl_"),
		TransactionID: transactionID,
		UserID:        txCtx.UserID,
		RecipientID:   txCtx.RecipientID,
		Amount:        txCtx.Amount,
		Type:          txCtx.Type,
		Assessment:    assessment,
		Triggered:     fired,
		Status:        StatusNone,
		AppealStatus:  AppealNone,
		CreatedAt:     time.Now(),
	}
	if opinion != nil && opinion.Status != advisor.StatusDisabled {
		log.Advisor = &AdvisorSummary{
			RiskScore:  opinion.RiskScore,
			Confidence: opinion.Confidence,
			Status:     opinion.Status,
			LatencyMS:  opinion.Latency.Milliseconds(),
			RedFlags:   opinion.RedFlags,
			Reasoning:  opinion.Reasoning,
		}
	}

	if assessment.Action.Holds() {
		if assessment.Action == ActionReview {
			log.Status = StatusPendingReview
		} else {
			log.Status = StatusBlocked
		}
		hold, err := s.wallet.HoldAndDebit(ctx, txCtx.UserID, txCtx.RecipientID, txCtx.Amount, log.ID)
		if err != nil {
			return nil, fmt.Errorf("hold funds for %s decision: %w", assessment.Action, err)
		}
		log.HoldID = hold.ID
		metrics.HoldsActive.Inc()
	}

	if err := s.store.Create(ctx, log); err != nil {
		// The hold compensates so the user isn't left with funds stuck
		// against a record that doesn't exist.
		if log.HoldID != "" {
			if rerr := s.wallet.ReleaseToSender(ctx, log.HoldID); rerr != nil {
				s.logger.Error("failed to release hold after log write failure",
					"holdId", log.HoldID, "error", rerr)
			} else {
				metrics.HoldsActive.Dec()
			}
		}
		return nil, fmt.Errorf("persist fraud log: %w", err)
	}

	s.logger.Info("transaction checked",
		"fraudLogId", log.ID,
		"userId", log.UserID,
		"amount", log.Amount,
		"score", assessment.FinalScore,
		"action", assessment.Action,
		"triggered", len(fired),
		"advisorStatus", advisorStatus(opinion),
	)
	if s.notifier != nil {
		s.notifier.NotifyDecision(log)
	}
	return log, nil
}

func advisorStatus(op *advisor.Opinion) advisor.Status {
	if op == nil {
		return advisor.StatusDisabled
	}
	return op.Status
}

// Resolve applies an admin decision to an open log. decision is
// "approve" or "confirm_fraud". Resolving an already-resolved log is a
// conflict, never a silent overwrite.
func (s *Service) Resolve(ctx context.Context, logID, decision, adminID string) (*FraudLog, error) {
	var to Status
	switch decision {
	case "approve":
		to = StatusApproved
	case "confirm_fraud":
		to = StatusConfirmedFraud
	default:
		return nil, fmt.Errorf("%w: unknown decision %q", ErrInvalidTransition, decision)
	}

	unlock := s.locks.Lock(logID)
	defer unlock()

	log, err := s.store.Get(ctx, logID)
	if err != nil {
		return nil, err
	}
	if !log.Status.Open() {
		return nil, ErrAlreadyResolved
	}
	if !CanTransition(log.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, log.Status, to)
	}

	if log.HoldID != "" {
		var werr error
		if to == StatusApproved {
			werr = s.wallet.Release(ctx, log.HoldID)
		} else {
			werr = s.wallet.Confiscate(ctx, log.HoldID)
		}
		if werr != nil && !errors.Is(werr, wallet.ErrHoldResolved) {
			return nil, fmt.Errorf("resolve hold %s: %w", log.HoldID, werr)
		}
	}

	s.finalize(log, to, SourceAdmin, adminID)
	if err := s.store.Update(ctx, log); err != nil {
		return nil, fmt.Errorf("update fraud log: %w", err)
	}

	s.logger.Info("fraud log resolved",
		"fraudLogId", log.ID, "status", log.Status, "by", adminID)
	return log, nil
}

// ApproveViaAppeal overturns a blocked or confirmed-fraud log after an
// appeal is granted. Held funds return to the sender; confiscated funds
// come back out of the suspense account.
func (s *Service) ApproveViaAppeal(ctx context.Context, logID, adminID string) (*FraudLog, error) {
	unlock := s.locks.Lock(logID)
	defer unlock()

	log, err := s.store.Get(ctx, logID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(log.Status, StatusApproved) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, log.Status, StatusApproved)
	}

	if log.HoldID != "" {
		var werr error
		if log.Status == StatusConfirmedFraud {
			werr = s.wallet.ReverseConfiscation(ctx, log.HoldID)
		} else {
			werr = s.wallet.ReleaseToSender(ctx, log.HoldID)
		}
		if werr != nil && !errors.Is(werr, wallet.ErrHoldResolved) {
			return nil, fmt.Errorf("return held funds for %s: %w", log.HoldID, werr)
		}
	}

	s.finalize(log, StatusApproved, SourceAppeal, adminID)
	if err := s.store.Update(ctx, log); err != nil {
		return nil, fmt.Errorf("update fraud log: %w", err)
	}

	s.logger.Info("fraud log overturned on appeal", "fraudLogId", log.ID, "by", adminID)
	return log, nil
}

// finalize stamps the resolution fields and records hold metrics. The
// caller persists the log. Metrics fire only when the log was still
// open: an appeal reversing confirmed_fraud re-finalizes a log whose
// hold was already counted at confiscation.
func (s *Service) finalize(log *FraudLog, to Status, source, by string) {
	now := time.Now()
	wasOpen := log.Status.Open()
	log.Status = to
	log.ReleaseSource = source
	log.ResolvedBy = by
	log.ResolvedAt = &now
	if log.HoldID != "" && wasOpen {
		metrics.HoldsActive.Dec()
		metrics.HoldResolutionsTotal.WithLabelValues(string(to)).Inc()
		metrics.HoldDuration.Observe(now.Sub(log.CreatedAt).Seconds())
	}
}

// SetAppealStatus mirrors the appeal lifecycle onto the log.
func (s *Service) SetAppealStatus(ctx context.Context, logID string, status AppealStatus) error {
	unlock := s.locks.Lock(logID)
	defer unlock()

	log, err := s.store.Get(ctx, logID)
	if err != nil {
		return err
	}
	log.AppealStatus = status
	return s.store.Update(ctx, log)
}

// Get returns one fraud log.
func (s *Service) Get(ctx context.Context, logID string) (*FraudLog, error) {
	return s.store.Get(ctx, logID)
}

// HoldForLog returns the suspense hold backing a fraud log, so reviewers
// see where the money sits before resolving.
func (s *Service) HoldForLog(ctx context.Context, logID string) (*wallet.Hold, error) {
	log, err := s.store.Get(ctx, logID)
	if err != nil {
		return nil, err
	}
	if log.HoldID == "" {
		return nil, wallet.ErrHoldNotFound
	}
	return s.wallet.HoldByReference(ctx, log.ID)
}

// ListByUser returns a user's recent fraud logs, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string, limit int) ([]*FraudLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListByUser(ctx, userID, limit)
}

// PendingReview returns the open review queue, oldest first.
func (s *Service) PendingReview(ctx context.Context, limit int) ([]*FraudLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListByStatus(ctx, StatusPendingReview, limit)
}

// Recent returns the latest decisions across all users.
func (s *Service) Recent(ctx context.Context, limit int) ([]*FraudLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListRecent(ctx, limit)
}
