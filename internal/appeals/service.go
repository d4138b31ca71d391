package appeals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nmelo/sentinel/internal/fraud"
	"github.com/nmelo/sentinel/internal/idgen"
	"github.com/nmelo/sentinel/internal/metrics"
	"github.com/nmelo/sentinel/internal/syncutil"
)

// MaxReasonLength bounds the appeal reason body.
const MaxReasonLength = 2000

// Service coordinates appeal submission and resolution.
type Service struct {
	store     Store
	decisions DecisionService
	logger    *slog.Logger
	locks     syncutil.ShardedMutex
}

// NewService creates an appeals service.
func NewService(store Store, decisions DecisionService, logger *slog.Logger) *Service {
	return &Service{store: store, decisions: decisions, logger: logger}
}

// Submit files an appeal against a fraud log. The caller must own the
// log, the disposition must be blocked or confirmed_fraud, and the log
// must not have been appealed before.
func (s *Service) Submit(ctx context.Context, fraudLogID, userID, reason string) (*Appeal, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrEmptyReason
	}
	if len(reason) > MaxReasonLength {
		return nil, fmt.Errorf("%w: at most %d characters", ErrEmptyReason, MaxReasonLength)
	}

	// Serialize per log so two submissions can't both pass the
	// duplicate check.
	unlock := s.locks.Lock(fraudLogID)
	defer unlock()

	log, err := s.decisions.Get(ctx, fraudLogID)
	if err != nil {
		return nil, err
	}
	if log.UserID != userID {
		return nil, ErrNotOwner
	}
	if log.Status != fraud.StatusBlocked && log.Status != fraud.StatusConfirmedFraud {
		return nil, fmt.Errorf("%w: %s", ErrNotEligible, log.Status)
	}
	if _, err := s.store.GetByFraudLog(ctx, fraudLogID); err == nil {
		return nil, ErrDuplicate
	} else if !errors.Is(err, ErrAppealNotFound) {
		return nil, err
	}

	appeal := &Appeal{
		ID:         idgen.WithPrefix("ap_"),
		FraudLogID: fraudLogID,
		UserID:     userID,
		Reason:     reason,
		Status:     StatusPending,
		CreatedAt:  time.Now(),
	}
	if err := s.store.Create(ctx, appeal); err != nil {
		return nil, fmt.Errorf("create appeal: %w", err)
	}
	if err := s.decisions.SetAppealStatus(ctx, fraudLogID, fraud.AppealPending); err != nil {
		s.logger.Error("failed to mirror appeal status", "fraudLogId", fraudLogID, "error", err)
	}

	metrics.AppealsTotal.WithLabelValues(string(StatusPending)).Inc()
	s.logger.Info("appeal submitted", "appealId", appeal.ID, "fraudLogId", fraudLogID, "userId", userID)
	return appeal, nil
}

// Resolve applies an admin decision to a pending appeal. decision is
// "approve" or "reject". A second resolution is a conflict.
func (s *Service) Resolve(ctx context.Context, appealID, decision, adminID, notes string) (*Appeal, error) {
	var to Status
	switch decision {
	case "approve":
		to = StatusApproved
	case "reject":
		to = StatusRejected
	default:
		return nil, fmt.Errorf("unknown decision %q", decision)
	}

	appeal, err := s.store.Get(ctx, appealID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(appeal.FraudLogID)
	defer unlock()

	// Re-read under lock to prevent racing resolutions.
	appeal, err = s.store.Get(ctx, appealID)
	if err != nil {
		return nil, err
	}
	if appeal.Status != StatusPending {
		return nil, ErrResolved
	}

	if to == StatusApproved {
		// Fund return happens before the appeal record flips so a wallet
		// failure leaves the appeal retryable.
		if _, err := s.decisions.ApproveViaAppeal(ctx, appeal.FraudLogID, adminID); err != nil {
			return nil, fmt.Errorf("overturn decision: %w", err)
		}
	}

	now := time.Now()
	appeal.Status = to
	appeal.ReviewedBy = adminID
	appeal.ReviewNotes = notes
	appeal.ResolvedAt = &now
	if err := s.store.Update(ctx, appeal); err != nil {
		return nil, fmt.Errorf("update appeal: %w", err)
	}

	mirrored := fraud.AppealRejected
	if to == StatusApproved {
		mirrored = fraud.AppealApproved
	}
	if err := s.decisions.SetAppealStatus(ctx, appeal.FraudLogID, mirrored); err != nil {
		s.logger.Error("failed to mirror appeal status", "fraudLogId", appeal.FraudLogID, "error", err)
	}

	metrics.AppealsTotal.WithLabelValues(string(to)).Inc()
	s.logger.Info("appeal resolved",
		"appealId", appeal.ID, "status", appeal.Status, "by", adminID)
	return appeal, nil
}

// Get returns one appeal.
func (s *Service) Get(ctx context.Context, appealID string) (*Appeal, error) {
	return s.store.Get(ctx, appealID)
}

// ListPending returns the pending appeal queue, oldest first.
func (s *Service) ListPending(ctx context.Context, limit int) ([]*Appeal, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListByStatus(ctx, StatusPending, limit)
}

// ListByUser returns a user's appeals, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string, limit int) ([]*Appeal, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListByUser(ctx, userID, limit)
}
