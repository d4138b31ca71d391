package fraud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nmelo/sentinel/internal/wallet"
)

// Timer periodically auto-approves pending_review logs whose holding
// period has elapsed. Blocked logs are never auto-approved; they wait
// for an admin or an appeal.
type Timer struct {
	service  *Service
	logger   *slog.Logger
	interval time.Duration
	stop     chan struct{}
	running  atomic.Bool
}

// NewTimer creates an auto-approval timer. interval controls how often
// the pending queue is scanned.
func NewTimer(service *Service, interval time.Duration, logger *slog.Logger) *Timer {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Timer{
		service:  service,
		logger:   logger,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start launches the background loop. Calling Start twice is a no-op.
func (t *Timer) Start() {
	if !t.running.CompareAndSwap(false, true) {
		return
	}
	t.logger.Info("auto-approval timer started",
		"interval", t.interval, "holdingPeriod", t.service.holdingPeriod)
	go t.loop()
}

// Stop halts the background loop.
func (t *Timer) Stop() {
	if !t.running.CompareAndSwap(true, false) {
		return
	}
	close(t.stop)
}

func (t *Timer) loop() {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.tick()
		case <-t.stop:
			return
		}
	}
}

func (t *Timer) tick() {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("auto-approval tick panicked", "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := t.service.AutoApproveExpired(ctx)
	if err != nil {
		t.logger.Error("auto-approval scan failed", "error", err)
		return
	}
	if n > 0 {
		t.logger.Info("auto-approved expired holds", "count", n)
	}
}

// AutoApproveExpired releases every pending_review log older than the
// holding period. Returns how many logs were approved.
func (s *Service) AutoApproveExpired(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.holdingPeriod)
	expired, err := s.store.ListPendingOlderThan(ctx, cutoff, 100)
	if err != nil {
		return 0, fmt.Errorf("list expired holds: %w", err)
	}

	approved := 0
	for _, candidate := range expired {
		if err := s.autoApprove(ctx, candidate.ID); err != nil {
			if errors.Is(err, ErrAlreadyResolved) {
				continue
			}
			s.logger.Error("auto-approval failed", "fraudLogId", candidate.ID, "error", err)
			continue
		}
		approved++
	}
	return approved, nil
}

func (s *Service) autoApprove(ctx context.Context, logID string) error {
	unlock := s.locks.Lock(logID)
	defer unlock()

	// Re-read under lock: an admin may have resolved it since the scan.
	log, err := s.store.Get(ctx, logID)
	if err != nil {
		return err
	}
	if log.Status != StatusPendingReview {
		return ErrAlreadyResolved
	}

	if log.HoldID != "" {
		if err := s.wallet.Release(ctx, log.HoldID); err != nil && !errors.Is(err, wallet.ErrHoldResolved) {
			return fmt.Errorf("release hold %s: %w", log.HoldID, err)
		}
	}

	s.finalize(log, StatusAutoApproved, SourceAuto, "system")
	if err := s.store.Update(ctx, log); err != nil {
		return fmt.Errorf("update fraud log: %w", err)
	}
	if s.notifier != nil {
		s.notifier.NotifyDecision(log)
	}
	return nil
}
