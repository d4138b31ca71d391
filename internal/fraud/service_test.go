package fraud

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nmelo/sentinel/internal/advisor"
	"github.com/nmelo/sentinel/internal/metrics"
	"github.com/nmelo/sentinel/internal/rules"
	"github.com/nmelo/sentinel/internal/wallet"
)

// Midday UTC keeps the unusual-hours rule out of these cases.
var checkTime = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestService(opts ...Option) (*Service, *MemoryStore, *wallet.Service) {
	store := NewMemoryStore()
	w := wallet.NewService(wallet.NewMemoryStore())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(store, w, logger, opts...), store, w
}

// stubAdvisor returns a fixed opinion.
type stubAdvisor struct{ op *advisor.Opinion }

func (a stubAdvisor) Assess(context.Context, *rules.Context) *advisor.Opinion { return a.op }

// allowContext scores 0: established account, small amount.
func allowContext(userID string) *rules.Context {
	return &rules.Context{
		UserID:           userID,
		Type:             "transfer",
		Amount:           25,
		Timestamp:        checkTime,
		RecipientID:      "bob",
		AccountCreatedAt: checkTime.Add(-365 * 24 * time.Hour),
		AvailableBalance: 10000,
		History: []rules.HistoryEntry{
			{Amount: 20, Timestamp: checkTime.Add(-48 * time.Hour), RecipientID: "carol", Type: "transfer", Status: "completed"},
		},
	}
}

// reviewContext fires only the large-value rule: 40 * 1.5 = 60 → REVIEW.
func reviewContext(userID string) *rules.Context {
	history := make([]rules.HistoryEntry, 5)
	for i := range history {
		history[i] = rules.HistoryEntry{
			Amount:      30000,
			Timestamp:   checkTime.Add(-time.Duration(i+40) * 24 * time.Hour),
			RecipientID: "carol",
			Type:        "transfer",
			Status:      "completed",
		}
	}
	return &rules.Context{
		UserID:           userID,
		Type:             "transfer",
		Amount:           55500,
		Timestamp:        checkTime,
		RecipientID:      "bob",
		AccountCreatedAt: checkTime.Add(-365 * 24 * time.Hour),
		AvailableBalance: 100000,
		History:          history,
	}
}

// blockContext stacks large-value, round-amount, and first-transaction
// rules past the critical threshold → BLOCK.
func blockContext(userID string) *rules.Context {
	return &rules.Context{
		UserID:           userID,
		Type:             "transfer",
		Amount:           75000,
		Timestamp:        checkTime,
		RecipientID:      "bob",
		AccountCreatedAt: checkTime.Add(-365 * 24 * time.Hour),
		AvailableBalance: 100000,
	}
}

func TestCheckTransaction_RejectsInvalidContext(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	cases := []*rules.Context{
		nil,
		{UserID: "", Amount: 100},
		{UserID: "alice", Amount: 0},
		{UserID: "alice", Amount: -5},
	}
	for i, txCtx := range cases {
		if _, err := svc.CheckTransaction(ctx, txCtx, "tx_1"); !errors.Is(err, ErrInvalidContext) {
			t.Errorf("case %d: err = %v, want ErrInvalidContext", i, err)
		}
	}
}

func TestCheckTransaction_AllowDoesNotHold(t *testing.T) {
	svc, store, w := newTestService()
	ctx := context.Background()

	log, err := svc.CheckTransaction(ctx, allowContext("alice"), "tx_1")
	if err != nil {
		t.Fatalf("CheckTransaction: %v", err)
	}
	if log.Assessment.Action != ActionAllow {
		t.Fatalf("action = %s, want ALLOW", log.Assessment.Action)
	}
	if log.Status != StatusNone || log.HoldID != "" {
		t.Errorf("log = (status %s, hold %q), want (none, empty)", log.Status, log.HoldID)
	}
	if log.Advisor != nil {
		t.Errorf("disabled advisor must not leave a summary, got %+v", log.Advisor)
	}

	// The log is durable even for ALLOW decisions.
	if _, err := store.Get(ctx, log.ID); err != nil {
		t.Errorf("log not persisted: %v", err)
	}
	bal, _ := w.Balance(ctx, "alice")
	if bal.Held != 0 {
		t.Errorf("no funds should be held, got %v", bal.Held)
	}
}

func TestCheckTransaction_ReviewHoldsFunds(t *testing.T) {
	svc, _, w := newTestService()
	ctx := context.Background()
	_ = w.Credit(ctx, "alice", 100000, "seed")

	log, err := svc.CheckTransaction(ctx, reviewContext("alice"), "tx_1")
	if err != nil {
		t.Fatalf("CheckTransaction: %v", err)
	}
	if log.Assessment.Action != ActionReview || log.Assessment.FinalScore != 60 {
		t.Fatalf("assessment = (%s, %d), want (REVIEW, 60)", log.Assessment.Action, log.Assessment.FinalScore)
	}
	if log.Status != StatusPendingReview || log.HoldID == "" {
		t.Errorf("log = (status %s, hold %q), want pending_review with hold", log.Status, log.HoldID)
	}

	bal, _ := w.Balance(ctx, "alice")
	if bal.Available != 44500 || bal.Held != 55500 {
		t.Errorf("balance = (%v, %v), want (44500, 55500)", bal.Available, bal.Held)
	}
}

func TestCheckTransaction_BlockOnCriticalScore(t *testing.T) {
	svc, _, w := newTestService()
	ctx := context.Background()
	_ = w.Credit(ctx, "alice", 100000, "seed")

	log, err := svc.CheckTransaction(ctx, blockContext("alice"), "tx_1")
	if err != nil {
		t.Fatalf("CheckTransaction: %v", err)
	}
	if log.Assessment.Action != ActionBlock || log.Status != StatusBlocked {
		t.Errorf("got (%s, %s), want (BLOCK, blocked)", log.Assessment.Action, log.Status)
	}
	if log.Assessment.FinalScore != 100 {
		t.Errorf("final score = %d, want 100", log.Assessment.FinalScore)
	}
}

func TestCheckTransaction_InsufficientFundsFailsDecision(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()

	// alice has no balance; a REVIEW decision cannot hold funds.
	_, err := svc.CheckTransaction(ctx, reviewContext("alice"), "tx_1")
	if !errors.Is(err, wallet.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}

	// No orphaned log without its hold.
	logs, _ := store.ListByUser(ctx, "alice", 10)
	if len(logs) != 0 {
		t.Errorf("expected no persisted logs, got %d", len(logs))
	}
}

func TestCheckTransaction_AdvisorFusionRaisesScore(t *testing.T) {
	svc, _, w := newTestService(WithAdvisor(stubAdvisor{&advisor.Opinion{
		RiskScore:  100,
		Confidence: 100,
		Reasoning:  "matches known mule pattern",
		Status:     advisor.StatusOK,
	}}))
	ctx := context.Background()
	_ = w.Credit(ctx, "alice", 100000, "seed")

	log, err := svc.CheckTransaction(ctx, reviewContext("alice"), "tx_1")
	if err != nil {
		t.Fatalf("CheckTransaction: %v", err)
	}
	// Rules say 60; full-confidence advisor at 100 fuses to 80 → BLOCK.
	if log.Assessment.RulesScore != 60 || log.Assessment.FinalScore != 80 {
		t.Fatalf("scores = (%d, %d), want (60, 80)", log.Assessment.RulesScore, log.Assessment.FinalScore)
	}
	if log.Status != StatusBlocked {
		t.Errorf("status = %s, want blocked", log.Status)
	}
	if log.Advisor == nil || log.Advisor.Status != advisor.StatusOK || log.Advisor.RiskScore != 100 {
		t.Errorf("advisor summary = %+v", log.Advisor)
	}
}

func TestCheckTransaction_DegradedAdvisorMatchesRulesOnly(t *testing.T) {
	ctx := context.Background()

	plain, _, wPlain := newTestService()
	degraded, _, wDegraded := newTestService(WithAdvisor(stubAdvisor{&advisor.Opinion{
		RiskScore:  100,
		Confidence: 100,
		Status:     advisor.StatusTimeout,
	}}))
	_ = wPlain.Credit(ctx, "alice", 100000, "seed")
	_ = wDegraded.Credit(ctx, "alice", 100000, "seed")

	a, err := plain.CheckTransaction(ctx, reviewContext("alice"), "tx_1")
	if err != nil {
		t.Fatalf("plain: %v", err)
	}
	b, err := degraded.CheckTransaction(ctx, reviewContext("alice"), "tx_1")
	if err != nil {
		t.Fatalf("degraded: %v", err)
	}

	if a.Assessment.FinalScore != b.Assessment.FinalScore || a.Assessment.Action != b.Assessment.Action {
		t.Errorf("degraded advisor changed the decision: %+v vs %+v", a.Assessment, b.Assessment)
	}
	// The degraded attempt still leaves an audit trail.
	if b.Advisor == nil || b.Advisor.Status != advisor.StatusTimeout {
		t.Errorf("degraded summary = %+v, want timeout status", b.Advisor)
	}
}

func TestResolve_ApproveReleasesToRecipient(t *testing.T) {
	svc, _, w := newTestService()
	ctx := context.Background()
	_ = w.Credit(ctx, "alice", 100000, "seed")

	log, err := svc.CheckTransaction(ctx, reviewContext("alice"), "tx_1")
	if err != nil {
		t.Fatalf("CheckTransaction: %v", err)
	}

	resolved, err := svc.Resolve(ctx, log.ID, "approve", "admin_1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.Status != StatusApproved || resolved.ReleaseSource != SourceAdmin || resolved.ResolvedBy != "admin_1" {
		t.Errorf("resolved = %+v", resolved)
	}
	if resolved.ResolvedAt == nil {
		t.Error("ResolvedAt not stamped")
	}

	bob, _ := w.Balance(ctx, "bob")
	if bob.Available != 55500 {
		t.Errorf("recipient available = %v, want 55500", bob.Available)
	}
	alice, _ := w.Balance(ctx, "alice")
	if alice.Held != 0 {
		t.Errorf("sender held = %v, want 0", alice.Held)
	}

	if _, err := svc.Resolve(ctx, log.ID, "approve", "admin_2"); !errors.Is(err, ErrAlreadyResolved) {
		t.Errorf("double resolve = %v, want ErrAlreadyResolved", err)
	}
}

func TestResolve_ConfirmFraudConfiscates(t *testing.T) {
	svc, _, w := newTestService()
	ctx := context.Background()
	_ = w.Credit(ctx, "alice", 100000, "seed")

	log, _ := svc.CheckTransaction(ctx, reviewContext("alice"), "tx_1")
	resolved, err := svc.Resolve(ctx, log.ID, "confirm_fraud", "admin_1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.Status != StatusConfirmedFraud {
		t.Errorf("status = %s, want confirmed_fraud", resolved.Status)
	}

	suspense, _ := w.Balance(ctx, wallet.SuspenseAccount)
	if suspense.Available != 55500 {
		t.Errorf("suspense available = %v, want 55500", suspense.Available)
	}
	bob, _ := w.Balance(ctx, "bob")
	if bob.Available != 0 {
		t.Errorf("recipient must not be paid, got %v", bob.Available)
	}
}

func TestResolve_UnknownDecision(t *testing.T) {
	svc, _, _ := newTestService()
	if _, err := svc.Resolve(context.Background(), "fl_x", "maybe", "admin_1"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestResolve_UnknownLog(t *testing.T) {
	svc, _, _ := newTestService()
	if _, err := svc.Resolve(context.Background(), "fl_missing", "approve", "admin_1"); !errors.Is(err, ErrLogNotFound) {
		t.Errorf("err = %v, want ErrLogNotFound", err)
	}
}

func TestApproveViaAppeal_BlockedReturnsToSender(t *testing.T) {
	svc, _, w := newTestService()
	ctx := context.Background()
	_ = w.Credit(ctx, "alice", 100000, "seed")

	log, _ := svc.CheckTransaction(ctx, blockContext("alice"), "tx_1")
	if log.Status != StatusBlocked {
		t.Fatalf("precondition: status = %s", log.Status)
	}

	approved, err := svc.ApproveViaAppeal(ctx, log.ID, "admin_1")
	if err != nil {
		t.Fatalf("ApproveViaAppeal: %v", err)
	}
	if approved.Status != StatusApproved || approved.ReleaseSource != SourceAppeal {
		t.Errorf("approved = %+v", approved)
	}

	// Overturned block returns funds to the sender, not the recipient.
	alice, _ := w.Balance(ctx, "alice")
	if alice.Available != 100000 || alice.Held != 0 {
		t.Errorf("sender balance = (%v, %v), want (100000, 0)", alice.Available, alice.Held)
	}
	bob, _ := w.Balance(ctx, "bob")
	if bob.Available != 0 {
		t.Errorf("recipient must not be paid, got %v", bob.Available)
	}
}

func TestApproveViaAppeal_ReversesConfiscation(t *testing.T) {
	svc, _, w := newTestService()
	ctx := context.Background()
	_ = w.Credit(ctx, "alice", 100000, "seed")

	log, _ := svc.CheckTransaction(ctx, blockContext("alice"), "tx_1")
	if _, err := svc.Resolve(ctx, log.ID, "confirm_fraud", "admin_1"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	approved, err := svc.ApproveViaAppeal(ctx, log.ID, "admin_2")
	if err != nil {
		t.Fatalf("ApproveViaAppeal: %v", err)
	}
	if approved.Status != StatusApproved {
		t.Errorf("status = %s, want approved", approved.Status)
	}

	alice, _ := w.Balance(ctx, "alice")
	if alice.Available != 100000 {
		t.Errorf("sender available = %v, want 100000", alice.Available)
	}
	suspense, _ := w.Balance(ctx, wallet.SuspenseAccount)
	if suspense.Available != 0 {
		t.Errorf("suspense available = %v, want 0", suspense.Available)
	}
}

func TestApproveViaAppeal_ReversalKeepsResolutionMetricsFlat(t *testing.T) {
	svc, _, w := newTestService()
	ctx := context.Background()
	_ = w.Credit(ctx, "alice", 100000, "seed")

	log, _ := svc.CheckTransaction(ctx, blockContext("alice"), "tx_1")
	if _, err := svc.Resolve(ctx, log.ID, "confirm_fraud", "admin_1"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	// Confiscation already counted this hold as resolved; the appeal
	// reversal must not count it a second time.
	approvals := metrics.HoldResolutionsTotal.WithLabelValues(string(StatusApproved))
	approvalsBefore := promtest.ToFloat64(approvals)
	activeBefore := promtest.ToFloat64(metrics.HoldsActive)

	if _, err := svc.ApproveViaAppeal(ctx, log.ID, "admin_2"); err != nil {
		t.Fatalf("ApproveViaAppeal: %v", err)
	}

	if got := promtest.ToFloat64(approvals); got != approvalsBefore {
		t.Errorf("approved resolutions = %v, want %v", got, approvalsBefore)
	}
	if got := promtest.ToFloat64(metrics.HoldsActive); got != activeBefore {
		t.Errorf("active holds gauge = %v, want %v", got, activeBefore)
	}
}

func TestHoldForLog(t *testing.T) {
	svc, _, w := newTestService()
	ctx := context.Background()
	_ = w.Credit(ctx, "alice", 100000, "seed")

	log, err := svc.CheckTransaction(ctx, reviewContext("alice"), "tx_1")
	if err != nil {
		t.Fatalf("CheckTransaction: %v", err)
	}

	hold, err := svc.HoldForLog(ctx, log.ID)
	if err != nil {
		t.Fatalf("HoldForLog: %v", err)
	}
	if hold.ID != log.HoldID || hold.Amount != 55500 || hold.Status != wallet.HoldActive {
		t.Errorf("hold = %+v", hold)
	}

	// ALLOW decisions never create a hold.
	allowed, _ := svc.CheckTransaction(ctx, allowContext("alice"), "tx_2")
	if _, err := svc.HoldForLog(ctx, allowed.ID); !errors.Is(err, wallet.ErrHoldNotFound) {
		t.Errorf("hold for allowed log = %v, want ErrHoldNotFound", err)
	}
	if _, err := svc.HoldForLog(ctx, "fl_missing"); !errors.Is(err, ErrLogNotFound) {
		t.Errorf("missing log = %v, want ErrLogNotFound", err)
	}
}

func TestApproveViaAppeal_RejectsUnappealableStates(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	log, _ := svc.CheckTransaction(ctx, allowContext("alice"), "tx_1")
	if _, err := svc.ApproveViaAppeal(ctx, log.ID, "admin_1"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestAutoApproveExpired(t *testing.T) {
	svc, store, w := newTestService()
	ctx := context.Background()
	_ = w.Credit(ctx, "alice", 200000, "seed")

	// One hold past the 24h holding period, one fresh.
	expired, err := svc.CheckTransaction(ctx, reviewContext("alice"), "tx_1")
	if err != nil {
		t.Fatalf("CheckTransaction: %v", err)
	}
	fresh, err := svc.CheckTransaction(ctx, reviewContext("alice"), "tx_2")
	if err != nil {
		t.Fatalf("CheckTransaction: %v", err)
	}

	aged, _ := store.Get(ctx, expired.ID)
	aged.CreatedAt = time.Now().Add(-25 * time.Hour)
	if err := store.Update(ctx, aged); err != nil {
		t.Fatalf("Update: %v", err)
	}

	n, err := svc.AutoApproveExpired(ctx)
	if err != nil {
		t.Fatalf("AutoApproveExpired: %v", err)
	}
	if n != 1 {
		t.Fatalf("approved %d logs, want 1", n)
	}

	got, _ := store.Get(ctx, expired.ID)
	if got.Status != StatusAutoApproved || got.ReleaseSource != SourceAuto || got.ResolvedBy != "system" {
		t.Errorf("expired log = %+v", got)
	}
	still, _ := store.Get(ctx, fresh.ID)
	if still.Status != StatusPendingReview {
		t.Errorf("fresh log status = %s, want pending_review", still.Status)
	}

	// Auto-approval pays the recipient like an admin approval would.
	bob, _ := w.Balance(ctx, "bob")
	if bob.Available != 55500 {
		t.Errorf("recipient available = %v, want 55500", bob.Available)
	}
}

func TestAutoApproveExpired_SkipsAdminResolved(t *testing.T) {
	svc, store, w := newTestService()
	ctx := context.Background()
	_ = w.Credit(ctx, "alice", 100000, "seed")

	log, _ := svc.CheckTransaction(ctx, reviewContext("alice"), "tx_1")
	aged, _ := store.Get(ctx, log.ID)
	aged.CreatedAt = time.Now().Add(-25 * time.Hour)
	_ = store.Update(ctx, aged)

	// Admin gets there first.
	if _, err := svc.Resolve(ctx, log.ID, "confirm_fraud", "admin_1"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	n, err := svc.AutoApproveExpired(ctx)
	if err != nil {
		t.Fatalf("AutoApproveExpired: %v", err)
	}
	if n != 0 {
		t.Errorf("approved %d logs, want 0", n)
	}
	got, _ := store.Get(ctx, log.ID)
	if got.Status != StatusConfirmedFraud {
		t.Errorf("status = %s, want confirmed_fraud", got.Status)
	}
}

func TestSetAppealStatus(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()

	log, _ := svc.CheckTransaction(ctx, allowContext("alice"), "tx_1")
	if err := svc.SetAppealStatus(ctx, log.ID, AppealPending); err != nil {
		t.Fatalf("SetAppealStatus: %v", err)
	}
	got, _ := store.Get(ctx, log.ID)
	if got.AppealStatus != AppealPending {
		t.Errorf("appeal status = %s, want pending", got.AppealStatus)
	}
}

func TestTimer_StartStopIdempotent(t *testing.T) {
	svc, _, _ := newTestService()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	timer := NewTimer(svc, 10*time.Millisecond, logger)

	timer.Start()
	timer.Start() // no-op
	time.Sleep(30 * time.Millisecond)
	timer.Stop()
	timer.Stop() // no-op
}
