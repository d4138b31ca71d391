package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/nmelo/sentinel/internal/circuitbreaker"
	"github.com/nmelo/sentinel/internal/metrics"
	"github.com/nmelo/sentinel/internal/ratelimit"
	"github.com/nmelo/sentinel/internal/retry"
	"github.com/nmelo/sentinel/internal/rules"
)

const breakerKey = "advisor"

// HTTPAdapter calls the advisory service over HTTP with a hard timeout,
// a circuit breaker, and a call-rate budget.
type HTTPAdapter struct {
	url     string
	apiKey  string
	timeout time.Duration
	client  *http.Client
	breaker *circuitbreaker.Breaker
	budget  *ratelimit.Limiter
	logger  *slog.Logger
}

// Option configures the HTTP adapter.
type Option func(*HTTPAdapter)

// WithTimeout overrides the default per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(a *HTTPAdapter) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithBudget sets the advisory call-rate budget. A nil limiter means
// unlimited calls.
func WithBudget(l *ratelimit.Limiter) Option {
	return func(a *HTTPAdapter) { a.budget = l }
}

// NewHTTPAdapter creates an adapter for the advisory service at url.
func NewHTTPAdapter(url, apiKey string, logger *slog.Logger, opts ...Option) *HTTPAdapter {
	a := &HTTPAdapter{
		url:     url,
		apiKey:  apiKey,
		timeout: DefaultTimeout,
		breaker: circuitbreaker.New(5, 30*time.Second),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.client = &http.Client{Timeout: a.timeout}
	return a
}

// BreakerState exposes the circuit state for health reporting.
func (a *HTTPAdapter) BreakerState() circuitbreaker.State {
	return a.breaker.State(breakerKey)
}

// assessRequest is the context summary sent to the advisory service.
// Raw history entries stay inside the platform.
type assessRequest struct {
	UserID         string  `json:"userId"`
	Type           string  `json:"type"`
	Amount         float64 `json:"amount"`
	Timestamp      int64   `json:"timestamp"`
	RecipientID    string  `json:"recipientId,omitempty"`
	Country        string  `json:"country,omitempty"`
	AccountAgeDays int     `json:"accountAgeDays"`
	HistoryCount   int     `json:"historyCount"`
	DailyTotal     float64 `json:"dailyTotal"`
	AverageAmount  float64 `json:"averageAmount"`
	RecentFailed   int     `json:"recentFailed"`
}

type assessResponse struct {
	RiskScore  int      `json:"riskScore"`
	Confidence int      `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
	RedFlags   []string `json:"redFlags"`
}

// Assess requests a secondary opinion. The call is bounded by the adapter
// timeout regardless of the parent context; all failure modes map to a
// non-ok Status rather than an error.
func (a *HTTPAdapter) Assess(ctx context.Context, tx *rules.Context) *Opinion {
	if a.budget != nil && !a.budget.Allow(breakerKey) {
		metrics.AdvisorRequestsTotal.WithLabelValues(string(StatusDisabled)).Inc()
		return &Opinion{Status: StatusDisabled}
	}
	if !a.breaker.Allow(breakerKey) {
		metrics.AdvisorRequestsTotal.WithLabelValues(string(StatusError)).Inc()
		return &Opinion{Status: StatusError}
	}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	var resp assessResponse
	err := retry.Do(callCtx, 2, 200*time.Millisecond, func() error {
		return a.post(callCtx, summarize(tx), &resp)
	})
	latency := time.Since(start)
	metrics.AdvisorLatency.Observe(latency.Seconds())

	if err != nil {
		a.breaker.RecordFailure(breakerKey)
		status := StatusError
		if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() != nil {
			status = StatusTimeout
		}
		metrics.AdvisorRequestsTotal.WithLabelValues(string(status)).Inc()
		a.logger.Warn("advisor unavailable, degrading to rules-only",
			"status", status, "latency_ms", latency.Milliseconds(), "error", err)
		return &Opinion{Latency: latency, Status: status}
	}

	a.breaker.RecordSuccess(breakerKey)
	metrics.AdvisorRequestsTotal.WithLabelValues(string(StatusOK)).Inc()
	return &Opinion{
		RiskScore:  clampScore(resp.RiskScore),
		Confidence: clampScore(resp.Confidence),
		Reasoning:  resp.Reasoning,
		RedFlags:   resp.RedFlags,
		Latency:    latency,
		Status:     StatusOK,
	}
}

func (a *HTTPAdapter) post(ctx context.Context, body assessRequest, out *assessResponse) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return retry.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(payload))
	if err != nil {
		return retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("advisor returned %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return retry.Permanent(fmt.Errorf("advisor returned %d", resp.StatusCode))
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out); err != nil {
		return retry.Permanent(fmt.Errorf("decode advisor response: %w", err))
	}
	return nil
}

func summarize(tx *rules.Context) assessRequest {
	avg, _ := tx.AverageAmount()
	return assessRequest{
		UserID:         tx.UserID,
		Type:           tx.Type,
		Amount:         tx.Amount,
		Timestamp:      tx.Timestamp.Unix(),
		RecipientID:    tx.RecipientID,
		Country:        tx.Country,
		AccountAgeDays: int(tx.AccountAge().Hours() / 24),
		HistoryCount:   len(tx.History),
		DailyTotal:     tx.DailyTotal(),
		AverageAmount:  avg,
		RecentFailed:   tx.FailedInWindow(10 * time.Minute),
	}
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
