// Package verify measures detector accuracy and user trust.
//
// Admins label resolved decisions with ground truth ("fraud" or
// "legitimate"); the labels feed a confusion matrix over which
// precision, recall, and related metrics are derived. Labels never
// influence live decisions.
package verify

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/nmelo/sentinel/internal/fraud"
	"github.com/nmelo/sentinel/internal/metrics"
	"github.com/nmelo/sentinel/internal/syncutil"
)

// Service owns ground truth labels and the derived statistics.
type Service struct {
	store  fraud.Store
	logger *slog.Logger
	locks  syncutil.ShardedMutex
	trust  TrustConfig
}

// NewService creates a verification service over the fraud log store.
func NewService(store fraud.Store, logger *slog.Logger, trust TrustConfig) *Service {
	if trust.HalfLife <= 0 {
		trust.HalfLife = DefaultHalfLife
	}
	return &Service{store: store, logger: logger, trust: trust}
}

// SetGroundTruth labels a fraud log once. Relabeling is a conflict; a
// wrong label is corrected by the surrounding process, not overwritten.
func (s *Service) SetGroundTruth(ctx context.Context, logID string, truth fraud.GroundTruth, adminID string) (*fraud.FraudLog, error) {
	if truth != fraud.TruthFraud && truth != fraud.TruthLegitimate {
		return nil, fmt.Errorf("invalid ground truth %q", truth)
	}

	unlock := s.locks.Lock(logID)
	defer unlock()

	log, err := s.store.Get(ctx, logID)
	if err != nil {
		return nil, err
	}
	if log.GroundTruth != "" {
		return nil, fraud.ErrGroundTruthSet
	}

	now := time.Now()
	log.GroundTruth = truth
	log.GroundTruthBy = adminID
	log.GroundTruthAt = &now
	if err := s.store.Update(ctx, log); err != nil {
		return nil, fmt.Errorf("update fraud log: %w", err)
	}

	metrics.GroundTruthTotal.WithLabelValues(string(truth)).Inc()
	s.logger.Info("ground truth set", "fraudLogId", logID, "truth", truth, "by", adminID)
	return log, nil
}

// ConfusionMatrix counts verified decisions. A decision counts as
// "flagged" when its action was REVIEW or BLOCK.
type ConfusionMatrix struct {
	TruePositives  int `json:"truePositives"`
	FalsePositives int `json:"falsePositives"`
	TrueNegatives  int `json:"trueNegatives"`
	FalseNegatives int `json:"falseNegatives"`
}

// Total returns the number of verified decisions.
func (m ConfusionMatrix) Total() int {
	return m.TruePositives + m.FalsePositives + m.TrueNegatives + m.FalseNegatives
}

// Report is the full accuracy summary.
type Report struct {
	Matrix      ConfusionMatrix `json:"matrix"`
	Verified    int             `json:"verified"`
	Precision   float64         `json:"precision"`
	Recall      float64         `json:"recall"`
	Specificity float64         `json:"specificity"`
	Accuracy    float64         `json:"accuracy"`
	F1          float64         `json:"f1"`
	FPR         float64         `json:"falsePositiveRate"`
	FNR         float64         `json:"falseNegativeRate"`
	NPV         float64         `json:"negativePredictiveValue"`
	MCC         float64         `json:"matthewsCorrelation"`
}

// Metrics computes the accuracy report over every verified log.
func (s *Service) Metrics(ctx context.Context) (*Report, error) {
	logs, err := s.store.ListVerified(ctx)
	if err != nil {
		return nil, fmt.Errorf("list verified logs: %w", err)
	}

	var m ConfusionMatrix
	for _, log := range logs {
		flagged := log.Assessment.Action.Holds()
		wasFraud := log.GroundTruth == fraud.TruthFraud
		switch {
		case flagged && wasFraud:
			m.TruePositives++
		case flagged && !wasFraud:
			m.FalsePositives++
		case !flagged && wasFraud:
			m.FalseNegatives++
		default:
			m.TrueNegatives++
		}
	}
	return buildReport(m), nil
}

// buildReport derives rates from the matrix. Every zero denominator
// yields 0 rather than NaN.
func buildReport(m ConfusionMatrix) *Report {
	tp, fp := float64(m.TruePositives), float64(m.FalsePositives)
	tn, fn := float64(m.TrueNegatives), float64(m.FalseNegatives)

	r := &Report{Matrix: m, Verified: m.Total()}
	r.Precision = ratio(tp, tp+fp)
	r.Recall = ratio(tp, tp+fn)
	r.Specificity = ratio(tn, tn+fp)
	r.Accuracy = ratio(tp+tn, tp+tn+fp+fn)
	r.F1 = ratio(2*r.Precision*r.Recall, r.Precision+r.Recall)
	r.FPR = ratio(fp, fp+tn)
	r.FNR = ratio(fn, fn+tp)
	r.NPV = ratio(tn, tn+fn)

	denom := (tp + fp) * (tp + fn) * (tn + fp) * (tn + fn)
	if denom > 0 {
		r.MCC = (tp*tn - fp*fn) / math.Sqrt(denom)
	}
	return r
}

func ratio(num, denom float64) float64 {
	if denom == 0 {
		return 0
	}
	return num / denom
}
