package verify

import (
	"context"
	"math"
	"time"
)

// DefaultHalfLife is how long a risk score takes to lose half its
// weight against a user's trust.
const DefaultHalfLife = 168 * time.Hour

// RecoveryThreshold is the trust score a user is considered recovered at.
const RecoveryThreshold = 70.0

// TrustConfig tunes the trust calculation.
type TrustConfig struct {
	HalfLife time.Duration
}

// ScoreSample is one historical risk score.
type ScoreSample struct {
	Score     int       `json:"score"`
	Timestamp time.Time `json:"timestamp"`
}

// Trend describes the direction of a user's trust.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
	TrendStable    Trend = "stable"
)

// TrustReport summarizes a user's standing.
type TrustReport struct {
	UserID         string  `json:"userId"`
	Trust          float64 `json:"trust"`
	Trend          Trend   `json:"trend"`
	Samples        int     `json:"samples"`
	DaysToRecovery int     `json:"daysToRecovery"` // 0 when already at or above threshold
}

// penalty is the decayed sum of risk scores at the given instant. Each
// sample contributes score/10 weighted by 0.5^(age/halfLife); the sum
// is absolute, not averaged, so old incidents genuinely fade instead of
// lingering in a normalized mean. Samples after "now" are ignored.
func penalty(samples []ScoreSample, now time.Time, halfLife time.Duration) float64 {
	total := 0.0
	for _, s := range samples {
		age := now.Sub(s.Timestamp)
		if age < 0 {
			continue
		}
		decay := math.Pow(0.5, float64(age)/float64(halfLife))
		total += float64(s.Score) / 10.0 * decay
	}
	return total
}

// TrustScore computes trust at the given instant: 100 minus the decayed
// penalty, clamped to 0-100. A user with no history scores 100.
func TrustScore(samples []ScoreSample, now time.Time, halfLife time.Duration) float64 {
	trust := 100.0 - penalty(samples, now, halfLife)
	if trust < 0 {
		return 0
	}
	if trust > 100 {
		return 100
	}
	return math.Round(trust*10) / 10
}

// TrendFor compares trust now against trust a week ago.
func TrendFor(samples []ScoreSample, now time.Time, halfLife time.Duration) Trend {
	current := penalty(samples, now, halfLife)
	weekAgo := penalty(samples, now.Add(-7*24*time.Hour), halfLife)
	switch {
	case current < weekAgo*0.9:
		return TrendImproving
	case current > weekAgo*1.1+1e-9:
		return TrendDeclining
	default:
		return TrendStable
	}
}

// DaysToRecovery estimates how many days of clean behavior bring trust
// back to the recovery threshold. The penalty halves every half-life,
// so the answer is closed-form rather than simulated.
func DaysToRecovery(samples []ScoreSample, now time.Time, halfLife time.Duration) int {
	current := penalty(samples, now, halfLife)
	target := 100.0 - RecoveryThreshold
	if current <= target {
		return 0
	}
	halfLives := math.Log2(current / target)
	days := halfLives * halfLife.Hours() / 24.0
	return int(math.Ceil(days))
}

// UserTrust builds the trust report for a user from their fraud logs.
func (s *Service) UserTrust(ctx context.Context, userID string) (*TrustReport, error) {
	logs, err := s.store.ListByUser(ctx, userID, 500)
	if err != nil {
		return nil, err
	}

	samples := make([]ScoreSample, 0, len(logs))
	for _, log := range logs {
		samples = append(samples, ScoreSample{
			Score:     log.Assessment.FinalScore,
			Timestamp: log.CreatedAt,
		})
	}

	now := time.Now()
	return &TrustReport{
		UserID:         userID,
		Trust:          TrustScore(samples, now, s.trust.HalfLife),
		Trend:          TrendFor(samples, now, s.trust.HalfLife),
		Samples:        len(samples),
		DaysToRecovery: DaysToRecovery(samples, now, s.trust.HalfLife),
	}, nil
}
