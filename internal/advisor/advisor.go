// Package advisor adapts an external risk advisory service into a
// first-class fallback signal.
//
// The adapter never fails the decision pipeline: timeouts, transport
// errors, an open circuit, an exhausted call budget, or explicit
// disablement all come back as an Opinion with a non-ok Status, and the
// fusion layer downgrades to rules-only scoring.
package advisor

import (
	"context"
	"time"

	"github.com/nmelo/sentinel/internal/rules"
)

// Status classifies how an advisory opinion was obtained.
type Status string

const (
	StatusOK       Status = "ok"
	StatusTimeout  Status = "timeout"
	StatusError    Status = "error"
	StatusDisabled Status = "disabled"
)

// DefaultTimeout bounds a single advisory call end to end.
const DefaultTimeout = 4 * time.Second

// Opinion is the advisory service's secondary read on a transaction.
// Only Status == ok carries a usable score.
type Opinion struct {
	RiskScore  int           `json:"riskScore"`  // 0-100
	Confidence int           `json:"confidence"` // 0-100
	Reasoning  string        `json:"reasoning,omitempty"`
	RedFlags   []string      `json:"redFlags,omitempty"`
	Latency    time.Duration `json:"latencyMs"`
	Status     Status        `json:"status"`
}

// Usable reports whether the opinion carries a score fusion may consume.
func (o *Opinion) Usable() bool {
	return o != nil && o.Status == StatusOK
}

// Adapter produces advisory opinions. Implementations must respect the
// context deadline and must not return errors; unavailability is a Status.
type Adapter interface {
	Assess(ctx context.Context, tx *rules.Context) *Opinion
}

// disabledAdapter satisfies Adapter with zero live calls.
type disabledAdapter struct{}

func (disabledAdapter) Assess(context.Context, *rules.Context) *Opinion {
	return &Opinion{Status: StatusDisabled}
}

// Disabled returns an adapter for pure rules mode.
func Disabled() Adapter {
	return disabledAdapter{}
}
