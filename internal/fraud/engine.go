package fraud

import (
	"math"

	"github.com/nmelo/sentinel/internal/advisor"
	"github.com/nmelo/sentinel/internal/rules"
)

// advisorWeightCap bounds how much of the final score the advisor can
// own. Even at full confidence the rule engine keeps half the say.
const advisorWeightCap = 0.5

// BaseScore sums the weights of triggered rules.
func BaseScore(triggered []rules.Trigger) int {
	total := 0
	for _, t := range triggered {
		if t.Triggered {
			total += t.Weight
		}
	}
	return total
}

// SeverityMultiplier scales by the share of high-severity triggers:
// 1.0 with none, up to 1.5 when every trigger is high severity.
func SeverityMultiplier(triggered []rules.Trigger) float64 {
	fired, high := 0, 0
	for _, t := range triggered {
		if !t.Triggered {
			continue
		}
		fired++
		if t.Severity == rules.SeverityHigh {
			high++
		}
	}
	if fired == 0 {
		return 1.0
	}
	return 1.0 + 0.5*float64(high)/float64(fired)
}

// CountMultiplier rewards corroboration: +0.1 per trigger beyond the
// first, capped at 1.5.
func CountMultiplier(triggered []rules.Trigger) float64 {
	fired := 0
	for _, t := range triggered {
		if t.Triggered {
			fired++
		}
	}
	if fired <= 1 {
		return 1.0
	}
	return math.Min(1.5, 1.0+0.1*float64(fired-1))
}

// RulesScore is the deterministic rules-only score, clamped to 0-100.
func RulesScore(triggered []rules.Trigger) int {
	base := BaseScore(triggered)
	score := int(math.Round(float64(base) * SeverityMultiplier(triggered) * CountMultiplier(triggered)))
	if score > 100 {
		return 100
	}
	return score
}

// Fuse blends the rules score with an advisory opinion. The advisor's
// weight is proportional to its confidence, capped at advisorWeightCap.
// An unusable opinion (timeout, error, disabled) leaves the rules score
// untouched, so degraded advisor paths yield identical decisions to
// running with the advisor off.
func Fuse(rulesScore int, op *advisor.Opinion) int {
	if op == nil || !op.Usable() {
		return rulesScore
	}
	w := advisorWeightCap * float64(op.Confidence) / 100.0
	if w > advisorWeightCap {
		w = advisorWeightCap
	}
	fused := int(math.Round((1.0-w)*float64(rulesScore) + w*float64(op.RiskScore)))
	if fused < 0 {
		return 0
	}
	if fused > 100 {
		return 100
	}
	return fused
}

// LevelFor maps a final score to its risk level.
func LevelFor(score int) RiskLevel {
	switch {
	case score < 20:
		return LevelMinimal
	case score < 40:
		return LevelLow
	case score < 60:
		return LevelMedium
	case score < 80:
		return LevelHigh
	default:
		return LevelCritical
	}
}

// ActionFor maps a risk level to the enacted decision.
func ActionFor(level RiskLevel) Action {
	switch level {
	case LevelMinimal, LevelLow:
		return ActionAllow
	case LevelMedium:
		return ActionChallenge
	case LevelHigh:
		return ActionReview
	default:
		return ActionBlock
	}
}

// Assess computes the full decision for a set of rule results and an
// optional advisory opinion.
func Assess(triggered []rules.Trigger, op *advisor.Opinion) Assessment {
	fired := rules.Triggered(triggered)
	rulesScore := RulesScore(fired)
	final := Fuse(rulesScore, op)
	level := LevelFor(final)
	return Assessment{
		BaseScore:          BaseScore(fired),
		SeverityMultiplier: SeverityMultiplier(fired),
		CountMultiplier:    CountMultiplier(fired),
		RulesScore:         rulesScore,
		FinalScore:         final,
		RiskLevel:          level,
		Action:             ActionFor(level),
	}
}
