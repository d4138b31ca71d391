package fraud

import (
	"math"
	"testing"

	"github.com/nmelo/sentinel/internal/advisor"
	"github.com/nmelo/sentinel/internal/rules"
)

func trig(sev rules.Severity, weight int) rules.Trigger {
	return rules.Trigger{Triggered: true, Weight: weight, Severity: sev}
}

func TestBaseScore_SumsOnlyFiredWeights(t *testing.T) {
	triggered := []rules.Trigger{
		trig(rules.SeverityHigh, 40),
		{Weight: 99}, // not triggered
		trig(rules.SeverityLow, 10),
	}
	if got := BaseScore(triggered); got != 50 {
		t.Errorf("BaseScore = %d, want 50", got)
	}
	if got := BaseScore(nil); got != 0 {
		t.Errorf("BaseScore(nil) = %d, want 0", got)
	}
}

func TestSeverityMultiplier(t *testing.T) {
	tests := []struct {
		name      string
		triggered []rules.Trigger
		want      float64
	}{
		{"none fired", nil, 1.0},
		{"no high severity", []rules.Trigger{trig(rules.SeverityLow, 10), trig(rules.SeverityMedium, 20)}, 1.0},
		{"all high", []rules.Trigger{trig(rules.SeverityHigh, 30), trig(rules.SeverityHigh, 40)}, 1.5},
		{"one of two high", []rules.Trigger{trig(rules.SeverityHigh, 30), trig(rules.SeverityLow, 10)}, 1.25},
	}
	for _, tt := range tests {
		if got := SeverityMultiplier(tt.triggered); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("%s: SeverityMultiplier = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestCountMultiplier(t *testing.T) {
	mk := func(n int) []rules.Trigger {
		out := make([]rules.Trigger, n)
		for i := range out {
			out[i] = trig(rules.SeverityLow, 10)
		}
		return out
	}
	tests := []struct {
		fired int
		want  float64
	}{
		{0, 1.0},
		{1, 1.0},
		{2, 1.1},
		{3, 1.2},
		{6, 1.5},
		{10, 1.5}, // capped
	}
	for _, tt := range tests {
		if got := CountMultiplier(mk(tt.fired)); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("CountMultiplier(%d fired) = %v, want %v", tt.fired, got, tt.want)
		}
	}
}

func TestRulesScore(t *testing.T) {
	// Single high-severity trigger: 40 * 1.5 * 1.0 = 60.
	single := []rules.Trigger{trig(rules.SeverityHigh, 40)}
	if got := RulesScore(single); got != 60 {
		t.Errorf("RulesScore(single high) = %d, want 60", got)
	}

	// Heavy stack clamps to 100: 120 * 1.5 * 1.2 = 216.
	heavy := []rules.Trigger{
		trig(rules.SeverityHigh, 40),
		trig(rules.SeverityHigh, 40),
		trig(rules.SeverityHigh, 40),
	}
	if got := RulesScore(heavy); got != 100 {
		t.Errorf("RulesScore(heavy) = %d, want 100", got)
	}

	if got := RulesScore(nil); got != 0 {
		t.Errorf("RulesScore(nil) = %d, want 0", got)
	}
}

func TestLevelFor_Boundaries(t *testing.T) {
	tests := []struct {
		score int
		want  RiskLevel
	}{
		{0, LevelMinimal},
		{19, LevelMinimal},
		{20, LevelLow},
		{39, LevelLow},
		{40, LevelMedium},
		{59, LevelMedium},
		{60, LevelHigh},
		{79, LevelHigh},
		{80, LevelCritical},
		{100, LevelCritical},
	}
	for _, tt := range tests {
		if got := LevelFor(tt.score); got != tt.want {
			t.Errorf("LevelFor(%d) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestActionFor(t *testing.T) {
	tests := []struct {
		level RiskLevel
		want  Action
	}{
		{LevelMinimal, ActionAllow},
		{LevelLow, ActionAllow},
		{LevelMedium, ActionChallenge},
		{LevelHigh, ActionReview},
		{LevelCritical, ActionBlock},
	}
	for _, tt := range tests {
		if got := ActionFor(tt.level); got != tt.want {
			t.Errorf("ActionFor(%s) = %s, want %s", tt.level, got, tt.want)
		}
	}
}

func TestAction_Holds(t *testing.T) {
	if ActionAllow.Holds() || ActionChallenge.Holds() {
		t.Error("ALLOW/CHALLENGE must not hold funds")
	}
	if !ActionReview.Holds() || !ActionBlock.Holds() {
		t.Error("REVIEW/BLOCK must hold funds")
	}
}

func TestFuse(t *testing.T) {
	ok := func(score, confidence int) *advisor.Opinion {
		return &advisor.Opinion{RiskScore: score, Confidence: confidence, Status: advisor.StatusOK}
	}
	tests := []struct {
		name  string
		rules int
		op    *advisor.Opinion
		want  int
	}{
		{"nil opinion", 60, nil, 60},
		{"timeout degrades to rules", 60, &advisor.Opinion{RiskScore: 100, Confidence: 100, Status: advisor.StatusTimeout}, 60},
		{"error degrades to rules", 60, &advisor.Opinion{RiskScore: 100, Confidence: 100, Status: advisor.StatusError}, 60},
		{"disabled degrades to rules", 60, &advisor.Opinion{RiskScore: 100, Confidence: 100, Status: advisor.StatusDisabled}, 60},
		{"full confidence splits evenly", 60, ok(100, 100), 80},
		{"half confidence quarters the weight", 60, ok(100, 50), 70},
		{"advisor can pull the score down", 60, ok(0, 100), 30},
		{"zero confidence is rules-only", 60, ok(100, 0), 60},
		{"both maxed stays capped", 100, ok(100, 100), 100},
		{"both zero stays floored", 0, ok(0, 100), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Fuse(tt.rules, tt.op); got != tt.want {
				t.Errorf("Fuse(%d, %+v) = %d, want %d", tt.rules, tt.op, got, tt.want)
			}
		})
	}
}

func TestFuse_DegradedMatchesAdvisorOff(t *testing.T) {
	for score := 0; score <= 100; score += 10 {
		off := Fuse(score, nil)
		degraded := Fuse(score, &advisor.Opinion{RiskScore: 95, Confidence: 90, Status: advisor.StatusTimeout})
		if off != degraded {
			t.Errorf("score %d: advisor-off %d != degraded %d", score, off, degraded)
		}
	}
}

func TestAssess(t *testing.T) {
	triggers := []rules.Trigger{
		trig(rules.SeverityHigh, 40),
		{RuleID: "X", Weight: 50}, // not triggered, must be ignored
	}
	a := Assess(triggers, nil)
	if a.BaseScore != 40 {
		t.Errorf("BaseScore = %d, want 40", a.BaseScore)
	}
	if a.RulesScore != 60 || a.FinalScore != 60 {
		t.Errorf("scores = (%d, %d), want (60, 60)", a.RulesScore, a.FinalScore)
	}
	if a.RiskLevel != LevelHigh || a.Action != ActionReview {
		t.Errorf("outcome = (%s, %s), want (HIGH, REVIEW)", a.RiskLevel, a.Action)
	}

	empty := Assess(nil, nil)
	if empty.FinalScore != 0 || empty.RiskLevel != LevelMinimal || empty.Action != ActionAllow {
		t.Errorf("empty assessment = %+v, want minimal/allow", empty)
	}
}

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusPendingReview, StatusAutoApproved},
		{StatusPendingReview, StatusApproved},
		{StatusPendingReview, StatusConfirmedFraud},
		{StatusBlocked, StatusApproved},
		{StatusBlocked, StatusConfirmedFraud},
		{StatusConfirmedFraud, StatusApproved},
	}
	for _, tt := range allowed {
		if !CanTransition(tt.from, tt.to) {
			t.Errorf("expected %s -> %s to be allowed", tt.from, tt.to)
		}
	}

	denied := []struct{ from, to Status }{
		{StatusBlocked, StatusAutoApproved},
		{StatusApproved, StatusConfirmedFraud},
		{StatusAutoApproved, StatusApproved},
		{StatusNone, StatusApproved},
		{StatusConfirmedFraud, StatusBlocked},
	}
	for _, tt := range denied {
		if CanTransition(tt.from, tt.to) {
			t.Errorf("expected %s -> %s to be rejected", tt.from, tt.to)
		}
	}
}
