// Package rules implements the static fraud rule catalog and evaluator.
//
// Every transaction is evaluated against three rule families:
// velocity (frequency/recency), amount (value patterns), and behavioral
// (account/context anomalies). Each rule is a pure predicate over a
// TransactionContext snapshot; the evaluator runs the full catalog in
// rule-ID order with no short-circuiting, so logs and tests see the same
// trigger list for the same input.
package rules

import (
	"sort"
	"time"
)

// Category groups rules by the signal family they detect.
type Category string

const (
	CategoryVelocity   Category = "velocity"
	CategoryAmount     Category = "amount"
	CategoryBehavioral Category = "behavioral"
)

// Severity is the tier used by the severity multiplier during fusion.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Definition describes a single catalog rule. Catalogs are static
// configuration; definitions are never mutated at runtime.
type Definition struct {
	ID        string
	Category  Category
	Weight    int // positive, contributes to the base score when triggered
	Severity  Severity
	Describe  string
	Predicate func(*Context) bool
}

// Trigger is the result of evaluating one rule against one transaction.
type Trigger struct {
	RuleID    string   `json:"ruleId"`
	Category  Category `json:"category"`
	Triggered bool     `json:"triggered"`
	Weight    int      `json:"weight"`
	Severity  Severity `json:"severity"`
	Describe  string   `json:"description,omitempty"`
}

// HistoryEntry is one prior transaction in the user's recent window.
// Outbound entries carry RecipientID; inbound entries carry SenderID.
type HistoryEntry struct {
	Amount      float64   `json:"amount"`
	Timestamp   time.Time `json:"timestamp"`
	RecipientID string    `json:"recipientId,omitempty"`
	SenderID    string    `json:"senderId,omitempty"`
	Type        string    `json:"type"`   // transfer, deposit, withdrawal, payment
	Status      string    `json:"status"` // completed, failed, blocked
	RiskScore   int       `json:"riskScore,omitempty"`
}

// Context is the immutable per-evaluation snapshot of a transaction plus
// the sender's recent history. Rules read it, never write it.
type Context struct {
	UserID           string         `json:"userId"`
	Type             string         `json:"type"`
	Amount           float64        `json:"amount"`
	Timestamp        time.Time      `json:"timestamp"`
	RecipientID      string         `json:"recipientId,omitempty"`
	IPAddress        string         `json:"ipAddress,omitempty"`
	Country          string         `json:"country,omitempty"`
	AccountCreatedAt time.Time      `json:"accountCreatedAt"`
	AvailableBalance float64        `json:"availableBalance"`
	History          []HistoryEntry `json:"history,omitempty"` // most recent first
}

// AccountAge returns how old the account is at evaluation time.
func (c *Context) AccountAge() time.Duration {
	if c.AccountCreatedAt.IsZero() {
		return 0
	}
	return c.Timestamp.Sub(c.AccountCreatedAt)
}

// CompletedInWindow counts completed history entries within d of the
// transaction timestamp.
func (c *Context) CompletedInWindow(d time.Duration) int {
	cutoff := c.Timestamp.Add(-d)
	n := 0
	for _, h := range c.History {
		if h.Status == "failed" {
			continue
		}
		if h.Timestamp.After(cutoff) {
			n++
		}
	}
	return n
}

// FailedInWindow counts failed history entries within d.
func (c *Context) FailedInWindow(d time.Duration) int {
	cutoff := c.Timestamp.Add(-d)
	n := 0
	for _, h := range c.History {
		if h.Status == "failed" && h.Timestamp.After(cutoff) {
			n++
		}
	}
	return n
}

// DailyTotal sums completed outbound amounts in the 24h before the
// transaction, excluding the transaction itself.
func (c *Context) DailyTotal() float64 {
	cutoff := c.Timestamp.Add(-24 * time.Hour)
	var total float64
	for _, h := range c.History {
		if h.Status == "failed" || h.SenderID != "" {
			continue
		}
		if h.Timestamp.After(cutoff) {
			total += h.Amount
		}
	}
	return total
}

// AverageAmount returns the mean completed outbound amount over the whole
// history window, and the number of samples it is based on.
func (c *Context) AverageAmount() (avg float64, samples int) {
	var total float64
	for _, h := range c.History {
		if h.Status == "failed" || h.SenderID != "" {
			continue
		}
		total += h.Amount
		samples++
	}
	if samples == 0 {
		return 0, 0
	}
	return total / float64(samples), samples
}

// LastOutgoing returns the most recent completed outbound entry.
func (c *Context) LastOutgoing() (HistoryEntry, bool) {
	for _, h := range c.History {
		if h.SenderID == "" && h.Status != "failed" {
			return h, true
		}
	}
	return HistoryEntry{}, false
}

// Catalog returns the full static rule catalog sorted by rule ID.
func Catalog() []Definition {
	defs := make([]Definition, 0, len(velocityRules)+len(amountRules)+len(behavioralRules))
	defs = append(defs, velocityRules...)
	defs = append(defs, amountRules...)
	defs = append(defs, behavioralRules...)
	sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
	return defs
}

// Evaluator runs a rule catalog against transaction contexts.
type Evaluator struct {
	defs []Definition
}

// NewEvaluator creates an evaluator over the default catalog.
func NewEvaluator() *Evaluator {
	return &Evaluator{defs: Catalog()}
}

// NewEvaluatorWithCatalog creates an evaluator over a custom catalog
// (used by tests to pin specific rule sets).
func NewEvaluatorWithCatalog(defs []Definition) *Evaluator {
	sorted := make([]Definition, len(defs))
	copy(sorted, defs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	return &Evaluator{defs: sorted}
}

// Evaluate runs every rule against ctx and returns one Trigger per rule,
// in rule-ID order. Rules that cannot evaluate (missing history) simply
// do not trigger; evaluation itself never fails.
func (e *Evaluator) Evaluate(ctx *Context) []Trigger {
	triggers := make([]Trigger, 0, len(e.defs))
	for _, def := range e.defs {
		t := Trigger{
			RuleID:   def.ID,
			Category: def.Category,
			Severity: def.Severity,
		}
		if def.Predicate(ctx) {
			t.Triggered = true
			t.Weight = def.Weight
			t.Describe = def.Describe
		}
		triggers = append(triggers, t)
	}
	return triggers
}

// Triggered filters a trigger list down to the rules that fired.
func Triggered(all []Trigger) []Trigger {
	fired := make([]Trigger, 0, len(all))
	for _, t := range all {
		if t.Triggered {
			fired = append(fired, t)
		}
	}
	return fired
}
