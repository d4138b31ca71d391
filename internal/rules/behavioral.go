package rules

import "time"

// Behavioral rule thresholds.
const (
	youngAccountAge     = 7 * 24 * time.Hour
	youngAccountAmount  = 10000.0
	firstTxLargeAmount  = 5000.0
	dormancyThreshold   = 90 * 24 * time.Hour
	unusualHourStart    = 0 // inclusive, UTC
	unusualHourEnd      = 5 // inclusive, UTC
	circularFlowWindow  = 10 * time.Minute
	circularBandLow     = 0.9
	circularBandHigh    = 1.1
	fanOutRecipients    = 5
	fanOutWindow        = time.Hour
	depositDrainWindow  = 5 * time.Minute
	repeatRecipientN    = 5
	drainBalanceFrac    = 0.9
	drainBalanceMinimum = 100.0
)

var behavioralRules = []Definition{
	{
		ID:       "BEH-001",
		Category: CategoryBehavioral,
		Weight:   30,
		Severity: SeverityHigh,
		Describe: "high-value transaction from a young account",
		Predicate: func(c *Context) bool {
			age := c.AccountAge()
			return age > 0 && age < youngAccountAge && c.Amount >= youngAccountAmount
		},
	},
	{
		ID:       "BEH-002",
		Category: CategoryBehavioral,
		Weight:   25,
		Severity: SeverityMedium,
		Describe: "unusually large first transaction",
		Predicate: func(c *Context) bool {
			return len(c.History) == 0 && c.Amount >= firstTxLargeAmount
		},
	},
	{
		ID:       "BEH-003",
		Category: CategoryBehavioral,
		Weight:   20,
		Severity: SeverityMedium,
		Describe: "activity after long dormancy",
		Predicate: func(c *Context) bool {
			last, ok := c.LastOutgoing()
			if !ok {
				return false
			}
			return c.Timestamp.Sub(last.Timestamp) >= dormancyThreshold
		},
	},
	{
		ID:       "BEH-004",
		Category: CategoryBehavioral,
		Weight:   10,
		Severity: SeverityLow,
		Describe: "transaction during unusual hours",
		Predicate: func(c *Context) bool {
			h := c.Timestamp.UTC().Hour()
			return h >= unusualHourStart && h <= unusualHourEnd
		},
	},
	{
		ID:       "BEH-005",
		Category: CategoryBehavioral,
		Weight:   35,
		Severity: SeverityHigh,
		Describe: "circular or pass-through transfer flow",
		Predicate: func(c *Context) bool {
			if c.RecipientID == "" {
				return false
			}
			cutoff := c.Timestamp.Add(-circularFlowWindow)
			for _, h := range c.History {
				if h.SenderID == "" || h.Status == "failed" || !h.Timestamp.After(cutoff) {
					continue
				}
				// Closing a cycle: sending back to someone who just paid us.
				if h.SenderID == c.RecipientID {
					return true
				}
				// Middle hop: forwarding a just-received amount onward.
				if c.Amount >= h.Amount*circularBandLow && c.Amount <= h.Amount*circularBandHigh {
					return true
				}
			}
			return false
		},
	},
	{
		ID:       "BEH-006",
		Category: CategoryBehavioral,
		Weight:   25,
		Severity: SeverityMedium,
		Describe: "many distinct recipients in a short window",
		Predicate: func(c *Context) bool {
			cutoff := c.Timestamp.Add(-fanOutWindow)
			seen := map[string]struct{}{}
			if c.RecipientID != "" {
				seen[c.RecipientID] = struct{}{}
			}
			for _, h := range c.History {
				if h.RecipientID == "" || h.Status == "failed" || !h.Timestamp.After(cutoff) {
					continue
				}
				seen[h.RecipientID] = struct{}{}
			}
			return len(seen) >= fanOutRecipients
		},
	},
	{
		ID:       "BEH-007",
		Category: CategoryBehavioral,
		Weight:   25,
		Severity: SeverityMedium,
		Describe: "rapid withdrawal after deposit",
		Predicate: func(c *Context) bool {
			if c.Type != "withdrawal" && c.Type != "transfer" {
				return false
			}
			cutoff := c.Timestamp.Add(-depositDrainWindow)
			for _, h := range c.History {
				if h.Type == "deposit" && h.Status != "failed" && h.Timestamp.After(cutoff) {
					return true
				}
			}
			return false
		},
	},
	{
		ID:       "BEH-008",
		Category: CategoryBehavioral,
		Weight:   15,
		Severity: SeverityLow,
		Describe: "repeated transfers to the same recipient",
		Predicate: func(c *Context) bool {
			if c.RecipientID == "" {
				return false
			}
			cutoff := c.Timestamp.Add(-24 * time.Hour)
			n := 0
			for _, h := range c.History {
				if h.Status == "failed" || !h.Timestamp.After(cutoff) {
					continue
				}
				if h.RecipientID == c.RecipientID {
					n++
				}
			}
			return n+1 >= repeatRecipientN
		},
	},
	{
		ID:       "BEH-009",
		Category: CategoryBehavioral,
		Weight:   30,
		Severity: SeverityHigh,
		Describe: "near-total balance drain",
		Predicate: func(c *Context) bool {
			if c.AvailableBalance < drainBalanceMinimum {
				return false
			}
			return c.Amount >= c.AvailableBalance*drainBalanceFrac
		},
	},
}
