package rules

import (
	"math"
	"time"
)

// Amount rule thresholds.
const (
	largeValueCeiling   = 50000.0  // single transaction ceiling
	reportingThreshold  = 10000.0  // structuring target
	structuringBand     = 0.10     // within 10% under the reporting threshold
	roundAmountFloor    = 1000.0   // round-number checks start here
	cardTestingMax      = 1.0      // sub-unit probe amounts
	repeatAmountCount   = 3        // identical amounts within 24h
	averageMultiple     = 10.0     // vs user's historical average
	averageMinSamples   = 5        // history needed before AMT-006 applies
	dailyTotalCeiling   = 100000.0 // cumulative outbound per 24h
	maxDecimalPrecision = 2        // more decimal places than any real currency entry
)

var amountRules = []Definition{
	{
		ID:       "AMT-001",
		Category: CategoryAmount,
		Weight:   40,
		Severity: SeverityHigh,
		Describe: "single transaction above large-value ceiling",
		Predicate: func(c *Context) bool {
			return c.Amount >= largeValueCeiling
		},
	},
	{
		ID:       "AMT-002",
		Category: CategoryAmount,
		Weight:   35,
		Severity: SeverityHigh,
		Describe: "amount just under reporting threshold (structuring)",
		Predicate: func(c *Context) bool {
			return c.Amount < reportingThreshold &&
				c.Amount >= reportingThreshold*(1-structuringBand)
		},
	},
	{
		ID:       "AMT-003",
		Category: CategoryAmount,
		Weight:   10,
		Severity: SeverityLow,
		Describe: "suspiciously round amount",
		Predicate: func(c *Context) bool {
			return c.Amount >= roundAmountFloor && math.Mod(c.Amount, 1000) == 0
		},
	},
	{
		ID:       "AMT-004",
		Category: CategoryAmount,
		Weight:   30,
		Severity: SeverityHigh,
		Describe: "sub-unit amount typical of card testing",
		Predicate: func(c *Context) bool {
			return c.Amount > 0 && c.Amount < cardTestingMax
		},
	},
	{
		ID:       "AMT-005",
		Category: CategoryAmount,
		Weight:   20,
		Severity: SeverityMedium,
		Describe: "same exact amount repeated within 24h",
		Predicate: func(c *Context) bool {
			cutoff := c.Timestamp.Add(-24 * time.Hour)
			n := 0
			for _, h := range c.History {
				if h.Status == "failed" || h.SenderID != "" {
					continue
				}
				if h.Timestamp.After(cutoff) && h.Amount == c.Amount {
					n++
				}
			}
			return n+1 >= repeatAmountCount
		},
	},
	{
		ID:       "AMT-006",
		Category: CategoryAmount,
		Weight:   25,
		Severity: SeverityHigh,
		Describe: "amount far above user's historical average",
		Predicate: func(c *Context) bool {
			avg, samples := c.AverageAmount()
			if samples < averageMinSamples || avg <= 0 {
				return false
			}
			return c.Amount >= averageMultiple*avg
		},
	},
	{
		ID:       "AMT-007",
		Category: CategoryAmount,
		Weight:   30,
		Severity: SeverityHigh,
		Describe: "cumulative daily total above ceiling",
		Predicate: func(c *Context) bool {
			return c.DailyTotal()+c.Amount >= dailyTotalCeiling
		},
	},
	{
		ID:       "AMT-008",
		Category: CategoryAmount,
		Weight:   15,
		Severity: SeverityLow,
		Describe: "abnormal decimal precision",
		Predicate: func(c *Context) bool {
			if c.Amount <= 0 {
				return false
			}
			// Scale to cents; anything left over means sub-cent precision.
			cents := c.Amount * 100
			return math.Abs(cents-math.Round(cents)) > 1e-6
		},
	},
}
