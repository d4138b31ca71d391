package rules

import "time"

// Velocity rule thresholds.
const (
	burstWindowMax     = 5                // prior txs in 1 minute before the burst rule fires
	minTxGap           = 2 * time.Second  // consecutive transactions closer than this are suspect
	dailyCountCeiling  = 50               // completed txs per rolling 24h
	rateSpikeMultiple  = 4.0              // last-hour rate vs historical hourly average
	failedClusterCount = 3                // failed attempts in the cluster window
	failedClusterSpan  = 10 * time.Minute
)

var velocityRules = []Definition{
	{
		ID:       "VEL-001",
		Category: CategoryVelocity,
		Weight:   30,
		Severity: SeverityHigh,
		Describe: "burst of transactions within one minute",
		Predicate: func(c *Context) bool {
			// The current transaction is the (n+1)th in the window.
			return c.CompletedInWindow(time.Minute) >= burstWindowMax
		},
	},
	{
		ID:       "VEL-002",
		Category: CategoryVelocity,
		Weight:   20,
		Severity: SeverityMedium,
		Describe: "consecutive transactions below minimum gap",
		Predicate: func(c *Context) bool {
			last, ok := c.LastOutgoing()
			if !ok {
				return false
			}
			gap := c.Timestamp.Sub(last.Timestamp)
			return gap >= 0 && gap < minTxGap
		},
	},
	{
		ID:       "VEL-003",
		Category: CategoryVelocity,
		Weight:   20,
		Severity: SeverityMedium,
		Describe: "daily transaction count above ceiling",
		Predicate: func(c *Context) bool {
			return c.CompletedInWindow(24*time.Hour) >= dailyCountCeiling
		},
	},
	{
		ID:       "VEL-004",
		Category: CategoryVelocity,
		Weight:   25,
		Severity: SeverityHigh,
		Describe: "current rate far above historical average",
		Predicate: func(c *Context) bool {
			total := c.CompletedInWindow(30 * 24 * time.Hour)
			if total < 10 {
				return false // not enough history to establish a baseline
			}
			hourlyAvg := float64(total) / (30 * 24)
			lastHour := float64(c.CompletedInWindow(time.Hour) + 1)
			return hourlyAvg > 0 && lastHour >= rateSpikeMultiple*hourlyAvg && lastHour >= 3
		},
	},
	{
		ID:       "VEL-005",
		Category: CategoryVelocity,
		Weight:   25,
		Severity: SeverityHigh,
		Describe: "clustered failed attempts preceding transaction",
		Predicate: func(c *Context) bool {
			return c.FailedInWindow(failedClusterSpan) >= failedClusterCount
		},
	},
}
