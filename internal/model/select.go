// Package model maps a task's declared complexity to an execution model tier.
package model

import "resumeq/internal/queue"

// Tiers names the three resource classes. Values come straight from config
// and are opaque to the scheduler.
type Tiers struct {
	Cheap   string
	Premium string
	Highest string
}

// SelectTier is the VIP-lane protection rule for model selection:
//
//   - simple work always gets the cheapest tier;
//   - moderate work may borrow the premium tier, but only while the main
//     lane is quiet — otherwise it is silently downgraded to cheapest;
//   - complex work always gets the highest tier (still subject to the
//     concurrency gate upstream).
//
// Pure function; unknown complexities have already been normalized to simple
// at ingestion, but the default arm keeps the same safe fallback anyway.
func SelectTier(t Tiers, c queue.Complexity, mainQuiet bool) string {
	switch c {
	case queue.Complex:
		return t.Highest
	case queue.Moderate:
		if mainQuiet {
			return t.Premium
		}
		return t.Cheap
	default:
		return t.Cheap
	}
}
