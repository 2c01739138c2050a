// Package backoff computes retry holds and the terminal transition for tasks
// whose resumption failed.
package backoff

import (
	"math"
	"time"

	"resumeq/internal/queue"
)

// Policy holds the retry constants. With the defaults (60s base, 2.0
// multiplier) the schedule is 1m, 2m, 4m. Delay is strictly increasing in
// the attempt count; there is deliberately no cap, since maxAttempts bounds
// the schedule anyway.
type Policy struct {
	Base       time.Duration
	Multiplier float64
}

func Default() Policy {
	return Policy{Base: 60 * time.Second, Multiplier: 2.0}
}

// Delay returns base * multiplier^attempts.
func (p Policy) Delay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	return time.Duration(float64(p.Base) * math.Pow(p.Multiplier, float64(attempts)))
}

// NextRetryAt returns the moment a task that just failed its (attempts+1)th
// resumption becomes ready again.
func (p Policy) NextRetryAt(now time.Time, attempts int) time.Time {
	return now.Add(p.Delay(attempts))
}

// RecordFailure applies one failed resumption to a task.
//
// It returns the rescheduled task to be written back to the queue, or nil
// when the attempt budget is exhausted — the terminal signal: remove the
// task and raise exactly one alert. The returned task always satisfies
// attempts <= maxAttempts and carries a future nextRetryAt.
func (p Policy) RecordFailure(t queue.Task, errMsg string, now time.Time) *queue.Task {
	prior := t.Attempts
	t.Attempts++
	if t.Attempts >= t.MaxAttempts {
		return nil
	}
	// The hold grows with the failure history: 1st retry waits Base,
	// 2nd waits Base*Multiplier, and so on.
	retry := p.NextRetryAt(now, prior)
	t.NextRetryAt = &retry
	t.LastError = errMsg
	return &t
}
