package scheduler

import "resumeq/internal/queue"

// Status is the outcome of one decision cycle.
type Status string

const (
	// StatusReady carries a resumption recommendation.
	StatusReady Status = "READY"
	// StatusDeferred means capacity is unavailable; the queue is untouched.
	StatusDeferred Status = "DEFERRED"
	// StatusEmpty means no ready task exists. Log-only, no JSON output.
	StatusEmpty Status = "EMPTY"
	// StatusSkipped means another decision cycle holds the lock. Not an
	// error, just a skipped tick with no output.
	StatusSkipped Status = "SKIPPED"
)

type Reason string

const (
	ReasonHighLoad         Reason = "high_load"
	ReasonConcurrencyLimit Reason = "concurrency_limit"
)

// Recommendation is the payload of a READY decision. The task itself stays
// at the head of the queue until the caller confirms the resumption.
type Recommendation struct {
	Model       string            `json:"model"`
	Prompt      string            `json:"prompt"`
	Complexity  queue.Complexity  `json:"complexity"`
	Metadata    map[string]string `json:"metadata"`
	Priority    int               `json:"priority"`
	Attempts    int               `json:"attempts"`
	MaxAttempts int               `json:"maxAttempts"`
	LastError   *string           `json:"lastError"`
}

// Decision is the single JSON object a decide invocation writes to stdout.
// It is the entire caller-visible contract.
type Decision struct {
	Status         Status          `json:"status"`
	Recommendation *Recommendation `json:"recommendation,omitempty"`
	Reason         Reason          `json:"reason,omitempty"`
	PendingCount   int             `json:"pending_count"`
	ActiveSessions *int            `json:"active_sessions,omitempty"`
}

// Emits reports whether this decision produces JSON on stdout.
func (d Decision) Emits() bool {
	return d.Status == StatusReady || d.Status == StatusDeferred
}

func recommend(t queue.Task, model string) *Recommendation {
	meta := t.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	var lastErr *string
	if t.LastError != "" {
		e := t.LastError
		lastErr = &e
	}
	return &Recommendation{
		Model:       model,
		Prompt:      t.Prompt,
		Complexity:  t.Complexity,
		Metadata:    meta,
		Priority:    t.Priority,
		Attempts:    t.Attempts,
		MaxAttempts: t.MaxAttempts,
		LastError:   lastErr,
	}
}
