package queue

import (
	"encoding/json"
	"strings"
	"time"
)

// Complexity is the task's declared size class. It drives model tier
// selection only; it never affects queue ordering.
type Complexity string

const (
	Simple   Complexity = "simple"
	Moderate Complexity = "moderate"
	Complex  Complexity = "complex"
)

// ParseComplexity maps arbitrary input to a known complexity.
// Unrecognized values fall back to Simple (the cheapest tier is always safe).
func ParseComplexity(s string) Complexity {
	switch Complexity(strings.ToLower(strings.TrimSpace(s))) {
	case Moderate:
		return Moderate
	case Complex:
		return Complex
	default:
		return Simple
	}
}

// Task is a deferred unit of agent work waiting to be resumed.
type Task struct {
	ID          string            `json:"id,omitempty"`
	Prompt      string            `json:"prompt"`
	Complexity  Complexity        `json:"complexity,omitempty"`
	Priority    int               `json:"priority"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Attempts    int               `json:"attempts"`
	MaxAttempts int               `json:"maxAttempts,omitempty"`
	NextRetryAt *time.Time        `json:"nextRetryAt,omitempty"`
	LastError   string            `json:"lastError,omitempty"`
	CreatedAt   time.Time         `json:"createdAt,omitempty"`
}

// taskWire accepts the legacy field aliases for the prompt. Older producers
// wrote "description" or "task"; the first non-empty alias wins and only the
// canonical "prompt" is ever written back.
type taskWire struct {
	ID          string            `json:"id"`
	Prompt      string            `json:"prompt"`
	Description string            `json:"description"`
	TaskField   string            `json:"task"`
	Complexity  string            `json:"complexity"`
	Priority    *int              `json:"priority"`
	Metadata    map[string]string `json:"metadata"`
	Attempts    int               `json:"attempts"`
	MaxAttempts int               `json:"maxAttempts"`
	NextRetryAt *time.Time        `json:"nextRetryAt"`
	LastError   string            `json:"lastError"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// UnmarshalJSON normalizes a task at ingestion: alias resolution, complexity
// parsing, and defaults all happen here, once, not on every read.
func (t *Task) UnmarshalJSON(b []byte) error {
	var w taskWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	// Priority is a pointer on the wire so an explicit 0 is distinguishable
	// from an absent field (default 1).
	priority := 1
	if w.Priority != nil {
		priority = *w.Priority
	}
	*t = Task{
		ID:          w.ID,
		Prompt:      firstNonEmpty(w.Prompt, w.Description, w.TaskField),
		Complexity:  ParseComplexity(w.Complexity),
		Priority:    priority,
		Metadata:    w.Metadata,
		Attempts:    w.Attempts,
		MaxAttempts: w.MaxAttempts,
		NextRetryAt: w.NextRetryAt,
		LastError:   w.LastError,
		CreatedAt:   w.CreatedAt,
	}
	t.applyDefaults()
	return nil
}

func (t *Task) applyDefaults() {
	if t.Complexity == "" {
		t.Complexity = Simple
	}
	if t.MaxAttempts <= 0 {
		t.MaxAttempts = 3
	}
}

// Ready reports whether the task is eligible for resumption now: no retry
// hold, or a hold that has already elapsed.
func (t Task) Ready(now time.Time) bool {
	return t.NextRetryAt == nil || !t.NextRetryAt.After(now)
}

// Usable reports whether the task carries a usable prompt after alias
// resolution. Unusable tasks are skipped for admission, never removed and
// never crashed on.
func (t Task) Usable() bool {
	return strings.TrimSpace(t.Prompt) != ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
