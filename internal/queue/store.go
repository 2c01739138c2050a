package queue

import (
	"context"
	"errors"
	"strings"
	"time"

	"resumeq/pkg/logx"
)

// Store is the durable ordered task collection. It is pure data access: no
// admission policy, no retry policy.
//
// Load never fails on a missing backing store (empty queue) and treats
// malformed data as "empty plus a logged warning" — a corrupt queue must not
// wedge the scheduler.
type Store interface {
	Load(ctx context.Context) ([]Task, error)
	Save(ctx context.Context, tasks []Task) error
	// Append normalizes and persists a new task, assigning an ID and
	// creation time when absent, and returns the stored form.
	Append(ctx context.Context, t Task) (Task, error)
	// RemoveHead removes and returns the first task; nil on an empty queue.
	RemoveHead(ctx context.Context) (*Task, error)
	Close() error
}

// Config configures queue persistence.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	// MaxAttempts is the attempt budget stamped onto appended tasks that
	// don't declare their own. 0 means the built-in default.
	MaxAttempts int
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown queue driver: " + cfg.Driver)
	}
}
