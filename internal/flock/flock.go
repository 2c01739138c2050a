// Package flock implements the scheduler's mutual-exclusion file lock.
//
// The scheduler is fired by an external periodic trigger with no supervisor,
// so a crashed holder must never stop scheduling permanently: a lock older
// than its TTL is treated as stale and reclaimed by the next invocation.
package flock

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"resumeq/pkg/logx"
)

// record is what the lock file contains. Human-inspectable on purpose.
type record struct {
	PID        int       `json:"pid"`
	Host       string    `json:"host"`
	AcquiredAt time.Time `json:"acquiredAt"`
}

// Lock is an advisory, non-blocking filesystem lock with TTL staleness.
type Lock struct {
	path string
	ttl  time.Duration
	log  logx.Logger
	now  func() time.Time

	held bool
}

func New(path string, ttl time.Duration, log logx.Logger) *Lock {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Lock{path: path, ttl: ttl, log: log, now: time.Now}
}

// Acquire attempts to take the lock without blocking.
//
// It returns false when a non-stale lock is held elsewhere — that is a normal
// "skip this tick" signal, not an error. A stale lock is deleted and
// acquisition retried once; losing that retry race also returns false.
func (l *Lock) Acquire() (bool, error) {
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := l.tryCreate()
		if err != nil {
			return false, err
		}
		if ok {
			l.held = true
			return true, nil
		}

		stale, err := l.isStale()
		if err != nil {
			return false, err
		}
		if !stale {
			return false, nil
		}
		l.log.Warn("reclaiming stale scheduler lock", logx.String("path", l.path), logx.Duration("ttl", l.ttl))
		if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return false, fmt.Errorf("remove stale lock: %w", err)
		}
	}
	return false, nil
}

func (l *Lock) tryCreate() (bool, error) {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("create lock: %w", err)
	}
	defer f.Close()

	host, _ := os.Hostname()
	rec := record{PID: os.Getpid(), Host: host, AcquiredAt: l.now().UTC()}
	if err := json.NewEncoder(f).Encode(rec); err != nil {
		_ = os.Remove(l.path)
		return false, fmt.Errorf("write lock: %w", err)
	}
	return true, nil
}

// isStale reports whether the existing lock has outlived the TTL. An
// unreadable or corrupt lock file is treated as stale: it can only have been
// left by a crashed or interrupted holder.
func (l *Lock) isStale() (bool, error) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		// Holder released between our create attempt and now; retry.
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("read lock: %w", err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil || rec.AcquiredAt.IsZero() {
		l.log.Warn("lock file is malformed, treating as stale", logx.String("path", l.path))
		return true, nil
	}
	return l.now().Sub(rec.AcquiredAt) > l.ttl, nil
}

// Release drops the lock. Idempotent, and a no-op when this process never
// acquired it.
func (l *Lock) Release() {
	if !l.held {
		return
	}
	l.held = false
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		l.log.Error("failed to release scheduler lock", logx.String("path", l.path), logx.Err(err))
	}
}
