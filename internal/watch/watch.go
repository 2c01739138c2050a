// Package watch runs the scheduler as a long-lived daemon: the decision
// cycle fires on a cron schedule and, debounced, whenever the queue file is
// written. One-shot cron invocations can coexist with a running watcher
// because every cycle still goes through the file lock.
package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"resumeq/internal/scheduler"
	"resumeq/pkg/logx"
)

type Config struct {
	// Schedule is a robfig/cron spec or descriptor, e.g. "@every 1m".
	Schedule string
	// QueuePath is watched for writes; edits trigger an immediate check.
	QueuePath string
	// Debounce collapses bursts of file events into one check.
	Debounce time.Duration
	// SystemdNotify enables sd_notify readiness and watchdog pings.
	SystemdNotify bool
}

type Service struct {
	sched *scheduler.Service
	cfg   Config
	log   logx.Logger
	out   io.Writer

	running atomic.Bool
}

func New(sched *scheduler.Service, cfg Config, out io.Writer, log logx.Logger) *Service {
	if cfg.Debounce <= 0 {
		cfg.Debounce = 2 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{sched: sched, cfg: cfg, log: log, out: out}
}

// Run blocks until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(s.cfg.Schedule, func() { s.tick(ctx) }); err != nil {
		return fmt.Errorf("watch schedule %q: %w", s.cfg.Schedule, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("queue watcher: %w", err)
	}
	defer watcher.Close()
	// Watch the directory: editors and the store's atomic rename both
	// replace the file, which drops a watch placed on the file itself.
	if err := watcher.Add(filepath.Dir(s.cfg.QueuePath)); err != nil {
		return fmt.Errorf("watch queue dir: %w", err)
	}

	c.Start()
	defer c.Stop()

	var watchdog <-chan time.Time
	if s.cfg.SystemdNotify {
		_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
		if interval, err := daemon.SdWatchdogEnabled(false); err == nil && interval > 0 {
			t := time.NewTicker(interval / 2)
			defer t.Stop()
			watchdog = t.C
		}
	}

	s.log.Info("watch mode started",
		logx.String("schedule", s.cfg.Schedule),
		logx.String("queue", s.cfg.QueuePath),
		logx.Duration("debounce", s.cfg.Debounce))

	debounce := time.NewTimer(0)
	if !debounce.Stop() {
		<-debounce.C
	}

	// First check right away rather than waiting a full schedule period.
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			if s.cfg.SystemdNotify {
				_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
			}
			s.log.Info("watch mode stopping")
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Name != s.cfg.QueuePath {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			debounce.Reset(s.cfg.Debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.log.Warn("queue watcher error", logx.Err(err))

		case <-debounce.C:
			s.log.Debug("queue file changed, checking")
			s.tick(ctx)

		case <-watchdog:
			_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
		}
	}
}

// tick runs one decision cycle, skipping if one is already in flight in this
// process (cron and fsnotify can fire together).
func (s *Service) tick(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Debug("check already in flight, skipping")
		return
	}
	defer s.running.Store(false)

	d := s.sched.Check(ctx)
	if !d.Emits() {
		return
	}
	enc := json.NewEncoder(s.out)
	if err := enc.Encode(d); err != nil {
		s.log.Error("failed to write decision", logx.Err(err))
	}
}
