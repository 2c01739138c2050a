// Package scheduler orchestrates one decision cycle: acquire the lock, load
// the queue, check capacity, pick a task and model tier, emit a
// recommendation, release the lock.
//
// The service is single-threaded and short-lived per invocation; overlap
// between invocations is resolved entirely by the file lock.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"resumeq/internal/alert"
	"resumeq/internal/backoff"
	"resumeq/internal/flock"
	"resumeq/internal/model"
	"resumeq/internal/queue"
	"resumeq/pkg/logx"
)

// ErrBusy is returned by queue-mutating operations when another decision
// cycle holds the lock. Callers should retry on the next tick.
var ErrBusy = errors.New("another scheduler cycle is running")

// Probe answers the capacity questions. *capacity.Monitor is the production
// implementation; tests substitute fakes.
type Probe interface {
	ActiveSessions(ctx context.Context) int
	LoadOK() (bool, float64)
	MainLaneQuiet(ctx context.Context) bool
}

// Config is the immutable policy surface of the scheduler core.
type Config struct {
	ConcurrencyLimit int
	Tiers            model.Tiers
}

type Service struct {
	store  queue.Store
	lock   *flock.Lock
	probe  Probe
	policy backoff.Policy
	sink   alert.Sink
	cfg    Config
	log    logx.Logger

	now func() time.Time
}

func New(store queue.Store, lock *flock.Lock, probe Probe, policy backoff.Policy, sink alert.Sink, cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		store:  store,
		lock:   lock,
		probe:  probe,
		policy: policy,
		sink:   sink,
		cfg:    cfg,
		log:    log,
		now:    time.Now,
	}
}

// Check runs one decision cycle. It never mutates the queue.
func (s *Service) Check(ctx context.Context) Decision {
	ok, err := s.lock.Acquire()
	if err != nil {
		s.log.Error("lock acquisition failed, skipping tick", logx.Err(err))
		return Decision{Status: StatusSkipped}
	}
	if !ok {
		s.log.Debug("lock held elsewhere, skipping tick")
		return Decision{Status: StatusSkipped}
	}
	// Release must happen on every path out of the decision, including a
	// panic in a probe: a wedged lock would stop scheduling for a full TTL.
	defer s.lock.Release()

	ready := s.readyTasks(ctx)
	if len(ready) == 0 {
		s.log.Info("no ready tasks")
		return Decision{Status: StatusEmpty}
	}
	pending := len(ready)

	if ok, load := s.probe.LoadOK(); !ok {
		active := s.probe.ActiveSessions(ctx)
		s.log.Info("deferring: host load above threshold",
			logx.Float64("load", load), logx.Int("pending", pending))
		return Decision{Status: StatusDeferred, Reason: ReasonHighLoad, PendingCount: pending, ActiveSessions: &active}
	}

	active := s.probe.ActiveSessions(ctx)
	if active >= s.cfg.ConcurrencyLimit {
		s.log.Info("deferring: background session limit reached",
			logx.Int("active", active), logx.Int("limit", s.cfg.ConcurrencyLimit), logx.Int("pending", pending))
		return Decision{Status: StatusDeferred, Reason: ReasonConcurrencyLimit, PendingCount: pending, ActiveSessions: &active}
	}

	head := ready[0]
	// The quiet probe guards only the moderate->premium escalation; don't
	// pay for it otherwise.
	quiet := false
	if head.Complexity == queue.Moderate {
		quiet = s.probe.MainLaneQuiet(ctx)
	}
	tier := model.SelectTier(s.cfg.Tiers, head.Complexity, quiet)

	s.log.Info("recommending task resumption",
		logx.String("task", head.ID),
		logx.String("complexity", string(head.Complexity)),
		logx.String("model", tier),
		logx.Int("attempts", head.Attempts),
		logx.Int("pending", pending))
	return Decision{Status: StatusReady, Recommendation: recommend(head, tier), PendingCount: pending}
}

// readyTasks loads the queue and filters to tasks eligible for admission.
// Load problems degrade to an empty queue; unusable tasks are skipped in
// place, never removed.
func (s *Service) readyTasks(ctx context.Context) []queue.Task {
	tasks, err := s.store.Load(ctx)
	if err != nil {
		s.log.Warn("queue load failed, treating as empty", logx.Err(err))
		return nil
	}

	now := s.now()
	ready := make([]queue.Task, 0, len(tasks))
	for _, t := range tasks {
		if !t.Usable() {
			s.log.Warn("skipping task without a usable prompt", logx.String("task", t.ID))
			continue
		}
		if t.Ready(now) {
			ready = append(ready, t)
		}
	}
	return ready
}

// Complete removes the head task after the caller confirmed a successful
// resumption. Idempotent on an empty queue.
func (s *Service) Complete(ctx context.Context) (*queue.Task, error) {
	ok, err := s.lock.Acquire()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrBusy
	}
	defer s.lock.Release()

	t, err := s.store.RemoveHead(ctx)
	if err != nil {
		return nil, fmt.Errorf("remove head: %w", err)
	}
	if t == nil {
		s.log.Info("complete on empty queue, nothing to do")
		return nil, nil
	}
	s.log.Info("task completed and removed", logx.String("task", t.ID))
	return t, nil
}

// Fail routes a reported resumption failure through the retry engine.
//
// The target is the first ready task — the same one Check recommended. It is
// either rescheduled with a backoff hold, or, when its attempt budget is
// exhausted, removed with exactly one terminal alert. The second return
// reports the terminal case.
func (s *Service) Fail(ctx context.Context, errMsg string) (*queue.Task, bool, error) {
	ok, err := s.lock.Acquire()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, ErrBusy
	}
	defer s.lock.Release()

	tasks, err := s.store.Load(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("load queue: %w", err)
	}

	now := s.now()
	idx := -1
	for i, t := range tasks {
		if t.Usable() && t.Ready(now) {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.log.Warn("failure reported but no ready task exists")
		return nil, false, nil
	}

	target := tasks[idx]
	updated := s.policy.RecordFailure(target, errMsg, now)
	if updated == nil {
		// Terminal: the task leaves the queue, so this path runs exactly
		// once per task.
		tasks = append(tasks[:idx], tasks[idx+1:]...)
		if err := s.store.Save(ctx, tasks); err != nil {
			return nil, false, fmt.Errorf("save queue: %w", err)
		}
		s.log.Error("task permanently failed, removed from queue",
			logx.String("task", target.ID),
			logx.Int("attempts", target.Attempts+1),
			logx.String("err", errMsg))
		msg := fmt.Sprintf("task %s permanently failed after %d attempts: %s (prompt: %s)",
			target.ID, target.MaxAttempts, errMsg, truncatePrompt(target.Prompt))
		if serr := s.sink.Send(ctx, alert.SeverityCritical, msg); serr != nil {
			s.log.Error("terminal alert delivery failed", logx.Err(serr))
		}
		target.Attempts++
		target.LastError = errMsg
		return &target, true, nil
	}

	tasks[idx] = *updated
	if err := s.store.Save(ctx, tasks); err != nil {
		return nil, false, fmt.Errorf("save queue: %w", err)
	}
	s.log.Info("task rescheduled with backoff",
		logx.String("task", updated.ID),
		logx.Int("attempts", updated.Attempts),
		logx.Time("next_retry_at", *updated.NextRetryAt))
	return updated, false, nil
}

func truncatePrompt(p string) string {
	const maxN = 120
	if len(p) <= maxN {
		return p
	}
	// Back up to a rune boundary so the cut never splits a multi-byte rune.
	cut := maxN - 3
	for cut > 0 && !utf8.RuneStart(p[cut]) {
		cut--
	}
	return p[:cut] + "..."
}
