package scheduler

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"resumeq/internal/alert"
	"resumeq/internal/backoff"
	"resumeq/internal/flock"
	"resumeq/internal/model"
	"resumeq/internal/queue"
	"resumeq/pkg/logx"
)

type fakeProbe struct {
	sessions int
	loadOK   bool
	load     float64
	quiet    bool
}

func (f *fakeProbe) ActiveSessions(context.Context) int { return f.sessions }
func (f *fakeProbe) LoadOK() (bool, float64)            { return f.loadOK, f.load }
func (f *fakeProbe) MainLaneQuiet(context.Context) bool { return f.quiet }

func okProbe() *fakeProbe { return &fakeProbe{loadOK: true} }

type fakeSink struct {
	mu   sync.Mutex
	sent []string
	sevs []alert.Severity
}

func (f *fakeSink) Send(_ context.Context, sev alert.Severity, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	f.sevs = append(f.sevs, sev)
	return nil
}

type testEnv struct {
	sched *Service
	store queue.Store
	sink  *fakeSink
}

func newEnv(t *testing.T, tasks []queue.Task, probe Probe) *testEnv {
	t.Helper()
	dir := t.TempDir()

	store, err := queue.Open(queue.Config{Driver: "file", Path: filepath.Join(dir, "queue.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if len(tasks) > 0 {
		if err := store.Save(context.Background(), tasks); err != nil {
			t.Fatalf("seed queue: %v", err)
		}
	}

	sink := &fakeSink{}
	lock := flock.New(filepath.Join(dir, "scheduler.lock"), time.Minute, logx.Nop())
	cfg := Config{
		ConcurrencyLimit: 3,
		Tiers:            model.Tiers{Cheap: "haiku", Premium: "sonnet", Highest: "opus"},
	}
	sched := New(store, lock, probe, backoff.Default(), sink, cfg, logx.Nop())
	return &testEnv{sched: sched, store: store, sink: sink}
}

func TestCheckReadySimpleEndToEnd(t *testing.T) {
	t.Parallel()
	env := newEnv(t, []queue.Task{
		{ID: "a", Prompt: "A", Complexity: queue.Simple, Priority: 1, MaxAttempts: 3},
	}, okProbe())
	ctx := context.Background()

	d := env.sched.Check(ctx)
	if d.Status != StatusReady {
		t.Fatalf("Status = %s, want READY", d.Status)
	}
	if d.PendingCount != 1 {
		t.Fatalf("PendingCount = %d, want 1", d.PendingCount)
	}
	rec := d.Recommendation
	if rec == nil {
		t.Fatal("missing recommendation")
	}
	if rec.Model != "haiku" {
		t.Fatalf("Model = %q, want haiku (cheapest tier for simple)", rec.Model)
	}
	if rec.Prompt != "A" || rec.Complexity != queue.Simple || rec.Attempts != 0 || rec.MaxAttempts != 3 {
		t.Fatalf("unexpected recommendation: %+v", rec)
	}
	if rec.LastError != nil {
		t.Fatalf("LastError = %v, want nil", rec.LastError)
	}
	if rec.Metadata == nil {
		t.Fatal("Metadata must be an object, not null")
	}

	// READY does not remove the task; removal is the caller's explicit act.
	tasks, _ := env.store.Load(ctx)
	if len(tasks) != 1 {
		t.Fatalf("READY mutated the queue: %d tasks", len(tasks))
	}

	// Caller confirms success.
	done, err := env.sched.Complete(ctx)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done == nil || done.Prompt != "A" {
		t.Fatalf("completed = %+v, want A", done)
	}
	tasks, _ = env.store.Load(ctx)
	if len(tasks) != 0 {
		t.Fatalf("queue not empty after complete: %+v", tasks)
	}
}

func TestCheckConcurrencyGate(t *testing.T) {
	t.Parallel()
	probe := okProbe()
	probe.sessions = 3 // at the limit
	env := newEnv(t, []queue.Task{{ID: "a", Prompt: "A", MaxAttempts: 3}}, probe)
	ctx := context.Background()

	d := env.sched.Check(ctx)
	if d.Status != StatusDeferred {
		t.Fatalf("Status = %s, want DEFERRED", d.Status)
	}
	if d.Reason != ReasonConcurrencyLimit {
		t.Fatalf("Reason = %s, want concurrency_limit", d.Reason)
	}
	if d.ActiveSessions == nil || *d.ActiveSessions != 3 {
		t.Fatalf("ActiveSessions = %v, want 3", d.ActiveSessions)
	}
	if d.PendingCount != 1 {
		t.Fatalf("PendingCount = %d, want 1", d.PendingCount)
	}

	tasks, _ := env.store.Load(ctx)
	if len(tasks) != 1 {
		t.Fatalf("DEFERRED mutated the queue: %+v", tasks)
	}
}

func TestCheckHighLoad(t *testing.T) {
	t.Parallel()
	probe := &fakeProbe{loadOK: false, load: 1.5}
	env := newEnv(t, []queue.Task{{ID: "a", Prompt: "A", MaxAttempts: 3}}, probe)

	d := env.sched.Check(context.Background())
	if d.Status != StatusDeferred || d.Reason != ReasonHighLoad {
		t.Fatalf("got %s/%s, want DEFERRED/high_load", d.Status, d.Reason)
	}
}

func TestCheckEmptyQueue(t *testing.T) {
	t.Parallel()
	env := newEnv(t, nil, okProbe())

	d := env.sched.Check(context.Background())
	if d.Status != StatusEmpty {
		t.Fatalf("Status = %s, want EMPTY", d.Status)
	}
	if d.Emits() {
		t.Fatal("empty decision must not emit JSON")
	}
}

func TestCheckBackoffHoldNotReady(t *testing.T) {
	t.Parallel()
	future := time.Now().Add(10 * time.Minute)
	env := newEnv(t, []queue.Task{
		{ID: "a", Prompt: "A", MaxAttempts: 3, Attempts: 1, NextRetryAt: &future},
	}, okProbe())

	d := env.sched.Check(context.Background())
	if d.Status != StatusEmpty {
		t.Fatalf("task under backoff hold must not be ready, got %s", d.Status)
	}
}

func TestCheckSkipsUnusablePrompt(t *testing.T) {
	t.Parallel()
	env := newEnv(t, []queue.Task{
		{ID: "bad", Prompt: "   ", MaxAttempts: 3},
		{ID: "good", Prompt: "B", MaxAttempts: 3},
	}, okProbe())
	ctx := context.Background()

	d := env.sched.Check(ctx)
	if d.Status != StatusReady {
		t.Fatalf("Status = %s, want READY", d.Status)
	}
	if d.Recommendation.Prompt != "B" {
		t.Fatalf("recommended %q, want B", d.Recommendation.Prompt)
	}

	// The unusable task is skipped, not removed.
	tasks, _ := env.store.Load(ctx)
	if len(tasks) != 2 {
		t.Fatalf("unusable task was removed: %+v", tasks)
	}
}

func TestCheckModerateTierSelection(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		quiet bool
		want  string
	}{
		{name: "main lane busy downgrades", quiet: false, want: "haiku"},
		{name: "main lane quiet escalates", quiet: true, want: "sonnet"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			probe := okProbe()
			probe.quiet = tt.quiet
			env := newEnv(t, []queue.Task{
				{ID: "m", Prompt: "M", Complexity: queue.Moderate, MaxAttempts: 3},
			}, probe)

			d := env.sched.Check(context.Background())
			if d.Status != StatusReady {
				t.Fatalf("Status = %s, want READY", d.Status)
			}
			if d.Recommendation.Model != tt.want {
				t.Fatalf("Model = %q, want %q", d.Recommendation.Model, tt.want)
			}
		})
	}
}

func TestCheckComplexAlwaysHighest(t *testing.T) {
	t.Parallel()
	probe := okProbe()
	probe.quiet = false // busy main lane does not matter for complex
	env := newEnv(t, []queue.Task{
		{ID: "c", Prompt: "C", Complexity: queue.Complex, MaxAttempts: 3},
	}, probe)

	d := env.sched.Check(context.Background())
	if d.Status != StatusReady || d.Recommendation.Model != "opus" {
		t.Fatalf("got %s/%v, want READY/opus", d.Status, d.Recommendation)
	}
}

func TestCheckSkipsWhenLockHeld(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "scheduler.lock")

	holder := flock.New(lockPath, time.Minute, logx.Nop())
	if ok, _ := holder.Acquire(); !ok {
		t.Fatal("holder acquire failed")
	}

	store, err := queue.Open(queue.Config{Driver: "file", Path: filepath.Join(dir, "queue.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	sched := New(store, flock.New(lockPath, time.Minute, logx.Nop()), okProbe(),
		backoff.Default(), &fakeSink{}, Config{ConcurrencyLimit: 3}, logx.Nop())

	d := sched.Check(context.Background())
	if d.Status != StatusSkipped {
		t.Fatalf("Status = %s, want SKIPPED", d.Status)
	}
	if d.Emits() {
		t.Fatal("skipped tick must not emit JSON")
	}
}

func TestFailReschedulesWithBackoff(t *testing.T) {
	t.Parallel()
	env := newEnv(t, []queue.Task{{ID: "a", Prompt: "A", MaxAttempts: 3}}, okProbe())
	ctx := context.Background()

	updated, terminal, err := env.sched.Fail(ctx, "rate limited")
	if err != nil {
		t.Fatalf("fail: %v", err)
	}
	if terminal {
		t.Fatal("first failure must not be terminal")
	}
	if updated.Attempts != 1 || updated.LastError != "rate limited" {
		t.Fatalf("unexpected task state: %+v", updated)
	}
	if updated.NextRetryAt == nil || !updated.NextRetryAt.After(time.Now()) {
		t.Fatalf("NextRetryAt = %v, want future", updated.NextRetryAt)
	}

	// Persisted, and held back from the next check.
	tasks, _ := env.store.Load(ctx)
	if len(tasks) != 1 || tasks[0].Attempts != 1 {
		t.Fatalf("failure not persisted: %+v", tasks)
	}
	if d := env.sched.Check(ctx); d.Status != StatusEmpty {
		t.Fatalf("rescheduled task leaked into check: %s", d.Status)
	}
	if len(env.sink.sent) != 0 {
		t.Fatalf("non-terminal failure must not alert: %v", env.sink.sent)
	}
}

func TestFailTerminalEndToEnd(t *testing.T) {
	t.Parallel()
	env := newEnv(t, []queue.Task{
		{ID: "b", Prompt: "B", Complexity: queue.Complex, Attempts: 2, MaxAttempts: 3},
	}, okProbe())
	ctx := context.Background()

	gone, terminal, err := env.sched.Fail(ctx, "crashed again")
	if err != nil {
		t.Fatalf("fail: %v", err)
	}
	if !terminal {
		t.Fatal("third failure of a 3-attempt task must be terminal")
	}
	if gone == nil || gone.Attempts != 3 {
		t.Fatalf("terminal task state = %+v", gone)
	}

	tasks, _ := env.store.Load(ctx)
	if len(tasks) != 0 {
		t.Fatalf("terminal task still queued: %+v", tasks)
	}

	// Exactly one alert, referencing the task.
	if len(env.sink.sent) != 1 {
		t.Fatalf("alert count = %d, want 1", len(env.sink.sent))
	}
	if env.sink.sevs[0] != alert.SeverityCritical {
		t.Fatalf("severity = %s, want critical", env.sink.sevs[0])
	}
	if !strings.Contains(env.sink.sent[0], "B") {
		t.Fatalf("alert does not reference the task: %q", env.sink.sent[0])
	}

	// The task no longer exists, so a second report cannot re-alert it.
	if _, _, err := env.sched.Fail(ctx, "late duplicate report"); err != nil {
		t.Fatalf("duplicate fail: %v", err)
	}
	if len(env.sink.sent) != 1 {
		t.Fatalf("terminal alert fired twice: %v", env.sink.sent)
	}
}

func TestCompleteEmptyQueueIsNoop(t *testing.T) {
	t.Parallel()
	env := newEnv(t, nil, okProbe())

	done, err := env.sched.Complete(context.Background())
	if err != nil {
		t.Fatalf("complete on empty queue errored: %v", err)
	}
	if done != nil {
		t.Fatalf("done = %+v, want nil", done)
	}
}

func TestFIFOIgnoresPriority(t *testing.T) {
	t.Parallel()
	env := newEnv(t, []queue.Task{
		{ID: "low", Prompt: "first in", Priority: 1, MaxAttempts: 3},
		{ID: "high", Prompt: "urgent", Priority: 99, MaxAttempts: 3},
	}, okProbe())

	d := env.sched.Check(context.Background())
	if d.Status != StatusReady {
		t.Fatalf("Status = %s, want READY", d.Status)
	}
	if d.Recommendation.Prompt != "first in" {
		t.Fatalf("priority reordered the queue: got %q", d.Recommendation.Prompt)
	}
	if d.Recommendation.Priority != 1 {
		t.Fatalf("Priority = %d, want 1", d.Recommendation.Priority)
	}
}

func TestCheckReleasesLock(t *testing.T) {
	t.Parallel()
	env := newEnv(t, []queue.Task{{ID: "a", Prompt: "A", MaxAttempts: 3}}, okProbe())
	ctx := context.Background()

	// Two back-to-back checks succeed only if the first released the lock.
	if d := env.sched.Check(ctx); d.Status != StatusReady {
		t.Fatalf("first check: %s", d.Status)
	}
	if d := env.sched.Check(ctx); d.Status != StatusReady {
		t.Fatalf("second check blocked by leaked lock: %s", d.Status)
	}
}

func TestTruncatePromptKeepsRunesIntact(t *testing.T) {
	t.Parallel()

	short := "nothing to cut"
	if got := truncatePrompt(short); got != short {
		t.Fatalf("short prompt mutated: %q", got)
	}

	// 2-byte runes positioned so a byte-index cut would land mid-rune.
	long := strings.Repeat("é", 100)
	got := truncatePrompt(long)
	if !utf8.ValidString(got) {
		t.Fatalf("truncated prompt is not valid UTF-8: %q", got)
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("missing ellipsis: %q", got)
	}
	if len(got) > 120 {
		t.Fatalf("len = %d, want <= 120", len(got))
	}
}

func TestZeroConcurrencyLimitAlwaysDefers(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store, err := queue.Open(queue.Config{Driver: "file", Path: filepath.Join(dir, "queue.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()
	if err := store.Save(ctx, []queue.Task{{ID: "a", Prompt: "A", MaxAttempts: 3}}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// Limit 0 means "no background work": even with zero active sessions
	// the gate stays shut.
	lock := flock.New(filepath.Join(dir, "scheduler.lock"), time.Minute, logx.Nop())
	sched := New(store, lock, okProbe(), backoff.Default(), &fakeSink{},
		Config{ConcurrencyLimit: 0, Tiers: model.Tiers{Cheap: "haiku", Premium: "sonnet", Highest: "opus"}},
		logx.Nop())

	d := sched.Check(ctx)
	if d.Status != StatusDeferred || d.Reason != ReasonConcurrencyLimit {
		t.Fatalf("Status = %s reason = %s, want DEFERRED/concurrency_limit", d.Status, d.Reason)
	}
	if d.ActiveSessions == nil || *d.ActiveSessions != 0 {
		t.Fatalf("ActiveSessions = %v, want 0", d.ActiveSessions)
	}
}
