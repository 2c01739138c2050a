package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"resumeq/pkg/logx"
)

// fileStore keeps the queue as an ordered JSON array in a single file,
// human-inspectable and hand-editable.
//
// Writes go through a temp file plus rename so concurrent readers never
// observe a partially-written queue.
type fileStore struct {
	log         logx.Logger
	path        string
	maxAttempts int

	mu sync.Mutex
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := cfg.Path
	if path == "" {
		return nil, errors.New("queue.path is required for file driver")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create queue dir: %w", err)
		}
	}
	return &fileStore{log: log, path: path, maxAttempts: cfg.MaxAttempts}, nil
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) Load(ctx context.Context) ([]Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx)
}

func (s *fileStore) loadLocked(_ context.Context) ([]Task, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		// Lazily initialize an empty store.
		if werr := s.saveLocked(nil); werr != nil {
			return nil, werr
		}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read queue: %w", err)
	}

	var tasks []Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		// A corrupt queue degrades to empty; the original file is left in
		// place until the next successful save.
		s.log.Warn("queue file is malformed, treating as empty", logx.String("path", s.path), logx.Err(err))
		return nil, nil
	}
	return tasks, nil
}

func (s *fileStore) Save(ctx context.Context, tasks []Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = ctx
	return s.saveLocked(tasks)
}

func (s *fileStore) saveLocked(tasks []Task) error {
	if tasks == nil {
		tasks = []Task{}
	}
	data, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return fmt.Errorf("encode queue: %w", err)
	}
	data = append(data, '\n')

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write queue: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace queue: %w", err)
	}
	return nil
}

func (s *fileStore) Append(ctx context.Context, t Task) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks, err := s.loadLocked(ctx)
	if err != nil {
		return Task{}, err
	}
	stamp(&t, s.maxAttempts)
	tasks = append(tasks, t)
	if err := s.saveLocked(tasks); err != nil {
		return Task{}, err
	}
	return t, nil
}

func (s *fileStore) RemoveHead(ctx context.Context) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks, err := s.loadLocked(ctx)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, nil
	}
	head := tasks[0]
	if err := s.saveLocked(tasks[1:]); err != nil {
		return nil, err
	}
	return &head, nil
}

// stamp fills producer-side fields on a freshly enqueued task. maxAttempts
// is the store's configured attempt budget for tasks that don't set one.
func stamp(t *Task, maxAttempts int) {
	if t.MaxAttempts <= 0 && maxAttempts > 0 {
		t.MaxAttempts = maxAttempts
	}
	t.applyDefaults()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
}
