package queue

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"resumeq/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// sqliteStore persists the queue in a SQLite file. Ordering is the rowid
// sequence, so FIFO survives process restarts just like the file driver.
type sqliteStore struct {
	db          *sql.DB
	log         logx.Logger
	maxAttempts int
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("queue.path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log, maxAttempts: cfg.MaxAttempts}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const taskColumns = `id, prompt, complexity, priority, metadata, attempts, max_attempts, next_retry_at, last_error, created_at`

func (s *sqliteStore) Load(ctx context.Context) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("load queue: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			// Same degradation contract as the file driver: a broken row
			// must not wedge the scheduler.
			s.log.Warn("skipping malformed queue row", logx.Err(err))
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *sqliteStore) Save(ctx context.Context, tasks []Task) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks`); err != nil {
		return err
	}
	for i := range tasks {
		if err := insertTask(ctx, tx, tasks[i]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) Append(ctx context.Context, t Task) (Task, error) {
	stamp(&t, s.maxAttempts)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Task{}, err
	}
	defer func() { _ = tx.Rollback() }()
	if err := insertTask(ctx, tx, t); err != nil {
		return Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return Task{}, err
	}
	return t, nil
}

func (s *sqliteStore) RemoveHead(ctx context.Context) (*Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT seq, `+taskColumns+` FROM tasks ORDER BY seq LIMIT 1`)
	var seq int64
	t, err := scanTaskWithSeq(row, &seq)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE seq = ?`, seq); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &t, nil
}

func insertTask(ctx context.Context, tx *sql.Tx, t Task) error {
	var meta any
	if len(t.Metadata) > 0 {
		b, err := json.Marshal(t.Metadata)
		if err != nil {
			return err
		}
		meta = string(b)
	}
	var retry any
	if t.NextRetryAt != nil {
		retry = t.NextRetryAt.Format(time.RFC3339Nano)
	}
	var lastErr any
	if t.LastError != "" {
		lastErr = t.LastError
	}
	id := t.ID
	if id == "" {
		id = uuid.NewString()
	}
	created := t.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO tasks(`+taskColumns+`) VALUES(?,?,?,?,?,?,?,?,?,?)`,
		id, t.Prompt, string(t.Complexity), t.Priority, meta,
		t.Attempts, t.MaxAttempts, retry, lastErr, created.Format(time.RFC3339Nano),
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(r rowScanner) (Task, error) {
	return scanInto(r, nil)
}

func scanTaskWithSeq(r rowScanner, seq *int64) (Task, error) {
	return scanInto(r, seq)
}

func scanInto(r rowScanner, seqOut *int64) (Task, error) {
	var (
		t          Task
		complexity string
		meta       sql.NullString
		retry      sql.NullString
		lastErr    sql.NullString
		created    string
	)
	dest := []any{&t.ID, &t.Prompt, &complexity, &t.Priority, &meta,
		&t.Attempts, &t.MaxAttempts, &retry, &lastErr, &created}
	if seqOut != nil {
		dest = append([]any{seqOut}, dest...)
	}
	if err := r.Scan(dest...); err != nil {
		return Task{}, err
	}

	t.Complexity = ParseComplexity(complexity)
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &t.Metadata); err != nil {
			return Task{}, fmt.Errorf("task %s: bad metadata: %w", t.ID, err)
		}
	}
	if retry.Valid && retry.String != "" {
		ts, err := time.Parse(time.RFC3339Nano, retry.String)
		if err != nil {
			return Task{}, fmt.Errorf("task %s: bad next_retry_at: %w", t.ID, err)
		}
		t.NextRetryAt = &ts
	}
	if lastErr.Valid {
		t.LastError = lastErr.String
	}
	if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
		t.CreatedAt = ts
	}
	t.applyDefaults()
	return t, nil
}
