package config

// File is the raw on-disk configuration.
//
// The file may be JSON or YAML (YAML is coerced to JSON and decoded with the
// same strict decoder). All durations are Go duration strings (e.g. "60s",
// "5m"). Every field is optional; zero values fall back to the defaults
// documented on Settings.
type File struct {
	Queue    QueueConfig    `json:"queue"`
	Lock     LockConfig     `json:"lock"`
	Capacity CapacityConfig `json:"capacity"`
	Backoff  BackoffConfig  `json:"backoff"`
	Models   ModelsConfig   `json:"models"`
	Alert    AlertConfig    `json:"alert,omitempty"`
	Logging  LoggingConfig  `json:"logging"`
	Watch    WatchConfig    `json:"watch,omitempty"`
}

// QueueConfig selects the queue persistence backend.
//
// Driver values:
//   - "file" (default): ordered JSON array, human-inspectable and hand-editable
//   - "sqlite": SQLite database file
type QueueConfig struct {
	Driver string `json:"driver,omitempty"`
	Path   string `json:"path,omitempty"`
	// BusyTimeout is sqlite-only; "0s" keeps the driver default.
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type LockConfig struct {
	Path string `json:"path,omitempty"`
	// TTL after which a held lock is considered stale and reclaimed.
	TTL string `json:"ttl,omitempty"`
}

// CapacityConfig controls admission probing.
//
// SessionListCommand must print one session name per line;
// ActivityCommand must print the main lane's last-activity unix timestamp.
// Both default to tmux invocations.
type CapacityConfig struct {
	SessionListCommand []string `json:"session_list_command,omitempty"`
	ActivityCommand    []string `json:"activity_command,omitempty"`
	BackgroundPrefix   string   `json:"background_prefix,omitempty"`
	MainSession        string   `json:"main_session,omitempty"`
	// ConcurrencyLimit is a pointer so an explicit 0 ("no background work")
	// is distinguishable from unset (default 3).
	ConcurrencyLimit *int    `json:"concurrency_limit,omitempty"`
	LoadThreshold    float64 `json:"load_threshold,omitempty"`
	QuietWindow      string  `json:"quiet_window,omitempty"`
	ProbeTimeout     string  `json:"probe_timeout,omitempty"`
	// FailClosed makes a failing session probe count as "capacity full"
	// instead of the default "capacity empty". The quiet-lane probe always
	// fails closed regardless; only basic admission is configurable.
	FailClosed bool `json:"fail_closed,omitempty"`
}

type BackoffConfig struct {
	BaseDelay   string  `json:"base_delay,omitempty"`
	Multiplier  float64 `json:"multiplier,omitempty"`
	MaxAttempts int     `json:"max_attempts,omitempty"`
}

// ModelsConfig names the three resource tiers.
type ModelsConfig struct {
	Cheap   string `json:"cheap,omitempty"`
	Premium string `json:"premium,omitempty"`
	Highest string `json:"highest,omitempty"`
}

// AlertConfig controls the terminal-failure sink.
//
// Driver values:
//   - "" / "log" (default): error-level log entry only
//   - "command": run Command with severity and message appended as args
//   - "telegram": send to ChatID via the bot Token
type AlertConfig struct {
	Driver        string   `json:"driver,omitempty"`
	Command       []string `json:"command,omitempty"`
	Token         string   `json:"token,omitempty"`
	ChatID        int64    `json:"chat_id,omitempty"`
	RatePerMinute int      `json:"rate_per_minute,omitempty"`
}

type LoggingConfig struct {
	Level string `json:"level,omitempty"`
	// Console is a pointer so "omitted" (default true) is distinguishable
	// from an explicit false.
	Console *bool       `json:"console,omitempty"`
	File    LoggingFile `json:"file,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

// WatchConfig controls the optional long-running watch mode.
type WatchConfig struct {
	// Schedule is a cron spec or descriptor accepted by robfig/cron,
	// e.g. "*/2 * * * *" or "@every 1m".
	Schedule string `json:"schedule,omitempty"`
	// Debounce collapses bursts of queue-file write events into one check.
	Debounce string `json:"debounce,omitempty"`
	// SystemdNotify enables sd_notify readiness/watchdog integration.
	SystemdNotify bool `json:"systemd_notify,omitempty"`
}
