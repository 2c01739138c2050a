package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
)

// Settings is the effective configuration after defaults and parsing.
//
// It is built once at startup and passed into components by value; nothing
// mutates it at runtime.
type Settings struct {
	QueueDriver      string
	QueuePath        string
	QueueBusyTimeout time.Duration

	LockPath string
	LockTTL  time.Duration

	SessionListCommand []string
	ActivityCommand    []string
	BackgroundPrefix   string
	MainSession        string
	ConcurrencyLimit   int
	LoadThreshold      float64
	QuietWindow        time.Duration
	ProbeTimeout       time.Duration
	CapacityFailClosed bool

	BackoffBase       time.Duration
	BackoffMultiplier float64
	MaxAttempts       int

	ModelCheap   string
	ModelPremium string
	ModelHighest string

	AlertDriver        string
	AlertCommand       []string
	AlertToken         string
	AlertChatID        int64
	AlertRatePerMinute int

	LogLevel       string
	LogConsole     bool
	LogFileEnabled bool
	LogFilePath    string

	WatchSchedule      string
	WatchDebounce      time.Duration
	WatchSystemdNotify bool
}

// Load reads, strictly decodes, and resolves the config file.
//
// A missing file is not an error: the scheduler must be runnable with zero
// setup, so defaults apply.
func Load(path string) (Settings, error) {
	var f File
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// defaults only
	case err != nil:
		return Settings{}, fmt.Errorf("read config %q: %w", path, err)
	default:
		j, cerr := coerceToJSONBytes(path, data)
		if cerr != nil {
			return Settings{}, fmt.Errorf("config %q: %w", path, cerr)
		}
		dec := json.NewDecoder(bytes.NewReader(j))
		dec.DisallowUnknownFields()
		if derr := dec.Decode(&f); derr != nil {
			return Settings{}, fmt.Errorf("config %q: %w", path, derr)
		}
	}
	return f.resolve()
}

func (f File) resolve() (Settings, error) {
	s := Settings{
		QueueDriver: strOr(f.Queue.Driver, "file"),
		QueuePath:   strOr(f.Queue.Path, "./queue.json"),

		LockPath: strOr(f.Lock.Path, "./resumeq.lock"),

		SessionListCommand: f.Capacity.SessionListCommand,
		ActivityCommand:    f.Capacity.ActivityCommand,
		BackgroundPrefix:   strOr(f.Capacity.BackgroundPrefix, "subagent"),
		MainSession:        strOr(f.Capacity.MainSession, "main"),
		ConcurrencyLimit:   intPtrOr(f.Capacity.ConcurrencyLimit, 3),
		LoadThreshold:      floatOr(f.Capacity.LoadThreshold, 0.80),
		CapacityFailClosed: f.Capacity.FailClosed,

		BackoffMultiplier: floatOr(f.Backoff.Multiplier, 2.0),
		MaxAttempts:       intOr(f.Backoff.MaxAttempts, 3),

		ModelCheap:   strOr(f.Models.Cheap, "haiku"),
		ModelPremium: strOr(f.Models.Premium, "sonnet"),
		ModelHighest: strOr(f.Models.Highest, "opus"),

		AlertDriver:        strOr(f.Alert.Driver, "log"),
		AlertCommand:       f.Alert.Command,
		AlertToken:         f.Alert.Token,
		AlertChatID:        f.Alert.ChatID,
		AlertRatePerMinute: intOr(f.Alert.RatePerMinute, 6),

		LogLevel:       strOr(f.Logging.Level, "info"),
		LogConsole:     f.Logging.Console == nil || *f.Logging.Console,
		LogFileEnabled: f.Logging.File.Enabled,
		LogFilePath:    f.Logging.File.Path,

		WatchSchedule:      strOr(f.Watch.Schedule, "@every 1m"),
		WatchSystemdNotify: f.Watch.SystemdNotify,
	}

	if len(s.SessionListCommand) == 0 {
		s.SessionListCommand = []string{"tmux", "list-sessions", "-F", "#{session_name}"}
	}
	if len(s.ActivityCommand) == 0 {
		s.ActivityCommand = []string{"tmux", "display-message", "-p", "-t", s.MainSession, "#{session_activity}"}
	}
	if s.BackoffMultiplier <= 1 {
		return Settings{}, fmt.Errorf("backoff.multiplier must be > 1, got %v", f.Backoff.Multiplier)
	}

	var err error
	if s.QueueBusyTimeout, err = parseDurationField("queue.busy_timeout", f.Queue.BusyTimeout); err != nil {
		return Settings{}, err
	}
	if s.LockTTL, err = parseDurationOrDefault("lock.ttl", f.Lock.TTL, 60*time.Second); err != nil {
		return Settings{}, err
	}
	if s.QuietWindow, err = parseDurationOrDefault("capacity.quiet_window", f.Capacity.QuietWindow, 5*time.Minute); err != nil {
		return Settings{}, err
	}
	if s.ProbeTimeout, err = parseDurationOrDefault("capacity.probe_timeout", f.Capacity.ProbeTimeout, 5*time.Second); err != nil {
		return Settings{}, err
	}
	if s.BackoffBase, err = parseDurationOrDefault("backoff.base_delay", f.Backoff.BaseDelay, 60*time.Second); err != nil {
		return Settings{}, err
	}
	if s.WatchDebounce, err = parseDurationOrDefault("watch.debounce", f.Watch.Debounce, 2*time.Second); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func strOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func intOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// intPtrOr keeps an explicit zero: nil means unset, a pointer to 0 means 0.
func intPtrOr(v *int, def int) int {
	if v == nil || *v < 0 {
		return def
	}
	return *v
}

func floatOr(v, def float64) float64 {
	if v <= 0 {
		return def
	}
	return v
}
