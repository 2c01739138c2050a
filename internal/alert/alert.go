// Package alert delivers terminal-failure notifications.
//
// Sinks are fire-and-forget: a sink failure is logged and never propagates
// into the scheduler's decision path.
package alert

import (
	"context"
	"errors"
	"strings"

	"resumeq/pkg/logx"
)

type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Sink receives a severity-tagged message when a task exhausts its attempt
// budget.
type Sink interface {
	Send(ctx context.Context, sev Severity, msg string) error
}

// Config selects and configures the sink driver.
type Config struct {
	Driver        string
	Command       []string
	Token         string
	ChatID        int64
	RatePerMinute int
}

// Open builds the configured sink. The "log" driver (also the default) just
// writes an error-level log entry, which is enough for cron-monitored hosts.
func Open(cfg Config, log logx.Logger) (Sink, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "log", "none":
		return logSink{log: log}, nil
	case "command":
		return newCommandSink(cfg, log)
	case "telegram":
		return newTelegramSink(cfg, log)
	default:
		return nil, errors.New("unknown alert driver: " + cfg.Driver)
	}
}

type logSink struct{ log logx.Logger }

func (s logSink) Send(_ context.Context, sev Severity, msg string) error {
	s.log.Error("task alert", logx.String("severity", string(sev)), logx.String("alert", msg))
	return nil
}
