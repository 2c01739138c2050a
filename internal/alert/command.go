package alert

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"resumeq/pkg/logx"
)

// commandSink execs a configured notifier command with the severity and
// message appended as the final two arguments. Output is discarded; the
// command's exit status is the only feedback.
type commandSink struct {
	argv []string
	log  logx.Logger
}

func newCommandSink(cfg Config, log logx.Logger) (Sink, error) {
	if len(cfg.Command) == 0 {
		return nil, errors.New("alert.command is required for command driver")
	}
	return &commandSink{argv: cfg.Command, log: log}, nil
}

func (s *commandSink) Send(ctx context.Context, sev Severity, msg string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	args := append(append([]string(nil), s.argv[1:]...), string(sev), msg)
	cmd := exec.CommandContext(ctx, s.argv[0], args...)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("alert command %q: %w", s.argv[0], err)
	}
	s.log.Debug("alert command delivered", logx.String("severity", string(sev)))
	return nil
}
