// Package capacity answers the two admission questions: how many background
// sessions are running next to the protected main lane, and is the host
// itself too loaded to take on more work.
//
// Fail-direction conventions are asymmetric on purpose:
//   - the session-count probe fails open by default (count 0, admit) so a
//     lister outage cannot silently freeze the queue, flippable via
//     Config.FailClosed;
//   - the quiet-lane probe always fails closed (not quiet) because it guards
//     the premium-tier grant, and handing out bigger models on missing data
//     is the one mistake this scheduler exists to prevent.
package capacity

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"resumeq/pkg/logx"
)

// Config controls probing. Commands are argv slices; both default from the
// config layer to tmux invocations, but any command satisfying the output
// contract is substitutable.
type Config struct {
	// SessionListCommand prints one session name per line.
	SessionListCommand []string
	// ActivityCommand prints the main lane's last-activity unix timestamp.
	ActivityCommand []string

	BackgroundPrefix string
	MainSession      string
	ConcurrencyLimit int
	LoadThreshold    float64
	QuietWindow      time.Duration
	ProbeTimeout     time.Duration
	FailClosed       bool
}

// Monitor runs the external probes. It holds no state between calls.
type Monitor struct {
	cfg Config
	log logx.Logger

	// Injection points for tests.
	run         runFunc
	loadavgPath string
	now         func() time.Time
}

type runFunc func(ctx context.Context, argv []string) ([]byte, error)

func New(cfg Config, log logx.Logger) *Monitor {
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Monitor{
		cfg:         cfg,
		log:         log,
		run:         runCommand,
		loadavgPath: "/proc/loadavg",
		now:         time.Now,
	}
}

func runCommand(ctx context.Context, argv []string) ([]byte, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty probe command")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	return cmd.Output()
}

// ActiveSessions counts running background sessions: names carrying the
// background prefix, excluding the always-present main session.
func (m *Monitor) ActiveSessions(ctx context.Context) int {
	out, err := m.probe(ctx, m.cfg.SessionListCommand)
	if err != nil {
		if m.cfg.FailClosed {
			m.log.Error("session probe failed, assuming capacity is full", logx.Err(err))
			return m.cfg.ConcurrencyLimit
		}
		m.log.Error("session probe failed, assuming no background sessions", logx.Err(err))
		return 0
	}

	n := 0
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		name := strings.TrimSpace(sc.Text())
		if name == "" || name == m.cfg.MainSession {
			continue
		}
		if strings.HasPrefix(name, m.cfg.BackgroundPrefix) {
			n++
		}
	}
	return n
}

// MainLaneQuiet reports whether the protected main lane has shown no
// activity within the quiet window. Any probe or parse failure means
// "not quiet".
func (m *Monitor) MainLaneQuiet(ctx context.Context) bool {
	out, err := m.probe(ctx, m.cfg.ActivityCommand)
	if err != nil {
		m.log.Warn("activity probe failed, treating main lane as busy", logx.Err(err))
		return false
	}

	raw := strings.TrimSpace(string(out))
	sec, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		m.log.Warn("activity probe returned a non-timestamp, treating main lane as busy", logx.String("output", raw))
		return false
	}
	last := time.Unix(sec, 0)
	return m.now().Sub(last) > m.cfg.QuietWindow
}

func (m *Monitor) probe(ctx context.Context, argv []string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()
	return m.run(ctx, argv)
}
