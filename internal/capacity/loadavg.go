package capacity

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"resumeq/pkg/logx"
)

// LoadOK compares the 1-minute load average, normalized by CPU count,
// against the configured threshold. It returns the sampled value for
// logging alongside the verdict.
//
// On hosts without /proc (or on read failure) the gate fails open with a
// warning: load is a secondary guard behind the concurrency-count gate.
func (m *Monitor) LoadOK() (bool, float64) {
	load, err := readLoad1(m.loadavgPath)
	if err != nil {
		m.log.Warn("load sample unavailable, load gate open", logx.Err(err))
		return true, 0
	}

	normalized := load / float64(runtime.NumCPU())
	return normalized < m.cfg.LoadThreshold, normalized
}

// readLoad1 parses the first field of a /proc/loadavg-style file.
func readLoad1(path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return 0, fmt.Errorf("loadavg %q: empty", path)
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, fmt.Errorf("loadavg %q: %w", path, err)
	}
	return v, nil
}
