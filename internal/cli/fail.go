package cli

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"resumeq/internal/queue"
)

// failResult is what `fail` prints: the task's post-failure state and
// whether it was terminal.
type failResult struct {
	Status string      `json:"status"` // "RESCHEDULED" or "TERMINAL"
	Task   *queue.Task `json:"task"`
}

func newFailCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fail [message]",
		Short: "Report a failed resumption of the recommended task",
		Long: "Routes the head ready task through the retry engine: the task is\n" +
			"rescheduled with an exponential backoff hold, or removed (with a\n" +
			"terminal alert) once its attempt budget is exhausted.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg := "resumption failed"
			if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
				msg = args[0]
			}

			sched, store, err := newService()
			if err != nil {
				return err
			}
			defer store.Close()

			t, terminal, err := sched.Fail(cmd.Context(), msg)
			if err != nil {
				return err
			}
			if t == nil {
				return nil
			}
			res := failResult{Status: "RESCHEDULED", Task: t}
			if terminal {
				res.Status = "TERMINAL"
			}
			return json.NewEncoder(os.Stdout).Encode(res)
		},
	}
}
