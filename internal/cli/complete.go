package cli

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

func newCompleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete",
		Short: "Remove the head task after a confirmed successful resumption",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sched, store, err := newService()
			if err != nil {
				return err
			}
			defer store.Close()

			t, err := sched.Complete(cmd.Context())
			if err != nil {
				return err
			}
			if t == nil {
				// Idempotent: completing an empty queue is a no-op.
				return nil
			}
			return json.NewEncoder(os.Stdout).Encode(t)
		},
	}
}
