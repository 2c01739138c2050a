package cli

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"resumeq/internal/queue"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the queue as a JSON array",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := newStore()
			if err != nil {
				return err
			}
			defer store.Close()

			tasks, err := store.Load(cmd.Context())
			if err != nil {
				return err
			}
			if tasks == nil {
				tasks = []queue.Task{}
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(tasks)
		},
	}
}
