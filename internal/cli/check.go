package cli

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run one decision cycle and print the recommendation as JSON",
		Long: "Runs one scheduling decision: if a ready task exists and capacity\n" +
			"allows, prints a READY recommendation; if capacity is unavailable,\n" +
			"prints DEFERRED with the reason. An empty queue or a busy lock\n" +
			"prints nothing and exits 0.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error { return runCheck(cmd) },
	}
}

func runCheck(cmd *cobra.Command) error {
	sched, store, err := newService()
	if err != nil {
		return err
	}
	defer store.Close()

	d := sched.Check(cmd.Context())
	if !d.Emits() {
		return nil
	}
	return json.NewEncoder(os.Stdout).Encode(d)
}
