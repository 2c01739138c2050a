package cli

import (
	"os"

	"github.com/spf13/cobra"

	"resumeq/internal/watch"
)

func newWatchCmd() *cobra.Command {
	var (
		flagSchedule string
		flagNotify   bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the scheduler as a daemon (cron schedule + queue-file watch)",
		Long: "Keeps deciding on the configured schedule and whenever the queue\n" +
			"file changes. Each cycle still takes the file lock, so one-shot\n" +
			"cron invocations can run alongside a watcher.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sched, store, err := newService()
			if err != nil {
				return err
			}
			defer store.Close()

			schedule := settings.WatchSchedule
			if flagSchedule != "" {
				schedule = flagSchedule
			}
			svc := watch.New(sched, watch.Config{
				Schedule:      schedule,
				QueuePath:     settings.QueuePath,
				Debounce:      settings.WatchDebounce,
				SystemdNotify: flagNotify || settings.WatchSystemdNotify,
			}, os.Stdout, log)
			return svc.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&flagSchedule, "schedule", "", "override the watch schedule (cron spec or @every duration)")
	cmd.Flags().BoolVar(&flagNotify, "systemd-notify", false, "send sd_notify readiness/watchdog pings")

	return cmd
}
