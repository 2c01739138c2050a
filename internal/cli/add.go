package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"resumeq/internal/queue"
)

func newAddCmd() *cobra.Command {
	var (
		flagComplexity  string
		flagPriority    int
		flagMaxAttempts int
		flagMeta        []string
	)

	cmd := &cobra.Command{
		Use:   "add [prompt]",
		Short: "Append a task to the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.TrimSpace(args[0])
			if prompt == "" {
				return errors.New("prompt must not be empty")
			}

			meta, err := parseMeta(flagMeta)
			if err != nil {
				return err
			}

			store, err := newStore()
			if err != nil {
				return err
			}
			defer store.Close()

			t, err := store.Append(cmd.Context(), queue.Task{
				Prompt:      prompt,
				Complexity:  queue.ParseComplexity(flagComplexity),
				Priority:    flagPriority,
				MaxAttempts: flagMaxAttempts,
				Metadata:    meta,
			})
			if err != nil {
				return fmt.Errorf("enqueue: %w", err)
			}
			return json.NewEncoder(os.Stdout).Encode(t)
		},
	}

	cmd.Flags().StringVar(&flagComplexity, "complexity", "simple", "task complexity (simple, moderate, complex)")
	cmd.Flags().IntVar(&flagPriority, "priority", 1, "task priority (stored and surfaced; queue order stays FIFO)")
	cmd.Flags().IntVar(&flagMaxAttempts, "max-attempts", 0, "resumption attempts before the task is dropped (0 uses backoff.max_attempts)")
	cmd.Flags().StringArrayVar(&flagMeta, "meta", nil, "metadata entry as key=value (repeatable)")

	return cmd
}

func parseMeta(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	m := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid --meta %q, want key=value", p)
		}
		m[strings.TrimSpace(k)] = v
	}
	return m, nil
}
