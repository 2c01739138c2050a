package model

import (
	"testing"

	"resumeq/internal/queue"
)

func TestSelectTier(t *testing.T) {
	t.Parallel()
	tiers := Tiers{Cheap: "haiku", Premium: "sonnet", Highest: "opus"}

	tests := []struct {
		name      string
		c         queue.Complexity
		mainQuiet bool
		want      string
	}{
		{name: "simple while busy", c: queue.Simple, mainQuiet: false, want: "haiku"},
		{name: "simple while quiet", c: queue.Simple, mainQuiet: true, want: "haiku"},
		{name: "moderate while busy downgrades", c: queue.Moderate, mainQuiet: false, want: "haiku"},
		{name: "moderate while quiet escalates", c: queue.Moderate, mainQuiet: true, want: "sonnet"},
		{name: "complex while busy", c: queue.Complex, mainQuiet: false, want: "opus"},
		{name: "complex while quiet", c: queue.Complex, mainQuiet: true, want: "opus"},
		{name: "unknown falls back to cheapest", c: queue.Complexity("weird"), mainQuiet: true, want: "haiku"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := SelectTier(tiers, tt.c, tt.mainQuiet); got != tt.want {
				t.Fatalf("SelectTier(%q, quiet=%v) = %q, want %q", tt.c, tt.mainQuiet, got, tt.want)
			}
			// Pure: same inputs, same output.
			if again := SelectTier(tiers, tt.c, tt.mainQuiet); again != tt.want {
				t.Fatalf("SelectTier not deterministic: %q then %q", tt.want, again)
			}
		})
	}
}
