package cli

import "testing"

func TestParseMeta(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		pairs   []string
		want    map[string]string
		wantErr bool
	}{
		{name: "empty", pairs: nil, want: nil},
		{name: "single pair", pairs: []string{"repo=infra"}, want: map[string]string{"repo": "infra"}},
		{
			name:  "value with equals",
			pairs: []string{"cmd=make build=fast"},
			want:  map[string]string{"cmd": "make build=fast"},
		},
		{
			name:  "later pair wins",
			pairs: []string{"env=dev", "env=prod"},
			want:  map[string]string{"env": "prod"},
		},
		{name: "missing separator", pairs: []string{"justakey"}, wantErr: true},
		{name: "blank key", pairs: []string{"=value"}, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseMeta(tt.pairs)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseMeta(%v) = %v, want error", tt.pairs, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseMeta(%v): %v", tt.pairs, err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("parseMeta(%v) = %v, want %v", tt.pairs, got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Fatalf("meta[%q] = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}
