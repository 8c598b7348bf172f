package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleTables = `
scoring:
  weights:
    resolution: 0.50
    temporal: 0.30
    spatial: 0.15
    provider: 0.05
  high_confidence: 0.8
  mid_confidence: 0.5
regions:
  - name: brisbane_metro
    resolution: 5
    factor: 1.2
    cells: ["85be0b5bfffffff"]
backends:
  - name: au_lidar
    kind: dem
    priority: 1
    timeout: 2s
    retry_max: 2
    retry_backoff: 100ms
    breaker_threshold: 5
    recovery_timeout: 60s
    daily_budget_gb: 10
  - name: open_api
    kind: api
    priority: 2
    url: https://api.example.com/v1/elevation
    flavor: opentopodata
    timeout: 5s
    retry_max: 3
    retry_backoff: 250ms
    breaker_threshold: 5
    recovery_timeout: 60s
    requests_per_second: 10
    requests_per_day: 1000
`

func writeTables(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "resolution.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write tables: %v", err)
	}
	return path
}

func TestLoadTables_HappyPath(t *testing.T) {
	tbl, err := LoadTables(writeTables(t, sampleTables))
	if err != nil {
		t.Fatalf("LoadTables: %v", err)
	}
	if len(tbl.Backends) != 2 {
		t.Fatalf("backends=%d", len(tbl.Backends))
	}
	b := tbl.Backends[1]
	if b.Name != "open_api" || b.Kind != "api" || b.Flavor != "opentopodata" {
		t.Fatalf("unexpected backend: %+v", b)
	}
	if b.Timeout != 5*time.Second || b.RetryBackoff != 250*time.Millisecond {
		t.Fatalf("durations not parsed: %+v", b)
	}
	// defaults survive a partial override
	if len(tbl.Scoring.ResolutionSteps) == 0 {
		t.Fatalf("resolution steps lost on merge")
	}
	if tbl.Scoring.Weights.Resolution != 0.50 {
		t.Fatalf("weights=%+v", tbl.Scoring.Weights)
	}
}

func TestLoadTables_MissingFile(t *testing.T) {
	if _, err := LoadTables(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestValidate_RejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Tables)
	}{
		{"negative weight", func(tb *Tables) { tb.Scoring.Weights.Spatial = -1 }},
		{"all-zero weights", func(tb *Tables) { tb.Scoring.Weights = Weights{} }},
		{"inverted thresholds", func(tb *Tables) {
			tb.Scoring.HighConfidence = 0.4
			tb.Scoring.MidConfidence = 0.5
		}},
		{"empty backend name", func(tb *Tables) {
			tb.Backends = []BackendEntry{{Kind: "dem"}}
		}},
		{"duplicate backend", func(tb *Tables) {
			tb.Backends = []BackendEntry{
				{Name: "x", Kind: "dem"},
				{Name: "x", Kind: "dem"},
			}
		}},
		{"unknown kind", func(tb *Tables) {
			tb.Backends = []BackendEntry{{Name: "x", Kind: "ftp"}}
		}},
		{"api without url", func(tb *Tables) {
			tb.Backends = []BackendEntry{{Name: "x", Kind: "api"}}
		}},
	}
	for _, tc := range cases {
		tb := DefaultTables()
		tc.mutate(tb)
		if err := tb.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestOrderedBackends_PriorityThenName(t *testing.T) {
	tb := &Tables{Backends: []BackendEntry{
		{Name: "zeta", Kind: "dem", Priority: 1},
		{Name: "api_b", Kind: "api", URL: "u", Priority: 2},
		{Name: "alpha", Kind: "dem", Priority: 1},
	}}
	got := tb.OrderedBackends()
	want := []string{"alpha", "zeta", "api_b"}
	for i, name := range want {
		if got[i].Name != name {
			t.Fatalf("order[%d]=%s want %s", i, got[i].Name, name)
		}
	}
	// input untouched
	if tb.Backends[0].Name != "zeta" {
		t.Fatalf("OrderedBackends mutated the input")
	}
}
