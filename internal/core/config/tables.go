package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Tables is the data-driven half of the configuration: scoring weights, step
// tables, regional boosts and the backend chain. The scoring mechanism lives
// in code; every constant it consumes lives here.
type Tables struct {
	Scoring  ScoringTables  `yaml:"scoring"`
	Regions  []RegionBoost  `yaml:"regions"`
	Backends []BackendEntry `yaml:"backends"`
}

type ScoringTables struct {
	Weights Weights `yaml:"weights"`

	// ResolutionSteps maps a resolution ceiling in metres to a score.
	// Evaluated in ascending ceiling order; first ceiling >= resolution wins.
	ResolutionSteps []Step `yaml:"resolution_steps"`
	// ResolutionFloor is the score for resolutions beyond every step.
	ResolutionFloor float64 `yaml:"resolution_floor"`

	// TemporalSteps maps a minimum survey year to a score. Evaluated in
	// descending year order; first year <= survey year wins.
	TemporalSteps []Step `yaml:"temporal_steps"`
	// TemporalFloor is the score for years older than every step,
	// TemporalUnknown the neutral score when the year is unknown.
	TemporalFloor   float64 `yaml:"temporal_floor"`
	TemporalUnknown float64 `yaml:"temporal_unknown"`

	// ProviderScores maps a provider class tag to a score.
	ProviderScores  map[string]float64 `yaml:"provider_scores"`
	ProviderDefault float64            `yaml:"provider_default"`

	// SpecificitySteps maps an area ceiling in square degrees to a score.
	SpecificitySteps []Step  `yaml:"specificity_steps"`
	SpecificityFloor float64 `yaml:"specificity_floor"`

	// Selection thresholds (§ confidence pruning).
	HighConfidence float64 `yaml:"high_confidence"`
	MidConfidence  float64 `yaml:"mid_confidence"`
}

type Weights struct {
	Resolution float64 `yaml:"resolution"`
	Temporal   float64 `yaml:"temporal"`
	Spatial    float64 `yaml:"spatial"`
	Provider   float64 `yaml:"provider"`
}

type Step struct {
	Limit float64 `yaml:"limit"`
	Score float64 `yaml:"score"`
}

// RegionBoost is a curated priority multiplier for a geographic area,
// expressed as H3 cells so point membership is an O(1) lookup. Collections
// covering a boosted area get Factor applied to their total score; within the
// area, surveys at or after MinYear get RecencyFactor on top.
type RegionBoost struct {
	Name          string   `yaml:"name"`
	Cells         []string `yaml:"cells"`
	Resolution    int      `yaml:"resolution"`
	Factor        float64  `yaml:"factor"`
	MinYear       int      `yaml:"min_year,omitempty"`
	RecencyFactor float64  `yaml:"recency_factor,omitempty"`
}

// BackendEntry configures one backend in the fallback chain. Priority is
// ascending: lower numbers are tried first.
type BackendEntry struct {
	Name     string `yaml:"name"`
	Kind     string `yaml:"kind"` // "dem" or "api"
	Priority int    `yaml:"priority"`

	URL       string `yaml:"url,omitempty"`
	APIKeyEnv string `yaml:"api_key_env,omitempty"`
	// Flavor selects the response parser for api backends.
	Flavor string `yaml:"flavor,omitempty"`

	Timeout          time.Duration `yaml:"timeout"`
	RetryMax         int           `yaml:"retry_max"`
	RetryBackoff     time.Duration `yaml:"retry_backoff"`
	BreakerThreshold int           `yaml:"breaker_threshold"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout"`

	RequestsPerSecond int     `yaml:"requests_per_second,omitempty"`
	RequestsPerDay    int     `yaml:"requests_per_day,omitempty"`
	DailyBudgetGB     float64 `yaml:"daily_budget_gb,omitempty"`
}

// LoadTables reads and validates the YAML tables file.
func LoadTables(path string) (*Tables, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tables %q: %w", path, err)
	}
	t := DefaultTables()
	if err := yaml.Unmarshal(raw, t); err != nil {
		return nil, fmt.Errorf("parse tables %q: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("tables %q: %w", path, err)
	}
	return t, nil
}

func (t *Tables) Validate() error {
	w := t.Scoring.Weights
	if w.Resolution < 0 || w.Temporal < 0 || w.Spatial < 0 || w.Provider < 0 {
		return fmt.Errorf("scoring weights must be non-negative")
	}
	if w.Resolution+w.Temporal+w.Spatial+w.Provider <= 0 {
		return fmt.Errorf("scoring weights must not all be zero")
	}
	if t.Scoring.HighConfidence < t.Scoring.MidConfidence {
		return fmt.Errorf("high_confidence %.2f below mid_confidence %.2f",
			t.Scoring.HighConfidence, t.Scoring.MidConfidence)
	}
	seen := map[string]bool{}
	for _, b := range t.Backends {
		if b.Name == "" {
			return fmt.Errorf("backend with empty name")
		}
		if seen[b.Name] {
			return fmt.Errorf("duplicate backend %q", b.Name)
		}
		seen[b.Name] = true
		switch b.Kind {
		case "dem", "api":
		default:
			return fmt.Errorf("backend %q: unknown kind %q", b.Name, b.Kind)
		}
		if b.Kind == "api" && b.URL == "" {
			return fmt.Errorf("backend %q: api backends need a url", b.Name)
		}
	}
	return nil
}

// OrderedBackends returns the backend chain sorted by ascending priority,
// name as the tiebreak so the order is stable.
func (t *Tables) OrderedBackends() []BackendEntry {
	out := make([]BackendEntry, len(t.Backends))
	copy(out, t.Backends)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// DefaultTables returns neutral defaults matching the documented scoring
// model. Deployments override them wholesale from YAML.
func DefaultTables() *Tables {
	return &Tables{
		Scoring: ScoringTables{
			Weights: Weights{Resolution: 0.50, Temporal: 0.30, Spatial: 0.15, Provider: 0.05},
			ResolutionSteps: []Step{
				{Limit: 0.5, Score: 1.0},
				{Limit: 1.0, Score: 0.9},
				{Limit: 2.0, Score: 0.7},
				{Limit: 5.0, Score: 0.6},
				{Limit: 10.0, Score: 0.4},
				{Limit: 30.0, Score: 0.3},
			},
			ResolutionFloor: 0.1,
			TemporalSteps: []Step{
				{Limit: 2020, Score: 1.0},
				{Limit: 2015, Score: 0.8},
				{Limit: 2010, Score: 0.6},
				{Limit: 2005, Score: 0.4},
			},
			TemporalFloor:   0.2,
			TemporalUnknown: 0.5,
			ProviderScores: map[string]float64{
				"government_lidar":  1.0,
				"geoscience_agency": 0.9,
				"research":          0.8,
				"government":        0.7,
			},
			ProviderDefault: 0.5,
			SpecificitySteps: []Step{
				{Limit: 0.01, Score: 1.0},
				{Limit: 0.1, Score: 0.8},
				{Limit: 1.0, Score: 0.6},
				{Limit: 10.0, Score: 0.4},
			},
			SpecificityFloor: 0.2,
			HighConfidence:   0.8,
			MidConfidence:    0.5,
		},
	}
}
