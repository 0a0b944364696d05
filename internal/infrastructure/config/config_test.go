package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"address-intelligence/internal/domain/entity"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Port != 8080 || cfg.HTTP.ShutdownTimeout != 10*time.Second {
		t.Errorf("HTTP = %+v", cfg.HTTP)
	}
	if cfg.Intelligence.Storage != "memory" || cfg.Intelligence.LookupTimeout != 3*time.Second {
		t.Errorf("Intelligence = %+v", cfg.Intelligence)
	}
	if cfg.Intelligence.ViralNetworkCap != 100 || cfg.Intelligence.IngestConcurrency != 8 {
		t.Errorf("Intelligence tuning = %+v", cfg.Intelligence)
	}
	if cfg.Kafka.Enabled || cfg.LLM.Enabled || cfg.Postgres.Enabled {
		t.Error("optional integrations should be disabled by default")
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("INTELLIGENCE_STORAGE", "neo4j")
	t.Setenv("HTTP_PORT", "9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Intelligence.Storage != "neo4j" {
		t.Errorf("Storage = %q, want neo4j", cfg.Intelligence.Storage)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.HTTP.Port)
	}
}

func TestParseFilterTemplates(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		want    int
		wantErr error
	}{
		{
			name: "valid templates",
			doc: `
templates:
  - name: Dormant whales
    description: Large holders that stopped engaging
    filter:
      portfolio_sizes: [whale]
      scoring_ranges:
        engagement_score:
          max: 20
  - name: Fresh pool owners
    filter:
      source_platforms: [pool_pal]
      date_ranges:
        created_within_days: 14
`,
			want: 2,
		},
		{name: "empty document", doc: ``, want: 0},
		{
			name: "unknown score type",
			doc: `
templates:
  - name: Broken
    filter:
      scoring_ranges:
        karma: {min: 1}
`,
			wantErr: entity.ErrInvalidFilter,
		},
		{
			name: "inverted range",
			doc: `
templates:
  - name: Inverted
    filter:
      scoring_ranges:
        activity_score: {min: 80, max: 10}
`,
			wantErr: entity.ErrInvalidFilter,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFilterTemplates([]byte(tt.doc))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseFilterTemplates: %v", err)
			}
			if len(got) != tt.want {
				t.Fatalf("got %d templates, want %d", len(got), tt.want)
			}
		})
	}
}

func TestParseFilterTemplatesFields(t *testing.T) {
	got, err := ParseFilterTemplates([]byte(`
templates:
  - name: Quiet
    filter:
      risk_levels: [high, critical]
      scoring_ranges:
        engagement_score: {min: 0, max: 20}
`))
	if err != nil {
		t.Fatalf("ParseFilterTemplates: %v", err)
	}
	f := got[0].Filter
	if len(f.RiskLevels) != 2 || f.RiskLevels[1] != entity.RiskCritical {
		t.Errorf("RiskLevels = %v", f.RiskLevels)
	}
	r := f.ScoringRanges[entity.ScoreEngagement]
	if r.Min == nil || *r.Min != 0 || r.Max == nil || *r.Max != 20 {
		t.Errorf("engagement range = %+v", r)
	}
}

func TestParseFilterTemplatesRequiresName(t *testing.T) {
	if _, err := ParseFilterTemplates([]byte("templates:\n  - description: anonymous\n")); err == nil {
		t.Fatal("expected error for unnamed template")
	}
}

func TestLoadFilterTemplates(t *testing.T) {
	if got, err := LoadFilterTemplates(""); err != nil || got != nil {
		t.Fatalf("LoadFilterTemplates(\"\") = %v, %v", got, err)
	}

	path := filepath.Join(t.TempDir(), "templates.yaml")
	if err := os.WriteFile(path, []byte("templates:\n  - name: All pool owners\n    filter:\n      marketing_segments: [pool_owner]\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err := LoadFilterTemplates(path)
	if err != nil {
		t.Fatalf("LoadFilterTemplates: %v", err)
	}
	if len(got) != 1 || got[0].Filter.MarketingSegments[0] != "pool_owner" {
		t.Errorf("templates = %+v", got)
	}

	if _, err := LoadFilterTemplates(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
