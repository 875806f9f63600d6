package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return fs
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("FACTCHECK_CONFIG", "")
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider != ProviderOllama || cfg.Model != "qwen2.5:7b" {
		t.Errorf("unexpected generation defaults: %s %s", cfg.Provider, cfg.Model)
	}
	if cfg.BaseURL != "http://localhost:11434/v1" || cfg.APIKey != "ollama" {
		t.Errorf("ollama endpoint not derived: %q %q", cfg.BaseURL, cfg.APIKey)
	}
	if cfg.Temperature != 0.3 || cfg.MaxTokens != 100000 {
		t.Errorf("unexpected sampling defaults: %v %d", cfg.Temperature, cfg.MaxTokens)
	}
	if cfg.TeamID != "TREMA_UNH" || cfg.MaxQueryIterations != 5 || !cfg.Resume {
		t.Errorf("unexpected run defaults: %+v", cfg)
	}
	want := filepath.Join("output", "tracking_data_TREMA_UNH_run_2.json")
	if cfg.Tracking.Path != want {
		t.Errorf("tracking path = %q, want %q", cfg.Tracking.Path, want)
	}
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "factcheck.yaml")
	yaml := "run_id: from_file\nteam_id: FILE_TEAM\nreport:\n  word_limit: 200\ntracking:\n  backend: sqlite\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FACTCHECK_TEAM_ID", "ENV_TEAM")
	t.Setenv("FACTCHECK_REPORT_WORD_LIMIT", "180")

	cfg, err := Load(newFlags(t, "--config", path, "--run-id", "from_flag"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RunID != "from_flag" {
		t.Errorf("flag should win, got run_id %q", cfg.RunID)
	}
	if cfg.TeamID != "ENV_TEAM" {
		t.Errorf("env should beat file, got team_id %q", cfg.TeamID)
	}
	if cfg.Report.WordLimit != 180 {
		t.Errorf("nested env override ignored, got %d", cfg.Report.WordLimit)
	}
	if cfg.Tracking.Backend != TrackingSQLite || cfg.Tracking.Path != filepath.Join("output", "tracking.db") {
		t.Errorf("sqlite tracking not derived: %+v", cfg.Tracking)
	}
}

func TestLoadUnsetFlagsKeepDefaults(t *testing.T) {
	t.Setenv("FACTCHECK_CONFIG", "")
	cfg, err := Load(newFlags(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Temperature != 0.3 || cfg.Model != "qwen2.5:7b" {
		t.Errorf("zero-valued flags overrode defaults: %v %q", cfg.Temperature, cfg.Model)
	}
}

func TestLoadDebugRaisesLogLevel(t *testing.T) {
	t.Setenv("FACTCHECK_CONFIG", "")
	cfg, err := Load(newFlags(t, "--debug"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	t.Setenv("FACTCHECK_CONFIG", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	if _, err := Load(newFlags(t, "--provider", "claude")); err == nil {
		t.Error("claude without an api key should fail validation")
	}
	if _, err := Load(newFlags(t, "--tracking", "sqlite3")); err == nil {
		t.Error("unknown tracking backend should fail validation")
	}
	if _, err := Load(newFlags(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"))); err == nil {
		t.Error("missing explicit config file should fail")
	}
}

func TestGroqUsesCompatibleEndpoint(t *testing.T) {
	t.Setenv("FACTCHECK_CONFIG", "")
	t.Setenv("GROQ_API_KEY", "gsk")
	cfg, err := Load(newFlags(t, "--provider", "groq", "--model", "llama-3.1-8b-instant"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BaseURL != "https://api.groq.com/openai/v1" || cfg.APIKey != "gsk" {
		t.Errorf("groq endpoint not derived: %q %q", cfg.BaseURL, cfg.APIKey)
	}
}
