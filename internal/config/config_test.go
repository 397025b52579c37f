package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/guarzo/gradearb/internal/alert"
	"github.com/guarzo/gradearb/internal/stats"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(FileEnv, "")
	t.Setenv("LEDGER_BACKEND", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.LedgerBackend != BackendFile || cfg.RefreshSchedule != "@every 30s" {
		t.Errorf("Unexpected defaults: %+v", cfg)
	}

	ec := cfg.Engine()
	if ec.FloorWindow != 30*24*time.Hour || len(ec.Windows) != 2 || ec.Windows[1] != 7*24*time.Hour {
		t.Errorf("Unexpected engine config: %+v", ec)
	}
	if !ec.Scoring.FeeRate.IsZero() {
		t.Errorf("Expected zero fee rate by default, got %s", ec.Scoring.FeeRate)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gradearb.yaml")
	yaml := `
ledger_backend: http
backend_base_url: http://file.example:8000
fee_rate: 0.1
mover_windows: [24h, 30d]
floor_method: weighted
alert_min_severity: medium
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(FileEnv, path)
	t.Setenv("BACKEND_BASE_URL", "https://env.example")
	t.Setenv("WORKERS", "3")
	t.Setenv("FLOOR_REMOVE_OUTLIERS", "yes")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.LedgerBackend != BackendHTTP {
		t.Errorf("Expected backend from file, got %q", cfg.LedgerBackend)
	}
	if cfg.BackendBaseURL != "https://env.example" {
		t.Errorf("Expected env to override file, got %q", cfg.BackendBaseURL)
	}
	if cfg.Workers != 3 || !cfg.FloorRemoveOutliers {
		t.Errorf("Expected env values, got workers=%d outliers=%v", cfg.Workers, cfg.FloorRemoveOutliers)
	}

	ec := cfg.Engine()
	if !ec.Scoring.FeeRate.Equal(decimal.RequireFromString("0.1")) {
		t.Errorf("Expected fee rate 0.1, got %s", ec.Scoring.FeeRate)
	}
	if ec.Floor.Method != stats.FloorWeighted || !ec.Floor.RemoveOutliers {
		t.Errorf("Unexpected floor config %+v", ec.Floor)
	}
	if ec.Windows[1] != 30*24*time.Hour {
		t.Errorf("Expected 30d window, got %s", ec.Windows[1])
	}
	if cfg.Alert().MinSeverity != alert.SeverityMedium {
		t.Errorf("Expected MEDIUM min severity, got %q", cfg.Alert().MinSeverity)
	}
	if hc := cfg.HTTP(); hc.BaseURL != "https://env.example" || hc.Timeout != 10*time.Second {
		t.Errorf("Unexpected HTTP config %+v", hc)
	}
}

func TestLoad_MalformedEnv(t *testing.T) {
	t.Setenv(FileEnv, "")
	t.Setenv("WORKERS", "many")
	t.Setenv("FEE_RATE", "ten percent")

	_, err := Load()
	if err == nil {
		t.Fatal("Expected an error for malformed values")
	}
	for _, key := range []string{"WORKERS", "FEE_RATE"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("Expected %s in error, got %v", key, err)
		}
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv(FileEnv, filepath.Join(t.TempDir(), "absent.yaml"))
	if _, err := Load(); err == nil {
		t.Error("Expected an error for a missing config file")
	}
}

func TestValidate_AggregatesProblems(t *testing.T) {
	cfg := Default()
	cfg.LedgerBackend = BackendPostgres
	cfg.FeeRate = 1.5
	cfg.FloorMethod = "mean"
	cfg.MoverWindows = []string{"7d", "fortnight"}
	cfg.AlertMinSeverity = "urgent"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Expected validation errors")
	}
	for _, want := range []string{"DATABASE_URL", "FEE_RATE", "FLOOR_METHOD", "MOVER_WINDOWS", "ALERT_MIN_SEVERITY"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Expected %s in %v", want, err)
		}
	}
}

func TestValidate_HTTPBackend(t *testing.T) {
	cfg := Default()
	cfg.LedgerBackend = BackendHTTP
	for _, u := range []string{"", "ftp://x", "not a url"} {
		cfg.BackendBaseURL = u
		if err := cfg.Validate(); err == nil {
			t.Errorf("Expected %q to be rejected", u)
		}
	}
	cfg.BackendBaseURL = "http://localhost:8000"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected valid config, got %v", err)
	}
}
