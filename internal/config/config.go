package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/guarzo/gradearb/internal/alert"
	"github.com/guarzo/gradearb/internal/bucket"
	"github.com/guarzo/gradearb/internal/dashboard"
	"github.com/guarzo/gradearb/internal/engine"
	"github.com/guarzo/gradearb/internal/ledger"
	"github.com/guarzo/gradearb/internal/logger"
	"github.com/guarzo/gradearb/internal/scoring"
	"github.com/guarzo/gradearb/internal/stats"
)

// FileEnv names the optional YAML file whose values sit between the
// built-in defaults and environment variables.
const FileEnv = "GRADEARB_CONFIG"

const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendHTTP     = "http"
)

type Config struct {
	// Ledger
	LedgerBackend      string  `yaml:"ledger_backend"`
	DatabaseURL        string  `yaml:"database_url"`
	BackendBaseURL     string  `yaml:"backend_base_url"`
	LedgerFile         string  `yaml:"ledger_file"`
	HTTPRatePerSec     float64 `yaml:"http_rate_per_sec"`
	HTTPTimeoutSeconds int     `yaml:"http_timeout_seconds"`

	// Catalog cache
	CatalogCacheSize       int `yaml:"catalog_cache_size"`
	CatalogCacheTTLSeconds int `yaml:"catalog_cache_ttl_seconds"`

	// Analytics
	FeeRate             float64  `yaml:"fee_rate"`
	IncludeShipping     bool     `yaml:"include_shipping"`
	MaxPrice            float64  `yaml:"max_price"`
	FloorWindowDays     int      `yaml:"floor_window_days"`
	FloorMethod         string   `yaml:"floor_method"`
	FloorMinSales       int      `yaml:"floor_min_sales"`
	FloorMaxSales       int      `yaml:"floor_max_sales"`
	FloorRemoveOutliers bool     `yaml:"floor_remove_outliers"`
	TrendMultiplier     float64  `yaml:"trend_multiplier"`
	MoverWindows        []string `yaml:"mover_windows"`
	Workers             int      `yaml:"workers"`

	// Refresh and alerts
	RefreshSchedule    string  `yaml:"refresh_schedule"`
	AlertMinROI        float64 `yaml:"alert_min_roi"`
	AlertDealThreshold float64 `yaml:"alert_deal_threshold"`
	AlertMovePct       float64 `yaml:"alert_move_pct"`
	AlertMinSeverity   string  `yaml:"alert_min_severity"`

	// Observability
	LogLevel    string `yaml:"log_level"`
	LogFile     string `yaml:"log_file"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		LedgerBackend:          BackendFile,
		LedgerFile:             "data/ledger.json",
		HTTPRatePerSec:         5,
		HTTPTimeoutSeconds:     10,
		CatalogCacheSize:       10000,
		CatalogCacheTTLSeconds: 30,
		MaxPrice:               10000,
		FloorWindowDays:        30,
		FloorMethod:            string(stats.FloorMedian),
		FloorMinSales:          1,
		TrendMultiplier:        1.5,
		MoverWindows:           []string{"24h", "7d"},
		Workers:                8,
		RefreshSchedule:        dashboard.DefaultSchedule,
		AlertMinROI:            20,
		AlertDealThreshold:     0.8,
		AlertMovePct:           20,
		LogLevel:               "info",
		MetricsAddr:            ":9090",
	}
}

// Load reads .env, then the YAML file named by GRADEARB_CONFIG, then the
// environment. Malformed values are errors rather than silent defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv(FileEnv); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	e := &envReader{}
	cfg.LedgerBackend = strings.ToLower(e.str("LEDGER_BACKEND", cfg.LedgerBackend))
	cfg.DatabaseURL = e.str("DATABASE_URL", cfg.DatabaseURL)
	cfg.BackendBaseURL = e.str("BACKEND_BASE_URL", cfg.BackendBaseURL)
	cfg.LedgerFile = e.str("LEDGER_FILE", cfg.LedgerFile)
	cfg.HTTPRatePerSec = e.number("HTTP_RATE_PER_SEC", cfg.HTTPRatePerSec)
	cfg.HTTPTimeoutSeconds = e.integer("HTTP_TIMEOUT_SECONDS", cfg.HTTPTimeoutSeconds)

	cfg.CatalogCacheSize = e.integer("CATALOG_CACHE_SIZE", cfg.CatalogCacheSize)
	cfg.CatalogCacheTTLSeconds = e.integer("CATALOG_CACHE_TTL_SECONDS", cfg.CatalogCacheTTLSeconds)

	cfg.FeeRate = e.number("FEE_RATE", cfg.FeeRate)
	cfg.IncludeShipping = e.boolean("INCLUDE_SHIPPING", cfg.IncludeShipping)
	cfg.MaxPrice = e.number("MAX_PRICE", cfg.MaxPrice)
	cfg.FloorWindowDays = e.integer("FLOOR_WINDOW_DAYS", cfg.FloorWindowDays)
	cfg.FloorMethod = strings.ToLower(e.str("FLOOR_METHOD", cfg.FloorMethod))
	cfg.FloorMinSales = e.integer("FLOOR_MIN_SALES", cfg.FloorMinSales)
	cfg.FloorMaxSales = e.integer("FLOOR_MAX_SALES", cfg.FloorMaxSales)
	cfg.FloorRemoveOutliers = e.boolean("FLOOR_REMOVE_OUTLIERS", cfg.FloorRemoveOutliers)
	cfg.TrendMultiplier = e.number("TREND_MULTIPLIER", cfg.TrendMultiplier)
	cfg.MoverWindows = e.list("MOVER_WINDOWS", cfg.MoverWindows)
	cfg.Workers = e.integer("WORKERS", cfg.Workers)

	cfg.RefreshSchedule = e.str("REFRESH_SCHEDULE", cfg.RefreshSchedule)
	cfg.AlertMinROI = e.number("ALERT_MIN_ROI", cfg.AlertMinROI)
	cfg.AlertDealThreshold = e.number("ALERT_DEAL_THRESHOLD", cfg.AlertDealThreshold)
	cfg.AlertMovePct = e.number("ALERT_MOVE_PCT", cfg.AlertMovePct)
	cfg.AlertMinSeverity = e.str("ALERT_MIN_SEVERITY", cfg.AlertMinSeverity)

	cfg.LogLevel = e.str("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile = e.str("LOG_FILE", cfg.LogFile)
	cfg.MetricsAddr = e.str("METRICS_ADDR", cfg.MetricsAddr)

	if len(e.errs) > 0 {
		return nil, fmt.Errorf("config: invalid environment:\n  %s", strings.Join(e.errs, "\n  "))
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cannot read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("cannot parse YAML %s: %w", path, err)
	}
	return nil
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	switch c.LedgerBackend {
	case BackendFile:
		if c.LedgerFile == "" {
			errs = append(errs, "LEDGER_FILE is required for the file backend")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, "DATABASE_URL is required for the postgres backend")
		}
	case BackendHTTP:
		u, err := url.Parse(c.BackendBaseURL)
		if c.BackendBaseURL == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, "BACKEND_BASE_URL must be an http(s) URL for the http backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("LEDGER_BACKEND %q must be one of file, postgres, http", c.LedgerBackend))
	}

	if c.HTTPRatePerSec < 0 {
		errs = append(errs, "HTTP_RATE_PER_SEC must not be negative")
	}
	if c.FeeRate < 0 || c.FeeRate >= 1 {
		errs = append(errs, "FEE_RATE must be in [0, 1)")
	}
	if c.MaxPrice <= 0 {
		errs = append(errs, "MAX_PRICE must be positive")
	}
	if c.FloorWindowDays <= 0 {
		errs = append(errs, "FLOOR_WINDOW_DAYS must be positive")
	}
	if m := stats.FloorMethod(c.FloorMethod); m != stats.FloorMedian && m != stats.FloorWeighted {
		errs = append(errs, fmt.Sprintf("FLOOR_METHOD %q must be median or weighted", c.FloorMethod))
	}
	if c.FloorMinSales < 1 {
		errs = append(errs, "FLOOR_MIN_SALES must be at least 1")
	}
	if c.FloorMaxSales < 0 {
		errs = append(errs, "FLOOR_MAX_SALES must not be negative")
	}
	if c.TrendMultiplier <= 0 {
		errs = append(errs, "TREND_MULTIPLIER must be positive")
	}
	if _, err := c.Windows(); err != nil {
		errs = append(errs, "MOVER_WINDOWS: "+err.Error())
	}
	if c.Workers <= 0 {
		errs = append(errs, "WORKERS must be positive")
	}
	if c.AlertDealThreshold <= 0 {
		errs = append(errs, "ALERT_DEAL_THRESHOLD must be positive")
	}
	if _, err := alert.ParseSeverity(c.AlertMinSeverity); err != nil {
		errs = append(errs, "ALERT_MIN_SEVERITY: "+err.Error())
	}
	if c.CatalogCacheSize < 0 || c.CatalogCacheTTLSeconds < 0 {
		errs = append(errs, "CATALOG_CACHE_SIZE and CATALOG_CACHE_TTL_SECONDS must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

// Windows parses MoverWindows.
func (c *Config) Windows() ([]time.Duration, error) {
	if len(c.MoverWindows) == 0 {
		return nil, fmt.Errorf("at least one window is required")
	}
	out := make([]time.Duration, 0, len(c.MoverWindows))
	for _, s := range c.MoverWindows {
		d, err := engine.ParseWindow(s)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// Engine builds the analytics policy. Call Validate first.
func (c *Config) Engine() engine.Config {
	windows, _ := c.Windows()
	return engine.Config{
		FloorWindow: time.Duration(c.FloorWindowDays) * 24 * time.Hour,
		Floor: stats.FloorConfig{
			MinSales:       c.FloorMinSales,
			MaxSales:       c.FloorMaxSales,
			RemoveOutliers: c.FloorRemoveOutliers,
			Method:         stats.FloorMethod(c.FloorMethod),
		},
		Scoring: scoring.Config{
			FeeRate:         decimal.NewFromFloat(c.FeeRate),
			IncludeShipping: c.IncludeShipping,
		},
		MaxPrice:        decimal.NewFromFloat(c.MaxPrice),
		TrendWidth:      bucket.Daily,
		TrendMultiplier: decimal.NewFromFloat(c.TrendMultiplier),
		Windows:         windows,
		Workers:         c.Workers,
	}
}

// Alert builds the alert monitor configuration.
func (c *Config) Alert() alert.Config {
	sev, _ := alert.ParseSeverity(c.AlertMinSeverity)
	return alert.Config{
		MinROI:        decimal.NewFromFloat(c.AlertMinROI),
		DealThreshold: decimal.NewFromFloat(c.AlertDealThreshold),
		MovePct:       decimal.NewFromFloat(c.AlertMovePct),
		MinSeverity:   sev,
	}
}

// HTTP builds the HTTP ledger client configuration.
func (c *Config) HTTP() ledger.HTTPConfig {
	return ledger.HTTPConfig{
		BaseURL:    c.BackendBaseURL,
		RatePerSec: c.HTTPRatePerSec,
		Timeout:    time.Duration(c.HTTPTimeoutSeconds) * time.Second,
	}
}

// CatalogCacheTTL returns how long cached catalog entries stay fresh.
func (c *Config) CatalogCacheTTL() time.Duration {
	return time.Duration(c.CatalogCacheTTLSeconds) * time.Second
}

// Logger builds the logger configuration.
func (c *Config) Logger() logger.Config {
	return logger.Config{Level: c.LogLevel, File: c.LogFile}
}

// --- helpers ---

// envReader reads typed variables, keeping the fallback when a variable is
// unset and recording a problem when it is set but malformed.
type envReader struct {
	errs []string
}

func (e *envReader) str(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func (e *envReader) integer(key string, fallback int) int {
	v := e.str(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s=%q is not an integer", key, v))
		return fallback
	}
	return n
}

func (e *envReader) number(key string, fallback float64) float64 {
	v := e.str(key, "")
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s=%q is not a number", key, v))
		return fallback
	}
	return f
}

func (e *envReader) boolean(key string, fallback bool) bool {
	v := e.str(key, "")
	if v == "" {
		return fallback
	}
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	e.errs = append(e.errs, fmt.Sprintf("%s=%q is not a boolean", key, v))
	return fallback
}

func (e *envReader) list(key string, fallback []string) []string {
	v := e.str(key, "")
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
