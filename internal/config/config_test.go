package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shaiso/Recipes/internal/domain"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	if cfg.APIPort != DefaultAPIPort {
		t.Errorf("expected api port %d, got %d", DefaultAPIPort, cfg.APIPort)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "recipes.yaml")
	data := `
log_level: DEBUG
api_port: 9000
recipes_dir: /srv/recipes
rollback: full
schedules:
  - name: nightly
    recipe: arith.yaml
    cron: "0 3 * * *"
    enabled: true
  - name: every-minute
    recipe: ping.yaml
    context_name: shared
    interval_sec: 60
    enabled: true
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("API_PORT", "9100")
	t.Setenv("LOG_FORMAT", "text")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.LogLevel != "DEBUG" {
		t.Errorf("expected DEBUG from file, got %s", cfg.LogLevel)
	}
	if cfg.APIPort != 9100 {
		t.Errorf("env should override file, got %d", cfg.APIPort)
	}
	if cfg.LogFormat != "text" {
		t.Errorf("expected text from env, got %s", cfg.LogFormat)
	}
	if cfg.Rollback != "full" {
		t.Errorf("expected rollback from file, got %s", cfg.Rollback)
	}
	if cfg.WorkerPort != DefaultWorkerPort {
		t.Errorf("expected default worker port, got %d", cfg.WorkerPort)
	}
	if len(cfg.Schedules) != 2 {
		t.Fatalf("expected 2 schedules, got %d", len(cfg.Schedules))
	}
	if cfg.Schedules[0].CronExpr != "0 3 * * *" || cfg.Schedules[0].RecipePath != "arith.yaml" {
		t.Errorf("unexpected schedule: %+v", cfg.Schedules[0])
	}
	if cfg.Schedules[1].ContextName != "shared" || cfg.Schedules[1].IntervalSec != 60 {
		t.Errorf("unexpected schedule: %+v", cfg.Schedules[1])
	}
}

func TestLoad_NoFile(t *testing.T) {
	t.Setenv("DB_URL", "postgresql://x")
	t.Setenv("DB_MAX_CONNS", "4")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DatabaseURL != "postgresql://x" {
		t.Errorf("expected DB_URL override, got %s", cfg.DatabaseURL)
	}
	if cfg.DBMaxConns != 4 {
		t.Errorf("expected DB_MAX_CONNS override, got %d", cfg.DBMaxConns)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	t.Setenv("WORKER_PORT", "abc")
	if _, err := Load(""); !errors.Is(err, ErrInvalidPort) {
		t.Errorf("expected ErrInvalidPort, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
		want   error
	}{
		{"bad port", func(c *Config) { c.APIPort = 0 }, ErrInvalidPort},
		{"bad format", func(c *Config) { c.LogFormat = "xml" }, ErrInvalidLogFormat},
		{"no db conns", func(c *Config) { c.DBMaxConns = 0 }, ErrInvalidValue},
		{"schedule without name", func(c *Config) {
			c.Schedules = append(c.Schedules, scheduleFixture(""))
		}, ErrInvalidSchedule},
		{"duplicate schedule", func(c *Config) {
			c.Schedules = append(c.Schedules, scheduleFixture("a"), scheduleFixture("a"))
		}, ErrInvalidSchedule},
		{"schedule without timing", func(c *Config) {
			s := scheduleFixture("a")
			s.IntervalSec = 0
			c.Schedules = append(c.Schedules, s)
		}, ErrInvalidSchedule},
		{"schedule without recipe", func(c *Config) {
			s := scheduleFixture("a")
			s.RecipePath = ""
			c.Schedules = append(c.Schedules, s)
		}, ErrInvalidSchedule},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			if err := cfg.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestAddr(t *testing.T) {
	if got := Addr(8080); got != ":8080" {
		t.Errorf("expected :8080, got %s", got)
	}
}

func scheduleFixture(name string) domain.Schedule {
	return domain.Schedule{Name: name, RecipePath: "r.yaml", IntervalSec: 10, Enabled: true}
}

func TestLoadFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recipes.yaml")
	if err := os.WriteFile(path, []byte("worker_port: 9100\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvConfigFile, path)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.WorkerPort != 9100 {
		t.Errorf("expected worker port 9100, got %d", cfg.WorkerPort)
	}
}
