package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
upstream:
  board_id: "board-1"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("server port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Sync.PageSize != 1000 {
		t.Errorf("page size = %d, want 1000", cfg.Sync.PageSize)
	}
	if cfg.Sync.MaxPages != 2500 {
		t.Errorf("max pages = %d, want 2500", cfg.Sync.MaxPages)
	}
	if cfg.Sync.ThrottleDelay != 30*time.Second {
		t.Errorf("throttle delay = %v, want 30s", cfg.Sync.ThrottleDelay)
	}
	if cfg.Scan.Pages != 5 {
		t.Errorf("scan pages = %d, want 5", cfg.Scan.Pages)
	}
	if cfg.Lookup.XPDriftThreshold != 50 {
		t.Errorf("xp drift threshold = %d, want 50", cfg.Lookup.XPDriftThreshold)
	}
	if cfg.Upstream.PageDelay != 200*time.Millisecond {
		t.Errorf("page delay = %v, want 200ms", cfg.Upstream.PageDelay)
	}
	if cfg.Upstream.BoardID != "board-1" {
		t.Errorf("board id = %q, want board-1", cfg.Upstream.BoardID)
	}
	if cfg.Redis.Enabled {
		t.Error("redis view cache should default to disabled")
	}
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_UPSTREAM_TOKEN", "secret-token")
	t.Setenv("TEST_PG_PASSWORD", "pg-pass")

	path := writeConfigFile(t, `
upstream:
  board_id: "board-1"
  token: "${TEST_UPSTREAM_TOKEN}"
postgres:
  password: "${TEST_PG_PASSWORD}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Upstream.Token != "secret-token" {
		t.Errorf("token = %q, want expanded value", cfg.Upstream.Token)
	}
	if cfg.Postgres.Password != "pg-pass" {
		t.Errorf("password = %q, want expanded value", cfg.Postgres.Password)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: 9090
sync:
  interval: 30m
  page_size: 100
lookup:
  xp_drift_threshold: 25
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("server port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Sync.Interval != 30*time.Minute {
		t.Errorf("sync interval = %v, want 30m", cfg.Sync.Interval)
	}
	if cfg.Sync.PageSize != 100 {
		t.Errorf("page size = %d, want 100", cfg.Sync.PageSize)
	}
	if cfg.Lookup.XPDriftThreshold != 25 {
		t.Errorf("xp drift threshold = %d, want 25", cfg.Lookup.XPDriftThreshold)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeConfigFile(t, "server: [not a mapping")
	if _, err := Load(path); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestConnectionString(t *testing.T) {
	pg := PostgresConfig{
		Host:     "db.internal",
		Port:     5433,
		User:     "mirror",
		Password: "pw",
		Database: "leaderboard",
	}
	want := "postgres://mirror:pw@db.internal:5433/leaderboard?sslmode=disable"
	if got := pg.ConnectionString(); got != want {
		t.Errorf("connection string = %q, want %q", got, want)
	}
}

func TestDefaultConfigEnablesJobs(t *testing.T) {
	cfg := DefaultConfig()
	if !cfg.Sync.Enabled || !cfg.Scan.Enabled {
		t.Error("background jobs should be enabled by default")
	}
}
