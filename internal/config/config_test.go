package config_test

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/xraph/credits/internal/config"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "credits.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
store:
  driver: postgres
  dsn: postgres://localhost/credits
log:
  level: debug
  format: json
sweep:
  lease_ttl: 30s
kafka:
  brokers: [k1:9092, k2:9092]
`)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Store.Driver != "postgres" || cfg.Store.DSN != "postgres://localhost/credits" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("log = %+v", cfg.Log)
	}
	if cfg.Sweep.LeaseTTL != 30*time.Second || cfg.Sweep.BatchSize != 100 {
		t.Errorf("sweep = %+v", cfg.Sweep)
	}
	if !slices.Equal(cfg.Kafka.Brokers, []string{"k1:9092", "k2:9092"}) || cfg.Kafka.Topic != "credits.transactions" {
		t.Errorf("kafka = %+v", cfg.Kafka)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "store:\n  driver: sqlite\n  dsn: file.db\n")
	t.Setenv("CREDITS_STORE_DSN", "env.db")
	t.Setenv("CREDITS_REDIS_ADDR", "localhost:6379")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Store.DSN != "env.db" {
		t.Errorf("dsn = %q, want env.db", cfg.Store.DSN)
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("redis addr = %q", cfg.Redis.Addr)
	}
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown driver", "store:\n  driver: cassandra\n"},
		{"missing dsn", "store:\n  driver: postgres\n  dsn: \"\"\n"},
		{"unknown log format", "log:\n  format: xml\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := config.Load(writeFile(t, tt.body)); err == nil {
				t.Error("Load succeeded")
			}
		})
	}
	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("explicit missing file accepted")
	}
}
