package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/adonese/crud/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigMergesSecrets(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
port: "9000"
driver: postgres
database:
  url: ""
  max_open_conns: 4
otel:
  service_name: crud-test
`)
	writeFile(t, dir, "secrets.yaml", `
database:
  url: postgres://crud:secret@db:5432/crud
otel:
  service_name: ""
`)

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Port)
	assert.Equal(t, store.DriverPostgres, cfg.Driver)
	assert.Equal(t, store.DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "postgres://crud:secret@db:5432/crud", cfg.Database.URL)
	assert.Equal(t, 4, cfg.Database.MaxOpenConns)
	assert.Equal(t, "crud-test", cfg.Otel.ServiceName, "empty secret keeps the base value")
	assert.Equal(t, "puppies", cfg.DynamoDB.Table)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "port: \":8080\"\ndriver: sqlite\n")
	t.Setenv("CRUD_PORT", "7000")
	t.Setenv("CRUD_DEBUG", "true")
	t.Setenv("CRUD_SQLITE_PATH", filepath.Join(dir, "env.db"))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Port)
	assert.True(t, cfg.Debug)
	assert.Equal(t, filepath.Join(dir, "env.db"), cfg.Database.SQLitePath)

	t.Setenv("CRUD_DEBUG", "maybe")
	_, err = loadConfig(path)
	assert.ErrorContains(t, err, "CRUD_DEBUG")
}

func TestLoadConfigRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown driver", "driver: oracle\n", "invalid config"},
		{"dynamodb without region", "driver: dynamodb\n", "dynamodb.region"},
		{"sample rate", "driver: sqlite\notel:\n  sample_rate: 2\n", "invalid config"},
		{"log format", "driver: sqlite\nlog:\n  format: xml\n", "invalid config"},
		{"malformed yaml", "driver: [sqlite\n", "parse config.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "config.yaml", tt.body)
			_, err := loadConfig(path)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.Defaults()
	assert.Equal(t, ":8080", cfg.Port)
	assert.Equal(t, store.DriverSQLite, cfg.Driver)
	assert.Equal(t, store.DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, LogConfig{Level: "info", Format: "json", SamplingTickMs: 5000, SamplingAfterMs: 2000}, cfg.Log)

	cfg = Config{Driver: "DynamoDB", Database: store.Config{Driver: "keep"}}
	cfg.Defaults()
	assert.Equal(t, DriverDynamoDB, cfg.Driver)
	assert.Equal(t, "keep", cfg.Database.Driver)
}

func TestMergeConfig(t *testing.T) {
	base := map[string]interface{}{
		"a":      "one",
		"list":   []interface{}{"x"},
		"nested": map[string]interface{}{"k": "v", "n": 1},
	}
	override := map[string]interface{}{
		"a":      "",
		"list":   []interface{}{},
		"nested": map[string]interface{}{"n": 2},
		"b":      true,
	}
	got := mergeConfig(base, override).(map[string]interface{})
	assert.Equal(t, "one", got["a"])
	assert.Equal(t, []interface{}{"x"}, got["list"])
	assert.Equal(t, map[string]interface{}{"k": "v", "n": 2}, got["nested"])
	assert.Equal(t, true, got["b"])
}
