package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/adonese/crud/ddb"
	"github.com/adonese/crud/store"
	"github.com/adonese/crud/validation"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultConfigPath = "/app/config.yaml"
	envPrefix         = "CRUD_"
)

// DriverDynamoDB selects the DynamoDB backend instead of a SQL database.
const DriverDynamoDB = "dynamodb"

type OtelConfig struct {
	Enabled        bool    `yaml:"enabled"`
	Endpoint       string  `yaml:"endpoint"`
	Insecure       bool    `yaml:"insecure"`
	ServiceName    string  `yaml:"service_name"`
	ServiceVersion string  `yaml:"service_version"`
	SampleRate     float64 `yaml:"sample_rate" binding:"gte=0,lte=1"`
}

// LogConfig tunes the process logger and the sampled access log. Requests
// faster than SamplingAfterMs are logged at most once per SamplingTickMs.
type LogConfig struct {
	Level           string `yaml:"level" binding:"omitempty,oneof=trace debug info warn warning error"`
	Format          string `yaml:"format" binding:"omitempty,oneof=json text"`
	SamplingTickMs  int    `yaml:"sampling_tick_ms" binding:"gte=0"`
	SamplingAfterMs int    `yaml:"sampling_after_ms" binding:"gte=0"`
}

type Config struct {
	Port   string `yaml:"port" binding:"required"`
	Debug  bool   `yaml:"debug"`
	Driver string `yaml:"driver" binding:"required,oneof=sqlite postgres mysql dynamodb"`

	Database store.Config `yaml:"database"`
	DynamoDB ddb.Config   `yaml:"dynamodb"`

	Log LogConfig `yaml:"log"`

	Otel OtelConfig `yaml:"otel"`
}

// Defaults fills what the config file and environment left unset.
func (c *Config) Defaults() {
	if c.Port == "" {
		c.Port = ":8080"
	}
	if c.Port != "" && !strings.Contains(c.Port, ":") {
		c.Port = ":" + c.Port
	}
	if c.Driver == "" {
		c.Driver = store.DriverSQLite
		if c.Database.URL != "" {
			c.Driver = store.DriverPostgres
		}
	}
	c.Driver = strings.ToLower(c.Driver)
	if c.Driver != DriverDynamoDB {
		c.Database.Driver = c.Driver
	}
	if c.DynamoDB.Table == "" {
		c.DynamoDB.Table = "puppies"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
		if c.Debug {
			c.Log.Level = "debug"
		}
	}
	c.Log.Level = strings.ToLower(c.Log.Level)
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Log.SamplingTickMs == 0 {
		c.Log.SamplingTickMs = 5000
	}
	if c.Log.SamplingAfterMs == 0 {
		c.Log.SamplingAfterMs = 2000
	}
}

func (c Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		if fields := validation.Fields(err); fields != nil {
			return fmt.Errorf("invalid config: %v", fields)
		}
		return err
	}
	if c.Driver == DriverDynamoDB && c.DynamoDB.Region == "" {
		return errors.New("invalid config: dynamodb.region is required")
	}
	return nil
}

// loadConfig reads config.yaml (and secrets.yaml next to it, when present),
// then .env and CRUD_* variables, which win over the files.
func loadConfig(path string) (Config, error) {
	var cfg Config

	if path == "" {
		path = firstExistingPath("./config.yaml", defaultConfigPath)
	}
	if path != "" {
		merged, err := readYAML(path)
		if err != nil {
			return cfg, err
		}
		secretsPath := filepath.Join(filepath.Dir(path), "secrets.yaml")
		if _, err := os.Stat(secretsPath); err == nil {
			secrets, err := readYAML(secretsPath)
			if err != nil {
				return cfg, err
			}
			merged = mergeConfig(merged, secrets).(map[string]interface{})
		}
		payload, err := yaml.Marshal(merged)
		if err != nil {
			return cfg, fmt.Errorf("encode config: %w", err)
		}
		if err := yaml.Unmarshal(payload, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config yaml: %w", err)
		}
		logrusLogger.WithField("path", path).Debug("config_loaded")
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}

	cfg.Defaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func readYAML(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	out := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return out, nil
}

func applyEnv(cfg *Config) error {
	strs := map[string]*string{
		"PORT":                       &cfg.Port,
		"DRIVER":                     &cfg.Driver,
		"DATABASE_URL":               &cfg.Database.URL,
		"SQLITE_PATH":                &cfg.Database.SQLitePath,
		"DYNAMODB_REGION":            &cfg.DynamoDB.Region,
		"DYNAMODB_ENDPOINT":          &cfg.DynamoDB.Endpoint,
		"DYNAMODB_TABLE":             &cfg.DynamoDB.Table,
		"DYNAMODB_ACCESS_KEY_ID":     &cfg.DynamoDB.AccessKeyID,
		"DYNAMODB_SECRET_ACCESS_KEY": &cfg.DynamoDB.SecretAccessKey,
		"OTEL_ENDPOINT":              &cfg.Otel.Endpoint,
		"OTEL_SERVICE_NAME":          &cfg.Otel.ServiceName,
		"LOG_LEVEL":                  &cfg.Log.Level,
		"LOG_FORMAT":                 &cfg.Log.Format,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(envPrefix + key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	bools := map[string]*bool{
		"DEBUG":         &cfg.Debug,
		"OTEL_ENABLED":  &cfg.Otel.Enabled,
		"OTEL_INSECURE": &cfg.Otel.Insecure,
	}
	for key, dst := range bools {
		v, ok := os.LookupEnv(envPrefix + key)
		if !ok || v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, key, err)
		}
		*dst = b
	}
	return nil
}

func firstExistingPath(paths ...string) string {
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// mergeConfig overlays override onto base. Empty strings and empty lists in
// override keep the base value.
func mergeConfig(base, override interface{}) interface{} {
	if override == nil {
		return base
	}

	switch overrideTyped := override.(type) {
	case map[string]interface{}:
		baseMap, ok := base.(map[string]interface{})
		if !ok {
			baseMap = map[string]interface{}{}
		}
		result := map[string]interface{}{}
		for key, value := range baseMap {
			result[key] = value
		}
		for key, value := range overrideTyped {
			result[key] = mergeConfig(result[key], value)
		}
		return result
	case []interface{}:
		if len(overrideTyped) == 0 {
			return base
		}
		return overrideTyped
	case string:
		if overrideTyped == "" {
			return base
		}
		return overrideTyped
	default:
		return override
	}
}
