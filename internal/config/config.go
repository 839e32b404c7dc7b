// Package config loads wordchain settings from an optional YAML file and
// environment overrides. Invalid settings fail fast with ErrConfig before any
// pipeline work starts.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Zerofisher/wordchain/internal/logging"
	"github.com/Zerofisher/wordchain/pkg/store"
)

// ErrConfig marks missing or unparseable settings.
var ErrConfig = errors.New("config error")

// Config holds all wordchain configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Tokenizer TokenizerConfig `yaml:"tokenizer"`
	Writer    WriterConfig    `yaml:"writer"`
	Logging   logging.Config  `yaml:"logging"`
}

// DatabaseConfig describes the store connection.
type DatabaseConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// Name is the SQLite database file.
	Name               string `yaml:"name"`
	User               string `yaml:"user"`
	Pass               string `yaml:"pass"`
	LockWaitTimeoutSec int    `yaml:"lock_wait_timeout_sec"`
}

// IngestConfig sizes the coordinator.
type IngestConfig struct {
	QueueCapacity        int `yaml:"queue_capacity"`
	TokenizerConcurrency int `yaml:"tokenizer_concurrency"`
}

// TokenizerConfig controls tokenizer flushing.
type TokenizerConfig struct {
	FlushEveryTokens     int  `yaml:"flush_every_tokens"`
	FlushUniqueThreshold int  `yaml:"flush_unique_threshold"`
	SingleBatch          bool `yaml:"single_batch"`
}

// WriterConfig controls statement sizing and retry budgets.
type WriterConfig struct {
	SubBatch         int `yaml:"subbatch"`
	IDResolveChunk   int `yaml:"id_resolve_chunk"`
	RetryMaxBatch    int `yaml:"retry_max_batch"`
	RetryMaxFinalize int `yaml:"retry_max_finalize"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Name:               "wordchain.db",
			LockWaitTimeoutSec: 5,
		},
		Ingest: IngestConfig{
			QueueCapacity:        64,
			TokenizerConcurrency: DefaultConcurrency(),
		},
		Tokenizer: TokenizerConfig{
			FlushEveryTokens:     10_000,
			FlushUniqueThreshold: 5_000,
		},
		Writer: WriterConfig{
			SubBatch:         500,
			IDResolveChunk:   1000,
			RetryMaxBatch:    5,
			RetryMaxFinalize: 3,
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "console",
		},
	}
}

// DefaultConcurrency is min(8, NumCPU).
func DefaultConcurrency() int {
	return min(8, runtime.NumCPU())
}

// Load reads path (a missing file yields defaults), applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("%w: parse %s: %v", ErrConfig, path, err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("%w: read %s: %v", ErrConfig, path, err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML. The file may hold the database
// password, so it is only readable by the owner.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// applyEnvOverrides applies the recognized environment variables.
func (c *Config) applyEnvOverrides() error {
	strs := []struct {
		key string
		dst *string
	}{
		{"DB_HOST", &c.Database.Host},
		{"DB_NAME", &c.Database.Name},
		{"DB_USER", &c.Database.User},
		{"DB_PASS", &c.Database.Pass},
		{"LOG_LEVEL", &c.Logging.Level},
	}
	for _, s := range strs {
		if v, ok := os.LookupEnv(s.key); ok {
			*s.dst = v
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"DB_PORT", &c.Database.Port},
		{"LOCK_WAIT_TIMEOUT_SEC", &c.Database.LockWaitTimeoutSec},
		{"QUEUE_CAPACITY", &c.Ingest.QueueCapacity},
		{"TOKENIZER_CONCURRENCY", &c.Ingest.TokenizerConcurrency},
		{"FLUSH_EVERY_TOKENS", &c.Tokenizer.FlushEveryTokens},
		{"FLUSH_UNIQUE_THRESHOLD", &c.Tokenizer.FlushUniqueThreshold},
		{"WRITER_SUBBATCH", &c.Writer.SubBatch},
		{"ID_RESOLVE_CHUNK", &c.Writer.IDResolveChunk},
		{"RETRY_MAX_BATCH", &c.Writer.RetryMaxBatch},
		{"RETRY_MAX_FINALIZE", &c.Writer.RetryMaxFinalize},
	}
	for _, i := range ints {
		v, ok := os.LookupEnv(i.key)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", ErrConfig, i.key, v)
		}
		*i.dst = n
	}
	return nil
}

// Validate checks ranges and required fields.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.Name) == "" {
		return fmt.Errorf("%w: DB_NAME is required", ErrConfig)
	}
	if c.Database.Port != 0 && (c.Database.Port < 1 || c.Database.Port > 65535) {
		return fmt.Errorf("%w: DB_PORT %d out of range", ErrConfig, c.Database.Port)
	}
	if c.Database.User != "" && c.Database.Pass == "" {
		return fmt.Errorf("%w: DB_USER set without DB_PASS", ErrConfig)
	}

	positive := []struct {
		name string
		v    int
	}{
		{"LOCK_WAIT_TIMEOUT_SEC", c.Database.LockWaitTimeoutSec},
		{"QUEUE_CAPACITY", c.Ingest.QueueCapacity},
		{"TOKENIZER_CONCURRENCY", c.Ingest.TokenizerConcurrency},
		{"FLUSH_EVERY_TOKENS", c.Tokenizer.FlushEveryTokens},
		{"FLUSH_UNIQUE_THRESHOLD", c.Tokenizer.FlushUniqueThreshold},
		{"WRITER_SUBBATCH", c.Writer.SubBatch},
		{"ID_RESOLVE_CHUNK", c.Writer.IDResolveChunk},
		{"RETRY_MAX_BATCH", c.Writer.RetryMaxBatch},
		{"RETRY_MAX_FINALIZE", c.Writer.RetryMaxFinalize},
	}
	for _, p := range positive {
		if p.v <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrConfig, p.name, p.v)
		}
	}

	if c.Writer.SubBatch > store.MaxSubBatch {
		return fmt.Errorf("%w: WRITER_SUBBATCH must be at most %d, got %d", ErrConfig, store.MaxSubBatch, c.Writer.SubBatch)
	}
	if c.Writer.IDResolveChunk > store.MaxResolveChunk {
		return fmt.Errorf("%w: ID_RESOLVE_CHUNK must be at most %d, got %d", ErrConfig, store.MaxResolveChunk, c.Writer.IDResolveChunk)
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return nil
}

// LockWaitTimeout returns the store lock wait as a duration.
func (c *Config) LockWaitTimeout() time.Duration {
	return time.Duration(c.Database.LockWaitTimeoutSec) * time.Second
}
