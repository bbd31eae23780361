package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/hashicorp/go-hclog"
	"gopkg.in/yaml.v3"
)

// Backend names.
const (
	BackendMemory = "memory"
	BackendBolt   = "bolt"
	BackendSQLite = "sqlite"
	BackendRaft   = "raft"
	BackendS3     = "s3"
)

var backends = []string{BackendMemory, BackendBolt, BackendSQLite, BackendRaft, BackendS3}

type Config struct {
	Backend  string `yaml:"backend"`
	HTTPAddr string `yaml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr"`
	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`

	Bolt   BoltConfig   `yaml:"bolt"`
	SQLite SQLiteConfig `yaml:"sqlite"`
	Raft   RaftConfig   `yaml:"raft"`
	S3     S3Config     `yaml:"s3"`
}

type BoltConfig struct {
	Path   string `yaml:"path"`
	Bucket string `yaml:"bucket"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type RaftConfig struct {
	NodeID       string        `yaml:"node_id"`
	Addr         string        `yaml:"addr"`
	Data         string        `yaml:"data"`
	Leader       bool          `yaml:"leader"`
	ApplyTimeout time.Duration `yaml:"apply_timeout"`
}

type S3Config struct {
	Bucket   string        `yaml:"bucket"`
	Prefix   string        `yaml:"prefix"`
	Region   string        `yaml:"region"`
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

// LoadConfig loads configuration from a YAML file if path is provided,
// otherwise from environment variables alone. Environment variables always
// override file values.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Backend == "" {
		c.Backend = BackendMemory
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}
	if c.GRPCAddr == "" {
		c.GRPCAddr = ":9090"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Bolt.Path == "" {
		c.Bolt.Path = "./asyncstore.bolt"
	}
	if c.SQLite.Path == "" {
		c.SQLite.Path = "./asyncstore.db"
	}
	if c.Raft.Addr == "" {
		c.Raft.Addr = "127.0.0.1:7000"
	}
	if c.Raft.Data == "" {
		c.Raft.Data = fmt.Sprintf("./asyncstore-raft/%s", c.Raft.NodeID)
	}
	if c.Raft.ApplyTimeout == 0 {
		c.Raft.ApplyTimeout = 5 * time.Second
	}
	if c.S3.Timeout == 0 {
		c.S3.Timeout = 10 * time.Second
	}
}

// Validate checks the fields required by the selected backend.
func (c *Config) Validate() error {
	valid := false
	for _, b := range backends {
		if c.Backend == b {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("unknown backend %q: must be one of %v", c.Backend, backends)
	}

	if hclog.LevelFromString(c.LogLevel) == hclog.NoLevel {
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}

	switch c.Backend {
	case BackendRaft:
		if c.Raft.NodeID == "" {
			return fmt.Errorf("NODE_ID is required for the raft backend (set via environment or config file)")
		}
	case BackendS3:
		if c.S3.Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required for the s3 backend (set via environment or config file)")
		}
	}
	return nil
}

// applyEnvOverrides allows environment variables to override YAML config values
func applyEnvOverrides(cfg *Config) error {
	strs := map[string]*string{
		"ASYNCSTORE_BACKEND": &cfg.Backend,
		"HTTP_ADDR":          &cfg.HTTPAddr,
		"GRPC_ADDR":          &cfg.GRPCAddr,
		"LOG_LEVEL":          &cfg.LogLevel,
		"BOLT_PATH":          &cfg.Bolt.Path,
		"BOLT_BUCKET":        &cfg.Bolt.Bucket,
		"SQLITE_PATH":        &cfg.SQLite.Path,
		"NODE_ID":            &cfg.Raft.NodeID,
		"RAFT_ADDR":          &cfg.Raft.Addr,
		"RAFT_DATA":          &cfg.Raft.Data,
		"S3_BUCKET":          &cfg.S3.Bucket,
		"S3_PREFIX":          &cfg.S3.Prefix,
		"S3_REGION":          &cfg.S3.Region,
		"S3_ENDPOINT":        &cfg.S3.Endpoint,
	}
	for name, dst := range strs {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	bools := map[string]*bool{
		"LOG_JSON":    &cfg.LogJSON,
		"RAFT_LEADER": &cfg.Raft.Leader,
	}
	for name, dst := range bools {
		if v := os.Getenv(name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid %s value: %w", name, err)
			}
			*dst = b
		}
	}

	durations := map[string]*time.Duration{
		"RAFT_APPLY_TIMEOUT": &cfg.Raft.ApplyTimeout,
		"S3_TIMEOUT":         &cfg.S3.Timeout,
	}
	for name, dst := range durations {
		if v := os.Getenv(name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid %s value: %w", name, err)
			}
			*dst = d
		}
	}
	return nil
}
