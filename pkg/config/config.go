// Package config defines the database configuration surface: programmatic
// defaults, YAML file loading, and environment overrides for the server
// binaries.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lynxdb/lynx/pkg/core"
)

// HNSWConfig holds the graph index parameters. They are frozen at index
// construction.
type HNSWConfig struct {
	M              int    `yaml:"m"`
	EfConstruction int    `yaml:"ef_construction"`
	EfSearch       int    `yaml:"ef_search"`
	MaxElements    int    `yaml:"max_elements"`
	RandomSeed     *int64 `yaml:"random_seed,omitempty"`
}

// IVFConfig holds the clustered index parameters.
type IVFConfig struct {
	NClusters int `yaml:"n_clusters"`
	NProbe    int `yaml:"n_probe"`
}

// Config describes one database instance.
type Config struct {
	// Dimension is the fixed vector length. Required.
	Dimension int `yaml:"dimension"`
	// DistanceMetric defaults to L2.
	DistanceMetric core.DistanceMetric `yaml:"-"`
	// IndexType defaults to HNSW.
	IndexType core.IndexType `yaml:"-"`

	HNSW HNSWConfig `yaml:"hnsw"`
	IVF  IVFConfig  `yaml:"ivf"`

	// DataPath is the persistence directory; empty means in-memory only.
	DataPath string `yaml:"data_path"`
	// EnableWAL is reserved. Flush returns NotImplemented while it is set.
	EnableWAL bool `yaml:"enable_wal"`
}

// ServerConfig holds the REST server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	AuthEnabled bool   `yaml:"auth_enabled"`
	JWTSecret   string `yaml:"jwt_secret"`

	RateLimitEnabled bool    `yaml:"rate_limit_enabled"`
	RequestsPerSec   float64 `yaml:"requests_per_sec"`
	Burst            int     `yaml:"burst"`
}

// LoggingConfig holds logging settings for the binaries.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// AppConfig is the full configuration consumed by cmd/server.
type AppConfig struct {
	Server   ServerConfig  `yaml:"server"`
	Database Config        `yaml:"database"`
	Logging  LoggingConfig `yaml:"logging"`
}

// Default returns a database configuration with every optional field at
// its documented default. Dimension must still be set by the caller.
func Default(dimension int) Config {
	return Config{
		Dimension:      dimension,
		DistanceMetric: core.L2,
		IndexType:      core.IndexHNSW,
		HNSW: HNSWConfig{
			M:              16,
			EfConstruction: 200,
			EfSearch:       50,
			MaxElements:    1_000_000,
		},
		IVF: IVFConfig{
			NClusters: 1024,
			NProbe:    10,
		},
	}
}

// DefaultApp returns the full default application configuration.
func DefaultApp() AppConfig {
	return AppConfig{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			RequestsPerSec: 100,
			Burst:          200,
		},
		Database: Default(0),
		Logging:  LoggingConfig{Level: "info"},
	}
}

// Validate checks a database configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", core.ErrInvalidParameter, c.Dimension)
	}
	switch c.DistanceMetric {
	case core.L2, core.Cosine, core.DotProduct:
	default:
		return fmt.Errorf("%w: unknown distance metric %d", core.ErrInvalidParameter, c.DistanceMetric)
	}
	switch c.IndexType {
	case core.IndexFlat, core.IndexHNSW, core.IndexIVF:
	default:
		return fmt.Errorf("%w: unknown index type %d", core.ErrInvalidParameter, c.IndexType)
	}
	if c.IndexType == core.IndexHNSW {
		if c.HNSW.M <= 1 {
			return fmt.Errorf("%w: hnsw.m must be greater than 1", core.ErrInvalidParameter)
		}
		if c.HNSW.EfConstruction <= 0 || c.HNSW.EfSearch <= 0 {
			return fmt.Errorf("%w: hnsw ef parameters must be positive", core.ErrInvalidParameter)
		}
	}
	if c.IndexType == core.IndexIVF {
		if c.IVF.NClusters <= 0 {
			return fmt.Errorf("%w: ivf.n_clusters must be positive", core.ErrInvalidParameter)
		}
		if c.IVF.NProbe <= 0 {
			return fmt.Errorf("%w: ivf.n_probe must be positive", core.ErrInvalidParameter)
		}
	}
	return nil
}

// fileConfig mirrors AppConfig with the enums as strings for YAML.
type fileConfig struct {
	Server   ServerConfig  `yaml:"server"`
	Logging  LoggingConfig `yaml:"logging"`
	Database struct {
		Config         `yaml:",inline"`
		DistanceMetric string `yaml:"distance_metric"`
		IndexType      string `yaml:"index_type"`
	} `yaml:"database"`
}

// LoadFile reads an application configuration from a YAML file, applying
// defaults for everything the file leaves unset.
func LoadFile(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read config: %v", core.ErrIOError, err)
	}

	app := DefaultApp()
	var fc fileConfig
	fc.Server = app.Server
	fc.Logging = app.Logging
	fc.Database.Config = app.Database
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("%w: parse config: %v", core.ErrInvalidParameter, err)
	}

	app.Server = fc.Server
	app.Logging = fc.Logging
	app.Database = fc.Database.Config

	if fc.Database.DistanceMetric != "" {
		m, err := ParseDistanceMetric(fc.Database.DistanceMetric)
		if err != nil {
			return nil, err
		}
		app.Database.DistanceMetric = m
	}
	if fc.Database.IndexType != "" {
		t, err := ParseIndexType(fc.Database.IndexType)
		if err != nil {
			return nil, err
		}
		app.Database.IndexType = t
	}

	return &app, nil
}

// FromEnv overlays LYNX_* environment variables onto the configuration.
// Unset variables leave the current values untouched.
func (a *AppConfig) FromEnv() {
	if v := os.Getenv("LYNX_HOST"); v != "" {
		a.Server.Host = v
	}
	if v := os.Getenv("LYNX_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			a.Server.Port = p
		}
	}
	if v := os.Getenv("LYNX_JWT_SECRET"); v != "" {
		a.Server.JWTSecret = v
		a.Server.AuthEnabled = true
	}
	if v := os.Getenv("LYNX_DATA_PATH"); v != "" {
		a.Database.DataPath = v
	}
	if v := os.Getenv("LYNX_DIMENSION"); v != "" {
		if d, err := strconv.Atoi(v); err == nil {
			a.Database.Dimension = d
		}
	}
	if v := os.Getenv("LYNX_INDEX_TYPE"); v != "" {
		if t, err := ParseIndexType(v); err == nil {
			a.Database.IndexType = t
		}
	}
	if v := os.Getenv("LYNX_LOG_LEVEL"); v != "" {
		a.Logging.Level = v
	}
}

// ParseDistanceMetric converts a config string into a metric.
func ParseDistanceMetric(s string) (core.DistanceMetric, error) {
	switch strings.ToLower(s) {
	case "l2", "euclidean":
		return core.L2, nil
	case "cosine":
		return core.Cosine, nil
	case "dot", "dot_product", "ip":
		return core.DotProduct, nil
	default:
		return 0, fmt.Errorf("%w: unknown distance metric %q", core.ErrInvalidParameter, s)
	}
}

// ParseIndexType converts a config string into an index type.
func ParseIndexType(s string) (core.IndexType, error) {
	switch strings.ToLower(s) {
	case "flat":
		return core.IndexFlat, nil
	case "hnsw":
		return core.IndexHNSW, nil
	case "ivf":
		return core.IndexIVF, nil
	default:
		return 0, fmt.Errorf("%w: unknown index type %q", core.ErrInvalidParameter, s)
	}
}
