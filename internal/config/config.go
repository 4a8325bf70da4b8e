// Package config loads stockpile settings from an optional YAML file and
// STOCKPILE_* environment variables. Environment values override the file.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Environments select the log handler.
const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

// PathEnv names the variable consulted when no config path is given.
const PathEnv = "STOCKPILE_CONFIG"

// Config is the root configuration.
type Config struct {
	Env     string  `yaml:"env" env:"STOCKPILE_ENV" env-default:"local" env-description:"log profile: local, dev or prod"`
	Storage Storage `yaml:"storage"`
	Blob    Blob    `yaml:"blob"`
	Metrics Metrics `yaml:"metrics"`
}

// Storage selects the repository backend.
type Storage struct {
	Driver      string `yaml:"driver" env:"STOCKPILE_STORAGE_DRIVER" env-default:"sqlite" env-description:"memory, sqlite or postgres"`
	SQLitePath  string `yaml:"sqlite_path" env:"STOCKPILE_SQLITE_PATH" env-default:"stockpile.db" env-description:"sqlite database file"`
	PostgresDSN string `yaml:"postgres_dsn" env:"STOCKPILE_POSTGRES_DSN" env-description:"postgres connection string"`
}

// Blob selects where export artifacts are written.
type Blob struct {
	Driver string `yaml:"driver" env:"STOCKPILE_BLOB_DRIVER" env-default:"fs" env-description:"fs, s3 or memory"`
	FSRoot string `yaml:"fs_root" env:"STOCKPILE_BLOB_FS_ROOT" env-default:"./blobdata" env-description:"root directory for the fs driver"`
	S3     S3     `yaml:"s3"`
}

// S3 configures the s3 blob driver. Credentials fall back to the AWS chain.
type S3 struct {
	Bucket          string `yaml:"bucket" env:"STOCKPILE_BLOB_S3_BUCKET" env-description:"bucket name, required for s3"`
	Region          string `yaml:"region" env:"STOCKPILE_BLOB_S3_REGION" env-default:"us-east-1"`
	Endpoint        string `yaml:"endpoint" env:"STOCKPILE_BLOB_S3_ENDPOINT" env-description:"custom endpoint, e.g. MinIO"`
	Prefix          string `yaml:"prefix" env:"STOCKPILE_BLOB_S3_PREFIX"`
	PathStyle       bool   `yaml:"path_style" env:"STOCKPILE_BLOB_S3_PATH_STYLE" env-default:"false"`
	AccessKeyID     string `yaml:"access_key_id" env:"STOCKPILE_BLOB_S3_ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" env:"STOCKPILE_BLOB_S3_SECRET_ACCESS_KEY"`
}

// Metrics selects the store metrics recorder and the optional scrape listener.
type Metrics struct {
	Recorder string `yaml:"recorder" env:"STOCKPILE_METRICS" env-default:"none" env-description:"none, expvar or prometheus"`
	Addr     string `yaml:"addr" env:"STOCKPILE_METRICS_ADDR" env-description:"listen address for /metrics and /debug/vars"`
}

// Load reads the file at path, or the file named by STOCKPILE_CONFIG when path
// is empty, then applies the environment. With no file only the environment
// and defaults are used.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(PathEnv)
	}
	var cfg Config
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks enumerated settings and driver requirements.
func (c *Config) Validate() error {
	var errs []error
	check := func(field, value string, allowed ...string) {
		for _, a := range allowed {
			if value == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("%s: unsupported value %q", field, value))
	}
	check("env", c.Env, EnvLocal, EnvDev, EnvProd)
	check("storage.driver", c.Storage.Driver, "memory", "sqlite", "postgres")
	check("blob.driver", c.Blob.Driver, "fs", "s3", "memory")
	check("metrics.recorder", c.Metrics.Recorder, "none", "expvar", "prometheus")
	if c.Storage.Driver == "postgres" && c.Storage.PostgresDSN == "" {
		errs = append(errs, errors.New("storage.postgres_dsn: required for postgres"))
	}
	if c.Blob.Driver == "s3" && c.Blob.S3.Bucket == "" {
		errs = append(errs, errors.New("blob.s3.bucket: required for s3"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Describe lists the recognised environment variables.
func Describe() (string, error) {
	var cfg Config
	return cleanenv.GetDescription(&cfg, nil)
}
