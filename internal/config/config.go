// Package config loads configuration from environment variables, with an
// optional YAML overlay file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Category is a named bucket of the file listing, matched against the
// second path segment.
type Category struct {
	Token string `yaml:"token"`
	Title string `yaml:"title"`
}

// Config holds all kbdocs configuration.
type Config struct {
	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Metrics (served by watch)
	MetricsAddr string `yaml:"metrics_addr"`

	// Database
	DatabaseURL string `yaml:"database_url"`

	// Storage backend ("local" or "s3", default: "local")
	StorageBackend   string `yaml:"storage_backend"`
	LocalStoragePath string `yaml:"local_storage_path"`

	// S3 storage
	S3Endpoint  string `yaml:"s3_endpoint"`
	S3Bucket    string `yaml:"s3_bucket"`
	S3AccessKey string `yaml:"s3_access_key"`
	S3SecretKey string `yaml:"s3_secret_key"`
	S3Region    string `yaml:"s3_region"`
	S3UseSSL    bool   `yaml:"s3_use_ssl"`

	// Operator identity recorded on delete requests
	User string `yaml:"user"`

	// Listing
	Project          string        `yaml:"project"`
	Categories       []Category    `yaml:"categories"`
	UploadExtensions []string      `yaml:"upload_extensions"`
	RefreshInterval  time.Duration `yaml:"refresh_interval"`

	// Source fetch retries
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryWait     time.Duration `yaml:"retry_wait"`
}

// DefaultCategories are the sections shown when none are configured.
func DefaultCategories() []Category {
	return []Category{
		{Token: "knowledge-base", Title: "Knowledge Files"},
		{Token: "prompts", Title: "Prompts"},
	}
}

// Load reads configuration from environment variables with defaults.
// If path is non-empty (or KBDOCS_CONFIG is set) the YAML file is applied
// on top of the environment.
func Load(path string) (*Config, error) {
	cfg := &Config{
		LogLevel:         envOr("LOG_LEVEL", "info"),
		LogFormat:        envOr("LOG_FORMAT", "console"),
		MetricsAddr:      envOr("METRICS_ADDR", ":9090"),
		DatabaseURL:      envOr("DATABASE_URL", ""),
		StorageBackend:   envOr("STORAGE_BACKEND", "local"),
		LocalStoragePath: envOr("LOCAL_STORAGE_PATH", "/data/kbdocs"),
		S3Endpoint:       envOr("S3_ENDPOINT", "http://localhost:9000"),
		S3Bucket:         envOr("S3_BUCKET", "kbdocs"),
		S3AccessKey:      envOr("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:      envOr("S3_SECRET_KEY", "minioadmin"),
		S3Region:         envOr("S3_REGION", "us-east-1"),
		S3UseSSL:         envBool("S3_USE_SSL", false),
		User:             envOr("KBDOCS_USER", os.Getenv("USER")),
		Project:          envOr("KBDOCS_PROJECT", ""),
		Categories:       envCategories("KBDOCS_CATEGORIES", DefaultCategories()),
		UploadExtensions: envList("KBDOCS_UPLOAD_EXTENSIONS", []string{".txt", ".md"}),
		RefreshInterval:  envDuration("KBDOCS_REFRESH_INTERVAL", 30*time.Second),
		RetryAttempts:    envInt("KBDOCS_RETRY_ATTEMPTS", 3),
		RetryWait:        envDuration("KBDOCS_RETRY_WAIT", 200*time.Millisecond),
	}

	if path == "" {
		path = os.Getenv("KBDOCS_CONFIG")
	}
	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	switch c.StorageBackend {
	case "local":
		if c.LocalStoragePath == "" {
			return fmt.Errorf("LOCAL_STORAGE_PATH is required for the local backend")
		}
	case "s3":
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown storage backend: %s", c.StorageBackend)
	}
	if len(c.Categories) == 0 {
		return fmt.Errorf("at least one category is required")
	}
	if c.RetryAttempts < 1 {
		c.RetryAttempts = 1
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

// envCategories parses "token=Title,token2=Title 2". A bare token uses
// itself as the title.
func envCategories(key string, fallback []Category) []Category {
	items := envList(key, nil)
	if len(items) == 0 {
		return fallback
	}
	cats := make([]Category, 0, len(items))
	for _, item := range items {
		token, title, ok := strings.Cut(item, "=")
		token = strings.TrimSpace(token)
		if !ok {
			title = token
		}
		cats = append(cats, Category{Token: token, Title: strings.TrimSpace(title)})
	}
	return cats
}
