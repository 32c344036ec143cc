package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// Storage backends.
const (
	BackendAuto = "auto"
	BackendDir  = "dir"
	BackendKV   = "kv"
)

// Config holds all application configuration.
type Config struct {
	// Remote record API
	API APIConfig `json:"api" mapstructure:"api"`

	// Local durable storage
	Storage StorageConfig `json:"storage" mapstructure:"storage"`

	// Reconciliation and mirroring
	Sync SyncConfig `json:"sync" mapstructure:"sync"`

	// Logging
	Log LogConfig `json:"log" mapstructure:"log"`

	// Local HTTP API served by `scoutsync serve`
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Snapshot export
	Export ExportConfig `json:"export" mapstructure:"export"`
}

// APIConfig for server communication.
type APIConfig struct {
	BaseURL       string        `json:"base_url" mapstructure:"base_url"`
	Timeout       time.Duration `json:"timeout" mapstructure:"timeout"`               // Per remote call
	HealthTimeout time.Duration `json:"health_timeout" mapstructure:"health_timeout"` // Reachability probe
	MaxRetries    int           `json:"max_retries" mapstructure:"max_retries"`       // Audit posts only
	UserAgent     string        `json:"user_agent" mapstructure:"user_agent"`
	Token         string        `json:"token,omitempty" mapstructure:"token"`
}

// StorageConfig for local persistence.
type StorageConfig struct {
	Backend     string `json:"backend" mapstructure:"backend"`             // auto, dir, kv
	RootDir     string `json:"root_dir" mapstructure:"root_dir"`           // Directory backend root
	DBPath      string `json:"db_path" mapstructure:"db_path"`             // Key-value backend database
	MaxFileSize int64  `json:"max_file_size" mapstructure:"max_file_size"` // Max record size in bytes
}

// SyncConfig for background behavior.
type SyncConfig struct {
	ReconcileInterval    time.Duration `json:"reconcile_interval" mapstructure:"reconcile_interval"`
	PullInterval         time.Duration `json:"pull_interval" mapstructure:"pull_interval"`
	ConnectivityInterval time.Duration `json:"connectivity_interval" mapstructure:"connectivity_interval"`
	AuditEnabled         bool          `json:"audit_enabled" mapstructure:"audit_enabled"`
	AuditTimeout         time.Duration `json:"audit_timeout" mapstructure:"audit_timeout"`
}

// LogConfig for logging behavior.
type LogConfig struct {
	Level      string `json:"level" mapstructure:"level"`             // debug, info, warn, error
	Format     string `json:"format" mapstructure:"format"`           // text, json
	File       string `json:"file" mapstructure:"file"`               // Log file path (empty = stderr)
	MaxSize    int    `json:"max_size" mapstructure:"max_size"`       // Max log file size in MB
	MaxBackups int    `json:"max_backups" mapstructure:"max_backups"` // Max number of old logs
	MaxAge     int    `json:"max_age" mapstructure:"max_age"`         // Max age in days
	Color      bool   `json:"color" mapstructure:"color"`             // Enable colored output
}

// ServerConfig for the local HTTP API.
type ServerConfig struct {
	Addr           string   `json:"addr" mapstructure:"addr"`
	AllowedOrigins []string `json:"allowed_origins" mapstructure:"allowed_origins"`
}

// ExportConfig for snapshot publishing. Empty bucket disables publishing.
type ExportConfig struct {
	S3Bucket        string `json:"s3_bucket" mapstructure:"s3_bucket"`
	S3Prefix        string `json:"s3_prefix" mapstructure:"s3_prefix"`
	S3Region        string `json:"s3_region" mapstructure:"s3_region"`
	S3Endpoint      string `json:"s3_endpoint" mapstructure:"s3_endpoint"`
	AccessKeyID     string `json:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
}

// DefaultConfig returns config with sensible defaults.
func DefaultConfig() *Config {
	dataDir := ".scoutsync"

	return &Config{
		API: APIConfig{
			BaseURL:       "http://localhost:8080",
			Timeout:       10 * time.Second,
			HealthTimeout: 3 * time.Second,
			MaxRetries:    3,
			UserAgent:     "scoutsync/1.0",
		},
		Storage: StorageConfig{
			Backend:     BackendAuto,
			RootDir:     filepath.Join(dataDir, "data"),
			DBPath:      filepath.Join(dataDir, "scoutsync.db"),
			MaxFileSize: 4 * 1024 * 1024, // 4MB
		},
		Sync: SyncConfig{
			ReconcileInterval:    5 * time.Minute,
			PullInterval:         30 * time.Second,
			ConnectivityInterval: 15 * time.Second,
			AuditEnabled:         true,
			AuditTimeout:         5 * time.Second,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     7,
			Color:      true,
		},
		Server: ServerConfig{
			Addr:           ":8787",
			AllowedOrigins: []string{"*"},
		},
		Export: ExportConfig{
			S3Prefix: "scoutsync/",
			S3Region: "us-east-1",
		},
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}
	if u, err := url.Parse(c.API.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api.base_url is not an absolute URL: %q", c.API.BaseURL)
	}

	if c.API.Timeout <= 0 {
		return errors.New("api.timeout must be positive")
	}

	if c.API.HealthTimeout <= 0 {
		return errors.New("api.health_timeout must be positive")
	}

	if c.API.MaxRetries < 0 {
		return errors.New("api.max_retries must not be negative")
	}

	switch c.Storage.Backend {
	case BackendAuto, BackendDir, BackendKV:
	default:
		return fmt.Errorf("invalid storage backend: %s", c.Storage.Backend)
	}

	if c.Storage.MaxFileSize <= 0 {
		return errors.New("storage.max_file_size must be positive")
	}

	if c.Sync.ReconcileInterval <= 0 || c.Sync.PullInterval <= 0 || c.Sync.ConnectivityInterval <= 0 {
		return errors.New("sync intervals must be positive")
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}

	return nil
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Storage.RootDir,
		filepath.Dir(c.Storage.DBPath),
	}

	if c.Log.File != "" {
		dirs = append(dirs, filepath.Dir(c.Log.File))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}
