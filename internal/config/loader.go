package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// SCOUTSYNC_API_BASE_URL.
const EnvPrefix = "SCOUTSYNC"

// Loader handles configuration loading from multiple sources.
type Loader struct {
	configPath string
	v          *viper.Viper
}

// NewLoader creates a config loader. An empty path searches the default
// locations.
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
		v:          viper.New(),
	}
}

// Load reads configuration from defaults, file, .env and environment, in
// increasing precedence.
func (l *Loader) Load() (*Config, error) {
	// A missing .env is normal outside development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	setDefaults(l.v, DefaultConfig())

	l.v.SetEnvPrefix(EnvPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if l.configPath != "" {
		l.v.SetConfigFile(l.configPath)
	} else {
		l.v.SetConfigName("scoutsync")
		for _, dir := range defaultDirs() {
			l.v.AddConfigPath(dir)
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if l.configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	return l.decode()
}

// Path returns the config file in use, if any.
func (l *Loader) Path() string {
	return l.v.ConfigFileUsed()
}

// Watch reloads the config file on change and hands every valid result to
// onChange. Invalid edits are reported through onError and ignored.
func (l *Loader) Watch(onChange func(*Config), onError func(error)) {
	l.v.OnConfigChange(func(fsnotify.Event) {
		cfg, err := l.decode()
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	})
	l.v.WatchConfig()
}

func (l *Loader) decode() (*Config, error) {
	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// defaultDirs returns default config file locations.
func defaultDirs() []string {
	dirs := []string{"."}

	if homeDir, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs,
			filepath.Join(homeDir, ".config", "scoutsync"),
			filepath.Join(homeDir, ".scoutsync"),
		)
	}

	return dirs
}

// setDefaults registers every key so environment overrides reach Unmarshal.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("api.base_url", d.API.BaseURL)
	v.SetDefault("api.timeout", d.API.Timeout)
	v.SetDefault("api.health_timeout", d.API.HealthTimeout)
	v.SetDefault("api.max_retries", d.API.MaxRetries)
	v.SetDefault("api.user_agent", d.API.UserAgent)
	v.SetDefault("api.token", d.API.Token)

	v.SetDefault("storage.backend", d.Storage.Backend)
	v.SetDefault("storage.root_dir", d.Storage.RootDir)
	v.SetDefault("storage.db_path", d.Storage.DBPath)
	v.SetDefault("storage.max_file_size", d.Storage.MaxFileSize)

	v.SetDefault("sync.reconcile_interval", d.Sync.ReconcileInterval)
	v.SetDefault("sync.pull_interval", d.Sync.PullInterval)
	v.SetDefault("sync.connectivity_interval", d.Sync.ConnectivityInterval)
	v.SetDefault("sync.audit_enabled", d.Sync.AuditEnabled)
	v.SetDefault("sync.audit_timeout", d.Sync.AuditTimeout)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size", d.Log.MaxSize)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age", d.Log.MaxAge)
	v.SetDefault("log.color", d.Log.Color)

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)

	v.SetDefault("export.s3_bucket", d.Export.S3Bucket)
	v.SetDefault("export.s3_prefix", d.Export.S3Prefix)
	v.SetDefault("export.s3_region", d.Export.S3Region)
	v.SetDefault("export.s3_endpoint", d.Export.S3Endpoint)
	v.SetDefault("export.access_key_id", d.Export.AccessKeyID)
	v.SetDefault("export.secret_access_key", d.Export.SecretAccessKey)
}
