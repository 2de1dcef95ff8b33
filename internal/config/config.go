// Package config provides configuration management for the streviz
// scheduling/supervision engine using Viper: a config file plus
// environment-variable overrides resolve into one strongly-typed Config.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 10
	defaultConnMaxIdleTime = 30 * time.Minute

	defaultMaxTotalStreams     = 50
	defaultMaxCPUTranscode     = 8
	defaultMaxNVENCTranscode   = 6
	defaultMaxTotalBitrateMbps = 500

	defaultCacheMaxSizeBytes  = 50 * 1024 * 1024 * 1024 // 50GB
	defaultCacheMaxAge        = 30 * 24 * time.Hour
	defaultCacheWarnThreshold = 80

	defaultJanitorCron = "0 */15 * * * *" // every 15 minutes, 6-field cron
)

// Config holds all configuration for the scheduling/supervision engine.
type Config struct {
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Encoder     EncoderConfig     `mapstructure:"encoder"`
	GPU         GPUConfig         `mapstructure:"gpu"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	MediaServer MediaServerConfig `mapstructure:"media_server"`
	Janitor     JanitorConfig     `mapstructure:"janitor"`
}

// SchedulerConfig holds the four capacity ceilings the scheduler enforces
// on admission, and the identifiers it maps directly onto models.Settings.
type SchedulerConfig struct {
	MaxTotalStreams     uint32 `mapstructure:"max_total_streams"`
	MaxCPUTranscode     uint32 `mapstructure:"max_cpu_transcode"`
	MaxNVENCTranscode   uint32 `mapstructure:"max_nvenc_transcode"`
	MaxTotalBitrateMbps uint32 `mapstructure:"max_total_bitrate_mbps"`
}

// CacheConfig controls the normalize cache's retention and warning
// thresholds. MaxSize and MaxAge accept human-readable forms ("50GB",
// "30d") via ByteSize/Duration's TextUnmarshaler implementations.
type CacheConfig struct {
	Dir                  string   `mapstructure:"dir"`
	MaxSize              ByteSize `mapstructure:"max_size"`
	MaxAge               Duration `mapstructure:"max_age"`
	WarnThresholdPercent int      `mapstructure:"warn_threshold_percent"`
}

// EncoderConfig controls how the encoder binary is located. BinaryName is
// handed to util.FindBinary by `stream run`. KnownLocations and BundledPath
// are loaded but not read by any code: util.FindBinary searches only its
// env-var override, the working directory, its own fixed list of install
// directories, and PATH.
type EncoderConfig struct {
	BinaryName     string   `mapstructure:"binary_name"`
	ProbeName      string   `mapstructure:"probe_name"`
	KnownLocations []string `mapstructure:"known_locations"`
	BundledPath    string   `mapstructure:"bundled_path"`
}

// GPUConfig holds NVENC session-limit settings.
type GPUConfig struct {
	// SessionLimits maps an uppercase substring of a GPU name to a maximum
	// concurrent NVENC session count, and FallbackMax is the count for an
	// unmatched name. Both are only loaded: nothing passes them to
	// gpu.Detector, which `encoder detect` builds with
	// gpu.DefaultFamilyLimits and gpu.DefaultFallbackMax.
	SessionLimits map[string]int `mapstructure:"session_limits"`
	FallbackMax   int            `mapstructure:"fallback_max"`
}

// DatabaseConfig holds database connection configuration for the cache and
// merge-job persistence layers. sqlite is the default (no cgo, via
// glebarez/sqlite); postgres/mysql are supported for parity with larger
// deployments.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info

	// SQLitePragmas is per-connection tuning applied via the driver's
	// _pragma DSN parameters, so every pooled connection gets it rather
	// than only the first. An empty map falls back to
	// DefaultSQLitePragmas. Ignored for postgres/mysql.
	SQLitePragmas map[string]string `mapstructure:"sqlite_pragmas"`
}

// DefaultSQLitePragmas is the tuning used when the config doesn't override
// it: WAL so cache reads don't block behind a normalize recording its
// entry, a busy timeout that outlasts a janitor sweep holding the write
// lock, and memory-side settings sized for a single-host engine.
func DefaultSQLitePragmas() map[string]string {
	return map[string]string{
		"busy_timeout": "30000",
		"journal_mode": "WAL",
		"synchronous":  "NORMAL",
		"foreign_keys": "ON",
		"cache_size":   "-64000",
		"temp_store":   "MEMORY",
	}
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// MediaServerConfig describes the external media-server sidecar (the
// RTSP/SRT relay) that published streams target. The engine never manages
// this process's own lifecycle or YAML config. Only WANMode is read (by
// `stream run`); publish URLs are built by internal/credentials from
// localhost (0.0.0.0 in WAN mode) and its fixed ports 8554/8890, not from
// Host, RTSPPort or SRTPort.
type MediaServerConfig struct {
	Host     string `mapstructure:"host"`
	RTSPPort int    `mapstructure:"rtsp_port"`
	SRTPort  int    `mapstructure:"srt_port"`
	WANMode  bool   `mapstructure:"wan_mode"`
}

// JanitorConfig controls the periodic cache-cleanup schedule.
type JanitorConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Cron    string `mapstructure:"cron"` // 6-field cron expression
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration and are
// prefixed with STREVIZ_, with underscores replacing nesting dots.
// Example: STREVIZ_SCHEDULER_MAX_TOTAL_STREAMS=100.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/streviz")
		v.AddConfigPath("$HOME/.streviz")
	}

	v.SetEnvPrefix("STREVIZ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars.
	}

	// The TextUnmarshaller hook is what lets ByteSize/Duration fields accept
	// human-readable forms ("50GB", "30d") from the config file; viper's
	// default hooks only cover time.Duration and comma-separated slices.
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
	))); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults
// are in place.
func SetDefaults(v *viper.Viper) {
	// Scheduler defaults
	v.SetDefault("scheduler.max_total_streams", defaultMaxTotalStreams)
	v.SetDefault("scheduler.max_cpu_transcode", defaultMaxCPUTranscode)
	v.SetDefault("scheduler.max_nvenc_transcode", defaultMaxNVENCTranscode)
	v.SetDefault("scheduler.max_total_bitrate_mbps", defaultMaxTotalBitrateMbps)

	// Cache defaults
	v.SetDefault("cache.dir", "./data/cache")
	v.SetDefault("cache.max_size", defaultCacheMaxSizeBytes)
	v.SetDefault("cache.max_age", defaultCacheMaxAge)
	v.SetDefault("cache.warn_threshold_percent", defaultCacheWarnThreshold)

	// Encoder defaults
	v.SetDefault("encoder.binary_name", "ffmpeg")
	v.SetDefault("encoder.probe_name", "ffprobe")
	v.SetDefault("encoder.known_locations", []string{"/usr/local/bin", "/usr/bin", "/opt/ffmpeg/bin", "/snap/bin"})
	v.SetDefault("encoder.bundled_path", "")

	// GPU defaults (empty map means fall back to gpu.DefaultFamilyLimits)
	v.SetDefault("gpu.session_limits", map[string]int{})
	v.SetDefault("gpu.fallback_max", 6)

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "streviz.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.sqlite_pragmas", DefaultSQLitePragmas())

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Media-server defaults
	v.SetDefault("media_server.host", "localhost")
	v.SetDefault("media_server.rtsp_port", 8554)
	v.SetDefault("media_server.srt_port", 8890)
	v.SetDefault("media_server.wan_mode", false)

	// Janitor defaults
	v.SetDefault("janitor.enabled", true)
	v.SetDefault("janitor.cron", defaultJanitorCron)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Scheduler.MaxTotalStreams == 0 {
		return fmt.Errorf("scheduler.max_total_streams must be at least 1")
	}

	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	if c.Cache.Dir == "" {
		return fmt.Errorf("cache.dir is required")
	}
	if c.Cache.WarnThresholdPercent < 0 || c.Cache.WarnThresholdPercent > 100 {
		return fmt.Errorf("cache.warn_threshold_percent must be between 0 and 100")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.Encoder.BinaryName == "" {
		return fmt.Errorf("encoder.binary_name is required")
	}

	return nil
}
