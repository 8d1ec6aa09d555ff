// Package config loads filevault settings. Sources are applied in order:
// built-in defaults, the YAML config file, FILEVAULT_* environment
// variables, then command line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. FILEVAULT_SERVER_ADDR.
const EnvPrefix = "FILEVAULT"

// Config is the complete daemon configuration.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Content  ContentConfig  `mapstructure:"content"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Bucket   BucketConfig   `mapstructure:"bucket"`
	Share    ShareConfig    `mapstructure:"share"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=console json"`
	Output string `mapstructure:"output"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	MaxUploadSize   string        `mapstructure:"max_upload_size" validate:"required"`
	// ShareRateLimit is requests per second per client on /share; 0 disables it.
	ShareRateLimit float64 `mapstructure:"share_rate_limit" validate:"gte=0"`
	ShareRateBurst int     `mapstructure:"share_rate_burst" validate:"gte=0"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" validate:"required,oneof=sqlite postgres"`
	DSN             string        `mapstructure:"dsn" validate:"required"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"gte=0"`
}

type ContentConfig struct {
	Type   string              `mapstructure:"type" validate:"required,oneof=fs s3 badger memory"`
	FS     FSContentConfig     `mapstructure:"fs"`
	S3     S3ContentConfig     `mapstructure:"s3"`
	Badger BadgerContentConfig `mapstructure:"badger"`
}

type FSContentConfig struct {
	Root string `mapstructure:"root"`
}

type S3ContentConfig struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	KeyPrefix       string `mapstructure:"key_prefix"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
}

type BadgerContentConfig struct {
	Dir string `mapstructure:"dir"`
}

type AuthConfig struct {
	Mode        string        `mapstructure:"mode" validate:"required,oneof=jwt static"`
	Secret      string        `mapstructure:"secret"`
	StaticOwner string        `mapstructure:"static_owner"`
	TokenTTL    time.Duration `mapstructure:"token_ttl" validate:"gt=0"`
}

type BucketConfig struct {
	DefaultName  string `mapstructure:"default_name" validate:"required"`
	DefaultOwner string `mapstructure:"default_owner" validate:"required"`
}

type ShareConfig struct {
	MaxAttempts      uint64        `mapstructure:"max_attempts" validate:"gte=1"`
	InitialBackoff   time.Duration `mapstructure:"initial_backoff" validate:"gt=0"`
	MaxBackoff       time.Duration `mapstructure:"max_backoff" validate:"gtefield=InitialBackoff"`
	FailureRatio     float64       `mapstructure:"failure_ratio" validate:"gt=0,lte=1"`
	MinimumRequests  uint32        `mapstructure:"minimum_requests" validate:"gte=1"`
	Window           time.Duration `mapstructure:"window" validate:"gt=0"`
	OpenTimeout      time.Duration `mapstructure:"open_timeout" validate:"gt=0"`
	HalfOpenRequests uint32        `mapstructure:"half_open_requests" validate:"gte=1"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// flagKeys maps config keys to the command line flags that may override them.
var flagKeys = map[string]string{
	"logging.level":   "log-level",
	"logging.format":  "log-format",
	"server.addr":     "addr",
	"database.driver": "db-driver",
	"database.dsn":    "db-dsn",
	"content.type":    "content-type",
	"content.fs.root": "content-root",
	"auth.mode":       "auth-mode",
}

// Load reads the configuration. configPath may be empty, in which case
// filevault.yaml is looked up in the working directory and /etc/filevault.
// flags may be nil.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	if flags != nil {
		for key, name := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func readConfigFile(v *viper.Viper, configPath string) error {
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
		return nil
	}

	v.SetConfigName("filevault")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/filevault")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}
