package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Version is set at build time with -ldflags.
var Version = "dev"

const (
	BackendDynamoDB = "dynamodb"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"

	// With IS_LOCAL=true the region is always localRegion and localEndpoint
	// is used unless an endpoint is configured.
	localEndpoint = "http://localhost:8000"
	localRegion   = "us-west-2"
)

// Config holds application-wide configuration
type Config struct {
	ListenAddr string          `mapstructure:"listenAddr"`
	LogLevel   string          `mapstructure:"logLevel"`
	Storage    StorageConfig   `mapstructure:"storage"`
	Events     EventsConfig    `mapstructure:"events"`
	Notify     NotifyConfig    `mapstructure:"notify"`
	Configure  ConfigureConfig `mapstructure:"configure"`
	Metrics    MetricsConfig   `mapstructure:"metrics"`
	CORS       CORSConfig      `mapstructure:"cors"`
}

type StorageConfig struct {
	Backend    string `mapstructure:"backend"`
	Table      string `mapstructure:"table"`
	Region     string `mapstructure:"region"`
	Endpoint   string `mapstructure:"endpoint"`
	ConnString string `mapstructure:"connString"`
	PageSize   int    `mapstructure:"pageSize"`
}

// EventsConfig selects the connector inventory events are published to.
// Config is handed to the connector's Connect unchanged.
type EventsConfig struct {
	Connector string         `mapstructure:"connector"`
	Topic     string         `mapstructure:"topic"`
	Config    map[string]any `mapstructure:"config"`
}

// NotifyConfig selects the connector the consumers read from. Source is the
// queue, topic or subject name, depending on the connector.
type NotifyConfig struct {
	Connector string         `mapstructure:"connector"`
	Source    string         `mapstructure:"source"`
	Config    map[string]any `mapstructure:"config"`
	DelayMs   int            `mapstructure:"delayMs"`
}

// Delay returns the notification wait; zero or negative selects 10s.
func (n NotifyConfig) Delay() time.Duration {
	if n.DelayMs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(n.DelayMs) * time.Millisecond
}

type ConfigureConfig struct {
	Table string `mapstructure:"table"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowedOrigins"`
	AllowCredentials bool     `mapstructure:"allowCredentials"`
}

// envAliases maps environment variables of the original deployment to keys.
var envAliases = map[string][]string{
	"storage.table":   {"INVENTORY_STORAGE_TABLE", "INVENTORY_TABLE"},
	"events.topic":    {"INVENTORY_EVENTS_TOPIC", "INVENTORY_TOPIC"},
	"notify.delayMs":  {"INVENTORY_NOTIFY_DELAYMS", "SLEEP_TIME_MS"},
	"configure.table": {"INVENTORY_CONFIGURE_TABLE", "CONFIGURATION_TABLE"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listenAddr", ":8080")
	v.SetDefault("logLevel", "info")
	v.SetDefault("storage.backend", BackendDynamoDB)
	v.SetDefault("storage.table", "inventory")
	v.SetDefault("storage.region", "")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.connString", "")
	v.SetDefault("storage.pageSize", 0)
	v.SetDefault("events.connector", "sns")
	v.SetDefault("events.topic", "")
	v.SetDefault("notify.connector", "sqs")
	v.SetDefault("notify.source", "")
	v.SetDefault("notify.delayMs", 10000)
	v.SetDefault("configure.table", "configuration")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.addr", ":9100")
	v.SetDefault("cors.allowedOrigins", []string{})
	v.SetDefault("cors.allowCredentials", false)
}

// New returns a viper instance with defaults, environment bindings and the
// config file search path set up. Callers may bind flags before Load.
func New(cfgFile string) *viper.Viper {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("inventory")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config"))
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("INVENTORY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		_ = v.BindEnv(append([]string{key}, names...)...)
	}
	return v
}

// Load reads config from file or environment
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if os.Getenv("IS_LOCAL") == "true" {
		cfg.Storage.Region = localRegion
		if cfg.Storage.Endpoint == "" {
			cfg.Storage.Endpoint = localEndpoint
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings every command depends on. Connector specific
// settings are validated by the connector itself.
func (c *Config) Validate() error {
	var errs []error

	backends := []string{BackendDynamoDB, BackendPostgres, BackendMemory}
	if !slices.Contains(backends, c.Storage.Backend) {
		errs = append(errs, fmt.Errorf("storage.backend must be one of %v, got %q", backends, c.Storage.Backend))
	}
	if c.Storage.Backend == BackendPostgres && c.Storage.ConnString == "" {
		errs = append(errs, errors.New("storage.connString is required for the postgres backend"))
	}
	if c.Storage.Table == "" {
		errs = append(errs, errors.New("storage.table is required"))
	}
	if c.Storage.PageSize < 0 {
		errs = append(errs, errors.New("storage.pageSize must not be negative"))
	}
	if c.Events.Connector == "" {
		errs = append(errs, errors.New("events.connector is required"))
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, errors.New("metrics.addr is required when metrics are enabled"))
	}

	return errors.Join(errs...)
}
