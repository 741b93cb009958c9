package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrMissingBusinessID is returned when no business ID is configured.
// This is the only configuration problem that refuses to start the process;
// everything else is retried or defaulted.
var ErrMissingBusinessID = errors.New("config: business_id must be set")

// Config holds all application configuration.
type Config struct {
	BusinessID  string             `mapstructure:"business_id"`
	QueuePrefix string             `mapstructure:"queue_prefix"`
	Broker      BrokerConfig       `mapstructure:"broker"`
	HTTP        HTTPConfig         `mapstructure:"http"`
	Transport   TransportConfig    `mapstructure:"transport"`
	SideStore   SideStoreConfig    `mapstructure:"side_store"`
	Database    DatabaseConfig     `mapstructure:"database"`
	Logging     LoggingConfig      `mapstructure:"logging"`
	Printers    map[string]Printer `mapstructure:"printers"`
}

// BrokerConfig holds RabbitMQ connection configuration.
type BrokerConfig struct {
	URL            string        `mapstructure:"url"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	Heartbeat      time.Duration `mapstructure:"heartbeat"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// HTTPConfig holds the health/metrics server configuration.
type HTTPConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// TransportConfig holds printer transport configuration.
type TransportConfig struct {
	Port        int           `mapstructure:"port"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`
}

// SideStoreConfig holds the duplicate-detection artifact store configuration.
type SideStoreConfig struct {
	Path string `mapstructure:"path"`
}

// DatabaseConfig holds the optional PostgreSQL audit log configuration.
// An empty URL disables the audit log entirely.
type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	PoolMin        int32         `mapstructure:"pool_min"`
	PoolMax        int32         `mapstructure:"pool_max"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	// Dir is where the notification sink writes its rotating log files.
	// Empty disables file output; events still go to stdout.
	Dir       string `mapstructure:"dir"`
	MaxSizeMB int    `mapstructure:"max_size_mb"`
	MaxFiles  int    `mapstructure:"max_files"`
}

// Printer describes one statically configured printer.
type Printer struct {
	Name           string `mapstructure:"name"`
	ConnectionType string `mapstructure:"connection_type"`
	Address        string `mapstructure:"address"`
}

// QueueName returns the tenant-scoped queue name for this instance.
func (c *Config) QueueName() string {
	return c.QueuePrefix + c.BusinessID
}

// Load reads configuration from the given config directory path.
// It looks for a file named "config.yaml" in that directory.
// Environment variables with prefix PRINT_RELAY_ override file values.
// For example, PRINT_RELAY_BROKER_URL overrides broker.url.
//
// A missing config file is not an error; defaults plus environment
// variables are enough to run. A missing business ID is fatal.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)

	v.SetEnvPrefix("PRINT_RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.BusinessID == "" {
		return nil, ErrMissingBusinessID
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// An empty default registers the key so the environment variable is
	// visible to Unmarshal even without a config file.
	v.SetDefault("business_id", "")
	v.SetDefault("queue_prefix", "print_queue_")
	v.SetDefault("broker.url", "amqp://localhost")
	v.SetDefault("broker.reconnect_delay", 5*time.Second)
	v.SetDefault("broker.heartbeat", 60*time.Second)
	v.SetDefault("broker.connect_timeout", 10*time.Second)
	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 3000)
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 10*time.Second)
	v.SetDefault("transport.port", 9100)
	v.SetDefault("transport.send_timeout", 30*time.Second)
	v.SetDefault("side_store.path", "./print_output")
	v.SetDefault("database.pool_min", 1)
	v.SetDefault("database.pool_max", 4)
	v.SetDefault("database.connect_timeout", 10*time.Second)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_files", 5)
}
