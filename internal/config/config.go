// internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Device   DeviceConfig   `mapstructure:"device"`
	Database DatabaseConfig `mapstructure:"database"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Security SecurityConfig `mapstructure:"security"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	App      AppConfig      `mapstructure:"app"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DeviceConfig represents the control connection to the BD-MP4K unit
type DeviceConfig struct {
	Host             string        `mapstructure:"host" validate:"required"`
	Port             int           `mapstructure:"port"`
	MACAddress       string        `mapstructure:"mac_address"`
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	ReconnectInitial time.Duration `mapstructure:"reconnect_initial"`
	ReconnectMax     time.Duration `mapstructure:"reconnect_max"`
	OfflineThreshold int           `mapstructure:"offline_threshold"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	WatchTimeout     time.Duration `mapstructure:"watch_timeout"`
	ShutdownGuard    time.Duration `mapstructure:"shutdown_guard"`
}

// DatabaseConfig represents the optional message history store
type DatabaseConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	User         string        `mapstructure:"user"`
	Password     string        `mapstructure:"password"`
	DBName       string        `mapstructure:"dbname"`
	SSLMode      string        `mapstructure:"sslmode"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	MaxIdleConns int           `mapstructure:"max_idle_conns"`
	MaxLifetime  time.Duration `mapstructure:"max_lifetime"`
	Retention    time.Duration `mapstructure:"retention"`
}

// MQTTConfig represents the optional MQTT event bridge
type MQTTConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	ClientID  string `mapstructure:"client_id"`
	BaseTopic string `mapstructure:"base_topic"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
}

// SecurityConfig represents security configuration
type SecurityConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// AppConfig represents application metadata
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("/etc/tascam-bridge")

	// Environment variable support
	viper.SetEnvPrefix("TASCAM")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	// Config file is optional; env vars and defaults cover everything
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", "8090")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")

	// Device defaults
	viper.SetDefault("device.port", 9030)
	viper.SetDefault("device.connect_timeout", "1500ms")
	viper.SetDefault("device.write_timeout", "2s")
	viper.SetDefault("device.reconnect_initial", "1s")
	viper.SetDefault("device.reconnect_max", "30s")
	viper.SetDefault("device.offline_threshold", 3)
	viper.SetDefault("device.poll_interval", "2s")
	viper.SetDefault("device.watch_timeout", "10s")
	viper.SetDefault("device.shutdown_guard", "15s")

	// Database defaults (history store is opt-in)
	viper.SetDefault("database.enabled", false)
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.dbname", "tascam_bridge")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.max_open_conns", 10)
	viper.SetDefault("database.max_idle_conns", 2)
	viper.SetDefault("database.max_lifetime", "5m")
	viper.SetDefault("database.retention", "720h") // 30 days of history

	// MQTT defaults (bridge is opt-in)
	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.host", "localhost")
	viper.SetDefault("mqtt.port", 1883)
	viper.SetDefault("mqtt.client_id", "tascam-bridge")
	viper.SetDefault("mqtt.base_topic", "tascam/bdmp4k")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
	viper.SetDefault("logging.max_size", 100)
	viper.SetDefault("logging.max_backups", 3)
	viper.SetDefault("logging.max_age", 28)
	viper.SetDefault("logging.compress", true)

	// App defaults
	viper.SetDefault("app.name", "tascam-bridge")
	viper.SetDefault("app.version", "1.0.0")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("app.debug", false)
}

// validate validates required configuration values
func validate(config *Config) error {
	if config.Device.Host == "" {
		return fmt.Errorf("device.host is required")
	}
	if config.Device.Port <= 0 || config.Device.Port > 65535 {
		return fmt.Errorf("device.port must be a valid TCP port, got %d", config.Device.Port)
	}
	if config.Device.OfflineThreshold < 1 {
		return fmt.Errorf("device.offline_threshold must be at least 1")
	}
	if config.Device.ReconnectInitial <= 0 || config.Device.ReconnectMax < config.Device.ReconnectInitial {
		return fmt.Errorf("reconnect backoff bounds are invalid: initial=%s max=%s",
			config.Device.ReconnectInitial, config.Device.ReconnectMax)
	}
	if config.Database.Enabled && config.Database.DBName == "" {
		return fmt.Errorf("database.dbname is required when the history store is enabled")
	}
	if config.MQTT.Enabled && config.MQTT.Host == "" {
		return fmt.Errorf("mqtt.host is required when the MQTT bridge is enabled")
	}
	return nil
}

// GetDatabaseDSN returns the PostgreSQL connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User,
		c.Database.Password, c.Database.DBName, c.Database.SSLMode)
}

// GetServerAddr returns the HTTP server listen address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// GetDeviceAddr returns the unit's control socket address
func (c *Config) GetDeviceAddr() string {
	return fmt.Sprintf("%s:%d", c.Device.Host, c.Device.Port)
}

// GetMQTTBroker returns the MQTT broker URL
func (c *Config) GetMQTTBroker() string {
	return fmt.Sprintf("tcp://%s:%d", c.MQTT.Host, c.MQTT.Port)
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}
