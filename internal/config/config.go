package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"prichal/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App           AppConfig           `yaml:"app"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Backup        BackupConfig        `yaml:"backup"`
	Monitoring    MonitoringConfig    `yaml:"monitoring"`
	Logging       LoggingConfig       `yaml:"logging"`
	API           APIConfig           `yaml:"api"`
	Booking       BookingConfig       `yaml:"booking"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Settings      models.Settings     `yaml:"settings"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIGRPCConfig struct {
	Enabled    bool         `yaml:"enabled"`
	Port       int          `yaml:"port"`
	Reflection bool         `yaml:"reflection"`
	TLS        APITLSConfig `yaml:"tls"`
}

type APITLSConfig struct {
	Enabled           bool   `yaml:"enabled"`
	CertFile          string `yaml:"cert_file"`
	KeyFile           string `yaml:"key_file"`
	ClientCAFile      string `yaml:"client_ca_file"`
	RequireClientCert bool   `yaml:"require_client_cert"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
	// Shared включает общий для всех инстансов счетчик в Redis
	Shared        bool `yaml:"shared"`
	SharedLimit   int  `yaml:"shared_limit"`
	SharedWindowS int  `yaml:"shared_window_seconds"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path          string `yaml:"path"`
	BusyTimeoutMS int    `yaml:"busy_timeout_ms"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
	Caller   bool   `yaml:"caller"`
}

type BookingConfig struct {
	Timezone               string `yaml:"timezone"`
	Currency               string `yaml:"currency"`
	BookingPrefix          string `yaml:"booking_prefix"`
	InquiryPrefix          string `yaml:"inquiry_prefix"`
	CatalogPath            string `yaml:"catalog_path"`
	SettingsCacheTTLSecond int    `yaml:"settings_cache_ttl_seconds"`
	SweepIntervalSeconds   int    `yaml:"sweep_interval_seconds"`
}

// Location resolves the operating time zone; dates and hours are interpreted in it.
func (b BookingConfig) Location() (*time.Location, error) {
	if b.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", b.Timezone, err)
	}
	return loc, nil
}

func (b BookingConfig) SettingsCacheTTL() time.Duration {
	return time.Duration(b.SettingsCacheTTLSecond) * time.Second
}

func (b BookingConfig) SweepInterval() time.Duration {
	return time.Duration(b.SweepIntervalSeconds) * time.Second
}

type NotificationsConfig struct {
	Enabled             bool   `yaml:"enabled"`
	WebhookURL          string `yaml:"webhook_url"`
	TimeoutSeconds      int    `yaml:"timeout_seconds"`
	MaxRetries          int    `yaml:"max_retries"`
	InitialDelaySeconds int    `yaml:"initial_delay_seconds"`
	MaxDelaySeconds     int    `yaml:"max_delay_seconds"`
	QueueKey            string `yaml:"queue_key"`
	DeadLetterKey       string `yaml:"dead_letter_key"`
}

func Load(configPath string) (*Config, error) {
	// Загружаем .env файл если существует
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if _, err := c.Booking.Location(); err != nil {
		return err
	}

	if c.Notifications.Enabled && c.Notifications.WebhookURL == "" {
		return errors.New("notifications.webhook_url is required when notifications are enabled")
	}

	for _, k := range c.API.Auth.APIKeys {
		if k.Key == "" || k.Extra == "" {
			return fmt.Errorf("api key %q must have key and extra", k.Name)
		}
	}

	return ValidateSettings(&c.Settings)
}

func (c *Config) applyDefaults() {
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}
	if c.API.RateLimit.Shared && c.API.RateLimit.SharedWindowS == 0 {
		c.API.RateLimit.SharedWindowS = 60
	}
	if c.Database.BusyTimeoutMS == 0 {
		c.Database.BusyTimeoutMS = 5000
	}

	// Booking defaults
	if c.Booking.Currency == "" {
		c.Booking.Currency = "INR"
	}
	if c.Booking.BookingPrefix == "" {
		c.Booking.BookingPrefix = models.DefaultBookingPrefix
	}
	if c.Booking.InquiryPrefix == "" {
		c.Booking.InquiryPrefix = models.DefaultInquiryPrefix
	}
	if c.Booking.CatalogPath == "" {
		c.Booking.CatalogPath = "configs/resources.yaml"
	}
	if c.Booking.SettingsCacheTTLSecond == 0 {
		c.Booking.SettingsCacheTTLSecond = models.DefaultSettingsCacheTTL
	}
	if c.Booking.SweepIntervalSeconds == 0 {
		c.Booking.SweepIntervalSeconds = models.DefaultSweepInterval
	}

	// Notifications defaults
	if c.Notifications.TimeoutSeconds == 0 {
		c.Notifications.TimeoutSeconds = 10
	}
	if c.Notifications.QueueKey == "" {
		c.Notifications.QueueKey = "prichal:notifications"
	}
	if c.Notifications.DeadLetterKey == "" {
		c.Notifications.DeadLetterKey = "prichal:notifications:deadletter"
	}

	ApplyPolicyDefaults(&c.Settings)
}
