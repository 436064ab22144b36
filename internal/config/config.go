package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Logging  LoggingConfig  `json:"logging"`
	Redis    RedisConfig    `json:"redis"`
	Webhook  WebhookConfig  `json:"webhook"`
	Alarm    AlarmConfig    `json:"alarm"`
}

type ServerConfig struct {
	BindAddr string `json:"bindAddr"`
}

type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

type LoggingConfig struct {
	Level   string `json:"level"`
	Console bool   `json:"console"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type WebhookConfig struct {
	TargetsFile              string `json:"targetsFile"`
	WatchTargetsFile         bool   `json:"watchTargetsFile"`
	TargetsFromDB            bool   `json:"targetsFromDB"`
	ConnectTimeout           string `json:"connectTimeout"`           // e.g. "1s"
	ConnectionRequestTimeout string `json:"connectionRequestTimeout"` // e.g. "1s"
	ReadTimeout              string `json:"readTimeout"`              // e.g. "10s"
	DeliverTimeout           string `json:"deliverTimeout"`           // empty = unbounded
	MaxConcurrency           int    `json:"maxConcurrency"`
}

type AlarmConfig struct {
	IgnoreExceptionsFile string `json:"ignoreExceptionsFile"`
	QueueSize            int    `json:"queueSize"`
	DedupTTL             string `json:"dedupTTL"` // e.g. "10m"
	LogEvents            bool   `json:"logEvents"`
	APIBearer            string `json:"apiBearer"`
}

// Load builds the config from env defaults, then overlays the JSON file given
// with -f.
func Load() (*Config, error) {
	configFile := flag.String("f", "", "Path to configuration file")
	flag.Parse()
	return LoadFile(*configFile)
}

// LoadFile is Load without flag parsing. An empty path only applies env and
// defaults.
func LoadFile(path string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			BindAddr: getEnv("SERVER_BIND_ADDR", "0.0.0.0:8080"),
		},
		Database: DatabaseConfig{
			Enabled:  getEnvBool("DB_ENABLED", false),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "admin"),
			Password: getEnv("DB_PASSWORD", "password"),
			DBName:   getEnv("DB_NAME", "alarmhook"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Logging: LoggingConfig{
			Level:   getEnv("LOG_LEVEL", "info"),
			Console: getEnvBool("LOG_CONSOLE", false),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", false),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Webhook: WebhookConfig{
			TargetsFile:              getEnv("WEBHOOK_TARGETS_FILE", "config/alarm-webhooks.yml"),
			WatchTargetsFile:         getEnvBool("WEBHOOK_WATCH_TARGETS_FILE", true),
			TargetsFromDB:            getEnvBool("WEBHOOK_TARGETS_FROM_DB", false),
			ConnectTimeout:           getEnv("WEBHOOK_CONNECT_TIMEOUT", "1s"),
			ConnectionRequestTimeout: getEnv("WEBHOOK_CONNECTION_REQUEST_TIMEOUT", "1s"),
			ReadTimeout:              getEnv("WEBHOOK_READ_TIMEOUT", "10s"),
			DeliverTimeout:           getEnv("WEBHOOK_DELIVER_TIMEOUT", ""),
			MaxConcurrency:           getEnvInt("WEBHOOK_MAX_CONCURRENCY", 8),
		},
		Alarm: AlarmConfig{
			IgnoreExceptionsFile: getEnv("ALARM_IGNORE_EXCEPTIONS_FILE", "config/ignore_exceptions.config"),
			QueueSize:            getEnvInt("ALARM_QUEUE_SIZE", 1024),
			DedupTTL:             getEnv("ALARM_DEDUP_TTL", "10m"),
			LogEvents:            getEnvBool("ALARM_LOG_EVENTS", false),
			APIBearer:            getEnv("ALARM_API_BEARER", ""),
		},
	}

	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			log.Error().Err(err).Str("path", path).Msg("failed to load config file")
			return nil, err
		}
	}

	// fill reasonable defaults when fields omitted in file
	if cfg.Server.BindAddr == "" {
		cfg.Server.BindAddr = "0.0.0.0:8080"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Webhook.ConnectTimeout == "" {
		cfg.Webhook.ConnectTimeout = "1s"
	}
	if cfg.Webhook.ConnectionRequestTimeout == "" {
		cfg.Webhook.ConnectionRequestTimeout = "1s"
	}
	if cfg.Webhook.ReadTimeout == "" {
		cfg.Webhook.ReadTimeout = "10s"
	}
	if cfg.Webhook.MaxConcurrency <= 0 {
		cfg.Webhook.MaxConcurrency = 8
	}
	if cfg.Alarm.QueueSize <= 0 {
		cfg.Alarm.QueueSize = 1024
	}
	if cfg.Alarm.DedupTTL == "" {
		cfg.Alarm.DedupTTL = "10m"
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func loadFromFile(cfg *Config, filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filePath, err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filePath, err)
	}

	return nil
}

func validate(cfg *Config) error {
	for name, v := range map[string]string{
		"webhook.connectTimeout":           cfg.Webhook.ConnectTimeout,
		"webhook.connectionRequestTimeout": cfg.Webhook.ConnectionRequestTimeout,
		"webhook.readTimeout":              cfg.Webhook.ReadTimeout,
		"webhook.deliverTimeout":           cfg.Webhook.DeliverTimeout,
		"alarm.dedupTTL":                   cfg.Alarm.DedupTTL,
	} {
		if strings.TrimSpace(v) == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err != nil || d < 0 {
			return fmt.Errorf("%s: invalid duration %q", name, v)
		}
	}
	if cfg.Webhook.TargetsFromDB && !cfg.Database.Enabled {
		return fmt.Errorf("webhook.targetsFromDB requires database.enabled")
	}
	return nil
}

// ParseDuration parses s, returning d when s is empty or invalid.
func ParseDuration(s string, d time.Duration) time.Duration {
	if s == "" {
		return d
	}
	if v, err := time.ParseDuration(s); err == nil {
		return v
	}
	return d
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
