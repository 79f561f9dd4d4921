package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// AppName names the XDG sub-directories used for config and data.
const AppName = "calladmin-client"

// Config captures every setting consumed by the client.
type Config struct {
	API      APIConfig      `yaml:"api"`
	Poll     PollConfig     `yaml:"poll"`
	Client   ClientConfig   `yaml:"client"`
	Trackers TrackersConfig `yaml:"trackers"`
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Sinks    SinksConfig    `yaml:"sinks"`
}

// APIConfig points at the CallAdmin web API.
type APIConfig struct {
	BaseURL   string `yaml:"baseURL"`
	Key       string `yaml:"key"`
	UpdateURL string `yaml:"updateURL"`
}

// PollConfig controls the notice polling cycle.
type PollConfig struct {
	Interval       time.Duration `yaml:"interval"`
	ConnectTimeout time.Duration `yaml:"connectTimeout"`
	TotalTimeout   time.Duration `yaml:"totalTimeout"`
	MaxAttempts    int           `yaml:"maxAttempts"`
	MaxCalls       int           `yaml:"maxCalls"`
}

// ClientConfig describes the local actor.
type ClientConfig struct {
	Spectator bool   `yaml:"spectator"`
	ActorID   string `yaml:"actorID"`
	Available bool   `yaml:"available"`
}

// TrackersConfig controls tracker name resolution.
type TrackersConfig struct {
	ResolveInterval time.Duration `yaml:"resolveInterval"`
	ResolveAttempts int           `yaml:"resolveAttempts"`
	PresenceURL     string        `yaml:"presenceURL"`
	PresenceTimeout time.Duration `yaml:"presenceTimeout"`
	CacheTTL        time.Duration `yaml:"cacheTTL"`
}

// ServerConfig controls the gRPC control surface and metrics listener.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	JSON       bool   `yaml:"json"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}

// ArchiveConfig controls the local SQLite call journal.
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// SinksConfig configures the optional outbound notification sinks.
type SinksConfig struct {
	QueueSize int            `yaml:"queueSize"`
	Workers   int            `yaml:"workers"`
	Kafka     KafkaConfig    `yaml:"kafka"`
	Telegram  TelegramConfig `yaml:"telegram"`
}

// KafkaConfig enables publishing call events to a topic.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// TelegramConfig enables chat alerts for new calls.
type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chatID"`
}

// Load initialises Config from a YAML file, an optional .env file and environment overrides.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if path == "" {
		path = os.Getenv("CALLADMIN_CONFIG")
	}
	if path == "" {
		path = defaultConfigPath()
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// defaultConfigPath returns the XDG config file if one exists, else "".
func defaultConfigPath() string {
	candidate := filepath.Join(xdg.ConfigHome, AppName, "config.yaml")
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return ""
}

func defaultConfig() Config {
	return Config{
		Poll: PollConfig{
			Interval:       10 * time.Second,
			ConnectTimeout: 3 * time.Second,
			MaxAttempts:    3,
			MaxCalls:       25,
		},
		Client: ClientConfig{Available: true},
		Trackers: TrackersConfig{
			ResolveInterval: 100 * time.Millisecond,
			ResolveAttempts: 50,
			PresenceTimeout: 2 * time.Second,
			CacheTTL:        10 * time.Minute,
		},
		Server: ServerConfig{
			Address:         "127.0.0.1:50061",
			MetricsAddress:  "127.0.0.1:2113",
			GracefulTimeout: 5 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", MaxSizeMB: 10, MaxBackups: 3, MaxAgeDays: 28},
		Archive: ArchiveConfig{Path: filepath.Join(xdg.DataHome, AppName, "calls.db")},
		Sinks:   SinksConfig{QueueSize: 100, Workers: 2, Kafka: KafkaConfig{Topic: "calladmin.calls"}},
	}
}

// normalise fills values derived from other settings.
func (c *Config) normalise() {
	if c.Poll.TotalTimeout == 0 {
		c.Poll.TotalTimeout = 2 * c.Poll.ConnectTimeout
	}
	c.API.BaseURL = strings.TrimRight(c.API.BaseURL, "/")
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	var problems []string
	if c.Poll.Interval <= 0 {
		problems = append(problems, "poll.interval must be positive")
	}
	if c.Poll.ConnectTimeout <= 0 {
		problems = append(problems, "poll.connectTimeout must be positive")
	}
	if c.Poll.TotalTimeout < c.Poll.ConnectTimeout {
		problems = append(problems, "poll.totalTimeout must not be shorter than poll.connectTimeout")
	}
	if c.Poll.MaxAttempts < 1 {
		problems = append(problems, "poll.maxAttempts must be at least 1")
	}
	if c.Poll.MaxCalls < 1 {
		problems = append(problems, "poll.maxCalls must be at least 1")
	}
	if c.Trackers.ResolveInterval <= 0 || c.Trackers.ResolveAttempts < 1 {
		problems = append(problems, "trackers.resolveInterval and trackers.resolveAttempts must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// RequireAPI checks the settings needed to talk to the web API.
func (c *Config) RequireAPI() error {
	var missing []string
	if c.API.BaseURL == "" {
		missing = append(missing, "api.baseURL")
	}
	if c.API.Key == "" {
		missing = append(missing, "api.key")
	}
	if !c.Client.Spectator && c.Client.ActorID == "" {
		missing = append(missing, "client.actorID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configurations: %v", missing)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CALLADMIN_API_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("CALLADMIN_API_KEY"); v != "" {
		cfg.API.Key = v
	}
	if v := os.Getenv("CALLADMIN_UPDATE_URL"); v != "" {
		cfg.API.UpdateURL = v
	}
	if v := os.Getenv("CALLADMIN_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Poll.Interval = d
		}
	}
	if v := os.Getenv("CALLADMIN_CONNECT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Poll.ConnectTimeout = d
		}
	}
	if v := os.Getenv("CALLADMIN_TOTAL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Poll.TotalTimeout = d
		}
	}
	if v := os.Getenv("CALLADMIN_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Poll.MaxAttempts = n
		}
	}
	if v := os.Getenv("CALLADMIN_MAX_CALLS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Poll.MaxCalls = n
		}
	}
	if v := os.Getenv("CALLADMIN_SPECTATOR"); v != "" {
		cfg.Client.Spectator = parseBool(v)
	}
	if v := os.Getenv("CALLADMIN_ACTOR_ID"); v != "" {
		cfg.Client.ActorID = v
	}
	if v := os.Getenv("CALLADMIN_AVAILABLE"); v != "" {
		cfg.Client.Available = parseBool(v)
	}
	if v := os.Getenv("CALLADMIN_PRESENCE_URL"); v != "" {
		cfg.Trackers.PresenceURL = v
	}
	if v := os.Getenv("CALLADMIN_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("CALLADMIN_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("CALLADMIN_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CALLADMIN_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("CALLADMIN_LOG_FILE"); v != "" {
		cfg.Logging.File = v
	}
	if v := os.Getenv("CALLADMIN_ARCHIVE_ENABLED"); v != "" {
		cfg.Archive.Enabled = parseBool(v)
	}
	if v := os.Getenv("CALLADMIN_ARCHIVE_PATH"); v != "" {
		cfg.Archive.Path = v
	}
	if v := os.Getenv("CALLADMIN_KAFKA_BROKERS"); v != "" {
		cfg.Sinks.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("CALLADMIN_KAFKA_TOPIC"); v != "" {
		cfg.Sinks.Kafka.Topic = v
	}
	if v := os.Getenv("CALLADMIN_TELEGRAM_TOKEN"); v != "" {
		cfg.Sinks.Telegram.Token = v
	}
	if v := os.Getenv("CALLADMIN_TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Sinks.Telegram.ChatID = id
		}
	}
}

func parseBool(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
