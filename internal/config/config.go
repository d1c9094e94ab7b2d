package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Auth struct {
		JWTSecret string `yaml:"jwtSecret"`
		TokenTTL  string `yaml:"tokenTTL"`
	} `yaml:"auth"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL string `yaml:"ttl"`
	} `yaml:"quiz"`
	AI struct {
		Endpoint  string `yaml:"endpoint"`
		Timeout   string `yaml:"timeout"`
		KeySecret string `yaml:"keySecret"`
		KeyTTL    string `yaml:"keyTTL"`
	} `yaml:"ai"`
	Attempts struct {
		MaxRetries int `yaml:"maxRetries"`
	} `yaml:"attempts"`
	RabbitMQ struct {
		URL   string `yaml:"url"`
		Queue string `yaml:"queue"`
	} `yaml:"rabbitmq"`
}

// envOverrides maps environment variables onto config fields; a set variable wins over the file.
var envOverrides = []struct {
	name  string
	field func(*Config) *string
}{
	{"POSTGRES_URL", func(c *Config) *string { return &c.Postgres.URL }},
	{"REDIS_ADDR", func(c *Config) *string { return &c.Redis.Addr }},
	{"REDIS_PASSWORD", func(c *Config) *string { return &c.Redis.Password }},
	{"JWT_SECRET", func(c *Config) *string { return &c.Auth.JWTSecret }},
	{"AI_ENDPOINT", func(c *Config) *string { return &c.AI.Endpoint }},
	{"KEY_SECRET", func(c *Config) *string { return &c.AI.KeySecret }},
	{"RABBITMQ_URL", func(c *Config) *string { return &c.RabbitMQ.URL }},
	{"LOG_LEVEL", func(c *Config) *string { return &c.Log.Level }},
}

// Load reads YAML config from path, then applies a .env file next to the working directory and
// the process environment on top.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, err
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	for _, o := range envOverrides {
		if v, ok := os.LookupEnv(o.name); ok && v != "" {
			*o.field(cfg) = v
		}
	}
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// LogLevel maps the configured level name to slog, defaulting to info.
func (c Config) LogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
