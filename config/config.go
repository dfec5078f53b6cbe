package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPPort         = "8080"
	defaultRelayHost        = "smtp.example.com"
	defaultMaxLogEntries    = 500
	defaultLogRetentionDays = 30
	defaultDatabaseURL      = "sqlite3://data/mailrelay.db"
	defaultSendRatePerMin   = 10
)

// Config holds all application configurations
type Config struct {
	DatabaseURL      string `yaml:"database_url"`
	HTTPPort         string `yaml:"port"`
	RelayHost        string `yaml:"relay_host"`
	MaxLogEntries    int    `yaml:"max_log_entries"`
	LogRetentionDays int    `yaml:"log_retention_days"`
	Timezone         string `yaml:"timezone"`
	LogLevel         string `yaml:"log_level"`
	SkipTLSVerify    bool   `yaml:"skip_tls_verify"`
	SendRatePerMin   int    `yaml:"send_rate_per_minute"` // 0 disables
}

// LoadConfig reads configuration from .env file and the environment
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables directly.")
	}

	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnvVars()
	return cfg, nil
}

// LoadFromFile uses a YAML file as the base layer. Environment variables
// (including a .env file) still override anything set there.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables directly.")
	}
	cfg.applyEnvVars()
	cfg.sanitize()
	return cfg, nil
}

// Location resolves Timezone, falling back to UTC when unset or unknown.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		log.Printf("TIMEZONE %q is invalid, defaulting to UTC", c.Timezone)
		return time.UTC
	}
	return loc
}

func (c *Config) applyDefaults() {
	c.DatabaseURL = defaultDatabaseURL
	c.HTTPPort = defaultHTTPPort
	c.RelayHost = defaultRelayHost
	c.MaxLogEntries = defaultMaxLogEntries
	c.LogRetentionDays = defaultLogRetentionDays
	c.Timezone = "UTC"
	c.LogLevel = "info"
	c.SendRatePerMin = defaultSendRatePerMin
}

// applyEnvVars overrides values with non-empty environment variables.
func (c *Config) applyEnvVars() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("PORT"); v != "" {
		c.HTTPPort = v
	}
	if v := os.Getenv("RELAY_HOST"); v != "" {
		c.RelayHost = v
	}
	if v := os.Getenv("MAX_LOG_ENTRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			log.Printf("MAX_LOG_ENTRIES invalid, defaulting to %d", defaultMaxLogEntries)
			n = defaultMaxLogEntries
		}
		c.MaxLogEntries = n
	}
	if v := os.Getenv("LOG_RETENTION_DAYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			log.Printf("LOG_RETENTION_DAYS invalid, defaulting to %d", defaultLogRetentionDays)
			n = defaultLogRetentionDays
		}
		c.LogRetentionDays = n
	}
	if v := os.Getenv("TIMEZONE"); v != "" {
		c.Timezone = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("SEND_RATE_PER_MINUTE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			log.Printf("SEND_RATE_PER_MINUTE invalid, defaulting to %d", defaultSendRatePerMin)
			n = defaultSendRatePerMin
		}
		c.SendRatePerMin = n
	}
	if v := os.Getenv("SKIP_TLS_VERIFY"); v != "" {
		c.SkipTLSVerify = v == "YES"
	}
}

// sanitize repairs values a YAML file may have left unusable.
func (c *Config) sanitize() {
	if c.MaxLogEntries <= 0 {
		c.MaxLogEntries = defaultMaxLogEntries
	}
	if c.LogRetentionDays <= 0 {
		c.LogRetentionDays = defaultLogRetentionDays
	}
	if c.SendRatePerMin < 0 {
		c.SendRatePerMin = 0
	}
	if c.HTTPPort == "" {
		c.HTTPPort = defaultHTTPPort
	}
	c.LogLevel = strings.ToLower(c.LogLevel)
}
