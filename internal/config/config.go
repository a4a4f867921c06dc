package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the top-level ledgersync.yaml configuration.
type Config struct {
	Matching MatchingConfig `yaml:"matching"`
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
}

// MatchingConfig controls the reconciliation pipeline.
type MatchingConfig struct {
	// WindowDays is the ± due-date tolerance for fuzzy matching.
	WindowDays int `yaml:"window_days"`
	// SettledDatePolicy is what to do when a provider marks a transaction
	// settled without a settlement date: "sync_date" or "reject".
	SettledDatePolicy string `yaml:"settled_date_policy"`
}

// DatabaseConfig is the Postgres connection.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Name     string `yaml:"name"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

// URI renders the lib/pq connection string.
func (d DatabaseConfig) URI() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s password=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.Password, sslmode)
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// Load reads a ledgersync.yaml file from disk.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a Config with sensible defaults for a new project.
func Default() *Config {
	return &Config{
		Matching: MatchingConfig{
			WindowDays:        3,
			SettledDatePolicy: "sync_date",
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			User:    "ledgersync",
			Name:    "ledgersync",
			SSLMode: "disable",
		},
		Server: ServerConfig{
			Port: 8080,
		},
	}
}

func (c *Config) applyDefaults() {
	if c.Matching.WindowDays == 0 {
		c.Matching.WindowDays = 3
	}
	if c.Matching.SettledDatePolicy == "" {
		c.Matching.SettledDatePolicy = "sync_date"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
}
