// Package config loads sift's TOML configuration.
package config

import (
	"fmt"
	"net/url"
	"os"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Database DatabaseConfig `toml:"database"`
	Gmail    GmailConfig    `toml:"gmail"`
	Rules    RulesConfig    `toml:"rules"`
	Fetch    FetchConfig    `toml:"fetch"`
	Metrics  MetricsConfig  `toml:"metrics"`
}

type DatabaseConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Name     string `toml:"name"`
	TLS      bool   `toml:"tls"`
}

type GmailConfig struct {
	CredentialsDir    string `toml:"credentials_dir"`    // gmailctl auth directory
	RequestsPerSecond int    `toml:"requests_per_second"`
}

type RulesConfig struct {
	File string `toml:"file"`
}

type FetchConfig struct {
	Query      string `toml:"query"` // raw Gmail query; empty means the inbox
	MaxResults int    `toml:"max_results"`
	PageSize   int    `toml:"page_size"`
}

type MetricsConfig struct {
	Addr string `toml:"addr"` // e.g. ":9090"; empty disables the endpoint
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host: "localhost",
			Port: 5432,
			User: "postgres",
			Name: "sift",
		},
		Gmail: GmailConfig{
			CredentialsDir:    os.ExpandEnv("$HOME/.gmailctl"),
			RequestsPerSecond: 4,
		},
		Rules: RulesConfig{File: "rules.json"},
		Fetch: FetchConfig{MaxResults: 50, PageSize: 100},
	}
}

// Load reads a TOML config file, filling unset fields with defaults. An
// empty path returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database.host must be set")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("database.port %d out of range", c.Database.Port)
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name must be set")
	}
	if c.Rules.File == "" {
		return fmt.Errorf("rules.file must be set")
	}
	if c.Fetch.MaxResults < 0 {
		return fmt.Errorf("fetch.max_results must not be negative")
	}
	return nil
}

// URI renders the Postgres connection string for pgx.
func (d DatabaseConfig) URI() string {
	sslMode := "disable"
	if d.TLS {
		sslMode = "require"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     d.Name,
		RawQuery: "sslmode=" + sslMode,
	}
	return u.String()
}
