// Package config loads formtel settings and resolves the collector base URL.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Config holds the configuration for a formtel client or agent.
type Config struct {
	Collector CollectorConfig `yaml:"collector" json:"collector"`
	Store     StoreConfig     `yaml:"store" json:"store"`
	Redis     RedisConfig     `yaml:"redis" json:"redis"`
	Ingest    IngestConfig    `yaml:"ingest" json:"ingest"`
	Log       LogConfig       `yaml:"log" json:"log"`
}

type CollectorConfig struct {
	// BaseURL is the API base address. Empty disables uplink.
	BaseURL string `yaml:"base_url" json:"baseUrl"`
	// BaseURLKey, when set, makes the base URL come from this Redis key
	// instead of BaseURL.
	BaseURLKey  string            `yaml:"base_url_key" json:"baseUrlKey"`
	Timeout     Duration          `yaml:"timeout" json:"timeout"`
	MinInterval Duration          `yaml:"min_interval" json:"minInterval"`
	MaxBatch    int               `yaml:"max_batch" json:"maxBatch"`
	Gzip        bool              `yaml:"gzip" json:"gzip"`
	UserAgent   string            `yaml:"user_agent" json:"userAgent"`
	Headers     map[string]string `yaml:"headers" json:"headers"`
	// Token is sent as a bearer credential when non-empty.
	Token string `yaml:"token" json:"token"`
}

type StoreConfig struct {
	// Backend is one of "memory", "pebble" or "redis".
	Backend  string `yaml:"backend" json:"backend"`
	Path     string `yaml:"path" json:"path"`
	Key      string `yaml:"key" json:"key"`
	Capacity int    `yaml:"capacity" json:"capacity"`
}

type RedisConfig struct {
	Address  string `yaml:"address" json:"address"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
}

type IngestConfig struct {
	TCPAddr string `yaml:"tcp_addr" json:"tcpAddr"`
	UDPAddr string `yaml:"udp_addr" json:"udpAddr"`
}

type LogConfig struct {
	Level string `yaml:"level" json:"level"`
}

// DefaultConfig returns a safe default configuration: pebble store under
// the user config dir, uplink disabled.
func DefaultConfig() *Config {
	return &Config{
		Collector: CollectorConfig{
			Timeout:     Duration(5 * time.Second),
			MinInterval: Duration(5 * time.Second),
			MaxBatch:    10,
		},
		Store: StoreConfig{
			Backend:  "pebble",
			Path:     defaultStorePath(),
			Key:      "app_logs",
			Capacity: 1000,
		},
		Redis: RedisConfig{
			Address: "localhost:6379",
		},
		Ingest: IngestConfig{
			TCPAddr: ":8081",
			UDPAddr: ":8082",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".formtel"
	}
	return filepath.Join(dir, "formtel", "logs")
}

// Load reads a YAML, JSON or JSONC file over the defaults. An empty path
// returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	switch filepath.Ext(path) {
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(b), cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	return cfg, nil
}
