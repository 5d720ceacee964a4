package config

import (
	"os"
	"strconv"
	"time"
)

// FromEnv overlays FORMTEL_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("FORMTEL_COLLECTOR_URL"); v != "" {
		cfg.Collector.BaseURL = v
	}
	if v := os.Getenv("FORMTEL_COLLECTOR_URL_KEY"); v != "" {
		cfg.Collector.BaseURLKey = v
	}
	if v := os.Getenv("FORMTEL_COLLECTOR_TOKEN"); v != "" {
		cfg.Collector.Token = v
	}
	if v := os.Getenv("FORMTEL_COLLECTOR_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Collector.Timeout = Duration(d)
		}
	}
	if v := os.Getenv("FORMTEL_COLLECTOR_GZIP"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Collector.Gzip = b
		}
	}
	if v := os.Getenv("FORMTEL_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("FORMTEL_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("FORMTEL_STORE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Store.Capacity = n
		}
	}
	if v := os.Getenv("FORMTEL_REDIS_ADDR"); v != "" {
		cfg.Redis.Address = v
	}
	if v := os.Getenv("FORMTEL_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("FORMTEL_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = n
		}
	}
	if v := os.Getenv("FORMTEL_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}
