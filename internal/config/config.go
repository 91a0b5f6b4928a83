// Package config loads service configuration from an optional YAML file and
// applies environment overrides on top. The batch CLI does not use it.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"freightsched/internal/schedule"
)

type Config struct {
	Port        string  `yaml:"port"`
	DatabaseURL string  `yaml:"databaseUrl"`
	RedisURL    string  `yaml:"redisUrl"`
	Capacity    int     `yaml:"flightCapacity"`
	RateRPS     float64 `yaml:"rateRps"`
	RateBurst   int     `yaml:"rateBurst"`

	Auth struct {
		Mode       string `yaml:"mode"` // dev, hmac
		HMACSecret string `yaml:"hmacSecret"`
	} `yaml:"auth"`

	Webhooks struct {
		MaxAttempts int `yaml:"maxAttempts"`
	} `yaml:"webhooks"`
}

// Load reads the file named by CONFIG_FILE (or path, if given), then lets
// environment variables override individual fields. Missing file with no
// explicit path is fine; defaults apply.
func Load(path string) (Config, error) {
	cfg := Config{Port: "8080", Capacity: schedule.DefaultCapacity, RateRPS: 50, RateBurst: 100}
	cfg.Auth.Mode = "dev"
	cfg.Webhooks.MaxAttempts = 10

	explicit := path != ""
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if explicit || os.Getenv("CONFIG_FILE") != "" {
				return cfg, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	overrideStr(&cfg.Port, "PORT")
	overrideStr(&cfg.DatabaseURL, "DATABASE_URL")
	overrideStr(&cfg.RedisURL, "REDIS_URL")
	overrideStr(&cfg.Auth.Mode, "AUTH_MODE")
	overrideStr(&cfg.Auth.HMACSecret, "AUTH_HMAC_SECRET")
	overrideInt(&cfg.Capacity, "FLIGHT_CAPACITY")
	overrideInt(&cfg.RateBurst, "RATE_BURST")
	overrideInt(&cfg.Webhooks.MaxAttempts, "WEBHOOK_MAX_ATTEMPTS")
	if v := os.Getenv("RATE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.RateRPS = f
		}
	}

	if cfg.Capacity <= 0 {
		cfg.Capacity = schedule.DefaultCapacity
	}
	return cfg, nil
}

func overrideStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func overrideInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = n
		}
	}
}
