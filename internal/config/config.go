package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabaseURL       string
	Location          *time.Location // school-local time for month and week keys
	HTTPAddr          string
	LogLevel          string
	Env               string // dev|prod
	SentryDSN         string
	ReconcileInterval time.Duration
	OverallCeiling    int // absolute record ceiling; product decision pending between 100 and 140
}

func Load() (*Config, error) {
	tz := getenv("TZ", "Asia/Ho_Chi_Minh")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.Local
	}

	interval, err := time.ParseDuration(getenv("RECONCILE_INTERVAL", "6h"))
	if err != nil {
		return nil, fmt.Errorf("RECONCILE_INTERVAL: %w", err)
	}

	ceiling, err := strconv.Atoi(getenv("OVERALL_CEILING", "100"))
	if err != nil || ceiling <= 0 {
		return nil, fmt.Errorf("OVERALL_CEILING: must be a positive integer")
	}

	cfg := &Config{
		DatabaseURL:       mustEnv("DATABASE_URL"),
		Location:          loc,
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		LogLevel:          getenv("LOG_LEVEL", "info"),
		Env:               getenv("ENV", "dev"),
		SentryDSN:         os.Getenv("SENTRY_DSN"),
		ReconcileInterval: interval,
		OverallCeiling:    ceiling,
	}
	return cfg, nil
}

func mustEnv(k string) string {
	v := os.Getenv(k)
	if v == "" {
		panic("required env " + k + " is empty")
	}
	return v
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

