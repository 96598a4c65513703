package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config keeps runtime settings for the tracker.
type Config struct {
	TelegramToken string
	DatabaseURL   string

	// ReportTime schedules the daily report at HH:MM; when empty the
	// report runs every ReportInterval instead.
	ReportTime     string
	ReportInterval time.Duration

	// Checker polling bounds and early-wake guard.
	MinCheckInterval time.Duration
	MaxCheckInterval time.Duration
	CheckGuard       time.Duration
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	cfg := Config{
		TelegramToken:    strings.TrimSpace(os.Getenv("TELEGRAM_TOKEN")),
		DatabaseURL:      strings.TrimSpace(os.Getenv("DATABASE_URL")),
		ReportTime:       strings.TrimSpace(os.Getenv("REPORT_TIME")),
		ReportInterval:   parseHours(strings.TrimSpace(os.Getenv("REPORT_INTERVAL_HOURS"))),
		MinCheckInterval: parseSeconds(strings.TrimSpace(os.Getenv("CHECK_MIN_SECONDS")), time.Second),
		MaxCheckInterval: parseSeconds(strings.TrimSpace(os.Getenv("CHECK_MAX_SECONDS")), 5*time.Second),
		CheckGuard:       parseSeconds(strings.TrimSpace(os.Getenv("CHECK_GUARD_SECONDS")), 2*time.Second),
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "upgrade_tracker.db"
	}

	if cfg.ReportInterval == 0 {
		cfg.ReportInterval = 12 * time.Hour
	}

	if cfg.MaxCheckInterval < cfg.MinCheckInterval {
		cfg.MaxCheckInterval = cfg.MinCheckInterval
	}

	if cfg.TelegramToken == "" {
		return cfg, fmt.Errorf("TELEGRAM_TOKEN is required")
	}

	return cfg, nil
}

func parseHours(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	hours, err := time.ParseDuration(raw + "h")
	if err != nil || hours <= 0 {
		return 0
	}
	return hours
}

func parseSeconds(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}
