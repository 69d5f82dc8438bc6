package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port        string
	DatabaseURL string
	JWTSecret   string
	TokenTTL    time.Duration

	AvgServiceWindow      int
	DefaultServiceMinutes int
	QueuePreviewSize      int
	CounterAvgWindow      int

	ResetInterval time.Duration

	RateLimitPerMinute    int
	RateLimitBurst        int
	OrgRateLimitPerMinute int
	OrgRateLimitBurst     int

	AllowedOrigins []string
}

func Load() Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	return Config{
		Port:        port,
		DatabaseURL: os.Getenv("DB_DSN"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		TokenTTL:    readDurationSeconds("TOKEN_TTL_SECONDS", 43200),

		AvgServiceWindow:      readInt("AVG_SERVICE_WINDOW", 20),
		DefaultServiceMinutes: readInt("DEFAULT_SERVICE_MINUTES", 5),
		QueuePreviewSize:      readInt("QUEUE_PREVIEW_SIZE", 10),
		CounterAvgWindow:      readInt("COUNTER_AVG_WINDOW", 20),

		ResetInterval: readDurationSeconds("RESET_SCAN_INTERVAL_SECONDS", 60),

		RateLimitPerMinute:    readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:        readInt("RATE_LIMIT_BURST", 30),
		OrgRateLimitPerMinute: readInt("ORG_RATE_LIMIT_PER_MIN", 600),
		OrgRateLimitBurst:     readInt("ORG_RATE_LIMIT_BURST", 120),

		AllowedOrigins: readList("ALLOWED_ORIGINS", []string{"*"}),
	}
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func readList(key string, fallback []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	if len(values) == 0 {
		return fallback
	}
	return values
}
