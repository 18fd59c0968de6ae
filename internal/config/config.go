package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	Port     string
	BaseURL  string
	LogLevel string

	// Storage
	StoreDriver   string // "sqlite", "postgres", "badger", "redis" or "memory"
	DBPath        string // SQLite file path
	DBURL         string // PostgreSQL connection string
	BadgerPath    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Cross-tab channel
	ChannelDriver string // "redis", "memory" or "none"

	// Launch data API
	LaunchAPIBaseURL   string
	LaunchAPIRateLimit float64 // requests per second
	LaunchAPIBurst     int
	FetchConcurrency   int
	LaunchLatency      time.Duration // artificial delay before a launch load resolves
	CostLatency        time.Duration // artificial delay before a cost load resolves

	// Sync
	RefreshSchedule string // cron expression
	LoadOnStartup   bool

	// Rate limits
	EditRateLimit     time.Duration // minimum spacing between edit requests
	RequestsPerMinute int           // per client IP

	// Frontend
	StaticDir string
}

func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		BaseURL:            getEnv("BASE_URL", "http://localhost:8080"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		StoreDriver:        getEnv("STORE_DRIVER", "sqlite"),
		DBPath:             getEnv("DB_PATH", "./data/launch-shelf.db"),
		DBURL:              getEnv("DATABASE_URL", ""),
		BadgerPath:         getEnv("BADGER_PATH", "./data/badger"),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisDB:            getEnvInt("REDIS_DB", 0),
		ChannelDriver:      getEnv("CHANNEL_DRIVER", "memory"),
		LaunchAPIBaseURL:   getEnv("LAUNCH_API_BASE_URL", "https://api.spacexdata.com/v3"),
		LaunchAPIRateLimit: getEnvFloat("LAUNCH_API_RATE_LIMIT", 5),
		LaunchAPIBurst:     getEnvInt("LAUNCH_API_BURST", 10),
		FetchConcurrency:   getEnvInt("FETCH_CONCURRENCY", 8),
		LaunchLatency:      getEnvDuration("LAUNCH_LATENCY", 0),
		CostLatency:        getEnvDuration("COST_LATENCY", 0),
		RefreshSchedule:    getEnv("REFRESH_SCHEDULE", "0 * * * *"), // hourly
		LoadOnStartup:      getEnvBool("LOAD_ON_STARTUP", true),
		EditRateLimit:      getEnvDuration("EDIT_RATE_LIMIT", 500*time.Millisecond),
		RequestsPerMinute:  getEnvInt("REQUESTS_PER_MINUTE", 300),
		StaticDir:          getEnv("STATIC_DIR", "./frontend/dist"),
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	val = strings.ToLower(val)
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return d
}
