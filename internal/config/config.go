package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port            string
	LogLevel        string
	LogDev          bool
	StoreBackend    string // "memory" | "postgres"
	LockBackend     string // "memory" | "redis" | "postgres"
	EventsRedis     bool
	DatabaseURL     string
	RedisURL        string
	LockTTL         time.Duration
	MaxAttempts     int
	SweepInterval   time.Duration
	ShutdownTimeout time.Duration
	// GameSecret keys word digests. Every instance serving the same matches
	// needs the same value; empty means a per-process random key.
	GameSecret string
}

// Load reads an optional .env file and then the environment. Variables
// already set in the environment win over the file.
func Load(files ...string) Config {
	_ = godotenv.Load(files...) // missing .env is fine
	return FromEnv()
}

func FromEnv() Config {
	c := Config{}
	c.Port = getenv("PORT", "8080")
	c.LogLevel = getenv("LOG_LEVEL", "info")
	c.LogDev = getenv("LOG_DEV", "false") == "true"
	c.StoreBackend = getenv("STORE_BACKEND", "memory")
	c.LockBackend = getenv("LOCK_BACKEND", "memory")
	c.EventsRedis = getenv("EVENTS_REDIS", "false") == "true"
	c.DatabaseURL = os.Getenv("DATABASE_URL")
	c.RedisURL = getenv("REDIS_URL", "redis://localhost:6379/0")
	c.LockTTL = getduration("LOCK_TTL", 5*time.Second)
	c.MaxAttempts = getint("MAX_ATTEMPTS", 8)
	c.SweepInterval = getduration("SWEEP_INTERVAL", time.Second)
	c.ShutdownTimeout = getduration("SHUTDOWN_TIMEOUT", 10*time.Second)
	c.GameSecret = os.Getenv("GAME_SECRET")
	return c
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	n, err := strconv.Atoi(os.Getenv(k))
	if err != nil {
		return def
	}
	return n
}

func getduration(k string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(k))
	if err != nil || d <= 0 {
		return def
	}
	return d
}
