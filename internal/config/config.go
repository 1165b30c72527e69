package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr           string
	StorageBackend string // "redis" or "postgres"
	RedisURL       string
	DatabaseURL    string
	JWTSecret      string
	AccessTTL      time.Duration
	CORSOrigin     string
	MeiliURL       string
	MeiliMasterKey string
}

func Load() Config {
	return Config{
		Addr:           getenv("API_ADDR", ":8787"),
		StorageBackend: getenv("HUDDLE_STORAGE_BACKEND", "redis"),
		RedisURL:       getenv("REDIS_URL", "redis://localhost:6379/0"),
		DatabaseURL:    getenv("DATABASE_URL", ""),
		JWTSecret:      getenv("HUDDLE_JWT_SECRET", "huddle-dev-secret"),
		AccessTTL:      time.Duration(getenvInt("HUDDLE_ACCESS_TTL_SECONDS", 900)) * time.Second,
		CORSOrigin:     getenv("HUDDLE_CORS_ORIGIN", "*"),
		// Meilisearch - empty URL disables message search
		MeiliURL:       getenv("MEILI_URL", ""),
		MeiliMasterKey: getenv("MEILI_MASTER_KEY", ""),
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
