package config

import (
	"os"
	"time"
)

// Server captures process-level settings for the HTTP service.
type Server struct {
	Addr           string
	Store          string // memory | sqlite | postgres | redis
	DSN            string // sqlite path or postgres DSN
	RedisURL       string
	TaxonomyPath   string
	EnginePath     string
	LogLevel       string
	LogFormat      string
	RequestTimeout time.Duration
}

// ServerFromEnv builds a Server config from IFICE_* environment variables so
// main stays lean. Flags may override the result.
func ServerFromEnv() Server {
	s := Server{
		Addr:           getenv("IFICE_ADDR", ":8080"),
		Store:          getenv("IFICE_STORE", "sqlite"),
		DSN:            getenv("IFICE_DSN", "ifice.db"),
		RedisURL:       os.Getenv("IFICE_REDIS_URL"),
		TaxonomyPath:   os.Getenv("IFICE_TAXONOMY"),
		EnginePath:     os.Getenv("IFICE_CONFIG"),
		LogLevel:       getenv("IFICE_LOG_LEVEL", "info"),
		LogFormat:      getenv("IFICE_LOG_FORMAT", "json"),
		RequestTimeout: 5 * time.Second,
	}
	if v := os.Getenv("IFICE_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			s.RequestTimeout = d
		}
	}
	return s
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
