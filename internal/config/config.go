package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"station-insights/internal/models"
)

// Config holds the full application configuration, loaded from the
// environment with optional .env bootstrap.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	CWA       CWAConfig
	Reference ReferenceConfig
	Output    OutputConfig
	RateLimit RateLimitConfig
	Refresh   RefreshConfig
	Logging   LoggingConfig
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig configures the Postgres snapshot archive.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// CWAConfig configures the upstream open-data client. The API key is
// issued per account on the CWA open-data platform and is never logged.
type CWAConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// ReferenceConfig is the distance reference point. Defaults to Taipei
// Main Station.
type ReferenceConfig struct {
	Latitude  float64
	Longitude float64
	Name      string
}

// Point returns the reference as a GeoPoint.
func (r ReferenceConfig) Point() models.GeoPoint {
	return models.GeoPoint{Latitude: r.Latitude, Longitude: r.Longitude}
}

// OutputConfig configures artifact output.
type OutputConfig struct {
	Dir string
}

// RateLimitConfig configures the API token bucket.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// RefreshConfig configures the optional background pipeline runs of the
// server. A zero interval disables the ticker.
type RefreshConfig struct {
	Interval time.Duration
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level string
}

// LoadConfig reads configuration from a .env file when present, falling
// back to the process environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using system environment")
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getEnvAsDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			Database:        getEnv("DB_NAME", "station_insights"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
		},
		CWA: CWAConfig{
			BaseURL: getEnv("CWA_BASE_URL", "https://opendata.cwa.gov.tw"),
			APIKey:  getEnv("CWA_API_KEY", ""),
			Timeout: getEnvAsDuration("CWA_TIMEOUT", 30*time.Second),
		},
		Reference: ReferenceConfig{
			Latitude:  getEnvAsFloat("REFERENCE_LATITUDE", models.DefaultReferenceLatitude),
			Longitude: getEnvAsFloat("REFERENCE_LONGITUDE", models.DefaultReferenceLongitude),
			Name:      getEnv("REFERENCE_NAME", models.DefaultReferenceName),
		},
		Output: OutputConfig{
			Dir: getEnv("OUTPUT_DIR", "outputs"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvAsFloat("RATE_LIMIT_RPS", 50),
			Burst:             getEnvAsInt("RATE_LIMIT_BURST", 100),
		},
		Refresh: RefreshConfig{
			Interval: getEnvAsDuration("REFRESH_INTERVAL", 0),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	return cfg, nil
}

// Validate checks configuration invariants that cannot be defaulted away.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be in [1, 65535], got %d", c.Server.Port)
	}
	if c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if c.Database.Database == "" {
		return fmt.Errorf("DB_NAME is required")
	}
	if c.CWA.BaseURL == "" {
		return fmt.Errorf("CWA_BASE_URL is required")
	}
	if c.CWA.Timeout <= 0 {
		return fmt.Errorf("CWA_TIMEOUT must be positive")
	}
	if err := c.Reference.Point().Validate(); err != nil {
		return fmt.Errorf("reference point: %w", err)
	}
	if c.Output.Dir == "" {
		return fmt.Errorf("OUTPUT_DIR is required")
	}
	if c.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be positive")
	}
	if c.RateLimit.Burst < 1 {
		return fmt.Errorf("RATE_LIMIT_BURST must be at least 1")
	}
	if c.Refresh.Interval < 0 {
		return fmt.Errorf("REFRESH_INTERVAL must not be negative")
	}
	return nil
}

// Environment helpers

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
