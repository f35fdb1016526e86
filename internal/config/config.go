package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config aggregates application configuration values.
type Config struct {
	HTTP     HTTPConfig
	Database DatabaseConfig
	Auth     AuthConfig
	SMTP     SMTPConfig
	Feed     FeedConfig
	Geocoder GeocoderConfig
	Logging  LoggingConfig
}

// HTTPConfig governs HTTP server behaviour.
type HTTPConfig struct {
	Host              string
	Port              int
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	AllowedOriginsCSV string
}

// DatabaseConfig locates the SQLite database file.
type DatabaseConfig struct {
	Path string
}

// AuthConfig controls token issuance and one-time codes.
type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
	OTPTTL    time.Duration
}

// SMTPConfig describes the outbound mail account used for OTP delivery.
type SMTPConfig struct {
	Host     string
	Port     int
	Address  string
	Password string
}

// FeedConfig describes the upstream ATM status feed.
type FeedConfig struct {
	URL             string
	Username        string
	Password        string
	RefreshInterval time.Duration
	RequestTimeout  time.Duration
}

// GeocoderConfig describes the external geocoding API.
type GeocoderConfig struct {
	APIKey   string
	Endpoint string
}

// LoggingConfig controls structured logging settings.
type LoggingConfig struct {
	Level         string
	Format        string // text|json
	IncludeCaller bool
}

const (
	defaultHost            = "0.0.0.0"
	defaultPort            = 8080
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 15 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultLoggingLevel    = "info"
	defaultLoggingFormat   = "text"
	defaultDatabasePath    = "atmfinder.db"
	defaultTokenTTL        = time.Hour
	defaultOTPTTL          = 10 * time.Minute
	defaultFeedInterval    = 10 * time.Minute
	defaultFeedTimeout     = 30 * time.Second
	defaultSMTPHost        = "smtp.gmail.com"
	defaultSMTPPort        = 465
	defaultGeocodeEndpoint = "https://maps.googleapis.com/maps/api/geocode/json"
)

// Load reads configuration from environment variables, applying defaults.
func Load() (Config, error) {
	cfg := Config{
		HTTP: HTTPConfig{
			Host:            valueOrDefault("SERVER_HOST", defaultHost),
			ReadTimeout:     defaultReadTimeout,
			WriteTimeout:    defaultWriteTimeout,
			IdleTimeout:     defaultIdleTimeout,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Database: DatabaseConfig{
			Path: valueOrDefault("DATABASE_PATH", defaultDatabasePath),
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("SECRET_KEY"),
			TokenTTL:  defaultTokenTTL,
			OTPTTL:    defaultOTPTTL,
		},
		SMTP: SMTPConfig{
			Host:     valueOrDefault("SMTP_HOST", defaultSMTPHost),
			Port:     parseIntWithDefault("SMTP_PORT", defaultSMTPPort),
			Address:  os.Getenv("EMAIL_ADDRESS"),
			Password: os.Getenv("EMAIL_PASSWORD"),
		},
		Feed: FeedConfig{
			URL:             os.Getenv("FEED_URL"),
			Username:        os.Getenv("FEED_USERNAME"),
			Password:        os.Getenv("FEED_PASSWORD"),
			RefreshInterval: defaultFeedInterval,
			RequestTimeout:  defaultFeedTimeout,
		},
		Geocoder: GeocoderConfig{
			APIKey:   os.Getenv("GEOCODER_API_KEY"),
			Endpoint: valueOrDefault("GEOCODER_ENDPOINT", defaultGeocodeEndpoint),
		},
		Logging: LoggingConfig{
			Level:         valueOrDefault("LOG_LEVEL", defaultLoggingLevel),
			Format:        valueOrDefault("LOG_FORMAT", defaultLoggingFormat),
			IncludeCaller: parseBoolWithDefault("LOG_INCLUDE_CALLER", false),
		},
	}

	port, err := parsePort("SERVER_PORT", defaultPort)
	if err != nil {
		return Config{}, err
	}
	cfg.HTTP.Port = port

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"SERVER_READ_TIMEOUT", &cfg.HTTP.ReadTimeout},
		{"SERVER_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout},
		{"SERVER_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout},
		{"SERVER_SHUTDOWN_TIMEOUT", &cfg.HTTP.ShutdownTimeout},
		{"TOKEN_TTL", &cfg.Auth.TokenTTL},
		{"OTP_TTL", &cfg.Auth.OTPTTL},
		{"FEED_REFRESH_INTERVAL", &cfg.Feed.RefreshInterval},
		{"FEED_REQUEST_TIMEOUT", &cfg.Feed.RequestTimeout},
	}
	for _, entry := range durations {
		if v := os.Getenv(entry.key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return Config{}, fmt.Errorf("invalid %s: %w", entry.key, err)
			}
			*entry.dst = d
		}
	}

	cfg.HTTP.AllowedOriginsCSV = os.Getenv("SERVER_ALLOWED_ORIGINS")

	return cfg, nil
}

func valueOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBoolWithDefault(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		val, err := strconv.ParseBool(v)
		if err != nil {
			return fallback
		}
		return val
	}
	return fallback
}

func parseIntWithDefault(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if val, err := strconv.Atoi(v); err == nil {
			return val
		}
	}
	return fallback
}

func parsePort(key string, fallback int) (int, error) {
	if v := os.Getenv(key); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s value %q: %w", key, v, err)
		}
		if port <= 0 || port > 65535 {
			return 0, fmt.Errorf("port %d is out of range", port)
		}
		return port, nil
	}
	return fallback, nil
}
