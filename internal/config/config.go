package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server  ServerConfig
	Worker  WorkerConfig
	Sources SourcesConfig
	Retry   RetryConfig
	Catalog CatalogConfig
	Auth    AuthConfig
	Gateway GatewayConfig
	Kafka   KafkaConfig
	DB      DatabaseConfig
	Logging LoggingConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	RPS            float64 // global API rate limit
	DebugEndpoints bool
	AllowedOrigins []string
}

type WorkerConfig struct {
	Count      int
	BufferSize int
}

type SourcesConfig struct {
	USGSEnabled       bool
	USGSURL           string
	USGSPollInterval  time.Duration
	GDACSEnabled      bool
	GDACSURL          string
	GDACSPollInterval time.Duration
	NOAAEnabled       bool
	NOAAURL           string
	NOAAPollInterval  time.Duration
	FIRMSEnabled      bool
	FIRMSURL          string
	FIRMSMapKey       string
	FIRMSPollInterval time.Duration

	CSVEnabled      bool
	CSVPath         string
	CSVPollInterval time.Duration
	CSVWatch        bool

	SimulatedEnabled      bool
	SimulatedPollInterval time.Duration
	SimulatedFailureRate  float64

	UpstreamRPS float64 // shared by the HTTP sources
}

type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
}

type CatalogConfig struct {
	StaleAfter        time.Duration // ACTIVE events unseen this long are resolved
	ResolvedRetention time.Duration // RESOLVED events are kept in memory this long
}

type AuthConfig struct {
	JWTSecret string // empty enables anonymous connections
	JWTIssuer string
}

type GatewayConfig struct {
	SendBuffer int
}

type KafkaConfig struct {
	Brokers []string // empty disables the exporter
	Topic   string
}

type DatabaseConfig struct {
	Path string
}

type LoggingConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "localhost"),
			Port:           getEnvInt("SERVER_PORT", 8080),
			RPS:            getEnvFloat("API_RPS", 10),
			DebugEndpoints: getEnvBool("DEBUG_ENDPOINTS", false),
			AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Worker: WorkerConfig{
			Count:      getEnvInt("WORKER_COUNT", 4),
			BufferSize: getEnvInt("WORKER_BUFFER_SIZE", 64),
		},
		Sources: SourcesConfig{
			USGSEnabled:       getEnvBool("USGS_ENABLED", true),
			USGSURL:           getEnv("USGS_URL", "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/all_hour.geojson"),
			USGSPollInterval:  getEnvDuration("USGS_POLL_INTERVAL", 5*time.Minute),
			GDACSEnabled:      getEnvBool("GDACS_ENABLED", true),
			GDACSURL:          getEnv("GDACS_URL", "https://www.gdacs.org/xml/rss.xml"),
			GDACSPollInterval: getEnvDuration("GDACS_POLL_INTERVAL", 10*time.Minute),
			NOAAEnabled:       getEnvBool("NOAA_ENABLED", false),
			NOAAURL:           getEnv("NOAA_URL", "https://api.weather.gov/alerts/active?status=actual&message_type=alert,update,cancel"),
			NOAAPollInterval:  getEnvDuration("NOAA_POLL_INTERVAL", 5*time.Minute),
			FIRMSEnabled:      getEnvBool("FIRMS_ENABLED", false),
			FIRMSURL:          getEnv("FIRMS_URL", "https://firms.modaps.eosdis.nasa.gov/api/area/csv"),
			FIRMSMapKey:       getEnv("FIRMS_MAP_KEY", ""),
			FIRMSPollInterval: getEnvDuration("FIRMS_POLL_INTERVAL", 30*time.Minute),

			CSVEnabled:      getEnvBool("CSV_ENABLED", false),
			CSVPath:         getEnv("CSV_PATH", "./data/disasters.csv"),
			CSVPollInterval: getEnvDuration("CSV_POLL_INTERVAL", 10*time.Minute),
			CSVWatch:        getEnvBool("CSV_WATCH", true),

			SimulatedEnabled:      getEnvBool("SIMULATED_ENABLED", false),
			SimulatedPollInterval: getEnvDuration("SIMULATED_POLL_INTERVAL", time.Minute),
			SimulatedFailureRate:  getEnvFloat("SIMULATED_FAILURE_RATE", 0.2),

			UpstreamRPS: getEnvFloat("UPSTREAM_RPS", 2),
		},
		Retry: RetryConfig{
			MaxAttempts:  getEnvInt("RETRY_MAX_ATTEMPTS", 3),
			InitialDelay: getEnvDuration("RETRY_INITIAL_DELAY", time.Second),
		},
		Catalog: CatalogConfig{
			StaleAfter:        getEnvDuration("STALE_AFTER", 6*time.Hour),
			ResolvedRetention: getEnvDuration("RESOLVED_RETENTION", 24*time.Hour),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", ""),
			JWTIssuer: getEnv("AUTH_JWT_ISSUER", ""),
		},
		Gateway: GatewayConfig{
			SendBuffer: getEnvInt("WS_SEND_BUFFER", 64),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvList("KAFKA_BROKERS", nil),
			Topic:   getEnv("KAFKA_TOPIC", "disaster-events"),
		},
		DB: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/credio-alerts.db"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "warning" {
		level = "warn"
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	c.Logging.Level = level

	if c.Worker.Count < 1 {
		return fmt.Errorf("worker count must be at least 1")
	}

	if c.Sources.USGSEnabled && c.Sources.USGSPollInterval < time.Minute {
		return fmt.Errorf("USGS poll interval must be at least 1 minute")
	}
	if c.Sources.GDACSEnabled && c.Sources.GDACSPollInterval < time.Minute {
		return fmt.Errorf("GDACS poll interval must be at least 1 minute")
	}
	if c.Sources.NOAAEnabled && c.Sources.NOAAPollInterval < time.Minute {
		return fmt.Errorf("NOAA poll interval must be at least 1 minute")
	}
	if c.Sources.FIRMSEnabled {
		if c.Sources.FIRMSMapKey == "" {
			return fmt.Errorf("FIRMS_MAP_KEY is required when FIRMS is enabled")
		}
		if c.Sources.FIRMSPollInterval < time.Minute {
			return fmt.Errorf("FIRMS poll interval must be at least 1 minute")
		}
	}
	if c.Sources.CSVEnabled {
		if c.Sources.CSVPath == "" {
			return fmt.Errorf("CSV_PATH is required when CSV import is enabled")
		}
		if c.Sources.CSVPollInterval < time.Second {
			return fmt.Errorf("CSV poll interval must be at least 1 second")
		}
	}
	if c.Sources.SimulatedEnabled && c.Sources.SimulatedPollInterval < time.Second {
		return fmt.Errorf("simulated poll interval must be at least 1 second")
	}
	if c.Sources.SimulatedFailureRate < 0 || c.Sources.SimulatedFailureRate > 1 {
		return fmt.Errorf("simulated failure rate must be within [0, 1]: %v", c.Sources.SimulatedFailureRate)
	}
	if c.Sources.UpstreamRPS <= 0 {
		return fmt.Errorf("UPSTREAM_RPS must be positive")
	}

	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry max attempts must be at least 1")
	}
	if c.Retry.InitialDelay < 0 {
		return fmt.Errorf("retry initial delay must not be negative")
	}

	if c.Catalog.StaleAfter <= 0 || c.Catalog.ResolvedRetention <= 0 {
		return fmt.Errorf("STALE_AFTER and RESOLVED_RETENTION must be positive")
	}

	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return fmt.Errorf("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

// getEnvList splits a comma separated value, dropping blanks.
func getEnvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
