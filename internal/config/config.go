package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Crawl    CrawlDefaults
	Jobs     JobsConfig
	Proxy    ProxyConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
}

// CrawlDefaults holds the crawl knobs shared by every site. Per-site
// overrides are read through SiteCrawl with the site name as env prefix,
// e.g. CRAWL_ALIEXPRESS_RATE_CAPACITY.
type CrawlDefaults struct {
	RateCapacity      float64
	RefillPerSecond   float64
	RateFailFast      bool
	MaxRetryAttempts  int
	BackoffBase       time.Duration
	BackoffMultiplier float64
	BackoffMax        time.Duration
	RateLimitDelay    time.Duration
	JitterFraction    float64
	RequestTimeout    time.Duration
}

// SiteCrawl applies per-site env overrides on top of the defaults.
func (d CrawlDefaults) SiteCrawl(site string) CrawlDefaults {
	prefix := "CRAWL_" + strings.ToUpper(site) + "_"
	return CrawlDefaults{
		RateCapacity:      getFloatOrDefault(prefix+"RATE_CAPACITY", d.RateCapacity),
		RefillPerSecond:   getFloatOrDefault(prefix+"REFILL_PER_SECOND", d.RefillPerSecond),
		RateFailFast:      getBoolOrDefault(prefix+"RATE_FAIL_FAST", d.RateFailFast),
		MaxRetryAttempts:  getIntOrDefault(prefix+"MAX_RETRY_ATTEMPTS", d.MaxRetryAttempts),
		BackoffBase:       getDurationOrDefault(prefix+"BACKOFF_BASE", d.BackoffBase),
		BackoffMultiplier: getFloatOrDefault(prefix+"BACKOFF_MULTIPLIER", d.BackoffMultiplier),
		BackoffMax:        getDurationOrDefault(prefix+"BACKOFF_MAX", d.BackoffMax),
		RateLimitDelay:    getDurationOrDefault(prefix+"RATE_LIMIT_DELAY", d.RateLimitDelay),
		JitterFraction:    getFloatOrDefault(prefix+"JITTER_FRACTION", d.JitterFraction),
		RequestTimeout:    getDurationOrDefault(prefix+"REQUEST_TIMEOUT", d.RequestTimeout),
	}
}

type JobsConfig struct {
	Workers         int
	QueueMaxSize    int
	DedupeCacheSize int
	// OperationTimeout caps one crawl operation end to end, across all of
	// its retries; 0 disables the cap.
	OperationTimeout time.Duration
	Locale           string
	Currency         string
	Region           string
}

type ProxyConfig struct {
	// Proxies are seed entries in user:pass@host:port or host:port form.
	Proxies         []string
	RefreshInterval time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			DBName:   getEnvOrDefault("DB_NAME", "cloudstore"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
			Stream:   getEnvOrDefault("REDIS_STREAM", "product-events"),
		},
		Crawl: CrawlDefaults{
			RateCapacity:      getFloatOrDefault("CRAWL_RATE_CAPACITY", 20),
			RefillPerSecond:   getFloatOrDefault("CRAWL_REFILL_PER_SECOND", 20.0/60.0),
			RateFailFast:      getBoolOrDefault("CRAWL_RATE_FAIL_FAST", true),
			MaxRetryAttempts:  getIntOrDefault("CRAWL_MAX_RETRY_ATTEMPTS", 3),
			BackoffBase:       getDurationOrDefault("CRAWL_BACKOFF_BASE", time.Second),
			BackoffMultiplier: getFloatOrDefault("CRAWL_BACKOFF_MULTIPLIER", 2.0),
			BackoffMax:        getDurationOrDefault("CRAWL_BACKOFF_MAX", 30*time.Second),
			RateLimitDelay:    getDurationOrDefault("CRAWL_RATE_LIMIT_DELAY", 7*time.Second),
			JitterFraction:    getFloatOrDefault("CRAWL_JITTER_FRACTION", 0.25),
			RequestTimeout:    getDurationOrDefault("CRAWL_REQUEST_TIMEOUT", 30*time.Second),
		},
		Jobs: JobsConfig{
			Workers:          getIntOrDefault("JOBS_WORKERS", 4),
			QueueMaxSize:     getIntOrDefault("JOBS_QUEUE_MAX_SIZE", 1000),
			DedupeCacheSize:  getIntOrDefault("JOBS_DEDUPE_CACHE_SIZE", 10000),
			OperationTimeout: getDurationOrDefault("JOBS_OPERATION_TIMEOUT", 2*time.Minute),
			Locale:           getEnvOrDefault("JOBS_LOCALE", "en_US"),
			Currency:         getEnvOrDefault("JOBS_CURRENCY", "USD"),
			Region:           getEnvOrDefault("JOBS_REGION", "US"),
		},
		Proxy: ProxyConfig{
			Proxies:         getStringSliceOrDefault("PROXY_LIST", []string{}),
			RefreshInterval: getDurationOrDefault("PROXY_REFRESH_INTERVAL", 5*time.Minute),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Jobs.Workers < 1 {
		return fmt.Errorf("JOBS_WORKERS must be at least 1")
	}

	if c.Crawl.RateCapacity <= 0 {
		return fmt.Errorf("CRAWL_RATE_CAPACITY must be positive")
	}

	if c.Crawl.RefillPerSecond < 0 {
		return fmt.Errorf("CRAWL_REFILL_PER_SECOND cannot be negative")
	}

	if c.Crawl.MaxRetryAttempts < 1 {
		return fmt.Errorf("CRAWL_MAX_RETRY_ATTEMPTS must be at least 1")
	}

	if c.Crawl.JitterFraction < 0 || c.Crawl.JitterFraction > 1 {
		return fmt.Errorf("CRAWL_JITTER_FRACTION must be within [0, 1]")
	}

	if c.Jobs.DedupeCacheSize < 1 {
		return fmt.Errorf("JOBS_DEDUPE_CACHE_SIZE must be at least 1")
	}

	if c.Jobs.OperationTimeout < 0 {
		return fmt.Errorf("JOBS_OPERATION_TIMEOUT cannot be negative")
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
