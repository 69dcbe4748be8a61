package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	AppEnv  string
	Port    string
	Version string

	ProductServiceURL        string
	RecommendationServiceURL string
	ReviewServiceURL         string

	// ServiceAddress identifies this instance in aggregate provenance and fallbacks.
	ServiceAddress string

	JWTSecret string

	// CORSAllowedOrigins enables CORS when non-empty.
	CORSAllowedOrigins []string

	RabbitURL string
	// RabbitGroup names the consumer group whose partition queues are declared up front.
	RabbitGroup string
	RedisURL    string

	RLEnabled bool
	RLLimit   int
	RLWindow  time.Duration

	TracingEnabled bool
	OTLPEndpoint   string

	DownstreamReadTimeout  time.Duration
	DownstreamWriteTimeout time.Duration

	Resilience Resilience `yaml:"resilience"`
	Publisher  Publisher  `yaml:"publisher"`
}

// Resilience configures the wrapper around the product call.
type Resilience struct {
	Timeout          time.Duration `yaml:"timeout"`
	MaxAttempts      int           `yaml:"max_attempts"`
	RetryWait        time.Duration `yaml:"retry_wait"`
	RetryBackoff     string        `yaml:"retry_backoff"` // "fixed" or "exponential"
	WindowSize       int           `yaml:"window_size"`
	MinCalls         int           `yaml:"min_calls"`
	FailureRate      float64       `yaml:"failure_rate"`
	OpenDuration     time.Duration `yaml:"open_duration"`
	HalfOpenCalls    int           `yaml:"half_open_calls"`
	FallbackNotFound []int         `yaml:"fallback_not_found_ids"`
}

type Publisher struct {
	Workers        int           `yaml:"workers"`
	QueueSize      int           `yaml:"queue_size"`
	PartitionCount int           `yaml:"partition_count"`
	Timeout        time.Duration `yaml:"timeout"`
}

func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:  getEnv("APP_ENV", "dev"),
		Port:    getEnv("HTTP_PORT", "8080"),
		Version: getEnv("SERVICE_VERSION", "dev"),

		ProductServiceURL:        getEnv("PRODUCT_SERVICE_URL", "http://product:8080"),
		RecommendationServiceURL: getEnv("RECOMMENDATION_SERVICE_URL", "http://recommendation:8080"),
		ReviewServiceURL:         getEnv("REVIEW_SERVICE_URL", "http://review:8080"),

		JWTSecret:          getEnv("JWT_SECRET", ""),
		CORSAllowedOrigins: getStringList("CORS_ALLOWED_ORIGINS"),

		RabbitURL:   getEnv("RABBIT_URL", ""),
		RabbitGroup: getEnv("RABBIT_GROUP", "sink"),
		RedisURL:    getEnv("REDIS_URL", ""),

		RLEnabled: getBool("RL_ENABLED", true),
		RLLimit:   getInt("RL_IP_LIMIT", 100),
		RLWindow:  getDuration("RL_IP_WINDOW", time.Minute),

		TracingEnabled: getBool("TRACING_ENABLED", false),
		OTLPEndpoint:   getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		DownstreamReadTimeout:  getDuration("DOWNSTREAM_READ_TIMEOUT", 2*time.Second),
		DownstreamWriteTimeout: getDuration("DOWNSTREAM_WRITE_TIMEOUT", 5*time.Second),

		Resilience: Resilience{
			Timeout:          getDuration("PRODUCT_TIMEOUT", 2*time.Second),
			MaxAttempts:      getInt("RETRY_MAX_ATTEMPTS", 3),
			RetryWait:        getDuration("RETRY_WAIT", time.Second),
			RetryBackoff:     getEnv("RETRY_BACKOFF", "fixed"),
			WindowSize:       getInt("CB_WINDOW_SIZE", 5),
			MinCalls:         getInt("CB_MIN_CALLS", 5),
			FailureRate:      getFloat("CB_FAILURE_RATE", 0.5),
			OpenDuration:     getDuration("CB_OPEN_DURATION", 10*time.Second),
			HalfOpenCalls:    getInt("CB_HALF_OPEN_CALLS", 3),
			FallbackNotFound: getIntList("FALLBACK_NOT_FOUND_IDS", []int{13}),
		},
		Publisher: Publisher{
			Workers:        getInt("PUBLISH_WORKERS", 4),
			QueueSize:      getInt("PUBLISH_QUEUE_SIZE", 100),
			PartitionCount: getInt("PUBLISH_PARTITION_COUNT", 2),
			Timeout:        getDuration("PUBLISH_TIMEOUT", 5*time.Second),
		},
	}

	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	cfg.ServiceAddress = getEnv("SERVICE_ADDRESS", defaultServiceAddress(cfg.Port))

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFile overlays the resilience and publisher sections from a YAML file.
// Keys absent from the file keep their env/default values.
func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) validate() error {
	r := c.Resilience
	switch {
	case r.Timeout <= 0:
		return fmt.Errorf("PRODUCT_TIMEOUT must be positive")
	case r.MaxAttempts < 1:
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be >= 1")
	case r.RetryBackoff != "fixed" && r.RetryBackoff != "exponential":
		return fmt.Errorf("RETRY_BACKOFF must be fixed or exponential, got %q", r.RetryBackoff)
	case r.WindowSize < 1 || r.MinCalls < 1:
		return fmt.Errorf("CB_WINDOW_SIZE and CB_MIN_CALLS must be >= 1")
	case r.FailureRate <= 0 || r.FailureRate > 1:
		return fmt.Errorf("CB_FAILURE_RATE must be in (0,1]")
	case r.HalfOpenCalls < 1:
		return fmt.Errorf("CB_HALF_OPEN_CALLS must be >= 1")
	}

	p := c.Publisher
	if p.Workers < 1 || p.QueueSize < 1 || p.PartitionCount < 1 {
		return fmt.Errorf("publisher workers, queue size and partition count must be >= 1")
	}
	if c.AppEnv != "dev" && c.RabbitURL == "" {
		return fmt.Errorf("missing RABBIT_URL (required when APP_ENV != dev)")
	}
	return nil
}

func defaultServiceAddress(port string) string {
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	ip := "127.0.0.1"
	if addrs, err := net.LookupHost(host); err == nil && len(addrs) > 0 {
		ip = addrs[0]
	}
	return fmt.Sprintf("%s/%s:%s", host, ip, port)
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func getStringList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getIntList parses a comma separated list; an explicitly empty value ("-") disables the list.
func getIntList(key string, fallback []int) []int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	if v == "-" {
		return nil
	}
	var out []int
	for _, part := range strings.Split(v, ",") {
		i, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return fallback
		}
		out = append(out, i)
	}
	return out
}
