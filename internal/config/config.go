package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StoreMemory = "memory"
	StoreMySQL  = "mysql"
)

const (
	ShutdownTimeout = 5 * time.Second
	RedisPoolSize   = 100

	// MaxOperationTimeout keeps a booking inside the window an idempotency
	// key may stay pending.
	MaxOperationTimeout = time.Minute
)

type Config struct {
	HTTPAddr string
	GRPCAddr string

	StoreDriver string
	MySQLDSN    string
	RedisAddr   string

	KafkaBrokers []string
	KafkaTopic   string

	OtelEndpoint string

	OperationTimeout time.Duration
	IdempotencyTTL   time.Duration
	EventWorkers     int
	EventQueueSize   int
}

// Load reads the configuration from the environment. Unset variables take
// their defaults; malformed ones are an error.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPAddr:     getEnv("HTTP_ADDR", ":8080"),
		GRPCAddr:     getEnv("GRPC_ADDR", ":50051"),
		StoreDriver:  strings.ToLower(getEnv("STORE_DRIVER", StoreMemory)),
		MySQLDSN:     os.Getenv("MYSQL_DSN"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		KafkaBrokers: splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "booking.events"),
		OtelEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	var err error
	if cfg.OperationTimeout, err = getDuration("OPERATION_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.IdempotencyTTL, err = getDuration("IDEMPOTENCY_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.EventWorkers, err = getInt("EVENT_WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.EventQueueSize, err = getInt("EVENT_QUEUE_SIZE", 1024); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case StoreMemory:
	case StoreMySQL:
		if c.MySQLDSN == "" {
			return fmt.Errorf("MYSQL_DSN environment variable is required when STORE_DRIVER=mysql")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreMemory, StoreMySQL, c.StoreDriver)
	}

	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return fmt.Errorf("KAFKA_TOPIC must not be empty when KAFKA_BROKERS is set")
	}
	if c.OperationTimeout <= 0 {
		return fmt.Errorf("OPERATION_TIMEOUT must be positive")
	}
	if c.OperationTimeout >= MaxOperationTimeout {
		return fmt.Errorf("OPERATION_TIMEOUT must be below %s", MaxOperationTimeout)
	}
	if c.IdempotencyTTL <= 0 {
		return fmt.Errorf("IDEMPOTENCY_TTL must be positive")
	}
	if c.EventWorkers < 1 {
		return fmt.Errorf("EVENT_WORKERS must be at least 1")
	}
	if c.EventQueueSize < 1 {
		return fmt.Errorf("EVENT_QUEUE_SIZE must be at least 1")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func getInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
