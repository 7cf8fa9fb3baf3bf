package config

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Queue backends.
const (
	QueueNone     = "none"
	QueueRedis    = "redis"
	QueueRabbitMQ = "rabbitmq"
	QueueKafka    = "kafka"
)

// StoreConfig selects the record store backend.
type StoreConfig struct {
	Backend     string
	DatabaseURL string
}

// RedisConfig holds Redis connection and behavior settings.
type RedisConfig struct {
	URL                string
	DialTimeout        *time.Duration
	ReadTimeout        *time.Duration
	WriteTimeout       *time.Duration
	PoolSize           *int
	MinIdleConns       *int
	MaxRetries         *int
	HealthcheckTimeout time.Duration
	OutcomeTTL         time.Duration
	OutcomeStream      string
	StreamMaxLen       int64
	EnableOTel         bool
	TLSConfig          *tls.Config
}

// GRPCConfig holds the listen address and ingress rate limiting settings.
type GRPCConfig struct {
	Addr              string
	RateLimitInterval time.Duration
	RateLimitBurst    int
}

// ObservabilityConfig holds the HTTP address for metrics and the websocket feed.
type ObservabilityConfig struct {
	Addr string
}

// WorkerConfig controls the async fulfillment worker.
type WorkerConfig struct {
	Queue       string
	Concurrency int
	Courier     string
	CallbackTTL time.Duration
	TaskStream  string
}

// RabbitConfig holds the RabbitMQ queue consumer settings.
type RabbitConfig struct {
	URL      string
	Queue    string
	Prefetch int
}

// KafkaConfig holds the Kafka queue consumer settings.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	Group   string
}

// LoadStore reads the record store selection from env.
func LoadStore() (StoreConfig, error) {
	cfg := StoreConfig{
		Backend:     strings.ToLower(stringOr("STORE_BACKEND", StoreMemory)),
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
	}
	switch cfg.Backend {
	case StoreMemory, StoreRedis:
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return cfg, errors.New("DATABASE_URL is required for STORE_BACKEND=postgres")
		}
	default:
		return cfg, fmt.Errorf("STORE_BACKEND: unknown backend %q", cfg.Backend)
	}
	return cfg, nil
}

// LoadRedis reads Redis config from env.
func LoadRedis() (RedisConfig, error) {
	cfg := RedisConfig{
		OutcomeStream: stringOr("REDIS_OUTCOME_STREAM", "fulfillment_events"),
	}

	url, err := requiredString("REDIS_URL")
	if err != nil {
		return cfg, err
	}
	cfg.URL = url

	if cfg.DialTimeout, err = optionalDuration("REDIS_DIAL_TIMEOUT"); err != nil {
		return cfg, err
	}
	if cfg.ReadTimeout, err = optionalDuration("REDIS_READ_TIMEOUT"); err != nil {
		return cfg, err
	}
	if cfg.WriteTimeout, err = optionalDuration("REDIS_WRITE_TIMEOUT"); err != nil {
		return cfg, err
	}
	if cfg.PoolSize, err = optionalInt("REDIS_POOL_SIZE"); err != nil {
		return cfg, err
	}
	if cfg.MinIdleConns, err = optionalInt("REDIS_MIN_IDLE_CONNS"); err != nil {
		return cfg, err
	}
	if cfg.MaxRetries, err = optionalInt("REDIS_MAX_RETRIES"); err != nil {
		return cfg, err
	}

	if cfg.HealthcheckTimeout, err = durationOr("REDIS_HEALTHCHECK_TIMEOUT", 2*time.Second); err != nil {
		return cfg, err
	}
	if cfg.OutcomeTTL, err = durationOr("REDIS_OUTCOME_TTL", 24*time.Hour); err != nil {
		return cfg, err
	}
	if cfg.StreamMaxLen, err = int64Or("REDIS_STREAM_MAXLEN", 10000); err != nil {
		return cfg, err
	}

	if cfg.EnableOTel, err = optionalBool("REDIS_OTEL"); err != nil {
		return cfg, err
	}

	if cfg.TLSConfig, err = loadRedisTLSFromEnv(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// LoadGRPC reads the gRPC listen address and ingress rate limit settings.
// A zero interval disables rate limiting.
func LoadGRPC() (GRPCConfig, error) {
	cfg := GRPCConfig{Addr: stringOr("GRPC_ADDR", ":50051")}
	var err error
	if cfg.RateLimitInterval, err = durationOr("GRPC_RATE_LIMIT_INTERVAL", 0); err != nil {
		return cfg, err
	}
	if cfg.RateLimitBurst, err = intOr("GRPC_RATE_LIMIT_BURST", 0); err != nil {
		return cfg, err
	}
	if cfg.RateLimitInterval > 0 && cfg.RateLimitBurst == 0 {
		return cfg, errors.New("GRPC_RATE_LIMIT_BURST is required when GRPC_RATE_LIMIT_INTERVAL is set")
	}
	return cfg, nil
}

// LoadObservability reads the metrics HTTP server address from env.
func LoadObservability() (ObservabilityConfig, error) {
	addr, err := requiredString("OBS_ADDR")
	if err != nil {
		return ObservabilityConfig{}, err
	}
	return ObservabilityConfig{Addr: addr}, nil
}

// LoadWorker reads the fulfillment worker settings from env.
func LoadWorker() (WorkerConfig, error) {
	cfg := WorkerConfig{
		Queue:      strings.ToLower(stringOr("QUEUE_BACKEND", QueueNone)),
		Courier:    strings.TrimSpace(os.Getenv("COURIER_PLACEHOLDER")),
		TaskStream: stringOr("REDIS_TASK_STREAM", "fulfillment_tasks"),
	}
	switch cfg.Queue {
	case QueueNone, QueueRedis, QueueRabbitMQ, QueueKafka:
	default:
		return cfg, fmt.Errorf("QUEUE_BACKEND: unknown backend %q", cfg.Queue)
	}

	var err error
	if cfg.Concurrency, err = intOr("WORKER_CONCURRENCY", 4); err != nil {
		return cfg, err
	}
	if cfg.Concurrency == 0 {
		return cfg, errors.New("WORKER_CONCURRENCY must be > 0")
	}
	if cfg.CallbackTTL, err = durationOr("CALLBACK_TTL", 15*time.Minute); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadRabbit reads RabbitMQ settings from env.
func LoadRabbit() (RabbitConfig, error) {
	url, err := requiredString("RABBITMQ_URL")
	if err != nil {
		return RabbitConfig{}, err
	}
	cfg := RabbitConfig{
		URL:   url,
		Queue: stringOr("RABBITMQ_QUEUE", "fulfillment.tasks"),
	}
	if cfg.Prefetch, err = intOr("RABBITMQ_PREFETCH", 0); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadKafka reads Kafka settings from env. KAFKA_BROKERS is comma separated.
func LoadKafka() (KafkaConfig, error) {
	raw, err := requiredString("KAFKA_BROKERS")
	if err != nil {
		return KafkaConfig{}, err
	}
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		return KafkaConfig{}, errors.New("KAFKA_BROKERS has no brokers")
	}
	return KafkaConfig{
		Brokers: brokers,
		Topic:   stringOr("KAFKA_TOPIC", "fulfillment-tasks"),
		Group:   stringOr("KAFKA_GROUP", "booksaga-fulfillment"),
	}, nil
}

func loadRedisTLSFromEnv() (*tls.Config, error) {
	caFile := strings.TrimSpace(os.Getenv("REDIS_TLS_CA_FILE"))
	certFile := strings.TrimSpace(os.Getenv("REDIS_TLS_CERT_FILE"))
	keyFile := strings.TrimSpace(os.Getenv("REDIS_TLS_KEY_FILE"))
	serverName := strings.TrimSpace(os.Getenv("REDIS_TLS_SERVER_NAME"))
	insecureStr := strings.TrimSpace(os.Getenv("REDIS_TLS_INSECURE_SKIP_VERIFY"))

	if caFile == "" && certFile == "" && keyFile == "" && serverName == "" && insecureStr == "" {
		return nil, nil
	}
	if (certFile == "") != (keyFile == "") {
		return nil, errors.New("REDIS_TLS_CERT_FILE and REDIS_TLS_KEY_FILE must be set together")
	}

	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: serverName,
	}

	if insecureStr != "" {
		insecure, err := strconv.ParseBool(insecureStr)
		if err != nil {
			return nil, fmt.Errorf("REDIS_TLS_INSECURE_SKIP_VERIFY: %w", err)
		}
		tlsConfig.InsecureSkipVerify = insecure
	}

	if caFile != "" {
		pemData, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("read REDIS_TLS_CA_FILE: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pemData) {
			return nil, errors.New("REDIS_TLS_CA_FILE contains no valid certificates")
		}
		tlsConfig.RootCAs = pool
	}

	if certFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("load redis TLS keypair: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

func stringOr(name, fallback string) string {
	if raw := strings.TrimSpace(os.Getenv(name)); raw != "" {
		return raw
	}
	return fallback
}

func optionalDuration(name string) (*time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil, nil
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 {
		return nil, fmt.Errorf("%s must be >= 0", name)
	}
	return &val, nil
}

func optionalInt(name string) (*int, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 {
		return nil, fmt.Errorf("%s must be >= 0", name)
	}
	return &val, nil
}

func optionalBool(name string) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, nil
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: %w", name, err)
	}
	return val, nil
}

func requiredString(name string) (string, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return "", fmt.Errorf("%s is required", name)
	}
	return raw, nil
}

func durationOr(name string, fallback time.Duration) (time.Duration, error) {
	val, err := optionalDuration(name)
	if err != nil || val == nil {
		return fallback, err
	}
	return *val, nil
}

func intOr(name string, fallback int) (int, error) {
	val, err := optionalInt(name)
	if err != nil || val == nil {
		return fallback, err
	}
	return *val, nil
}

func int64Or(name string, fallback int64) (int64, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback, nil
	}
	val, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("%s must be >= 0", name)
	}
	return val, nil
}
