package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	LedgerSQLite = "sqlite"
	LedgerMySQL  = "mysql"

	PendingNone   = "none"
	PendingMemory = "memory"
	PendingKafka  = "kafka"
	PendingRedis  = "redis"
)

type Config struct {
	HTTPAddr string

	GatewayURL        string
	GatewayTimeout    time.Duration
	GatewayMaxRetries uint64

	LedgerDriver string
	LedgerDSN    string

	PendingSource       string
	PendingPollInterval time.Duration
	PendingMaxWait      time.Duration
	PendingMaxAge       time.Duration

	RedisAddr       string
	RedisPendingKey string
	RedisPendingTTL time.Duration

	KafkaBrokers      []string
	KafkaPendingTopic string
	KafkaGroupID      string

	SyncStartBlock   uint64
	SyncPollInterval time.Duration

	RPCBatchLimit       int
	RPCBatchConcurrency int

	OtelEndpoint string

	LogLevel      string
	LogFormat     string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
}

type EnvSource interface {
	Lookup(key string) (string, bool)
}

type EnvMap map[string]string

func (e EnvMap) Lookup(key string) (string, bool) {
	value, ok := e[key]
	return value, ok
}

func FromEnviron() EnvSource {
	env := make(EnvMap)
	for _, entry := range os.Environ() {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || key == "" {
			continue
		}
		env[key] = value
	}
	return env
}

func Load(source EnvSource) (Config, error) {
	if source == nil {
		return Config{}, errors.New("env source is required")
	}

	gatewayURL := lookupString(source, "GATEWAY_URL", "")
	if gatewayURL == "" {
		return Config{}, errors.New("GATEWAY_URL is required")
	}

	cfg := Config{
		HTTPAddr:          lookupString(source, "HTTP_ADDR", ":8080"),
		GatewayURL:        gatewayURL,
		LedgerDriver:      strings.ToLower(lookupString(source, "LEDGER_DRIVER", LedgerSQLite)),
		PendingSource:     strings.ToLower(lookupString(source, "PENDING_SOURCE", PendingMemory)),
		RedisAddr:         lookupString(source, "REDIS_ADDR", ""),
		RedisPendingKey:   lookupString(source, "REDIS_PENDING_KEY", "txstatus:pending"),
		KafkaPendingTopic: lookupString(source, "KAFKA_PENDING_TOPIC", "txstatus-pending"),
		KafkaGroupID:      lookupString(source, "KAFKA_GROUP_ID", ""),
		OtelEndpoint:      lookupString(source, "OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		LogLevel:          lookupString(source, "LOG_LEVEL", "info"),
		LogFormat:         lookupString(source, "LOG_FORMAT", "text"),
		LogFile:           lookupString(source, "LOG_FILE", ""),
	}

	switch cfg.LedgerDriver {
	case LedgerSQLite:
		cfg.LedgerDSN = lookupString(source, "LEDGER_DSN", "file:ledger.db?_pragma=busy_timeout(5000)")
	case LedgerMySQL:
		cfg.LedgerDSN = lookupString(source, "LEDGER_DSN", "root:@tcp(127.0.0.1:3306)/txstatus?parseTime=true")
	default:
		return Config{}, fmt.Errorf("invalid LEDGER_DRIVER %q", cfg.LedgerDriver)
	}

	switch cfg.PendingSource {
	case PendingNone, PendingMemory, PendingKafka, PendingRedis:
	default:
		return Config{}, fmt.Errorf("invalid PENDING_SOURCE %q", cfg.PendingSource)
	}

	var err error
	if cfg.GatewayTimeout, err = parseDurationEnv(source, "GATEWAY_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.GatewayMaxRetries, err = parseUintEnv(source, "GATEWAY_MAX_RETRIES", 3); err != nil {
		return Config{}, err
	}
	if cfg.PendingPollInterval, err = parseDurationEnv(source, "PENDING_POLL_INTERVAL", 2*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.PendingMaxWait, err = parseDurationEnv(source, "PENDING_MAX_WAIT", 250*time.Millisecond); err != nil {
		return Config{}, err
	}
	if cfg.PendingMaxAge, err = parseDurationEnv(source, "PENDING_MAX_AGE", 0); err != nil {
		return Config{}, err
	}
	if cfg.RedisPendingTTL, err = parseDurationEnv(source, "REDIS_PENDING_TTL", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.SyncStartBlock, err = parseUintEnv(source, "SYNC_START_BLOCK", 0); err != nil {
		return Config{}, err
	}
	if cfg.SyncPollInterval, err = parseDurationEnv(source, "SYNC_POLL_INTERVAL", 5*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.RPCBatchLimit, err = parseIntEnv(source, "RPC_BATCH_LIMIT", 100); err != nil {
		return Config{}, err
	}
	if cfg.RPCBatchConcurrency, err = parseIntEnv(source, "RPC_BATCH_CONCURRENCY", 8); err != nil {
		return Config{}, err
	}
	if cfg.LogMaxSizeMB, err = parseIntEnv(source, "LOG_MAX_SIZE_MB", 100); err != nil {
		return Config{}, err
	}
	if cfg.LogMaxBackups, err = parseIntEnv(source, "LOG_MAX_BACKUPS", 3); err != nil {
		return Config{}, err
	}
	if cfg.KafkaBrokers, err = parseList(source, "KAFKA_BROKERS"); err != nil {
		return Config{}, err
	}

	if cfg.PendingSource == PendingKafka && len(cfg.KafkaBrokers) == 0 {
		return Config{}, errors.New("KAFKA_BROKERS is required when PENDING_SOURCE=kafka")
	}
	if cfg.PendingSource == PendingRedis && cfg.RedisAddr == "" {
		return Config{}, errors.New("REDIS_ADDR is required when PENDING_SOURCE=redis")
	}
	return cfg, nil
}

func lookupString(source EnvSource, key, defaultValue string) string {
	raw, ok := source.Lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return defaultValue
	}
	return strings.TrimSpace(raw)
}

func parseUintEnv(source EnvSource, key string, defaultValue uint64) (uint64, error) {
	raw, ok := source.Lookup(key)
	if !ok || raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func parseIntEnv(source EnvSource, key string, defaultValue int) (int, error) {
	raw, ok := source.Lookup(key)
	if !ok || raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if value < 0 {
		return 0, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return value, nil
}

func parseDurationEnv(source EnvSource, key string, defaultValue time.Duration) (time.Duration, error) {
	raw, ok := source.Lookup(key)
	if !ok || raw == "" {
		return defaultValue, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if value < 0 {
		return 0, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return value, nil
}

func parseList(source EnvSource, key string) ([]string, error) {
	raw, ok := source.Lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var values []string
	for _, item := range strings.Split(raw, ",") {
		if value := strings.TrimSpace(item); value != "" {
			values = append(values, value)
		}
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("invalid %s: no entries", key)
	}
	return values, nil
}
