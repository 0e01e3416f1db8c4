package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"artspire/internal/constants"
)

func LoadConfig(configFile string) (*Config, error) {
	viper.Reset()

	viper.SetConfigType("yaml")
	viper.SetConfigFile(configFile)

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout_seconds", constants.DefaultHTTPTimeout)
	viper.SetDefault("server.write_timeout_seconds", constants.DefaultHTTPTimeout)

	viper.SetDefault("rabbitmq.port", 5672)
	viper.SetDefault("rabbitmq.prefetch_count", constants.DefaultPrefetchCount)
	viper.SetDefault("rabbitmq.heartbeat", constants.DefaultHeartbeatSeconds)
	viper.SetDefault("rabbitmq.timeout_seconds", constants.DefaultTimeoutSeconds)
	viper.SetDefault("rabbitmq.connect_timeout", constants.DefaultConnectTimeout)

	viper.SetDefault("rpc.call_timeout", constants.DefaultCallTimeout)
	viper.SetDefault("rpc.connect_retry_delay", constants.DefaultConnectRetryDelay)
	viper.SetDefault("rpc.restart_delay", constants.DefaultRestartDelay)
	viper.SetDefault("rpc.stop_timeout", constants.DefaultStopTimeout)

	viper.SetDefault("events.ping_queue", constants.DefaultPingQueue)
	viper.SetDefault("events.ping_interval", constants.DefaultPingPeriod)
	viper.SetDefault("events.index_topic", constants.DefaultIndexTopic)

	viper.SetDefault("jwt.access_ttl", constants.DefaultAccessTTL)
	viper.SetDefault("jwt.refresh_ttl", constants.DefaultRefreshTTL)

	viper.SetDefault("storage.bucket", constants.DefaultGridFSBucket)
	viper.SetDefault("storage.expiration_days", constants.DefaultExpirationDays)

	viper.SetDefault("recommendations.collection", constants.DefaultSimilarityCollection)
	viper.SetDefault("recommendations.cache_ttl", constants.DefaultSimilarityTTL)

	viper.SetDefault("logging.level", "info")
}

func bindEnvVariables() {
	viper.BindEnv("rabbitmq.host", "RABBITMQ_HOST")
	viper.BindEnv("rabbitmq.port", "RABBITMQ_PORT")
	viper.BindEnv("rabbitmq.user", "RABBITMQ_USER")
	viper.BindEnv("rabbitmq.password", "RABBITMQ_PASSWORD")
	viper.BindEnv("rabbitmq.vhost", "RABBITMQ_VHOST")

	viper.BindEnv("broker.type", "BROKER_TYPE")
	viper.BindEnv("broker.kafka.brokers", "BROKER_KAFKA_BROKERS")
	viper.BindEnv("broker.kafka.group_id", "BROKER_KAFKA_GROUP_ID")
	viper.BindEnv("broker.kafka.dlq_topic", "BROKER_KAFKA_DLQ_TOPIC")

	viper.BindEnv("database.postgres.host", "DATABASE_POSTGRES_HOST")
	viper.BindEnv("database.postgres.port", "DATABASE_POSTGRES_PORT")
	viper.BindEnv("database.postgres.user", "DATABASE_POSTGRES_USER")
	viper.BindEnv("database.postgres.password", "DATABASE_POSTGRES_PASSWORD")
	viper.BindEnv("database.postgres.dbname", "DATABASE_POSTGRES_DBNAME")
	viper.BindEnv("database.postgres.sslmode", "DATABASE_POSTGRES_SSLMODE")

	viper.BindEnv("database.redis.host", "DATABASE_REDIS_HOST")
	viper.BindEnv("database.redis.port", "DATABASE_REDIS_PORT")
	viper.BindEnv("database.redis.password", "DATABASE_REDIS_PASSWORD")
	viper.BindEnv("database.redis.db", "DATABASE_REDIS_DB")

	viper.BindEnv("database.mongodb.uri", "DATABASE_MONGODB_URI")
	viper.BindEnv("database.mongodb.database", "DATABASE_MONGODB_DATABASE")

	viper.BindEnv("jwt.private_key_path", "JWT_PRIVATE_KEY_PATH")
	viper.BindEnv("jwt.public_key_path", "JWT_PUBLIC_KEY_PATH")

	viper.BindEnv("storage.signing_key", "STORAGE_SIGNING_KEY")
	viper.BindEnv("storage.base_url", "STORAGE_BASE_URL")

	viper.BindEnv("recommendations.fallback_ids", "RECOMMENDATIONS_FALLBACK_IDS")

	viper.BindEnv("server.port", "SERVER_PORT")

	viper.BindEnv("logging.level", "LOGGING_LEVEL")
	viper.BindEnv("logging.format", "LOGGING_FORMAT")

	viper.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
	viper.BindEnv("tracing.otlp.insecure", "TRACING_OTLP_INSECURE")
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.service_name", "TRACING_SERVICE_NAME")
}

// applyEnvOverrides handles list values, which viper does not split from
// plain environment strings.
func applyEnvOverrides(cfg *Config) error {
	if brokersEnv := viper.GetString("BROKER_KAFKA_BROKERS"); brokersEnv != "" {
		brokers := splitList(brokersEnv)
		if len(brokers) > 0 {
			cfg.Broker.Kafka.Brokers = brokers
		}
	}

	if idsEnv := viper.GetString("RECOMMENDATIONS_FALLBACK_IDS"); idsEnv != "" {
		var ids []int
		for _, raw := range splitList(idsEnv) {
			id, err := strconv.Atoi(raw)
			if err != nil {
				return fmt.Errorf("invalid fallback id %q: %w", raw, err)
			}
			ids = append(ids, id)
		}
		cfg.Recommendations.FallbackIDs = ids
	}

	if otlpEndpoint := viper.GetString("TRACING_OTLP_ENDPOINT"); otlpEndpoint != "" {
		cfg.Tracing.OTLP.Endpoint = otlpEndpoint
	}

	return nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
