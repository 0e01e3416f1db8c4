package config

import (
	"fmt"
	"strings"

	"artspire/internal/constants"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errs []error

	validators := []func() error{
		func() error { return validateServer(cfg.Server) },
		func() error { return validateRabbitMQ(cfg.RabbitMQ) },
		func() error { return validateRPC(cfg.RPC) },
		func() error { return validateBroker(cfg.Broker) },
		func() error { return validateDatabase(cfg.Database) },
		func() error { return validateJWT(cfg.JWT) },
		func() error { return validateStorage(cfg.Storage) },
		func() error { return validateRecommendations(cfg.Recommendations) },
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

func validatePort(field string, port int) error {
	if port < 1 || port > 65535 {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", port),
		}
	}
	return nil
}

func validateServer(cfg ServerConfig) error {
	if err := validatePort("server.port", cfg.Port); err != nil {
		return err
	}

	if cfg.ReadTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout_seconds",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout_seconds",
			Message: "write timeout must be positive",
		}
	}

	return nil
}

func validateRabbitMQ(cfg RabbitMQConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "rabbitmq.host",
			Message: "RabbitMQ host is required",
		}
	}

	if err := validatePort("rabbitmq.port", cfg.Port); err != nil {
		return err
	}

	if cfg.User == "" {
		return &ValidationError{
			Field:   "rabbitmq.user",
			Message: "RabbitMQ user is required",
		}
	}

	if cfg.PrefetchCount < 0 {
		return &ValidationError{
			Field:   "rabbitmq.prefetch_count",
			Message: "prefetch_count must be non-negative",
		}
	}

	if cfg.HeartbeatSeconds < 0 {
		return &ValidationError{
			Field:   "rabbitmq.heartbeat",
			Message: "heartbeat must be non-negative",
		}
	}

	if cfg.TimeoutSeconds < 0 {
		return &ValidationError{
			Field:   "rabbitmq.timeout_seconds",
			Message: "timeout_seconds must be non-negative",
		}
	}

	return nil
}

func validateRPC(cfg RPCConfig) error {
	if cfg.CallTimeout <= 0 {
		return &ValidationError{
			Field:   "rpc.call_timeout",
			Message: "call timeout must be positive",
		}
	}

	if cfg.ConnectRetryDelay <= 0 {
		return &ValidationError{
			Field:   "rpc.connect_retry_delay",
			Message: "connect retry delay must be positive",
		}
	}

	if cfg.RestartDelay < 0 {
		return &ValidationError{
			Field:   "rpc.restart_delay",
			Message: "restart delay must be non-negative",
		}
	}

	if cfg.StopTimeout <= 0 {
		return &ValidationError{
			Field:   "rpc.stop_timeout",
			Message: "stop timeout must be positive",
		}
	}

	return nil
}

func validateBroker(cfg BrokerConfig) error {
	switch cfg.Type {
	case "":
		return nil
	case constants.BrokerTypeKafka:
		return validateKafka(cfg.Kafka)
	case constants.BrokerTypeRabbitMQ:
		return nil
	default:
		return &ValidationError{
			Field:   "broker.type",
			Message: fmt.Sprintf("unknown broker type: %s (supported: kafka, rabbitmq)", cfg.Type),
		}
	}
}

func validateKafka(cfg KafkaConfig) error {
	if len(cfg.Brokers) == 0 {
		return &ValidationError{
			Field:   "broker.kafka.brokers",
			Message: "at least one Kafka broker is required",
		}
	}

	for i, broker := range cfg.Brokers {
		if broker == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("broker.kafka.brokers[%d]", i),
				Message: "broker address cannot be empty",
			}
		}
	}

	if cfg.GroupID == "" {
		return &ValidationError{
			Field:   "broker.kafka.group_id",
			Message: "Kafka consumer group ID is required",
		}
	}

	if cfg.Retry.MaxAttempts < 0 {
		return &ValidationError{
			Field:   "broker.kafka.retry.max_attempts",
			Message: "max_attempts must be non-negative",
		}
	}

	if cfg.Retry.MaxInterval > 0 && cfg.Retry.InitialInterval > 0 && cfg.Retry.MaxInterval < cfg.Retry.InitialInterval {
		return &ValidationError{
			Field:   "broker.kafka.retry.max_interval",
			Message: "max_interval must be greater than or equal to initial_interval",
		}
	}

	if cfg.Retry.Multiplier < 0 {
		return &ValidationError{
			Field:   "broker.kafka.retry.multiplier",
			Message: "multiplier must be non-negative",
		}
	}

	return nil
}

func validateDatabase(cfg DatabaseConfig) error {
	if cfg.Postgres.Host != "" || cfg.Postgres.Port > 0 {
		if err := validatePostgres(cfg.Postgres); err != nil {
			return err
		}
	}

	if cfg.Redis.Host != "" || cfg.Redis.Port > 0 {
		if err := validateRedis(cfg.Redis); err != nil {
			return err
		}
	}

	if cfg.MongoDB.URI != "" {
		if err := validateMongoDB(cfg.MongoDB); err != nil {
			return err
		}
	}

	return nil
}

func validatePostgres(cfg PostgresConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.postgres.host",
			Message: "PostgreSQL host is required",
		}
	}

	if err := validatePort("database.postgres.port", cfg.Port); err != nil {
		return err
	}

	if cfg.User == "" {
		return &ValidationError{
			Field:   "database.postgres.user",
			Message: "PostgreSQL user is required",
		}
	}

	if cfg.DBName == "" {
		return &ValidationError{
			Field:   "database.postgres.dbname",
			Message: "PostgreSQL database name is required",
		}
	}

	validSSLModes := map[string]bool{
		"disable": true, "allow": true, "prefer": true,
		"require": true, "verify-ca": true, "verify-full": true,
	}
	if cfg.SSLMode != "" && !validSSLModes[strings.ToLower(cfg.SSLMode)] {
		return &ValidationError{
			Field:   "database.postgres.sslmode",
			Message: fmt.Sprintf("invalid SSL mode: %s (valid: disable, allow, prefer, require, verify-ca, verify-full)", cfg.SSLMode),
		}
	}

	return nil
}

func validateRedis(cfg RedisConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.redis.host",
			Message: "Redis host is required",
		}
	}

	return validatePort("database.redis.port", cfg.Port)
}

func validateMongoDB(cfg MongoDBConfig) error {
	if !strings.HasPrefix(cfg.URI, "mongodb://") && !strings.HasPrefix(cfg.URI, "mongodb+srv://") {
		return &ValidationError{
			Field:   "database.mongodb.uri",
			Message: "MongoDB URI must start with mongodb:// or mongodb+srv://",
		}
	}

	if cfg.Database == "" {
		return &ValidationError{
			Field:   "database.mongodb.database",
			Message: "MongoDB database name is required",
		}
	}

	return nil
}

func validateJWT(cfg JWTConfig) error {
	if cfg.AccessTTL <= 0 {
		return &ValidationError{
			Field:   "jwt.access_ttl",
			Message: "access token TTL must be positive",
		}
	}

	if cfg.RefreshTTL < cfg.AccessTTL {
		return &ValidationError{
			Field:   "jwt.refresh_ttl",
			Message: "refresh token TTL must not be shorter than access token TTL",
		}
	}

	return nil
}

func validateStorage(cfg StorageConfig) error {
	if cfg.ExpirationDays <= 0 {
		return &ValidationError{
			Field:   "storage.expiration_days",
			Message: "expiration_days must be positive",
		}
	}

	if cfg.BaseURL != "" && cfg.SigningKey == "" {
		return &ValidationError{
			Field:   "storage.signing_key",
			Message: "signing key is required when base_url is set",
		}
	}

	return nil
}

func validateRecommendations(cfg RecommendationsConfig) error {
	if cfg.CacheTTL < 0 {
		return &ValidationError{
			Field:   "recommendations.cache_ttl",
			Message: "cache TTL must be non-negative",
		}
	}

	return nil
}
