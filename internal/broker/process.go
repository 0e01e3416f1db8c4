package broker

import (
	"context"
	"time"

	"artspire/internal/config"
	"artspire/internal/logger"
	"artspire/pkg/errors"
	"artspire/pkg/logging"
	"artspire/pkg/metrics"
	"artspire/pkg/models"
	"artspire/pkg/retry"
)

func policyFromConfig(cfg config.RetryConfig) retry.Policy {
	policy := retry.DefaultPolicy()
	if cfg.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialInterval > 0 {
		policy.InitialInterval = cfg.InitialInterval
	}
	if cfg.MaxInterval > 0 {
		policy.MaxInterval = cfg.MaxInterval
	}
	if cfg.Multiplier > 0 {
		policy.Multiplier = cfg.Multiplier
	}
	if cfg.MaxElapsedTime > 0 {
		policy.MaxElapsedTime = cfg.MaxElapsedTime
	}
	return policy
}

// eventContext carries the event's trace and correlation ids into ctx so
// that handler logs line up with the publisher's.
func eventContext(ctx context.Context, event models.Event, serviceName string) context.Context {
	if event.Metadata.TraceID != "" {
		ctx = logging.WithTraceID(ctx, event.Metadata.TraceID)
	}
	correlationID := event.Metadata.CorrelationID
	if correlationID == "" {
		correlationID = event.ID
	}
	ctx = logging.WithCorrelationID(ctx, correlationID)
	return logging.WithServiceName(ctx, serviceName)
}

// processWithRetry runs handler under policy, turning panics into errors.
func processWithRetry(ctx context.Context, log logger.Logger, serviceName, topic string, policy retry.Policy, handler HandlerFunc, event models.Event) error {
	return retry.RetryWithCallback(ctx, policy, func() error {
		return errors.Guard(func() error {
			return handler(ctx, event)
		})
	}, func(attempt int, err error, nextDelay time.Duration) {
		metrics.RetryAttemptsTotal.WithLabelValues(serviceName, topic).Inc()
		log.WarnwCtx(ctx, "Retrying event processing",
			"attempt", attempt,
			"max_attempts", policy.MaxAttempts,
			"next_delay", nextDelay,
			"error", err,
			"topic", topic,
		)
	})
}

// withFailure records why event is being dead-lettered.
func withFailure(event models.Event, cause error, sourceTopic string) models.Event {
	failure := make(map[string]interface{}, len(event.Metadata.Failure)+3)
	for k, v := range event.Metadata.Failure {
		failure[k] = v
	}
	failure["reason"] = cause.Error()
	failure["source_topic"] = sourceTopic
	failure["failed_at"] = time.Now().UTC()
	event.Metadata.Failure = failure
	return event
}

func serviceFromContext(ctx context.Context) string {
	if name := logging.GetServiceName(ctx); name != "" {
		return name
	}
	return "unknown"
}
