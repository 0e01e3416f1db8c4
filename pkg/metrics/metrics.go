package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	RPCCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpc_calls_total",
			Help: "Total number of RPC calls issued by clients (count)",
		},
		[]string{"routing_key", "status"},
	)

	RPCCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rpc_call_duration_ms",
			Help:    "Round-trip duration of RPC calls in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 15000},
		},
		[]string{"routing_key"},
	)

	RPCPendingCalls = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rpc_pending_calls",
			Help: "Number of RPC calls awaiting a reply (count)",
		},
	)

	RPCOrphanRepliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpc_orphan_replies_total",
			Help: "Total number of replies dropped because no call was waiting for them (count)",
		},
		[]string{"client"},
	)

	RPCRequestsHandledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpc_requests_handled_total",
			Help: "Total number of requests handled by RPC servers (count)",
		},
		[]string{"queue", "status"},
	)

	RPCHandlerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rpc_handler_duration_ms",
			Help:    "Handler processing duration in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"queue"},
	)

	BrokerConnectAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_connect_attempts_total",
			Help: "Total number of broker connection attempts (count)",
		},
		[]string{"component", "status"},
	)

	SupervisorRestartsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supervisor_restarts_total",
			Help: "Total number of times a supervised server was restarted (count)",
		},
		[]string{"name"},
	)

	TokenValidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_validations_total",
			Help: "Total number of token validations (count)",
		},
		[]string{"result"},
	)

	ImageOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_operations_total",
			Help: "Total number of image store and URL operations (count)",
		},
		[]string{"operation", "status"},
	)

	SimilarityLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "similarity_lookups_total",
			Help: "Total number of similarity lookups by source (count)",
		},
		[]string{"source"},
	)

	EventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Total number of domain events published (count)",
		},
		[]string{"type", "status"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"service", "topic"},
	)

	DLQMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_messages_total",
			Help: "Total number of messages sent to DLQ (count)",
		},
		[]string{"service", "topic", "reason"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	KafkaMessagesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_read_total",
			Help: "Total number of messages read from Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_written_total",
			Help: "Total number of messages written to Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaConsumerLag = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kafka_consumer_lag",
			Help: "Kafka consumer lag (difference between latest offset and committed offset) (count)",
		},
		[]string{"service", "topic", "partition"},
	)

	KafkaWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_write_duration_ms",
			Help:    "Duration of writing messages to Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service", "topic"},
	)

	DatabaseQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_queries_total",
			Help: "Total number of database queries (count)",
		},
		[]string{"service", "database", "operation", "status"},
	)

	DatabaseQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_query_duration_ms",
			Help:    "Duration of database queries in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"service", "database", "operation"},
	)
)

var (
	rpcOnce            sync.Once
	brokerOnce         sync.Once
	circuitBreakerOnce sync.Once
	gatewayOnce        sync.Once
)

// RegisterRPCMetrics registers the client, server and supervisor metrics.
// Every service that speaks RPC calls it once at startup.
func RegisterRPCMetrics() {
	rpcOnce.Do(func() {
		prometheus.MustRegister(
			RPCCallsTotal,
			RPCCallDuration,
			RPCPendingCalls,
			RPCOrphanRepliesTotal,
			RPCRequestsHandledTotal,
			RPCHandlerDuration,
			BrokerConnectAttemptsTotal,
			SupervisorRestartsTotal,
			TokenValidationsTotal,
			ImageOperationsTotal,
			SimilarityLookupsTotal,
			DatabaseQueriesTotal,
			DatabaseQueryDuration,
		)
	})
}

func RegisterBrokerMetrics() {
	brokerOnce.Do(func() {
		prometheus.MustRegister(
			EventsPublishedTotal,
			RetryAttemptsTotal,
			DLQMessagesTotal,
			KafkaMessagesReadTotal,
			KafkaMessagesWrittenTotal,
			KafkaConsumerLag,
			KafkaWriteDuration,
		)
	})
}

func RegisterCircuitBreakerMetrics() {
	circuitBreakerOnce.Do(func() {
		prometheus.MustRegister(CircuitBreakerState, CircuitBreakerRequests, CircuitBreakerFailures)
	})
}

func RegisterGatewayMetrics() {
	gatewayOnce.Do(func() {
		prometheus.MustRegister(RateLimitRequestsTotal)
	})
}

func ObserveRPCCall(routingKey, status string, duration time.Duration) {
	RPCCallsTotal.WithLabelValues(routingKey, status).Inc()
	RPCCallDuration.WithLabelValues(routingKey).Observe(float64(duration.Milliseconds()))
}

func ObserveRPCHandled(queue, status string, duration time.Duration) {
	RPCRequestsHandledTotal.WithLabelValues(queue, status).Inc()
	RPCHandlerDuration.WithLabelValues(queue).Observe(float64(duration.Milliseconds()))
}

func IncOrphanReply(client string) {
	RPCOrphanRepliesTotal.WithLabelValues(client).Inc()
}

func IncConnectAttempt(component, status string) {
	BrokerConnectAttemptsTotal.WithLabelValues(component, status).Inc()
}

func IncSupervisorRestart(name string) {
	SupervisorRestartsTotal.WithLabelValues(name).Inc()
}

func IncTokenValidation(result string) {
	TokenValidationsTotal.WithLabelValues(result).Inc()
}

func IncImageOperation(operation, status string) {
	ImageOperationsTotal.WithLabelValues(operation, status).Inc()
}

func IncSimilarityLookup(source string) {
	SimilarityLookupsTotal.WithLabelValues(source).Inc()
}

func IncEventPublished(eventType, status string) {
	EventsPublishedTotal.WithLabelValues(eventType, status).Inc()
}

func IncKafkaMessagesRead(service, topic string) {
	KafkaMessagesReadTotal.WithLabelValues(service, topic).Inc()
}

func IncKafkaMessagesWritten(service, topic string) {
	KafkaMessagesWrittenTotal.WithLabelValues(service, topic).Inc()
}

func SetKafkaConsumerLag(service, topic string, partition int, lag int64) {
	KafkaConsumerLag.WithLabelValues(service, topic, fmt.Sprintf("%d", partition)).Set(float64(lag))
}

func ObserveKafkaWriteDuration(service, topic string, duration time.Duration) {
	KafkaWriteDuration.WithLabelValues(service, topic).Observe(float64(duration.Milliseconds()))
}

func ObserveDatabaseQuery(service, database, operation string, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	DatabaseQueriesTotal.WithLabelValues(service, database, operation, status).Inc()
	DatabaseQueryDuration.WithLabelValues(service, database, operation).Observe(float64(duration.Milliseconds()))
}
