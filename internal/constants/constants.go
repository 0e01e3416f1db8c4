package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

// Routing keys of the RPC endpoints. Each one is also the name of the
// durable queue its server consumes.
const (
	JWTRequestQueue        = "jwt_request"
	UsersRequestQueue      = "users_request"
	ImageAddRequestQueue   = "s3_image_add_request"
	ImageGetRequestQueue   = "s3_image_get_request"
	SimilarityRequestQueue = "similarity_request"
)

const (
	DefaultPingQueue  = "ping_queue"
	DefaultIndexTopic = "similarity_index_events"
	PingMessageBody   = "ping"
	DefaultPingPeriod = 120 * time.Second
)

const (
	DefaultPrefetchCount     = 50
	DefaultHeartbeatSeconds  = 120
	DefaultTimeoutSeconds    = 15
	DefaultConnectTimeout    = 30 * time.Second
	DefaultCallTimeout       = 15 * time.Second
	DefaultConnectRetryDelay = 5 * time.Second
	DefaultRestartDelay      = 1 * time.Second
	DefaultStopTimeout       = 5 * time.Second
)

const (
	CacheKeyPrefixSimilarity = "similar_arts_for_"
	DefaultSimilarityTTL     = 600 * time.Second
)

const (
	DefaultMongoDBName          = "artspire"
	DefaultGridFSBucket         = "images"
	DefaultSimilarityCollection = "similarity_index"
	DefaultExpirationDays       = 7
)

const (
	AccessTokenType   = "access"
	RefreshTokenType  = "refresh"
	DefaultAccessTTL  = 5 * time.Minute
	DefaultRefreshTTL = 30 * 24 * time.Hour
)

const (
	MimeJPEG = "image/jpeg"
	MimePNG  = "image/png"
	MimeWEBP = "image/webp"
)

const (
	ShutdownTimeout    = 5 * time.Second
	DefaultHTTPTimeout = 10 * time.Second
	HealthCheckTimeout = 5 * time.Second
)

const (
	MaxUsersPerLookup = 1000
)

const (
	BrokerTypeKafka    = "kafka"
	BrokerTypeRabbitMQ = "rabbitmq"
)
