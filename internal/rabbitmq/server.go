package rabbitmq

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"artspire/internal/constants"
	"artspire/internal/logger"
	pkgerrors "artspire/pkg/errors"
	"artspire/pkg/logging"
	"artspire/pkg/metrics"
	"artspire/pkg/retry"
	"artspire/pkg/tracing"
)

// Handler turns a request body into a reply body. A returned error means no
// reply is sent.
type Handler interface {
	Handle(ctx context.Context, body []byte) ([]byte, error)
}

type HandlerFunc func(ctx context.Context, body []byte) ([]byte, error)

func (f HandlerFunc) Handle(ctx context.Context, body []byte) ([]byte, error) {
	return f(ctx, body)
}

type ServerOption func(*Server)

func WithServerLogger(log logger.Logger) ServerOption {
	return func(s *Server) { s.log = log }
}

// WithConnectRetryDelay sets the pause between failed connection attempts.
func WithConnectRetryDelay(d time.Duration) ServerOption {
	return func(s *Server) { s.retryDelay = d }
}

func WithConsumerTag(tag string) ServerOption {
	return func(s *Server) { s.consumerTag = tag }
}

// Server consumes one durable queue and answers every request through its
// Handler. A Server is single use: once Run returns, build a new one.
type Server struct {
	queue       string
	handler     Handler
	dialer      Dialer
	log         logger.Logger
	retryDelay  time.Duration
	consumerTag string

	conn        *Connection
	deliveries  <-chan amqp.Delivery
	closeNotify <-chan *amqp.Error
}

func NewServer(queue string, handler Handler, dialer Dialer, opts ...ServerOption) *Server {
	s := &Server{
		queue:      queue,
		handler:    handler,
		dialer:     dialer,
		log:        logger.NopLogger(),
		retryDelay: constants.DefaultConnectRetryDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect dials the broker, declares the queue and starts consuming. It
// retries until it succeeds or ctx is done.
func (s *Server) Connect(ctx context.Context) error {
	return retry.Forever(ctx, s.retryDelay, func() error {
		return s.connectOnce(ctx)
	}, func(attempt int, err error) {
		s.log.Warnw("Failed to connect to RabbitMQ, retrying",
			"queue", s.queue,
			"attempt", attempt,
			"retry_in", s.retryDelay.String(),
			"error", err,
		)
	})
}

func (s *Server) connectOnce(ctx context.Context) error {
	conn, err := s.dialer.Dial(ctx)
	if err != nil {
		metrics.IncConnectAttempt(s.queue, "error")
		return err
	}

	if _, err := conn.DeclareQueue(ServerQueue(s.queue)); err != nil {
		_ = conn.Close()
		metrics.IncConnectAttempt(s.queue, "error")
		return err
	}
	closeNotify := conn.NotifyClose()
	deliveries, err := conn.Consume(s.queue, s.consumerTag)
	if err != nil {
		_ = conn.Close()
		metrics.IncConnectAttempt(s.queue, "error")
		return err
	}

	s.conn = conn
	s.deliveries = deliveries
	s.closeNotify = closeNotify
	metrics.IncConnectAttempt(s.queue, "success")
	s.log.Infow("RPC server consuming", "queue", s.queue)
	return nil
}

// Run processes deliveries until ctx is done, the broker drops the
// connection, or a request cannot be answered. It always releases the
// connection before returning.
func (s *Server) Run(ctx context.Context) error {
	if s.conn == nil {
		return ErrNotConnected
	}
	defer s.close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr := <-s.closeNotify:
			if amqpErr != nil {
				return &ConnectionError{Op: "consume", Err: amqpErr}
			}
			return &ConnectionError{Op: "consume", Err: ErrConnectionClosed}
		case d, ok := <-s.deliveries:
			if !ok {
				return &ConsumerError{Queue: s.queue, Op: "consume", Err: ErrChannelClosed}
			}
			if err := s.handle(ctx, d); err != nil {
				return err
			}
		}
	}
}

// Serve connects and runs; it is what a Supervisor restarts.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Connect(ctx); err != nil {
		return err
	}
	return s.Run(ctx)
}

func (s *Server) handle(ctx context.Context, d amqp.Delivery) error {
	start := time.Now()
	req := RequestFromDelivery(d)

	ctx = logging.WithCorrelationID(ctx, req.CorrelationID)
	ctx, span := tracing.StartSpanFromDelivery(ctx, "rpc.serve "+s.queue, req.Headers, trace.SpanKindServer)
	defer span.End()

	fail := func(status string, err error) error {
		s.reject(ctx, d)
		span.RecordError(err)
		span.SetStatus(codes.Error, status)
		metrics.ObserveRPCHandled(s.queue, status, time.Since(start))
		s.log.ErrorwCtx(ctx, "Failed to answer RPC request", "queue", s.queue, "status", status, "error", err)
		return err
	}

	if err := req.Validate(); err != nil {
		return fail("rejected", &HandlerError{Queue: s.queue, CorrelationID: req.CorrelationID, Err: err})
	}

	var body []byte
	err := pkgerrors.Guard(func() error {
		var handleErr error
		body, handleErr = s.handler.Handle(ctx, req.Body)
		return handleErr
	})
	if err != nil {
		return fail("handler_error", &HandlerError{Queue: s.queue, CorrelationID: req.CorrelationID, Err: err})
	}

	resp := Response{CorrelationID: req.CorrelationID, Body: body}
	if err := s.conn.Publish(ctx, req.ReplyTo, resp.Publishing()); err != nil {
		return fail("publish_error", &PublishError{RoutingKey: req.ReplyTo, CorrelationID: req.CorrelationID, Err: err})
	}

	if err := d.Ack(false); err != nil {
		metrics.ObserveRPCHandled(s.queue, "ack_error", time.Since(start))
		return &ChannelError{Op: "ack", Queue: s.queue, Err: err}
	}

	metrics.ObserveRPCHandled(s.queue, "success", time.Since(start))
	s.log.DebugwCtx(ctx, "RPC request answered", "queue", s.queue, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// reject drops d without requeue.
func (s *Server) reject(ctx context.Context, d amqp.Delivery) {
	if err := d.Nack(false, false); err != nil {
		s.log.WarnwCtx(ctx, "Failed to nack delivery", "queue", s.queue, "error", err)
	}
}

func (s *Server) close() {
	if s.conn != nil {
		_ = s.conn.Close()
	}
}
