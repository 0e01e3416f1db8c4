package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"artspire/internal/constants"
	"artspire/internal/logger"
	"artspire/pkg/logging"
	"artspire/pkg/metrics"
	"artspire/pkg/tracing"
)

// Caller performs one request/reply exchange with the server consuming
// routingKey.
type Caller interface {
	Call(ctx context.Context, payload []byte, routingKey string) ([]byte, error)
}

type ClientOption func(*Client)

// WithCallTimeout bounds calls whose context carries no deadline.
func WithCallTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.callTimeout = d }
}

// WithExpiration sets the per-message TTL, in milliseconds, on requests.
func WithExpiration(ms string) ClientOption {
	return func(c *Client) { c.expiration = ms }
}

func WithClientLogger(log logger.Logger) ClientOption {
	return func(c *Client) { c.log = log }
}

func WithClientName(name string) ClientOption {
	return func(c *Client) { c.name = name }
}

// Client issues RPC calls over one lazily dialed connection with a private
// reply queue. Any number of calls may be in flight; replies are routed to
// their caller by correlation id.
type Client struct {
	dialer      Dialer
	log         logger.Logger
	name        string
	callTimeout time.Duration
	expiration  string

	mu      sync.Mutex
	pending map[string]chan Response

	sessMu sync.Mutex
	sess   *session
	closed bool

	done chan struct{}
	wg   sync.WaitGroup
}

type session struct {
	conn     *Connection
	replyTo  string
	lost     chan struct{}
	lostOnce sync.Once
}

func (s *session) markLost() {
	s.lostOnce.Do(func() { close(s.lost) })
}

func NewClient(dialer Dialer, opts ...ClientOption) *Client {
	c := &Client{
		dialer:      dialer,
		log:         logger.NopLogger(),
		name:        "rpc-client",
		callTimeout: constants.DefaultCallTimeout,
		pending:     make(map[string]chan Response),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call publishes payload to routingKey and waits for the matching reply.
// Without a context deadline the client's call timeout applies; on expiry
// the error wraps both ErrCallTimeout and context.DeadlineExceeded.
func (c *Client) Call(ctx context.Context, payload []byte, routingKey string) ([]byte, error) {
	if _, ok := ctx.Deadline(); !ok && c.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}

	start := time.Now()
	ctx, span := tracing.GetTracer("artspire/rabbitmq").Start(ctx, "rpc.call "+routingKey, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	body, status, err := c.call(ctx, payload, routingKey)
	metrics.ObserveRPCCall(routingKey, status, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, status)
		return nil, err
	}
	return body, nil
}

func (c *Client) call(ctx context.Context, payload []byte, routingKey string) ([]byte, string, error) {
	sess, err := c.session(ctx)
	if err != nil {
		return nil, "connect_error", err
	}

	id := uuid.NewString()
	reply := c.register(id)
	defer c.unregister(id)

	req := Request{
		CorrelationID: id,
		ReplyTo:       sess.replyTo,
		RoutingKey:    routingKey,
		Body:          payload,
		Headers:       tracing.InjectAMQPHeaders(ctx, nil),
		Expiration:    c.expiration,
	}
	if err := sess.conn.Publish(ctx, routingKey, req.Publishing()); err != nil {
		if connectionLost(err) {
			c.dropSession(sess)
		}
		return nil, "publish_error", &PublishError{RoutingKey: routingKey, CorrelationID: id, Err: err}
	}

	c.log.DebugwCtx(logging.WithCorrelationID(ctx, id), "RPC request published", "routing_key", routingKey)

	select {
	case resp := <-reply:
		return resp.Body, "success", nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, "timeout", fmt.Errorf("%w: %s (correlation_id=%s): %w", ErrCallTimeout, routingKey, id, ctx.Err())
		}
		return nil, "cancelled", ctx.Err()
	case <-sess.lost:
		return nil, "connection_lost", &ConnectionError{Op: "await reply", Err: ErrConnectionClosed}
	case <-c.done:
		return nil, "closed", ErrClientClosed
	}
}

func (c *Client) register(id string) chan Response {
	ch := make(chan Response, 1)
	c.mu.Lock()
	c.pending[id] = ch
	metrics.RPCPendingCalls.Set(float64(len(c.pending)))
	c.mu.Unlock()
	return ch
}

func (c *Client) unregister(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	metrics.RPCPendingCalls.Set(float64(len(c.pending)))
	c.mu.Unlock()
}

// resolve hands resp to the waiting call. Replies nobody waits for, late
// ones included, are logged and dropped.
func (c *Client) resolve(resp Response) {
	c.mu.Lock()
	ch, ok := c.pending[resp.CorrelationID]
	if ok {
		delete(c.pending, resp.CorrelationID)
	}
	c.mu.Unlock()

	if !ok {
		c.log.Warnw("Dropping reply with unknown correlation id",
			"client", c.name,
			"correlation_id", resp.CorrelationID,
		)
		metrics.IncOrphanReply(c.name)
		return
	}
	ch <- resp
}

func (c *Client) session(ctx context.Context) (*session, error) {
	c.sessMu.Lock()
	defer c.sessMu.Unlock()

	if c.closed {
		return nil, ErrClientClosed
	}
	if c.sess != nil {
		return c.sess, nil
	}

	conn, err := c.dialer.Dial(ctx)
	if err != nil {
		metrics.IncConnectAttempt(c.name, "error")
		return nil, err
	}

	replyTo, err := conn.DeclareQueue(ReplyQueue())
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	closeNotify := conn.NotifyClose()
	deliveries, err := conn.Consume(replyTo, c.name)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	metrics.IncConnectAttempt(c.name, "success")

	s := &session{conn: conn, replyTo: replyTo, lost: make(chan struct{})}
	c.sess = s

	c.wg.Add(1)
	go c.dispatch(s, deliveries, closeNotify)

	c.log.Infow("RPC client connected", "client", c.name, "reply_to", replyTo)
	return s, nil
}

func (c *Client) dispatch(s *session, deliveries <-chan amqp.Delivery, closeNotify <-chan *amqp.Error) {
	defer c.wg.Done()
	defer c.dropSession(s)

	for {
		select {
		case <-c.done:
			return
		case amqpErr := <-closeNotify:
			if amqpErr != nil {
				c.log.Warnw("RPC client connection closed", "client", c.name, "error", amqpErr)
			}
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			if err := d.Ack(false); err != nil {
				c.log.Warnw("Failed to ack reply", "client", c.name, "error", err)
			}
			c.resolve(ResponseFromDelivery(d))
		}
	}
}

// connectionLost reports whether err means the session's channel or
// connection is gone. Other publish errors leave the session to the calls
// still waiting on it.
func connectionLost(err error) bool {
	var connErr *ConnectionError
	return errors.Is(err, amqp.ErrClosed) ||
		errors.Is(err, ErrConnectionClosed) ||
		errors.Is(err, ErrChannelClosed) ||
		errors.As(err, &connErr)
}

// dropSession retires s so that the next call dials again. Calls still
// waiting on s fail with a connection error.
func (c *Client) dropSession(s *session) {
	c.sessMu.Lock()
	if c.sess == s {
		c.sess = nil
	}
	c.sessMu.Unlock()

	s.markLost()
	_ = s.conn.Close()
}

// Close fails every in-flight call with ErrClientClosed and releases the
// connection.
func (c *Client) Close() error {
	c.sessMu.Lock()
	if c.closed {
		c.sessMu.Unlock()
		return nil
	}
	c.closed = true
	s := c.sess
	c.sess = nil
	c.sessMu.Unlock()

	close(c.done)

	var err error
	if s != nil {
		s.markLost()
		err = s.conn.Close()
	}
	c.wg.Wait()
	return err
}
