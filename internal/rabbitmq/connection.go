package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"artspire/internal/config"
	"artspire/internal/constants"
	"artspire/internal/logger"
)

// Channel is the subset of *amqp.Channel used by clients and servers.
type Channel interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	NotifyClose(receiver chan *amqp.Error) chan *amqp.Error
	Close() error
}

// ConnectionCloser is the subset of *amqp.Connection the Connection owns.
type ConnectionCloser interface {
	Close() error
	IsClosed() bool
}

// Connection pairs a broker connection with the single channel opened on
// it. Close releases the channel first, then the connection.
type Connection struct {
	conn ConnectionCloser
	ch   Channel
	log  logger.Logger

	closeOnce sync.Once
	closeErr  error
}

func NewConnection(conn ConnectionCloser, ch Channel, log logger.Logger) *Connection {
	if log == nil {
		log = logger.NopLogger()
	}
	return &Connection{conn: conn, ch: ch, log: log}
}

// DeclareQueue declares q and returns its name, which is broker generated
// when q.Name is empty.
func (c *Connection) DeclareQueue(q QueueDeclaration) (string, error) {
	declared, err := c.ch.QueueDeclare(q.Name, q.Durable, q.AutoDelete, q.Exclusive, false, q.Args)
	if err != nil {
		return "", &ChannelError{Op: "queue declare", Queue: q.Name, Err: err}
	}
	return declared.Name, nil
}

// DeclareExchange declares a durable exchange of the given kind.
func (c *Connection) DeclareExchange(name, kind string) error {
	if err := c.ch.ExchangeDeclare(name, kind, true, false, false, false, nil); err != nil {
		return &ChannelError{Op: "exchange declare " + name, Err: err}
	}
	return nil
}

func (c *Connection) BindQueue(queue, routingKey, exchange string) error {
	if err := c.ch.QueueBind(queue, routingKey, exchange, false, nil); err != nil {
		return &ChannelError{Op: "queue bind " + exchange, Queue: queue, Err: err}
	}
	return nil
}

func (c *Connection) Qos(prefetchCount int) error {
	if err := c.ch.Qos(prefetchCount, 0, false); err != nil {
		return &ChannelError{Op: "qos", Err: err}
	}
	return nil
}

// Publish sends msg through the default exchange, so routingKey is the
// destination queue name.
func (c *Connection) Publish(ctx context.Context, routingKey string, msg amqp.Publishing) error {
	return c.PublishTo(ctx, "", routingKey, msg)
}

func (c *Connection) PublishTo(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error {
	return c.ch.PublishWithContext(ctx, exchange, routingKey, false, false, msg)
}

// Consume starts a manual-ack consumer on queue.
func (c *Connection) Consume(queue, consumerTag string) (<-chan amqp.Delivery, error) {
	deliveries, err := c.ch.Consume(queue, consumerTag, false, false, false, false, nil)
	if err != nil {
		return nil, &ConsumerError{Queue: queue, Op: "consume", Err: err}
	}
	return deliveries, nil
}

// NotifyClose registers for the channel close event, which also fires when
// the underlying connection drops.
func (c *Connection) NotifyClose() <-chan *amqp.Error {
	return c.ch.NotifyClose(make(chan *amqp.Error, 1))
}

func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		var errs []error
		if c.ch != nil {
			if err := c.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
				errs = append(errs, fmt.Errorf("close channel: %w", err))
			}
		}
		if c.conn != nil && !c.conn.IsClosed() {
			if err := c.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
				errs = append(errs, fmt.Errorf("close connection: %w", err))
			}
		}
		c.closeErr = errors.Join(errs...)
		if c.closeErr != nil {
			c.log.Warnw("Error closing broker connection", "error", c.closeErr)
		}
	})
	return c.closeErr
}

// Dialer opens broker connections. Clients redial through it after a drop
// and servers on every restart.
type Dialer interface {
	Dial(ctx context.Context) (*Connection, error)
}

// AMQPDialer dials RabbitMQ with the configured heartbeat and prefetch.
type AMQPDialer struct {
	cfg  config.RabbitMQConfig
	name string
	log  logger.Logger
}

func NewDialer(cfg config.RabbitMQConfig, connectionName string, log logger.Logger) *AMQPDialer {
	if log == nil {
		log = logger.NopLogger()
	}
	return &AMQPDialer{cfg: cfg, name: connectionName, log: log}
}

func (d *AMQPDialer) Dial(ctx context.Context) (*Connection, error) {
	connectTimeout := d.cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = constants.DefaultConnectTimeout
	}

	amqpCfg := amqp.Config{
		Heartbeat:  time.Duration(d.cfg.HeartbeatSeconds) * time.Second,
		Locale:     "en_US",
		Dial:       amqp.DefaultDial(connectTimeout),
		Properties: amqp.Table{"connection_name": d.name},
	}

	type dialResult struct {
		conn *amqp.Connection
		err  error
	}
	done := make(chan dialResult, 1)
	go func() {
		conn, err := amqp.DialConfig(d.cfg.URL(), amqpCfg)
		done <- dialResult{conn: conn, err: err}
	}()

	var conn *amqp.Connection
	select {
	case <-ctx.Done():
		go func() {
			if r := <-done; r.conn != nil {
				_ = r.conn.Close()
			}
		}()
		return nil, &ConnectionError{Op: "dial", URL: d.sanitizedURL(), Err: ctx.Err()}
	case r := <-done:
		if r.err != nil {
			return nil, &ConnectionError{Op: "dial", URL: d.sanitizedURL(), Err: r.err}
		}
		conn = r.conn
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, &ConnectionError{Op: "open channel", URL: d.sanitizedURL(), Err: err}
	}

	c := NewConnection(conn, ch, d.log)
	if d.cfg.PrefetchCount > 0 {
		if err := c.Qos(d.cfg.PrefetchCount); err != nil {
			_ = c.Close()
			return nil, err
		}
	}

	d.log.Debugw("Connected to RabbitMQ", "host", d.cfg.Host, "connection_name", d.name)
	return c, nil
}

func (d *AMQPDialer) sanitizedURL() string {
	return fmt.Sprintf("amqp://%s@%s:%d/%s", d.cfg.User, d.cfg.Host, d.cfg.Port, d.cfg.VHost)
}
