// Package rabbitmqtest provides an in-memory RabbitMQ for tests of code
// built on package rabbitmq.
package rabbitmqtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"artspire/internal/rabbitmq"
)

// GeneratedQueuePrefix prefixes broker-named queues, as RabbitMQ does.
const GeneratedQueuePrefix = "amq.gen-"

// Broker routes publishes on the default exchange to the queue named by the
// routing key, and publishes on a named exchange to the queues bound with a
// matching key ("#" matches everything). Queues spring into existence on
// first use. Broker implements rabbitmq.Dialer and amqp.Acknowledger.
type Broker struct {
	mu           sync.Mutex
	queues       map[string]*queue
	channels     []*Channel
	bindings     map[string][]binding
	dials        int
	failDials    int
	generated    int
	tag          uint64
	acked        map[uint64]bool
	nacked       map[uint64]bool // tag -> requeue
	maxConsumers map[string]int
}

type queue struct {
	msgs      chan amqp.Delivery
	consumers int
}

type binding struct {
	queue string
	key   string
}

func NewBroker() *Broker {
	return &Broker{
		queues:       make(map[string]*queue),
		bindings:     make(map[string][]binding),
		acked:        make(map[uint64]bool),
		nacked:       make(map[uint64]bool),
		maxConsumers: make(map[string]int),
	}
}

func (b *Broker) Dial(ctx context.Context) (*rabbitmq.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, &rabbitmq.ConnectionError{Op: "dial", Err: err}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.dials++
	if b.failDials > 0 {
		b.failDials--
		return nil, &rabbitmq.ConnectionError{Op: "dial", Err: errors.New("connection refused")}
	}

	ch := newChannel(b)
	b.channels = append(b.channels, ch)
	return rabbitmq.NewConnection(&Conn{}, ch, nil), nil
}

// FailDials makes the next n dials fail.
func (b *Broker) FailDials(n int) {
	b.mu.Lock()
	b.failDials = n
	b.mu.Unlock()
}

func (b *Broker) Dials() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dials
}

func (b *Broker) queueLocked(name string) *queue {
	q, ok := b.queues[name]
	if !ok {
		q = &queue{msgs: make(chan amqp.Delivery, 1024)}
		b.queues[name] = q
	}
	return q
}

// Publish enqueues msg on the named queue and returns its delivery tag.
func (b *Broker) Publish(queueName string, msg amqp.Publishing) uint64 {
	b.mu.Lock()
	q := b.queueLocked(queueName)
	b.tag++
	tag := b.tag
	b.mu.Unlock()

	q.msgs <- amqp.Delivery{
		Acknowledger:  b,
		DeliveryTag:   tag,
		RoutingKey:    queueName,
		ContentType:   msg.ContentType,
		DeliveryMode:  msg.DeliveryMode,
		CorrelationId: msg.CorrelationId,
		ReplyTo:       msg.ReplyTo,
		Expiration:    msg.Expiration,
		MessageId:     msg.MessageId,
		Type:          msg.Type,
		Timestamp:     msg.Timestamp,
		Headers:       msg.Headers,
		Body:          msg.Body,
	}
	return tag
}

// Get removes the next message from the named queue, waiting up to timeout.
func (b *Broker) Get(queueName string, timeout time.Duration) (amqp.Delivery, bool) {
	b.mu.Lock()
	q := b.queueLocked(queueName)
	b.mu.Unlock()

	select {
	case d := <-q.msgs:
		return d, true
	case <-time.After(timeout):
		return amqp.Delivery{}, false
	}
}

// Depth is the number of messages waiting in the named queue.
func (b *Broker) Depth(queueName string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if q, ok := b.queues[queueName]; ok {
		return len(q.msgs)
	}
	return 0
}

// Queues lists the known queue names with the given prefix, sorted.
func (b *Broker) Queues(prefix string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var names []string
	for name := range b.queues {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// ConsumerPeak is the largest number of simultaneous consumers the named
// queue has had.
func (b *Broker) ConsumerPeak(queueName string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.maxConsumers[queueName]
}

func (b *Broker) Acked(tag uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.acked[tag]
}

// Nacked reports whether tag was negatively acknowledged and if so whether
// requeue was asked for.
func (b *Broker) Nacked(tag uint64) (requeue, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	requeue, ok = b.nacked[tag]
	return requeue, ok
}

// DropConnections closes every open channel as a broker restart would.
func (b *Broker) DropConnections() {
	b.mu.Lock()
	channels := append([]*Channel(nil), b.channels...)
	b.mu.Unlock()

	for _, ch := range channels {
		ch.Kill(&amqp.Error{Code: amqp.ConnectionForced, Reason: "broker restart"})
	}
}

func (b *Broker) Ack(tag uint64, multiple bool) error {
	b.mu.Lock()
	b.acked[tag] = true
	b.mu.Unlock()
	return nil
}

func (b *Broker) Nack(tag uint64, multiple, requeue bool) error {
	b.mu.Lock()
	b.nacked[tag] = requeue
	b.mu.Unlock()
	return nil
}

func (b *Broker) Reject(tag uint64, requeue bool) error {
	return b.Nack(tag, false, requeue)
}

// Channel implements rabbitmq.Channel against a Broker.
type Channel struct {
	broker *Broker

	mu        sync.Mutex
	notify    []chan *amqp.Error
	consuming []*queue
	closed    chan struct{}
	closeOnce sync.Once
}

func newChannel(b *Broker) *Channel {
	return &Channel{broker: b, closed: make(chan struct{})}
}

// NewChannel opens a channel on b outside of Dial.
func NewChannel(b *Broker) *Channel {
	return newChannel(b)
}

func (c *Channel) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *Channel) Qos(prefetchCount, prefetchSize int, global bool) error {
	if c.IsClosed() {
		return amqp.ErrClosed
	}
	return nil
}

func (c *Channel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	if c.IsClosed() {
		return amqp.Queue{}, amqp.ErrClosed
	}
	b := c.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	if name == "" {
		b.generated++
		name = fmt.Sprintf("%s%d", GeneratedQueuePrefix, b.generated)
	}
	q := b.queueLocked(name)
	return amqp.Queue{Name: name, Messages: len(q.msgs), Consumers: q.consumers}, nil
}

func (c *Channel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	if c.IsClosed() {
		return amqp.ErrClosed
	}
	b := c.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queueLocked(name)
	for _, existing := range b.bindings[exchange] {
		if existing.queue == name && existing.key == key {
			return nil
		}
	}
	b.bindings[exchange] = append(b.bindings[exchange], binding{queue: name, key: key})
	return nil
}

func (c *Channel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	if c.IsClosed() {
		return amqp.ErrClosed
	}
	return nil
}

func (c *Channel) Consume(queueName, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	if c.IsClosed() {
		return nil, amqp.ErrClosed
	}

	b := c.broker
	b.mu.Lock()
	q := b.queueLocked(queueName)
	q.consumers++
	if q.consumers > b.maxConsumers[queueName] {
		b.maxConsumers[queueName] = q.consumers
	}
	b.mu.Unlock()

	c.mu.Lock()
	c.consuming = append(c.consuming, q)
	c.mu.Unlock()

	out := make(chan amqp.Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-c.closed:
				return
			case d := <-q.msgs:
				select {
				case out <- d:
				case <-c.closed:
					q.msgs <- d
					return
				}
			}
		}
	}()
	return out, nil
}

func (c *Channel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if c.IsClosed() {
		return amqp.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if exchange == "" {
		c.broker.Publish(key, msg)
		return nil
	}

	b := c.broker
	b.mu.Lock()
	var targets []string
	for _, bind := range b.bindings[exchange] {
		if bind.key == key || bind.key == "#" {
			targets = append(targets, bind.queue)
		}
	}
	b.mu.Unlock()

	for _, q := range targets {
		b.Publish(q, msg)
	}
	return nil
}

func (c *Channel) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notify = append(c.notify, receiver)
	return receiver
}

func (c *Channel) Close() error {
	if c.IsClosed() {
		return amqp.ErrClosed
	}
	c.shutdown(nil)
	return nil
}

// Kill closes the channel from the broker side, delivering err to close
// listeners first.
func (c *Channel) Kill(err *amqp.Error) {
	c.shutdown(err)
}

func (c *Channel) shutdown(err *amqp.Error) {
	c.closeOnce.Do(func() {
		close(c.closed)

		c.mu.Lock()
		notify := c.notify
		consuming := c.consuming
		c.notify = nil
		c.mu.Unlock()

		b := c.broker
		b.mu.Lock()
		for _, q := range consuming {
			q.consumers--
		}
		b.mu.Unlock()

		for _, n := range notify {
			if err != nil {
				select {
				case n <- err:
				default:
				}
			}
			close(n)
		}
	})
}

// Conn implements rabbitmq.ConnectionCloser.
type Conn struct {
	mu     sync.Mutex
	closed bool
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return amqp.ErrClosed
	}
	c.closed = true
	return nil
}

func (c *Conn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
