package rabbitmq

import amqp "github.com/rabbitmq/amqp091-go"

// QueueDeclaration describes a queue to declare on the default exchange.
// An empty Name asks the broker to generate one.
type QueueDeclaration struct {
	Name       string
	Durable    bool
	AutoDelete bool
	Exclusive  bool
	Args       amqp.Table
}

// ServerQueue is the durable request queue a server consumes from. Its name
// doubles as the routing key clients publish to.
func ServerQueue(name string) QueueDeclaration {
	return QueueDeclaration{Name: name, Durable: true}
}

// ReplyQueue is a client's private, broker-named reply queue. It disappears
// with the connection.
func ReplyQueue() QueueDeclaration {
	return QueueDeclaration{Exclusive: true, AutoDelete: true}
}
