// Package rabbitmq implements request/reply RPC over RabbitMQ.
//
// A Server consumes a durable queue on the default exchange and answers
// each request on the queue named by its reply_to property, echoing the
// correlation id. Deliveries are acked only after the reply is published;
// a request that cannot be answered is rejected without requeue and ends
// Run, leaving the restart to a Supervisor.
//
// A Client owns one connection and an exclusive, broker-named reply queue.
// Concurrent calls are told apart by correlation id. Every call is bounded
// by its context, or by the client's default timeout.
//
//	client := rabbitmq.NewClient(rabbitmq.NewDialer(cfg.RabbitMQ, "gateway", log))
//	defer client.Close()
//	reply, err := client.Call(ctx, []byte(`[1,2]`), "users_request")
package rabbitmq
