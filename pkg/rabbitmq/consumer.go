package rabbitmq

import (
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler processes one message body. Returning false asks for redelivery.
type Handler func(body []byte) bool

// Consumer delivers messages from one queue to per-routing-key handlers.
type Consumer struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	prefetch int
}

func NewConsumer(amqpURL string) (*Consumer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp.DialConfig(cleanURL, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	return &Consumer{conn: conn, ch: ch, prefetch: 10}, nil
}

// ConsumeWithBindings declares a durable topic exchange and queue, binds the queue once per
// routing key and dispatches deliveries in a background goroutine.
func (c *Consumer) ConsumeWithBindings(exchange, queueName string, bindings map[string]func([]byte) bool) error {
	router := newRouter(bindings)
	if len(router) == 0 {
		return fmt.Errorf("no bindings provided")
	}

	queue, err := c.declare(exchange, queueName, router)
	if err != nil {
		return err
	}
	msgs, err := c.ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", queue, err)
	}

	go func() {
		for d := range msgs {
			router.dispatch(d)
		}
		log.Printf("level=info component=rabbitmq_consumer msg=\"delivery channel closed\" queue=%s", queue)
	}()
	return nil
}

func (c *Consumer) declare(exchange, queueName string, router routes) (string, error) {
	if err := c.ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return "", fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	q, err := c.ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		return "", fmt.Errorf("declare queue %s: %w", queueName, err)
	}
	for routingKey := range router {
		if err := c.ch.QueueBind(q.Name, routingKey, exchange, false, nil); err != nil {
			return "", fmt.Errorf("bind %s to %s: %w", routingKey, q.Name, err)
		}
	}
	if err := c.ch.Qos(c.prefetch, 0, false); err != nil {
		return "", fmt.Errorf("set prefetch: %w", err)
	}
	return q.Name, nil
}

func (c *Consumer) Close() {
	if c.ch != nil {
		c.ch.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}

// routes maps a routing key to its handler.
type routes map[string]Handler

func newRouter(bindings map[string]func([]byte) bool) routes {
	r := make(routes, len(bindings))
	for key, h := range bindings {
		if h != nil {
			r[key] = h
		}
	}
	return r
}

// dispatch acks handled and unroutable deliveries. A failed delivery is requeued once;
// if it fails again on redelivery it is dropped so it cannot loop forever.
func (r routes) dispatch(d amqp.Delivery) {
	handler, ok := r[d.RoutingKey]
	if !ok {
		log.Printf("level=warn component=rabbitmq_consumer msg=\"no handler; dropping\" routing_key=%s", d.RoutingKey)
		_ = d.Ack(false)
		return
	}
	if handler(d.Body) {
		_ = d.Ack(false)
		return
	}
	requeue := !d.Redelivered
	log.Printf("level=warn component=rabbitmq_consumer msg=\"handler failed\" routing_key=%s requeue=%t", d.RoutingKey, requeue)
	_ = d.Nack(false, requeue)
}
