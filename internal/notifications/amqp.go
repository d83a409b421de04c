package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher emits events as JSON messages on a topic exchange. The
// routing key is "comicshelf." followed by the event name.
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       amqpChannel
	exchange string
	timeout  time.Duration
}

type amqpEnvelope struct {
	Event   Event     `json:"event"`
	SentAt  time.Time `json:"sent_at"`
	Payload Payload   `json:"payload,omitempty"`
}

// DialAMQP connects to the broker at url and declares the exchange.
func DialAMQP(url, exchange string, timeout time.Duration) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	pub, err := newAMQPPublisher(ch, exchange, timeout)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	pub.conn = conn
	return pub, nil
}

func newAMQPPublisher(ch amqpChannel, exchange string, timeout time.Duration) (*AMQPPublisher, error) {
	exchange = strings.TrimSpace(exchange)
	if exchange == "" {
		return nil, fmt.Errorf("amqp exchange is required")
	}
	if err := ch.ExchangeDeclare(
		exchange, // name
		"topic",  // kind
		true,     // durable
		false,    // auto-delete
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	); err != nil {
		return nil, fmt.Errorf("declare exchange %q: %w", exchange, err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &AMQPPublisher{ch: ch, exchange: exchange, timeout: timeout}, nil
}

// Publish serializes the event and publishes it to the exchange.
func (p *AMQPPublisher) Publish(ctx context.Context, event Event, payload Payload) error {
	body, err := json.Marshal(amqpEnvelope{Event: event, SentAt: time.Now().UTC(), Payload: payload})
	if err != nil {
		return fmt.Errorf("%w: encode %s: %w", ErrPublish, event, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil {
		return fmt.Errorf("%w: amqp channel closed", ErrPublish)
	}

	publishCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err = p.ch.PublishWithContext(publishCtx,
		p.exchange,                  // exchange
		"comicshelf."+string(event), // routing key
		false,                       // mandatory
		false,                       // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Type:         string(event),
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("%w: amqp %s: %w", ErrPublish, event, err)
	}
	return nil
}

// Close releases the channel and connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	if p.ch != nil {
		if err := p.ch.Close(); err != nil {
			firstErr = err
		}
		p.ch = nil
	}
	if p.conn != nil && !p.conn.IsClosed() {
		if err := p.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
