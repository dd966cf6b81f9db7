package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"chat-relay-service/metrics"

	"github.com/apex/log"
	"github.com/streadway/amqp"
)

// MessageCreatedEvent is published after an assistant reply has been stored
type MessageCreatedEvent struct {
	ChatID    string    `json:"chatId"`
	UserID    string    `json:"userId"`
	MessageID string    `json:"messageId"`
	Role      string    `json:"role"`
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	Length    int       `json:"length"`
	CreatedAt time.Time `json:"createdAt"`
}

// Publisher delivers chat events to downstream consumers
type Publisher interface {
	PublishMessageCreated(ctx context.Context, event MessageCreatedEvent) error
	Close() error
}

type channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes persistent JSON messages to a durable direct exchange
type AMQPPublisher struct {
	mu         sync.Mutex
	conn       *amqp.Connection
	channel    channel
	exchange   string
	routingKey string
}

// NewAMQPPublisher connects to RabbitMQ and declares the exchange
func NewAMQPPublisher(amqpURL, exchangeName, routingKey string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchangeName, // name
		"direct",     // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	log.WithFields(log.Fields{"exchange": exchangeName, "routing_key": routingKey}).Info("events.publisher.connected")
	return &AMQPPublisher{
		conn:       conn,
		channel:    ch,
		exchange:   exchangeName,
		routingKey: routingKey,
	}, nil
}

func (p *AMQPPublisher) PublishMessageCreated(ctx context.Context, event MessageCreatedEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal message to JSON: %w", err)
	}

	publishing := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		MessageId:    event.MessageID,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.channel.Publish(p.exchange, p.routingKey, false, false, publishing); err != nil {
		metrics.EventsPublishErrorTotal.Inc()
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			firstErr = fmt.Errorf("failed to close channel: %w", err)
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close connection: %w", err)
		}
	}
	return firstErr
}

// NopPublisher drops every event. Used when AMQP_URL is not configured.
type NopPublisher struct{}

func (NopPublisher) PublishMessageCreated(context.Context, MessageCreatedEvent) error { return nil }

func (NopPublisher) Close() error { return nil }

// NewPublisher returns an AMQP publisher when amqpURL is set, a NopPublisher otherwise
func NewPublisher(amqpURL, exchangeName, routingKey string) (Publisher, error) {
	if amqpURL == "" {
		log.Info("AMQP_URL not set, chat events will not be published")
		return NopPublisher{}, nil
	}
	return NewAMQPPublisher(amqpURL, exchangeName, routingKey)
}
