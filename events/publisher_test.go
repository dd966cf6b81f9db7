package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	exchange string
	key      string
	msgs     []amqp.Publishing
	err      error
	closed   bool
}

func (f *fakeChannel) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.exchange = exchange
	f.key = key
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestPublishMessageCreated(t *testing.T) {
	ch := &fakeChannel{}
	p := &AMQPPublisher{channel: ch, exchange: "chat-events", routingKey: "chat.message.created"}

	event := MessageCreatedEvent{
		ChatID:    "chat1",
		UserID:    "user1",
		MessageID: "msg1",
		Role:      "assistant",
		Provider:  "openai",
		Model:     "gpt-4o",
		Length:    42,
		CreatedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, p.PublishMessageCreated(context.Background(), event))

	require.Len(t, ch.msgs, 1)
	assert.Equal(t, "chat-events", ch.exchange)
	assert.Equal(t, "chat.message.created", ch.key)
	assert.Equal(t, uint8(amqp.Persistent), ch.msgs[0].DeliveryMode)
	assert.Equal(t, "application/json", ch.msgs[0].ContentType)
	assert.Equal(t, "msg1", ch.msgs[0].MessageId)

	var decoded MessageCreatedEvent
	require.NoError(t, json.Unmarshal(ch.msgs[0].Body, &decoded))
	assert.Equal(t, event, decoded)

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

func TestPublishMessageCreatedFailure(t *testing.T) {
	p := &AMQPPublisher{channel: &fakeChannel{err: errors.New("channel closed")}}
	err := p.PublishMessageCreated(context.Background(), MessageCreatedEvent{MessageID: "m"})
	assert.ErrorContains(t, err, "channel closed")
}

func TestPublishMessageCreatedCancelled(t *testing.T) {
	ch := &fakeChannel{}
	p := &AMQPPublisher{channel: ch}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, p.PublishMessageCreated(ctx, MessageCreatedEvent{}), context.Canceled)
	assert.Empty(t, ch.msgs)
}

func TestNewPublisherWithoutURL(t *testing.T) {
	p, err := NewPublisher("", "chat-events", "chat.message.created")
	require.NoError(t, err)
	assert.IsType(t, NopPublisher{}, p)
	assert.NoError(t, p.PublishMessageCreated(context.Background(), MessageCreatedEvent{}))
	assert.NoError(t, p.Close())
}
