package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chat-relay-service/events"
	"chat-relay-service/metrics"
	"chat-relay-service/models"
	"chat-relay-service/providers"

	"github.com/apex/log"
)

// ErrClientGone is returned when an event can no longer be written to the client
var ErrClientGone = errors.New("client disconnected")

var imageTypes = map[string]bool{
	"image/jpeg":    true,
	"image/png":     true,
	"image/gif":     true,
	"image/webp":    true,
	"image/svg+xml": true,
}

// Emitter writes stream events to the client, SSE or WebSocket
type Emitter interface {
	Emit(event models.StreamEvent) error
}

// Store is the persistence the relay needs
type Store interface {
	AddMessage(ctx context.Context, userID, chatID, content string, role models.Role) (*models.Message, error)
	GetChatMessages(ctx context.Context, userID, chatID string) ([]models.Message, error)
}

type Relay struct {
	store     Store
	publisher events.Publisher
	batchSize int
}

func New(store Store, publisher events.Publisher, batchSize int) *Relay {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Relay{store: store, publisher: publisher, batchSize: batchSize}
}

// UserMessageContent is what gets stored for the user's turn. A message with
// only an attachment is recorded as an upload.
func UserMessageContent(req models.ChatRequest) string {
	if content := strings.TrimSpace(req.Content); content != "" {
		return content
	}
	kind := "file"
	if req.File != nil && imageTypes[strings.ToLower(req.File.Type)] {
		kind = "image"
	}
	return "Uploaded a " + kind
}

// Run stores the user message, relays the provider reply in batched chunks and
// stores the assistant message. Errors are reported to the client as an error
// event. A stream_ended status is always the last event written. When ctx is
// cancelled mid-stream nothing further is persisted.
func (r *Relay) Run(ctx context.Context, p providers.Provider, req models.ChatRequest, em Emitter) error {
	persona := models.Persona{}
	if req.Persona != nil {
		persona = *req.Persona
	}
	providerName := persona.Provider
	if providerName == "" {
		providerName = p.Name()
	}

	start := time.Now()
	result := "error"
	logger := log.WithFields(log.Fields{
		"user_id":  req.UserID,
		"chat_id":  req.ChatID,
		"provider": providerName,
		"model":    persona.ModelCodeName,
	})

	defer func() {
		if err := em.Emit(models.StreamEvent{Type: models.EventStatus, Content: models.StatusStreamEnded}); err != nil {
			logger.WithError(err).Debug("stream_ended not delivered")
		}
		metrics.StreamsTotal.WithLabelValues(providerName, result).Inc()
		metrics.StreamDurationSeconds.WithLabelValues(providerName).Observe(time.Since(start).Seconds())
		logger.WithFields(log.Fields{"result": result, "duration_ms": time.Since(start).Milliseconds()}).Info("chat.stream.finished")
	}()

	err := r.run(ctx, p, req, persona, providerName, em)
	switch {
	case err == nil:
		result = "completed"
		return nil
	case ctx.Err() != nil || errors.Is(err, ErrClientGone):
		result = "aborted"
		logger.WithError(err).Info("chat.stream.aborted")
		return err
	}

	logger.WithError(err).Error("chat.stream.failed")
	r.emitError(em, err, persona, providerName)
	return err
}

func (r *Relay) run(ctx context.Context, p providers.Provider, req models.ChatRequest, persona models.Persona, providerName string, em Emitter) error {
	userMsg, err := r.store.AddMessage(ctx, req.UserID, req.ChatID, UserMessageContent(req), models.RoleUser)
	if err != nil {
		return fmt.Errorf("failed to store user message: %w", err)
	}

	if req.TempID != "" {
		if err := emit(em, models.StreamEvent{Type: models.EventUserMessageCreated, TempID: req.TempID, RealID: userMsg.ID}); err != nil {
			return err
		}
	}

	history, err := r.store.GetChatMessages(ctx, req.UserID, req.ChatID)
	if err != nil {
		return fmt.Errorf("failed to load chat history: %w", err)
	}

	if err := emit(em, models.StreamEvent{Type: models.EventStatus, Content: models.StatusStreamingStarted, MessageID: userMsg.ID}); err != nil {
		return err
	}

	messages := p.FormatMessages(providers.FormatInput{Persona: persona, History: history, File: req.File})
	stream, err := p.StreamChat(ctx, messages, persona)
	if err != nil {
		return err
	}
	defer stream.Close()

	text, err := r.pump(ctx, stream, em, providerName)
	if err != nil {
		return err
	}

	assistantMsg, err := r.store.AddMessage(ctx, req.UserID, req.ChatID, text, models.RoleAssistant)
	if err != nil {
		return fmt.Errorf("failed to store assistant message: %w", err)
	}

	event := events.MessageCreatedEvent{
		ChatID:    req.ChatID,
		UserID:    req.UserID,
		MessageID: assistantMsg.ID,
		Role:      string(models.RoleAssistant),
		Provider:  providerName,
		Model:     persona.ModelCodeName,
		Length:    len(text),
		CreatedAt: assistantMsg.CreatedAt,
	}
	if err := r.publisher.PublishMessageCreated(ctx, event); err != nil {
		log.WithError(err).Warnf("Failed to publish message event for %s", assistantMsg.ID)
	}

	return emit(em, models.StreamEvent{Type: models.EventStatus, Content: models.StatusStreamingCompleted, MessageID: assistantMsg.ID})
}

// pump forwards deltas through the batcher and returns the full reply
func (r *Relay) pump(ctx context.Context, stream providers.Stream, em Emitter, providerName string) (string, error) {
	b := NewBatcher(r.batchSize)
	send := func(chunk string) error {
		if err := emit(em, models.StreamEvent{Type: models.EventChunk, Content: chunk, Provider: providerName}); err != nil {
			return err
		}
		metrics.ChunksSentTotal.WithLabelValues(providerName).Inc()
		return nil
	}

	for stream.Next() {
		if err := ctx.Err(); err != nil {
			return b.Text(), err
		}
		if chunk, ok := b.Add(stream.Content()); ok {
			if err := send(chunk); err != nil {
				return b.Text(), err
			}
		}
	}
	if err := stream.Err(); err != nil {
		return b.Text(), err
	}
	if err := ctx.Err(); err != nil {
		return b.Text(), err
	}
	if chunk, ok := b.Flush(); ok {
		if err := send(chunk); err != nil {
			return b.Text(), err
		}
	}
	return b.Text(), nil
}

func (r *Relay) emitError(em Emitter, err error, persona models.Persona, providerName string) {
	event := models.StreamEvent{
		Type:    models.EventError,
		Content: providers.Describe(err, providerName),
		Error: &models.StreamError{
			Message:       err.Error(),
			Provider:      providerName,
			Model:         persona.ModelCodeName,
			Code:          providers.ErrorCode(err),
			ProviderError: providers.IsProviderError(err),
			Details:       errorDetails(err),
		},
	}
	if emitErr := em.Emit(event); emitErr != nil {
		log.WithError(emitErr).Debug("error event not delivered")
	}
}

func errorDetails(err error) string {
	var apiErr *providers.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}

func emit(em Emitter, event models.StreamEvent) error {
	if err := em.Emit(event); err != nil {
		return fmt.Errorf("%w: %v", ErrClientGone, err)
	}
	return nil
}
