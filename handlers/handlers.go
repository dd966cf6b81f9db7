package handlers

import (
	"context"
	"errors"
	"net/http"

	"chat-relay-service/config"
	"chat-relay-service/database"
	"chat-relay-service/middleware"
	"chat-relay-service/models"
	"chat-relay-service/providers"
	"chat-relay-service/relay"
	"chat-relay-service/stream"
	"chat-relay-service/version"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// ChatStore is the persistence the HTTP layer needs
type ChatStore interface {
	relay.Store
	CreateChat(ctx context.Context, req models.CreateChatRequest) (*models.Chat, error)
	GetChat(ctx context.Context, userID, chatID string) (*models.Chat, error)
	ListChats(ctx context.Context, userID string) ([]models.Chat, error)
	GetChatMessagesPreview(ctx context.Context, userID, chatID string) ([]models.Message, error)
	UpdateMessageMetadata(ctx context.Context, userID, messageID string, update models.MetadataUpdate) (*models.Message, error)
	DeleteChat(ctx context.Context, userID, chatID string) error
}

// ProviderResolver maps a persona provider name to a provider
type ProviderResolver interface {
	Get(name string) (providers.Provider, error)
}

type EmailNotifier interface {
	SendConferenceNotification(email, conferenceURL string, transcript []models.TranscriptMessage) (*models.NotificationResult, error)
}

type SMSNotifier interface {
	SendConferenceSMS(phoneNumber, conferenceURL string) (*models.NotificationResult, error)
}

type Handlers struct {
	store       ChatStore
	providers   ProviderResolver
	relay       *relay.Relay
	email       EmailNotifier
	sms         SMSNotifier
	upgrader    websocket.Upgrader
	websiteUser string
	devMode     bool
}

func New(cfg *config.Config, store ChatStore, resolver ProviderResolver, r *relay.Relay, email EmailNotifier, sms SMSNotifier) *Handlers {
	upgrader := stream.NewUpgrader(cfg.AllowedOriginList())
	// echo the token subprotocol so browsers accept the handshake
	upgrader.Subprotocols = []string{middleware.WebSocketTokenProtocol}

	return &Handlers{
		store:       store,
		providers:   resolver,
		relay:       r,
		email:       email,
		sms:         sms,
		upgrader:    upgrader,
		websiteUser: cfg.WebsiteUser,
		devMode:     cfg.DevMode,
	}
}

// HealthCheck returns service health status
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": version.ServiceName,
		"version": version.BuildVersion,
	})
}

func (h *Handlers) Version(c *gin.Context) {
	c.JSON(http.StatusOK, version.Get())
}

// details returns err's message in dev mode only
func (h *Handlers) details(err error) interface{} {
	if h.devMode && err != nil {
		return err.Error()
	}
	return nil
}

// lookupStatus maps a store lookup error to an HTTP status
func lookupStatus(err error) int {
	switch {
	case errors.Is(err, database.ErrChatNotFound), errors.Is(err, database.ErrMessageNotFound):
		return http.StatusNotFound
	case errors.Is(err, database.ErrMissingParameters):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
