package handlers

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	"chat-relay-service/middleware"
	"chat-relay-service/models"
	"chat-relay-service/personas"
	"chat-relay-service/providers"
	"chat-relay-service/stream"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	MaxFileSize = 20 * 1024 * 1024

	// base64 inflates the attachment by a third, plus room for the rest of the body
	maxChatBodyBytes = MaxFileSize*4/3 + 1024*1024
)

var allowedFileTypes = []string{
	"text/plain", "application/pdf", "application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"text/csv", "application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"image/jpeg", "image/png", "image/gif", "image/webp", "image/svg+xml",
	"text/html", "text/css", "application/javascript", "application/json", "text/markdown",
}

type requestError struct {
	status  int
	message string
}

func (e *requestError) Error() string {
	return e.message
}

// prepareChat fills in the persona and validates a chat request
func (h *Handlers) prepareChat(req *models.ChatRequest) error {
	req.Persona = personas.Resolve(req.Persona, req.UserID, h.websiteUser)

	if req.UserID == "" || req.ChatID == "" || req.Persona == nil || (strings.TrimSpace(req.Content) == "" && req.File == nil) {
		return &requestError{http.StatusBadRequest, "Missing required parameters"}
	}
	if req.File != nil {
		if req.File.Size > MaxFileSize {
			return &requestError{http.StatusBadRequest, "File size exceeds 20MB limit"}
		}
		if !slices.Contains(allowedFileTypes, req.File.Type) {
			return &requestError{http.StatusBadRequest, "Unsupported file type"}
		}
	}
	return nil
}

// providerFailure is the JSON body for a request that fails before streaming starts
func (h *Handlers) providerFailure(err error, provider string) gin.H {
	return gin.H{
		"error":    "Failed to process chat request",
		"details":  err.Error(),
		"provider": provider,
		"code":     providers.ErrorCode(err),
	}
}

// Chat relays a chat completion to the client as Server-Sent Events
func (h *Handlers) Chat(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxChatBodyBytes)

	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "File size exceeds 20MB limit"})
			return
		}
		log.Warnf("Invalid chat request body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	if !middleware.AuthorizeUser(c, req.UserID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "userId does not match token"})
		return
	}

	if err := h.prepareChat(&req); err != nil {
		var reqErr *requestError
		errors.As(err, &reqErr)
		c.JSON(reqErr.status, gin.H{"error": reqErr.message})
		return
	}

	p, err := h.providers.Get(req.Persona.Provider)
	if err != nil {
		log.WithError(err).Errorf("No provider for %q", req.Persona.Provider)
		c.JSON(http.StatusInternalServerError, h.providerFailure(err, req.Persona.Provider))
		return
	}

	log.WithFields(log.Fields{
		"user_id":  req.UserID,
		"chat_id":  req.ChatID,
		"provider": req.Persona.Provider,
		"model":    req.Persona.ModelCodeName,
		"has_file": req.File != nil,
	}).Info("chat.stream.request")

	w := stream.NewSSEWriter(c.Writer)
	c.Status(http.StatusOK)
	h.relay.Run(c.Request.Context(), p, req, w)
}

// ChatWebSocket reads one chat request from the socket and relays the reply
// as JSON frames. The stream is cancelled when the client goes away.
func (h *Handlers) ChatWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warnf("Error upgrading connection to WebSocket: %v", err)
		return
	}
	conn.SetReadLimit(maxChatBodyBytes)

	w := stream.NewWSWriter(conn)
	defer w.Close()

	var req models.ChatRequest
	if err := conn.ReadJSON(&req); err != nil {
		log.Warnf("Invalid WebSocket chat request: %v", err)
		h.rejectStream(w, "Invalid request format", "INVALID_REQUEST")
		return
	}

	if !middleware.AuthorizeUser(c, req.UserID) {
		h.rejectStream(w, "userId does not match token", "FORBIDDEN")
		return
	}

	if err := h.prepareChat(&req); err != nil {
		h.rejectStream(w, err.Error(), "INVALID_REQUEST")
		return
	}

	p, err := h.providers.Get(req.Persona.Provider)
	if err != nil {
		h.rejectStream(w, "Failed to process chat request", providers.ErrorCode(err))
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go watchClose(conn, cancel)

	h.relay.Run(ctx, p, req, w)
}

// watchClose drains the socket and cancels once the peer disconnects
func watchClose(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

func (h *Handlers) rejectStream(w *stream.WSWriter, message, code string) {
	w.Emit(models.StreamEvent{
		Type:    models.EventError,
		Content: message,
		Error:   &models.StreamError{Message: message, Code: code},
	})
	w.Emit(models.StreamEvent{Type: models.EventStatus, Content: models.StatusStreamEnded})
}
