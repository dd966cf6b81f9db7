package handlers

import (
	"net/http"

	"chat-relay-service/middleware"
	"chat-relay-service/models"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
)

// bindOwned binds the body and checks the userId against the authenticated user
func bindOwned(c *gin.Context, v interface{}, userID func() string) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		log.Warnf("Invalid request body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return false
	}
	if !middleware.AuthorizeUser(c, userID()) {
		c.JSON(http.StatusForbidden, gin.H{"error": "userId does not match token"})
		return false
	}
	return true
}

func (h *Handlers) CreateChat(c *gin.Context) {
	var req models.CreateChatRequest
	if !bindOwned(c, &req, func() string { return req.UserID }) {
		return
	}
	if req.UserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required parameters"})
		return
	}

	chat, err := h.store.CreateChat(c.Request.Context(), req)
	if err != nil {
		log.WithError(err).Errorf("Failed to create chat for %s", req.UserID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create chat", "details": h.details(err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": chat})
}

func (h *Handlers) GetChatList(c *gin.Context) {
	var req models.ChatListRequest
	if !bindOwned(c, &req, func() string { return req.UserID }) {
		return
	}
	if req.UserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required parameters"})
		return
	}

	chats, err := h.store.ListChats(c.Request.Context(), req.UserID)
	if err != nil {
		log.WithError(err).Errorf("Failed to list chats for %s", req.UserID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch chats", "details": h.details(err)})
		return
	}
	if chats == nil {
		chats = []models.Chat{}
	}

	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

func (h *Handlers) GetChatInfo(c *gin.Context) {
	var req models.ChatLookupRequest
	if !bindOwned(c, &req, func() string { return req.UserID }) {
		return
	}
	if req.UserID == "" || req.ChatID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required parameters"})
		return
	}

	chat, err := h.store.GetChat(c.Request.Context(), req.UserID, req.ChatID)
	if err != nil {
		status := lookupStatus(err)
		if status == http.StatusInternalServerError {
			log.WithError(err).Errorf("Failed to get chat %s", req.ChatID)
			c.JSON(status, gin.H{"error": "Internal server error", "details": h.details(err)})
			return
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, chat)
}

func (h *Handlers) GetChatMessages(c *gin.Context) {
	var req models.ChatLookupRequest
	if !bindOwned(c, &req, func() string { return req.UserID }) {
		return
	}
	if req.UserID == "" || req.ChatID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required parameters"})
		return
	}

	messages, err := h.store.GetChatMessages(c.Request.Context(), req.UserID, req.ChatID)
	if err != nil {
		status := lookupStatus(err)
		if status == http.StatusInternalServerError {
			log.WithError(err).Errorf("Failed to get messages of chat %s", req.ChatID)
			c.JSON(status, gin.H{"error": "Internal server error", "details": h.details(err)})
			return
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (h *Handlers) GetChatMessagesPreview(c *gin.Context) {
	var req models.ChatLookupRequest
	if !bindOwned(c, &req, func() string { return req.UserID }) {
		return
	}
	if req.ChatID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Chat ID is required"})
		return
	}

	messages, err := h.store.GetChatMessagesPreview(c.Request.Context(), req.UserID, req.ChatID)
	if err != nil {
		status := lookupStatus(err)
		if status == http.StatusInternalServerError {
			log.WithError(err).Errorf("Error in getChatMessagesPreview for chat %s", req.ChatID)
			c.JSON(status, gin.H{"error": "Internal server error"})
			return
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (h *Handlers) UpdateMessageMetadata(c *gin.Context) {
	var req models.UpdateMessageMetadataRequest
	if !bindOwned(c, &req, func() string { return req.UserID }) {
		return
	}
	if req.MessageID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing messageId"})
		return
	}
	if req.UserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing userId"})
		return
	}

	msg, err := h.store.UpdateMessageMetadata(c.Request.Context(), req.UserID, req.MessageID, models.MetadataUpdate{
		Pinned:  req.Pinned,
		Starred: req.Starred,
		Notes:   req.Notes,
	})
	if err != nil {
		log.WithError(err).Errorf("updateMessageMetadata failed for message %s", req.MessageID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": msg})
}

func (h *Handlers) DeleteChat(c *gin.Context) {
	var req models.ChatLookupRequest
	if !bindOwned(c, &req, func() string { return req.UserID }) {
		return
	}
	if req.UserID == "" || req.ChatID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required parameters"})
		return
	}

	if err := h.store.DeleteChat(c.Request.Context(), req.UserID, req.ChatID); err != nil {
		status := lookupStatus(err)
		if status == http.StatusInternalServerError {
			log.WithError(err).Errorf("Failed to delete chat %s", req.ChatID)
			c.JSON(status, gin.H{"error": "Failed to delete chat", "details": h.details(err)})
			return
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	log.WithFields(log.Fields{"user_id": req.UserID, "chat_id": req.ChatID}).Info("chat.deleted")
	c.JSON(http.StatusOK, gin.H{"success": true})
}
