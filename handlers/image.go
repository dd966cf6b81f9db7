package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"chat-relay-service/models"
	"chat-relay-service/providers"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
)

const defaultImageProvider = "openai"

// GenerateImage creates an image from a prompt and records both turns in the chat
func (h *Handlers) GenerateImage(c *gin.Context) {
	var req models.GenerateImageRequest
	if !bindOwned(c, &req, func() string { return req.UserID }) {
		return
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" || req.UserID == "" || req.ChatID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required parameters"})
		return
	}

	providerName := req.Provider
	if providerName == "" {
		providerName = defaultImageProvider
	}
	p, err := h.providers.Get(providerName)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate image", "details": h.details(err)})
		return
	}
	generator, ok := p.(providers.ImageGenerator)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Image generation is not supported by %s", p.Name())})
		return
	}

	ctx := c.Request.Context()
	if _, err := h.store.AddMessage(ctx, req.UserID, req.ChatID, "Generate image: "+prompt, models.RoleUser); err != nil {
		status := lookupStatus(err)
		if status == http.StatusInternalServerError {
			log.WithError(err).Errorf("Failed to store image prompt for chat %s", req.ChatID)
			c.JSON(status, gin.H{"error": "Failed to generate image", "details": h.details(err)})
			return
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	result, err := generator.GenerateImage(ctx, prompt, req.Options)
	if err != nil {
		message := providers.Describe(err, p.Name())
		log.WithError(err).WithField("provider", p.Name()).Error("image.generate.failed")
		if _, storeErr := h.store.AddMessage(ctx, req.UserID, req.ChatID, "I encountered an error generating the image: "+message, models.RoleAssistant); storeErr != nil {
			log.WithError(storeErr).Warn("Failed to store image error message")
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   message,
			"code":    providers.ErrorCode(err),
			"details": h.details(err),
		})
		return
	}

	if _, err := h.store.AddMessage(ctx, req.UserID, req.ChatID, imageMarkdown(result.URL, prompt), models.RoleAssistant); err != nil {
		log.WithError(err).Errorf("Failed to store generated image for chat %s", req.ChatID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate image", "details": h.details(err)})
		return
	}

	log.WithFields(log.Fields{"user_id": req.UserID, "chat_id": req.ChatID, "provider": p.Name()}).Info("image.generate.completed")
	c.JSON(http.StatusOK, result)
}

func imageMarkdown(url, prompt string) string {
	return fmt.Sprintf("**Generated Image:**\n\n![Generated Image](%s)\n\nI've generated an image based on your prompt: \"%s\"", url, prompt)
}
