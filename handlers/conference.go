package handlers

import (
	"encoding/json"
	"net/http"
	"net/url"
	"regexp"

	"chat-relay-service/models"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
)

var (
	emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phoneRegex = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)
)

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && (u.Host != "" || u.Opaque != "")
}

// parseTranscript accepts null or an array of {role, content, timestamp}
// with a user/assistant role and string fields.
func parseTranscript(raw json.RawMessage) ([]models.TranscriptMessage, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, true
	}

	var items []map[string]interface{}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false
	}

	transcript := make([]models.TranscriptMessage, 0, len(items))
	for _, item := range items {
		if item == nil {
			return nil, false
		}
		role, _ := item["role"].(string)
		content, okContent := item["content"].(string)
		timestamp, okTimestamp := item["timestamp"].(string)
		if !okContent || !okTimestamp || (role != "user" && role != "assistant") {
			return nil, false
		}
		transcript = append(transcript, models.TranscriptMessage{Role: role, Content: content, Timestamp: timestamp})
	}
	return transcript, true
}

func (h *Handlers) ConferenceNotification(c *gin.Context) {
	var body models.ConferenceNotificationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	if body.Email == "" || body.ConferenceURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email and conference URL are required"})
		return
	}
	if !emailRegex.MatchString(body.Email) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid email format"})
		return
	}
	if !validURL(body.ConferenceURL) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid conference URL format"})
		return
	}
	transcript, ok := parseTranscript(body.Messages)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid messages format"})
		return
	}

	result, err := h.email.SendConferenceNotification(body.Email, body.ConferenceURL, transcript)
	if err != nil {
		log.WithError(err).Errorf("Failed to send conference notification to %s", body.Email)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to send conference notification",
			"details": h.details(err),
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handlers) ConferenceSMS(c *gin.Context) {
	var req models.ConferenceSMSRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	if req.PhoneNumber == "" || req.ConferenceURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Phone number and conference URL are required"})
		return
	}
	if !phoneRegex.MatchString(req.PhoneNumber) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid phone number format. Must be in E.164 format (e.g., +1234567890)"})
		return
	}
	if !validURL(req.ConferenceURL) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid conference URL format"})
		return
	}

	result, err := h.sms.SendConferenceSMS(req.PhoneNumber, req.ConferenceURL)
	if err != nil {
		log.WithError(err).Errorf("Failed to send conference SMS to %s", req.PhoneNumber)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to send conference SMS notification",
			"details": h.details(err),
		})
		return
	}

	c.JSON(http.StatusOK, result)
}
