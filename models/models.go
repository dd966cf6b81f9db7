package models

import (
	"encoding/json"
	"time"
)

// Role is the author of a chat message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message represents a persisted chat message
type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chatId"`
	UserID    string    `json:"userId,omitempty"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Pinned    bool      `json:"pinned"`
	Starred   bool      `json:"starred"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"timestamp"`
}

// Chat represents a conversation owned by a user
type Chat struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	Title         string    `json:"title"`
	ModelName     string    `json:"modelName"`
	Provider      string    `json:"provider"`
	ModelCodeName string    `json:"modelCodeName"`
	ModelRole     string    `json:"modelRole"`
	MessageCount  int       `json:"messageCount"`
	LastMessage   string    `json:"lastMessage,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// User is the minimal account record the chat service needs
type User struct {
	ID              string    `json:"id"`
	Token           string    `json:"-"`
	AnimalSelection string    `json:"-"`
	TokenBalance    int64     `json:"tokenBalance"`
	Status          string    `json:"status"`
	StatusReason    string    `json:"statusReason"`
	IsEmailVerified bool      `json:"isEmailVerified"`
	CreatedAt       time.Time `json:"createdAt"`
}

// ParameterSupport describes whether a sampling parameter is accepted by a model
type ParameterSupport struct {
	Supported *bool   `json:"supported,omitempty"`
	Default   float64 `json:"default,omitempty"`
}

// TokenLimit describes the default completion budget of a model
type TokenLimit struct {
	Default int `json:"default,omitempty"`
}

type SupportedParameters struct {
	Temperature ParameterSupport `json:"temperature"`
	MaxTokens   TokenLimit       `json:"maxTokens"`
}

type Capabilities struct {
	SupportedParameters SupportedParameters `json:"supportedParameters"`
}

// Persona pairs an AI provider/model with the identity it should answer as
type Persona struct {
	Key           string       `json:"key,omitempty"`
	Name          string       `json:"name"`
	Role          string       `json:"role"`
	Provider      string       `json:"provider"`
	ModelCodeName string       `json:"modelCodeName"`
	Instructions  string       `json:"instructions,omitempty"`
	Capabilities  Capabilities `json:"capabilities"`
}

// TemperatureEnabled reports whether temperature may be sent for this persona
func (p Persona) TemperatureEnabled() bool {
	s := p.Capabilities.SupportedParameters.Temperature.Supported
	return s == nil || *s
}

// FileAttachment is a file uploaded alongside a chat message. Content holds base64
// for images and raw text otherwise.
type FileAttachment struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Size    int64  `json:"size"`
	Content string `json:"content"`
}

// Stream event types
const (
	EventStatus             = "status"
	EventChunk              = "chunk"
	EventError              = "error"
	EventUserMessageCreated = "user_message_created"
)

// Stream status values
const (
	StatusStreamingStarted   = "streaming_started"
	StatusStreamingCompleted = "streaming_completed"
	StatusStreamEnded        = "stream_ended"
)

// StreamEvent is a single frame relayed to the browser
type StreamEvent struct {
	Type      string       `json:"type"`
	Content   string       `json:"content,omitempty"`
	Provider  string       `json:"provider,omitempty"`
	MessageID string       `json:"messageId,omitempty"`
	TempID    string       `json:"tempId,omitempty"`
	RealID    string       `json:"realId,omitempty"`
	Error     *StreamError `json:"error,omitempty"`
}

// StreamError carries provider failure details inside an error event
type StreamError struct {
	Message       string `json:"message"`
	Provider      string `json:"provider"`
	Model         string `json:"model"`
	Code          string `json:"code"`
	ProviderError bool   `json:"providerError"`
	Details       string `json:"details"`
}

// ChatRequest is the body of POST /api/chat
type ChatRequest struct {
	UserID  string          `json:"userId"`
	ChatID  string          `json:"chatId"`
	TempID  string          `json:"tempId,omitempty"`
	Content string          `json:"content"`
	Persona *Persona        `json:"persona"`
	File    *FileAttachment `json:"file,omitempty"`
}

// ChatModel is the persona subset stored on a chat
type ChatModel struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"`
	ModelCodeName string `json:"modelCodeName"`
	Role          string `json:"role"`
}

type CreateChatRequest struct {
	UserID         string    `json:"userId"`
	InitialMessage string    `json:"initialMessage"`
	Model          ChatModel `json:"model"`
}

type ChatLookupRequest struct {
	UserID string `json:"userId"`
	ChatID string `json:"chatId"`
}

type ChatListRequest struct {
	UserID string `json:"userId"`
}

// MetadataUpdate is a partial update; nil fields are left untouched
type MetadataUpdate struct {
	Pinned  *bool   `json:"pinned,omitempty"`
	Starred *bool   `json:"starred,omitempty"`
	Notes   *string `json:"notes,omitempty"`
}

type UpdateMessageMetadataRequest struct {
	MessageID string  `json:"messageId"`
	UserID    string  `json:"userId"`
	Pinned    *bool   `json:"pinned,omitempty"`
	Starred   *bool   `json:"starred,omitempty"`
	Notes     *string `json:"notes,omitempty"`
}

type ImageOptions struct {
	Size    string `json:"size,omitempty"`
	Style   string `json:"style,omitempty"`
	Quality string `json:"quality,omitempty"`
}

type GenerateImageRequest struct {
	Prompt   string       `json:"prompt"`
	Options  ImageOptions `json:"options"`
	UserID   string       `json:"userId"`
	ChatID   string       `json:"chatId"`
	Provider string       `json:"provider,omitempty"`
}

// TranscriptMessage is a conversation line attached to a conference notification
type TranscriptMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// ConferenceNotificationRequest is the body of POST /api/conference-notification.
// Messages stays raw so a malformed transcript can be reported on its own.
type ConferenceNotificationRequest struct {
	Email         string          `json:"email"`
	ConferenceURL string          `json:"conferenceUrl"`
	Messages      json.RawMessage `json:"messages,omitempty"`
}

type ConferenceSMSRequest struct {
	PhoneNumber   string `json:"phoneNumber"`
	ConferenceURL string `json:"conferenceUrl"`
}

// NotificationResult is returned by the conference notification routes
type NotificationResult struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message,omitempty"`
	Error   string                 `json:"error,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}
