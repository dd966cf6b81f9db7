package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"chat-relay-service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeClaudeStream(w http.ResponseWriter, deltas ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "event: message_start\ndata: {\"type\":\"message_start\"}\n\n")
	for _, d := range deltas {
		fmt.Fprintf(w, "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":%q}}\n\n", d)
	}
	fmt.Fprint(w, "event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n")
}

func TestClaudeStreamChat(t *testing.T) {
	var req claudeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, claudeAPIVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		writeClaudeStream(w, "Bon", "jour")
	}))
	defer srv.Close()

	p, err := NewClaudeProvider("test-key", srv.URL+"/v1", 5*time.Second)
	require.NoError(t, err)

	persona := models.Persona{Name: "Claude", Role: "poet", ModelCodeName: "claude-3-haiku"}
	msgs := p.FormatMessages(FormatInput{
		Persona: persona,
		History: []models.Message{{Role: models.RoleUser, Content: "salut"}},
	})
	stream, err := p.StreamChat(context.Background(), msgs, persona)
	require.NoError(t, err)

	assert.Equal(t, "Bonjour", collect(t, stream))
	assert.Equal(t, "claude-3-haiku", req.Model)
	assert.Equal(t, "You are Claude, a poet.", req.System)
	assert.Equal(t, claudeDefaultMaxTokens, req.MaxTokens)
	assert.True(t, req.Stream)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "user", req.Messages[0].Role)
	assert.Equal(t, "salut", req.Messages[0].Content[0].Text)
}

func TestClaudeImageAttachment(t *testing.T) {
	var req claudeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		writeClaudeStream(w, "a cat")
	}))
	defer srv.Close()

	p, err := NewClaudeProvider("test-key", srv.URL, 5*time.Second)
	require.NoError(t, err)

	persona := models.Persona{Name: "Claude", Role: "poet", ModelCodeName: "claude-3-opus"}
	msgs := p.FormatMessages(FormatInput{
		Persona: persona,
		History: []models.Message{{Role: models.RoleUser, Content: "what is it"}},
		File:    &models.FileAttachment{Name: "cat.jpg", Type: "image/jpeg", Content: "aGVsbG8="},
	})
	stream, err := p.StreamChat(context.Background(), msgs, persona)
	require.NoError(t, err)
	collect(t, stream)

	require.Len(t, req.Messages, 1)
	parts := req.Messages[0].Content
	require.Len(t, parts, 2)
	assert.Equal(t, "image", parts[0].Type)
	assert.Equal(t, "image/jpeg", parts[0].Source.MediaType)
	assert.Equal(t, "aGVsbG8=", parts[0].Source.Data)
	assert.Equal(t, "what is it", parts[1].Text)
}

func TestClaudeRetriesOverload(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`)
			return
		}
		writeClaudeStream(w, "ok")
	}))
	defer srv.Close()

	p, err := NewClaudeProvider("test-key", srv.URL, 5*time.Second)
	require.NoError(t, err)

	persona := models.Persona{Name: "Claude", Role: "poet"}
	stream, err := p.StreamChat(context.Background(), p.FormatMessages(FormatInput{Persona: persona}), persona)
	require.NoError(t, err)
	assert.Equal(t, "ok", collect(t, stream))
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestClaudeUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`)
	}))
	defer srv.Close()

	p, err := NewClaudeProvider("bad-key", srv.URL, 5*time.Second)
	require.NoError(t, err)

	persona := models.Persona{Name: "Claude", Role: "poet"}
	_, err = p.StreamChat(context.Background(), p.FormatMessages(FormatInput{Persona: persona}), persona)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, StatusCode(err))
	assert.Equal(t, "authentication_error", ErrorCode(err))
	assert.Contains(t, err.Error(), "invalid x-api-key")
}

func TestClaudeStreamErrorEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"par\"}}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"error\",\"error\":{\"type\":\"overloaded_error\",\"message\":\"Overloaded\"}}\n\n")
	}))
	defer srv.Close()

	p, err := NewClaudeProvider("test-key", srv.URL, 5*time.Second)
	require.NoError(t, err)

	persona := models.Persona{Name: "Claude", Role: "poet"}
	stream, err := p.StreamChat(context.Background(), p.FormatMessages(FormatInput{Persona: persona}), persona)
	require.NoError(t, err)
	defer stream.Close()

	require.True(t, stream.Next())
	assert.Equal(t, "par", stream.Content())
	assert.False(t, stream.Next())
	assert.Equal(t, "overloaded_error", ErrorCode(stream.Err()))
}

func TestParseDataURL(t *testing.T) {
	src, ok := parseDataURL("data:image/webp;base64,AAAA")
	require.True(t, ok)
	assert.Equal(t, "image/webp", src.MediaType)
	assert.Equal(t, "AAAA", src.Data)

	_, ok = parseDataURL("https://example.com/cat.png")
	assert.False(t, ok)
	_, ok = parseDataURL("data:image/png,raw")
	assert.False(t, ok)
}
