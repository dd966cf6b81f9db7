package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"chat-relay-service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openAIChunk(content string) string {
	return fmt.Sprintf(`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{"content":%q}}]}`, content)
}

func writeOpenAIStream(w http.ResponseWriter, deltas ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	for _, d := range deltas {
		fmt.Fprintf(w, "data: %s\n\n", openAIChunk(d))
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

func writeOpenAIError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":{"message":"upstream said no","type":"server_error","code":%q}}`, code)
}

func newTestOpenAI(t *testing.T, srv *httptest.Server, deepseek bool) *OpenAIProvider {
	t.Helper()
	var p *OpenAIProvider
	var err error
	if deepseek {
		p, err = NewDeepSeek("test-key", srv.URL+"/v1", 5*time.Second)
	} else {
		p, err = NewOpenAI("test-key", srv.URL+"/v1", 5*time.Second)
	}
	require.NoError(t, err)
	return p
}

func collect(t *testing.T, s Stream) string {
	t.Helper()
	defer s.Close()
	var sb strings.Builder
	for s.Next() {
		sb.WriteString(s.Content())
	}
	require.NoError(t, s.Err())
	return sb.String()
}

func TestNewOpenAIProviderRequiresKey(t *testing.T) {
	_, err := NewOpenAI("", "", time.Second)
	assert.Error(t, err)
}

func TestOpenAIStreamChat(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeOpenAIStream(w, "Hel", "lo", " $x$")
	}))
	defer srv.Close()

	p := newTestOpenAI(t, srv, false)
	msgs := p.FormatMessages(FormatInput{Persona: testPersona})
	stream, err := p.StreamChat(context.Background(), msgs, testPersona)
	require.NoError(t, err)

	assert.Equal(t, "Hello $$x$$", collect(t, stream))
	assert.Equal(t, "gpt-4o", body["model"])
	assert.Equal(t, true, body["stream"])
	assert.Equal(t, 0.7, body["temperature"])
	assert.Equal(t, float64(8000), body["max_tokens"])
	assert.NotContains(t, body, "presence_penalty")
}

func TestOpenAIStreamChatParameters(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeOpenAIStream(w, "ok")
	}))
	defer srv.Close()

	unsupported := false
	persona := models.Persona{
		Name:          "Thinker",
		Role:          "reasoner",
		ModelCodeName: "o1-mini",
		Capabilities: models.Capabilities{SupportedParameters: models.SupportedParameters{
			Temperature: models.ParameterSupport{Supported: &unsupported},
			MaxTokens:   models.TokenLimit{Default: 2000},
		}},
	}

	p := newTestOpenAI(t, srv, false)
	stream, err := p.StreamChat(context.Background(), p.FormatMessages(FormatInput{Persona: persona}), persona)
	require.NoError(t, err)
	collect(t, stream)

	assert.NotContains(t, body, "temperature")
	assert.NotContains(t, body, "max_tokens")
	assert.Equal(t, float64(2000), body["max_completion_tokens"])
}

func TestDeepSeekDefaults(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeOpenAIStream(w, "ok")
	}))
	defer srv.Close()

	p := newTestOpenAI(t, srv, true)
	assert.Equal(t, "deepseek", p.Name())

	persona := models.Persona{Name: "Seeker", Role: "coder"}
	stream, err := p.StreamChat(context.Background(), p.FormatMessages(FormatInput{Persona: persona}), persona)
	require.NoError(t, err)
	collect(t, stream)

	assert.Equal(t, "deepseek-chat", body["model"])
	assert.Equal(t, float64(8191), body["max_tokens"])
	assert.Equal(t, 0.6, body["presence_penalty"])
	assert.Equal(t, 0.5, body["frequency_penalty"])
}

func TestOpenAIStreamChatRetries(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			writeOpenAIError(w, http.StatusServiceUnavailable, "overloaded")
			return
		}
		writeOpenAIStream(w, "finally")
	}))
	defer srv.Close()

	p := newTestOpenAI(t, srv, false)
	stream, err := p.StreamChat(context.Background(), p.FormatMessages(FormatInput{Persona: testPersona}), testPersona)
	require.NoError(t, err)
	assert.Equal(t, "finally", collect(t, stream))
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestOpenAIStreamChatBadRequestIsFatal(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		writeOpenAIError(w, http.StatusBadRequest, "context_length_exceeded")
	}))
	defer srv.Close()

	p := newTestOpenAI(t, srv, false)
	_, err := p.StreamChat(context.Background(), p.FormatMessages(FormatInput{Persona: testPersona}), testPersona)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, StatusCode(err))
	assert.Equal(t, "context_length_exceeded", ErrorCode(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestOpenAIVisionRequest(t *testing.T) {
	var raw string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		raw = string(b)
		writeOpenAIStream(w, "a cat")
	}))
	defer srv.Close()

	persona := testPersona
	persona.ModelCodeName = "gpt-4o-mini-vision"
	p := newTestOpenAI(t, srv, false)
	msgs := p.FormatMessages(FormatInput{
		Persona: persona,
		History: []models.Message{{Role: models.RoleUser, Content: "what is it"}},
		File:    &models.FileAttachment{Name: "cat.png", Type: "image/png", Content: "aGVsbG8="},
	})
	stream, err := p.StreamChat(context.Background(), msgs, persona)
	require.NoError(t, err)
	collect(t, stream)

	assert.Contains(t, raw, `"image_url"`)
	assert.Contains(t, raw, `data:image/png;base64,aGVsbG8=`)
	assert.Contains(t, raw, `"detail":"high"`)
}

func TestOpenAIGenerateImage(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/images/generations"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"created":1,"data":[{"url":"https://images.example/1.png"}]}`)
	}))
	defer srv.Close()

	p := newTestOpenAI(t, srv, false)
	res, err := p.GenerateImage(context.Background(), "a red fox", models.ImageOptions{Size: "medium", Style: "bogus"})
	require.NoError(t, err)

	assert.Equal(t, "https://images.example/1.png", res.URL)
	assert.Equal(t, "1792x1024", res.Metadata.Size)
	assert.Equal(t, "vivid", res.Metadata.Style)
	assert.Equal(t, "standard", res.Metadata.Quality)
	assert.Equal(t, "dall-e-3", body["model"])
	assert.Equal(t, "1792x1024", body["size"])
}

func TestOpenAIGenerateImageContentPolicy(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		writeOpenAIError(w, http.StatusInternalServerError, codeContentPolicyViolation)
	}))
	defer srv.Close()

	p := newTestOpenAI(t, srv, false)
	_, err := p.GenerateImage(context.Background(), "something bad", models.ImageOptions{})
	require.Error(t, err)
	assert.Equal(t, codeContentPolicyViolation, ErrorCode(err))
	assert.Contains(t, Describe(err, "openai"), "Content policy violation")
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestOpenAIGenerateImageEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"created":1,"data":[]}`)
	}))
	defer srv.Close()

	p := newTestOpenAI(t, srv, false)
	_, err := p.GenerateImage(context.Background(), "fox", models.ImageOptions{})
	assert.ErrorContains(t, err, "invalid response format")
}

func TestOpenAIStreamOutlivesProviderTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		for i := 0; i < 10; i++ {
			fmt.Fprintf(w, "data: %s\n\n", openAIChunk("x"))
			flusher.Flush()
			time.Sleep(100 * time.Millisecond)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p, err := NewOpenAI("test-key", srv.URL+"/v1", 300*time.Millisecond)
	require.NoError(t, err)

	stream, err := p.StreamChat(context.Background(), p.FormatMessages(FormatInput{Persona: testPersona}), testPersona)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("x", 10), collect(t, stream))
}

func TestOpenAIResponseHeaderTimeout(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	p, err := NewOpenAI("test-key", srv.URL+"/v1", 100*time.Millisecond)
	require.NoError(t, err)

	start := time.Now()
	_, err = p.StreamChat(context.Background(), p.FormatMessages(FormatInput{Persona: testPersona}), testPersona)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestOpenAIGenerateImageRetries(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			writeOpenAIError(w, http.StatusNotFound, "not_found")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"created":1,"data":[{"url":"https://images.example/2.png"}]}`)
	}))
	defer srv.Close()

	p := newTestOpenAI(t, srv, false)
	res, err := p.GenerateImage(context.Background(), "a red fox", models.ImageOptions{})
	require.NoError(t, err)
	assert.Equal(t, "https://images.example/2.png", res.URL)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestOpenAIGenerateImageBadRequestIsFatal(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		writeOpenAIError(w, http.StatusBadRequest, "invalid_size")
	}))
	defer srv.Close()

	p := newTestOpenAI(t, srv, false)
	_, err := p.GenerateImage(context.Background(), "a red fox", models.ImageOptions{})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}
