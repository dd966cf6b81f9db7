package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"chat-relay-service/models"

	"github.com/apex/log"
)

const (
	claudeDefaultAPIURL    = "https://api.anthropic.com/v1"
	claudeDefaultModel     = "claude-3-5-sonnet-20241022"
	claudeDefaultMaxTokens = 4096
	claudeAPIVersion       = "2023-06-01"
)

// ClaudeProvider streams from the Anthropic messages API
type ClaudeProvider struct {
	apiKey     string
	apiURL     string
	httpClient *http.Client
}

func NewClaudeProvider(apiKey, apiURL string, timeout time.Duration) (*ClaudeProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("anthropic api key is required")
	}
	if apiURL == "" {
		apiURL = claudeDefaultAPIURL
	}
	return &ClaudeProvider{
		apiKey:     apiKey,
		apiURL:     strings.TrimRight(apiURL, "/"),
		httpClient: newHTTPClient(timeout),
	}, nil
}

type claudeRequest struct {
	Model       string          `json:"model"`
	Messages    []claudeMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature *float64        `json:"temperature,omitempty"`
	System      string          `json:"system,omitempty"`
	Stream      bool            `json:"stream"`
}

type claudeMessage struct {
	Role    string              `json:"role"`
	Content []claudeContentPart `json:"content"`
}

type claudeContentPart struct {
	Type   string             `json:"type"`
	Text   string             `json:"text,omitempty"`
	Source *claudeImageSource `json:"source,omitempty"`
}

type claudeImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type claudeErrorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (p *ClaudeProvider) Name() string {
	return "claude"
}

// FormatMessages treats every Claude 3 and later model as vision capable
func (p *ClaudeProvider) FormatMessages(in FormatInput) []ChatMessage {
	model := strings.ToLower(in.Persona.ModelCodeName)
	vision := model == "" || !strings.HasPrefix(model, "claude-2") && !strings.HasPrefix(model, "claude-instant")
	return formatMessages(in, vision)
}

func (p *ClaudeProvider) StreamChat(ctx context.Context, messages []ChatMessage, persona models.Persona) (Stream, error) {
	req, err := p.buildRequest(messages, persona)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := withRetry(ctx, p.Name(), func() (*http.Response, error) {
		return p.post(ctx, body)
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{"provider": p.Name(), "model": req.Model}).Debug("provider.stream.opened")
	return &claudeStream{
		reader: bufio.NewReader(resp.Body),
		body:   resp.Body,
	}, nil
}

func (p *ClaudeProvider) post(ctx context.Context, body []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", claudeAPIVersion)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		apiErr := &APIError{Provider: p.Name(), StatusCode: resp.StatusCode, Message: string(raw)}
		var errBody claudeErrorBody
		if json.Unmarshal(raw, &errBody) == nil && errBody.Error.Message != "" {
			apiErr.Code = errBody.Error.Type
			apiErr.Message = errBody.Error.Message
		}
		return nil, apiErr
	}
	return resp, nil
}

func (p *ClaudeProvider) buildRequest(messages []ChatMessage, persona models.Persona) (*claudeRequest, error) {
	req := &claudeRequest{
		Model:     modelFor(persona, claudeDefaultModel),
		MaxTokens: maxTokensFor(persona, claudeDefaultMaxTokens),
		Stream:    true,
	}
	if t, ok := temperatureFor(persona); ok {
		req.Temperature = &t
	}

	for _, msg := range messages {
		if msg.Role == string(models.RoleSystem) {
			req.System = msg.Content
			continue
		}

		role := string(models.RoleUser)
		if msg.Role == string(models.RoleAssistant) {
			role = string(models.RoleAssistant)
		}

		var parts []claudeContentPart
		if msg.ImageURL != "" {
			if src, ok := parseDataURL(msg.ImageURL); ok {
				parts = append(parts, claudeContentPart{Type: "image", Source: src})
			}
		}
		parts = append(parts, claudeContentPart{Type: "text", Text: msg.Content})
		req.Messages = append(req.Messages, claudeMessage{Role: role, Content: parts})
	}

	if len(req.Messages) == 0 {
		return nil, errors.New("at least one user or assistant message is required")
	}
	return req, nil
}

// parseDataURL splits data:<type>;base64,<data>
func parseDataURL(u string) (*claudeImageSource, bool) {
	rest, ok := strings.CutPrefix(u, "data:")
	if !ok {
		return nil, false
	}
	meta, data, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, false
	}
	mediaType, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return nil, false
	}
	return &claudeImageSource{Type: "base64", MediaType: mediaType, Data: data}, true
}

type claudeStream struct {
	reader  *bufio.Reader
	body    io.ReadCloser
	current string
	err     error
	done    bool
}

func (s *claudeStream) Next() bool {
	if s.done || s.err != nil {
		return false
	}

	for {
		line, err := s.reader.ReadString('\n')
		if err != nil && line == "" {
			if err == io.EOF {
				s.done = true
			} else {
				s.err = err
			}
			return false
		}

		line = strings.TrimSpace(line)
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}

		payload, ok := decodePayload(data)
		if !ok {
			continue
		}

		switch payload.Type {
		case "content_block_delta":
			if text := payload.text(); text != "" {
				s.current = FormatLaTeX(text)
				return true
			}
		case "error":
			msg := "stream error"
			code := ""
			if payload.Error != nil {
				msg = payload.Error.Message
				code = payload.Error.Type
			}
			s.err = &APIError{Provider: "claude", StatusCode: http.StatusInternalServerError, Code: code, Message: msg}
			return false
		case "message_stop":
			s.done = true
			return false
		}
	}
}

func (s *claudeStream) Content() string {
	return s.current
}

func (s *claudeStream) Err() error {
	return s.err
}

func (s *claudeStream) Close() error {
	return s.body.Close()
}

var _ Provider = (*ClaudeProvider)(nil)
