package providers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"chat-relay-service/models"

	"github.com/apex/log"
	"google.golang.org/genai"
)

const (
	geminiDefaultModel     = "gemini-2.0-flash"
	geminiDefaultMaxTokens = 8192
)

type geminiModelsClient interface {
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
}

// GeminiProvider streams from the Gemini API through the genai SDK
type GeminiProvider struct {
	models geminiModelsClient
}

func NewGeminiProvider(ctx context.Context, apiKey string, timeout time.Duration) (*GeminiProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: newHTTPClient(timeout),
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiProvider{models: client.Models}, nil
}

func (p *GeminiProvider) Name() string {
	return "gemini"
}

// FormatMessages treats all Gemini models as multimodal
func (p *GeminiProvider) FormatMessages(in FormatInput) []ChatMessage {
	return formatMessages(in, true)
}

func (p *GeminiProvider) StreamChat(ctx context.Context, messages []ChatMessage, persona models.Persona) (Stream, error) {
	model := modelFor(persona, geminiDefaultModel)
	contents, cfg, err := p.buildRequest(messages, persona)
	if err != nil {
		return nil, err
	}

	// The SDK only reports HTTP failures once iteration starts, so the first
	// response is pulled inside the retry loop.
	stream, err := withRetry(ctx, p.Name(), func() (*geminiStream, error) {
		s := newGeminiStream(p.models.GenerateContentStream(ctx, model, contents, cfg))
		if err := s.prime(); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{"provider": p.Name(), "model": model}).Debug("provider.stream.opened")
	return stream, nil
}

func (p *GeminiProvider) buildRequest(messages []ChatMessage, persona models.Persona) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	contents := make([]*genai.Content, 0, len(messages))
	var system []string

	for _, msg := range messages {
		switch msg.Role {
		case string(models.RoleSystem):
			if c := strings.TrimSpace(msg.Content); c != "" {
				system = append(system, c)
			}
			continue
		case string(models.RoleAssistant):
			contents = append(contents, &genai.Content{
				Role:  genai.RoleModel,
				Parts: []*genai.Part{{Text: msg.Content}},
			})
			continue
		}

		var parts []*genai.Part
		if msg.ImageURL != "" {
			if src, ok := parseDataURL(msg.ImageURL); ok {
				data, err := base64.StdEncoding.DecodeString(src.Data)
				if err != nil {
					return nil, nil, fmt.Errorf("invalid image data: %w", err)
				}
				parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: src.MediaType, Data: data}})
			}
		}
		parts = append(parts, &genai.Part{Text: msg.Content})
		contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: parts})
	}
	if len(contents) == 0 {
		return nil, nil, errors.New("at least one user or assistant message is required")
	}

	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(maxTokensFor(persona, geminiDefaultMaxTokens)),
	}
	if t, ok := temperatureFor(persona); ok {
		cfg.Temperature = genai.Ptr(float32(t))
	}
	if len(system) > 0 {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: strings.Join(system, "\n\n")}},
		}
	}
	return contents, cfg, nil
}

type geminiStream struct {
	next    func() (*genai.GenerateContentResponse, error, bool)
	stop    func()
	pending *genai.GenerateContentResponse
	current string
	err     error
	done    bool
}

func newGeminiStream(seq iter.Seq2[*genai.GenerateContentResponse, error]) *geminiStream {
	next, stop := iter.Pull2(seq)
	return &geminiStream{next: next, stop: stop}
}

// prime fetches the first response so request errors surface before streaming
func (s *geminiStream) prime() error {
	resp, err, ok := s.next()
	if !ok {
		s.done = true
		return nil
	}
	if err != nil {
		return err
	}
	s.pending = resp
	return nil
}

func (s *geminiStream) Next() bool {
	if s.done || s.err != nil {
		return false
	}

	for {
		resp := s.pending
		s.pending = nil
		if resp == nil {
			r, err, ok := s.next()
			if !ok {
				s.done = true
				return false
			}
			if err != nil {
				s.err = err
				return false
			}
			resp = r
		}

		if text := geminiText(resp); text != "" {
			s.current = FormatLaTeX(text)
			return true
		}
	}
}

func (s *geminiStream) Content() string {
	return s.current
}

func (s *geminiStream) Err() error {
	return s.err
}

func (s *geminiStream) Close() error {
	s.stop()
	s.done = true
	return nil
}

func geminiText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return ""
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought || part.Text == "" {
			continue
		}
		sb.WriteString(part.Text)
	}
	return sb.String()
}

var _ Provider = (*GeminiProvider)(nil)
