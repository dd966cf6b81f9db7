package providers

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"chat-relay-service/models"
)

// MockProvider answers without calling any upstream API. It echoes the latest
// user message back a few words at a time.
type MockProvider struct {
	Delay time.Duration
	// Err, when set, is returned by StreamChat
	Err error
	// Deltas, when set, replaces the echoed reply
	Deltas []string
}

func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

func (p *MockProvider) Name() string {
	return "mock"
}

func (p *MockProvider) FormatMessages(in FormatInput) []ChatMessage {
	return formatMessages(in, true)
}

func (p *MockProvider) StreamChat(ctx context.Context, messages []ChatMessage, persona models.Persona) (Stream, error) {
	if p.Err != nil {
		return nil, p.Err
	}

	deltas := p.Deltas
	if deltas == nil {
		var last string
		for i := len(messages) - 1; i >= 0; i-- {
			if messages[i].Role == string(models.RoleUser) {
				last = messages[i].Content
				break
			}
		}
		reply := fmt.Sprintf("[%s] You said: %s", modelFor(persona, "mock"), last)
		deltas = strings.SplitAfter(reply, " ")
	}
	return &mockStream{ctx: ctx, deltas: deltas, delay: p.Delay, pos: -1}, nil
}

func (p *MockProvider) GenerateImage(ctx context.Context, prompt string, opts models.ImageOptions) (*ImageResult, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	size := string(imageSizes["small"])
	if s, ok := imageSizes[opts.Size]; ok {
		size = string(s)
	}
	return &ImageResult{
		URL: "https://placehold.co/" + size + "?text=" + url.QueryEscape(prompt),
		Metadata: ImageMetadata{
			Size:      size,
			Style:     opts.Style,
			Quality:   opts.Quality,
			Prompt:    prompt,
			Timestamp: time.Now().UTC(),
		},
	}, nil
}

type mockStream struct {
	ctx    context.Context
	deltas []string
	delay  time.Duration
	pos    int
	err    error
}

func (s *mockStream) Next() bool {
	if s.err != nil || s.pos+1 >= len(s.deltas) {
		return false
	}
	if s.delay > 0 {
		select {
		case <-s.ctx.Done():
			s.err = s.ctx.Err()
			return false
		case <-time.After(s.delay):
		}
	} else if err := s.ctx.Err(); err != nil {
		s.err = err
		return false
	}
	s.pos++
	return true
}

func (s *mockStream) Content() string {
	return s.deltas[s.pos]
}

func (s *mockStream) Err() error {
	return s.err
}

func (s *mockStream) Close() error {
	return nil
}

var (
	_ Provider       = (*MockProvider)(nil)
	_ ImageGenerator = (*MockProvider)(nil)
)
