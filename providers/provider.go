package providers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"chat-relay-service/models"

	"github.com/apex/log"
)

const (
	DefaultTemperature = 0.7
	MaxRetries         = 3
)

var ErrUnknownProvider = errors.New("unknown provider")

// ChatMessage is a provider-neutral chat message. ImageURL is set only for the
// user turn carrying an uploaded image for a vision model.
type ChatMessage struct {
	Role     string
	Content  string
	ImageURL string
}

// FormatInput is everything FormatMessages needs to build a provider request
type FormatInput struct {
	Persona models.Persona
	History []models.Message
	File    *models.FileAttachment
}

// Stream yields content deltas from a provider until Next returns false
type Stream interface {
	Next() bool
	Content() string
	Err() error
	Close() error
}

type Provider interface {
	Name() string
	FormatMessages(in FormatInput) []ChatMessage
	StreamChat(ctx context.Context, messages []ChatMessage, persona models.Persona) (Stream, error)
}

type ImageMetadata struct {
	Size      string    `json:"size"`
	Style     string    `json:"style"`
	Quality   string    `json:"quality"`
	Prompt    string    `json:"prompt"`
	Timestamp time.Time `json:"timestamp"`
}

type ImageResult struct {
	URL      string        `json:"imageUrl"`
	Metadata ImageMetadata `json:"metadata"`
}

// ImageGenerator is implemented by providers that can create images from a prompt
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string, opts models.ImageOptions) (*ImageResult, error)
}

// Registry resolves persona provider names to providers
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	fallback  Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds p under name and every alias
func (r *Registry) Register(name string, p Provider, aliases ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, n := range append([]string{name}, aliases...) {
		r.providers[normalizeName(n)] = p
	}
}

// SetFallback sets the provider returned for unknown names
func (r *Registry) SetFallback(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = p
}

func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.providers[normalizeName(name)]; ok {
		return p, nil
	}
	if r.fallback != nil {
		log.Warnf("Unknown provider %q, using %s", name, r.fallback.Name())
		return r.fallback, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
}

// Names lists the registered names, aliases included
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func modelFor(persona models.Persona, defaultModel string) string {
	if m := strings.TrimSpace(persona.ModelCodeName); m != "" {
		return m
	}
	return defaultModel
}

func temperatureFor(persona models.Persona) (float64, bool) {
	if !persona.TemperatureEnabled() {
		return 0, false
	}
	if t := persona.Capabilities.SupportedParameters.Temperature.Default; t > 0 {
		return t, true
	}
	return DefaultTemperature, true
}

func maxTokensFor(persona models.Persona, defaultMaxTokens int) int {
	if n := persona.Capabilities.SupportedParameters.MaxTokens.Default; n > 0 {
		return n
	}
	return defaultMaxTokens
}
