package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"chat-relay-service/models"

	"github.com/apex/log"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/ssestream"
)

const (
	openAIDefaultModel     = "gpt-3.5-turbo"
	openAIDefaultMaxTokens = 8000

	deepSeekDefaultModel     = "deepseek-chat"
	deepSeekDefaultMaxTokens = 8191
	deepSeekPresencePenalty  = 0.6
	deepSeekFrequencyPenalty = 0.5

	imageModel = openai.ImageModelDallE3
)

var (
	openAIVisionModels = []string{"gpt-4-vision", "gpt-4o-vision", "gpt-4o-mini-vision"}

	imageSizes = map[string]openai.ImageGenerateParamsSize{
		"small":  openai.ImageGenerateParamsSize1024x1024,
		"medium": openai.ImageGenerateParamsSize1792x1024,
		"large":  openai.ImageGenerateParamsSize1024x1792,
	}
	imageStyles = map[string]openai.ImageGenerateParamsStyle{
		"vivid":   openai.ImageGenerateParamsStyleVivid,
		"natural": openai.ImageGenerateParamsStyleNatural,
	}
	imageQualities = map[string]openai.ImageGenerateParamsQuality{
		"standard": openai.ImageGenerateParamsQualityStandard,
		"hd":       openai.ImageGenerateParamsQualityHD,
	}
)

// OpenAIOptions configures a provider speaking the OpenAI chat completions API
type OpenAIOptions struct {
	Name             string
	APIKey           string
	BaseURL          string
	DefaultModel     string
	DefaultMaxTokens int
	PresencePenalty  float64
	FrequencyPenalty float64
	Timeout          time.Duration
	HTTPClient       *http.Client
}

// OpenAIProvider streams chat completions from OpenAI or any compatible API such as DeepSeek
type OpenAIProvider struct {
	name             string
	client           openai.Client
	defaultModel     string
	defaultMaxTokens int
	presencePenalty  float64
	frequencyPenalty float64
}

func NewOpenAIProvider(opts OpenAIOptions) (*OpenAIProvider, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("%s api key is required", opts.Name)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = newHTTPClient(opts.Timeout)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithHTTPClient(httpClient),
		// retries are handled by withRetry
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}

	return &OpenAIProvider{
		name:             opts.Name,
		client:           openai.NewClient(reqOpts...),
		defaultModel:     opts.DefaultModel,
		defaultMaxTokens: opts.DefaultMaxTokens,
		presencePenalty:  opts.PresencePenalty,
		frequencyPenalty: opts.FrequencyPenalty,
	}, nil
}

// NewOpenAI returns the OpenAI provider with its stock defaults
func NewOpenAI(apiKey, baseURL string, timeout time.Duration) (*OpenAIProvider, error) {
	return NewOpenAIProvider(OpenAIOptions{
		Name:             "openai",
		APIKey:           apiKey,
		BaseURL:          baseURL,
		DefaultModel:     openAIDefaultModel,
		DefaultMaxTokens: openAIDefaultMaxTokens,
		Timeout:          timeout,
	})
}

// NewDeepSeek returns a provider for the OpenAI compatible DeepSeek API
func NewDeepSeek(apiKey, baseURL string, timeout time.Duration) (*OpenAIProvider, error) {
	return NewOpenAIProvider(OpenAIOptions{
		Name:             "deepseek",
		APIKey:           apiKey,
		BaseURL:          baseURL,
		DefaultModel:     deepSeekDefaultModel,
		DefaultMaxTokens: deepSeekDefaultMaxTokens,
		PresencePenalty:  deepSeekPresencePenalty,
		FrequencyPenalty: deepSeekFrequencyPenalty,
		Timeout:          timeout,
	})
}

func (p *OpenAIProvider) Name() string {
	return p.name
}

func (p *OpenAIProvider) FormatMessages(in FormatInput) []ChatMessage {
	return formatMessages(in, isOpenAIVisionModel(in.Persona.ModelCodeName))
}

func (p *OpenAIProvider) StreamChat(ctx context.Context, messages []ChatMessage, persona models.Persona) (Stream, error) {
	params, err := p.buildParams(messages, persona)
	if err != nil {
		return nil, err
	}

	stream, err := withRetry(ctx, p.name, func() (*ssestream.Stream[openai.ChatCompletionChunk], error) {
		s := p.client.Chat.Completions.NewStreaming(ctx, params)
		if err := s.Err(); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{"provider": p.name, "model": params.Model}).Debug("provider.stream.opened")
	return &openAIStream{stream: stream}, nil
}

func (p *OpenAIProvider) buildParams(messages []ChatMessage, persona models.Persona) (openai.ChatCompletionNewParams, error) {
	if len(messages) == 0 {
		return openai.ChatCompletionNewParams{}, errors.New("no messages provided for generation")
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(modelFor(persona, p.defaultModel)),
		Messages: make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)),
	}
	for _, msg := range messages {
		params.Messages = append(params.Messages, toOpenAIMessage(msg))
	}

	if t, ok := temperatureFor(persona); ok {
		params.Temperature = openai.Float(t)
	}

	maxTokens := int64(maxTokensFor(persona, p.defaultMaxTokens))
	if isO1Model(string(params.Model)) {
		params.MaxCompletionTokens = openai.Int(maxTokens)
	} else {
		params.MaxTokens = openai.Int(maxTokens)
	}

	if p.presencePenalty != 0 {
		params.PresencePenalty = openai.Float(p.presencePenalty)
	}
	if p.frequencyPenalty != 0 {
		params.FrequencyPenalty = openai.Float(p.frequencyPenalty)
	}
	return params, nil
}

func toOpenAIMessage(msg ChatMessage) openai.ChatCompletionMessageParamUnion {
	switch msg.Role {
	case string(models.RoleSystem):
		return openai.SystemMessage(msg.Content)
	case string(models.RoleAssistant):
		return openai.AssistantMessage(msg.Content)
	}
	if msg.ImageURL != "" {
		return openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
			openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL:    msg.ImageURL,
				Detail: "high",
			}),
			openai.TextContentPart(msg.Content),
		})
	}
	return openai.UserMessage(msg.Content)
}

// GenerateImage creates a single dall-e-3 image. Unknown size, style or quality
// values fall back to small, vivid and standard.
func (p *OpenAIProvider) GenerateImage(ctx context.Context, prompt string, opts models.ImageOptions) (*ImageResult, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, errors.New("prompt is required")
	}

	size, ok := imageSizes[opts.Size]
	if !ok {
		size = imageSizes["small"]
	}
	style, ok := imageStyles[opts.Style]
	if !ok {
		style = imageStyles["vivid"]
	}
	quality, ok := imageQualities[opts.Quality]
	if !ok {
		quality = imageQualities["standard"]
	}

	params := openai.ImageGenerateParams{
		Prompt:         prompt,
		Model:          imageModel,
		N:              openai.Int(1),
		Size:           size,
		Style:          style,
		Quality:        quality,
		ResponseFormat: openai.ImageGenerateParamsResponseFormatURL,
	}

	resp, err := withRetryIf(ctx, p.name, isImageRetryable, func() (*openai.ImagesResponse, error) {
		return p.client.Images.Generate(ctx, params)
	})
	if err != nil {
		return nil, fmt.Errorf("image generation failed: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return nil, errors.New("invalid response format from image generation")
	}

	return &ImageResult{
		URL: resp.Data[0].URL,
		Metadata: ImageMetadata{
			Size:      string(size),
			Style:     string(style),
			Quality:   string(quality),
			Prompt:    prompt,
			Timestamp: time.Now().UTC(),
		},
	}, nil
}

type openAIStream struct {
	stream *ssestream.Stream[openai.ChatCompletionChunk]
}

func (s *openAIStream) Next() bool {
	return s.stream.Next()
}

func (s *openAIStream) Content() string {
	chunk := s.stream.Current()
	if len(chunk.Choices) == 0 {
		return ""
	}
	return FormatLaTeX(chunk.Choices[0].Delta.Content)
}

func (s *openAIStream) Err() error {
	return s.stream.Err()
}

func (s *openAIStream) Close() error {
	return s.stream.Close()
}

func isO1Model(model string) bool {
	return strings.Contains(strings.ToLower(model), "o1-")
}

func isOpenAIVisionModel(model string) bool {
	model = strings.ToLower(model)
	for _, vm := range openAIVisionModels {
		if strings.Contains(model, vm) {
			return true
		}
	}
	return false
}

var (
	_ Provider       = (*OpenAIProvider)(nil)
	_ ImageGenerator = (*OpenAIProvider)(nil)
)
