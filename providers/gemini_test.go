package providers

import (
	"context"
	"iter"
	"net/http"
	"testing"

	"chat-relay-service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type stubGeminiModels struct {
	seqs []iter.Seq2[*genai.GenerateContentResponse, error]
	call int

	gotModel    string
	gotContents []*genai.Content
	gotConfig   *genai.GenerateContentConfig
}

func (s *stubGeminiModels) GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error] {
	s.gotModel = model
	s.gotContents = contents
	s.gotConfig = cfg
	seq := s.seqs[s.call]
	s.call++
	return seq
}

func geminiResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

func geminiSeq(texts ...string) iter.Seq2[*genai.GenerateContentResponse, error] {
	return func(yield func(*genai.GenerateContentResponse, error) bool) {
		for _, text := range texts {
			if !yield(geminiResponse(text), nil) {
				return
			}
		}
	}
}

func geminiFailure(err error) iter.Seq2[*genai.GenerateContentResponse, error] {
	return func(yield func(*genai.GenerateContentResponse, error) bool) {
		yield(nil, err)
	}
}

func TestGeminiStreamChat(t *testing.T) {
	stub := &stubGeminiModels{seqs: []iter.Seq2[*genai.GenerateContentResponse, error]{geminiSeq("Hola", "", " amigo")}}
	p := &GeminiProvider{models: stub}

	persona := models.Persona{Name: "Gem", Role: "translator", ModelCodeName: "gemini-1.5-pro"}
	msgs := p.FormatMessages(FormatInput{
		Persona: persona,
		History: []models.Message{
			{Role: models.RoleUser, Content: "hello"},
			{Role: models.RoleAssistant, Content: "hi"},
			{Role: models.RoleUser, Content: "in spanish"},
		},
	})
	stream, err := p.StreamChat(context.Background(), msgs, persona)
	require.NoError(t, err)

	assert.Equal(t, "Hola amigo", collect(t, stream))
	assert.Equal(t, "gemini-1.5-pro", stub.gotModel)
	require.Len(t, stub.gotContents, 3)
	assert.Equal(t, genai.RoleModel, stub.gotContents[1].Role)
	assert.Equal(t, "You are Gem, a translator.", stub.gotConfig.SystemInstruction.Parts[0].Text)
	assert.Equal(t, float32(DefaultTemperature), *stub.gotConfig.Temperature)
	assert.Equal(t, int32(geminiDefaultMaxTokens), stub.gotConfig.MaxOutputTokens)
}

func TestGeminiRetriesFirstResponseError(t *testing.T) {
	stub := &stubGeminiModels{seqs: []iter.Seq2[*genai.GenerateContentResponse, error]{
		geminiFailure(genai.APIError{Code: http.StatusServiceUnavailable, Status: "UNAVAILABLE"}),
		geminiSeq("recovered"),
	}}
	p := &GeminiProvider{models: stub}

	persona := models.Persona{Name: "Gem", Role: "helper"}
	stream, err := p.StreamChat(context.Background(), p.FormatMessages(FormatInput{Persona: persona}), persona)
	require.NoError(t, err)
	assert.Equal(t, "recovered", collect(t, stream))
	assert.Equal(t, 2, stub.call)
}

func TestGeminiFatalError(t *testing.T) {
	stub := &stubGeminiModels{seqs: []iter.Seq2[*genai.GenerateContentResponse, error]{
		geminiFailure(genai.APIError{Code: http.StatusBadRequest, Status: "INVALID_ARGUMENT"}),
	}}
	p := &GeminiProvider{models: stub}

	persona := models.Persona{Name: "Gem", Role: "helper"}
	_, err := p.StreamChat(context.Background(), p.FormatMessages(FormatInput{Persona: persona}), persona)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, StatusCode(err))
	assert.Equal(t, "INVALID_ARGUMENT", ErrorCode(err))
	assert.Equal(t, 1, stub.call)
}

func TestGeminiInlineImage(t *testing.T) {
	stub := &stubGeminiModels{seqs: []iter.Seq2[*genai.GenerateContentResponse, error]{geminiSeq("a cat")}}
	p := &GeminiProvider{models: stub}

	persona := models.Persona{Name: "Gem", Role: "helper"}
	msgs := p.FormatMessages(FormatInput{
		Persona: persona,
		History: []models.Message{{Role: models.RoleUser, Content: "what"}},
		File:    &models.FileAttachment{Name: "cat.gif", Type: "image/gif", Content: "aGVsbG8="},
	})
	stream, err := p.StreamChat(context.Background(), msgs, persona)
	require.NoError(t, err)
	collect(t, stream)

	require.Len(t, stub.gotContents, 1)
	parts := stub.gotContents[0].Parts
	require.Len(t, parts, 2)
	assert.Equal(t, "image/gif", parts[0].InlineData.MIMEType)
	assert.Equal(t, []byte("hello"), parts[0].InlineData.Data)
	assert.Equal(t, "what", parts[1].Text)
}
