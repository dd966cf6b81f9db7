package providers

import (
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// streamPayload covers the chunk shapes relayed from upstream: OpenAI style
// choices[].delta.content and Anthropic style typed events with delta.text.
type streamPayload struct {
	Type    string `json:"type"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// decodePayload parses a raw data line, repairing truncated or sloppy JSON
// before giving up.
func decodePayload(raw string) (streamPayload, bool) {
	var p streamPayload
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return p, false
	}
	if err := json.Unmarshal([]byte(raw), &p); err == nil {
		return p, true
	}

	repaired, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return p, false
	}
	if err := json.Unmarshal([]byte(repaired), &p); err != nil {
		return p, false
	}
	return p, true
}

func (p streamPayload) text() string {
	if len(p.Choices) > 0 {
		return p.Choices[0].Delta.Content
	}
	if p.Delta.Type == "text_delta" {
		return p.Delta.Text
	}
	return ""
}

// ExtractContent returns the LaTeX-normalised text delta of a raw stream chunk,
// or "" when the chunk carries none or cannot be parsed.
func ExtractContent(raw string) string {
	p, ok := decodePayload(raw)
	if !ok {
		return ""
	}
	return FormatLaTeX(p.text())
}
