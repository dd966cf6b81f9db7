package providers

import (
	"fmt"
	"strings"

	"chat-relay-service/models"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/apex/log"
)

const (
	imagePrompt = "\nYou have access to an image that has been uploaded. Please analyze it thoroughly and provide relevant insights."
	filePrompt  = "\nYou have access to a file that has been uploaded. Please analyze its contents thoroughly."
)

var supportedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// IsSupportedImage reports whether a MIME type can be sent to vision models
func IsSupportedImage(mimeType string) bool {
	return supportedImageTypes[strings.ToLower(mimeType)]
}

// SystemPrompt introduces the persona to the model
func SystemPrompt(p models.Persona) string {
	return strings.TrimRight(fmt.Sprintf("You are %s, a %s. %s", p.Name, p.Role, p.Instructions), " ")
}

// formatMessages builds the system message plus the cleaned history. The
// uploaded file, if any, is attached to the latest user turn: as an image part
// when vision is true and the type is supported, as an inline prompt otherwise.
func formatMessages(in FormatInput, vision bool) []ChatMessage {
	history := make([]ChatMessage, 0, len(in.History))
	for _, msg := range in.History {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		role := string(models.RoleUser)
		if msg.Role == models.RoleAssistant {
			role = string(models.RoleAssistant)
		}
		history = append(history, ChatMessage{Role: role, Content: FormatLaTeX(content)})
	}
	if len(history) == 0 {
		history = append(history, ChatMessage{Role: string(models.RoleUser), Content: "Hello"})
	}

	system := SystemPrompt(in.Persona)

	if f := in.File; f != nil && f.Content != "" && f.Name != "" {
		last := lastUserIndex(history)
		request := history[last].Content

		if vision && IsSupportedImage(f.Type) {
			system += imagePrompt
			if request == "" {
				request = "Please analyze this image."
			}
			history[last] = ChatMessage{
				Role:     string(models.RoleUser),
				Content:  request,
				ImageURL: fmt.Sprintf("data:%s;base64,%s", f.Type, f.Content),
			}
		} else {
			system += filePrompt
			if request == "" {
				request = "Please analyze this file."
			}
			history[last] = ChatMessage{
				Role:    string(models.RoleUser),
				Content: filePromptContent(f, request),
			}
		}
	}

	return append([]ChatMessage{{Role: string(models.RoleSystem), Content: system}}, history...)
}

func lastUserIndex(messages []ChatMessage) int {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == string(models.RoleUser) {
			return i
		}
	}
	return len(messages) - 1
}

func filePromptContent(f *models.FileAttachment, request string) string {
	return strings.Join([]string{
		"Here is the file content:\n",
		fmt.Sprintf("<file>%s</file>", f.Name),
		fmt.Sprintf("<content>%s</content>\n", fileText(f)),
		fmt.Sprintf("User request: %s\n", request),
		"Please analyze this file's contents carefully and provide a relevant response.",
	}, "\n")
}

// fileText returns the attachment as prompt text; HTML documents are reduced to Markdown
func fileText(f *models.FileAttachment) string {
	if !strings.EqualFold(f.Type, "text/html") {
		return f.Content
	}
	markdown, err := htmltomarkdown.ConvertString(f.Content)
	if err != nil {
		log.WithError(err).Warnf("Failed to convert %s to markdown, sending raw HTML", f.Name)
		return f.Content
	}
	return markdown
}
