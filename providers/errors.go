package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/openai/openai-go/v3"
	"google.golang.org/genai"
)

const codeContentPolicyViolation = "content_policy_violation"

// APIError is a non-2xx response from a provider that has no SDK error type of its own
type APIError struct {
	Provider   string
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s API error (status %d)", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// StatusCode extracts the HTTP status of a provider failure, 0 when there is none
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	var oaiErr *openai.Error
	if errors.As(err, &oaiErr) {
		return oaiErr.StatusCode
	}
	var gErr genai.APIError
	if errors.As(err, &gErr) {
		return gErr.Code
	}
	return 0
}

// ErrorCode returns the provider's machine readable error code, or UNKNOWN_ERROR
func ErrorCode(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code != "" {
		return apiErr.Code
	}
	var oaiErr *openai.Error
	if errors.As(err, &oaiErr) && oaiErr.Code != "" {
		return oaiErr.Code
	}
	var gErr genai.APIError
	if errors.As(err, &gErr) && gErr.Status != "" {
		return gErr.Status
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "TIMEOUT"
	case errors.Is(err, context.Canceled):
		return "CANCELED"
	case errors.Is(err, ErrUnknownProvider):
		return "UNKNOWN_PROVIDER"
	}
	return "UNKNOWN_ERROR"
}

// IsProviderError reports whether err came back from an upstream API
func IsProviderError(err error) bool {
	return StatusCode(err) != 0
}

// IsRetryable reports whether a failed request may be attempted again. Only
// throttling and transient upstream failures qualify.
func IsRetryable(err error) bool {
	if err == nil || ErrorCode(err) == codeContentPolicyViolation {
		return false
	}
	switch StatusCode(err) {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// isImageRetryable is looser than IsRetryable: image requests are retried on any
// failure except a rejected prompt.
func isImageRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || ErrorCode(err) == codeContentPolicyViolation {
		return false
	}
	return StatusCode(err) != http.StatusBadRequest
}

// Describe turns a provider failure into the message shown to the user
func Describe(err error, provider string) string {
	if err == nil {
		return ""
	}
	if provider == "" {
		provider = "the AI provider"
	}
	if ErrorCode(err) == codeContentPolicyViolation {
		return "Content policy violation: The request contains inappropriate content."
	}
	switch status := StatusCode(err); {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Sprintf("Authentication with %s failed. Please check the API key configuration.", provider)
	case status == http.StatusTooManyRequests:
		return fmt.Sprintf("%s rate limit reached. Please wait a moment and try again.", provider)
	case status == http.StatusBadRequest:
		return fmt.Sprintf("%s rejected the request. Try shortening your message or removing the attachment.", provider)
	case status >= http.StatusInternalServerError:
		return fmt.Sprintf("%s is temporarily unavailable. Please try again later.", provider)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("The request to %s timed out. Please try again.", provider)
	}
	if errors.Is(err, ErrUnknownProvider) {
		return fmt.Sprintf("Provider %s is not available.", provider)
	}
	return "An error occurred during streaming"
}
