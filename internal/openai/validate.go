package openai

import (
	"fmt"
	"strings"

	"completions-gateway/internal/chat"
)

// ValidationError describes a request field the gateway cannot accept.
type ValidationError struct {
	Param   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Param == "" {
		return e.Message
	}
	return e.Param + ": " + e.Message
}

func (r *ChatCompletionRequest) Validate() error {
	if strings.TrimSpace(r.Model) == "" {
		return &ValidationError{Param: "model", Message: "model is required"}
	}
	if len(r.Messages) == 0 {
		return &ValidationError{Param: "messages", Message: "messages must not be empty"}
	}
	for i, m := range r.Messages {
		if !chat.Role(m.Role).Valid() {
			return &ValidationError{
				Param:   fmt.Sprintf("messages[%d].role", i),
				Message: fmt.Sprintf("unsupported role %q, expected system, user or assistant", m.Role),
			}
		}
	}
	if r.N != nil && *r.N != 1 {
		return &ValidationError{Param: "n", Message: "Only n=1 is supported"}
	}
	if r.Stream {
		return &ValidationError{Param: "stream", Message: "Streaming is not yet supported"}
	}
	if r.Temperature != nil && (*r.Temperature < 0 || *r.Temperature > 2) {
		return &ValidationError{Param: "temperature", Message: "temperature must be between 0 and 2"}
	}
	if r.MaxTokens != nil && *r.MaxTokens < 1 {
		return &ValidationError{Param: "max_tokens", Message: "max_tokens must be at least 1"}
	}
	if r.ResponseFormat != nil {
		switch r.ResponseFormat.Type {
		case ResponseFormatText, ResponseFormatJSONObject, ResponseFormatJSONSchema:
		default:
			return &ValidationError{
				Param:   "response_format.type",
				Message: fmt.Sprintf("unsupported response_format type %q", r.ResponseFormat.Type),
			}
		}
	}
	return nil
}
