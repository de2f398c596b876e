// Package openai holds the Chat Completions wire types accepted and returned
// by the gateway.
package openai

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"completions-gateway/internal/chat"
)

const (
	ResponseFormatText       = "text"
	ResponseFormatJSONObject = "json_object"
	ResponseFormatJSONSchema = "json_schema"

	ObjectChatCompletion = "chat.completion"
	FinishReasonStop     = "stop"
)

type ChatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    *float64        `json:"temperature,omitempty"`
	MaxTokens      *int            `json:"max_tokens,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
	Stream         bool            `json:"stream,omitempty"`
	N              *int            `json:"n,omitempty"`
}

type Message struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
}

// Content is message text. On the wire it is either a string or an array of
// content parts; text parts are concatenated in order and other part types
// are ignored.
type Content string

func (c *Content) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = Content(s)
		return nil
	}

	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("content must be a string or an array of content parts")
	}
	var b strings.Builder
	for _, p := range parts {
		if p.Type == "text" {
			b.WriteString(p.Text)
		}
	}
	*c = Content(b.String())
	return nil
}

type ResponseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *JSONSchema `json:"json_schema,omitempty"`
}

type JSONSchema struct {
	Name   string          `json:"name,omitempty"`
	Schema json.RawMessage `json:"schema,omitempty"`
	Strict bool            `json:"strict,omitempty"`
}

// RequiresJSON reports whether the caller asked for structured output.
func (r *ChatCompletionRequest) RequiresJSON() bool {
	if r.ResponseFormat == nil {
		return false
	}
	switch r.ResponseFormat.Type {
	case ResponseFormatJSONObject, ResponseFormatJSONSchema:
		return true
	default:
		return false
	}
}

// StructureHint returns the schema supplied with a json_schema response
// format, or nil.
func (r *ChatCompletionRequest) StructureHint() any {
	if r.ResponseFormat == nil || r.ResponseFormat.JSONSchema == nil {
		return nil
	}
	if len(r.ResponseFormat.JSONSchema.Schema) == 0 {
		return nil
	}
	return r.ResponseFormat.JSONSchema.Schema
}

func (r *ChatCompletionRequest) ChatMessages() []chat.Message {
	out := make([]chat.Message, 0, len(r.Messages))
	for _, m := range r.Messages {
		out = append(out, chat.Message{Role: chat.Role(m.Role), Content: string(m.Content)})
	}
	return out
}

type ChatCompletionResponse struct {
	ID                string   `json:"id"`
	Object            string   `json:"object"`
	Created           int64    `json:"created"`
	Model             string   `json:"model"`
	Choices           []Choice `json:"choices"`
	Usage             Usage    `json:"usage"`
	SystemFingerprint *string  `json:"system_fingerprint"`
}

type Choice struct {
	Index        int             `json:"index"`
	Message      ResponseMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

type ResponseMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// NewChatCompletionResponse builds a single-choice completion for model.
func NewChatCompletionResponse(model, content string, usage Usage, now time.Time) ChatCompletionResponse {
	return ChatCompletionResponse{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  ObjectChatCompletion,
		Created: now.Unix(),
		Model:   model,
		Choices: []Choice{
			{
				Index:        0,
				Message:      ResponseMessage{Role: string(chat.RoleAssistant), Content: content},
				FinishReason: FinishReasonStop,
			},
		},
		Usage: usage,
	}
}

// EstimateUsage approximates token counts as 1.3 tokens per whitespace
// separated word. It is not a tokenizer.
func EstimateUsage(messages []Message, completion string) Usage {
	promptWords := 0
	for _, m := range messages {
		promptWords += len(strings.Fields(string(m.Content)))
	}
	prompt := float64(promptWords) * 1.3
	completionTokens := float64(len(strings.Fields(completion))) * 1.3
	return Usage{
		PromptTokens:     int(prompt),
		CompletionTokens: int(completionTokens),
		TotalTokens:      int(prompt + completionTokens),
	}
}
