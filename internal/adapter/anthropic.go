package adapter

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"completions-gateway/internal/chat"
	"completions-gateway/internal/config"
)

const (
	MessagesPath     = "/v1/messages"
	AnthropicVersion = "2023-06-01"
)

type AnthropicMessagesAdapter struct{}

func NewAnthropicMessagesAdapter() *AnthropicMessagesAdapter {
	return &AnthropicMessagesAdapter{}
}

func (a *AnthropicMessagesAdapter) BuildUpstreamURL(apiBase, upstreamPath string) (string, error) {
	base, err := url.Parse(apiBase)
	if err != nil {
		return "", fmt.Errorf("parse api_base: %w", err)
	}

	suffix := "/" + strings.TrimLeft(upstreamPath, "/")
	base.Path = strings.TrimRight(base.Path, "/") + suffix
	return base.String(), nil
}

func (a *AnthropicMessagesAdapter) ApplyAuthHeaders(headers http.Header, params config.UpstreamParams) {
	headers.Del("Authorization")
	headers.Del("x-api-key")
	switch params.AuthType {
	case config.AuthTypeBearer:
		headers.Set("Authorization", "Bearer "+params.APIKey)
	default:
		headers.Set("x-api-key", params.APIKey)
	}
	headers.Set("anthropic-version", AnthropicVersion)
}

type messagesRequest struct {
	Model       string            `json:"model"`
	MaxTokens   int               `json:"max_tokens"`
	System      string            `json:"system,omitempty"`
	Messages    []messagesMessage `json:"messages"`
	Temperature *float64          `json:"temperature,omitempty"`
}

type messagesMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// BuildPayload sends the instruction as one user turn. A client max_tokens
// overrides the route default.
func (a *AnthropicMessagesAdapter) BuildPayload(params config.UpstreamParams, instr chat.Instruction, opts CallOptions) ([]byte, error) {
	maxTokens := params.MaxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}

	req := messagesRequest{
		Model:     params.Model,
		MaxTokens: maxTokens,
		System:    instr.System,
		Messages: []messagesMessage{
			{Role: string(chat.RoleUser), Content: instr.User},
		},
		Temperature: opts.Temperature,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode messages payload: %w", err)
	}
	return body, nil
}

// ParseResponse concatenates the text blocks of a Messages response in
// arrival order.
func (a *AnthropicMessagesAdapter) ParseResponse(body []byte) (string, error) {
	var resp struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode messages response: %w", err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String(), nil
}

func (a *AnthropicMessagesAdapter) ExtractErrorMessage(statusCode int, body []byte) string {
	if message := extractMessage(body); message != "" {
		return message
	}
	return http.StatusText(statusCode)
}

func extractMessage(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}

	var generic map[string]any
	if err := json.Unmarshal(body, &generic); err != nil {
		return trimmed
	}

	if msg, ok := generic["message"].(string); ok && strings.TrimSpace(msg) != "" {
		return strings.TrimSpace(msg)
	}

	if errObj, ok := generic["error"].(map[string]any); ok {
		if msg, ok := errObj["message"].(string); ok && strings.TrimSpace(msg) != "" {
			return strings.TrimSpace(msg)
		}
	}

	return trimmed
}
