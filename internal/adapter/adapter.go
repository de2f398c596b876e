package adapter

import (
	"net/http"

	"completions-gateway/internal/chat"
	"completions-gateway/internal/config"
)

// CallOptions carries per-request sampling settings from the client.
type CallOptions struct {
	MaxTokens   int
	Temperature *float64
}

// Adapter translates a single-turn instruction into a backend HTTP call and
// the backend's reply back into text.
type Adapter interface {
	BuildUpstreamURL(apiBase, upstreamPath string) (string, error)
	ApplyAuthHeaders(headers http.Header, params config.UpstreamParams)
	BuildPayload(params config.UpstreamParams, instr chat.Instruction, opts CallOptions) ([]byte, error)
	ParseResponse(body []byte) (string, error)
	ExtractErrorMessage(statusCode int, body []byte) string
}
