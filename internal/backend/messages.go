package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"completions-gateway/internal/adapter"
	"completions-gateway/internal/config"
)

const maxResponseBytes = 32 << 20

// MessagesBackend calls an Anthropic-compatible Messages API over HTTP.
type MessagesBackend struct {
	adapter adapter.Adapter
	client  *http.Client
}

func NewMessagesBackend(ad adapter.Adapter, client *http.Client) *MessagesBackend {
	if client == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		client = &http.Client{Transport: transport}
	}
	return &MessagesBackend{adapter: ad, client: client}
}

func (b *MessagesBackend) Complete(ctx context.Context, call Call) (string, error) {
	params := call.Route.Params
	if params.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, params.Timeout)
		defer cancel()
	}

	upstreamURL, err := b.adapter.BuildUpstreamURL(params.APIBase, adapter.MessagesPath)
	if err != nil {
		return "", fmt.Errorf("build upstream url: %w", err)
	}
	body, err := b.adapter.BuildPayload(params, call.Instruction, call.Options)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, upstreamURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	b.adapter.ApplyAuthHeaders(req.Header, params)

	resp, err := b.client.Do(req)
	if err != nil {
		return "", &Error{
			Backend: config.BackendMessages,
			Message: "upstream request failed",
			Timeout: isTimeout(err),
			Err:     err,
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", &Error{
			Backend: config.BackendMessages,
			Status:  resp.StatusCode,
			Message: "failed to read upstream response",
			Timeout: isTimeout(err),
			Err:     err,
		}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return "", &Error{
			Backend: config.BackendMessages,
			Status:  resp.StatusCode,
			Message: b.adapter.ExtractErrorMessage(resp.StatusCode, respBody),
		}
	}

	text, err := b.adapter.ParseResponse(respBody)
	if err != nil {
		return "", &Error{
			Backend: config.BackendMessages,
			Status:  resp.StatusCode,
			Message: "invalid upstream response",
			Err:     err,
		}
	}
	return text, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
