package gateway_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"completions-gateway/internal/audit"
	"completions-gateway/internal/backend"
	"completions-gateway/internal/config"
	"completions-gateway/internal/gateway"
)

type stubBackend struct {
	reply string
	err   error
	calls []backend.Call
}

func (b *stubBackend) Complete(_ context.Context, call backend.Call) (string, error) {
	b.calls = append(b.calls, call)
	return b.reply, b.err
}

type memoryAudit struct {
	mu      sync.Mutex
	records []audit.Record
}

func (m *memoryAudit) Save(_ context.Context, rec audit.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *memoryAudit) List(context.Context, int) ([]audit.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]audit.Record(nil), m.records...), nil
}

func (m *memoryAudit) PruneBefore(context.Context, time.Time) (int64, error) { return 0, nil }
func (m *memoryAudit) Close() error { return nil }

func newService(t *testing.T, stub *stubBackend, auditStore audit.Store) *gateway.Service {
	t.Helper()
	cfg, err := config.Parse([]byte(`
model_list:
  - model_name: local
    params:
      backend: command
      model: sonnet
      command: ["claude", "-p"]
      max_tokens: 512
`))
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}

	registry := backend.NewRegistry()
	registry.Register(config.BackendCommand, stub)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return gateway.NewService(config.NewStore(cfg), registry, logger,
		gateway.WithAudit(auditStore),
		gateway.WithClock(clock),
	)
}

func serve(t *testing.T, svc *gateway.Service, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	req = req.WithContext(gateway.ContextWithRequestID(req.Context(), "req-test"))
	rec := httptest.NewRecorder()
	svc.HandleChatCompletions(rec, req)
	return rec
}

func TestChatCompletionsPassesInstructionToBackend(t *testing.T) {
	stub := &stubBackend{reply: `{"tags":["a","b"]}`}
	auditStore := &memoryAudit{}
	svc := newService(t, stub, auditStore)

	rec := serve(t, svc, `{
		"model": "local",
		"max_tokens": 64,
		"temperature": 0.2,
		"response_format": {"type": "json_schema", "json_schema": {"name": "tags", "schema": {"type": "object"}}},
		"messages": [
			{"role": "system", "content": "Tag things."},
			{"role": "user", "content": "first"},
			{"role": "assistant", "content": "ok"},
			{"role": "user", "content": "second"}
		]
	}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if len(stub.calls) != 1 {
		t.Fatalf("backend calls = %d", len(stub.calls))
	}
	call := stub.calls[0]
	if call.Instruction.User != "second" {
		t.Fatalf("user instruction = %q, want last user message", call.Instruction.User)
	}
	if !call.Instruction.RequiresJSON || !strings.HasPrefix(call.Instruction.System, "Tag things.\n") {
		t.Fatalf("unexpected instruction: %+v", call.Instruction)
	}
	if !strings.Contains(call.Instruction.System, `"type": "object"`) {
		t.Fatalf("structure hint missing from system: %q", call.Instruction.System)
	}
	if call.Options.MaxTokens != 64 || call.Options.Temperature == nil || *call.Options.Temperature != 0.2 {
		t.Fatalf("unexpected options: %+v", call.Options)
	}

	var resp struct {
		Created int64 `json:"created"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Choices[0].Message.Content != `{"tags":["a","b"]}` {
		t.Fatalf("content = %q", resp.Choices[0].Message.Content)
	}
	if resp.Created != time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).Unix() {
		t.Fatalf("created = %d", resp.Created)
	}

	records, _ := auditStore.List(context.Background(), 0)
	if len(records) != 1 {
		t.Fatalf("audit records = %d", len(records))
	}
	got := records[0]
	if got.RequestID != "req-test" || got.Model != "local" || got.UpstreamModel != "sonnet" || got.Backend != "command" {
		t.Fatalf("unexpected audit record: %+v", got)
	}
	if !got.RequiresJSON || got.Strategy != "verbatim" || got.Status != "success" {
		t.Fatalf("unexpected audit outcome: %+v", got)
	}
}

func TestChatCompletionsBackendTimeout(t *testing.T) {
	stub := &stubBackend{err: &backend.Error{Backend: "command", Message: "timed out", Timeout: true}}
	auditStore := &memoryAudit{}
	svc := newService(t, stub, auditStore)

	rec := serve(t, svc, `{"model":"local","messages":[{"role":"user","content":"hi"}]}`)
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"type":"timeout_error"`) {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}

	records, _ := auditStore.List(context.Background(), 0)
	if len(records) != 1 || records[0].Status != "backend_error" {
		t.Fatalf("unexpected audit records: %+v", records)
	}
}

func TestChatCompletionsTransportErrorInJSONMode(t *testing.T) {
	stub := &stubBackend{err: errors.New("connection refused")}
	auditStore := &memoryAudit{}
	svc := newService(t, stub, auditStore)

	rec := serve(t, svc, `{"model":"local","response_format":{"type":"json_object"},"messages":[{"role":"user","content":"hi"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got := resp.Choices[0].Message.Content; got != `{"error":"connection refused"}` {
		t.Fatalf("content = %q", got)
	}

	records, _ := auditStore.List(context.Background(), 0)
	if len(records) != 1 || records[0].Status != "error_payload" {
		t.Fatalf("unexpected audit records: %+v", records)
	}
}

func TestChatCompletionsRejectsOversizedBody(t *testing.T) {
	cfg, err := config.Parse([]byte(`
max_body_bytes: 64
model_list:
  - model_name: local
    params:
      backend: command
      command: ["cat"]
`))
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := gateway.NewService(config.NewStore(cfg), backend.NewRegistry(), logger)

	body := `{"model":"local","messages":[{"role":"user","content":"` + strings.Repeat("x", 128) + `"}]}`
	rec := serve(t, svc, body)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d", rec.Code)
	}
}
