package openai_test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"completions-gateway/internal/openai"
)

func TestContentAcceptsStringAndParts(t *testing.T) {
	var req openai.ChatCompletionRequest
	body := `{"model":"gpt-4","messages":[
		{"role":"system","content":"be brief"},
		{"role":"user","content":[{"type":"text","text":"hello "},{"type":"image_url","image_url":{"url":"x"}},{"type":"text","text":"there"}]}
	]}`
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := string(req.Messages[0].Content); got != "be brief" {
		t.Fatalf("system content = %q", got)
	}
	if got := string(req.Messages[1].Content); got != "hello there" {
		t.Fatalf("user content = %q", got)
	}

	msgs := req.ChatMessages()
	if len(msgs) != 2 || msgs[1].Role != "user" || msgs[1].Content != "hello there" {
		t.Fatalf("chat messages = %+v", msgs)
	}
}

func TestContentRejectsOtherShapes(t *testing.T) {
	var req openai.ChatCompletionRequest
	err := json.Unmarshal([]byte(`{"model":"m","messages":[{"role":"user","content":42}]}`), &req)
	if err == nil {
		t.Fatalf("numeric content should fail")
	}
}

func TestRequiresJSONAndHint(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantJSON bool
		wantHint bool
	}{
		{name: "none", body: `{}`},
		{name: "text", body: `{"response_format":{"type":"text"}}`},
		{name: "json object", body: `{"response_format":{"type":"json_object"}}`, wantJSON: true},
		{
			name:     "json schema",
			body:     `{"response_format":{"type":"json_schema","json_schema":{"name":"x","schema":{"type":"object"}}}}`,
			wantJSON: true,
			wantHint: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req openai.ChatCompletionRequest
			if err := json.Unmarshal([]byte(tt.body), &req); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got := req.RequiresJSON(); got != tt.wantJSON {
				t.Fatalf("RequiresJSON = %v, want %v", got, tt.wantJSON)
			}
			if got := req.StructureHint() != nil; got != tt.wantHint {
				t.Fatalf("hint present = %v, want %v", got, tt.wantHint)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantParam string
	}{
		{name: "ok", body: `{"model":"gpt-4","messages":[{"role":"user","content":"hi"}]}`},
		{name: "missing model", body: `{"messages":[{"role":"user","content":"hi"}]}`, wantParam: "model"},
		{name: "no messages", body: `{"model":"gpt-4","messages":[]}`, wantParam: "messages"},
		{name: "bad role", body: `{"model":"gpt-4","messages":[{"role":"tool","content":"hi"}]}`, wantParam: "messages[0].role"},
		{name: "n", body: `{"model":"gpt-4","n":2,"messages":[{"role":"user","content":"hi"}]}`, wantParam: "n"},
		{name: "stream", body: `{"model":"gpt-4","stream":true,"messages":[{"role":"user","content":"hi"}]}`, wantParam: "stream"},
		{name: "temperature", body: `{"model":"gpt-4","temperature":2.5,"messages":[{"role":"user","content":"hi"}]}`, wantParam: "temperature"},
		{name: "max tokens", body: `{"model":"gpt-4","max_tokens":0,"messages":[{"role":"user","content":"hi"}]}`, wantParam: "max_tokens"},
		{name: "format", body: `{"model":"gpt-4","response_format":{"type":"yaml"},"messages":[{"role":"user","content":"hi"}]}`, wantParam: "response_format.type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req openai.ChatCompletionRequest
			if err := json.Unmarshal([]byte(tt.body), &req); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			err := req.Validate()
			if tt.wantParam == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var verr *openai.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Param != tt.wantParam {
				t.Fatalf("param = %q, want %q", verr.Param, tt.wantParam)
			}
		})
	}
}

func TestNewChatCompletionResponse(t *testing.T) {
	now := time.Unix(1700000000, 0)
	resp := openai.NewChatCompletionResponse("gpt-4", `{"a":1}`, openai.Usage{TotalTokens: 3}, now)
	if !strings.HasPrefix(resp.ID, "chatcmpl-") || len(resp.ID) != len("chatcmpl-")+36 {
		t.Fatalf("id = %q", resp.ID)
	}
	if resp.Object != "chat.completion" || resp.Created != now.Unix() {
		t.Fatalf("unexpected envelope: %+v", resp)
	}
	if len(resp.Choices) != 1 || resp.Choices[0].Message.Role != "assistant" || resp.Choices[0].FinishReason != "stop" {
		t.Fatalf("unexpected choices: %+v", resp.Choices)
	}

	body, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(body), `"system_fingerprint":null`) {
		t.Fatalf("system_fingerprint should be null: %s", body)
	}
}

func TestEstimateUsage(t *testing.T) {
	msgs := []openai.Message{{Role: "user", Content: "one two three four five six seven eight nine ten"}}
	got := openai.EstimateUsage(msgs, "a b c d e f g h i j")
	if got.PromptTokens != 13 || got.CompletionTokens != 13 || got.TotalTokens != 26 {
		t.Fatalf("usage = %+v", got)
	}
}
