package chat_test

import (
	"errors"
	"strings"
	"testing"

	"completions-gateway/internal/chat"
	"completions-gateway/internal/conform"
)

func TestExtractUserInstructionUsesLastUserTurn(t *testing.T) {
	msgs := []chat.Message{
		{Role: chat.RoleUser, Content: "A"},
		{Role: chat.RoleAssistant, Content: "B"},
		{Role: chat.RoleUser, Content: "C"},
	}
	got, err := chat.ExtractUserInstruction(msgs)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if got != "C" {
		t.Fatalf("user instruction = %q, want C", got)
	}
}

func TestExtractUserInstructionMissing(t *testing.T) {
	_, err := chat.ExtractUserInstruction([]chat.Message{{Role: chat.RoleSystem, Content: "S"}})
	var missing *chat.MissingUserMessageError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingUserMessageError, got %v", err)
	}

	_, err = chat.BuildInstruction(nil, true, nil)
	if !errors.As(err, &missing) {
		t.Fatalf("BuildInstruction on empty input: expected MissingUserMessageError, got %v", err)
	}
}

func TestExtractSystemDirectiveKeepsOrder(t *testing.T) {
	msgs := []chat.Message{
		{Role: chat.RoleSystem, Content: "X"},
		{Role: chat.RoleUser, Content: "U"},
		{Role: chat.RoleSystem, Content: "Y"},
	}
	if got := chat.ExtractSystemDirective(msgs); got != "X\nY" {
		t.Fatalf("system = %q, want %q", got, "X\nY")
	}
	if got := chat.ExtractSystemDirective(msgs[1:2]); got != "" {
		t.Fatalf("system without system messages = %q, want empty", got)
	}
}

func TestBuildInstruction(t *testing.T) {
	directive := conform.BuildJSONDirective(nil)

	tests := []struct {
		name         string
		msgs         []chat.Message
		requiresJSON bool
		wantSystem   string
	}{
		{
			name:       "plain",
			msgs:       []chat.Message{{Role: chat.RoleSystem, Content: "S"}, {Role: chat.RoleUser, Content: "U"}},
			wantSystem: "S",
		},
		{
			name:         "json appended after system",
			msgs:         []chat.Message{{Role: chat.RoleSystem, Content: "S"}, {Role: chat.RoleUser, Content: "U"}},
			requiresJSON: true,
			wantSystem:   "S\n" + directive,
		},
		{
			name:         "json alone",
			msgs:         []chat.Message{{Role: chat.RoleUser, Content: "U"}},
			requiresJSON: true,
			wantSystem:   directive,
		},
		{
			name:       "no system",
			msgs:       []chat.Message{{Role: chat.RoleUser, Content: "U"}},
			wantSystem: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := chat.BuildInstruction(tt.msgs, tt.requiresJSON, nil)
			if err != nil {
				t.Fatalf("build: %v", err)
			}
			if got.System != tt.wantSystem {
				t.Fatalf("system = %q, want %q", got.System, tt.wantSystem)
			}
			if got.User != "U" {
				t.Fatalf("user = %q", got.User)
			}
			if got.RequiresJSON != tt.requiresJSON {
				t.Fatalf("requires_json = %v", got.RequiresJSON)
			}
		})
	}
}

func TestBuildInstructionEmbedsHint(t *testing.T) {
	got, err := chat.BuildInstruction(
		[]chat.Message{{Role: chat.RoleUser, Content: "U"}},
		true,
		map[string]any{"type": "object"},
	)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.Contains(got.System, `"type": "object"`) {
		t.Fatalf("system missing hint: %q", got.System)
	}
}

func TestRoleValid(t *testing.T) {
	for _, r := range []chat.Role{chat.RoleSystem, chat.RoleUser, chat.RoleAssistant} {
		if !r.Valid() {
			t.Fatalf("%q should be valid", r)
		}
	}
	if chat.Role("tool").Valid() {
		t.Fatalf("tool should not be valid")
	}
}
