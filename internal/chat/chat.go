// Package chat reduces an ordered list of role-tagged messages into the
// single-turn instruction sent to a backend.
//
// Only the last user message is used. Earlier user turns and assistant
// turns are dropped, so callers that need conversation history must merge
// it into the content of their final user message.
package chat

import (
	"strings"

	"completions-gateway/internal/conform"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

type Message struct {
	Role    Role
	Content string
}

// Instruction is what a backend receives for one request. An empty System
// means no system directive.
type Instruction struct {
	System       string
	User         string
	RequiresJSON bool
}

// MissingUserMessageError reports a request without any user message. It is
// a client error.
type MissingUserMessageError struct{}

func (e *MissingUserMessageError) Error() string {
	return "no user message found in request"
}

// ExtractSystemDirective joins all system messages with newlines, in order.
func ExtractSystemDirective(messages []Message) string {
	var parts []string
	for _, m := range messages {
		if m.Role == RoleSystem {
			parts = append(parts, m.Content)
		}
	}
	return strings.Join(parts, "\n")
}

// ExtractUserInstruction returns the content of the last user message.
func ExtractUserInstruction(messages []Message) (string, error) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return messages[i].Content, nil
		}
	}
	return "", &MissingUserMessageError{}
}

// BuildInstruction combines the system directive and the last user message.
// When requiresJSON is set, the JSON directive (with the optional structure
// hint) is appended to the system directive.
func BuildInstruction(messages []Message, requiresJSON bool, hint any) (Instruction, error) {
	user, err := ExtractUserInstruction(messages)
	if err != nil {
		return Instruction{}, err
	}

	system := ExtractSystemDirective(messages)
	if requiresJSON {
		directive := conform.BuildJSONDirective(hint)
		if system != "" {
			system += "\n" + directive
		} else {
			system = directive
		}
	}

	return Instruction{
		System:       system,
		User:         user,
		RequiresJSON: requiresJSON,
	}, nil
}
