package apierrors

import (
	"encoding/json"
	"net/http"
	"strings"
)

const (
	TypeInvalidRequest = "invalid_request_error"
	TypeAuthentication = "authentication_error"
	TypeNotFound       = "not_found_error"
	TypeInternal       = "internal_error"
	TypeBackend        = "backend_error"
	TypeTimeout        = "timeout_error"
)

type Envelope struct {
	Error Inner `json:"error"`
}

type Inner struct {
	Message string  `json:"message"`
	Type    string  `json:"type"`
	Param   *string `json:"param"`
	Code    *string `json:"code"`
}

// Error is a client-facing failure with its HTTP status.
type Error struct {
	Status  int
	Type    string
	Message string
	Param   string
	Code    string
}

func (e *Error) Error() string {
	return e.Message
}

func Marshal(errorType, message, param, code string) []byte {
	if strings.TrimSpace(message) == "" {
		message = "request failed"
	}
	payload := Envelope{
		Error: Inner{
			Message: message,
			Type:    errorType,
			Param:   optional(param),
			Code:    optional(code),
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return []byte(`{"error":{"message":"failed to marshal error","type":"internal_error","param":null,"code":null}}`)
	}
	return body
}

func Write(w http.ResponseWriter, statusCode int, errorType, message, param, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(Marshal(errorType, message, param, code))
}

func WriteError(w http.ResponseWriter, e *Error) {
	Write(w, e.Status, e.Type, e.Message, e.Param, e.Code)
}

func optional(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
