// Package conform turns free-form backend output into valid JSON when a
// caller asked for structured output.
//
// The engine runs a fixed cascade of extraction strategies and returns the
// first candidate that parses. When none does, the original text is wrapped
// in a fallback object, so Ensure never returns malformed JSON.
package conform

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
)

// Name identifies the strategy that produced a payload.
type Name string

const (
	StrategyPassthrough Name = "passthrough"
	StrategyVerbatim    Name = "verbatim"
	StrategyFenced      Name = "fenced"
	StrategyScan        Name = "scan"
	StrategyFallback    Name = "fallback"
)

// Field names of the fallback wrapper. Clients detecting malformed upstream
// output parse these, so they must not change.
const (
	FallbackResponseField = "response"
	FallbackNoteField     = "_note"
	FallbackNote          = "Original response was not valid JSON"
)

// Strategy extracts a JSON candidate from text. It reports false when it
// found nothing that parses.
type Strategy struct {
	Name    Name
	Extract func(text string) (string, bool)
}

// Result is the conformant payload and the strategy that produced it.
type Result struct {
	Payload  string
	Strategy Name
}

// Engine is safe for concurrent use; it holds no per-call state.
type Engine struct {
	logger     *slog.Logger
	strategies []Strategy
}

func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{
		logger: logger,
		strategies: []Strategy{
			{Name: StrategyVerbatim, Extract: extractVerbatim},
			{Name: StrategyFenced, Extract: extractFenced},
			{Name: StrategyScan, Extract: extractScanned},
		},
	}
}

// Conform returns text unchanged when requiresJSON is false and Ensure(text)
// otherwise.
func (e *Engine) Conform(text string, requiresJSON bool) Result {
	if !requiresJSON {
		return Result{Payload: text, Strategy: StrategyPassthrough}
	}
	return e.Ensure(text)
}

// Ensure always returns a payload that parses as JSON.
func (e *Engine) Ensure(text string) Result {
	for _, s := range e.strategies {
		if out, ok := s.Extract(text); ok {
			return Result{Payload: out, Strategy: s.Name}
		}
	}

	e.logger.Warn("could not extract valid JSON from response, wrapping in object", "length", len(text))
	return Result{Payload: Fallback(text), Strategy: StrategyFallback}
}

// Fallback wraps text in {"response": text, "_note": FallbackNote}. Invalid
// UTF-8 sequences in text are replaced with U+FFFD by the encoder.
func Fallback(text string) string {
	payload := struct {
		Response string `json:"response"`
		Note     string `json:"_note"`
	}{
		Response: text,
		Note:     FallbackNote,
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return `{"response":"","_note":"` + FallbackNote + `"}`
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

func extractVerbatim(text string) (string, bool) {
	if json.Valid([]byte(text)) {
		return text, true
	}
	return "", false
}
