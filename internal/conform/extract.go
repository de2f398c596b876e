package conform

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"
)

var fenceBlock = regexp.MustCompile("(?s)```(.*?)```")

type fence struct {
	lang string
	body string
}

// extractFenced tries ```json blocks first and then every fenced block, each
// in order of appearance.
func extractFenced(text string) (string, bool) {
	if !strings.Contains(text, "```") {
		return "", false
	}

	blocks := splitFences(text)
	for _, b := range blocks {
		if !strings.EqualFold(b.lang, "json") {
			continue
		}
		if candidate := strings.TrimSpace(b.body); json.Valid([]byte(candidate)) {
			return candidate, true
		}
	}
	for _, b := range blocks {
		if strings.EqualFold(b.lang, "json") {
			continue
		}
		if candidate := strings.TrimSpace(b.body); json.Valid([]byte(candidate)) {
			return candidate, true
		}
	}
	return "", false
}

func splitFences(text string) []fence {
	matches := fenceBlock.FindAllStringSubmatch(text, -1)
	out := make([]fence, 0, len(matches))
	for _, m := range matches {
		out = append(out, parseFence(m[1]))
	}
	return out
}

// parseFence separates the info string from the block body. A block written
// on one line (```json {"a":1}```) still counts as tagged.
func parseFence(inner string) fence {
	if i := strings.IndexByte(inner, '\n'); i >= 0 {
		info := strings.TrimSpace(inner[:i])
		if isInfoString(info) {
			return fence{lang: info, body: inner[i+1:]}
		}
		return fence{body: inner}
	}

	if len(inner) > 4 && strings.EqualFold(inner[:4], "json") {
		switch inner[4] {
		case ' ', '\t', '\r', '{', '[':
			return fence{lang: "json", body: inner[4:]}
		}
	}
	return fence{body: inner}
}

func isInfoString(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '+', c == '.':
		default:
			return false
		}
	}
	return true
}

type span struct {
	start int
	end   int
}

// extractScanned tries outermost balanced {...} spans, then outermost
// balanced [...] spans, in order of appearance. Each delimiter pair is
// scanned string-aware first and then by depth alone, so a stray quote in
// prose cannot hide later candidates.
func extractScanned(text string) (string, bool) {
	for _, delims := range [][2]byte{{'{', '}'}, {'[', ']'}} {
		tried := make(map[span]bool)
		for _, trackStrings := range []bool{true, false} {
			for _, s := range balancedSpans(text, delims[0], delims[1], trackStrings) {
				if tried[s] {
					continue
				}
				tried[s] = true
				candidate := text[s.start:s.end]
				if json.Valid([]byte(candidate)) {
					return candidate, true
				}
			}
		}
	}
	return "", false
}

// balancedSpans finds the outermost balanced open/close spans in one pass
// with an explicit stack. With trackStrings set, double-quoted string
// literals inside a span are skipped (including backslash escapes) so
// delimiters inside strings do not change the depth. Quotes outside any span
// are prose and ignored.
func balancedSpans(text string, open, close byte, trackStrings bool) []span {
	var (
		stack    []int
		spans    []span
		inString bool
		escaped  bool
	)
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			if trackStrings && len(stack) > 0 {
				inString = true
			}
		case open:
			stack = append(stack, i)
		case close:
			if len(stack) == 0 {
				continue
			}
			start := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			spans = append(spans, span{start: start, end: i + 1})
		}
	}
	return outermost(spans)
}

func outermost(spans []span) []span {
	if len(spans) < 2 {
		return spans
	}
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end > spans[j].end
	})

	out := spans[:0]
	lastEnd := -1
	for _, s := range spans {
		if s.start < lastEnd {
			continue
		}
		out = append(out, s)
		lastEnd = s.end
	}
	return out
}
