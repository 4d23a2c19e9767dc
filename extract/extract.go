package extract

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/randalmurphal/llmkit/parser"
)

var fences = parser.NewParser()

// Extract recovers the first structured value (a JSON object or array)
// embedded in free-form worker output.
//
// The returned value is a map[string]any or a []any. The boolean is false
// when no structured value could be recovered; an empty object is reported
// as map[string]any{} with true, never as absent.
func Extract(text string) (any, bool) {
	span, ok := Span(text)
	if !ok {
		return nil, false
	}
	var v any
	if err := json.Unmarshal(span, &v); err != nil {
		return nil, false
	}
	return v, true
}

// Object returns the extracted value when it is a JSON object.
func Object(text string) (map[string]any, bool) {
	v, ok := Extract(text)
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

// List returns the extracted value when it is a JSON array.
func List(text string) ([]any, bool) {
	v, ok := Extract(text)
	if !ok {
		return nil, false
	}
	l, ok := v.([]any)
	return l, ok
}

// Decode extracts the first structured value and decodes it into T.
// A value that does not fit T (an array for a struct, a string for an int)
// is reported as absent.
func Decode[T any](text string) (T, bool) {
	var out T
	span, ok := Span(text)
	if !ok {
		return out, false
	}
	if err := json.Unmarshal(span, &out); err != nil {
		var zero T
		return zero, false
	}
	return out, true
}

// Span returns the raw JSON text of the first structured value.
//
// Resolution order:
//  1. the whole (trimmed) text, when it is an object or array
//  2. the body of the first fenced code block, when it is an object or array
//  3. the first balanced {...} or [...] span found by scanning the text
//
// Only the first candidate of step 3 is considered. A mismatched or
// unterminated span, or a balanced span that is not valid JSON, is absent.
func Span(text string) (json.RawMessage, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, false
	}

	if raw, ok := structured(trimmed); ok {
		return raw, true
	}

	if body, ok := firstFence(trimmed); ok {
		if raw, ok := structured(strings.TrimSpace(body)); ok {
			return raw, true
		}
	}

	candidate, ok := firstBalanced(trimmed)
	if !ok {
		return nil, false
	}
	return structured(candidate)
}

// structured accepts s only if it is valid JSON whose top level is an
// object or an array.
func structured(s string) (json.RawMessage, bool) {
	if s == "" || (s[0] != '{' && s[0] != '[') {
		return nil, false
	}
	b := []byte(s)
	if !json.Valid(b) {
		return nil, false
	}
	return json.RawMessage(bytes.Clone(b)), true
}

// firstFence returns the body of the first ``` fenced block. A language tag
// on the opening fence line is dropped. An unclosed fence yields false.
func firstFence(s string) (string, bool) {
	blocks := fences.ExtractAllCode(s)
	if len(blocks) == 0 {
		return "", false
	}
	return blocks[0].Content, true
}

// firstBalanced scans for the first '{' or '[' and returns the span up to
// its matching closer, tracking string literals and escapes so brackets
// inside strings are ignored.
func firstBalanced(s string) (string, bool) {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", false
	}

	stack := make([]byte, 0, 8)
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]
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
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return "", false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
