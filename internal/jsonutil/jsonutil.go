// Package jsonutil decodes JSON from sources that are almost, but not
// quite, strict JSON, chiefly LLM output that wraps the object in a
// markdown code fence or leading prose.
package jsonutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrEmptyInput = errors.New("jsonutil: empty input")

// DecodeWithFallback unmarshals raw into out. It first tries the input
// verbatim, then with markdown code fences stripped, then the first
// top-level JSON object found in the text.
func DecodeWithFallback(raw string, out any) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ErrEmptyInput
	}
	if err := json.Unmarshal([]byte(raw), out); err == nil {
		return nil
	}
	if stripped := stripCodeFence(raw); stripped != "" {
		if err := json.Unmarshal([]byte(stripped), out); err == nil {
			return nil
		}
	}
	if obj := firstJSONObject(raw); obj != "" {
		if err := json.Unmarshal([]byte(obj), out); err == nil {
			return nil
		}
	}
	return fmt.Errorf("jsonutil: input is not valid json")
}

func stripCodeFence(raw string) string {
	if !strings.HasPrefix(raw, "```") {
		return ""
	}
	rest := strings.TrimPrefix(raw, "```")
	if idx := strings.Index(rest, "\n"); idx >= 0 {
		rest = rest[idx+1:]
	}
	end := strings.LastIndex(rest, "```")
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(rest[:end])
}

// firstJSONObject returns the first balanced {...} span, respecting
// string literals and escapes so braces inside values don't confuse it.
func firstJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		ch := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return raw[start : i+1]
			}
		}
	}
	return ""
}
