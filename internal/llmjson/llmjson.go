// Package llmjson decodes JSON objects out of free-form model output.
package llmjson

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrNoObject = errors.New("no json object in response")

// Decode strips markdown code fences and any prose around the outermost
// JSON object in raw, then unmarshals it into v.
func Decode(raw string, v any) error {
	s := strings.TrimSpace(raw)
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
		s = strings.TrimPrefix(s, "json")
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return ErrNoObject
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), v); err != nil {
		return fmt.Errorf("decode model json: %w", err)
	}
	return nil
}

// Truncate returns at most n runes of s.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
