// Package specialist implements the agents behind the roster: intake
// (request classification and logging), planner (day plans), analyst
// (strategic insights), the conversational persona runner, the
// facilitator, and the topic classifiers. Each specialist turns LLM
// output into typed records or prose; none of them writes the store —
// they emit record deltas the orchestrator authorizes and applies.
package specialist

import (
	"encoding/json"
	"fmt"
	"strings"
)

// extractJSON pulls the first JSON value out of an LLM response. Models
// wrap JSON in code fences or lead with prose no matter how firmly the
// prompt forbids it, so this tries a fenced block first, then the first
// balanced object or array in the raw text.
func extractJSON(s string) string {
	if fenced := extractFenced(s); fenced != "" {
		return fenced
	}
	obj := extractBalanced(s, '{', '}')
	arr := extractBalanced(s, '[', ']')
	// Prefer whichever starts first; an object containing arrays should
	// not be mistaken for its first array field.
	objAt := strings.IndexByte(s, '{')
	arrAt := strings.IndexByte(s, '[')
	switch {
	case obj == "":
		return arr
	case arr == "":
		return obj
	case arrAt >= 0 && arrAt < objAt:
		return arr
	default:
		return obj
	}
}

func extractFenced(s string) string {
	start := strings.Index(s, "```json")
	width := len("```json")
	if start == -1 {
		start = strings.Index(s, "```")
		width = len("```")
	}
	if start == -1 {
		return ""
	}
	rest := s[start+width:]
	end := strings.Index(rest, "```")
	if end == -1 {
		return ""
	}
	return strings.TrimSpace(rest[:end])
}

// extractBalanced returns the first balanced opener..closer span, tracking
// string literals so braces inside JSON strings do not confuse the depth
// count.
func extractBalanced(s string, opener, closer byte) string {
	start := strings.IndexByte(s, opener)
	if start == -1 {
		return ""
	}
	depth := 0
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
		case opener:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// decodeResponse extracts and unmarshals the JSON value in an LLM
// response into v.
func decodeResponse(response string, v any) error {
	raw := extractJSON(response)
	if raw == "" {
		return fmt.Errorf("no JSON value in response")
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("decode response JSON: %w", err)
	}
	return nil
}

// truncate shortens s to at most n bytes on a rune boundary, appending an
// ellipsis marker when anything was cut.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && (s[cut]&0xC0) == 0x80 {
		cut--
	}
	return s[:cut] + "..."
}

// zeroTemp is the deterministic sampling setting shared by every
// classification call.
func zeroTemp() *float64 {
	t := 0.0
	return &t
}
