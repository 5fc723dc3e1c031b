package usecase

import (
	"regexp"
	"strings"
)

// SecretMatch describes one detected secret in an inbound message.
type SecretMatch struct {
	PatternName string
	Action      string // "redact" or "block"
	Start       int
	End         int
}

// secretPattern pairs a detector with its action. Block patterns stop
// the message outright; redact patterns replace the match before the
// text reaches any completion provider or the archive.
type secretPattern struct {
	name   string
	action string
	re     *regexp.Regexp
}

// SecretScanner strips credentials from messages before they leave the
// process. Every inbound message passes through it ahead of routing, so
// a pasted API key never reaches a provider, a session file, or the
// activity archive.
type SecretScanner struct {
	patterns []secretPattern
}

const redactedPlaceholder = "[REDACTED]"

// NewSecretScanner builds a scanner with the built-in pattern set.
func NewSecretScanner() *SecretScanner {
	return &SecretScanner{
		patterns: []secretPattern{
			// Private key blocks are never safe to pass along in any form.
			{"private_key", "block", regexp.MustCompile(`-----BEGIN (?:RSA |EC |OPENSSH |DSA )?PRIVATE KEY-----`)},
			{"openai_key", "redact", regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{20,}\b`)},
			{"aws_access_key", "redact", regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`)},
			{"github_token", "redact", regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,}\b`)},
			{"slack_token", "redact", regexp.MustCompile(`\bxox[baprs]-[A-Za-z0-9-]{10,}\b`)},
			{"bearer_token", "redact", regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+/-]{20,}=*`)},
			{"password_assignment", "redact", regexp.MustCompile(`(?i)\b(?:password|passwd|secret)\s*[:=]\s*\S{6,}`)},
		},
	}
}

// Apply scans text. Blocked is true when a block-action pattern matched;
// cleaned is the text with redact-action matches replaced. Matches are
// reported for logging either way.
func (s *SecretScanner) Apply(text string) (cleaned string, blocked bool, matches []SecretMatch) {
	cleaned = text
	for _, p := range s.patterns {
		locs := p.re.FindAllStringIndex(text, -1)
		for _, loc := range locs {
			matches = append(matches, SecretMatch{
				PatternName: p.name,
				Action:      p.action,
				Start:       loc[0],
				End:         loc[1],
			})
		}
		if len(locs) == 0 {
			continue
		}
		if p.action == "block" {
			blocked = true
			continue
		}
		cleaned = p.re.ReplaceAllString(cleaned, redactedPlaceholder)
	}
	return cleaned, blocked, matches
}

// Redacted reports whether Apply changed the text.
func Redacted(original, cleaned string) bool {
	return strings.Contains(cleaned, redactedPlaceholder) && original != cleaned
}
