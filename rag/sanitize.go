package rag

import (
	"regexp"
	"strings"
)

const fence = "```"

// Sanitizer cleans raw LLM output into query text.
type Sanitizer interface {
	Sanitize(raw string) string
}

// SanitizerFunc is a function adapter for Sanitizer
type SanitizerFunc func(raw string) string

// Sanitize implements the Sanitizer interface
func (f SanitizerFunc) Sanitize(raw string) string {
	return f(raw)
}

// FenceSanitizer removes Markdown code fences. When the trimmed text starts with a fence,
// every line that is a fence marker (such as ```cypher or ```) is dropped. Other text is only
// trimmed.
type FenceSanitizer struct{}

// Sanitize implements the Sanitizer interface
func (FenceSanitizer) Sanitize(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, fence) {
		return text
	}

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), fence) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

var cypherStart = regexp.MustCompile(`(?i)^(//[^\n]*\n\s*)*(MATCH|OPTIONAL\s+MATCH|CREATE|MERGE|UNWIND|CALL|WITH|RETURN|USE|EXPLAIN|PROFILE|FOREACH|LOAD\s+CSV|SHOW)\b`)

// LooksLikeCypher reports whether text starts with a Cypher clause keyword, allowing leading
// line comments.
func LooksLikeCypher(text string) bool {
	return cypherStart.MatchString(strings.TrimSpace(text))
}
