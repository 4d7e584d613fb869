// Package structure turns extracted artifacts into a structured document
// record: language, semantic summary and cleaned content, with table
// analysis for spreadsheet sources.
package structure

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	pageNoisePattern = regexp.MustCompile(`(?i)page\s+\d+\s+of\s+\d+`)
	excessNewlines   = regexp.MustCompile(`\n{3,}`)
	controlChars     = regexp.MustCompile("[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]")
)

// Preprocess strips pagination noise and control characters and
// collapses runs of blank lines before the text is summarized.
func Preprocess(text string) string {
	text = pageNoisePattern.ReplaceAllString(text, "")
	text = controlChars.ReplaceAllString(text, "")
	text = excessNewlines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// Truncate caps text at max runes-safe bytes, appending an ellipsis when
// anything was cut.
func Truncate(text string, max int) string {
	if max <= 0 || len(text) <= max {
		return text
	}
	cut := text[:max]
	// Back off to a rune boundary.
	for len(cut) > 0 && cut[len(cut)-1] >= 0x80 && cut[len(cut)-1] < 0xC0 {
		cut = cut[:len(cut)-1]
	}
	return cut + "..."
}

// ExtractJSON pulls the first JSON object out of an LLM reply. Models
// wrap JSON in markdown fences or chat padding more often than not.
func ExtractJSON(raw string) (string, bool) {
	s := strings.TrimSpace(raw)

	if idx := strings.Index(s, "```json"); idx >= 0 {
		rest := s[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			s = strings.TrimSpace(rest[:end])
		}
	} else if idx := strings.Index(s, "```"); idx >= 0 {
		rest := s[idx+3:]
		if end := strings.Index(rest, "```"); end >= 0 {
			s = strings.TrimSpace(rest[:end])
		}
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	candidate := s[start : end+1]
	if !json.Valid([]byte(candidate)) {
		return "", false
	}
	return candidate, true
}
