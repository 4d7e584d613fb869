// Package utils holds small input-validation helpers shared by the HTTP
// layer and the worker.
package utils

import (
	"regexp"
	"strings"
)

var (
	filenameFilter = regexp.MustCompile(`[^a-zA-Z0-9._\s-]`)
	sessionPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,128}$`)
)

// SanitizeFilename cleans a client-supplied filename for safe storage:
// trims spaces and dots, removes parent directory references, filters
// out everything but alphanumerics and safe punctuation, and caps the
// length.
func SanitizeFilename(filename string) string {
	sanitized := strings.Trim(filename, " .")
	sanitized = strings.ReplaceAll(sanitized, "..", "")
	sanitized = filenameFilter.ReplaceAllString(sanitized, "")
	if len(sanitized) > 255 {
		sanitized = sanitized[:255]
	}
	return sanitized
}

// ValidSessionID reports whether a session identifier is safe to use in
// storage keys and file names.
func ValidSessionID(sessionID string) bool {
	return sessionPattern.MatchString(sessionID)
}
