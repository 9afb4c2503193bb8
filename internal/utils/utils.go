// Package utils provides utility functions for filename handling and UUID generation.
//
// Functions:
//   - SanitizeFilename: Returns a safe filename for headers and manifests.
//     Input: string (filename)
//     Output: string (sanitized filename)
//   - ProtectedFilename: Returns the download name for a watermarked document.
//   - GenerateUUID: Returns a new UUID string.
//     Output: string (UUID)
//
// Used throughout the backend for safe file handling and unique IDs.
package utils

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

func SanitizeFilename(name string) string {
	base := filepath.Base(name)
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	safe := unsafeChars.ReplaceAllString(base, "_")
	if len(safe) > 100 {
		safe = safe[:100]
	}
	return safe
}

// ProtectedFilename turns "report.pdf" into "report-protected.pdf".
// An empty name falls back to "document".
func ProtectedFilename(name string) string {
	safe := SanitizeFilename(name)
	base := strings.TrimSuffix(safe, filepath.Ext(safe))
	if base == "" {
		base = "document"
	}
	return base + "-protected.pdf"
}

func GenerateUUID() string {
	return uuid.New().String()
}
