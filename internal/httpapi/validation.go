package httpapi

import (
	"fmt"
	"path/filepath"
	"strings"
)

// sanitizePath validates and normalizes a repository path received over
// HTTP before it ever reaches a Session (§6: "callers normalize before
// invoking the engine"). It rejects directory traversal, absolute paths,
// and embedded null bytes.
func sanitizePath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if strings.Contains(path, "\x00") {
		return "", fmt.Errorf("path contains null byte")
	}
	if filepath.IsAbs(path) {
		return "", fmt.Errorf("absolute paths not allowed")
	}
	if len(path) >= 2 && path[1] == ':' {
		return "", fmt.Errorf("absolute paths not allowed")
	}
	if strings.Contains(path, "..") {
		return "", fmt.Errorf("path contains '..' component")
	}

	normalized := strings.ReplaceAll(path, "\\", "/")
	cleaned := filepath.ToSlash(filepath.Clean(normalized))
	cleaned = strings.TrimPrefix(cleaned, "./")
	if cleaned == "." {
		return "", nil
	}
	if strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("path attempts directory traversal")
	}
	return strings.TrimPrefix(cleaned, "/"), nil
}
