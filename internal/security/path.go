package security

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	leadingPath    = regexp.MustCompile(`.*[/\\]`)
	unsafeFileRune = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
)

// ValidateFilePath rejects empty paths and paths that climb out with ".."
func ValidateFilePath(path string) error {
	if path == "" {
		return fmt.Errorf("file path cannot be empty")
	}

	cleanPath := filepath.Clean(path)
	for _, part := range strings.Split(filepath.ToSlash(cleanPath), "/") {
		if part == ".." {
			return fmt.Errorf("path contains directory traversal: %s", path)
		}
	}
	return nil
}

// ValidateFilePathWithBase checks that path, joined to baseDir, stays inside baseDir
func ValidateFilePathWithBase(path, baseDir string) error {
	if err := ValidateFilePath(path); err != nil {
		return err
	}
	if filepath.IsAbs(path) {
		return fmt.Errorf("absolute paths not allowed: %s", path)
	}

	cleanBase := filepath.Clean(baseDir)
	cleanPath := filepath.Clean(filepath.Join(cleanBase, path))
	rel, err := filepath.Rel(cleanBase, cleanPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path escapes base directory: %s", path)
	}
	return nil
}

// SanitizeFilename reduces a client supplied name to a bare ".json" file name.
// Directory components and characters outside [A-Za-z0-9._-] are dropped.
// It returns "" when nothing usable remains.
func SanitizeFilename(name string) string {
	base := unsafeFileRune.ReplaceAllString(leadingPath.ReplaceAllString(name, ""), "")
	if strings.Trim(base, ".") == "" {
		return ""
	}
	if !strings.HasSuffix(base, ".json") {
		base += ".json"
	}
	return base
}
