package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidateFilePath rejects empty paths, NUL bytes and parent directory
// components. Absolute paths are allowed.
func ValidateFilePath(path string) error {
	if path == "" {
		return fmt.Errorf("file path cannot be empty")
	}
	if strings.ContainsRune(path, '\x00') {
		return fmt.Errorf("file path contains NUL byte")
	}

	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("path contains directory traversal: %s", path)
		}
	}

	return nil
}

// ResolveWithinBase joins a bare file name onto baseDir and ensures the
// result stays inside it.
func ResolveWithinBase(baseDir, name string) (string, error) {
	if name == "" || strings.ContainsAny(name, "/\\\x00") || name == "." || name == ".." {
		return "", fmt.Errorf("invalid file name: %q", name)
	}

	cleanBase := filepath.Clean(baseDir)
	fullPath := filepath.Join(cleanBase, name)

	rel, err := filepath.Rel(cleanBase, fullPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("path escapes base directory: %s", name)
	}

	return fullPath, nil
}
