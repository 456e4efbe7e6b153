package files

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ValidatePath resolves path against root and returns the absolute result.
// The result must be root itself or lie beneath it; anything else,
// including ".." escapes, yields ErrOutsideRoot. Absolute inputs are
// treated as relative to root.
func ValidatePath(path, root string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolving root: %w", err)
	}

	resolved, err := filepath.Abs(filepath.Join(absRoot, path))
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}

	if !within(resolved, absRoot) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	return resolved, nil
}

func within(path, root string) bool {
	if path == root {
		return true
	}
	prefix := root
	if !strings.HasSuffix(prefix, string(os.PathSeparator)) {
		prefix += string(os.PathSeparator)
	}
	return strings.HasPrefix(path, prefix)
}
