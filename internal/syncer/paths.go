package syncer

import (
	"path"
	"strings"
)

// NormalizeRelPath canonicalizes a producer-supplied relative path. This is a
// security boundary: the result feeds directly into the storage key, so a
// path that still escapes after cleaning is rejected, never clamped.
func NormalizeRelPath(relPath string) (string, error) {
	p := strings.ReplaceAll(relPath, "\\", "/")
	p = path.Clean(p)
	p = strings.TrimPrefix(p, "/")
	if p == "" || p == "." {
		return "", ErrEmptyRelPath
	}
	if p == ".." || strings.HasPrefix(p, "../") {
		return "", ErrPathEscape
	}
	return p, nil
}
