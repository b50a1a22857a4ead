package model

import (
	"strings"

	"github.com/ossyrian/dzip/internal/dz"
)

// SanitizePath normalizes an archive-supplied path to a forward-slash
// logical path and rejects anything that could escape the extraction root:
// parent references, absolute anchors, drive letters, and embedded NUL
// bytes. The empty string is a valid result and names the root directory.
func SanitizePath(p string) (string, error) {
	if strings.ContainsRune(p, 0) {
		return "", &dz.PathTraversalError{Path: p}
	}

	normalized := strings.ReplaceAll(p, "\\", "/")
	if strings.HasPrefix(normalized, "/") {
		return "", &dz.PathTraversalError{Path: p}
	}
	if len(normalized) >= 2 && normalized[1] == ':' && isDriveLetter(normalized[0]) {
		return "", &dz.PathTraversalError{Path: p}
	}

	parts := strings.Split(normalized, "/")
	cleaned := make([]string, 0, len(parts))
	for _, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			return "", &dz.PathTraversalError{Path: p}
		default:
			cleaned = append(cleaned, part)
		}
	}
	return strings.Join(cleaned, "/"), nil
}

// JoinLogical joins a sanitized directory and file name into one logical
// path.
func JoinLogical(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

func isDriveLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
