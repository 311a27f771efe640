package storage

import (
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// BuildKey returns a collision-free object key under prefix that keeps a
// readable form of the original file name.
func BuildKey(prefix, name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	base := SanitizeName(strings.TrimSuffix(name, filepath.Ext(name)))
	if base == "" {
		base = "file"
	}

	key := uuid.NewString() + "-" + base + ext
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}

// SanitizeName replaces everything except ASCII letters, digits, dot,
// underscore and dash with a dash.
func SanitizeName(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '_', r == '-':
			return r
		default:
			return '-'
		}
	}, strings.TrimSpace(name))

	return strings.Trim(cleaned, "-.")
}
