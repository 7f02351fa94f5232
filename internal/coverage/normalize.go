package coverage

import (
	"errors"
	"path"
	"strings"
)

// ErrEmptyPath is returned when a raw path normalizes to nothing.
var ErrEmptyPath = errors.New("path is empty after normalization")

// Markers used by module-transform pipelines to tag ids that do not map to a
// file on disk, or that wrap a real file path.
const (
	nullByte      = "\x00"
	encodedNull   = "__x00__"
	fsPrefix      = "/@fs"
	fileURLPrefix = "file://"
)

// DefaultVirtualPrefixes are the raw path prefixes that denote virtual modules.
var DefaultVirtualPrefixes = []string{"virtual:", "/@id/", "\x00"}

// Normalize turns a raw module id into a canonical on-disk path.
//
// Everything from the first '?' is dropped, null bytes and their encoded
// form are removed, the "/@fs" and "file://" decorations are stripped and
// the result is cleaned. Steps repeat until the path stops changing, so
// Normalize(Normalize(p)) == Normalize(p).
func Normalize(raw string) (string, error) {
	p := raw
	for {
		next := normalizeOnce(p)
		if next == p {
			break
		}
		p = next
	}

	if p == "" || p == "." {
		return "", ErrEmptyPath
	}
	return p, nil
}

func normalizeOnce(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	p = strings.ReplaceAll(p, nullByte, "")
	p = strings.ReplaceAll(p, encodedNull, "")
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.TrimPrefix(p, fileURLPrefix)
	if p == fsPrefix || strings.HasPrefix(p, fsPrefix+"/") {
		p = strings.TrimPrefix(p, fsPrefix)
	}
	if p == "" {
		return p
	}
	return path.Clean(p)
}

// IsVirtual reports whether a raw module id names an in-memory module.
// It must be called on the raw id: normalization strips the markers.
func IsVirtual(raw string, prefixes []string) bool {
	if strings.Contains(raw, nullByte) || strings.Contains(raw, encodedNull) {
		return true
	}
	for _, prefix := range prefixes {
		if prefix != "" && strings.HasPrefix(raw, prefix) {
			return true
		}
	}
	return false
}
