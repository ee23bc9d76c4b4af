// Package pathutil implements PicoFS's virtual path normalization. Every
// other component consumes only normalized paths produced here; none of
// them touch a host filesystem path, so this package intentionally does
// not use path/filepath (which is platform-separator-aware) and instead
// works purely on '/'-delimited virtual segments, the way the teacher's
// pkg/utils/path.go centralizes path safety for its own disk-path use.
package pathutil

import (
	"strings"

	"github.com/picofs/picofs/pkg/errors"
)

// MaxSegmentLength is the longest a single path segment may be.
const MaxSegmentLength = 255

// Normalize canonicalizes a virtual path: splits on '/', drops empty and
// '.' segments, pops one segment on '..' (never rising above root), and
// re-joins with a leading '/'. An empty input normalizes to "/".
//
// Normalize never fails — validation of illegal characters is a separate
// step (Validate) so callers that only need canonical form (e.g. building
// a cache key) don't pay for it.
func Normalize(p string) string {
	segments := strings.Split(p, "/")
	stack := make([]string, 0, len(segments))
	for _, seg := range segments {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		default:
			stack = append(stack, seg)
		}
	}
	if len(stack) == 0 {
		return "/"
	}
	return "/" + strings.Join(stack, "/")
}

// Validate reports whether a path is legal: it must begin with '/' once
// normalized, contain no NUL byte, and no segment may exceed
// MaxSegmentLength bytes.
func Validate(p string) error {
	if strings.IndexByte(p, 0) >= 0 {
		return errors.InvalidPath(p)
	}
	norm := Normalize(p)
	if !strings.HasPrefix(norm, "/") {
		return errors.InvalidPath(p)
	}
	for _, seg := range Split(norm) {
		if len(seg) > MaxSegmentLength {
			return errors.InvalidPath(p)
		}
	}
	return nil
}

// Split returns the normalized path's segments, e.g. "/a/b" -> ["a","b"].
// The root path "/" splits to an empty slice.
func Split(p string) []string {
	norm := Normalize(p)
	if norm == "/" {
		return nil
	}
	return strings.Split(strings.TrimPrefix(norm, "/"), "/")
}

// Join normalizes the '/'-joined concatenation of base and elements.
func Join(base string, elements ...string) string {
	all := append([]string{base}, elements...)
	return Normalize(strings.Join(all, "/"))
}

// Dir returns the normalized parent of p. Dir("/") == "/".
func Dir(p string) string {
	segs := Split(p)
	if len(segs) == 0 {
		return "/"
	}
	return Join("/", segs[:len(segs)-1]...)
}

// Base returns the final segment of p, or "/" for the root.
func Base(p string) string {
	segs := Split(p)
	if len(segs) == 0 {
		return "/"
	}
	return segs[len(segs)-1]
}

// IsRoot reports whether the normalized path is "/".
func IsRoot(p string) bool {
	return Normalize(p) == "/"
}

// HasPrefix reports whether path p lies at or below the directory prefix,
// comparing whole segments (so "/ab" is not considered under "/a").
func HasPrefix(p, prefix string) bool {
	np, nprefix := Normalize(p), Normalize(prefix)
	if nprefix == "/" {
		return true
	}
	return np == nprefix || strings.HasPrefix(np, nprefix+"/")
}
