// Package keypath parses dot-separated key paths such as "user.address.city".
package keypath

import (
	"errors"
	"strconv"
	"strings"
)

// Separator splits key path segments.
const Separator = "."

// ErrInvalid is returned for an empty path or a path with an empty segment
// (leading, trailing, or doubled separator).
var ErrInvalid = errors.New("yisona: invalid key path")

// Split breaks a key path into its segments.
func Split(path string) ([]string, error) {
	if path == "" {
		return nil, ErrInvalid
	}
	segments := strings.Split(path, Separator)
	for _, seg := range segments {
		if seg == "" {
			return nil, ErrInvalid
		}
	}
	return segments, nil
}

// Join joins segments back into a key path.
func Join(segments ...string) string {
	return strings.Join(segments, Separator)
}

// Nest builds the nested mapping addressed by segments, with value at the leaf.
// Nest([]string{"a", "b"}, 1) returns {"a": {"b": 1}}.
func Nest(segments []string, value any) map[string]any {
	if len(segments) == 0 {
		return map[string]any{}
	}
	leaf := map[string]any{segments[len(segments)-1]: value}
	for i := len(segments) - 2; i >= 0; i-- {
		leaf = map[string]any{segments[i]: leaf}
	}
	return leaf
}

// FromAny coerces a key to its string form. Numeric keys are formatted the
// way they would print in JSON, so 7 becomes "7" and 1.5 becomes "1.5".
func FromAny(key any) string {
	switch k := key.(type) {
	case string:
		return k
	case int:
		return strconv.Itoa(k)
	case int32:
		return strconv.FormatInt(int64(k), 10)
	case int64:
		return strconv.FormatInt(k, 10)
	case uint:
		return strconv.FormatUint(uint64(k), 10)
	case uint64:
		return strconv.FormatUint(k, 10)
	case float32:
		return strconv.FormatFloat(float64(k), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(k, 'g', -1, 64)
	case interface{ String() string }:
		return k.String()
	default:
		return ""
	}
}
