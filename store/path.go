package store

import "github.com/jacentio/yisona/internal/keypath"

// Path builds a key path from keys, coercing numeric keys to their string
// form: Path("users", 7, "name") is "users.7.name". Keys of other types
// become empty segments and are rejected with ErrInvalidPath when used.
func Path(keys ...any) string {
	segs := make([]string, len(keys))
	for i, k := range keys {
		segs[i] = keypath.FromAny(k)
	}
	return keypath.Join(segs...)
}
