package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Kind classifies a document node.
type Kind int

const (
	// KindNull is a JSON null (a nil value).
	KindNull Kind = iota

	// KindMapping is a map[string]any. The document root is always a mapping.
	KindMapping

	// KindSequence is a []any.
	KindSequence

	// KindScalar is a string, number, or bool.
	KindScalar
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindMapping:
		return "mapping"
	case KindSequence:
		return "sequence"
	default:
		return "scalar"
	}
}

// KindOf reports the kind of a document node.
func KindOf(v any) Kind {
	switch v.(type) {
	case nil:
		return KindNull
	case map[string]any:
		return KindMapping
	case []any:
		return KindSequence
	default:
		return KindScalar
	}
}

// ToNumber converts a stored value to a float64.
// Numbers are returned unchanged; strings are parsed. Everything else,
// including bools, fails with ErrNotNumeric.
func ToNumber(v any) (float64, error) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrNotNumeric, n.String())
		}
		return f, nil
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int8:
		return float64(n), nil
	case int16:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint:
		return float64(n), nil
	case uint8:
		return float64(n), nil
	case uint16:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrNotNumeric, n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrNotNumeric, KindOf(v))
	}
}

// Clone returns a deep copy of a document value. Mappings and sequences
// are copied; scalars are shared.
func Clone(v any) any {
	return deepCopy(v)
}

// normalize converts v into document form by encoding it and decoding it
// back: mappings become map[string]any, sequences []any, and numbers
// json.Number. Values that cannot be encoded, such as NaN, are rejected.
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	return out, nil
}

// deepCopy copies mappings and sequences; scalars are shared.
func deepCopy(v any) any {
	switch n := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(n))
		for k, child := range n {
			out[k] = deepCopy(child)
		}
		return out
	case []any:
		out := make([]any, len(n))
		for i, child := range n {
			out[i] = deepCopy(child)
		}
		return out
	default:
		return v
	}
}
