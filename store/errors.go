package store

import (
	"errors"

	"github.com/jacentio/yisona/internal/keypath"
)

var (
	// ErrNotFound is returned when a key path does not resolve to a value.
	ErrNotFound = errors.New("yisona: key not found")

	// ErrNotNumeric is returned when a value cannot be read as a number.
	ErrNotNumeric = errors.New("yisona: value is not numeric")

	// ErrNoDocument is returned by a Backend when the backing document does not exist.
	ErrNoDocument = errors.New("yisona: document not found")

	// ErrMalformed is returned by a Backend when the backing document cannot be parsed
	// or its root is not a mapping.
	ErrMalformed = errors.New("yisona: malformed document")

	// ErrInvalidPath is returned for an empty key path or one with an empty segment.
	ErrInvalidPath = keypath.ErrInvalid
)
