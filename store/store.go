package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jacentio/yisona/internal/keypath"
)

// Store provides dot-path access to a document held in memory and persisted
// to a Backend after every mutation.
type Store struct {
	mu      sync.RWMutex
	backend Backend
	config  Config
	logger  *slog.Logger
	data    map[string]any
}

// Open creates a Store and loads its document from backend.
// A missing document yields an empty one. A malformed document also yields
// an empty one and is logged. Any other load failure is returned.
func Open(ctx context.Context, backend Backend, config Config) (*Store, error) {
	config.validate()
	s := &Store{
		backend: backend,
		config:  config,
		logger:  config.Logger,
	}
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenFile opens a Store backed by the JSON file at path.
func OpenFile(ctx context.Context, path string, config Config) (*Store, error) {
	config.validate()
	return Open(ctx, &FileBackend{Path: path, Indent: config.Indent}, config)
}

// Reload re-reads the document from the backend, discarding in-memory state.
func (s *Store) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// load must be called with mu held for writing (or before s is shared).
func (s *Store) load(ctx context.Context) error {
	doc, err := s.backend.Load(ctx)
	switch {
	case err == nil:
		if doc == nil {
			doc = map[string]any{}
		}
		s.data = doc
	case errors.Is(err, ErrNoDocument):
		s.logger.Info("document not found, starting empty")
		s.data = map[string]any{}
		if s.config.CreateMissing {
			if err := s.backend.Save(ctx, s.data); err != nil {
				return fmt.Errorf("create empty document: %w", err)
			}
		}
	case errors.Is(err, ErrMalformed):
		s.logger.Warn("document is malformed, starting empty", "error", err)
		s.data = map[string]any{}
	default:
		return fmt.Errorf("load document: %w", err)
	}
	return nil
}

// Get returns the value at path. Intermediate segments must resolve to
// mappings; otherwise, or when a segment is missing, ErrNotFound is returned.
// A present terminal value is returned as stored, including nil.
func (s *Store) Get(ctx context.Context, path string) (any, error) {
	segs, err := keypath.Split(path)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	parent, ok := lookupParent(s.data, segs)
	if !ok {
		return nil, ErrNotFound
	}
	value, ok := parent[segs[len(segs)-1]]
	if !ok {
		return nil, ErrNotFound
	}
	return value, nil
}

// GetNumber returns the value at path as a float64. See ToNumber.
func (s *Store) GetNumber(ctx context.Context, path string) (float64, error) {
	value, err := s.Get(ctx, path)
	if err != nil {
		return 0, err
	}
	return ToNumber(value)
}

// Set assigns value at path and persists the document. Missing or
// non-mapping intermediates are replaced by empty mappings. The value is
// stored in document form, as it would read back after a reload: numbers
// become json.Number and structs or typed maps become map[string]any.
// A value that cannot be encoded is rejected without changing the document.
//
// If persisting fails the in-memory change is kept and the error returned.
func (s *Store) Set(ctx context.Context, path string, value any) error {
	segs, err := keypath.Split(path)
	if err != nil {
		return err
	}
	value, err = normalize(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	parent := ensureParent(s.data, segs)
	parent[segs[len(segs)-1]] = value
	return s.persist(ctx, "set", path)
}

// Create assigns value at path like Set, and reports whether an existing
// value was overwritten.
func (s *Store) Create(ctx context.Context, path string, value any) (overwrote bool, err error) {
	segs, err := keypath.Split(path)
	if err != nil {
		return false, err
	}
	if value, err = normalize(value); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	parent := ensureParent(s.data, segs)
	leaf := segs[len(segs)-1]
	if _, overwrote = parent[leaf]; overwrote {
		s.logger.Warn("key already exists and will be overwritten", "path", path)
	}
	parent[leaf] = value
	return overwrote, s.persist(ctx, "create", path)
}

// CreateOrGet assigns def at path only when the terminal key is absent.
// It returns true when the key already existed, in which case nothing is
// modified or persisted. Intermediates are created as in Set either way.
func (s *Store) CreateOrGet(ctx context.Context, path string, def any) (existed bool, err error) {
	segs, err := keypath.Split(path)
	if err != nil {
		return false, err
	}
	if def, err = normalize(def); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	parent := ensureParent(s.data, segs)
	leaf := segs[len(segs)-1]
	if _, ok := parent[leaf]; ok {
		return true, nil
	}
	parent[leaf] = def
	return false, s.persist(ctx, "create-or-get", path)
}

// Delete removes the value at path and persists the document.
// It never creates intermediates; ErrNotFound is returned without mutation
// when any part of path is missing.
func (s *Store) Delete(ctx context.Context, path string) error {
	segs, err := keypath.Split(path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	parent, ok := lookupParent(s.data, segs)
	if !ok {
		return ErrNotFound
	}
	leaf := segs[len(segs)-1]
	if _, ok := parent[leaf]; !ok {
		return ErrNotFound
	}
	delete(parent, leaf)
	return s.persist(ctx, "delete", path)
}

// Replace swaps in doc as the whole document and persists it.
// A nil doc is treated as empty. Like Set, the document is stored in
// document form and rejected unchanged if it cannot be encoded.
func (s *Store) Replace(ctx context.Context, doc map[string]any) error {
	if doc == nil {
		doc = map[string]any{}
	}
	normal, err := normalize(doc)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = normal.(map[string]any)
	return s.persist(ctx, "replace", "")
}

// Snapshot returns a deep copy of the current document.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return deepCopy(s.data).(map[string]any)
}

// persist must be called with mu held.
func (s *Store) persist(ctx context.Context, op, path string) error {
	if err := s.backend.Save(ctx, s.data); err != nil {
		s.logger.Error("failed to persist document",
			"op", op,
			"path", path,
			"error", err,
		)
		return fmt.Errorf("persist document: %w", err)
	}
	s.logger.Debug("document persisted", "op", op, "path", path)
	return nil
}

// lookupParent walks existing mappings down to the parent of the last segment.
func lookupParent(root map[string]any, segs []string) (map[string]any, bool) {
	node := root
	for _, seg := range segs[:len(segs)-1] {
		switch child := node[seg].(type) {
		case map[string]any:
			node = child
		default:
			return nil, false
		}
	}
	return node, true
}

// ensureParent walks down to the parent of the last segment, replacing
// missing or non-mapping intermediates with empty mappings.
func ensureParent(root map[string]any, segs []string) map[string]any {
	node := root
	for _, seg := range segs[:len(segs)-1] {
		switch child := node[seg].(type) {
		case map[string]any:
			node = child
		default:
			fresh := map[string]any{}
			node[seg] = fresh
			node = fresh
		}
	}
	return node
}
