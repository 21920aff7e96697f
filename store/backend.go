package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Backend loads and saves whole documents.
type Backend interface {
	// Load returns the stored document. It returns ErrNoDocument when nothing
	// is stored and ErrMalformed when the stored content cannot be parsed.
	Load(ctx context.Context) (map[string]any, error)

	// Save replaces the stored document.
	Save(ctx context.Context, doc map[string]any) error
}

// FileBackend stores a document as a UTF-8 JSON file.
type FileBackend struct {
	// Path is the backing file.
	Path string

	// Indent is the per-level indentation. Empty writes compact JSON.
	Indent string
}

// NewFileBackend returns a FileBackend for path using DefaultIndent.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{Path: path, Indent: DefaultIndent}
}

// Load reads and parses the file.
func (b *FileBackend) Load(ctx context.Context) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(b.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoDocument
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", b.Path, err)
	}
	return decodeDocument(data)
}

// Save writes the whole document, creating parent directories as needed.
func (b *FileBackend) Save(ctx context.Context, doc map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encodeDocument(doc, b.Indent)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(b.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	if err := os.WriteFile(b.Path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", b.Path, err)
	}
	return nil
}

// decodeDocument parses a JSON document whose root must be a mapping.
// Numbers decode as json.Number so integers survive a load/save cycle.
func decodeDocument(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var root any
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after document", ErrMalformed)
	}
	doc, ok := root.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: root is a %s, not a mapping", ErrMalformed, KindOf(root))
	}
	return doc, nil
}

// encodeDocument serializes doc without escaping HTML or non-ASCII characters.
func encodeDocument(doc map[string]any, indent string) ([]byte, error) {
	if doc == nil {
		doc = map[string]any{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent != "" {
		enc.SetIndent("", indent)
	}
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return buf.Bytes(), nil
}
