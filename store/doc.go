// Package store provides dot-path access to JSON documents.
//
// A document is a tree whose root is a mapping. Keys are addressed with
// dot-separated key paths such as "user.address.city". The document is
// loaded once when the [Store] is opened, held in memory, and written back
// to its [Backend] after every mutation.
//
// # Backends
//
//   - [FileBackend] - a UTF-8 JSON file, pretty-printed on every write
//   - [DynamoBackend] - one DynamoDB item per document
//
// # Operations
//
//	s, err := store.OpenFile(ctx, "data/settings.json", store.DefaultConfig())
//	err = s.Set(ctx, "en.messages.hello", "Hello")
//	v, err := s.Get(ctx, "en.messages.hello")
//	n, err := s.GetNumber(ctx, "limits.retries")
//	existed, err := s.CreateOrGet(ctx, "limits.retries", 3)
//	err = s.Delete(ctx, "en.messages.hello")
//
// Writes replace any missing or non-mapping intermediate with an empty
// mapping, so Set("a.b.c", 2) on {"a": {"b": 1}} yields {"a": {"b": {"c": 2}}}.
// Reads and deletes never create anything.
//
// # Loading
//
// A missing document opens as an empty one. With [Config].CreateMissing the
// empty document is persisted immediately. A malformed document also opens
// as empty and a warning is logged.
//
// # Errors
//
//   - [ErrNotFound] - key path does not resolve
//   - [ErrNotNumeric] - value cannot be read as a number
//   - [ErrInvalidPath] - empty key path or empty segment ("a..b", ".a", "a.")
//   - [ErrNoDocument] - backend has no document (handled by Open)
//   - [ErrMalformed] - backend content cannot be parsed (handled by Open)
package store
