package remote_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/jacentio/yisona/remote"
)

const testToken = "secret-token"

// fakeServer is a minimal document API: it stores flat keys per token.
type fakeServer struct {
	mu       sync.Mutex
	docs     map[string]map[string]any
	requests []*http.Request
	bodies   []map[string]any
	respond  func(w http.ResponseWriter, r *http.Request) bool
}

func newFakeServer(t *testing.T) (*fakeServer, *httptest.Server) {
	t.Helper()
	f := &fakeServer{docs: map[string]map[string]any{testToken: {}}}
	srv := httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(srv.Close)
	return f, srv
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeServer) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Clone(context.Background()))

	if f.respond != nil && f.respond(w, r) {
		return
	}
	if r.URL.Path != "/api" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no route"})
		return
	}

	switch r.Method {
	case http.MethodGet:
		doc, ok := f.docs[r.URL.Query().Get("token")]
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
			return
		}
		key := r.URL.Query().Get("key")
		if key == "" {
			writeJSON(w, http.StatusOK, doc)
			return
		}
		if v, ok := doc[key]; ok {
			writeJSON(w, http.StatusOK, map[string]any{key: v})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{})
	case http.MethodPut:
		doc, ok := f.docs[r.Header.Get("X-API-Token")]
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
			return
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad body"})
			return
		}
		f.bodies = append(f.bodies, body)
		flatten("", body, doc)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case http.MethodDelete:
		doc, ok := f.docs[r.URL.Query().Get("token")]
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
			return
		}
		key := r.URL.Query().Get("key")
		if _, ok := doc[key]; !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "key not found"})
			return
		}
		delete(doc, key)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

// flatten stores the leaves of a nested body under dotted keys.
func flatten(prefix string, node map[string]any, into map[string]any) {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if m, ok := v.(map[string]any); ok && len(m) > 0 {
			flatten(key, m, into)
			continue
		}
		into[key] = v
	}
}

func newClient(t *testing.T, baseURL string, cache bool) *remote.Client {
	t.Helper()
	c, err := remote.New(remote.Config{
		BaseURL: baseURL,
		Token:   testToken,
		Cache:   cache,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

// --- Config Tests ---

func TestNew_RequiresTokenAndURL(t *testing.T) {
	if _, err := remote.New(remote.Config{BaseURL: "http://localhost"}); err == nil {
		t.Error("expected error for missing token")
	}
	if _, err := remote.New(remote.Config{Token: "t"}); err == nil {
		t.Error("expected error for missing base URL")
	}
	if _, err := remote.New(remote.Config{Token: "t", BaseURL: "http://localhost/"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

// --- Get Tests ---

func TestGet_FlatKey(t *testing.T) {
	f, srv := newFakeServer(t)
	f.docs[testToken]["x.y"] = 42
	c := newClient(t, srv.URL, false)

	v, err := c.Get(context.Background(), "x.y")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if v != json.Number("42") {
		t.Errorf("expected 42, got %#v", v)
	}

	req := f.requests[0]
	if req.Method != http.MethodGet || req.URL.Path != "/api" {
		t.Errorf("unexpected request %s %s", req.Method, req.URL.Path)
	}
	if req.URL.Query().Get("token") != testToken || req.URL.Query().Get("key") != "x.y" {
		t.Errorf("unexpected query %q", req.URL.RawQuery)
	}
	if _, err := uuid.Parse(req.Header.Get(remote.HeaderRequestID)); err != nil {
		t.Errorf("expected uuid request id, got %q", req.Header.Get(remote.HeaderRequestID))
	}
}

func TestGet_NestedResponseIsNotTraversed(t *testing.T) {
	f, srv := newFakeServer(t)
	f.respond = func(w http.ResponseWriter, r *http.Request) bool {
		writeJSON(w, http.StatusOK, map[string]any{"x": map[string]any{"y": 42}})
		return true
	}
	c := newClient(t, srv.URL, false)

	_, err := c.Get(context.Background(), "x.y")
	if !errors.Is(err, remote.ErrNotFound) {
		t.Errorf("expected ErrNotFound for nested response, got %v", err)
	}
}

func TestGet_WholeDocument(t *testing.T) {
	f, srv := newFakeServer(t)
	f.docs[testToken]["a"] = "b"
	c := newClient(t, srv.URL, false)

	v, err := c.Get(context.Background(), "")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if diff := cmp.Diff(map[string]any{"a": "b"}, v); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if f.requests[0].URL.Query().Has("key") {
		t.Error("expected no key parameter for whole-document read")
	}
}

func TestGet_Missing(t *testing.T) {
	_, srv := newFakeServer(t)
	c := newClient(t, srv.URL, false)

	if _, err := c.Get(context.Background(), "missing"); !errors.Is(err, remote.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGet_APIError(t *testing.T) {
	_, srv := newFakeServer(t)
	c, err := remote.New(remote.Config{
		BaseURL: srv.URL,
		Token:   "wrong",
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	_, err = c.Get(context.Background(), "a")
	var apiErr *remote.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized || apiErr.Message != "invalid token" {
		t.Errorf("unexpected error %+v", apiErr)
	}
}

func TestGet_APIErrorWithoutBody(t *testing.T) {
	f, srv := newFakeServer(t)
	f.respond = func(w http.ResponseWriter, r *http.Request) bool {
		w.WriteHeader(http.StatusInternalServerError)
		return true
	}
	c := newClient(t, srv.URL, false)

	_, err := c.Get(context.Background(), "a")
	var apiErr *remote.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500 APIError, got %v", err)
	}
	if apiErr.Error() != "yisona: remote returned status 500" {
		t.Errorf("unexpected message %q", apiErr.Error())
	}
}

func TestGet_TransportError(t *testing.T) {
	_, srv := newFakeServer(t)
	c := newClient(t, srv.URL, false)
	srv.Close()

	_, err := c.Get(context.Background(), "a")
	if err == nil {
		t.Fatal("expected transport error")
	}
	var apiErr *remote.APIError
	if errors.As(err, &apiErr) {
		t.Errorf("expected transport error, got APIError %v", apiErr)
	}
}

func TestGet_NotFoundStatus(t *testing.T) {
	f, srv := newFakeServer(t)
	f.respond = func(w http.ResponseWriter, r *http.Request) bool {
		if r.Method != http.MethodGet {
			return false
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "key not found"})
		return true
	}
	c := newClient(t, srv.URL, false)

	_, err := c.Get(context.Background(), "a")
	if !errors.Is(err, remote.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	var apiErr *remote.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound || apiErr.Message != "key not found" {
		t.Errorf("expected wrapped 404 APIError, got %v", err)
	}
}

// --- GetNumber Tests ---

func TestGetNumber(t *testing.T) {
	f, srv := newFakeServer(t)
	f.docs[testToken]["n"] = 3
	f.docs[testToken]["s"] = "2.5"
	f.docs[testToken]["word"] = "abc"
	c := newClient(t, srv.URL, false)
	ctx := context.Background()

	if n, err := c.GetNumber(ctx, "n"); err != nil || n != 3 {
		t.Errorf("expected 3, got %v (err %v)", n, err)
	}
	if n, err := c.GetNumber(ctx, "s"); err != nil || n != 2.5 {
		t.Errorf("expected 2.5, got %v (err %v)", n, err)
	}
	if _, err := c.GetNumber(ctx, "word"); err == nil {
		t.Error("expected error for non-numeric value")
	}
	if _, err := c.GetNumber(ctx, "absent"); !errors.Is(err, remote.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// --- Set Tests ---

func TestSet_SendsNestedBody(t *testing.T) {
	f, srv := newFakeServer(t)
	c := newClient(t, srv.URL, false)

	if err := c.Set(context.Background(), "a.b.c", "v"); err != nil {
		t.Fatalf("set: %v", err)
	}

	req := f.requests[0]
	if req.Method != http.MethodPut {
		t.Errorf("expected PUT, got %s", req.Method)
	}
	if req.Header.Get(remote.HeaderToken) != testToken {
		t.Errorf("expected token header, got %q", req.Header.Get(remote.HeaderToken))
	}
	if req.URL.RawQuery != "" {
		t.Errorf("expected no query on write, got %q", req.URL.RawQuery)
	}
	want := map[string]any{"a": map[string]any{"b": map[string]any{"c": "v"}}}
	if diff := cmp.Diff(want, f.bodies[0]); diff != "" {
		t.Errorf("body mismatch (-want +got):\n%s", diff)
	}

	v, err := c.Get(context.Background(), "a.b.c")
	if err != nil || v != "v" {
		t.Errorf("expected round trip 'v', got %v (err %v)", v, err)
	}
}

func TestSet_InvalidPath(t *testing.T) {
	f, srv := newFakeServer(t)
	c := newClient(t, srv.URL, false)

	if err := c.Set(context.Background(), "a..b", 1); err == nil {
		t.Error("expected error for invalid path")
	}
	if len(f.requests) != 0 {
		t.Errorf("expected no requests, got %d", len(f.requests))
	}
}

// --- Delete Tests ---

func TestDelete(t *testing.T) {
	f, srv := newFakeServer(t)
	f.docs[testToken]["a"] = 1
	c := newClient(t, srv.URL, false)

	if err := c.Delete(context.Background(), "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	req := f.requests[0]
	if req.Method != http.MethodDelete || req.URL.Query().Get("key") != "a" || req.URL.Query().Get("token") != testToken {
		t.Errorf("unexpected request %s %s", req.Method, req.URL.RawQuery)
	}

	err := c.Delete(context.Background(), "a")
	var apiErr *remote.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 APIError, got %v", err)
	}
}

// --- CreateOrGet Tests ---

func TestCreateOrGet(t *testing.T) {
	f, srv := newFakeServer(t)
	c := newClient(t, srv.URL, false)
	ctx := context.Background()

	existed, err := c.CreateOrGet(ctx, "limits.retries", 3)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	if existed {
		t.Error("expected first call to report absence")
	}
	if f.docs[testToken]["limits.retries"] != float64(3) {
		t.Errorf("expected default to be written, got %#v", f.docs[testToken]["limits.retries"])
	}

	existed, err = c.CreateOrGet(ctx, "limits.retries", 9)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if !existed {
		t.Error("expected second call to report existence")
	}
	if f.docs[testToken]["limits.retries"] != float64(3) {
		t.Errorf("expected value unchanged, got %#v", f.docs[testToken]["limits.retries"])
	}
}

func TestCreateOrGet_NullTreatedAsAbsent(t *testing.T) {
	f, srv := newFakeServer(t)
	f.docs[testToken]["a"] = nil
	c := newClient(t, srv.URL, false)

	existed, err := c.CreateOrGet(context.Background(), "a", "default")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if existed {
		t.Error("expected null value to be treated as absent")
	}
	if f.docs[testToken]["a"] != "default" {
		t.Errorf("expected default to be written, got %#v", f.docs[testToken]["a"])
	}
}

func TestCreateOrGet_NotFoundStatusWritesDefault(t *testing.T) {
	f, srv := newFakeServer(t)
	f.respond = func(w http.ResponseWriter, r *http.Request) bool {
		if r.Method != http.MethodGet {
			return false
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "key not found"})
		return true
	}
	c := newClient(t, srv.URL, false)

	existed, err := c.CreateOrGet(context.Background(), "limits.retries", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if existed {
		t.Error("expected 404 to be treated as absent")
	}
	if len(f.requests) != 2 || f.requests[1].Method != http.MethodPut {
		t.Fatalf("expected one GET then one PUT, got %d requests", len(f.requests))
	}
	if f.docs[testToken]["limits.retries"] != float64(3) {
		t.Errorf("expected default to be written, got %#v", f.docs[testToken]["limits.retries"])
	}
}

func TestCreateOrGet_PropagatesErrors(t *testing.T) {
	f, srv := newFakeServer(t)
	f.respond = func(w http.ResponseWriter, r *http.Request) bool {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "maintenance"})
		return true
	}
	c := newClient(t, srv.URL, false)

	if _, err := c.CreateOrGet(context.Background(), "a", 1); err == nil {
		t.Error("expected error")
	}
	if len(f.requests) != 1 {
		t.Errorf("expected no write after failed read, got %d requests", len(f.requests))
	}
}

// --- Cache Tests ---

func TestCache_ServesRepeatReads(t *testing.T) {
	f, srv := newFakeServer(t)
	f.docs[testToken]["a"] = "b"
	c := newClient(t, srv.URL, true)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if v, err := c.Get(ctx, "a"); err != nil || v != "b" {
			t.Fatalf("get: %v (err %v)", v, err)
		}
	}
	if len(f.requests) != 1 {
		t.Errorf("expected 1 request with cache, got %d", len(f.requests))
	}
}

func TestCache_InvalidatedByWrite(t *testing.T) {
	f, srv := newFakeServer(t)
	f.docs[testToken]["a"] = "old"
	c := newClient(t, srv.URL, true)
	ctx := context.Background()

	if _, err := c.Get(ctx, "a"); err != nil {
		t.Fatalf("get: %v", err)
	}
	if err := c.Set(ctx, "a", "new"); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, err := c.Get(ctx, "a")
	if err != nil || v != "new" {
		t.Errorf("expected fresh value 'new', got %v (err %v)", v, err)
	}

	if err := c.Delete(ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := c.Get(ctx, "a"); !errors.Is(err, remote.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestCache_Disabled(t *testing.T) {
	f, srv := newFakeServer(t)
	f.docs[testToken]["a"] = "b"
	c := newClient(t, srv.URL, false)

	for i := 0; i < 2; i++ {
		if _, err := c.Get(context.Background(), "a"); err != nil {
			t.Fatalf("get: %v", err)
		}
	}
	if len(f.requests) != 2 {
		t.Errorf("expected 2 requests without cache, got %d", len(f.requests))
	}
}

func TestCache_ReturnsCopies(t *testing.T) {
	f, srv := newFakeServer(t)
	f.docs[testToken]["a"] = "b"
	c := newClient(t, srv.URL, true)
	ctx := context.Background()

	first, err := c.Get(ctx, "")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	first.(map[string]any)["a"] = "mutated"

	second, err := c.Get(ctx, "")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	second.(map[string]any)["extra"] = true

	third, err := c.Get(ctx, "")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if diff := cmp.Diff(map[string]any{"a": "b"}, third); diff != "" {
		t.Errorf("cached document was mutated (-want +got):\n%s", diff)
	}
	if len(f.requests) != 1 {
		t.Errorf("expected 1 request with cache, got %d", len(f.requests))
	}
}

func TestCache_ReadOverlappingWriteIsNotCached(t *testing.T) {
	var (
		mu      sync.Mutex
		value   = "old"
		gets    int
		started = make(chan struct{})
		release = make(chan struct{})
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			mu.Lock()
			gets++
			first := gets == 1
			current := value
			mu.Unlock()
			if first {
				close(started)
				<-release
			}
			writeJSON(w, http.StatusOK, map[string]any{"a": current})
		case http.MethodPut:
			mu.Lock()
			value = "new"
			mu.Unlock()
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		}
	}))
	defer srv.Close()
	c := newClient(t, srv.URL, true)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := c.Get(ctx, "a")
		done <- err
	}()
	<-started
	err := c.Set(ctx, "a", "new")
	close(release)
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("overlapping get: %v", err)
	}

	v, err := c.Get(ctx, "a")
	if err != nil || v != "new" {
		t.Errorf("expected fresh value 'new', got %v (err %v)", v, err)
	}
}
