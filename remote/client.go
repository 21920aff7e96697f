// Package remote provides a client for a document store served over HTTP.
//
// The client mirrors the read, write, and check operations of the local
// store. A single token both authenticates the caller and selects which
// remote document is used.
//
// Reads with a key path use the flat lookup the server performs: the
// response is expected to be {"a.b": value}, and no nested traversal is
// done locally.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jacentio/yisona/internal/keypath"
	"github.com/jacentio/yisona/store"
)

const (
	// APIPath is appended to the base URL for every request.
	APIPath = "/api"

	// HeaderToken carries the token on write requests.
	HeaderToken = "X-API-Token"

	// HeaderRequestID carries a per-request identifier.
	HeaderRequestID = "X-Request-ID"

	// DefaultTimeout bounds each HTTP round trip.
	DefaultTimeout = 10 * time.Second
)

// ErrNotFound is returned when the remote document has no value for a key.
var ErrNotFound = store.ErrNotFound

// APIError is a non-200 response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("yisona: remote returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("yisona: remote returned status %d: %s", e.StatusCode, e.Message)
}

// Config holds configuration for the Client.
type Config struct {
	// BaseURL is the service endpoint; APIPath is appended to it.
	BaseURL string

	// Token authenticates and identifies the remote document.
	Token string

	// HTTPClient is used for requests. Default: a client with Timeout.
	HTTPClient *http.Client

	// Timeout applies when HTTPClient is nil. Default: DefaultTimeout
	Timeout time.Duration

	// Cache keeps successful reads until the next write or delete.
	Cache bool

	// Logger receives diagnostics. Default: slog.Default()
	Logger *slog.Logger
}

// validate checks required fields and fills in defaults.
func (c *Config) validate() error {
	if strings.TrimSpace(c.Token) == "" {
		return errors.New("yisona: remote token is required")
	}
	if strings.TrimSpace(c.BaseURL) == "" {
		return errors.New("yisona: remote base URL is required")
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("yisona: invalid remote base URL: %w", err)
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// Client talks to a remote document store.
type Client struct {
	config   Config
	endpoint string
	http     *http.Client
	logger   *slog.Logger

	mu    sync.Mutex
	cache map[string]any
	gen   uint64
}

// New creates a Client.
func New(config Config) (*Client, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &Client{
		config:   config,
		endpoint: config.BaseURL + APIPath,
		http:     config.HTTPClient,
		logger:   config.Logger,
		cache:    make(map[string]any),
	}, nil
}

// Get returns the whole remote document when path is empty, otherwise the
// value the server returns under the flat key path. A 404 response is
// reported as ErrNotFound, with the *APIError still reachable via errors.As.
func (c *Client) Get(ctx context.Context, path string) (any, error) {
	v, gen, ok := c.cached(path)
	if ok {
		return v, nil
	}

	query := url.Values{"token": {c.config.Token}}
	if path != "" {
		query.Set("key", path)
	}
	var body any
	if err := c.do(ctx, http.MethodGet, query, nil, &body); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		return nil, err
	}

	value := body
	if path != "" {
		m, ok := body.(map[string]any)
		if !ok {
			return nil, ErrNotFound
		}
		if value, ok = m[path]; !ok {
			return nil, ErrNotFound
		}
	}
	c.remember(path, value, gen)
	return value, nil
}

// GetNumber returns the value at path as a float64, with the same
// conversion rules as the local store.
func (c *Client) GetNumber(ctx context.Context, path string) (float64, error) {
	value, err := c.Get(ctx, path)
	if err != nil {
		return 0, err
	}
	return store.ToNumber(value)
}

// Set writes value at path. The request body is the nested mapping built
// from the key path, so "a.b" with 1 sends {"a": {"b": 1}}.
func (c *Client) Set(ctx context.Context, path string, value any) error {
	segs, err := keypath.Split(path)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(keypath.Nest(segs, value))
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	defer c.invalidate()
	return c.do(ctx, http.MethodPut, nil, payload, nil)
}

// Delete removes the value at path.
func (c *Client) Delete(ctx context.Context, path string) error {
	if _, err := keypath.Split(path); err != nil {
		return err
	}
	query := url.Values{
		"token": {c.config.Token},
		"key":   {path},
	}

	defer c.invalidate()
	return c.do(ctx, http.MethodDelete, query, nil, nil)
}

// CreateOrGet writes def at path when the remote has no value there, and
// reports whether a value existed. Unlike the local store, a key that is
// present with a null value is treated as absent and overwritten.
func (c *Client) CreateOrGet(ctx context.Context, path string, def any) (existed bool, err error) {
	value, err := c.Get(ctx, path)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return false, err
	case value != nil:
		return true, nil
	}

	if err := c.Set(ctx, path, def); err != nil {
		return false, err
	}
	return false, nil
}

// do performs one request. A 200 response body is decoded into out when out
// is non-nil; any other status becomes an *APIError.
func (c *Client) do(ctx context.Context, method string, query url.Values, payload []byte, out any) error {
	target := c.endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set(HeaderRequestID, requestID)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(HeaderToken, c.config.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("remote request failed",
			"method", method,
			"requestID", requestID,
			"error", err,
		)
		return fmt.Errorf("%s %s: %w", method, APIPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var errBody struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&errBody); err == nil {
			apiErr.Message = errBody.Error
		}
		c.logger.Warn("remote request rejected",
			"method", method,
			"requestID", requestID,
			"status", resp.StatusCode,
			"message", apiErr.Message,
		)
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// cached returns a copy of the cached value for path, and the cache
// generation a fresh read must match to be remembered.
func (c *Client) cached(path string) (any, uint64, bool) {
	if !c.config.Cache {
		return nil, 0, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.cache[path]
	if !ok {
		return nil, c.gen, false
	}
	return store.Clone(v), c.gen, true
}

// remember stores a copy of value unless a write finished since the read
// began.
func (c *Client) remember(path string, value any, gen uint64) {
	if !c.config.Cache {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.cache[path] = store.Clone(value)
}

// invalidate drops every cached read. It runs after each write or delete,
// whatever the outcome.
func (c *Client) invalidate() {
	if !c.config.Cache {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	clear(c.cache)
}
