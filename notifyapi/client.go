// Package notifyapi is the typed HTTP client for the backend REST API. Every
// request carries a freshly-signed admin JWT; reads are decorated with
// read-through caching and writes with fan-out cache invalidation.
package notifyapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/notify-gov/admin-portal/cache"
	errs "github.com/notify-gov/admin-portal/internal/errors"
	"github.com/notify-gov/admin-portal/internal/requestctx"
	"github.com/notify-gov/admin-portal/token"
)

const (
	userAgent      = "NOTIFY-ADMIN-GO-CLIENT/1.0"
	defaultTimeout = 5 * time.Second
	// usage reports and CSV-backed reads stream more data
	longTimeout = 30 * time.Second
)

// Paths reachable before a session exists: sign-in, activation and
// verification-code exchanges. Matched by substring, mirroring the backend's
// own routing families.
var authExemptPathFragments = []string{
	"/sign-in",
	"/activate",
	"/verify",
	"/email-code",
}

// APIError is a typed upstream failure carrying the original status, message
// and URL.
type APIError struct {
	StatusCode int
	Message    string
	URL        string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend returned %d for %s: %s", e.StatusCode, e.URL, e.Message)
}

// Client issues authenticated requests against the backend.
type Client struct {
	baseURL     string
	clientID    string
	secret      string
	routeSecret string
	httpClient  *http.Client
	kv          *cache.Client
	timeout     time.Duration
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient replaces the underlying transport (primarily for testing).
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout overrides the default per-call timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// New creates a backend client. kv may be a disabled cache gateway.
func New(baseURL, clientID, secret, routeSecret string, kv *cache.Client, options ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		clientID:    clientID,
		secret:      secret,
		routeSecret: routeSecret,
		httpClient:  &http.Client{},
		kv:          kv,
		timeout:     defaultTimeout,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out, c.timeout)
}

func (c *Client) getLong(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out, longTimeout)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, body, out, c.timeout)
}

func (c *Client) put(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPut, path, nil, body, out, c.timeout)
}

func (c *Client) delete(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodDelete, path, nil, nil, out, c.timeout)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any, timeout time.Duration) error {
	if err := c.checkMutationAllowed(ctx, method, path); err != nil {
		return err
	}

	requestURL := c.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return errors.Wrapf(err, "[Client.do] encode body for %s %s", method, path)
		}
		reader = bytes.NewReader(encoded)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, requestURL, reader)
	if err != nil {
		return errors.Wrapf(err, "[Client.do] build request %s %s", method, path)
	}

	bearer, err := token.CreateAdminJWT(c.secret, c.clientID)
	if err != nil {
		return errors.Wrap(err, "[Client.do] create admin JWT")
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")
	if c.routeSecret != "" {
		req.Header.Set("X-Custom-Forwarder", c.routeSecret)
	}
	if trace := requestctx.TraceFrom(ctx); trace.TraceID != "" {
		req.Header.Set("X-B3-TraceId", trace.TraceID)
		req.Header.Set("X-B3-SpanId", trace.SpanID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "[Client.do] %s %s", method, path)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "[Client.do] read response for %s %s", method, path)
	}

	if resp.StatusCode >= 400 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    extractMessage(payload),
			URL:        requestURL,
		}
	}

	if out != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, out); err != nil {
			return errors.Wrapf(err, "[Client.do] decode response for %s %s", method, path)
		}
	}
	return nil
}

// checkMutationAllowed enforces the two preconditions on POST/PUT/DELETE:
// no mutations against an inactive current service except by platform
// admins, and no mutations by anonymous callers outside the sign-in set.
func (c *Client) checkMutationAllowed(ctx context.Context, method, path string) error {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodDelete:
	default:
		return nil
	}

	identity := requestctx.IdentityFrom(ctx)

	if identity != nil && identity.Service != nil && !identity.Service.Active && !identity.PlatformAdmin() {
		return errors.Wrapf(errs.ErrServiceInactive, "[Client] %s %s", method, path)
	}

	if authExempt(method, path) {
		return nil
	}
	if !identity.Authenticated() {
		return errors.Wrapf(errs.ErrForbidden, "[Client] anonymous %s %s", method, path)
	}
	return nil
}

func authExempt(method, path string) bool {
	// registration is the one anonymous create
	if method == http.MethodPost && path == "/user" {
		return true
	}
	for _, fragment := range authExemptPathFragments {
		if strings.Contains(path, fragment) {
			return true
		}
	}
	return false
}

func extractMessage(payload []byte) string {
	var body struct {
		Message json.RawMessage `json:"message"`
		Result  string          `json:"result"`
	}
	if err := json.Unmarshal(payload, &body); err != nil || len(body.Message) == 0 {
		return strings.TrimSpace(string(payload))
	}
	var message string
	if err := json.Unmarshal(body.Message, &message); err == nil {
		return message
	}
	return strings.TrimSpace(string(body.Message))
}

// cached reads key from the KV store, falling back to fetch and storing the
// result with the given TTL. fetch must fill out.
func (c *Client) cached(ctx context.Context, key string, ttl time.Duration, out any, fetch func() error) error {
	if raw, err := c.kv.Get(ctx, key); err == nil && raw != nil {
		if err := json.Unmarshal(raw, out); err == nil {
			return nil
		}
		log.Warn().Str("key", key).Msg("discarding undecodable cache entry")
	}

	if err := fetch(); err != nil {
		return err
	}

	if raw, err := json.Marshal(out); err == nil {
		_ = c.kv.Set(ctx, key, raw, ttl)
	}
	return nil
}

// storeThrough writes an already-fetched value under an extra key.
func (c *Client) storeThrough(ctx context.Context, key string, value any, ttl time.Duration) {
	if raw, err := json.Marshal(value); err == nil {
		_ = c.kv.Set(ctx, key, raw, ttl)
	}
}

// deleteKeys removes cache keys one at a time so a failure on one never
// skips the rest.
func (c *Client) deleteKeys(ctx context.Context, keys ...string) {
	for _, key := range keys {
		if err := c.kv.Delete(ctx, key); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("cache invalidation failed")
		}
	}
}

// deletePatterns removes every key matching each glob pattern.
func (c *Client) deletePatterns(ctx context.Context, patterns ...string) {
	for _, pattern := range patterns {
		if _, err := c.kv.DeleteByPattern(ctx, pattern); err != nil {
			log.Warn().Err(err).Str("pattern", pattern).Msg("cache invalidation failed")
		}
	}
}
