// Package apiclient provides the persistent HTTP client used for all remote
// API calls. One Client is shared across every connection worker; it is
// stateless per request and therefore safe for concurrent use.
package apiclient

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

	"github.com/vergate/vergate/internal/domain"
)

const defaultTimeout = 30 * time.Second

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithTimeout bounds every remote call. A blocked call fails with the
// transport's timeout error rather than blocking its worker indefinitely.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// Client is the outbound HTTP client for the remote API.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
}

// New creates a client for the given base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured remote API base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Do performs one remote call and decodes the JSON response into a record.
// GET and DELETE payloads are sent as query parameters; other methods send a
// JSON body. A non-success status is returned as a remote_call error.
func (c *Client) Do(ctx context.Context, method, path string, payload domain.Record) (domain.Record, error) {
	var body io.Reader
	reqURL := c.baseURL + path

	switch method {
	case http.MethodGet, http.MethodDelete:
		if len(payload) > 0 {
			q := url.Values{}
			for k, v := range payload {
				q.Set(k, fmt.Sprintf("%v", v))
			}
			reqURL += "?" + q.Encode()
		}
	default:
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.ErrRemoteCall(fmt.Sprintf("%s %s: %v", method, path, err)).WithCause(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.ErrRemoteCall(fmt.Sprintf("%s %s: read response: %v", method, path, err)).WithCause(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, domain.ErrRemoteCall(fmt.Sprintf("%s %s: status %d: %s", method, path, resp.StatusCode, snippet(respBody)))
	}

	if len(respBody) == 0 {
		return domain.Record{}, nil
	}
	var result domain.Record
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, domain.ErrRemoteCall(fmt.Sprintf("%s %s: decode response: %v", method, path, err)).WithCause(err)
	}
	return result, nil
}

// ProbeVersion reads the remote API version from probePath. The field may be
// a dot-delimited path into the response document.
func (c *Client) ProbeVersion(ctx context.Context, probePath, field string) (string, error) {
	resp, err := c.Do(ctx, http.MethodGet, probePath, nil)
	if err != nil {
		return "", err
	}
	v, ok := lookupPath(resp, field)
	if !ok {
		return "", fmt.Errorf("version field %q not present in probe response", field)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("version field %q is %T, not a string", field, v)
	}
	return s, nil
}

func lookupPath(doc domain.Record, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = map[string]any(doc)
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func snippet(b []byte) string {
	const max = 256
	s := string(b)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
