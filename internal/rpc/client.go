package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/vergate/vergate/internal/domain"
)

// DialOption configures Dial.
type DialOption func(*dialOptions)

type dialOptions struct {
	callTimeout time.Duration
}

// WithCallTimeout bounds each proxy call. Zero disables deadlines, in which
// case a call blocks until the server responds or the connection drops.
func WithCallTimeout(d time.Duration) DialOption {
	return func(o *dialOptions) { o.callTimeout = d }
}

// ServiceHandle is the caller-side proxy for the server-resident service.
// It is valid for the lifetime of one connection; the service itself never
// crosses the channel.
type ServiceHandle struct {
	mu      sync.Mutex
	conn    net.Conn
	token   string
	timeout time.Duration
}

// Dial reads the connection descriptor, connects, authenticates, and returns
// a proxy handle. A missing descriptor means the service is not running and
// fails immediately.
func Dial(descriptorPath string, opts ...DialOption) (*ServiceHandle, error) {
	var o dialOptions
	for _, opt := range opts {
		opt(&o)
	}

	descriptor, err := ReadDescriptor(descriptorPath)
	if err != nil {
		return nil, err
	}

	conn, err := net.Dial("unix", descriptor.EndpointAddress)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", descriptor.EndpointAddress, err)
	}

	if err := clientHandshake(conn, []byte(descriptor.SharedSecret)); err != nil {
		conn.Close()
		return nil, err
	}

	var welcome Response
	if err := readMessage(conn, &welcome); err != nil {
		conn.Close()
		return nil, domain.ErrAuthentication("connection refused by server").WithCause(err)
	}
	if welcome.Status != StatusOK {
		conn.Close()
		return nil, responseError(&welcome)
	}
	var payload struct {
		Handle string `json:"handle"`
	}
	if err := json.Unmarshal(welcome.Result, &payload); err != nil || payload.Handle == "" {
		conn.Close()
		return nil, fmt.Errorf("malformed welcome message")
	}

	return &ServiceHandle{
		conn:    conn,
		token:   payload.Handle,
		timeout: o.callTimeout,
	}, nil
}

// Execute performs a logical resource operation through the proxy.
func (h *ServiceHandle) Execute(ctx context.Context, operation, resource string, data map[string]any) (map[string]any, error) {
	resp, err := h.call(ctx, &Request{
		Method: "execute",
		Args:   []any{operation, resource},
		Kwargs: map[string]any{"data": data},
	})
	if err != nil {
		return nil, err
	}
	var result map[string]any
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return result, nil
}

// Ping checks liveness of the service.
func (h *ServiceHandle) Ping(ctx context.Context) error {
	_, err := h.call(ctx, &Request{Method: "ping"})
	return err
}

// SupportedVersions lists the versions the service's catalog implements.
func (h *ServiceHandle) SupportedVersions(ctx context.Context) ([]string, error) {
	resp, err := h.call(ctx, &Request{Method: "supported_versions"})
	if err != nil {
		return nil, err
	}
	var versions []string
	if err := json.Unmarshal(resp.Result, &versions); err != nil {
		return nil, fmt.Errorf("decode versions: %w", err)
	}
	return versions, nil
}

// Close releases the connection; the handle is invalid afterwards.
func (h *ServiceHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conn.Close()
}

// call sends one request frame and blocks for its response frame. The handle
// serializes calls: one request/response exchange at a time per connection.
func (h *ServiceHandle) call(ctx context.Context, req *Request) (*Response, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	req.HandleToken = h.token

	deadline := time.Time{}
	if h.timeout > 0 {
		deadline = time.Now().Add(h.timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	if err := h.conn.SetDeadline(deadline); err != nil {
		return nil, err
	}

	if err := writeMessage(h.conn, req); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	var resp Response
	if err := readMessage(h.conn, &resp); err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.Status != StatusOK {
		return nil, responseError(&resp)
	}
	return &resp, nil
}

func responseError(resp *Response) error {
	var info ErrorInfo
	if err := json.Unmarshal(resp.Result, &info); err != nil || info.Message == "" {
		return fmt.Errorf("rpc error with malformed detail")
	}
	return info.ToError()
}
