// Package rpc implements the local inter-process channel exposing the
// service to short-lived caller processes: length-prefixed JSON frames over
// a Unix domain socket, a shared-secret challenge-response handshake, and
// per-connection proxy handles backed by opaque tokens that never leave the
// hosting process.
package rpc

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/vergate/vergate/internal/domain"
)

const (
	// StatusOK and StatusError are the two response statuses.
	StatusOK    = "ok"
	StatusError = "error"

	// challengeSize is the length of the handshake challenge.
	challengeSize = 32

	// maxFrameSize bounds a single frame; anything larger indicates a
	// corrupt or hostile peer.
	maxFrameSize = 16 << 20
)

// Request is one method invocation on a proxy handle.
type Request struct {
	Method      string         `json:"method"`
	Args        []any          `json:"args"`
	Kwargs      map[string]any `json:"kwargs"`
	HandleToken string         `json:"handle_token"`
}

// Response carries the outcome of a request. On error, Result holds an
// ErrorInfo document.
type Response struct {
	Status string          `json:"status"`
	Result json.RawMessage `json:"result"`
}

// ErrorInfo is the structured error crossing the channel: enough for the
// caller to identify which phase failed and why.
type ErrorInfo struct {
	Type    string `json:"type"`
	Phase   string `json:"phase,omitempty"`
	Step    string `json:"step,omitempty"`
	Message string `json:"message"`
}

// ToError reconstructs a service error on the caller side.
func (e *ErrorInfo) ToError() error {
	se := domain.NewServiceError(domain.ErrorType(e.Type), e.Message).
		WithPhase(domain.Phase(e.Phase))
	if e.Step != "" {
		se = se.WithStep(e.Step)
	}
	return se
}

// errorInfoFrom flattens any error into the wire form.
func errorInfoFrom(err error) *ErrorInfo {
	se := domain.ToServiceError(err)
	return &ErrorInfo{
		Type:    string(se.Type),
		Phase:   string(se.Phase),
		Step:    se.Step,
		Message: se.Message,
	}
}

// writeFrame writes a length-prefixed frame: 4-byte big-endian payload
// length followed by the payload.
func writeFrame(w io.Writer, payload []byte) error {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write frame payload: %w", err)
	}
	return nil
}

// readFrame reads one length-prefixed frame.
func readFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(header[:])
	if size > maxFrameSize {
		return nil, fmt.Errorf("frame of %d bytes exceeds limit", size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read frame payload: %w", err)
	}
	return payload, nil
}

// writeMessage marshals v and writes it as one frame.
func writeMessage(w io.Writer, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return writeFrame(w, payload)
}

// readMessage reads one frame and unmarshals it into v.
func readMessage(r io.Reader, v any) error {
	payload, err := readFrame(r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("unmarshal message: %w", err)
	}
	return nil
}

func okResponse(result any) (*Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &Response{Status: StatusOK, Result: raw}, nil
}

func errorResponse(err error) *Response {
	raw, merr := json.Marshal(errorInfoFrom(err))
	if merr != nil {
		raw = []byte(fmt.Sprintf(`{"type":"invalid_request","message":%q}`, err.Error()))
	}
	return &Response{Status: StatusError, Result: raw}
}
