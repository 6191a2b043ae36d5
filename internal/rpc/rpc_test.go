package rpc

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vergate/vergate/internal/apiclient"
	"github.com/vergate/vergate/internal/domain"
	"github.com/vergate/vergate/internal/loader"
	"github.com/vergate/vergate/internal/registry"
	"github.com/vergate/vergate/internal/service"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := writeFrame(&buf, []byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := readFrame(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("payload = %q, want hello", got)
	}
}

func TestReadFrameRejectsOversize(t *testing.T) {
	var buf bytes.Buffer
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], maxFrameSize+1)
	buf.Write(header[:])

	if _, err := readFrame(&buf); err == nil {
		t.Fatal("expected oversize frame to be rejected")
	}
}

func TestHandshake(t *testing.T) {
	t.Run("matching secrets", func(t *testing.T) {
		server, client := net.Pipe()
		defer server.Close()
		defer client.Close()

		errc := make(chan error, 1)
		go func() { errc <- serverHandshake(server, []byte("s3cret")) }()

		if err := clientHandshake(client, []byte("s3cret")); err != nil {
			t.Fatalf("client handshake: %v", err)
		}
		if err := <-errc; err != nil {
			t.Fatalf("server handshake: %v", err)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		server, client := net.Pipe()
		defer server.Close()
		defer client.Close()

		errc := make(chan error, 1)
		go func() { errc <- serverHandshake(server, []byte("s3cret")) }()

		if err := clientHandshake(client, []byte("wrong")); err != nil {
			t.Fatalf("client handshake: %v", err)
		}
		err := <-errc
		var se *domain.ServiceError
		if !errors.As(err, &se) || se.Type != domain.ErrorTypeAuthentication {
			t.Errorf("server error = %v, want authentication failure", err)
		}
	})
}

func TestDescriptorRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conn.json")
	d := &ConnectionDescriptor{EndpointAddress: "/tmp/x.sock", SharedSecret: "abc"}
	if err := WriteDescriptor(path, d); err != nil {
		t.Fatalf("write: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("descriptor mode = %v, want 0600", info.Mode().Perm())
	}

	got, err := ReadDescriptor(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if *got != *d {
		t.Errorf("descriptor = %+v, want %+v", got, d)
	}
}

func TestReadDescriptorMissingFailsFast(t *testing.T) {
	_, err := ReadDescriptor(filepath.Join(t.TempDir(), "absent.json"))
	if err == nil {
		t.Fatal("expected error for missing descriptor")
	}
}

const testCallerYAML = `
resource: user
records:
  User:
    fields:
      - name: id
        type: int
      - name: username
        type: string
`

const testWireYAML = `
resource: user
records:
  UserApi:
    fields:
      - name: id
        type: int
      - name: username
        type: string
converters:
  UserConverter:
    mapping:
      id:
      username:
operations:
  create:
    path: /users
    method: post
    fields: [username]
    required_for: [create]
`

// newStackService assembles the service over a stub remote API and a temp
// catalog so RPC tests exercise the whole stack.
func newStackService(t *testing.T) *service.Service {
	t.Helper()

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body == nil {
			body = map[string]any{}
		}
		body["id"] = 7
		json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(api.Close)

	root := t.TempDir()
	files := map[string]string{
		"resources/user.yaml":    testCallerYAML,
		"versions/2.0/user.yaml": testWireYAML,
	}
	for rel, content := range files {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	reg := registry.New(filepath.Join(root, "versions"), nil)
	if err := reg.Discover(); err != nil {
		t.Fatalf("discover: %v", err)
	}

	svc := service.New(service.Config{
		Client:         apiclient.New(api.URL),
		Loader:         loader.New(root, reg, nil),
		Registry:       reg,
		DefaultVersion: "2.0",
	})
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start service: %v", err)
	}
	return svc
}

// startServer brings up an RPC server on a socket in a temp directory and
// returns the descriptor path.
func startServer(t *testing.T) string {
	t.Helper()

	sockDir := t.TempDir()
	descriptorPath := filepath.Join(sockDir, "conn.json")
	server, err := NewServer(newStackService(t), ServerConfig{
		SocketPath:     filepath.Join(sockDir, "gw.sock"),
		DescriptorPath: descriptorPath,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	if err := server.Start(context.Background()); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	})
	return descriptorPath
}

func TestDialAndPing(t *testing.T) {
	descriptorPath := startServer(t)

	h, err := Dial(descriptorPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer h.Close()

	if err := h.Ping(context.Background()); err != nil {
		t.Errorf("ping: %v", err)
	}

	versions, err := h.SupportedVersions(context.Background())
	if err != nil {
		t.Fatalf("supported versions: %v", err)
	}
	if len(versions) != 1 || versions[0] != "2.0" {
		t.Errorf("versions = %v, want [2.0]", versions)
	}
}

func TestExecuteOverChannel(t *testing.T) {
	descriptorPath := startServer(t)

	h, err := Dial(descriptorPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer h.Close()

	result, err := h.Execute(context.Background(), "create", "user", map[string]any{"username": "jdoe"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result["username"] != "jdoe" {
		t.Errorf("username = %v, want jdoe", result["username"])
	}
	if result["id"] != float64(7) {
		t.Errorf("id = %v, want 7", result["id"])
	}
}

func TestExecuteErrorCrossesChannelTyped(t *testing.T) {
	descriptorPath := startServer(t)

	h, err := Dial(descriptorPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer h.Close()

	_, err = h.Execute(context.Background(), "create", "widget", nil)
	if err == nil {
		t.Fatal("expected error for unknown resource")
	}
	var se *domain.ServiceError
	if !errors.As(err, &se) || se.Type != domain.ErrorTypeVersionResolution {
		t.Errorf("error = %v, want version_resolution across the channel", err)
	}
}

func TestWrongSecretGetsNoHandle(t *testing.T) {
	descriptorPath := startServer(t)

	good, err := ReadDescriptor(descriptorPath)
	if err != nil {
		t.Fatal(err)
	}

	// Point a second descriptor at the same socket with the wrong secret.
	badPath := filepath.Join(t.TempDir(), "bad.json")
	if err := WriteDescriptor(badPath, &ConnectionDescriptor{
		EndpointAddress: good.EndpointAddress,
		SharedSecret:    "not-the-secret",
	}); err != nil {
		t.Fatal(err)
	}

	if _, err := Dial(badPath); err == nil {
		t.Fatal("dial with wrong secret must fail")
	}

	// The service keeps serving properly authenticated callers.
	h, err := Dial(descriptorPath)
	if err != nil {
		t.Fatalf("dial with correct secret: %v", err)
	}
	defer h.Close()
	if err := h.Ping(context.Background()); err != nil {
		t.Errorf("ping after refused connection: %v", err)
	}
}

// dialRaw performs the handshake by hand and returns the open connection and
// its handle token.
func dialRaw(t *testing.T, descriptorPath string) (net.Conn, string) {
	t.Helper()
	d, err := ReadDescriptor(descriptorPath)
	if err != nil {
		t.Fatal(err)
	}
	conn, err := net.Dial("unix", d.EndpointAddress)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := clientHandshake(conn, []byte(d.SharedSecret)); err != nil {
		t.Fatalf("handshake: %v", err)
	}
	var welcome Response
	if err := readMessage(conn, &welcome); err != nil {
		t.Fatalf("welcome: %v", err)
	}
	var payload struct {
		Handle string `json:"handle"`
	}
	if err := json.Unmarshal(welcome.Result, &payload); err != nil || payload.Handle == "" {
		t.Fatalf("malformed welcome: %v", err)
	}
	return conn, payload.Handle
}

// requirePing sends a ping with the given token and returns the response.
func requirePing(t *testing.T, conn net.Conn, token string) *Response {
	t.Helper()
	if err := writeMessage(conn, &Request{Method: "ping", HandleToken: token}); err != nil {
		t.Fatalf("send: %v", err)
	}
	var resp Response
	if err := readMessage(conn, &resp); err != nil {
		t.Fatalf("read: %v", err)
	}
	return &resp
}

func requireAuthError(t *testing.T, resp *Response) {
	t.Helper()
	if resp.Status != StatusError {
		t.Fatalf("status = %q, want error", resp.Status)
	}
	var info ErrorInfo
	if err := json.Unmarshal(resp.Result, &info); err != nil {
		t.Fatal(err)
	}
	if info.Type != string(domain.ErrorTypeAuthentication) {
		t.Errorf("error type = %q, want authentication", info.Type)
	}
}

func TestUnknownHandleTokenRejected(t *testing.T) {
	descriptorPath := startServer(t)
	conn, _ := dialRaw(t, descriptorPath)

	requireAuthError(t, requirePing(t, conn, "forged"))
}

func TestHandleTokenBoundToItsConnection(t *testing.T) {
	descriptorPath := startServer(t)
	conn1, token1 := dialRaw(t, descriptorPath)
	conn2, token2 := dialRaw(t, descriptorPath)

	// A token minted for one authenticated connection must be worthless on
	// another.
	requireAuthError(t, requirePing(t, conn2, token1))

	// Both connections keep working with their own tokens.
	if resp := requirePing(t, conn1, token1); resp.Status != StatusOK {
		t.Errorf("conn1 own-token ping status = %q, want ok", resp.Status)
	}
	if resp := requirePing(t, conn2, token2); resp.Status != StatusOK {
		t.Errorf("conn2 own-token ping status = %q, want ok", resp.Status)
	}
}

func TestUnknownMethodRejected(t *testing.T) {
	descriptorPath := startServer(t)

	h, err := Dial(descriptorPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer h.Close()

	_, err = h.call(context.Background(), &Request{Method: "frobnicate"})
	var se *domain.ServiceError
	if !errors.As(err, &se) || se.Type != domain.ErrorTypeInvalidRequest {
		t.Errorf("error = %v, want invalid_request", err)
	}
}

func TestShutdownRemovesArtifacts(t *testing.T) {
	sockDir := t.TempDir()
	socketPath := filepath.Join(sockDir, "gw.sock")
	descriptorPath := filepath.Join(sockDir, "conn.json")

	server, err := NewServer(newStackService(t), ServerConfig{
		SocketPath:     socketPath,
		DescriptorPath: descriptorPath,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	if err := server.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := os.Stat(descriptorPath); err != nil {
		t.Fatalf("descriptor not written: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	if _, err := os.Stat(descriptorPath); !os.IsNotExist(err) {
		t.Error("descriptor must be removed on shutdown")
	}
	if _, err := os.Stat(socketPath); !os.IsNotExist(err) {
		t.Error("socket must be removed on shutdown")
	}
	if _, err := Dial(descriptorPath); err == nil {
		t.Error("dial after shutdown must fail")
	}
}
