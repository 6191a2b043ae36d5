package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vergate/vergate/internal/domain"
	"github.com/vergate/vergate/internal/service"
)

const defaultMaxConns = 64

// ServerConfig configures the RPC listener.
type ServerConfig struct {
	SocketPath     string
	DescriptorPath string

	// SharedSecret authenticates connecting callers. Generated when empty.
	SharedSecret string

	// MaxConns bounds the connection worker pool.
	MaxConns int

	// ReadTimeout/WriteTimeout apply per frame. Zero means no deadline, in
	// which case a stalled peer can hold its worker indefinitely.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	Logger *slog.Logger
}

// Server accepts connections on a Unix domain socket and serves each from a
// dedicated worker, bounded by a semaphore-based pool with explicit
// shutdown signaling.
type Server struct {
	svc    *service.Service
	cfg    ServerConfig
	logger *slog.Logger

	listener net.Listener
	secret   []byte
	sem      chan struct{}
	wg       sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer creates a server exposing svc.
func NewServer(svc *service.Service, cfg ServerConfig) (*Server, error) {
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = defaultMaxConns
	}
	if cfg.SharedSecret == "" {
		secret, err := GenerateSecret()
		if err != nil {
			return nil, err
		}
		cfg.SharedSecret = secret
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		svc:    svc,
		cfg:    cfg,
		logger: logger,
		secret: []byte(cfg.SharedSecret),
		sem:    make(chan struct{}, cfg.MaxConns),
	}, nil
}

// Start binds the socket, writes the connection descriptor, and begins
// accepting connections.
func (s *Server) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	// A stale socket from an unclean shutdown would block the bind.
	if err := os.Remove(s.cfg.SocketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.SocketPath, err)
	}
	if err := os.Chmod(s.cfg.SocketPath, 0o600); err != nil {
		listener.Close()
		return fmt.Errorf("restrict socket permissions: %w", err)
	}
	s.listener = listener

	descriptor := &ConnectionDescriptor{
		EndpointAddress: s.cfg.SocketPath,
		SharedSecret:    s.cfg.SharedSecret,
	}
	if err := WriteDescriptor(s.cfg.DescriptorPath, descriptor); err != nil {
		listener.Close()
		return err
	}

	s.wg.Add(1)
	go s.acceptLoop()

	s.logger.Info("rpc server listening",
		slog.String("socket", s.cfg.SocketPath),
		slog.Int("max_conns", s.cfg.MaxConns))
	return nil
}

// Shutdown stops accepting, waits for in-flight connections to drain (or the
// context to expire), and removes the socket and descriptor.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("rpc server shutting down")
	if s.cancel != nil {
		s.cancel()
	}
	if s.listener != nil {
		s.listener.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("shutdown deadline reached with connections still open")
	}

	os.Remove(s.cfg.DescriptorPath)
	os.Remove(s.cfg.SocketPath)
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error("accept failed", slog.String("error", err.Error()))
			continue
		}

		select {
		case s.sem <- struct{}{}:
		case <-s.ctx.Done():
			conn.Close()
			return
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() { <-s.sem }()
			s.handleConn(conn)
		}()
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	logger := s.logger.With(slog.String("conn_id", uuid.New().String()))

	if err := s.applyDeadlines(conn); err != nil {
		return
	}
	if err := serverHandshake(conn, s.secret); err != nil {
		logger.Warn("connection refused", slog.String("error", err.Error()))
		return
	}

	// Handshake succeeded: mint a proxy handle for this connection. The
	// token is bound to this connection and dies with it; a token minted
	// for one connection is worthless on any other.
	token := uuid.New().String()

	welcome, err := okResponse(map[string]string{"handle": token})
	if err != nil {
		return
	}
	if err := writeMessage(conn, welcome); err != nil {
		return
	}
	logger.Info("connection established")

	for {
		if s.ctx.Err() != nil {
			return
		}
		if err := s.applyDeadlines(conn); err != nil {
			return
		}

		var req Request
		if err := readMessage(conn, &req); err != nil {
			// EOF is the normal end of a connection.
			return
		}

		resp := s.dispatch(logger, &req, token)
		if err := writeMessage(conn, resp); err != nil {
			logger.Error("write response failed", slog.String("error", err.Error()))
			return
		}
	}
}

func (s *Server) applyDeadlines(conn net.Conn) error {
	if s.cfg.ReadTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
			return err
		}
	}
	if s.cfg.WriteTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) dispatch(logger *slog.Logger, req *Request, token string) *Response {
	if req.HandleToken != token {
		return errorResponse(domain.ErrAuthentication("unknown handle token"))
	}

	switch req.Method {
	case "execute":
		return s.dispatchExecute(req)

	case "ping":
		resp, err := okResponse("pong")
		if err != nil {
			return errorResponse(err)
		}
		return resp

	case "supported_versions":
		resp, err := okResponse(s.svc.SupportedVersions())
		if err != nil {
			return errorResponse(err)
		}
		return resp

	default:
		logger.Warn("unknown method", slog.String("method", req.Method))
		return errorResponse(domain.ErrInvalidRequest(fmt.Sprintf("unknown method %q", req.Method)))
	}
}

func (s *Server) dispatchExecute(req *Request) *Response {
	if len(req.Args) != 2 {
		return errorResponse(domain.ErrInvalidRequest("execute expects args [operation, resource]"))
	}
	operation, ok1 := req.Args[0].(string)
	resource, ok2 := req.Args[1].(string)
	if !ok1 || !ok2 {
		return errorResponse(domain.ErrInvalidRequest("execute args must be strings"))
	}

	var data domain.Record
	if raw, ok := req.Kwargs["data"]; ok && raw != nil {
		data, ok = raw.(map[string]any)
		if !ok {
			return errorResponse(domain.ErrInvalidRequest("execute data must be a mapping"))
		}
	}

	result, err := s.svc.Execute(s.ctx, operation, resource, data)
	if err != nil {
		return errorResponse(err)
	}
	resp, err := okResponse(result)
	if err != nil {
		return errorResponse(err)
	}
	return resp
}
