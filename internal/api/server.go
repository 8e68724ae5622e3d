// Package api exposes the trade engine over HTTP (gin), gRPC and a websocket
// trade feed.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"google.golang.org/grpc"

	"crossexchange/internal/config"
)

// Server hosts the HTTP and gRPC endpoints and the websocket hub.
type Server struct {
	cfg    config.Server
	deps   Deps
	logger *slog.Logger

	http *http.Server
	grpc *grpc.Server

	mu       sync.Mutex
	httpAddr net.Addr
	grpcAddr net.Addr
	ready    chan struct{}
}

// NewServer creates a Server. A nil deps.Hub gets a fresh hub.
func NewServer(cfg config.Server, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Hub == nil {
		deps.Hub = NewHub(deps.Logger)
	}

	gs := grpc.NewServer()
	NewTradingService(deps.Executor, deps.Logger).RegisterGRPC(gs)

	return &Server{
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger.With("component", "server"),
		http: &http.Server{
			Handler:           NewRouter(deps),
			ReadHeaderTimeout: 10 * time.Second,
		},
		grpc:  gs,
		ready: make(chan struct{}),
	}
}

// Hub returns the websocket hub that receives trade events.
func (s *Server) Hub() *Hub { return s.deps.Hub }

// Ready is closed once both listeners are bound.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// HTTPAddr returns the bound HTTP address, or nil before Ready.
func (s *Server) HTTPAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.httpAddr
}

// GRPCAddr returns the bound gRPC address, or nil before Ready.
func (s *Server) GRPCAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.grpcAddr
}

// ListenAndServe starts the HTTP and gRPC listeners and blocks until the
// context is cancelled or a fatal error occurs. On return both servers are
// shut down.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpLn, err := net.Listen("tcp", net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port)))
	if err != nil {
		return fmt.Errorf("listening http: %w", err)
	}
	grpcLn, err := net.Listen("tcp", net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.GRPCPort)))
	if err != nil {
		httpLn.Close()
		return fmt.Errorf("listening grpc: %w", err)
	}

	s.mu.Lock()
	s.httpAddr = httpLn.Addr()
	s.grpcAddr = grpcLn.Addr()
	s.mu.Unlock()
	close(s.ready)

	hubCtx, stopHub := context.WithCancel(context.WithoutCancel(ctx))
	defer stopHub()
	go s.deps.Hub.Run(hubCtx)

	errCh := make(chan error, 2)
	go func() {
		s.logger.Info("http listening", "addr", httpLn.Addr().String())
		if err := s.http.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		s.logger.Info("grpc listening", "addr", grpcLn.Addr().String())
		if err := s.grpc.Serve(grpcLn); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	return errors.Join(serveErr, s.Shutdown(shutdownCtx))
}

// Shutdown performs a graceful shutdown of the HTTP and gRPC servers. gRPC
// is stopped hard when ctx expires first.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	err := s.http.Shutdown(ctx)

	stopped := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		s.grpc.Stop()
		<-stopped
	}
	return err
}
