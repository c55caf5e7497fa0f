// Package transport exposes the gate pipeline's capabilities over MCP,
// the same way the teacher's pkg/mcp exposes agents: a small
// Implementation, one mcp.Tool per capability, served over stdio for
// local integrations and over streamable HTTP for networked ones.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const defaultShutdownTimeout = 10 * time.Second

// Engine is the capability set this package wires onto MCP tools. The
// gate pipeline and its supporting packages satisfy it; transport does
// not know or care how a capability is implemented.
type Engine interface {
	Scan(ctx context.Context, text string) (ScanOutput, error)
	Analyze(ctx context.Context, text string) (AnalyzeOutput, error)
	Safe(ctx context.Context, text string) (SafeOutput, error)
	Pii(ctx context.Context, text string) (PiiOutput, error)
	Learn(ctx context.Context, in LearnInput) (LearnOutput, error)
	Stats(ctx context.Context) (StatsOutput, error)
}

// Server wraps an Engine in an MCP server. One Server instance backs
// both StartStdio and StartHTTP.
type Server struct {
	engine          Engine
	dispatcher      Dispatcher
	shutdownTimeout time.Duration
	mcp             *mcp.Server
}

// Option configures a Server.
type Option func(*Server)

// WithShutdownTimeout overrides the grace period StartHTTP allows an
// in-flight request on context cancellation.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) { s.shutdownTimeout = d }
}

// WithDispatcher adds the "dispatch" tool, backed by a Handoff
// Orchestrator adapter. Omitted servers expose only the Gate
// Pipeline's own Scan/Analyze/Safe/Pii/Learn/Stats tools.
func WithDispatcher(d Dispatcher) Option {
	return func(s *Server) { s.dispatcher = d }
}

// New builds a Server exposing engine's capabilities as MCP tools.
func New(engine Engine, opts ...Option) *Server {
	s := &Server{engine: engine, shutdownTimeout: defaultShutdownTimeout}
	for _, opt := range opts {
		opt(s)
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "admission-core",
		Version: "0.1.0",
	}, nil)

	registerTools(server, engine, s.dispatcher)

	s.mcp = server
	return s
}

// StartStdio runs the server over stdio until ctx is cancelled, the
// way the teacher's StartMCPServer does.
func (s *Server) StartStdio(ctx context.Context) error {
	slog.Debug("transport: starting MCP server", "transport", "stdio")

	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("transport: mcp server: %w", err)
	}
	return nil
}

// DialHTTP issues a plain HTTP GET to baseURL and returns nil once any
// response arrives, whatever its status code; it calls no MCP tool.
// The attempt is bounded by connectTimeout (the configured
// timeouts.connect_ms).
// Callers that only need to confirm a server is reachable before
// routing traffic to it use this instead of opening a full client
// session.
func DialHTTP(ctx context.Context, baseURL string, connectTimeout time.Duration) error {
	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(dialCtx, http.MethodGet, baseURL, nil)
	if err != nil {
		return fmt.Errorf("transport: build dial request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("transport: dial %s: %w", baseURL, err)
	}
	defer resp.Body.Close()

	return nil
}

// StartHTTP serves the same tools over streamable HTTP on ln until ctx
// is cancelled, then shuts down with the configured grace period.
func (s *Server) StartHTTP(ctx context.Context, ln net.Listener) error {
	slog.Debug("transport: starting MCP server", "transport", "http", "addr", ln.Addr())

	httpServer := &http.Server{
		Handler: mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
			return s.mcp
		}, nil),
	}

	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
