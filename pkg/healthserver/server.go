// Package healthserver exposes a single GET /healthz endpoint
// reporting circuit breaker state, pattern-index size, and the
// witness log's buffered status, the way the teacher's pkg/server
// exposes its own JSON API over echo.
package healthserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/docker/admission-core/pkg/witness"
)

const defaultShutdownTimeout = 10 * time.Second

// Status is the health snapshot reported by GET /healthz.
type Status struct {
	Breaker    map[string]string `json:"breaker"`
	IndexSizes map[string]int    `json:"index_sizes"`
	Witness    witness.Status    `json:"witness"`
}

// Provider supplies the current health snapshot. The gate pipeline and
// the orchestrator wiring implement it; this package does not know how
// a snapshot is assembled.
type Provider interface {
	Status() Status
}

// Server is the health/status HTTP surface.
type Server struct {
	e        *echo.Echo
	provider Provider
}

// New builds a Server that reports provider's snapshots.
func New(provider Provider) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())

	s := &Server{e: e, provider: provider}
	e.GET("/healthz", s.getHealthz)

	return s
}

// Serve accepts connections on ln until ctx is cancelled, then shuts
// down with a bounded grace period, mirroring the teacher's
// pkg/server.Server.Serve.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := http.Server{Handler: s.e}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		slog.Error("healthserver: serve failed", "error", err)
		return err
	}
}

func (s *Server) getHealthz(c echo.Context) error {
	return c.JSON(http.StatusOK, s.provider.Status())
}
