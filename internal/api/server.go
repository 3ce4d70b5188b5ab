package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/kashguard/go-heartbeat-infra/internal/config"
	"github.com/kashguard/go-heartbeat-infra/internal/metrics"
	"github.com/kashguard/go-heartbeat-infra/internal/registry"
)

// Router groups the route roots the handlers attach to.
type Router struct {
	Routes  []*echo.Route
	Root    *echo.Group
	APIV1   *echo.Group
	Probes  *echo.Group
	Metrics *echo.Group
}

// Server is the read-only management surface over the node registry. It
// observes the registry and the UDP server's readiness; it never mutates
// either.
type Server struct {
	Echo   *echo.Echo
	Router *Router

	Config   config.Server
	Registry *registry.Registry
	Metrics  *metrics.Service

	// Ready reports whether the UDP server loops are running. Used by the
	// readiness probe.
	Ready func() bool
}

func NewServer(cfg config.Server, reg *registry.Registry, m *metrics.Service, ready func() bool) *Server {
	if ready == nil {
		ready = func() bool { return false }
	}
	return &Server{
		Config:   cfg,
		Registry: reg,
		Metrics:  m,
		Ready:    ready,
	}
}

// Start serves the management API on the configured address. Blocks until
// Shutdown is called.
func (s *Server) Start() error {
	if s.Echo == nil {
		return errors.New("management server is not initialized, call router.Init first")
	}

	log.Info().Str("addr", s.Config.MgmtListenAddress).Msg("Management server listening")
	if err := s.Echo.Start(s.Config.MgmtListenAddress); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "management server failed")
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.Echo == nil {
		return nil
	}
	log.Debug().Msg("Shutting down management server")
	if err := s.Echo.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "failed to shutdown management server")
	}
	return nil
}
