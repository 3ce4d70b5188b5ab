package probes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kashguard/go-heartbeat-infra/internal/api"
)

func GetHealthyRoute(s *api.Server) *echo.Route {
	return s.Router.Probes.GET("/healthy", getHealthyHandler(s))
}

// getHealthyHandler is the liveness probe: the process is up and serving.
func getHealthyHandler(_ *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	}
}

func GetReadyRoute(s *api.Server) *echo.Route {
	return s.Router.Probes.GET("/ready", getReadyHandler(s))
}

// getReadyHandler is the readiness probe: ready once the UDP loops run.
func getReadyHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !s.Ready() {
			return c.String(http.StatusServiceUnavailable, "Not ready")
		}
		return c.String(http.StatusOK, "Ready")
	}
}
