package router

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/kashguard/go-heartbeat-infra/internal/api"
	"github.com/kashguard/go-heartbeat-infra/internal/api/handlers/nodes"
	"github.com/kashguard/go-heartbeat-infra/internal/api/handlers/probes"
	"github.com/kashguard/go-heartbeat-infra/internal/api/httperrors"
)

// Init builds the echo instance and attaches all management routes.
func Init(s *api.Server) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = httperrors.HandlerFunc
	e.Use(middleware.Recover())

	s.Echo = e
	s.Router = &api.Router{
		Root:    e.Group(""),
		APIV1:   e.Group("/api/v1"),
		Probes:  e.Group("/-"),
		Metrics: e.Group("/metrics"),
	}

	s.Router.Routes = []*echo.Route{
		nodes.GetListNodesRoute(s),
		nodes.GetNodeRoute(s),
		probes.GetHealthyRoute(s),
		probes.GetReadyRoute(s),
	}

	if s.Metrics != nil {
		s.Router.Routes = append(s.Router.Routes,
			s.Router.Metrics.GET("", echo.WrapHandler(s.Metrics.Handler())),
		)
	}
}
