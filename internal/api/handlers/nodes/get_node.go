package nodes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kashguard/go-heartbeat-infra/internal/api"
	"github.com/kashguard/go-heartbeat-infra/internal/api/httperrors"
)

func GetNodeRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1.GET("/nodes/:id", getNodeHandler(s))
}

func getNodeHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		nodeID := c.Param("id")

		rec, ok := s.Registry.Get(nodeID)
		if !ok {
			return httperrors.NewHTTPErrorWithDetail(http.StatusNotFound, httperrors.TypeNotFound,
				"Node not found", nodeID)
		}

		resp := toNodeResponse(rec)
		return c.JSON(http.StatusOK, &resp)
	}
}
