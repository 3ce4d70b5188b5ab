package nodes

import (
	"net/http"
	"sort"

	"github.com/labstack/echo/v4"

	"github.com/kashguard/go-heartbeat-infra/internal/api"
	"github.com/kashguard/go-heartbeat-infra/internal/api/httperrors"
)

func GetListNodesRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1.GET("/nodes", getListNodesHandler(s))
}

func getListNodesHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		status := c.QueryParam("status")

		snapshot := s.Registry.Snapshot()
		nodes := make([]NodeResponse, 0, len(snapshot))
		for _, rec := range snapshot {
			if status != "" && rec.Status.String() != status {
				continue
			}
			nodes = append(nodes, toNodeResponse(rec))
		}

		if status != "" && len(nodes) == 0 && !validStatusFilter(status) {
			return httperrors.NewHTTPErrorWithDetail(http.StatusBadRequest, httperrors.TypeGeneric,
				"Invalid status filter", status)
		}

		sort.Slice(nodes, func(i, j int) bool { return nodes[i].NodeID < nodes[j].NodeID })

		return c.JSON(http.StatusOK, &ListNodesResponse{
			Nodes: nodes,
			Total: len(nodes),
		})
	}
}

func validStatusFilter(status string) bool {
	switch status {
	case "alive", "suspected", "dead":
		return true
	default:
		return false
	}
}
