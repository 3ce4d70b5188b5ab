package nodes

import (
	"github.com/kashguard/go-heartbeat-infra/internal/registry"
)

// NodeResponse is the REST view of one registry record.
type NodeResponse struct {
	NodeID           string            `json:"node_id"`
	Address          string            `json:"address"`
	Port             int               `json:"port"`
	Status           string            `json:"status"`
	LastHeartbeat    int64             `json:"last_heartbeat"`
	MissedHeartbeats int               `json:"missed_heartbeats"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// ListNodesResponse wraps a registry snapshot.
type ListNodesResponse struct {
	Nodes []NodeResponse `json:"nodes"`
	Total int            `json:"total"`
}

func toNodeResponse(rec registry.NodeRecord) NodeResponse {
	return NodeResponse{
		NodeID:           rec.NodeID,
		Address:          rec.Address,
		Port:             rec.Port,
		Status:           rec.Status.String(),
		LastHeartbeat:    rec.LastHeartbeat.UnixMilli(),
		MissedHeartbeats: rec.MissedHeartbeats,
		Metadata:         rec.Metadata,
	}
}
