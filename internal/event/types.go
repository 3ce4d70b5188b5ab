package event

import (
	"time"

	"github.com/kashguard/go-heartbeat-infra/internal/registry"
)

// Kind identifies a node lifecycle event.
type Kind string

const (
	KindNodeJoined    Kind = "node_joined"
	KindNodeLeft      Kind = "node_left"
	KindNodeSuspected Kind = "node_suspected"
	KindNodeDied      Kind = "node_died"
	KindNodeRevived   Kind = "node_revived"
)

// Event is a single lifecycle notification. Node is a snapshot taken at the
// moment the state machine produced the transition, not a live reference.
type Event struct {
	Kind      Kind                `json:"kind"`
	Node      registry.NodeRecord `json:"-"`
	NodeID    string              `json:"node_id"`
	Status    string              `json:"status"`
	Timestamp time.Time           `json:"timestamp"`
}

// New builds an event from a record snapshot.
func New(kind Kind, node registry.NodeRecord, at time.Time) Event {
	return Event{
		Kind:      kind,
		Node:      node,
		NodeID:    node.NodeID,
		Status:    node.Status.String(),
		Timestamp: at,
	}
}

// Handler consumes events for one subscriber. Handlers run on the
// subscriber's own goroutine and may block without stalling the loops.
type Handler func(Event)
