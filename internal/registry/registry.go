package registry

import (
	"sync"
	"time"

	"github.com/dropbox/godropbox/time2"
)

// Registry is the concurrent node table shared by the ingress and
// health-check loops. Every exported operation is atomic at the granularity
// of a single record; snapshots are safe to iterate while the registry
// mutates underneath.
type Registry struct {
	mu    sync.RWMutex
	nodes map[string]*NodeRecord
	clock time2.Clock
}

func New(clock time2.Clock) *Registry {
	if clock == nil {
		clock = time2.DefaultClock
	}
	return &Registry{
		nodes: make(map[string]*NodeRecord),
		clock: clock,
	}
}

// AddOrUpdate inserts a fresh Alive record for nodeID, or refreshes the
// existing one: the endpoint is overwritten, the status reset to Alive, the
// miss counter to zero, and a non-empty metadata map replaces the stored
// one. The previous status is captured under the same lock as the update so
// the two cannot drift.
func (r *Registry) AddOrUpdate(nodeID, address string, port int, metadata map[string]string) UpdateResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()

	rec, ok := r.nodes[nodeID]
	if !ok {
		rec = &NodeRecord{NodeID: nodeID}
		r.nodes[nodeID] = rec
	}

	previous := StatusUnknown
	if ok {
		previous = rec.Status
	}

	rec.Address = address
	rec.Port = port
	rec.Status = StatusAlive
	rec.LastHeartbeat = now
	rec.MissedHeartbeats = 0
	// Pings carry no metadata; only a message that actually has some
	// replaces what Join or Health reported last.
	if len(metadata) > 0 {
		rec.Metadata = copyMetadata(metadata)
	}

	return UpdateResult{
		Record:         rec.snapshot(),
		WasNew:         !ok,
		PreviousStatus: previous,
	}
}

// IncrementMissed advances the miss counter for nodeID and returns the new
// count. Returns 0 if no record exists.
func (r *Registry) IncrementMissed(nodeID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.nodes[nodeID]
	if !ok {
		return 0
	}
	rec.MissedHeartbeats++
	return rec.MissedHeartbeats
}

// SetStatus updates the status for nodeID and returns the previous status.
// Returns StatusUnknown if no record exists.
func (r *Registry) SetStatus(nodeID string, status NodeStatus) NodeStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.nodes[nodeID]
	if !ok {
		return StatusUnknown
	}
	previous := rec.Status
	rec.Status = status
	return previous
}

// Expire performs one health-check step for nodeID: if the record's last
// heartbeat is older than timeout, the miss counter is incremented and the
// record classified against the two watermarks. Dead takes priority over
// Suspected, and each transition fires at most once: an already-Dead record
// never re-reports Died, and only an Alive record can become Suspected.
// The whole step runs under the registry lock so a concurrent inbound message
// cannot interleave between the increment and the status change.
func (r *Registry) Expire(nodeID string, timeout time.Duration, suspectThreshold, maxMissed int) (NodeRecord, Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.nodes[nodeID]
	if !ok {
		return NodeRecord{}, TransitionNone
	}

	if r.clock.Since(rec.LastHeartbeat) <= timeout {
		return rec.snapshot(), TransitionNone
	}

	rec.MissedHeartbeats++

	transition := TransitionNone
	switch {
	case rec.MissedHeartbeats >= maxMissed && rec.Status != StatusDead:
		rec.Status = StatusDead
		transition = TransitionDied
	case rec.MissedHeartbeats >= suspectThreshold && rec.Status == StatusAlive:
		rec.Status = StatusSuspected
		transition = TransitionSuspected
	}

	return rec.snapshot(), transition
}

// Remove deletes the record for nodeID and returns it. A later message from
// the same nodeID creates a fresh record.
func (r *Registry) Remove(nodeID string) (NodeRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.nodes[nodeID]
	if !ok {
		return NodeRecord{}, false
	}
	delete(r.nodes, nodeID)
	return rec.snapshot(), true
}

// Get returns a snapshot of the record for nodeID.
func (r *Registry) Get(nodeID string) (NodeRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.nodes[nodeID]
	if !ok {
		return NodeRecord{}, false
	}
	return rec.snapshot(), true
}

// Snapshot returns a point-in-time copy of every record. The slice is owned
// by the caller.
func (r *Registry) Snapshot() []NodeRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := make([]NodeRecord, 0, len(r.nodes))
	for _, rec := range r.nodes {
		records = append(records, rec.snapshot())
	}
	return records
}

// Count returns the number of registered nodes.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}

// CountByStatus returns the number of nodes per status.
func (r *Registry) CountByStatus() map[NodeStatus]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[NodeStatus]int, 3)
	for _, rec := range r.nodes {
		counts[rec.Status]++
	}
	return counts
}

func (r *NodeRecord) snapshot() NodeRecord {
	snap := *r
	snap.Metadata = copyMetadata(r.Metadata)
	return snap
}

func copyMetadata(metadata map[string]string) map[string]string {
	if metadata == nil {
		return nil
	}
	out := make(map[string]string, len(metadata))
	for k, v := range metadata {
		out[k] = v
	}
	return out
}
