package server

import (
	"time"

	"github.com/kashguard/go-heartbeat-infra/internal/event"
	"github.com/kashguard/go-heartbeat-infra/internal/registry"
)

// healthLoop periodically sweeps the registry and advances the state machine
// for nodes that have gone silent. The set of nodes visited in one tick is
// the snapshot taken at tick start, but each node is classified on its
// record's current values when it is visited, not on the values read at
// tick start.
func (s *Server) healthLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.closed:
			return
		case <-ticker.C:
			s.checkNodes()
		}
	}
}

// checkNodes runs one health-check tick. Each record's increment-and-classify
// step is a single atomic registry operation, so an inbound message landing
// mid-tick cannot be overwritten by a stale classification.
func (s *Server) checkNodes() {
	for _, rec := range s.registry.Snapshot() {
		s.transitionMu.Lock()
		updated, transition := s.registry.Expire(
			rec.NodeID,
			s.cfg.HeartbeatTimeout,
			s.cfg.SuspectThreshold,
			s.cfg.MaxMissedHeartbeats,
		)

		switch transition {
		case registry.TransitionSuspected:
			s.publish(event.KindNodeSuspected, updated)
		case registry.TransitionDied:
			s.publish(event.KindNodeDied, updated)
		case registry.TransitionNone:
		}
		s.transitionMu.Unlock()
	}

	s.metrics.SetNodeCounts(s.registry.CountByStatus())
}
