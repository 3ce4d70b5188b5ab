package registry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddOrUpdateNewRecord(t *testing.T) {
	clock := time2.NewMockClock(time.Now())
	reg := New(clock)

	res := reg.AddOrUpdate("node-1", "10.0.0.5", 4711, map[string]string{"region": "eu"})
	assert.True(t, res.WasNew)
	assert.Equal(t, StatusUnknown, res.PreviousStatus)
	assert.Equal(t, StatusAlive, res.Record.Status)
	assert.Equal(t, 0, res.Record.MissedHeartbeats)
	assert.Equal(t, "10.0.0.5", res.Record.Address)
	assert.Equal(t, 4711, res.Record.Port)
	assert.Equal(t, 1, reg.Count())
}

func TestAddOrUpdateCapturesPreviousStatus(t *testing.T) {
	reg := New(time2.NewMockClock(time.Now()))
	reg.AddOrUpdate("node-1", "10.0.0.5", 4711, nil)

	reg.SetStatus("node-1", StatusDead)

	res := reg.AddOrUpdate("node-1", "10.0.0.6", 4712, nil)
	assert.False(t, res.WasNew)
	assert.Equal(t, StatusDead, res.PreviousStatus)
	assert.Equal(t, StatusAlive, res.Record.Status)
	assert.Equal(t, 0, res.Record.MissedHeartbeats)
	assert.Equal(t, "10.0.0.6", res.Record.Address)
}

func TestAddOrUpdateResetsMissCounter(t *testing.T) {
	reg := New(time2.NewMockClock(time.Now()))
	reg.AddOrUpdate("node-1", "10.0.0.5", 4711, nil)

	reg.IncrementMissed("node-1")
	reg.IncrementMissed("node-1")

	res := reg.AddOrUpdate("node-1", "10.0.0.5", 4711, nil)
	assert.Equal(t, 0, res.Record.MissedHeartbeats)
}

func TestAddOrUpdateRetainsMetadataOnEmptyUpdate(t *testing.T) {
	reg := New(time2.NewMockClock(time.Now()))
	reg.AddOrUpdate("node-1", "10.0.0.5", 4711, map[string]string{"region": "eu"})

	// A metadata-less ping refreshes liveness but keeps the last report.
	res := reg.AddOrUpdate("node-1", "10.0.0.5", 4711, nil)
	assert.Equal(t, "eu", res.Record.Metadata["region"])

	res = reg.AddOrUpdate("node-1", "10.0.0.5", 4711, map[string]string{"cpu": "0.42"})
	assert.Equal(t, "0.42", res.Record.Metadata["cpu"])
}

func TestIncrementMissedAbsent(t *testing.T) {
	reg := New(nil)
	assert.Equal(t, 0, reg.IncrementMissed("ghost"))
}

func TestSetStatusAbsent(t *testing.T) {
	reg := New(nil)
	assert.Equal(t, StatusUnknown, reg.SetStatus("ghost", StatusDead))
}

func TestRemove(t *testing.T) {
	reg := New(time2.NewMockClock(time.Now()))
	reg.AddOrUpdate("node-1", "10.0.0.5", 4711, nil)

	rec, ok := reg.Remove("node-1")
	require.True(t, ok)
	assert.Equal(t, "node-1", rec.NodeID)
	assert.Equal(t, 0, reg.Count())

	_, ok = reg.Remove("node-1")
	assert.False(t, ok)

	// A later message creates a fresh record.
	res := reg.AddOrUpdate("node-1", "10.0.0.5", 4711, nil)
	assert.True(t, res.WasNew)
}

func TestExpireClassification(t *testing.T) {
	clock := time2.NewMockClock(time.Now())
	reg := New(clock)
	reg.AddOrUpdate("node-1", "10.0.0.5", 4711, nil)

	timeout := 3 * time.Second

	// Fresh record: nothing happens.
	rec, tr := reg.Expire("node-1", timeout, 2, 3)
	assert.Equal(t, TransitionNone, tr)
	assert.Equal(t, 0, rec.MissedHeartbeats)
	assert.Equal(t, StatusAlive, rec.Status)

	clock.Advance(timeout + time.Millisecond)

	// missed=1: below suspect threshold, still alive.
	rec, tr = reg.Expire("node-1", timeout, 2, 3)
	assert.Equal(t, TransitionNone, tr)
	assert.Equal(t, 1, rec.MissedHeartbeats)
	assert.Equal(t, StatusAlive, rec.Status)

	// missed=2: exactly at suspect threshold.
	rec, tr = reg.Expire("node-1", timeout, 2, 3)
	assert.Equal(t, TransitionSuspected, tr)
	assert.Equal(t, 2, rec.MissedHeartbeats)
	assert.Equal(t, StatusSuspected, rec.Status)

	// missed=3: exactly at max missed.
	rec, tr = reg.Expire("node-1", timeout, 2, 3)
	assert.Equal(t, TransitionDied, tr)
	assert.Equal(t, 3, rec.MissedHeartbeats)
	assert.Equal(t, StatusDead, rec.Status)

	// Already dead: no repeated transition.
	rec, tr = reg.Expire("node-1", timeout, 2, 3)
	assert.Equal(t, TransitionNone, tr)
	assert.Equal(t, 4, rec.MissedHeartbeats)
	assert.Equal(t, StatusDead, rec.Status)
}

func TestExpireSkipsSuspectedForRepeatedMisses(t *testing.T) {
	clock := time2.NewMockClock(time.Now())
	reg := New(clock)
	reg.AddOrUpdate("node-1", "10.0.0.5", 4711, nil)

	clock.Advance(10 * time.Second)

	// Suspected fires once; further misses below max stay silent.
	_, tr := reg.Expire("node-1", 3*time.Second, 1, 5)
	assert.Equal(t, TransitionSuspected, tr)
	_, tr = reg.Expire("node-1", 3*time.Second, 1, 5)
	assert.Equal(t, TransitionNone, tr)
}

func TestExpireCoincidingThresholds(t *testing.T) {
	clock := time2.NewMockClock(time.Now())
	reg := New(clock)
	reg.AddOrUpdate("node-1", "10.0.0.5", 4711, nil)

	clock.Advance(10 * time.Second)

	// suspect == max: Alive goes straight to Dead, no Suspected in between.
	rec, tr := reg.Expire("node-1", 3*time.Second, 1, 1)
	assert.Equal(t, TransitionDied, tr)
	assert.Equal(t, StatusDead, rec.Status)
}

func TestExpireAbsent(t *testing.T) {
	reg := New(nil)
	_, tr := reg.Expire("ghost", time.Second, 2, 3)
	assert.Equal(t, TransitionNone, tr)
}

func TestSnapshotIsolation(t *testing.T) {
	reg := New(time2.NewMockClock(time.Now()))
	reg.AddOrUpdate("node-1", "10.0.0.5", 4711, map[string]string{"k": "v"})

	snap := reg.Snapshot()
	require.Len(t, snap, 1)

	// Mutating the snapshot must not leak into the registry.
	snap[0].Metadata["k"] = "changed"
	snap[0].Status = StatusDead

	rec, ok := reg.Get("node-1")
	require.True(t, ok)
	assert.Equal(t, "v", rec.Metadata["k"])
	assert.Equal(t, StatusAlive, rec.Status)
}

func TestConcurrentMutation(t *testing.T) {
	reg := New(time2.NewMockClock(time.Now()))

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("node-%d", i%8)
			for j := 0; j < 100; j++ {
				reg.AddOrUpdate(id, "10.0.0.5", 4711, nil)
				reg.IncrementMissed(id)
				reg.Snapshot()
				reg.Get(id)
				if j%10 == 0 {
					reg.Remove(id)
				}
			}
		}(i)
	}
	wg.Wait()

	// Invariant: at most one record per node id.
	seen := make(map[string]bool)
	for _, rec := range reg.Snapshot() {
		assert.False(t, seen[rec.NodeID])
		seen[rec.NodeID] = true
		assert.GreaterOrEqual(t, rec.MissedHeartbeats, 0)
	}
}

func TestCountByStatus(t *testing.T) {
	reg := New(time2.NewMockClock(time.Now()))
	reg.AddOrUpdate("a", "10.0.0.1", 1, nil)
	reg.AddOrUpdate("b", "10.0.0.2", 2, nil)
	reg.AddOrUpdate("c", "10.0.0.3", 3, nil)
	reg.SetStatus("b", StatusSuspected)
	reg.SetStatus("c", StatusDead)

	counts := reg.CountByStatus()
	assert.Equal(t, 1, counts[StatusAlive])
	assert.Equal(t, 1, counts[StatusSuspected])
	assert.Equal(t, 1, counts[StatusDead])
}
