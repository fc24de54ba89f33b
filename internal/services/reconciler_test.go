package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kitchenline/server/internal/models"
)

func waitingAt(id, stationID string) models.OrderItem {
	return models.OrderItem{ID: id, OrderID: "o1", CurrentStationID: strPtr(stationID), StationStatus: models.ItemStatusWaiting}
}

func moveTo(stationID string) models.ItemPatch {
	status := models.ItemStatusWaiting
	return models.ItemPatch{CurrentStationID: &stationID, StationStatus: &status}
}

func TestReconcilerIgnoresStalePushWithinWindow(t *testing.T) {
	clock := newFakeClock()
	r := NewReconciler(3*time.Second, clock.Now)

	stale := waitingAt("i1", "asm-1")
	require.True(t, r.ApplyServer(stale))

	local := r.ApplyOptimistic(stale, moveTo("pass"))
	assert.Equal(t, "pass", local.StationID())
	assert.Equal(t, ProjectionPendingWrite, r.State("i1"))
	assert.True(t, r.IsRecentlyMoved("i1"))

	r.Confirm("i1")
	assert.Equal(t, ProjectionProtected, r.State("i1"))

	clock.Advance(time.Second)
	assert.False(t, r.ApplyServer(stale), "stale snapshot inside the guard window")
	item, ok := r.Item("i1")
	require.True(t, ok)
	assert.Equal(t, "pass", item.StationID())
}

func TestReconcilerAcceptsMatchingPushImmediately(t *testing.T) {
	clock := newFakeClock()
	r := NewReconciler(3*time.Second, clock.Now)

	local := r.ApplyOptimistic(waitingAt("i1", "asm-1"), moveTo("pass"))
	r.Confirm("i1")

	assert.True(t, r.ApplyServer(local))
	assert.Equal(t, ProjectionConfirmed, r.State("i1"))
}

func TestReconcilerServerWinsAfterExpiry(t *testing.T) {
	clock := newFakeClock()
	r := NewReconciler(3*time.Second, clock.Now)

	stale := waitingAt("i1", "asm-1")
	r.ApplyOptimistic(stale, moveTo("pass"))
	r.Confirm("i1")

	clock.Advance(4 * time.Second)
	assert.Equal(t, ProjectionConfirmed, r.State("i1"))
	assert.False(t, r.IsRecentlyMoved("i1"))

	other := waitingAt("i1", "table")
	assert.True(t, r.ApplyServer(other))
	item, _ := r.Item("i1")
	assert.Equal(t, "table", item.StationID())
}

func TestReconcilerPendingWriteIsGuardedPastWindow(t *testing.T) {
	clock := newFakeClock()
	r := NewReconciler(3*time.Second, clock.Now)

	r.ApplyOptimistic(waitingAt("i1", "asm-1"), moveTo("pass"))
	clock.Advance(10 * time.Second)
	assert.False(t, r.ApplyServer(waitingAt("i1", "asm-1")), "unconfirmed write stays visible")
	assert.Equal(t, ProjectionPendingWrite, r.State("i1"))
}

func TestReconcilerRollback(t *testing.T) {
	clock := newFakeClock()
	r := NewReconciler(3*time.Second, clock.Now)

	original := waitingAt("i1", "asm-1")
	r.ApplyServer(original)
	r.ApplyOptimistic(original, moveTo("pass"))
	r.Rollback("i1")

	item, ok := r.Item("i1")
	require.True(t, ok)
	assert.Equal(t, "asm-1", item.StationID())
	assert.Equal(t, ProjectionConfirmed, r.State("i1"))
	assert.False(t, r.IsRecentlyMoved("i1"))
}

func TestReconcilerLoadKeepsProtectedItems(t *testing.T) {
	clock := newFakeClock()
	r := NewReconciler(3*time.Second, clock.Now)

	r.ApplyServer(waitingAt("gone", "asm-2"))
	r.ApplyOptimistic(waitingAt("moving", "asm-1"), moveTo("pass"))
	r.Confirm("moving")

	r.Load([]models.OrderItem{waitingAt("fresh", "asm-3"), waitingAt("moving", "asm-1")})

	ids := make([]string, 0)
	for _, item := range r.Items(nil) {
		ids = append(ids, item.ID)
	}
	assert.Equal(t, []string{"fresh", "moving"}, ids)
	item, _ := r.Item("moving")
	assert.Equal(t, "pass", item.StationID())

	onPass := r.Items(func(i models.OrderItem) bool { return i.StationID() == "pass" })
	require.Len(t, onPass, 1)

	r.Remove("fresh")
	_, ok := r.Item("fresh")
	assert.False(t, ok)
}

func TestReconcilerMarkRecentlyMoved(t *testing.T) {
	clock := newFakeClock()
	r := NewReconciler(0, clock.Now)

	r.MarkRecentlyMoved("i1")
	assert.True(t, r.IsRecentlyMoved("i1"))
	clock.Advance(DefaultMovedMarkerTTL)
	assert.False(t, r.IsRecentlyMoved("i1"))
}
