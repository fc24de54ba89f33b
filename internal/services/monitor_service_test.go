package services

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kitchenline/server/internal/models"
)

type monitorFixture struct {
	store      *MemoryKitchenStore
	acks       *MemoryAlertStateStore
	clock      *fakeClock
	notifier   *recordingNotifier
	reconciler *Reconciler
	monitor    *MonitorService
}

func newMonitorFixture(stations []models.Station) *monitorFixture {
	store := seedStore(stations)
	acks := NewMemoryAlertStateStore()
	clock := newFakeClock()
	notifier := &recordingNotifier{}

	router := newTestRouter(store)
	reconciler := NewReconciler(3*time.Second, clock.Now)
	metrics := NewMetricsService(router, store, store, clock.Now)
	thresholds := NewThresholdService(store, "branch-1", testThreshold)
	alerts := NewAlertManager(acks, notifier, 5*time.Minute, 30*time.Second, clock.Now)

	monitor := NewMonitorService(MonitorOptions{BranchID: "branch-1"}, router, metrics, thresholds,
		alerts, reconciler, store, acks, notifier, clock.Now)
	return &monitorFixture{
		store:      store,
		acks:       acks,
		clock:      clock,
		notifier:   notifier,
		reconciler: reconciler,
		monitor:    monitor,
	}
}

func changeEvent(t *testing.T, table, op, id string, newRow, oldRow interface{}) models.ChangeEvent {
	t.Helper()
	ev := models.ChangeEvent{Table: table, Op: op, RecordID: id, BranchID: "branch-1", At: baseTime}
	if newRow != nil {
		raw, err := json.Marshal(newRow)
		require.NoError(t, err)
		ev.New = raw
	}
	if oldRow != nil {
		raw, err := json.Marshal(oldRow)
		require.NoError(t, err)
		ev.Old = raw
	}
	return ev
}

func TestMonitorOrderNotifications(t *testing.T) {
	f := newMonitorFixture(pizzaLine())
	ctx := context.Background()

	order := models.Order{ID: "o1", BranchID: "branch-1", DisplayID: "#12", Status: models.OrderStatusPending}
	f.monitor.HandleChange(ctx, changeEvent(t, models.TableOrders, models.OpInsert, "o1", order, nil))
	created := f.notifier.Last()
	assert.Equal(t, models.NotifyOrderCreated, created.Kind)
	assert.True(t, created.Audio)
	assert.Contains(t, created.Message, "#12")
	assert.NotEmpty(t, created.ID)

	prev := order
	prev.Status = models.OrderStatusPreparing
	order.Status = models.OrderStatusReady
	f.monitor.HandleChange(ctx, changeEvent(t, models.TableOrders, models.OpUpdate, "o1", order, prev))
	assert.Equal(t, models.NotifyOrderReady, f.notifier.Last().Kind)

	// повторный снимок ready без перехода не уведомляет
	f.monitor.HandleChange(ctx, changeEvent(t, models.TableOrders, models.OpUpdate, "o1", order, order))
	assert.Len(t, f.notifier.Kinds(), 2)
}

func TestMonitorCancellationAcknowledgement(t *testing.T) {
	f := newMonitorFixture(pizzaLine())
	ctx := context.Background()

	prev := models.Order{ID: "o1", BranchID: "branch-1", Status: models.OrderStatusPreparing}
	cancelled := prev
	cancelled.Status = models.OrderStatusCancelled
	ev := changeEvent(t, models.TableOrders, models.OpUpdate, "o1", cancelled, prev)

	f.monitor.HandleChange(ctx, ev)
	assert.Equal(t, models.NotifyOrderCancelled, f.notifier.Last().Kind)
	assert.Equal(t, []string{"o1"}, f.monitor.PendingCancellations())

	require.NoError(t, f.monitor.AcknowledgeCancellation(ctx, "o1"))
	assert.Empty(t, f.monitor.PendingCancellations())
	acked, err := f.acks.IsCancellationAcknowledged(ctx, "o1")
	require.NoError(t, err)
	assert.True(t, acked)

	// подтвержденная отмена больше не показывается
	f.notifier.Reset()
	f.monitor.HandleChange(ctx, ev)
	assert.Empty(t, f.notifier.Kinds())
	assert.Empty(t, f.monitor.PendingCancellations())
}

func TestMonitorIgnoresOtherBranches(t *testing.T) {
	f := newMonitorFixture(pizzaLine())
	ev := changeEvent(t, models.TableOrders, models.OpInsert, "o9", models.Order{ID: "o9"}, nil)
	ev.BranchID = "branch-2"

	f.monitor.HandleChange(context.Background(), ev)
	assert.Empty(t, f.notifier.Kinds())
}

func TestMonitorItemEventsGoThroughReconciler(t *testing.T) {
	f := newMonitorFixture(pizzaLine())
	ctx := context.Background()

	stale := waitingAt("i1", "asm-1")
	f.monitor.HandleChange(ctx, changeEvent(t, models.TableOrderItems, models.OpInsert, "i1", stale, nil))
	item, ok := f.reconciler.Item("i1")
	require.True(t, ok)
	assert.Equal(t, "asm-1", item.StationID())

	f.reconciler.ApplyOptimistic(stale, moveTo("pass"))
	f.reconciler.Confirm("i1")
	f.monitor.HandleChange(ctx, changeEvent(t, models.TableOrderItems, models.OpUpdate, "i1", stale, nil))
	item, _ = f.reconciler.Item("i1")
	assert.Equal(t, "pass", item.StationID(), "stale push ignored")

	f.monitor.HandleChange(ctx, changeEvent(t, models.TableOrderItems, models.OpDelete, "i1", nil, stale))
	_, ok = f.reconciler.Item("i1")
	assert.False(t, ok)
}

func TestMonitorRefreshDetectsBottleneck(t *testing.T) {
	f := newMonitorFixture(pizzaLine())
	ctx := context.Background()

	items := make([]models.OrderItem, 0, 9)
	for i := 0; i < 9; i++ {
		items = append(items, models.OrderItem{ID: fmt.Sprintf("q%d", i), CurrentStationID: strPtr("asm-1")})
	}
	f.store.PutOrder(orderWithItems("o1", models.OrderTypeDineIn, items...))

	snap, err := f.monitor.Refresh(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Metrics, 6)
	require.Len(t, snap.Bottlenecks, 1)
	assert.Equal(t, "asm-1", snap.Bottlenecks[0].StationID)
	assert.Equal(t, models.SeverityCritical, snap.Bottlenecks[0].Severity)
	require.Len(t, snap.Alerts, 1)
	assert.Equal(t, models.NotifyBottleneck, f.notifier.Last().Kind)
	assert.True(t, snap.ComputedAt.Equal(baseTime))
	assert.Equal(t, snap, f.monitor.Snapshot())

	_, ok := f.reconciler.Item("q0")
	assert.True(t, ok, "refresh reloads the item cache")
}

func TestMonitorStationChangeInvalidatesTopology(t *testing.T) {
	f := newMonitorFixture(pizzaLine())
	ctx := context.Background()

	snap, err := f.monitor.Refresh(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Metrics, 6)

	added := station("asm-4", "Montagem 4", models.StationTypeParallelAssembly, 2)
	f.store.PutStation(added)
	f.monitor.HandleChange(ctx, changeEvent(t, models.TableStations, models.OpInsert, "asm-4", added, nil))

	snap, err = f.monitor.Refresh(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Metrics, 7)
}

func TestMonitorRunRefreshesWhenDirty(t *testing.T) {
	f := newMonitorFixture(pizzaLine())
	f.monitor.opts.Debounce = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.monitor.Run(ctx)

	require.Eventually(t, func() bool {
		return len(f.monitor.Snapshot().Metrics) == 6
	}, time.Second, 5*time.Millisecond)
}
