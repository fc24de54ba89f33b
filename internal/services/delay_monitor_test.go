package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kitchenline/server/internal/models"
)

func TestDelayMonitorCheck(t *testing.T) {
	store := seedStore(pizzaLine())
	clock := newFakeClock()
	notifier := &recordingNotifier{}
	ctx := context.Background()

	store.PutOrder(orderWithItems("o1", models.OrderTypeDineIn,
		models.OrderItem{ID: "late", CurrentStationID: strPtr("asm-1"), StationStartedAt: timePtr(baseTime.Add(-25 * time.Minute))},
		models.OrderItem{ID: "fresh", CurrentStationID: strPtr("asm-2"), StationStartedAt: timePtr(baseTime.Add(-5 * time.Minute))},
	))
	cancelled := orderWithItems("o2", models.OrderTypeDelivery,
		models.OrderItem{ID: "ignored", CurrentStationID: strPtr("asm-3"), StationStartedAt: timePtr(baseTime.Add(-time.Hour))},
	)
	cancelled.Status = models.OrderStatusCancelled
	store.PutOrder(cancelled)

	dm := NewDelayMonitor(store, notifier, "branch-1", 20*time.Minute, 30*time.Second, time.Minute, clock.Now)

	report, err := dm.Check(ctx)
	require.NoError(t, err)
	assert.True(t, report.Delayed)
	assert.True(t, report.Audio)
	assert.Equal(t, 2, report.Outstanding)
	require.Len(t, report.Items, 1)
	assert.Equal(t, "late", report.Items[0].ItemID)
	assert.Equal(t, 25*time.Minute, report.Items[0].Elapsed)
	assert.Equal(t, []string{models.NotifyDelay}, notifier.Kinds())
	assert.Equal(t, []string{"late"}, notifier.Last().ItemIDs)

	// звук не чаще раза в минуту, повторное уведомление только со звуком
	clock.Advance(30 * time.Second)
	report, err = dm.Check(ctx)
	require.NoError(t, err)
	assert.True(t, report.Delayed)
	assert.False(t, report.Audio)
	assert.Len(t, notifier.Kinds(), 1)

	clock.Advance(31 * time.Second)
	report, err = dm.Check(ctx)
	require.NoError(t, err)
	assert.True(t, report.Audio)
	assert.Len(t, notifier.Kinds(), 2)

	status := models.ItemStatusDone
	require.NoError(t, store.UpdateItem(ctx, "late", models.ItemPatch{StationStatus: &status}))
	report, err = dm.Check(ctx)
	require.NoError(t, err)
	assert.False(t, report.Delayed)
	assert.Equal(t, models.NotifyDelayCleared, notifier.Last().Kind)
	assert.Equal(t, report, dm.Last())
}

func TestDelayMonitorRunStopsOnCancel(t *testing.T) {
	dm := NewDelayMonitor(NewMemoryKitchenStore(), nil, "branch-1", 0, 10*time.Millisecond, 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		dm.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return !dm.Last().CheckedAt.IsZero() }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("delay monitor did not stop")
	}
}
