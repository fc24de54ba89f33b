package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kitchenline/server/internal/models"
)

func completedLog(stationID string, seconds float64, at time.Time) models.StationLog {
	return models.StationLog{
		OrderItemID:     "item",
		StationID:       stationID,
		Action:          models.LogActionCompleted,
		DurationSeconds: floatPtr(seconds),
		Timestamp:       at,
	}
}

func TestComputeStationMetrics(t *testing.T) {
	st := station("asm-1", "Montagem 1", models.StationTypeParallelAssembly, 2)
	since := baseTime.Add(-time.Hour)
	logs := []models.StationLog{
		completedLog("asm-1", 60, baseTime.Add(-10*time.Minute)),
		completedLog("asm-1", 120, baseTime.Add(-20*time.Minute)),
		completedLog("asm-1", 90, baseTime.Add(-30*time.Minute)),
		completedLog("asm-1", 999, baseTime.Add(-2*time.Hour)), // вне окна
		completedLog("asm-2", 10, baseTime.Add(-time.Minute)),
		{StationID: "asm-1", Action: models.LogActionEntered, Timestamp: baseTime},
	}
	items := []models.OrderItem{
		{ID: "1", CurrentStationID: strPtr("asm-1"), StationStatus: models.ItemStatusWaiting},
		{ID: "2", CurrentStationID: strPtr("asm-1"), StationStatus: models.ItemStatusWaiting},
		{ID: "3", CurrentStationID: strPtr("asm-1"), StationStatus: models.ItemStatusInProgress},
		{ID: "4", CurrentStationID: strPtr("asm-1"), StationStatus: models.ItemStatusDone},
		{ID: "5", CurrentStationID: strPtr("asm-2"), StationStatus: models.ItemStatusWaiting},
	}

	m := ComputeStationMetrics(st, logs, items, since)
	assert.Equal(t, "asm-1", m.StationID)
	assert.Equal(t, "Montagem 1", m.StationName)
	assert.Equal(t, 3, m.Completed)
	assert.InDelta(t, 90.0, m.AverageSeconds, 0.001)
	assert.InDelta(t, 60.0, m.MinSeconds, 0.001)
	assert.InDelta(t, 120.0, m.MaxSeconds, 0.001)
	assert.Equal(t, 2, m.CurrentQueue)
	assert.Equal(t, 1, m.InProgress)
}

func TestComputeStationMetricsWithoutCompletions(t *testing.T) {
	st := station("oven", "Forno", models.StationTypeCustom, 1)
	m := ComputeStationMetrics(st, nil, nil, baseTime)
	assert.Zero(t, m.Completed)
	assert.Zero(t, m.AverageSeconds)
	assert.Zero(t, m.MinSeconds)
	assert.Zero(t, m.MaxSeconds)
}

func TestMetricsServiceWindow(t *testing.T) {
	store := seedStore(pizzaLine())
	clock := newFakeClock()
	ctx := context.Background()

	require.NoError(t, store.AppendStationLog(ctx, completedLog("asm-1", 100, baseTime.Add(-30*time.Minute))))
	require.NoError(t, store.AppendStationLog(ctx, completedLog("asm-1", 300, baseTime.Add(-3*time.Hour))))
	store.PutItem(models.OrderItem{ID: "w", CurrentStationID: strPtr("asm-1"), StationStatus: models.ItemStatusWaiting})

	ms := NewMetricsService(newTestRouter(store), store, store, clock.Now)

	hour, err := ms.StationMetrics(ctx, "asm-1", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, hour.Completed)
	assert.InDelta(t, 100.0, hour.AverageSeconds, 0.001)
	assert.Equal(t, 1, hour.CurrentQueue)

	day, err := ms.StationMetrics(ctx, "asm-1", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, day.Completed)
	assert.InDelta(t, 200.0, day.AverageSeconds, 0.001)

	_, err = ms.StationMetrics(ctx, "ghost", time.Hour)
	assert.ErrorIs(t, err, ErrStationNotFound)
}

func TestAllStationMetricsFollowsTopology(t *testing.T) {
	store := seedStore(pizzaLine())
	ms := NewMetricsService(newTestRouter(store), store, store, newFakeClock().Now)

	all, err := ms.AllStationMetrics(context.Background(), time.Hour)
	require.NoError(t, err)
	ids := make([]string, 0, len(all))
	for _, m := range all {
		ids = append(ids, m.StationID)
	}
	assert.Equal(t, []string{"entry", "asm-1", "asm-2", "asm-3", "pass", "table"}, ids)
}
