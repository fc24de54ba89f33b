package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kitchenline/server/internal/models"
)

func TestThresholdServiceDefaults(t *testing.T) {
	ts := NewThresholdService(NewMemoryKitchenStore(), "branch-1", testThreshold)
	set, err := ts.GetThresholds(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, set.Default.MaxQueueSize)
	assert.Equal(t, "branch-1", set.Default.BranchID)
	assert.Empty(t, set.PerStation)
	assert.Equal(t, set.Default, set.For("asm-1"))
}

func TestThresholdServiceOverrides(t *testing.T) {
	store := NewMemoryKitchenStore()
	ts := NewThresholdService(store, "branch-1", testThreshold)
	ctx := context.Background()

	def, err := ts.SetThreshold(ctx, models.BottleneckThreshold{MaxQueueSize: 8, MaxTimeRatio: 2, AlertsEnabled: true})
	require.NoError(t, err)
	assert.NotEmpty(t, def.ID)

	_, err = ts.SetThreshold(ctx, models.BottleneckThreshold{StationID: strPtr("oven"), MaxQueueSize: 3, MaxTimeRatio: 1.2})
	require.NoError(t, err)
	// та же станция - та же строка
	_, err = ts.SetThreshold(ctx, models.BottleneckThreshold{StationID: strPtr("oven"), MaxQueueSize: 4, MaxTimeRatio: 1.2})
	require.NoError(t, err)

	rows, err := store.GetThresholds(ctx, "branch-1")
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	set, err := ts.GetThresholds(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8, set.Default.MaxQueueSize)
	oven := set.For("oven")
	assert.Equal(t, 4, oven.MaxQueueSize)
	assert.False(t, oven.AlertsEnabled)
	assert.Equal(t, 8, set.For("asm-1").MaxQueueSize)
}

func TestThresholdServiceRejectsInvalid(t *testing.T) {
	ts := NewThresholdService(NewMemoryKitchenStore(), "branch-1", testThreshold)
	_, err := ts.SetThreshold(context.Background(), models.BottleneckThreshold{MaxQueueSize: 0, MaxTimeRatio: 1.5})
	assert.ErrorIs(t, err, ErrInvalidThreshold)

	_, err = ts.SetThreshold(context.Background(), models.BottleneckThreshold{MaxQueueSize: 3, MaxTimeRatio: -1})
	assert.ErrorIs(t, err, ErrInvalidThreshold)
}
