package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kitchenline/server/internal/models"
)

func newTestRouter(store *MemoryKitchenStore) *SmartRouter {
	return NewSmartRouter(store, store, "branch-1", NewEntryClassifier(nil))
}

func TestTopologyOrdering(t *testing.T) {
	stations := []models.Station{
		station("z", "Zeta", models.StationTypeCustom, 2),
		station("a", "Alpha", models.StationTypeCustom, 2),
		station("first", "Omega", models.StationTypeCustom, 1),
	}
	inactive := station("off", "Off", models.StationTypeCustom, 0)
	inactive.IsActive = false
	stations = append(stations, inactive)

	topo := NewTopology(stations)
	assert.Equal(t, []string{"first", "a", "z"}, StationIDs(topo.Stations()))
	assert.False(t, topo.Has("off"))

	_, err := topo.Station("off")
	assert.ErrorIs(t, err, ErrStationNotFound)
}

func TestTopologyValidateEmpty(t *testing.T) {
	assert.ErrorIs(t, NewTopology(nil).Validate(), ErrNoActiveStations)
}

func TestInitialStationUsesEntryForFilledCrust(t *testing.T) {
	router := newTestRouter(seedStore(pizzaLine()))
	ctx := context.Background()

	decision, err := router.InitialStation(ctx, models.ItemAttributes{
		Extras: []string{"Borda recheada de catupiry"},
	})
	require.NoError(t, err)
	assert.Equal(t, "entry", decision.StationID)
	assert.Equal(t, models.StationTypeEntry, decision.StationType)

	decision, err = router.InitialStation(ctx, models.ItemAttributes{Notes: "sem cebola"})
	require.NoError(t, err)
	assert.Equal(t, models.StationTypeParallelAssembly, decision.StationType)
	assert.Equal(t, "asm-1", decision.StationID)
}

func TestInitialStationWithoutStations(t *testing.T) {
	router := newTestRouter(NewMemoryKitchenStore())
	_, err := router.InitialStation(context.Background(), models.ItemAttributes{})
	assert.ErrorIs(t, err, ErrNoActiveStations)
}

func TestEntryRoutesToLeastLoadedAssembly(t *testing.T) {
	store := seedStore(pizzaLine())
	store.PutItem(models.OrderItem{ID: "busy-1", CurrentStationID: strPtr("asm-1"), StationStatus: models.ItemStatusWaiting})
	store.PutItem(models.OrderItem{ID: "busy-2", CurrentStationID: strPtr("asm-1"), StationStatus: models.ItemStatusInProgress})
	store.PutItem(models.OrderItem{ID: "busy-3", CurrentStationID: strPtr("asm-2"), StationStatus: models.ItemStatusWaiting})
	// done не считается загрузкой
	store.PutItem(models.OrderItem{ID: "old", CurrentStationID: strPtr("asm-3"), StationStatus: models.ItemStatusDone})

	router := newTestRouter(store)
	decision, err := router.NextStation(context.Background(), RouteRequest{CurrentStationID: "entry", OrderType: models.OrderTypeDineIn})
	require.NoError(t, err)
	assert.Equal(t, "asm-3", decision.StationID)
}

func TestEntryWithoutAssemblyGoesToOrderStatus(t *testing.T) {
	store := seedStore([]models.Station{
		station("entry", "Massa", models.StationTypeEntry, 1),
		station("pass", "Expedição", models.StationTypeOrderStatus, 10),
	})
	decision, err := newTestRouter(store).NextStation(context.Background(), RouteRequest{CurrentStationID: "entry"})
	require.NoError(t, err)
	assert.Equal(t, "pass", decision.StationID)
}

func TestAssemblyGoesToFirstOrderStatus(t *testing.T) {
	router := newTestRouter(seedStore(pizzaLine()))
	decision, err := router.NextStation(context.Background(), RouteRequest{CurrentStationID: "asm-2", OrderType: models.OrderTypeDelivery})
	require.NoError(t, err)
	assert.Equal(t, "pass", decision.StationID)
	assert.Equal(t, models.StationTypeOrderStatus, decision.StationType)
}

func TestOrderStatusChainDependsOnOrderType(t *testing.T) {
	router := newTestRouter(seedStore(pizzaLine()))
	ctx := context.Background()

	for _, orderType := range []string{models.OrderTypeDelivery, models.OrderTypeTakeaway} {
		decision, err := router.NextStation(ctx, RouteRequest{CurrentStationID: "pass", OrderType: orderType})
		require.NoError(t, err)
		assert.Nil(t, decision, orderType)
	}

	decision, err := router.NextStation(ctx, RouteRequest{CurrentStationID: "pass", OrderType: models.OrderTypeDineIn})
	require.NoError(t, err)
	require.NotNil(t, decision)
	assert.Equal(t, "table", decision.StationID)

	decision, err = router.NextStation(ctx, RouteRequest{CurrentStationID: "table", OrderType: models.OrderTypeDineIn})
	require.NoError(t, err)
	assert.Nil(t, decision)
}

func TestCustomStationsRouteSequentially(t *testing.T) {
	store := seedStore([]models.Station{
		station("prep", "Preparo", models.StationTypeCustom, 1),
		station("oven", "Forno", models.StationTypeCustom, 2),
		station("cut", "Corte", models.StationTypeExpedite, 3),
		station("pass", "Expedição", models.StationTypeOrderStatus, 10),
	})
	router := newTestRouter(store)
	ctx := context.Background()

	decision, err := router.InitialStation(ctx, models.ItemAttributes{})
	require.NoError(t, err)
	assert.Equal(t, "prep", decision.StationID)

	var path []string
	current := decision.StationID
	for current != "" {
		path = append(path, current)
		next, err := router.NextStation(ctx, RouteRequest{CurrentStationID: current, OrderType: models.OrderTypeTakeaway})
		require.NoError(t, err)
		if next == nil {
			break
		}
		current = next.StationID
	}
	assert.Equal(t, []string{"prep", "oven", "cut", "pass"}, path)
}

func TestNextStationUnknownCurrent(t *testing.T) {
	router := newTestRouter(seedStore(pizzaLine()))
	_, err := router.NextStation(context.Background(), RouteRequest{CurrentStationID: "ghost"})
	assert.ErrorIs(t, err, ErrStationNotFound)
}

func TestInvalidateTopologyReloadsStations(t *testing.T) {
	store := seedStore(pizzaLine())
	router := newTestRouter(store)
	ctx := context.Background()

	topo, err := router.Topology(ctx)
	require.NoError(t, err)
	assert.Len(t, topo.Stations(), 6)

	store.PutStation(station("asm-4", "Montagem 4", models.StationTypeParallelAssembly, 2))
	topo, err = router.Topology(ctx)
	require.NoError(t, err)
	assert.Len(t, topo.Stations(), 6, "cached topology until invalidated")

	router.InvalidateTopology()
	topo, err = router.Topology(ctx)
	require.NoError(t, err)
	assert.Len(t, topo.ParallelStations(), 4)
}

func TestEmptyTopologyIsNotCached(t *testing.T) {
	store := seedStore(nil)
	router := newTestRouter(store)
	ctx := context.Background()

	topo, err := router.Topology(ctx)
	require.NoError(t, err)
	assert.ErrorIs(t, topo.Validate(), ErrNoActiveStations)

	// станции появились без события stations
	store.PutStation(station("pass", "Expedição", models.StationTypeOrderStatus, 10))
	topo, err = router.Topology(ctx)
	require.NoError(t, err)
	require.NoError(t, topo.Validate())
	assert.Len(t, topo.Stations(), 1)
}

func TestEntryClassifier(t *testing.T) {
	c := NewEntryClassifier(nil)
	cases := []struct {
		name  string
		attrs models.ItemAttributes
		want  bool
	}{
		{"extra keyword", models.ItemAttributes{Extras: []string{"Borda recheada de catupiry"}}, true},
		{"case insensitive notes", models.ItemAttributes{Notes: "CHEDDAR na borda"}, true},
		{"sub item option", models.ItemAttributes{SubItems: []models.SubItem{{Name: "Meia", Options: []string{"Chocolate"}}}}, true},
		{"plain", models.ItemAttributes{Notes: "bem assada", Extras: []string{"azeitona"}}, false},
		{"empty", models.ItemAttributes{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, c.NeedsEntry(tc.attrs))
		})
	}
}
