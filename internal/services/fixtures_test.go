package services

import (
	"context"
	"sync"
	"time"

	"kitchenline/server/internal/models"
)

var baseTime = time.Date(2025, 3, 14, 18, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: baseTime}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []models.Notification
}

func (r *recordingNotifier) Notify(ctx context.Context, n models.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingNotifier) Kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sent))
	for _, n := range r.sent {
		out = append(out, n.Kind)
	}
	return out
}

func (r *recordingNotifier) Last() models.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		return models.Notification{}
	}
	return r.sent[len(r.sent)-1]
}

func (r *recordingNotifier) Reset() {
	r.mu.Lock()
	r.sent = nil
	r.mu.Unlock()
}

func station(id, name string, typ models.StationType, sortOrder int) models.Station {
	return models.Station{ID: id, Name: name, Type: typ, SortOrder: sortOrder, IsActive: true, BranchID: "branch-1"}
}

// pizzaLine entry → 3 параллельные сборки → цепочка выдачи из двух станций
func pizzaLine() []models.Station {
	return []models.Station{
		station("entry", "Massa", models.StationTypeEntry, 1),
		station("asm-1", "Montagem 1", models.StationTypeParallelAssembly, 2),
		station("asm-2", "Montagem 2", models.StationTypeParallelAssembly, 2),
		station("asm-3", "Montagem 3", models.StationTypeParallelAssembly, 2),
		station("pass", "Expedição", models.StationTypeOrderStatus, 10),
		station("table", "Mesa", models.StationTypeOrderStatus, 20),
	}
}

func seedStore(stations []models.Station) *MemoryKitchenStore {
	store := NewMemoryKitchenStore()
	for _, s := range stations {
		store.PutStation(s)
	}
	return store
}

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

func floatPtr(f float64) *float64 { return &f }

func orderWithItems(id, orderType string, items ...models.OrderItem) models.Order {
	for i := range items {
		items[i].OrderID = id
		if items[i].StationStatus == "" {
			items[i].StationStatus = models.ItemStatusWaiting
		}
	}
	return models.Order{
		ID:        id,
		BranchID:  "branch-1",
		DisplayID: "#" + id,
		OrderType: orderType,
		Status:    models.OrderStatusPending,
		Items:     items,
	}
}
