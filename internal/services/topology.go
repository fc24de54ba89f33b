package services

import (
	"fmt"
	"sort"

	"kitchenline/server/internal/models"
)

// Topology упорядоченный список активных станций филиала.
// Не изменяется во время принятия решения о маршруте.
type Topology struct {
	stations []models.Station
	byID     map[string]int
}

// NewTopology строит топологию из станций: только активные, порядок (SortOrder, Name, ID)
func NewTopology(stations []models.Station) *Topology {
	active := make([]models.Station, 0, len(stations))
	for _, s := range stations {
		if s.IsActive && !s.DeletedAt.Valid {
			active = append(active, s)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].SortOrder != active[j].SortOrder {
			return active[i].SortOrder < active[j].SortOrder
		}
		if active[i].Name != active[j].Name {
			return active[i].Name < active[j].Name
		}
		return active[i].ID < active[j].ID
	})

	byID := make(map[string]int, len(active))
	for i, s := range active {
		byID[s.ID] = i
	}
	return &Topology{stations: active, byID: byID}
}

// Validate проверяет, что есть хотя бы одна активная станция
func (t *Topology) Validate() error {
	if len(t.stations) == 0 {
		return ErrNoActiveStations
	}
	return nil
}

// Stations все активные станции в порядке топологии
func (t *Topology) Stations() []models.Station {
	out := make([]models.Station, len(t.stations))
	copy(out, t.stations)
	return out
}

// Station находит станцию по ID
func (t *Topology) Station(id string) (models.Station, error) {
	idx, ok := t.byID[id]
	if !ok {
		return models.Station{}, fmt.Errorf("%w: %s", ErrStationNotFound, id)
	}
	return t.stations[idx], nil
}

// Has станция активна в топологии
func (t *Topology) Has(id string) bool {
	_, ok := t.byID[id]
	return ok
}

// Entry первая станция типа entry
func (t *Topology) Entry() (models.Station, bool) {
	for _, s := range t.stations {
		if s.Type == models.StationTypeEntry {
			return s, true
		}
	}
	return models.Station{}, false
}

// ParallelStations взаимозаменяемые станции сборки
func (t *Topology) ParallelStations() []models.Station {
	return t.filter(func(s models.Station) bool { return s.Type == models.StationTypeParallelAssembly })
}

// OrderStatusChain вторичная цепочка после производства
func (t *Topology) OrderStatusChain() []models.Station {
	return t.filter(func(s models.Station) bool { return s.Type == models.StationTypeOrderStatus })
}

// ProductionLine все станции кроме order-status в порядке топологии
func (t *Topology) ProductionLine() []models.Station {
	return t.filter(func(s models.Station) bool { return s.Type != models.StationTypeOrderStatus })
}

// IsOrderStatus станция входит в цепочку order-status
func (t *Topology) IsOrderStatus(id string) bool {
	idx, ok := t.byID[id]
	return ok && t.stations[idx].Type == models.StationTypeOrderStatus
}

// FirstOrderStatus первая станция цепочки order-status
func (t *Topology) FirstOrderStatus() (models.Station, bool) {
	chain := t.OrderStatusChain()
	if len(chain) == 0 {
		return models.Station{}, false
	}
	return chain[0], true
}

// NextOrderStatusAfter следующая станция цепочки со строго большим sort order
func (t *Topology) NextOrderStatusAfter(sortOrder int) (models.Station, bool) {
	for _, s := range t.OrderStatusChain() {
		if s.SortOrder > sortOrder {
			return s, true
		}
	}
	return models.Station{}, false
}

// NextInProductionLine следующая станция производственной линии после указанной
func (t *Topology) NextInProductionLine(id string) (models.Station, bool) {
	line := t.ProductionLine()
	for i, s := range line {
		if s.ID == id && i+1 < len(line) {
			return line[i+1], true
		}
	}
	return models.Station{}, false
}

func (t *Topology) filter(keep func(models.Station) bool) []models.Station {
	out := make([]models.Station, 0)
	for _, s := range t.stations {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}

// StationIDs идентификаторы станций
func StationIDs(stations []models.Station) []string {
	ids := make([]string, 0, len(stations))
	for _, s := range stations {
		ids = append(ids, s.ID)
	}
	return ids
}
