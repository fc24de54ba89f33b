package services

import (
	"context"
	"fmt"
	"log"
	"sync"

	"kitchenline/server/internal/models"
)

// RouteRequest входные данные nextStation
type RouteRequest struct {
	CurrentStationID string                // "" - начало производства
	OrderType        string                // dine_in, delivery, takeaway
	Attributes       models.ItemAttributes // для классификации на старте
}

// RouteDecision станция назначения. nil решение - производство завершено.
type RouteDecision struct {
	StationID   string             `json:"station_id"`
	StationType models.StationType `json:"station_type"`
}

func decisionFor(s models.Station) *RouteDecision {
	return &RouteDecision{StationID: s.ID, StationType: s.Type}
}

// SmartRouter решает, на какую станцию позиция попадает дальше
type SmartRouter struct {
	stations   StationReader
	items      ItemStore
	branchID   string
	classifier *EntryClassifier

	mu       sync.RWMutex
	topology *Topology
}

// NewSmartRouter создает маршрутизатор для филиала
func NewSmartRouter(stations StationReader, items ItemStore, branchID string, classifier *EntryClassifier) *SmartRouter {
	if classifier == nil {
		classifier = NewEntryClassifier(nil)
	}
	return &SmartRouter{
		stations:   stations,
		items:      items,
		branchID:   branchID,
		classifier: classifier,
	}
}

// Topology возвращает закешированную топологию, загружая ее при необходимости
func (r *SmartRouter) Topology(ctx context.Context) (*Topology, error) {
	r.mu.RLock()
	topo := r.topology
	r.mu.RUnlock()
	if topo != nil {
		return topo, nil
	}

	stations, err := r.stations.FetchStations(ctx, r.branchID)
	if err != nil {
		return nil, fmt.Errorf("fetch stations: %w", err)
	}
	topo = NewTopology(stations)
	// Пустую топологию не кешируем: станции могут появиться без события об изменении
	if topo.Validate() != nil {
		return topo, nil
	}

	r.mu.Lock()
	r.topology = topo
	r.mu.Unlock()
	return topo, nil
}

// InvalidateTopology сбрасывает кеш после изменения конфигурации станций
func (r *SmartRouter) InvalidateTopology() {
	r.mu.Lock()
	r.topology = nil
	r.mu.Unlock()
}

// NextStation nextStation(currentStationId, orderType, itemAttributes)
func (r *SmartRouter) NextStation(ctx context.Context, req RouteRequest) (*RouteDecision, error) {
	if req.CurrentStationID == "" {
		return r.InitialStation(ctx, req.Attributes)
	}

	topo, err := r.Topology(ctx)
	if err != nil {
		return nil, err
	}
	current, err := topo.Station(req.CurrentStationID)
	if err != nil {
		return nil, err
	}

	switch current.Type {
	case models.StationTypeEntry:
		// Наименее загруженная станция сборки, затем первая order-status
		if parallel := topo.ParallelStations(); len(parallel) > 0 {
			return decisionFor(r.leastLoaded(ctx, parallel)), nil
		}
		return firstOrderStatus(topo), nil

	case models.StationTypeParallelAssembly:
		return firstOrderStatus(topo), nil

	case models.StationTypeOrderStatus:
		// Цепочка order-status продолжается только для заказов в зале
		if req.OrderType != models.OrderTypeDineIn {
			return nil, nil
		}
		if next, ok := topo.NextOrderStatusAfter(current.SortOrder); ok {
			return decisionFor(next), nil
		}
		return nil, nil

	default:
		if next, ok := topo.NextInProductionLine(current.ID); ok {
			return decisionFor(next), nil
		}
		return firstOrderStatus(topo), nil
	}
}

// InitialStation станция при старте производства: entry для составных позиций,
// иначе сразу наименее загруженная станция сборки
func (r *SmartRouter) InitialStation(ctx context.Context, attrs models.ItemAttributes) (*RouteDecision, error) {
	topo, err := r.Topology(ctx)
	if err != nil {
		return nil, err
	}
	if err := topo.Validate(); err != nil {
		return nil, err
	}

	if entry, ok := topo.Entry(); ok && r.classifier.NeedsEntry(attrs) {
		return decisionFor(entry), nil
	}
	if parallel := topo.ParallelStations(); len(parallel) > 0 {
		return decisionFor(r.leastLoaded(ctx, parallel)), nil
	}
	if line := topo.ProductionLine(); len(line) > 0 {
		return decisionFor(line[0]), nil
	}
	if first, ok := topo.FirstOrderStatus(); ok {
		return decisionFor(first), nil
	}
	return nil, ErrNoActiveStations
}

// leastLoaded читает загрузку и выбирает станцию без блокировок.
// Два одновременных решения могут выбрать одну станцию - это только немного смещает баланс.
func (r *SmartRouter) leastLoaded(ctx context.Context, candidates []models.Station) models.Station {
	loads, err := r.items.CountActiveItems(ctx, StationIDs(candidates))
	if err != nil {
		log.Printf("⚠️ SmartRouter: не удалось получить загрузку станций, берем первую: %v", err)
		return candidates[0]
	}

	best := candidates[0]
	bestLoad := loads[best.ID]
	for _, s := range candidates[1:] {
		if load := loads[s.ID]; load < bestLoad {
			best, bestLoad = s, load
		}
	}
	return best
}

func firstOrderStatus(topo *Topology) *RouteDecision {
	if first, ok := topo.FirstOrderStatus(); ok {
		return decisionFor(first)
	}
	return nil
}
