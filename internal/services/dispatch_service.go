package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"kitchenline/server/internal/models"
)

// AdvanceResult результат операции "advance item"
type AdvanceResult struct {
	Item        models.OrderItem `json:"item"`
	Destination *RouteDecision   `json:"destination"` // nil - производство завершено
	OrderReady  bool             `json:"order_ready"`
}

// DispatchService двигает позиции по станциям: оптимистичный патч,
// авторитетная запись, журнал и пересчет готовности заказа
type DispatchService struct {
	router     *SmartRouter
	items      ItemStore
	sink       *StationLogSink
	reconciler *Reconciler
	clock      Clock
}

// NewDispatchService создает сервис диспетчеризации
func NewDispatchService(router *SmartRouter, items ItemStore, sink *StationLogSink, reconciler *Reconciler, clock Clock) *DispatchService {
	if clock == nil {
		clock = time.Now
	}
	return &DispatchService{
		router:     router,
		items:      items,
		sink:       sink,
		reconciler: reconciler,
		clock:      clock,
	}
}

// StartProduction инициализатор: назначает все неназначенные позиции заказа на первую станцию.
// Ошибка топологии фатальна - частичная маршрутизация не выполняется.
func (ds *DispatchService) StartProduction(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	topo, err := ds.router.Topology(ctx)
	if err != nil {
		return nil, err
	}
	if err := topo.Validate(); err != nil {
		return nil, err
	}

	order, err := ds.items.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	items, err := ds.items.FetchItems(ctx, ItemFilter{OrderID: orderID})
	if err != nil {
		return nil, fmt.Errorf("fetch order items: %w", err)
	}

	assigned := make([]models.OrderItem, 0, len(items))
	for _, item := range items {
		if item.CurrentStationID != nil {
			continue
		}
		decision, err := ds.router.InitialStation(ctx, item.Attributes)
		if err != nil {
			return assigned, err
		}
		now := ds.clock()
		updated, err := ds.apply(ctx, item, stationPatch(decision.StationID, models.ItemStatusWaiting, now))
		if err != nil {
			return assigned, err
		}
		ds.appendLog(item.ID, decision.StationID, models.LogActionEntered, nil, now)
		routedItemsTotal.WithLabelValues(string(decision.StationType)).Inc()
		assigned = append(assigned, updated)
	}

	if order.Status == models.OrderStatusPending {
		status := models.OrderStatusPreparing
		if err := ds.items.UpdateOrder(ctx, orderID, models.OrderPatch{Status: &status}); err != nil {
			return assigned, fmt.Errorf("%w: update order %s: %v", ErrWriteFailed, orderID, err)
		}
	}
	log.Printf("✅ StartProduction: заказ %s, назначено позиций: %d", orderID, len(assigned))
	return assigned, nil
}

// StartItem waiting → in_progress на текущей станции
func (ds *DispatchService) StartItem(ctx context.Context, itemID string) (models.OrderItem, error) {
	item, err := ds.currentItem(ctx, itemID)
	if err != nil {
		return models.OrderItem{}, err
	}
	if item.CurrentStationID == nil || item.StationStatus != models.ItemStatusWaiting {
		return item, nil
	}
	status := models.ItemStatusInProgress
	updated, err := ds.apply(ctx, item, models.ItemPatch{StationStatus: &status})
	if err != nil {
		return item, err
	}
	ds.appendLog(itemID, item.StationID(), models.LogActionStarted, nil, ds.clock())
	return updated, nil
}

// AdvanceItem операция оператора: позиция уходит со станции на следующую по решению маршрутизатора
func (ds *DispatchService) AdvanceItem(ctx context.Context, itemID string) (*AdvanceResult, error) {
	item, err := ds.currentItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.StationStatus == models.ItemStatusDone {
		return nil, fmt.Errorf("%w: %s", ErrItemFinished, itemID)
	}
	order, err := ds.items.GetOrder(ctx, item.OrderID)
	if err != nil {
		return nil, err
	}

	decision, err := ds.router.NextStation(ctx, RouteRequest{
		CurrentStationID: item.StationID(),
		OrderType:        order.OrderType,
		Attributes:       item.Attributes,
	})
	if err != nil {
		return nil, err
	}

	now := ds.clock()
	var patch models.ItemPatch
	if decision == nil {
		status := models.ItemStatusDone
		patch = models.ItemPatch{StationStatus: &status, StationCompletedAt: &now}
	} else {
		patch = stationPatch(decision.StationID, models.ItemStatusWaiting, now)
	}

	updated, err := ds.apply(ctx, item, patch)
	if err != nil {
		return nil, err
	}

	// Журнал: completed источника и entered назначения - две независимые best-effort записи
	source := item.StationID()
	if source != "" {
		ds.appendLog(itemID, source, models.LogActionCompleted, durationSince(item.StationStartedAt, now), now)
	}
	destType := "finished"
	if decision != nil {
		ds.appendLog(itemID, decision.StationID, models.LogActionEntered, nil, now)
		destType = string(decision.StationType)
	}
	routedItemsTotal.WithLabelValues(destType).Inc()

	result := &AdvanceResult{Item: updated, Destination: decision}
	if decision == nil || decision.StationType == models.StationTypeOrderStatus {
		ready, err := ds.ReevaluateOrder(ctx, item.OrderID)
		if err != nil {
			return result, err
		}
		result.OrderReady = ready
	}
	return result, nil
}

// MoveItem ручной перевод позиции на указанную станцию, минуя маршрутизатор
func (ds *DispatchService) MoveItem(ctx context.Context, itemID, targetStationID string) (models.OrderItem, error) {
	topo, err := ds.router.Topology(ctx)
	if err != nil {
		return models.OrderItem{}, err
	}
	target, err := topo.Station(targetStationID)
	if err != nil {
		return models.OrderItem{}, err
	}
	item, err := ds.currentItem(ctx, itemID)
	if err != nil {
		return models.OrderItem{}, err
	}

	now := ds.clock()
	updated, err := ds.apply(ctx, item, stationPatch(target.ID, models.ItemStatusWaiting, now))
	if err != nil {
		return item, err
	}
	if source := item.StationID(); source != "" {
		ds.appendLog(itemID, source, models.LogActionSkipped, nil, now)
	}
	ds.appendLog(itemID, target.ID, models.LogActionEntered, nil, now)

	if target.Type == models.StationTypeOrderStatus {
		if _, err := ds.ReevaluateOrder(ctx, item.OrderID); err != nil {
			return updated, err
		}
	}
	return updated, nil
}

// ReevaluateOrder переводит заказ в ready, когда все позиции ушли с производственной линии
func (ds *DispatchService) ReevaluateOrder(ctx context.Context, orderID string) (bool, error) {
	topo, err := ds.router.Topology(ctx)
	if err != nil {
		return false, err
	}
	order, err := ds.items.GetOrder(ctx, orderID)
	if err != nil {
		return false, err
	}
	items, err := ds.items.FetchItems(ctx, ItemFilter{OrderID: orderID})
	if err != nil {
		return false, fmt.Errorf("fetch order items: %w", err)
	}
	if !OrderReady(items, topo) {
		return false, nil
	}
	if order.Status == models.OrderStatusReady || order.IsFinalized() {
		return true, nil
	}
	status := models.OrderStatusReady
	if err := ds.items.UpdateOrder(ctx, orderID, models.OrderPatch{Status: &status}); err != nil {
		return false, fmt.Errorf("%w: update order %s: %v", ErrWriteFailed, orderID, err)
	}
	log.Printf("✅ Заказ %s готов: все позиции покинули производственную линию", orderID)
	return true, nil
}

// OrderReady все позиции либо done, либо стоят на станции цепочки order-status
func OrderReady(items []models.OrderItem, topo *Topology) bool {
	if len(items) == 0 {
		return false
	}
	for i := range items {
		if items[i].StationStatus == models.ItemStatusDone {
			continue
		}
		if items[i].CurrentStationID == nil || !topo.IsOrderStatus(*items[i].CurrentStationID) {
			return false
		}
	}
	return true
}

// apply оптимистичный патч → авторитетная запись → подтверждение или откат
func (ds *DispatchService) apply(ctx context.Context, item models.OrderItem, patch models.ItemPatch) (models.OrderItem, error) {
	optimistic := ds.reconciler.ApplyOptimistic(item, patch)
	if err := ds.items.UpdateItem(ctx, item.ID, patch); err != nil {
		ds.reconciler.Rollback(item.ID)
		log.Printf("❌ Dispatch: запись позиции %s не прошла, откат: %v", item.ID, err)
		if errors.Is(err, ErrItemNotFound) {
			return item, err
		}
		return item, fmt.Errorf("%w: update item %s: %v", ErrWriteFailed, item.ID, err)
	}
	ds.reconciler.Confirm(item.ID)
	return optimistic, nil
}

// currentItem видимое состояние позиции: локальная проекция, если она защищена, иначе хранилище
func (ds *DispatchService) currentItem(ctx context.Context, itemID string) (models.OrderItem, error) {
	if ds.reconciler.State(itemID) != ProjectionConfirmed {
		if item, ok := ds.reconciler.Item(itemID); ok {
			return item, nil
		}
	}
	item, err := ds.items.GetItem(ctx, itemID)
	if err != nil {
		return models.OrderItem{}, err
	}
	ds.reconciler.ApplyServer(*item)
	if visible, ok := ds.reconciler.Item(itemID); ok {
		return visible, nil
	}
	return *item, nil
}

func (ds *DispatchService) appendLog(itemID, stationID, action string, duration *float64, at time.Time) {
	if ds.sink == nil {
		return
	}
	ds.sink.Append(models.StationLog{
		OrderItemID:     itemID,
		StationID:       stationID,
		Action:          action,
		DurationSeconds: duration,
		Timestamp:       at,
	})
}

func stationPatch(stationID, status string, at time.Time) models.ItemPatch {
	return models.ItemPatch{
		CurrentStationID: &stationID,
		StationStatus:    &status,
		StationStartedAt: &at,
	}
}

func durationSince(start *time.Time, now time.Time) *float64 {
	if start == nil {
		return nil
	}
	d := now.Sub(*start).Seconds()
	if d < 0 {
		d = 0
	}
	return &d
}
