package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"kitchenline/server/internal/models"
)

// MemoryKitchenStore хранилище в памяти. Используется без PostgreSQL и в тестах.
type MemoryKitchenStore struct {
	mu         sync.RWMutex
	stations   map[string]models.Station
	orders     map[string]models.Order
	items      map[string]models.OrderItem
	logs       []models.StationLog
	thresholds map[string]models.BottleneckThreshold

	// FailUpdates заставляет UpdateItem возвращать ошибку (для проверки отката)
	FailUpdates error
	// FailLogs заставляет AppendStationLog возвращать ошибку
	FailLogs error
}

// NewMemoryKitchenStore создает пустое хранилище
func NewMemoryKitchenStore() *MemoryKitchenStore {
	return &MemoryKitchenStore{
		stations:   make(map[string]models.Station),
		orders:     make(map[string]models.Order),
		items:      make(map[string]models.OrderItem),
		thresholds: make(map[string]models.BottleneckThreshold),
	}
}

// PutStation добавляет или заменяет станцию
func (s *MemoryKitchenStore) PutStation(st models.Station) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stations[st.ID] = st
}

// PutOrder добавляет заказ вместе с позициями
func (s *MemoryKitchenStore) PutOrder(o models.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range o.Items {
		item.OrderID = o.ID
		s.items[item.ID] = item
	}
	o.Items = nil
	s.orders[o.ID] = o
}

// PutItem добавляет или заменяет позицию
func (s *MemoryKitchenStore) PutItem(item models.OrderItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.ID] = item
}

// FetchStations станции филиала
func (s *MemoryKitchenStore) FetchStations(ctx context.Context, branchID string) ([]models.Station, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Station, 0, len(s.stations))
	for _, st := range s.stations {
		if branchID != "" && st.BranchID != "" && st.BranchID != branchID {
			continue
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// FetchItems позиции по фильтру
func (s *MemoryKitchenStore) FetchItems(ctx context.Context, filter ItemFilter) ([]models.OrderItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stations := toSet(filter.StationIDs)
	statuses := toSet(filter.Statuses)
	out := make([]models.OrderItem, 0)
	for _, item := range s.items {
		if filter.OrderID != "" && item.OrderID != filter.OrderID {
			continue
		}
		if stations != nil && !stations[item.StationID()] {
			continue
		}
		if statuses != nil && !statuses[item.StationStatus] {
			continue
		}
		if filter.BranchID != "" || filter.OutstandingOnly {
			order, ok := s.orders[item.OrderID]
			if !ok {
				continue
			}
			if filter.BranchID != "" && order.BranchID != filter.BranchID {
				continue
			}
			if filter.OutstandingOnly && order.IsFinalized() {
				continue
			}
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetItem позиция по ID
func (s *MemoryKitchenStore) GetItem(ctx context.Context, id string) (*models.OrderItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	return &item, nil
}

// UpdateItem частичное обновление позиции
func (s *MemoryKitchenStore) UpdateItem(ctx context.Context, id string, patch models.ItemPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailUpdates != nil {
		return s.FailUpdates
	}
	item, ok := s.items[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	patch.ApplyTo(&item)
	item.UpdatedAt = time.Now()
	s.items[id] = item
	return nil
}

// GetOrder заказ по ID (без позиций)
func (s *MemoryKitchenStore) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	order, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	return &order, nil
}

// UpdateOrder частичное обновление заказа
func (s *MemoryKitchenStore) UpdateOrder(ctx context.Context, id string, patch models.OrderPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	if patch.Status != nil {
		order.Status = *patch.Status
	}
	order.UpdatedAt = time.Now()
	s.orders[id] = order
	return nil
}

// CountActiveItems waiting + in_progress по станциям
func (s *MemoryKitchenStore) CountActiveItems(ctx context.Context, stationIDs []string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int, len(stationIDs))
	wanted := toSet(stationIDs)
	for _, item := range s.items {
		if !item.IsActive() {
			continue
		}
		if wanted != nil && !wanted[item.StationID()] {
			continue
		}
		counts[item.StationID()]++
	}
	return counts, nil
}

// AppendStationLog добавляет запись журнала
func (s *MemoryKitchenStore) AppendStationLog(ctx context.Context, entry models.StationLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailLogs != nil {
		return s.FailLogs
	}
	s.logs = append(s.logs, entry)
	return nil
}

// FetchStationLogs записи журнала станций начиная с since
func (s *MemoryKitchenStore) FetchStationLogs(ctx context.Context, stationIDs []string, since time.Time) ([]models.StationLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wanted := toSet(stationIDs)
	out := make([]models.StationLog, 0)
	for _, entry := range s.logs {
		if wanted != nil && !wanted[entry.StationID] {
			continue
		}
		if entry.Timestamp.Before(since) {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

// StationLogs копия журнала
func (s *MemoryKitchenStore) StationLogs() []models.StationLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.StationLog(nil), s.logs...)
}

// GetThresholds пороги филиала
func (s *MemoryKitchenStore) GetThresholds(ctx context.Context, branchID string) ([]models.BottleneckThreshold, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.BottleneckThreshold, 0, len(s.thresholds))
	for _, th := range s.thresholds {
		if branchID != "" && th.BranchID != branchID {
			continue
		}
		out = append(out, th)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SaveThreshold upsert по ID
func (s *MemoryKitchenStore) SaveThreshold(ctx context.Context, th models.BottleneckThreshold) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.thresholds[th.ID] = th
	return nil
}

func toSet(values []string) map[string]bool {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

// MemoryAlertStateStore состояние тревог в памяти процесса
type MemoryAlertStateStore struct {
	mu     sync.RWMutex
	states map[string]models.AlertState
	acks   map[string]time.Time
}

// NewMemoryAlertStateStore создает хранилище
func NewMemoryAlertStateStore() *MemoryAlertStateStore {
	return &MemoryAlertStateStore{
		states: make(map[string]models.AlertState),
		acks:   make(map[string]time.Time),
	}
}

func (m *MemoryAlertStateStore) SaveAlertState(ctx context.Context, state models.AlertState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[state.StationID] = state
	return nil
}

func (m *MemoryAlertStateStore) DeleteAlertState(ctx context.Context, stationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, stationID)
	return nil
}

func (m *MemoryAlertStateStore) LoadAlertStates(ctx context.Context) ([]models.AlertState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.AlertState, 0, len(m.states))
	for _, st := range m.states {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StationID < out[j].StationID })
	return out, nil
}

func (m *MemoryAlertStateStore) AcknowledgeCancellation(ctx context.Context, orderID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acks[orderID] = at
	return nil
}

func (m *MemoryAlertStateStore) IsCancellationAcknowledged(ctx context.Context, orderID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.acks[orderID]
	return ok, nil
}
