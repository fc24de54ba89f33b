package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"kitchenline/server/internal/models"
	"kitchenline/server/internal/services"
)

// GormKitchenStore хранилище записей кухни в PostgreSQL
type GormKitchenStore struct {
	db *gorm.DB
}

// NewGormKitchenStore создает хранилище поверх подключения GORM
func NewGormKitchenStore(db *gorm.DB) *GormKitchenStore {
	return &GormKitchenStore{db: db}
}

// FetchStations станции филиала, включая неактивные (фильтрует топология)
func (s *GormKitchenStore) FetchStations(ctx context.Context, branchID string) ([]models.Station, error) {
	var stations []models.Station
	q := s.db.WithContext(ctx).Model(&models.Station{})
	if branchID != "" {
		q = q.Where("branch_id = ? OR branch_id = ''", branchID)
	}
	if err := q.Order("sort_order ASC, name ASC").Find(&stations).Error; err != nil {
		return nil, fmt.Errorf("fetch stations: %w", err)
	}
	return stations, nil
}

// FetchItems позиции по фильтру. Филиал и незавершенность проверяются через orders.
func (s *GormKitchenStore) FetchItems(ctx context.Context, filter services.ItemFilter) ([]models.OrderItem, error) {
	q := s.db.WithContext(ctx).Model(&models.OrderItem{}).Select("order_items.*")
	if filter.BranchID != "" || filter.OutstandingOnly {
		q = q.Joins("JOIN orders ON orders.id = order_items.order_id")
		if filter.BranchID != "" {
			q = q.Where("orders.branch_id = ?", filter.BranchID)
		}
		if filter.OutstandingOnly {
			q = q.Where("orders.status NOT IN ?", []string{models.OrderStatusDelivered, models.OrderStatusCancelled})
		}
	}
	if filter.OrderID != "" {
		q = q.Where("order_items.order_id = ?", filter.OrderID)
	}
	if len(filter.StationIDs) > 0 {
		q = q.Where("order_items.current_station_id IN ?", filter.StationIDs)
	}
	if len(filter.Statuses) > 0 {
		q = q.Where("order_items.station_status IN ?", filter.Statuses)
	}

	var items []models.OrderItem
	if err := q.Order("order_items.id").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("fetch items: %w", err)
	}
	return items, nil
}

// GetItem позиция по ID
func (s *GormKitchenStore) GetItem(ctx context.Context, id string) (*models.OrderItem, error) {
	var item models.OrderItem
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", services.ErrItemNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get item %s: %w", id, err)
	}
	return &item, nil
}

// UpdateItem частичное обновление позиции
func (s *GormKitchenStore) UpdateItem(ctx context.Context, id string, patch models.ItemPatch) error {
	cols := patch.Columns()
	if len(cols) == 0 {
		return nil
	}
	res := s.db.WithContext(ctx).Model(&models.OrderItem{}).Where("id = ?", id).Updates(cols)
	if res.Error != nil {
		return fmt.Errorf("update item %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", services.ErrItemNotFound, id)
	}
	return nil
}

// GetOrder заказ по ID
func (s *GormKitchenStore) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", services.ErrOrderNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}
	return &order, nil
}

// UpdateOrder частичное обновление заказа
func (s *GormKitchenStore) UpdateOrder(ctx context.Context, id string, patch models.OrderPatch) error {
	cols := patch.Columns()
	if len(cols) == 0 {
		return nil
	}
	res := s.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", id).Updates(cols)
	if res.Error != nil {
		return fmt.Errorf("update order %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", services.ErrOrderNotFound, id)
	}
	return nil
}

// CountActiveItems waiting + in_progress по станциям одним GROUP BY
func (s *GormKitchenStore) CountActiveItems(ctx context.Context, stationIDs []string) (map[string]int, error) {
	type row struct {
		StationID string
		Total     int
	}
	var rows []row
	q := s.db.WithContext(ctx).Model(&models.OrderItem{}).
		Select("current_station_id AS station_id, COUNT(*) AS total").
		Where("station_status IN ?", []string{models.ItemStatusWaiting, models.ItemStatusInProgress}).
		Where("current_station_id IS NOT NULL")
	if len(stationIDs) > 0 {
		q = q.Where("current_station_id IN ?", stationIDs)
	}
	if err := q.Group("current_station_id").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("count active items: %w", err)
	}

	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.StationID] = r.Total
	}
	return counts, nil
}

// AppendStationLog добавляет запись журнала
func (s *GormKitchenStore) AppendStationLog(ctx context.Context, entry models.StationLog) error {
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("append station log: %w", err)
	}
	return nil
}

// FetchStationLogs журнал станций начиная с since
func (s *GormKitchenStore) FetchStationLogs(ctx context.Context, stationIDs []string, since time.Time) ([]models.StationLog, error) {
	var logs []models.StationLog
	q := s.db.WithContext(ctx).Where("timestamp >= ?", since)
	if len(stationIDs) > 0 {
		q = q.Where("station_id IN ?", stationIDs)
	}
	if err := q.Order("timestamp ASC").Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("fetch station logs: %w", err)
	}
	return logs, nil
}

// GetThresholds пороги филиала
func (s *GormKitchenStore) GetThresholds(ctx context.Context, branchID string) ([]models.BottleneckThreshold, error) {
	var thresholds []models.BottleneckThreshold
	if err := s.db.WithContext(ctx).Where("branch_id = ?", branchID).Find(&thresholds).Error; err != nil {
		return nil, fmt.Errorf("get thresholds: %w", err)
	}
	return thresholds, nil
}

// SaveThreshold upsert по первичному ключу
func (s *GormKitchenStore) SaveThreshold(ctx context.Context, threshold models.BottleneckThreshold) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"max_queue_size", "max_time_ratio", "alerts_enabled"}),
	}).Create(&threshold).Error
	if err != nil {
		return fmt.Errorf("save threshold: %w", err)
	}
	return nil
}
