package services

import (
	"context"
	"time"

	"kitchenline/server/internal/models"
)

// Clock источник текущего времени (подменяется в тестах)
type Clock func() time.Time

// ItemFilter фильтр для fetchItems
type ItemFilter struct {
	BranchID   string
	OrderID    string
	StationIDs []string
	Statuses   []string
	// OutstandingOnly только позиции незавершенных заказов (не delivered/cancelled)
	OutstandingOnly bool
}

// StationReader fetchStations(tenant)
type StationReader interface {
	FetchStations(ctx context.Context, branchID string) ([]models.Station, error)
}

// ItemStore позиции и заказы
type ItemStore interface {
	FetchItems(ctx context.Context, filter ItemFilter) ([]models.OrderItem, error)
	GetItem(ctx context.Context, id string) (*models.OrderItem, error)
	UpdateItem(ctx context.Context, id string, patch models.ItemPatch) error
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	UpdateOrder(ctx context.Context, id string, patch models.OrderPatch) error
	// CountActiveItems количество позиций waiting/in_progress по каждой станции
	CountActiveItems(ctx context.Context, stationIDs []string) (map[string]int, error)
}

// StationLogStore журнал станций
type StationLogStore interface {
	AppendStationLog(ctx context.Context, entry models.StationLog) error
	FetchStationLogs(ctx context.Context, stationIDs []string, since time.Time) ([]models.StationLog, error)
}

// ThresholdStore getThresholds(tenant) и мутатор
type ThresholdStore interface {
	GetThresholds(ctx context.Context, branchID string) ([]models.BottleneckThreshold, error)
	SaveThreshold(ctx context.Context, threshold models.BottleneckThreshold) error
}

// KitchenStore полный интерфейс хранилища записей
type KitchenStore interface {
	StationReader
	ItemStore
	StationLogStore
	ThresholdStore
}

// AlertStateStore переживающее перезапуск хранилище состояния тревог и подтверждений отмен
type AlertStateStore interface {
	SaveAlertState(ctx context.Context, state models.AlertState) error
	DeleteAlertState(ctx context.Context, stationID string) error
	LoadAlertStates(ctx context.Context) ([]models.AlertState, error)
	AcknowledgeCancellation(ctx context.Context, orderID string, at time.Time) error
	IsCancellationAcknowledged(ctx context.Context, orderID string) (bool, error)
}

// Notifier notify(kind, payload) - передача внешнему коллаборатору звука/тостов
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

// ChangeFeed push-канал subscribe(table, onChange). Subscribe блокирует до отмены ctx.
type ChangeFeed interface {
	Subscribe(ctx context.Context, handler func(ctx context.Context, ev models.ChangeEvent)) error
}
