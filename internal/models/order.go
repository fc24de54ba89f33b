package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Типы заказов
const (
	OrderTypeDineIn   = "dine_in"
	OrderTypeDelivery = "delivery"
	OrderTypeTakeaway = "takeaway"
)

// Статусы заказа
const (
	OrderStatusPending   = "pending"
	OrderStatusPreparing = "preparing"
	OrderStatusReady     = "ready"
	OrderStatusDelivered = "delivered"
	OrderStatusCancelled = "cancelled"
)

// Статусы позиции на станции
const (
	ItemStatusWaiting    = "waiting"
	ItemStatusInProgress = "in_progress"
	ItemStatusDone       = "done"
)

// Order заказ - агрегат позиций
type Order struct {
	ID        string      `gorm:"type:varchar(36);primaryKey" json:"id"`
	BranchID  string      `gorm:"type:varchar(255);index" json:"branch_id"`
	DisplayID string      `gorm:"type:varchar(32)" json:"display_id"`
	OrderType string      `gorm:"type:varchar(20);not null;default:'dine_in'" json:"order_type"`
	Status    string      `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	Items     []OrderItem `gorm:"foreignKey:OrderID" json:"items,omitempty"`
	CreatedAt time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName возвращает имя таблицы
func (Order) TableName() string {
	return "orders"
}

// IsFinalized заказ больше не находится на кухне
func (o *Order) IsFinalized() bool {
	return o.Status == OrderStatusDelivered || o.Status == OrderStatusCancelled
}

// SubItem составная часть позиции (половинки пиццы, комбо и т.д.)
type SubItem struct {
	Name    string   `json:"name"`
	Options []string `json:"options"`
}

// ItemAttributes атрибуты продукта, влияющие на маршрутизацию (JSON в БД)
type ItemAttributes struct {
	Notes    string    `json:"notes"`
	Extras   []string  `json:"extras"`
	SubItems []SubItem `json:"sub_items"`
}

// Value реализует driver.Valuer для сохранения в БД
func (a ItemAttributes) Value() (driver.Value, error) {
	return json.Marshal(a)
}

// Scan реализует sql.Scanner для чтения из БД
func (a *ItemAttributes) Scan(value interface{}) error {
	if value == nil {
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to unmarshal ItemAttributes value")
	}

	return json.Unmarshal(bytes, a)
}

// OrderItem позиция заказа, проходящая через станции
type OrderItem struct {
	ID                 string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	OrderID            string         `gorm:"type:varchar(36);not null;index" json:"order_id"`
	ProductName        string         `gorm:"type:varchar(255)" json:"product_name"`
	Quantity           int            `gorm:"not null;default:1" json:"quantity"`
	CurrentStationID   *string        `gorm:"type:varchar(36);index" json:"current_station_id"`
	StationStatus      string         `gorm:"type:varchar(20);not null;default:'waiting'" json:"station_status"`
	StationStartedAt   *time.Time     `json:"station_started_at,omitempty"`   // когда позиция вошла на текущую станцию
	StationCompletedAt *time.Time     `json:"station_completed_at,omitempty"` // когда позиция завершила производство
	Attributes         ItemAttributes `gorm:"type:jsonb" json:"attributes"`
	UpdatedAt          time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName возвращает имя таблицы
func (OrderItem) TableName() string {
	return "order_items"
}

// StationID возвращает текущую станцию или пустую строку
func (i *OrderItem) StationID() string {
	if i.CurrentStationID == nil {
		return ""
	}
	return *i.CurrentStationID
}

// IsActive позиция занимает станцию (в очереди или в работе)
func (i *OrderItem) IsActive() bool {
	return i.CurrentStationID != nil &&
		(i.StationStatus == ItemStatusWaiting || i.StationStatus == ItemStatusInProgress)
}

// ItemPatch частичное обновление позиции. nil поля не меняются.
type ItemPatch struct {
	CurrentStationID   *string    `json:"current_station_id,omitempty"`
	StationStatus      *string    `json:"station_status,omitempty"`
	StationStartedAt   *time.Time `json:"station_started_at,omitempty"`
	StationCompletedAt *time.Time `json:"station_completed_at,omitempty"`
}

// ApplyTo применяет патч к позиции
func (p ItemPatch) ApplyTo(item *OrderItem) {
	if p.CurrentStationID != nil {
		id := *p.CurrentStationID
		item.CurrentStationID = &id
	}
	if p.StationStatus != nil {
		item.StationStatus = *p.StationStatus
	}
	if p.StationStartedAt != nil {
		t := *p.StationStartedAt
		item.StationStartedAt = &t
	}
	if p.StationCompletedAt != nil {
		t := *p.StationCompletedAt
		item.StationCompletedAt = &t
	}
}

// Columns возвращает колонки для UPDATE
func (p ItemPatch) Columns() map[string]interface{} {
	cols := make(map[string]interface{})
	if p.CurrentStationID != nil {
		cols["current_station_id"] = *p.CurrentStationID
	}
	if p.StationStatus != nil {
		cols["station_status"] = *p.StationStatus
	}
	if p.StationStartedAt != nil {
		cols["station_started_at"] = *p.StationStartedAt
	}
	if p.StationCompletedAt != nil {
		cols["station_completed_at"] = *p.StationCompletedAt
	}
	return cols
}

// OrderPatch частичное обновление заказа
type OrderPatch struct {
	Status *string `json:"status,omitempty"`
}

// Columns возвращает колонки для UPDATE
func (p OrderPatch) Columns() map[string]interface{} {
	cols := make(map[string]interface{})
	if p.Status != nil {
		cols["status"] = *p.Status
	}
	return cols
}
