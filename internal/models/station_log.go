package models

import "time"

// Действия в журнале станций
const (
	LogActionEntered   = "entered"
	LogActionStarted   = "started"
	LogActionCompleted = "completed"
	LogActionSkipped   = "skipped"
)

// StationLog событие журнала станции. Только добавление, никогда не изменяется.
type StationLog struct {
	ID              string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	OrderItemID     string    `gorm:"type:varchar(36);not null;index" json:"order_item_id"`
	StationID       string    `gorm:"type:varchar(36);not null;index:idx_station_logs_station_ts" json:"station_id"`
	Action          string    `gorm:"type:varchar(20);not null" json:"action"`
	DurationSeconds *float64  `json:"duration_seconds,omitempty"`
	Timestamp       time.Time `gorm:"not null;index:idx_station_logs_station_ts" json:"timestamp"`
}

// TableName возвращает имя таблицы
func (StationLog) TableName() string {
	return "station_logs"
}
