package models

import "time"

// AlertState последняя тревога по станции
type AlertState struct {
	StationID string    `json:"station_id"`
	Severity  Severity  `json:"severity"`
	AlertedAt time.Time `json:"alerted_at"`
}

// Виды уведомлений для внешнего коллаборатора (звук/тост)
const (
	NotifyBottleneck        = "bottleneck"
	NotifyBottleneckCleared = "bottleneck_cleared"
	NotifyDelay             = "delay"
	NotifyDelayCleared      = "delay_cleared"
	NotifyOrderCreated      = "order_created"
	NotifyOrderReady        = "order_ready"
	NotifyOrderCancelled    = "order_cancelled"
)

// Notification полезная нагрузка notify(kind, payload)
type Notification struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	StationID string    `json:"station_id,omitempty"`
	OrderID   string    `json:"order_id,omitempty"`
	Severity  Severity  `json:"severity,omitempty"`
	Message   string    `json:"message"`
	Audio     bool      `json:"audio"`
	ItemIDs   []string  `json:"item_ids,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
