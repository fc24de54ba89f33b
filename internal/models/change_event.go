package models

import (
	"encoding/json"
	"time"
)

// Таблицы, изменения которых приходят по push-каналу
const (
	TableOrders      = "orders"
	TableOrderItems  = "order_items"
	TableStationLogs = "station_logs"
	TableStations    = "stations"
)

// Операции
const (
	OpInsert = "INSERT"
	OpUpdate = "UPDATE"
	OpDelete = "DELETE"
)

// ChangeEvent событие изменения строки (CDC / LISTEN-NOTIFY / Pub/Sub)
type ChangeEvent struct {
	Table    string          `json:"table"`
	Op       string          `json:"op"`
	RecordID string          `json:"record_id"`
	BranchID string          `json:"branch_id,omitempty"`
	New      json.RawMessage `json:"new,omitempty"`
	Old      json.RawMessage `json:"old,omitempty"`
	At       time.Time       `json:"at"`
}

// DecodeNew распаковывает новое состояние строки
func (e *ChangeEvent) DecodeNew(dest interface{}) error {
	return json.Unmarshal(e.New, dest)
}

// DecodeOld распаковывает предыдущее состояние строки
func (e *ChangeEvent) DecodeOld(dest interface{}) error {
	return json.Unmarshal(e.Old, dest)
}
