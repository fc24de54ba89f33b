package services

import "errors"

var (
	// ErrNoActiveStations ошибка конфигурации: у филиала нет активных станций
	ErrNoActiveStations = errors.New("no active stations configured")
	ErrStationNotFound  = errors.New("station not found")
	ErrItemNotFound     = errors.New("order item not found")
	ErrOrderNotFound    = errors.New("order not found")
	// ErrItemFinished позиция уже прошла производственную линию
	ErrItemFinished = errors.New("order item already finished")
	// ErrWriteFailed запись в хранилище не прошла, оптимистичное изменение откатено
	ErrWriteFailed      = errors.New("record store write failed")
	ErrInvalidThreshold = errors.New("invalid bottleneck threshold")
)
