package services

import (
	"context"
	"fmt"
	"time"

	"kitchenline/server/internal/models"
)

// DefaultMetricsWindow окно для средних времен
const DefaultMetricsWindow = 24 * time.Hour

// ComputeStationMetrics чистая функция: время считается по completed-записям журнала
// внутри окна, очередь и in_progress - по текущей таблице позиций без окна.
func ComputeStationMetrics(station models.Station, logs []models.StationLog, items []models.OrderItem, since time.Time) models.StationMetrics {
	m := models.StationMetrics{
		StationID:   station.ID,
		StationName: station.Name,
	}

	var total float64
	for _, entry := range logs {
		if entry.StationID != station.ID || entry.Action != models.LogActionCompleted || entry.DurationSeconds == nil {
			continue
		}
		if entry.Timestamp.Before(since) {
			continue
		}
		d := *entry.DurationSeconds
		if m.Completed == 0 || d < m.MinSeconds {
			m.MinSeconds = d
		}
		if m.Completed == 0 || d > m.MaxSeconds {
			m.MaxSeconds = d
		}
		total += d
		m.Completed++
	}
	if m.Completed > 0 {
		m.AverageSeconds = total / float64(m.Completed)
	}

	for i := range items {
		if items[i].StationID() != station.ID {
			continue
		}
		switch items[i].StationStatus {
		case models.ItemStatusWaiting:
			m.CurrentQueue++
		case models.ItemStatusInProgress:
			m.InProgress++
		}
	}
	return m
}

// MetricsService stationMetrics(stationId, window)
type MetricsService struct {
	router *SmartRouter
	items  ItemStore
	logs   StationLogStore
	clock  Clock
}

// NewMetricsService создает сервис метрик
func NewMetricsService(router *SmartRouter, items ItemStore, logs StationLogStore, clock Clock) *MetricsService {
	if clock == nil {
		clock = time.Now
	}
	return &MetricsService{router: router, items: items, logs: logs, clock: clock}
}

// StationMetrics метрики одной станции
func (ms *MetricsService) StationMetrics(ctx context.Context, stationID string, window time.Duration) (models.StationMetrics, error) {
	topo, err := ms.router.Topology(ctx)
	if err != nil {
		return models.StationMetrics{}, err
	}
	station, err := topo.Station(stationID)
	if err != nil {
		return models.StationMetrics{}, err
	}
	all, err := ms.compute(ctx, []models.Station{station}, window)
	if err != nil {
		return models.StationMetrics{}, err
	}
	return all[0], nil
}

// AllStationMetrics метрики всех активных станций в порядке топологии
func (ms *MetricsService) AllStationMetrics(ctx context.Context, window time.Duration) ([]models.StationMetrics, error) {
	topo, err := ms.router.Topology(ctx)
	if err != nil {
		return nil, err
	}
	return ms.compute(ctx, topo.Stations(), window)
}

// compute два независимых запроса - снимок не транзакционный, небольшой рассинхрон допустим
func (ms *MetricsService) compute(ctx context.Context, stations []models.Station, window time.Duration) ([]models.StationMetrics, error) {
	if window <= 0 {
		window = DefaultMetricsWindow
	}
	ids := StationIDs(stations)
	since := ms.clock().Add(-window)

	logs, err := ms.logs.FetchStationLogs(ctx, ids, since)
	if err != nil {
		return nil, fmt.Errorf("fetch station logs: %w", err)
	}
	items, err := ms.items.FetchItems(ctx, ItemFilter{
		StationIDs: ids,
		Statuses:   []string{models.ItemStatusWaiting, models.ItemStatusInProgress},
	})
	if err != nil {
		return nil, fmt.Errorf("fetch items: %w", err)
	}

	out := make([]models.StationMetrics, 0, len(stations))
	for _, s := range stations {
		out = append(out, ComputeStationMetrics(s, logs, items, since))
	}
	return out, nil
}
