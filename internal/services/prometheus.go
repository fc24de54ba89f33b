package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"kitchenline/server/internal/models"
)

var (
	stationQueueGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "kitchen_station_queue_items",
		Help: "Items waiting at a station",
	}, []string{"station_id", "station_name"})

	stationInProgressGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "kitchen_station_in_progress_items",
		Help: "Items in progress at a station",
	}, []string{"station_id", "station_name"})

	stationAverageSecondsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "kitchen_station_average_seconds",
		Help: "Average completion time at a station over the metrics window",
	}, []string{"station_id", "station_name"})

	stationSeverityGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "kitchen_station_bottleneck_severity",
		Help: "Bottleneck severity rank (0=low, 3=critical)",
	}, []string{"station_id"})

	alertsFiredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kitchen_alerts_fired_total",
		Help: "Operator alerts handed to the notifier",
	}, []string{"kind", "severity"})

	stationLogsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kitchen_station_logs_dropped_total",
		Help: "Station log entries dropped by the async sink",
	})

	routedItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kitchen_routed_items_total",
		Help: "Routing decisions applied, by destination station type",
	}, []string{"station_type"})
)

// publishStationGauges обновляет gauge-метрики после пересчета
func publishStationGauges(metrics []models.StationMetrics, records []models.BottleneckRecord) {
	severity := make(map[string]models.Severity, len(records))
	for _, r := range records {
		severity[r.StationID] = r.Severity
	}
	for _, m := range metrics {
		stationQueueGauge.WithLabelValues(m.StationID, m.StationName).Set(float64(m.CurrentQueue))
		stationInProgressGauge.WithLabelValues(m.StationID, m.StationName).Set(float64(m.InProgress))
		stationAverageSecondsGauge.WithLabelValues(m.StationID, m.StationName).Set(m.AverageSeconds)
		stationSeverityGauge.WithLabelValues(m.StationID).Set(float64(severity[m.StationID].Rank()))
	}
}
