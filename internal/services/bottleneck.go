package services

import (
	"fmt"
	"sort"

	"kitchenline/server/internal/models"
)

const (
	timeCriticalRatio  = 1.4
	timeHighRatio      = 1.15
	queueCriticalRatio = 1.6
	queueHighRatio     = 1.2
)

// DetectBottlenecks оценивает станции по порогам. Результат отсортирован
// critical → high → medium, low отфильтрован. При равном уровне причина по очереди
// идет раньше причины по времени, дальше порядок топологии.
func DetectBottlenecks(metrics []models.StationMetrics, thresholds models.ThresholdSet) []models.BottleneckRecord {
	var avgAll float64
	if len(metrics) > 0 {
		var sum float64
		for _, m := range metrics {
			sum += m.AverageSeconds
		}
		avgAll = sum / float64(len(metrics))
	}

	records := make([]models.BottleneckRecord, 0)
	for _, m := range metrics {
		th := thresholds.For(m.StationID)
		if !th.AlertsEnabled {
			continue
		}
		severity, cause, reason := scoreStation(m, th, avgAll)
		if severity == models.SeverityLow {
			continue
		}
		records = append(records, models.BottleneckRecord{
			StationID:   m.StationID,
			StationName: m.StationName,
			Severity:    severity,
			Cause:       cause,
			Reason:      reason,
			Metrics:     m,
		})
	}

	sort.SliceStable(records, func(i, j int) bool {
		ri, rj := records[i].Severity.Rank(), records[j].Severity.Rank()
		if ri != rj {
			return ri > rj
		}
		return records[i].Cause == models.CauseQueue && records[j].Cause != models.CauseQueue
	})
	return records
}

// scoreStation уровень только повышается правилами очереди, никогда не понижается.
// При равном уровне выигрывает причина по очереди.
func scoreStation(m models.StationMetrics, th models.BottleneckThreshold, avgAll float64) (models.Severity, models.BottleneckCause, string) {
	var timeRatio float64
	if avgAll > 0 {
		timeRatio = m.AverageSeconds / avgAll
	}

	timeSeverity := models.SeverityLow
	if th.MaxTimeRatio > 0 {
		excess := timeRatio / th.MaxTimeRatio
		switch {
		case excess > timeCriticalRatio:
			timeSeverity = models.SeverityCritical
		case excess > timeHighRatio:
			timeSeverity = models.SeverityHigh
		case timeRatio > th.MaxTimeRatio:
			timeSeverity = models.SeverityMedium
		}
	}

	severity := timeSeverity
	queueSeverity := models.SeverityLow
	if th.MaxQueueSize > 0 {
		excess := float64(m.CurrentQueue) / float64(th.MaxQueueSize)
		switch {
		case excess > queueCriticalRatio:
			queueSeverity = models.SeverityCritical
			severity = models.SeverityCritical
		case excess > queueHighRatio:
			queueSeverity = models.SeverityHigh
			if queueSeverity.Higher(severity) {
				severity = queueSeverity
			}
		case m.CurrentQueue > th.MaxQueueSize:
			queueSeverity = models.SeverityMedium
			if severity == models.SeverityLow {
				severity = queueSeverity
			}
		}
	}

	if queueSeverity != models.SeverityLow && !timeSeverity.Higher(queueSeverity) {
		return severity, models.CauseQueue, fmt.Sprintf("queue of %d items exceeds limit of %d", m.CurrentQueue, th.MaxQueueSize)
	}
	if timeSeverity != models.SeverityLow {
		return severity, models.CauseTime, fmt.Sprintf("average time %.0fs is %.1fx the kitchen mean (limit %.1fx)", m.AverageSeconds, timeRatio, th.MaxTimeRatio)
	}
	return severity, "", ""
}
