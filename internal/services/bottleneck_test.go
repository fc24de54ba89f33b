package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kitchenline/server/internal/models"
)

var testThreshold = models.BottleneckThreshold{MaxQueueSize: 5, MaxTimeRatio: 1.5, AlertsEnabled: true}

func TestScoreStation(t *testing.T) {
	const avgAll = 100.0
	cases := []struct {
		name        string
		avg         float64
		queue       int
		want        models.Severity
		queueReason bool
	}{
		{"nominal", 100, 2, models.SeverityLow, false},
		{"time medium", 160, 0, models.SeverityMedium, false},
		{"time high", 180, 0, models.SeverityHigh, false},
		{"time critical", 220, 0, models.SeverityCritical, false},
		{"queue at limit", 100, 5, models.SeverityLow, false},
		{"queue medium", 100, 6, models.SeverityMedium, true},
		{"queue high", 100, 7, models.SeverityHigh, true},
		{"queue critical", 100, 9, models.SeverityCritical, true},
		{"queue high lifts time medium", 160, 7, models.SeverityHigh, true},
		{"queue medium keeps time critical", 220, 6, models.SeverityCritical, false},
		{"equal severity prefers queue", 180, 7, models.SeverityHigh, true},
		{"both medium", 160, 6, models.SeverityMedium, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := models.StationMetrics{StationID: "s", AverageSeconds: tc.avg, CurrentQueue: tc.queue}
			severity, cause, reason := scoreStation(m, testThreshold, avgAll)
			assert.Equal(t, tc.want, severity)
			if tc.want == models.SeverityLow {
				assert.Empty(t, reason)
				assert.Empty(t, cause)
				return
			}
			if tc.queueReason {
				assert.Equal(t, models.CauseQueue, cause)
				assert.Contains(t, reason, "queue of")
			} else {
				assert.Equal(t, models.CauseTime, cause)
				assert.Contains(t, reason, "average time")
			}
		})
	}
}

func TestScoreStationQueueNeverLowersSeverity(t *testing.T) {
	// очередь > 1.6 × лимит всегда critical, при любом времени
	for _, avg := range []float64{0, 50, 100, 160, 180, 220, 400} {
		m := models.StationMetrics{AverageSeconds: avg, CurrentQueue: 9}
		severity, _, _ := scoreStation(m, testThreshold, 100)
		assert.Equal(t, models.SeverityCritical, severity, "avg=%v", avg)
	}
	// высокое время не понижается очередью ниже лимита
	for _, queue := range []int{0, 1, 5} {
		m := models.StationMetrics{AverageSeconds: 220, CurrentQueue: queue}
		severity, _, _ := scoreStation(m, testThreshold, 100)
		assert.Equal(t, models.SeverityCritical, severity, "queue=%d", queue)
	}
}

func TestScoreStationWithoutCompletions(t *testing.T) {
	severity, _, reason := scoreStation(models.StationMetrics{}, testThreshold, 0)
	assert.Equal(t, models.SeverityLow, severity)
	assert.Empty(t, reason)
}

func TestDetectBottlenecksSortsAndFilters(t *testing.T) {
	metrics := []models.StationMetrics{
		{StationID: "calm", StationName: "Calm", AverageSeconds: 100},
		{StationID: "medium", StationName: "Medium", AverageSeconds: 100, CurrentQueue: 6},
		{StationID: "critical", StationName: "Critical", AverageSeconds: 100, CurrentQueue: 9},
		{StationID: "high", StationName: "High", AverageSeconds: 100, CurrentQueue: 7},
		{StationID: "muted", StationName: "Muted", AverageSeconds: 100, CurrentQueue: 20},
	}
	muted := testThreshold
	muted.AlertsEnabled = false
	thresholds := models.ThresholdSet{
		Default:    testThreshold,
		PerStation: map[string]models.BottleneckThreshold{"muted": muted},
	}

	records := DetectBottlenecks(metrics, thresholds)
	require.Len(t, records, 3)
	assert.Equal(t, "critical", records[0].StationID)
	assert.Equal(t, models.SeverityCritical, records[0].Severity)
	assert.Equal(t, "high", records[1].StationID)
	assert.Equal(t, "medium", records[2].StationID)
	assert.Equal(t, 9, records[0].Metrics.CurrentQueue)
	assert.Equal(t, "Critical", records[0].StationName)
}

func TestDetectBottlenecksEqualSeverityQueueFirst(t *testing.T) {
	// среднее по кухне 76с: slow 140с → 1.84x, превышение 1.23 → high по времени
	metrics := []models.StationMetrics{
		{StationID: "slow", AverageSeconds: 140},
		{StationID: "a", AverageSeconds: 60},
		{StationID: "b", AverageSeconds: 60},
		{StationID: "queued", AverageSeconds: 60, CurrentQueue: 7},
		{StationID: "late", AverageSeconds: 60, CurrentQueue: 7},
	}
	records := DetectBottlenecks(metrics, models.ThresholdSet{Default: testThreshold})
	require.Len(t, records, 3)
	for _, r := range records {
		assert.Equal(t, models.SeverityHigh, r.Severity, r.StationID)
	}
	assert.Equal(t, "queued", records[0].StationID)
	assert.Equal(t, models.CauseQueue, records[0].Cause)
	assert.Equal(t, "late", records[1].StationID)
	assert.Equal(t, "slow", records[2].StationID)
	assert.Equal(t, models.CauseTime, records[2].Cause)
}

func TestDetectBottlenecksUsesKitchenMean(t *testing.T) {
	// среднее по кухне 100с: 220с → 2.2x, превышение 1.47 → critical
	metrics := []models.StationMetrics{
		{StationID: "a", AverageSeconds: 40},
		{StationID: "b", AverageSeconds: 40},
		{StationID: "slow", AverageSeconds: 220},
	}
	records := DetectBottlenecks(metrics, models.ThresholdSet{Default: testThreshold})
	require.Len(t, records, 1)
	assert.Equal(t, "slow", records[0].StationID)
	assert.Equal(t, models.SeverityCritical, records[0].Severity)
}

func TestDetectBottlenecksEmpty(t *testing.T) {
	records := DetectBottlenecks(nil, models.ThresholdSet{Default: testThreshold})
	assert.NotNil(t, records)
	assert.Empty(t, records)
}
