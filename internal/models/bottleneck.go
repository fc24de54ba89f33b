package models

// StationMetrics производные метрики станции (не сохраняются)
type StationMetrics struct {
	StationID      string  `json:"station_id"`
	StationName    string  `json:"station_name"`
	AverageSeconds float64 `json:"average_seconds"`
	MinSeconds     float64 `json:"min_seconds"`
	MaxSeconds     float64 `json:"max_seconds"`
	Completed      int     `json:"completed"`
	CurrentQueue   int     `json:"current_queue"`
	InProgress     int     `json:"in_progress"`
}

// Severity уровень узкого места
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank числовой ранг для сравнения уровней
func (s Severity) Rank() int {
	switch s {
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	}
	return 0
}

// Higher строго выше другого уровня
func (s Severity) Higher(other Severity) bool {
	return s.Rank() > other.Rank()
}

// Significant уровни, по которым поднимается тревога
func (s Severity) Significant() bool {
	return s == SeverityHigh || s == SeverityCritical
}

// BottleneckCause какое правило определило уровень
type BottleneckCause string

const (
	CauseQueue BottleneckCause = "queue"
	CauseTime  BottleneckCause = "time"
)

// BottleneckRecord результат оценки станции
type BottleneckRecord struct {
	StationID   string          `json:"station_id"`
	StationName string          `json:"station_name"`
	Severity    Severity        `json:"severity"`
	Cause       BottleneckCause `json:"cause"`
	Reason      string          `json:"reason"`
	Metrics     StationMetrics  `json:"metrics"`
}

// BottleneckThreshold пороги для станции. StationID == nil - пороги по умолчанию для филиала.
type BottleneckThreshold struct {
	ID            string  `gorm:"type:varchar(36);primaryKey" json:"id"`
	BranchID      string  `gorm:"type:varchar(255);index" json:"branch_id"`
	StationID     *string `gorm:"type:varchar(36);index" json:"station_id,omitempty"`
	MaxQueueSize  int     `gorm:"not null;default:5" json:"max_queue_size" validate:"gte=1"`
	MaxTimeRatio  float64 `gorm:"not null;default:1.5" json:"max_time_ratio" validate:"gt=0"`
	AlertsEnabled bool    `gorm:"not null" json:"alerts_enabled"`
}

// TableName возвращает имя таблицы
func (BottleneckThreshold) TableName() string {
	return "bottleneck_thresholds"
}

// ThresholdSet пороги филиала: по умолчанию + переопределения по станциям
type ThresholdSet struct {
	Default    BottleneckThreshold            `json:"default"`
	PerStation map[string]BottleneckThreshold `json:"per_station"`
}

// For возвращает пороги для станции
func (ts ThresholdSet) For(stationID string) BottleneckThreshold {
	if th, ok := ts.PerStation[stationID]; ok {
		return th
	}
	return ts.Default
}
