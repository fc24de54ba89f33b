package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ThresholdDefaults пороги узких мест по умолчанию для филиала
type ThresholdDefaults struct {
	MaxQueueSize  int     `yaml:"max_queue_size" validate:"gte=1"`
	MaxTimeRatio  float64 `yaml:"max_time_ratio" validate:"gt=0"`
	AlertsEnabled bool    `yaml:"alerts_enabled"`
}

// StationSeed станция для работы без PostgreSQL
type StationSeed struct {
	ID        string `yaml:"id" validate:"required"`
	Name      string `yaml:"name" validate:"required"`
	Type      string `yaml:"type" validate:"oneof=entry parallel-assembly expedite order-status custom"`
	SortOrder int    `yaml:"sort_order"`
}

// KitchenConfig настройка кухни: ключевые слова, кулдауны, окна
type KitchenConfig struct {
	EntryKeywords       []string          `yaml:"entry_keywords" validate:"dive,required"`
	AlertCooldown       time.Duration     `yaml:"alert_cooldown" validate:"gt=0"`
	AudioCooldown       time.Duration     `yaml:"audio_cooldown" validate:"gt=0"`
	DelayThreshold      time.Duration     `yaml:"delay_threshold" validate:"gt=0"`
	DelayPollInterval   time.Duration     `yaml:"delay_poll_interval" validate:"gt=0"`
	DelayAudioCooldown  time.Duration     `yaml:"delay_audio_cooldown" validate:"gt=0"`
	MovedMarkerTTL      time.Duration     `yaml:"moved_marker_ttl" validate:"gt=0"`
	MetricsWindow       time.Duration     `yaml:"metrics_window" validate:"gt=0"`
	RefreshDebounce     time.Duration     `yaml:"refresh_debounce" validate:"gt=0"`
	FullRefreshInterval time.Duration     `yaml:"full_refresh_interval" validate:"gt=0"`
	LogQueueSize        int               `yaml:"log_queue_size" validate:"gte=1"`
	LogWorkers          int               `yaml:"log_workers" validate:"gte=1,lte=32"`
	Thresholds          ThresholdDefaults `yaml:"thresholds"`
	Stations            []StationSeed     `yaml:"stations" validate:"dive"`
}

// DefaultKitchenConfig значения, с которыми кухня работает без файла
func DefaultKitchenConfig() KitchenConfig {
	return KitchenConfig{
		EntryKeywords:       []string{"borda", "recheada", "chocolate", "catupiry", "cheddar"},
		AlertCooldown:       5 * time.Minute,
		AudioCooldown:       30 * time.Second,
		DelayThreshold:      20 * time.Minute,
		DelayPollInterval:   30 * time.Second,
		DelayAudioCooldown:  60 * time.Second,
		MovedMarkerTTL:      3 * time.Second,
		MetricsWindow:       24 * time.Hour,
		RefreshDebounce:     time.Second,
		FullRefreshInterval: 30 * time.Second,
		LogQueueSize:        getEnvInt("STATION_LOG_QUEUE", 1024),
		LogWorkers:          getEnvInt("STATION_LOG_WORKERS", 2),
		Thresholds: ThresholdDefaults{
			MaxQueueSize:  getEnvInt("DEFAULT_MAX_QUEUE", 5),
			MaxTimeRatio:  getEnvFloat("DEFAULT_MAX_TIME_RATIO", 1.5),
			AlertsEnabled: true,
		},
	}
}

// LoadKitchenConfig накладывает YAML-файл на значения по умолчанию.
// Поля, которых нет в файле, остаются по умолчанию.
func LoadKitchenConfig(path string) (KitchenConfig, error) {
	cfg := DefaultKitchenConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read kitchen config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse kitchen config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	log.Printf("✅ Kitchen config загружен из %s (%d ключевых слов, cooldown %s)", path, len(cfg.EntryKeywords), cfg.AlertCooldown)
	return cfg, nil
}

// Validate проверяет настройки кухни
func (k KitchenConfig) Validate() error {
	if err := validator.New().Struct(k); err != nil {
		return fmt.Errorf("invalid kitchen config: %w", err)
	}
	return nil
}
