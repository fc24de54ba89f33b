package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"kitchenline/server/internal/models"
)

const (
	// DefaultAlertCooldown повторная тревога той же или меньшей серьезности не раньше
	DefaultAlertCooldown = 5 * time.Minute
	// DefaultAudioCooldown общий для всех станций интервал между звуковыми сигналами
	DefaultAudioCooldown = 30 * time.Second
)

// AlertDecision что менеджер сделал со станцией в цикле оценки
type AlertDecision struct {
	StationID string          `json:"station_id"`
	Severity  models.Severity `json:"severity"`
	Alerted   bool            `json:"alerted"`
	Audio     bool            `json:"audio"`
	Cleared   bool            `json:"cleared"`
}

// AlertManager машина состояний тревог по станциям: unalerted → alerted(severity, ts) → unalerted
type AlertManager struct {
	mu       sync.Mutex
	store    AlertStateStore
	notifier Notifier
	clock    Clock
	cooldown time.Duration
	audio    *rate.Limiter

	states  map[string]models.AlertState
	visible map[string]models.BottleneckRecord
}

// NewAlertManager создает менеджер тревог сессии
func NewAlertManager(store AlertStateStore, notifier Notifier, cooldown, audioCooldown time.Duration, clock Clock) *AlertManager {
	if cooldown <= 0 {
		cooldown = DefaultAlertCooldown
	}
	if audioCooldown <= 0 {
		audioCooldown = DefaultAudioCooldown
	}
	if clock == nil {
		clock = time.Now
	}
	return &AlertManager{
		store:    store,
		notifier: notifier,
		clock:    clock,
		cooldown: cooldown,
		audio:    rate.NewLimiter(rate.Every(audioCooldown), 1),
		states:   make(map[string]models.AlertState),
		visible:  make(map[string]models.BottleneckRecord),
	}
}

// Restore загружает сохраненное состояние, чтобы перезапуск посреди cooldown не вызвал шквал тревог
func (am *AlertManager) Restore(ctx context.Context) error {
	if am.store == nil {
		return nil
	}
	states, err := am.store.LoadAlertStates(ctx)
	if err != nil {
		return fmt.Errorf("load alert states: %w", err)
	}
	am.mu.Lock()
	defer am.mu.Unlock()
	for _, s := range states {
		am.states[s.StationID] = s
	}
	log.Printf("🔔 AlertManager: восстановлено %d состояний тревог", len(states))
	return nil
}

// ShouldAlert тревога разрешена: ее еще не было, серьезность строго выросла или истек cooldown
func (am *AlertManager) ShouldAlert(stationID string, severity models.Severity, now time.Time) bool {
	am.mu.Lock()
	defer am.mu.Unlock()
	return am.shouldAlertLocked(stationID, severity, now)
}

func (am *AlertManager) shouldAlertLocked(stationID string, severity models.Severity, now time.Time) bool {
	prev, ok := am.states[stationID]
	if !ok {
		return true
	}
	if severity.Higher(prev.Severity) {
		return true
	}
	return now.Sub(prev.AlertedAt) >= am.cooldown
}

// Evaluate один цикл оценки по свежим записям детектора
func (am *AlertManager) Evaluate(ctx context.Context, records []models.BottleneckRecord) []AlertDecision {
	now := am.clock()
	var (
		decisions     []AlertDecision
		notifications []models.Notification
		saves         []models.AlertState
		deletes       []string
	)

	am.mu.Lock()
	significant := make(map[string]models.BottleneckRecord)
	for _, r := range records {
		if r.Severity.Significant() {
			significant[r.StationID] = r
		}
	}

	for _, r := range records {
		if !r.Severity.Significant() {
			continue
		}
		am.visible[r.StationID] = r
		if !am.shouldAlertLocked(r.StationID, r.Severity, now) {
			decisions = append(decisions, AlertDecision{StationID: r.StationID, Severity: r.Severity})
			continue
		}
		state := models.AlertState{StationID: r.StationID, Severity: r.Severity, AlertedAt: now}
		am.states[r.StationID] = state
		saves = append(saves, state)

		audio := am.audio.AllowN(now, 1)
		decisions = append(decisions, AlertDecision{StationID: r.StationID, Severity: r.Severity, Alerted: true, Audio: audio})
		notifications = append(notifications, models.Notification{
			ID:        uuid.New().String(),
			Kind:      models.NotifyBottleneck,
			StationID: r.StationID,
			Severity:  r.Severity,
			Message:   fmt.Sprintf("%s: %s", r.StationName, r.Reason),
			Audio:     audio,
			Timestamp: now,
		})
	}

	// Станции, выпавшие из значимых: сбрасываем состояние и убираем уведомление
	cleared := make([]string, 0)
	for stationID := range am.states {
		if _, ok := significant[stationID]; !ok {
			cleared = append(cleared, stationID)
		}
	}
	for stationID := range am.visible {
		if _, ok := significant[stationID]; !ok {
			if _, tracked := am.states[stationID]; !tracked {
				cleared = append(cleared, stationID)
			}
		}
	}
	sort.Strings(cleared)
	for _, stationID := range cleared {
		delete(am.states, stationID)
		delete(am.visible, stationID)
		deletes = append(deletes, stationID)
		decisions = append(decisions, AlertDecision{StationID: stationID, Severity: models.SeverityLow, Cleared: true})
		notifications = append(notifications, models.Notification{
			ID:        uuid.New().String(),
			Kind:      models.NotifyBottleneckCleared,
			StationID: stationID,
			Severity:  models.SeverityLow,
			Message:   "station is no longer a bottleneck",
			Timestamp: now,
		})
	}
	am.mu.Unlock()

	am.persist(ctx, saves, deletes)
	for _, n := range notifications {
		am.send(ctx, n)
	}
	return decisions
}

func (am *AlertManager) persist(ctx context.Context, saves []models.AlertState, deletes []string) {
	if am.store == nil {
		return
	}
	for _, s := range saves {
		if err := am.store.SaveAlertState(ctx, s); err != nil {
			log.Printf("⚠️ AlertManager: не удалось сохранить состояние тревоги %s: %v", s.StationID, err)
		}
	}
	for _, id := range deletes {
		if err := am.store.DeleteAlertState(ctx, id); err != nil {
			log.Printf("⚠️ AlertManager: не удалось удалить состояние тревоги %s: %v", id, err)
		}
	}
}

func (am *AlertManager) send(ctx context.Context, n models.Notification) {
	alertsFiredTotal.WithLabelValues(n.Kind, string(n.Severity)).Inc()
	if am.notifier == nil {
		return
	}
	if err := am.notifier.Notify(ctx, n); err != nil {
		log.Printf("⚠️ AlertManager: ошибка отправки уведомления %s: %v", n.Kind, err)
	}
}

// States текущие состояния тревог
func (am *AlertManager) States() []models.AlertState {
	am.mu.Lock()
	defer am.mu.Unlock()
	out := make([]models.AlertState, 0, len(am.states))
	for _, s := range am.states {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StationID < out[j].StationID })
	return out
}

// Active видимые уведомления об узких местах
func (am *AlertManager) Active() []models.BottleneckRecord {
	am.mu.Lock()
	defer am.mu.Unlock()
	out := make([]models.BottleneckRecord, 0, len(am.visible))
	for _, r := range am.visible {
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Severity.Rank() != out[j].Severity.Rank() {
			return out[i].Severity.Rank() > out[j].Severity.Rank()
		}
		return out[i].StationID < out[j].StationID
	})
	return out
}
