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
	DefaultDelayThreshold     = 20 * time.Minute
	DefaultDelayPollInterval  = 30 * time.Second
	DefaultDelayAudioCooldown = 60 * time.Second
)

// DelayedItem позиция, ожидающая дольше порога
type DelayedItem struct {
	ItemID    string        `json:"item_id"`
	OrderID   string        `json:"order_id"`
	StationID string        `json:"station_id"`
	Elapsed   time.Duration `json:"elapsed"`
}

// DelayReport результат одного опроса
type DelayReport struct {
	Delayed     bool          `json:"delayed"`
	Items       []DelayedItem `json:"items"`
	Audio       bool          `json:"audio"`
	CheckedAt   time.Time     `json:"checked_at"`
	Outstanding int           `json:"outstanding"`
}

// DelayMonitor опрашивает незавершенные позиции и смотрит только на абсолютное время ожидания
type DelayMonitor struct {
	items     ItemStore
	notifier  Notifier
	branchID  string
	threshold time.Duration
	interval  time.Duration
	clock     Clock
	audio     *rate.Limiter

	mu      sync.Mutex
	delayed bool
	last    DelayReport
}

// NewDelayMonitor создает монитор задержек
func NewDelayMonitor(items ItemStore, notifier Notifier, branchID string, threshold, interval, audioCooldown time.Duration, clock Clock) *DelayMonitor {
	if threshold <= 0 {
		threshold = DefaultDelayThreshold
	}
	if interval <= 0 {
		interval = DefaultDelayPollInterval
	}
	if audioCooldown <= 0 {
		audioCooldown = DefaultDelayAudioCooldown
	}
	if clock == nil {
		clock = time.Now
	}
	return &DelayMonitor{
		items:     items,
		notifier:  notifier,
		branchID:  branchID,
		threshold: threshold,
		interval:  interval,
		clock:     clock,
		audio:     rate.NewLimiter(rate.Every(audioCooldown), 1),
	}
}

// Check один опрос
func (dm *DelayMonitor) Check(ctx context.Context) (DelayReport, error) {
	items, err := dm.items.FetchItems(ctx, ItemFilter{
		BranchID:        dm.branchID,
		Statuses:        []string{models.ItemStatusWaiting, models.ItemStatusInProgress},
		OutstandingOnly: true,
	})
	if err != nil {
		return DelayReport{}, fmt.Errorf("fetch outstanding items: %w", err)
	}

	now := dm.clock()
	report := DelayReport{CheckedAt: now, Outstanding: len(items), Items: make([]DelayedItem, 0)}
	for _, item := range items {
		if item.StationStartedAt == nil {
			continue
		}
		if elapsed := now.Sub(*item.StationStartedAt); elapsed > dm.threshold {
			report.Items = append(report.Items, DelayedItem{
				ItemID:    item.ID,
				OrderID:   item.OrderID,
				StationID: item.StationID(),
				Elapsed:   elapsed,
			})
		}
	}
	sort.Slice(report.Items, func(i, j int) bool { return report.Items[i].Elapsed > report.Items[j].Elapsed })
	report.Delayed = len(report.Items) > 0

	dm.mu.Lock()
	wasDelayed := dm.delayed
	dm.delayed = report.Delayed
	if report.Delayed {
		report.Audio = dm.audio.AllowN(now, 1)
	}
	dm.last = report
	dm.mu.Unlock()

	switch {
	case report.Delayed && (report.Audio || !wasDelayed):
		ids := make([]string, 0, len(report.Items))
		for _, d := range report.Items {
			ids = append(ids, d.ItemID)
		}
		dm.send(ctx, models.Notification{
			ID:        uuid.New().String(),
			Kind:      models.NotifyDelay,
			Message:   fmt.Sprintf("%d item(s) waiting longer than %s", len(report.Items), dm.threshold),
			Audio:     report.Audio,
			ItemIDs:   ids,
			Timestamp: now,
		})
	case !report.Delayed && wasDelayed:
		dm.send(ctx, models.Notification{
			ID:        uuid.New().String(),
			Kind:      models.NotifyDelayCleared,
			Message:   "no delayed items",
			Timestamp: now,
		})
	}
	return report, nil
}

func (dm *DelayMonitor) send(ctx context.Context, n models.Notification) {
	alertsFiredTotal.WithLabelValues(n.Kind, "").Inc()
	if dm.notifier == nil {
		return
	}
	if err := dm.notifier.Notify(ctx, n); err != nil {
		log.Printf("⚠️ DelayMonitor: ошибка отправки уведомления: %v", err)
	}
}

// Last последний отчет
func (dm *DelayMonitor) Last() DelayReport {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.last
}

// Run опрашивает каждые interval до отмены контекста
func (dm *DelayMonitor) Run(ctx context.Context) {
	log.Printf("⏱️ DelayMonitor запущен: порог=%s, интервал=%s", dm.threshold, dm.interval)
	ticker := time.NewTicker(dm.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Println("🛑 DelayMonitor остановлен")
			return
		case <-ticker.C:
			if _, err := dm.Check(ctx); err != nil {
				log.Printf("⚠️ DelayMonitor: %v", err)
			}
		}
	}
}
