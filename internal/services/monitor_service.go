package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"kitchenline/server/internal/models"
)

// Snapshot последнее производное состояние: метрики, узкие места, тревоги
type Snapshot struct {
	Metrics     []models.StationMetrics   `json:"metrics"`
	Bottlenecks []models.BottleneckRecord `json:"bottlenecks"`
	Alerts      []models.AlertState       `json:"alerts"`
	Decisions   []AlertDecision           `json:"decisions"`
	ComputedAt  time.Time                 `json:"computed_at"`
}

// MonitorOptions настройки цикла пересчета
type MonitorOptions struct {
	BranchID      string
	MetricsWindow time.Duration
	Debounce      time.Duration // как часто проверяется флаг "грязных" данных
	FullRefresh   time.Duration // пересчет даже без событий
}

// MonitorService подписка → инвалидация → метрики → детектор → менеджер тревог
type MonitorService struct {
	opts       MonitorOptions
	router     *SmartRouter
	metrics    *MetricsService
	thresholds *ThresholdService
	alerts     *AlertManager
	reconciler *Reconciler
	items      ItemStore
	acks       AlertStateStore
	notifier   Notifier
	clock      Clock

	dirty int32

	mu                   sync.RWMutex
	snapshot             Snapshot
	pendingCancellations map[string]time.Time
}

// NewMonitorService создает монитор сессии
func NewMonitorService(opts MonitorOptions, router *SmartRouter, metrics *MetricsService, thresholds *ThresholdService,
	alerts *AlertManager, reconciler *Reconciler, items ItemStore, acks AlertStateStore, notifier Notifier, clock Clock) *MonitorService {
	if opts.MetricsWindow <= 0 {
		opts.MetricsWindow = DefaultMetricsWindow
	}
	if opts.Debounce <= 0 {
		opts.Debounce = time.Second
	}
	if opts.FullRefresh <= 0 {
		opts.FullRefresh = 30 * time.Second
	}
	if clock == nil {
		clock = time.Now
	}
	return &MonitorService{
		opts:                 opts,
		router:               router,
		metrics:              metrics,
		thresholds:           thresholds,
		alerts:               alerts,
		reconciler:           reconciler,
		items:                items,
		acks:                 acks,
		notifier:             notifier,
		clock:                clock,
		pendingCancellations: make(map[string]time.Time),
	}
}

// HandleChange обработчик push-канала subscribe(table, onChange)
func (m *MonitorService) HandleChange(ctx context.Context, ev models.ChangeEvent) {
	if ev.BranchID != "" && m.opts.BranchID != "" && ev.BranchID != m.opts.BranchID {
		return
	}

	switch ev.Table {
	case models.TableStations:
		m.router.InvalidateTopology()
	case models.TableOrderItems:
		m.handleItemEvent(ev)
	case models.TableOrders:
		m.handleOrderEvent(ctx, ev)
	case models.TableStationLogs:
	default:
		return
	}
	m.MarkDirty()
}

func (m *MonitorService) handleItemEvent(ev models.ChangeEvent) {
	if ev.Op == models.OpDelete {
		m.reconciler.Remove(ev.RecordID)
		return
	}
	var item models.OrderItem
	if err := ev.DecodeNew(&item); err != nil {
		log.Printf("⚠️ Monitor: не удалось разобрать позицию %s: %v", ev.RecordID, err)
		return
	}
	if item.ID == "" {
		item.ID = ev.RecordID
	}
	if !m.reconciler.ApplyServer(item) {
		log.Printf("🔄 Monitor: устаревший снимок позиции %s проигнорирован (оптимистичный переход защищен)", item.ID)
	}
}

func (m *MonitorService) handleOrderEvent(ctx context.Context, ev models.ChangeEvent) {
	if ev.Op == models.OpDelete {
		return
	}
	var order models.Order
	if err := ev.DecodeNew(&order); err != nil {
		log.Printf("⚠️ Monitor: не удалось разобрать заказ %s: %v", ev.RecordID, err)
		return
	}
	if order.ID == "" {
		order.ID = ev.RecordID
	}
	var previous models.Order
	if len(ev.Old) > 0 {
		_ = ev.DecodeOld(&previous)
	}

	switch {
	case ev.Op == models.OpInsert:
		m.send(ctx, models.Notification{
			Kind:    models.NotifyOrderCreated,
			OrderID: order.ID,
			Message: fmt.Sprintf("new order %s", displayID(order)),
			Audio:   true,
		})
	case order.Status == models.OrderStatusReady && previous.Status != models.OrderStatusReady:
		m.send(ctx, models.Notification{
			Kind:    models.NotifyOrderReady,
			OrderID: order.ID,
			Message: fmt.Sprintf("order %s is ready", displayID(order)),
		})
	case order.Status == models.OrderStatusCancelled && previous.Status != models.OrderStatusCancelled:
		m.notifyCancellation(ctx, order)
	}
}

// notifyCancellation отмена показывается, пока оператор ее не подтвердит
func (m *MonitorService) notifyCancellation(ctx context.Context, order models.Order) {
	if m.acks != nil {
		acked, err := m.acks.IsCancellationAcknowledged(ctx, order.ID)
		if err != nil {
			log.Printf("⚠️ Monitor: не удалось проверить подтверждение отмены %s: %v", order.ID, err)
		}
		if acked {
			return
		}
	}
	m.mu.Lock()
	m.pendingCancellations[order.ID] = m.clock()
	m.mu.Unlock()
	m.send(ctx, models.Notification{
		Kind:    models.NotifyOrderCancelled,
		OrderID: order.ID,
		Message: fmt.Sprintf("order %s was cancelled", displayID(order)),
		Audio:   true,
	})
}

// AcknowledgeCancellation оператор подтвердил отмену заказа
func (m *MonitorService) AcknowledgeCancellation(ctx context.Context, orderID string) error {
	if m.acks != nil {
		if err := m.acks.AcknowledgeCancellation(ctx, orderID, m.clock()); err != nil {
			return fmt.Errorf("acknowledge cancellation: %w", err)
		}
	}
	m.mu.Lock()
	delete(m.pendingCancellations, orderID)
	m.mu.Unlock()
	return nil
}

// PendingCancellations неподтвержденные отмены
func (m *MonitorService) PendingCancellations() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.pendingCancellations))
	for id := range m.pendingCancellations {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// MarkDirty производное состояние нужно пересчитать
func (m *MonitorService) MarkDirty() {
	atomic.StoreInt32(&m.dirty, 1)
}

// Refresh повторный fetch и пересчет метрик, узких мест и тревог
func (m *MonitorService) Refresh(ctx context.Context) (Snapshot, error) {
	items, err := m.items.FetchItems(ctx, ItemFilter{
		BranchID:        m.opts.BranchID,
		Statuses:        []string{models.ItemStatusWaiting, models.ItemStatusInProgress},
		OutstandingOnly: true,
	})
	if err != nil {
		return m.Snapshot(), fmt.Errorf("refetch items: %w", err)
	}
	m.reconciler.Load(items)

	metrics, err := m.metrics.AllStationMetrics(ctx, m.opts.MetricsWindow)
	if err != nil {
		return m.Snapshot(), err
	}
	thresholds, err := m.thresholds.GetThresholds(ctx)
	if err != nil {
		// Пороги по умолчанию уже в thresholds, мониторинг продолжается
		log.Printf("⚠️ Monitor: %v (используем пороги по умолчанию)", err)
	}

	records := DetectBottlenecks(metrics, thresholds)
	decisions := m.alerts.Evaluate(ctx, records)
	publishStationGauges(metrics, records)

	snap := Snapshot{
		Metrics:     metrics,
		Bottlenecks: records,
		Alerts:      m.alerts.States(),
		Decisions:   decisions,
		ComputedAt:  m.clock(),
	}
	m.mu.Lock()
	m.snapshot = snap
	m.mu.Unlock()
	return snap, nil
}

// Snapshot последний рассчитанный снимок
func (m *MonitorService) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// Run цикл пересчета с дебаунсом событий. Ошибки пересчета не прерывают цикл.
func (m *MonitorService) Run(ctx context.Context) {
	log.Printf("📊 Monitor запущен: branch=%s, окно метрик=%s", m.opts.BranchID, m.opts.MetricsWindow)
	m.MarkDirty()

	debounce := time.NewTicker(m.opts.Debounce)
	defer debounce.Stop()
	full := time.NewTicker(m.opts.FullRefresh)
	defer full.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("🛑 Monitor остановлен")
			return
		case <-full.C:
			m.MarkDirty()
		case <-debounce.C:
			if !atomic.CompareAndSwapInt32(&m.dirty, 1, 0) {
				continue
			}
			if _, err := m.Refresh(ctx); err != nil {
				log.Printf("⚠️ Monitor: пересчет не удался: %v", err)
			}
		}
	}
}

func (m *MonitorService) send(ctx context.Context, n models.Notification) {
	n.ID = uuid.New().String()
	n.Timestamp = m.clock()
	alertsFiredTotal.WithLabelValues(n.Kind, string(n.Severity)).Inc()
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Notify(ctx, n); err != nil {
		log.Printf("⚠️ Monitor: ошибка отправки уведомления %s: %v", n.Kind, err)
	}
}

func displayID(o models.Order) string {
	if o.DisplayID != "" {
		return o.DisplayID
	}
	return o.ID
}
