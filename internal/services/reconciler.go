package services

import (
	"sort"
	"sync"
	"time"

	"kitchenline/server/internal/models"
)

// DefaultMovedMarkerTTL сколько локальный оптимистичный переход защищен от устаревших push-снимков
const DefaultMovedMarkerTTL = 3 * time.Second

// ProjectionState состояние локальной проекции позиции
type ProjectionState string

const (
	// ProjectionConfirmed видимое состояние = состояние сервера
	ProjectionConfirmed ProjectionState = "confirmed"
	// ProjectionPendingWrite оптимистичный патч применен, запись еще не подтверждена
	ProjectionPendingWrite ProjectionState = "pending_write"
	// ProjectionProtected запись подтверждена, но push может еще принести старый снимок
	ProjectionProtected ProjectionState = "protected"
)

type projection struct {
	server     models.OrderItem
	local      *models.OrderItem
	state      ProjectionState
	guardUntil time.Time
}

func (p *projection) visible() models.OrderItem {
	if p.local != nil {
		return *p.local
	}
	return p.server
}

// Reconciler локальный кеш позиций, который не дает push-обновлениям
// затереть оптимистичные переходы. Один на сессию, без глобального состояния.
type Reconciler struct {
	mu      sync.Mutex
	ttl     time.Duration
	clock   Clock
	items   map[string]*projection
	markers map[string]time.Time
}

// NewReconciler создает реконсилер с окном защиты ttl
func NewReconciler(ttl time.Duration, clock Clock) *Reconciler {
	if ttl <= 0 {
		ttl = DefaultMovedMarkerTTL
	}
	if clock == nil {
		clock = time.Now
	}
	return &Reconciler{
		ttl:     ttl,
		clock:   clock,
		items:   make(map[string]*projection),
		markers: make(map[string]time.Time),
	}
}

// MarkRecentlyMoved ставит маркер "недавно перемещена" на ttl
func (r *Reconciler) MarkRecentlyMoved(itemID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markers[itemID] = r.clock().Add(r.ttl)
}

// IsRecentlyMoved маркер активен
func (r *Reconciler) IsRecentlyMoved(itemID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isMovedLocked(itemID, r.clock())
}

func (r *Reconciler) isMovedLocked(itemID string, now time.Time) bool {
	until, ok := r.markers[itemID]
	if !ok {
		return false
	}
	if !now.Before(until) {
		delete(r.markers, itemID)
		return false
	}
	return true
}

// ApplyOptimistic применяет патч локально до подтверждения записи
func (r *Reconciler) ApplyOptimistic(current models.OrderItem, patch models.ItemPatch) models.OrderItem {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock()
	p, ok := r.items[current.ID]
	if !ok {
		p = &projection{server: current}
		r.items[current.ID] = p
	}
	local := p.visible()
	patch.ApplyTo(&local)
	p.local = &local
	p.state = ProjectionPendingWrite
	p.guardUntil = now.Add(r.ttl)
	r.markers[current.ID] = p.guardUntil
	return local
}

// Confirm запись подтверждена: проекция защищена до истечения окна
func (r *Reconciler) Confirm(itemID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.items[itemID]
	if !ok || p.local == nil {
		return
	}
	now := r.clock()
	p.server = *p.local
	p.state = ProjectionProtected
	p.guardUntil = now.Add(r.ttl)
	r.markers[itemID] = p.guardUntil
}

// Rollback отменяет оптимистичный патч после неудачной записи
func (r *Reconciler) Rollback(itemID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.items[itemID]; ok {
		p.local = nil
		p.state = ProjectionConfirmed
		p.guardUntil = time.Time{}
	}
	delete(r.markers, itemID)
}

// ApplyServer применяет состояние позиции, пришедшее по push-каналу.
// Возвращает false, если снимок проигнорирован из-за активной защиты.
func (r *Reconciler) ApplyServer(item models.OrderItem) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.applyServerLocked(item, r.clock())
}

func (r *Reconciler) applyServerLocked(item models.OrderItem, now time.Time) bool {
	p, ok := r.items[item.ID]
	if !ok {
		r.items[item.ID] = &projection{server: item, state: ProjectionConfirmed}
		return true
	}

	if p.local != nil {
		guarded := p.state == ProjectionPendingWrite || now.Before(p.guardUntil)
		if guarded && !sameAssignment(*p.local, item) {
			return false
		}
	}
	p.server = item
	p.local = nil
	p.state = ProjectionConfirmed
	p.guardUntil = time.Time{}
	return true
}

// Load полная перезагрузка кеша после повторного fetch. Защищенные позиции сохраняются.
func (r *Reconciler) Load(items []models.OrderItem) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock()
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		seen[item.ID] = struct{}{}
		r.applyServerLocked(item, now)
	}
	for id, p := range r.items {
		if _, ok := seen[id]; ok {
			continue
		}
		if p.local != nil && (p.state == ProjectionPendingWrite || now.Before(p.guardUntil)) {
			continue
		}
		delete(r.items, id)
	}
}

// Remove удаляет позицию из кеша (DELETE событие)
func (r *Reconciler) Remove(itemID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, itemID)
	delete(r.markers, itemID)
}

// Item видимое состояние позиции
func (r *Reconciler) Item(itemID string) (models.OrderItem, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.items[itemID]
	if !ok {
		return models.OrderItem{}, false
	}
	r.expireLocked(p, r.clock())
	return p.visible(), true
}

// State состояние проекции позиции
func (r *Reconciler) State(itemID string) ProjectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.items[itemID]
	if !ok {
		return ProjectionConfirmed
	}
	r.expireLocked(p, r.clock())
	return p.state
}

// Items видимые позиции, прошедшие фильтр, в порядке ID
func (r *Reconciler) Items(keep func(models.OrderItem) bool) []models.OrderItem {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock()
	out := make([]models.OrderItem, 0, len(r.items))
	for _, p := range r.items {
		r.expireLocked(p, now)
		item := p.visible()
		if keep == nil || keep(item) {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// expireLocked после окна защиты сервер снова авторитетен
func (r *Reconciler) expireLocked(p *projection, now time.Time) {
	if p.state == ProjectionProtected && !now.Before(p.guardUntil) {
		p.state = ProjectionConfirmed
		p.local = nil
	}
}

func sameAssignment(a, b models.OrderItem) bool {
	return a.StationID() == b.StationID() && a.StationStatus == b.StationStatus
}
