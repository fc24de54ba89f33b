package api

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"kitchenline/server/internal/models"
	"kitchenline/server/internal/services"
)

// KitchenController HTTP-поверхность производственной линии
type KitchenController struct {
	router     *services.SmartRouter
	dispatch   *services.DispatchService
	metrics    *services.MetricsService
	thresholds *services.ThresholdService
	monitor    *services.MonitorService
	alerts     *services.AlertManager
	delays     *services.DelayMonitor
	reconciler *services.Reconciler
	hub        *Hub
	window     time.Duration
}

// KitchenDeps зависимости контроллера (сессия одного филиала)
type KitchenDeps struct {
	Router     *services.SmartRouter
	Dispatch   *services.DispatchService
	Metrics    *services.MetricsService
	Thresholds *services.ThresholdService
	Monitor    *services.MonitorService
	Alerts     *services.AlertManager
	Delays     *services.DelayMonitor
	Reconciler *services.Reconciler
	Hub        *Hub
	Window     time.Duration
}

func NewKitchenController(deps KitchenDeps) *KitchenController {
	window := deps.Window
	if window <= 0 {
		window = services.DefaultMetricsWindow
	}
	return &KitchenController{
		router:     deps.Router,
		dispatch:   deps.Dispatch,
		metrics:    deps.Metrics,
		thresholds: deps.Thresholds,
		monitor:    deps.Monitor,
		alerts:     deps.Alerts,
		delays:     deps.Delays,
		reconciler: deps.Reconciler,
		hub:        deps.Hub,
		window:     window,
	}
}

// RegisterRoutes регистрирует маршруты кухни в группе /kitchen
func (kc *KitchenController) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/stations", kc.GetStations)
	group.GET("/stations/metrics", kc.GetAllStationMetrics)
	group.GET("/stations/:id/metrics", kc.GetStationMetrics)
	group.GET("/stations/:id/items", kc.GetStationItems)
	group.GET("/bottlenecks", kc.GetBottlenecks)
	group.GET("/thresholds", kc.GetThresholds)
	group.PUT("/thresholds", kc.PutThreshold)
	group.POST("/orders/:id/start", kc.StartOrder)
	group.POST("/orders/:id/cancellation-ack", kc.AcknowledgeCancellation)
	group.POST("/items/:id/start", kc.StartItem)
	group.POST("/items/:id/advance", kc.AdvanceItem)
	group.POST("/items/:id/move", kc.MoveItem)
	group.GET("/alerts", kc.GetAlerts)
	if kc.hub != nil {
		group.GET("/ws", kc.ServeWS)
	}
}

// GetStations активные станции в порядке линии
// GET /api/v1/kitchen/stations
func (kc *KitchenController) GetStations(c *gin.Context) {
	topo, err := kc.router.Topology(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	stations := topo.Stations()
	result := make([]map[string]interface{}, 0, len(stations))
	for i := range stations {
		result = append(result, stations[i].ToMap())
	}
	resp := gin.H{"stations": result, "count": len(result)}
	if err := topo.Validate(); err != nil {
		resp["error"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// GetAllStationMetrics метрики всех станций за окно (?window=24h)
func (kc *KitchenController) GetAllStationMetrics(c *gin.Context) {
	window, ok := kc.parseWindow(c)
	if !ok {
		return
	}
	metrics, err := kc.metrics.AllStationMetrics(c.Request.Context(), window)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"metrics": metrics, "window": window.String()})
}

// GetStationMetrics метрики одной станции
func (kc *KitchenController) GetStationMetrics(c *gin.Context) {
	window, ok := kc.parseWindow(c)
	if !ok {
		return
	}
	m, err := kc.metrics.StationMetrics(c.Request.Context(), c.Param("id"), window)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

type itemView struct {
	models.OrderItem
	State services.ProjectionState `json:"state"`
}

// GetStationItems позиции станции в том виде, в каком их видит оператор
func (kc *KitchenController) GetStationItems(c *gin.Context) {
	stationID := c.Param("id")
	topo, err := kc.router.Topology(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if _, err := topo.Station(stationID); err != nil {
		respondError(c, err)
		return
	}

	items := kc.reconciler.Items(func(item models.OrderItem) bool {
		return item.StationID() == stationID && item.IsActive()
	})
	views := make([]itemView, 0, len(items))
	for _, item := range items {
		views = append(views, itemView{OrderItem: item, State: kc.reconciler.State(item.ID)})
	}
	c.JSON(http.StatusOK, gin.H{"station_id": stationID, "items": views, "count": len(views)})
}

// GetBottlenecks последний список узких мест (пересчитывается, если еще не было расчета)
func (kc *KitchenController) GetBottlenecks(c *gin.Context) {
	snap := kc.monitor.Snapshot()
	if snap.ComputedAt.IsZero() {
		var err error
		if snap, err = kc.monitor.Refresh(c.Request.Context()); err != nil {
			respondError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"bottlenecks": snap.Bottlenecks,
		"count":       len(snap.Bottlenecks),
		"computed_at": snap.ComputedAt,
	})
}

// GetThresholds пороги филиала
func (kc *KitchenController) GetThresholds(c *gin.Context) {
	set, err := kc.thresholds.GetThresholds(c.Request.Context())
	if err != nil {
		log.Printf("⚠️ GetThresholds: %v (возвращаем пороги по умолчанию)", err)
	}
	c.JSON(http.StatusOK, set)
}

// PutThreshold сохраняет пороги станции или филиала (station_id пустой)
func (kc *KitchenController) PutThreshold(c *gin.Context) {
	var th models.BottleneckThreshold
	if err := c.ShouldBindJSON(&th); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid data", "details": err.Error()})
		return
	}
	saved, err := kc.thresholds.SetThreshold(c.Request.Context(), th)
	if err != nil {
		respondError(c, err)
		return
	}
	kc.monitor.MarkDirty()
	c.JSON(http.StatusOK, saved)
}

// StartOrder начинает производство заказа
func (kc *KitchenController) StartOrder(c *gin.Context) {
	items, err := kc.dispatch.StartProduction(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	kc.monitor.MarkDirty()
	c.JSON(http.StatusOK, gin.H{"order_id": c.Param("id"), "items": items})
}

// StartItem оператор взял позицию в работу
func (kc *KitchenController) StartItem(c *gin.Context) {
	item, err := kc.dispatch.StartItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	kc.monitor.MarkDirty()
	c.JSON(http.StatusOK, item)
}

// AdvanceItem завершает позицию на текущей станции и отправляет дальше
func (kc *KitchenController) AdvanceItem(c *gin.Context) {
	result, err := kc.dispatch.AdvanceItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	kc.monitor.MarkDirty()
	c.JSON(http.StatusOK, result)
}

// MoveItem ручное перемещение позиции на станцию
func (kc *KitchenController) MoveItem(c *gin.Context) {
	var req struct {
		StationID string `json:"station_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid data", "details": err.Error()})
		return
	}
	item, err := kc.dispatch.MoveItem(c.Request.Context(), c.Param("id"), req.StationID)
	if err != nil {
		respondError(c, err)
		return
	}
	kc.monitor.MarkDirty()
	c.JSON(http.StatusOK, item)
}

// GetAlerts активные тревоги, задержки и неподтвержденные отмены
func (kc *KitchenController) GetAlerts(c *gin.Context) {
	resp := gin.H{
		"active":                kc.alerts.Active(),
		"states":                kc.alerts.States(),
		"pending_cancellations": kc.monitor.PendingCancellations(),
	}
	if kc.delays != nil {
		resp["delays"] = kc.delays.Last()
	}
	c.JSON(http.StatusOK, resp)
}

// AcknowledgeCancellation оператор подтвердил отмену заказа
func (kc *KitchenController) AcknowledgeCancellation(c *gin.Context) {
	if err := kc.monitor.AcknowledgeCancellation(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_id": c.Param("id"), "acknowledged": true})
}

func (kc *KitchenController) parseWindow(c *gin.Context) (time.Duration, bool) {
	raw := c.Query("window")
	if raw == "" {
		return kc.window, true
	}
	window, err := time.ParseDuration(raw)
	if err != nil || window <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid window", "details": raw})
		return 0, false
	}
	return window, true
}

// respondError сопоставляет ошибки сервисов с HTTP-кодами
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrItemNotFound),
		errors.Is(err, services.ErrOrderNotFound),
		errors.Is(err, services.ErrStationNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrInvalidThreshold):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrNoActiveStations),
		errors.Is(err, services.ErrItemFinished):
		status = http.StatusConflict
	case errors.Is(err, services.ErrWriteFailed):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		log.Printf("❌ %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
