package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc/health"
	"gorm.io/gorm"

	"kitchenline/server/internal/api"
	"kitchenline/server/internal/config"
	"kitchenline/server/internal/database"
	"kitchenline/server/internal/models"
	"kitchenline/server/internal/services"
	"kitchenline/server/internal/utils"
)

func main() {
	// Загружаем переменные окружения из .env файла (если существует)
	if err := godotenv.Load(); err != nil {
		log.Printf("ℹ️ .env файл не найден, используем переменные окружения системы")
	} else {
		log.Printf("✅ Переменные окружения загружены из .env файла")
	}

	cfg := config.Load()
	kitchenCfg, err := config.LoadKitchenConfig(cfg.KitchenConfigPath)
	if err != nil {
		log.Fatalf("❌ Kitchen config: %v", err)
	}
	cfg.Kitchen = kitchenCfg
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ %v", err)
	}
	log.Printf("📋 Филиал %s, change feed: %s, alert store: %s", cfg.BranchID, cfg.ChangeFeed, cfg.AlertStore)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Подключение к PostgreSQL. Без БД работаем на хранилище в памяти.
	var db *gorm.DB
	var store services.KitchenStore
	if cfg.DatabaseURL != "" {
		log.Printf("📋 DATABASE_URL установлен: %s", maskURL(cfg.DatabaseURL))
		db, err = database.ConnectPostgres(cfg.DatabaseURL, database.DefaultPoolSettings)
		if err != nil {
			log.Printf("❌ PostgreSQL connection failed: %v", err)
			log.Printf("⚠️ Продолжаем без БД (хранилище в памяти)")
			db = nil
		}
	}
	if db != nil {
		defer database.ClosePostgres(db)
		if err := models.AutoMigrate(db); err != nil {
			log.Printf("❌ Migration failed: %v", err)
		}
		if cfg.ChangeFeed == "postgres" {
			if err := database.InstallNotifyTriggers(db, cfg.NotifyChannel); err != nil {
				log.Printf("⚠️ NOTIFY триггеры не установлены: %v", err)
			}
		}
		store = database.NewGormKitchenStore(db)
	} else {
		mem := services.NewMemoryKitchenStore()
		for _, seed := range cfg.Kitchen.Stations {
			mem.PutStation(models.Station{
				ID:        seed.ID,
				Name:      seed.Name,
				Type:      models.StationType(seed.Type),
				SortOrder: seed.SortOrder,
				IsActive:  true,
				BranchID:  cfg.BranchID,
			})
		}
		log.Printf("🧪 Хранилище в памяти: %d станций из kitchen config", len(cfg.Kitchen.Stations))
		store = mem
	}

	// Подключение к Redis (с поддержкой Sentinel)
	var redisUtil *utils.RedisClient
	if cfg.RedisURL != "" || len(cfg.RedisSentinelAddrs) > 0 {
		redisClient, err := database.ConnectRedis(database.RedisSettings{
			URL:           cfg.RedisURL,
			SentinelAddrs: cfg.RedisSentinelAddrs,
			MasterName:    cfg.RedisMasterName,
		})
		if err != nil {
			log.Printf("⚠️ Redis connection failed: %v (continuing without Redis)", err)
		} else {
			redisUtil = utils.NewRedisClient(redisClient)
			defer database.CloseRedis(redisClient)
		}
	}

	// Фоновые циклы, которые пишут в хранилище тревог. Хранилище закрывается после них.
	var workers sync.WaitGroup
	alertStore, closeAlertStore := openAlertStore(ctx, cfg, redisUtil, &workers)

	// Уведомления: экраны кухни + внешний коллаборатор звука/тостов
	hub := api.NewHub("kitchen")
	go hub.Run(ctx)
	notifier := services.MultiNotifier{api.NewHubNotifier(hub)}
	if cfg.RabbitMQURL != "" {
		rabbit, err := api.NewRabbitNotifier(cfg.RabbitMQURL, cfg.AlertExchange)
		if err != nil {
			log.Printf("⚠️ RabbitMQ недоступен: %v (уведомления только через WebSocket)", err)
		} else {
			defer rabbit.Close()
			notifier = append(notifier, rabbit)
		}
	}

	// Сессия филиала
	kc := cfg.Kitchen
	classifier := services.NewEntryClassifier(kc.EntryKeywords)
	router := services.NewSmartRouter(store, store, cfg.BranchID, classifier)
	reconciler := services.NewReconciler(kc.MovedMarkerTTL, time.Now)
	sink := services.NewStationLogSink(store, kc.LogQueueSize, kc.LogWorkers)
	sink.Start()
	defer sink.Stop()

	dispatch := services.NewDispatchService(router, store, sink, reconciler, time.Now)
	metrics := services.NewMetricsService(router, store, store, time.Now)
	thresholds := services.NewThresholdService(store, cfg.BranchID, models.BottleneckThreshold{
		BranchID:      cfg.BranchID,
		MaxQueueSize:  kc.Thresholds.MaxQueueSize,
		MaxTimeRatio:  kc.Thresholds.MaxTimeRatio,
		AlertsEnabled: kc.Thresholds.AlertsEnabled,
	})
	alerts := services.NewAlertManager(alertStore, notifier, kc.AlertCooldown, kc.AudioCooldown, time.Now)
	if err := alerts.Restore(ctx); err != nil {
		log.Printf("⚠️ Состояние тревог не восстановлено: %v", err)
	}
	delays := services.NewDelayMonitor(store, notifier, cfg.BranchID, kc.DelayThreshold, kc.DelayPollInterval, kc.DelayAudioCooldown, time.Now)
	monitor := services.NewMonitorService(services.MonitorOptions{
		BranchID:      cfg.BranchID,
		MetricsWindow: kc.MetricsWindow,
		Debounce:      kc.RefreshDebounce,
		FullRefresh:   kc.FullRefreshInterval,
	}, router, metrics, thresholds, alerts, reconciler, store, alertStore, notifier, time.Now)

	// gRPC health: SERVING только при валидной топологии станций
	grpcServer, healthServer, err := api.StartGRPCHealth(cfg.GRPCPort)
	if err != nil {
		log.Printf("⚠️ gRPC health не запущен: %v", err)
	} else {
		defer grpcServer.GracefulStop()
	}
	go watchTopology(ctx, router, healthServer, kc.FullRefreshInterval)

	if feed := openChangeFeed(cfg, db, redisUtil); feed != nil {
		go func() {
			if err := feed.Subscribe(ctx, monitor.HandleChange); err != nil {
				log.Printf("⚠️ Change feed остановлен: %v", err)
			}
		}()
	} else {
		log.Printf("⚠️ Change feed отключен, пересчет только по таймеру (%s)", kc.FullRefreshInterval)
	}
	workers.Add(2)
	go func() {
		defer workers.Done()
		monitor.Run(ctx)
	}()
	go func() {
		defer workers.Done()
		delays.Run(ctx)
	}()

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/api/v1/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "Kitchen Line",
			"branch":  cfg.BranchID,
			"clients": hub.GetClientsCount(),
			"logs":    sink.GetStats(),
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Логирование всех запросов
	r.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Printf("🌐 %s %s - Status: %d - Latency: %v", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	})

	// CORS для экранов кухни
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	apiGroup := r.Group("/api/v1")
	kitchenController := api.NewKitchenController(api.KitchenDeps{
		Router:     router,
		Dispatch:   dispatch,
		Metrics:    metrics,
		Thresholds: thresholds,
		Monitor:    monitor,
		Alerts:     alerts,
		Delays:     delays,
		Reconciler: reconciler,
		Hub:        hub,
		Window:     kc.MetricsWindow,
	})
	kitchenController.RegisterRoutes(apiGroup.Group("/kitchen"))
	log.Println("🍕 Kitchen endpoints enabled: /api/v1/kitchen")

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("🚀 Server starting on port %s", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("❌ Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("🛑 Остановка сервера...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️ HTTP shutdown: %v", err)
	}
	workers.Wait()
	closeAlertStore()
}

// openAlertStore хранилище состояния тревог. При недоступности выбранного - в памяти.
// Возвращаемую функцию закрытия вызывать после остановки всех писателей.
func openAlertStore(ctx context.Context, cfg *config.Config, redisUtil *utils.RedisClient, workers *sync.WaitGroup) (services.AlertStateStore, func()) {
	noop := func() {}
	switch cfg.AlertStore {
	case "badger":
		bdb, err := database.OpenBadger(database.BadgerSettings{
			Path:       cfg.BadgerPath,
			SyncWrites: true,
			GCInterval: 10 * time.Minute,
		})
		if err != nil {
			log.Printf("⚠️ BadgerDB недоступна: %v (состояние тревог в памяти)", err)
			break
		}
		workers.Add(1)
		go func() {
			defer workers.Done()
			database.RunBadgerGC(ctx, bdb, 10*time.Minute)
		}()
		return database.NewBadgerAlertStore(bdb, cfg.BranchID), func() {
			if err := bdb.Close(); err != nil {
				log.Printf("⚠️ BadgerDB close: %v", err)
			}
		}
	case "redis":
		if redisUtil != nil {
			return database.NewRedisAlertStore(redisUtil, cfg.BranchID), noop
		}
		log.Printf("⚠️ Redis недоступен, состояние тревог в памяти")
	}
	return services.NewMemoryAlertStateStore(), noop
}

// openChangeFeed push-канал изменений по настройке KITCHEN_CHANGE_FEED
func openChangeFeed(cfg *config.Config, db *gorm.DB, redisUtil *utils.RedisClient) services.ChangeFeed {
	switch cfg.ChangeFeed {
	case "kafka":
		if cfg.KafkaBrokers != "" {
			log.Printf("📡 KAFKA_BROKERS установлен: %s", cfg.KafkaBrokers)
			return api.NewKafkaChangeConsumer(cfg.KafkaBrokers, cfg.KafkaChangeTopic, cfg.KafkaGroupID,
				cfg.KafkaUsername, cfg.KafkaPassword, cfg.KafkaCACert)
		}
	case "postgres":
		if db != nil {
			return database.NewPgNotifyFeed(cfg.DatabaseURL, cfg.NotifyChannel)
		}
	case "redis":
		if redisUtil != nil {
			return database.NewRedisChangeFeed(redisUtil, cfg.RedisChangeChannel)
		}
	}
	return nil
}

// watchTopology проверяет конфигурацию станций и выставляет статус gRPC health
func watchTopology(ctx context.Context, router *services.SmartRouter, healthServer *health.Server, interval time.Duration) {
	check := func() {
		topo, err := router.Topology(ctx)
		if err == nil {
			err = topo.Validate()
		}
		if err != nil {
			log.Printf("⚠️ Топология станций: %v", err)
		}
		api.SetKitchenServing(healthServer, err == nil)
	}
	check()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Без change feed правки станций видны только после перечитывания
			router.InvalidateTopology()
			check()
		}
	}
}

// maskURL скрывает логин и пароль в URL для логов
func maskURL(raw string) string {
	idx := strings.Index(raw, "@")
	schemeIdx := strings.Index(raw, "://")
	if idx > 0 && schemeIdx > 0 && schemeIdx < idx {
		return raw[:schemeIdx+3] + "***@" + raw[idx+1:]
	}
	return raw
}
