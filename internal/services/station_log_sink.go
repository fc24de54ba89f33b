package services

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"kitchenline/server/internal/models"
)

// StationLogSink асинхронная очередь записи журнала станций.
// Журнал нужен только для метрик: ошибки записи проглатываются, переполнение очереди - пропуск.
type StationLogSink struct {
	store   StationLogStore
	queue   chan models.StationLog
	workers int
	timeout time.Duration

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopChan chan struct{}

	written int64
	dropped int64
	failed  int64
}

// NewStationLogSink создает очередь размером queueSize с workers воркерами
func NewStationLogSink(store StationLogStore, queueSize, workers int) *StationLogSink {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if workers <= 0 {
		workers = 2
	}
	return &StationLogSink{
		store:    store,
		queue:    make(chan models.StationLog, queueSize),
		workers:  workers,
		timeout:  5 * time.Second,
		stopChan: make(chan struct{}),
	}
}

// Start запускает воркеры
func (s *StationLogSink) Start() {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.workerLoop(i + 1)
	}
	log.Printf("📝 StationLogSink запущен: %d воркеров, очередь %d", s.workers, cap(s.queue))
}

// Append ставит запись в очередь, никогда не блокирует маршрутизацию
func (s *StationLogSink) Append(entry models.StationLog) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	select {
	case <-s.stopChan:
		atomic.AddInt64(&s.dropped, 1)
		stationLogsDropped.Inc()
		return
	default:
	}
	select {
	case s.queue <- entry:
	default:
		// Очередь переполнена - пропускаем, журнал не авторитетен
		atomic.AddInt64(&s.dropped, 1)
		stationLogsDropped.Inc()
	}
}

func (s *StationLogSink) workerLoop(id int) {
	defer s.wg.Done()
	for {
		select {
		case entry := <-s.queue:
			s.write(entry)
		case <-s.stopChan:
			// Дописываем то, что уже в очереди
			for {
				select {
				case entry := <-s.queue:
					s.write(entry)
				default:
					return
				}
			}
		}
	}
}

func (s *StationLogSink) write(entry models.StationLog) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.store.AppendStationLog(ctx, entry); err != nil {
		atomic.AddInt64(&s.failed, 1)
		return
	}
	atomic.AddInt64(&s.written, 1)
}

// Stop останавливает воркеры, дописав очередь
func (s *StationLogSink) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
		log.Printf("🛑 StationLogSink остановлен: записано=%d, пропущено=%d, ошибок=%d",
			atomic.LoadInt64(&s.written), atomic.LoadInt64(&s.dropped), atomic.LoadInt64(&s.failed))
	})
}

// GetStats статистика очереди
func (s *StationLogSink) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"queue_length": len(s.queue),
		"written":      atomic.LoadInt64(&s.written),
		"dropped":      atomic.LoadInt64(&s.dropped),
		"failed":       atomic.LoadInt64(&s.failed),
	}
}
