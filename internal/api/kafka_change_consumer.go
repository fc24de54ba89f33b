package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"kitchenline/server/internal/models"
)

// KafkaChangeConsumer push-канал изменений из CDC-топика Kafka
type KafkaChangeConsumer struct {
	topic     string
	groupID   string
	reader    *kafka.Reader
	processed int64
	skipped   int64
	lastLog   int64
}

// NewKafkaChangeConsumer создает reader. Читаем только новые события:
// при старте монитор все равно делает полный fetch.
func NewKafkaChangeConsumer(brokers, topic, groupID, username, password, caCert string) *KafkaChangeConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     ParseKafkaBrokers(brokers),
		Topic:       topic,
		GroupID:     groupID,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     time.Second,
		Dialer:      CreateKafkaDialer(username, password, caCert),
	})
	return &KafkaChangeConsumer{
		topic:   topic,
		groupID: groupID,
		reader:  reader,
		lastLog: time.Now().Unix(),
	}
}

// Subscribe читает топик до отмены ctx
func (kc *KafkaChangeConsumer) Subscribe(ctx context.Context, handler func(ctx context.Context, ev models.ChangeEvent)) error {
	log.Printf("📡 Kafka change consumer запущен: topic=%s, groupID=%s", kc.topic, kc.groupID)
	defer func() {
		kc.reader.Close()
		log.Println("🛑 Kafka change consumer остановлен")
	}()

	for {
		msg, err := kc.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			log.Printf("⚠️ Kafka change consumer ошибка чтения: %v", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		ev, err := DecodeChangeMessage(msg.Value)
		if err != nil {
			atomic.AddInt64(&kc.skipped, 1)
			continue
		}
		handler(ctx, ev)

		// Логируем только раз в 30 секунд
		processed := atomic.AddInt64(&kc.processed, 1)
		now := time.Now().Unix()
		if now-atomic.LoadInt64(&kc.lastLog) >= 30 {
			atomic.StoreInt64(&kc.lastLog, now)
			log.Printf("📊 Kafka change consumer: обработано %d событий, пропущено %d", processed, atomic.LoadInt64(&kc.skipped))
		}
	}
}

// debeziumEnvelope формат Debezium (с payload-оберткой или без)
type debeziumEnvelope struct {
	Payload *debeziumEnvelope `json:"payload"`
	Op      string            `json:"op"`
	Before  json.RawMessage   `json:"before"`
	After   json.RawMessage   `json:"after"`
	TsMs    int64             `json:"ts_ms"`
	Source  struct {
		Table string `json:"table"`
	} `json:"source"`
}

var debeziumOps = map[string]string{
	"c": models.OpInsert,
	"r": models.OpInsert,
	"u": models.OpUpdate,
	"d": models.OpDelete,
}

// DecodeChangeMessage принимает как собственный формат ChangeEvent, так и Debezium
func DecodeChangeMessage(value []byte) (models.ChangeEvent, error) {
	var ev models.ChangeEvent
	if err := json.Unmarshal(value, &ev); err == nil && ev.Table != "" && ev.Op != "" {
		return ev, nil
	}

	var env debeziumEnvelope
	if err := json.Unmarshal(value, &env); err != nil {
		return ev, fmt.Errorf("decode change: %w", err)
	}
	if env.Payload != nil {
		env = *env.Payload
	}
	op, ok := debeziumOps[env.Op]
	if !ok || env.Source.Table == "" {
		return ev, fmt.Errorf("decode change: unknown op %q or table %q", env.Op, env.Source.Table)
	}

	ev = models.ChangeEvent{
		Table: env.Source.Table,
		Op:    op,
		At:    time.UnixMilli(env.TsMs),
	}
	if !isJSONNull(env.After) {
		ev.New = env.After
	}
	if !isJSONNull(env.Before) {
		ev.Old = env.Before
	}

	var row struct {
		ID       string `json:"id"`
		BranchID string `json:"branch_id"`
	}
	source := ev.New
	if source == nil {
		source = ev.Old
	}
	if source != nil {
		_ = json.Unmarshal(source, &row)
	}
	ev.RecordID = row.ID
	ev.BranchID = row.BranchID
	return ev, nil
}

func isJSONNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
