package database

import (
	"context"
	"encoding/json"
	"log"

	"kitchenline/server/internal/models"
	"kitchenline/server/internal/utils"
)

// DefaultRedisChangeChannel канал Pub/Sub с изменениями кухни
const DefaultRedisChangeChannel = "kitchen:changes"

// RedisChangeFeed push-канал изменений через Redis Pub/Sub
type RedisChangeFeed struct {
	redis   *utils.RedisClient
	channel string
}

// NewRedisChangeFeed создает подписку на канал
func NewRedisChangeFeed(redis *utils.RedisClient, channel string) *RedisChangeFeed {
	if channel == "" {
		channel = DefaultRedisChangeChannel
	}
	return &RedisChangeFeed{redis: redis, channel: channel}
}

// Subscribe читает события до отмены ctx
func (f *RedisChangeFeed) Subscribe(ctx context.Context, handler func(ctx context.Context, ev models.ChangeEvent)) error {
	messages, closeFn := f.redis.Subscribe(ctx, f.channel)
	defer closeFn()
	log.Printf("✅ RedisChangeFeed: подписка на %s", f.channel)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var ev models.ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Printf("⚠️ RedisChangeFeed: не удалось разобрать сообщение: %v", err)
				continue
			}
			handler(ctx, ev)
		}
	}
}
