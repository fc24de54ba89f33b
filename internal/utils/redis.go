package utils

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

// RedisClient обертка над Redis клиентом: JSON-значения, хеши и Pub/Sub
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient создает новый Redis клиент
func NewRedisClient(client *redis.Client) *RedisClient {
	return &RedisClient{client: client}
}

func encode(value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		data, err := json.Marshal(value)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}

// HSetJSON сохраняет поле хеша как JSON
func (r *RedisClient) HSetJSON(ctx context.Context, key, field string, value interface{}) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	return r.client.HSet(ctx, key, field, data).Err()
}

// HGetAll получает все поля хеша
func (r *RedisClient) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return r.client.HGetAll(ctx, key).Result()
}

// HDel удаляет поле хеша
func (r *RedisClient) HDel(ctx context.Context, key string, fields ...string) error {
	return r.client.HDel(ctx, key, fields...).Err()
}

// HExists проверяет наличие поля хеша
func (r *RedisClient) HExists(ctx context.Context, key, field string) (bool, error) {
	return r.client.HExists(ctx, key, field).Result()
}

// Subscribe подписывается на канал и возвращает канал сообщений и функцию закрытия
func (r *RedisClient) Subscribe(ctx context.Context, channel string) (<-chan *redis.Message, func() error) {
	pubsub := r.client.Subscribe(ctx, channel)
	return pubsub.Channel(), pubsub.Close
}
