package database

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSettings адрес Redis. Если заданы SentinelAddrs и MasterName, используется Sentinel.
type RedisSettings struct {
	URL           string
	SentinelAddrs []string
	MasterName    string
	Password      string
}

// ConnectRedis подключается к Redis напрямую или через Sentinel
func ConnectRedis(settings RedisSettings) (*redis.Client, error) {
	if len(settings.SentinelAddrs) > 0 && settings.MasterName != "" {
		return connectSentinel(settings)
	}
	if settings.URL == "" {
		return nil, fmt.Errorf("REDIS_URL is empty")
	}

	opt, err := redis.ParseURL(settings.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	// Pub/Sub держит отдельное соединение, остальное - редкие записи состояния тревог
	opt.PoolSize = 20
	opt.MinIdleConns = 2
	opt.MaxRetries = 3

	client := redis.NewClient(opt)
	if err := ping(client, 5*time.Second); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Printf("✅ Redis подключен (direct connection, db=%d)", opt.DB)
	return client, nil
}

func connectSentinel(settings RedisSettings) (*redis.Client, error) {
	addrs := splitAddrs(settings.SentinelAddrs)
	if len(addrs) == 0 {
		return nil, fmt.Errorf("no Sentinel addresses provided")
	}

	client := redis.NewFailoverClient(&redis.FailoverOptions{
		MasterName:    settings.MasterName,
		SentinelAddrs: addrs,
		Password:      settings.Password,
		PoolSize:      20,
		MinIdleConns:  2,
		MaxRetries:    3,
		DialTimeout:   5 * time.Second,
		ReadTimeout:   3 * time.Second,
		WriteTimeout:  3 * time.Second,
	})

	// Sentinel сначала выбирает мастера, поэтому таймаут больше
	if err := ping(client, 10*time.Second); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis Sentinel: %w", err)
	}

	log.Printf("✅ Redis Sentinel подключен (master: %s, sentinels: %v)", settings.MasterName, addrs)
	return client, nil
}

// splitAddrs принимает как список, так и одну строку через запятую
func splitAddrs(in []string) []string {
	var out []string
	for _, chunk := range in {
		for _, addr := range strings.Split(chunk, ",") {
			if addr = strings.TrimSpace(addr); addr != "" {
				out = append(out, addr)
			}
		}
	}
	return out
}

func ping(client *redis.Client, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return client.Ping(ctx).Err()
}

// CloseRedis закрывает подключение к Redis
func CloseRedis(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
