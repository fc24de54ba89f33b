package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"kitchenline/server/internal/models"
	"kitchenline/server/internal/utils"
)

// RedisAlertStore состояние тревог и подтверждения отмен в хешах Redis
type RedisAlertStore struct {
	redis    *utils.RedisClient
	alertKey string
	ackKey   string
}

// NewRedisAlertStore ключи разделены по филиалу
func NewRedisAlertStore(redis *utils.RedisClient, branchID string) *RedisAlertStore {
	return &RedisAlertStore{
		redis:    redis,
		alertKey: fmt.Sprintf("kitchen:alerts:%s", branchID),
		ackKey:   fmt.Sprintf("kitchen:cancel_acks:%s", branchID),
	}
}

func (s *RedisAlertStore) SaveAlertState(ctx context.Context, state models.AlertState) error {
	return s.redis.HSetJSON(ctx, s.alertKey, state.StationID, state)
}

func (s *RedisAlertStore) DeleteAlertState(ctx context.Context, stationID string) error {
	return s.redis.HDel(ctx, s.alertKey, stationID)
}

func (s *RedisAlertStore) LoadAlertStates(ctx context.Context) ([]models.AlertState, error) {
	fields, err := s.redis.HGetAll(ctx, s.alertKey)
	if err != nil {
		return nil, fmt.Errorf("load alert states: %w", err)
	}
	states := make([]models.AlertState, 0, len(fields))
	for stationID, raw := range fields {
		var st models.AlertState
		if err := json.Unmarshal([]byte(raw), &st); err != nil {
			log.Printf("⚠️ RedisAlertStore: поврежденное состояние станции %s: %v", stationID, err)
			continue
		}
		states = append(states, st)
	}
	return states, nil
}

func (s *RedisAlertStore) AcknowledgeCancellation(ctx context.Context, orderID string, at time.Time) error {
	return s.redis.HSetJSON(ctx, s.ackKey, orderID, at.UTC().Format(time.RFC3339Nano))
}

func (s *RedisAlertStore) IsCancellationAcknowledged(ctx context.Context, orderID string) (bool, error) {
	return s.redis.HExists(ctx, s.ackKey, orderID)
}
