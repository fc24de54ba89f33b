package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/dgraph-io/badger/v4"

	"kitchenline/server/internal/models"
)

// BadgerAlertStore состояние тревог и подтверждения отмен во встроенной BadgerDB.
// Ключи: alert/<branch>/<station> и cancel_ack/<branch>/<order>.
type BadgerAlertStore struct {
	db          *badger.DB
	alertPrefix []byte
	ackPrefix   []byte
}

// NewBadgerAlertStore хранилище поверх открытой БД
func NewBadgerAlertStore(db *badger.DB, branchID string) *BadgerAlertStore {
	return &BadgerAlertStore{
		db:          db,
		alertPrefix: []byte(fmt.Sprintf("alert/%s/", branchID)),
		ackPrefix:   []byte(fmt.Sprintf("cancel_ack/%s/", branchID)),
	}
}

func key(prefix []byte, id string) []byte {
	out := make([]byte, 0, len(prefix)+len(id))
	out = append(out, prefix...)
	return append(out, id...)
}

func (s *BadgerAlertStore) SaveAlertState(ctx context.Context, state models.AlertState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(s.alertPrefix, state.StationID), data)
	})
}

func (s *BadgerAlertStore) DeleteAlertState(ctx context.Context, stationID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key(s.alertPrefix, stationID))
	})
}

func (s *BadgerAlertStore) LoadAlertStates(ctx context.Context) ([]models.AlertState, error) {
	var states []models.AlertState
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = s.alertPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				var st models.AlertState
				if err := json.Unmarshal(val, &st); err != nil {
					log.Printf("⚠️ BadgerAlertStore: поврежденная запись %s: %v", item.Key(), err)
					return nil
				}
				states = append(states, st)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load alert states: %w", err)
	}
	return states, nil
}

func (s *BadgerAlertStore) AcknowledgeCancellation(ctx context.Context, orderID string, at time.Time) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(s.ackPrefix, orderID), []byte(at.UTC().Format(time.RFC3339Nano)))
	})
}

func (s *BadgerAlertStore) IsCancellationAcknowledged(ctx context.Context, orderID string) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key(s.ackPrefix, orderID))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
