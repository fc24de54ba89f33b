package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// BadgerSettings настройки встроенного хранилища
type BadgerSettings struct {
	Path       string
	InMemory   bool
	SyncWrites bool
	GCInterval time.Duration
}

// badgerLogger направляет внутренние логи BadgerDB в стандартный log
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{}) {
	log.Printf("❌ Badger: "+format, args...)
}

func (badgerLogger) Warningf(format string, args ...interface{}) {
	log.Printf("⚠️ Badger: "+format, args...)
}

func (badgerLogger) Infof(string, ...interface{})  {}
func (badgerLogger) Debugf(string, ...interface{}) {}

// OpenBadger открывает BadgerDB на диске или в памяти
func OpenBadger(settings BadgerSettings) (*badger.DB, error) {
	var opts badger.Options
	if settings.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if settings.Path == "" {
			return nil, errors.New("BADGER_PATH is empty")
		}
		if err := os.MkdirAll(settings.Path, 0750); err != nil {
			return nil, fmt.Errorf("create badger directory %s: %w", settings.Path, err)
		}
		opts = badger.DefaultOptions(settings.Path)
	}
	opts = opts.WithSyncWrites(settings.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(badgerLogger{})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	if settings.InMemory {
		log.Println("✅ BadgerDB открыт в памяти")
	} else {
		log.Printf("✅ BadgerDB открыт: %s", settings.Path)
	}
	return db, nil
}

// RunBadgerGC периодически собирает мусор в value log до отмены ctx
func RunBadgerGC(ctx context.Context, db *badger.DB, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for db.RunValueLogGC(0.5) == nil {
			}
		}
	}
}
