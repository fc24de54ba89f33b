package models

import (
	"log"

	"gorm.io/gorm"
)

// AutoMigrate выполняет миграции таблиц кухни
func AutoMigrate(db *gorm.DB) error {
	tables := []interface{}{
		&Station{},
		&Order{},
		&OrderItem{},
		&StationLog{},
		&BottleneckThreshold{},
	}
	for _, table := range tables {
		if err := db.AutoMigrate(table); err != nil {
			log.Printf("❌ AutoMigrate для %T failed: %v", table, err)
			return err
		}
	}
	log.Println("✅ Kitchen tables migrated successfully")
	return nil
}
