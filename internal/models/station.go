package models

import (
	"time"

	"gorm.io/gorm"
)

// StationType тип станции в производственной линии
type StationType string

const (
	StationTypeEntry            StationType = "entry"
	StationTypeParallelAssembly StationType = "parallel-assembly"
	StationTypeExpedite         StationType = "expedite"
	StationTypeOrderStatus      StationType = "order-status"
	StationTypeCustom           StationType = "custom"
)

// Valid проверяет, что тип станции известен
func (t StationType) Valid() bool {
	switch t {
	case StationTypeEntry, StationTypeParallelAssembly, StationTypeExpedite, StationTypeOrderStatus, StationTypeCustom:
		return true
	}
	return false
}

// Station представляет кухонную станцию в БД
type Station struct {
	ID        string         `gorm:"type:varchar(36);primaryKey" json:"id"` // UUID как строка (36 символов)
	Name      string         `gorm:"type:varchar(255);not null" json:"name"`
	Type      StationType    `gorm:"type:varchar(32);not null;default:'custom'" json:"type"`
	SortOrder int            `gorm:"not null;default:0" json:"sort_order"`
	IsActive  bool           `gorm:"not null" json:"is_active"`
	Color     string         `gorm:"type:varchar(20)" json:"color"` // только для UI
	Icon      string         `gorm:"type:varchar(50);not null;default:'ChefHat'" json:"icon"`
	BranchID  string         `gorm:"type:varchar(255);index" json:"branch_id"` // тенант
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName возвращает имя таблицы
func (Station) TableName() string {
	return "stations"
}

// ToMap преобразует Station в map для API ответа
func (s *Station) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"id":         s.ID,
		"name":       s.Name,
		"type":       s.Type,
		"sort_order": s.SortOrder,
		"is_active":  s.IsActive,
		"color":      s.Color,
		"icon":       s.Icon,
		"branch_id":  s.BranchID,
		"created_at": s.CreatedAt.Format(time.RFC3339),
		"updated_at": s.UpdatedAt.Format(time.RFC3339),
	}
}
