package models

import "time"

// Recipe holds the crafting recipes for one item, keyed by item name. Body is
// the JSON array of recipe shapes as imported.
type Recipe struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"size:128;not null;uniqueIndex"`
	Body      string `gorm:"type:text;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
