package models

import "time"

const (
	PropertyTypeRental = "rental"
	PropertyTypeSale   = "sale"
)

// Property is a listing owned by the property service. This package only reads it.
type Property struct {
	ID                  int64     `json:"id" gorm:"primaryKey"`
	Title               string    `json:"title"`
	Sector              string    `json:"sector" gorm:"index"`
	Address             string    `json:"address"`
	City                string    `json:"city"`
	Configuration       string    `json:"configuration"`
	Price               int64     `json:"price"`
	IsActive            bool      `json:"is_active" gorm:"index"`
	DefaultPropertyType string    `json:"default_property_type" gorm:"default:rental"`
	ListedAt            time.Time `json:"listed_at" gorm:"index"`
	CreatedAt           time.Time `json:"created_at"`
}

// Area is an entry of the known-area catalogue used for autocomplete
type Area struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"uniqueIndex;not null"`
	City      string    `json:"city" gorm:"default:Gurgaon"`
	CreatedAt time.Time `json:"created_at"`
}

// Page returns the slice window [offset, offset+limit) clamped to the list.
// A non-positive limit returns everything from offset.
func Page(properties []Property, offset, limit int) []Property {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(properties) {
		return []Property{}
	}
	end := len(properties)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return properties[offset:end]
}
