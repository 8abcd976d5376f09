package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Movie is the catalog reference for pricing at cart and order time.
// Price may change between cart-add and checkout; orders snapshot it.
type Movie struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name        string          `gorm:"column:name;not null"`
	Year        int             `gorm:"column:year;not null"`
	Time        int             `gorm:"column:time;not null"`
	IMDB        float64         `gorm:"column:imdb;not null"`
	Genre       string          `gorm:"column:genre;not null"`
	Description string          `gorm:"column:description;not null"`
	Price       decimal.Decimal `gorm:"column:price;type:numeric(10,2);not null"`
	IsAvailable bool            `gorm:"column:is_available;not null;default:true"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
