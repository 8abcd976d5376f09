package models

import (
	"time"

	"github.com/google/uuid"
)

// Cart is the per-user container of candidate purchases. One per user.
type Cart struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    uuid.UUID  `gorm:"column:user_id;type:uuid;not null;uniqueIndex"`
	Items     []CartItem `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// CartItem holds a movie in a cart. Unique per (cart, movie).
type CartItem struct {
	ID      uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CartID  uuid.UUID `gorm:"column:cart_id;type:uuid;not null;uniqueIndex:uniq_cart_movie"`
	MovieID uuid.UUID `gorm:"column:movie_id;type:uuid;not null;uniqueIndex:uniq_cart_movie"`
	Movie   *Movie    `gorm:"foreignKey:MovieID"`
	AddedAt time.Time `gorm:"column:added_at;autoCreateTime"`
}
