package models

import (
	"time"

	"github.com/google/uuid"
)

// PurchasedMovie records that a user holds a paid order containing a movie.
// Rows are written by the reconciler in the same transaction that marks the
// order paid, and are the basis of the no-repeat-purchase rule.
type PurchasedMovie struct {
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;primaryKey"`
	MovieID   uuid.UUID `gorm:"column:movie_id;type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
