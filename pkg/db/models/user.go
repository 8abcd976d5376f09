package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/cinevault/cinevault-backend/pkg/enums"
)

// User is the owning account row for carts, orders and payments.
// Registration and login live in the external auth service.
type User struct {
	ID        uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Email     string         `gorm:"column:email;not null;uniqueIndex"`
	Role      enums.UserRole `gorm:"column:role;type:text;not null;default:'user'"`
	IsActive  bool           `gorm:"column:is_active;not null;default:false"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
