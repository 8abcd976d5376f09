package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cinevault/cinevault-backend/pkg/enums"
)

// Payment records a gateway charge attempt against an order. Status is
// mutated only by the reconciler under a row lock.
type Payment struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID            uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	OrderID           uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index"`
	ExternalPaymentID *string             `gorm:"column:external_payment_id;uniqueIndex"`
	Status            enums.PaymentStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	Amount            decimal.Decimal     `gorm:"column:amount;type:numeric(10,2);not null"`
	Attempt           int                 `gorm:"column:attempt;not null;default:1"`
	ReviewReason      *string             `gorm:"column:review_reason"`
	Items             []PaymentItem       `gorm:"foreignKey:PaymentID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// PaymentItem is the line-level breakdown of a payment for itemized audit.
type PaymentItem struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PaymentID      uuid.UUID       `gorm:"column:payment_id;type:uuid;not null;index"`
	OrderItemID    uuid.UUID       `gorm:"column:order_item_id;type:uuid;not null"`
	PriceAtPayment decimal.Decimal `gorm:"column:price_at_payment;type:numeric(10,2);not null"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
}
