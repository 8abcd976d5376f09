package reconciler

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind classifies the gateway signal being applied.
type Kind string

const (
	KindSucceeded Kind = "succeeded"
	KindFailed    Kind = "failed"
	KindCanceled  Kind = "canceled"
	KindRefunded  Kind = "refunded"
)

// IsValid reports whether the value is a known Kind.
func (k Kind) IsValid() bool {
	switch k {
	case KindSucceeded, KindFailed, KindCanceled, KindRefunded:
		return true
	}
	return false
}

// Event is a normalized gateway signal. Webhook handlers and the poll job
// both produce these; the reconciler does not care which path delivered it.
type Event struct {
	Kind Kind

	// EventID is the gateway's delivery id, carried for logging.
	EventID string

	// ExternalID is the gateway transaction id (PaymentIntent id).
	ExternalID string

	// PaymentID is the local payment id recovered from gateway metadata.
	// May be Nil when the event predates metadata or came from a poll.
	PaymentID uuid.UUID

	// Amount is the settled amount, when the event carries one.
	Amount *decimal.Decimal
}
