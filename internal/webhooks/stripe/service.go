package stripewebhook

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/cinevault/cinevault-backend/internal/reconciler"
	pkgerrors "github.com/cinevault/cinevault-backend/pkg/errors"
	gw "github.com/cinevault/cinevault-backend/pkg/stripe"
)

// Reconciler applies normalized gateway signals.
type Reconciler interface {
	Apply(ctx context.Context, ev reconciler.Event) error
}

// Service translates Stripe webhook events into reconciler events.
type Service struct {
	rec Reconciler
}

// NewService builds the webhook service.
func NewService(rec Reconciler) (*Service, error) {
	if rec == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reconciler required")
	}
	return &Service{rec: rec}, nil
}

// HandleEvent maps the Stripe event onto a reconciler event and applies it.
// Event types outside the payment lifecycle are acknowledged untouched.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded,
		stripe.EventTypePaymentIntentPaymentFailed,
		stripe.EventTypePaymentIntentCanceled:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode payment intent event")
		}
		ev := reconciler.Event{
			Kind:       kindForIntentEvent(event.Type),
			EventID:    event.ID,
			ExternalID: intent.ID,
			PaymentID:  paymentIDFromMetadata(intent.Metadata),
		}
		if event.Type == stripe.EventTypePaymentIntentSucceeded {
			amount := gw.CentsToAmount(intent.AmountReceived)
			ev.Amount = &amount
		}
		return s.rec.Apply(ctx, ev)

	case stripe.EventTypeChargeRefunded:
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode charge event")
		}
		ev := reconciler.Event{
			Kind:      reconciler.KindRefunded,
			EventID:   event.ID,
			PaymentID: paymentIDFromMetadata(charge.Metadata),
		}
		if charge.PaymentIntent != nil {
			ev.ExternalID = charge.PaymentIntent.ID
		}
		return s.rec.Apply(ctx, ev)

	default:
		return nil
	}
}

func kindForIntentEvent(eventType stripe.EventType) reconciler.Kind {
	switch eventType {
	case stripe.EventTypePaymentIntentSucceeded:
		return reconciler.KindSucceeded
	case stripe.EventTypePaymentIntentCanceled:
		return reconciler.KindCanceled
	default:
		return reconciler.KindFailed
	}
}

func paymentIDFromMetadata(metadata map[string]string) uuid.UUID {
	raw, ok := metadata[gw.MetadataPaymentID]
	if !ok {
		return uuid.Nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil
	}
	return id
}
