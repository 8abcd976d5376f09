package stripe

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"
)

// Metadata keys attached to every PaymentIntent so webhook events can be
// correlated back to local rows without a lookup table.
const (
	MetadataPaymentID = "cinevault_payment_id"
	MetadataOrderID   = "cinevault_order_id"
)

// ChargeRequest carries everything the gateway needs to create a charge.
type ChargeRequest struct {
	PaymentID uuid.UUID
	OrderID   uuid.UUID
	UserEmail string
	Amount    decimal.Decimal
	Currency  string
}

// ChargeResult is the gateway's view of a charge.
type ChargeResult struct {
	ExternalID string
	Status     string
	Amount     decimal.Decimal
}

// Charge creates a PaymentIntent for the given amount. The intent is created
// unconfirmed; confirmation and the resulting succeeded/failed signal arrive
// through webhooks, never through this return value.
func (c *Client) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	if c == nil || c.api == nil {
		return nil, fmt.Errorf("stripe client not initialized")
	}
	cents, err := AmountToCents(req.Amount)
	if err != nil {
		return nil, err
	}

	currency := req.Currency
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}

	params := &stripe.PaymentIntentCreateParams{
		Amount:       stripe.Int64(cents),
		Currency:     stripe.String(currency),
		ReceiptEmail: stripe.String(req.UserEmail),
		Metadata: map[string]string{
			MetadataPaymentID: req.PaymentID.String(),
			MetadataOrderID:   req.OrderID.String(),
		},
	}

	intent, err := c.api.V1PaymentIntents.Create(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	return &ChargeResult{
		ExternalID: intent.ID,
		Status:     string(intent.Status),
	}, nil
}

// LookupCharge fetches the current gateway state of a PaymentIntent, used by
// the reconcile job to settle payments whose webhooks never arrived.
func (c *Client) LookupCharge(ctx context.Context, externalPaymentID string) (*ChargeResult, error) {
	if c == nil || c.api == nil {
		return nil, fmt.Errorf("stripe client not initialized")
	}
	if externalPaymentID == "" {
		return nil, fmt.Errorf("external payment id is required")
	}

	intent, err := c.api.V1PaymentIntents.Retrieve(ctx, externalPaymentID, nil)
	if err != nil {
		return nil, fmt.Errorf("retrieve payment intent: %w", err)
	}
	return &ChargeResult{
		ExternalID: intent.ID,
		Status:     string(intent.Status),
		Amount:     CentsToAmount(intent.AmountReceived),
	}, nil
}

// Refund issues a full refund against a previously captured PaymentIntent.
func (c *Client) Refund(ctx context.Context, externalPaymentID string) (string, error) {
	if c == nil || c.api == nil {
		return "", fmt.Errorf("stripe client not initialized")
	}
	if externalPaymentID == "" {
		return "", fmt.Errorf("external payment id is required")
	}

	refund, err := c.api.V1Refunds.Create(ctx, &stripe.RefundCreateParams{
		PaymentIntent: stripe.String(externalPaymentID),
	})
	if err != nil {
		return "", fmt.Errorf("create refund: %w", err)
	}
	return refund.ID, nil
}

// AmountToCents converts a decimal money amount to Stripe's integer cents.
// Amounts with sub-cent precision are rejected rather than rounded.
func AmountToCents(amount decimal.Decimal) (int64, error) {
	if amount.Sign() <= 0 {
		return 0, fmt.Errorf("amount must be positive, got %s", amount)
	}
	cents := amount.Shift(2)
	if !cents.Equal(cents.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has sub-cent precision", amount)
	}
	return cents.IntPart(), nil
}

// CentsToAmount converts Stripe's integer cents back to a decimal amount.
func CentsToAmount(cents int64) decimal.Decimal {
	return decimal.NewFromInt(cents).Shift(-2)
}
