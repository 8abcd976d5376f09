package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/cinevault/cinevault-backend/internal/reconciler"
	"github.com/cinevault/cinevault-backend/pkg/db/models"
	"github.com/cinevault/cinevault-backend/pkg/logger"
	gw "github.com/cinevault/cinevault-backend/pkg/stripe"
)

const reconcileBatchSize = 100

type pendingPaymentReader interface {
	FindPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]models.Payment, error)
	UpdateFields(ctx context.Context, id uuid.UUID, updates map[string]any) error
}

type chargeLookup interface {
	LookupCharge(ctx context.Context, externalPaymentID string) (*gw.ChargeResult, error)
}

type eventApplier interface {
	Apply(ctx context.Context, ev reconciler.Event) error
}

// PaymentReconcileJobParams configure the pending payment poller.
type PaymentReconcileJobParams struct {
	Logger         *logger.Logger
	Payments       pendingPaymentReader
	Gateway        chargeLookup
	Reconciler     eventApplier
	ReconcileAfter time.Duration
}

// NewPaymentReconcileJob builds the job that settles pending payments whose
// webhooks never arrived, by asking the gateway directly.
func NewPaymentReconcileJob(params PaymentReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payment repository required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("gateway required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	after := params.ReconcileAfter
	if after <= 0 {
		after = 30 * time.Minute
	}
	return &paymentReconcileJob{
		logg:       params.Logger,
		payments:   params.Payments,
		gateway:    params.Gateway,
		reconciler: params.Reconciler,
		after:      after,
		now:        time.Now,
	}, nil
}

type paymentReconcileJob struct {
	logg       *logger.Logger
	payments   pendingPaymentReader
	gateway    chargeLookup
	reconciler eventApplier
	after      time.Duration
	now        func() time.Time
}

func (j *paymentReconcileJob) Name() string { return "payment-reconcile" }

func (j *paymentReconcileJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.after)
	pending, err := j.payments.FindPendingOlderThan(ctx, cutoff, reconcileBatchSize)
	if err != nil {
		return fmt.Errorf("load stale pending payments: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	var errs error
	for _, payment := range pending {
		if err := j.reconcileOne(ctx, payment); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("payment %s: %w", payment.ID, err))
		}
	}
	return errs
}

func (j *paymentReconcileJob) reconcileOne(ctx context.Context, payment models.Payment) error {
	pctx := j.logg.WithPaymentID(ctx, payment.ID.String())

	// Without a gateway reference there is nothing to poll; the charge call
	// never returned an id, so a human has to decide.
	if payment.ExternalPaymentID == nil {
		if payment.ReviewReason != nil {
			return nil
		}
		j.logg.Warn(pctx, "stale pending payment has no gateway reference")
		return j.payments.UpdateFields(ctx, payment.ID, map[string]any{
			"review_reason": "no_gateway_reference",
		})
	}

	state, err := j.gateway.LookupCharge(ctx, *payment.ExternalPaymentID)
	if err != nil {
		return fmt.Errorf("lookup charge: %w", err)
	}

	var kind reconciler.Kind
	switch state.Status {
	case "succeeded":
		kind = reconciler.KindSucceeded
	case "canceled":
		kind = reconciler.KindCanceled
	default:
		// still in flight on the gateway side; leave it for the next cycle
		j.logg.Info(pctx, fmt.Sprintf("payment still %s at gateway", state.Status))
		return nil
	}

	ev := reconciler.Event{
		Kind:       kind,
		EventID:    fmt.Sprintf("poll-%s", payment.ID),
		ExternalID: state.ExternalID,
		PaymentID:  payment.ID,
	}
	if kind == reconciler.KindSucceeded {
		amount := state.Amount
		ev.Amount = &amount
	}
	return j.reconciler.Apply(pctx, ev)
}
