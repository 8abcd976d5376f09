package reconciler

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cinevault/cinevault-backend/internal/notifications"
	"github.com/cinevault/cinevault-backend/internal/orders"
	"github.com/cinevault/cinevault-backend/internal/payments"
	"github.com/cinevault/cinevault-backend/pkg/db/models"
	"github.com/cinevault/cinevault-backend/pkg/enums"
	pkgerrors "github.com/cinevault/cinevault-backend/pkg/errors"
	"github.com/cinevault/cinevault-backend/pkg/logger"
)

// Review reasons attached to payments that need a human look.
const (
	ReviewAmountMismatch   = "amount_mismatch"
	ReviewLateSuccess      = "success_after_terminal_state"
	ReviewFailureAfterPaid = "failure_after_success"
	ReviewStrayRefund      = "refund_without_success"
	ReviewOrderClosed      = "success_for_closed_order"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type paymentStore interface {
	WithTx(tx *gorm.DB) payments.PaymentRepository
}

type orderStore interface {
	WithTx(tx *gorm.DB) orders.OrderRepository
}

type userReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Service applies gateway signals to local payment and order state. All
// transitions run under the payment row lock, so concurrent deliveries for
// the same payment serialize and replays become no-ops.
type Service struct {
	payments    paymentStore
	orders      orderStore
	users       userReader
	mailer      notifications.Sender
	tx          txRunner
	logg        *logger.Logger
	maxAttempts int
}

// ServiceParams configure the reconciler.
type ServiceParams struct {
	Payments    paymentStore
	Orders      orderStore
	Users       userReader
	Mailer      notifications.Sender
	Tx          txRunner
	Logger      *logger.Logger
	MaxAttempts int
}

// NewService builds the reconciler.
func NewService(params ServiceParams) (*Service, error) {
	if params.Payments == nil {
		return nil, fmt.Errorf("payment repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("user repository required")
	}
	if params.Mailer == nil {
		return nil, fmt.Errorf("mail sender required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Service{
		payments:    params.Payments,
		orders:      params.Orders,
		users:       params.Users,
		mailer:      params.Mailer,
		tx:          params.Tx,
		logg:        params.Logger,
		maxAttempts: maxAttempts,
	}, nil
}

type confirmation struct {
	email string
	data  notifications.OrderConfirmation
}

// Apply reconciles one gateway signal. The state transition commits before
// the confirmation email goes out, so a mail failure never rolls back a paid
// order; the send happens only on the first pending-to-successful transition.
func (s *Service) Apply(ctx context.Context, ev Event) error {
	if !ev.Kind.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown event kind %q", ev.Kind))
	}
	if ev.PaymentID == uuid.Nil && ev.ExternalID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "event carries no payment reference")
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"event_id":   ev.EventID,
		"event_kind": string(ev.Kind),
	})

	var pending *confirmation
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.payments.WithTx(tx)
		orderRepo := s.orders.WithTx(tx)

		payment, err := s.lockPayment(ctx, repo, ev)
		if err != nil {
			return err
		}
		pctx := s.logg.WithPaymentID(ctx, payment.ID.String())

		switch ev.Kind {
		case KindSucceeded:
			pending, err = s.applySuccess(pctx, repo, orderRepo, payment, ev)
			return err
		case KindFailed, KindCanceled:
			return s.applyFailure(pctx, repo, orderRepo, payment)
		case KindRefunded:
			return s.applyRefund(pctx, repo, orderRepo, payment)
		default:
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown event kind %q", ev.Kind))
		}
	})
	if err != nil {
		return err
	}

	if pending != nil {
		if mailErr := s.mailer.SendOrderConfirmation(ctx, pending.email, pending.data); mailErr != nil {
			s.logg.Error(ctx, "confirmation email failed", mailErr)
		}
	}
	return nil
}

func (s *Service) lockPayment(ctx context.Context, repo payments.PaymentRepository, ev Event) (*models.Payment, error) {
	var payment *models.Payment
	var err error
	if ev.PaymentID != uuid.Nil {
		payment, err = repo.FindByIDForUpdate(ctx, ev.PaymentID)
	} else {
		payment, err = repo.FindByExternalIDForUpdate(ctx, ev.ExternalID)
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no payment matches this transaction")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock payment")
	}
	return payment, nil
}

func (s *Service) applySuccess(ctx context.Context, repo payments.PaymentRepository, orderRepo orders.OrderRepository, payment *models.Payment, ev Event) (*confirmation, error) {
	switch payment.Status {
	case enums.PaymentStatusSuccessful:
		s.logg.Info(ctx, "duplicate success signal ignored")
		return nil, nil
	case enums.PaymentStatusCanceled, enums.PaymentStatusRefunded:
		return nil, s.flagForReview(ctx, repo, payment, ReviewLateSuccess)
	}

	if ev.Amount != nil && !ev.Amount.Equal(payment.Amount) {
		s.logg.Warn(ctx, fmt.Sprintf("settled amount %s does not match recorded %s", ev.Amount, payment.Amount))
		return nil, s.flagForReview(ctx, repo, payment, ReviewAmountMismatch)
	}

	updates := map[string]any{
		"status":        enums.PaymentStatusSuccessful,
		"review_reason": nil,
	}
	if payment.ExternalPaymentID == nil && ev.ExternalID != "" {
		updates["external_payment_id"] = ev.ExternalID
	}
	if err := repo.UpdateFields(ctx, payment.ID, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark payment successful")
	}

	order, err := orderRepo.FindByIDForUpdate(ctx, payment.OrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock order")
	}
	switch order.Status {
	case enums.OrderStatusPending:
	case enums.OrderStatusPaid:
		s.logg.Info(ctx, "order already paid; settle skipped")
		return nil, nil
	default:
		// canceled is terminal; the captured charge needs a human, not a
		// silent reopen of the order
		s.logg.Warn(ctx, fmt.Sprintf("success signal for order in state %s", order.Status))
		return nil, s.flagForReview(ctx, repo, payment, ReviewOrderClosed)
	}
	if err := orderRepo.UpdateStatus(ctx, order.ID, enums.OrderStatusPaid); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark order paid")
	}

	items, err := orderRepo.FindItems(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order items")
	}
	owned := make([]models.PurchasedMovie, 0, len(items))
	movieNames := make([]string, 0, len(items))
	for _, item := range items {
		owned = append(owned, models.PurchasedMovie{UserID: order.UserID, MovieID: item.MovieID})
		if item.Movie != nil {
			movieNames = append(movieNames, item.Movie.Name)
		}
	}
	if err := orderRepo.InsertPurchasedMovies(ctx, owned); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record purchased movies")
	}

	user, err := s.users.FindByID(ctx, order.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}

	s.logg.Info(ctx, "payment settled; order paid")
	return &confirmation{
		email: user.Email,
		data: notifications.OrderConfirmation{
			OrderID: order.ID.String(),
			Amount:  payment.Amount,
			Movies:  movieNames,
			PaidAt:  payment.UpdatedAt,
		},
	}, nil
}

func (s *Service) applyFailure(ctx context.Context, repo payments.PaymentRepository, orderRepo orders.OrderRepository, payment *models.Payment) error {
	switch payment.Status {
	case enums.PaymentStatusCanceled:
		s.logg.Info(ctx, "duplicate failure signal ignored")
		return nil
	case enums.PaymentStatusSuccessful, enums.PaymentStatusRefunded:
		return s.flagForReview(ctx, repo, payment, ReviewFailureAfterPaid)
	}

	if err := repo.UpdateFields(ctx, payment.ID, map[string]any{
		"status": enums.PaymentStatusCanceled,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark payment canceled")
	}

	if payment.Attempt < s.maxAttempts {
		s.logg.Info(ctx, fmt.Sprintf("payment attempt %d failed; order stays open for retry", payment.Attempt))
		return nil
	}

	order, err := orderRepo.FindByIDForUpdate(ctx, payment.OrderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock order")
	}
	if order.Status == enums.OrderStatusPending {
		if err := orderRepo.UpdateStatus(ctx, order.ID, enums.OrderStatusCanceled); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel order")
		}
		s.logg.Info(ctx, "attempt budget exhausted; order canceled")
	}
	return nil
}

func (s *Service) applyRefund(ctx context.Context, repo payments.PaymentRepository, orderRepo orders.OrderRepository, payment *models.Payment) error {
	switch payment.Status {
	case enums.PaymentStatusRefunded:
		s.logg.Info(ctx, "duplicate refund signal ignored")
		return nil
	case enums.PaymentStatusPending, enums.PaymentStatusCanceled:
		return s.flagForReview(ctx, repo, payment, ReviewStrayRefund)
	}

	if err := repo.UpdateFields(ctx, payment.ID, map[string]any{
		"status": enums.PaymentStatusRefunded,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark payment refunded")
	}

	// the order keeps its paid status; the refunded payment row is the audit
	// trail, only the ownership grant is taken back
	order, err := orderRepo.FindByID(ctx, payment.OrderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}

	items, err := orderRepo.FindItems(ctx, order.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order items")
	}
	movieIDs := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		movieIDs = append(movieIDs, item.MovieID)
	}
	if err := orderRepo.DeletePurchasedMovies(ctx, order.UserID, movieIDs); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "revoke purchased movies")
	}

	s.logg.Info(ctx, "refund applied; ownership revoked")
	return nil
}

// flagForReview stores the reason on the payment and acknowledges the event.
// The conflicting signal is not retryable, so bouncing it back to the gateway
// would only produce redelivery storms.
func (s *Service) flagForReview(ctx context.Context, repo payments.PaymentRepository, payment *models.Payment, reason string) error {
	if payment.ReviewReason != nil && *payment.ReviewReason == reason {
		return nil
	}
	if err := repo.UpdateFields(ctx, payment.ID, map[string]any{
		"review_reason": reason,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "flag payment for review")
	}
	s.logg.Warn(ctx, fmt.Sprintf("payment flagged for review: %s", reason))
	return nil
}
