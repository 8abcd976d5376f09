package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/cinevault/cinevault-backend/internal/orders"
	"github.com/cinevault/cinevault-backend/pkg/config"
	"github.com/cinevault/cinevault-backend/pkg/db/models"
	"github.com/cinevault/cinevault-backend/pkg/enums"
	pkgerrors "github.com/cinevault/cinevault-backend/pkg/errors"
	"github.com/cinevault/cinevault-backend/pkg/logger"
	"github.com/cinevault/cinevault-backend/pkg/pagination"
	gw "github.com/cinevault/cinevault-backend/pkg/stripe"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
	WithSerializableTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// PaymentRepository is the persistence surface the service depends on.
type PaymentRepository interface {
	WithTx(tx *gorm.DB) PaymentRepository
	Create(ctx context.Context, payment *models.Payment) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	FindByExternalIDForUpdate(ctx context.Context, externalID string) (*models.Payment, error)
	FindByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error)
	UpdateFields(ctx context.Context, id uuid.UUID, updates map[string]any) error
	List(ctx context.Context, filter ListFilter) ([]models.Payment, error)
}

type orderStore interface {
	WithTx(tx *gorm.DB) orders.OrderRepository
}

type userReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type chargeGateway interface {
	Charge(ctx context.Context, req gw.ChargeRequest) (*gw.ChargeResult, error)
	Refund(ctx context.Context, externalPaymentID string) (string, error)
}

// ListParams carry listing inputs through the service.
type ListParams struct {
	UserID        *uuid.UUID
	UserIDs       []uuid.UUID
	Status        *enums.PaymentStatus
	CreatedAfter  *string
	CreatedBefore *string
	Pagination    pagination.Params
}

// ListResult is one page of payments.
type ListResult struct {
	Payments   []models.Payment
	NextCursor string
}

// Service exposes charge initiation and payment listings.
type Service interface {
	InitiateCharge(ctx context.Context, userID, orderID uuid.UUID, clientAmount *decimal.Decimal) (*models.Payment, error)
	Refund(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error)
	Get(ctx context.Context, userID, paymentID uuid.UUID, role enums.UserRole) (*models.Payment, error)
	ListMine(ctx context.Context, userID uuid.UUID, params ListParams) (*ListResult, error)
	ListAll(ctx context.Context, params ListParams) (*ListResult, error)
}

type service struct {
	repo    PaymentRepository
	orders  orderStore
	users   userReader
	gateway chargeGateway
	tx      txRunner
	cfg     config.PaymentsConfig
	logg    *logger.Logger
}

// NewService builds the payment service.
func NewService(repo PaymentRepository, orders orderStore, users userReader, gateway chargeGateway, tx txRunner, cfg config.PaymentsConfig, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("payment repository required")
	}
	if orders == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if users == nil {
		return nil, fmt.Errorf("user repository required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("charge gateway required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:    repo,
		orders:  orders,
		users:   users,
		gateway: gateway,
		tx:      tx,
		cfg:     cfg,
		logg:    logg,
	}, nil
}

// InitiateCharge creates a pending payment for the order and asks the gateway
// to charge it. The payment row is committed before the gateway is called: if
// the call times out the charge may still have gone through on the gateway
// side, so the row stays pending and webhooks or the reconcile job settle it.
// A non-nil clientAmount must match the item snapshot total; a stale client
// never charges a price it did not show.
func (s *service) InitiateCharge(ctx context.Context, userID, orderID uuid.UUID, clientAmount *decimal.Decimal) (*models.Payment, error) {
	if userID == uuid.Nil || orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id and order id are required")
	}

	var payment *models.Payment
	var userEmail string
	err := s.tx.WithSerializableTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		orderRepo := s.orders.WithTx(tx)

		order, err := orderRepo.FindByIDForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock order")
		}
		if order.UserID != userID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
		}
		if order.Status != enums.OrderStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order is %s, not pending", order.Status))
		}

		existing, err := repo.FindByOrder(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payments for order")
		}
		attempt := 1
		for _, p := range existing {
			switch p.Status {
			case enums.PaymentStatusSuccessful:
				return pkgerrors.New(pkgerrors.CodeStateConflict, "order is already paid")
			case enums.PaymentStatusPending:
				return pkgerrors.New(pkgerrors.CodeConflict, "a payment for this order is already in progress")
			}
			attempt++
		}
		if attempt > s.cfg.MaxAttempts {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment attempt limit reached for this order")
		}

		items, err := orderRepo.FindItems(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order items")
		}

		total := decimal.Zero
		for _, item := range items {
			total = total.Add(item.PriceAtOrder)
		}
		if clientAmount != nil && !clientAmount.Equal(total) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "amount mismatch")
		}

		user, err := s.users.FindByID(ctx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
		}
		userEmail = user.Email

		payment = &models.Payment{
			UserID:  userID,
			OrderID: order.ID,
			Status:  enums.PaymentStatusPending,
			Amount:  total,
			Attempt: attempt,
		}
		for _, item := range items {
			payment.Items = append(payment.Items, models.PaymentItem{
				OrderItemID:    item.ID,
				PriceAtPayment: item.PriceAtOrder,
			})
		}
		if err := repo.Create(ctx, payment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create payment")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result, chargeErr := s.chargeWithRetry(ctx, payment, userEmail)
	if chargeErr != nil {
		// The charge may have landed on the gateway despite the error, so the
		// payment stays pending until a webhook or the reconcile job settles it.
		pctx := s.logg.WithPaymentID(ctx, payment.ID.String())
		s.logg.Error(pctx, "gateway charge failed; payment left pending for reconciliation", chargeErr)
		return payment, pkgerrors.Wrap(pkgerrors.CodeDependency, chargeErr, "payment gateway unavailable")
	}

	updates := map[string]any{"external_payment_id": result.ExternalID}
	if err := s.repo.UpdateFields(ctx, payment.ID, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store gateway transaction id")
	}
	payment.ExternalPaymentID = &result.ExternalID
	return payment, nil
}

func (s *service) chargeWithRetry(ctx context.Context, payment *models.Payment, email string) (*gw.ChargeResult, error) {
	req := gw.ChargeRequest{
		PaymentID: payment.ID,
		OrderID:   payment.OrderID,
		UserEmail: email,
		Amount:    payment.Amount,
	}

	backoff := retry.WithMaxRetries(uint64(s.cfg.ChargeRetries), retry.NewExponential(s.cfg.ChargeBackoff))

	var result *gw.ChargeResult
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.ChargeTimeout)
		defer cancel()

		res, err := s.gateway.Charge(callCtx, req)
		if err != nil {
			return retry.RetryableError(err)
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Refund asks the gateway to return the funds for a successful payment. The
// local state does not flip here: the gateway's refund event flows through the
// reconciler, which also revokes ownership, so webhook and admin refunds take
// the same path.
func (s *service) Refund(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	if paymentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}
	payment, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment")
	}
	if payment.Status == enums.PaymentStatusRefunded {
		return payment, nil
	}
	if payment.Status != enums.PaymentStatusSuccessful {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only successful payments can be refunded")
	}
	if payment.ExternalPaymentID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment has no gateway reference")
	}

	refundID, err := s.gateway.Refund(ctx, *payment.ExternalPaymentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment gateway unavailable")
	}
	pctx := s.logg.WithPaymentID(ctx, payment.ID.String())
	s.logg.Info(s.logg.WithField(pctx, "refund_id", refundID), "gateway refund initiated")
	return payment, nil
}

// Get loads a single payment. Moderators can read any payment, users only
// their own.
func (s *service) Get(ctx context.Context, userID, paymentID uuid.UUID, role enums.UserRole) (*models.Payment, error) {
	if paymentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}
	payment, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment")
	}
	if payment.UserID != userID && !role.CanModerate() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "payment belongs to another user")
	}
	return payment, nil
}

// ListMine pages through the caller's own payments.
func (s *service) ListMine(ctx context.Context, userID uuid.UUID, params ListParams) (*ListResult, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	params.UserID = &userID
	params.UserIDs = nil
	return s.list(ctx, params)
}

// ListAll pages through every payment with moderator filters applied.
func (s *service) ListAll(ctx context.Context, params ListParams) (*ListResult, error) {
	return s.list(ctx, params)
}

func (s *service) list(ctx context.Context, params ListParams) (*ListResult, error) {
	filter := ListFilter{
		UserID:  params.UserID,
		UserIDs: params.UserIDs,
		Status:  params.Status,
		Limit:   params.Pagination.Limit,
	}

	var err error
	if filter.CreatedAfter, err = parseDateFilter(params.CreatedAfter); err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid created_after date")
	}
	if filter.CreatedBefore, err = parseDateFilter(params.CreatedBefore); err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid created_before date")
	}

	cursor, err := pagination.ParseCursor(params.Pagination.Cursor)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid cursor")
	}
	filter.Cursor = cursor

	rows, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list payments")
	}

	limit := pagination.NormalizeLimit(params.Pagination.Limit)
	result := &ListResult{Payments: rows}
	if len(rows) > limit {
		result.Payments = rows[:limit]
		last := result.Payments[len(result.Payments)-1]
		result.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return result, nil
}
