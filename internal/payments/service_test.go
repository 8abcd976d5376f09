package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/cinevault/cinevault-backend/internal/orders"
	"github.com/cinevault/cinevault-backend/pkg/config"
	"github.com/cinevault/cinevault-backend/pkg/db/models"
	"github.com/cinevault/cinevault-backend/pkg/enums"
	pkgerrors "github.com/cinevault/cinevault-backend/pkg/errors"
	"github.com/cinevault/cinevault-backend/pkg/logger"
	gw "github.com/cinevault/cinevault-backend/pkg/stripe"
)

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func (stubTxRunner) WithSerializableTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubPaymentRepo struct {
	created  *models.Payment
	existing []models.Payment
	payment  *models.Payment
	updates  map[string]any
	listed   []models.Payment
}

func (s *stubPaymentRepo) WithTx(tx *gorm.DB) PaymentRepository { return s }

func (s *stubPaymentRepo) Create(ctx context.Context, payment *models.Payment) error {
	payment.ID = uuid.New()
	s.created = payment
	return nil
}

func (s *stubPaymentRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	if s.payment == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return s.payment, nil
}

func (s *stubPaymentRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return s.FindByID(ctx, id)
}

func (s *stubPaymentRepo) FindByExternalIDForUpdate(ctx context.Context, externalID string) (*models.Payment, error) {
	return s.FindByID(ctx, uuid.Nil)
}

func (s *stubPaymentRepo) FindByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error) {
	return s.existing, nil
}

func (s *stubPaymentRepo) UpdateFields(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	s.updates = updates
	return nil
}

func (s *stubPaymentRepo) List(ctx context.Context, filter ListFilter) ([]models.Payment, error) {
	return s.listed, nil
}

type stubOrderStore struct {
	order *models.Order
	items []models.OrderItem
}

func (s *stubOrderStore) WithTx(tx *gorm.DB) orders.OrderRepository { return s }

func (s *stubOrderStore) Create(ctx context.Context, order *models.Order) error { return nil }

func (s *stubOrderStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return s.FindByIDForUpdate(ctx, id)
}

func (s *stubOrderStore) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if s.order == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return s.order, nil
}

func (s *stubOrderStore) FindItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	return s.items, nil
}

func (s *stubOrderStore) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.OrderStatus) error {
	return nil
}

func (s *stubOrderStore) CancelPendingPayments(ctx context.Context, orderID uuid.UUID) error {
	return nil
}

func (s *stubOrderStore) List(ctx context.Context, filter orders.ListFilter) ([]models.Order, error) {
	return nil, nil
}

func (s *stubOrderStore) HasPurchased(ctx context.Context, userID, movieID uuid.UUID) (bool, error) {
	return false, nil
}

func (s *stubOrderStore) PurchasedMovieIDs(ctx context.Context, userID uuid.UUID, movieIDs []uuid.UUID) ([]uuid.UUID, error) {
	return nil, nil
}

func (s *stubOrderStore) MovieIDsInOpenOrders(ctx context.Context, userID uuid.UUID, movieIDs []uuid.UUID) ([]uuid.UUID, error) {
	return nil, nil
}

func (s *stubOrderStore) InsertPurchasedMovies(ctx context.Context, rows []models.PurchasedMovie) error {
	return nil
}

func (s *stubOrderStore) DeletePurchasedMovies(ctx context.Context, userID uuid.UUID, movieIDs []uuid.UUID) error {
	return nil
}

type stubUserReader struct {
	user *models.User
}

func (s *stubUserReader) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if s.user == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return s.user, nil
}

type stubGateway struct {
	result      *gw.ChargeResult
	err         error
	calls       int
	refundErr   error
	refundCalls int
	refundedID  string
}

func (s *stubGateway) Charge(ctx context.Context, req gw.ChargeRequest) (*gw.ChargeResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func (s *stubGateway) Refund(ctx context.Context, externalPaymentID string) (string, error) {
	s.refundCalls++
	s.refundedID = externalPaymentID
	if s.refundErr != nil {
		return "", s.refundErr
	}
	return "re_123", nil
}

func testPaymentsConfig() config.PaymentsConfig {
	return config.PaymentsConfig{
		ChargeTimeout: time.Second,
		ChargeRetries: 2,
		ChargeBackoff: time.Millisecond,
		MaxAttempts:   3,
	}
}

func newTestService(t *testing.T, repo PaymentRepository, store orderStore, users userReader, gateway chargeGateway) Service {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "payments-test"})
	svc, err := NewService(repo, store, users, gateway, stubTxRunner{}, testPaymentsConfig(), logg)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestInitiateChargeHappyPath(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	order := &models.Order{
		ID:          uuid.New(),
		UserID:      userID,
		Status:      enums.OrderStatusPending,
		TotalAmount: decimal.RequireFromString("12.50"),
	}
	items := []models.OrderItem{{ID: uuid.New(), PriceAtOrder: decimal.RequireFromString("12.50")}}

	repo := &stubPaymentRepo{}
	gateway := &stubGateway{result: &gw.ChargeResult{ExternalID: "pi_123", Status: "requires_confirmation"}}
	svc := newTestService(t, repo, &stubOrderStore{order: order, items: items},
		&stubUserReader{user: &models.User{ID: userID, Email: "a@b.c"}}, gateway)

	payment, err := svc.InitiateCharge(context.Background(), userID, order.ID, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payment.Status != enums.PaymentStatusPending {
		t.Fatalf("status %s, want pending", payment.Status)
	}
	if !payment.Amount.Equal(order.TotalAmount) {
		t.Fatalf("amount %s, want %s", payment.Amount, order.TotalAmount)
	}
	if payment.ExternalPaymentID == nil || *payment.ExternalPaymentID != "pi_123" {
		t.Fatalf("external id not stored: %+v", payment.ExternalPaymentID)
	}
	if len(repo.created.Items) != 1 {
		t.Fatalf("expected payment items snapshot, got %+v", repo.created.Items)
	}
}

func TestInitiateChargeBlocksDoubleCharge(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	order := &models.Order{ID: uuid.New(), UserID: userID, Status: enums.OrderStatusPending}

	cases := []struct {
		name     string
		existing []models.Payment
		wantCode pkgerrors.Code
	}{
		{
			name:     "pending payment in flight",
			existing: []models.Payment{{Status: enums.PaymentStatusPending}},
			wantCode: pkgerrors.CodeConflict,
		},
		{
			name:     "order already paid",
			existing: []models.Payment{{Status: enums.PaymentStatusSuccessful}},
			wantCode: pkgerrors.CodeStateConflict,
		},
		{
			name: "attempt budget exhausted",
			existing: []models.Payment{
				{Status: enums.PaymentStatusCanceled},
				{Status: enums.PaymentStatusCanceled},
				{Status: enums.PaymentStatusCanceled},
			},
			wantCode: pkgerrors.CodeStateConflict,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			repo := &stubPaymentRepo{existing: tc.existing}
			gateway := &stubGateway{result: &gw.ChargeResult{ExternalID: "pi_x"}}
			svc := newTestService(t, repo, &stubOrderStore{order: order},
				&stubUserReader{user: &models.User{ID: userID}}, gateway)

			_, err := svc.InitiateCharge(context.Background(), userID, order.ID, nil)
			if typed := pkgerrors.As(err); typed == nil || typed.Code() != tc.wantCode {
				t.Fatalf("unexpected error: %v", err)
			}
			if gateway.calls != 0 {
				t.Fatal("gateway must not be called when the charge is blocked")
			}
		})
	}
}

func TestInitiateChargeGatewayFailureLeavesPaymentPending(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	order := &models.Order{
		ID:          uuid.New(),
		UserID:      userID,
		Status:      enums.OrderStatusPending,
		TotalAmount: decimal.RequireFromString("3.00"),
	}
	repo := &stubPaymentRepo{}
	gateway := &stubGateway{err: errors.New("gateway timeout")}
	svc := newTestService(t, repo, &stubOrderStore{order: order},
		&stubUserReader{user: &models.User{ID: userID, Email: "a@b.c"}}, gateway)

	payment, err := svc.InitiateCharge(context.Background(), userID, order.ID, nil)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("unexpected error: %v", err)
	}
	if payment == nil || payment.Status != enums.PaymentStatusPending {
		t.Fatalf("payment should stay pending, got %+v", payment)
	}
	if gateway.calls != 3 {
		t.Fatalf("expected initial call plus 2 retries, got %d", gateway.calls)
	}
	if repo.updates != nil {
		t.Fatal("no external id should be stored when the gateway fails")
	}
}

func TestInitiateChargeRejectsClientAmountMismatch(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	order := &models.Order{
		ID:          uuid.New(),
		UserID:      userID,
		Status:      enums.OrderStatusPending,
		TotalAmount: decimal.RequireFromString("12.50"),
	}
	items := []models.OrderItem{{ID: uuid.New(), PriceAtOrder: decimal.RequireFromString("12.50")}}

	gateway := &stubGateway{result: &gw.ChargeResult{ExternalID: "pi_x"}}
	svc := newTestService(t, &stubPaymentRepo{}, &stubOrderStore{order: order, items: items},
		&stubUserReader{user: &models.User{ID: userID}}, gateway)

	stale := decimal.RequireFromString("9.99")
	_, err := svc.InitiateCharge(context.Background(), userID, order.ID, &stale)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("unexpected error: %v", err)
	}
	if gateway.calls != 0 {
		t.Fatal("gateway must not be called on an amount mismatch")
	}

	match := decimal.RequireFromString("12.50")
	if _, err := svc.InitiateCharge(context.Background(), userID, order.ID, &match); err != nil {
		t.Fatalf("matching amount should charge: %v", err)
	}
}

func TestInitiateChargeWrongOwner(t *testing.T) {
	t.Parallel()

	order := &models.Order{ID: uuid.New(), UserID: uuid.New(), Status: enums.OrderStatusPending}
	svc := newTestService(t, &stubPaymentRepo{}, &stubOrderStore{order: order},
		&stubUserReader{user: &models.User{}}, &stubGateway{})

	_, err := svc.InitiateCharge(context.Background(), uuid.New(), order.ID, nil)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRefundCallsGatewayAndLeavesStatePending(t *testing.T) {
	t.Parallel()

	externalID := "pi_refund_me"
	repo := &stubPaymentRepo{payment: &models.Payment{
		ID:                uuid.New(),
		UserID:            uuid.New(),
		Status:            enums.PaymentStatusSuccessful,
		ExternalPaymentID: &externalID,
	}}
	gateway := &stubGateway{}
	svc := newTestService(t, repo, &stubOrderStore{}, &stubUserReader{user: &models.User{}}, gateway)

	payment, err := svc.Refund(context.Background(), repo.payment.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gateway.refundCalls != 1 || gateway.refundedID != externalID {
		t.Fatalf("gateway refund not called with %s: %+v", externalID, gateway)
	}
	// the refund event settles the payment, never this call
	if payment.Status != enums.PaymentStatusSuccessful {
		t.Fatalf("status %s, want successful until the gateway confirms", payment.Status)
	}
	if repo.updates != nil {
		t.Fatalf("no local writes expected, got %+v", repo.updates)
	}
}

func TestRefundAlreadyRefundedIsIdempotent(t *testing.T) {
	t.Parallel()

	repo := &stubPaymentRepo{payment: &models.Payment{
		ID:     uuid.New(),
		Status: enums.PaymentStatusRefunded,
	}}
	gateway := &stubGateway{}
	svc := newTestService(t, repo, &stubOrderStore{}, &stubUserReader{user: &models.User{}}, gateway)

	payment, err := svc.Refund(context.Background(), repo.payment.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payment.Status != enums.PaymentStatusRefunded {
		t.Fatalf("status %s, want refunded", payment.Status)
	}
	if gateway.refundCalls != 0 {
		t.Fatal("gateway must not be called for an already refunded payment")
	}
}

func TestRefundRejections(t *testing.T) {
	t.Parallel()

	externalID := "pi_x"
	cases := []struct {
		name     string
		payment  *models.Payment
		gwErr    error
		wantCode pkgerrors.Code
	}{
		{
			name:     "payment not found",
			payment:  nil,
			wantCode: pkgerrors.CodeNotFound,
		},
		{
			name:     "pending payment",
			payment:  &models.Payment{ID: uuid.New(), Status: enums.PaymentStatusPending, ExternalPaymentID: &externalID},
			wantCode: pkgerrors.CodeStateConflict,
		},
		{
			name:     "no gateway reference",
			payment:  &models.Payment{ID: uuid.New(), Status: enums.PaymentStatusSuccessful},
			wantCode: pkgerrors.CodeStateConflict,
		},
		{
			name:     "gateway down",
			payment:  &models.Payment{ID: uuid.New(), Status: enums.PaymentStatusSuccessful, ExternalPaymentID: &externalID},
			gwErr:    errors.New("gateway timeout"),
			wantCode: pkgerrors.CodeDependency,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			repo := &stubPaymentRepo{payment: tc.payment}
			gateway := &stubGateway{refundErr: tc.gwErr}
			svc := newTestService(t, repo, &stubOrderStore{}, &stubUserReader{user: &models.User{}}, gateway)

			_, err := svc.Refund(context.Background(), uuid.New())
			if typed := pkgerrors.As(err); typed == nil || typed.Code() != tc.wantCode {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestGetEnforcesOwnership(t *testing.T) {
	t.Parallel()

	owner := uuid.New()
	repo := &stubPaymentRepo{payment: &models.Payment{ID: uuid.New(), UserID: owner}}
	svc := newTestService(t, repo, &stubOrderStore{}, &stubUserReader{user: &models.User{}}, &stubGateway{})

	if _, err := svc.Get(context.Background(), owner, repo.payment.ID, enums.UserRoleUser); err != nil {
		t.Fatalf("owner read failed: %v", err)
	}
	if _, err := svc.Get(context.Background(), uuid.New(), repo.payment.ID, enums.UserRoleModerator); err != nil {
		t.Fatalf("moderator read failed: %v", err)
	}
	_, err := svc.Get(context.Background(), uuid.New(), repo.payment.ID, enums.UserRoleUser)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("unexpected error: %v", err)
	}
}
