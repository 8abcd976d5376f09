package cart

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cinevault/cinevault-backend/pkg/db/models"
	pkgerrors "github.com/cinevault/cinevault-backend/pkg/errors"
)

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubCatalog struct {
	movie *models.Movie
	err   error
}

func (s *stubCatalog) GetAvailable(ctx context.Context, id uuid.UUID) (*models.Movie, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.movie, nil
}

type stubPurchases struct {
	owned bool
	err   error
}

func (s *stubPurchases) HasPurchased(ctx context.Context, userID, movieID uuid.UUID) (bool, error) {
	return s.owned, s.err
}

type stubCartRepo struct {
	cart       *models.Cart
	findErr    error
	addItemErr error
	added      []models.CartItem
	removed    int
	cleared    int
}

func (s *stubCartRepo) WithTx(tx *gorm.DB) CartRepository { return s }

func (s *stubCartRepo) FindByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	if s.cart == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return s.cart, nil
}

func (s *stubCartRepo) FindByUserForUpdate(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	return s.FindByUser(ctx, userID)
}

func (s *stubCartRepo) Create(ctx context.Context, cart *models.Cart) error {
	cart.ID = uuid.New()
	s.cart = cart
	return nil
}

func (s *stubCartRepo) AddItem(ctx context.Context, item *models.CartItem) error {
	if s.addItemErr != nil {
		return s.addItemErr
	}
	s.added = append(s.added, *item)
	return nil
}

func (s *stubCartRepo) RemoveItem(ctx context.Context, cartID, movieID uuid.UUID) (bool, error) {
	s.removed++
	return true, nil
}

func (s *stubCartRepo) ClearItems(ctx context.Context, cartID uuid.UUID) error {
	s.cleared++
	return nil
}

func (s *stubCartRepo) ListItems(ctx context.Context, cartID uuid.UUID) ([]models.CartItem, error) {
	return nil, nil
}

func newTestService(t *testing.T, repo CartRepository, catalog *stubCatalog, purchases *stubPurchases) Service {
	t.Helper()
	svc, err := NewService(repo, stubTxRunner{}, catalog, purchases)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestAddItemRejectsPurchasedMovie(t *testing.T) {
	t.Parallel()

	movie := &models.Movie{ID: uuid.New(), Name: "Solaris", IsAvailable: true}
	repo := &stubCartRepo{}
	svc := newTestService(t, repo, &stubCatalog{movie: movie}, &stubPurchases{owned: true})

	_, err := svc.AddItem(context.Background(), uuid.New(), movie.ID)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.added) != 0 {
		t.Fatal("no item should be written for an owned movie")
	}
}

func TestAddItemDuplicateMapsToConflict(t *testing.T) {
	t.Parallel()

	movie := &models.Movie{ID: uuid.New(), Name: "Solaris", IsAvailable: true}
	userID := uuid.New()
	repo := &stubCartRepo{
		cart:       &models.Cart{ID: uuid.New(), UserID: userID},
		addItemErr: errUniqueViolation(),
	}
	svc := newTestService(t, repo, &stubCatalog{movie: movie}, &stubPurchases{})

	_, err := svc.AddItem(context.Background(), userID, movie.ID)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("unexpected error: %v", err)
	}
	if typed.Error() != "movie already in cart" {
		t.Fatalf("unexpected message: %q", typed.Error())
	}
}

func TestAddItemCreatesCartOnFirstAdd(t *testing.T) {
	t.Parallel()

	movie := &models.Movie{ID: uuid.New(), Name: "Solaris", IsAvailable: true}
	repo := &stubCartRepo{}
	svc := newTestService(t, repo, &stubCatalog{movie: movie}, &stubPurchases{})

	cart, err := svc.AddItem(context.Background(), uuid.New(), movie.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cart == nil {
		t.Fatal("expected cart")
	}
	if len(repo.added) != 1 || repo.added[0].MovieID != movie.ID {
		t.Fatalf("unexpected items written: %+v", repo.added)
	}
}

type sequencedCartRepo struct {
	stubCartRepo
	calls *[]string
}

func (s *sequencedCartRepo) WithTx(tx *gorm.DB) CartRepository { return s }

func (s *sequencedCartRepo) FindByUserForUpdate(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	*s.calls = append(*s.calls, "lock cart")
	return s.stubCartRepo.FindByUserForUpdate(ctx, userID)
}

type sequencedCatalog struct {
	movie *models.Movie
	calls *[]string
}

func (s *sequencedCatalog) GetAvailable(ctx context.Context, id uuid.UUID) (*models.Movie, error) {
	*s.calls = append(*s.calls, "availability check")
	return s.movie, nil
}

type sequencedPurchases struct {
	calls *[]string
}

func (s *sequencedPurchases) HasPurchased(ctx context.Context, userID, movieID uuid.UUID) (bool, error) {
	*s.calls = append(*s.calls, "purchase check")
	return false, nil
}

func TestAddItemChecksRunUnderCartLock(t *testing.T) {
	t.Parallel()

	var calls []string
	movie := &models.Movie{ID: uuid.New(), Name: "Solaris", IsAvailable: true}
	userID := uuid.New()
	repo := &sequencedCartRepo{
		stubCartRepo: stubCartRepo{cart: &models.Cart{ID: uuid.New(), UserID: userID}},
		calls:        &calls,
	}
	svc, err := NewService(repo, stubTxRunner{}, &sequencedCatalog{movie: movie, calls: &calls}, &sequencedPurchases{calls: &calls})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	if _, err := svc.AddItem(context.Background(), userID, movie.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"lock cart", "availability check", "purchase check"}
	if len(calls) < 3 || calls[0] != want[0] || calls[1] != want[1] || calls[2] != want[2] {
		t.Fatalf("checks must run behind the cart lock, got %v", calls)
	}
}

func TestRemoveItemMissingCartIsNoop(t *testing.T) {
	t.Parallel()

	repo := &stubCartRepo{}
	svc := newTestService(t, repo, &stubCatalog{}, &stubPurchases{})

	cart, err := svc.RemoveItem(context.Background(), uuid.New(), uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cart.Items) != 0 {
		t.Fatalf("expected empty cart, got %d items", len(cart.Items))
	}
	if repo.removed != 0 {
		t.Fatal("nothing should be deleted without a cart")
	}
}

func errUniqueViolation() error {
	return errors.New(`duplicate key value violates unique constraint "uniq_cart_movie"`)
}

func TestGetReturnsEmptyCartWhenAbsent(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	svc := newTestService(t, &stubCartRepo{}, &stubCatalog{}, &stubPurchases{})

	cart, err := svc.Get(context.Background(), userID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cart.UserID != userID || len(cart.Items) != 0 {
		t.Fatalf("unexpected cart: %+v", cart)
	}
}
