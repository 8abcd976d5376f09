package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cinevault/cinevault-backend/internal/movies"
	"github.com/cinevault/cinevault-backend/pkg/db"
	"github.com/cinevault/cinevault-backend/pkg/db/models"
	pkgerrors "github.com/cinevault/cinevault-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// CartRepository is the persistence surface the service depends on.
type CartRepository interface {
	WithTx(tx *gorm.DB) CartRepository
	FindByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	FindByUserForUpdate(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	Create(ctx context.Context, cart *models.Cart) error
	AddItem(ctx context.Context, item *models.CartItem) error
	RemoveItem(ctx context.Context, cartID, movieID uuid.UUID) (bool, error)
	ClearItems(ctx context.Context, cartID uuid.UUID) error
	ListItems(ctx context.Context, cartID uuid.UUID) ([]models.CartItem, error)
}

type purchaseChecker interface {
	HasPurchased(ctx context.Context, userID, movieID uuid.UUID) (bool, error)
}

// Service exposes the cart operations.
type Service interface {
	AddItem(ctx context.Context, userID, movieID uuid.UUID) (*models.Cart, error)
	RemoveItem(ctx context.Context, userID, movieID uuid.UUID) (*models.Cart, error)
	Clear(ctx context.Context, userID uuid.UUID) error
	Get(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
}

type service struct {
	repo      CartRepository
	tx        txRunner
	catalog   movies.Loader
	purchases purchaseChecker
}

// NewService builds a cart service backed by the provided stack.
func NewService(repo CartRepository, tx txRunner, catalog movies.Loader, purchases purchaseChecker) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("movie loader required")
	}
	if purchases == nil {
		return nil, fmt.Errorf("purchase checker required")
	}
	return &service{
		repo:      repo,
		tx:        tx,
		catalog:   catalog,
		purchases: purchases,
	}, nil
}

// AddItem places a movie in the user's cart. Movies already owned or already
// in the cart are rejected; the checks run behind the cart row lock, so
// concurrent adds for one user serialize, and duplicate inserts racing past
// the check are caught by the unique constraint and reported the same way.
func (s *service) AddItem(ctx context.Context, userID, movieID uuid.UUID) (*models.Cart, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if movieID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "movie id is required")
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cart, err := s.lockOrCreateCart(ctx, repo, userID)
		if err != nil {
			return err
		}

		movie, err := s.catalog.GetAvailable(ctx, movieID)
		if err != nil {
			return err
		}
		owned, err := s.purchases.HasPurchased(ctx, userID, movie.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check purchase history")
		}
		if owned {
			return pkgerrors.New(pkgerrors.CodeConflict, "movie already purchased")
		}

		item := &models.CartItem{CartID: cart.ID, MovieID: movie.ID}
		if err := repo.AddItem(ctx, item); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "movie already in cart")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "add cart item")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.Get(ctx, userID)
}

// RemoveItem takes a movie out of the cart. Removing a movie that is not in
// the cart is a no-op, so retried deletes stay safe.
func (s *service) RemoveItem(ctx context.Context, userID, movieID uuid.UUID) (*models.Cart, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if movieID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "movie id is required")
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cart, err := repo.FindByUserForUpdate(ctx, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock cart")
		}
		if _, err := repo.RemoveItem(ctx, cart.ID, movieID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "remove cart item")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.Get(ctx, userID)
}

// Clear empties the user's cart. Clearing an absent or already-empty cart
// succeeds.
func (s *service) Clear(ctx context.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cart, err := repo.FindByUserForUpdate(ctx, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock cart")
		}
		if err := repo.ClearItems(ctx, cart.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear cart")
		}
		return nil
	})
}

// Get returns the user's cart. Users without a cart yet get an empty one
// without persisting anything.
func (s *service) Get(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	cart, err := s.repo.FindByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &models.Cart{UserID: userID, Items: []models.CartItem{}}, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}
	return cart, nil
}

func (s *service) lockOrCreateCart(ctx context.Context, repo CartRepository, userID uuid.UUID) (*models.Cart, error) {
	cart, err := repo.FindByUserForUpdate(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock cart")
	}

	fresh := &models.Cart{UserID: userID}
	if err := repo.Create(ctx, fresh); err != nil {
		if db.IsUniqueViolation(err, "") {
			// lost the create race; the other writer's cart is the one to lock
			return repo.FindByUserForUpdate(ctx, userID)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create cart")
	}
	return fresh, nil
}
