package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/cinevault/cinevault-backend/internal/cart"
	"github.com/cinevault/cinevault-backend/pkg/db/models"
	"github.com/cinevault/cinevault-backend/pkg/enums"
	pkgerrors "github.com/cinevault/cinevault-backend/pkg/errors"
	"github.com/cinevault/cinevault-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
	WithSerializableTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// OrderRepository is the persistence surface the service depends on.
type OrderRepository interface {
	WithTx(tx *gorm.DB) OrderRepository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.OrderStatus) error
	CancelPendingPayments(ctx context.Context, orderID uuid.UUID) error
	List(ctx context.Context, filter ListFilter) ([]models.Order, error)
	HasPurchased(ctx context.Context, userID, movieID uuid.UUID) (bool, error)
	PurchasedMovieIDs(ctx context.Context, userID uuid.UUID, movieIDs []uuid.UUID) ([]uuid.UUID, error)
	MovieIDsInOpenOrders(ctx context.Context, userID uuid.UUID, movieIDs []uuid.UUID) ([]uuid.UUID, error)
	InsertPurchasedMovies(ctx context.Context, rows []models.PurchasedMovie) error
	DeletePurchasedMovies(ctx context.Context, userID uuid.UUID, movieIDs []uuid.UUID) error
}

type cartStore interface {
	WithTx(tx *gorm.DB) cart.CartRepository
}

type movieLoader interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Movie, error)
}

// ExclusionReason explains why a cart item was dropped at checkout.
type ExclusionReason string

const (
	ExclusionAlreadyPurchased ExclusionReason = "already_purchased"
	ExclusionInOpenOrder      ExclusionReason = "in_open_order"
	ExclusionUnavailable      ExclusionReason = "unavailable"
)

// Exclusion pairs a dropped movie with the reason it was dropped.
type Exclusion struct {
	MovieID uuid.UUID       `json:"movie_id"`
	Name    string          `json:"name"`
	Reason  ExclusionReason `json:"reason"`
}

// CreateResult is what checkout returns: the persisted order plus whatever
// was silently excluded from it.
type CreateResult struct {
	Order      *models.Order
	Exclusions []Exclusion
}

// ListParams carry listing inputs through the service.
type ListParams struct {
	UserID        *uuid.UUID
	UserIDs       []uuid.UUID
	Status        *enums.OrderStatus
	CreatedAfter  *string
	CreatedBefore *string
	Pagination    pagination.Params
}

// ListResult is one page of orders.
type ListResult struct {
	Orders     []models.Order
	NextCursor string
}

// Service exposes the order lifecycle.
type Service interface {
	Create(ctx context.Context, userID uuid.UUID) (*CreateResult, error)
	Cancel(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error)
	Get(ctx context.Context, userID, orderID uuid.UUID, role enums.UserRole) (*models.Order, error)
	ListMine(ctx context.Context, userID uuid.UUID, params ListParams) (*ListResult, error)
	ListAll(ctx context.Context, params ListParams) (*ListResult, error)
}

type service struct {
	repo    OrderRepository
	carts   cartStore
	catalog movieLoader
	tx      txRunner
}

// NewService builds an order service backed by the provided stack.
func NewService(repo OrderRepository, carts cartStore, catalog movieLoader, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("movie repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, carts: carts, catalog: catalog, tx: tx}, nil
}

// Create turns the user's cart into a pending order. Prices are re-read from
// the catalog and snapshotted onto the order; owned movies, movies waiting in
// another pending order, and withdrawn movies are excluded rather than
// failing the whole checkout. The cart is emptied in the same transaction.
func (s *service) Create(ctx context.Context, userID uuid.UUID) (*CreateResult, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	var result CreateResult
	err := s.tx.WithSerializableTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		carts := s.carts.WithTx(tx)

		cartRow, err := carts.FindByUserForUpdate(ctx, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "cart is empty")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock cart")
		}
		items, err := carts.ListItems(ctx, cartRow.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart items")
		}
		if len(items) == 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "cart is empty")
		}

		movieIDs := make([]uuid.UUID, 0, len(items))
		for _, item := range items {
			movieIDs = append(movieIDs, item.MovieID)
		}

		eligible, exclusions, err := s.partitionCart(ctx, repo, userID, movieIDs)
		if err != nil {
			return err
		}
		result.Exclusions = exclusions
		if len(eligible) == 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "no orderable movies in cart").
				WithDetails(map[string]any{"exclusions": exclusions})
		}

		order := &models.Order{
			UserID: userID,
			Status: enums.OrderStatusPending,
		}
		total := decimal.Zero
		for _, movie := range eligible {
			order.Items = append(order.Items, models.OrderItem{
				MovieID:      movie.ID,
				PriceAtOrder: movie.Price,
			})
			total = total.Add(movie.Price)
		}
		order.TotalAmount = total

		if err := repo.Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
		}
		if err := carts.ClearItems(ctx, cartRow.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear cart")
		}
		result.Order = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *service) partitionCart(ctx context.Context, repo OrderRepository, userID uuid.UUID, movieIDs []uuid.UUID) ([]models.Movie, []Exclusion, error) {
	catalog, err := s.catalog.FindByIDs(ctx, movieIDs)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load movies")
	}
	byID := make(map[uuid.UUID]models.Movie, len(catalog))
	for _, m := range catalog {
		byID[m.ID] = m
	}

	purchased, err := repo.PurchasedMovieIDs(ctx, userID, movieIDs)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check purchases")
	}
	inOpen, err := repo.MovieIDsInOpenOrders(ctx, userID, movieIDs)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check open orders")
	}

	purchasedSet := idSet(purchased)
	openSet := idSet(inOpen)

	var eligible []models.Movie
	var exclusions []Exclusion
	for _, id := range movieIDs {
		movie, found := byID[id]
		switch {
		case purchasedSet[id]:
			exclusions = append(exclusions, Exclusion{MovieID: id, Name: movie.Name, Reason: ExclusionAlreadyPurchased})
		case openSet[id]:
			exclusions = append(exclusions, Exclusion{MovieID: id, Name: movie.Name, Reason: ExclusionInOpenOrder})
		case !found || !movie.IsAvailable:
			exclusions = append(exclusions, Exclusion{MovieID: id, Name: movie.Name, Reason: ExclusionUnavailable})
		default:
			eligible = append(eligible, movie)
		}
	}
	return eligible, exclusions, nil
}

// Cancel moves a pending order to canceled and cancels any pending payment
// for it in the same transaction, so a late gateway success cannot settle a
// dead order. Canceling an already-canceled order succeeds without touching
// the row; paid orders must go through the refund path instead.
func (s *service) Cancel(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	if userID == uuid.Nil || orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id and order id are required")
	}

	var out *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByIDForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock order")
		}
		if order.UserID != userID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
		}

		switch order.Status {
		case enums.OrderStatusCanceled:
			out = order
			return nil
		case enums.OrderStatusPaid:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "paid orders can only be refunded")
		case enums.OrderStatusPending:
			if err := repo.CancelPendingPayments(ctx, order.ID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel pending payments")
			}
			if err := repo.UpdateStatus(ctx, order.ID, enums.OrderStatusCanceled); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel order")
			}
			order.Status = enums.OrderStatusCanceled
			out = order
			return nil
		default:
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order in unexpected state %q", order.Status))
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get loads a single order. Moderators can read any order, users only their
// own.
func (s *service) Get(ctx context.Context, userID, orderID uuid.UUID, role enums.UserRole) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if order.UserID != userID && !role.CanModerate() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
	}
	return order, nil
}

// ListMine pages through the caller's own orders.
func (s *service) ListMine(ctx context.Context, userID uuid.UUID, params ListParams) (*ListResult, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	params.UserID = &userID
	params.UserIDs = nil
	return s.list(ctx, params)
}

// ListAll pages through every order with moderator filters applied.
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
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}

	limit := pagination.NormalizeLimit(params.Pagination.Limit)
	result := &ListResult{Orders: rows}
	if len(rows) > limit {
		result.Orders = rows[:limit]
		last := result.Orders[len(result.Orders)-1]
		result.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return result, nil
}

func idSet(ids []uuid.UUID) map[uuid.UUID]bool {
	set := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
