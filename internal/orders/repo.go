package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cinevault/cinevault-backend/pkg/db/models"
	"github.com/cinevault/cinevault-backend/pkg/enums"
	"github.com/cinevault/cinevault-backend/pkg/pagination"
)

// ListFilter narrows order listings. Zero values mean "no filter".
type ListFilter struct {
	UserID        *uuid.UUID
	UserIDs       []uuid.UUID
	Status        *enums.OrderStatus
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	Limit         int
	Cursor        *pagination.Cursor
}

// Repository manages order rows, their items, and the purchase ledger.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds the repository to the provided DB handle.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx scopes the repository to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) OrderRepository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Create inserts the order together with its items.
func (r *Repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

// FindByID loads an order with its items and movies.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items.Movie").
		First(&order, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// FindByIDForUpdate loads an order under a row lock. Status transitions
// always run behind this lock.
func (r *Repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&order, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// FindItems loads the order's items.
func (r *Repository) FindItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := r.db.WithContext(ctx).
		Preload("Movie").
		Where("order_id = ?", orderID).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// UpdateStatus persists a status transition.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.OrderStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// CancelPendingPayments marks every pending payment row for the order as
// canceled. The single UPDATE takes its own row locks, so the transition is
// atomic with whatever transaction the repository is scoped to.
func (r *Repository) CancelPendingPayments(ctx context.Context, orderID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("order_id = ? AND status = ?", orderID, enums.PaymentStatusPending).
		Update("status", enums.PaymentStatusCanceled).Error
}

// List returns orders matching the filter, newest first, cursor-paginated.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]models.Order, error) {
	q := r.db.WithContext(ctx).Model(&models.Order{}).Preload("Items.Movie")

	if filter.UserID != nil {
		q = q.Where("user_id = ?", *filter.UserID)
	}
	if len(filter.UserIDs) > 0 {
		q = q.Where("user_id IN ?", filter.UserIDs)
	}
	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	}
	if filter.CreatedAfter != nil {
		q = q.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		q = q.Where("created_at <= ?", *filter.CreatedBefore)
	}
	if filter.Cursor != nil {
		q = q.Where("(created_at, id) < (?, ?)", filter.Cursor.CreatedAt, filter.Cursor.ID)
	}

	limit := pagination.LimitWithBuffer(filter.Limit)
	var out []models.Order
	err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// HasPurchased reports whether the user already owns the movie.
func (r *Repository) HasPurchased(ctx context.Context, userID, movieID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.PurchasedMovie{}).
		Where("user_id = ? AND movie_id = ?", userID, movieID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// PurchasedMovieIDs returns the subset of movieIDs the user already owns.
func (r *Repository) PurchasedMovieIDs(ctx context.Context, userID uuid.UUID, movieIDs []uuid.UUID) ([]uuid.UUID, error) {
	if len(movieIDs) == 0 {
		return nil, nil
	}
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.PurchasedMovie{}).
		Where("user_id = ? AND movie_id IN ?", userID, movieIDs).
		Pluck("movie_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// MovieIDsInOpenOrders returns the subset of movieIDs already sitting in
// another pending order of the same user.
func (r *Repository) MovieIDsInOpenOrders(ctx context.Context, userID uuid.UUID, movieIDs []uuid.UUID) ([]uuid.UUID, error) {
	if len(movieIDs) == 0 {
		return nil, nil
	}
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Where("orders.user_id = ? AND orders.status = ? AND order_items.movie_id IN ?",
			userID, enums.OrderStatusPending, movieIDs).
		Distinct().
		Pluck("order_items.movie_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// DeletePurchasedMovies revokes ownership rows, used when a paid order is
// refunded.
func (r *Repository) DeletePurchasedMovies(ctx context.Context, userID uuid.UUID, movieIDs []uuid.UUID) error {
	if len(movieIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Where("user_id = ? AND movie_id IN ?", userID, movieIDs).
		Delete(&models.PurchasedMovie{}).Error
}

// InsertPurchasedMovies records ownership rows, skipping ones that already
// exist so replays stay idempotent.
func (r *Repository) InsertPurchasedMovies(ctx context.Context, rows []models.PurchasedMovie) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error
}
