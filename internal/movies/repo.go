package movies

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cinevault/cinevault-backend/pkg/db/models"
	"github.com/cinevault/cinevault-backend/pkg/pagination"
)

// ListFilter narrows a catalog listing.
type ListFilter struct {
	OnlyAvailable bool
	Limit         int
	Cursor        *pagination.Cursor
}

// Repository reads the movie catalog. The catalog is owned by the content
// service; this side only prices carts and orders from it.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds the repository to the provided DB handle.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx scopes the repository to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindByID loads a single movie.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Movie, error) {
	var movie models.Movie
	if err := r.db.WithContext(ctx).First(&movie, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &movie, nil
}

// List pages through the catalog, newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]models.Movie, error) {
	q := r.db.WithContext(ctx).Model(&models.Movie{})

	if filter.OnlyAvailable {
		q = q.Where("is_available = ?", true)
	}
	if filter.Cursor != nil {
		q = q.Where("(created_at, id) < (?, ?)", filter.Cursor.CreatedAt, filter.Cursor.ID)
	}

	limit := pagination.LimitWithBuffer(filter.Limit)
	var out []models.Movie
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// FindByIDs loads the given movies in one query.
func (r *Repository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Movie, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []models.Movie
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
