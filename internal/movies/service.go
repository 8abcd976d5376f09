package movies

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cinevault/cinevault-backend/pkg/db/models"
	pkgerrors "github.com/cinevault/cinevault-backend/pkg/errors"
	"github.com/cinevault/cinevault-backend/pkg/pagination"
)

// Loader is the read surface other domains use to price movies.
type Loader interface {
	GetAvailable(ctx context.Context, id uuid.UUID) (*models.Movie, error)
}

// Service exposes catalog reads.
type Service interface {
	Loader
	Get(ctx context.Context, id uuid.UUID) (*models.Movie, error)
	List(ctx context.Context, params pagination.Params) (*ListResult, error)
}

// ListResult is one page of the catalog.
type ListResult struct {
	Movies     []models.Movie
	NextCursor string
}

type catalogRepo interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Movie, error)
	List(ctx context.Context, filter ListFilter) ([]models.Movie, error)
}

type service struct {
	repo catalogRepo
}

// NewService builds the catalog read service.
func NewService(repo catalogRepo) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("movie repository required")
	}
	return &service{repo: repo}, nil
}

// Get loads a movie regardless of availability.
func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Movie, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "movie id is required")
	}
	movie, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "movie not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load movie")
	}
	return movie, nil
}

// List pages through movies currently on sale.
func (s *service) List(ctx context.Context, params pagination.Params) (*ListResult, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid cursor")
	}

	rows, err := s.repo.List(ctx, ListFilter{OnlyAvailable: true, Limit: params.Limit, Cursor: cursor})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list movies")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	result := &ListResult{Movies: rows}
	if len(rows) > limit {
		result.Movies = rows[:limit]
		last := result.Movies[len(result.Movies)-1]
		result.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return result, nil
}

// GetAvailable loads a movie and rejects ones withdrawn from sale.
func (s *service) GetAvailable(ctx context.Context, id uuid.UUID) (*models.Movie, error) {
	movie, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !movie.IsAvailable {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "movie is not available for purchase")
	}
	return movie, nil
}
