package movies

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cinevault/cinevault-backend/pkg/db/models"
	pkgerrors "github.com/cinevault/cinevault-backend/pkg/errors"
	"github.com/cinevault/cinevault-backend/pkg/pagination"
)

type stubCatalogRepo struct {
	movie  *models.Movie
	movies []models.Movie
	err    error
	filter ListFilter
}

func (s *stubCatalogRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Movie, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.movie, nil
}

func (s *stubCatalogRepo) List(ctx context.Context, filter ListFilter) ([]models.Movie, error) {
	s.filter = filter
	if s.err != nil {
		return nil, s.err
	}
	return s.movies, nil
}

func TestGetNotFound(t *testing.T) {
	t.Parallel()

	svc, err := NewService(&stubCatalogRepo{err: gorm.ErrRecordNotFound})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	_, err = svc.Get(context.Background(), uuid.New())
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestListPagesAvailableMovies(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	rows := []models.Movie{
		{ID: uuid.New(), Name: "Solaris", CreatedAt: base.Add(2 * time.Hour)},
		{ID: uuid.New(), Name: "Mirror", CreatedAt: base.Add(time.Hour)},
		{ID: uuid.New(), Name: "Stalker", CreatedAt: base},
	}
	repo := &stubCatalogRepo{movies: rows}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	result, err := svc.List(context.Background(), pagination.Params{Limit: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !repo.filter.OnlyAvailable {
		t.Fatal("listing must exclude withdrawn movies")
	}
	if len(result.Movies) != 2 {
		t.Fatalf("expected 2 movies, got %d", len(result.Movies))
	}
	if result.NextCursor == "" {
		t.Fatal("expected a next cursor when more rows remain")
	}

	cursor, err := pagination.ParseCursor(result.NextCursor)
	if err != nil {
		t.Fatalf("cursor should round-trip: %v", err)
	}
	if cursor.ID != rows[1].ID {
		t.Fatalf("cursor points at %s, want %s", cursor.ID, rows[1].ID)
	}
}

func TestListRejectsBadCursor(t *testing.T) {
	t.Parallel()

	svc, err := NewService(&stubCatalogRepo{})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	_, err = svc.List(context.Background(), pagination.Params{Cursor: "not-base64!"})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGetAvailableRejectsWithdrawn(t *testing.T) {
	t.Parallel()

	movie := &models.Movie{ID: uuid.New(), Name: "Stalker", IsAvailable: false}
	svc, err := NewService(&stubCatalogRepo{movie: movie})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	_, err = svc.GetAvailable(context.Background(), movie.ID)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := svc.Get(context.Background(), movie.ID); err != nil {
		t.Fatalf("Get should not filter availability: %v", err)
	}
}
