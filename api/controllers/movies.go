package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cinevault/cinevault-backend/api/responses"
	moviesvc "github.com/cinevault/cinevault-backend/internal/movies"
	"github.com/cinevault/cinevault-backend/pkg/db/models"
	"github.com/cinevault/cinevault-backend/pkg/logger"
)

type movieResponse struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Year        int             `json:"year"`
	Time        int             `json:"time"`
	IMDB        float64         `json:"imdb"`
	Genre       string          `json:"genre"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	IsAvailable bool            `json:"is_available"`
	CreatedAt   time.Time       `json:"created_at"`
}

type movieListResponse struct {
	Movies     []movieResponse `json:"movies"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func newMovieResponse(record *models.Movie) movieResponse {
	return movieResponse{
		ID:          record.ID,
		Name:        record.Name,
		Year:        record.Year,
		Time:        record.Time,
		IMDB:        record.IMDB,
		Genre:       record.Genre,
		Description: record.Description,
		Price:       record.Price,
		IsAvailable: record.IsAvailable,
		CreatedAt:   record.CreatedAt,
	}
}

// MoviesList pages through movies currently on sale.
func MoviesList(svc moviesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		paging, err := pagingParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.List(r.Context(), paging)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := movieListResponse{
			Movies:     make([]movieResponse, 0, len(result.Movies)),
			NextCursor: result.NextCursor,
		}
		for i := range result.Movies {
			resp.Movies = append(resp.Movies, newMovieResponse(&result.Movies[i]))
		}
		responses.WriteSuccess(w, resp)
	}
}

// MovieGet returns one movie, withdrawn titles included.
func MovieGet(svc moviesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		movieID, err := parseUUIDParam(r, "movieID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.Get(r.Context(), movieID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newMovieResponse(record))
	}
}
