package orders

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/cinevault/cinevault-backend/pkg/db/models"
	"github.com/cinevault/cinevault-backend/pkg/enums"
	"github.com/cinevault/cinevault-backend/pkg/pagination"
)

func setupOrdersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	schema := []string{`
CREATE TABLE IF NOT EXISTS movies (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  year INTEGER NOT NULL,
  time INTEGER NOT NULL,
  imdb REAL NOT NULL,
  genre TEXT NOT NULL,
  description TEXT NOT NULL,
  price TEXT NOT NULL,
  is_available INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  total_amount TEXT NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  movie_id TEXT NOT NULL,
  price_at_order TEXT NOT NULL,
  created_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS purchased_movies (
  user_id TEXT NOT NULL,
  movie_id TEXT NOT NULL,
  created_at DATETIME,
  PRIMARY KEY (user_id, movie_id)
);`, `
CREATE TABLE IF NOT EXISTS payments (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  order_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  amount TEXT NOT NULL,
  attempt INTEGER NOT NULL DEFAULT 1,
  external_payment_id TEXT,
  review_reason TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`}

	for _, stmt := range schema {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func insertOrder(t *testing.T, db *gorm.DB, userID uuid.UUID, status enums.OrderStatus, createdAt time.Time) models.Order {
	t.Helper()
	order := models.Order{
		ID:          uuid.New(),
		UserID:      userID,
		Status:      status,
		TotalAmount: decimal.RequireFromString("9.99"),
		CreatedAt:   createdAt,
	}
	require.NoError(t, db.Create(&order).Error)
	return order
}

func TestRepositoryListCursorPagination(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	userID := uuid.New()
	otherUser := uuid.New()

	base := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		insertOrder(t, db, userID, enums.OrderStatusPending, base.Add(time.Duration(i)*time.Hour))
	}
	insertOrder(t, db, otherUser, enums.OrderStatusPending, base.Add(10*time.Hour))

	page, err := repo.List(context.Background(), ListFilter{UserID: &userID, Limit: 2})
	require.NoError(t, err)
	// limit+1 rows come back so the caller can detect the next page
	require.Len(t, page, 3)
	assert.True(t, page[0].CreatedAt.After(page[1].CreatedAt))

	cursor := &pagination.Cursor{CreatedAt: page[1].CreatedAt, ID: page[1].ID}
	rest, err := repo.List(context.Background(), ListFilter{UserID: &userID, Limit: 2, Cursor: cursor})
	require.NoError(t, err)
	require.Len(t, rest, 2)
	for _, order := range rest {
		assert.Equal(t, userID, order.UserID)
		assert.True(t, order.CreatedAt.Before(page[1].CreatedAt))
	}
}

func TestRepositoryListFilters(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	userID := uuid.New()

	base := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	insertOrder(t, db, userID, enums.OrderStatusPending, base)
	paid := insertOrder(t, db, userID, enums.OrderStatusPaid, base.Add(time.Hour))
	insertOrder(t, db, userID, enums.OrderStatusCanceled, base.Add(2*time.Hour))

	status := enums.OrderStatusPaid
	got, err := repo.List(context.Background(), ListFilter{UserID: &userID, Status: &status, Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, paid.ID, got[0].ID)

	after := base.Add(90 * time.Minute)
	got, err = repo.List(context.Background(), ListFilter{UserID: &userID, CreatedAfter: &after, Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, enums.OrderStatusCanceled, got[0].Status)
}

func TestRepositoryPurchaseLedger(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	userID := uuid.New()
	movieA := uuid.New()
	movieB := uuid.New()

	rows := []models.PurchasedMovie{
		{UserID: userID, MovieID: movieA},
		{UserID: userID, MovieID: movieB},
	}
	require.NoError(t, repo.InsertPurchasedMovies(context.Background(), rows))
	// replay must not fail on the composite key
	require.NoError(t, repo.InsertPurchasedMovies(context.Background(), rows))

	owned, err := repo.HasPurchased(context.Background(), userID, movieA)
	require.NoError(t, err)
	assert.True(t, owned)

	ids, err := repo.PurchasedMovieIDs(context.Background(), userID, []uuid.UUID{movieA, uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{movieA}, ids)

	require.NoError(t, repo.DeletePurchasedMovies(context.Background(), userID, []uuid.UUID{movieA, movieB}))
	owned, err = repo.HasPurchased(context.Background(), userID, movieB)
	require.NoError(t, err)
	assert.False(t, owned)
}

func TestRepositoryMovieIDsInOpenOrders(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	userID := uuid.New()
	inOpen := uuid.New()
	inPaid := uuid.New()

	pending := insertOrder(t, db, userID, enums.OrderStatusPending, time.Now().UTC())
	paid := insertOrder(t, db, userID, enums.OrderStatusPaid, time.Now().UTC())
	items := []models.OrderItem{
		{ID: uuid.New(), OrderID: pending.ID, MovieID: inOpen, PriceAtOrder: decimal.RequireFromString("1.00")},
		{ID: uuid.New(), OrderID: paid.ID, MovieID: inPaid, PriceAtOrder: decimal.RequireFromString("2.00")},
	}
	require.NoError(t, db.Create(&items).Error)

	ids, err := repo.MovieIDsInOpenOrders(context.Background(), userID, []uuid.UUID{inOpen, inPaid})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{inOpen}, ids)
}

func TestRepositoryCancelPendingPayments(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	userID := uuid.New()

	order := insertOrder(t, db, userID, enums.OrderStatusPending, time.Now().UTC())
	otherOrder := insertOrder(t, db, userID, enums.OrderStatusPending, time.Now().UTC())
	rows := []models.Payment{
		{ID: uuid.New(), UserID: userID, OrderID: order.ID, Status: enums.PaymentStatusPending, Amount: decimal.RequireFromString("9.99"), Attempt: 1},
		{ID: uuid.New(), UserID: userID, OrderID: order.ID, Status: enums.PaymentStatusSuccessful, Amount: decimal.RequireFromString("9.99"), Attempt: 2},
		{ID: uuid.New(), UserID: userID, OrderID: otherOrder.ID, Status: enums.PaymentStatusPending, Amount: decimal.RequireFromString("4.99"), Attempt: 1},
	}
	require.NoError(t, db.Create(&rows).Error)

	require.NoError(t, repo.CancelPendingPayments(context.Background(), order.ID))

	var got []models.Payment
	require.NoError(t, db.Order("attempt").Find(&got, "order_id = ?", order.ID).Error)
	require.Len(t, got, 2)
	assert.Equal(t, enums.PaymentStatusCanceled, got[0].Status)
	// settled payments keep their state
	assert.Equal(t, enums.PaymentStatusSuccessful, got[1].Status)

	var other models.Payment
	require.NoError(t, db.First(&other, "order_id = ?", otherOrder.ID).Error)
	assert.Equal(t, enums.PaymentStatusPending, other.Status)
}
