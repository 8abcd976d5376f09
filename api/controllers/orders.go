package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cinevault/cinevault-backend/api/middleware"
	"github.com/cinevault/cinevault-backend/api/responses"
	"github.com/cinevault/cinevault-backend/api/validators"
	ordersvc "github.com/cinevault/cinevault-backend/internal/orders"
	"github.com/cinevault/cinevault-backend/pkg/db/models"
	"github.com/cinevault/cinevault-backend/pkg/enums"
	pkgerrors "github.com/cinevault/cinevault-backend/pkg/errors"
	"github.com/cinevault/cinevault-backend/pkg/logger"
	"github.com/cinevault/cinevault-backend/pkg/pagination"
)

type orderItemResponse struct {
	MovieID      uuid.UUID       `json:"movie_id"`
	Name         string          `json:"name"`
	PriceAtOrder decimal.Decimal `json:"price_at_order"`
}

type orderResponse struct {
	ID          uuid.UUID           `json:"id"`
	UserID      uuid.UUID           `json:"user_id"`
	Status      enums.OrderStatus   `json:"status"`
	TotalAmount decimal.Decimal     `json:"total_amount"`
	Items       []orderItemResponse `json:"items,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
}

type createOrderResponse struct {
	Order      orderResponse        `json:"order"`
	Exclusions []ordersvc.Exclusion `json:"exclusions,omitempty"`
}

type orderListResponse struct {
	Orders     []orderResponse `json:"orders"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func newOrderResponse(record *models.Order) orderResponse {
	resp := orderResponse{
		ID:          record.ID,
		UserID:      record.UserID,
		Status:      record.Status,
		TotalAmount: record.TotalAmount,
		CreatedAt:   record.CreatedAt,
	}
	for _, item := range record.Items {
		out := orderItemResponse{MovieID: item.MovieID, PriceAtOrder: item.PriceAtOrder}
		if item.Movie != nil {
			out.Name = item.Movie.Name
		}
		resp.Items = append(resp.Items, out)
	}
	return resp
}

func newOrderListResponse(result *ordersvc.ListResult) orderListResponse {
	resp := orderListResponse{
		Orders:     make([]orderResponse, 0, len(result.Orders)),
		NextCursor: result.NextCursor,
	}
	for i := range result.Orders {
		resp.Orders = append(resp.Orders, newOrderResponse(&result.Orders[i]))
	}
	return resp
}

// OrderCreate turns the caller's cart into a pending order.
func OrderCreate(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Create(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, createOrderResponse{
			Order:      newOrderResponse(result.Order),
			Exclusions: result.Exclusions,
		})
	}
}

// OrderCancel cancels a pending order owned by the caller.
func OrderCancel(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := parseUUIDParam(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.Cancel(r.Context(), userID, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(record))
	}
}

// OrderGet returns one order; moderators may read any order.
func OrderGet(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := parseUUIDParam(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.Get(r.Context(), userID, orderID, middleware.RoleFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(record))
	}
}

// OrdersListMine pages through the caller's own orders.
func OrdersListMine(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params, err := orderListParams(r, false)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ListMine(r.Context(), userID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderListResponse(result))
	}
}

// AdminOrdersList pages through all orders with moderator filters.
func AdminOrdersList(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := orderListParams(r, true)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ListAll(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderListResponse(result))
	}
}

func orderListParams(r *http.Request, admin bool) (ordersvc.ListParams, error) {
	var params ordersvc.ListParams

	paging, err := pagingParams(r)
	if err != nil {
		return params, err
	}
	params.Pagination = paging

	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, err := enums.ParseOrderStatus(raw)
		if err != nil {
			return params, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		params.Status = &status
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("created_after")); raw != "" {
		params.CreatedAfter = &raw
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("created_before")); raw != "" {
		params.CreatedBefore = &raw
	}
	if admin {
		userIDs, err := parseUserIDs(r)
		if err != nil {
			return params, err
		}
		params.UserIDs = userIDs
	}
	return params, nil
}

func pagingParams(r *http.Request) (pagination.Params, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{
		Limit:  limit,
		Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
	}, nil
}

func parseUserIDs(r *http.Request) ([]uuid.UUID, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("users"))
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]uuid.UUID, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := uuid.Parse(part)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id filter")
		}
		ids = append(ids, id)
	}
	return ids, nil
}
