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
	paymentsvc "github.com/cinevault/cinevault-backend/internal/payments"
	"github.com/cinevault/cinevault-backend/pkg/db/models"
	"github.com/cinevault/cinevault-backend/pkg/enums"
	pkgerrors "github.com/cinevault/cinevault-backend/pkg/errors"
	"github.com/cinevault/cinevault-backend/pkg/logger"
)

type paymentResponse struct {
	ID                uuid.UUID           `json:"id"`
	OrderID           uuid.UUID           `json:"order_id"`
	Status            enums.PaymentStatus `json:"status"`
	Amount            decimal.Decimal     `json:"amount"`
	Attempt           int                 `json:"attempt"`
	ExternalPaymentID *string             `json:"external_payment_id,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
}

type paymentListResponse struct {
	Payments   []paymentResponse `json:"payments"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

func newPaymentResponse(record *models.Payment) paymentResponse {
	return paymentResponse{
		ID:                record.ID,
		OrderID:           record.OrderID,
		Status:            record.Status,
		Amount:            record.Amount,
		Attempt:           record.Attempt,
		ExternalPaymentID: record.ExternalPaymentID,
		CreatedAt:         record.CreatedAt,
	}
}

func newPaymentListResponse(result *paymentsvc.ListResult) paymentListResponse {
	resp := paymentListResponse{
		Payments:   make([]paymentResponse, 0, len(result.Payments)),
		NextCursor: result.NextCursor,
	}
	for i := range result.Payments {
		resp.Payments = append(resp.Payments, newPaymentResponse(&result.Payments[i]))
	}
	return resp
}

type initiatePaymentRequest struct {
	// Amount is optional; when present it must match the order's item total.
	Amount *decimal.Decimal `json:"amount"`
}

// PaymentInitiate starts a charge attempt for a pending order. The payment
// record is returned even when the gateway call fails; reconciliation settles
// it later.
func PaymentInitiate(svc paymentsvc.Service, logg *logger.Logger) http.HandlerFunc {
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

		var body initiatePaymentRequest
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &body); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		record, err := svc.InitiateCharge(r.Context(), userID, orderID, body.Amount)
		if err != nil {
			if record != nil && pkgerrors.HasCode(err, pkgerrors.CodeDependency) {
				responses.WriteSuccessStatus(w, http.StatusAccepted, newPaymentResponse(record))
				return
			}
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newPaymentResponse(record))
	}
}

// PaymentGet returns one payment; moderators may read any payment.
func PaymentGet(svc paymentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		paymentID, err := parseUUIDParam(r, "paymentID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.Get(r.Context(), userID, paymentID, middleware.RoleFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPaymentResponse(record))
	}
}

// PaymentsListMine pages through the caller's own payments.
func PaymentsListMine(svc paymentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params, err := paymentListParams(r, false)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ListMine(r.Context(), userID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPaymentListResponse(result))
	}
}

// AdminPaymentsList pages through all payments with moderator filters.
func AdminPaymentsList(svc paymentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := paymentListParams(r, true)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ListAll(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPaymentListResponse(result))
	}
}

// AdminPaymentRefund asks the gateway to refund a successful payment. The
// local payment keeps its status until the gateway's refund event arrives, so
// the response is 202 rather than 200.
func AdminPaymentRefund(svc paymentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		paymentID, err := parseUUIDParam(r, "paymentID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.Refund(r.Context(), paymentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, newPaymentResponse(record))
	}
}

func paymentListParams(r *http.Request, admin bool) (paymentsvc.ListParams, error) {
	var params paymentsvc.ListParams

	paging, err := pagingParams(r)
	if err != nil {
		return params, err
	}
	params.Pagination = paging

	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, err := enums.ParsePaymentStatus(raw)
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
