package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jeffersonhds/storefront/internal/domain"
	"github.com/jeffersonhds/storefront/internal/identity"
	"github.com/jeffersonhds/storefront/internal/orders"
	"github.com/sirupsen/logrus"
)

type OrderService interface {
	FirstPage(ctx context.Context, userID string, pageSize int) ([]domain.Order, error)
	NextPage(ctx context.Context, userID string, after time.Time, pageSize int) ([]domain.Order, error)
	ByID(ctx context.Context, orderID string) (*domain.Order, error)
}

type OrdersHandler struct {
	orders   OrderService
	identity identity.Provider
	timeout  time.Duration
	log      logrus.FieldLogger
}

func NewOrdersHandler(o OrderService, id identity.Provider, timeout time.Duration, log logrus.FieldLogger) *OrdersHandler {
	return &OrdersHandler{orders: o, identity: id, timeout: timeout, log: log}
}

type OrderDTO struct {
	domain.Order
	Number string `json:"number"`
}

type OrdersPageDTO struct {
	Orders  []OrderDTO `json:"orders"`
	HasMore bool       `json:"has_more"`
	// NextCursor goes back as ?before= to fetch the following page.
	NextCursor string `json:"next_cursor,omitempty"`
}

// ListOrders serves GET /orders?before=<RFC3339>&limit=<n>, newest first.
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	user, ok := signedIn(w, r, h.identity)
	if !ok {
		return
	}

	pageSize := orders.DefaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 100 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be between 1 and 100")
			return
		}
		pageSize = n
	}

	var page []domain.Order
	var err error
	if raw := r.URL.Query().Get("before"); raw != "" {
		before, perr := time.Parse(time.RFC3339Nano, raw)
		if perr != nil {
			respondError(w, http.StatusBadRequest, "invalid_cursor", "before must be an RFC3339 timestamp")
			return
		}
		page, err = h.orders.NextPage(ctx, user.UserID, before, pageSize)
	} else {
		page, err = h.orders.FirstPage(ctx, user.UserID, pageSize)
	}
	if err != nil {
		handleAppError(w, h.log, err)
		return
	}

	dto := OrdersPageDTO{Orders: make([]OrderDTO, 0, len(page)), HasMore: orders.HasMore(page, pageSize)}
	for _, o := range page {
		dto.Orders = append(dto.Orders, OrderDTO{Order: o, Number: o.DisplayNumber()})
	}
	if cursor, ok := orders.NextCursor(page); ok && dto.HasMore {
		dto.NextCursor = cursor.Format(time.RFC3339Nano)
	}
	respondJSON(w, http.StatusOK, dto)
}

// GetOrder answers 404 for orders of other users as well.
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	user, ok := signedIn(w, r, h.identity)
	if !ok {
		return
	}

	o, err := h.orders.ByID(ctx, chi.URLParam(r, "order_id"))
	if err != nil {
		handleAppError(w, h.log, err)
		return
	}
	if o.UserID != user.UserID {
		respondError(w, http.StatusNotFound, "not_found", "not found")
		return
	}
	respondJSON(w, http.StatusOK, OrderDTO{Order: *o, Number: o.DisplayNumber()})
}
