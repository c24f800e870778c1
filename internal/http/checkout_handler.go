package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jeffersonhds/storefront/internal/checkout"
	"github.com/jeffersonhds/storefront/internal/domain"
	"github.com/jeffersonhds/storefront/internal/identity"
	"github.com/jeffersonhds/storefront/internal/retry"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type CheckoutService interface {
	Begin(ctx context.Context, cart checkout.Cart, customer domain.CustomerInfo, progress func(retry.State)) (*checkout.Pending, error)
	Complete(ctx context.Context, outcome domain.PaymentOutcome, p *checkout.Pending) (checkout.Result, error)
}

// CheckoutHandler holds pending checkouts between the session request and the
// outcome reported by the payment sheet.
type CheckoutHandler struct {
	checkout CheckoutService
	carts    CartProvider
	identity identity.Provider
	timeout  time.Duration
	log      logrus.FieldLogger

	mu      sync.Mutex
	pending map[string]*checkout.Pending
}

func NewCheckoutHandler(c CheckoutService, carts CartProvider, id identity.Provider, timeout time.Duration, log logrus.FieldLogger) *CheckoutHandler {
	return &CheckoutHandler{
		checkout: c,
		carts:    carts,
		identity: id,
		timeout:  timeout,
		log:      log,
		pending:  make(map[string]*checkout.Pending),
	}
}

type BeginCheckoutRequestDTO struct {
	Customer domain.CustomerInfo `json:"customer"`
}

type BeginCheckoutResponseDTO struct {
	CheckoutID    string          `json:"checkout_id"`
	PaymentIntent string          `json:"payment_intent"`
	EphemeralKey  string          `json:"ephemeral_key"`
	Customer      string          `json:"customer"`
	Total         decimal.Decimal `json:"total"`
}

type CompleteCheckoutRequestDTO struct {
	Outcome domain.PaymentOutcome `json:"outcome"`
}

type CompleteCheckoutResponseDTO struct {
	Outcome     domain.PaymentOutcome `json:"outcome"`
	OrderID     string                `json:"order_id,omitempty"`
	OrderNumber string                `json:"order_number,omitempty"`
	Points      int64                 `json:"points"`
	PointsError bool                  `json:"points_error"`
	OrderError  bool                  `json:"order_error"`
	Message     string                `json:"message,omitempty"`
}

type ShippingResponseDTO struct {
	Km   decimal.Decimal `json:"km"`
	Cost decimal.Decimal `json:"cost"`
	Free bool            `json:"free"`
}

func (h *CheckoutHandler) Begin(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req BeginCheckoutRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	user := h.identity.Current(r.Context())
	p, err := h.checkout.Begin(ctx, h.carts.For(user), req.Customer, func(st retry.State) {
		h.log.WithField("request_id", getRequestID(r.Context())).Info(st.Message)
	})
	if err != nil {
		handleAppError(w, h.log, err)
		return
	}

	h.mu.Lock()
	h.pending[p.CheckoutID] = p
	h.mu.Unlock()

	respondJSON(w, http.StatusCreated, BeginCheckoutResponseDTO{
		CheckoutID:    p.CheckoutID,
		PaymentIntent: p.Session.PaymentToken,
		EphemeralKey:  p.Session.EphemeralKey,
		Customer:      p.Session.CustomerRef,
		Total:         p.Total,
	})
}

// Complete applies the payment outcome. A canceled or failed payment keeps
// the checkout pending so the sheet can be presented again.
func (h *CheckoutHandler) Complete(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CompleteCheckoutRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if !req.Outcome.IsValid() {
		respondError(w, http.StatusBadRequest, "invalid_outcome", "outcome must be completed, canceled or failed")
		return
	}

	checkoutID := chi.URLParam(r, "checkout_id")
	user := h.identity.Current(r.Context())

	h.mu.Lock()
	p, ok := h.pending[checkoutID]
	if ok && p.UserID != user.UserID {
		ok = false
	}
	if ok && req.Outcome == domain.PaymentCompleted {
		delete(h.pending, checkoutID)
	}
	h.mu.Unlock()
	if !ok {
		respondError(w, http.StatusNotFound, "not_found", "not found")
		return
	}

	res, err := h.checkout.Complete(ctx, req.Outcome, p)
	if err != nil {
		handleAppError(w, h.log, err)
		return
	}

	dto := CompleteCheckoutResponseDTO{
		Outcome:     res.Outcome,
		OrderID:     res.OrderID,
		Points:      res.Points,
		PointsError: res.PointsError,
		OrderError:  res.OrderError,
		Message:     res.Message,
	}
	if res.OrderID != "" {
		dto.OrderNumber = domain.Order{ID: res.OrderID}.DisplayNumber()
	}
	respondJSON(w, http.StatusOK, dto)
}

// Shipping serves GET /checkout/shipping?km=<distance>.
func (h *CheckoutHandler) Shipping(w http.ResponseWriter, r *http.Request) {
	km, err := decimal.NewFromString(r.URL.Query().Get("km"))
	if err != nil || km.IsNegative() {
		respondError(w, http.StatusBadRequest, "invalid_distance", "km must be a non-negative number")
		return
	}
	cost := checkout.ShippingCost(km)
	respondJSON(w, http.StatusOK, ShippingResponseDTO{Km: km, Cost: cost, Free: cost.IsZero()})
}
