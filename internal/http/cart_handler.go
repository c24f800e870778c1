package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jeffersonhds/storefront/internal/cart"
	"github.com/jeffersonhds/storefront/internal/domain"
	"github.com/jeffersonhds/storefront/internal/identity"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const maxQuantity = 99

type CartProvider interface {
	For(id domain.Identity) *cart.Store
}

type ProductLookup interface {
	FetchOne(ctx context.Context, id string) (*domain.CatalogItem, error)
}

type CartHandler struct {
	carts    CartProvider
	products ProductLookup
	identity identity.Provider
	timeout  time.Duration
	log      logrus.FieldLogger
}

func NewCartHandler(carts CartProvider, products ProductLookup, id identity.Provider, timeout time.Duration, log logrus.FieldLogger) *CartHandler {
	return &CartHandler{
		carts:    carts,
		products: products,
		identity: id,
		timeout:  timeout,
		log:      log,
	}
}

type AddItemRequestDTO struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type CartResponseDTO struct {
	Lines []domain.CartLine `json:"lines"`
	Total decimal.Decimal   `json:"total"`
	Count int               `json:"count"`
}

func cartResponse(s cart.Snapshot) CartResponseDTO {
	lines := s.Lines
	if lines == nil {
		lines = []domain.CartLine{}
	}
	return CartResponseDTO{Lines: lines, Total: s.Total, Count: s.Count}
}

func (h *CartHandler) current(r *http.Request) *cart.Store {
	return h.carts.For(h.identity.Current(r.Context()))
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, cartResponse(h.current(r).Snapshot()))
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.ProductID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}
	if req.Quantity < 0 || req.Quantity > maxQuantity {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}

	item, err := h.products.FetchOne(ctx, req.ProductID)
	if err != nil {
		handleAppError(w, h.log, err)
		return
	}
	if item == nil {
		respondError(w, http.StatusNotFound, "not_found", "not found")
		return
	}

	c := h.current(r)
	c.Add(*item, req.Quantity)
	respondJSON(w, http.StatusCreated, cartResponse(c.Snapshot()))
}

// UpdateQuantity sets the quantity of a line; zero removes it.
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	var req UpdateQuantityRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Quantity < 0 || req.Quantity > maxQuantity {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 0 and 99")
		return
	}

	c := h.current(r)
	productID := chi.URLParam(r, "product_id")
	if _, ok := c.Line(productID); !ok {
		respondError(w, http.StatusNotFound, "not_found", "not found")
		return
	}
	c.SetQuantity(productID, req.Quantity)
	respondJSON(w, http.StatusOK, cartResponse(c.Snapshot()))
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	c := h.current(r)
	c.Remove(chi.URLParam(r, "product_id"))
	respondJSON(w, http.StatusOK, cartResponse(c.Snapshot()))
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	c := h.current(r)
	c.Clear()
	respondJSON(w, http.StatusOK, cartResponse(c.Snapshot()))
}
