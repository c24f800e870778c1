package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jeffersonhds/storefront/internal/apperr"
	"github.com/jeffersonhds/storefront/internal/catalog"
	"github.com/jeffersonhds/storefront/internal/domain"
	"github.com/sirupsen/logrus"
)

type CatalogService interface {
	FetchAll(ctx context.Context) (catalog.Result, error)
	FetchOne(ctx context.Context, id string) (*domain.CatalogItem, error)
	ByCategory(ctx context.Context, category string) (catalog.Result, error)
	NewArrivals(ctx context.Context) (catalog.Result, error)
	Discounted(ctx context.Context) (catalog.Result, error)
	Banners(ctx context.Context) ([]domain.Banner, error)
}

type CatalogHandler struct {
	catalog CatalogService
	timeout time.Duration
	log     logrus.FieldLogger
}

func NewCatalogHandler(c CatalogService, timeout time.Duration, log logrus.FieldLogger) *CatalogHandler {
	return &CatalogHandler{catalog: c, timeout: timeout, log: log}
}

type CatalogResponseDTO struct {
	Items []domain.CatalogItem `json:"items"`
	// Stale is set when the items come from the device cache.
	Stale   bool   `json:"stale"`
	Warning string `json:"warning,omitempty"`
}

// ListProducts serves GET /products. Optional filters: category=<name> or
// filter=new|discounted.
func (h *CatalogHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var res catalog.Result
	var err error
	q := r.URL.Query()
	switch {
	case q.Get("category") != "":
		res, err = h.catalog.ByCategory(ctx, q.Get("category"))
	case q.Get("filter") == "new":
		res, err = h.catalog.NewArrivals(ctx)
	case q.Get("filter") == "discounted":
		res, err = h.catalog.Discounted(ctx)
	case q.Get("filter") != "":
		respondError(w, http.StatusBadRequest, "invalid_filter", "filter must be new or discounted")
		return
	default:
		res, err = h.catalog.FetchAll(ctx)
	}
	if err != nil {
		handleAppError(w, h.log, err)
		return
	}

	dto := CatalogResponseDTO{Items: res.Items, Stale: res.Stale}
	if dto.Items == nil {
		dto.Items = []domain.CatalogItem{}
	}
	if res.Stale {
		dto.Warning = apperr.UserMessage(res.RemoteErr)
	}
	respondJSON(w, http.StatusOK, dto)
}

func (h *CatalogHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	item, err := h.catalog.FetchOne(ctx, chi.URLParam(r, "product_id"))
	if err != nil {
		handleAppError(w, h.log, err)
		return
	}
	if item == nil {
		respondError(w, http.StatusNotFound, "not_found", "not found")
		return
	}
	respondJSON(w, http.StatusOK, item)
}

func (h *CatalogHandler) ListBanners(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	banners, err := h.catalog.Banners(ctx)
	if err != nil {
		handleAppError(w, h.log, err)
		return
	}
	if banners == nil {
		banners = []domain.Banner{}
	}
	respondJSON(w, http.StatusOK, banners)
}
