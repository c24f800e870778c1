package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jeffersonhds/storefront/internal/account"
	"github.com/jeffersonhds/storefront/internal/domain"
	"github.com/jeffersonhds/storefront/internal/identity"
	"github.com/sirupsen/logrus"
)

type FavoritesProvider interface {
	For(ctx context.Context, userID string) (*account.Favorites, error)
}

type ProfileService interface {
	Get(ctx context.Context, id string) (*domain.User, error)
	Rename(ctx context.Context, id, name string) error
}

type AccountHandler struct {
	favorites FavoritesProvider
	profiles  ProfileService
	identity  identity.Provider
	timeout   time.Duration
	log       logrus.FieldLogger
}

func NewAccountHandler(f FavoritesProvider, p ProfileService, id identity.Provider, timeout time.Duration, log logrus.FieldLogger) *AccountHandler {
	return &AccountHandler{favorites: f, profiles: p, identity: id, timeout: timeout, log: log}
}

type RenameRequestDTO struct {
	Name string `json:"name"`
}

type FavoritesResponseDTO struct {
	ProductIDs []string `json:"product_ids"`
}

type ToggleResponseDTO struct {
	ProductID string `json:"product_id"`
	Favorite  bool   `json:"favorite"`
}

func (h *AccountHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	user, ok := signedIn(w, r, h.identity)
	if !ok {
		return
	}
	u, err := h.profiles.Get(ctx, user.UserID)
	if err != nil {
		handleAppError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, u)
}

func (h *AccountHandler) Rename(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	user, ok := signedIn(w, r, h.identity)
	if !ok {
		return
	}
	var req RenameRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	userID := user.UserID
	if err := h.profiles.Rename(ctx, userID, req.Name); err != nil {
		handleAppError(w, h.log, err)
		return
	}
	u, err := h.profiles.Get(ctx, userID)
	if err != nil {
		handleAppError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, u)
}

func (h *AccountHandler) ListFavorites(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	f, err := h.favorites.For(ctx, h.identity.Current(r.Context()).UserID)
	if err != nil {
		handleAppError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, FavoritesResponseDTO{ProductIDs: f.IDs()})
}

// ToggleFavorite answers with the optimistic state; a failed write is rolled
// back in the background and shows up on the next listing.
func (h *AccountHandler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	f, err := h.favorites.For(ctx, h.identity.Current(r.Context()).UserID)
	if err != nil {
		handleAppError(w, h.log, err)
		return
	}
	productID := chi.URLParam(r, "product_id")
	added, err := f.Toggle(productID)
	if err != nil {
		handleAppError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, ToggleResponseDTO{ProductID: productID, Favorite: added})
}
