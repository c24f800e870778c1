// Package remote is the boundary to the storefront backend. Every call returns
// a typed value or an error that apperr can classify.
package remote

import (
	"context"
	"fmt"

	"github.com/jeffersonhds/storefront/internal/domain"
)

type Catalog interface {
	ListItems(ctx context.Context) ([]domain.CatalogItem, error)
	// GetItem returns nil, nil when the backend has no such item.
	GetItem(ctx context.Context, id string) (*domain.CatalogItem, error)
	ListBanners(ctx context.Context) ([]domain.Banner, error)
}

type Checkout interface {
	CreateCheckoutSession(ctx context.Context, items []domain.CheckoutItem, customer domain.CustomerInfo) (*domain.CheckoutSession, error)
}

type AuthResult struct {
	UserID  string `json:"localId"`
	Email   string `json:"email"`
	IDToken string `json:"idToken"`
}

type Auth interface {
	SignIn(ctx context.Context, email, password string) (*AuthResult, error)
	SignUp(ctx context.Context, email, password string) (*AuthResult, error)
	SendPasswordReset(ctx context.Context, email string) error
}

// StatusError is a non-2xx answer from the backend.
type StatusError struct {
	Service string
	Code    int
	Body    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Service, e.Code, e.Body)
}

func (e *StatusError) HTTPStatus() int {
	return e.Code
}
