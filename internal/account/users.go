// Package account holds the customer profile: name, loyalty points and the
// favorite products list.
package account

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jeffersonhds/storefront/internal/domain"
)

var (
	ErrInvalidID    = errors.New("account: invalid user id")
	ErrUserNotFound = errors.New("account: user not found")
)

// Users is the profile collection.
type Users interface {
	// Get returns nil, nil when the profile does not exist.
	Get(ctx context.Context, id string) (*domain.User, error)
	Create(ctx context.Context, u domain.User) error
	UpdateName(ctx context.Context, id, name string) error
	// IncrementPoints adds points atomically. points <= 0 is a no-op.
	IncrementPoints(ctx context.Context, id string, points int64) error
	Favorites(ctx context.Context, id string) ([]string, error)
	UpdateFavorites(ctx context.Context, id string, favorites []string) error
}

// MemoryUsers keeps profiles in process.
type MemoryUsers struct {
	mu    sync.RWMutex
	users map[string]domain.User
}

func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{users: make(map[string]domain.User)}
}

func (m *MemoryUsers) Get(ctx context.Context, id string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	u.Favorites = append([]string(nil), u.Favorites...)
	return &u, nil
}

func (m *MemoryUsers) Create(ctx context.Context, u domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(u.ID) == "" {
		return ErrInvalidID
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

func (m *MemoryUsers) UpdateName(ctx context.Context, id, name string) error {
	return m.update(ctx, id, func(u *domain.User) { u.Name = name })
}

func (m *MemoryUsers) IncrementPoints(ctx context.Context, id string, points int64) error {
	if points <= 0 {
		return nil
	}
	return m.update(ctx, id, func(u *domain.User) { u.Points += int(points) })
}

func (m *MemoryUsers) Favorites(ctx context.Context, id string) ([]string, error) {
	u, err := m.Get(ctx, id)
	if err != nil || u == nil {
		return nil, err
	}
	return u.Favorites, nil
}

func (m *MemoryUsers) UpdateFavorites(ctx context.Context, id string, favorites []string) error {
	list := append([]string(nil), favorites...)
	sort.Strings(list)
	return m.update(ctx, id, func(u *domain.User) { u.Favorites = list })
}

func (m *MemoryUsers) update(ctx context.Context, id string, fn func(u *domain.User)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrUserNotFound
	}
	fn(&u)
	m.users[id] = u
	return nil
}
