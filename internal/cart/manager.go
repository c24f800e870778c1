package cart

import (
	"context"
	"errors"
	"sync"

	"github.com/jeffersonhds/storefront/internal/domain"
	"github.com/jeffersonhds/storefront/internal/store"
	"github.com/sirupsen/logrus"
)

// Manager keeps one Store per identity on this device, all backed by the same
// store.Store in disjoint tables.
type Manager struct {
	mu     sync.Mutex
	store  store.Store
	opts   []Option
	carts  map[string]*Store
	closed bool
	log    logrus.FieldLogger
}

func NewManager(s store.Store, log logrus.FieldLogger, opts ...Option) *Manager {
	return &Manager{
		store: s,
		opts:  opts,
		carts: make(map[string]*Store),
		log:   log,
	}
}

// For returns the cart of id, creating and restoring it on first use.
func (m *Manager) For(id domain.Identity) *Store {
	m.mu.Lock()
	defer m.mu.Unlock()

	scope := id.ScopeID()
	if c, ok := m.carts[scope]; ok {
		return c
	}
	c := New(m.store, TableFor(id), m.log, m.opts...)
	m.carts[scope] = c
	return c
}

// ClearUser empties the cart of userID when it is loaded on this device.
func (m *Manager) ClearUser(userID string) bool {
	m.mu.Lock()
	c, ok := m.carts[userID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	c.Clear()
	return true
}

// Reset clears and unloads every signed-in cart. The anonymous cart stays.
func (m *Manager) Reset(ctx context.Context) error {
	m.mu.Lock()
	var dropped []*Store
	for scope, c := range m.carts {
		if scope == domain.AnonymousUserID {
			continue
		}
		dropped = append(dropped, c)
		delete(m.carts, scope)
	}
	m.mu.Unlock()

	var errs []error
	for _, c := range dropped {
		c.Clear()
		if err := c.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// Close drains and stops every cart.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	carts := m.carts
	m.carts = make(map[string]*Store)
	m.mu.Unlock()

	var errs []error
	for _, c := range carts {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
