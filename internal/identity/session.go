// Package identity tracks who is signed in and runs the sign-in flows.
package identity

import (
	"context"
	"errors"
	"sync"

	"github.com/jeffersonhds/storefront/internal/domain"
	"github.com/sirupsen/logrus"
)

// Provider answers "who is the current user". Anonymous is a valid answer.
type Provider interface {
	Current(ctx context.Context) domain.Identity
}

// SignOutHook drops per-user local state, e.g. the cart or the catalog cache.
type SignOutHook func(ctx context.Context) error

type Session struct {
	mu       sync.RWMutex
	identity domain.Identity
	token    string
	hooks    []SignOutHook
	log      logrus.FieldLogger
}

func NewSession(log logrus.FieldLogger) *Session {
	return &Session{log: log.WithField("component", "session")}
}

type ctxKey struct{}

// WithIdentity attaches a verified identity to ctx, e.g. from a bearer token.
func WithIdentity(ctx context.Context, id domain.Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func FromContext(ctx context.Context) (domain.Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(domain.Identity)
	return id, ok
}

// Current prefers an identity attached to ctx over the device session.
func (s *Session) Current(ctx context.Context) domain.Identity {
	if id, ok := FromContext(ctx); ok {
		return id
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// Token is the id token of the signed-in user, empty when anonymous.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Session) set(id domain.Identity, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = id
	s.token = token
	s.log.WithField("user_id", id.UserID).Info("signed in")
}

// OnSignOut registers a hook run by SignOut.
func (s *Session) OnSignOut(h SignOutHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, h)
}

// SignOut forgets the identity and runs every hook, even when one fails.
func (s *Session) SignOut(ctx context.Context) error {
	s.mu.Lock()
	prev := s.identity
	s.identity = domain.Identity{}
	s.token = ""
	hooks := append([]SignOutHook(nil), s.hooks...)
	s.mu.Unlock()

	var errs []error
	for _, h := range hooks {
		if err := h(ctx); err != nil {
			s.log.WithError(err).Warn("sign-out hook failed")
			errs = append(errs, err)
		}
	}
	s.log.WithField("user_id", prev.UserID).Info("signed out")
	return errors.Join(errs...)
}
