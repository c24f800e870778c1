package identity

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/jeffersonhds/storefront/internal/account"
	"github.com/jeffersonhds/storefront/internal/apperr"
	"github.com/jeffersonhds/storefront/internal/domain"
	"github.com/jeffersonhds/storefront/internal/remote"
	"github.com/jeffersonhds/storefront/internal/retry"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockAuth struct {
	m sync.RWMutex
	// failures is consumed one per call before succeeding
	failures []error
	calls    int
	hang     bool
}

func (a *mockAuth) next() error {
	a.m.Lock()
	defer a.m.Unlock()
	a.calls++
	if len(a.failures) == 0 {
		return nil
	}
	err := a.failures[0]
	a.failures = a.failures[1:]
	return err
}

func (a *mockAuth) callCount() int {
	a.m.RLock()
	defer a.m.RUnlock()
	return a.calls
}

func (a *mockAuth) SignIn(ctx context.Context, email, password string) (*remote.AuthResult, error) {
	if a.hang {
		a.next()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err := a.next(); err != nil {
		return nil, err
	}
	return &remote.AuthResult{UserID: "uid-1", Email: email, IDToken: "token"}, nil
}

func (a *mockAuth) SignUp(ctx context.Context, email, password string) (*remote.AuthResult, error) {
	if err := a.next(); err != nil {
		return nil, err
	}
	return &remote.AuthResult{UserID: "uid-2", Email: email, IDToken: "token"}, nil
}

func (a *mockAuth) SendPasswordReset(ctx context.Context, email string) error {
	return a.next()
}

type brokenUsers struct {
	*account.MemoryUsers
}

func (brokenUsers) Create(ctx context.Context, u domain.User) error {
	return &remote.StatusError{Service: "users", Code: http.StatusServiceUnavailable}
}

var fast = retry.Policy{MaxAttempts: 3, Timeout: 50 * time.Millisecond, Backoff: time.Millisecond}

func newService(a remote.Auth, users account.Users) (*AuthService, *Session) {
	log, _ := logtest.NewNullLogger()
	session := NewSession(log)
	return NewAuthService(a, users, session, log, WithPolicies(fast, fast)), session
}

func TestSignIn_Success(t *testing.T) {
	svc, session := newService(&mockAuth{}, account.NewMemoryUsers())

	id, err := svc.SignIn(context.Background(), " maria@example.com ", "secret1", nil)
	require.NoError(t, err)
	assert.Equal(t, "uid-1", id.UserID)
	assert.Equal(t, id, session.Current(context.Background()))
	assert.Equal(t, "token", session.Token())
}

func TestSignIn_ValidatesBeforeRemoteCall(t *testing.T) {
	a := &mockAuth{}
	svc, _ := newService(a, account.NewMemoryUsers())

	_, err := svc.SignIn(context.Background(), "", "", nil)
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))
	assert.Equal(t, 0, a.callCount())
}

func TestSignIn_RetriesTimeoutsAndReportsProgress(t *testing.T) {
	a := &mockAuth{hang: true}
	svc, session := newService(a, account.NewMemoryUsers())

	var states []retry.State
	_, err := svc.SignIn(context.Background(), "maria@example.com", "secret1", func(s retry.State) {
		states = append(states, s)
	})

	var failed *retry.FailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, retry.ExhaustedMessage, failed.Message)
	assert.Equal(t, 3, a.callCount())
	require.Len(t, states, 2)
	assert.Equal(t, "reconnecting, attempt 1/3", states[0].Message)
	assert.True(t, session.Current(context.Background()).IsAnonymous())
}

func TestSignIn_WrongPasswordIsNotRetried(t *testing.T) {
	a := &mockAuth{failures: []error{apperr.E("auth.sign_in", &remote.StatusError{Code: http.StatusBadRequest, Body: "INVALID_PASSWORD"})}}
	svc, _ := newService(a, account.NewMemoryUsers())

	_, err := svc.SignIn(context.Background(), "maria@example.com", "secret1", nil)
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))
	assert.Equal(t, 1, a.callCount())
}

func TestSignUp_CreatesProfile(t *testing.T) {
	users := account.NewMemoryUsers()
	a := &mockAuth{failures: []error{context.DeadlineExceeded}}
	svc, _ := newService(a, users)

	id, err := svc.SignUp(context.Background(), "Maria", "maria@example.com", "secret1", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, a.callCount(), "first attempt timed out")

	u, err := users.Get(context.Background(), id.UserID)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "Maria", u.Name)
	assert.Equal(t, 0, u.Points)
}

func TestSignUp_ProfileFailureKeepsSession(t *testing.T) {
	svc, session := newService(&mockAuth{}, brokenUsers{account.NewMemoryUsers()})

	id, err := svc.SignUp(context.Background(), "Maria", "maria@example.com", "secret1", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProfileNotSaved)
	assert.Equal(t, "uid-2", id.UserID)
	assert.Equal(t, "uid-2", session.Current(context.Background()).UserID)
}

func TestSignUp_Validation(t *testing.T) {
	svc, _ := newService(&mockAuth{}, account.NewMemoryUsers())

	_, err := svc.SignUp(context.Background(), "Jo", "maria@example.com", "123", nil)
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))
}

func TestSendPasswordReset(t *testing.T) {
	a := &mockAuth{}
	svc, _ := newService(a, account.NewMemoryUsers())

	require.NoError(t, svc.SendPasswordReset(context.Background(), "maria@example.com", nil))
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(svc.SendPasswordReset(context.Background(), "nope", nil)))
	assert.Equal(t, 1, a.callCount())
}

func TestSession_SignOutRunsEveryHook(t *testing.T) {
	svc, session := newService(&mockAuth{}, account.NewMemoryUsers())
	ctx := context.Background()
	_, err := svc.SignIn(ctx, "maria@example.com", "secret1", nil)
	require.NoError(t, err)

	var ran []string
	session.OnSignOut(func(ctx context.Context) error {
		ran = append(ran, "cart")
		return errors.New("disk full")
	})
	session.OnSignOut(func(ctx context.Context) error {
		ran = append(ran, "catalog")
		return nil
	})

	err = session.SignOut(ctx)
	assert.Error(t, err)
	assert.Equal(t, []string{"cart", "catalog"}, ran)
	assert.True(t, session.Current(ctx).IsAnonymous())
	assert.Empty(t, session.Token())
}

func TestSession_ContextIdentityWins(t *testing.T) {
	log, _ := logtest.NewNullLogger()
	s := NewSession(log)
	s.set(domain.Identity{UserID: "device-user"}, "tok")

	assert.Equal(t, "device-user", s.Current(context.Background()).UserID)

	ctx := WithIdentity(context.Background(), domain.Identity{UserID: "bearer-user"})
	assert.Equal(t, "bearer-user", s.Current(ctx).UserID)

	ctx = WithIdentity(context.Background(), domain.Identity{})
	assert.True(t, s.Current(ctx).IsAnonymous())
}
