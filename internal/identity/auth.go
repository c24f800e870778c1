package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/jeffersonhds/storefront/internal/account"
	"github.com/jeffersonhds/storefront/internal/apperr"
	"github.com/jeffersonhds/storefront/internal/domain"
	"github.com/jeffersonhds/storefront/internal/remote"
	"github.com/jeffersonhds/storefront/internal/retry"
	"github.com/jeffersonhds/storefront/internal/validation"
	"github.com/sirupsen/logrus"
)

// ErrProfileNotSaved means the account exists but the profile document could
// not be written; signing in again recreates it.
var ErrProfileNotSaved = errors.New("failed to save profile, try signing in")

// Progress receives "reconnecting" updates while a call is being retried.
type Progress func(retry.State)

type AuthService struct {
	auth    remote.Auth
	users   account.Users
	session *Session
	policy  retry.Policy
	light   retry.Policy
	log     logrus.FieldLogger
}

type AuthOption func(*AuthService)

// WithPolicies overrides the retry policies for auth calls and for the profile
// write that follows sign-up.
func WithPolicies(auth, profile retry.Policy) AuthOption {
	return func(s *AuthService) {
		s.policy = auth
		s.light = profile
	}
}

func NewAuthService(auth remote.Auth, users account.Users, session *Session, log logrus.FieldLogger, opts ...AuthOption) *AuthService {
	s := &AuthService{
		auth:    auth,
		users:   users,
		session: session,
		policy:  retry.Default(),
		light:   retry.Light(),
		log:     log.WithField("component", "auth"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *AuthService) SignIn(ctx context.Context, email, password string, progress Progress) (domain.Identity, error) {
	email = strings.TrimSpace(email)
	if err := validation.SignIn(email, password); err != nil {
		return domain.Identity{}, err
	}

	res, err := retry.Run(ctx, s.policy, func(ctx context.Context) (*remote.AuthResult, error) {
		return s.auth.SignIn(ctx, email, password)
	}, s.report("sign_in", progress))
	if err != nil {
		s.log.WithError(err).Warn("sign in failed")
		return domain.Identity{}, err
	}

	id := domain.Identity{UserID: res.UserID, Email: res.Email}
	s.session.set(id, res.IDToken)
	return id, nil
}

// SignUp creates the account, then the profile document. When only the profile
// write fails the user stays signed in and ErrProfileNotSaved is returned.
func (s *AuthService) SignUp(ctx context.Context, name, email, password string, progress Progress) (domain.Identity, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if err := validation.SignUp(name, email, password); err != nil {
		return domain.Identity{}, err
	}

	res, err := retry.Run(ctx, s.policy, func(ctx context.Context) (*remote.AuthResult, error) {
		return s.auth.SignUp(ctx, email, password)
	}, s.report("sign_up", progress))
	if err != nil {
		s.log.WithError(err).Warn("sign up failed")
		return domain.Identity{}, err
	}
	if res.UserID == "" {
		return domain.Identity{}, apperr.New(apperr.KindUnknown, "auth.sign_up", errors.New("empty user id in sign-up answer"))
	}

	id := domain.Identity{UserID: res.UserID, Email: res.Email}
	if id.Email == "" {
		id.Email = email
	}
	s.session.set(id, res.IDToken)

	_, err = retry.Run(ctx, s.light, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.users.Create(ctx, domain.User{ID: id.UserID, Name: name, Email: id.Email})
	}, s.report("create_profile", progress))
	if err != nil {
		s.log.WithError(err).WithField("user_id", id.UserID).Error("failed to save profile")
		return id, apperr.New(apperr.KindOf(err), "auth.sign_up", errors.Join(ErrProfileNotSaved, err))
	}
	return id, nil
}

func (s *AuthService) SendPasswordReset(ctx context.Context, email string, progress Progress) error {
	email = strings.TrimSpace(email)
	if err := validation.Email(email); err != nil {
		return apperr.New(apperr.KindInvalid, "auth.password_reset", err)
	}
	_, err := retry.Run(ctx, s.policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.auth.SendPasswordReset(ctx, email)
	}, s.report("password_reset", progress))
	return err
}

func (s *AuthService) report(op string, progress Progress) func(retry.State) {
	return func(st retry.State) {
		s.log.WithError(st.LastErr).WithFields(logrus.Fields{
			"op":      op,
			"attempt": st.Attempt,
		}).Warn(st.Message)
		if progress != nil {
			progress(st)
		}
	}
}
