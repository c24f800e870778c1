package account

import (
	"context"
	"strings"

	"github.com/jeffersonhds/storefront/internal/apperr"
	"github.com/jeffersonhds/storefront/internal/domain"
	"github.com/jeffersonhds/storefront/internal/validation"
	"github.com/sirupsen/logrus"
)

type Profiles struct {
	users Users
	log   logrus.FieldLogger
}

func NewProfiles(users Users, log logrus.FieldLogger) *Profiles {
	return &Profiles{users: users, log: log.WithField("component", "profiles")}
}

// Get returns the profile of id, or a NotFound error.
func (p *Profiles) Get(ctx context.Context, id string) (*domain.User, error) {
	u, err := p.users.Get(ctx, id)
	if err != nil {
		return nil, apperr.E("profile.get", err)
	}
	if u == nil {
		return nil, apperr.New(apperr.KindNotFound, "profile.get", ErrUserNotFound)
	}
	return u, nil
}

func (p *Profiles) Rename(ctx context.Context, id, name string) error {
	name = strings.TrimSpace(name)
	if err := validation.Name(name); err != nil {
		return apperr.New(apperr.KindInvalid, "profile.rename", err)
	}
	if err := p.users.UpdateName(ctx, id, name); err != nil {
		p.log.WithError(err).WithField("user_id", id).Warn("failed to rename user")
		return apperr.E("profile.rename", err)
	}
	return nil
}

// CreditPoints adds loyalty points to id.
func (p *Profiles) CreditPoints(ctx context.Context, id string, points int64) error {
	if points <= 0 {
		return nil
	}
	if err := p.users.IncrementPoints(ctx, id, points); err != nil {
		p.log.WithError(err).WithFields(logrus.Fields{"user_id": id, "points": points}).Error("failed to credit points")
		return apperr.E("profile.points", err)
	}
	p.log.WithFields(logrus.Fields{"user_id": id, "points": points}).Info("points credited")
	return nil
}
