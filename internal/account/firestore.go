package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/jeffersonhds/storefront/internal/domain"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreUsers stores profiles in the "users" collection keyed by the auth uid.
type FirestoreUsers struct {
	client *firestore.Client
}

func NewFirestoreUsers(client *firestore.Client) *FirestoreUsers {
	return &FirestoreUsers{client: client}
}

func (r *FirestoreUsers) col() *firestore.CollectionRef {
	return r.client.Collection("users")
}

func (r *FirestoreUsers) doc(id string) (*firestore.DocumentRef, error) {
	if r.client == nil {
		return nil, errors.New("firestore client is nil")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrInvalidID
	}
	return r.col().Doc(id), nil
}

func (r *FirestoreUsers) Get(ctx context.Context, id string) (*domain.User, error) {
	ref, err := r.doc(id)
	if err != nil {
		return nil, err
	}
	snap, err := ref.Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	var u domain.User
	if err := snap.DataTo(&u); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", id, err)
	}
	u.ID = ref.ID
	return &u, nil
}

func (r *FirestoreUsers) Create(ctx context.Context, u domain.User) error {
	ref, err := r.doc(u.ID)
	if err != nil {
		return err
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	if u.Favorites == nil {
		u.Favorites = []string{}
	}
	if _, err := ref.Set(ctx, u); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *FirestoreUsers) UpdateName(ctx context.Context, id, name string) error {
	return r.update(ctx, id, firestore.Update{Path: "name", Value: name})
}

func (r *FirestoreUsers) IncrementPoints(ctx context.Context, id string, points int64) error {
	if points <= 0 {
		return nil
	}
	return r.update(ctx, id, firestore.Update{Path: "points", Value: firestore.Increment(points)})
}

func (r *FirestoreUsers) Favorites(ctx context.Context, id string) ([]string, error) {
	u, err := r.Get(ctx, id)
	if err != nil || u == nil {
		return nil, err
	}
	return u.Favorites, nil
}

func (r *FirestoreUsers) UpdateFavorites(ctx context.Context, id string, favorites []string) error {
	if favorites == nil {
		favorites = []string{}
	}
	return r.update(ctx, id, firestore.Update{Path: "favorites", Value: favorites})
}

func (r *FirestoreUsers) update(ctx context.Context, id string, updates ...firestore.Update) error {
	ref, err := r.doc(id)
	if err != nil {
		return err
	}
	if _, err := ref.Update(ctx, updates); err != nil {
		if status.Code(err) == codes.NotFound {
			return ErrUserNotFound
		}
		return fmt.Errorf("update user %s: %w", id, err)
	}
	return nil
}
