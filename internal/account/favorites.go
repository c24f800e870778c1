package account

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jeffersonhds/storefront/internal/apperr"
	"github.com/sirupsen/logrus"
)

var ErrNotSignedIn = errors.New("account: sign in to keep favorites")

// SyncErrorMessage is shown when a favorite toggle could not be saved and was
// rolled back.
const SyncErrorMessage = "failed to sync favorites, check your connection"

// Favorites is the customer's favorite set. Toggles apply locally at once and
// are written in the background; a failed write reverts the toggle and is
// reported on SyncErrors.
type Favorites struct {
	users  Users
	userID string
	log    logrus.FieldLogger

	mu  sync.RWMutex
	ids map[string]struct{}

	writeMu sync.Mutex // one remote write at a time, each sending the newest set
	wg      sync.WaitGroup
	errs    chan error
	timeout time.Duration
}

func NewFavorites(users Users, userID string, log logrus.FieldLogger) *Favorites {
	return &Favorites{
		users:   users,
		userID:  userID,
		log:     log.WithFields(logrus.Fields{"component": "favorites", "user_id": userID}),
		ids:     make(map[string]struct{}),
		errs:    make(chan error, 1),
		timeout: 20 * time.Second,
	}
}

// Load replaces the local set with the stored one.
func (f *Favorites) Load(ctx context.Context) error {
	if f.userID == "" {
		return nil
	}
	list, err := f.users.Favorites(ctx, f.userID)
	if err != nil {
		f.log.WithError(err).Warn("failed to load favorites")
		return apperr.E("favorites.load", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = make(map[string]struct{}, len(list))
	for _, id := range list {
		f.ids[id] = struct{}{}
	}
	return nil
}

func (f *Favorites) Contains(productID string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.ids[productID]
	return ok
}

// IDs returns the favorite product ids, sorted.
func (f *Favorites) IDs() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.idsLocked()
}

func (f *Favorites) idsLocked() []string {
	out := make([]string, 0, len(f.ids))
	for id := range f.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Toggle flips productID and returns whether it is now a favorite.
func (f *Favorites) Toggle(productID string) (bool, error) {
	if f.userID == "" {
		return false, ErrNotSignedIn
	}
	added := f.flip(productID)

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		f.sync(productID, added)
	}()
	return added, nil
}

// SyncErrors delivers the latest failed toggle. Older unread failures are
// dropped.
func (f *Favorites) SyncErrors() <-chan error {
	return f.errs
}

// Wait blocks until every pending write has finished.
func (f *Favorites) Wait() {
	f.wg.Wait()
}

func (f *Favorites) flip(productID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.ids[productID]; ok {
		delete(f.ids, productID)
		return false
	}
	f.ids[productID] = struct{}{}
	return true
}

// undo reverts one toggle. Later toggles of the same product stay applied.
func (f *Favorites) undo(productID string, added bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if added {
		delete(f.ids, productID)
		return
	}
	f.ids[productID] = struct{}{}
}

func (f *Favorites) sync(productID string, added bool) {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	err := f.users.UpdateFavorites(ctx, f.userID, f.IDs())
	if err == nil {
		return
	}

	f.log.WithError(err).WithField("product_id", productID).Error("failed to save favorite, rolling back")
	f.undo(productID, added)

	select {
	case <-f.errs:
	default:
	}
	f.errs <- apperr.E("favorites.toggle", err)
}

// Registry keeps one loaded Favorites per signed-in user.
type Registry struct {
	users  Users
	log    logrus.FieldLogger
	mu     sync.Mutex
	byUser map[string]*Favorites
}

func NewRegistry(users Users, log logrus.FieldLogger) *Registry {
	return &Registry{users: users, log: log, byUser: make(map[string]*Favorites)}
}

// For returns the favorites of userID, loading them on first use. A failed
// load is not cached.
func (r *Registry) For(ctx context.Context, userID string) (*Favorites, error) {
	if userID == "" {
		return nil, apperr.New(apperr.KindUnauthenticated, "favorites.for", ErrNotSignedIn)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.byUser[userID]; ok {
		return f, nil
	}
	f := NewFavorites(r.users, userID, r.log)
	if err := f.Load(ctx); err != nil {
		return nil, err
	}
	r.byUser[userID] = f
	return f, nil
}

// Reset waits for pending writes and forgets every loaded set.
func (r *Registry) Reset(ctx context.Context) error {
	r.mu.Lock()
	loaded := r.byUser
	r.byUser = make(map[string]*Favorites)
	r.mu.Unlock()

	for _, f := range loaded {
		f.Wait()
	}
	return nil
}
