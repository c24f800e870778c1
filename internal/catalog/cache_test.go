package catalog

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jeffersonhds/storefront/internal/apperr"
	"github.com/jeffersonhds/storefront/internal/domain"
	"github.com/jeffersonhds/storefront/internal/remote"
	"github.com/jeffersonhds/storefront/internal/store"
	"github.com/shopspring/decimal"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRemote struct {
	m       sync.RWMutex
	items   []domain.CatalogItem
	byID    map[string]*domain.CatalogItem
	banners []domain.Banner
	err     error
	delay   time.Duration
	calls   atomic.Int32
}

func (m *mockRemote) ListItems(ctx context.Context) ([]domain.CatalogItem, error) {
	m.calls.Add(1)
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.items, nil
}

func (m *mockRemote) GetItem(ctx context.Context, id string) (*domain.CatalogItem, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.byID[id], nil
}

func (m *mockRemote) ListBanners(ctx context.Context) ([]domain.Banner, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.banners, nil
}

func (m *mockRemote) setErr(err error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.err = err
}

func (m *mockRemote) setItems(items ...domain.CatalogItem) {
	m.m.Lock()
	defer m.m.Unlock()
	m.items = items
}

var _ remote.Catalog = (*mockRemote)(nil)

func unreachable() error {
	return fmt.Errorf("get products: %w", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")})
}

func item(id string, price int64) domain.CatalogItem {
	return domain.CatalogItem{ID: id, Name: "item " + id, Price: decimal.NewFromInt(price)}
}

func intPtr(v int) *int { return &v }
func strPtr(v string) *string { return &v }

func newCache(r remote.Catalog) (*Cache, *store.MemoryStore) {
	log, _ := logtest.NewNullLogger()
	s := store.NewMemoryStore()
	return NewCache(r, s, log), s
}

func TestFetchAll_RemoteSuccessRefreshesCache(t *testing.T) {
	r := &mockRemote{items: []domain.CatalogItem{item("a", 10), item("b", 20)}}
	c, _ := newCache(r)
	ctx := context.Background()

	res, err := c.FetchAll(ctx)
	require.NoError(t, err)
	assert.False(t, res.Stale)
	assert.Len(t, res.Items, 2)

	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestFetchAll_TransientFailureServesCache(t *testing.T) {
	r := &mockRemote{items: []domain.CatalogItem{item("a", 10), item("b", 20), item("c", 30)}}
	c, _ := newCache(r)
	ctx := context.Background()

	_, err := c.FetchAll(ctx)
	require.NoError(t, err)

	r.setErr(unreachable())
	res, err := c.FetchAll(ctx)
	require.NoError(t, err)
	assert.True(t, res.Stale)
	assert.Len(t, res.Items, 3)
	assert.True(t, apperr.IsTransient(res.RemoteErr))
}

func TestFetchAll_EmptyCacheReturnsRemoteFailure(t *testing.T) {
	remoteErr := unreachable()
	r := &mockRemote{err: remoteErr}
	c, _ := newCache(r)

	res, err := c.FetchAll(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, remoteErr)
	assert.True(t, apperr.IsTransient(err))
	assert.Equal(t, "no connection, check your network", apperr.UserMessage(err))
	assert.Empty(t, res.Items)
}

func TestFetchAll_EmptyRemoteCatalogIsSuccess(t *testing.T) {
	r := &mockRemote{items: []domain.CatalogItem{}}
	c, _ := newCache(r)

	res, err := c.FetchAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Items)
	assert.False(t, res.Stale)
}

func TestFetchAll_PartialResponseDoesNotShrinkCache(t *testing.T) {
	r := &mockRemote{items: []domain.CatalogItem{item("a", 10), item("b", 20), item("c", 30)}}
	c, _ := newCache(r)
	ctx := context.Background()

	_, err := c.FetchAll(ctx)
	require.NoError(t, err)

	r.setItems(item("a", 11), item("b", 21))
	res, err := c.FetchAll(ctx)
	require.NoError(t, err)
	assert.Len(t, res.Items, 2)

	r.setErr(unreachable())
	res, err = c.FetchAll(ctx)
	require.NoError(t, err)
	require.Len(t, res.Items, 3, "c must survive a refresh that did not include it")

	prices := map[string]string{}
	for _, it := range res.Items {
		prices[it.ID] = it.Price.String()
	}
	assert.Equal(t, "11", prices["a"])
	assert.Equal(t, "30", prices["c"])
}

func TestFetchAll_NormalizesDiscount(t *testing.T) {
	bad := item("a", 100)
	bad.Discount = intPtr(250)
	r := &mockRemote{items: []domain.CatalogItem{bad}}
	c, _ := newCache(r)

	res, err := c.FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, 100, *res.Items[0].Discount)
	assert.True(t, res.Items[0].EffectivePrice().IsZero())
}

func TestFetchAll_ConcurrentCallsShareOneRemoteRequest(t *testing.T) {
	r := &mockRemote{items: []domain.CatalogItem{item("a", 10)}, delay: 50 * time.Millisecond}
	c, _ := newCache(r)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := c.FetchAll(context.Background())
			assert.NoError(t, err)
			assert.Len(t, res.Items, 1)
		}()
	}
	wg.Wait()

	assert.Less(t, r.calls.Load(), int32(10))
}

// gatedRemote holds ListItems until release is closed, then fails as unreachable.
type gatedRemote struct {
	mockRemote
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedRemote) ListItems(ctx context.Context) ([]domain.CatalogItem, error) {
	g.calls.Add(1)
	g.once.Do(func() { close(g.started) })
	select {
	case <-g.release:
		return nil, unreachable()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestFetchAll_CanceledCallerDoesNotFailOthers(t *testing.T) {
	r := &gatedRemote{started: make(chan struct{}), release: make(chan struct{})}
	c, _ := newCache(r)
	require.NoError(t, c.items.PutAll(context.Background(), []domain.CatalogItem{item("a", 10), item("b", 20)}))

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := c.FetchAll(ctxA)
		errA <- err
	}()
	<-r.started

	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := c.FetchAll(context.Background())
		done <- outcome{res, err}
	}()
	// let the second caller join the refresh in flight
	time.Sleep(20 * time.Millisecond)

	cancelA()
	select {
	case err := <-errA:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("canceled caller should return at once")
	}

	close(r.release)
	select {
	case got := <-done:
		require.NoError(t, got.err)
		assert.True(t, got.res.Stale)
		assert.Len(t, got.res.Items, 2)
	case <-time.After(2 * time.Second):
		t.Fatal("second caller never returned")
	}
	assert.Equal(t, int32(1), r.calls.Load(), "both callers share one refresh")
}

func TestFetchOne_RemoteHit(t *testing.T) {
	a := item("a", 10)
	r := &mockRemote{byID: map[string]*domain.CatalogItem{"a": &a}}
	c, s := newCache(r)

	got, err := c.FetchOne(context.Background(), "a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "a", got.ID)

	_, err = s.Get(context.Background(), TableName, "a")
	assert.NoError(t, err, "remote hit must be cached")
}

func TestFetchOne_NotFoundEverywhereIsNil(t *testing.T) {
	r := &mockRemote{byID: map[string]*domain.CatalogItem{}}
	c, _ := newCache(r)

	got, err := c.FetchOne(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFetchOne_RemoteNotFoundFallsBackToStaleCopy(t *testing.T) {
	r := &mockRemote{items: []domain.CatalogItem{item("a", 10)}, byID: map[string]*domain.CatalogItem{}}
	c, _ := newCache(r)
	ctx := context.Background()
	_, err := c.FetchAll(ctx)
	require.NoError(t, err)

	got, err := c.FetchOne(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "a", got.ID)
}

func TestFetchOne_TransientFailure(t *testing.T) {
	r := &mockRemote{items: []domain.CatalogItem{item("a", 10)}}
	c, _ := newCache(r)
	ctx := context.Background()
	_, err := c.FetchAll(ctx)
	require.NoError(t, err)

	r.setErr(unreachable())

	got, err := c.FetchOne(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID)

	_, err = c.FetchOne(ctx, "zzz")
	assert.True(t, apperr.IsTransient(err))
}

func TestClear(t *testing.T) {
	r := &mockRemote{items: []domain.CatalogItem{item("a", 10)}}
	c, _ := newCache(r)
	ctx := context.Background()
	_, err := c.FetchAll(ctx)
	require.NoError(t, err)

	require.NoError(t, c.Clear(ctx))

	r.setErr(unreachable())
	_, err = c.FetchAll(ctx)
	assert.Error(t, err, "cleared cache must not serve anything")
}

func TestQueries(t *testing.T) {
	a := item("a", 10)
	a.Category = strPtr("antenas")
	a.IsNew = true
	b := item("b", 20)
	b.Discount = intPtr(10)
	b.Category = strPtr("cabos")
	d := item("d", 30)
	d.Discount = intPtr(40)

	r := &mockRemote{items: []domain.CatalogItem{a, b, d}}
	c, _ := newCache(r)
	ctx := context.Background()

	res, err := c.ByCategory(ctx, "antenas")
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "a", res.Items[0].ID)

	res, err = c.NewArrivals(ctx)
	require.NoError(t, err)
	require.Len(t, res.Items, 1)

	res, err = c.Discounted(ctx)
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "d", res.Items[0].ID)
	assert.Equal(t, "b", res.Items[1].ID)

	all, err := c.FetchAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all.Items, 3, "filters must not alter later listings")
}

func TestBanners_NoFallback(t *testing.T) {
	r := &mockRemote{banners: []domain.Banner{{ID: "1", Title: "Promo"}}}
	c, _ := newCache(r)

	banners, err := c.Banners(context.Background())
	require.NoError(t, err)
	assert.Len(t, banners, 1)

	r.setErr(unreachable())
	_, err = c.Banners(context.Background())
	assert.True(t, apperr.IsTransient(err))
}
