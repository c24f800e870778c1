package orders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jeffersonhds/storefront/internal/apperr"
	"github.com/jeffersonhds/storefront/internal/domain"
	"github.com/shopspring/decimal"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, src *MemorySource, userID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := src.SaveOrder(context.Background(), domain.Order{
			ID:        fmt.Sprintf("%s-%03d", userID, i),
			UserID:    userID,
			Total:     decimal.NewFromInt(int64(10 * (i + 1))),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}
}

func newPager(src OrderSource) *Pager {
	log, _ := logtest.NewNullLogger()
	return NewPager(src, log)
}

// walk pages until an empty page comes back and counts the requests made.
func walk(t *testing.T, p *Pager, userID string, pageSize int) ([]domain.Order, int) {
	t.Helper()
	ctx := context.Background()
	page, err := p.FirstPage(ctx, userID, pageSize)
	require.NoError(t, err)
	requests := 1

	all := append([]domain.Order(nil), page...)
	for HasMore(page, pageSize) {
		cursor, ok := NextCursor(page)
		require.True(t, ok)
		page, err = p.NextPage(ctx, userID, cursor, pageSize)
		require.NoError(t, err)
		requests++
		for _, o := range page {
			assert.True(t, o.CreatedAt.Before(cursor), "page must be strictly older than its cursor")
		}
		all = append(all, page...)
	}
	return all, requests
}

func TestPager_EnumeratesEveryOrderOnce(t *testing.T) {
	src := NewMemorySource()
	seed(t, src, "u1", 45)
	seed(t, src, "u2", 5)
	p := newPager(src)

	all, requests := walk(t, p, "u1", 20)

	require.Len(t, all, 45)
	assert.Equal(t, 3, requests)
	seen := map[string]bool{}
	for i, o := range all {
		assert.False(t, seen[o.ID], "duplicate %s", o.ID)
		seen[o.ID] = true
		assert.Equal(t, "u1", o.UserID)
		if i > 0 {
			assert.True(t, o.CreatedAt.Before(all[i-1].CreatedAt))
		}
	}
}

func TestPager_ExactMultipleNeedsOneEmptyRoundTrip(t *testing.T) {
	src := NewMemorySource()
	seed(t, src, "u1", 40)
	p := newPager(src)

	all, requests := walk(t, p, "u1", 20)

	assert.Len(t, all, 40)
	// two full pages, then an empty one to learn there is nothing left
	assert.Equal(t, 3, requests)
}

func TestPager_OrdersSharingTheCursorTimeAreSkipped(t *testing.T) {
	src := NewMemorySource()
	ctx := context.Background()
	for i, at := range []time.Time{base, base.Add(time.Minute), base.Add(time.Minute), base.Add(2 * time.Minute)} {
		_, err := src.SaveOrder(ctx, domain.Order{ID: fmt.Sprintf("o%d", i), UserID: "u1", CreatedAt: at})
		require.NoError(t, err)
	}
	p := newPager(src)

	all, requests := walk(t, p, "u1", 2)

	// the page boundary falls between the two orders created at base+1m
	require.Len(t, all, 3)
	assert.Equal(t, 2, requests)
	assert.Equal(t, "o3", all[0].ID)
	assert.Equal(t, "o0", all[2].ID)
	assert.True(t, all[1].ID == "o1" || all[1].ID == "o2")
}

func TestPager_DefaultPageSize(t *testing.T) {
	src := NewMemorySource()
	seed(t, src, "u1", 25)
	p := newPager(src)

	page, err := p.FirstPage(context.Background(), "u1", 0)
	require.NoError(t, err)
	assert.Len(t, page, DefaultPageSize)
	assert.True(t, HasMore(page, 0))
}

func TestPager_EmptyHistory(t *testing.T) {
	p := newPager(NewMemorySource())

	page, err := p.FirstPage(context.Background(), "nobody", 20)
	require.NoError(t, err)
	assert.Empty(t, page)
	assert.False(t, HasMore(page, 20))
	_, ok := NextCursor(page)
	assert.False(t, ok)
}

func TestPager_RequiresUser(t *testing.T) {
	p := newPager(NewMemorySource())

	_, err := p.FirstPage(context.Background(), " ", 20)
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))
}

func TestPager_ByID(t *testing.T) {
	src := NewMemorySource()
	seed(t, src, "u1", 1)
	p := newPager(src)
	ctx := context.Background()

	o, err := p.ByID(ctx, "u1-000")
	require.NoError(t, err)
	assert.Equal(t, "u1", o.UserID)

	_, err = p.ByID(ctx, "missing")
	require.Error(t, err)
	assert.True(t, apperr.IsNotFound(err))
	assert.ErrorIs(t, err, ErrOrderNotFound)
	assert.Equal(t, "not found", apperr.UserMessage(err))
}

func TestPager_SaveOrderAssignsID(t *testing.T) {
	p := newPager(NewMemorySource())
	ctx := context.Background()

	id, err := p.SaveOrder(ctx, domain.Order{UserID: "u1", Total: decimal.NewFromInt(10)})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	o, err := p.ByID(ctx, id)
	require.NoError(t, err)
	assert.False(t, o.CreatedAt.IsZero())
}

type failingSource struct {
	m   sync.RWMutex
	err error
}

func (f *failingSource) ListOrders(ctx context.Context, userID string, before *time.Time, limit int) ([]domain.Order, error) {
	f.m.RLock()
	defer f.m.RUnlock()
	return nil, f.err
}

func (f *failingSource) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	f.m.RLock()
	defer f.m.RUnlock()
	return nil, f.err
}

func (f *failingSource) SaveOrder(ctx context.Context, order domain.Order) (string, error) {
	f.m.RLock()
	defer f.m.RUnlock()
	return "", f.err
}

func TestPager_PropagatesClassifiedFailure(t *testing.T) {
	p := newPager(&failingSource{err: fmt.Errorf("list: %w", context.DeadlineExceeded)})
	ctx := context.Background()

	_, err := p.FirstPage(ctx, "u1", 20)
	require.Error(t, err)
	assert.True(t, apperr.IsTransient(err))

	_, err = p.NextPage(ctx, "u1", base, 20)
	assert.True(t, apperr.IsTransient(err))

	_, err = p.ByID(ctx, "x")
	assert.True(t, apperr.IsTransient(err))

	_, err = p.SaveOrder(ctx, domain.Order{UserID: "u1"})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
