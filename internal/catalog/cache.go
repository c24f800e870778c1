// Package catalog serves catalog items remote-first and falls back to the
// device cache when the backend cannot be reached.
package catalog

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/jeffersonhds/storefront/internal/apperr"
	"github.com/jeffersonhds/storefront/internal/domain"
	"github.com/jeffersonhds/storefront/internal/remote"
	"github.com/jeffersonhds/storefront/internal/store"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const TableName = "catalog_items"

// refreshTimeout bounds a shared refresh, which outlives any single caller.
const refreshTimeout = 30 * time.Second

// Result is a catalog listing. Stale is set when the items came from the
// device cache because the backend failed.
type Result struct {
	Items []domain.CatalogItem
	Stale bool
	// RemoteErr is the failure that caused the fallback, if any.
	RemoteErr error
}

type Cache struct {
	remote remote.Catalog
	items  *store.Table[domain.CatalogItem]
	sfg    singleflight.Group // collapses concurrent refreshes
	log    logrus.FieldLogger
}

func NewCache(r remote.Catalog, s store.Store, log logrus.FieldLogger) *Cache {
	return &Cache{
		remote: r,
		items:  store.NewTable(s, TableName, func(c domain.CatalogItem) string { return c.ID }),
		log:    log.WithField("component", "catalog"),
	}
}

// FetchAll returns the remote catalog and refreshes the cache with it. When the
// backend fails, the cached items are returned instead; an empty cache yields
// the original remote failure so "empty" and "unreachable" stay distinct.
func (c *Cache) FetchAll(ctx context.Context) (Result, error) {
	ch := c.sfg.DoChan("all", func() (interface{}, error) {
		// shared by every waiting caller; the first one leaving must not cancel it
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return c.fetchAll(sctx)
	})

	select {
	case <-ctx.Done():
		return Result{}, apperr.E("catalog.list", ctx.Err())
	case r := <-ch:
		if r.Err != nil {
			return Result{}, r.Err
		}
		res := r.Val.(Result)
		// callers may sort or filter their copy
		res.Items = append([]domain.CatalogItem(nil), res.Items...)
		return res, nil
	}
}

func (c *Cache) fetchAll(ctx context.Context) (Result, error) {
	items, remoteErr := c.remote.ListItems(ctx)
	if remoteErr == nil {
		normalized := make([]domain.CatalogItem, 0, len(items))
		for _, it := range items {
			normalized = append(normalized, it.Normalize())
		}
		if err := c.items.PutAll(ctx, normalized); err != nil {
			// the remote answer is still good; the cache is just older
			c.log.WithError(err).Warn("failed to refresh catalog cache")
		}
		return Result{Items: normalized}, nil
	}

	classified := apperr.E("catalog.list", remoteErr)
	c.log.WithError(remoteErr).WithField("kind", apperr.KindOf(classified).String()).Info("catalog fetch failed, reading cache")

	cached, err := c.cached(ctx)
	if err != nil {
		c.log.WithError(err).Warn("failed to read catalog cache")
		return Result{}, classified
	}
	if len(cached) == 0 {
		return Result{}, classified
	}
	return Result{Items: cached, Stale: true, RemoteErr: classified}, nil
}

// FetchOne looks up a single item. A backend "not found" is not an error: the
// cache is then consulted for a possibly stale copy, and nil, nil means the
// item is unknown everywhere.
func (c *Cache) FetchOne(ctx context.Context, id string) (*domain.CatalogItem, error) {
	item, remoteErr := c.remote.GetItem(ctx, id)
	if apperr.IsNotFound(remoteErr) {
		item, remoteErr = nil, nil
	}
	if remoteErr == nil && item != nil {
		n := item.Normalize()
		if err := c.items.Put(ctx, n); err != nil {
			c.log.WithError(err).WithField("item_id", id).Warn("failed to cache catalog item")
		}
		return &n, nil
	}

	cachedItem, err := c.items.Get(ctx, id)
	switch {
	case err == nil:
		return &cachedItem, nil
	case !errors.Is(err, store.ErrNotFound):
		c.log.WithError(err).WithField("item_id", id).Warn("failed to read cached item")
	}

	if remoteErr == nil {
		return nil, nil
	}
	classified := apperr.E("catalog.get", remoteErr)
	c.log.WithError(remoteErr).WithField("item_id", id).Info("item fetch failed and no cached copy")
	return nil, classified
}

// Clear drops the cached catalog. Called on sign-out.
func (c *Cache) Clear(ctx context.Context) error {
	return c.items.Clear(ctx)
}

// Count is the number of cached items.
func (c *Cache) Count(ctx context.Context) (int, error) {
	items, err := c.cached(ctx)
	return len(items), err
}

func (c *Cache) ByCategory(ctx context.Context, category string) (Result, error) {
	return c.filtered(ctx, func(it domain.CatalogItem) bool { return it.InCategory(category) })
}

func (c *Cache) NewArrivals(ctx context.Context) (Result, error) {
	return c.filtered(ctx, func(it domain.CatalogItem) bool { return it.IsNew })
}

// Discounted returns discounted items, biggest discount first.
func (c *Cache) Discounted(ctx context.Context) (Result, error) {
	res, err := c.filtered(ctx, domain.CatalogItem.HasDiscount)
	if err != nil {
		return res, err
	}
	sort.SliceStable(res.Items, func(i, j int) bool {
		return res.Items[i].DiscountPercent() > res.Items[j].DiscountPercent()
	})
	return res, nil
}

// Banners are not cached; a failure is returned as is.
func (c *Cache) Banners(ctx context.Context) ([]domain.Banner, error) {
	banners, err := c.remote.ListBanners(ctx)
	if err != nil {
		return nil, apperr.E("catalog.banners", err)
	}
	return banners, nil
}

func (c *Cache) filtered(ctx context.Context, keep func(domain.CatalogItem) bool) (Result, error) {
	res, err := c.FetchAll(ctx)
	if err != nil {
		return res, err
	}
	out := res.Items[:0]
	for _, it := range res.Items {
		if keep(it) {
			out = append(out, it)
		}
	}
	res.Items = out
	return res, nil
}

func (c *Cache) cached(ctx context.Context) ([]domain.CatalogItem, error) {
	items, bad, err := c.items.All(ctx)
	if err != nil {
		return nil, err
	}
	for _, b := range bad {
		c.log.WithError(b).Warn("skipping unreadable cached item")
	}
	return items, nil
}
