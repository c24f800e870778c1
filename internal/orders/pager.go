package orders

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jeffersonhds/storefront/internal/apperr"
	"github.com/jeffersonhds/storefront/internal/domain"
	"github.com/sirupsen/logrus"
)

const DefaultPageSize = 20

type Pager struct {
	source OrderSource
	log    logrus.FieldLogger
}

func NewPager(source OrderSource, log logrus.FieldLogger) *Pager {
	return &Pager{source: source, log: log.WithField("component", "orders")}
}

// FirstPage returns the newest orders of userID.
func (p *Pager) FirstPage(ctx context.Context, userID string, pageSize int) ([]domain.Order, error) {
	return p.page(ctx, userID, nil, pageSize)
}

// NextPage returns the orders created strictly before after, which should be
// NextCursor of the previous page.
func (p *Pager) NextPage(ctx context.Context, userID string, after time.Time, pageSize int) ([]domain.Order, error) {
	return p.page(ctx, userID, &after, pageSize)
}

func (p *Pager) page(ctx context.Context, userID string, before *time.Time, pageSize int) ([]domain.Order, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperr.Invalid("orders.list", "user id is required")
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	orders, err := p.source.ListOrders(ctx, userID, before, pageSize)
	if err != nil {
		classified := apperr.E("orders.list", err)
		p.log.WithError(err).WithFields(logrus.Fields{
			"user_id": userID,
			"kind":    apperr.KindOf(classified).String(),
		}).Warn("failed to list orders")
		return nil, classified
	}
	return orders, nil
}

// ByID returns a single order. Unlike listing, a missing order is an error of
// kind NotFound.
func (p *Pager) ByID(ctx context.Context, orderID string) (*domain.Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, apperr.New(apperr.KindNotFound, "orders.get", ErrOrderNotFound)
	}
	o, err := p.source.GetOrder(ctx, orderID)
	if errors.Is(err, ErrOrderNotFound) {
		return nil, apperr.New(apperr.KindNotFound, "orders.get", err)
	}
	if err != nil {
		p.log.WithError(err).WithField("order_id", orderID).Warn("failed to get order")
		return nil, apperr.E("orders.get", err)
	}
	return o, nil
}

// SaveOrder stores a completed order and returns its id.
func (p *Pager) SaveOrder(ctx context.Context, order domain.Order) (string, error) {
	id, err := p.source.SaveOrder(ctx, order)
	if err != nil {
		p.log.WithError(err).WithField("user_id", order.UserID).Error("failed to save order")
		return "", apperr.E("orders.save", err)
	}
	p.log.WithField("order_id", id).Info("order saved")
	return id, nil
}

// HasMore reports whether another page may exist. A page that is exactly full
// may be the last one; the following request then comes back empty.
func HasMore(page []domain.Order, pageSize int) bool {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return len(page) >= pageSize
}

// NextCursor returns the creation time of the last order in page. The cursor
// is a timestamp alone: other orders sharing that exact creation time but
// left off the page are not returned by NextPage.
func NextCursor(page []domain.Order) (time.Time, bool) {
	if len(page) == 0 {
		return time.Time{}, false
	}
	return page[len(page)-1].CreatedAt, true
}
