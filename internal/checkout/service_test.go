package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/jeffersonhds/storefront/internal/account"
	"github.com/jeffersonhds/storefront/internal/apperr"
	"github.com/jeffersonhds/storefront/internal/domain"
	"github.com/jeffersonhds/storefront/internal/orders"
	"github.com/jeffersonhds/storefront/internal/remote"
	"github.com/jeffersonhds/storefront/internal/retry"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCart struct {
	m       sync.RWMutex
	lines   []domain.CartLine
	cleared int
}

func (c *mockCart) Lines() []domain.CartLine {
	c.m.RLock()
	defer c.m.RUnlock()
	return append([]domain.CartLine(nil), c.lines...)
}

func (c *mockCart) Clear() {
	c.m.Lock()
	defer c.m.Unlock()
	c.lines = nil
	c.cleared++
}

type mockRemote struct {
	m     sync.RWMutex
	errs  []error
	calls int
	items []domain.CheckoutItem
}

func (r *mockRemote) CreateCheckoutSession(ctx context.Context, items []domain.CheckoutItem, customer domain.CustomerInfo) (*domain.CheckoutSession, error) {
	r.m.Lock()
	defer r.m.Unlock()
	r.calls++
	r.items = items
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		return nil, err
	}
	return &domain.CheckoutSession{PaymentToken: "pi_123", EphemeralKey: "ek_1", CustomerRef: "cus_1"}, nil
}

type staticIdentity domain.Identity

func (s staticIdentity) Current(context.Context) domain.Identity { return domain.Identity(s) }

type failingCrediter struct{}

func (failingCrediter) CreditPoints(context.Context, string, int64) error {
	return errors.New("permission denied")
}

type failingOrders struct{}

func (failingOrders) SaveOrder(context.Context, domain.Order) (string, error) {
	return "", &remote.StatusError{Service: "orders", Code: http.StatusServiceUnavailable}
}

type recordingWriter struct {
	m    sync.RWMutex
	msgs []kafka.Message
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.m.Lock()
	defer w.m.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

var customer = domain.CustomerInfo{Name: "Maria", Address: "Rua A, 10", City: "Recife", PhoneNumber: "81999990000"}

func line(id string, price string, qty int) domain.CartLine {
	return domain.CartLine{ProductID: id, Name: "product " + id, UnitPrice: decimal.RequireFromString(price), Quantity: qty}
}

type fixture struct {
	svc    *Service
	cart   *mockCart
	remote *mockRemote
	orders *orders.MemorySource
	users  *account.MemoryUsers
	writer *recordingWriter
}

func newFixture(t *testing.T, userID string, opts ...Option) *fixture {
	t.Helper()
	log, _ := logtest.NewNullLogger()
	f := &fixture{
		cart:   &mockCart{lines: []domain.CartLine{line("a", "99.90", 2), line("b", "15.00", 1)}},
		remote: &mockRemote{},
		orders: orders.NewMemorySource(),
		users:  account.NewMemoryUsers(),
		writer: &recordingWriter{},
	}
	if userID != "" {
		require.NoError(t, f.users.Create(context.Background(), domain.User{ID: userID, Name: "Maria"}))
	}
	opts = append([]Option{
		WithPolicy(retry.Policy{MaxAttempts: 3, Timeout: time.Second, Backoff: time.Millisecond}),
		WithPublisher(NewKafkaPublisherWithWriter(f.writer)),
	}, opts...)
	f.svc = NewService(f.remote, orders.NewPager(f.orders, log), account.NewProfiles(f.users, log),
		staticIdentity{UserID: userID}, log, opts...)
	return f
}

func TestLoyaltyPoints(t *testing.T) {
	tests := []struct {
		total string
		want  int64
	}{
		{"0", 0},
		{"9.99", 0},
		{"10", 1},
		{"214.80", 21},
		{"-50", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LoyaltyPoints(decimal.RequireFromString(tt.total)), tt.total)
	}
}

func TestShippingCost(t *testing.T) {
	assert.True(t, ShippingCost(decimal.NewFromInt(5)).IsZero())
	assert.Equal(t, "30", ShippingCost(decimal.NewFromInt(6)).String())
	assert.Equal(t, "36.5", ShippingCost(decimal.RequireFromString("7.3")).String())
}

func TestBegin(t *testing.T) {
	f := newFixture(t, "u1")

	p, err := f.svc.Begin(context.Background(), f.cart, customer, nil)
	require.NoError(t, err)
	assert.Equal(t, "pi_123", p.Session.PaymentToken)
	assert.Equal(t, "214.8", p.Total.String())
	assert.NotEmpty(t, p.CheckoutID)
	assert.Equal(t, []domain.CheckoutItem{{ID: "a", Quantity: 2}, {ID: "b", Quantity: 1}}, f.remote.items)
}

func TestBegin_Preconditions(t *testing.T) {
	f := newFixture(t, "")
	_, err := f.svc.Begin(context.Background(), f.cart, customer, nil)
	assert.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(err))
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	f = newFixture(t, "u1")
	f.cart.Clear()
	_, err = f.svc.Begin(context.Background(), f.cart, customer, nil)
	assert.ErrorIs(t, err, ErrEmptyCart)

	f = newFixture(t, "u1")
	bad := customer
	bad.PhoneNumber = ""
	_, err = f.svc.Begin(context.Background(), f.cart, bad, nil)
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))
	assert.Equal(t, 0, f.remote.calls)
}

func TestBegin_RetriesTransientFailure(t *testing.T) {
	f := newFixture(t, "u1")
	f.remote.errs = []error{&remote.StatusError{Service: "payment", Code: http.StatusBadGateway}}

	var states []retry.State
	p, err := f.svc.Begin(context.Background(), f.cart, customer, func(s retry.State) { states = append(states, s) })
	require.NoError(t, err)
	assert.NotNil(t, p)
	assert.Equal(t, 2, f.remote.calls)
	assert.Len(t, states, 1)
}

func TestComplete_SavesOrderCreditsPointsClearsCart(t *testing.T) {
	f := newFixture(t, "u1")
	ctx := context.Background()
	p, err := f.svc.Begin(ctx, f.cart, customer, nil)
	require.NoError(t, err)

	res, err := f.svc.Complete(ctx, domain.PaymentCompleted, p)
	require.NoError(t, err)

	assert.NotEmpty(t, res.OrderID)
	assert.Equal(t, int64(21), res.Points)
	assert.False(t, res.PointsError)
	assert.Equal(t, 1, f.cart.cleared)

	u, err := f.users.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 21, u.Points)

	o, err := f.orders.GetOrder(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, "u1", o.UserID)
	assert.Len(t, o.Items, 2)
	assert.Equal(t, "Rua A, 10, Recife", o.DeliveryAddress)

	require.Len(t, f.writer.msgs, 1)
	var ev domain.CheckoutEvent
	require.NoError(t, json.Unmarshal(f.writer.msgs[0].Value, &ev))
	assert.Equal(t, "u1", ev.UserID)
	assert.Equal(t, res.OrderID, ev.OrderID)
	assert.Equal(t, p.CheckoutID, string(f.writer.msgs[0].Key))
}

func TestComplete_CanceledOrFailedLeavesCart(t *testing.T) {
	for _, outcome := range []domain.PaymentOutcome{domain.PaymentCanceled, domain.PaymentFailed} {
		f := newFixture(t, "u1")
		p, err := f.svc.Begin(context.Background(), f.cart, customer, nil)
		require.NoError(t, err)

		res, err := f.svc.Complete(context.Background(), outcome, p)
		require.NoError(t, err)
		assert.Empty(t, res.OrderID)
		assert.Equal(t, 0, f.cart.cleared)
		assert.Empty(t, f.writer.msgs)
	}
}

func TestComplete_InvalidOutcome(t *testing.T) {
	f := newFixture(t, "u1")
	_, err := f.svc.Complete(context.Background(), "refunded", &Pending{})
	assert.ErrorIs(t, err, ErrInvalidOutcome)
}

func TestComplete_PointsFailureKeepsOrder(t *testing.T) {
	f := newFixture(t, "u1")
	log, _ := logtest.NewNullLogger()
	f.svc = NewService(f.remote, orders.NewPager(f.orders, log), failingCrediter{}, staticIdentity{UserID: "u1"}, log)
	ctx := context.Background()
	p, err := f.svc.Begin(ctx, f.cart, customer, nil)
	require.NoError(t, err)

	res, err := f.svc.Complete(ctx, domain.PaymentCompleted, p)
	require.NoError(t, err)
	assert.True(t, res.PointsError)
	assert.Equal(t, PointsErrorMessage, res.Message)
	assert.NotEmpty(t, res.OrderID)
	assert.Equal(t, 1, f.cart.cleared)
}

func TestComplete_AnonymousPendingGetsNoPoints(t *testing.T) {
	f := newFixture(t, "u1")
	ctx := context.Background()
	p := &Pending{CheckoutID: "c1", Lines: []domain.CartLine{line("a", "100", 1)}, Total: decimal.NewFromInt(100), cart: f.cart}

	res, err := f.svc.Complete(ctx, domain.PaymentCompleted, p)
	require.NoError(t, err)
	assert.Zero(t, res.Points)

	o, err := f.orders.GetOrder(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.AnonymousUserID, o.UserID)
}

func TestComplete_OrderSaveFailureStillClearsCart(t *testing.T) {
	f := newFixture(t, "u1")
	log, _ := logtest.NewNullLogger()
	f.svc = NewService(f.remote, failingOrders{}, account.NewProfiles(f.users, log), staticIdentity{UserID: "u1"}, log)
	ctx := context.Background()
	p, err := f.svc.Begin(ctx, f.cart, customer, nil)
	require.NoError(t, err)

	res, err := f.svc.Complete(ctx, domain.PaymentCompleted, p)
	require.NoError(t, err)
	assert.True(t, res.OrderError)
	assert.Equal(t, "server error (code 503)", res.Message)
	assert.Equal(t, 1, f.cart.cleared)
}
