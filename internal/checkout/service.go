// Package checkout turns the cart into a payment session and, once the payment
// provider reports back, into a saved order with loyalty points.
package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jeffersonhds/storefront/internal/apperr"
	"github.com/jeffersonhds/storefront/internal/domain"
	"github.com/jeffersonhds/storefront/internal/identity"
	"github.com/jeffersonhds/storefront/internal/remote"
	"github.com/jeffersonhds/storefront/internal/retry"
	"github.com/jeffersonhds/storefront/internal/validation"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var (
	ErrEmptyCart      = errors.New("cart is empty, nothing to checkout")
	ErrNotLoggedIn    = errors.New("sign in to checkout")
	ErrInvalidOutcome = errors.New("unknown payment outcome")
)

const (
	Currency           = "BRL"
	PointsErrorMessage = "payment approved but points could not be credited, contact support"
)

type Cart interface {
	Lines() []domain.CartLine
	Clear()
}

type OrderSaver interface {
	SaveOrder(ctx context.Context, order domain.Order) (string, error)
}

type PointsCrediter interface {
	CreditPoints(ctx context.Context, userID string, points int64) error
}

// Pending is a checkout waiting for the payment provider. The lines are frozen
// when the session is created so later cart edits do not change what is paid.
type Pending struct {
	CheckoutID string
	UserID     string
	Session    domain.CheckoutSession
	Lines      []domain.CartLine
	Total      decimal.Decimal
	Customer   domain.CustomerInfo

	cart Cart
}

type Result struct {
	Outcome domain.PaymentOutcome
	OrderID string
	Points  int64
	// PointsError is set when the order was saved but crediting points failed.
	PointsError bool
	// OrderError is set when the payment went through but the order could not
	// be recorded.
	OrderError bool
	Message    string
}

type Service struct {
	remote    remote.Checkout
	orders    OrderSaver
	points    PointsCrediter
	publisher Publisher
	identity  identity.Provider
	policy    retry.Policy
	log       logrus.FieldLogger
	now       func() time.Time
}

type Option func(*Service)

func WithPolicy(p retry.Policy) Option {
	return func(s *Service) { s.policy = p }
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(r remote.Checkout, orders OrderSaver, points PointsCrediter, id identity.Provider, log logrus.FieldLogger, opts ...Option) *Service {
	s := &Service{
		remote:    r,
		orders:    orders,
		points:    points,
		publisher: NopPublisher{},
		identity:  id,
		policy:    retry.Light(),
		log:       log.WithField("component", "checkout"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Begin creates the payment session for cart, which is cleared again by
// Complete once the payment goes through.
func (s *Service) Begin(ctx context.Context, cart Cart, customer domain.CustomerInfo, progress func(retry.State)) (*Pending, error) {
	user := s.identity.Current(ctx)
	if user.IsAnonymous() {
		return nil, apperr.New(apperr.KindUnauthenticated, "checkout.begin", ErrNotLoggedIn)
	}

	lines := cart.Lines()
	if len(lines) == 0 {
		return nil, apperr.New(apperr.KindInvalid, "checkout.begin", ErrEmptyCart)
	}
	if err := validation.Customer(customer); err != nil {
		return nil, err
	}

	items := make([]domain.CheckoutItem, 0, len(lines))
	total := decimal.Zero
	for _, l := range lines {
		items = append(items, domain.CheckoutItem{ID: l.ProductID, Quantity: l.Quantity})
		total = total.Add(l.Subtotal())
	}

	session, err := retry.Run(ctx, s.policy, func(ctx context.Context) (*domain.CheckoutSession, error) {
		return s.remote.CreateCheckoutSession(ctx, items, customer)
	}, progress)
	if err != nil {
		s.log.WithError(err).WithField("user_id", user.UserID).Warn("failed to create checkout session")
		return nil, err
	}

	p := &Pending{
		CheckoutID: uuid.NewString(),
		UserID:     user.UserID,
		Session:    *session,
		Lines:      lines,
		Total:      total,
		Customer:   customer,
		cart:       cart,
	}
	s.log.WithFields(logrus.Fields{"checkout_id": p.CheckoutID, "total": total.String()}).Info("checkout session created")
	return p, nil
}

// Complete applies the outcome reported by the payment provider. Only a
// completed payment saves the order, credits points, clears the cart and
// publishes the checkout event. Failures after the payment are reported on the
// result, never as an error, since the customer has already paid.
func (s *Service) Complete(ctx context.Context, outcome domain.PaymentOutcome, p *Pending) (Result, error) {
	if !outcome.IsValid() {
		return Result{}, apperr.New(apperr.KindInvalid, "checkout.complete", ErrInvalidOutcome)
	}
	if p == nil {
		return Result{}, apperr.Invalid("checkout.complete", "no pending checkout")
	}
	res := Result{Outcome: outcome}
	if outcome != domain.PaymentCompleted {
		s.log.WithFields(logrus.Fields{"checkout_id": p.CheckoutID, "outcome": string(outcome)}).Info("payment not completed")
		return res, nil
	}

	log := s.log.WithField("checkout_id", p.CheckoutID)
	userID := p.UserID
	if userID == "" {
		userID = domain.AnonymousUserID
	}

	order := domain.Order{
		UserID:          userID,
		Status:          domain.OrderStatusConfirmed,
		Items:           domain.OrderItemsFromCart(p.Lines),
		Total:           p.Total,
		CreatedAt:       s.now().UTC(),
		DeliveryAddress: p.Customer.DeliveryAddress(),
	}
	orderID, err := s.orders.SaveOrder(ctx, order)
	if err != nil {
		log.WithError(err).Error("payment completed but order was not saved")
		res.OrderError = true
		res.Message = apperr.UserMessage(err)
	}
	res.OrderID = orderID

	if p.UserID != "" {
		if points := LoyaltyPoints(p.Total); points > 0 {
			if err := s.points.CreditPoints(ctx, p.UserID, points); err != nil {
				log.WithError(err).Error("failed to credit points")
				res.PointsError = true
				res.Message = PointsErrorMessage
			} else {
				res.Points = points
			}
		}
	}

	if p.cart != nil {
		p.cart.Clear()
	}

	ev := domain.CheckoutEvent{
		CheckoutID:  p.CheckoutID,
		OrderID:     orderID,
		UserID:      userID,
		Items:       order.Items,
		TotalAmount: p.Total,
		Currency:    Currency,
		CompletedAt: order.CreatedAt,
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		log.WithError(err).Warn("failed to publish checkout event")
	}

	log.WithFields(logrus.Fields{"order_id": orderID, "points": res.Points}).Info("checkout completed")
	return res, nil
}
