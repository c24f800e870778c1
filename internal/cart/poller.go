package cart

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jeffersonhds/storefront/internal/domain"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

const CheckoutTopic = "checkout-outbox"

// Target clears the cart of userID if this device holds one.
type Target interface {
	ClearUser(userID string) bool
}

type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Poller empties a local cart when a checkout for the same user completes on
// another device or through the web shop. Events completed before the poller
// was created are ignored, so an old checkout never wipes a fresh cart.
type Poller struct {
	reader MessageReader
	target Target
	since  time.Time
	log    logrus.FieldLogger
}

// NewPoller joins a consumer group private to deviceID, so every device of the
// user sees every event.
func NewPoller(target Target, deviceID string, log logrus.FieldLogger, brokers ...string) *Poller {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    CheckoutTopic,
		GroupID:  "storefront-cart-" + deviceID,
		MaxBytes: 10e6, // 10MB
	})
	return NewPollerWithReader(reader, target, log)
}

func NewPollerWithReader(reader MessageReader, target Target, log logrus.FieldLogger) *Poller {
	return &Poller{
		reader: reader,
		target: target,
		since:  time.Now(),
		log:    log.WithField("component", "cart-poller"),
	}
}

func (p *Poller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		p.handleNext(ctx)
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		p.log.WithError(err).Warn("error closing reader")
	}
}

func (p *Poller) handleNext(ctx context.Context) {
	m, err := p.reader.ReadMessage(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			p.log.WithError(err).Warn("error reading message")
		}
		return
	}

	var ev domain.CheckoutEvent
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		p.log.WithError(err).Warn("error parsing message")
		return
	}
	if ev.UserID == "" {
		p.log.Warn("missing or invalid user_id")
		return
	}
	if ev.UserID == domain.AnonymousUserID {
		return
	}
	if !ev.CompletedAt.IsZero() && ev.CompletedAt.Before(p.since) {
		p.log.WithField("checkout_id", ev.CheckoutID).Debug("ignoring checkout completed before start")
		return
	}

	if p.target.ClearUser(ev.UserID) {
		p.log.WithField("user_id", ev.UserID).Info("cart cleared after remote checkout")
	}
}
