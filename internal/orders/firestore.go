package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/jeffersonhds/storefront/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const collection = "orders"

// FirestoreSource reads the "orders" collection written by the mobile app.
type FirestoreSource struct {
	client *firestore.Client
	log    logrus.FieldLogger
}

func NewFirestoreSource(client *firestore.Client, log logrus.FieldLogger) *FirestoreSource {
	return &FirestoreSource{client: client, log: log.WithField("source", "firestore")}
}

func (s *FirestoreSource) ListOrders(ctx context.Context, userID string, before *time.Time, limit int) ([]domain.Order, error) {
	if s.client == nil {
		return nil, errors.New("firestore client is nil")
	}

	q := s.client.Collection(collection).
		Where("userId", "==", userID).
		OrderBy("createdAt", firestore.Desc)
	if before != nil {
		q = q.Where("createdAt", "<", *before)
	}
	q = q.Limit(limit)

	it := q.Documents(ctx)
	defer it.Stop()

	var out []domain.Order
	for {
		doc, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list orders: %w", err)
		}
		o, err := decodeOrder(doc.Ref.ID, doc.Data())
		if err != nil {
			s.log.WithError(err).WithField("order_id", doc.Ref.ID).Warn("skipping malformed order")
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (s *FirestoreSource) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	if s.client == nil {
		return nil, errors.New("firestore client is nil")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrOrderNotFound
	}

	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	o, err := decodeOrder(snap.Ref.ID, snap.Data())
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *FirestoreSource) SaveOrder(ctx context.Context, order domain.Order) (string, error) {
	if s.client == nil {
		return "", errors.New("firestore client is nil")
	}
	ref, _, err := s.client.Collection(collection).Add(ctx, encodeOrder(order))
	if err != nil {
		return "", fmt.Errorf("save order: %w", err)
	}
	return ref.ID, nil
}

func encodeOrder(o domain.Order) map[string]interface{} {
	items := make([]map[string]interface{}, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, map[string]interface{}{
			"productId":   it.ProductID,
			"productName": it.ProductName,
			"quantity":    it.Quantity,
			"unitPrice":   it.UnitPrice.InexactFloat64(),
			"total":       it.Total.InexactFloat64(),
		})
	}
	var createdAt interface{} = firestore.ServerTimestamp
	if !o.CreatedAt.IsZero() {
		createdAt = o.CreatedAt
	}
	data := map[string]interface{}{
		"userId":    o.UserID,
		"status":    domain.RemoteStatusPaid,
		"total":     o.Total.InexactFloat64(),
		"createdAt": createdAt,
		"items":     items,
	}
	if o.DeliveryAddress != "" {
		data["deliveryAddress"] = o.DeliveryAddress
	}
	return data
}

// decodeOrder maps a raw document. Missing optional fields get defaults; a
// missing creation time makes the record unusable for cursor paging.
func decodeOrder(id string, m map[string]interface{}) (domain.Order, error) {
	createdAt, ok := mapGetTime(m, "createdAt")
	if !ok {
		return domain.Order{}, fmt.Errorf("order %s: missing or invalid createdAt", id)
	}

	o := domain.Order{
		ID:                id,
		UserID:            mapGetStr(m, "userId"),
		Status:            domain.ParseOrderStatus(mapGetStr(m, "status")),
		Total:             mapGetDecimal(m, "total"),
		CreatedAt:         createdAt,
		DeliveryAddress:   decodeAddress(m["deliveryAddress"]),
		TrackingCode:      mapGetStr(m, "trackingCode"),
		EstimatedDelivery: mapGetStr(m, "estimatedDelivery"),
		DeliveredDate:     mapGetStr(m, "deliveredDate"),
	}

	raw, _ := m["items"].([]interface{})
	for _, x := range raw {
		im, ok := x.(map[string]interface{})
		if !ok {
			continue
		}
		item := domain.OrderItem{
			ProductID:   mapGetStr(im, "productId"),
			ProductName: mapGetStr(im, "productName"),
			Quantity:    mapGetInt(im, "quantity"),
			UnitPrice:   mapGetDecimal(im, "unitPrice"),
			Total:       mapGetDecimal(im, "total"),
		}
		if item.ProductName == "" {
			item.ProductName = domain.DefaultProductName
		}
		if item.Quantity <= 0 {
			item.Quantity = 1
		}
		o.Items = append(o.Items, item)
	}
	return o, nil
}

// decodeAddress accepts the flat string and the map the app writes.
func decodeAddress(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]interface{}:
		parts := make([]string, 0, 3)
		for _, k := range []string{"address", "neighborhood", "city"} {
			if s := mapGetStr(t, k); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	}
	return ""
}

func mapGetStr(m map[string]interface{}, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func mapGetInt(m map[string]interface{}, key string) int {
	switch t := m[key].(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	default:
		return 0
	}
}

func mapGetDecimal(m map[string]interface{}, key string) decimal.Decimal {
	switch t := m[key].(type) {
	case float64:
		return decimal.NewFromFloat(t)
	case int64:
		return decimal.NewFromInt(t)
	case int:
		return decimal.NewFromInt(int64(t))
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(t))
		if err != nil {
			return decimal.Zero
		}
		return d
	default:
		return decimal.Zero
	}
}

// mapGetTime accepts a timestamp or epoch seconds.
func mapGetTime(m map[string]interface{}, key string) (time.Time, bool) {
	switch t := m[key].(type) {
	case time.Time:
		return t, !t.IsZero()
	case int64:
		return time.Unix(t, 0).UTC(), true
	case float64:
		return time.Unix(int64(t), 0).UTC(), true
	default:
		return time.Time{}, false
	}
}
