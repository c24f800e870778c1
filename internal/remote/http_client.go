package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jeffersonhds/storefront/internal/apperr"
	"github.com/jeffersonhds/storefront/internal/domain"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type HTTPConfig struct {
	BaseURL string
	// Timeout bounds every request; a hung call must never block a caller forever.
	Timeout            time.Duration
	BreakerMaxFailures uint32
	BreakerOpenTimeout time.Duration
}

// HTTPClient talks JSON to the storefront backend. Requests go through a
// circuit breaker that only counts transient failures.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
	log     logrus.FieldLogger
}

var _ Catalog = (*HTTPClient)(nil)
var _ Checkout = (*HTTPClient)(nil)

func NewHTTPClient(cfg HTTPConfig, log logrus.FieldLogger) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.BreakerMaxFailures == 0 {
		cfg.BreakerMaxFailures = 5
	}
	if cfg.BreakerOpenTimeout <= 0 {
		cfg.BreakerOpenTimeout = 30 * time.Second
	}
	log = log.WithField("component", "remote")

	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "storefront-api",
		MaxRequests: 1,
		Timeout:     cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerMaxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !apperr.IsTransient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()}).Warn("circuit breaker state changed")
		},
	})

	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: breaker,
		log:     log,
	}
}

func (c *HTTPClient) ListItems(ctx context.Context) ([]domain.CatalogItem, error) {
	var items []domain.CatalogItem
	if err := c.getJSON(ctx, "productcatalog", "/api/products", &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *HTTPClient) GetItem(ctx context.Context, id string) (*domain.CatalogItem, error) {
	var item *domain.CatalogItem
	err := c.getJSON(ctx, "productcatalog", "/api/products/"+url.PathEscape(id), &item)
	if apperr.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (c *HTTPClient) ListBanners(ctx context.Context) ([]domain.Banner, error) {
	var banners []domain.Banner
	if err := c.getJSON(ctx, "banners", "/api/banners", &banners); err != nil {
		return nil, err
	}
	return banners, nil
}

type paymentSheetRequest struct {
	Items        []domain.CheckoutItem `json:"items"`
	CustomerInfo domain.CustomerInfo   `json:"customerInfo"`
}

func (c *HTTPClient) CreateCheckoutSession(ctx context.Context, items []domain.CheckoutItem, customer domain.CustomerInfo) (*domain.CheckoutSession, error) {
	body, err := json.Marshal(paymentSheetRequest{Items: items, CustomerInfo: customer})
	if err != nil {
		return nil, fmt.Errorf("marshal payment sheet request: %w", err)
	}
	data, err := c.do(ctx, "checkout", http.MethodPost, "/api/payment-sheet", body)
	if err != nil {
		return nil, err
	}
	var session domain.CheckoutSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("checkout: decode response: %w", err)
	}
	if session.PaymentToken == "" {
		return nil, apperr.Invalid("checkout", "payment sheet response without payment intent")
	}
	return &session, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, service, path string, out interface{}) error {
	data, err := c.do(ctx, service, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", service, err)
	}
	return nil
}

func (c *HTTPClient) do(ctx context.Context, service, method, path string, body []byte) ([]byte, error) {
	data, err := c.breaker.Execute(func() ([]byte, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		payload, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &StatusError{Service: service, Code: resp.StatusCode, Body: truncate(string(payload), 256)}
		}
		return payload, nil
	})
	if err != nil {
		op := fmt.Sprintf("%s %s", method, path)
		classified := apperr.E(op, err)
		c.log.WithError(err).WithFields(logrus.Fields{
			"op":   op,
			"kind": apperr.KindOf(classified).String(),
		}).Debug("remote call failed")
		return nil, classified
	}
	return data, nil
}

// BreakerState exposes the breaker for health reporting.
func (c *HTTPClient) BreakerState() string {
	return c.breaker.State().String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

var errEmptyBaseURL = errors.New("remote: empty base url")

// Validate reports configuration errors before the first call.
func (cfg HTTPConfig) Validate() error {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return errEmptyBaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return fmt.Errorf("remote: invalid base url: %w", err)
	}
	return nil
}
