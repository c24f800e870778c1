package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jeffersonhds/storefront/internal/apperr"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const defaultIdentityToolkitURL = "https://identitytoolkit.googleapis.com/v1"

// AuthClient signs users in against the Firebase Identity Toolkit REST API.
type AuthClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

var _ Auth = (*AuthClient)(nil)

func NewAuthClient(baseURL, apiKey string, timeout time.Duration) *AuthClient {
	if baseURL == "" {
		baseURL = defaultIdentityToolkitURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &AuthClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type credentialsRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type oobRequest struct {
	RequestType string `json:"requestType"`
	Email       string `json:"email"`
}

type identityError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *AuthClient) SignIn(ctx context.Context, email, password string) (*AuthResult, error) {
	var res AuthResult
	err := c.post(ctx, "accounts:signInWithPassword", credentialsRequest{Email: email, Password: password, ReturnSecureToken: true}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *AuthClient) SignUp(ctx context.Context, email, password string) (*AuthResult, error) {
	var res AuthResult
	err := c.post(ctx, "accounts:signUp", credentialsRequest{Email: email, Password: password, ReturnSecureToken: true}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *AuthClient) SendPasswordReset(ctx context.Context, email string) error {
	return c.post(ctx, "accounts:sendOobCode", oobRequest{RequestType: "PASSWORD_RESET", Email: email}, nil)
}

func (c *AuthClient) post(ctx context.Context, method string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("auth: marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s?key=%s", c.baseURL, method, url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.E("auth."+method, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.E("auth."+method, err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(payload))
		var ie identityError
		if json.Unmarshal(payload, &ie) == nil && ie.Error.Message != "" {
			msg = ie.Error.Message
		}
		return apperr.E("auth."+method, &StatusError{Service: "auth", Code: resp.StatusCode, Body: msg})
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("auth: decode response: %w", err)
	}
	return nil
}
