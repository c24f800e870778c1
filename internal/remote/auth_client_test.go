package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jeffersonhds/storefront/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthClient_SignIn(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/accounts:signInWithPassword", r.URL.Path)
		assert.Equal(t, "k123", r.URL.Query().Get("key"))

		var req credentialsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "a@b.com", req.Email)
		assert.True(t, req.ReturnSecureToken)

		w.Write([]byte(`{"localId":"uid-1","email":"a@b.com","idToken":"tok"}`))
	}))
	defer srv.Close()

	c := NewAuthClient(srv.URL, "k123", time.Second)
	res, err := c.SignIn(context.Background(), "a@b.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "uid-1", res.UserID)
	assert.Equal(t, "tok", res.IDToken)
}

func TestAuthClient_InvalidCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":400,"message":"INVALID_LOGIN_CREDENTIALS"}}`))
	}))
	defer srv.Close()

	c := NewAuthClient(srv.URL, "k", time.Second)
	_, err := c.SignIn(context.Background(), "a@b.com", "wrong")

	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "INVALID_LOGIN_CREDENTIALS")
}

func TestAuthClient_SendPasswordReset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req oobRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "PASSWORD_RESET", req.RequestType)
		w.Write([]byte(`{"email":"a@b.com"}`))
	}))
	defer srv.Close()

	c := NewAuthClient(srv.URL, "k", time.Second)
	assert.NoError(t, c.SendPasswordReset(context.Background(), "a@b.com"))
}

func TestAuthClient_ServerUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewAuthClient(srv.URL, "k", time.Second)
	_, err := c.SignUp(context.Background(), "a@b.com", "secret1")
	assert.True(t, apperr.IsTransient(err))
}
