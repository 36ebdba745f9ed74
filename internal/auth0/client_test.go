package auth0

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetUserInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/userinfo" || r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sub":"auth0|1","email":"rider@example.com","name":"Rider One"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)

	info, err := c.GetUserInfo(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "auth0|1", info.Sub)
	assert.Equal(t, "rider@example.com", info.Email)
	assert.Equal(t, "Rider One", info.Name)

	_, err = c.GetUserInfo(context.Background(), "bad")
	assert.ErrorIs(t, err, ErrUserInfoFailed)
}

func TestNewHTTPClientAddsScheme(t *testing.T) {
	assert.Equal(t, "https://tenant.eu.auth0.com", NewHTTPClient("tenant.eu.auth0.com").baseURL)
	assert.Equal(t, "http://localhost:9000", NewHTTPClient("http://localhost:9000/").baseURL)
}
