package customer_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semanticallynull/bikeshare-backend/customer"
	"github.com/semanticallynull/bikeshare-backend/internal/auth0"
	"github.com/semanticallynull/bikeshare-backend/internal/fakes"
)

func TestResolveCreatesAndFillsProfile(t *testing.T) {
	store := fakes.NewStore()
	client := auth0.NewFakeClient()
	client.AddUser("token-1", &auth0.UserInfo{Sub: "auth0|1", Email: "rider@example.com", Name: "Rider One"})
	accounts := customer.NewAccounts(store, client, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	cust, err := accounts.Resolve(ctx, "auth0|1", "token-1")
	require.NoError(t, err)
	assert.Equal(t, "rider@example.com", cust.Email.String)
	assert.Equal(t, "Rider One", cust.Name.String)

	again, err := accounts.Resolve(ctx, "auth0|1", "token-1")
	require.NoError(t, err)
	assert.Equal(t, cust.ID, again.ID)
	assert.Equal(t, 1, client.Calls, "profile is only fetched for new customers")

	n, err := accounts.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestResolveWithoutProfile(t *testing.T) {
	store := fakes.NewStore()
	accounts := customer.NewAccounts(store, auth0.NewFakeClient(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	cust, err := accounts.Resolve(context.Background(), "auth0|2", "unknown-token")
	require.NoError(t, err)
	assert.False(t, cust.Email.Valid)

	got, err := accounts.Get(context.Background(), cust.ID)
	require.NoError(t, err)
	assert.Equal(t, "auth0|2", got.Auth0ID)
}
