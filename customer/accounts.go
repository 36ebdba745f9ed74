package customer

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/semanticallynull/bikeshare-backend/internal/auth0"
)

// Store is the persistence Accounts needs. *Repository implements it.
type Store interface {
	GetCustomer(ctx context.Context, id uuid.UUID) (*Customer, error)
	GetCustomerByAuth0ID(ctx context.Context, auth0ID string) (*Customer, error)
	CreateCustomer(ctx context.Context, auth0ID string) (*Customer, error)
	UpdateProfile(ctx context.Context, auth0ID, email, name string) error
	CountCustomers(ctx context.Context) (int, error)
}

var _ Store = (*Repository)(nil)

// Accounts resolves authenticated subjects to customers.
type Accounts struct {
	store  Store
	auth0  auth0.Client
	logger *slog.Logger
}

// NewAccounts returns Accounts. client may be nil, in which case profiles are
// never filled from Auth0.
func NewAccounts(store Store, client auth0.Client, logger *slog.Logger) *Accounts {
	return &Accounts{store: store, auth0: client, logger: logger}
}

// Resolve returns the customer for auth0ID, creating it on first sight. A
// new customer's email and name are copied from Auth0's userinfo when an
// access token is available; failing to do so is not an error.
func (a *Accounts) Resolve(ctx context.Context, auth0ID, accessToken string) (*Customer, error) {
	cust, err := a.store.GetCustomerByAuth0ID(ctx, auth0ID)
	if err == nil {
		return cust, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	cust, err = a.store.CreateCustomer(ctx, auth0ID)
	if err != nil {
		return nil, err
	}
	if a.auth0 == nil || accessToken == "" {
		return cust, nil
	}

	info, err := a.auth0.GetUserInfo(ctx, accessToken)
	if err != nil {
		a.logger.WarnContext(ctx, "failed to fetch profile", "auth0_id", auth0ID, "error", err)
		return cust, nil
	}
	if err := a.store.UpdateProfile(ctx, auth0ID, info.Email, info.Name); err != nil {
		a.logger.WarnContext(ctx, "failed to store profile", "auth0_id", auth0ID, "error", err)
		return cust, nil
	}
	cust.Email.String, cust.Email.Valid = info.Email, info.Email != ""
	cust.Name.String, cust.Name.Valid = info.Name, info.Name != ""
	return cust, nil
}

func (a *Accounts) Get(ctx context.Context, id uuid.UUID) (*Customer, error) {
	return a.store.GetCustomer(ctx, id)
}

func (a *Accounts) Count(ctx context.Context) (int, error) {
	return a.store.CountCustomers(ctx)
}
