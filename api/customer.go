package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/semanticallynull/bikeshare-backend/customer"
	"github.com/semanticallynull/bikeshare-backend/internal/middleware"
)

type customerResponse struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email,omitempty"`
	Name  string    `json:"name,omitempty"`
}

func toCustomerResponse(c *customer.Customer) customerResponse {
	return customerResponse{
		ID:    c.ID,
		Email: c.Email.String,
		Name:  c.Name.String,
	}
}

// meHandler returns the customer behind the bearer token, creating it on
// first sight.
func (a *API) meHandler(c *gin.Context) {
	auth0ID, ok := middleware.GetAuth0ID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHORIZED", "message": "Authentication required"})
		return
	}

	cust, err := a.svc.Accounts.Resolve(c, auth0ID, middleware.AccessToken(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCustomerResponse(cust))
}
