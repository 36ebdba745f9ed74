// Package customer holds rider accounts, keyed internally by id and
// externally by their Auth0 subject.
package customer

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

type Customer struct {
	ID        uuid.UUID      `db:"id"`
	Auth0ID   string         `db:"auth0_id"`
	Email     sql.NullString `db:"email"`
	Name      sql.NullString `db:"name"`
	CreatedAt time.Time      `db:"created_at"`
}
