// Package station is the registry of docking stations.
package station

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/semanticallynull/bikeshare-backend/geo"
)

// DefaultCapacity is used when a station is created without one. Capacity is
// advisory; nothing stops more bikes being assigned.
const DefaultCapacity = 10

type Station struct {
	ID   uuid.UUID `db:"id"`
	Name string    `db:"name"`
	// Location holds latitude in X and longitude in Y.
	Location  pgtype.Point `db:"location"`
	Capacity  int          `db:"capacity"`
	CreatedAt time.Time    `db:"created_at"`

	// Bikes lists the bikes docked here in the order they were added.
	Bikes []uuid.UUID `db:"-"`
}

func (s Station) Point() geo.Point {
	return geo.Point{Lat: s.Location.P.X, Lng: s.Location.P.Y}
}

// Nearby is a station ranked by distance from a query point.
type Nearby struct {
	Station
	DistanceKm     float64
	AvailableBikes int
}
