// Package bike tracks bike availability and its transitions.
package bike

import (
	"database/sql"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/semanticallynull/bikeshare-backend/geo"
)

// Bike represents a bike which can be unlocked and ridden.
type Bike struct {
	// ID is an internal identifier for a bike
	ID uuid.UUID `db:"id"`
	// Code is the short label printed on the bike (e.g. "S1"). Riders use it to
	// request an unlock code.
	Code string `db:"code"`

	Available bool `db:"available"`

	// Location holds latitude in X and longitude in Y.
	Location pgtype.Point `db:"location"`

	// UnlockOTP and OTPGeneratedAt describe the outstanding unlock challenge.
	// They are always set and cleared together.
	UnlockOTP      sql.NullString `db:"unlock_otp"`
	OTPGeneratedAt sql.NullTime   `db:"otp_generated_at"`

	// AutoReleaseAt is when an unlocked bike that never started a ride becomes
	// available again.
	AutoReleaseAt sql.NullTime `db:"auto_release_at"`

	// AssignedTo is the rider currently holding the bike.
	AssignedTo *uuid.UUID `db:"assigned_to"`

	StationID   *uuid.UUID `db:"station_id"`
	StationName *string    `db:"station_name"`
}

func (b Bike) Point() geo.Point {
	return geo.Point{Lat: b.Location.P.X, Lng: b.Location.P.Y}
}

// Reservable reports whether the bike is free now, either available or held
// past its auto-release time.
func (b Bike) Reservable(now time.Time) bool {
	return b.Available || (b.AutoReleaseAt.Valid && !b.AutoReleaseAt.Time.After(now))
}

// AvailableInMinutes is the whole-minute countdown until a held bike is
// released automatically. It is nil when no auto-release is pending.
func (b Bike) AvailableInMinutes(now time.Time) *int {
	if b.Available || !b.AutoReleaseAt.Valid {
		return nil
	}
	mins := int(math.Ceil(b.AutoReleaseAt.Time.Sub(now).Minutes()))
	if mins < 0 {
		mins = 0
	}
	return &mins
}

func point(p geo.Point) pgtype.Point {
	return pgtype.Point{P: pgtype.Vec2{X: p.Lat, Y: p.Lng}, Valid: true}
}
