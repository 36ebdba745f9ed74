package bike

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"github.com/semanticallynull/bikeshare-backend/geo"
)

var (
	ErrNotFound     = errors.New("bike not found")
	ErrNotAvailable = errors.New("bike not available")
	ErrCodeTaken    = errors.New("bike with this code already exists")
	ErrInUse        = errors.New("bike is on an ongoing ride")
)

const uniqueViolation = "23505"

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetBikes(ctx context.Context) ([]Bike, error) {
	var bikes []Bike
	err := r.db.SelectContext(ctx, &bikes, getBikes)
	return bikes, err
}

const getBikes = `
SELECT b.*, s.name AS station_name
FROM bikes b
LEFT JOIN stations s ON b.station_id = s.id
ORDER BY b.code
`

func (r *Repository) GetBike(ctx context.Context, id uuid.UUID) (Bike, error) {
	var bike Bike
	err := r.db.GetContext(ctx, &bike, getBike, id)
	if errors.Is(err, sql.ErrNoRows) {
		return bike, ErrNotFound
	}
	return bike, err
}

const getBike = `SELECT * FROM bikes WHERE id = $1`

func (r *Repository) GetBikeByCode(ctx context.Context, code string) (Bike, error) {
	var bike Bike
	err := r.db.GetContext(ctx, &bike, getBikeByCode, code)
	if errors.Is(err, sql.ErrNoRows) {
		return bike, ErrNotFound
	}
	return bike, err
}

const getBikeByCode = `SELECT * FROM bikes WHERE code = $1`

// CreateBike inserts b, filling in its ID when unset.
func (r *Repository) CreateBike(ctx context.Context, b *Bike) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	err := r.db.GetContext(ctx, b, createBike, b.ID, b.Code, b.Available, b.Location.P.X, b.Location.P.Y, b.StationID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrCodeTaken
	}
	return err
}

const createBike = `
INSERT INTO bikes (id, code, available, location, station_id)
VALUES ($1, $2, $3, point($4, $5), $6)
RETURNING *
`

// DeleteBike removes a bike unless an ongoing ride references it.
func (r *Repository) DeleteBike(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var locked uuid.UUID
	err = tx.GetContext(ctx, &locked, lockBike, id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	var ongoing int
	if err = tx.GetContext(ctx, &ongoing, countOngoingRides, id); err != nil {
		return err
	}
	if ongoing > 0 {
		return ErrInUse
	}

	if _, err = tx.ExecContext(ctx, deleteBike, id); err != nil {
		return err
	}
	return tx.Commit()
}

const lockBike = `SELECT id FROM bikes WHERE id = $1 FOR UPDATE`
const countOngoingRides = `SELECT count(*) FROM rides WHERE bike_id = $1 AND status = 'ongoing'`
const deleteBike = `DELETE FROM bikes WHERE id = $1`

// ReserveBike takes the bike for userID in a single conditional update. The
// bike qualifies when it is available, when its unlock hold has lapsed, or
// when userID is the rider holding it after an OTP unlock.
func (r *Repository) ReserveBike(ctx context.Context, id, userID uuid.UUID, now time.Time) (Bike, error) {
	var bike Bike
	err := r.db.GetContext(ctx, &bike, reserveBike, id, userID, now)
	if errors.Is(err, sql.ErrNoRows) {
		return bike, r.missingOr(ctx, id, ErrNotAvailable)
	}
	return bike, err
}

const reserveBike = `
UPDATE bikes
SET available = false, assigned_to = $2, auto_release_at = NULL, unlock_otp = NULL, otp_generated_at = NULL
WHERE id = $1
  AND (available
       OR (auto_release_at IS NOT NULL AND auto_release_at <= $3)
       OR (assigned_to = $2 AND auto_release_at IS NOT NULL))
RETURNING *
`

// ReleaseBike makes the bike available again, dropping any hold, timer and
// challenge. When at is non-nil it becomes the bike's last known location.
func (r *Repository) ReleaseBike(ctx context.Context, id uuid.UUID, at *geo.Point) error {
	var lat, lng sql.NullFloat64
	if at != nil {
		lat = sql.NullFloat64{Float64: at.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: at.Lng, Valid: true}
	}
	res, err := r.db.ExecContext(ctx, releaseBike, id, lat, lng)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

const releaseBike = `
UPDATE bikes
SET available = true, assigned_to = NULL, auto_release_at = NULL, unlock_otp = NULL, otp_generated_at = NULL,
    location = COALESCE(point($2, $3), location)
WHERE id = $1
`

// ReleaseExpired releases every bike whose auto-release time has passed.
func (r *Repository) ReleaseExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, releaseExpired, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const releaseExpired = `
UPDATE bikes
SET available = true, assigned_to = NULL, auto_release_at = NULL
WHERE NOT available AND auto_release_at IS NOT NULL AND auto_release_at <= $1
`

// AssignStation points the bike at a station and moves it to the station's
// coordinates. The bike leaves the bike list of any station it was docked at
// before.
func (r *Repository) AssignStation(ctx context.Context, id, stationID uuid.UUID, at geo.Point) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, assignStation, id, stationID, at.Lat, at.Lng)
	if err != nil {
		return err
	}
	if err := affectedOrNotFound(res); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, leaveOtherStations, id, stationID); err != nil {
		return err
	}
	return tx.Commit()
}

const assignStation = `UPDATE bikes SET station_id = $2, location = point($3, $4) WHERE id = $1`
const leaveOtherStations = `DELETE FROM station_bikes WHERE bike_id = $1 AND station_id <> $2`

// SetOTP records a new unlock challenge. The bike must be available or held
// past its auto-release time, in which case the lapsed hold is dropped.
func (r *Repository) SetOTP(ctx context.Context, id uuid.UUID, code string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, setOTP, id, code, at)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return r.missingOr(ctx, id, ErrNotAvailable)
	}
	return nil
}

const setOTP = `
UPDATE bikes
SET unlock_otp = $2, otp_generated_at = $3, available = true, assigned_to = NULL, auto_release_at = NULL
WHERE id = $1 AND (available OR (auto_release_at IS NOT NULL AND auto_release_at <= $3))
`

// Unlock consumes the challenge code and holds the bike until releaseAt. The
// update only applies while the bike is available and code is still the
// outstanding challenge.
func (r *Repository) Unlock(ctx context.Context, id uuid.UUID, code string, holder *uuid.UUID, releaseAt time.Time) (Bike, error) {
	var bike Bike
	err := r.db.GetContext(ctx, &bike, unlockBike, id, code, holder, releaseAt)
	if errors.Is(err, sql.ErrNoRows) {
		return bike, r.missingOr(ctx, id, ErrNotAvailable)
	}
	return bike, err
}

const unlockBike = `
UPDATE bikes
SET available = false, unlock_otp = NULL, otp_generated_at = NULL, assigned_to = $3, auto_release_at = $4
WHERE id = $1 AND available AND unlock_otp = $2
RETURNING *
`

func (r *Repository) CountBikes(ctx context.Context) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, countBikes)
	return n, err
}

const countBikes = `SELECT count(*) FROM bikes`

// missingOr returns ErrNotFound when no bike has the id, otherwise fallback.
func (r *Repository) missingOr(ctx context.Context, id uuid.UUID, fallback error) error {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, bikeExists, id); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return fallback
}

const bikeExists = `SELECT EXISTS (SELECT 1 FROM bikes WHERE id = $1)`

func affectedOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
