package ride

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

var (
	ErrNotFound         = errors.New("ride not found")
	ErrAlreadyCompleted = errors.New("ride already completed")
	ErrRideInProgress   = errors.New("bike already has a ride in progress")
	ErrNoRideInProgress = errors.New("no rides in progress")
)

const uniqueViolation = "23505"

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{
		db: db,
	}
}

func (r *Repository) CreateRide(ctx context.Context, ride *Ride) error {
	err := r.db.GetContext(ctx, ride, createRide,
		ride.ID, ride.UserID, ride.BikeID, ride.StartStationID, ride.DestinationStationID,
		ride.StartLat, ride.StartLng, ride.SelectedDuration, ride.EstimatedCost,
		ride.PaymentStatus, ride.Status, ride.StartTime)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrRideInProgress
	}
	return err
}

const createRide = `
INSERT INTO rides (id, user_id, bike_id, start_station_id, destination_station_id,
                   start_lat, start_lng, selected_duration, estimated_cost,
                   payment_status, status, start_time)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING *
`

func (r *Repository) GetRide(ctx context.Context, id uuid.UUID) (Ride, error) {
	var ride Ride
	err := r.db.GetContext(ctx, &ride, getRide, id)
	if errors.Is(err, sql.ErrNoRows) {
		return ride, ErrNotFound
	}
	return ride, err
}

const getRide = `SELECT * FROM rides WHERE id = $1`

// CompleteRide ends an ongoing ride. Status, end fields, distance and penalty
// are written by a single statement that only matches ongoing rides.
func (r *Repository) CompleteRide(ctx context.Context, id uuid.UUID, c Completion) (Ride, error) {
	var ride Ride
	err := r.db.GetContext(ctx, &ride, completeRide,
		id, c.EndLat, c.EndLng, c.EndTime, c.Distance, c.PenaltyAmount, c.PenaltyReason)
	if !errors.Is(err, sql.ErrNoRows) {
		return ride, err
	}

	var status Status
	err = r.db.GetContext(ctx, &status, getRideStatus, id)
	if errors.Is(err, sql.ErrNoRows) {
		return ride, ErrNotFound
	}
	if err != nil {
		return ride, err
	}
	return ride, ErrAlreadyCompleted
}

const completeRide = `
UPDATE rides
SET end_lat = $2, end_lng = $3, end_time = $4, status = 'completed',
    distance = $5, penalty_amount = $6, penalty_reason = $7
WHERE id = $1 AND status = 'ongoing'
RETURNING *
`

const getRideStatus = `SELECT status FROM rides WHERE id = $1`

// MarkPaid records a confirmed payment. It applies whatever the ride status,
// so a confirmation arriving after the ride ended is still kept.
func (r *Repository) MarkPaid(ctx context.Context, id uuid.UUID, ref string) error {
	res, err := r.db.ExecContext(ctx, markPaid, id, ref)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const markPaid = `UPDATE rides SET payment_status = 'paid', payment_ref = $2 WHERE id = $1`

func (r *Repository) GetRidesByUser(ctx context.Context, userID uuid.UUID) ([]HistoryEntry, error) {
	var rides []HistoryEntry
	err := r.db.SelectContext(ctx, &rides, getRidesByUser, userID)
	return rides, err
}

const getRidesByUser = `
SELECT r.*, s.name AS destination_station_name
FROM rides r
LEFT JOIN stations s ON r.destination_station_id = s.id
WHERE r.user_id = $1
ORDER BY r.start_time DESC
`

func (r *Repository) GetRides(ctx context.Context) ([]Ride, error) {
	var rides []Ride
	err := r.db.SelectContext(ctx, &rides, getRides)
	return rides, err
}

const getRides = `SELECT * FROM rides ORDER BY start_time DESC`

func (r *Repository) CurrentRide(ctx context.Context, userID uuid.UUID) (Ride, error) {
	var ride Ride
	err := r.db.GetContext(ctx, &ride, getCurrentRide, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return ride, ErrNoRideInProgress
	}
	return ride, err
}

const getCurrentRide = `
SELECT * FROM rides
WHERE user_id = $1 AND status = 'ongoing'
ORDER BY start_time DESC
LIMIT 1
`

func (r *Repository) CountRides(ctx context.Context) (Counts, error) {
	var c Counts
	err := r.db.GetContext(ctx, &c, countRides)
	return c, err
}

const countRides = `
SELECT count(*) AS total,
       count(*) FILTER (WHERE status = 'ongoing') AS ongoing,
       count(*) FILTER (WHERE status = 'completed') AS completed,
       COALESCE(sum(penalty_amount) FILTER (WHERE status = 'completed'), 0) AS total_penalty
FROM rides
`
