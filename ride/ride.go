// Package ride runs the ride lifecycle: starting a ride on a reserved bike
// and settling it against the operating zone and the station network.
package ride

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusOngoing   Status = "ongoing"
	StatusCompleted Status = "completed"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

type Ride struct {
	ID                   uuid.UUID  `db:"id"`
	UserID               uuid.UUID  `db:"user_id"`
	BikeID               uuid.UUID  `db:"bike_id"`
	StartStationID       *uuid.UUID `db:"start_station_id"`
	DestinationStationID *uuid.UUID `db:"destination_station_id"`

	StartLat float64         `db:"start_lat"`
	StartLng float64         `db:"start_lng"`
	EndLat   sql.NullFloat64 `db:"end_lat"`
	EndLng   sql.NullFloat64 `db:"end_lng"`

	// SelectedDuration is in minutes.
	SelectedDuration int     `db:"selected_duration"`
	EstimatedCost    float64 `db:"estimated_cost"`
	// Distance is in kilometres and only set once the ride is completed.
	Distance sql.NullFloat64 `db:"distance"`

	PaymentStatus PaymentStatus  `db:"payment_status"`
	PaymentRef    sql.NullString `db:"payment_ref"`

	Status        Status  `db:"status"`
	PenaltyAmount float64 `db:"penalty_amount"`
	PenaltyReason string  `db:"penalty_reason"`

	StartTime time.Time    `db:"start_time"`
	EndTime   sql.NullTime `db:"end_time"`
}

// Completion is everything written when a ride ends. It is applied in one
// statement.
type Completion struct {
	EndLat        float64
	EndLng        float64
	EndTime       time.Time
	Distance      float64
	PenaltyAmount float64
	PenaltyReason string
}

// HistoryEntry is a ride as listed in a rider's history.
type HistoryEntry struct {
	Ride
	DestinationStationName sql.NullString `db:"destination_station_name"`
}

// Counts aggregates rides for the admin summary.
type Counts struct {
	Total        int     `db:"total"`
	Ongoing      int     `db:"ongoing"`
	Completed    int     `db:"completed"`
	TotalPenalty float64 `db:"total_penalty"`
}
