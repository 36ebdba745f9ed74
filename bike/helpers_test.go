package bike_test

import (
	"time"

	"github.com/google/uuid"

	"github.com/semanticallynull/bikeshare-backend/ride"
)

func ongoingRide(bikeID uuid.UUID) *ride.Ride {
	return &ride.Ride{
		ID:               uuid.New(),
		UserID:           uuid.New(),
		BikeID:           bikeID,
		SelectedDuration: 30,
		EstimatedCost:    150,
		PaymentStatus:    ride.PaymentPending,
		Status:           ride.StatusOngoing,
		StartTime:        time.Now(),
	}
}
