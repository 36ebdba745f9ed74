package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/semanticallynull/bikeshare-backend/geo"
	"github.com/semanticallynull/bikeshare-backend/internal/middleware"
	"github.com/semanticallynull/bikeshare-backend/ride"
)

func formatKm(km float64) string {
	return fmt.Sprintf("%.2f km", km)
}

type startRideRequest struct {
	UserID               string  `json:"userId"`
	BikeID               string  `json:"bikeId"`
	StartStationID       string  `json:"startStationId"`
	DestinationStationID string  `json:"destinationStationId"`
	SelectedDuration     int     `json:"selectedDuration"`
	EstimatedCost        float64 `json:"estimatedCost"`
}

func (r startRideRequest) toStart() (ride.StartRequest, error) {
	var req ride.StartRequest
	for _, f := range []struct {
		raw string
		dst *uuid.UUID
	}{
		{r.UserID, &req.UserID},
		{r.BikeID, &req.BikeID},
		{r.StartStationID, &req.StartStationID},
		{r.DestinationStationID, &req.DestinationStationID},
	} {
		id, err := optionalID(f.raw)
		if err != nil {
			return req, err
		}
		*f.dst = id
	}
	req.SelectedDuration = r.SelectedDuration
	req.EstimatedCost = r.EstimatedCost
	return req, nil
}

func (a *API) startRideHandler(c *gin.Context) {
	var body startRideRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "Invalid ride request")
		return
	}
	req, err := body.toStart()
	if err != nil {
		respondError(c, err)
		return
	}

	started, err := a.svc.Rides.Start(c, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":       "Ride started",
		"rideId":        started.ID,
		"paymentStatus": started.PaymentStatus,
		"rideEndTime":   started.EstimatedEndTime,
	})
}

type location struct {
	Lat *float64 `json:"latitude"`
	Lng *float64 `json:"longitude"`
}

type endRideRequest struct {
	RideID       string    `json:"rideId"`
	UserLocation *location `json:"userLocation"`
}

func (a *API) endRideHandler(c *gin.Context) {
	var req endRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid end ride request")
		return
	}
	rideID, err := uuid.Parse(req.RideID)
	if err != nil {
		respondError(c, errInvalidID)
		return
	}

	var at *geo.Point
	if l := req.UserLocation; l != nil && l.Lat != nil && l.Lng != nil {
		at = &geo.Point{Lat: *l.Lat, Lng: *l.Lng}
	}

	s, err := a.svc.Rides.End(c, rideID, at)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":         "Ride ended",
		"distance":        formatKm(s.DistanceCovered),
		"distanceCovered": s.DistanceCovered,
		"finalFare":       s.FinalFare,
		"penaltyAmount":   s.PenaltyAmount,
		"penaltyReason":   s.PenaltyReason,
	})
}

type rideResponse struct {
	ID                     uuid.UUID          `json:"id"`
	UserID                 uuid.UUID          `json:"userId"`
	BikeID                 uuid.UUID          `json:"bikeId"`
	StartStationID         *uuid.UUID         `json:"startStationId,omitempty"`
	DestinationStationID   *uuid.UUID         `json:"destinationStationId,omitempty"`
	DestinationStationName string             `json:"destinationStationName,omitempty"`
	Status                 ride.Status        `json:"status"`
	PaymentStatus          ride.PaymentStatus `json:"paymentStatus"`
	SelectedDuration       int                `json:"selectedDuration"`
	EstimatedCost          float64            `json:"estimatedCost"`
	Distance               *float64           `json:"distance,omitempty"`
	PenaltyAmount          float64            `json:"penaltyAmount"`
	PenaltyReason          string             `json:"penaltyReason,omitempty"`
	StartTime              time.Time          `json:"startTime"`
	EndTime                *time.Time         `json:"endTime,omitempty"`
}

func toRideResponse(r ride.Ride) rideResponse {
	rr := rideResponse{
		ID:                   r.ID,
		UserID:               r.UserID,
		BikeID:               r.BikeID,
		StartStationID:       r.StartStationID,
		DestinationStationID: r.DestinationStationID,
		Status:               r.Status,
		PaymentStatus:        r.PaymentStatus,
		SelectedDuration:     r.SelectedDuration,
		EstimatedCost:        r.EstimatedCost,
		PenaltyAmount:        r.PenaltyAmount,
		PenaltyReason:        r.PenaltyReason,
		StartTime:            r.StartTime,
	}
	if r.Distance.Valid {
		d := r.Distance.Float64
		rr.Distance = &d
	}
	if r.EndTime.Valid {
		t := r.EndTime.Time
		rr.EndTime = &t
	}
	return rr
}

type RideState struct {
	InProgress bool          `json:"inProgress"`
	Ride       *rideResponse `json:"ride,omitempty"`
}

// currentRideHandler reports the ongoing ride of the authenticated customer,
// or of ?userId when the API runs without authentication.
func (a *API) currentRideHandler(c *gin.Context) {
	userID, ok := a.currentUser(c)
	if !ok {
		return
	}

	r, err := a.svc.Rides.Current(c, userID)
	if errors.Is(err, ride.ErrNoRideInProgress) {
		c.JSON(http.StatusOK, RideState{InProgress: false})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	rr := toRideResponse(r)
	c.JSON(http.StatusOK, RideState{InProgress: true, Ride: &rr})
}

func (a *API) currentUser(c *gin.Context) (uuid.UUID, bool) {
	if auth0ID, ok := middleware.GetAuth0ID(c); ok {
		cust, err := a.svc.Accounts.Resolve(c, auth0ID, middleware.AccessToken(c))
		if err != nil {
			respondError(c, err)
			return uuid.Nil, false
		}
		return cust.ID, true
	}

	id, err := uuid.Parse(c.Query("userId"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHORIZED", "message": "Authentication required"})
		return uuid.Nil, false
	}
	return id, true
}

func (a *API) rideHistoryHandler(c *gin.Context) {
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}

	entries, err := a.svc.Rides.History(c, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := make([]rideResponse, 0, len(entries))
	for _, e := range entries {
		rr := toRideResponse(e.Ride)
		rr.DestinationStationName = e.DestinationStationName.String
		resp = append(resp, rr)
	}
	c.JSON(http.StatusOK, resp)
}

func (a *API) rideSummaryHandler(c *gin.Context) {
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}

	s, err := a.svc.Rides.Summary(c, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"userId":        s.UserID,
		"totalRides":    s.TotalRides,
		"totalDistance": formatKm(s.TotalDistance),
		"totalPenalty":  s.TotalPenalty,
	})
}
