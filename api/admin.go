package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/semanticallynull/bikeshare-backend/bike"
	"github.com/semanticallynull/bikeshare-backend/geo"
)

func (a *API) adminSummaryHandler(c *gin.Context) {
	users, err := a.svc.Accounts.Count(c)
	if err != nil {
		respondError(c, err)
		return
	}
	bikes, err := a.svc.Bikes.Count(c)
	if err != nil {
		respondError(c, err)
		return
	}
	stations, err := a.svc.Stations.Count(c)
	if err != nil {
		respondError(c, err)
		return
	}
	rides, err := a.svc.Rides.Counts(c)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"totalUsers":     users,
		"totalBikes":     bikes,
		"totalStations":  stations,
		"totalRides":     rides.Total,
		"ongoingRides":   rides.Ongoing,
		"completedRides": rides.Completed,
		"totalPenalty":   rides.TotalPenalty,
	})
}

func (a *API) adminRidesHandler(c *gin.Context) {
	rides, err := a.svc.Rides.List(c)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := make([]rideResponse, 0, len(rides))
	for _, r := range rides {
		resp = append(resp, toRideResponse(r))
	}
	c.JSON(http.StatusOK, resp)
}

type createBikeRequest struct {
	Code      string  `json:"code"`
	Lat       float64 `json:"latitude"`
	Lng       float64 `json:"longitude"`
	StationID string  `json:"stationId"`
}

func (a *API) createBikeHandler(c *gin.Context) {
	var req createBikeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bike.ErrInvalidBike)
		return
	}

	var stationID *uuid.UUID
	if req.StationID != "" {
		id, err := uuid.Parse(req.StationID)
		if err != nil {
			respondError(c, errInvalidID)
			return
		}
		stationID = &id
	}

	b, err := a.svc.Bikes.Create(c, req.Code, geo.Point{Lat: req.Lat, Lng: req.Lng}, stationID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toBikeResponse(b))
}

func (a *API) deleteBikeHandler(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := a.svc.Bikes.Delete(c, id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type assignBikeRequest struct {
	StationID string `json:"stationId"`
}

func (a *API) assignBikeHandler(c *gin.Context) {
	bikeID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req assignBikeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "stationId is required")
		return
	}
	stationID, err := uuid.Parse(req.StationID)
	if err != nil {
		respondError(c, errInvalidID)
		return
	}

	if err := a.svc.Bikes.AssignToStation(c, bikeID, stationID); err != nil {
		respondError(c, err)
		return
	}
	b, err := a.svc.Bikes.Get(c, bikeID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBikeResponse(b))
}

func (a *API) deleteStationHandler(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := a.svc.Stations.Delete(c, id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
