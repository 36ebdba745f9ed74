package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/semanticallynull/bikeshare-backend/geo"
	"github.com/semanticallynull/bikeshare-backend/station"
)

type stationResponse struct {
	ID       uuid.UUID   `json:"id"`
	Name     string      `json:"name"`
	Lat      float64     `json:"latitude"`
	Lng      float64     `json:"longitude"`
	Capacity int         `json:"capacity"`
	Bikes    []uuid.UUID `json:"bikes"`
}

func toStationResponse(s station.Station) stationResponse {
	bikes := s.Bikes
	if bikes == nil {
		bikes = []uuid.UUID{}
	}
	return stationResponse{
		ID:       s.ID,
		Name:     s.Name,
		Lat:      s.Location.P.X,
		Lng:      s.Location.P.Y,
		Capacity: s.Capacity,
		Bikes:    bikes,
	}
}

func (a *API) stationsHandler(c *gin.Context) {
	stations, err := a.svc.Stations.List(c)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := make([]stationResponse, 0, len(stations))
	for _, s := range stations {
		resp = append(resp, toStationResponse(s))
	}
	c.JSON(http.StatusOK, resp)
}

type createStationRequest struct {
	Name     string   `json:"name"`
	Lat      *float64 `json:"latitude"`
	Lng      *float64 `json:"longitude"`
	Capacity int      `json:"capacity"`
}

func (a *API) createStationHandler(c *gin.Context) {
	var req createStationRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Lat == nil || req.Lng == nil {
		respondError(c, station.ErrInvalidStation)
		return
	}

	s, err := a.svc.Stations.Create(c, req.Name, geo.Point{Lat: *req.Lat, Lng: *req.Lng}, req.Capacity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toStationResponse(s))
}

type nearbyResponse struct {
	stationResponse
	DistanceKm     float64 `json:"distanceKm"`
	AvailableBikes int     `json:"availableBikes"`
}

func (a *API) nearestStationsHandler(c *gin.Context) {
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
	if errLat != nil || errLng != nil {
		respondError(c, geo.ErrInvalidPoint)
		return
	}
	k := 0
	if raw := c.Query("k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, "k must be an integer")
			return
		}
		k = n
	}

	nearby, err := a.svc.Stations.Nearest(c, geo.Point{Lat: lat, Lng: lng}, k)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := make([]nearbyResponse, 0, len(nearby))
	for _, n := range nearby {
		resp = append(resp, nearbyResponse{
			stationResponse: toStationResponse(n.Station),
			DistanceKm:      n.DistanceKm,
			AvailableBikes:  n.AvailableBikes,
		})
	}
	c.JSON(http.StatusOK, resp)
}

func (a *API) distanceHandler(c *gin.Context) {
	var coords [4]float64
	for i, name := range []string{"startLat", "startLng", "endLat", "endLng"} {
		v, err := strconv.ParseFloat(c.Query(name), 64)
		if err != nil {
			respondError(c, geo.ErrInvalidPoint)
			return
		}
		coords[i] = v
	}
	from := geo.Point{Lat: coords[0], Lng: coords[1]}
	to := geo.Point{Lat: coords[2], Lng: coords[3]}
	if !from.InRange() || !to.InRange() {
		respondError(c, geo.ErrInvalidPoint)
		return
	}

	km := geo.DistanceBetween(from, to)
	c.JSON(http.StatusOK, gin.H{
		"distance":   formatKm(km),
		"distanceKm": km,
	})
}
