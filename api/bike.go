package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/semanticallynull/bikeshare-backend/bike"
)

type bikeResponse struct {
	ID                 uuid.UUID  `json:"id"`
	Code               string     `json:"code"`
	Available          bool       `json:"available"`
	Lat                float64    `json:"latitude"`
	Lng                float64    `json:"longitude"`
	StationID          *uuid.UUID `json:"stationId,omitempty"`
	StationName        string     `json:"stationName,omitempty"`
	AutoReleaseAt      *time.Time `json:"autoReleaseAt,omitempty"`
	AvailableInMinutes *int       `json:"availableInMinutes,omitempty"`
}

// toBikeResponse never carries the unlock code.
func toBikeResponse(b bike.Bike) bikeResponse {
	br := bikeResponse{
		ID:        b.ID,
		Code:      b.Code,
		Available: b.Available,
		Lat:       b.Location.P.X,
		Lng:       b.Location.P.Y,
		StationID: b.StationID,
	}
	if b.StationName != nil {
		br.StationName = *b.StationName
	}
	if b.AutoReleaseAt.Valid {
		t := b.AutoReleaseAt.Time
		br.AutoReleaseAt = &t
	}
	return br
}

func (a *API) bikesHandler(c *gin.Context) {
	listings, err := a.svc.Bikes.List(c)
	if err != nil {
		respondError(c, err)
		return
	}

	bikes := make([]bikeResponse, 0, len(listings))
	for _, l := range listings {
		br := toBikeResponse(l.Bike)
		br.AvailableInMinutes = l.AvailableInMinutes
		bikes = append(bikes, br)
	}
	c.JSON(http.StatusOK, bikes)
}

type generateOTPRequest struct {
	BikeCode string `json:"bikeCode"`
	UserID   string `json:"userId"`
}

func (a *API) generateOTPHandler(c *gin.Context) {
	var req generateOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.BikeCode == "" {
		badRequest(c, "bikeCode is required")
		return
	}
	userID, err := optionalID(req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	ch, err := a.svc.OTP.Issue(c, req.BikeCode, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "OTP generated",
		"otp":       ch.Code,
		"expiresAt": ch.ExpiresAt,
	})
}

type verifyOTPRequest struct {
	Code   string `json:"code"`
	OTP    string `json:"otp"`
	UserID string `json:"userId"`
}

func (a *API) verifyOTPHandler(c *gin.Context) {
	var req verifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Code == "" || req.OTP == "" {
		badRequest(c, "code and otp are required")
		return
	}
	userID, err := optionalID(req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	if _, err := a.svc.OTP.Verify(c, req.Code, req.OTP, userID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      "Bike unlocked",
		"success":      true,
		"refreshBikes": true,
	})
}

// optionalID parses an id that may be left empty.
func optionalID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, errInvalidID
	}
	return id, nil
}

func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		respondError(c, errInvalidID)
		return uuid.Nil, false
	}
	return id, true
}
