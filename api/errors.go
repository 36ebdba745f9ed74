package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/semanticallynull/bikeshare-backend/bike"
	"github.com/semanticallynull/bikeshare-backend/customer"
	"github.com/semanticallynull/bikeshare-backend/geo"
	"github.com/semanticallynull/bikeshare-backend/internal/lock"
	"github.com/semanticallynull/bikeshare-backend/internal/middleware"
	"github.com/semanticallynull/bikeshare-backend/otp"
	"github.com/semanticallynull/bikeshare-backend/ride"
	"github.com/semanticallynull/bikeshare-backend/station"
)

var errInvalidID = errors.New("invalid id")

// errorResponses maps domain errors to what callers see. Order matters where
// one error wraps another.
var errorResponses = []struct {
	err     error
	status  int
	code    string
	message string
}{
	{ride.ErrInvalidRequest, http.StatusBadRequest, "INVALID_REQUEST", "Invalid ride request"},
	{ride.ErrMissingLocation, http.StatusBadRequest, "MISSING_LOCATION", "User location is required"},
	{ride.ErrStationNotFound, http.StatusNotFound, "STATION_NOT_FOUND", "Start station not found"},
	{ride.ErrDestinationNotFound, http.StatusNotFound, "STATION_NOT_FOUND", "Destination station not found"},
	{ride.ErrNotFound, http.StatusNotFound, "RIDE_NOT_FOUND", "Ride not found"},
	{ride.ErrAlreadyCompleted, http.StatusConflict, "RIDE_ALREADY_COMPLETED", "Ride already completed"},
	{ride.ErrRideInProgress, http.StatusConflict, "RIDE_IN_PROGRESS", "Bike already has a ride in progress"},
	{ride.ErrGeofenceCheckFailed, http.StatusInternalServerError, "GEOFENCE_CHECK_FAILED", "Failed to verify the end location"},
	{ride.ErrNoRideInProgress, http.StatusNotFound, "NO_RIDE_IN_PROGRESS", "No ride in progress"},

	{otp.ErrBikeUnavailable, http.StatusConflict, "BIKE_UNAVAILABLE", "Bike is not available"},
	{otp.ErrNoActiveChallenge, http.StatusBadRequest, "NO_ACTIVE_OTP", "No OTP generated for this bike"},
	{otp.ErrExpired, http.StatusBadRequest, "OTP_EXPIRED", "OTP expired"},
	{otp.ErrMismatch, http.StatusBadRequest, "INVALID_OTP", "Invalid OTP"},
	{lock.ErrTimeout, http.StatusConflict, "BIKE_BUSY", "Bike is busy, try again"},

	{bike.ErrNotFound, http.StatusNotFound, "BIKE_NOT_FOUND", "Bike not found"},
	{bike.ErrNotAvailable, http.StatusConflict, "BIKE_UNAVAILABLE", "Bike is not available"},
	{bike.ErrCodeTaken, http.StatusConflict, "BIKE_CODE_TAKEN", "A bike with this code already exists"},
	{bike.ErrInUse, http.StatusConflict, "BIKE_IN_USE", "Bike is on an ongoing ride"},
	{bike.ErrInvalidBike, http.StatusBadRequest, "INVALID_BIKE", "Bike code is required"},

	{station.ErrNotFound, http.StatusNotFound, "STATION_NOT_FOUND", "Station not found"},
	{station.ErrNameTaken, http.StatusConflict, "STATION_NAME_TAKEN", "A station with this name already exists"},
	{station.ErrHasAssignedBikes, http.StatusConflict, "STATION_HAS_BIKES", "Station still has bikes assigned"},
	{station.ErrInvalidStation, http.StatusBadRequest, "INVALID_STATION", "Station requires a name and valid coordinates"},

	{customer.ErrNotFound, http.StatusNotFound, "USER_NOT_FOUND", "User not found"},
	{geo.ErrInvalidPoint, http.StatusBadRequest, "INVALID_LOCATION", "Invalid coordinates"},
	{errInvalidID, http.StatusBadRequest, "INVALID_ID", "Invalid id"},
}

// respondError writes the response for err. Unknown errors are logged and
// reported as a generic internal error.
func respondError(c *gin.Context, err error) {
	var missing *ride.MissingFieldsError
	if errors.As(err, &missing) {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":          "MISSING_FIELDS",
			"message":       "Missing required fields",
			"missingFields": missing.Fields,
		})
		return
	}

	for _, r := range errorResponses {
		if errors.Is(err, r.err) {
			if r.status >= http.StatusInternalServerError {
				middleware.GetLogger(c).ErrorContext(c, r.message, "error", err)
			}
			c.JSON(r.status, gin.H{"code": r.code, "message": r.message})
			return
		}
	}

	middleware.GetLogger(c).ErrorContext(c, "request failed", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": message})
}
