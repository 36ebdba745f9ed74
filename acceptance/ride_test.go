package acceptance

import (
	"net/http"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/semanticallynull/bikeshare-backend/geo"
	"github.com/semanticallynull/bikeshare-backend/ride"
)

type rideFixture struct {
	ts              *TestServer
	startID, destID string
	bikeID          string
	userID          string
}

func newRideFixture(t *testing.T) *rideFixture {
	t.Helper()
	ts := NewTestServer(t)
	f := &rideFixture{ts: ts, userID: uuid.NewString()}
	f.startID = ts.CreateTestStation(t, "Patan Gate", patanGate)
	f.destID = ts.CreateTestStation(t, "Jawalakhel", jawalakhel)
	ts.CreateTestStation(t, "Pulchowk", pulchowk)
	f.bikeID = ts.CreateTestBike(t, "S1", f.startID)
	return f
}

func (f *rideFixture) startBody() map[string]any {
	return map[string]any{
		"userId":               f.userID,
		"bikeId":               f.bikeID,
		"startStationId":       f.startID,
		"destinationStationId": f.destID,
		"selectedDuration":     30,
		"estimatedCost":        150,
	}
}

func (f *rideFixture) start(t *testing.T) string {
	t.Helper()
	w := f.ts.POST("/api/v1/rides/start", f.startBody(), nil)
	expectStatus(t, w, http.StatusCreated)
	return decode[map[string]any](t, w)["rideId"].(string)
}

func (f *rideFixture) end(rideID string, at geo.Point) map[string]any {
	return map[string]any{
		"rideId":       rideID,
		"userLocation": map[string]float64{"latitude": at.Lat, "longitude": at.Lng},
	}
}

func TestStartRide(t *testing.T) {
	f := newRideFixture(t)

	w := f.ts.POST("/api/v1/rides/start", f.startBody(), nil)
	expectStatus(t, w, http.StatusCreated)
	resp := decode[map[string]any](t, w)
	if resp["paymentStatus"] != string(ride.PaymentPending) {
		t.Errorf("expected pending payment, got %v", resp["paymentStatus"])
	}
	if resp["rideEndTime"] == nil || resp["rideId"] == nil {
		t.Errorf("expected rideId and rideEndTime, got %v", resp)
	}

	// The bike is taken.
	w = f.ts.POST("/api/v1/rides/start", f.startBody(), nil)
	expectCode(t, w, http.StatusConflict, "BIKE_UNAVAILABLE")

	f.ts.Close()
	if orders := f.ts.Payments.Orders(); len(orders) != 1 || orders[0] != 150 {
		t.Errorf("expected one order for 150, got %v", orders)
	}
}

func TestStartRide_MissingFields(t *testing.T) {
	f := newRideFixture(t)

	w := f.ts.POST("/api/v1/rides/start", map[string]any{"userId": f.userID, "estimatedCost": 150}, nil)
	expectStatus(t, w, http.StatusBadRequest)
	resp := decode[map[string]any](t, w)
	if resp["code"] != "MISSING_FIELDS" {
		t.Fatalf("expected MISSING_FIELDS, got %v", resp["code"])
	}
	got, _ := resp["missingFields"].([]any)
	want := []string{"bikeId", "startStationId", "destinationStationId", "selectedDuration"}
	if len(got) != len(want) {
		t.Fatalf("expected missing fields %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("expected missing field %s at %d, got %v", want[i], i, got[i])
		}
	}
}

func TestStartRide_Rejects(t *testing.T) {
	f := newRideFixture(t)

	body := f.startBody()
	body["estimatedCost"] = -5
	w := f.ts.POST("/api/v1/rides/start", body, nil)
	expectCode(t, w, http.StatusBadRequest, "INVALID_REQUEST")

	body = f.startBody()
	body["startStationId"] = uuid.NewString()
	w = f.ts.POST("/api/v1/rides/start", body, nil)
	expectCode(t, w, http.StatusNotFound, "STATION_NOT_FOUND")

	body = f.startBody()
	body["destinationStationId"] = uuid.NewString()
	w = f.ts.POST("/api/v1/rides/start", body, nil)
	expectCode(t, w, http.StatusNotFound, "STATION_NOT_FOUND")

	body = f.startBody()
	body["bikeId"] = uuid.NewString()
	w = f.ts.POST("/api/v1/rides/start", body, nil)
	expectCode(t, w, http.StatusNotFound, "BIKE_NOT_FOUND")
}

func TestStartRide_AfterUnlock(t *testing.T) {
	f := newRideFixture(t)

	w := f.ts.POST("/api/v1/bikes/generate-otp", map[string]string{"bikeCode": "S1", "userId": f.userID}, nil)
	code := decode[map[string]any](t, w)["otp"].(string)
	w = f.ts.POST("/api/v1/bikes/verify-otp", map[string]string{"code": "S1", "otp": code, "userId": f.userID}, nil)
	expectStatus(t, w, http.StatusOK)

	// Someone else cannot take the held bike.
	other := f.startBody()
	other["userId"] = uuid.NewString()
	w = f.ts.POST("/api/v1/rides/start", other, nil)
	expectCode(t, w, http.StatusConflict, "BIKE_UNAVAILABLE")

	f.start(t)
}

func TestEndRide(t *testing.T) {
	tests := []struct {
		name       string
		at         geo.Point
		wantFare   float64
		wantReason string
	}{
		{name: "at destination", at: jawalakhel, wantFare: 150},
		{name: "at another station", at: pulchowk, wantFare: 150},
		{name: "inside zone away from stations", at: offStation, wantFare: 200, wantReason: ride.ReasonOffStation},
		{name: "outside zone", at: durbarSqKtm, wantFare: 250, wantReason: ride.ReasonOutsideZone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRideFixture(t)
			rideID := f.start(t)

			w := f.ts.POST("/api/v1/rides/end", f.end(rideID, tt.at), nil)
			expectStatus(t, w, http.StatusOK)
			resp := decode[map[string]any](t, w)

			if resp["finalFare"] != tt.wantFare {
				t.Errorf("expected fare %v, got %v", tt.wantFare, resp["finalFare"])
			}
			if resp["penaltyAmount"] != tt.wantFare-150 {
				t.Errorf("expected penalty %v, got %v", tt.wantFare-150, resp["penaltyAmount"])
			}
			if resp["penaltyReason"] != tt.wantReason {
				t.Errorf("expected reason %q, got %v", tt.wantReason, resp["penaltyReason"])
			}
			distance, _ := resp["distance"].(string)
			if !strings.HasSuffix(distance, " km") {
				t.Errorf("expected distance in km, got %q", distance)
			}

			// The bike is free again.
			w = f.ts.POST("/api/v1/bikes/generate-otp", map[string]string{"bikeCode": "S1"}, nil)
			expectStatus(t, w, http.StatusOK)
		})
	}
}

func TestEndRide_Errors(t *testing.T) {
	f := newRideFixture(t)
	rideID := f.start(t)

	w := f.ts.POST("/api/v1/rides/end", map[string]any{"rideId": rideID}, nil)
	expectCode(t, w, http.StatusBadRequest, "MISSING_LOCATION")

	w = f.ts.POST("/api/v1/rides/end", map[string]any{
		"rideId":       rideID,
		"userLocation": map[string]float64{"latitude": jawalakhel.Lat},
	}, nil)
	expectCode(t, w, http.StatusBadRequest, "MISSING_LOCATION")

	w = f.ts.POST("/api/v1/rides/end", f.end(rideID, geo.Point{Lat: 200, Lng: jawalakhel.Lng}), nil)
	expectCode(t, w, http.StatusBadRequest, "INVALID_LOCATION")

	w = f.ts.POST("/api/v1/rides/end", f.end(uuid.NewString(), jawalakhel), nil)
	expectCode(t, w, http.StatusNotFound, "RIDE_NOT_FOUND")

	w = f.ts.POST("/api/v1/rides/end", f.end(rideID, jawalakhel), nil)
	expectStatus(t, w, http.StatusOK)

	w = f.ts.POST("/api/v1/rides/end", f.end(rideID, offStation), nil)
	expectCode(t, w, http.StatusConflict, "RIDE_ALREADY_COMPLETED")
}

func TestRideHistoryAndSummary(t *testing.T) {
	f := newRideFixture(t)
	rideID := f.start(t)
	w := f.ts.POST("/api/v1/rides/end", f.end(rideID, offStation), nil)
	expectStatus(t, w, http.StatusOK)
	f.start(t)

	w = f.ts.GET("/api/v1/users/"+f.userID+"/rides", nil)
	expectStatus(t, w, http.StatusOK)
	rides := decode[[]map[string]any](t, w)
	if len(rides) != 2 {
		t.Fatalf("expected 2 rides, got %d", len(rides))
	}
	for _, r := range rides {
		if r["destinationStationName"] != "Jawalakhel" {
			t.Errorf("expected destination name, got %v", r["destinationStationName"])
		}
	}

	w = f.ts.GET("/api/v1/rides/user/"+f.userID+"/summary", nil)
	expectStatus(t, w, http.StatusOK)
	summary := decode[map[string]any](t, w)
	if summary["totalRides"] != float64(1) {
		t.Errorf("expected 1 completed ride, got %v", summary["totalRides"])
	}
	if summary["totalPenalty"] != float64(ride.OffStationPenalty) {
		t.Errorf("expected penalty %v, got %v", ride.OffStationPenalty, summary["totalPenalty"])
	}

	w = f.ts.GET("/api/v1/admin/summary", nil)
	expectStatus(t, w, http.StatusOK)
	admin := decode[map[string]any](t, w)
	if admin["totalRides"] != float64(2) || admin["ongoingRides"] != float64(1) || admin["completedRides"] != float64(1) {
		t.Errorf("unexpected ride counts %v", admin)
	}
	if admin["totalStations"] != float64(3) || admin["totalBikes"] != float64(1) {
		t.Errorf("unexpected inventory counts %v", admin)
	}

	w = f.ts.GET("/api/v1/admin/rides", nil)
	expectStatus(t, w, http.StatusOK)
	if all := decode[[]map[string]any](t, w); len(all) != 2 {
		t.Errorf("expected 2 rides, got %d", len(all))
	}
}

func TestCurrentRide(t *testing.T) {
	f := newRideFixture(t)
	headers := map[string]string{"X-User-ID": "auth0|rider"}

	w := f.ts.GET("/api/v1/me", headers)
	expectStatus(t, w, http.StatusOK)
	f.userID = decode[map[string]any](t, w)["id"].(string)

	w = f.ts.GET("/api/v1/rides/current", headers)
	expectStatus(t, w, http.StatusOK)
	if decode[map[string]any](t, w)["inProgress"] != false {
		t.Errorf("expected no ride in progress")
	}

	f.start(t)

	w = f.ts.GET("/api/v1/rides/current", headers)
	expectStatus(t, w, http.StatusOK)
	resp := decode[map[string]any](t, w)
	if resp["inProgress"] != true {
		t.Fatalf("expected ride in progress, got %v", resp)
	}
	if r, _ := resp["ride"].(map[string]any); r["bikeId"] != f.bikeID {
		t.Errorf("expected bike %s, got %v", f.bikeID, resp["ride"])
	}

	// Unauthenticated callers name the rider explicitly.
	w = f.ts.GET("/api/v1/rides/current?userId="+f.userID, nil)
	expectStatus(t, w, http.StatusOK)
	if decode[map[string]any](t, w)["inProgress"] != true {
		t.Errorf("expected ride in progress by userId")
	}

	w = f.ts.GET("/api/v1/rides/current", nil)
	expectCode(t, w, http.StatusUnauthorized, "UNAUTHORIZED")
}
