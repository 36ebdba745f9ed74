package acceptance

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
)

func TestGenerateOTP(t *testing.T) {
	ts := NewTestServer(t)
	stationID := ts.CreateTestStation(t, "Patan Gate", patanGate)
	ts.CreateTestBike(t, "S1", stationID)
	userID := uuid.NewString()

	w := ts.POST("/api/v1/bikes/generate-otp", map[string]string{"bikeCode": "S1", "userId": userID}, nil)
	expectStatus(t, w, http.StatusOK)
	first := decode[map[string]any](t, w)
	code, _ := first["otp"].(string)
	if len(code) != 4 {
		t.Fatalf("expected a 4 digit code, got %q", code)
	}

	sent := ts.Notifier.Sent()
	if len(sent) != 1 || sent[0].UserID != userID || sent[0].Event != "otp" {
		t.Errorf("expected one otp notification for %s, got %+v", userID, sent)
	}

	// A valid code is handed out again rather than replaced.
	w = ts.POST("/api/v1/bikes/generate-otp", map[string]string{"bikeCode": "S1"}, nil)
	expectStatus(t, w, http.StatusOK)
	if again := decode[map[string]any](t, w)["otp"]; again != code {
		t.Errorf("expected the same code %s, got %v", code, again)
	}
}

func TestGenerateOTP_Errors(t *testing.T) {
	ts := NewTestServer(t)

	w := ts.POST("/api/v1/bikes/generate-otp", map[string]string{}, nil)
	expectCode(t, w, http.StatusBadRequest, "INVALID_REQUEST")

	w = ts.POST("/api/v1/bikes/generate-otp", map[string]string{"bikeCode": "nope"}, nil)
	expectCode(t, w, http.StatusNotFound, "BIKE_NOT_FOUND")

	w = ts.POST("/api/v1/bikes/generate-otp", map[string]string{"bikeCode": "S1", "userId": "not-a-uuid"}, nil)
	expectCode(t, w, http.StatusBadRequest, "INVALID_ID")
}

func TestVerifyOTP(t *testing.T) {
	ts := NewTestServer(t)
	stationID := ts.CreateTestStation(t, "Patan Gate", patanGate)
	ts.CreateTestBike(t, "S1", stationID)

	w := ts.POST("/api/v1/bikes/verify-otp", map[string]string{"code": "S1", "otp": "1234"}, nil)
	expectCode(t, w, http.StatusBadRequest, "NO_ACTIVE_OTP")

	w = ts.POST("/api/v1/bikes/generate-otp", map[string]string{"bikeCode": "S1"}, nil)
	expectStatus(t, w, http.StatusOK)
	code := decode[map[string]any](t, w)["otp"].(string)

	wrong := "0000"
	if code == wrong {
		wrong = "0001"
	}
	w = ts.POST("/api/v1/bikes/verify-otp", map[string]string{"code": "S1", "otp": wrong}, nil)
	expectCode(t, w, http.StatusBadRequest, "INVALID_OTP")

	w = ts.POST("/api/v1/bikes/verify-otp", map[string]string{"code": "S1", "otp": code}, nil)
	expectStatus(t, w, http.StatusOK)
	resp := decode[map[string]any](t, w)
	if resp["success"] != true || resp["refreshBikes"] != true {
		t.Errorf("expected success and refreshBikes, got %v", resp)
	}

	// The unlocked bike is held.
	w = ts.POST("/api/v1/bikes/generate-otp", map[string]string{"bikeCode": "S1"}, nil)
	expectCode(t, w, http.StatusConflict, "BIKE_UNAVAILABLE")
}

func TestVerifyOTP_MissingFields(t *testing.T) {
	ts := NewTestServer(t)

	w := ts.POST("/api/v1/bikes/verify-otp", map[string]string{"code": "S1"}, nil)
	expectCode(t, w, http.StatusBadRequest, "INVALID_REQUEST")
}
