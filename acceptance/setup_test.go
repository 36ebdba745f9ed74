package acceptance

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	jwtmiddleware "github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/semanticallynull/bikeshare-backend/api"
	"github.com/semanticallynull/bikeshare-backend/bike"
	"github.com/semanticallynull/bikeshare-backend/customer"
	"github.com/semanticallynull/bikeshare-backend/geo"
	"github.com/semanticallynull/bikeshare-backend/internal/auth0"
	"github.com/semanticallynull/bikeshare-backend/internal/fakes"
	"github.com/semanticallynull/bikeshare-backend/internal/lock"
	"github.com/semanticallynull/bikeshare-backend/internal/o11y"
	"github.com/semanticallynull/bikeshare-backend/notify"
	"github.com/semanticallynull/bikeshare-backend/otp"
	"github.com/semanticallynull/bikeshare-backend/ride"
	"github.com/semanticallynull/bikeshare-backend/station"
)

var (
	patanGate   = geo.Point{Lat: 27.685353, Lng: 85.307080}
	jawalakhel  = geo.Point{Lat: 27.679600, Lng: 85.319458}
	pulchowk    = geo.Point{Lat: 27.673389, Lng: 85.312648}
	offStation  = geo.Point{Lat: 27.660000, Lng: 85.330000}
	durbarSqKtm = geo.Point{Lat: 27.7042, Lng: 85.3067}
)

type TestServer struct {
	Router    *gin.Engine
	Store     *fakes.Store
	Payments  *fakes.Payments
	Notifier  *fakes.Notifier
	Auth0     *auth0.FakeClient
	Lifecycle *ride.Lifecycle
}

func NewTestServer(t *testing.T) *TestServer {
	t.Helper()

	gin.SetMode(gin.TestMode)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ts := &TestServer{
		Store:    fakes.NewStore(),
		Payments: fakes.NewPayments(),
		Notifier: &fakes.Notifier{},
		Auth0:    auth0.NewFakeClient(),
	}

	stations := station.NewDirectory(ts.Store)
	bikes := bike.NewInventory(ts.Store, ts.Store, logger)
	ts.Lifecycle = ride.NewLifecycle(ts.Store, bikes, stations, ts.Payments, geo.DefaultZone(), logger)

	obs := &o11y.Observability{Logger: logger, Registry: prometheus.NewRegistry()}
	a := api.New(api.Services{
		Bikes:    bikes,
		Stations: stations,
		Rides:    ts.Lifecycle,
		OTP:      otp.NewIssuer(otp.Config{}, ts.Store, lock.NewLocal(), ts.Notifier, logger),
		Accounts: customer.NewAccounts(ts.Store, ts.Auth0, logger),
		Live:     notify.NewRegistry(logger),
	}, obs, api.Config{Auth: fakeAuthMiddleware()})
	ts.Router = a.Router()

	t.Cleanup(ts.Close)
	return ts
}

// Close waits for background payment confirmations.
func (ts *TestServer) Close() {
	ts.Lifecycle.Wait()
}

// fakeAuthMiddleware treats X-User-ID as the token subject. Requests without
// it pass through unauthenticated.
func fakeAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sub := c.GetHeader("X-User-ID")
		if sub == "" {
			c.Next()
			return
		}
		claims := &validator.ValidatedClaims{
			RegisteredClaims: validator.RegisteredClaims{Subject: sub},
		}
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), jwtmiddleware.ContextKey{}, claims))
		c.Next()
	}
}

// Helper methods for making requests
func (ts *TestServer) GET(path string, headers map[string]string) *httptest.ResponseRecorder {
	return ts.do(http.MethodGet, path, nil, headers)
}

func (ts *TestServer) POST(path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	return ts.do(http.MethodPost, path, body, headers)
}

func (ts *TestServer) DELETE(path string, headers map[string]string) *httptest.ResponseRecorder {
	return ts.do(http.MethodDelete, path, nil, headers)
}

func (ts *TestServer) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	ts.Router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, status int) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, w.Code, w.Body.String())
	}
}

func expectCode(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	expectStatus(t, w, status)
	resp := decode[map[string]any](t, w)
	if resp["code"] != code {
		t.Errorf("expected code %s, got %v", code, resp["code"])
	}
}

// Helper to create test station
func (ts *TestServer) CreateTestStation(t *testing.T, name string, at geo.Point) string {
	t.Helper()
	w := ts.POST("/api/v1/admin/stations", map[string]any{
		"name":      name,
		"latitude":  at.Lat,
		"longitude": at.Lng,
	}, nil)
	expectStatus(t, w, http.StatusCreated)
	return decode[map[string]any](t, w)["id"].(string)
}

// Helper to create test bike
func (ts *TestServer) CreateTestBike(t *testing.T, code, stationID string) string {
	t.Helper()
	w := ts.POST("/api/v1/admin/bikes", map[string]any{
		"code":      code,
		"stationId": stationID,
	}, nil)
	expectStatus(t, w, http.StatusCreated)
	return decode[map[string]any](t, w)["id"].(string)
}
