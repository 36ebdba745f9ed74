package ride

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/semanticallynull/bikeshare-backend/bike"
	"github.com/semanticallynull/bikeshare-backend/geo"
	"github.com/semanticallynull/bikeshare-backend/internal/o11y"
	"github.com/semanticallynull/bikeshare-backend/payment"
	"github.com/semanticallynull/bikeshare-backend/station"
)

const (
	// NearStationKm is how close (50 m) a bike must be to a station to count
	// as returned.
	NearStationKm = 0.05

	OutsideZonePenalty = 100
	OffStationPenalty  = 50

	ReasonOutsideZone = "Outside operating zone"
	ReasonOffStation  = "Bike not returned to any station"
)

var (
	ErrMissingFields       = errors.New("missing required fields")
	ErrInvalidRequest      = errors.New("invalid ride request")
	ErrStationNotFound     = errors.New("start station not found")
	ErrDestinationNotFound = errors.New("destination station not found")
	ErrMissingLocation     = errors.New("missing user location")
	ErrGeofenceCheckFailed = errors.New("geofence check failed")
)

// MissingFieldsError lists the required start fields that were absent.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return "missing required fields: " + strings.Join(e.Fields, ", ")
}

func (e *MissingFieldsError) Is(target error) bool {
	return target == ErrMissingFields
}

// Store is the persistence the Lifecycle needs. *Repository implements it.
type Store interface {
	CreateRide(ctx context.Context, r *Ride) error
	GetRide(ctx context.Context, id uuid.UUID) (Ride, error)
	CompleteRide(ctx context.Context, id uuid.UUID, c Completion) (Ride, error)
	MarkPaid(ctx context.Context, id uuid.UUID, ref string) error
	GetRidesByUser(ctx context.Context, userID uuid.UUID) ([]HistoryEntry, error)
	GetRides(ctx context.Context) ([]Ride, error)
	CurrentRide(ctx context.Context, userID uuid.UUID) (Ride, error)
	CountRides(ctx context.Context) (Counts, error)
}

var _ Store = (*Repository)(nil)

// Bikes reserves and releases bikes. *bike.Inventory implements it.
type Bikes interface {
	Reserve(ctx context.Context, id, userID uuid.UUID) (bike.Bike, error)
	Release(ctx context.Context, id uuid.UUID, at *geo.Point) error
}

// Stations resolves stations. *station.Directory implements it.
type Stations interface {
	Get(ctx context.Context, id uuid.UUID) (station.Station, error)
	List(ctx context.Context) ([]station.Station, error)
}

var tracer = otel.Tracer("github.com/semanticallynull/bikeshare-backend/ride")

// Lifecycle starts and settles rides.
type Lifecycle struct {
	store    Store
	bikes    Bikes
	stations Stations
	payments payment.Provider
	zone     geo.Polygon
	logger   *slog.Logger
	now      func() time.Time

	inflight sync.WaitGroup
}

func NewLifecycle(store Store, bikes Bikes, stations Stations, payments payment.Provider, zone geo.Polygon, logger *slog.Logger) *Lifecycle {
	return &Lifecycle{
		store:    store,
		bikes:    bikes,
		stations: stations,
		payments: payments,
		zone:     zone,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock replaces the time source.
func (l *Lifecycle) WithClock(now func() time.Time) *Lifecycle {
	l.now = now
	return l
}

type StartRequest struct {
	UserID               uuid.UUID
	BikeID               uuid.UUID
	StartStationID       uuid.UUID
	DestinationStationID uuid.UUID
	// SelectedDuration is in minutes.
	SelectedDuration int
	EstimatedCost    float64
}

func (r StartRequest) validate() error {
	var missing []string
	if r.UserID == uuid.Nil {
		missing = append(missing, "userId")
	}
	if r.BikeID == uuid.Nil {
		missing = append(missing, "bikeId")
	}
	if r.StartStationID == uuid.Nil {
		missing = append(missing, "startStationId")
	}
	if r.DestinationStationID == uuid.Nil {
		missing = append(missing, "destinationStationId")
	}
	if r.SelectedDuration == 0 {
		missing = append(missing, "selectedDuration")
	}
	if r.EstimatedCost == 0 {
		missing = append(missing, "estimatedCost")
	}
	if len(missing) > 0 {
		return &MissingFieldsError{Fields: missing}
	}

	if r.SelectedDuration < 0 {
		return fmt.Errorf("%w: selectedDuration must be positive", ErrInvalidRequest)
	}
	if r.EstimatedCost < 0 || math.IsNaN(r.EstimatedCost) || math.IsInf(r.EstimatedCost, 0) {
		return fmt.Errorf("%w: estimatedCost must be a positive amount", ErrInvalidRequest)
	}
	return nil
}

// Started is a freshly started ride.
type Started struct {
	Ride
	EstimatedEndTime time.Time
}

// Start reserves the bike and opens a ride from the start station. Payment is
// confirmed in the background; its outcome never affects the returned ride.
func (l *Lifecycle) Start(ctx context.Context, req StartRequest) (Started, error) {
	ctx, span := tracer.Start(ctx, "ride.Start")
	defer span.End()

	if err := req.validate(); err != nil {
		return Started{}, err
	}

	st, err := l.stations.Get(ctx, req.StartStationID)
	if errors.Is(err, station.ErrNotFound) {
		return Started{}, ErrStationNotFound
	}
	if err != nil {
		return Started{}, err
	}
	_, err = l.stations.Get(ctx, req.DestinationStationID)
	if errors.Is(err, station.ErrNotFound) {
		return Started{}, ErrDestinationNotFound
	}
	if err != nil {
		return Started{}, err
	}

	if _, err := l.bikes.Reserve(ctx, req.BikeID, req.UserID); err != nil {
		return Started{}, err
	}

	startStation, destination := req.StartStationID, req.DestinationStationID
	r := Ride{
		ID:                   uuid.New(),
		UserID:               req.UserID,
		BikeID:               req.BikeID,
		StartStationID:       &startStation,
		DestinationStationID: &destination,
		StartLat:             st.Point().Lat,
		StartLng:             st.Point().Lng,
		SelectedDuration:     req.SelectedDuration,
		EstimatedCost:        req.EstimatedCost,
		PaymentStatus:        PaymentPending,
		Status:               StatusOngoing,
		StartTime:            l.now(),
	}
	if err := l.store.CreateRide(ctx, &r); err != nil {
		if relErr := l.bikes.Release(ctx, req.BikeID, nil); relErr != nil {
			l.logger.ErrorContext(ctx, "failed to release bike after ride creation failed",
				"bike_id", req.BikeID, "error", relErr)
		}
		return Started{}, err
	}
	span.SetAttributes(attribute.String("ride.id", r.ID.String()), attribute.String("bike.id", r.BikeID.String()))
	o11y.RidesStarted.Inc()

	l.inflight.Add(1)
	go func() {
		defer l.inflight.Done()
		l.confirmPayment(context.WithoutCancel(ctx), r)
	}()

	return Started{
		Ride:             r,
		EstimatedEndTime: r.StartTime.Add(time.Duration(r.SelectedDuration) * time.Minute),
	}, nil
}

func (l *Lifecycle) confirmPayment(ctx context.Context, r Ride) {
	ctx, span := tracer.Start(ctx, "ride.confirmPayment")
	defer span.End()

	logger := l.logger.With("ride_id", r.ID.String())

	ref, err := l.payments.CreateOrder(ctx, r.EstimatedCost)
	if err != nil {
		logger.ErrorContext(ctx, "failed to create payment order", "error", err)
		o11y.PaymentConfirmations.WithLabelValues("order_failed").Inc()
		return
	}

	status, err := l.payments.Capture(ctx, ref)
	if err != nil {
		logger.ErrorContext(ctx, "failed to capture payment", "order_ref", ref, "error", err)
		o11y.PaymentConfirmations.WithLabelValues("capture_failed").Inc()
		return
	}
	if status != payment.StatusPaid {
		logger.WarnContext(ctx, "payment not confirmed", "order_ref", ref, "status", status)
		o11y.PaymentConfirmations.WithLabelValues(string(status)).Inc()
		return
	}

	if err := l.store.MarkPaid(ctx, r.ID, string(ref)); err != nil {
		logger.ErrorContext(ctx, "failed to record payment", "order_ref", ref, "error", err)
		o11y.PaymentConfirmations.WithLabelValues("record_failed").Inc()
		return
	}
	o11y.PaymentConfirmations.WithLabelValues("paid").Inc()
	logger.InfoContext(ctx, "payment confirmed", "order_ref", ref)
}

// Wait blocks until every background payment confirmation has finished.
func (l *Lifecycle) Wait() {
	l.inflight.Wait()
}

// Penalty is the outcome of the end-of-ride geofence checks.
type Penalty struct {
	Amount      float64
	Reason      string
	NearStation bool
	InsideZone  bool
}

// Assess applies the penalty policy to an end location: outside the zone
// costs OutsideZonePenalty, inside the zone but away from every station costs
// OffStationPenalty, otherwise nothing. A zone evaluation error is returned
// as is.
func Assess(zone geo.Polygon, stations []station.Station, at geo.Point) (Penalty, error) {
	var p Penalty
	for _, s := range stations {
		if geo.DistanceBetween(at, s.Point()) <= NearStationKm {
			p.NearStation = true
			break
		}
	}

	inside, err := zone.Contains(at)
	if err != nil {
		return Penalty{}, err
	}
	p.InsideZone = inside

	switch {
	case !p.InsideZone:
		p.Amount, p.Reason = OutsideZonePenalty, ReasonOutsideZone
	case !p.NearStation:
		p.Amount, p.Reason = OffStationPenalty, ReasonOffStation
	}
	return p, nil
}

// Settlement is the result of ending a ride.
type Settlement struct {
	Ride            Ride
	DistanceCovered float64
	FinalFare       float64
	PenaltyAmount   float64
	PenaltyReason   string
}

// End settles the ride at the rider's location and frees the bike. The ride
// is completed by a single conditional write; ending it twice fails with
// ErrAlreadyCompleted and leaves the first settlement untouched.
func (l *Lifecycle) End(ctx context.Context, rideID uuid.UUID, at *geo.Point) (Settlement, error) {
	ctx, span := tracer.Start(ctx, "ride.End")
	defer span.End()

	if at == nil {
		return Settlement{}, ErrMissingLocation
	}
	if !at.InRange() {
		return Settlement{}, geo.ErrInvalidPoint
	}

	r, err := l.store.GetRide(ctx, rideID)
	if err != nil {
		return Settlement{}, err
	}
	if r.Status == StatusCompleted {
		return Settlement{}, ErrAlreadyCompleted
	}

	stations, err := l.stations.List(ctx)
	if err != nil {
		return Settlement{}, err
	}
	penalty, err := Assess(l.zone, stations, *at)
	if err != nil {
		return Settlement{}, fmt.Errorf("%w: %v", ErrGeofenceCheckFailed, err)
	}

	distance := geo.Distance(r.StartLat, r.StartLng, at.Lat, at.Lng)
	completed, err := l.store.CompleteRide(ctx, r.ID, Completion{
		EndLat:        at.Lat,
		EndLng:        at.Lng,
		EndTime:       l.now(),
		Distance:      distance,
		PenaltyAmount: penalty.Amount,
		PenaltyReason: penalty.Reason,
	})
	if err != nil {
		return Settlement{}, err
	}
	span.SetAttributes(attribute.String("ride.id", r.ID.String()), attribute.Float64("ride.penalty", penalty.Amount))
	o11y.RidesCompleted.WithLabelValues(penalty.Reason).Inc()

	if err := l.bikes.Release(ctx, r.BikeID, at); err != nil {
		l.logger.ErrorContext(ctx, "failed to release bike after ride completed",
			"ride_id", r.ID, "bike_id", r.BikeID, "error", err)
	}

	return Settlement{
		Ride:            completed,
		DistanceCovered: distance,
		FinalFare:       completed.EstimatedCost + completed.PenaltyAmount,
		PenaltyAmount:   completed.PenaltyAmount,
		PenaltyReason:   completed.PenaltyReason,
	}, nil
}

// Summary totals a rider's completed rides.
type Summary struct {
	UserID        uuid.UUID
	TotalRides    int
	TotalDistance float64
	TotalPenalty  float64
}

func (l *Lifecycle) Summary(ctx context.Context, userID uuid.UUID) (Summary, error) {
	rides, err := l.store.GetRidesByUser(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	s := Summary{UserID: userID}
	for _, r := range rides {
		if r.Status != StatusCompleted {
			continue
		}
		s.TotalRides++
		s.TotalDistance += r.Distance.Float64
		s.TotalPenalty += r.PenaltyAmount
	}
	return s, nil
}

// History lists a rider's rides, newest first.
func (l *Lifecycle) History(ctx context.Context, userID uuid.UUID) ([]HistoryEntry, error) {
	return l.store.GetRidesByUser(ctx, userID)
}

func (l *Lifecycle) List(ctx context.Context) ([]Ride, error) {
	return l.store.GetRides(ctx)
}

func (l *Lifecycle) Current(ctx context.Context, userID uuid.UUID) (Ride, error) {
	return l.store.CurrentRide(ctx, userID)
}

func (l *Lifecycle) Counts(ctx context.Context) (Counts, error) {
	return l.store.CountRides(ctx)
}
