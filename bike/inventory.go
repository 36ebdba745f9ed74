package bike

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/semanticallynull/bikeshare-backend/geo"
	"github.com/semanticallynull/bikeshare-backend/station"
)

var ErrInvalidBike = errors.New("bike requires a code")

// Store is the persistence the Inventory needs. *Repository implements it.
type Store interface {
	GetBikes(ctx context.Context) ([]Bike, error)
	GetBike(ctx context.Context, id uuid.UUID) (Bike, error)
	GetBikeByCode(ctx context.Context, code string) (Bike, error)
	CreateBike(ctx context.Context, b *Bike) error
	DeleteBike(ctx context.Context, id uuid.UUID) error
	ReserveBike(ctx context.Context, id, userID uuid.UUID, now time.Time) (Bike, error)
	ReleaseBike(ctx context.Context, id uuid.UUID, at *geo.Point) error
	ReleaseExpired(ctx context.Context, now time.Time) (int64, error)
	AssignStation(ctx context.Context, id, stationID uuid.UUID, at geo.Point) error
	CountBikes(ctx context.Context) (int, error)
}

var _ Store = (*Repository)(nil)

// StationStore resolves and updates the stations bikes are docked at.
type StationStore interface {
	GetStation(ctx context.Context, id uuid.UUID) (station.Station, error)
	AddBike(ctx context.Context, stationID, bikeID uuid.UUID) error
}

// Inventory owns bike availability: reservation, release, the lazy
// auto-release sweep and station assignment.
type Inventory struct {
	store    Store
	stations StationStore
	logger   *slog.Logger
	now      func() time.Time
}

func NewInventory(store Store, stations StationStore, logger *slog.Logger) *Inventory {
	return &Inventory{
		store:    store,
		stations: stations,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock replaces the time source.
func (i *Inventory) WithClock(now func() time.Time) *Inventory {
	i.now = now
	return i
}

// Listing is a bike as shown in the inventory, with the countdown until a
// held bike frees itself.
type Listing struct {
	Bike
	AvailableInMinutes *int
}

// List sweeps lapsed unlock holds back to available and returns every bike.
func (i *Inventory) List(ctx context.Context) ([]Listing, error) {
	now := i.now()
	released, err := i.store.ReleaseExpired(ctx, now)
	if err != nil {
		return nil, err
	}
	if released > 0 {
		i.logger.InfoContext(ctx, "released bikes with lapsed unlock holds", "count", released)
	}

	bikes, err := i.store.GetBikes(ctx)
	if err != nil {
		return nil, err
	}
	listings := make([]Listing, 0, len(bikes))
	for _, b := range bikes {
		listings = append(listings, Listing{Bike: b, AvailableInMinutes: b.AvailableInMinutes(now)})
	}
	return listings, nil
}

func (i *Inventory) Get(ctx context.Context, id uuid.UUID) (Bike, error) {
	return i.store.GetBike(ctx, id)
}

func (i *Inventory) GetByCode(ctx context.Context, code string) (Bike, error) {
	return i.store.GetBikeByCode(ctx, code)
}

func (i *Inventory) Count(ctx context.Context) (int, error) {
	return i.store.CountBikes(ctx)
}

// Create adds an available bike. When stationID is set the bike is docked
// there and takes the station's coordinates instead of at.
func (i *Inventory) Create(ctx context.Context, code string, at geo.Point, stationID *uuid.UUID) (Bike, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Bike{}, ErrInvalidBike
	}

	b := Bike{Code: code, Available: true, Location: point(at)}
	if stationID != nil {
		s, err := i.stations.GetStation(ctx, *stationID)
		if err != nil {
			return Bike{}, err
		}
		b.StationID = stationID
		b.Location = s.Location
	}
	if err := i.store.CreateBike(ctx, &b); err != nil {
		return Bike{}, err
	}
	if stationID != nil {
		if err := i.stations.AddBike(ctx, *stationID, b.ID); err != nil {
			return Bike{}, err
		}
	}
	return b, nil
}

func (i *Inventory) Delete(ctx context.Context, id uuid.UUID) error {
	return i.store.DeleteBike(ctx, id)
}

// Reserve takes the bike for userID. It fails with ErrNotFound or
// ErrNotAvailable and never changes the bike's station or location.
func (i *Inventory) Reserve(ctx context.Context, id, userID uuid.UUID) (Bike, error) {
	return i.store.ReserveBike(ctx, id, userID, i.now())
}

// Release makes the bike available again. When at is non-nil it is recorded
// as the bike's last known location.
func (i *Inventory) Release(ctx context.Context, id uuid.UUID, at *geo.Point) error {
	return i.store.ReleaseBike(ctx, id, at)
}

// AssignToStation docks the bike at a station, snapping its location to the
// station. Assigning the same bike twice leaves a single entry in the
// station's bike list.
func (i *Inventory) AssignToStation(ctx context.Context, bikeID, stationID uuid.UUID) error {
	s, err := i.stations.GetStation(ctx, stationID)
	if err != nil {
		return err
	}
	if err := i.store.AssignStation(ctx, bikeID, stationID, s.Point()); err != nil {
		return err
	}
	return i.stations.AddBike(ctx, stationID, bikeID)
}

// Unassigned returns up to limit bikes that are not docked at any station.
func (i *Inventory) Unassigned(ctx context.Context, limit int) ([]Bike, error) {
	bikes, err := i.store.GetBikes(ctx)
	if err != nil {
		return nil, err
	}
	var out []Bike
	for _, b := range bikes {
		if b.StationID != nil {
			continue
		}
		out = append(out, b)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
