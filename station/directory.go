package station

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/semanticallynull/bikeshare-backend/geo"
)

var ErrInvalidStation = errors.New("station requires a name and valid coordinates")

// Store is the persistence the Directory needs. *Repository implements it.
type Store interface {
	GetStations(ctx context.Context) ([]Station, error)
	GetStation(ctx context.Context, id uuid.UUID) (Station, error)
	CreateStation(ctx context.Context, s *Station) error
	DeleteStation(ctx context.Context, id uuid.UUID) error
	AddBike(ctx context.Context, stationID, bikeID uuid.UUID) error
	AvailableBikeCounts(ctx context.Context) (map[uuid.UUID]int, error)
	CountStations(ctx context.Context) (int, error)
}

var _ Store = (*Repository)(nil)

// Directory is the read-mostly registry of stations.
type Directory struct {
	store Store
}

func NewDirectory(store Store) *Directory {
	return &Directory{store: store}
}

// Create registers a station. A non-positive capacity falls back to
// DefaultCapacity.
func (d *Directory) Create(ctx context.Context, name string, at geo.Point, capacity int) (Station, error) {
	name = strings.TrimSpace(name)
	if name == "" || !at.InRange() {
		return Station{}, ErrInvalidStation
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	s := Station{
		Name:     name,
		Location: pgtype.Point{P: pgtype.Vec2{X: at.Lat, Y: at.Lng}, Valid: true},
		Capacity: capacity,
	}
	if err := d.store.CreateStation(ctx, &s); err != nil {
		return Station{}, err
	}
	return s, nil
}

func (d *Directory) List(ctx context.Context) ([]Station, error) {
	return d.store.GetStations(ctx)
}

func (d *Directory) Get(ctx context.Context, id uuid.UUID) (Station, error) {
	return d.store.GetStation(ctx, id)
}

func (d *Directory) Delete(ctx context.Context, id uuid.UUID) error {
	return d.store.DeleteStation(ctx, id)
}

func (d *Directory) Count(ctx context.Context) (int, error) {
	return d.store.CountStations(ctx)
}

// Nearest ranks every station by distance from at and returns the closest k,
// each with its count of available bikes. k <= 0 returns all stations.
// Equidistant stations are ordered by name.
func (d *Directory) Nearest(ctx context.Context, at geo.Point, k int) ([]Nearby, error) {
	if !at.InRange() {
		return nil, geo.ErrInvalidPoint
	}

	stations, err := d.store.GetStations(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := d.store.AvailableBikeCounts(ctx)
	if err != nil {
		return nil, err
	}

	ranked := make([]Nearby, 0, len(stations))
	for _, s := range stations {
		ranked = append(ranked, Nearby{
			Station:        s,
			DistanceKm:     geo.DistanceBetween(at, s.Point()),
			AvailableBikes: counts[s.ID],
		})
	}
	slices.SortStableFunc(ranked, func(a, b Nearby) int {
		if c := cmp.Compare(a.DistanceKm, b.DistanceKm); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})

	if k > 0 && k < len(ranked) {
		ranked = ranked[:k]
	}
	return ranked, nil
}
