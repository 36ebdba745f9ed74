package station

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

var (
	ErrNotFound         = errors.New("station not found")
	ErrNameTaken        = errors.New("station with this name already exists")
	ErrHasAssignedBikes = errors.New("station has assigned bikes")
)

const uniqueViolation = "23505"

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{
		db: db,
	}
}

func (r *Repository) GetStations(ctx context.Context) ([]Station, error) {
	var stations []Station
	if err := r.db.SelectContext(ctx, &stations, getStations); err != nil {
		return nil, err
	}

	var members []membership
	if err := r.db.SelectContext(ctx, &members, getAllStationBikes); err != nil {
		return nil, err
	}
	byStation := make(map[uuid.UUID][]uuid.UUID)
	for _, m := range members {
		byStation[m.StationID] = append(byStation[m.StationID], m.BikeID)
	}
	for i := range stations {
		stations[i].Bikes = byStation[stations[i].ID]
	}
	return stations, nil
}

const getStations = `SELECT * FROM stations ORDER BY name`

const getAllStationBikes = `SELECT station_id, bike_id FROM station_bikes ORDER BY added_at, bike_id`

type membership struct {
	StationID uuid.UUID `db:"station_id"`
	BikeID    uuid.UUID `db:"bike_id"`
}

func (r *Repository) GetStation(ctx context.Context, id uuid.UUID) (Station, error) {
	var station Station
	err := r.db.GetContext(ctx, &station, getStation, id)
	if errors.Is(err, sql.ErrNoRows) {
		return station, ErrNotFound
	}
	if err != nil {
		return station, err
	}

	err = r.db.SelectContext(ctx, &station.Bikes, getStationBikes, id)
	return station, err
}

const getStation = `SELECT * FROM stations WHERE id = $1`

const getStationBikes = `SELECT bike_id FROM station_bikes WHERE station_id = $1 ORDER BY added_at, bike_id`

// CreateStation inserts s, filling in its ID and CreatedAt.
func (r *Repository) CreateStation(ctx context.Context, s *Station) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	err := r.db.GetContext(ctx, s, createStation, s.ID, s.Name, s.Location.P.X, s.Location.P.Y, s.Capacity)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrNameTaken
	}
	return err
}

const createStation = `
INSERT INTO stations (id, name, location, capacity, created_at)
VALUES ($1, $2, point($3, $4), $5, now())
RETURNING *
`

// DeleteStation removes a station that no bike references.
func (r *Repository) DeleteStation(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var locked uuid.UUID
	err = tx.GetContext(ctx, &locked, lockStation, id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	var assigned int
	if err = tx.GetContext(ctx, &assigned, countAssignedBikes, id); err != nil {
		return err
	}
	if assigned > 0 {
		return ErrHasAssignedBikes
	}

	if _, err = tx.ExecContext(ctx, deleteStation, id); err != nil {
		return err
	}
	return tx.Commit()
}

const lockStation = `SELECT id FROM stations WHERE id = $1 FOR UPDATE`
const countAssignedBikes = `SELECT count(*) FROM bikes WHERE station_id = $1`
const deleteStation = `DELETE FROM stations WHERE id = $1`

// AddBike appends a bike to the station's bike list. Adding a bike twice is
// a no-op.
func (r *Repository) AddBike(ctx context.Context, stationID, bikeID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, addStationBike, stationID, bikeID)
	return err
}

const addStationBike = `
INSERT INTO station_bikes (station_id, bike_id, added_at)
VALUES ($1, $2, now())
ON CONFLICT (station_id, bike_id) DO NOTHING
`

// AvailableBikeCounts returns the number of available bikes per station.
// Stations without available bikes are absent from the map.
func (r *Repository) AvailableBikeCounts(ctx context.Context) (map[uuid.UUID]int, error) {
	var rows []struct {
		StationID uuid.UUID `db:"station_id"`
		Count     int       `db:"count"`
	}
	if err := r.db.SelectContext(ctx, &rows, availableBikeCounts); err != nil {
		return nil, err
	}
	counts := make(map[uuid.UUID]int, len(rows))
	for _, row := range rows {
		counts[row.StationID] = row.Count
	}
	return counts, nil
}

const availableBikeCounts = `
SELECT station_id, count(*) AS count FROM bikes
WHERE available AND station_id IS NOT NULL
GROUP BY station_id
`

func (r *Repository) CountStations(ctx context.Context) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, countStations)
	return n, err
}

const countStations = `SELECT count(*) FROM stations`
