package station

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var stationColumns = []string{"id", "name", "location", "capacity", "created_at"}

func newMockRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(sqlx.NewDb(db, "pgx")), mock
}

func TestGetStationsAttachesBikes(t *testing.T) {
	repo, mock := newMockRepository(t)
	a, b := uuid.New(), uuid.New()
	bike1, bike2 := uuid.New(), uuid.New()
	now := time.Now()

	mock.ExpectQuery(`SELECT \* FROM stations ORDER BY name`).
		WillReturnRows(sqlmock.NewRows(stationColumns).
			AddRow(a.String(), "Jawalakhel", "(27.6796,85.319458)", 10, now).
			AddRow(b.String(), "Pulchowk", "(27.673389,85.312648)", 10, now))
	mock.ExpectQuery(`SELECT station_id, bike_id FROM station_bikes`).
		WillReturnRows(sqlmock.NewRows([]string{"station_id", "bike_id"}).
			AddRow(a.String(), bike2.String()).
			AddRow(a.String(), bike1.String()))

	stations, err := repo.GetStations(context.Background())
	require.NoError(t, err)
	require.Len(t, stations, 2)
	assert.Equal(t, []uuid.UUID{bike2, bike1}, stations[0].Bikes)
	assert.Empty(t, stations[1].Bikes)
	assert.InDelta(t, 27.6796, stations[0].Point().Lat, 1e-9)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateStationNameTaken(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(`INSERT INTO stations`).
		WithArgs(sqlmock.AnyArg(), "Jawalakhel", 27.6796, 85.319458, 10).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	s := &Station{
		Name:     "Jawalakhel",
		Location: pgtype.Point{P: pgtype.Vec2{X: 27.6796, Y: 85.319458}, Valid: true},
		Capacity: 10,
	}
	assert.ErrorIs(t, repo.CreateStation(context.Background(), s), ErrNameTaken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteStation(t *testing.T) {
	id := uuid.New()

	t.Run("Has Assigned Bikes", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT id FROM stations WHERE id = \$1 FOR UPDATE`).
			WithArgs(id.String()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(id.String()))
		mock.ExpectQuery(`SELECT count\(\*\) FROM bikes`).
			WithArgs(id.String()).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
		mock.ExpectRollback()

		assert.ErrorIs(t, repo.DeleteStation(context.Background(), id), ErrHasAssignedBikes)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Not Found", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT id FROM stations WHERE id = \$1 FOR UPDATE`).
			WithArgs(id.String()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectRollback()

		assert.ErrorIs(t, repo.DeleteStation(context.Background(), id), ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAvailableBikeCounts(t *testing.T) {
	repo, mock := newMockRepository(t)
	a := uuid.New()

	mock.ExpectQuery(`SELECT station_id, count\(\*\) AS count FROM bikes`).
		WillReturnRows(sqlmock.NewRows([]string{"station_id", "count"}).AddRow(a.String(), 3))

	counts, err := repo.AvailableBikeCounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]int{a: 3}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}
