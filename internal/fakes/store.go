// Package fakes provides in-memory stand-ins for the Postgres repositories,
// the payment provider and the notification sink. The store applies the same
// conditional updates the SQL does, under one mutex.
package fakes

import (
	"cmp"
	"context"
	"database/sql"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/semanticallynull/bikeshare-backend/bike"
	"github.com/semanticallynull/bikeshare-backend/customer"
	"github.com/semanticallynull/bikeshare-backend/geo"
	"github.com/semanticallynull/bikeshare-backend/ride"
	"github.com/semanticallynull/bikeshare-backend/station"
)

type stationBike struct {
	stationID uuid.UUID
	bikeID    uuid.UUID
}

type Store struct {
	mu sync.Mutex

	bikes        map[uuid.UUID]bike.Bike
	stations     map[uuid.UUID]station.Station
	stationBikes []stationBike
	rides        map[uuid.UUID]ride.Ride
	customers    map[uuid.UUID]customer.Customer

	// Fail, when set, is returned by the named method instead of running it.
	Fail map[string]error
}

var (
	_ bike.Store     = (*Store)(nil)
	_ station.Store  = (*Store)(nil)
	_ ride.Store     = (*Store)(nil)
	_ customer.Store = (*Store)(nil)
)

func NewStore() *Store {
	return &Store{
		bikes:     make(map[uuid.UUID]bike.Bike),
		stations:  make(map[uuid.UUID]station.Station),
		rides:     make(map[uuid.UUID]ride.Ride),
		customers: make(map[uuid.UUID]customer.Customer),
		Fail:      make(map[string]error),
	}
}

func (s *Store) failure(method string) error {
	return s.Fail[method]
}

func pt(p geo.Point) pgtype.Point {
	return pgtype.Point{P: pgtype.Vec2{X: p.Lat, Y: p.Lng}, Valid: true}
}

// Bikes

func (s *Store) GetBikes(ctx context.Context) ([]bike.Bike, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("GetBikes"); err != nil {
		return nil, err
	}
	out := make([]bike.Bike, 0, len(s.bikes))
	for _, b := range s.bikes {
		if b.StationID != nil {
			if st, ok := s.stations[*b.StationID]; ok {
				name := st.Name
				b.StationName = &name
			}
		}
		out = append(out, b)
	}
	slices.SortFunc(out, func(a, b bike.Bike) int { return cmp.Compare(a.Code, b.Code) })
	return out, nil
}

func (s *Store) GetBike(ctx context.Context, id uuid.UUID) (bike.Bike, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bikes[id]
	if !ok {
		return bike.Bike{}, bike.ErrNotFound
	}
	return b, nil
}

func (s *Store) GetBikeByCode(ctx context.Context, code string) (bike.Bike, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bikes {
		if b.Code == code {
			return b, nil
		}
	}
	return bike.Bike{}, bike.ErrNotFound
}

func (s *Store) CreateBike(ctx context.Context, b *bike.Bike) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.bikes {
		if existing.Code == b.Code {
			return bike.ErrCodeTaken
		}
	}
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	s.bikes[b.ID] = *b
	return nil
}

func (s *Store) DeleteBike(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bikes[id]; !ok {
		return bike.ErrNotFound
	}
	for _, r := range s.rides {
		if r.BikeID == id && r.Status == ride.StatusOngoing {
			return bike.ErrInUse
		}
	}
	delete(s.bikes, id)
	s.stationBikes = slices.DeleteFunc(s.stationBikes, func(sb stationBike) bool { return sb.bikeID == id })
	return nil
}

func (s *Store) ReserveBike(ctx context.Context, id, userID uuid.UUID, now time.Time) (bike.Bike, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("ReserveBike"); err != nil {
		return bike.Bike{}, err
	}
	b, ok := s.bikes[id]
	if !ok {
		return bike.Bike{}, bike.ErrNotFound
	}
	lapsed := b.AutoReleaseAt.Valid && !b.AutoReleaseAt.Time.After(now)
	heldByUser := b.AssignedTo != nil && *b.AssignedTo == userID && b.AutoReleaseAt.Valid
	if !b.Available && !lapsed && !heldByUser {
		return bike.Bike{}, bike.ErrNotAvailable
	}
	holder := userID
	b.Available = false
	b.AssignedTo = &holder
	b.AutoReleaseAt = sql.NullTime{}
	b.UnlockOTP, b.OTPGeneratedAt = sql.NullString{}, sql.NullTime{}
	s.bikes[id] = b
	return b, nil
}

func (s *Store) ReleaseBike(ctx context.Context, id uuid.UUID, at *geo.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("ReleaseBike"); err != nil {
		return err
	}
	b, ok := s.bikes[id]
	if !ok {
		return bike.ErrNotFound
	}
	b.Available = true
	b.AssignedTo = nil
	b.AutoReleaseAt = sql.NullTime{}
	b.UnlockOTP, b.OTPGeneratedAt = sql.NullString{}, sql.NullTime{}
	if at != nil {
		b.Location = pt(*at)
	}
	s.bikes[id] = b
	return nil
}

func (s *Store) ReleaseExpired(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, b := range s.bikes {
		if !b.Available && b.AutoReleaseAt.Valid && !b.AutoReleaseAt.Time.After(now) {
			b.Available = true
			b.AssignedTo = nil
			b.AutoReleaseAt = sql.NullTime{}
			s.bikes[id] = b
			n++
		}
	}
	return n, nil
}

func (s *Store) AssignStation(ctx context.Context, id, stationID uuid.UUID, at geo.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bikes[id]
	if !ok {
		return bike.ErrNotFound
	}
	sid := stationID
	b.StationID = &sid
	b.Location = pt(at)
	s.bikes[id] = b
	s.stationBikes = slices.DeleteFunc(s.stationBikes, func(sb stationBike) bool {
		return sb.bikeID == id && sb.stationID != stationID
	})
	return nil
}

func (s *Store) SetOTP(ctx context.Context, id uuid.UUID, code string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bikes[id]
	if !ok {
		return bike.ErrNotFound
	}
	lapsed := b.AutoReleaseAt.Valid && !b.AutoReleaseAt.Time.After(at)
	if !b.Available && !lapsed {
		return bike.ErrNotAvailable
	}
	b.UnlockOTP = sql.NullString{String: code, Valid: true}
	b.OTPGeneratedAt = sql.NullTime{Time: at, Valid: true}
	b.Available = true
	b.AssignedTo = nil
	b.AutoReleaseAt = sql.NullTime{}
	s.bikes[id] = b
	return nil
}

func (s *Store) Unlock(ctx context.Context, id uuid.UUID, code string, holder *uuid.UUID, releaseAt time.Time) (bike.Bike, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bikes[id]
	if !ok {
		return bike.Bike{}, bike.ErrNotFound
	}
	if !b.Available || !b.UnlockOTP.Valid || b.UnlockOTP.String != code {
		return bike.Bike{}, bike.ErrNotAvailable
	}
	b.Available = false
	b.UnlockOTP, b.OTPGeneratedAt = sql.NullString{}, sql.NullTime{}
	b.AssignedTo = holder
	b.AutoReleaseAt = sql.NullTime{Time: releaseAt, Valid: true}
	s.bikes[id] = b
	return b, nil
}

func (s *Store) CountBikes(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bikes), nil
}

// Stations

func (s *Store) GetStations(ctx context.Context) ([]station.Station, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("GetStations"); err != nil {
		return nil, err
	}
	out := make([]station.Station, 0, len(s.stations))
	for _, st := range s.stations {
		st.Bikes = s.bikesAt(st.ID)
		out = append(out, st)
	}
	slices.SortFunc(out, func(a, b station.Station) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}

func (s *Store) GetStation(ctx context.Context, id uuid.UUID) (station.Station, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stations[id]
	if !ok {
		return station.Station{}, station.ErrNotFound
	}
	st.Bikes = s.bikesAt(id)
	return st, nil
}

func (s *Store) bikesAt(stationID uuid.UUID) []uuid.UUID {
	var ids []uuid.UUID
	for _, sb := range s.stationBikes {
		if sb.stationID == stationID {
			ids = append(ids, sb.bikeID)
		}
	}
	return ids
}

func (s *Store) CreateStation(ctx context.Context, st *station.Station) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.stations {
		if existing.Name == st.Name {
			return station.ErrNameTaken
		}
	}
	if st.ID == uuid.Nil {
		st.ID = uuid.New()
	}
	st.CreatedAt = time.Now()
	s.stations[st.ID] = *st
	return nil
}

func (s *Store) DeleteStation(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.stations[id]; !ok {
		return station.ErrNotFound
	}
	for _, b := range s.bikes {
		if b.StationID != nil && *b.StationID == id {
			return station.ErrHasAssignedBikes
		}
	}
	delete(s.stations, id)
	s.stationBikes = slices.DeleteFunc(s.stationBikes, func(sb stationBike) bool { return sb.stationID == id })
	return nil
}

func (s *Store) AddBike(ctx context.Context, stationID, bikeID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sb := range s.stationBikes {
		if sb.stationID == stationID && sb.bikeID == bikeID {
			return nil
		}
	}
	s.stationBikes = append(s.stationBikes, stationBike{stationID: stationID, bikeID: bikeID})
	return nil
}

func (s *Store) AvailableBikeCounts(ctx context.Context) (map[uuid.UUID]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[uuid.UUID]int)
	for _, b := range s.bikes {
		if b.Available && b.StationID != nil {
			counts[*b.StationID]++
		}
	}
	return counts, nil
}

func (s *Store) CountStations(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stations), nil
}

// Rides

func (s *Store) CreateRide(ctx context.Context, r *ride.Ride) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("CreateRide"); err != nil {
		return err
	}
	for _, existing := range s.rides {
		if existing.BikeID == r.BikeID && existing.Status == ride.StatusOngoing {
			return ride.ErrRideInProgress
		}
	}
	s.rides[r.ID] = *r
	return nil
}

func (s *Store) GetRide(ctx context.Context, id uuid.UUID) (ride.Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rides[id]
	if !ok {
		return ride.Ride{}, ride.ErrNotFound
	}
	return r, nil
}

func (s *Store) CompleteRide(ctx context.Context, id uuid.UUID, c ride.Completion) (ride.Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("CompleteRide"); err != nil {
		return ride.Ride{}, err
	}
	r, ok := s.rides[id]
	if !ok {
		return ride.Ride{}, ride.ErrNotFound
	}
	if r.Status != ride.StatusOngoing {
		return ride.Ride{}, ride.ErrAlreadyCompleted
	}
	r.EndLat = sql.NullFloat64{Float64: c.EndLat, Valid: true}
	r.EndLng = sql.NullFloat64{Float64: c.EndLng, Valid: true}
	r.EndTime = sql.NullTime{Time: c.EndTime, Valid: true}
	r.Distance = sql.NullFloat64{Float64: c.Distance, Valid: true}
	r.PenaltyAmount = c.PenaltyAmount
	r.PenaltyReason = c.PenaltyReason
	r.Status = ride.StatusCompleted
	s.rides[id] = r
	return r, nil
}

func (s *Store) MarkPaid(ctx context.Context, id uuid.UUID, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("MarkPaid"); err != nil {
		return err
	}
	r, ok := s.rides[id]
	if !ok {
		return ride.ErrNotFound
	}
	r.PaymentStatus = ride.PaymentPaid
	r.PaymentRef = sql.NullString{String: ref, Valid: true}
	s.rides[id] = r
	return nil
}

func (s *Store) GetRidesByUser(ctx context.Context, userID uuid.UUID) ([]ride.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ride.HistoryEntry
	for _, r := range s.rides {
		if r.UserID != userID {
			continue
		}
		e := ride.HistoryEntry{Ride: r}
		if r.DestinationStationID != nil {
			if st, ok := s.stations[*r.DestinationStationID]; ok {
				e.DestinationStationName = sql.NullString{String: st.Name, Valid: true}
			}
		}
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b ride.HistoryEntry) int { return b.StartTime.Compare(a.StartTime) })
	return out, nil
}

func (s *Store) GetRides(ctx context.Context) ([]ride.Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ride.Ride, 0, len(s.rides))
	for _, r := range s.rides {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b ride.Ride) int { return b.StartTime.Compare(a.StartTime) })
	return out, nil
}

func (s *Store) CurrentRide(ctx context.Context, userID uuid.UUID) (ride.Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var current *ride.Ride
	for _, r := range s.rides {
		if r.UserID == userID && r.Status == ride.StatusOngoing {
			if current == nil || r.StartTime.After(current.StartTime) {
				current = &r
			}
		}
	}
	if current == nil {
		return ride.Ride{}, ride.ErrNoRideInProgress
	}
	return *current, nil
}

func (s *Store) CountRides(ctx context.Context) (ride.Counts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var c ride.Counts
	for _, r := range s.rides {
		c.Total++
		switch r.Status {
		case ride.StatusOngoing:
			c.Ongoing++
		case ride.StatusCompleted:
			c.Completed++
			c.TotalPenalty += r.PenaltyAmount
		}
	}
	return c, nil
}

// Ride returns the stored ride, for assertions.
func (s *Store) Ride(id uuid.UUID) (ride.Ride, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rides[id]
	return r, ok
}

// Customers

func (s *Store) GetCustomer(ctx context.Context, id uuid.UUID) (*customer.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[id]
	if !ok {
		return nil, customer.ErrNotFound
	}
	return &c, nil
}

func (s *Store) GetCustomerByAuth0ID(ctx context.Context, auth0ID string) (*customer.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.customers {
		if c.Auth0ID == auth0ID {
			return &c, nil
		}
	}
	return nil, customer.ErrNotFound
}

func (s *Store) CreateCustomer(ctx context.Context, auth0ID string) (*customer.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.customers {
		if c.Auth0ID == auth0ID {
			return &c, nil
		}
	}
	c := customer.Customer{ID: uuid.New(), Auth0ID: auth0ID, CreatedAt: time.Now()}
	s.customers[c.ID] = c
	return &c, nil
}

func (s *Store) UpdateProfile(ctx context.Context, auth0ID, email, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.customers {
		if c.Auth0ID == auth0ID {
			c.Email = sql.NullString{String: email, Valid: email != ""}
			c.Name = sql.NullString{String: name, Valid: name != ""}
			s.customers[id] = c
		}
	}
	return nil
}

func (s *Store) CountCustomers(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.customers), nil
}
