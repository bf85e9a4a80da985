package repository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/railnet/railnet/models"
)

//go:embed schema_postgres.sql
var postgresSchema string

// PostgresStore persists the booking engine's entities in PostgreSQL
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// ---------------------------------------------------------------------------
// Master data
// ---------------------------------------------------------------------------

func (s *PostgresStore) CreateStation(ctx context.Context, st *models.Station) error {
	ensureID(&st.ID)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO stations (id, name, city, district) VALUES ($1, $2, $3, $4)`,
		st.ID, st.Name, st.City, st.District)
	if err != nil {
		if isPgUniqueViolation(err) {
			return models.Conflictf("Station %s already exists", st.ID)
		}
		return fmt.Errorf("failed to insert station: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetStation(ctx context.Context, id string) (*models.Station, error) {
	var st models.Station
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, city, district FROM stations WHERE id = $1`, id,
	).Scan(&st.ID, &st.Name, &st.City, &st.District)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.NotFoundf("Station not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query station: %w", err)
	}
	return &st, nil
}

func (s *PostgresStore) CreateRoute(ctx context.Context, r *models.Route) error {
	if err := r.Validate(); err != nil {
		return models.Invalidf("%s", err.Error())
	}
	ensureID(&r.ID)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO routes (id, name, total_distance) VALUES ($1, $2, $3)`,
		r.ID, r.Name, r.TotalDistance); err != nil {
		if isPgUniqueViolation(err) {
			return models.Conflictf("Route %s already exists", r.ID)
		}
		return fmt.Errorf("failed to insert route: %w", err)
	}

	batch := &pgx.Batch{}
	for i := range r.Stations {
		rs := &r.Stations[i]
		ensureID(&rs.ID)
		rs.RouteID = r.ID
		batch.Queue(`
			INSERT INTO route_stations (id, route_id, station_id, distance, distance_from_start)
			VALUES ($1, $2, $3, $4, $5)
		`, rs.ID, rs.RouteID, rs.StationID, rs.Distance, rs.DistanceFromStart)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert route stations: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit route: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetRoute(ctx context.Context, id string) (*models.Route, error) {
	var r models.Route
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, total_distance FROM routes WHERE id = $1`, id,
	).Scan(&r.ID, &r.Name, &r.TotalDistance)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.NotFoundf("Route not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query route: %w", err)
	}

	r.Stations, err = s.ListRouteStations(ctx, id)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func collectRouteStations(rows pgx.Rows) ([]models.RouteStation, error) {
	defer rows.Close()
	var out []models.RouteStation
	for rows.Next() {
		var rs models.RouteStation
		if err := rows.Scan(&rs.ID, &rs.RouteID, &rs.StationID, &rs.StationName, &rs.Distance, &rs.DistanceFromStart); err != nil {
			return nil, fmt.Errorf("failed to scan route station: %w", err)
		}
		out = append(out, rs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating route stations: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListRouteStations(ctx context.Context, routeID string) ([]models.RouteStation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+routeStationColumns+`
		FROM route_stations rs
		JOIN stations st ON st.id = rs.station_id
		WHERE rs.route_id = $1
		ORDER BY rs.distance_from_start
	`, routeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query route stations: %w", err)
	}
	return collectRouteStations(rows)
}

func (s *PostgresStore) ListRouteStationsFor(ctx context.Context, stationIDs ...string) ([]models.RouteStation, error) {
	if len(stationIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+routeStationColumns+`
		FROM route_stations rs
		JOIN stations st ON st.id = rs.station_id
		WHERE rs.station_id = ANY($1)
		ORDER BY rs.route_id, rs.distance_from_start
	`, stationIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query route stations: %w", err)
	}
	return collectRouteStations(rows)
}

func (s *PostgresStore) CreateCompartment(ctx context.Context, c *models.Compartment) error {
	ensureID(&c.ID)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO compartments (id, name, type, total_seat, price) VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.Name, c.Type, c.TotalSeat, c.BasePrice)
	if err != nil {
		if isPgUniqueViolation(err) {
			return models.Conflictf("Compartment %s already exists", c.ID)
		}
		return fmt.Errorf("failed to insert compartment: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateTrain(ctx context.Context, t *models.Train) error {
	ensureID(&t.ID)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO trains (id, name, number, type, route_id) VALUES ($1, $2, $3, $4, $5)`,
		t.ID, t.Name, t.Number, t.Type, t.RouteID); err != nil {
		if isPgUniqueViolation(err) {
			return models.Conflictf("Train number %s already exists", t.Number)
		}
		return fmt.Errorf("failed to insert train: %w", err)
	}

	for _, c := range t.Compartments {
		if _, err := tx.Exec(ctx,
			`INSERT INTO train_compartments (train_id, compartment_id) VALUES ($1, $2)`,
			t.ID, c.ID); err != nil {
			return fmt.Errorf("failed to assign compartment %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit train: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTrain(ctx context.Context, id string) (*models.Train, error) {
	var t models.Train
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, number, type, route_id FROM trains WHERE id = $1`, id,
	).Scan(&t.ID, &t.Name, &t.Number, &t.Type, &t.RouteID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.NotFoundf("Train not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query train: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.name, c.type, c.total_seat, c.price
		FROM train_compartments tc
		JOIN compartments c ON c.id = tc.compartment_id
		WHERE tc.train_id = $1
		ORDER BY c.name, c.id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query compartments: %w", err)
	}
	defer rows.Close()

	t.Compartments = []models.Compartment{}
	for rows.Next() {
		var c models.Compartment
		if err := rows.Scan(&c.ID, &c.Name, &c.Type, &c.TotalSeat, &c.BasePrice); err != nil {
			return nil, fmt.Errorf("failed to scan compartment: %w", err)
		}
		t.Compartments = append(t.Compartments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating compartments: %w", err)
	}
	return &t, nil
}

// ---------------------------------------------------------------------------
// Schedules
// ---------------------------------------------------------------------------

func (s *PostgresStore) ScheduleExists(ctx context.Context, trainID, departureTime string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM schedules WHERE train_id = $1 AND departure_time = $2)`,
		trainID, departureTime,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check schedule: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) InsertSchedule(ctx context.Context, sc *models.Schedule) error {
	prepareSchedule(sc)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO schedules (id, train_id, route_id, departure_date, departure_time, status, created_at)
		VALUES ($1, $2, $3, $4::date, $5, $6, $7)
	`, sc.ID, sc.TrainID, sc.RouteID, sc.DepartureDate, sc.DepartureTime, string(sc.Status), sc.CreatedAt); err != nil {
		if isPgUniqueViolation(err) {
			return models.Conflictf("Schedule already exists for this train at the specified time")
		}
		return fmt.Errorf("failed to insert schedule: %w", err)
	}

	batch := &pgx.Batch{}
	for _, ss := range sc.StationSchedules {
		batch.Queue(`
			INSERT INTO station_schedules (
				id, schedule_id, station_id, route_station_id, sequence_order,
				estimated_arrival, estimated_departure, actual_arrival, actual_departure,
				duration_from_previous, waiting_time, status, platform, remarks
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		`, ss.ID, ss.ScheduleID, ss.StationID, ss.RouteStationID, ss.SequenceOrder,
			ss.EstimatedArrival, ss.EstimatedDeparture, ss.ActualArrival, ss.ActualDeparture,
			ss.DurationFromPrevious, ss.WaitingTime, string(ss.Status), ss.Platform, ss.Remarks)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert station schedules: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit schedule: %w", err)
	}
	return nil
}

const pgScheduleColumns = `
	sc.id, sc.train_id, sc.route_id, sc.departure_date::text, sc.departure_time, sc.status, sc.created_at,
	t.name, t.number, t.type, r.name,
	(SELECT COUNT(*) FROM station_schedules x WHERE x.schedule_id = sc.id)`

func scanPgSchedule(row rowScanner) (*models.Schedule, error) {
	var sc models.Schedule
	var status string
	train := &models.TrainSummary{}
	route := &models.RouteSummary{}
	err := row.Scan(
		&sc.ID, &sc.TrainID, &sc.RouteID, &sc.DepartureDate, &sc.DepartureTime, &status, &sc.CreatedAt,
		&train.Name, &train.Number, &train.Type, &route.Name, &sc.StationCount,
	)
	if err != nil {
		return nil, err
	}
	sc.Status = models.ScheduleStatus(status)
	sc.CreatedAt = sc.CreatedAt.UTC()
	train.ID = sc.TrainID
	route.ID = sc.RouteID
	sc.Train = train
	sc.Route = route
	return &sc, nil
}

func scanPgStationSchedule(row rowScanner) (*models.StationSchedule, error) {
	var ss models.StationSchedule
	var status string
	st := &models.Station{}
	err := row.Scan(
		&ss.ID, &ss.ScheduleID, &ss.StationID, &ss.RouteStationID, &ss.SequenceOrder,
		&ss.EstimatedArrival, &ss.EstimatedDeparture, &ss.ActualArrival, &ss.ActualDeparture,
		&ss.DurationFromPrevious, &ss.WaitingTime, &status, &ss.Platform, &ss.Remarks,
		&st.Name, &st.City, &st.District,
	)
	if err != nil {
		return nil, err
	}
	ss.EstimatedArrival = ss.EstimatedArrival.UTC()
	ss.EstimatedDeparture = ss.EstimatedDeparture.UTC()
	ss.Status = models.StationScheduleStatus(status)
	st.ID = ss.StationID
	ss.Station = st
	return &ss, nil
}

func (s *PostgresStore) GetSchedule(ctx context.Context, id string) (*models.Schedule, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pgScheduleColumns+scheduleJoins+` WHERE sc.id = $1`, id)
	sc, err := scanPgSchedule(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.NotFoundf("Schedule not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query schedule: %w", err)
	}

	rows, err := s.pool.Query(ctx, `SELECT `+stationScheduleColumns+stationScheduleJoins+`
		WHERE ss.schedule_id = $1
		ORDER BY ss.sequence_order
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query station schedules: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		ss, err := scanPgStationSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan station schedule: %w", err)
		}
		sc.StationSchedules = append(sc.StationSchedules, *ss)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating station schedules: %w", err)
	}

	sc.StationCount = len(sc.StationSchedules)
	fillScheduleRoute(sc)
	return sc, nil
}

func (s *PostgresStore) querySchedules(ctx context.Context, query string, args ...interface{}) ([]models.Schedule, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedules: %w", err)
	}
	defer rows.Close()

	schedules := []models.Schedule{}
	for rows.Next() {
		sc, err := scanPgSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		schedules = append(schedules, *sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schedules: %w", err)
	}
	return schedules, nil
}

func (s *PostgresStore) ListSchedules(ctx context.Context, f models.ScheduleFilter) ([]models.Schedule, error) {
	where, args := scheduleFilterClause(f, true)
	n := len(args)
	args = append(args, f.Limit, f.Offset)
	return s.querySchedules(ctx, `SELECT `+pgScheduleColumns+scheduleJoins+where+fmt.Sprintf(`
		ORDER BY sc.departure_time DESC, sc.id
		LIMIT $%d OFFSET $%d
	`, n+1, n+2), args...)
}

func (s *PostgresStore) CountSchedules(ctx context.Context, f models.ScheduleFilter) (int, error) {
	where, args := scheduleFilterClause(f, true)
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM schedules sc`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count schedules: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) ListSchedulesForRoutesOnDate(ctx context.Context, routeIDs []string, date string) ([]models.Schedule, error) {
	if len(routeIDs) == 0 {
		return []models.Schedule{}, nil
	}
	return s.querySchedules(ctx, `SELECT `+pgScheduleColumns+scheduleJoins+`
		WHERE sc.route_id = ANY($1)
		  AND sc.departure_date = $2::date
		ORDER BY sc.departure_time, sc.id
	`, routeIDs, date)
}

func (s *PostgresStore) UpdateScheduleStatus(ctx context.Context, id string, status models.ScheduleStatus) error {
	tag, err := s.pool.Exec(ctx, `UPDATE schedules SET status = $1 WHERE id = $2`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update schedule status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.NotFoundf("Schedule not found")
	}
	return nil
}

func (s *PostgresStore) UpdateStationSchedule(ctx context.Context, scheduleID string, sequence int, u models.StationScheduleUpdate) (*models.StationSchedule, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+stationScheduleColumns+stationScheduleJoins+`
		WHERE ss.schedule_id = $1 AND ss.sequence_order = $2
		FOR UPDATE OF ss
	`, scheduleID, sequence)
	ss, err := scanPgStationSchedule(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.NotFoundf("Station schedule not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query station schedule: %w", err)
	}

	applyStationUpdate(ss, u)

	if _, err := tx.Exec(ctx, `
		UPDATE station_schedules
		SET status = $1, actual_arrival = $2, actual_departure = $3, platform = $4, remarks = $5
		WHERE id = $6
	`, string(ss.Status), ss.ActualArrival, ss.ActualDeparture, ss.Platform, ss.Remarks, ss.ID); err != nil {
		return nil, fmt.Errorf("failed to update station schedule: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit station schedule: %w", err)
	}
	return ss, nil
}

// ---------------------------------------------------------------------------
// Bookings
// ---------------------------------------------------------------------------

// InsertBooking claims the seat; the bookings unique key rejects a second claim
func (s *PostgresStore) InsertBooking(ctx context.Context, b *models.Booking) error {
	prepareBooking(b)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO bookings (
			id, user_id, schedule_id, compartment_id, seat_number,
			from_station_id, to_station_id, price, status, booking_date
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, b.ID, b.UserID, b.ScheduleID, b.CompartmentID, b.SeatNumber,
		b.FromStationID, b.ToStationID, b.Price, string(b.Status), b.BookingDate)
	if err != nil {
		if isPgUniqueViolation(err) {
			return models.Conflictf("Seat already booked")
		}
		return fmt.Errorf("failed to insert booking: %w", err)
	}
	return nil
}

const pgBookingColumns = `id, user_id, schedule_id, compartment_id, seat_number,
	from_station_id, to_station_id, price::float8, status, booking_date`

func scanPgBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	var status string
	err := row.Scan(&b.ID, &b.UserID, &b.ScheduleID, &b.CompartmentID, &b.SeatNumber,
		&b.FromStationID, &b.ToStationID, &b.Price, &status, &b.BookingDate)
	if err != nil {
		return nil, err
	}
	b.Status = models.BookingStatus(status)
	b.BookingDate = b.BookingDate.UTC()
	return &b, nil
}

func (s *PostgresStore) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pgBookingColumns+` FROM bookings WHERE id = $1`, id)
	b, err := scanPgBooking(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.NotFoundf("Booking not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query booking: %w", err)
	}
	return b, nil
}

func (s *PostgresStore) ListBookings(ctx context.Context, scheduleID, compartmentID string) ([]models.Booking, error) {
	return s.queryBookings(ctx, `SELECT `+pgBookingColumns+`
		FROM bookings
		WHERE schedule_id = $1 AND compartment_id = $2
		ORDER BY booking_date, id
	`, scheduleID, compartmentID)
}

// ListUserBookings returns a user's bookings, newest first
func (s *PostgresStore) ListUserBookings(ctx context.Context, userID string) ([]models.Booking, error) {
	return s.queryBookings(ctx, `SELECT `+pgBookingColumns+`
		FROM bookings
		WHERE user_id = $1
		ORDER BY booking_date DESC, id
	`, userID)
}

func (s *PostgresStore) queryBookings(ctx context.Context, query string, args ...interface{}) ([]models.Booking, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	var bookings []models.Booking
	for rows.Next() {
		b, err := scanPgBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bookings: %w", err)
	}
	return bookings, nil
}
