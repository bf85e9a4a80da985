package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/railnet/railnet/models"
)

//go:embed schema.sql
var sqliteSchema string

// SQLiteStore persists the booking engine's entities in a single SQLite file
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens a SQLite database with WAL mode and foreign keys enabled
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite has a single writer. One connection serializes every transaction,
	// including the concurrent seat claims that race on the bookings unique key.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			log.Printf("Warning: failed to set %s: %v", pragma, err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// EnsureSchema creates all tables if they don't exist
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// isSQLiteUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY constraint failure
func isSQLiteUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

// parseTimeString converts an RFC3339 string to *time.Time
// Returns nil if the input is nil or empty
func parseTimeString(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil
	}
	return &t
}

func parseRequiredTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// ---------------------------------------------------------------------------
// Master data
// ---------------------------------------------------------------------------

func (s *SQLiteStore) CreateStation(ctx context.Context, st *models.Station) error {
	ensureID(&st.ID)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stations (id, name, city, district) VALUES (?, ?, ?, ?)`,
		st.ID, st.Name, st.City, st.District)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return models.Conflictf("Station %s already exists", st.ID)
		}
		return fmt.Errorf("failed to insert station: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetStation(ctx context.Context, id string) (*models.Station, error) {
	var st models.Station
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, city, district FROM stations WHERE id = ?`, id,
	).Scan(&st.ID, &st.Name, &st.City, &st.District)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFoundf("Station not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query station: %w", err)
	}
	return &st, nil
}

// CreateRoute stores the route and its ordered stations in one transaction
func (s *SQLiteStore) CreateRoute(ctx context.Context, r *models.Route) error {
	if err := r.Validate(); err != nil {
		return models.Invalidf("%s", err.Error())
	}
	ensureID(&r.ID)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO routes (id, name, total_distance) VALUES (?, ?, ?)`,
		r.ID, r.Name, r.TotalDistance); err != nil {
		if isSQLiteUniqueViolation(err) {
			return models.Conflictf("Route %s already exists", r.ID)
		}
		return fmt.Errorf("failed to insert route: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO route_stations (id, route_id, station_id, distance, distance_from_start)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare route station insert: %w", err)
	}
	defer stmt.Close()

	for i := range r.Stations {
		rs := &r.Stations[i]
		ensureID(&rs.ID)
		rs.RouteID = r.ID
		if _, err := stmt.ExecContext(ctx, rs.ID, rs.RouteID, rs.StationID, rs.Distance, rs.DistanceFromStart); err != nil {
			return fmt.Errorf("failed to insert route station %s: %w", rs.StationID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit route: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetRoute(ctx context.Context, id string) (*models.Route, error) {
	var r models.Route
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, total_distance FROM routes WHERE id = ?`, id,
	).Scan(&r.ID, &r.Name, &r.TotalDistance)
	if errors.Is(err, sql.ErrNoRows) {
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

const routeStationColumns = `rs.id, rs.route_id, rs.station_id, st.name, rs.distance, rs.distance_from_start`

func scanRouteStations(rows *sql.Rows) ([]models.RouteStation, error) {
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

// ListRouteStations returns a route's stations ordered by distance from the start
func (s *SQLiteStore) ListRouteStations(ctx context.Context, routeID string) ([]models.RouteStation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+routeStationColumns+`
		FROM route_stations rs
		JOIN stations st ON st.id = rs.station_id
		WHERE rs.route_id = ?
		ORDER BY rs.distance_from_start
	`, routeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query route stations: %w", err)
	}
	defer rows.Close()
	return scanRouteStations(rows)
}

// ListRouteStationsFor returns every route entry of the given stations, across all routes
func (s *SQLiteStore) ListRouteStationsFor(ctx context.Context, stationIDs ...string) ([]models.RouteStation, error) {
	if len(stationIDs) == 0 {
		return nil, nil
	}
	args := make([]interface{}, len(stationIDs))
	for i, id := range stationIDs {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+routeStationColumns+`
		FROM route_stations rs
		JOIN stations st ON st.id = rs.station_id
		WHERE rs.station_id IN (`+placeholders(len(args), 1, false)+`)
		ORDER BY rs.route_id, rs.distance_from_start
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query route stations: %w", err)
	}
	defer rows.Close()
	return scanRouteStations(rows)
}

func (s *SQLiteStore) CreateCompartment(ctx context.Context, c *models.Compartment) error {
	ensureID(&c.ID)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO compartments (id, name, type, total_seat, price) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Type, c.TotalSeat, c.BasePrice)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return models.Conflictf("Compartment %s already exists", c.ID)
		}
		return fmt.Errorf("failed to insert compartment: %w", err)
	}
	return nil
}

// CreateTrain stores the train and its compartment assignments in one transaction
func (s *SQLiteStore) CreateTrain(ctx context.Context, t *models.Train) error {
	ensureID(&t.ID)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO trains (id, name, number, type, route_id) VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Number, t.Type, t.RouteID); err != nil {
		if isSQLiteUniqueViolation(err) {
			return models.Conflictf("Train number %s already exists", t.Number)
		}
		return fmt.Errorf("failed to insert train: %w", err)
	}

	for _, c := range t.Compartments {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO train_compartments (train_id, compartment_id) VALUES (?, ?)`,
			t.ID, c.ID); err != nil {
			return fmt.Errorf("failed to assign compartment %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit train: %w", err)
	}
	return nil
}

// GetTrain returns the train with its assigned compartments
func (s *SQLiteStore) GetTrain(ctx context.Context, id string) (*models.Train, error) {
	var t models.Train
	var routeID sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, number, type, route_id FROM trains WHERE id = ?`, id,
	).Scan(&t.ID, &t.Name, &t.Number, &t.Type, &routeID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFoundf("Train not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query train: %w", err)
	}
	if routeID.Valid {
		t.RouteID = &routeID.String
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.name, c.type, c.total_seat, c.price
		FROM train_compartments tc
		JOIN compartments c ON c.id = tc.compartment_id
		WHERE tc.train_id = ?
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

func (s *SQLiteStore) ScheduleExists(ctx context.Context, trainID, departureTime string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM schedules WHERE train_id = ? AND departure_time = ?)`,
		trainID, departureTime,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check schedule: %w", err)
	}
	return exists, nil
}

// InsertSchedule writes the schedule and all of its station entries in one transaction
func (s *SQLiteStore) InsertSchedule(ctx context.Context, sc *models.Schedule) error {
	prepareSchedule(sc)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO schedules (id, train_id, route_id, departure_date, departure_time, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, sc.ID, sc.TrainID, sc.RouteID, sc.DepartureDate, sc.DepartureTime, string(sc.Status), formatTime(sc.CreatedAt)); err != nil {
		if isSQLiteUniqueViolation(err) {
			return models.Conflictf("Schedule already exists for this train at the specified time")
		}
		return fmt.Errorf("failed to insert schedule: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO station_schedules (
			id, schedule_id, station_id, route_station_id, sequence_order,
			estimated_arrival, estimated_departure, actual_arrival, actual_departure,
			duration_from_previous, waiting_time, status, platform, remarks
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare station schedule insert: %w", err)
	}
	defer stmt.Close()

	for _, ss := range sc.StationSchedules {
		if _, err := stmt.ExecContext(ctx,
			ss.ID, ss.ScheduleID, ss.StationID, ss.RouteStationID, ss.SequenceOrder,
			formatTime(ss.EstimatedArrival), formatTime(ss.EstimatedDeparture),
			formatTimePtr(ss.ActualArrival), formatTimePtr(ss.ActualDeparture),
			ss.DurationFromPrevious, ss.WaitingTime, string(ss.Status), ss.Platform, ss.Remarks,
		); err != nil {
			return fmt.Errorf("failed to insert station schedule %d: %w", ss.SequenceOrder, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schedule: %w", err)
	}
	return nil
}

const scheduleColumns = `
	sc.id, sc.train_id, sc.route_id, sc.departure_date, sc.departure_time, sc.status, sc.created_at,
	t.name, t.number, t.type, r.name,
	(SELECT COUNT(*) FROM station_schedules x WHERE x.schedule_id = sc.id)`

const scheduleJoins = `
	FROM schedules sc
	JOIN trains t ON t.id = sc.train_id
	JOIN routes r ON r.id = sc.route_id`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSQLiteSchedule(row rowScanner) (*models.Schedule, error) {
	var sc models.Schedule
	var status, createdAt string
	train := &models.TrainSummary{}
	route := &models.RouteSummary{}
	err := row.Scan(
		&sc.ID, &sc.TrainID, &sc.RouteID, &sc.DepartureDate, &sc.DepartureTime, &status, &createdAt,
		&train.Name, &train.Number, &train.Type, &route.Name, &sc.StationCount,
	)
	if err != nil {
		return nil, err
	}
	sc.Status = models.ScheduleStatus(status)
	if sc.CreatedAt, err = parseRequiredTime(createdAt); err != nil {
		return nil, err
	}
	train.ID = sc.TrainID
	route.ID = sc.RouteID
	sc.Train = train
	sc.Route = route
	return &sc, nil
}

// GetSchedule returns the schedule with its ordered station entries and display summaries
func (s *SQLiteStore) GetSchedule(ctx context.Context, id string) (*models.Schedule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+scheduleJoins+` WHERE sc.id = ?`, id)
	sc, err := scanSQLiteSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFoundf("Schedule not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query schedule: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+stationScheduleColumns+stationScheduleJoins+`
		WHERE ss.schedule_id = ?
		ORDER BY ss.sequence_order
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query station schedules: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		ss, err := scanSQLiteStationSchedule(rows)
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

const stationScheduleColumns = `
	ss.id, ss.schedule_id, ss.station_id, ss.route_station_id, ss.sequence_order,
	ss.estimated_arrival, ss.estimated_departure, ss.actual_arrival, ss.actual_departure,
	ss.duration_from_previous, ss.waiting_time, ss.status, ss.platform, ss.remarks,
	st.name, st.city, st.district`

const stationScheduleJoins = `
	FROM station_schedules ss
	JOIN stations st ON st.id = ss.station_id`

func scanSQLiteStationSchedule(row rowScanner) (*models.StationSchedule, error) {
	var ss models.StationSchedule
	var estArr, estDep, status string
	var actArr, actDep *string
	st := &models.Station{}
	err := row.Scan(
		&ss.ID, &ss.ScheduleID, &ss.StationID, &ss.RouteStationID, &ss.SequenceOrder,
		&estArr, &estDep, &actArr, &actDep,
		&ss.DurationFromPrevious, &ss.WaitingTime, &status, &ss.Platform, &ss.Remarks,
		&st.Name, &st.City, &st.District,
	)
	if err != nil {
		return nil, err
	}
	if ss.EstimatedArrival, err = parseRequiredTime(estArr); err != nil {
		return nil, err
	}
	if ss.EstimatedDeparture, err = parseRequiredTime(estDep); err != nil {
		return nil, err
	}
	ss.ActualArrival = parseTimeString(actArr)
	ss.ActualDeparture = parseTimeString(actDep)
	ss.Status = models.StationScheduleStatus(status)
	st.ID = ss.StationID
	ss.Station = st
	return &ss, nil
}

func (s *SQLiteStore) querySchedules(ctx context.Context, query string, args ...interface{}) ([]models.Schedule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedules: %w", err)
	}
	defer rows.Close()

	schedules := []models.Schedule{}
	for rows.Next() {
		sc, err := scanSQLiteSchedule(rows)
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

// ListSchedules returns one page of schedules, latest departure time first
func (s *SQLiteStore) ListSchedules(ctx context.Context, f models.ScheduleFilter) ([]models.Schedule, error) {
	where, args := scheduleFilterClause(f, false)
	args = append(args, f.Limit, f.Offset)
	return s.querySchedules(ctx, `SELECT `+scheduleColumns+scheduleJoins+where+`
		ORDER BY sc.departure_time DESC, sc.id
		LIMIT ? OFFSET ?
	`, args...)
}

func (s *SQLiteStore) CountSchedules(ctx context.Context, f models.ScheduleFilter) (int, error) {
	where, args := scheduleFilterClause(f, false)
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schedules sc`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count schedules: %w", err)
	}
	return n, nil
}

// ListSchedulesForRoutesOnDate returns the schedules of the given routes bound to a calendar date
func (s *SQLiteStore) ListSchedulesForRoutesOnDate(ctx context.Context, routeIDs []string, date string) ([]models.Schedule, error) {
	if len(routeIDs) == 0 {
		return []models.Schedule{}, nil
	}
	args := make([]interface{}, 0, len(routeIDs)+1)
	for _, id := range routeIDs {
		args = append(args, id)
	}
	args = append(args, date)
	return s.querySchedules(ctx, `SELECT `+scheduleColumns+scheduleJoins+`
		WHERE sc.route_id IN (`+placeholders(len(routeIDs), 1, false)+`)
		  AND sc.departure_date = ?
		ORDER BY sc.departure_time, sc.id
	`, args...)
}

func (s *SQLiteStore) UpdateScheduleStatus(ctx context.Context, id string, status models.ScheduleStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE schedules SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update schedule status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return models.NotFoundf("Schedule not found")
	}
	return nil
}

// UpdateStationSchedule applies an operational update to one station entry of a schedule
func (s *SQLiteStore) UpdateStationSchedule(ctx context.Context, scheduleID string, sequence int, u models.StationScheduleUpdate) (*models.StationSchedule, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT `+stationScheduleColumns+stationScheduleJoins+`
		WHERE ss.schedule_id = ? AND ss.sequence_order = ?
	`, scheduleID, sequence)
	ss, err := scanSQLiteStationSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFoundf("Station schedule not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query station schedule: %w", err)
	}

	applyStationUpdate(ss, u)

	if _, err := tx.ExecContext(ctx, `
		UPDATE station_schedules
		SET status = ?, actual_arrival = ?, actual_departure = ?, platform = ?, remarks = ?
		WHERE id = ?
	`, string(ss.Status), formatTimePtr(ss.ActualArrival), formatTimePtr(ss.ActualDeparture), ss.Platform, ss.Remarks, ss.ID); err != nil {
		return nil, fmt.Errorf("failed to update station schedule: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit station schedule: %w", err)
	}
	return ss, nil
}

// ---------------------------------------------------------------------------
// Bookings
// ---------------------------------------------------------------------------

// InsertBooking claims the seat. The bookings unique key makes the claim atomic:
// of two concurrent inserts for one seat, exactly one commits.
func (s *SQLiteStore) InsertBooking(ctx context.Context, b *models.Booking) error {
	prepareBooking(b)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bookings (
			id, user_id, schedule_id, compartment_id, seat_number,
			from_station_id, to_station_id, price, status, booking_date
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, b.ID, b.UserID, b.ScheduleID, b.CompartmentID, b.SeatNumber,
		b.FromStationID, b.ToStationID, b.Price, string(b.Status), formatTime(b.BookingDate))
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return models.Conflictf("Seat already booked")
		}
		return fmt.Errorf("failed to insert booking: %w", err)
	}
	return nil
}

const bookingColumns = `id, user_id, schedule_id, compartment_id, seat_number,
	from_station_id, to_station_id, price, status, booking_date`

func scanSQLiteBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	var status, bookedAt string
	err := row.Scan(&b.ID, &b.UserID, &b.ScheduleID, &b.CompartmentID, &b.SeatNumber,
		&b.FromStationID, &b.ToStationID, &b.Price, &status, &bookedAt)
	if err != nil {
		return nil, err
	}
	b.Status = models.BookingStatus(status)
	if b.BookingDate, err = parseRequiredTime(bookedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *SQLiteStore) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	b, err := scanSQLiteBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFoundf("Booking not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query booking: %w", err)
	}
	return b, nil
}

// ListBookings returns the live bookings of one compartment on one schedule
func (s *SQLiteStore) ListBookings(ctx context.Context, scheduleID, compartmentID string) ([]models.Booking, error) {
	return s.queryBookings(ctx, `SELECT `+bookingColumns+`
		FROM bookings
		WHERE schedule_id = ? AND compartment_id = ?
		ORDER BY booking_date, id
	`, scheduleID, compartmentID)
}

// ListUserBookings returns a user's bookings, newest first
func (s *SQLiteStore) ListUserBookings(ctx context.Context, userID string) ([]models.Booking, error) {
	return s.queryBookings(ctx, `SELECT `+bookingColumns+`
		FROM bookings
		WHERE user_id = ?
		ORDER BY booking_date DESC, id
	`, userID)
}

func (s *SQLiteStore) queryBookings(ctx context.Context, query string, args ...interface{}) ([]models.Booking, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	var bookings []models.Booking
	for rows.Next() {
		b, err := scanSQLiteBooking(rows)
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
