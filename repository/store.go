package repository

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/railnet/railnet/models"
)

// Store is the full persistence surface used by the composition root.
// SQLiteStore and PostgresStore both implement it; the engine packages
// each depend on the narrow subset they need.
type Store interface {
	EnsureSchema(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error

	CreateStation(ctx context.Context, s *models.Station) error
	GetStation(ctx context.Context, id string) (*models.Station, error)
	CreateRoute(ctx context.Context, r *models.Route) error
	GetRoute(ctx context.Context, id string) (*models.Route, error)
	ListRouteStations(ctx context.Context, routeID string) ([]models.RouteStation, error)
	ListRouteStationsFor(ctx context.Context, stationIDs ...string) ([]models.RouteStation, error)
	CreateCompartment(ctx context.Context, c *models.Compartment) error
	CreateTrain(ctx context.Context, t *models.Train) error
	GetTrain(ctx context.Context, id string) (*models.Train, error)

	ScheduleExists(ctx context.Context, trainID, departureTime string) (bool, error)
	InsertSchedule(ctx context.Context, s *models.Schedule) error
	GetSchedule(ctx context.Context, id string) (*models.Schedule, error)
	ListSchedules(ctx context.Context, f models.ScheduleFilter) ([]models.Schedule, error)
	CountSchedules(ctx context.Context, f models.ScheduleFilter) (int, error)
	ListSchedulesForRoutesOnDate(ctx context.Context, routeIDs []string, date string) ([]models.Schedule, error)
	UpdateScheduleStatus(ctx context.Context, id string, status models.ScheduleStatus) error
	UpdateStationSchedule(ctx context.Context, scheduleID string, sequence int, u models.StationScheduleUpdate) (*models.StationSchedule, error)

	InsertBooking(ctx context.Context, b *models.Booking) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	ListBookings(ctx context.Context, scheduleID, compartmentID string) ([]models.Booking, error)
	ListUserBookings(ctx context.Context, userID string) ([]models.Booking, error)
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

// Open connects to the store selected by driver ("sqlite" or "postgres")
func Open(ctx context.Context, driver, sqlitePath, databaseURL string) (Store, error) {
	switch driver {
	case "sqlite", "":
		if dir := filepath.Dir(sqlitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		log.Printf("Connecting to SQLite database: %s", sqlitePath)
		s, err := NewSQLiteStore(sqlitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		if databaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
		log.Println("Connecting to PostgreSQL database")
		s, err := NewPostgresStore(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}
}

func ensureID(id *string) {
	if *id == "" {
		*id = uuid.New().String()
	}
}

// placeholders returns "?, ?, ?" for sqlite or "$n, $n+1, ..." for postgres
func placeholders(n, start int, dollar bool) string {
	parts := make([]string, n)
	for i := range parts {
		if dollar {
			parts[i] = "$" + strconv.Itoa(start+i)
		} else {
			parts[i] = "?"
		}
	}
	return strings.Join(parts, ", ")
}

// applyStationUpdate merges an operational update into a station entry
func applyStationUpdate(ss *models.StationSchedule, u models.StationScheduleUpdate) {
	if u.Status != nil {
		ss.Status = *u.Status
	}
	if u.ActualArrival != nil {
		t := u.ActualArrival.UTC()
		ss.ActualArrival = &t
	}
	if u.ActualDeparture != nil {
		t := u.ActualDeparture.UTC()
		ss.ActualDeparture = &t
	}
	if u.Platform != nil {
		ss.Platform = u.Platform
	}
	if u.Remarks != nil {
		ss.Remarks = u.Remarks
	}
}

// fillScheduleRoute sets the route summary's end stations from the ordered station entries
func fillScheduleRoute(s *models.Schedule) {
	if s.Route == nil || len(s.StationSchedules) == 0 {
		return
	}
	first := s.StationSchedules[0]
	last := s.StationSchedules[len(s.StationSchedules)-1]
	if first.Station != nil {
		s.Route.StartStation = &models.StationRef{ID: first.StationID, Name: first.Station.Name}
	}
	if last.Station != nil {
		s.Route.EndStation = &models.StationRef{ID: last.StationID, Name: last.Station.Name}
	}
}

// scheduleFilterClause renders the WHERE clause for a schedule listing
func scheduleFilterClause(f models.ScheduleFilter, dollar bool) (string, []interface{}) {
	var conds []string
	var args []interface{}
	add := func(col string, v interface{}, cast string) {
		args = append(args, v)
		if dollar {
			conds = append(conds, col+" = $"+strconv.Itoa(len(args))+cast)
		} else {
			conds = append(conds, col+" = ?")
		}
	}
	if f.TrainID != "" {
		add("sc.train_id", f.TrainID, "")
	}
	if f.DepartureDate != "" {
		add("sc.departure_date", f.DepartureDate, "::date")
	}
	if f.DepartureTime != "" {
		add("sc.departure_time", f.DepartureTime, "")
	}
	if f.Status != "" {
		add("sc.status", string(f.Status), "")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// prepareSchedule assigns ids, defaults and parent links before insertion
func prepareSchedule(sc *models.Schedule) {
	ensureID(&sc.ID)
	if sc.Status == "" {
		sc.Status = models.ScheduleScheduled
	}
	if sc.CreatedAt.IsZero() {
		sc.CreatedAt = time.Now().UTC().Truncate(time.Second)
	}
	for i := range sc.StationSchedules {
		ss := &sc.StationSchedules[i]
		ensureID(&ss.ID)
		ss.ScheduleID = sc.ID
		if ss.Status == "" {
			ss.Status = models.StationPending
		}
	}
	sc.StationCount = len(sc.StationSchedules)
}

func prepareBooking(b *models.Booking) {
	ensureID(&b.ID)
	if b.Status == "" {
		b.Status = models.BookingConfirmed
	}
	if b.BookingDate.IsZero() {
		b.BookingDate = time.Now().UTC().Truncate(time.Second)
	}
}
