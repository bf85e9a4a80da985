// Package testnet seeds a small railway network into a store for package tests.
package testnet

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/railnet/railnet/models"
	"github.com/railnet/railnet/repository"
)

// Fixed ids of the seeded network.
//
// Route "A-C Line": A(0km) -> B(60km) -> C(100km), run by TrainAC.
// Route "C-A Line": C(0km) -> B(40km) -> A(100km), run by TrainCA.
// StationD is on no route; TrainIdle has no route.
const (
	StationA = "st-a"
	StationB = "st-b"
	StationC = "st-c"
	StationD = "st-d"

	RouteAC = "route-ac"
	RouteCA = "route-ca"

	Chair   = "cmp-chair"   // 500.00, 2 seats
	Sleeper = "cmp-sleeper" // 300.00, 4 seats
	Spare   = "cmp-spare"   // assigned to no train

	TrainAC   = "train-ac"
	TrainCA   = "train-ca"
	TrainIdle = "train-idle"
)

// Seeder is the master-data write surface used to build the network
type Seeder interface {
	CreateStation(ctx context.Context, s *models.Station) error
	CreateRoute(ctx context.Context, r *models.Route) error
	CreateCompartment(ctx context.Context, c *models.Compartment) error
	CreateTrain(ctx context.Context, t *models.Train) error
}

// NewSQLite opens a fresh SQLite store in the test's temp dir with the schema applied
func NewSQLite(t testing.TB) *repository.SQLiteStore {
	t.Helper()
	store, err := repository.NewSQLiteStore(filepath.Join(t.TempDir(), "railnet.db"))
	if err != nil {
		t.Fatalf("Failed to open test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("Failed to apply schema: %v", err)
	}
	return store
}

// Seed writes the fixed network into s
func Seed(t testing.TB, s Seeder) {
	t.Helper()
	ctx := context.Background()

	for _, st := range []models.Station{
		{ID: StationA, Name: "Alpha", City: "Alpha City"},
		{ID: StationB, Name: "Bravo", City: "Bravo Town"},
		{ID: StationC, Name: "Charlie", City: "Charlie Port"},
		{ID: StationD, Name: "Delta", City: "Delta Junction"},
	} {
		st := st
		if err := s.CreateStation(ctx, &st); err != nil {
			t.Fatalf("CreateStation %s: %v", st.ID, err)
		}
	}

	routes := []models.Route{
		{
			ID: RouteAC, Name: "A-C Line", TotalDistance: 100,
			Stations: []models.RouteStation{
				{ID: "rs-ac-a", StationID: StationA, Distance: 0, DistanceFromStart: 0},
				{ID: "rs-ac-b", StationID: StationB, Distance: 60, DistanceFromStart: 60},
				{ID: "rs-ac-c", StationID: StationC, Distance: 40, DistanceFromStart: 100},
			},
		},
		{
			ID: RouteCA, Name: "C-A Line", TotalDistance: 100,
			Stations: []models.RouteStation{
				{ID: "rs-ca-c", StationID: StationC, Distance: 0, DistanceFromStart: 0},
				{ID: "rs-ca-b", StationID: StationB, Distance: 40, DistanceFromStart: 40},
				{ID: "rs-ca-a", StationID: StationA, Distance: 60, DistanceFromStart: 100},
			},
		},
	}
	for i := range routes {
		if err := s.CreateRoute(ctx, &routes[i]); err != nil {
			t.Fatalf("CreateRoute %s: %v", routes[i].ID, err)
		}
	}

	compartments := []models.Compartment{
		{ID: Chair, Name: "AC Chair", Type: "chair", TotalSeat: 2, BasePrice: 500},
		{ID: Sleeper, Name: "Sleeper", Type: "sleeper", TotalSeat: 4, BasePrice: 300},
		{ID: Spare, Name: "Spare", Type: "chair", TotalSeat: 10, BasePrice: 100},
	}
	for i := range compartments {
		if err := s.CreateCompartment(ctx, &compartments[i]); err != nil {
			t.Fatalf("CreateCompartment %s: %v", compartments[i].ID, err)
		}
	}

	routeAC, routeCA := RouteAC, RouteCA
	trains := []models.Train{
		{ID: TrainAC, Name: "Morning Express", Number: "101", Type: "express", RouteID: &routeAC,
			Compartments: []models.Compartment{compartments[0], compartments[1]}},
		{ID: TrainCA, Name: "Return Express", Number: "102", Type: "express", RouteID: &routeCA,
			Compartments: []models.Compartment{compartments[1]}},
		{ID: TrainIdle, Name: "Yard Shunter", Number: "900", Type: "local"},
	}
	for i := range trains {
		if err := s.CreateTrain(ctx, &trains[i]); err != nil {
			t.Fatalf("CreateTrain %s: %v", trains[i].ID, err)
		}
	}
}

// ScheduleInserter is the write surface used by InsertSchedule
type ScheduleInserter interface {
	InsertSchedule(ctx context.Context, s *models.Schedule) error
}

// InsertSchedule stores a schedule departing at dep, bypassing the builder.
// Stops follow the given station order with an hour between stops and a five minute dwell.
func InsertSchedule(t testing.TB, s ScheduleInserter, trainID, routeID string, stations []string, dep time.Time, status models.ScheduleStatus) *models.Schedule {
	t.Helper()

	sc := &models.Schedule{
		TrainID:       trainID,
		RouteID:       routeID,
		DepartureDate: dep.Format(models.DateLayout),
		DepartureTime: dep.Format("15:04"),
		Status:        status,
	}
	prefix := "rs-ac-"
	if routeID == RouteCA {
		prefix = "rs-ca-"
	}
	var prevDep time.Time
	for i, stationID := range stations {
		arr := dep.Add(time.Duration(i) * time.Hour)
		depAt := arr
		if i > 0 {
			depAt = arr.Add(5 * time.Minute)
		}
		ss := models.StationSchedule{
			StationID:          stationID,
			RouteStationID:     prefix + stationID[len(stationID)-1:],
			SequenceOrder:      i + 1,
			EstimatedArrival:   arr,
			EstimatedDeparture: depAt,
			WaitingTime:        int(depAt.Sub(arr).Minutes()),
		}
		if i > 0 {
			ss.DurationFromPrevious = int(arr.Sub(prevDep).Minutes())
		}
		prevDep = depAt
		sc.StationSchedules = append(sc.StationSchedules, ss)
	}
	if err := s.InsertSchedule(context.Background(), sc); err != nil {
		t.Fatalf("InsertSchedule: %v", err)
	}
	return sc
}

// RouteACStations is the station order of RouteAC
var RouteACStations = []string{StationA, StationB, StationC}

// RouteCAStations is the station order of RouteCA
var RouteCAStations = []string{StationC, StationB, StationA}
