// Package schedule builds a train's daily schedule from a station-by-station
// timing plan and serves the operational reads and updates on it.
package schedule

import (
	"context"
	"log"
	"math"
	"strings"
	"time"

	"github.com/railnet/railnet/models"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Store is the persistence the builder needs
type Store interface {
	GetTrain(ctx context.Context, id string) (*models.Train, error)
	ScheduleExists(ctx context.Context, trainID, departureTime string) (bool, error)
	InsertSchedule(ctx context.Context, s *models.Schedule) error
	GetSchedule(ctx context.Context, id string) (*models.Schedule, error)
	ListSchedules(ctx context.Context, f models.ScheduleFilter) ([]models.Schedule, error)
	CountSchedules(ctx context.Context, f models.ScheduleFilter) (int, error)
	UpdateScheduleStatus(ctx context.Context, id string, status models.ScheduleStatus) error
	UpdateStationSchedule(ctx context.Context, scheduleID string, sequence int, u models.StationScheduleUpdate) (*models.StationSchedule, error)
}

// RouteIndex resolves a route with its stations in travel order
type RouteIndex interface {
	Route(ctx context.Context, routeID string) (*models.Route, error)
}

// StationPlan is the requested timing at one station
type StationPlan struct {
	StationID          string
	EstimatedArrival   time.Time
	EstimatedDeparture time.Time
	Platform           *string
	Remarks            *string
}

// CreateInput describes a new schedule. Stations must list every station of
// the train's route, in route order.
type CreateInput struct {
	TrainID       string
	DepartureTime string // HH:MM
	Stations      []StationPlan
}

// Pagination describes one page of a schedule listing
type Pagination struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"hasMore"`
}

type Page struct {
	Schedules  []models.Schedule `json:"schedules"`
	Pagination Pagination        `json:"pagination"`
}

type Builder struct {
	store  Store
	routes RouteIndex
	loc    *time.Location
}

// NewBuilder creates a Builder. Departure dates are calendar days in loc.
func NewBuilder(store Store, routes RouteIndex, loc *time.Location) *Builder {
	if loc == nil {
		loc = time.UTC
	}
	return &Builder{store: store, routes: routes, loc: loc}
}

// Create validates the plan against the train's route and stores the schedule
// with all of its station entries atomically. Nothing is written on failure.
func (b *Builder) Create(ctx context.Context, in CreateInput) (*models.Schedule, error) {
	if !models.ValidDepartureTime(in.DepartureTime) {
		return nil, models.Invalidf("Invalid time format. Use HH:MM (24-hour format)")
	}

	train, err := b.store.GetTrain(ctx, in.TrainID)
	if err != nil {
		return nil, err
	}
	if train.RouteID == nil || *train.RouteID == "" {
		return nil, models.Conflictf("Train must be assigned to a route before creating a schedule")
	}

	exists, err := b.store.ScheduleExists(ctx, train.ID, in.DepartureTime)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, models.Conflictf("Schedule already exists for this train at the specified time")
	}

	route, err := b.routes.Route(ctx, *train.RouteID)
	if err != nil {
		return nil, err
	}
	if err := matchRoute(route, in.Stations); err != nil {
		return nil, err
	}

	sc := &models.Schedule{
		TrainID:       train.ID,
		RouteID:       route.ID,
		DepartureDate: in.Stations[0].EstimatedDeparture.In(b.loc).Format(models.DateLayout),
		DepartureTime: in.DepartureTime,
		Status:        models.ScheduleScheduled,
	}
	for i, p := range in.Stations {
		ss := models.StationSchedule{
			StationID:          p.StationID,
			RouteStationID:     route.Stations[i].ID,
			SequenceOrder:      i + 1,
			EstimatedArrival:   p.EstimatedArrival.UTC(),
			EstimatedDeparture: p.EstimatedDeparture.UTC(),
			WaitingTime:        minutesBetween(p.EstimatedArrival, p.EstimatedDeparture),
			Status:             models.StationPending,
			Platform:           p.Platform,
			Remarks:            p.Remarks,
		}
		if i > 0 {
			ss.DurationFromPrevious = minutesBetween(in.Stations[i-1].EstimatedDeparture, p.EstimatedArrival)
			if ss.DurationFromPrevious < 0 {
				log.Printf("Warning: schedule for train %s arrives at %s %d minutes before leaving the previous station",
					train.ID, p.StationID, -ss.DurationFromPrevious)
			}
		}
		sc.StationSchedules = append(sc.StationSchedules, ss)
	}

	if err := b.store.InsertSchedule(ctx, sc); err != nil {
		return nil, err
	}
	log.Printf("Schedule %s created for train %s at %s on %s", sc.ID, train.ID, sc.DepartureTime, sc.DepartureDate)

	return b.store.GetSchedule(ctx, sc.ID)
}

// matchRoute requires the plan to name exactly the route's stations in route order
func matchRoute(route *models.Route, plan []StationPlan) error {
	onRoute := make(map[string]bool, len(route.Stations))
	for _, rs := range route.Stations {
		onRoute[rs.StationID] = true
	}

	var missing []string
	for _, p := range plan {
		if !onRoute[p.StationID] {
			missing = append(missing, p.StationID)
		}
	}
	if len(missing) > 0 {
		return models.Conflictf("Stations not found in train route: %s", strings.Join(missing, ", "))
	}

	if len(plan) != len(route.Stations) {
		return models.Conflictf("Station sequence must match the train route order")
	}
	for i, p := range plan {
		if p.StationID != route.Stations[i].StationID {
			return models.Conflictf("Station sequence must match the train route order")
		}
	}
	return nil
}

// minutesBetween rounds to the nearest minute, halves toward later
func minutesBetween(from, to time.Time) int {
	return int(math.Floor(to.Sub(from).Minutes() + 0.5))
}

// Get returns one schedule with its station entries
func (b *Builder) Get(ctx context.Context, id string) (*models.Schedule, error) {
	return b.store.GetSchedule(ctx, id)
}

// List returns one page of schedules, latest departure time first
func (b *Builder) List(ctx context.Context, f models.ScheduleFilter) (*Page, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, models.Invalidf("Invalid schedule status %q", f.Status)
	}
	if f.DepartureTime != "" && !models.ValidDepartureTime(f.DepartureTime) {
		return nil, models.Invalidf("Invalid time format. Use HH:MM (24-hour format)")
	}
	if f.DepartureDate != "" {
		if _, err := time.Parse(models.DateLayout, f.DepartureDate); err != nil {
			return nil, models.Invalidf("Invalid date format. Use YYYY-MM-DD")
		}
	}
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	schedules, err := b.store.ListSchedules(ctx, f)
	if err != nil {
		return nil, err
	}
	total, err := b.store.CountSchedules(ctx, f)
	if err != nil {
		return nil, err
	}

	for i := range schedules {
		route, err := b.routes.Route(ctx, schedules[i].RouteID)
		if err != nil {
			return nil, err
		}
		summary := route.Summary()
		schedules[i].Route = &summary
	}

	return &Page{
		Schedules: schedules,
		Pagination: Pagination{
			Total:   total,
			Limit:   f.Limit,
			Offset:  f.Offset,
			HasMore: f.Offset+f.Limit < total,
		},
	}, nil
}

// UpdateStatus moves a schedule to a new lifecycle status.
// A cancelled schedule accepts no new bookings.
func (b *Builder) UpdateStatus(ctx context.Context, id string, status models.ScheduleStatus) (*models.Schedule, error) {
	if !status.Valid() {
		return nil, models.Invalidf("Invalid schedule status %q", status)
	}
	if err := b.store.UpdateScheduleStatus(ctx, id, status); err != nil {
		return nil, err
	}
	log.Printf("Schedule %s status set to %s", id, status)
	return b.store.GetSchedule(ctx, id)
}

// UpdateStationTiming records operational data for one station entry of a schedule
func (b *Builder) UpdateStationTiming(ctx context.Context, scheduleID string, sequence int, u models.StationScheduleUpdate) (*models.StationSchedule, error) {
	if u.Status != nil && !u.Status.Valid() {
		return nil, models.Invalidf("Invalid station status %q", *u.Status)
	}
	if sequence < 1 {
		return nil, models.NotFoundf("Station schedule not found")
	}
	ss, err := b.store.UpdateStationSchedule(ctx, scheduleID, sequence, u)
	if err != nil {
		return nil, err
	}
	log.Printf("Schedule %s station %d updated (%s)", scheduleID, sequence, ss.Status)
	return ss, nil
}
