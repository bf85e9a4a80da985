// Package search finds the scheduled trains that run from one station toward
// another on a given calendar date.
package search

import (
	"context"
	"sort"
	"time"

	"github.com/railnet/railnet/models"
)

type Store interface {
	ListRouteStationsFor(ctx context.Context, stationIDs ...string) ([]models.RouteStation, error)
	ListSchedulesForRoutesOnDate(ctx context.Context, routeIDs []string, date string) ([]models.Schedule, error)
	GetTrain(ctx context.Context, id string) (*models.Train, error)
}

// Result is one bookable train run for the searched journey
type Result struct {
	ScheduleID    string                `json:"scheduleId"`
	Train         models.TrainSummary   `json:"train"`
	DepartureDate string                `json:"departureDate"`
	DepartureTime string                `json:"departureTime"`
	Status        models.ScheduleStatus `json:"status"`
	Compartments  []models.Compartment  `json:"compartments"`
}

type Searcher struct {
	store Store
}

func NewSearcher(store Store) *Searcher {
	return &Searcher{store: store}
}

// RoutesBetween returns the routes that visit from before to, ordered by route id
func (s *Searcher) RoutesBetween(ctx context.Context, from, to string) ([]string, error) {
	entries, err := s.store.ListRouteStationsFor(ctx, from, to)
	if err != nil {
		return nil, err
	}

	type ends struct {
		from, to       float64
		hasFrom, hasTo bool
	}
	byRoute := make(map[string]*ends)
	var order []string
	for _, rs := range entries {
		e, ok := byRoute[rs.RouteID]
		if !ok {
			e = &ends{}
			byRoute[rs.RouteID] = e
			order = append(order, rs.RouteID)
		}
		switch rs.StationID {
		case from:
			e.from, e.hasFrom = rs.DistanceFromStart, true
		case to:
			e.to, e.hasTo = rs.DistanceFromStart, true
		}
	}

	var routes []string
	for _, id := range order {
		e := byRoute[id]
		if e.hasFrom && e.hasTo && e.from < e.to {
			routes = append(routes, id)
		}
	}
	sort.Strings(routes)
	return routes, nil
}

// Search lists the schedules on date whose route runs from toward to, earliest departure first.
// It fails with Invalid when no route serves the pair in that direction.
func (s *Searcher) Search(ctx context.Context, from, to, date string) ([]Result, error) {
	if _, err := time.Parse(models.DateLayout, date); err != nil {
		return nil, models.Invalidf("Invalid date format. Use YYYY-MM-DD")
	}

	routes, err := s.RoutesBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if len(routes) == 0 {
		return nil, models.Invalidf("No valid train routes found between these stations")
	}

	schedules, err := s.store.ListSchedulesForRoutesOnDate(ctx, routes, date)
	if err != nil {
		return nil, err
	}

	trains := make(map[string]*models.Train)
	results := make([]Result, 0, len(schedules))
	for _, sc := range schedules {
		train, ok := trains[sc.TrainID]
		if !ok {
			train, err = s.store.GetTrain(ctx, sc.TrainID)
			if err != nil {
				return nil, err
			}
			trains[sc.TrainID] = train
		}
		results = append(results, Result{
			ScheduleID:    sc.ID,
			Train:         train.Summary(),
			DepartureDate: sc.DepartureDate,
			DepartureTime: sc.DepartureTime,
			Status:        sc.Status,
			Compartments:  train.Compartments,
		})
	}

	// "9:05" sorts after "10:00" as text
	sort.SliceStable(results, func(i, j int) bool {
		return clock(results[i].DepartureTime) < clock(results[j].DepartureTime)
	})
	return results, nil
}

func clock(hhmm string) int {
	m, err := models.ClockMinutes(hhmm)
	if err != nil {
		return 24 * 60
	}
	return m
}
