package models

import (
	"errors"
	"fmt"
)

// Station is a stop on the network. Immutable for the booking engine.
type Station struct {
	ID       string `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	City     string `db:"city" json:"city,omitempty"`
	District string `db:"district" json:"district,omitempty"`
}

// StationRef is the display projection of a station
type StationRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Route is a fixed ordered sequence of stations with cumulative distances (km)
type Route struct {
	ID            string         `db:"id" json:"id"`
	Name          string         `db:"name" json:"name"`
	TotalDistance float64        `db:"total_distance" json:"totalDistance"`
	Stations      []RouteStation `json:"stations,omitempty"`
}

// RouteStation is one station's place on a route
type RouteStation struct {
	ID                string  `db:"id" json:"id"`
	RouteID           string  `db:"route_id" json:"routeId"`
	StationID         string  `db:"station_id" json:"stationId"`
	StationName       string  `json:"stationName,omitempty"`
	Distance          float64 `db:"distance" json:"distance"` // from the previous station
	DistanceFromStart float64 `db:"distance_from_start" json:"distanceFromStart"`
}

// RouteSummary is embedded in schedule and booking responses
type RouteSummary struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	StartStation *StationRef `json:"startStation,omitempty"`
	EndStation   *StationRef `json:"endStation,omitempty"`
}

// Validate checks the distance invariants of the route:
// first station at 0, strictly increasing, last station at TotalDistance.
func (r *Route) Validate() error {
	if r.Name == "" {
		return errors.New("route name is required")
	}
	if len(r.Stations) < 2 {
		return errors.New("route must have at least two stations")
	}
	if r.Stations[0].DistanceFromStart != 0 {
		return errors.New("first station must have distance_from_start 0")
	}

	seen := make(map[string]bool, len(r.Stations))
	for i, rs := range r.Stations {
		if rs.StationID == "" {
			return fmt.Errorf("station %d has no station id", i+1)
		}
		if seen[rs.StationID] {
			return fmt.Errorf("station %s appears twice on the route", rs.StationID)
		}
		seen[rs.StationID] = true

		if i > 0 && rs.DistanceFromStart <= r.Stations[i-1].DistanceFromStart {
			return fmt.Errorf("distance_from_start must be strictly increasing (station %d)", i+1)
		}
	}

	last := r.Stations[len(r.Stations)-1].DistanceFromStart
	if last != r.TotalDistance {
		return fmt.Errorf("last station distance %.2f does not match total distance %.2f", last, r.TotalDistance)
	}
	return nil
}

// Summary returns the display projection with start and end stations
func (r *Route) Summary() RouteSummary {
	s := RouteSummary{ID: r.ID, Name: r.Name}
	if n := len(r.Stations); n > 0 {
		s.StartStation = &StationRef{ID: r.Stations[0].StationID, Name: r.Stations[0].StationName}
		s.EndStation = &StationRef{ID: r.Stations[n-1].StationID, Name: r.Stations[n-1].StationName}
	}
	return s
}

// StationIDs returns the station ids in route order
func (r *Route) StationIDs() []string {
	ids := make([]string, len(r.Stations))
	for i, rs := range r.Stations {
		ids[i] = rs.StationID
	}
	return ids
}

// FindStation returns the route entry for a station
func (r *Route) FindStation(stationID string) (RouteStation, bool) {
	for _, rs := range r.Stations {
		if rs.StationID == stationID {
			return rs, true
		}
	}
	return RouteStation{}, false
}
