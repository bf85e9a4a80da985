// Package routeindex answers ordering questions about routes: which stations a
// route visits, in what order, and how far each one is from the start.
package routeindex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bluele/gcache"

	"github.com/railnet/railnet/models"
)

// RouteStore loads a route with its stations ordered by distance from the start
type RouteStore interface {
	GetRoute(ctx context.Context, id string) (*models.Route, error)
}

// Stop is one station's position on a route
type Stop struct {
	StationID         string  `json:"stationId"`
	StationName       string  `json:"stationName,omitempty"`
	DistanceFromStart float64 `json:"distanceFromStart"`
}

// Positions maps station id to distance from the route start
type Positions map[string]float64

// Of returns the station's distance from the start and whether it is on the route
func (p Positions) Of(stationID string) (float64, bool) {
	d, ok := p[stationID]
	return d, ok
}

// Index is a read-only projection over routes. Routes referenced by trains do
// not change, so loaded routes are kept in an LRU with expiration.
type Index struct {
	store RouteStore
	cache gcache.Cache
}

func New(store RouteStore, size int, ttl time.Duration) *Index {
	if size <= 0 {
		size = 1
	}
	b := gcache.New(size).LRU()
	if ttl > 0 {
		b = b.Expiration(ttl)
	}
	return &Index{store: store, cache: b.Build()}
}

// Route returns the route with its ordered stations. The result is shared; do not modify it.
func (ix *Index) Route(ctx context.Context, routeID string) (*models.Route, error) {
	if v, err := ix.cache.Get(routeID); err == nil {
		return v.(*models.Route), nil
	} else if !errors.Is(err, gcache.KeyNotFoundError) {
		return nil, fmt.Errorf("failed to read route cache: %w", err)
	}

	route, err := ix.store.GetRoute(ctx, routeID)
	if err != nil {
		return nil, err
	}
	if err := ix.cache.Set(routeID, route); err != nil {
		return nil, fmt.Errorf("failed to cache route: %w", err)
	}
	return route, nil
}

// StationsInOrder returns the route's stops sorted ascending by distance from the start
func (ix *Index) StationsInOrder(ctx context.Context, routeID string) ([]Stop, error) {
	route, err := ix.Route(ctx, routeID)
	if err != nil {
		return nil, err
	}
	stops := make([]Stop, len(route.Stations))
	for i, rs := range route.Stations {
		stops[i] = Stop{StationID: rs.StationID, StationName: rs.StationName, DistanceFromStart: rs.DistanceFromStart}
	}
	return stops, nil
}

// Positions returns every station's distance from the start of the route
func (ix *Index) Positions(ctx context.Context, routeID string) (Positions, error) {
	route, err := ix.Route(ctx, routeID)
	if err != nil {
		return nil, err
	}
	p := make(Positions, len(route.Stations))
	for _, rs := range route.Stations {
		p[rs.StationID] = rs.DistanceFromStart
	}
	return p, nil
}

// PositionOf returns the station's distance from the start of the route
func (ix *Index) PositionOf(ctx context.Context, routeID, stationID string) (float64, error) {
	p, err := ix.Positions(ctx, routeID)
	if err != nil {
		return 0, err
	}
	d, ok := p.Of(stationID)
	if !ok {
		return 0, models.NotFoundf("Station %s is not on route %s", stationID, routeID)
	}
	return d, nil
}
