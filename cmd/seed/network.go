package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"

	"github.com/railnet/railnet/models"
)

// NetworkFile is the master data loaded by the seed command
type NetworkFile struct {
	Stations     []models.Station     `json:"stations"`
	Compartments []models.Compartment `json:"compartments"`
	Routes       []RouteFile          `json:"routes"`
	Trains       []TrainFile          `json:"trains"`
}

// RouteFile lists a route's stops with the distance (km) from the previous stop
type RouteFile struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Stops []struct {
		StationID string  `json:"stationId"`
		Distance  float64 `json:"distance"`
	} `json:"stops"`
}

// TrainFile references its route and compartments by id
type TrainFile struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Number       string   `json:"number"`
	Type         string   `json:"type"`
	RouteID      string   `json:"routeId,omitempty"`
	Compartments []string `json:"compartments"`
}

// Writer is the master-data write surface of the store
type Writer interface {
	CreateStation(ctx context.Context, s *models.Station) error
	CreateRoute(ctx context.Context, r *models.Route) error
	CreateCompartment(ctx context.Context, c *models.Compartment) error
	CreateTrain(ctx context.Context, t *models.Train) error
}

func readNetwork(r io.Reader) (*NetworkFile, error) {
	var n NetworkFile
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&n); err != nil {
		return nil, fmt.Errorf("failed to parse network file: %w", err)
	}
	return &n, nil
}

// route expands stop distances into cumulative distances from the start
func (rf RouteFile) route() (*models.Route, error) {
	r := &models.Route{ID: rf.ID, Name: rf.Name}
	var total float64
	for i, stop := range rf.Stops {
		if i == 0 {
			stop.Distance = 0
		}
		total += stop.Distance
		r.Stations = append(r.Stations, models.RouteStation{
			StationID:         stop.StationID,
			Distance:          stop.Distance,
			DistanceFromStart: total,
		})
	}
	r.TotalDistance = total

	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("route %s: %w", rf.ID, err)
	}
	return r, nil
}

func (tf TrainFile) train(compartments map[string]models.Compartment) (*models.Train, error) {
	t := &models.Train{ID: tf.ID, Name: tf.Name, Number: tf.Number, Type: tf.Type}
	if tf.RouteID != "" {
		routeID := tf.RouteID
		t.RouteID = &routeID
	}
	for _, id := range tf.Compartments {
		c, ok := compartments[id]
		if !ok {
			return nil, fmt.Errorf("train %s: unknown compartment %s", tf.ID, id)
		}
		t.Compartments = append(t.Compartments, c)
	}
	return t, nil
}

// load validates every route before anything is written, then writes the
// network in dependency order.
func load(ctx context.Context, w Writer, n *NetworkFile) error {
	routes := make([]*models.Route, 0, len(n.Routes))
	for _, rf := range n.Routes {
		r, err := rf.route()
		if err != nil {
			return err
		}
		routes = append(routes, r)
	}

	for i := range n.Stations {
		if err := w.CreateStation(ctx, &n.Stations[i]); err != nil {
			return fmt.Errorf("failed to create station %s: %w", n.Stations[i].ID, err)
		}
	}
	log.Printf("Created %d stations", len(n.Stations))

	for _, r := range routes {
		if err := w.CreateRoute(ctx, r); err != nil {
			return fmt.Errorf("failed to create route %s: %w", r.ID, err)
		}
	}
	log.Printf("Created %d routes", len(routes))

	compartments := make(map[string]models.Compartment, len(n.Compartments))
	for i := range n.Compartments {
		c := &n.Compartments[i]
		if err := w.CreateCompartment(ctx, c); err != nil {
			return fmt.Errorf("failed to create compartment %s: %w", c.ID, err)
		}
		compartments[c.ID] = *c
	}
	log.Printf("Created %d compartments", len(n.Compartments))

	for _, tf := range n.Trains {
		t, err := tf.train(compartments)
		if err != nil {
			return err
		}
		if err := w.CreateTrain(ctx, t); err != nil {
			return fmt.Errorf("failed to create train %s: %w", tf.ID, err)
		}
	}
	log.Printf("Created %d trains", len(n.Trains))
	return nil
}
