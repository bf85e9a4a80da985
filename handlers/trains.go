package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/railnet/railnet/internal/routeindex"
	"github.com/railnet/railnet/internal/search"
	"github.com/railnet/railnet/internal/seats"
)

// TrainSearcher finds the train runs between two stations on a date
type TrainSearcher interface {
	Search(ctx context.Context, from, to, date string) ([]search.Result, error)
}

// SeatLedger reports per-seat occupancy of a compartment
type SeatLedger interface {
	SeatStatus(ctx context.Context, scheduleID, compartmentID, date string) (*seats.SeatMap, error)
}

// RouteStations lists a route's stations in travel order
type RouteStations interface {
	StationsInOrder(ctx context.Context, routeID string) ([]routeindex.Stop, error)
}

// TrainHandler handles HTTP requests for journey search, seat maps and route stops
type TrainHandler struct {
	searcher TrainSearcher
	ledger   SeatLedger
	routes   RouteStations
}

// NewTrainHandler creates a new handler
func NewTrainHandler(searcher TrainSearcher, ledger SeatLedger, routes RouteStations) *TrainHandler {
	return &TrainHandler{searcher: searcher, ledger: ledger, routes: routes}
}

// SearchTrainsResponse is the JSON response structure for GET /api/trains/search
type SearchTrainsResponse struct {
	Trains []search.Result `json:"trains"`
	Count  int             `json:"count"`
}

// SearchTrains handles GET /api/trains/search?from=&to=&date=
func (h *TrainHandler) SearchTrains(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to, date := q.Get("from"), q.Get("to"), q.Get("date")
	if from == "" || to == "" || date == "" {
		writeBadRequest(w, "from, to and date query parameters are required", map[string]interface{}{
			"from": from,
			"to":   to,
			"date": date,
		})
		return
	}

	results, err := h.searcher.Search(r.Context(), from, to, date)
	if err != nil {
		writeError(w, err, "Failed to search trains")
		return
	}
	if results == nil {
		results = []search.Result{}
	}
	writeJSON(w, http.StatusOK, SearchTrainsResponse{Trains: results, Count: len(results)})
}

// GetSeatStatus handles GET /api/seat-status/{scheduleId}/{compartmentId}?date=
func (h *TrainHandler) GetSeatStatus(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		writeBadRequest(w, "date query parameter is required", nil)
		return
	}

	seatMap, err := h.ledger.SeatStatus(r.Context(), chi.URLParam(r, "scheduleId"), chi.URLParam(r, "compartmentId"), date)
	if err != nil {
		writeError(w, err, "Failed to retrieve seat status")
		return
	}
	writeJSON(w, http.StatusOK, seatMap)
}

// RouteStationsResponse is the JSON response structure for GET /api/routes/{routeId}/stations
type RouteStationsResponse struct {
	RouteID  string            `json:"routeId"`
	Stations []routeindex.Stop `json:"stations"`
}

// GetRouteStations handles GET /api/routes/{routeId}/stations
func (h *TrainHandler) GetRouteStations(w http.ResponseWriter, r *http.Request) {
	routeID := chi.URLParam(r, "routeId")
	stops, err := h.routes.StationsInOrder(r.Context(), routeID)
	if err != nil {
		writeError(w, err, "Failed to retrieve route stations")
		return
	}
	writeJSON(w, http.StatusOK, RouteStationsResponse{RouteID: routeID, Stations: stops})
}
