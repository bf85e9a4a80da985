package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/railnet/railnet/internal/schedule"
	"github.com/railnet/railnet/models"
)

// ScheduleService defines the schedule operations served over HTTP
type ScheduleService interface {
	Create(ctx context.Context, in schedule.CreateInput) (*models.Schedule, error)
	Get(ctx context.Context, id string) (*models.Schedule, error)
	List(ctx context.Context, f models.ScheduleFilter) (*schedule.Page, error)
	UpdateStatus(ctx context.Context, id string, status models.ScheduleStatus) (*models.Schedule, error)
	UpdateStationTiming(ctx context.Context, scheduleID string, sequence int, u models.StationScheduleUpdate) (*models.StationSchedule, error)
}

// ScheduleHandler handles HTTP requests for train schedules
type ScheduleHandler struct {
	svc ScheduleService
}

// NewScheduleHandler creates a new handler with the given service
func NewScheduleHandler(svc ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{svc: svc}
}

// StationPlanRequest is one station's timing in a CreateScheduleRequest
type StationPlanRequest struct {
	StationID          string    `json:"stationId"`
	EstimatedArrival   time.Time `json:"estimatedArrival"`
	EstimatedDeparture time.Time `json:"estimatedDeparture"`
	PlatformNumber     *string   `json:"platformNumber,omitempty"`
	Remarks            *string   `json:"remarks,omitempty"`
}

// CreateScheduleRequest is the JSON body of POST /api/schedules
type CreateScheduleRequest struct {
	TrainID          string               `json:"trainId"`
	DepartureTime    string               `json:"departureTime"`
	StationSchedules []StationPlanRequest `json:"stationSchedules"`
}

func (req *CreateScheduleRequest) validate() map[string]interface{} {
	problems := map[string]interface{}{}
	if req.TrainID == "" {
		problems["trainId"] = "is required"
	}
	if req.DepartureTime == "" {
		problems["departureTime"] = "is required"
	}
	if len(req.StationSchedules) == 0 {
		problems["stationSchedules"] = "at least one station is required"
	}
	for i, s := range req.StationSchedules {
		key := "stationSchedules[" + strconv.Itoa(i) + "]"
		switch {
		case s.StationID == "":
			problems[key] = "stationId is required"
		case s.EstimatedArrival.IsZero() || s.EstimatedDeparture.IsZero():
			problems[key] = "estimatedArrival and estimatedDeparture are required"
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return problems
}

// CreateSchedule handles POST /api/schedules
func (h *ScheduleHandler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req CreateScheduleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if problems := req.validate(); problems != nil {
		writeBadRequest(w, "Invalid schedule request", problems)
		return
	}

	in := schedule.CreateInput{
		TrainID:       req.TrainID,
		DepartureTime: req.DepartureTime,
		Stations:      make([]schedule.StationPlan, len(req.StationSchedules)),
	}
	for i, s := range req.StationSchedules {
		in.Stations[i] = schedule.StationPlan{
			StationID:          s.StationID,
			EstimatedArrival:   s.EstimatedArrival,
			EstimatedDeparture: s.EstimatedDeparture,
			Platform:           s.PlatformNumber,
			Remarks:            s.Remarks,
		}
	}

	sc, err := h.svc.Create(r.Context(), in)
	if err != nil {
		writeError(w, err, "Failed to create schedule")
		return
	}
	writeJSON(w, http.StatusCreated, sc)
}

// ListSchedules handles GET /api/schedules
// Optional filters: trainId, date, departureTime, status; paging with limit (1-100) and offset
func (h *ScheduleHandler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := models.ScheduleFilter{
		TrainID:       q.Get("trainId"),
		DepartureDate: q.Get("date"),
		DepartureTime: q.Get("departureTime"),
		Status:        models.ScheduleStatus(q.Get("status")),
		Limit:         schedule.DefaultLimit,
	}

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 || limit > schedule.MaxLimit {
			writeBadRequest(w, "limit must be between 1 and 100", map[string]interface{}{"limit": v})
			return
		}
		f.Limit = limit
	}
	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			writeBadRequest(w, "offset must be a non-negative integer", map[string]interface{}{"offset": v})
			return
		}
		f.Offset = offset
	}

	page, err := h.svc.List(r.Context(), f)
	if err != nil {
		writeError(w, err, "Failed to retrieve schedules")
		return
	}
	if page.Schedules == nil {
		page.Schedules = []models.Schedule{}
	}
	writeJSON(w, http.StatusOK, page)
}

// GetSchedule handles GET /api/schedules/{scheduleId}
func (h *ScheduleHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	sc, err := h.svc.Get(r.Context(), chi.URLParam(r, "scheduleId"))
	if err != nil {
		writeError(w, err, "Failed to retrieve schedule")
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

// UpdateStatusRequest is the JSON body of PATCH /api/schedules/{scheduleId}/status
type UpdateStatusRequest struct {
	Status models.ScheduleStatus `json:"status"`
}

// UpdateStatus handles PATCH /api/schedules/{scheduleId}/status
func (h *ScheduleHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Status == "" {
		writeBadRequest(w, "status is required", nil)
		return
	}

	sc, err := h.svc.UpdateStatus(r.Context(), chi.URLParam(r, "scheduleId"), req.Status)
	if err != nil {
		writeError(w, err, "Failed to update schedule status")
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

// UpdateStationRequest is the JSON body of PATCH /api/schedules/{scheduleId}/stations/{sequence}
type UpdateStationRequest struct {
	Status          *models.StationScheduleStatus `json:"status,omitempty"`
	ActualArrival   *time.Time                    `json:"actualArrival,omitempty"`
	ActualDeparture *time.Time                    `json:"actualDeparture,omitempty"`
	PlatformNumber  *string                       `json:"platformNumber,omitempty"`
	Remarks         *string                       `json:"remarks,omitempty"`
}

// UpdateStation handles PATCH /api/schedules/{scheduleId}/stations/{sequence}
func (h *ScheduleHandler) UpdateStation(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "sequence")
	sequence, err := strconv.Atoi(raw)
	if err != nil {
		writeBadRequest(w, "sequence must be an integer", map[string]interface{}{"sequence": raw})
		return
	}

	var req UpdateStationRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ss, err := h.svc.UpdateStationTiming(r.Context(), chi.URLParam(r, "scheduleId"), sequence, models.StationScheduleUpdate{
		Status:          req.Status,
		ActualArrival:   req.ActualArrival,
		ActualDeparture: req.ActualDeparture,
		Platform:        req.PlatformNumber,
		Remarks:         req.Remarks,
	})
	if err != nil {
		writeError(w, err, "Failed to update station schedule")
		return
	}
	writeJSON(w, http.StatusOK, ss)
}
