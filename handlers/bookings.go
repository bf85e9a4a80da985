package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/railnet/railnet/internal/booking"
	"github.com/railnet/railnet/models"
)

// UserIDHeader carries the caller's identity, set by the upstream auth layer
const UserIDHeader = "X-User-ID"

// BookingService defines the booking operations served over HTTP
type BookingService interface {
	Book(ctx context.Context, req booking.Request) (*models.Booking, error)
	Get(ctx context.Context, id string) (*models.Booking, error)
	ListForUser(ctx context.Context, userID string) ([]models.Booking, error)
}

// BookingHandler handles HTTP requests for seat bookings
type BookingHandler struct {
	svc BookingService
}

// NewBookingHandler creates a new handler with the given service
func NewBookingHandler(svc BookingService) *BookingHandler {
	return &BookingHandler{svc: svc}
}

// SeatNumber accepts a seat given either as a JSON string or a JSON number
type SeatNumber string

func (s *SeatNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = SeatNumber(strings.TrimSpace(str))
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("seatNumber must be a string or a number")
	}
	*s = SeatNumber(n.String())
	return nil
}

// CreateBookingRequest is the JSON body of POST /api/bookings
type CreateBookingRequest struct {
	ScheduleID    string     `json:"scheduleId"`
	CompartmentID string     `json:"compartmentId"`
	SeatNumber    SeatNumber `json:"seatNumber"`
	FromStationID string     `json:"fromStationId"`
	ToStationID   string     `json:"toStationId"`
}

func (req *CreateBookingRequest) validate() map[string]interface{} {
	problems := map[string]interface{}{}
	for field, v := range map[string]string{
		"scheduleId":    req.ScheduleID,
		"compartmentId": req.CompartmentID,
		"seatNumber":    string(req.SeatNumber),
		"fromStationId": req.FromStationID,
		"toStationId":   req.ToStationID,
	} {
		if v == "" {
			problems[field] = "is required"
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return problems
}

// UserID returns the caller identity of r, or "" when absent
func UserID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(UserIDHeader))
}

// CreateBooking handles POST /api/bookings
func (h *BookingHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	userID := UserID(r)
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: UserIDHeader + " header is required"})
		return
	}

	var req CreateBookingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if problems := req.validate(); problems != nil {
		writeBadRequest(w, "Invalid booking request", problems)
		return
	}

	b, err := h.svc.Book(r.Context(), booking.Request{
		UserID:        userID,
		ScheduleID:    req.ScheduleID,
		CompartmentID: req.CompartmentID,
		SeatNumber:    string(req.SeatNumber),
		FromStationID: req.FromStationID,
		ToStationID:   req.ToStationID,
	})
	if err != nil {
		writeError(w, err, "Failed to book seat")
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// ListBookings handles GET /api/bookings, the caller's bookings newest first
func (h *BookingHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	userID := UserID(r)
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: UserIDHeader + " header is required"})
		return
	}

	bookings, err := h.svc.ListForUser(r.Context(), userID)
	if err != nil {
		writeError(w, err, "Failed to retrieve bookings")
		return
	}
	if bookings == nil {
		bookings = []models.Booking{}
	}
	writeJSON(w, http.StatusOK, bookings)
}

// GetBooking handles GET /api/bookings/{bookingId}
func (h *BookingHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.Get(r.Context(), chi.URLParam(r, "bookingId"))
	if err != nil {
		writeError(w, err, "Failed to retrieve booking")
		return
	}
	writeJSON(w, http.StatusOK, b)
}
