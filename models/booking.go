package models

import "time"

// BookingStatus is the state of a seat claim
type BookingStatus string

const BookingConfirmed BookingStatus = "confirmed"

// Booking is a passenger's claim on one seat for a sub-journey of a schedule.
// (ScheduleID, CompartmentID, SeatNumber) is unique.
type Booking struct {
	ID            string        `db:"id" json:"id"`
	UserID        string        `db:"user_id" json:"userId"`
	ScheduleID    string        `db:"schedule_id" json:"scheduleId"`
	CompartmentID string        `db:"compartment_id" json:"compartmentId"`
	SeatNumber    string        `db:"seat_number" json:"seatNumber"`
	FromStationID string        `db:"from_station_id" json:"fromStationId"`
	ToStationID   string        `db:"to_station_id" json:"toStationId"`
	Price         float64       `db:"price" json:"price"`
	Status        BookingStatus `db:"status" json:"status"`
	BookingDate   time.Time     `db:"booking_date" json:"bookingDate"`

	// Display data, filled in by the allocator
	Train       *TrainSummary       `json:"train,omitempty"`
	Route       *RouteSummary       `json:"route,omitempty"`
	Compartment *CompartmentSummary `json:"compartment,omitempty"`
	FromStation *StationRef         `json:"fromStation,omitempty"`
	ToStation   *StationRef         `json:"toStation,omitempty"`
}
