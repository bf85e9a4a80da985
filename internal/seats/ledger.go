// Package seats derives a compartment's seat map from its bookings.
// Availability is never stored; every call rebuilds it from committed bookings.
package seats

import (
	"context"
	"strconv"

	"github.com/railnet/railnet/models"
)

type Store interface {
	GetSchedule(ctx context.Context, id string) (*models.Schedule, error)
	GetTrain(ctx context.Context, id string) (*models.Train, error)
	ListBookings(ctx context.Context, scheduleID, compartmentID string) ([]models.Booking, error)
}

type SeatStatus string

const (
	Available SeatStatus = "available"
	Booked    SeatStatus = "booked"
)

type Seat struct {
	SeatNumber string     `json:"seatNumber"`
	Status     SeatStatus `json:"status"`
	BookingID  *string    `json:"bookingId"`
}

// SeatMap is the state of every seat of one compartment on one schedule
type SeatMap struct {
	ScheduleID     string `json:"scheduleId"`
	CompartmentID  string `json:"compartmentId"`
	Date           string `json:"date"`
	TotalSeats     int    `json:"totalSeats"`
	BookedSeats    int    `json:"bookedSeats"`
	AvailableSeats int    `json:"availableSeats"`
	Seats          []Seat `json:"seats"`
}

type Ledger struct {
	store Store
}

func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

// SeatStatus builds the seat map for a compartment of the schedule running on date
func (l *Ledger) SeatStatus(ctx context.Context, scheduleID, compartmentID, date string) (*SeatMap, error) {
	sc, err := l.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if sc.DepartureDate != date {
		return nil, models.NotFoundf("No schedule found for the specified date")
	}

	train, err := l.store.GetTrain(ctx, sc.TrainID)
	if err != nil {
		return nil, err
	}
	compartment, ok := train.Compartment(compartmentID)
	if !ok {
		return nil, models.NotFoundf("Compartment not found on this train")
	}

	bookings, err := l.store.ListBookings(ctx, scheduleID, compartmentID)
	if err != nil {
		return nil, err
	}
	return buildSeatMap(sc.ID, compartment, date, bookings), nil
}

func buildSeatMap(scheduleID string, c models.Compartment, date string, bookings []models.Booking) *SeatMap {
	holder := make(map[string]string, len(bookings))
	for _, b := range bookings {
		if _, taken := holder[b.SeatNumber]; !taken {
			holder[b.SeatNumber] = b.ID
		}
	}

	m := &SeatMap{
		ScheduleID:    scheduleID,
		CompartmentID: c.ID,
		Date:          date,
		TotalSeats:    c.TotalSeat,
		Seats:         make([]Seat, 0, c.TotalSeat),
	}
	for n := 1; n <= c.TotalSeat; n++ {
		seat := Seat{SeatNumber: strconv.Itoa(n), Status: Available}
		if id, ok := holder[seat.SeatNumber]; ok {
			id := id
			seat.Status = Booked
			seat.BookingID = &id
			m.BookedSeats++
		}
		m.Seats = append(m.Seats, seat)
	}
	m.AvailableSeats = m.TotalSeats - m.BookedSeats
	return m
}
