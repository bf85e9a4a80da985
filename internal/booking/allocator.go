// Package booking allocates seats on scheduled train runs.
package booking

import (
	"context"
	"errors"
	"log"
	"math/big"
	"strconv"
	"time"

	"github.com/railnet/railnet/models"
)

// publishTimeout bounds how long a committed booking waits for its event to
// be accepted. It does not depend on the request deadline.
const publishTimeout = 2 * time.Second

type Store interface {
	GetSchedule(ctx context.Context, id string) (*models.Schedule, error)
	GetTrain(ctx context.Context, id string) (*models.Train, error)
	InsertBooking(ctx context.Context, b *models.Booking) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	ListUserBookings(ctx context.Context, userID string) ([]models.Booking, error)
}

type RouteIndex interface {
	Route(ctx context.Context, routeID string) (*models.Route, error)
}

// Publisher is told about each booking after it is committed
type Publisher interface {
	BookingConfirmed(ctx context.Context, b *models.Booking) error
}

// Request asks for one seat between two stations of a schedule's route
type Request struct {
	UserID        string
	ScheduleID    string
	CompartmentID string
	SeatNumber    string
	FromStationID string
	ToStationID   string
}

type Allocator struct {
	store     Store
	routes    RouteIndex
	publisher Publisher
	loc       *time.Location
	now       func() time.Time
}

// NewAllocator creates an Allocator. Schedule departures are read as wall-clock
// times in loc. publisher may be nil.
func NewAllocator(store Store, routes RouteIndex, publisher Publisher, loc *time.Location) *Allocator {
	if loc == nil {
		loc = time.UTC
	}
	return &Allocator{store: store, routes: routes, publisher: publisher, loc: loc, now: time.Now}
}

// Book checks every precondition in order, then claims the seat with a single
// uniqueness-constrained insert. Of concurrent requests for one seat exactly
// one succeeds; the rest fail with a Conflict.
func (a *Allocator) Book(ctx context.Context, req Request) (*models.Booking, error) {
	sc, err := a.store.GetSchedule(ctx, req.ScheduleID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.NotFoundf("Train schedule not found")
	}
	if err != nil {
		return nil, err
	}

	if sc.Status == models.ScheduleCancelled {
		return nil, models.Conflictf("This train schedule has been cancelled")
	}

	departs, err := sc.DepartureInstant(a.loc)
	if err != nil {
		return nil, err
	}
	if !departs.After(a.now()) {
		return nil, models.Conflictf("Cannot book tickets for past or current schedules")
	}

	train, err := a.store.GetTrain(ctx, sc.TrainID)
	if err != nil {
		return nil, err
	}
	compartment, ok := train.Compartment(req.CompartmentID)
	if !ok {
		return nil, models.NotFoundf("Compartment not available on this train")
	}

	seat, err := strconv.Atoi(req.SeatNumber)
	if err != nil || seat < 1 || seat > compartment.TotalSeat {
		return nil, models.NotFoundf("Invalid seat number. Valid seats are 1 to %d", compartment.TotalSeat)
	}

	route, err := a.routes.Route(ctx, sc.RouteID)
	if err != nil {
		return nil, err
	}
	from, okFrom := route.FindStation(req.FromStationID)
	to, okTo := route.FindStation(req.ToStationID)
	if !okFrom || !okTo {
		return nil, models.NotFoundf("Stations not found on this route")
	}
	if from.DistanceFromStart >= to.DistanceFromStart {
		return nil, models.Conflictf("From station must be before to station on the route")
	}

	b := &models.Booking{
		UserID:        req.UserID,
		ScheduleID:    sc.ID,
		CompartmentID: compartment.ID,
		SeatNumber:    strconv.Itoa(seat),
		FromStationID: from.StationID,
		ToStationID:   to.StationID,
		Price:         Fare(compartment.BasePrice, from.DistanceFromStart, to.DistanceFromStart, route.TotalDistance),
		Status:        models.BookingConfirmed,
	}
	if err := a.store.InsertBooking(ctx, b); err != nil {
		return nil, err
	}
	log.Printf("Seat %s in %s booked on schedule %s (%s -> %s, %.2f)",
		b.SeatNumber, compartment.ID, sc.ID, from.StationID, to.StationID, b.Price)

	if a.publisher != nil {
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		if err := a.publisher.BookingConfirmed(pubCtx, b); err != nil {
			log.Printf("Warning: failed to publish booking %s: %v", b.ID, err)
		}
		cancel()
	}

	enrich(b, train, route, compartment)
	return b, nil
}

// Get returns a booking with its display data
func (a *Allocator) Get(ctx context.Context, id string) (*models.Booking, error) {
	b, err := a.store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := a.describe(ctx, b, map[string]*scheduleView{}); err != nil {
		return nil, err
	}
	return b, nil
}

// ListForUser returns the user's bookings, newest first, with display data
func (a *Allocator) ListForUser(ctx context.Context, userID string) ([]models.Booking, error) {
	bookings, err := a.store.ListUserBookings(ctx, userID)
	if err != nil {
		return nil, err
	}
	views := map[string]*scheduleView{}
	for i := range bookings {
		if err := a.describe(ctx, &bookings[i], views); err != nil {
			return nil, err
		}
	}
	return bookings, nil
}

// scheduleView is the display data shared by every booking on one schedule
type scheduleView struct {
	train *models.Train
	route *models.Route
}

func (a *Allocator) describe(ctx context.Context, b *models.Booking, views map[string]*scheduleView) error {
	v, ok := views[b.ScheduleID]
	if !ok {
		sc, err := a.store.GetSchedule(ctx, b.ScheduleID)
		if err != nil {
			return err
		}
		train, err := a.store.GetTrain(ctx, sc.TrainID)
		if err != nil {
			return err
		}
		route, err := a.routes.Route(ctx, sc.RouteID)
		if err != nil {
			return err
		}
		v = &scheduleView{train: train, route: route}
		views[b.ScheduleID] = v
	}
	compartment, _ := v.train.Compartment(b.CompartmentID)
	enrich(b, v.train, v.route, compartment)
	return nil
}

func enrich(b *models.Booking, train *models.Train, route *models.Route, c models.Compartment) {
	ts := train.Summary()
	rs := route.Summary()
	b.Train = &ts
	b.Route = &rs
	if c.ID != "" {
		b.Compartment = &models.CompartmentSummary{ID: c.ID, Name: c.Name, Type: c.Type}
	}
	if st, ok := route.FindStation(b.FromStationID); ok {
		b.FromStation = &models.StationRef{ID: st.StationID, Name: st.StationName}
	}
	if st, ok := route.FindStation(b.ToStationID); ok {
		b.ToStation = &models.StationRef{ID: st.StationID, Name: st.StationName}
	}
}

// Fare prorates the compartment's full-route price by the share of route
// distance travelled, rounded half-up to cents. Inputs are taken at their
// decimal value so that exact half cents round up.
func Fare(basePrice, fromDistance, toDistance, totalDistance float64) float64 {
	if totalDistance <= 0 {
		return 0
	}
	cents := new(big.Rat).Sub(decimal(toDistance), decimal(fromDistance))
	cents.Mul(cents, decimal(basePrice))
	cents.Quo(cents, decimal(totalDistance))
	cents.Mul(cents, big.NewRat(100, 1))
	cents.Add(cents, big.NewRat(1, 2))

	// Rat denominators are positive, so Euclidean division floors
	whole := new(big.Int).Div(cents.Num(), cents.Denom())
	fare, _ := new(big.Rat).SetFrac(whole, big.NewInt(100)).Float64()
	return fare
}

func decimal(x float64) *big.Rat {
	if r, ok := new(big.Rat).SetString(strconv.FormatFloat(x, 'f', -1, 64)); ok {
		return r
	}
	return new(big.Rat)
}
