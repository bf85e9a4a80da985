package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/railnet/railnet/internal/routeindex"
	"github.com/railnet/railnet/internal/schedule"
	"github.com/railnet/railnet/internal/seats"
	"github.com/railnet/railnet/internal/testnet"
	"github.com/railnet/railnet/models"
	"github.com/railnet/railnet/repository"
)

var (
	departure = time.Date(2030, 9, 1, 8, 0, 0, 0, time.UTC)
	clockNow  = departure.Add(-48 * time.Hour)
)

type recordingPublisher struct {
	mu        sync.Mutex
	events    []*models.Booking
	deadlines []time.Time
	err       error
}

func (p *recordingPublisher) BookingConfirmed(ctx context.Context, b *models.Booking) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, b)
	deadline, _ := ctx.Deadline()
	p.deadlines = append(p.deadlines, deadline)
	return p.err
}

type fixture struct {
	store     *repository.SQLiteStore
	routes    *routeindex.Index
	alloc     *Allocator
	publisher *recordingPublisher
	sc        *models.Schedule
}

func setup(t *testing.T, status models.ScheduleStatus) *fixture {
	t.Helper()
	store := testnet.NewSQLite(t)
	testnet.Seed(t, store)
	sc := testnet.InsertSchedule(t, store, testnet.TrainAC, testnet.RouteAC, testnet.RouteACStations, departure, status)

	routes := routeindex.New(store, 16, time.Hour)
	pub := &recordingPublisher{}
	alloc := NewAllocator(store, routes, pub, time.UTC)
	alloc.now = func() time.Time { return clockNow }
	return &fixture{store: store, routes: routes, alloc: alloc, publisher: pub, sc: sc}
}

func (f *fixture) request(seat, from, to string) Request {
	return Request{
		UserID:        "user-1",
		ScheduleID:    f.sc.ID,
		CompartmentID: testnet.Chair,
		SeatNumber:    seat,
		FromStationID: from,
		ToStationID:   to,
	}
}

// Route A(0km) -> B(60km) -> C(100km), compartment 500.00 with 2 seats
func TestBook_EndToEnd(t *testing.T) {
	store := testnet.NewSQLite(t)
	testnet.Seed(t, store)
	routes := routeindex.New(store, 16, time.Hour)
	ctx := context.Background()

	builder := schedule.NewBuilder(store, routes, time.UTC)
	var stations []schedule.StationPlan
	for i, id := range testnet.RouteACStations {
		arr := departure.Add(time.Duration(i) * time.Hour)
		stations = append(stations, schedule.StationPlan{StationID: id, EstimatedArrival: arr, EstimatedDeparture: arr.Add(5 * time.Minute)})
	}
	sc, err := builder.Create(ctx, schedule.CreateInput{TrainID: testnet.TrainAC, DepartureTime: "08:00", Stations: stations})
	if err != nil {
		t.Fatalf("Create schedule failed: %v", err)
	}
	if len(sc.StationSchedules) != 3 {
		t.Fatalf("got %d station entries, want 3", len(sc.StationSchedules))
	}

	alloc := NewAllocator(store, routes, nil, time.UTC)
	alloc.now = func() time.Time { return clockNow }
	req := Request{UserID: "user-1", ScheduleID: sc.ID, CompartmentID: testnet.Chair}

	req.SeatNumber, req.FromStationID, req.ToStationID = "1", testnet.StationA, testnet.StationC
	first, err := alloc.Book(ctx, req)
	if err != nil {
		t.Fatalf("A->C seat 1 failed: %v", err)
	}
	if first.Price != 500.00 {
		t.Errorf("A->C price = %.2f, want 500.00", first.Price)
	}

	if _, err := alloc.Book(ctx, req); !errors.Is(err, models.ErrConflict) {
		t.Errorf("second A->C seat 1: got %v, want Conflict", err)
	}

	req.SeatNumber, req.FromStationID, req.ToStationID = "2", testnet.StationB, testnet.StationC
	second, err := alloc.Book(ctx, req)
	if err != nil {
		t.Fatalf("B->C seat 2 failed: %v", err)
	}
	if second.Price != 200.00 {
		t.Errorf("B->C price = %.2f, want 200.00", second.Price)
	}

	req.FromStationID, req.ToStationID = testnet.StationC, testnet.StationA
	if _, err := alloc.Book(ctx, req); !errors.Is(err, models.ErrConflict) {
		t.Errorf("C->A: got %v, want Conflict", err)
	}

	m, err := seats.NewLedger(store).SeatStatus(ctx, sc.ID, testnet.Chair, sc.DepartureDate)
	if err != nil {
		t.Fatalf("SeatStatus failed: %v", err)
	}
	if m.BookedSeats != 2 || m.AvailableSeats != 0 {
		t.Errorf("ledger = %d booked / %d available, want 2 / 0", m.BookedSeats, m.AvailableSeats)
	}
}

func TestBook_ConcurrentClaimsOnOneSeat(t *testing.T) {
	f := setup(t, models.ScheduleScheduled)
	const n = 16

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.alloc.Book(context.Background(), f.request("2", testnet.StationA, testnet.StationC))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, models.ErrConflict):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || conflicts != n-1 {
		t.Errorf("%d succeeded and %d conflicted, want 1 and %d", ok, conflicts, n-1)
	}

	bookings, err := f.store.ListBookings(context.Background(), f.sc.ID, testnet.Chair)
	if err != nil {
		t.Fatalf("ListBookings failed: %v", err)
	}
	if len(bookings) != 1 {
		t.Errorf("%d bookings stored, want 1", len(bookings))
	}
	if len(f.publisher.events) != 1 {
		t.Errorf("%d events published, want 1", len(f.publisher.events))
	}
}

func TestBook_Preconditions(t *testing.T) {
	a, b, c, d := testnet.StationA, testnet.StationB, testnet.StationC, testnet.StationD

	tests := []struct {
		name   string
		mutate func(f *fixture, r *Request)
		kind   error
	}{
		{"unknown schedule", func(f *fixture, r *Request) { r.ScheduleID = "no-such-schedule" }, models.ErrNotFound},
		{"departed", func(f *fixture, r *Request) { f.alloc.now = func() time.Time { return departure.Add(time.Minute) } }, models.ErrConflict},
		{"departing now", func(f *fixture, r *Request) { f.alloc.now = func() time.Time { return departure } }, models.ErrConflict},
		{"compartment not on train", func(f *fixture, r *Request) { r.CompartmentID = testnet.Spare }, models.ErrNotFound},
		{"seat zero", func(f *fixture, r *Request) { r.SeatNumber = "0" }, models.ErrNotFound},
		{"seat past capacity", func(f *fixture, r *Request) { r.SeatNumber = "3" }, models.ErrNotFound},
		{"seat not a number", func(f *fixture, r *Request) { r.SeatNumber = "A1" }, models.ErrNotFound},
		{"seat fractional", func(f *fixture, r *Request) { r.SeatNumber = "1.5" }, models.ErrNotFound},
		{"seat empty", func(f *fixture, r *Request) { r.SeatNumber = "" }, models.ErrNotFound},
		{"origin off route", func(f *fixture, r *Request) { r.FromStationID = d }, models.ErrNotFound},
		{"destination unknown", func(f *fixture, r *Request) { r.ToStationID = "nowhere" }, models.ErrNotFound},
		{"same station", func(f *fixture, r *Request) { r.FromStationID, r.ToStationID = b, b }, models.ErrConflict},
		{"B to A", func(f *fixture, r *Request) { r.FromStationID, r.ToStationID = b, a }, models.ErrConflict},
		{"C to A", func(f *fixture, r *Request) { r.FromStationID, r.ToStationID = c, a }, models.ErrConflict},
		{"C to B", func(f *fixture, r *Request) { r.FromStationID, r.ToStationID = c, b }, models.ErrConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t, models.ScheduleScheduled)
			req := f.request("1", a, c)
			tt.mutate(f, &req)

			_, err := f.alloc.Book(context.Background(), req)
			if !errors.Is(err, tt.kind) {
				t.Fatalf("got %v, want %v", err, tt.kind)
			}

			bookings, err := f.store.ListBookings(context.Background(), f.sc.ID, testnet.Chair)
			if err != nil {
				t.Fatalf("ListBookings failed: %v", err)
			}
			if len(bookings) != 0 || len(f.publisher.events) != 0 {
				t.Errorf("rejected request left %d bookings and %d events", len(bookings), len(f.publisher.events))
			}
		})
	}
}

func TestBook_CancelledSchedule(t *testing.T) {
	f := setup(t, models.ScheduleCancelled)
	_, err := f.alloc.Book(context.Background(), f.request("1", testnet.StationA, testnet.StationC))
	if !errors.Is(err, models.ErrConflict) {
		t.Fatalf("got %v, want Conflict", err)
	}
	if err.Error() != "This train schedule has been cancelled" {
		t.Errorf("message = %q", err)
	}
}

func TestBook_SeatNumberNormalized(t *testing.T) {
	f := setup(t, models.ScheduleScheduled)
	ctx := context.Background()

	b, err := f.alloc.Book(ctx, f.request("01", testnet.StationA, testnet.StationB))
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	if b.SeatNumber != "1" {
		t.Errorf("SeatNumber = %q, want 1", b.SeatNumber)
	}
	if _, err := f.alloc.Book(ctx, f.request("1", testnet.StationB, testnet.StationC)); !errors.Is(err, models.ErrConflict) {
		t.Errorf("seat 1 under another spelling: got %v, want Conflict", err)
	}
}

func TestBook_EnrichedAndPublished(t *testing.T) {
	f := setup(t, models.ScheduleScheduled)
	ctx := context.Background()

	b, err := f.alloc.Book(ctx, f.request("2", testnet.StationA, testnet.StationB))
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	if b.Price != 300.00 {
		t.Errorf("A->B price = %.2f, want 300.00", b.Price)
	}
	if b.Status != models.BookingConfirmed || b.ID == "" || b.BookingDate.IsZero() {
		t.Errorf("booking not persisted as confirmed: %+v", b)
	}
	if b.Train == nil || b.Train.Number != "101" || b.Route == nil || b.Route.Name != "A-C Line" {
		t.Errorf("train/route display missing: %+v %+v", b.Train, b.Route)
	}
	if b.Compartment == nil || b.Compartment.Name != "AC Chair" {
		t.Errorf("compartment display missing: %+v", b.Compartment)
	}
	if b.FromStation == nil || b.FromStation.Name != "Alpha" || b.ToStation == nil || b.ToStation.Name != "Bravo" {
		t.Errorf("station display missing: %+v %+v", b.FromStation, b.ToStation)
	}
	if len(f.publisher.events) != 1 || f.publisher.events[0].ID != b.ID {
		t.Errorf("published %d events", len(f.publisher.events))
	}

	got, err := f.alloc.Get(ctx, b.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.SeatNumber != "2" || got.Price != 300.00 || got.ToStation == nil || got.ToStation.ID != testnet.StationB {
		t.Errorf("Get returned %+v", got)
	}
	if _, err := f.alloc.Get(ctx, "no-such-booking"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("unknown booking: got %v, want NotFound", err)
	}
}

func TestBook_PublisherFailureKeepsBooking(t *testing.T) {
	f := setup(t, models.ScheduleScheduled)
	f.publisher.err = errors.New("broker down")

	b, err := f.alloc.Book(context.Background(), f.request("1", testnet.StationA, testnet.StationC))
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	if _, err := f.store.GetBooking(context.Background(), b.ID); err != nil {
		t.Errorf("booking not kept after publish failure: %v", err)
	}
}

func TestBook_PublishDeadlineIndependentOfRequest(t *testing.T) {
	f := setup(t, models.ScheduleScheduled)
	ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
	defer cancel()

	before := time.Now()
	if _, err := f.alloc.Book(ctx, f.request("1", testnet.StationA, testnet.StationB)); err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	if len(f.publisher.deadlines) != 1 {
		t.Fatalf("published %d events, want 1", len(f.publisher.deadlines))
	}
	deadline := f.publisher.deadlines[0]
	if deadline.IsZero() || deadline.After(time.Now().Add(publishTimeout)) || deadline.Before(before) {
		t.Errorf("publish deadline = %v, want within %v of the booking", deadline, publishTimeout)
	}
}

func TestListForUser(t *testing.T) {
	f := setup(t, models.ScheduleScheduled)
	ctx := context.Background()

	mine := []Request{f.request("1", testnet.StationA, testnet.StationC), f.request("2", testnet.StationB, testnet.StationC)}
	for _, req := range mine {
		if _, err := f.alloc.Book(ctx, req); err != nil {
			t.Fatalf("Book failed: %v", err)
		}
	}
	other := f.request("3", testnet.StationA, testnet.StationB)
	other.UserID = "user-2"
	other.CompartmentID = testnet.Sleeper
	if _, err := f.alloc.Book(ctx, other); err != nil {
		t.Fatalf("Book failed: %v", err)
	}

	list, err := f.alloc.ListForUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListForUser failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d bookings, want 2", len(list))
	}
	for _, b := range list {
		if b.UserID != "user-1" {
			t.Errorf("booking %s belongs to %s", b.ID, b.UserID)
		}
		if b.Train == nil || b.Route == nil || b.Compartment == nil || b.FromStation == nil || b.ToStation == nil {
			t.Errorf("booking %s missing display data: %+v", b.ID, b)
		}
	}

	none, err := f.alloc.ListForUser(ctx, "nobody")
	if err != nil || len(none) != 0 {
		t.Errorf("ListForUser(nobody) = %v, %v; want empty", none, err)
	}
}

func TestFare(t *testing.T) {
	tests := []struct {
		name                  string
		base, from, to, total float64
		want                  float64
	}{
		{"full route", 500, 0, 100, 100, 500},
		{"half route", 500, 0, 50, 100, 250},
		{"tail", 500, 60, 100, 100, 200},
		{"head", 500, 0, 60, 100, 300},
		{"thirds round down", 100, 0, 1, 3, 33.33},
		{"thirds round up", 100, 0, 2, 3, 66.67},
		{"half cent rounds up", 1, 0, 1, 8, 0.13},
		{"exact half cent 1.005", 201, 0, 5, 1000, 1.01},
		{"exact half cent 0.145", 29, 0, 5, 1000, 0.15},
		{"exact half cent 2.675", 535, 0, 5, 1000, 2.68},
		{"decimal base price", 1.2, 0, 25, 100, 0.3},
		{"just under half cent", 1.0049, 0, 1, 1, 1},
		{"free compartment", 0, 0, 100, 100, 0},
		{"no distance", 500, 0, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Fare(tt.base, tt.from, tt.to, tt.total); got != tt.want {
				t.Errorf("Fare = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFare_Linear(t *testing.T) {
	const base, total = 480.0, 120.0
	for d := 0.0; d <= total; d += 7.5 {
		got := Fare(base, 0, d, total)
		want := base * d / total
		if diff := got - want; diff > 0.005 || diff < -0.005 {
			t.Errorf("Fare over %.1fkm = %.2f, want %.4f", d, got, want)
		}
		if got < 0 || got > base {
			t.Errorf("Fare over %.1fkm = %.2f outside [0, %.2f]", d, got, base)
		}
	}
}
