package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/railnet/railnet/internal/booking"
	"github.com/railnet/railnet/internal/routeindex"
	"github.com/railnet/railnet/internal/schedule"
	"github.com/railnet/railnet/internal/search"
	"github.com/railnet/railnet/internal/seats"
	"github.com/railnet/railnet/internal/testnet"
	"github.com/railnet/railnet/models"
)

type apiFixture struct {
	router    http.Handler
	departure time.Time
}

func setupAPI(t *testing.T, limiter func(http.Handler) http.Handler) *apiFixture {
	t.Helper()
	store := testnet.NewSQLite(t)
	testnet.Seed(t, store)

	routes := routeindex.New(store, 16, time.Hour)
	router := NewRouter(RouterConfig{
		RequestTimeout: 5 * time.Second,
		Location:       time.UTC,
		Schedules:      schedule.NewBuilder(store, routes, time.UTC),
		Searcher:       search.NewSearcher(store),
		Ledger:         seats.NewLedger(store),
		Routes:         routes,
		Bookings:       booking.NewAllocator(store, routes, nil, time.UTC),
		FeedStore:      store,
		DB:             store,
		BookingLimiter: limiter,
	})

	return &apiFixture{
		router:    router,
		departure: time.Now().UTC().AddDate(1, 0, 0).Truncate(24 * time.Hour).Add(9 * time.Hour),
	}
}

func (f *apiFixture) do(t *testing.T, method, path string, body interface{}, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response (status %d): %v", rec.Code, err)
	}
	return v
}

func (f *apiFixture) createScheduleBody(trainID string, stations []string) CreateScheduleRequest {
	req := CreateScheduleRequest{TrainID: trainID, DepartureTime: f.departure.Format("15:04")}
	for i, id := range stations {
		arr := f.departure.Add(time.Duration(i) * time.Hour)
		dep := arr
		if i > 0 {
			dep = arr.Add(5 * time.Minute)
		}
		req.StationSchedules = append(req.StationSchedules, StationPlanRequest{
			StationID: id, EstimatedArrival: arr, EstimatedDeparture: dep,
		})
	}
	return req
}

func (f *apiFixture) createSchedule(t *testing.T) models.Schedule {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/schedules", f.createScheduleBody(testnet.TrainAC, testnet.RouteACStations), nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create schedule: status %d: %s", rec.Code, rec.Body.String())
	}
	return decode[models.Schedule](t, rec)
}

func TestCreateSchedule(t *testing.T) {
	f := setupAPI(t, nil)
	sc := f.createSchedule(t)

	if len(sc.StationSchedules) != 3 {
		t.Fatalf("got %d station entries, want 3", len(sc.StationSchedules))
	}
	if sc.StationSchedules[1].DurationFromPrevious != 60 || sc.StationSchedules[1].WaitingTime != 5 {
		t.Errorf("second stop timing = %+v", sc.StationSchedules[1])
	}
	if sc.Route == nil || sc.Train == nil {
		t.Errorf("schedule missing train or route summary: %+v", sc)
	}

	tests := []struct {
		name   string
		body   interface{}
		status int
	}{
		{"duplicate time", f.createScheduleBody(testnet.TrainAC, testnet.RouteACStations), http.StatusConflict},
		{"unknown train", f.createScheduleBody("train-missing", testnet.RouteACStations), http.StatusNotFound},
		{"train without route", f.createScheduleBody(testnet.TrainIdle, testnet.RouteACStations), http.StatusConflict},
		{"wrong order", f.createScheduleBody(testnet.TrainCA, testnet.RouteACStations), http.StatusConflict},
		{"missing fields", CreateScheduleRequest{TrainID: testnet.TrainAC}, http.StatusBadRequest},
		{"malformed json", `{"trainId": `, http.StatusBadRequest},
		{"unknown field", `{"trainId":"x","colour":"red"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/schedules", tt.body, nil)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body.String())
			}
			if e := decode[ErrorResponse](t, rec); e.Error == "" {
				t.Error("error response has no message")
			}
		})
	}

	t.Run("bad time format", func(t *testing.T) {
		body := f.createScheduleBody(testnet.TrainCA, testnet.RouteCAStations)
		body.DepartureTime = "25:00"
		rec := f.do(t, http.MethodPost, "/api/schedules", body, nil)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("status = %d, want 422", rec.Code)
		}
	})
}

func TestListAndGetSchedules(t *testing.T) {
	f := setupAPI(t, nil)
	sc := f.createSchedule(t)

	rec := f.do(t, http.MethodGet, "/api/schedules?trainId="+testnet.TrainAC+"&limit=5", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status %d", rec.Code)
	}
	page := decode[schedule.Page](t, rec)
	if len(page.Schedules) != 1 || page.Pagination.Total != 1 || page.Pagination.Limit != 5 || page.Pagination.HasMore {
		t.Errorf("page = %+v", page)
	}

	rec = f.do(t, http.MethodGet, "/api/schedules?trainId="+testnet.TrainCA, nil, nil)
	if page := decode[schedule.Page](t, rec); page.Schedules == nil || len(page.Schedules) != 0 {
		t.Errorf("empty listing should be an empty array, got %+v", page.Schedules)
	}

	for _, q := range []string{"limit=0", "limit=101", "limit=ten", "offset=-1"} {
		if rec := f.do(t, http.MethodGet, "/api/schedules?"+q, nil, nil); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, rec.Code)
		}
	}
	if rec := f.do(t, http.MethodGet, "/api/schedules?status=lost", nil, nil); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad status filter: status = %d, want 422", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/api/schedules/"+sc.ID, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status %d", rec.Code)
	}
	if got := decode[models.Schedule](t, rec); got.ID != sc.ID || len(got.StationSchedules) != 3 {
		t.Errorf("get returned %+v", got)
	}

	if rec := f.do(t, http.MethodGet, "/api/schedules/nope", nil, nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown schedule: status = %d, want 404", rec.Code)
	}
}

func TestScheduleUpdates(t *testing.T) {
	f := setupAPI(t, nil)
	sc := f.createSchedule(t)

	rec := f.do(t, http.MethodPatch, "/api/schedules/"+sc.ID+"/status", UpdateStatusRequest{Status: models.ScheduleDelayed}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status: %d %s", rec.Code, rec.Body.String())
	}
	if got := decode[models.Schedule](t, rec); got.Status != models.ScheduleDelayed {
		t.Errorf("status = %s, want delayed", got.Status)
	}
	if rec := f.do(t, http.MethodPatch, "/api/schedules/"+sc.ID+"/status", UpdateStatusRequest{Status: "parked"}, nil); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("invalid status: %d, want 422", rec.Code)
	}

	arrived := models.StationArrived
	actual := f.departure.Add(time.Hour + 4*time.Minute)
	platform := "2"
	rec = f.do(t, http.MethodPatch, "/api/schedules/"+sc.ID+"/stations/2", UpdateStationRequest{
		Status: &arrived, ActualArrival: &actual, PlatformNumber: &platform,
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("update station: %d %s", rec.Code, rec.Body.String())
	}
	ss := decode[models.StationSchedule](t, rec)
	if ss.Status != models.StationArrived || ss.ActualArrival == nil || !ss.ActualArrival.Equal(actual) {
		t.Errorf("station entry = %+v", ss)
	}
	if ss.Platform == nil || *ss.Platform != "2" {
		t.Errorf("platform = %v, want 2", ss.Platform)
	}

	if rec := f.do(t, http.MethodPatch, "/api/schedules/"+sc.ID+"/stations/two", UpdateStationRequest{}, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("non-numeric sequence: %d, want 400", rec.Code)
	}
	if rec := f.do(t, http.MethodPatch, "/api/schedules/"+sc.ID+"/stations/9", UpdateStationRequest{}, nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown sequence: %d, want 404", rec.Code)
	}
}

func TestSearchAndSeatStatus(t *testing.T) {
	f := setupAPI(t, nil)
	sc := f.createSchedule(t)
	date := f.departure.Format(models.DateLayout)

	rec := f.do(t, http.MethodGet, "/api/trains/search?from="+testnet.StationA+"&to="+testnet.StationC+"&date="+date, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("search: %d %s", rec.Code, rec.Body.String())
	}
	res := decode[SearchTrainsResponse](t, rec)
	if res.Count != 1 || res.Trains[0].ScheduleID != sc.ID {
		t.Errorf("search = %+v", res)
	}

	if rec := f.do(t, http.MethodGet, "/api/trains/search?from="+testnet.StationA, nil, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("missing params: %d, want 400", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/api/trains/search?from="+testnet.StationA+"&to="+testnet.StationD+"&date="+date, nil, nil); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("no route: %d, want 422", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/api/seat-status/"+sc.ID+"/"+testnet.Chair+"?date="+date, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("seat status: %d %s", rec.Code, rec.Body.String())
	}
	seatMap := decode[seats.SeatMap](t, rec)
	if seatMap.TotalSeats != 2 || seatMap.AvailableSeats != 2 || len(seatMap.Seats) != 2 {
		t.Errorf("seat map = %+v", seatMap)
	}

	if rec := f.do(t, http.MethodGet, "/api/seat-status/"+sc.ID+"/"+testnet.Chair, nil, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("missing date: %d, want 400", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/api/seat-status/"+sc.ID+"/"+testnet.Chair+"?date=2001-01-01", nil, nil); rec.Code != http.StatusNotFound {
		t.Errorf("wrong date: %d, want 404", rec.Code)
	}
}

func TestBookings(t *testing.T) {
	f := setupAPI(t, nil)
	sc := f.createSchedule(t)
	user := map[string]string{UserIDHeader: "user-7"}

	book := func(seat interface{}, from, to string) *httptest.ResponseRecorder {
		return f.do(t, http.MethodPost, "/api/bookings", map[string]interface{}{
			"scheduleId":    sc.ID,
			"compartmentId": testnet.Chair,
			"seatNumber":    seat,
			"fromStationId": from,
			"toStationId":   to,
		}, user)
	}

	rec := book("1", testnet.StationA, testnet.StationC)
	if rec.Code != http.StatusCreated {
		t.Fatalf("book: %d %s", rec.Code, rec.Body.String())
	}
	b := decode[models.Booking](t, rec)
	if b.Price != 500 || b.UserID != "user-7" || b.Status != models.BookingConfirmed {
		t.Errorf("booking = %+v", b)
	}
	if b.FromStation == nil || b.FromStation.Name != "Alpha" {
		t.Errorf("booking not enriched: %+v", b.FromStation)
	}

	if rec := book(1, testnet.StationA, testnet.StationC); rec.Code != http.StatusConflict {
		t.Errorf("repeat seat as number: %d, want 409", rec.Code)
	}

	rec = book(2, testnet.StationB, testnet.StationC)
	if rec.Code != http.StatusCreated {
		t.Fatalf("book seat 2: %d %s", rec.Code, rec.Body.String())
	}
	if got := decode[models.Booking](t, rec); got.Price != 200 || got.SeatNumber != "2" {
		t.Errorf("partial journey booking = %+v", got)
	}

	tests := []struct {
		name   string
		rec    *httptest.ResponseRecorder
		status int
	}{
		{"reverse direction", book("2", testnet.StationC, testnet.StationA), http.StatusConflict},
		{"seat out of range", book("3", testnet.StationA, testnet.StationB), http.StatusNotFound},
		{"station off route", book("2", testnet.StationA, testnet.StationD), http.StatusNotFound},
		{"seat as bool", book(true, testnet.StationA, testnet.StationB), http.StatusBadRequest},
		{"missing seat", book(nil, testnet.StationA, testnet.StationB), http.StatusBadRequest},
		{"no user", f.do(t, http.MethodPost, "/api/bookings", map[string]string{}, nil), http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.rec.Code != tt.status {
				t.Errorf("status = %d, want %d: %s", tt.rec.Code, tt.status, tt.rec.Body.String())
			}
		})
	}

	rec = f.do(t, http.MethodGet, "/api/bookings/"+b.ID, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get booking: %d", rec.Code)
	}
	if got := decode[models.Booking](t, rec); got.ID != b.ID || got.Train == nil || got.Compartment == nil {
		t.Errorf("get booking = %+v", got)
	}
	if rec := f.do(t, http.MethodGet, "/api/bookings/nope", nil, nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown booking: %d, want 404", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/api/bookings", nil, user)
	if rec.Code != http.StatusOK {
		t.Fatalf("list bookings: %d %s", rec.Code, rec.Body.String())
	}
	if mine := decode[[]models.Booking](t, rec); len(mine) != 2 || mine[0].UserID != "user-7" || mine[0].Train == nil {
		t.Errorf("list bookings = %+v", mine)
	}
	rec = f.do(t, http.MethodGet, "/api/bookings", nil, map[string]string{UserIDHeader: "user-8"})
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("other user's bookings: %d %s, want []", rec.Code, rec.Body.String())
	}
	if rec := f.do(t, http.MethodGet, "/api/bookings", nil, nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("list without user: %d, want 401", rec.Code)
	}

	date := f.departure.Format(models.DateLayout)
	rec = f.do(t, http.MethodGet, "/api/seat-status/"+sc.ID+"/"+testnet.Chair+"?date="+date, nil, nil)
	if seatMap := decode[seats.SeatMap](t, rec); seatMap.BookedSeats != 2 || seatMap.AvailableSeats != 0 {
		t.Errorf("seat map after bookings = %+v", seatMap)
	}
}

func TestBookingLimiterIsMounted(t *testing.T) {
	limited := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})
	}
	f := setupAPI(t, limited)

	if rec := f.do(t, http.MethodPost, "/api/bookings", map[string]string{}, map[string]string{UserIDHeader: "u"}); rec.Code != http.StatusTooManyRequests {
		t.Errorf("POST /api/bookings: %d, want 429", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/api/bookings/nope", nil, nil); rec.Code != http.StatusNotFound {
		t.Errorf("GET is not rate limited: %d, want 404", rec.Code)
	}
}

func TestRouteStationsAndFeed(t *testing.T) {
	f := setupAPI(t, nil)
	sc := f.createSchedule(t)

	rec := f.do(t, http.MethodGet, "/api/routes/"+testnet.RouteCA+"/stations", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("route stations: %d", rec.Code)
	}
	stops := decode[RouteStationsResponse](t, rec).Stations
	if len(stops) != 3 || stops[0].StationID != testnet.StationC || stops[2].DistanceFromStart != 100 {
		t.Errorf("stops = %+v", stops)
	}
	if rec := f.do(t, http.MethodGet, "/api/routes/nope/stations", nil, nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown route: %d, want 404", rec.Code)
	}

	date := f.departure.Format(models.DateLayout)
	rec = f.do(t, http.MethodGet, "/api/feed/schedules.pb?format=text&date="+date, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("feed: %d %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), sc.ID) {
		t.Errorf("text feed does not mention schedule %s", sc.ID)
	}

	rec = f.do(t, http.MethodGet, "/api/feed/schedules.pb?date="+date, nil, nil)
	if ct := rec.Header().Get("Content-Type"); ct != "application/x-protobuf" {
		t.Errorf("content type = %q", ct)
	}
	if rec := f.do(t, http.MethodGet, "/api/feed/schedules.pb?date=soon", nil, nil); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad date: %d, want 422", rec.Code)
	}
}

type downDB struct{}

func (downDB) Ping(context.Context) error { return errors.New("database is locked") }

func TestHealth(t *testing.T) {
	f := setupAPI(t, nil)
	if rec := f.do(t, http.MethodGet, "/health", nil, nil); rec.Code != http.StatusOK {
		t.Errorf("/health: %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/healthz", nil, nil); rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("/healthz: %d %q", rec.Code, rec.Body.String())
	}

	rec := httptest.NewRecorder()
	NewHealthHandler(downDB{}).Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("/health with database down: %d, want 503", rec.Code)
	}
	if body := decode[map[string]interface{}](t, rec); body["database"] != "disconnected" {
		t.Errorf("body = %v", body)
	}
}
