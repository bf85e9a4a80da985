package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/railnet/railnet/internal/feed"
)

// RouterConfig collects the services mounted by NewRouter
type RouterConfig struct {
	CORSOrigins    []string
	RequestTimeout time.Duration
	Location       *time.Location

	Schedules ScheduleService
	Searcher  TrainSearcher
	Ledger    SeatLedger
	Routes    RouteStations
	Bookings  BookingService
	FeedStore feed.Store
	DB        Pinger

	// BookingLimiter wraps POST /api/bookings when set
	BookingLimiter func(http.Handler) http.Handler
}

// NewRouter wires every endpoint of the booking API
func NewRouter(cfg RouterConfig) http.Handler {
	schedules := NewScheduleHandler(cfg.Schedules)
	trains := NewTrainHandler(cfg.Searcher, cfg.Ledger, cfg.Routes)
	bookings := NewBookingHandler(cfg.Bookings)
	feeds := NewFeedHandler(cfg.FeedStore, cfg.Location)
	health := NewHealthHandler(cfg.DB)

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	r.Get("/health", health.Health)
	r.Get("/healthz", health.Healthz)

	r.Route("/api", func(r chi.Router) {
		if cfg.RequestTimeout > 0 {
			r.Use(middleware.Timeout(cfg.RequestTimeout))
		}

		r.Route("/schedules", func(r chi.Router) {
			r.Post("/", schedules.CreateSchedule)
			r.Get("/", schedules.ListSchedules)
			r.Get("/{scheduleId}", schedules.GetSchedule)
			r.Patch("/{scheduleId}/status", schedules.UpdateStatus)
			r.Patch("/{scheduleId}/stations/{sequence}", schedules.UpdateStation)
		})

		r.Get("/trains/search", trains.SearchTrains)
		r.Get("/seat-status/{scheduleId}/{compartmentId}", trains.GetSeatStatus)
		r.Get("/routes/{routeId}/stations", trains.GetRouteStations)

		r.Route("/bookings", func(r chi.Router) {
			if cfg.BookingLimiter != nil {
				r.With(cfg.BookingLimiter).Post("/", bookings.CreateBooking)
			} else {
				r.Post("/", bookings.CreateBooking)
			}
			r.Get("/", bookings.ListBookings)
			r.Get("/{bookingId}", bookings.GetBooking)
		})

		r.Get("/feed/schedules.pb", feeds.GetScheduleFeed)
	})

	return r
}
