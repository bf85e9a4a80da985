package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/railnet/railnet/handlers"
	"github.com/railnet/railnet/internal/booking"
	"github.com/railnet/railnet/internal/config"
	"github.com/railnet/railnet/internal/events"
	"github.com/railnet/railnet/internal/ratelimit"
	"github.com/railnet/railnet/internal/routeindex"
	"github.com/railnet/railnet/internal/schedule"
	"github.com/railnet/railnet/internal/search"
	"github.com/railnet/railnet/internal/seats"
	"github.com/railnet/railnet/repository"
)

func main() {
	// Load base .env first, then .env.local (which overrides for local development)
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")

	cfg := config.Load()
	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("Invalid TIMEZONE: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := repository.Open(ctx, cfg.DatabaseDriver, cfg.DatabasePath, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}
	log.Println("Database schema ready")

	routes := routeindex.New(store, cfg.RouteCacheSize, cfg.RouteCacheTTL)

	var publisher events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		kp, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaBookingTopic)
		if err != nil {
			log.Fatalf("Failed to connect to Kafka: %v", err)
		}
		publisher = kp
		log.Printf("Publishing booking events to %s on %v", cfg.KafkaBookingTopic, cfg.KafkaBrokers)
	} else {
		log.Println("KAFKA_BROKERS not set, booking events disabled")
	}
	defer publisher.Close()

	var limiter func(http.Handler) http.Handler
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Invalid REDIS_URL: %v", err)
		}
		if cfg.RedisPassword != "" {
			opts.Password = cfg.RedisPassword
		}
		client := redis.NewClient(opts)
		defer client.Close()

		limiter = ratelimit.New(client, cfg.BookingRateLimit, cfg.BookingRateWindow).Middleware(handlers.UserID)
		log.Printf("Booking rate limit: %d requests per %s", cfg.BookingRateLimit, cfg.BookingRateWindow)
	} else {
		log.Println("REDIS_URL not set, booking rate limit disabled")
	}

	router := handlers.NewRouter(handlers.RouterConfig{
		CORSOrigins:    cfg.CORSOrigins,
		RequestTimeout: cfg.RequestTimeout,
		Location:       loc,
		Schedules:      schedule.NewBuilder(store, routes, loc),
		Searcher:       search.NewSearcher(store),
		Ledger:         seats.NewLedger(store),
		Routes:         routes,
		Bookings:       booking.NewAllocator(store, routes, publisher, loc),
		FeedStore:      store,
		DB:             store,
		BookingLimiter: limiter,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("API server starting on :%s", cfg.Port)
		log.Println("Schedule endpoints:")
		log.Println("  POST  /api/schedules")
		log.Println("  GET   /api/schedules")
		log.Println("  GET   /api/schedules/{scheduleId}")
		log.Println("  PATCH /api/schedules/{scheduleId}/status")
		log.Println("  PATCH /api/schedules/{scheduleId}/stations/{sequence}")
		log.Println("Booking endpoints:")
		log.Println("  GET   /api/trains/search")
		log.Println("  GET   /api/seat-status/{scheduleId}/{compartmentId}")
		log.Println("  POST  /api/bookings")
		log.Println("  GET   /api/bookings/{bookingId}")
		log.Println("  GET   /api/routes/{routeId}/stations")
		log.Println("  GET   /api/feed/schedules.pb")
		log.Println("Health:")
		log.Println("  GET /health (with database check)")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down API server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Warning: graceful shutdown failed: %v", err)
	}
}
