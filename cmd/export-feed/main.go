package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/railnet/railnet/internal/config"
	"github.com/railnet/railnet/internal/feed"
	"github.com/railnet/railnet/repository"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")

	cfg := config.Load()
	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("Invalid TIMEZONE: %v", err)
	}

	date := flag.String("date", time.Now().In(loc).Format("2006-01-02"), "Departure date to export (YYYY-MM-DD)")
	output := flag.String("output", "data/feed/schedules.pb", "Output path for the feed")
	text := flag.Bool("text", false, "Write human-readable prototext instead of binary protobuf")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	store, err := repository.Open(ctx, cfg.DatabaseDriver, cfg.DatabasePath, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	schedules, err := feed.SchedulesOn(ctx, store, *date)
	if err != nil {
		log.Fatalf("Failed to load schedules: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(*output), 0755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}
	if err := feed.WriteFile(*output, feed.Build(schedules, time.Now()), *text); err != nil {
		log.Fatalf("Failed to write feed: %v", err)
	}

	log.Printf("Exported %d schedules for %s to %s", len(schedules), *date, *output)
}
