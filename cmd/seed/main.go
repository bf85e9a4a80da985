package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/railnet/railnet/internal/config"
	"github.com/railnet/railnet/repository"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")

	networkPath := flag.String("network", "data/network.json", "JSON file with stations, routes, compartments and trains")
	flag.Parse()

	cfg := config.Load()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	f, err := os.Open(*networkPath)
	if err != nil {
		log.Fatalf("Failed to open network file: %v", err)
	}
	network, err := readNetwork(f)
	f.Close()
	if err != nil {
		log.Fatalf("%v", err)
	}

	store, err := repository.Open(ctx, cfg.DatabaseDriver, cfg.DatabasePath, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}

	log.Printf("Seeding network from %s", *networkPath)
	if err := load(ctx, store, network); err != nil {
		log.Fatalf("Seed failed: %v", err)
	}
	log.Println("Seed complete!")
}
