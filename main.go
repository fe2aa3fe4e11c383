package main

import (
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"parkgate/api"
	"parkgate/auth"
	"parkgate/db"
	"parkgate/occupancy"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	// Initialize database connection
	if err := db.InitDB(); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.CloseDB()

	// Get snapshot interval from environment variable (default to 60 seconds)
	snapshotInterval := 60
	if intervalStr := os.Getenv("SNAPSHOT_INTERVAL"); intervalStr != "" {
		if interval, err := strconv.Atoi(intervalStr); err == nil {
			snapshotInterval = interval
		}
	}

	// Create the occupancy aggregator
	agg := occupancy.NewAggregator()
	ticker := time.NewTicker(time.Duration(snapshotInterval) * time.Second)
	defer ticker.Stop()

	// Set up API routes
	authSvc := auth.NewService()
	router := api.NewRouter(agg, authSvc)

	// Start the API server in a goroutine
	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	go func() {
		log.Printf("Starting API server on %s", addr)
		if err := http.ListenAndServe(addr, router); err != nil {
			log.Fatalf("Failed to start API server: %v", err)
		}
	}()

	log.Printf("Starting occupancy aggregator (snapshot interval: %d seconds)", snapshotInterval)

	// Initial snapshot
	if err := agg.SnapshotAndStore(); err != nil {
		log.Printf("Error storing occupancy snapshot: %v", err)
	}

	// Continuous snapshots
	for range ticker.C {
		if err := agg.SnapshotAndStore(); err != nil {
			log.Printf("Error storing occupancy snapshot: %v", err)
		}
	}
}
