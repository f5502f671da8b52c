// One-shot region ingestion: reads a GeoJSON feature collection from a file
// and runs the full pipeline (CRS resolution, decomposition, reprojection,
// persistence, centroids).
//
// Usage: go run ./cmd/ingest path/to/regions.geojson
package main

import (
	"context"
	"encoding/json"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/TerraCast/TC-Backend/internal/crs"
	"github.com/TerraCast/TC-Backend/internal/db"
	"github.com/TerraCast/TC-Backend/internal/geo"
	"github.com/TerraCast/TC-Backend/internal/ingest"
	"github.com/TerraCast/TC-Backend/internal/observability"
	"github.com/TerraCast/TC-Backend/internal/regions"
)

func main() {
	godotenv.Load(".env.local")

	if len(os.Args) < 2 {
		log.Fatal("usage: ingest <file.geojson>")
	}

	raw, err := os.ReadFile(os.Args[1])
	if err != nil {
		log.Fatalf("read %s: %v", os.Args[1], err)
	}
	var fc geo.FeatureCollection
	if err := json.Unmarshal(raw, &fc); err != nil {
		log.Fatalf("parse %s: %v", os.Args[1], err)
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL not set")
	}
	conn, err := db.Open(dbURL)
	if err != nil {
		log.Fatalf("DB connection error: %v", err)
	}
	defer db.Close(conn)

	if err := crs.Init(conn); err != nil {
		log.Fatalf("crs init: %v", err)
	}
	if err := regions.Init(conn); err != nil {
		log.Fatalf("regions init: %v", err)
	}

	metrics := observability.New(prometheus.NewRegistry())
	resolver := crs.NewResolver(conn, crs.NewRegistryClient())
	store := regions.NewStore(conn)
	svc := ingest.NewService(resolver, store, metrics)

	result, err := svc.Run(context.Background(), &fc)
	if err != nil {
		log.Fatalf("ingest failed: %v", err)
	}

	log.Printf("[ingest] batch=%s regions=%d centroids_computed=%d centroids_failed=%d",
		result.BatchID, len(result.Regions), result.Centroids.Computed, result.Centroids.Failed)
}
