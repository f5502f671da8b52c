// One sampling pass over every region with a centroid. Meant to be run on a
// schedule (cron or a systemd timer); each run produces one snapshot date.
package main

import (
	"context"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/TerraCast/TC-Backend/internal/db"
	"github.com/TerraCast/TC-Backend/internal/observability"
	"github.com/TerraCast/TC-Backend/internal/regions"
	"github.com/TerraCast/TC-Backend/internal/weather"
)

func main() {
	godotenv.Load(".env.local")

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL not set")
	}
	conn, err := db.Open(dbURL)
	if err != nil {
		log.Fatalf("DB connection error: %v", err)
	}
	defer db.Close(conn)

	if err := regions.Init(conn); err != nil {
		log.Fatalf("regions init: %v", err)
	}
	if err := weather.Init(conn); err != nil {
		log.Fatalf("weather init: %v", err)
	}

	provider, err := weather.NewClient(weather.LoadFromEnv())
	if err != nil {
		log.Fatalf("provider config: %v", err)
	}

	workers, _ := strconv.Atoi(os.Getenv("SAMPLER_WORKERS"))
	metrics := observability.New(prometheus.NewRegistry())
	sampler := weather.NewSampler(
		regions.NewStore(conn),
		weather.NewStore(conn),
		provider,
		clockwork.NewRealClock(),
		metrics,
		workers,
	)

	report, err := sampler.SampleAll(context.Background())
	if err != nil {
		log.Fatalf("sampling run failed: %v", err)
	}

	log.Printf("[sample] date=%s written=%d provider_failures=%d skipped_no_centroid=%d",
		report.DateID, report.Written, report.ProviderFailures, report.SkippedNoCentroid)
}
