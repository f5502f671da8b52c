package main

import (
	"log"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/TerraCast/TC-Backend/internal/alerts"
	"github.com/TerraCast/TC-Backend/internal/crs"
	"github.com/TerraCast/TC-Backend/internal/db"
	"github.com/TerraCast/TC-Backend/internal/ingest"
	"github.com/TerraCast/TC-Backend/internal/observability"
	"github.com/TerraCast/TC-Backend/internal/regions"
	"github.com/TerraCast/TC-Backend/internal/server"
	"github.com/TerraCast/TC-Backend/internal/vault"
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

	if err := crs.Init(conn); err != nil {
		log.Fatalf("crs init: %v", err)
	}
	if err := regions.Init(conn); err != nil {
		log.Fatalf("regions init: %v", err)
	}
	if err := weather.Init(conn); err != nil {
		log.Fatalf("weather init: %v", err)
	}
	if err := alerts.Init(conn); err != nil {
		log.Fatalf("alerts init: %v", err)
	}
	if err := vault.Init(conn); err != nil {
		log.Fatalf("vault init: %v", err)
	}

	keyring, err := vault.NewKeyringFromEnv()
	if err != nil {
		log.Fatalf("vault keyring: %v", err)
	}

	registry := prometheus.NewRegistry()
	metrics := observability.New(registry)
	clock := clockwork.NewRealClock()

	regionStore := regions.NewStore(conn)
	snapshotStore := weather.NewStore(conn)
	ruleStore := alerts.NewStore(conn)
	resolver := crs.NewResolver(conn, crs.NewRegistryClient())

	srv := &server.Server{
		Ingest:    ingest.NewService(resolver, regionStore, metrics),
		Regions:   regionStore,
		Snapshots: snapshotStore,
		Query:     weather.NewEngine(regionStore, snapshotStore, ruleStore),
		Rules:     ruleStore,
		Alerts:    alerts.NewEngine(ruleStore, regionStore, snapshotStore, clock, metrics),
		Vault:     vault.New(conn, keyring),
		Registry:  registry,
		Token:     os.Getenv("API_TOKEN"),
	}
	if srv.Token == "" {
		log.Println("[server] API_TOKEN not set; all requests are unauthenticated")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "5050"
	}

	log.Printf("[server] listening on :%s", port)
	if err := http.ListenAndServe("0.0.0.0:"+port, srv.Routes()); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
