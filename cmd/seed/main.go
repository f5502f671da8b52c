// Seeds alert rules from a YAML file through the alerts write path.
//
// Usage: go run ./cmd/seed [rules.yaml]   (default seeds/alert_rules.yaml)
package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/TerraCast/TC-Backend/internal/alerts"
	"github.com/TerraCast/TC-Backend/internal/db"
	"github.com/TerraCast/TC-Backend/internal/seeds"
)

func main() {
	godotenv.Load(".env.local")

	path := "seeds/alert_rules.yaml"
	if len(os.Args) > 1 {
		path = os.Args[1]
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

	if err := alerts.Init(conn); err != nil {
		log.Fatalf("alerts init: %v", err)
	}

	if err := seeds.SeedRules(context.Background(), alerts.NewStore(conn), path); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
}
