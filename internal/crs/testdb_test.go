package crs_test

import (
	"os"
	"testing"

	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"github.com/TerraCast/TC-Backend/internal/crs"
	"github.com/TerraCast/TC-Backend/internal/db"
)

// testDB opens the database named by DATABASE_URL, or skips the test when no
// database is available (same convention as the rest of the integration
// tests).
func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	_ = godotenv.Load("../../.env.local")

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping database-backed test")
	}

	d, err := db.Open(dsn)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	if err := crs.Init(d); err != nil {
		t.Fatalf("init crs schema: %v", err)
	}

	t.Cleanup(func() {
		d.Exec("DELETE FROM crs.records WHERE descriptor LIKE 'EPSG:3%'")
		_ = db.Close(d)
	})
	return d
}
