package ingest_test

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/TerraCast/TC-Backend/internal/db"
	"github.com/TerraCast/TC-Backend/internal/geo"
	"github.com/TerraCast/TC-Backend/internal/ingest"
	"github.com/TerraCast/TC-Backend/internal/observability"
	"github.com/TerraCast/TC-Backend/internal/projection"
	"github.com/TerraCast/TC-Backend/internal/regions"
	"github.com/TerraCast/TC-Backend/internal/weather"
)

const testProj4 = "+proj=utm +zone=33 +datum=WGS84 +units=m +no_defs"

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
	if err := regions.Init(d); err != nil {
		t.Fatalf("init regions schema: %v", err)
	}
	if err := weather.Init(d); err != nil {
		t.Fatalf("init weather schema: %v", err)
	}

	t.Cleanup(func() { _ = db.Close(d) })
	return d
}

// stubResolver hands back a fixed projection definition for any descriptor,
// standing in for the registry-backed resolver.
type stubResolver struct{ def string }

func (s stubResolver) Resolve(context.Context, string) (string, error) {
	return s.def, nil
}

// recordingProvider returns a fixed payload for every sampled centroid.
type recordingProvider struct{ calls int }

func (p *recordingProvider) Current(_ context.Context, lat, lon float64) (json.RawMessage, error) {
	p.calls++
	return json.RawMessage(`{"main":{"temp":21.5}}`), nil
}

// projectedSquare builds a closed square ring around (lonDeg, latDeg),
// projected out of WGS84 so ingestion has to reproject it back.
func projectedSquare(t *testing.T, tr *projection.Transformer, lonDeg, latDeg, half float64) orb.Polygon {
	t.Helper()
	corners := [][2]float64{
		{lonDeg - half, latDeg - half},
		{lonDeg + half, latDeg - half},
		{lonDeg + half, latDeg + half},
		{lonDeg - half, latDeg + half},
		{lonDeg - half, latDeg - half},
	}
	ring := make(orb.Ring, len(corners))
	for i, c := range corners {
		x, y := tr.FromWGS84(c[0], c[1])
		ring[i] = orb.Point{x, y}
	}
	return orb.Polygon{ring}
}

// TestRun_EndToEnd ingests a projected single-polygon collection, then runs
// one sampling pass: the stored region must be back in lon/lat, its centroid
// must sit inside the source square, and the new snapshot date must carry
// exactly one snapshot for the region.
func TestRun_EndToEnd(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()

	tr, err := projection.Parse(testProj4)
	if err != nil {
		t.Fatalf("parse projection: %v", err)
	}

	fc := &geo.FeatureCollection{
		Type: "FeatureCollection",
		CRS: &geo.CRS{
			Type:       "name",
			Properties: geo.CRSProperties{Name: "EPSG:32633"},
		},
		Features: []geo.Feature{{
			Type:       "Feature",
			Geometry:   geojson.NewGeometry(projectedSquare(t, tr, 15.0, 52.0, 0.1)),
			Properties: geojson.Properties{"name": "Testfeld"},
		}},
	}

	store := regions.NewStore(d)
	metrics := observability.New(prometheus.NewRegistry())
	svc := ingest.NewService(stubResolver{def: testProj4}, store, metrics)

	result, err := svc.Run(ctx, fc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	t.Cleanup(func() {
		_, _ = store.DeleteBatch(ctx, result.BatchID)
	})

	if len(result.Regions) != 1 {
		t.Fatalf("expected 1 region, got %d", len(result.Regions))
	}
	if result.Centroids.Computed != 1 || result.Centroids.Failed != 0 {
		t.Fatalf("unexpected centroid report: %+v", result.Centroids)
	}

	stored, err := store.ByID(ctx, result.Regions[0].ID)
	if err != nil {
		t.Fatalf("load stored region: %v", err)
	}
	if stored.SourceCRS != "EPSG:32633" {
		t.Errorf("source crs = %q, want EPSG:32633", stored.SourceCRS)
	}
	poly, err := stored.Polygon()
	if err != nil {
		t.Fatalf("decode stored geometry: %v", err)
	}
	for _, pt := range poly[0] {
		if pt[0] < 14.8 || pt[0] > 15.2 || pt[1] < 51.8 || pt[1] > 52.2 {
			t.Fatalf("stored vertex %v not reprojected into the source square", pt)
		}
	}
	center := stored.Centroid()
	if center == nil {
		t.Fatal("expected a computed centroid")
	}
	if center[0] < 14.9 || center[0] > 15.1 || center[1] < 51.9 || center[1] > 52.1 {
		t.Errorf("centroid %v outside the source square", *center)
	}

	// One sampling pass over the freshly ingested region.
	snapshots := weather.NewStore(d)
	provider := &recordingProvider{}
	sampler := weather.NewSampler(store, snapshots, provider,
		clockwork.NewRealClock(), metrics, 2)

	report, err := sampler.SampleAll(ctx)
	if err != nil {
		t.Fatalf("SampleAll: %v", err)
	}
	t.Cleanup(func() {
		d.Exec("DELETE FROM weather.snapshots WHERE date_id = ?", report.DateID)
		d.Exec("DELETE FROM weather.snapshot_dates WHERE id = ?", report.DateID)
	})

	// The shared database may hold other regions; pin the assertion to ours.
	if report.Written < 1 || provider.calls < 1 {
		t.Fatalf("expected at least one sampled region, got %+v (provider calls %d)", report, provider.calls)
	}
	got, err := snapshots.SnapshotsForDate(ctx, report.DateID, []string{stored.ID})
	if err != nil {
		t.Fatalf("SnapshotsForDate: %v", err)
	}
	if len(got) != 1 || got[stored.ID] == nil {
		t.Fatalf("expected exactly one snapshot for the ingested region, got %d", len(got))
	}
}
