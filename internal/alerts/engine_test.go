package alerts_test

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/datatypes"

	"github.com/TerraCast/TC-Backend/internal/alerts"
	"github.com/TerraCast/TC-Backend/internal/observability"
	"github.com/TerraCast/TC-Backend/internal/regions"
	"github.com/TerraCast/TC-Backend/internal/weather"
)

func f64(v float64) *float64 { return &v }

// fakeMetadata serves a fixed active rule.
type fakeMetadata struct {
	active *alerts.Metadata
}

func (f fakeMetadata) ActiveMetadata(context.Context) (*alerts.Metadata, error) {
	return f.active, nil
}

// fakeResolver resolves points against in-memory polygons.
type fakeResolver struct {
	list []regions.Region
}

func (f fakeResolver) FindByPoint(_ context.Context, pt orb.Point) (*regions.Region, error) {
	for i := range f.list {
		poly, err := f.list[i].Polygon()
		if err != nil {
			return nil, err
		}
		if planar.PolygonContains(poly, pt) {
			return &f.list[i], nil
		}
	}
	return nil, nil
}

// fakeWindow serves snapshots, honoring region set and window bounds.
type fakeWindow struct {
	snaps []weather.DatedSnapshot
}

func (f fakeWindow) SnapshotsInWindow(_ context.Context, regionIDs []string, from, to time.Time) ([]weather.DatedSnapshot, error) {
	in := map[string]bool{}
	for _, id := range regionIDs {
		in[id] = true
	}
	var out []weather.DatedSnapshot
	for _, s := range f.snaps {
		if in[s.RegionID] && !s.Stamp.Before(from) && !s.Stamp.After(to) {
			out = append(out, s)
		}
	}
	return out, nil
}

func squareRegion(t *testing.T, id, name string, x, y, size float64) regions.Region {
	t.Helper()
	r := regions.Region{ID: id, Name: name}
	err := r.SetPolygon(orb.Polygon{orb.Ring{
		{x, y}, {x + size, y}, {x + size, y + size}, {x, y + size}, {x, y},
	}})
	if err != nil {
		t.Fatalf("SetPolygon: %v", err)
	}
	return r
}

func activeRule(t *testing.T, field string, ranges ...alerts.Range) *alerts.Metadata {
	t.Helper()
	m := &alerts.Metadata{ID: "rule-1", Field: field, Active: true}
	if err := m.SetRanges(ranges); err != nil {
		t.Fatalf("SetRanges: %v", err)
	}
	return m
}

func snapshotAt(regionID string, stamp time.Time, payload string) weather.DatedSnapshot {
	return weather.DatedSnapshot{
		Snapshot: weather.Snapshot{ID: "s-" + regionID + stamp.Format("150405"),
			RegionID: regionID, Payload: datatypes.JSON(payload)},
		Stamp: stamp,
	}
}

var testNow = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func newEngine(meta *alerts.Metadata, resolver fakeResolver, window fakeWindow) *alerts.Engine {
	return alerts.NewEngine(
		fakeMetadata{active: meta},
		resolver,
		window,
		clockwork.NewFakeClockAt(testNow),
		observability.New(prometheus.NewRegistry()),
	)
}

// TestComputeAlerts_RangeMatch: a [35, +inf)
// alertable range on temperature yields exactly one alert for a snapshot at
// 36 and none for one at 30.
func TestComputeAlerts_RangeMatch(t *testing.T) {
	region := squareRegion(t, "r1", "Uptown", 0, 0, 10)
	resolver := fakeResolver{list: []regions.Region{region}}
	rule := activeRule(t, "temperature",
		alerts.Range{Lower: f64(35), Alertable: true, Color: "red", Recommendation: "stay indoors"})
	loc := alerts.Point{ID: "u1", Label: "home", Lon: 5, Lat: 5}

	hot := fakeWindow{snaps: []weather.DatedSnapshot{
		snapshotAt("r1", testNow.Add(24*time.Hour), `{"temperature": 36}`),
	}}
	out, err := newEngine(rule, resolver, hot).ComputeAlerts(context.Background(), []alerts.Point{loc}, 7)
	if err != nil {
		t.Fatalf("ComputeAlerts: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(out))
	}
	a := out[0]
	if a.RegionName != "Uptown" || a.Value != 36 || a.Color != "red" || a.Recommendation != "stay indoors" {
		t.Errorf("alert = %+v", a)
	}
	if len(a.Locations) != 1 || a.Locations[0].ID != "u1" {
		t.Errorf("alert locations = %+v", a.Locations)
	}

	mild := fakeWindow{snaps: []weather.DatedSnapshot{
		snapshotAt("r1", testNow.Add(24*time.Hour), `{"temperature": 30}`),
	}}
	out, err = newEngine(rule, resolver, mild).ComputeAlerts(context.Background(), []alerts.Point{loc}, 7)
	if err != nil {
		t.Fatalf("ComputeAlerts: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("expected no alerts for temperature 30, got %d", len(out))
	}
}

// TestComputeAlerts_Windowing verifies the lookahead boundary: a snapshot at
// exactly now+lookahead is included, one epsilon later is excluded.
func TestComputeAlerts_Windowing(t *testing.T) {
	region := squareRegion(t, "r1", "Uptown", 0, 0, 10)
	resolver := fakeResolver{list: []regions.Region{region}}
	rule := activeRule(t, "temperature",
		alerts.Range{Lower: f64(0), Alertable: true, Color: "orange"})
	loc := alerts.Point{ID: "u1", Lon: 5, Lat: 5}

	exactEdge := testNow.Add(3 * 24 * time.Hour)
	window := fakeWindow{snaps: []weather.DatedSnapshot{
		snapshotAt("r1", exactEdge, `{"temperature": 20}`),
		snapshotAt("r1", exactEdge.Add(time.Second), `{"temperature": 25}`),
	}}

	out, err := newEngine(rule, resolver, window).ComputeAlerts(context.Background(), []alerts.Point{loc}, 3)
	if err != nil {
		t.Fatalf("ComputeAlerts: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected only the boundary snapshot, got %d alerts", len(out))
	}
	if !out[0].Date.Equal(exactEdge) {
		t.Errorf("alert date = %v, want %v", out[0].Date, exactEdge)
	}
}

// TestComputeAlerts_NoActiveRule verifies the engine returns no alerts when
// nothing is active.
func TestComputeAlerts_NoActiveRule(t *testing.T) {
	region := squareRegion(t, "r1", "Uptown", 0, 0, 10)
	resolver := fakeResolver{list: []regions.Region{region}}
	window := fakeWindow{snaps: []weather.DatedSnapshot{
		snapshotAt("r1", testNow.Add(time.Hour), `{"temperature": 99}`),
	}}

	out, err := newEngine(nil, resolver, window).ComputeAlerts(context.Background(),
		[]alerts.Point{{ID: "u1", Lon: 5, Lat: 5}}, 7)
	if err != nil {
		t.Fatalf("ComputeAlerts: %v", err)
	}
	if out != nil {
		t.Errorf("expected nil alerts without an active rule, got %+v", out)
	}
}

// TestComputeAlerts_OutsideRegionsDropped verifies locations outside all
// regions are silently skipped while in-region locations still match.
func TestComputeAlerts_OutsideRegionsDropped(t *testing.T) {
	region := squareRegion(t, "r1", "Uptown", 0, 0, 10)
	resolver := fakeResolver{list: []regions.Region{region}}
	rule := activeRule(t, "temperature",
		alerts.Range{Lower: f64(0), Alertable: true})
	window := fakeWindow{snaps: []weather.DatedSnapshot{
		snapshotAt("r1", testNow.Add(time.Hour), `{"temperature": 20}`),
	}}

	out, err := newEngine(rule, resolver, window).ComputeAlerts(context.Background(), []alerts.Point{
		{ID: "far", Lon: 100, Lat: 80},
		{ID: "near", Lon: 5, Lat: 5},
	}, 7)
	if err != nil {
		t.Fatalf("ComputeAlerts: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(out))
	}
	if len(out[0].Locations) != 1 || out[0].Locations[0].ID != "near" {
		t.Errorf("locations = %+v, want only the in-region one", out[0].Locations)
	}
}

// TestComputeAlerts_GroupingAndOrder verifies co-located users share one
// region evaluation and output is sorted ascending by date.
func TestComputeAlerts_GroupingAndOrder(t *testing.T) {
	a := squareRegion(t, "ra", "Alpha", 0, 0, 10)
	b := squareRegion(t, "rb", "Beta", 20, 20, 10)
	resolver := fakeResolver{list: []regions.Region{a, b}}
	rule := activeRule(t, "temperature",
		alerts.Range{Lower: f64(0), Alertable: true})

	later := testNow.Add(48 * time.Hour)
	earlier := testNow.Add(12 * time.Hour)
	window := fakeWindow{snaps: []weather.DatedSnapshot{
		snapshotAt("ra", later, `{"temperature": 21}`),
		snapshotAt("rb", earlier, `{"temperature": 22}`),
	}}

	out, err := newEngine(rule, resolver, window).ComputeAlerts(context.Background(), []alerts.Point{
		{ID: "u1", Lon: 4, Lat: 4},
		{ID: "u2", Lon: 6, Lat: 6}, // same region as u1
		{ID: "u3", Lon: 25, Lat: 25},
	}, 7)
	if err != nil {
		t.Fatalf("ComputeAlerts: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 alerts, got %d", len(out))
	}
	if !out[0].Date.Before(out[1].Date) {
		t.Error("alerts not sorted ascending by date")
	}
	if out[0].RegionID != "rb" || out[1].RegionID != "ra" {
		t.Errorf("alert order = %s, %s", out[0].RegionID, out[1].RegionID)
	}
	if len(out[1].Locations) != 2 {
		t.Errorf("expected both co-located users on the Alpha alert, got %+v", out[1].Locations)
	}
}

// TestComputeAlerts_OpenBounds verifies nil bounds evaluate as infinities
// and the OR across ranges picks the first containing range.
func TestComputeAlerts_OpenBounds(t *testing.T) {
	region := squareRegion(t, "r1", "Uptown", 0, 0, 10)
	resolver := fakeResolver{list: []regions.Region{region}}
	// Ranges: (-inf, -10] alertable, [35, +inf) alertable, [0, 30] not.
	rule := activeRule(t, "temperature",
		alerts.Range{Upper: f64(-10), Alertable: true, Color: "blue"},
		alerts.Range{Lower: f64(35), Alertable: true, Color: "red"},
		alerts.Range{Lower: f64(0), Upper: f64(30), Alertable: false})
	loc := alerts.Point{ID: "u1", Lon: 5, Lat: 5}

	window := fakeWindow{snaps: []weather.DatedSnapshot{
		snapshotAt("r1", testNow.Add(1*time.Hour), `{"temperature": -40}`),
		snapshotAt("r1", testNow.Add(2*time.Hour), `{"temperature": 15}`),
		snapshotAt("r1", testNow.Add(3*time.Hour), `{"temperature": 40}`),
	}}

	out, err := newEngine(rule, resolver, window).ComputeAlerts(context.Background(), []alerts.Point{loc}, 1)
	if err != nil {
		t.Fatalf("ComputeAlerts: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 alerts (cold and hot), got %d", len(out))
	}
	if out[0].Color != "blue" || out[1].Color != "red" {
		t.Errorf("matched colors = %s, %s", out[0].Color, out[1].Color)
	}
}
