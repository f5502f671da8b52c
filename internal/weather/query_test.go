package weather_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"gorm.io/datatypes"

	"github.com/TerraCast/TC-Backend/internal/regions"
	"github.com/TerraCast/TC-Backend/internal/weather"
)

// fakeRegionQuerier serves a fixed region list for every filter mode,
// recording which mode was used.
type fakeRegionQuerier struct {
	list []regions.Region
	mode string
}

func (f *fakeRegionQuerier) All(context.Context) ([]regions.Region, error) {
	f.mode = "all"
	return f.list, nil
}

func (f *fakeRegionQuerier) CentroidsInBox(_ context.Context, bound orb.Bound) ([]regions.Region, error) {
	f.mode = "box"
	var out []regions.Region
	for _, r := range f.list {
		c := r.Centroid()
		if c != nil && bound.Contains(*c) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRegionQuerier) IntersectingPolygon(_ context.Context, _ orb.Polygon) ([]regions.Region, error) {
	f.mode = "polygon"
	return f.list, nil
}

// fakeSnapshotQuerier resolves dates and serves snapshots from memory.
type fakeSnapshotQuerier struct {
	dates []weather.SnapshotDate
	byKey map[string]*weather.Snapshot // region|date
}

func (f *fakeSnapshotQuerier) DateByID(_ context.Context, id string) (*weather.SnapshotDate, error) {
	for i := range f.dates {
		if f.dates[i].ID == id {
			return &f.dates[i], nil
		}
	}
	return nil, weather.ErrNoSnapshotDate
}

func (f *fakeSnapshotQuerier) LatestDateAtOrBefore(_ context.Context, at time.Time) (*weather.SnapshotDate, error) {
	var best *weather.SnapshotDate
	for i := range f.dates {
		d := &f.dates[i]
		if d.Stamp.After(at) {
			continue
		}
		if best == nil || d.Stamp.After(best.Stamp) {
			best = d
		}
	}
	if best == nil {
		return nil, weather.ErrNoSnapshotDate
	}
	return best, nil
}

func (f *fakeSnapshotQuerier) SnapshotsForDate(_ context.Context, dateID string, regionIDs []string) (map[string]*weather.Snapshot, error) {
	out := map[string]*weather.Snapshot{}
	for _, rid := range regionIDs {
		if snap, ok := f.byKey[rid+"|"+dateID]; ok {
			out[rid] = snap
		}
	}
	return out, nil
}

// fixedMetadata names restricted fields without a database.
type fixedMetadata struct {
	restricted []string
}

func (m fixedMetadata) RestrictedFields(context.Context) ([]string, error) {
	return m.restricted, nil
}

func queryFixture() (*fakeRegionQuerier, *fakeSnapshotQuerier) {
	lonA, latA := 10.0, 50.0
	lonB, latB := 30.0, 60.0
	rq := &fakeRegionQuerier{list: []regions.Region{
		{ID: "ra", Name: "Alpha", CentroidLon: &lonA, CentroidLat: &latA},
		{ID: "rb", Name: "Beta", CentroidLon: &lonB, CentroidLat: &latB},
	}}
	sq := &fakeSnapshotQuerier{
		dates: []weather.SnapshotDate{
			{ID: "d1", Stamp: time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)},
			{ID: "d2", Stamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		},
		byKey: map[string]*weather.Snapshot{
			"ra|d2": {ID: "s1", RegionID: "ra", DateID: "d2",
				Payload: datatypes.JSON(`{"temperature": 21.5, "wind": {"speed": 3.2}, "radiation": 0.7}`)},
		},
	}
	return rq, sq
}

// TestQuery_NullWeatherRow verifies a region without a snapshot appears in
// the result with nil weather instead of being dropped.
func TestQuery_NullWeatherRow(t *testing.T) {
	rq, sq := queryFixture()
	e := weather.NewEngine(rq, sq, fixedMetadata{})

	out, err := e.QueryRegionsWithWeather(context.Background(), weather.DateRef{ID: "d2"}, nil, true)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(out))
	}
	if out[0].Region.ID != "ra" || out[0].Snapshot == nil {
		t.Errorf("row 0 = %+v, want ra with snapshot", out[0])
	}
	if out[1].Region.ID != "rb" || out[1].Snapshot != nil {
		t.Errorf("row 1 = %+v, want rb with nil snapshot", out[1])
	}
}

// TestQuery_LatestAtOrBefore verifies timestamp date references resolve to
// the most recent date at or before the timestamp.
func TestQuery_LatestAtOrBefore(t *testing.T) {
	rq, sq := queryFixture()
	e := weather.NewEngine(rq, sq, fixedMetadata{})

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) // between d1 and d2
	out, err := e.QueryRegionsWithWeather(context.Background(), weather.DateRef{At: &at}, nil, true)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	// d1 has no snapshots, so both rows carry nil weather.
	for _, rw := range out {
		if rw.Snapshot != nil {
			t.Errorf("region %s resolved to the wrong date", rw.Region.ID)
		}
	}

	// A timestamp before every run is a typed miss.
	early := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	if _, err := e.QueryRegionsWithWeather(context.Background(), weather.DateRef{At: &early}, nil, true); err != weather.ErrNoSnapshotDate {
		t.Errorf("expected ErrNoSnapshotDate, got %v", err)
	}
}

// TestQuery_BoundingBoxFilter verifies the centroid bbox path selects only
// regions whose centroid falls inside the box.
func TestQuery_BoundingBoxFilter(t *testing.T) {
	rq, sq := queryFixture()
	e := weather.NewEngine(rq, sq, fixedMetadata{})

	box := orb.Bound{Min: orb.Point{0, 40}, Max: orb.Point{20, 55}} // contains ra only
	out, err := e.QueryRegionsWithWeather(context.Background(), weather.DateRef{ID: "d2"},
		&weather.SpatialFilter{Box: &box}, true)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if rq.mode != "box" {
		t.Errorf("filter mode = %q, want box", rq.mode)
	}
	if len(out) != 1 || out[0].Region.ID != "ra" {
		t.Fatalf("expected only ra, got %+v", out)
	}
}

// TestQuery_Redaction verifies authentication-gated fields are stripped for
// unauthenticated callers and retained for authenticated ones — including
// nested field paths.
func TestQuery_Redaction(t *testing.T) {
	rq, sq := queryFixture()
	e := weather.NewEngine(rq, sq, fixedMetadata{restricted: []string{"radiation", "wind.speed"}})

	unauth, err := e.QueryRegionsWithWeather(context.Background(), weather.DateRef{ID: "d2"}, nil, false)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	payload := string(unauth[0].Snapshot.Payload)
	if strings.Contains(payload, "radiation") {
		t.Errorf("restricted field leaked: %s", payload)
	}
	if strings.Contains(payload, "speed") {
		t.Errorf("restricted nested field leaked: %s", payload)
	}
	if !strings.Contains(payload, "temperature") {
		t.Errorf("public field missing after redaction: %s", payload)
	}

	// Authenticated callers see everything, and the stored payload was not
	// mutated by the earlier redaction.
	auth, err := e.QueryRegionsWithWeather(context.Background(), weather.DateRef{ID: "d2"}, nil, true)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if !strings.Contains(string(auth[0].Snapshot.Payload), "radiation") {
		t.Error("authenticated payload lost restricted field")
	}
}
