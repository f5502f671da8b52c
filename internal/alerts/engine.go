// Package alerts matches stored user locations against the active threshold
// rule over upcoming weather snapshots.
package alerts

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"github.com/tidwall/gjson"

	"github.com/TerraCast/TC-Backend/internal/observability"
	"github.com/TerraCast/TC-Backend/internal/regions"
	"github.com/TerraCast/TC-Backend/internal/weather"
)

// Point is one user location fed into alert matching.
type Point struct {
	ID    string  `json:"id"`
	Label string  `json:"label"`
	Lon   float64 `json:"lon"`
	Lat   float64 `json:"lat"`
}

// Alert is one matched threshold hit for one region and snapshot date.
type Alert struct {
	RegionID       string    `json:"region_id"`
	RegionName     string    `json:"region_name"`
	Date           time.Time `json:"date"`
	Field          string    `json:"field"`
	Value          float64   `json:"value"`
	Color          string    `json:"color"`
	Recommendation string    `json:"recommendation"`
	Locations      []Point   `json:"locations"`
}

// RegionResolver maps a point to its containing region.
type RegionResolver interface {
	FindByPoint(ctx context.Context, pt orb.Point) (*regions.Region, error)
}

// SnapshotWindow serves snapshots for a region set inside a time window.
type SnapshotWindow interface {
	SnapshotsInWindow(ctx context.Context, regionIDs []string, from, to time.Time) ([]weather.DatedSnapshot, error)
}

// MetadataProvider supplies the active rule.
type MetadataProvider interface {
	ActiveMetadata(ctx context.Context) (*Metadata, error)
}

// Engine computes alerts for a set of user locations.
type Engine struct {
	metadata  MetadataProvider
	regions   RegionResolver
	snapshots SnapshotWindow
	clock     clockwork.Clock
	metrics   *observability.Metrics
}

func NewEngine(m MetadataProvider, r RegionResolver, s SnapshotWindow, clock clockwork.Clock, metrics *observability.Metrics) *Engine {
	return &Engine{metadata: m, regions: r, snapshots: s, clock: clock, metrics: metrics}
}

// ComputeAlerts evaluates the active rule's alertable ranges against every
// snapshot in [now, now+lookaheadDays] for the regions containing the given
// locations. Locations outside all known regions are dropped silently.
// Output is sorted ascending by snapshot date and deterministic for
// identical inputs and stored state.
func (e *Engine) ComputeAlerts(ctx context.Context, locations []Point, lookaheadDays int) ([]Alert, error) {
	meta, err := e.metadata.ActiveMetadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active rule: %w", err)
	}
	if meta == nil {
		return nil, nil
	}
	allRanges, err := meta.RangeList()
	if err != nil {
		return nil, err
	}
	var alertable []Range
	for _, r := range allRanges {
		if r.Alertable {
			alertable = append(alertable, r)
		}
	}
	if len(alertable) == 0 {
		return nil, nil
	}

	// Resolve locations to regions, grouping co-located users so each
	// region is evaluated once. Region order follows first resolution.
	byRegion := map[string][]Point{}
	names := map[string]string{}
	var regionIDs []string
	var misses int
	for _, loc := range locations {
		region, err := e.regions.FindByPoint(ctx, orb.Point{loc.Lon, loc.Lat})
		if err != nil {
			return nil, fmt.Errorf("resolve location %s: %w", loc.ID, err)
		}
		if region == nil {
			misses++
			continue
		}
		if _, seen := byRegion[region.ID]; !seen {
			regionIDs = append(regionIDs, region.ID)
			names[region.ID] = region.Name
		}
		byRegion[region.ID] = append(byRegion[region.ID], loc)
	}
	if len(regionIDs) == 0 {
		log.Printf("[alerts] no locations resolved to a region (misses=%d)", misses)
		return nil, nil
	}

	now := e.clock.Now().UTC()
	until := now.Add(time.Duration(lookaheadDays) * 24 * time.Hour)
	snaps, err := e.snapshots.SnapshotsInWindow(ctx, regionIDs, now, until)
	if err != nil {
		return nil, fmt.Errorf("load snapshots: %w", err)
	}

	var out []Alert
	for _, snap := range snaps {
		value := gjson.GetBytes(snap.Payload, meta.Field)
		if !value.Exists() || value.Type != gjson.Number {
			continue
		}
		v := value.Float()
		matched, ok := firstMatch(alertable, v)
		if !ok {
			continue
		}
		out = append(out, Alert{
			RegionID:       snap.RegionID,
			RegionName:     names[snap.RegionID],
			Date:           snap.Stamp,
			Field:          meta.Field,
			Value:          v,
			Color:          matched.Color,
			Recommendation: matched.Recommendation,
			Locations:      byRegion[snap.RegionID],
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	e.metrics.AlertsComputed.Add(float64(len(out)))
	log.Printf("[alerts] computed=%d regions=%d misses=%d window=[%s,%s]",
		len(out), len(regionIDs), misses, now.Format(time.RFC3339), until.Format(time.RFC3339))
	return out, nil
}

// firstMatch returns the first alertable range containing the value. Ranges
// are stored sorted by lower bound, so the result is stable.
func firstMatch(ranges []Range, v float64) (Range, bool) {
	for _, r := range ranges {
		if r.Contains(v) {
			return r, true
		}
	}
	return Range{}, false
}
