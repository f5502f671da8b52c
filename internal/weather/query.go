package weather

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"github.com/tidwall/sjson"
	"gorm.io/datatypes"

	"github.com/TerraCast/TC-Backend/internal/regions"
)

// DateRef resolves to a snapshot date: either an explicit id, or the most
// recent date at or before a timestamp. Exactly one must be set.
type DateRef struct {
	ID string
	At *time.Time
}

// SpatialFilter selects regions either by a bounding box over centroids
// (fast) or by true polygon intersection over full geometry (precise).
// Exactly one must be set; a nil filter selects every region.
type SpatialFilter struct {
	Box     *orb.Bound
	Polygon orb.Polygon
}

// RegionWeather pairs a region with its snapshot for one date. A nil
// Snapshot means the region had no reading for that date; that row is part
// of the result, not dropped.
type RegionWeather struct {
	Region   regions.Region `json:"region"`
	Snapshot *Snapshot      `json:"snapshot"`
}

// RegionQuerier is the slice of the region store the query engine needs.
type RegionQuerier interface {
	All(ctx context.Context) ([]regions.Region, error)
	CentroidsInBox(ctx context.Context, bound orb.Bound) ([]regions.Region, error)
	IntersectingPolygon(ctx context.Context, query orb.Polygon) ([]regions.Region, error)
}

// SnapshotQuerier is the slice of the snapshot store the query engine needs.
type SnapshotQuerier interface {
	DateByID(ctx context.Context, id string) (*SnapshotDate, error)
	LatestDateAtOrBefore(ctx context.Context, at time.Time) (*SnapshotDate, error)
	SnapshotsForDate(ctx context.Context, dateID string, regionIDs []string) (map[string]*Snapshot, error)
}

// MetadataSource names the weather fields that require authentication.
type MetadataSource interface {
	RestrictedFields(ctx context.Context) ([]string, error)
}

// Engine joins regions to weather snapshots by date and spatial filter.
type Engine struct {
	regions   RegionQuerier
	snapshots SnapshotQuerier
	metadata  MetadataSource
}

func NewEngine(r RegionQuerier, s SnapshotQuerier, m MetadataSource) *Engine {
	return &Engine{regions: r, snapshots: s, metadata: m}
}

// QueryRegionsWithWeather returns every region matching the spatial filter,
// each paired with its snapshot for the resolved date (or nil). For
// unauthenticated callers every authentication-gated field is stripped from
// the payloads before they leave the engine, regardless of what was asked
// for.
func (e *Engine) QueryRegionsWithWeather(ctx context.Context, ref DateRef, filter *SpatialFilter, authenticated bool) ([]RegionWeather, error) {
	date, err := e.resolveDate(ctx, ref)
	if err != nil {
		return nil, err
	}

	matched, err := e.selectRegions(ctx, filter)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(matched))
	for i, r := range matched {
		ids[i] = r.ID
	}
	snaps, err := e.snapshots.SnapshotsForDate(ctx, date.ID, ids)
	if err != nil {
		return nil, err
	}

	var restricted []string
	if !authenticated {
		restricted, err = e.metadata.RestrictedFields(ctx)
		if err != nil {
			return nil, fmt.Errorf("load restricted fields: %w", err)
		}
	}

	out := make([]RegionWeather, len(matched))
	for i, r := range matched {
		rw := RegionWeather{Region: r, Snapshot: snaps[r.ID]}
		if rw.Snapshot != nil && !authenticated {
			redacted, err := redact(rw.Snapshot.Payload, restricted)
			if err != nil {
				return nil, err
			}
			// Copy so the redaction never leaks back into a cached row.
			snap := *rw.Snapshot
			snap.Payload = redacted
			rw.Snapshot = &snap
		}
		out[i] = rw
	}
	return out, nil
}

func (e *Engine) resolveDate(ctx context.Context, ref DateRef) (*SnapshotDate, error) {
	switch {
	case ref.ID != "":
		return e.snapshots.DateByID(ctx, ref.ID)
	case ref.At != nil:
		return e.snapshots.LatestDateAtOrBefore(ctx, *ref.At)
	default:
		return nil, errors.New("date reference requires an id or a timestamp")
	}
}

func (e *Engine) selectRegions(ctx context.Context, filter *SpatialFilter) ([]regions.Region, error) {
	if filter == nil {
		return e.regions.All(ctx)
	}
	switch {
	case filter.Box != nil:
		return e.regions.CentroidsInBox(ctx, *filter.Box)
	case filter.Polygon != nil:
		return e.regions.IntersectingPolygon(ctx, filter.Polygon)
	default:
		return nil, errors.New("spatial filter requires a box or a polygon")
	}
}

// redact removes every restricted field path from an opaque payload.
func redact(payload datatypes.JSON, restricted []string) (datatypes.JSON, error) {
	out := []byte(payload)
	for _, field := range restricted {
		var err error
		out, err = sjson.DeleteBytes(out, field)
		if err != nil {
			return nil, fmt.Errorf("redact field %q: %w", field, err)
		}
	}
	return datatypes.JSON(out), nil
}
