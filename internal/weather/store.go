// Package weather samples external weather at region centroids, stores
// timestamped snapshots, and answers date- and space-filtered queries that
// join snapshots back to regions.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNoSnapshotDate is returned when a date reference resolves to nothing.
var ErrNoSnapshotDate = errors.New("no snapshot date")

// Store wraps snapshot persistence.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// CreateDate records a new sampling run's timestamp. It is written before
// any snapshot so no snapshot can reference an uncommitted date.
func (s *Store) CreateDate(ctx context.Context, stamp time.Time) (*SnapshotDate, error) {
	d := SnapshotDate{Stamp: stamp.UTC()}
	if err := s.db.WithContext(ctx).Create(&d).Error; err != nil {
		return nil, fmt.Errorf("create snapshot date: %w", err)
	}
	return &d, nil
}

// WriteSnapshot inserts one snapshot for a (region, date) pair. A duplicate
// write for the same pair is a no-op; the return value reports whether a row
// was actually written.
func (s *Store) WriteSnapshot(ctx context.Context, regionID, dateID string, payload json.RawMessage) (bool, error) {
	snap := Snapshot{
		RegionID: regionID,
		DateID:   dateID,
		Payload:  datatypes.JSON(payload),
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "region_id"}, {Name: "date_id"}},
		DoNothing: true,
	}).Create(&snap)
	if res.Error != nil {
		return false, fmt.Errorf("write snapshot region=%s: %w", regionID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// DateByID fetches one snapshot date.
func (s *Store) DateByID(ctx context.Context, id string) (*SnapshotDate, error) {
	var d SnapshotDate
	err := s.db.WithContext(ctx).First(&d, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoSnapshotDate
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// LatestDateAtOrBefore resolves a timestamp to the most recent snapshot date
// at or before it.
func (s *Store) LatestDateAtOrBefore(ctx context.Context, at time.Time) (*SnapshotDate, error) {
	var d SnapshotDate
	err := s.db.WithContext(ctx).
		Where("stamp <= ?", at.UTC()).
		Order("stamp DESC").Limit(1).First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoSnapshotDate
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDates returns all snapshot dates ordered by timestamp.
func (s *Store) ListDates(ctx context.Context) ([]SnapshotDate, error) {
	var out []SnapshotDate
	err := s.db.WithContext(ctx).Order("stamp").Find(&out).Error
	return out, err
}

// SnapshotsForDate returns the snapshots of one date for the given regions,
// keyed by region id. Regions without a snapshot are simply absent.
func (s *Store) SnapshotsForDate(ctx context.Context, dateID string, regionIDs []string) (map[string]*Snapshot, error) {
	if len(regionIDs) == 0 {
		return map[string]*Snapshot{}, nil
	}
	rows, err := s.db.WithContext(ctx).Raw(`
		SELECT id, region_id, date_id, payload
		FROM weather.snapshots
		WHERE date_id = ? AND region_id = ANY(?)
	`, dateID, pq.Array(regionIDs)).Rows()
	if err != nil {
		return nil, fmt.Errorf("snapshots for date %s: %w", dateID, err)
	}
	defer rows.Close()

	out := make(map[string]*Snapshot)
	for rows.Next() {
		var snap Snapshot
		if err := rows.Scan(&snap.ID, &snap.RegionID, &snap.DateID, &snap.Payload); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out[snap.RegionID] = &snap
	}
	return out, rows.Err()
}

// DatedSnapshot is a snapshot joined with its run timestamp.
type DatedSnapshot struct {
	Snapshot
	Stamp time.Time
}

// SnapshotsInWindow returns all snapshots for the given regions whose run
// timestamp lies in [from, to], ordered ascending by timestamp. The alert
// engine consumes this.
func (s *Store) SnapshotsInWindow(ctx context.Context, regionIDs []string, from, to time.Time) ([]DatedSnapshot, error) {
	if len(regionIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.WithContext(ctx).Raw(`
		SELECT s.id, s.region_id, s.date_id, s.payload, d.stamp
		FROM weather.snapshots s
		JOIN weather.snapshot_dates d ON s.date_id = d.id
		WHERE s.region_id = ANY(?) AND d.stamp >= ? AND d.stamp <= ?
		ORDER BY d.stamp, s.region_id
	`, pq.Array(regionIDs), from.UTC(), to.UTC()).Rows()
	if err != nil {
		return nil, fmt.Errorf("snapshots in window: %w", err)
	}
	defer rows.Close()

	var out []DatedSnapshot
	for rows.Next() {
		var ds DatedSnapshot
		if err := rows.Scan(&ds.ID, &ds.RegionID, &ds.DateID, &ds.Payload, &ds.Stamp); err != nil {
			return nil, fmt.Errorf("scan dated snapshot: %w", err)
		}
		out = append(out, ds)
	}
	return out, rows.Err()
}
