// Package regions is the system of record for normalized boundary polygons
// and their computed centroids.
package regions

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/TerraCast/TC-Backend/internal/geo"
)

// Store wraps all region persistence. The gorm handle is injected; the store
// holds no global state.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// CreateBatch persists one region per normalized feature inside a single
// transaction, so a failed batch stores nothing. batchID tags the rows for
// bulk administrative deletion.
func (s *Store) CreateBatch(ctx context.Context, batchID string, feats []geo.NormalizedFeature) ([]Region, error) {
	out := make([]Region, 0, len(feats))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, f := range feats {
			props, err := json.Marshal(f.Properties)
			if err != nil {
				return fmt.Errorf("encode properties of feature %d: %w", i, err)
			}
			r := Region{
				Name:        f.Name,
				Properties:  datatypes.JSON(props),
				SourceCRS:   f.SourceCRS,
				IngestBatch: batchID,
			}
			if err := r.SetPolygon(f.Geometry); err != nil {
				return fmt.Errorf("encode geometry of feature %d: %w", i, err)
			}
			if err := tx.Create(&r).Error; err != nil {
				return fmt.Errorf("create region for feature %d: %w", i, err)
			}
			out = append(out, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[regions] batch=%s created=%d", batchID, len(out))
	return out, nil
}

// All returns every region in deterministic store order (created_at, id).
func (s *Store) All(ctx context.Context) ([]Region, error) {
	var out []Region
	err := s.db.WithContext(ctx).Order("created_at, id").Find(&out).Error
	return out, err
}

// WithCentroid returns regions eligible for weather sampling.
func (s *Store) WithCentroid(ctx context.Context) ([]Region, error) {
	var out []Region
	err := s.db.WithContext(ctx).
		Where("centroid_lon IS NOT NULL AND centroid_lat IS NOT NULL").
		Order("created_at, id").Find(&out).Error
	return out, err
}

// WithoutCentroid returns regions still awaiting the centroid pass.
func (s *Store) WithoutCentroid(ctx context.Context) ([]Region, error) {
	var out []Region
	err := s.db.WithContext(ctx).
		Where("centroid_lon IS NULL OR centroid_lat IS NULL").
		Order("created_at, id").Find(&out).Error
	return out, err
}

// CountWithoutCentroid reports sampling coverage gaps.
func (s *Store) CountWithoutCentroid(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&Region{}).
		Where("centroid_lon IS NULL OR centroid_lat IS NULL").Count(&n).Error
	return n, err
}

// UpdateCentroid persists a computed representative point.
func (s *Store) UpdateCentroid(ctx context.Context, id string, lon, lat float64) error {
	return s.db.WithContext(ctx).Model(&Region{}).Where("id = ?", id).
		Updates(map[string]interface{}{"centroid_lon": lon, "centroid_lat": lat}).Error
}

// ByID fetches a single region.
func (s *Store) ByID(ctx context.Context, id string) (*Region, error) {
	var r Region
	if err := s.db.WithContext(ctx).First(&r, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// ByIDs fetches several regions at once, in deterministic order.
func (s *Store) ByIDs(ctx context.Context, ids []string) ([]Region, error) {
	var out []Region
	err := s.db.WithContext(ctx).Where("id IN ?", ids).Order("created_at, id").Find(&out).Error
	return out, err
}

// Delete removes one region.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Delete(&Region{}, "id = ?", id).Error
}

// DeleteBatch removes every region created by one ingestion batch.
func (s *Store) DeleteBatch(ctx context.Context, batchID string) (int64, error) {
	res := s.db.WithContext(ctx).Delete(&Region{}, "ingest_batch = ?", batchID)
	return res.RowsAffected, res.Error
}

// CentroidsInBox returns regions whose centroid lies inside the bounding
// box. This is the fast spatial filter: a SQL range check on the centroid
// columns, no geometry decode.
func (s *Store) CentroidsInBox(ctx context.Context, bound orb.Bound) ([]Region, error) {
	var out []Region
	err := s.db.WithContext(ctx).
		Where("centroid_lon BETWEEN ? AND ? AND centroid_lat BETWEEN ? AND ?",
			bound.Min[0], bound.Max[0], bound.Min[1], bound.Max[1]).
		Order("created_at, id").Find(&out).Error
	return out, err
}

// IntersectingPolygon returns regions whose full geometry intersects the
// query polygon — the precise spatial filter.
func (s *Store) IntersectingPolygon(ctx context.Context, query orb.Polygon) ([]Region, error) {
	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	var out []Region
	for _, r := range all {
		poly, err := r.Polygon()
		if err != nil {
			return nil, err
		}
		if Intersects(poly, query) {
			out = append(out, r)
		}
	}
	return out, nil
}

// FindByPoint resolves a point to its containing region. Boundary and
// overlap ties go to the first region in (created_at, id) order, so repeated
// lookups are deterministic. A miss returns (nil, nil): geographic gaps are
// expected, not errors.
func (s *Store) FindByPoint(ctx context.Context, pt orb.Point) (*Region, error) {
	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		poly, err := all[i].Polygon()
		if err != nil {
			return nil, err
		}
		if planar.PolygonContains(poly, pt) {
			return &all[i], nil
		}
	}
	return nil, nil
}
