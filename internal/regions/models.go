package regions

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/TerraCast/TC-Backend/internal/db"
)

// Region is one normalized single-polygon boundary. Geometry is always in
// the canonical WGS84 frame by the time a row exists; un-reprojected
// coordinates never reach this table.
type Region struct {
	ID          string         `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string         `json:"name"`
	Properties  datatypes.JSON `json:"properties"`
	Geometry    datatypes.JSON `json:"geometry"` // polygon rings, [][][2]float64 lon/lat
	SourceCRS   string         `json:"source_crs"`
	IngestBatch string         `gorm:"index" json:"ingest_batch"`
	CentroidLon *float64       `json:"centroid_lon"`
	CentroidLat *float64       `json:"centroid_lat"`
	CreatedAt   time.Time      `json:"created_at"`
}

func (Region) TableName() string {
	return "regions.regions"
}

func (r *Region) BeforeCreate(_ *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// Polygon decodes the stored ring set.
func (r *Region) Polygon() (orb.Polygon, error) {
	var rings [][][2]float64
	if err := json.Unmarshal(r.Geometry, &rings); err != nil {
		return nil, fmt.Errorf("decode region %s geometry: %w", r.ID, err)
	}
	poly := make(orb.Polygon, len(rings))
	for i, ring := range rings {
		pr := make(orb.Ring, len(ring))
		for j, pt := range ring {
			pr[j] = orb.Point{pt[0], pt[1]}
		}
		poly[i] = pr
	}
	return poly, nil
}

// SetPolygon encodes the ring set for storage, preserving order.
func (r *Region) SetPolygon(poly orb.Polygon) error {
	rings := make([][][2]float64, len(poly))
	for i, ring := range poly {
		pr := make([][2]float64, len(ring))
		for j, pt := range ring {
			pr[j] = [2]float64{pt[0], pt[1]}
		}
		rings[i] = pr
	}
	raw, err := json.Marshal(rings)
	if err != nil {
		return err
	}
	r.Geometry = datatypes.JSON(raw)
	return nil
}

// Centroid returns the computed representative point, or nil before the
// centroid pass has run.
func (r *Region) Centroid() *orb.Point {
	if r.CentroidLon == nil || r.CentroidLat == nil {
		return nil
	}
	return &orb.Point{*r.CentroidLon, *r.CentroidLat}
}

// Init ensures the regions schema and table exist.
func Init(d *gorm.DB) error {
	if err := db.EnsureSchema(d, "regions"); err != nil {
		return err
	}
	return d.AutoMigrate(&Region{})
}
