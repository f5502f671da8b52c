package weather

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/TerraCast/TC-Backend/internal/db"
)

// SnapshotDate is one sampling run's timestamp. Created once per run, never
// mutated; every snapshot written by the run references it.
type SnapshotDate struct {
	ID    string    `gorm:"type:uuid;primaryKey" json:"id"`
	Stamp time.Time `gorm:"index" json:"stamp"`
}

func (SnapshotDate) TableName() string {
	return "weather.snapshot_dates"
}

func (d *SnapshotDate) BeforeCreate(_ *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}

// Snapshot is one weather reading for one region on one snapshot date. The
// payload is provider-defined and stored opaquely; alert rules reach into it
// by field name only. The (region, date) pair is unique.
type Snapshot struct {
	ID        string         `gorm:"type:uuid;primaryKey" json:"id"`
	RegionID  string         `gorm:"type:uuid;uniqueIndex:idx_snapshots_region_date" json:"region_id"`
	DateID    string         `gorm:"type:uuid;uniqueIndex:idx_snapshots_region_date" json:"date_id"`
	Payload   datatypes.JSON `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}

func (Snapshot) TableName() string {
	return "weather.snapshots"
}

func (s *Snapshot) BeforeCreate(_ *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// Init ensures the weather schema and tables exist.
func Init(d *gorm.DB) error {
	if err := db.EnsureSchema(d, "weather"); err != nil {
		return err
	}
	return d.AutoMigrate(&SnapshotDate{}, &Snapshot{})
}
