package crs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/TerraCast/TC-Backend/internal/db"
)

// Record caches one resolved coordinate reference system. Descriptor is
// unique by value: repeated ingestion of the same CRS reuses the row.
type Record struct {
	ID         string `gorm:"type:uuid;primaryKey" json:"id"`
	Descriptor string `gorm:"uniqueIndex" json:"descriptor"`
	Code       int    `json:"code"`
	Proj4      string `json:"proj4"`
	CreatedAt  time.Time
}

func (Record) TableName() string {
	return "crs.records"
}

func (r *Record) BeforeCreate(_ *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// Init ensures the crs schema and table exist.
func Init(d *gorm.DB) error {
	if err := db.EnsureSchema(d, "crs"); err != nil {
		return err
	}
	return d.AutoMigrate(&Record{})
}
