package alerts

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/TerraCast/TC-Backend/internal/db"
)

// Range is one configured interval on a weather field. A nil bound is open:
// nil Lower evaluates as -inf and nil Upper as +inf.
type Range struct {
	Lower          *float64 `json:"lower,omitempty"`
	Upper          *float64 `json:"upper,omitempty"`
	Color          string   `json:"color"`
	Alertable      bool     `json:"alertable"`
	Recommendation string   `json:"recommendation"`
}

// Contains reports whether a value falls in the range, treating open bounds
// as infinite.
func (r Range) Contains(v float64) bool {
	lower := math.Inf(-1)
	if r.Lower != nil {
		lower = *r.Lower
	}
	upper := math.Inf(1)
	if r.Upper != nil {
		upper = *r.Upper
	}
	return v >= lower && v <= upper
}

// sortKey orders ranges ascending by lower bound. An open lower bound sorts
// as 0; it still evaluates as -inf (the ordering is cosmetic, evaluation is
// an OR across ranges).
func (r Range) sortKey() float64 {
	if r.Lower == nil || math.IsNaN(*r.Lower) {
		return 0
	}
	return *r.Lower
}

// Metadata is one alert rule: the weather-payload field it governs, its
// visibility, whether it is the single active rule, and its ranges. Active
// uniqueness is enforced by the store's write path.
type Metadata struct {
	ID           string         `gorm:"type:uuid;primaryKey" json:"id"`
	Field        string         `json:"field"`
	AuthRequired bool           `json:"auth_required"`
	Active       bool           `gorm:"index" json:"active"`
	Ranges       datatypes.JSON `json:"ranges"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (Metadata) TableName() string {
	return "alerts.metadata"
}

func (m *Metadata) BeforeCreate(_ *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// RangeList decodes the stored ranges.
func (m *Metadata) RangeList() ([]Range, error) {
	if len(m.Ranges) == 0 {
		return nil, nil
	}
	var out []Range
	if err := json.Unmarshal(m.Ranges, &out); err != nil {
		return nil, fmt.Errorf("decode ranges of metadata %s: %w", m.ID, err)
	}
	return out, nil
}

// SetRanges stores the ranges sorted ascending by lower bound.
func (m *Metadata) SetRanges(ranges []Range) error {
	sorted := make([]Range, len(ranges))
	copy(sorted, ranges)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].sortKey() < sorted[j].sortKey()
	})
	raw, err := json.Marshal(sorted)
	if err != nil {
		return err
	}
	m.Ranges = datatypes.JSON(raw)
	return nil
}

// Init ensures the alerts schema and table exist.
func Init(d *gorm.DB) error {
	if err := db.EnsureSchema(d, "alerts"); err != nil {
		return err
	}
	return d.AutoMigrate(&Metadata{})
}
