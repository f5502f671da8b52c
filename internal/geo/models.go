package geo

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// FeatureCollection is the ingestion envelope: a GeoJSON-style feature list
// with a declared coordinate reference system. The crs member follows the
// legacy GeoJSON form ({"type":"name","properties":{"name":"EPSG:32633"}})
// because that is what projected exports in the wild still carry.
type FeatureCollection struct {
	Type     string    `json:"type"`
	CRS      *CRS      `json:"crs,omitempty"`
	Features []Feature `json:"features"`
}

// CRS is the declared reference system of a FeatureCollection.
type CRS struct {
	Type       string        `json:"type"`
	Properties CRSProperties `json:"properties"`
}

type CRSProperties struct {
	Name string `json:"name"`
}

// Descriptor returns the declared CRS descriptor, or "" when none is present.
func (fc *FeatureCollection) Descriptor() string {
	if fc.CRS == nil {
		return ""
	}
	return fc.CRS.Properties.Name
}

// Feature is one ingested feature: a geometry plus an arbitrary property bag.
type Feature struct {
	Type       string             `json:"type"`
	Geometry   *geojson.Geometry  `json:"geometry"`
	Properties geojson.Properties `json:"properties"`
}

// NormalizedFeature is one single-polygon feature in the canonical WGS84
// frame, ready for region persistence. Centroids are computed later.
type NormalizedFeature struct {
	Geometry   orb.Polygon
	Properties geojson.Properties
	Name       string
	SourceCRS  string
}
