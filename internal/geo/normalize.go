// Package geo normalizes ingested boundary geometry: multi-polygon
// decomposition and reprojection into the canonical WGS84 frame.
package geo

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"golang.org/x/text/unicode/norm"

	"github.com/TerraCast/TC-Backend/internal/projection"
)

var (
	ErrEmptyInput              = errors.New("empty feature collection")
	ErrUnsupportedGeometryType = errors.New("unsupported geometry type")
)

// Resolver maps a CRS descriptor to a proj4 definition string.
type Resolver interface {
	Resolve(ctx context.Context, descriptor string) (string, error)
}

// Normalize turns a raw feature collection into ordered single-polygon
// features in WGS84. The whole batch fails if the CRS cannot be resolved or
// any feature carries a geometry type other than Polygon/MultiPolygon.
func Normalize(ctx context.Context, fc *FeatureCollection, resolver Resolver) ([]NormalizedFeature, error) {
	if fc == nil || len(fc.Features) == 0 {
		return nil, ErrEmptyInput
	}

	descriptor := fc.Descriptor()
	def, err := resolver.Resolve(ctx, descriptor)
	if err != nil {
		return nil, fmt.Errorf("resolve crs %q: %w", descriptor, err)
	}
	tr, err := projection.Parse(def)
	if err != nil {
		return nil, fmt.Errorf("parse projection for %q: %w", descriptor, err)
	}

	singles, err := Decompose(fc.Features)
	if err != nil {
		return nil, err
	}

	out := make([]NormalizedFeature, 0, len(singles))
	for _, f := range singles {
		poly := reproject(f.Polygon, tr)
		out = append(out, NormalizedFeature{
			Geometry:   poly,
			Properties: f.Properties,
			Name:       displayName(f.Properties),
			SourceCRS:  descriptor,
		})
	}

	log.Printf("[geo] normalized features=%d polygons=%d crs=%s", len(fc.Features), len(out), descriptor)
	return out, nil
}

// Part is one single-polygon slice of a decomposed feature.
type Part struct {
	Polygon    orb.Polygon
	Properties geojson.Properties
}

// Decompose expands every MultiPolygon feature into one feature per
// constituent polygon, each inheriting the source property bag. Ring and
// point order are preserved. Any other geometry type aborts the batch.
func Decompose(features []Feature) ([]Part, error) {
	var out []Part
	for i, f := range features {
		if f.Geometry == nil {
			return nil, fmt.Errorf("feature %d has no geometry: %w", i, ErrUnsupportedGeometryType)
		}
		switch g := f.Geometry.Geometry().(type) {
		case orb.Polygon:
			out = append(out, Part{Polygon: g, Properties: f.Properties})
		case orb.MultiPolygon:
			for _, poly := range g {
				out = append(out, Part{Polygon: poly, Properties: cloneProperties(f.Properties)})
			}
		default:
			return nil, fmt.Errorf("feature %d is %T: %w", i, g, ErrUnsupportedGeometryType)
		}
	}
	return out, nil
}

// reproject applies the per-point transform to every ring, preserving ring
// and point order exactly.
func reproject(poly orb.Polygon, tr *projection.Transformer) orb.Polygon {
	out := make(orb.Polygon, len(poly))
	for ri, ring := range poly {
		newRing := make(orb.Ring, len(ring))
		for pi, pt := range ring {
			lon, lat := tr.ToWGS84(pt[0], pt[1])
			newRing[pi] = orb.Point{lon, lat}
		}
		out[ri] = newRing
	}
	return out
}

// displayName pulls a unicode-normalized name out of the property bag.
func displayName(props geojson.Properties) string {
	if props == nil {
		return ""
	}
	if name, ok := props["name"].(string); ok {
		return norm.NFC.String(name)
	}
	return ""
}

func cloneProperties(props geojson.Properties) geojson.Properties {
	if props == nil {
		return nil
	}
	out := make(geojson.Properties, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}
