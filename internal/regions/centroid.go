package regions

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/paulmach/orb/planar"
	"golang.org/x/sync/errgroup"
)

// DefaultCentroidWorkers bounds the parallel centroid pass.
const DefaultCentroidWorkers = 8

// CentroidReport summarizes one centroid pass. Failures are counted, not
// fatal: a degenerate polygon must not block its siblings.
type CentroidReport struct {
	Computed int
	Failed   int
}

// ComputeCenters computes and persists an area-weighted centroid for each
// listed region. A nil/empty id list targets every region still lacking a
// centroid. Regions are processed in parallel with a bounded worker count.
func (s *Store) ComputeCenters(ctx context.Context, ids []string, workers int) (CentroidReport, error) {
	if workers <= 0 {
		workers = DefaultCentroidWorkers
	}

	var targets []Region
	var err error
	if len(ids) == 0 {
		targets, err = s.WithoutCentroid(ctx)
	} else {
		targets, err = s.ByIDs(ctx, ids)
	}
	if err != nil {
		return CentroidReport{}, fmt.Errorf("load centroid targets: %w", err)
	}

	var computed, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range targets {
		r := targets[i]
		g.Go(func() error {
			pt, err := Centroid(&r)
			if err != nil {
				log.Printf("[regions] centroid region=%s err=%v", r.ID, err)
				failed.Add(1)
				return nil
			}
			if err := s.UpdateCentroid(gctx, r.ID, pt[0], pt[1]); err != nil {
				log.Printf("[regions] centroid update region=%s err=%v", r.ID, err)
				failed.Add(1)
				return nil
			}
			computed.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return CentroidReport{}, err
	}

	report := CentroidReport{Computed: int(computed.Load()), Failed: int(failed.Load())}
	log.Printf("[regions] centroid pass computed=%d failed=%d", report.Computed, report.Failed)
	return report, nil
}

// Centroid computes the area-weighted centroid of a region's polygon. A
// naive vertex average would drift toward densely digitized edges; the
// area-weighted point is guaranteed to represent the polygon for sampling
// and bounding-box filtering.
func Centroid(r *Region) ([2]float64, error) {
	poly, err := r.Polygon()
	if err != nil {
		return [2]float64{}, err
	}
	pt, area := planar.CentroidArea(poly)
	if area == 0 {
		return [2]float64{}, fmt.Errorf("degenerate geometry in region %s: zero area", r.ID)
	}
	return [2]float64{pt[0], pt[1]}, nil
}
