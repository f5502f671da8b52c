package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/TerraCast/TC-Backend/internal/observability"
	"github.com/TerraCast/TC-Backend/internal/regions"
)

// DefaultSamplerWorkers caps in-flight provider requests per run.
const DefaultSamplerWorkers = 8

// RegionSource supplies the regions a sampling run covers.
type RegionSource interface {
	WithCentroid(ctx context.Context) ([]regions.Region, error)
	CountWithoutCentroid(ctx context.Context) (int64, error)
}

// SnapshotSink receives the run's date and snapshots.
type SnapshotSink interface {
	CreateDate(ctx context.Context, stamp time.Time) (*SnapshotDate, error)
	WriteSnapshot(ctx context.Context, regionID, dateID string, payload json.RawMessage) (bool, error)
}

// Report summarizes one sampling run.
type Report struct {
	DateID            string
	Written           int
	ProviderFailures  int
	SkippedNoCentroid int64
}

// Sampler runs one weather sampling pass over every region with a centroid.
// Fan-out is bounded; per-region provider failures are logged and excluded,
// never fatal to the run.
type Sampler struct {
	regions  RegionSource
	sink     SnapshotSink
	provider Provider
	clock    clockwork.Clock
	metrics  *observability.Metrics
	workers  int
}

func NewSampler(src RegionSource, sink SnapshotSink, provider Provider, clock clockwork.Clock, metrics *observability.Metrics, workers int) *Sampler {
	if workers <= 0 {
		workers = DefaultSamplerWorkers
	}
	return &Sampler{
		regions:  src,
		sink:     sink,
		provider: provider,
		clock:    clock,
		metrics:  metrics,
		workers:  workers,
	}
}

// SampleAll executes one sampling run. The snapshot date is created first,
// then regions are sampled concurrently. Cancelling the context leaves a
// valid partial state: completed snapshots stay queryable.
func (s *Sampler) SampleAll(ctx context.Context) (Report, error) {
	s.metrics.SamplingRunActive.Set(1)
	defer s.metrics.SamplingRunActive.Set(0)

	date, err := s.sink.CreateDate(ctx, s.clock.Now())
	if err != nil {
		return Report{}, fmt.Errorf("start sampling run: %w", err)
	}

	targets, err := s.regions.WithCentroid(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("load sampling targets: %w", err)
	}
	skipped, err := s.regions.CountWithoutCentroid(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("count skipped regions: %w", err)
	}

	var written, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i := range targets {
		r := targets[i]
		g.Go(func() error {
			c := r.Centroid()
			if c == nil {
				// WithCentroid should exclude these; belt and braces.
				return nil
			}
			payload, err := s.provider.Current(gctx, c[1], c[0])
			if err != nil {
				log.Printf("[weather] sample region=%s err=%v", r.ID, err)
				failed.Add(1)
				s.metrics.ProviderFailures.Inc()
				return nil
			}
			wrote, err := s.sink.WriteSnapshot(gctx, r.ID, date.ID, payload)
			if err != nil {
				log.Printf("[weather] write snapshot region=%s err=%v", r.ID, err)
				failed.Add(1)
				return nil
			}
			if wrote {
				written.Add(1)
				s.metrics.SnapshotsWritten.Inc()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	s.metrics.RegionsSkipped.Set(float64(skipped))
	report := Report{
		DateID:            date.ID,
		Written:           int(written.Load()),
		ProviderFailures:  int(failed.Load()),
		SkippedNoCentroid: skipped,
	}
	log.Printf("[weather] run date=%s written=%d failed=%d skipped=%d",
		report.DateID, report.Written, report.ProviderFailures, report.SkippedNoCentroid)
	return report, nil
}
