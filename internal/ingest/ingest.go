// Package ingest runs the full geometry ingestion pipeline: CRS resolution,
// normalization, region persistence, then the centroid pass. Within a batch
// those steps are strictly ordered; a CRS or geometry failure stores nothing.
package ingest

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/TerraCast/TC-Backend/internal/geo"
	"github.com/TerraCast/TC-Backend/internal/observability"
	"github.com/TerraCast/TC-Backend/internal/regions"
)

// Result reports one ingestion batch.
type Result struct {
	BatchID   string                 `json:"batch_id"`
	Regions   []regions.Region       `json:"regions"`
	Centroids regions.CentroidReport `json:"centroids"`
}

// Service wires the normalizer to the region store.
type Service struct {
	resolver geo.Resolver
	store    *regions.Store
	metrics  *observability.Metrics
}

func NewService(resolver geo.Resolver, store *regions.Store, metrics *observability.Metrics) *Service {
	return &Service{resolver: resolver, store: store, metrics: metrics}
}

// Run ingests one feature collection. Every created region is tagged with
// the batch id for bulk administrative deletion. Centroid failures are
// reported, not fatal.
func (s *Service) Run(ctx context.Context, fc *geo.FeatureCollection) (*Result, error) {
	feats, err := geo.Normalize(ctx, fc, s.resolver)
	if err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}

	batchID := uuid.NewString()
	created, err := s.store.CreateBatch(ctx, batchID, feats)
	if err != nil {
		return nil, fmt.Errorf("persist batch %s: %w", batchID, err)
	}
	s.metrics.RegionsIngested.Add(float64(len(created)))

	ids := make([]string, len(created))
	for i, r := range created {
		ids[i] = r.ID
	}
	report, err := s.store.ComputeCenters(ctx, ids, 0)
	if err != nil {
		return nil, fmt.Errorf("centroid pass for batch %s: %w", batchID, err)
	}

	log.Printf("[ingest] batch=%s regions=%d centroids=%d centroid_failures=%d",
		batchID, len(created), report.Computed, report.Failed)
	return &Result{BatchID: batchID, Regions: created, Centroids: report}, nil
}
