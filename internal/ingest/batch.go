package ingest

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/telcoingest/invoice-pipeline/internal/domain/invoice"
)

// IngestMany runs every document through the pipeline on a bounded worker pool.
// It returns one result per input, in input order. A failing document never
// stops its siblings.
func (o *Orchestrator) IngestMany(ctx context.Context, docs []invoice.RawDocument, opts ...Option) []*Result {
	results := make([]*Result, len(docs))
	if len(docs) == 0 {
		return results
	}

	batchID := uuid.NewString()
	batchOpts := make([]Option, 0, len(opts)+1)
	batchOpts = append(batchOpts, opts...)
	batchOpts = append(batchOpts, withBatch(batchID))

	// workers report failures through their Result, so the group never cancels
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Workers)
	for i, doc := range docs {
		g.Go(func() error {
			results[i] = o.IngestOne(gctx, doc, batchOpts...)
			return nil
		})
	}
	_ = g.Wait()

	s := Summarize(results)
	o.logger.Info("Batch ingested",
		zap.String("batch_id", batchID),
		zap.Int("total", s.Total),
		zap.Int("done", s.Done),
		zap.Int("duplicates", s.Duplicates),
		zap.Int("failed", s.Failed))
	return results
}
