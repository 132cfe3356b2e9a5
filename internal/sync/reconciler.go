package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bookbridge/searchd/internal/catalog"
	"github.com/bookbridge/searchd/internal/index"
	"github.com/bookbridge/searchd/pkg/config"
	apperrors "github.com/bookbridge/searchd/pkg/errors"
	"github.com/bookbridge/searchd/pkg/metrics"
	"github.com/bookbridge/searchd/pkg/resilience"
)

// Reconciler periodically walks the catalog store and repairs any
// divergence the incremental feed missed: documents that are absent or
// stale in the index are re-indexed, and index documents whose catalog
// record disappeared are removed. Past a drift threshold the whole index
// is rebuilt instead of patched.
type Reconciler struct {
	store     catalog.Store
	cursors   catalog.CursorStore
	idx       *index.Index
	builder   *index.Builder
	watermark *Watermark
	cfg       config.SyncConfig
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// ReconcileReport summarizes one reconciliation pass.
type ReconcileReport struct {
	Checked        int
	Repaired       int
	Orphans        int
	RebuildOrdered bool
	Took           time.Duration
}

// NewReconciler creates a Reconciler sharing the syncer's store and index.
func NewReconciler(
	store catalog.Store,
	cursors catalog.CursorStore,
	idx *index.Index,
	builder *index.Builder,
	watermark *Watermark,
	cfg config.SyncConfig,
	m *metrics.Metrics,
) *Reconciler {
	return &Reconciler{
		store:     store,
		cursors:   cursors,
		idx:       idx,
		builder:   builder,
		watermark: watermark,
		cfg:       cfg,
		metrics:   m,
		logger:    slog.Default().With("component", "reconciler"),
	}
}

// Run executes a reconciliation pass every ReconcileInterval until ctx is
// cancelled. Each pass runs under the ReconcileBudget deadline; a pass
// that overruns is abandoned and retried at the next interval.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopping")
			return ctx.Err()
		case <-ticker.C:
		}

		err := resilience.WithTimeout(ctx, r.cfg.ReconcileBudget, "reconcile", func(ctx context.Context) error {
			report, err := r.ReconcileOnce(ctx)
			if err != nil {
				return err
			}
			r.logger.Info("reconciliation pass complete",
				"checked", report.Checked,
				"repaired", report.Repaired,
				"orphans", report.Orphans,
				"rebuild", report.RebuildOrdered,
				"took", report.Took,
			)
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			r.countRun("error")
			r.logger.Error("reconciliation pass failed", "error", err)
		}
	}
}

// ReconcileOnce performs a single verification walk over the store.
func (r *Reconciler) ReconcileOnce(ctx context.Context) (*ReconcileReport, error) {
	start := time.Now()
	report := &ReconcileReport{}
	seen := make(map[string]struct{}, r.idx.DocCount())

	// Walk every live record: ChangesSince from 0 yields the current
	// state of each record exactly once, in revision order.
	var cursor uint64
	for {
		batch, err := r.store.ChangesSince(ctx, cursor, r.cfg.BatchSize)
		if err != nil {
			return nil, fmt.Errorf("reconcile walk: %w", err)
		}
		if len(batch) == 0 {
			break
		}
		for i := range batch {
			rec := &batch[i]
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			report.Checked++
			if rec.Deleted {
				if r.idx.Revision(rec.ID) != 0 {
					if err := r.idx.Remove(rec.ID); err == nil {
						report.Repaired++
					}
				}
				continue
			}
			seen[rec.ID] = struct{}{}
			if r.idx.Revision(rec.ID) >= rec.Revision {
				continue
			}
			doc, err := r.builder.Build(rec)
			if err != nil {
				r.logger.Warn("skipping unindexable record during reconcile",
					"record_id", rec.ID,
					"error", err,
				)
				continue
			}
			if applied, err := r.idx.Upsert(doc); err == nil && applied {
				report.Repaired++
			}
		}
		cursor = batch[len(batch)-1].Revision
	}

	// Orphans: index entries whose catalog record is gone entirely.
	for _, id := range r.idx.DocIDs() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, ok := seen[id]; ok {
			continue
		}
		if err := r.idx.Remove(id); err == nil {
			report.Orphans++
			if r.metrics != nil {
				r.metrics.OrphansRemovedTotal.Inc()
			}
		}
	}

	if r.metrics != nil {
		r.metrics.IndexDocCount.Set(float64(r.idx.DocCount()))
	}

	drift := report.Repaired + report.Orphans
	if len(seen) > 0 && float64(drift)/float64(len(seen)) > r.cfg.DriftRebuildRatio {
		report.RebuildOrdered = true
		r.logger.Error("drift exceeds rebuild threshold",
			"error", fmt.Errorf("%w: %d of %d live records diverged",
				apperrors.ErrCorruption, drift, len(seen)),
		)
		if err := r.Rebuild(ctx); err != nil {
			return report, err
		}
	}

	switch {
	case report.RebuildOrdered:
		r.countRun("rebuild")
	case drift > 0:
		r.countRun("repaired")
	default:
		r.countRun("clean")
	}
	report.Took = time.Since(start)
	return report, nil
}

// Rebuild clears the index and resets the cursor to 0 so the syncer
// replays the entire catalog. Used when drift is too large to patch and
// when corruption is detected.
func (r *Reconciler) Rebuild(ctx context.Context) error {
	r.logger.Warn("full index rebuild ordered")
	r.idx.Reset()
	if err := r.cursors.SaveCursor(ctx, 0); err != nil {
		return fmt.Errorf("resetting sync cursor: %w", err)
	}
	r.watermark.Reset()
	if r.metrics != nil {
		r.metrics.RebuildsTotal.Inc()
	}
	return nil
}

func (r *Reconciler) countRun(outcome string) {
	if r.metrics != nil {
		r.metrics.ReconcileRunsTotal.WithLabelValues(outcome).Inc()
	}
}
