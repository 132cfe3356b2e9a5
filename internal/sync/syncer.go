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

// Invalidator receives the IDs of documents whose index entries changed.
// The query cache implements it.
type Invalidator interface {
	InvalidateDocs(ctx context.Context, ids []string)
}

// Syncer pulls the catalog change feed and applies it to the index. The
// cursor is persisted only after a batch is fully applied, so a crash
// between apply and save replays the batch; replay is harmless because
// the index discards revisions it has already seen.
type Syncer struct {
	store       catalog.Store
	cursors     catalog.CursorStore
	idx         *index.Index
	builder     *index.Builder
	watermark   *Watermark
	notifier    *Notifier
	invalidator Invalidator
	cfg         config.SyncConfig
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// Options carries the optional collaborators of a Syncer.
type Options struct {
	Notifier    *Notifier
	Invalidator Invalidator
	Metrics     *metrics.Metrics
}

// New creates a Syncer. A fresh deployment starts from cursor 0, which
// makes bootstrap the same code path as steady-state catch-up.
func New(
	store catalog.Store,
	cursors catalog.CursorStore,
	idx *index.Index,
	builder *index.Builder,
	watermark *Watermark,
	cfg config.SyncConfig,
	opts Options,
) *Syncer {
	return &Syncer{
		store:       store,
		cursors:     cursors,
		idx:         idx,
		builder:     builder,
		watermark:   watermark,
		notifier:    opts.Notifier,
		invalidator: opts.Invalidator,
		cfg:         cfg,
		metrics:     opts.Metrics,
		logger:      slog.Default().With("component", "syncer"),
	}
}

// Bootstrap loads the persisted cursor and drains the change feed until
// the index has caught up with the store head. Called once before the
// node starts serving queries.
func (s *Syncer) Bootstrap(ctx context.Context) error {
	cursor, err := s.cursors.LoadCursor(ctx)
	if err != nil {
		return fmt.Errorf("loading sync cursor: %w", err)
	}
	s.watermark.Advance(cursor, false)
	s.logger.Info("bootstrap starting", "cursor", cursor)

	start := time.Now()
	var applied int
	for {
		n, caughtUp, err := s.syncOnce(ctx)
		if err != nil {
			return fmt.Errorf("bootstrap sync: %w", err)
		}
		applied += n
		if caughtUp {
			break
		}
	}
	s.logger.Info("bootstrap complete",
		"records", applied,
		"cursor", s.watermark.Cursor(),
		"took", time.Since(start),
	)
	return nil
}

// Run polls the change feed until ctx is cancelled. Pull failures are
// retried with exponential backoff without advancing the cursor.
func (s *Syncer) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("syncer stopping")
			return ctx.Err()
		case <-ticker.C:
		}

		err := resilience.Retry(ctx, "catalog-sync", resilience.RetryConfig{
			InitialDelay: s.cfg.RetryInitialDelay,
			MaxDelay:     s.cfg.RetryMaxDelay,
		}, func() error {
			for {
				_, caughtUp, err := s.syncOnce(ctx)
				if err != nil {
					return err
				}
				if caughtUp {
					return nil
				}
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("sync cycle failed, cursor unchanged",
				"cursor", s.watermark.Cursor(),
				"error", err,
			)
		}
	}
}

// syncOnce pulls and applies a single batch. It returns the number of
// records applied and whether the cursor reached the store head.
func (s *Syncer) syncOnce(ctx context.Context) (int, bool, error) {
	cursor := s.watermark.Cursor()
	batch, err := s.store.ChangesSince(ctx, cursor, s.cfg.BatchSize)
	if err != nil {
		s.countBatch("error")
		return 0, false, syncErr("pulling catalog changes", err)
	}
	if len(batch) == 0 {
		s.watermark.Advance(cursor, true)
		s.updateLag(ctx)
		return 0, true, nil
	}

	changed, err := s.applyBatch(ctx, batch)
	if err != nil {
		s.countBatch("error")
		return 0, false, err
	}

	last := batch[len(batch)-1].Revision
	if err := s.cursors.SaveCursor(ctx, last); err != nil {
		// The batch is already in the index; replaying it after a
		// restart is a no-op, so only the save is reported.
		s.countBatch("error")
		return 0, false, syncErr("persisting sync cursor", err)
	}
	caughtUp := len(batch) < s.cfg.BatchSize
	s.watermark.Advance(last, caughtUp)
	s.countBatch("applied")
	s.updateLag(ctx)

	if len(changed) > 0 {
		if s.notifier != nil {
			s.notifier.DocumentsChanged(changed)
		}
		if s.invalidator != nil {
			s.invalidator.InvalidateDocs(ctx, changed)
		}
	}
	return len(batch), caughtUp, nil
}

// applyBatch folds one change batch into the index and returns the IDs
// whose index entries actually changed.
func (s *Syncer) applyBatch(ctx context.Context, batch []catalog.Record) ([]string, error) {
	changed := make([]string, 0, len(batch))
	for i := range batch {
		rec := &batch[i]
		if err := ctx.Err(); err != nil {
			return changed, err
		}
		if rec.Deleted {
			if err := s.idx.Remove(rec.ID); err != nil {
				if errors.Is(err, apperrors.ErrNotFound) {
					continue
				}
				return changed, syncErr("removing document", err)
			}
			changed = append(changed, rec.ID)
			if s.metrics != nil {
				s.metrics.DocsRemovedTotal.Inc()
			}
			continue
		}
		doc, err := s.builder.Build(rec)
		if err != nil {
			// A record the builder rejects is logged and skipped;
			// halting the feed on one bad record would stall every
			// record behind it.
			s.logger.Warn("skipping unindexable record",
				"record_id", rec.ID,
				"revision", rec.Revision,
				"error", err,
			)
			continue
		}
		applied, err := s.idx.Upsert(doc)
		if err != nil {
			return changed, syncErr("upserting document", err)
		}
		if applied {
			changed = append(changed, rec.ID)
			if s.metrics != nil {
				s.metrics.DocsUpsertedTotal.Inc()
			}
		}
	}
	if s.metrics != nil {
		s.metrics.IndexDocCount.Set(float64(s.idx.DocCount()))
	}
	return changed, nil
}

func (s *Syncer) countBatch(status string) {
	if s.metrics != nil {
		s.metrics.SyncBatchesTotal.WithLabelValues(status).Inc()
	}
}

func (s *Syncer) updateLag(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	head, err := s.store.CurrentRevision(ctx)
	if err != nil {
		return
	}
	cursor := s.watermark.Cursor()
	if head > cursor {
		s.metrics.SyncCursorLag.Set(float64(head - cursor))
	} else {
		s.metrics.SyncCursorLag.Set(0)
	}
}

// syncErr classifies a synchronizer failure while preserving the cause.
func syncErr(msg string, err error) error {
	return fmt.Errorf("%s: %w", msg, errors.Join(apperrors.ErrSyncFailure, err))
}
