// Package worker moves persisted snapshots into the configured spreadsheet.
// It is driven two ways: message-at-a-time from the AMQP consumer, and in
// batches for startup recovery and periodic catch-up.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"monarch/internal/amqp"
	"monarch/internal/export"
	"monarch/internal/log"
	"monarch/internal/storage"
)

// ExportWorker writes snapshot rows to a spreadsheet and tracks the export
// status of each row so failed writes can be retried.
type ExportWorker struct {
	store     *storage.Repository
	writer    export.SnapshotWriter
	logger    *log.Logger
	batchSize int
	retention time.Duration
}

// NewExportWorker builds a worker over the given repository and writer.
// batchSize bounds how many rows a single ProcessPendingSnapshots pass
// handles; retention bounds how long pruned history is kept.
func NewExportWorker(store *storage.Repository, writer export.SnapshotWriter, logger *log.Logger, batchSize int, retention time.Duration) *ExportWorker {
	return &ExportWorker{
		store:     store,
		writer:    writer,
		logger:    logger.WithComponent(log.ComponentExporter),
		batchSize: batchSize,
		retention: retention,
	}
}

// HandleSnapshotMessage exports the snapshot named by an AMQP message. A
// message for a row that no longer exists is dropped without error so the
// queue does not redeliver it forever.
func (w *ExportWorker) HandleSnapshotMessage(ctx context.Context, msg *amqp.SnapshotMessage) error {
	row, err := w.store.Snapshot(ctx, msg.SnapshotID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			w.logger.WarnContext(ctx, "Snapshot message references missing row, dropping",
				log.FieldSnapshotID, msg.SnapshotID)
			return nil
		}
		return fmt.Errorf("loading snapshot %d: %w", msg.SnapshotID, err)
	}

	return w.exportRow(ctx, row)
}

// ProcessPendingSnapshots exports up to batchSize rows that are still
// waiting for a spreadsheet write. Individual failures are marked on the row
// and do not stop the batch.
func (w *ExportWorker) ProcessPendingSnapshots(ctx context.Context) error {
	rows, err := w.store.PendingExports(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("listing pending exports: %w", err)
	}

	if len(rows) == 0 {
		return nil
	}

	w.logger.InfoContext(ctx, "Processing pending exports", "count", len(rows))

	var failed int
	for _, row := range rows {
		if err := w.exportRow(ctx, row); err != nil {
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d pending exports failed", failed, len(rows))
	}
	return nil
}

// StartupExportCheck requeues rows whose last export attempt errored, then
// drains a larger-than-usual batch. Called once when the exporter boots so a
// crash or outage does not strand rows.
func (w *ExportWorker) StartupExportCheck(ctx context.Context) error {
	requeued, err := w.store.RequeueErrored(ctx)
	if err != nil {
		return fmt.Errorf("requeueing errored exports: %w", err)
	}
	if requeued > 0 {
		w.logger.InfoContext(ctx, "Requeued errored exports", "count", requeued)
	}

	rows, err := w.store.PendingExports(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("listing pending exports: %w", err)
	}

	if len(rows) == 0 {
		w.logger.InfoContext(ctx, "No pending exports at startup")
		return nil
	}

	var exported, failed int
	for _, row := range rows {
		if err := w.exportRow(ctx, row); err != nil {
			failed++
			continue
		}
		exported++
	}

	w.logger.InfoContext(ctx, "Startup export check complete",
		"exported", exported, "failed", failed)

	if failed > 0 {
		return fmt.Errorf("startup export check: %d of %d rows failed", failed, len(rows))
	}
	return nil
}

// PruneOldSnapshots deletes rows older than the retention window. Balances
// cascade with their snapshot.
func (w *ExportWorker) PruneOldSnapshots(ctx context.Context) error {
	if w.retention <= 0 {
		return nil
	}

	cutoff := time.Now().Add(-w.retention)
	pruned, err := w.store.Prune(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("pruning snapshots: %w", err)
	}
	if pruned > 0 {
		w.logger.InfoContext(ctx, "Pruned old snapshots",
			log.FieldOperation, log.OpPrune, "count", pruned, "cutoff", cutoff.Format(time.RFC3339))
	}
	return nil
}

// RunMaintenance drains pending exports and prunes old rows on a fixed
// interval until the context is cancelled.
func (w *ExportWorker) RunMaintenance(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "Maintenance loop stopping", "reason", ctx.Err())
			return
		case <-ticker.C:
			if err := w.ProcessPendingSnapshots(ctx); err != nil {
				w.logger.ErrorContext(ctx, "Pending export pass failed", log.FieldError, err)
			}
			if err := w.PruneOldSnapshots(ctx); err != nil {
				w.logger.ErrorContext(ctx, "Prune failed", log.FieldError, err)
			}
		}
	}
}

func (w *ExportWorker) exportRow(ctx context.Context, row storage.SnapshotRow) error {
	if row.ExportStatus == storage.ExportDone {
		w.logger.DebugContext(ctx, "Snapshot already exported, skipping",
			log.FieldSnapshotID, row.ID)
		return nil
	}

	ref, err := w.writer.AppendSnapshot(ctx, row)
	if err != nil {
		w.logger.ErrorContext(ctx, "Spreadsheet write failed",
			log.FieldSnapshotID, row.ID, log.FieldError, err)
		if markErr := w.store.MarkExportError(ctx, row.ID); markErr != nil {
			w.logger.ErrorContext(ctx, "Failed to mark export error",
				log.FieldSnapshotID, row.ID, log.FieldError, markErr)
		}
		return fmt.Errorf("exporting snapshot %d: %w", row.ID, err)
	}

	if err := w.store.MarkExported(ctx, row.ID); err != nil {
		// The row made it to the sheet; the status update can be retried,
		// at worst producing a duplicate row on the next pass.
		w.logger.ErrorContext(ctx, "Exported but failed to mark row",
			log.FieldSnapshotID, row.ID, log.FieldSheetRef, ref, log.FieldError, err)
		return nil
	}

	w.logger.InfoContext(ctx, "Snapshot exported",
		log.FieldOperation, log.OpExport, log.FieldSnapshotID, row.ID, log.FieldSheetRef, ref)
	return nil
}
