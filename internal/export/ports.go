// Package export defines the port for writing snapshot rows to an external
// spreadsheet.
package export

import (
	"context"

	"monarch/internal/storage"
)

// SnapshotWriter appends one snapshot summary row and returns a reference
// to the written range.
type SnapshotWriter interface {
	AppendSnapshot(ctx context.Context, row storage.SnapshotRow) (rowRef string, err error)
}
