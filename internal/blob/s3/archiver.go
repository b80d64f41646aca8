package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/curvelab/monbot/internal/domain"
)

// Archiver exports settled client orders out of the primary store as
// JSONL objects. The engine's in-memory tables are never pruned; this
// is the external archival policy applied to the persistent copy.
type Archiver struct {
	writer domain.BlobWriter
	orders domain.OrderStore
	logger *slog.Logger

	// Prune removes archived rows from the store after a successful
	// upload. Off by default so an archive can be verified first.
	Prune bool
	// BatchLimit caps how many rows one run exports.
	BatchLimit int
}

// NewArchiver creates an Archiver.
func NewArchiver(writer domain.BlobWriter, orders domain.OrderStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer:     writer,
		orders:     orders,
		logger:     logger.With(slog.String("component", "archiver")),
		BatchLimit: 10000,
	}
}

// ArchiveOrders exports terminal orders last updated before the cutoff
// to archive/orders/YYYY-MM.jsonl and returns the count exported.
func (a *Archiver) ArchiveOrders(ctx context.Context, before time.Time) (int64, error) {
	orders, err := a.orders.ListTerminalBefore(ctx, before, a.BatchLimit)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive orders query: %w", err)
	}
	if len(orders) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(orders)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive orders marshal: %w", err)
	}

	path := archivePath("orders", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive orders upload: %w", err)
	}

	count := int64(len(orders))
	a.logger.Info("orders archived",
		slog.String("path", path),
		slog.Int64("count", count),
		slog.Time("before", before))

	if a.Prune {
		cloids := make([]string, len(orders))
		for i, o := range orders {
			cloids[i] = o.Cloid
		}
		deleted, err := a.orders.DeleteByCloids(ctx, cloids)
		if err != nil {
			return count, fmt.Errorf("s3blob: archive orders prune: %w", err)
		}
		a.logger.Info("archived orders pruned", slog.Int64("deleted", deleted))
	}
	return count, nil
}

// archivePath builds the object key, partitioned by the cutoff's
// year-month, e.g. archive/orders/2026-08.jsonl.
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
