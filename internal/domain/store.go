package domain

import (
	"context"
	"io"
	"time"
)

// OrderStore persists client order records outside the engine's
// in-memory tables. The engine never prunes its own tables; retention
// is the store's concern.
type OrderStore interface {
	Upsert(ctx context.Context, order ClientOrder) error
	GetByCloid(ctx context.Context, cloid string) (ClientOrder, error)
	ListByMarket(ctx context.Context, market string, limit int) ([]ClientOrder, error)
	// ListTerminalBefore returns terminal orders last updated before the
	// cutoff, for archival export.
	ListTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]ClientOrder, error)
	DeleteByCloids(ctx context.Context, cloids []string) (int64, error)
}

// BookCache mirrors book snapshots into shared storage for observers
// outside the process. The in-memory book remains authoritative.
type BookCache interface {
	StoreSnapshot(ctx context.Context, snap BookSnapshot) error
	LoadSnapshot(ctx context.Context, market string) (BookSnapshot, error)
}

// BlobWriter uploads archive objects to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Notifier delivers operator alerts, e.g. on terminal order states.
type Notifier interface {
	Notify(ctx context.Context, title, message string) error
}
