package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/zerodte/execd/internal/domain"
)

// TradeArchiveStore provides read access to closed trades for archival.
type TradeArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.Trade, error)
}

// SignalArchiveStore provides read access to processed signals for archival.
type SignalArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.Signal, error)
}

// Archiver moves old trades and signals out of the primary store into cold
// storage, as newline-delimited JSON partitioned by month. Deletion of the
// archived rows from the primary store is a separate, explicit step taken
// only after the archive upload has succeeded.
type Archiver struct {
	writer  domain.BlobWriter
	trades  TradeArchiveStore
	signals SignalArchiveStore
	audit   domain.AuditStore
}

// NewArchiver creates an Archiver.
func NewArchiver(writer domain.BlobWriter, trades TradeArchiveStore, signals SignalArchiveStore, audit domain.AuditStore) *Archiver {
	return &Archiver{writer: writer, trades: trades, signals: signals, audit: audit}
}

// ArchiveTrades uploads archive/trades/YYYY-MM.jsonl for all closed trades
// before the cutoff and records the run in the audit log.
func (a *Archiver) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	trades, err := a.trades.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades query: %w", err)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(trades)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades marshal: %w", err)
	}

	path := archivePath("trades", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive trades upload: %w", err)
	}

	count := int64(len(trades))
	if err := a.audit.Log(ctx, "archive.trades", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive trades audit log: %w", err)
	}
	return count, nil
}

// ArchiveSignals uploads archive/signals/YYYY-MM.jsonl for all signals
// processed before the cutoff and records the run in the audit log.
func (a *Archiver) ArchiveSignals(ctx context.Context, before time.Time) (int64, error) {
	signals, err := a.signals.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive signals query: %w", err)
	}
	if len(signals) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(signals)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive signals marshal: %w", err)
	}

	path := archivePath("signals", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive signals upload: %w", err)
	}

	count := int64(len(signals))
	if err := a.audit.Log(ctx, "archive.signals", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive signals audit log: %w", err)
	}
	return count, nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time: archive/trades/2026-07.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
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
