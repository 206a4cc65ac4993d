package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/derivbot/internal/domain"
)

// ArchiveStore is the narrow read interface the archiver needs from the
// primary store.
type ArchiveStore interface {
	ListBefore(ctx context.Context, cutoff time.Time) ([]domain.OpportunityRecord, error)
}

// Archiver implements domain.RecordArchiver. It copies opportunity records
// older than a cutoff to the object store as JSONL, one file per archive
// run. Deletion from the primary store is intentionally NOT performed here;
// the caller prunes only after the upload succeeds.
type Archiver struct {
	client *Client
	store  ArchiveStore
	logger *slog.Logger
}

// NewArchiver creates an Archiver writing through the given client.
func NewArchiver(client *Client, store ArchiveStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		client: client,
		store:  store,
		logger: logger.With(slog.String("component", "record_archiver")),
	}
}

// Archive queries all records recorded before the cutoff, serializes them
// to JSONL, and uploads the file at archive/opportunities/<cutoff>.jsonl.
// It returns the number of records archived. An empty result uploads
// nothing and returns zero.
func (a *Archiver) Archive(ctx context.Context, before time.Time) (int64, error) {
	recs, err := a.store.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive query: %w", err)
	}
	if len(recs) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(recs)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive marshal: %w", err)
	}

	key := archiveKey(before)
	if err := a.client.Put(ctx, key, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive upload: %w", err)
	}

	a.logger.InfoContext(ctx, "archived opportunity records",
		slog.String("key", key),
		slog.Int("count", len(recs)),
		slog.Time("before", before),
	)
	return int64(len(recs)), nil
}

// archiveKey names the archive object after the cutoff instant so repeated
// runs never overwrite each other.
func archiveKey(before time.Time) string {
	return fmt.Sprintf("archive/opportunities/%s.jsonl", before.UTC().Format("20060102T150405Z"))
}

// marshalJSONL encodes records as newline-delimited JSON.
func marshalJSONL(recs []domain.OpportunityRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, rec := range recs {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("encode record %s: %w", rec.ID, err)
		}
	}
	return buf.Bytes(), nil
}
