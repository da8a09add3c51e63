package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/alanyoungcy/tradedvm/internal/domain"
	"github.com/alanyoungcy/tradedvm/internal/nostr"
)

const jsonlContentType = "application/x-ndjson"

// RejectArchiveStore is the part of the reject store the archiver needs.
type RejectArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.ListingReject, error)
}

// MessageArchiveStore is the part of the trade message store the archiver needs.
type MessageArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.TradeMessage, error)
}

// ArchiveImpl implements domain.Archiver by reading old rows, serializing
// them to JSONL and uploading the result. Rows are not deleted here.
type ArchiveImpl struct {
	writer   domain.BlobWriter
	rejects  RejectArchiveStore
	messages MessageArchiveStore
	audit    domain.AuditStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(
	writer domain.BlobWriter,
	rejects RejectArchiveStore,
	messages MessageArchiveStore,
	audit domain.AuditStore,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer:   writer,
		rejects:  rejects,
		messages: messages,
		audit:    audit,
	}
}

// ArchiveRejects uploads every reject older than before to
// archive/rejects/YYYY-MM.jsonl.
func (a *ArchiveImpl) ArchiveRejects(ctx context.Context, before time.Time) (int64, error) {
	rows, err := a.rejects.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive rejects query: %w", err)
	}
	return archiveRows(ctx, a, "rejects", before, rows)
}

// ArchiveMessages uploads every trade message older than before to
// archive/trade_messages/YYYY-MM.jsonl.
func (a *ArchiveImpl) ArchiveMessages(ctx context.Context, before time.Time) (int64, error) {
	rows, err := a.messages.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trade messages query: %w", err)
	}
	return archiveRows(ctx, a, "trade_messages", before, rows)
}

func archiveRows[T any](ctx context.Context, a *ArchiveImpl, kind string, before time.Time, rows []T) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(rows)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s marshal: %w", kind, err)
	}

	path := archivePath(kind, before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), jsonlContentType); err != nil {
		return 0, fmt.Errorf("s3blob: archive %s upload: %w", kind, err)
	}

	count := int64(len(rows))
	if err := a.audit.Log(ctx, "archive."+kind, map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive %s audit log: %w", kind, err)
	}
	return count, nil
}

// EventArchive stores raw relay events in daily-partitioned JSONL batches.
// Batches above the multipart threshold are uploaded in parts.
type EventArchive struct {
	writer             domain.BlobWriter
	reader             domain.BlobReader
	multipartThreshold int64
}

// NewEventArchive creates an EventArchive. reader may be nil when the
// archive is only written to. A threshold of zero always uses Put.
func NewEventArchive(writer domain.BlobWriter, reader domain.BlobReader, multipartThreshold int64) *EventArchive {
	return &EventArchive{writer: writer, reader: reader, multipartThreshold: multipartThreshold}
}

// WriteBatch uploads events as one JSONL object and returns its path.
func (e *EventArchive) WriteBatch(ctx context.Context, batchID string, at time.Time, events []nostr.Event) (string, error) {
	if len(events) == 0 {
		return "", nil
	}
	buf, err := marshalJSONL(events)
	if err != nil {
		return "", fmt.Errorf("s3blob: event batch %s marshal: %w", batchID, err)
	}
	path := EventBatchPath(at, batchID)
	if e.multipartThreshold > 0 && int64(len(buf)) > e.multipartThreshold {
		err = e.writer.PutMultipart(ctx, path, bytes.NewReader(buf), jsonlContentType, minPartSize)
	} else {
		err = e.writer.Put(ctx, path, bytes.NewReader(buf), jsonlContentType)
	}
	if err != nil {
		return "", fmt.Errorf("s3blob: event batch %s upload: %w", batchID, err)
	}
	return path, nil
}

// ReadBatch downloads and decodes one batch written by WriteBatch.
func (e *EventArchive) ReadBatch(ctx context.Context, path string) ([]nostr.Event, error) {
	if e.reader == nil {
		return nil, fmt.Errorf("s3blob: read batch %s: archive is write-only", path)
	}
	body, err := e.reader.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	events, err := unmarshalJSONL[nostr.Event](body)
	if err != nil {
		return nil, fmt.Errorf("s3blob: read batch %s: %w", path, err)
	}
	return events, nil
}

// ListDay returns the batches archived on the UTC day of at.
func (e *EventArchive) ListDay(ctx context.Context, at time.Time) ([]domain.BlobInfo, error) {
	if e.reader == nil {
		return nil, fmt.Errorf("s3blob: list day: archive is write-only")
	}
	return e.reader.List(ctx, eventDayPrefix(at))
}

// PruneBefore deletes event batches from UTC days before the day of cutoff
// and returns how many were removed.
func (e *EventArchive) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if e.reader == nil {
		return 0, fmt.Errorf("s3blob: prune events: archive is write-only")
	}
	infos, err := e.reader.List(ctx, eventsRoot)
	if err != nil {
		return 0, fmt.Errorf("s3blob: prune events: %w", err)
	}
	firstKept := cutoff.UTC().Truncate(24 * time.Hour)
	var n int64
	for _, info := range infos {
		if day, ok := eventBatchDay(info.Path); !ok || !day.Before(firstKept) {
			continue
		}
		if err := e.writer.Delete(ctx, info.Path); err != nil {
			return n, fmt.Errorf("s3blob: prune events: %w", err)
		}
		n++
	}
	return n, nil
}

// archivePath builds the key for a monthly row archive.
//
//	archive/rejects/2025-01.jsonl
//	archive/trade_messages/2025-01.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.UTC().Format("2006-01"))
}

const eventsRoot = "events/"

func eventDayPrefix(at time.Time) string {
	return eventsRoot + at.UTC().Format("2006/01/02") + "/"
}

// eventBatchDay parses the day out of an events/YYYY/MM/DD/<batch> path.
func eventBatchDay(path string) (time.Time, bool) {
	rest, ok := strings.CutPrefix(path, eventsRoot)
	if !ok || len(rest) < len("2006/01/02/") || rest[10] != '/' {
		return time.Time{}, false
	}
	day, err := time.Parse("2006/01/02", rest[:10])
	if err != nil {
		return time.Time{}, false
	}
	return day, true
}

// EventBatchPath returns events/YYYY/MM/DD/<batchID>.jsonl for the UTC day of at.
func EventBatchPath(at time.Time, batchID string) string {
	return eventDayPrefix(at) + batchID + ".jsonl"
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

// unmarshalJSONL decodes newline-delimited JSON, skipping blank lines.
func unmarshalJSONL[T any](r io.Reader) ([]T, error) {
	var out []T
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		var v T
		if err := json.Unmarshal(b, &v); err != nil {
			return nil, fmt.Errorf("jsonl decode line %d: %w", line, err)
		}
		out = append(out, v)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
