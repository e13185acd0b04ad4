package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/alanyoungcy/marginterm/internal/domain"
)

// ActionArchiveStore is the part of the action store the archiver needs.
type ActionArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.ActionRecord, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// ActionArchiver implements domain.Archiver. Settled actions and audit
// entries older than the cutoff are written to JSONL objects and removed
// from the primary store only after the upload succeeded.
type ActionArchiver struct {
	writer  domain.BlobWriter
	actions ActionArchiveStore
	audit   domain.AuditStore
}

// NewArchiver creates an ActionArchiver. audit may be nil.
func NewArchiver(writer domain.BlobWriter, actions ActionArchiveStore, audit domain.AuditStore) *ActionArchiver {
	return &ActionArchiver{writer: writer, actions: actions, audit: audit}
}

// ArchiveActions moves every settled action created before the cutoff to
// object storage and returns the archived count. The audit trail for the
// same window follows, and the run itself is recorded as a new entry.
func (a *ActionArchiver) ArchiveActions(ctx context.Context, before time.Time) (int64, error) {
	recs, err := a.actions.ListBefore(ctx, before, 0)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive actions query: %w", err)
	}

	var count, deleted int64
	if len(recs) > 0 {
		if err := upload(ctx, a.writer, ArchivePath(before), recs); err != nil {
			return 0, fmt.Errorf("s3blob: archive actions: %w", err)
		}
		if deleted, err = a.actions.DeleteBefore(ctx, before); err != nil {
			return 0, fmt.Errorf("s3blob: archive actions delete: %w", err)
		}
		count = int64(len(recs))
	}

	if a.audit == nil {
		return count, nil
	}
	trail, err := a.archiveAudit(ctx, before)
	if err != nil {
		return count, err
	}
	if count == 0 && trail == 0 {
		return 0, nil
	}
	if err := a.audit.Append(ctx, domain.AuditEntry{
		Event: "archive_run",
		Detail: map[string]any{
			"path":    ArchivePath(before),
			"count":   count,
			"deleted": deleted,
			"audit":   trail,
			"before":  before.UTC().Format(time.RFC3339),
		},
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive run audit: %w", err)
	}
	return count, nil
}

func (a *ActionArchiver) archiveAudit(ctx context.Context, before time.Time) (int64, error) {
	entries, err := a.audit.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit query: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}
	if err := upload(ctx, a.writer, AuditArchivePath(before), entries); err != nil {
		return 0, fmt.Errorf("s3blob: archive audit: %w", err)
	}
	if _, err := a.audit.DeleteBefore(ctx, before); err != nil {
		return 0, fmt.Errorf("s3blob: archive audit delete: %w", err)
	}
	return int64(len(entries)), nil
}

func upload[T any](ctx context.Context, w domain.BlobWriter, path string, records []T) error {
	buf, err := encodeArchive(records)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := w.Put(ctx, path, bytes.NewReader(buf), archiveContentType); err != nil {
		return fmt.Errorf("upload %s: %w", path, err)
	}
	return nil
}

// Archive object prefixes.
const (
	ArchivePrefix      = "archive/actions/"
	AuditArchivePrefix = "archive/audit/"
)

// ArchivePath builds the object path of an archive run, partitioned by the
// year-month of the cutoff:
//
//	archive/actions/2026-01/20260115T000000Z.jsonl.gz
func ArchivePath(before time.Time) string {
	return archivePath(ArchivePrefix, before)
}

// AuditArchivePath is ArchivePath for the audit trail.
func AuditArchivePath(before time.Time) string {
	return archivePath(AuditArchivePrefix, before)
}

func archivePath(prefix string, before time.Time) string {
	before = before.UTC()
	return fmt.Sprintf("%s%s/%s.jsonl.gz", prefix, before.Format("2006-01"), before.Format("20060102T150405Z"))
}

// archiveContentType is the MIME type of archive objects. They are
// gzip-compressed, which the writer records as the content encoding.
const archiveContentType = "application/x-ndjson"

// ReadActions loads an action archive written by ArchiveActions.
func ReadActions(ctx context.Context, r domain.BlobReader, path string) ([]domain.ActionRecord, error) {
	return readArchive[domain.ActionRecord](ctx, r, path)
}

// ReadAudit loads an audit trail archive written by ArchiveActions.
func ReadAudit(ctx context.Context, r domain.BlobReader, path string) ([]domain.AuditEntry, error) {
	return readArchive[domain.AuditEntry](ctx, r, path)
}

func readArchive[T any](ctx context.Context, r domain.BlobReader, path string) ([]T, error) {
	body, err := r.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	zr, err := gzip.NewReader(body)
	if err != nil {
		return nil, fmt.Errorf("s3blob: open %s: %w", path, err)
	}
	defer zr.Close()

	var out []T
	sc := bufio.NewScanner(zr)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for line := 1; sc.Scan(); line++ {
		if len(bytes.TrimSpace(sc.Bytes())) == 0 {
			continue
		}
		var rec T
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("s3blob: %s line %d: %w", path, line, err)
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("s3blob: read %s: %w", path, err)
	}
	return out, nil
}

// encodeArchive serialises records as gzip-compressed newline-delimited JSON.
func encodeArchive[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	enc := json.NewEncoder(zw)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*ActionArchiver)(nil)
