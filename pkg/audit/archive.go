package audit

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// ObjectWriter stores an archive object, e.g. an S3 bucket
type ObjectWriter interface {
	PutObject(ctx context.Context, key string, content io.Reader, contentType string) error
}

// ArchiveResult describes one written archive
type ArchiveResult struct {
	Key    string `json:"key"`
	Events int    `json:"events"`
}

// ArchiveKey is the object key of an organization's archive for the UTC day
// containing day
func ArchiveKey(orgID uuid.UUID, day time.Time) string {
	return fmt.Sprintf("audit/%s/%s.ndjson", orgID, day.UTC().Format("2006/01/02"))
}

// ArchiveDay copies one UTC day of an organization's audit trail to w as
// newline-delimited JSON, newest first. The trail itself is
// left untouched.
func ArchiveDay(ctx context.Context, store Store, w ObjectWriter, orgID uuid.UUID, day time.Time) (*ArchiveResult, error) {
	start := day.UTC().Truncate(24 * time.Hour)
	end := start.Add(24*time.Hour - time.Nanosecond)

	var events []*AuditEvent
	filter := SearchFilter{OrganizationID: orgID, StartTime: &start, EndTime: &end, Limit: MaxSearchLimit}
	for {
		page, err := store.Search(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("failed to read audit events: %w", err)
		}
		events = append(events, page...)
		if len(page) < MaxSearchLimit {
			break
		}
		filter.Offset += len(page)
	}

	body, err := exportNDJSON(events)
	if err != nil {
		return nil, err
	}

	key := ArchiveKey(orgID, start)
	if err := w.PutObject(ctx, key, bytes.NewReader(body), "application/x-ndjson"); err != nil {
		return nil, fmt.Errorf("failed to write archive %s: %w", key, err)
	}
	return &ArchiveResult{Key: key, Events: len(events)}, nil
}
