package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store queries the audit trail. Every query is bound to one organization.
type Store interface {
	Search(ctx context.Context, filter SearchFilter) ([]*AuditEvent, error)
	Get(ctx context.Context, orgID, id uuid.UUID) (*AuditEvent, error)
	GetStats(ctx context.Context, orgID uuid.UUID, startTime, endTime *time.Time) (*Stats, error)
}

// Export renders the events matching filter in the given format
func Export(ctx context.Context, store Store, filter SearchFilter, format ExportFormat) ([]byte, error) {
	events, err := store.Search(ctx, filter)
	if err != nil {
		return nil, err
	}

	switch format {
	case ExportFormatJSON, "":
		return exportJSON(events)
	case ExportFormatCSV:
		return exportCSV(events)
	case ExportFormatNDJSON:
		return exportNDJSON(events)
	}
	return nil, fmt.Errorf("unsupported export format %q", format)
}
