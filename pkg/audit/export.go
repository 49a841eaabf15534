package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

func exportJSON(events []*AuditEvent) ([]byte, error) {
	return json.MarshalIndent(events, "", "  ")
}

func exportNDJSON(events []*AuditEvent) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	for _, event := range events {
		if err := encoder.Encode(event); err != nil {
			return nil, fmt.Errorf("failed to encode event: %w", err)
		}
	}
	return buf.Bytes(), nil
}

var csvHeader = []string{
	"ID", "Timestamp", "EventType", "Status",
	"ActorID", "ActorRole", "OrganizationID", "SchoolID",
	"Action", "ResourceType", "ResourceID", "Reason", "Message",
	"RequestID", "IPAddress", "UserAgent",
}

func exportCSV(events []*AuditEvent) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, event := range events {
		row := []string{
			event.ID.String(),
			event.Timestamp.UTC().Format(time.RFC3339),
			string(event.EventType),
			string(event.Status),
			formatID(event.ActorID),
			event.ActorRole,
			formatID(event.OrganizationID),
			formatID(event.SchoolID),
			event.Action,
			event.ResourceType,
			event.ResourceID,
			event.Reason,
			event.Message,
			event.RequestID,
			event.IPAddress,
			event.UserAgent,
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

func formatID(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
