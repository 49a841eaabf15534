// Package audit records the append-only audit trail of the access layer.
//
// # Overview
//
// Every denied authorization, every state-changing allow and every action taken
// under a platform role produces an AuditEvent. Events carry the actor, the
// tenant, the target and, for denials, the internal reason code that is never
// sent to clients.
//
// # Sinks
//
//	DBLogger      inserts into the audit_events table (no updates, no deletes)
//	FileLogger    JSON lines with size based rotation
//	LogrusLogger  structured log entries
//	MemoryLogger  in-process trail for development and tests
//	MultiLogger   asynchronous fan-out to several sinks
//
// MultiLogger is fire-and-forget: Log returns before the sinks finish and sink
// failures are reported to the error handler, never to the caller.
//
//	trail := audit.NewMultiLogger(
//		audit.Sink{Name: "db", Logger: dbLogger},
//		audit.Sink{Name: "log", Logger: audit.NewLogrusLogger(logger.Logrus().Logger)},
//	)
//	trail.OnError(func(sink string, _ *audit.AuditEvent, err error) {
//		metrics.AuditWriteErrorsTotal.WithLabelValues(sink).Inc()
//	})
//
// # Searching
//
// Search is always bound to one organization; SearchFilter has no way to
// query across tenants.
//
//	events, err := store.Search(ctx, audit.SearchFilter{
//		OrganizationID: orgID,
//		EventTypes:     []audit.EventType{audit.EventTypeAccessDenied},
//	})
package audit
