package domain

import (
	"time"
)

// AuditEntry records one executed action. Entries are append-only and never
// mutated or deleted by the application.
type AuditEntry struct {
	Timestamp     time.Time
	Login         string
	Action        string
	Server        string
	Command       string
	DurationMs    int64
	ResultSnippet string
}
