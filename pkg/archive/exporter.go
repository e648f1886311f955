// Package archive exports finished call records to long-term storage.
//
// Export is strictly post-commit: the engine calls it after the ARCHIVED
// transition is durable, and a failed export never changes call state. The
// primary store stays the source of truth; the archive is a copy for
// downstream consumers.
package archive

import (
	"context"
	"time"
)

// Record is the durable artifact produced for one archived call.
type Record struct {
	CallID        string    `json:"call_id"`
	Transcription string    `json:"transcription"`
	Sentiment     string    `json:"sentiment"`
	ReceivedCount int64     `json:"received_count"`
	ExpectedTotal int64     `json:"expected_total"`
	ArchivedAt    time.Time `json:"archived_at"`
}

// Exporter persists archived call records outside the primary store.
type Exporter interface {
	// Export uploads one record. Errors are reported to the caller for
	// logging only; the call is already ARCHIVED when Export runs.
	Export(ctx context.Context, rec Record) error
}

// NopExporter discards every record. It is the default when archival is
// disabled in configuration.
type NopExporter struct{}

// Export implements Exporter.
func (NopExporter) Export(context.Context, Record) error { return nil }

// Ensure NopExporter implements Exporter.
var _ Exporter = NopExporter{}
