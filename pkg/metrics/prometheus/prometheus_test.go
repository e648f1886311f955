package prometheus

import (
	"strings"
	"testing"
	"time"

	"github.com/marmos91/voicegate/pkg/metrics"
)

// The registry is process-global and promauto panics on duplicate
// registration, so each implementation is constructed exactly once here.

func TestPrometheusImplementations(t *testing.T) {
	metrics.InitRegistry()

	engineM := NewEngineMetrics()
	if engineM == nil {
		t.Fatal("expected engine metrics after InitRegistry")
	}
	engineM.RecordPacket("in_order")
	engineM.RecordPacket("duplicate")
	engineM.RecordPacketPolicy("tracked")
	engineM.RecordStateTransition("IN_PROGRESS", "COMPLETED")
	engineM.RecordAIAttempt("success", 1200*time.Millisecond)
	engineM.RecordPipeline("archived", 5*time.Second)

	busM := NewBusMetrics()
	if busM == nil {
		t.Fatal("expected bus metrics after InitRegistry")
	}
	busM.SetSubscriberCount(3)
	busM.RecordPublish("packet_received")
	busM.RecordDrop()

	httpM := NewHTTPMetrics()
	if httpM == nil {
		t.Fatal("expected HTTP metrics after InitRegistry")
	}
	httpM.RecordRequestStart()
	httpM.RecordRequest("POST", "/api/v1/calls/{callID}/packets", 202, 12*time.Millisecond)
	httpM.RecordRequestEnd()

	archiveM := NewArchiveMetrics()
	if archiveM == nil {
		t.Fatal("expected archive metrics after InitRegistry")
	}
	archiveM.RecordExport("success", 80*time.Millisecond)
	archiveM.RecordExport("error", 3*time.Second)
	archiveM.RecordExportBytes(2048)

	families, err := metrics.GetRegistry().Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	want := map[string]bool{
		"voicegate_packets_ingested_total":               false,
		"voicegate_packets_by_state_policy_total":        false,
		"voicegate_state_transitions_total":              false,
		"voicegate_ai_attempts_total":                    false,
		"voicegate_ai_attempt_duration_milliseconds":     false,
		"voicegate_pipeline_duration_milliseconds":       false,
		"voicegate_bus_subscribers":                      false,
		"voicegate_bus_events_published_total":           false,
		"voicegate_bus_subscribers_dropped_total":        false,
		"voicegate_http_requests_total":                  false,
		"voicegate_http_request_duration_milliseconds":   false,
		"voicegate_http_requests_in_flight":              false,
		"voicegate_archive_exports_total":                false,
		"voicegate_archive_export_duration_milliseconds": false,
		"voicegate_archive_export_bytes":                 false,
	}
	for _, fam := range families {
		if _, ok := want[fam.GetName()]; ok {
			want[fam.GetName()] = true
		}
	}
	var missing []string
	for name, seen := range want {
		if !seen {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		t.Errorf("instruments missing from registry: %s", strings.Join(missing, ", "))
	}
}

func TestNilReceiversAreSafe(t *testing.T) {
	var e *engineMetrics
	e.RecordPacket("in_order")
	e.RecordPacketPolicy("tracked")
	e.RecordStateTransition("IN_PROGRESS", "COMPLETED")
	e.RecordAIAttempt("failure", time.Second)
	e.RecordPipeline("failed", time.Second)

	var b *busMetrics
	b.SetSubscriberCount(0)
	b.RecordPublish("state_changed")
	b.RecordDrop()

	var h *httpMetrics
	h.RecordRequest("GET", "/health", 200, time.Millisecond)
	h.RecordRequestStart()
	h.RecordRequestEnd()

	var a *archiveMetrics
	a.RecordExport("success", time.Second)
	a.RecordExportBytes(0)
}
