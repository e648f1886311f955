package logger

import "log/slog"

// Standard field keys for structured logging.
// Use these keys consistently across all log statements for log aggregation
// and querying.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// HTTP Request
	// ========================================================================
	KeyRequestID = "request_id" // Per-request identifier
	KeyMethod    = "method"     // HTTP method
	KeyPath      = "path"       // Request path
	KeyStatus    = "status"     // HTTP response status code
	KeyClientIP  = "client_ip"  // Client IP address

	// ========================================================================
	// Call Lifecycle
	// ========================================================================
	KeyCallID         = "call_id"        // PBX-assigned call identifier
	KeySequence       = "sequence"       // Packet sequence number
	KeyState          = "state"          // Call lifecycle state
	KeyFromState      = "from_state"     // Transition source state
	KeyToState        = "to_state"       // Transition target state
	KeyEvent          = "event"          // Lifecycle event kind
	KeyClassification = "classification" // Packet classification: in_order, gap, late_fill, duplicate
	KeyReceived       = "received"       // Packets received so far
	KeyMissing        = "missing"        // Count of tracked missing sequences
	KeyExpectedTotal  = "expected_total" // Declared total packet count

	// ========================================================================
	// Store Backend
	// ========================================================================
	KeyBackend    = "backend"     // Store backend: memory, sqlite, postgres, badger
	KeyAttempt    = "attempt"     // Retry attempt number
	KeyMaxRetries = "max_retries" // Maximum retry attempts

	// ========================================================================
	// Event Bus & Subscribers
	// ========================================================================
	KeySubscriberID = "subscriber_id" // Bus subscriber identifier
	KeySubscribers  = "subscribers"   // Current subscriber count

	// ========================================================================
	// AI Processing
	// ========================================================================
	KeySentiment = "sentiment" // AI sentiment label
	KeyReason    = "reason"    // Failure reason (operator-facing)

	// ========================================================================
	// Archive Export
	// ========================================================================
	KeyBucket = "bucket" // S3 bucket name
	KeyKey    = "key"    // Object key
	KeyRegion = "region" // Cloud region

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyComponent  = "component"   // Subsystem name: engine, bus, api, archive
	KeyVersion    = "version"     // Build version
)

// ============================================================================
// Field constructors for type safety
// ============================================================================

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// RequestID returns a slog.Attr for the per-request identifier
func RequestID(id string) slog.Attr {
	return slog.String(KeyRequestID, id)
}

// Status returns a slog.Attr for HTTP response status
func Status(code int) slog.Attr {
	return slog.Int(KeyStatus, code)
}

// ClientIP returns a slog.Attr for client IP address
func ClientIP(addr string) slog.Attr {
	return slog.String(KeyClientIP, addr)
}

// CallID returns a slog.Attr for the call identifier
func CallID(id string) slog.Attr {
	return slog.String(KeyCallID, id)
}

// Sequence returns a slog.Attr for a packet sequence number
func Sequence(seq int64) slog.Attr {
	return slog.Int64(KeySequence, seq)
}

// State returns a slog.Attr for a call lifecycle state
func State(state string) slog.Attr {
	return slog.String(KeyState, state)
}

// Event returns a slog.Attr for a lifecycle event kind
func Event(kind string) slog.Attr {
	return slog.String(KeyEvent, kind)
}

// Backend returns a slog.Attr for a store backend name
func Backend(name string) slog.Attr {
	return slog.String(KeyBackend, name)
}

// Attempt returns a slog.Attr for retry attempt number
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// MaxRetries returns a slog.Attr for maximum retry attempts
func MaxRetries(n int) slog.Attr {
	return slog.Int(KeyMaxRetries, n)
}

// SubscriberID returns a slog.Attr for a bus subscriber identifier
func SubscriberID(id string) slog.Attr {
	return slog.String(KeySubscriberID, id)
}

// Bucket returns a slog.Attr for an S3 bucket name
func Bucket(name string) slog.Attr {
	return slog.String(KeyBucket, name)
}

// Key returns a slog.Attr for an object key
func Key(k string) slog.Attr {
	return slog.String(KeyKey, k)
}

// Region returns a slog.Attr for a cloud region
func Region(r string) slog.Attr {
	return slog.String(KeyRegion, r)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Component returns a slog.Attr naming the emitting subsystem
func Component(name string) slog.Attr {
	return slog.String(KeyComponent, name)
}
