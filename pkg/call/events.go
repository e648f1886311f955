package call

import "encoding/json"

// EventKind discriminates lifecycle event payloads on the wire.
type EventKind string

const (
	KindPacketReceived EventKind = "packet_received"
	KindStateChanged   EventKind = "state_changed"
	KindAICompleted    EventKind = "ai_completed"
	KindAIFailed       EventKind = "ai_failed"
)

// Event is a lifecycle notification published on the bus and pushed to
// subscribers as JSON. Each concrete event injects its kind as the literal
// "event" field when marshalled.
type Event interface {
	Kind() EventKind
}

// PacketReceivedEvent is published after a packet mutation commits with the
// tracking fields as of that commit.
type PacketReceivedEvent struct {
	CallID        string  `json:"call_id"`
	Sequence      int64   `json:"sequence"`
	TotalReceived int64   `json:"total_received"`
	Missing       []int64 `json:"missing_sequences"`
}

// Kind implements Event.
func (PacketReceivedEvent) Kind() EventKind { return KindPacketReceived }

// MarshalJSON injects the event discriminator.
func (e PacketReceivedEvent) MarshalJSON() ([]byte, error) {
	if e.Missing == nil {
		e.Missing = []int64{}
	}
	type alias PacketReceivedEvent
	return json.Marshal(struct {
		Event EventKind `json:"event"`
		alias
	}{Event: KindPacketReceived, alias: alias(e)})
}

// StateChangedEvent is published after every committed lifecycle transition.
type StateChangedEvent struct {
	CallID string `json:"call_id"`
	From   State  `json:"from_state"`
	To     State  `json:"to_state"`
}

// Kind implements Event.
func (StateChangedEvent) Kind() EventKind { return KindStateChanged }

// MarshalJSON injects the event discriminator.
func (e StateChangedEvent) MarshalJSON() ([]byte, error) {
	type alias StateChangedEvent
	return json.Marshal(struct {
		Event EventKind `json:"event"`
		alias
	}{Event: KindStateChanged, alias: alias(e)})
}

// AICompletedEvent is published once when a call reaches ARCHIVED.
type AICompletedEvent struct {
	CallID        string `json:"call_id"`
	Transcription string `json:"transcription"`
	Sentiment     string `json:"sentiment"`
}

// Kind implements Event.
func (AICompletedEvent) Kind() EventKind { return KindAICompleted }

// MarshalJSON injects the event discriminator.
func (e AICompletedEvent) MarshalJSON() ([]byte, error) {
	type alias AICompletedEvent
	return json.Marshal(struct {
		Event EventKind `json:"event"`
		alias
	}{Event: KindAICompleted, alias: alias(e)})
}

// AIFailedEvent is published once when a call reaches FAILED. Reason is a
// sanitized operator-facing string, never raw error text from the AI client.
type AIFailedEvent struct {
	CallID string `json:"call_id"`
	Reason string `json:"reason"`
}

// Kind implements Event.
func (AIFailedEvent) Kind() EventKind { return KindAIFailed }

// MarshalJSON injects the event discriminator.
func (e AIFailedEvent) MarshalJSON() ([]byte, error) {
	type alias AIFailedEvent
	return json.Marshal(struct {
		Event EventKind `json:"event"`
		alias
	}{Event: KindAIFailed, alias: alias(e)})
}
