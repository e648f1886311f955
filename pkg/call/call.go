// Package call holds the domain model of the ingest service: the Call and
// Packet entities, the lifecycle state machine, the packet-sequence tracker,
// and the lifecycle events fanned out to subscribers.
package call

import (
	"fmt"
	"time"
)

// Call is one logical PBX interaction, keyed by the PBX-assigned call ID.
//
// A Call is created implicitly by the first packet for its ID and is mutated
// only by the call engine under the store's per-call exclusive lock. The
// tracking fields (ReceivedCount, ExpectedNext, Missing) describe how much of
// the packet stream has been reconstructed so far.
type Call struct {
	ID            string    `gorm:"primaryKey;size:255" json:"call_id"`
	State         State     `gorm:"not null;size:32;index" json:"state"`
	ReceivedCount int64     `gorm:"not null;default:0" json:"received_count"`
	ExpectedTotal *int64    `json:"expected_total,omitempty"`
	ExpectedNext  int64     `gorm:"not null;default:0" json:"expected_next"`
	Missing       []int64   `gorm:"serializer:json;type:text" json:"missing_sequences"`
	Transcription *string   `gorm:"type:text" json:"transcription,omitempty"`
	Sentiment     *string   `gorm:"size:32" json:"sentiment,omitempty"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for Call.
func (Call) TableName() string {
	return "calls"
}

// Transition moves the call to the target state, validating the edge against
// the lifecycle graph. The caller must hold the call's exclusive lock.
func (c *Call) Transition(to State) error {
	if !c.State.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.State, to)
	}
	c.State = to
	return nil
}

// MissingSequences returns the missing set, never nil, for wire encoding.
func (c *Call) MissingSequences() []int64 {
	if c.Missing == nil {
		return []int64{}
	}
	return c.Missing
}

// Packet is one accepted unit of audio metadata within a call.
//
// Timestamp is the PBX-side capture time in fractional seconds; ReceivedAt is
// the ingest-side arrival time. The (CallID, Sequence) pair is unique in
// every store backend.
type Packet struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	CallID     string    `gorm:"not null;size:255;uniqueIndex:idx_packets_call_sequence" json:"call_id"`
	Sequence   int64     `gorm:"not null;uniqueIndex:idx_packets_call_sequence" json:"sequence"`
	Data       string    `gorm:"not null;type:text" json:"data"`
	Timestamp  float64   `gorm:"not null" json:"timestamp"`
	ReceivedAt time.Time `gorm:"autoCreateTime" json:"received_at"`
}

// TableName returns the table name for Packet.
func (Packet) TableName() string {
	return "packets"
}

// AllModels returns all GORM models for auto-migration.
func AllModels() []any {
	return []any{
		&Call{},
		&Packet{},
	}
}
