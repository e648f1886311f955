package apiclient

import (
	"fmt"
	"net/url"
	"time"
)

// Call represents a call snapshot returned by the API.
type Call struct {
	CallID           string    `json:"call_id"`
	State            string    `json:"state"`
	ReceivedCount    int64     `json:"received_count"`
	ExpectedTotal    *int64    `json:"expected_total,omitempty"`
	ExpectedNext     int64     `json:"expected_next"`
	MissingSequences []int64   `json:"missing_sequences"`
	Transcription    *string   `json:"transcription,omitempty"`
	Sentiment        *string   `json:"sentiment,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// IngestPacketRequest is the request to submit one audio packet.
type IngestPacketRequest struct {
	Sequence  int64   `json:"sequence"`
	Data      string  `json:"data"`
	Timestamp float64 `json:"timestamp"`
}

// PacketAck is the acknowledgment for a submitted packet.
//
// When the server commits the packet within its ack budget, the tracking
// fields (TotalReceived, MissingSequences, Duplicate) are populated;
// otherwise only Status, CallID and Sequence are meaningful and the packet
// is applied asynchronously.
type PacketAck struct {
	Status           string  `json:"status"`
	CallID           string  `json:"call_id"`
	Sequence         int64   `json:"sequence"`
	TotalReceived    int64   `json:"total_received"`
	MissingSequences []int64 `json:"missing_sequences"`
	Duplicate        bool    `json:"duplicate"`
}

// CompleteCallRequest is the request to signal call completion.
type CompleteCallRequest struct {
	TotalPackets int64 `json:"total_packets"`
}

// CompleteCallResponse is the acknowledgment for a completion signal.
//
// Status is "accepted" when the completion transitioned the call, or
// "already_completed"/"already_terminal" for repeated signals.
type CompleteCallResponse struct {
	Status               string `json:"status"`
	CallID               string `json:"call_id"`
	ExpectedTotalPackets int64  `json:"expected_total_packets"`
}

// ListCalls returns call snapshots, newest first.
// limit and offset paginate the result; zero values mean server defaults.
func (c *Client) ListCalls(limit, offset int) ([]Call, error) {
	path := "/api/v1/calls"
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", fmt.Sprintf("%d", limit))
	}
	if offset > 0 {
		query.Set("offset", fmt.Sprintf("%d", offset))
	}
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var calls []Call
	if err := c.get(path, &calls); err != nil {
		return nil, err
	}
	return calls, nil
}

// GetCall returns the snapshot of a single call.
func (c *Client) GetCall(callID string) (*Call, error) {
	var result Call
	if err := c.get(fmt.Sprintf("/api/v1/calls/%s", url.PathEscape(callID)), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// IngestPacket submits one audio packet for a call.
func (c *Client) IngestPacket(callID string, req *IngestPacketRequest) (*PacketAck, error) {
	var ack PacketAck
	if err := c.post(fmt.Sprintf("/api/v1/calls/%s/packets", url.PathEscape(callID)), req, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// CompleteCall signals that the PBX finished the call.
func (c *Client) CompleteCall(callID string, totalPackets int64) (*CompleteCallResponse, error) {
	var result CompleteCallResponse
	req := &CompleteCallRequest{TotalPackets: totalPackets}
	if err := c.post(fmt.Sprintf("/api/v1/calls/%s/complete", url.PathEscape(callID)), req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
