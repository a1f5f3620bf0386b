package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tapgate-io/tapgate/internal/reader"
)

// Frame type tags on the reader wire protocol. Inbound frames carry a
// discriminating "type" plus the fields that type needs; outbound
// frames mirror the machine's command kinds.
const (
	FrameCardDetected = "card_detected"
	FrameCardRemoved  = "card_removed"
	FrameResponse     = "response"
	FrameError        = "error"
)

// inboundFrame is the wire shape of a device-to-backend message.
type inboundFrame struct {
	Type    string `json:"type"`
	CardUID string `json:"card_uid,omitempty"`
	ID      string `json:"id,omitempty"`
	Status  string `json:"status,omitempty"`
}

// outboundFrame is the wire shape of a backend-to-device message.
type outboundFrame struct {
	Type            string `json:"type"`
	Message         string `json:"message,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
	ResourceID      string `json:"resource_id,omitempty"`
	Timestamp       string `json:"timestamp,omitempty"`
}

// Inbound is one decoded device message: either an event for the state
// machine or a response correlating to a prior request, never both.
type Inbound struct {
	Event    *reader.Event
	Response *reader.Response
}

// DecodeInbound parses a raw frame into a typed inbound message.
//
// An error here is a protocol framing error: the device is told and the
// connection stays open. A syntactically valid frame with an event type
// the machine does not recognise is NOT an error — it decodes into an
// event the machine will log and ignore, so out-of-order or unknown
// hardware events cannot desynchronize the connection.
func DecodeInbound(data []byte) (Inbound, error) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return Inbound{}, fmt.Errorf("invalid JSON frame: %w", err)
	}
	if frame.Type == "" {
		return Inbound{}, fmt.Errorf("frame missing type")
	}

	switch frame.Type {
	case FrameCardDetected:
		if frame.CardUID == "" {
			return Inbound{}, fmt.Errorf("%s frame missing card_uid", FrameCardDetected)
		}
		return Inbound{Event: &reader.Event{Kind: reader.EventCardDetected, CardUID: frame.CardUID}}, nil

	case FrameResponse:
		return Inbound{Response: &reader.Response{RequestID: frame.ID, Status: frame.Status}}, nil

	default:
		// card_removed plus anything unrecognised: carried as-is, the
		// machine decides whether the kind is valid for its state.
		return Inbound{Event: &reader.Event{Kind: reader.EventKind(frame.Type)}}, nil
	}
}

// EncodeOutbound serializes a machine command for the wire.
func EncodeOutbound(out reader.Outbound) ([]byte, error) {
	return json.Marshal(outboundFrame{
		Type:            string(out.Kind),
		Message:         out.Message,
		DurationSeconds: out.DurationSeconds,
		ResourceID:      out.ResourceID,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
	})
}

// EncodeProtocolError builds the frame sent back when an inbound frame
// could not be decoded.
func EncodeProtocolError(message string) []byte {
	data, err := json.Marshal(outboundFrame{
		Type:      FrameError,
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return []byte(`{"type":"error"}`)
	}
	return data
}
