package reader

// EventKind discriminates inbound device events.
type EventKind string

// Inbound event kinds. CardDetected and CardRemoved originate from the
// appliance hardware; Stop is a backend command injected through the
// same per-connection queue so ordering holds.
const (
	EventCardDetected EventKind = "card_detected"
	EventCardRemoved  EventKind = "card_removed"
	EventStop         EventKind = "stop"
)

// Event is one inbound device event.
type Event struct {
	Kind EventKind

	// CardUID is set for EventCardDetected.
	CardUID string
}

// Response is a device reply correlating to a prior request.
type Response struct {
	RequestID string
	Status    string
}

// OutboundKind discriminates commands sent to the appliance.
type OutboundKind string

// Outbound command kinds.
const (
	OutDisplayError   OutboundKind = "display_error"
	OutDisplayIdle    OutboundKind = "display_idle"
	OutSessionStarted OutboundKind = "session_started"
	OutSessionEnded   OutboundKind = "session_ended"
)

// Outbound is one command for the appliance. Only the fields relevant to
// the kind are set.
type Outbound struct {
	Kind OutboundKind `json:"kind"`

	// Message and DurationSeconds apply to OutDisplayError.
	Message         string `json:"message,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`

	// ResourceID applies to OutSessionStarted and OutSessionEnded.
	ResourceID string `json:"resource_id,omitempty"`
}

// Sender is the gateway's write path. Sends on a torn-down connection
// are silently dropped by the implementation.
type Sender interface {
	Send(out Outbound)
}
