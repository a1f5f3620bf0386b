package mqtt

import "fmt"

// Topic prefixes for the TapGate MQTT hierarchy.
//
// All topics use the flat scheme: tapgate/{category}/{id}/{event}.
// The booking/billing backend subscribes to these to mirror live usage
// state. TapGate mostly publishes; the one inbound leg is the reader
// stop command topic, which lets the backend end a session remotely.
const (
	// TopicPrefix is the base for all TapGate topics.
	TopicPrefix = "tapgate"

	// TopicPrefixSession is the base for usage-session events.
	TopicPrefixSession = "tapgate/session"

	// TopicPrefixResource is the base for retained resource state.
	TopicPrefixResource = "tapgate/resource"

	// TopicPrefixReader is the base for reader connectivity events.
	TopicPrefixReader = "tapgate/reader"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "tapgate/system"
)

// Topics provides builders for TapGate MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	t := topics.SessionStarted("laser-cutter")
//	// Returns: "tapgate/session/laser-cutter/started"
type Topics struct{}

// SessionStarted returns the topic for session-start announcements.
//
// Example: tapgate/session/laser-cutter/started
func (Topics) SessionStarted(resourceID string) string {
	return fmt.Sprintf("%s/%s/started", TopicPrefixSession, resourceID)
}

// SessionEnded returns the topic for session-end announcements.
//
// Example: tapgate/session/laser-cutter/ended
func (Topics) SessionEnded(resourceID string) string {
	return fmt.Sprintf("%s/%s/ended", TopicPrefixSession, resourceID)
}

// ResourceInUse returns the retained topic carrying a resource's current
// in-use flag. Published retained so late subscribers see live state.
//
// Example: tapgate/resource/laser-cutter/in_use
func (Topics) ResourceInUse(resourceID string) string {
	return fmt.Sprintf("%s/%s/in_use", TopicPrefixResource, resourceID)
}

// ReaderStatus returns the retained topic carrying a reader's
// online/offline status.
//
// Example: tapgate/reader/rdr-workshop/status
func (Topics) ReaderStatus(readerID string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefixReader, readerID)
}

// ReaderStop returns the command topic on which the backend asks
// TapGate to end the session on a specific reader.
//
// Example: tapgate/reader/rdr-workshop/stop
func (Topics) ReaderStop(readerID string) string {
	return fmt.Sprintf("%s/%s/stop", TopicPrefixReader, readerID)
}

// SystemStatus returns the system status topic. The broker publishes
// "offline" here via LWT when TapGate drops off unexpectedly.
//
// Example: tapgate/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllSessionEvents returns a pattern matching all session announcements.
//
// Pattern: tapgate/session/+/+
func (Topics) AllSessionEvents() string {
	return fmt.Sprintf("%s/+/+", TopicPrefixSession)
}

// AllResourceStates returns a pattern matching all retained resource flags.
//
// Pattern: tapgate/resource/+/in_use
func (Topics) AllResourceStates() string {
	return fmt.Sprintf("%s/+/in_use", TopicPrefixResource)
}

// AllReaderStatuses returns a pattern matching all reader status topics.
//
// Pattern: tapgate/reader/+/status
func (Topics) AllReaderStatuses() string {
	return fmt.Sprintf("%s/+/status", TopicPrefixReader)
}

// AllReaderStops returns a pattern matching every reader stop command.
//
// Pattern: tapgate/reader/+/stop
func (Topics) AllReaderStops() string {
	return fmt.Sprintf("%s/+/stop", TopicPrefixReader)
}

// AllTopics returns a pattern matching all TapGate topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: tapgate/#
func (Topics) AllTopics() string {
	return "tapgate/#"
}
