package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteSessionStart records the start of a usage session.
//
// This is the primary method for recording usage telemetry. The write is
// non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - sessionID: Unique identifier for the session
//   - resourceID: The resource being used
//   - readerID: The reader that validated the tap
//
// Example:
//
//	client.WriteSessionStart("ses-4f2a", "laser-cutter", "rdr-workshop")
func (c *Client) WriteSessionStart(sessionID, resourceID, readerID string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"usage_sessions",
		map[string]string{
			"resource_id": resourceID,
			"reader_id":   readerID,
			"event":       "started",
		},
		map[string]interface{}{
			"session_id": sessionID,
			"active":     1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteSessionEnd records the end of a usage session with its duration.
//
// Parameters:
//   - sessionID: Unique identifier for the session
//   - resourceID: The resource that was in use
//   - readerID: The reader that ended the session
//   - duration: How long the session lasted
func (c *Client) WriteSessionEnd(sessionID, resourceID, readerID string, duration time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"usage_sessions",
		map[string]string{
			"resource_id": resourceID,
			"reader_id":   readerID,
			"event":       "ended",
		},
		map[string]interface{}{
			"session_id":       sessionID,
			"active":           0,
			"duration_seconds": duration.Seconds(),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteReaderStatus records a reader connect/disconnect transition.
//
// Parameters:
//   - readerID: Reader identifier
//   - online: Whether the reader is now connected
func (c *Client) WriteReaderStatus(readerID string, online bool) {
	if !c.IsConnected() {
		return
	}

	onlineVal := 0
	if online {
		onlineVal = 1
	}

	point := write.NewPoint(
		"reader_status",
		map[string]string{
			"reader_id": readerID,
		},
		map[string]interface{}{
			"online": onlineVal,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "tapgate-01"},
//	    map[string]interface{}{"cpu_percent": 45.2, "memory_mb": 512})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
