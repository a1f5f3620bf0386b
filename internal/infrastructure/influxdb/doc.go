// Package influxdb provides InfluxDB connectivity for TapGate.
//
// It wraps the official influxdb-client-go v2 library with TapGate-specific
// patterns for connection management, telemetry writing, and health monitoring.
//
// # Purpose
//
// This package handles time-series data storage for:
//   - Usage-session telemetry (starts, ends, durations)
//   - Reader connectivity history
//
// The billing side of the platform reads these series to reconcile
// invoiced usage against what actually happened at the readers.
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "tapgate",
//	    Bucket: "usage",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Record a session start
//	client.WriteSessionStart("ses-4f2a", "laser-cutter", "rdr-workshop")
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a callback.
// Connection and health check errors are returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size, flush_interval).
// This reduces network overhead for high-frequency telemetry data.
package influxdb
