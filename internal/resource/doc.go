// Package resource tracks the resources readers gate access to and the
// usage sessions started and ended by card taps.
//
// A resource is anything bookable: a laser cutter, a 3D printer, a
// meeting room door. Reader→resource attachments are a read-mostly
// mapping mutated by the CRUD surface and queried by the reader state
// machine. Usage sessions are the billing-relevant record: one row per
// period a resource was in use, with the card UID that started it.
//
// Session starts and ends are fanned out in three directions:
//   - persisted to SQLite (the authoritative record)
//   - announced over MQTT for the booking/billing backend
//   - written to InfluxDB as usage telemetry
//
// The MQTT and InfluxDB legs are optional and best-effort; a broker
// outage never blocks a tap.
package resource
