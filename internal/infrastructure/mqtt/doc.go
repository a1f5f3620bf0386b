// Package mqtt provides MQTT client connectivity for TapGate.
//
// This package manages:
//   - Connection to Mosquitto broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// TapGate uses MQTT as an outbound announcement bus: session start/end
// events and retained resource/reader state are published for the
// booking and billing backend to consume. The broker (Mosquitto)
// decouples the protocol engine from those consumers.
//
//	TapGate ↔ MQTT Broker ↔ booking/billing backend
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Performance Characteristics
//
//   - Connection: <1 second to local broker
//   - Publish latency: <10ms for QoS 1 to local broker
//   - Reconnect: Exponential backoff 1s-60s with jitter
//   - Message throughput: Broker-limited (typically 10K+ msg/sec)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Announce a session start
//	topic := mqtt.Topics{}.SessionStarted("laser-cutter")
//	client.Publish(topic, []byte(`{"card_uid":"04a1b2c3"}`), 1, false)
package mqtt
