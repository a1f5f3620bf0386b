package gateway

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tapgate-io/tapgate/internal/infrastructure/mqtt"
	"github.com/tapgate-io/tapgate/internal/reader"
)

// Subscriber registers a handler on the message bus. Satisfied by the
// MQTT client.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// SubscribeCommands wires the inbound command leg: the booking backend
// publishes to tapgate/reader/{id}/stop to end the session on a reader,
// mirroring the REST stop endpoint for backends that already speak MQTT.
func (g *Gateway) SubscribeCommands(sub Subscriber) error {
	topic := mqtt.Topics{}.AllReaderStops()
	if err := sub.Subscribe(topic, 1, g.handleStopCommand); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}
	g.logger.Info("listening for stop commands", "topic", topic)
	return nil
}

// handleStopCommand ends the session on the reader named in the topic.
// The payload is ignored; the topic carries everything the command needs.
func (g *Gateway) handleStopCommand(topic string, _ []byte) error {
	readerID, err := readerIDFromStopTopic(topic)
	if err != nil {
		return err
	}

	if err := g.StopSession(readerID); err != nil {
		if errors.Is(err, reader.ErrReaderNotFound) {
			// Not an error worth surfacing: the backend may race a
			// disconnect, and the reader has no session to end anyway.
			g.logger.Warn("stop command for reader that is not connected", "reader_id", readerID)
			return nil
		}
		return err
	}

	g.logger.Info("stop command dispatched", "reader_id", readerID)
	return nil
}

func readerIDFromStopTopic(topic string) (string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0]+"/"+parts[1] != mqtt.TopicPrefixReader || parts[3] != "stop" || parts[2] == "" {
		return "", fmt.Errorf("malformed stop command topic %q", topic)
	}
	return parts[2], nil
}
