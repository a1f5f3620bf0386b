package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tapgate-io/tapgate/internal/reader"
)

// sendBufferSize is the per-connection outbound frame buffer.
const sendBufferSize = 64

// defaultAttachmentRetry is used when the configured retry interval is
// missing or non-positive.
const defaultAttachmentRetry = 10 * time.Second

// connection binds one live socket to one state machine.
//
// Three goroutines serve it: readPump (socket reads), writePump (socket
// writes and pings), and eventLoop (the only goroutine that touches the
// machine, so events are processed strictly in arrival order).
type connection struct {
	gw       *Gateway
	readerID string
	ws       *websocket.Conn
	machine  *reader.Machine

	send  chan []byte
	tasks chan func(context.Context)

	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

func newConnection(g *Gateway, readerID string, ws *websocket.Conn) *connection {
	return &connection{
		gw:       g,
		readerID: readerID,
		ws:       ws,
		send:     make(chan []byte, sendBufferSize),
		tasks:    make(chan func(context.Context), sendBufferSize),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// close tears the connection down exactly once. The eventLoop observes
// done and delivers the machine's terminal shutdown; pumps exit on the
// closed socket.
func (c *connection) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		//nolint:errcheck // Socket is going away regardless
		c.ws.Close()
	})
}

// Send implements reader.Sender. Frames for a torn-down or backed-up
// connection are silently dropped; the machine never blocks on a slow
// or dead socket.
func (c *connection) Send(out reader.Outbound) {
	data, err := EncodeOutbound(out)
	if err != nil {
		c.gw.logger.Error("failed to encode outbound frame",
			"reader_id", c.readerID, "kind", string(out.Kind), "error", err)
		return
	}
	c.trySend(data)
}

func (c *connection) trySend(data []byte) {
	select {
	case <-c.done:
	case c.send <- data:
	default:
		c.gw.logger.Warn("outbound buffer full, dropping frame", "reader_id", c.readerID)
	}
}

// enqueue hands a machine call to the event loop. Calls for a torn-down
// connection are dropped.
func (c *connection) enqueue(fn func(context.Context)) {
	select {
	case <-c.done:
	case c.tasks <- fn:
	}
}

// eventLoop is the sole caller into the state machine. It runs the
// initial transition, dispatches queued events and backend commands in
// order, retries attachment lookups while the reader gates nothing, and
// delivers the terminal shutdown on teardown. stopped is closed only
// after the terminal shutdown has finished; a superseding connection
// waits on it so the old machine's session closes land first.
func (c *connection) eventLoop() {
	defer close(c.stopped)

	ctx := context.Background()

	retryInterval := time.Duration(c.gw.cfg.AttachmentRetry) * time.Second
	if retryInterval <= 0 {
		retryInterval = defaultAttachmentRetry
	}
	retry := time.NewTicker(retryInterval)
	defer retry.Stop()

	c.machine.Start(ctx)

	for {
		select {
		case <-c.done:
			c.machine.Shutdown(ctx)
			return
		case fn := <-c.tasks:
			fn(ctx)
		case <-retry.C:
			c.machine.RefreshAttachments(ctx)
		}
	}
}

// readPump reads frames from the socket until it fails, then tears the
// connection down and removes it from the registry.
func (c *connection) readPump() {
	defer func() {
		c.close()
		c.gw.unregister(c)
	}()

	cfg := c.gw.cfg
	c.ws.SetReadLimit(int64(cfg.MaxMessageSize))
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	pongWait := time.Duration(cfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	c.ws.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.gw.logger.Warn("reader read error", "reader_id", c.readerID, "error", err)
			} else {
				c.gw.logger.Debug("reader connection closed", "reader_id", c.readerID, "error", err)
			}
			return
		}
		// Any frame resets the read deadline, keeping the connection
		// alive even if the appliance firmware skips pong replies.
		//nolint:errcheck // Best-effort deadline reset
		c.ws.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		c.handleFrame(message)
	}
}

// handleFrame decodes one inbound frame and queues it for the event
// loop. A malformed frame is reported to the device and otherwise
// ignored; it never closes the connection.
func (c *connection) handleFrame(data []byte) {
	inbound, err := DecodeInbound(data)
	if err != nil {
		c.gw.logger.Warn("malformed frame from reader", "reader_id", c.readerID, "error", err)
		c.trySend(EncodeProtocolError(err.Error()))
		return
	}

	switch {
	case inbound.Event != nil:
		ev := *inbound.Event
		c.enqueue(func(ctx context.Context) {
			c.machine.OnEvent(ctx, ev)
		})
	case inbound.Response != nil:
		resp := *inbound.Response
		c.enqueue(func(ctx context.Context) {
			c.machine.OnResponse(ctx, resp)
		})
	}
}

// writePump is the sole socket writer: queued frames plus protocol
// pings on an interval.
func (c *connection) writePump() {
	pingInterval := time.Duration(c.gw.cfg.PingInterval) * time.Second
	writeWait := time.Duration(c.gw.cfg.PongTimeout) * time.Second
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			//nolint:errcheck // Best-effort close message
			c.ws.WriteMessage(websocket.CloseMessage, nil)
			return
		case message := <-c.send:
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
