package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tapgate-io/tapgate/internal/infrastructure/config"
	"github.com/tapgate-io/tapgate/internal/infrastructure/logging"
	"github.com/tapgate-io/tapgate/internal/infrastructure/mqtt"
	"github.com/tapgate-io/tapgate/internal/reader"
)

// Announcer publishes reader connectivity to the message bus so the
// booking backend can mirror live reader state. Retained so a late
// subscriber sees the current status immediately.
type Announcer interface {
	PublishRetained(topic string, payload []byte) error
}

// Telemetry records reader connectivity transitions.
type Telemetry interface {
	WriteReaderStatus(readerID string, online bool)
}

// upgrader configures the WebSocket upgrader. Readers are appliances,
// not browsers, so origin checking does not apply.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// Gateway owns all live reader connections. It authenticates readers at
// connect time, binds one state machine per connection, and enforces
// last-writer-wins when a reader ID connects twice.
type Gateway struct {
	cfg        config.GatewayConfig
	machineCfg reader.MachineConfig
	logger     *logging.Logger

	repo        reader.Repository
	cards       reader.CardDirectory
	attachments reader.Attachments
	deriver     reader.KeyDeriver

	// Optional collaborators; nil disables the corresponding leg.
	announcer Announcer
	telemetry Telemetry

	mu    sync.Mutex
	conns map[string]*connection
}

// New creates a gateway. announcer and telemetry may be nil.
func New(cfg config.GatewayConfig, repo reader.Repository, cards reader.CardDirectory, attachments reader.Attachments, deriver reader.KeyDeriver, announcer Announcer, telemetry Telemetry, logger *logging.Logger) *Gateway {
	machineCfg := reader.DefaultMachineConfig()
	if cfg.DisplayErrorDuration > 0 {
		machineCfg.DisplayErrorSeconds = cfg.DisplayErrorDuration
	}

	return &Gateway{
		cfg:         cfg,
		machineCfg:  machineCfg,
		logger:      logger.With("component", "gateway"),
		repo:        repo,
		cards:       cards,
		attachments: attachments,
		deriver:     deriver,
		announcer:   announcer,
		telemetry:   telemetry,
		conns:       make(map[string]*connection),
	}
}

// Run blocks until the context is cancelled, then closes every live
// connection so the per-connection goroutines exit cleanly.
func (g *Gateway) Run(ctx context.Context) {
	<-ctx.Done()
	g.closeAll()
}

// HandleWS authenticates the reader and upgrades the connection.
//
// Credentials travel as query parameters (reader_id, token, optional
// firmware) and are verified against the stored token hash before the
// upgrade; a reader that fails authentication never reaches a state
// machine.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	readerID := r.URL.Query().Get("reader_id")
	token := r.URL.Query().Get("token")
	if readerID == "" || token == "" {
		writeAuthError(w, "reader_id and token query parameters are required")
		return
	}

	rd, err := reader.Authenticate(r.Context(), g.repo, readerID, token)
	if err != nil {
		g.logger.Warn("reader authentication failed", "reader_id", readerID, "error", err)
		writeAuthError(w, "invalid reader credentials")
		return
	}

	firmware := r.URL.Query().Get("firmware")
	if err := g.repo.TouchSeen(r.Context(), rd.ID, firmware, time.Now().UTC()); err != nil {
		g.logger.Warn("failed to record reader connect", "reader_id", rd.ID, "error", err)
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error("websocket upgrade failed", "reader_id", rd.ID, "error", err)
		return
	}

	c := newConnection(g, rd.ID, ws)
	c.machine = reader.NewMachine(rd.ID, c, g.cards, g.attachments, g.deriver, g.machineCfg, g.logger)

	g.register(c)
	g.announceStatus(rd.ID, true)

	go c.writePump()
	go c.eventLoop()
	go c.readPump()
}

// EnrollNext arms one-shot enrollment on a connected reader: the next
// card tapped is registered to ownerUserID. Returns ErrNoEnrollment if
// the reader has no live connection.
func (g *Gateway) EnrollNext(readerID, ownerUserID, label string) error {
	c := g.lookup(readerID)
	if c == nil {
		return reader.ErrNoEnrollment
	}

	window := time.Duration(g.cfg.EnrollWindow) * time.Second
	c.enqueue(func(_ context.Context) {
		c.machine.ArmEnrollment(ownerUserID, label, window)
	})
	return nil
}

// StopSession injects a backend stop command for a connected reader,
// ending its active sessions as if the card had been removed. Returns
// ErrReaderNotFound if the reader has no live connection.
func (g *Gateway) StopSession(readerID string) error {
	c := g.lookup(readerID)
	if c == nil {
		return reader.ErrReaderNotFound
	}

	c.enqueue(func(ctx context.Context) {
		c.machine.OnEvent(ctx, reader.Event{Kind: reader.EventStop})
	})
	return nil
}

// Connected reports whether a reader has a live connection.
func (g *Gateway) Connected(readerID string) bool {
	return g.lookup(readerID) != nil
}

// ConnectionCount returns the number of live reader connections.
func (g *Gateway) ConnectionCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.conns)
}

// register installs a connection in the registry. An existing
// connection for the same reader is superseded and closed first, and
// register does not return until the old machine has finished its
// terminal shutdown: the new machine must not start while a stale
// session close can still land on a shared resource.
func (g *Gateway) register(c *connection) {
	g.mu.Lock()
	old := g.conns[c.readerID]
	g.conns[c.readerID] = c
	g.mu.Unlock()

	if old != nil {
		g.logger.Info("reader reconnected, superseding old connection", "reader_id", c.readerID)
		old.close()
		<-old.stopped
	}
	g.logger.Info("reader connected", "reader_id", c.readerID)
}

// unregister removes a connection from the registry. A superseded
// connection is already replaced in the map, so it must not announce
// the reader offline over the new connection's online status.
func (g *Gateway) unregister(c *connection) {
	g.mu.Lock()
	current := g.conns[c.readerID] == c
	if current {
		delete(g.conns, c.readerID)
	}
	g.mu.Unlock()

	if current {
		g.logger.Info("reader disconnected", "reader_id", c.readerID)
		g.announceStatus(c.readerID, false)
	}
}

func (g *Gateway) lookup(readerID string) *connection {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.conns[readerID]
}

func (g *Gateway) closeAll() {
	g.mu.Lock()
	conns := make([]*connection, 0, len(g.conns))
	for _, c := range g.conns {
		conns = append(conns, c)
	}
	g.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
}

// announceStatus publishes a reader online/offline transition to the
// bus and the telemetry store. Both legs are best-effort.
func (g *Gateway) announceStatus(readerID string, online bool) {
	if g.announcer != nil {
		payload, err := json.Marshal(map[string]any{
			"reader_id": readerID,
			"online":    online,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		if err == nil {
			if err := g.announcer.PublishRetained(mqtt.Topics{}.ReaderStatus(readerID), payload); err != nil {
				g.logger.Warn("reader status publish failed", "reader_id", readerID, "error", err)
			}
		}
	}
	if g.telemetry != nil {
		g.telemetry.WriteReaderStatus(readerID, online)
	}
}

func writeAuthError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	//nolint:errcheck // Best-effort error body
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
