package gateway

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tapgate-io/tapgate/internal/card"
	"github.com/tapgate-io/tapgate/internal/infrastructure/config"
	"github.com/tapgate-io/tapgate/internal/infrastructure/logging"
	"github.com/tapgate-io/tapgate/internal/keys"
	"github.com/tapgate-io/tapgate/internal/reader"
	"github.com/tapgate-io/tapgate/internal/resource"
)

// fakeRepo is an in-memory reader.Repository.
type fakeRepo struct {
	mu      sync.Mutex
	readers map[string]*reader.Reader
	touched int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{readers: make(map[string]*reader.Reader)}
}

func (r *fakeRepo) GetByID(_ context.Context, id string) (*reader.Reader, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rd, ok := r.readers[id]
	if !ok {
		return nil, reader.ErrReaderNotFound
	}
	copied := *rd
	return &copied, nil
}

func (r *fakeRepo) List(_ context.Context) ([]reader.Reader, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]reader.Reader, 0, len(r.readers))
	for _, rd := range r.readers {
		out = append(out, *rd)
	}
	return out, nil
}

func (r *fakeRepo) Create(_ context.Context, rd *reader.Reader) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.readers[rd.ID]; ok {
		return reader.ErrReaderExists
	}
	copied := *rd
	r.readers[rd.ID] = &copied
	return nil
}

func (r *fakeRepo) SetActive(_ context.Context, id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rd, ok := r.readers[id]
	if !ok {
		return reader.ErrReaderNotFound
	}
	rd.IsActive = active
	return nil
}

func (r *fakeRepo) TouchSeen(_ context.Context, id, _ string, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.readers[id]; !ok {
		return reader.ErrReaderNotFound
	}
	r.touched++
	return nil
}

// fakeDirectory is an in-memory card directory safe for concurrent use.
type fakeDirectory struct {
	mu       sync.Mutex
	enabled  map[string]bool
	enrolled []string
}

func newFakeDirectory(enabledUIDs ...string) *fakeDirectory {
	d := &fakeDirectory{enabled: make(map[string]bool)}
	for _, uid := range enabledUIDs {
		d.enabled[uid] = true
	}
	return d
}

func (d *fakeDirectory) IsEnabled(_ context.Context, uid string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled[uid], nil
}

func (d *fakeDirectory) Upsert(_ context.Context, uid, ownerUserID, label string) (*card.Card, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled[uid] = true
	d.enrolled = append(d.enrolled, uid)
	return &card.Card{ID: "card-test", UID: uid, OwnerUserID: ownerUserID, Label: label}, nil
}

func (d *fakeDirectory) enrolledUIDs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.enrolled...)
}

// fakeAttachments is an in-memory attachment collaborator safe for
// concurrent use. An endGate, when set, holds NotifySessionEnd open
// until the gate channel is closed.
type fakeAttachments struct {
	mu        sync.Mutex
	resources []resource.Resource
	starts    []string
	ends      []string
	endGate   chan struct{}
}

func (a *fakeAttachments) GetAttachedResources(_ context.Context, _ string) ([]resource.Resource, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]resource.Resource(nil), a.resources...), nil
}

func (a *fakeAttachments) NotifySessionStart(_ context.Context, resourceID, _, _ string) (*resource.UsageSession, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.starts = append(a.starts, resourceID)
	return &resource.UsageSession{ID: "ses-test", ResourceID: resourceID}, nil
}

func (a *fakeAttachments) NotifySessionEnd(_ context.Context, resourceID string) (*resource.UsageSession, error) {
	a.mu.Lock()
	gate := a.endGate
	a.mu.Unlock()
	if gate != nil {
		<-gate
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.ends = append(a.ends, resourceID)
	return &resource.UsageSession{ID: "ses-test", ResourceID: resourceID}, nil
}

// blockEnds makes NotifySessionEnd block until the returned gate is
// closed.
func (a *fakeAttachments) blockEnds() chan struct{} {
	gate := make(chan struct{})
	a.mu.Lock()
	a.endGate = gate
	a.mu.Unlock()
	return gate
}

func (a *fakeAttachments) setResources(res ...resource.Resource) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resources = res
}

func (a *fakeAttachments) startCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.starts)
}

func (a *fakeAttachments) endCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.ends)
}

// fakeAnnouncer records retained status publications.
type fakeAnnouncer struct {
	mu        sync.Mutex
	published []statusPublication
}

type statusPublication struct {
	topic   string
	payload string
}

func (a *fakeAnnouncer) PublishRetained(topic string, payload []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.published = append(a.published, statusPublication{topic: topic, payload: string(payload)})
	return nil
}

func (a *fakeAnnouncer) publications() []statusPublication {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]statusPublication(nil), a.published...)
}

func testDeriver(t *testing.T) *keys.Service {
	t.Helper()
	master, err := hex.DecodeString("00112233445566778899aabbccddeeff")
	if err != nil {
		t.Fatalf("decoding master secret: %v", err)
	}
	svc, err := keys.New(master)
	if err != nil {
		t.Fatalf("creating key service: %v", err)
	}
	return svc
}

func testGatewayConfig() config.GatewayConfig {
	return config.GatewayConfig{
		Path:                 "/api/v1/readers/ws",
		MaxMessageSize:       8192,
		PingInterval:         30,
		PongTimeout:          10,
		AttachmentRetry:      1,
		DisplayErrorDuration: 5,
		EnrollWindow:         60,
	}
}

// testGateway provisions one reader "rdr-1" and returns the gateway, a
// test server handling the WebSocket path, and the reader's token.
func testGateway(t *testing.T, dir *fakeDirectory, att *fakeAttachments, announcer Announcer) (*Gateway, *httptest.Server, string) {
	t.Helper()

	repo := newFakeRepo()
	token, hash, err := reader.NewProvisioningToken()
	if err != nil {
		t.Fatalf("generating token: %v", err)
	}
	if err := repo.Create(context.Background(), &reader.Reader{
		ID:        "rdr-1",
		Name:      "Front door reader",
		TokenHash: hash,
		IsActive:  true,
	}); err != nil {
		t.Fatalf("creating reader: %v", err)
	}

	gw := New(testGatewayConfig(), repo, dir, att, testDeriver(t), announcer, nil, logging.Default())
	srv := httptest.NewServer(http.HandlerFunc(gw.HandleWS))
	t.Cleanup(srv.Close)
	return gw, srv, token
}

func dialReader(t *testing.T, srv *httptest.Server, readerID, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?reader_id=" + readerID + "&token=" + token
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialing gateway: %v", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readFrame(t *testing.T, ws *websocket.Conn) outboundFrame {
	t.Helper()
	if err := ws.SetReadDeadline(time.Now().Add(3 * time.Second)); err != nil {
		t.Fatalf("setting read deadline: %v", err)
	}
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("reading frame: %v", err)
	}
	var frame outboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("decoding frame %q: %v", data, err)
	}
	return frame
}

func sendFrame(t *testing.T, ws *websocket.Conn, raw string) {
	t.Helper()
	if err := ws.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		t.Fatalf("writing frame: %v", err)
	}
}

func TestHandleWS_MissingCredentials(t *testing.T) {
	_, srv, _ := testGateway(t, newFakeDirectory(), &fakeAttachments{}, nil)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if !errors.Is(err, websocket.ErrBadHandshake) {
		t.Fatalf("expected handshake rejection, got %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}

func TestHandleWS_InvalidToken(t *testing.T) {
	_, srv, _ := testGateway(t, newFakeDirectory(), &fakeAttachments{}, nil)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?reader_id=rdr-1&token=wrong"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if !errors.Is(err, websocket.ErrBadHandshake) {
		t.Fatalf("expected handshake rejection, got %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}

func TestHandleWS_UnknownReader(t *testing.T) {
	_, srv, token := testGateway(t, newFakeDirectory(), &fakeAttachments{}, nil)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?reader_id=rdr-ghost&token=" + token
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if !errors.Is(err, websocket.ErrBadHandshake) {
		t.Fatalf("expected handshake rejection, got %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}

func TestHandleWS_IdleOnConnect(t *testing.T) {
	att := &fakeAttachments{}
	att.setResources(resource.Resource{ID: "res-laser", Name: "laser-cutter"})
	gw, srv, token := testGateway(t, newFakeDirectory(), att, nil)

	ws := dialReader(t, srv, "rdr-1", token)

	frame := readFrame(t, ws)
	if frame.Type != string(reader.OutDisplayIdle) {
		t.Errorf("first frame = %q, want display_idle", frame.Type)
	}
	if !gw.Connected("rdr-1") {
		t.Error("reader should be registered as connected")
	}
}

func TestHandleWS_NoResourcesAttached(t *testing.T) {
	_, srv, token := testGateway(t, newFakeDirectory(), &fakeAttachments{}, nil)

	ws := dialReader(t, srv, "rdr-1", token)

	frame := readFrame(t, ws)
	if frame.Type != string(reader.OutDisplayError) {
		t.Fatalf("first frame = %q, want display_error", frame.Type)
	}
	if frame.Message != "Reader not assigned to a resource" {
		t.Errorf("message = %q", frame.Message)
	}
}

func TestAttachmentRetryPromotesReader(t *testing.T) {
	att := &fakeAttachments{}
	_, srv, token := testGateway(t, newFakeDirectory(), att, nil)

	ws := dialReader(t, srv, "rdr-1", token)
	if frame := readFrame(t, ws); frame.Type != string(reader.OutDisplayError) {
		t.Fatalf("first frame = %q, want display_error", frame.Type)
	}

	// Attach a resource after connect; the retry ticker should pick it
	// up and move the reader to the idle display.
	att.setResources(resource.Resource{ID: "res-laser", Name: "laser-cutter"})

	frame := readFrame(t, ws)
	if frame.Type != string(reader.OutDisplayIdle) {
		t.Errorf("frame after attach = %q, want display_idle", frame.Type)
	}
}

func TestTapLifecycle(t *testing.T) {
	att := &fakeAttachments{}
	att.setResources(resource.Resource{ID: "res-laser", Name: "laser-cutter"})
	dir := newFakeDirectory("04a1b2c3")
	_, srv, token := testGateway(t, dir, att, nil)

	ws := dialReader(t, srv, "rdr-1", token)
	if frame := readFrame(t, ws); frame.Type != string(reader.OutDisplayIdle) {
		t.Fatalf("first frame = %q, want display_idle", frame.Type)
	}

	sendFrame(t, ws, `{"type":"card_detected","card_uid":"04a1b2c3"}`)
	frame := readFrame(t, ws)
	if frame.Type != string(reader.OutSessionStarted) {
		t.Fatalf("frame after tap = %q, want session_started", frame.Type)
	}
	if frame.ResourceID != "res-laser" {
		t.Errorf("resource_id = %q, want res-laser", frame.ResourceID)
	}

	sendFrame(t, ws, `{"type":"card_removed"}`)
	if frame := readFrame(t, ws); frame.Type != string(reader.OutSessionEnded) {
		t.Fatalf("frame after removal = %q, want session_ended", frame.Type)
	}
	if frame := readFrame(t, ws); frame.Type != string(reader.OutDisplayIdle) {
		t.Errorf("final frame = %q, want display_idle", frame.Type)
	}
}

func TestTapLifecycle_DisabledCard(t *testing.T) {
	att := &fakeAttachments{}
	att.setResources(resource.Resource{ID: "res-laser", Name: "laser-cutter"})
	_, srv, token := testGateway(t, newFakeDirectory(), att, nil)

	ws := dialReader(t, srv, "rdr-1", token)
	if frame := readFrame(t, ws); frame.Type != string(reader.OutDisplayIdle) {
		t.Fatalf("first frame = %q, want display_idle", frame.Type)
	}

	sendFrame(t, ws, `{"type":"card_detected","card_uid":"04a1b2c3"}`)
	frame := readFrame(t, ws)
	if frame.Type != string(reader.OutDisplayError) {
		t.Fatalf("frame after tap = %q, want display_error", frame.Type)
	}
	if frame.Message != "Card not authorised" {
		t.Errorf("message = %q", frame.Message)
	}
	// Reader returns to the idle display, no session started.
	if frame := readFrame(t, ws); frame.Type != string(reader.OutDisplayIdle) {
		t.Errorf("frame after rejection = %q, want display_idle", frame.Type)
	}
	if n := att.startCount(); n != 0 {
		t.Errorf("unexpected session starts: %d", n)
	}
}

func TestMalformedFrameKeepsConnectionOpen(t *testing.T) {
	att := &fakeAttachments{}
	att.setResources(resource.Resource{ID: "res-laser", Name: "laser-cutter"})
	dir := newFakeDirectory("04a1b2c3")
	_, srv, token := testGateway(t, dir, att, nil)

	ws := dialReader(t, srv, "rdr-1", token)
	if frame := readFrame(t, ws); frame.Type != string(reader.OutDisplayIdle) {
		t.Fatalf("first frame = %q, want display_idle", frame.Type)
	}

	sendFrame(t, ws, `{not json`)
	if frame := readFrame(t, ws); frame.Type != FrameError {
		t.Fatalf("frame after garbage = %q, want error", frame.Type)
	}

	// Connection survives and keeps working.
	sendFrame(t, ws, `{"type":"card_detected","card_uid":"04a1b2c3"}`)
	if frame := readFrame(t, ws); frame.Type != string(reader.OutSessionStarted) {
		t.Errorf("frame after recovery = %q, want session_started", frame.Type)
	}
}

func TestReconnectSupersedesOldConnection(t *testing.T) {
	att := &fakeAttachments{}
	att.setResources(resource.Resource{ID: "res-laser", Name: "laser-cutter"})
	gw, srv, token := testGateway(t, newFakeDirectory(), att, nil)

	first := dialReader(t, srv, "rdr-1", token)
	if frame := readFrame(t, first); frame.Type != string(reader.OutDisplayIdle) {
		t.Fatalf("first frame = %q, want display_idle", frame.Type)
	}

	second := dialReader(t, srv, "rdr-1", token)
	if frame := readFrame(t, second); frame.Type != string(reader.OutDisplayIdle) {
		t.Fatalf("second connection first frame = %q, want display_idle", frame.Type)
	}

	// The superseded connection is closed by the gateway.
	if err := first.SetReadDeadline(time.Now().Add(3 * time.Second)); err != nil {
		t.Fatalf("setting read deadline: %v", err)
	}
	if _, _, err := first.ReadMessage(); err == nil {
		t.Error("superseded connection should be closed")
	}

	if n := gw.ConnectionCount(); n != 1 {
		t.Errorf("connection count = %d, want 1", n)
	}
	if !gw.Connected("rdr-1") {
		t.Error("reader should still be connected via the new socket")
	}
}

func TestReconnectClosesOldSessionFirst(t *testing.T) {
	att := &fakeAttachments{}
	att.setResources(resource.Resource{ID: "res-laser", Name: "laser-cutter"})
	dir := newFakeDirectory("04a1b2c3")
	_, srv, token := testGateway(t, dir, att, nil)

	first := dialReader(t, srv, "rdr-1", token)
	if frame := readFrame(t, first); frame.Type != string(reader.OutDisplayIdle) {
		t.Fatalf("first frame = %q, want display_idle", frame.Type)
	}
	sendFrame(t, first, `{"type":"card_detected","card_uid":"04a1b2c3"}`)
	if frame := readFrame(t, first); frame.Type != string(reader.OutSessionStarted) {
		t.Fatalf("frame after tap = %q, want session_started", frame.Type)
	}

	// Hold the old connection's session close open, then reconnect.
	gate := att.blockEnds()
	second := dialReader(t, srv, "rdr-1", token)

	frames := make(chan outboundFrame, 1)
	go func() {
		if err := second.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
			return
		}
		_, data, err := second.ReadMessage()
		if err != nil {
			return
		}
		var frame outboundFrame
		if json.Unmarshal(data, &frame) == nil {
			frames <- frame
		}
	}()

	// While the old session close is still in flight, the new machine
	// must not have started.
	time.Sleep(200 * time.Millisecond)
	select {
	case frame := <-frames:
		t.Fatalf("new connection received %q before the old session closed", frame.Type)
	default:
	}
	if n := att.endCount(); n != 0 {
		t.Fatalf("session closes before gate release = %d, want 0", n)
	}

	close(gate)

	select {
	case frame := <-frames:
		if frame.Type != string(reader.OutDisplayIdle) {
			t.Errorf("new connection first frame = %q, want display_idle", frame.Type)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("new connection never started after the old session closed")
	}
	// The old session close landed before the new machine's first frame.
	if n := att.endCount(); n != 1 {
		t.Errorf("session closes = %d, want 1", n)
	}
}

func TestDisconnectClosesActiveSessions(t *testing.T) {
	att := &fakeAttachments{}
	att.setResources(resource.Resource{ID: "res-laser", Name: "laser-cutter"})
	dir := newFakeDirectory("04a1b2c3")
	gw, srv, token := testGateway(t, dir, att, nil)

	ws := dialReader(t, srv, "rdr-1", token)
	if frame := readFrame(t, ws); frame.Type != string(reader.OutDisplayIdle) {
		t.Fatalf("first frame = %q, want display_idle", frame.Type)
	}
	sendFrame(t, ws, `{"type":"card_detected","card_uid":"04a1b2c3"}`)
	if frame := readFrame(t, ws); frame.Type != string(reader.OutSessionStarted) {
		t.Fatalf("frame after tap = %q, want session_started", frame.Type)
	}

	// Drop the socket mid-session; the gateway must close the session.
	ws.Close()

	deadline := time.Now().Add(3 * time.Second)
	for att.endCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("session was not closed after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}

	deadline = time.Now().Add(3 * time.Second)
	for gw.Connected("rdr-1") {
		if time.Now().After(deadline) {
			t.Fatal("reader still registered after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestEnrollNext(t *testing.T) {
	att := &fakeAttachments{}
	att.setResources(resource.Resource{ID: "res-laser", Name: "laser-cutter"})
	dir := newFakeDirectory()
	gw, srv, token := testGateway(t, dir, att, nil)

	ws := dialReader(t, srv, "rdr-1", token)
	if frame := readFrame(t, ws); frame.Type != string(reader.OutDisplayIdle) {
		t.Fatalf("first frame = %q, want display_idle", frame.Type)
	}

	if err := gw.EnrollNext("rdr-1", "usr-alice", "Alice fob"); err != nil {
		t.Fatalf("EnrollNext failed: %v", err)
	}

	// The next tap enrolls the unknown card and starts a session.
	sendFrame(t, ws, `{"type":"card_detected","card_uid":"04a1b2c3"}`)
	if frame := readFrame(t, ws); frame.Type != string(reader.OutSessionStarted) {
		t.Fatalf("frame after enrolling tap = %q, want session_started", frame.Type)
	}

	enrolled := dir.enrolledUIDs()
	if len(enrolled) != 1 || enrolled[0] != "04a1b2c3" {
		t.Errorf("enrolled = %v, want [04a1b2c3]", enrolled)
	}
}

func TestEnrollNext_ReaderNotConnected(t *testing.T) {
	gw, _, _ := testGateway(t, newFakeDirectory(), &fakeAttachments{}, nil)

	err := gw.EnrollNext("rdr-1", "usr-alice", "Alice fob")
	if !errors.Is(err, reader.ErrNoEnrollment) {
		t.Errorf("error = %v, want ErrNoEnrollment", err)
	}
}

func TestStopSession(t *testing.T) {
	att := &fakeAttachments{}
	att.setResources(resource.Resource{ID: "res-laser", Name: "laser-cutter"})
	dir := newFakeDirectory("04a1b2c3")
	gw, srv, token := testGateway(t, dir, att, nil)

	ws := dialReader(t, srv, "rdr-1", token)
	if frame := readFrame(t, ws); frame.Type != string(reader.OutDisplayIdle) {
		t.Fatalf("first frame = %q, want display_idle", frame.Type)
	}
	sendFrame(t, ws, `{"type":"card_detected","card_uid":"04a1b2c3"}`)
	if frame := readFrame(t, ws); frame.Type != string(reader.OutSessionStarted) {
		t.Fatalf("frame after tap = %q, want session_started", frame.Type)
	}

	if err := gw.StopSession("rdr-1"); err != nil {
		t.Fatalf("StopSession failed: %v", err)
	}

	if frame := readFrame(t, ws); frame.Type != string(reader.OutSessionEnded) {
		t.Errorf("frame after stop = %q, want session_ended", frame.Type)
	}
	if frame := readFrame(t, ws); frame.Type != string(reader.OutDisplayIdle) {
		t.Errorf("final frame = %q, want display_idle", frame.Type)
	}
}

func TestStopSession_ReaderNotConnected(t *testing.T) {
	gw, _, _ := testGateway(t, newFakeDirectory(), &fakeAttachments{}, nil)

	err := gw.StopSession("rdr-1")
	if !errors.Is(err, reader.ErrReaderNotFound) {
		t.Errorf("error = %v, want ErrReaderNotFound", err)
	}
}

func TestStatusAnnouncements(t *testing.T) {
	announcer := &fakeAnnouncer{}
	att := &fakeAttachments{}
	att.setResources(resource.Resource{ID: "res-laser", Name: "laser-cutter"})
	_, srv, token := testGateway(t, newFakeDirectory(), att, announcer)

	ws := dialReader(t, srv, "rdr-1", token)
	if frame := readFrame(t, ws); frame.Type != string(reader.OutDisplayIdle) {
		t.Fatalf("first frame = %q, want display_idle", frame.Type)
	}

	pubs := announcer.publications()
	if len(pubs) != 1 {
		t.Fatalf("publications = %d, want 1", len(pubs))
	}
	if pubs[0].topic != "tapgate/reader/rdr-1/status" {
		t.Errorf("topic = %q", pubs[0].topic)
	}
	if !strings.Contains(pubs[0].payload, `"online":true`) {
		t.Errorf("payload = %q, want online:true", pubs[0].payload)
	}

	ws.Close()

	deadline := time.Now().Add(3 * time.Second)
	for {
		pubs = announcer.publications()
		if len(pubs) >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("offline status was never published")
		}
		time.Sleep(10 * time.Millisecond)
	}
	last := pubs[len(pubs)-1]
	if !strings.Contains(last.payload, `"online":false`) {
		t.Errorf("payload = %q, want online:false", last.payload)
	}
}
