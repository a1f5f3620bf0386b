package resource

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tapgate-io/tapgate/internal/infrastructure/logging"
)

// fakePublisher records published messages in memory.
type fakePublisher struct {
	mu       sync.Mutex
	messages map[string][]byte
	retained map[string][]byte
	failAll  bool
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{
		messages: make(map[string][]byte),
		retained: make(map[string][]byte),
	}
}

func (p *fakePublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failAll {
		return errors.New("broker unavailable")
	}
	p.messages[topic] = payload
	return nil
}

func (p *fakePublisher) PublishRetained(topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failAll {
		return errors.New("broker unavailable")
	}
	p.retained[topic] = payload
	return nil
}

// fakeTelemetry records telemetry calls in memory.
type fakeTelemetry struct {
	mu     sync.Mutex
	starts []string
	ends   []string
}

func (f *fakeTelemetry) WriteSessionStart(sessionID, resourceID, readerID string) {
	f.mu.Lock()
	f.starts = append(f.starts, sessionID)
	f.mu.Unlock()
}

func (f *fakeTelemetry) WriteSessionEnd(sessionID, resourceID, readerID string, duration time.Duration) {
	f.mu.Lock()
	f.ends = append(f.ends, sessionID)
	f.mu.Unlock()
}

func testService(t *testing.T) (*Service, Repository, *fakePublisher, *fakeTelemetry) {
	t.Helper()
	repo := NewSQLiteRepository(testDB(t))
	pub := newFakePublisher()
	tel := &fakeTelemetry{}
	svc := NewService(repo, pub, tel, logging.Default())
	return svc, repo, pub, tel
}

func TestServiceSessionLifecycle(t *testing.T) {
	svc, repo, pub, tel := testService(t)
	ctx := context.Background()

	laser := createTestResource(t, repo, "laser-cutter")

	session, err := svc.NotifySessionStart(ctx, laser.ID, "rdr-workshop", "04a1b2c3")
	if err != nil {
		t.Fatalf("NotifySessionStart: %v", err)
	}
	if session.CardUID != "04a1b2c3" {
		t.Errorf("card uid = %q, want 04a1b2c3", session.CardUID)
	}

	// Persisted as the active session.
	active, err := repo.GetActiveSession(ctx, laser.ID)
	if err != nil {
		t.Fatalf("GetActiveSession: %v", err)
	}
	if active.ID != session.ID {
		t.Errorf("active session = %q, want %q", active.ID, session.ID)
	}

	// Announced over MQTT with the card UID in the payload.
	startTopic := "tapgate/session/" + laser.ID + "/started"
	pub.mu.Lock()
	payload, ok := pub.messages[startTopic]
	pub.mu.Unlock()
	if !ok {
		t.Fatalf("no message on %s", startTopic)
	}
	if !strings.Contains(string(payload), "04a1b2c3") {
		t.Errorf("start payload missing card uid: %s", payload)
	}

	// Retained in-use flag.
	inUseTopic := "tapgate/resource/" + laser.ID + "/in_use"
	pub.mu.Lock()
	state := string(pub.retained[inUseTopic])
	pub.mu.Unlock()
	if !strings.Contains(state, `"in_use":true`) {
		t.Errorf("retained state = %s, want in_use true", state)
	}

	ended, err := svc.NotifySessionEnd(ctx, laser.ID)
	if err != nil {
		t.Fatalf("NotifySessionEnd: %v", err)
	}
	if ended.ID != session.ID {
		t.Errorf("ended session = %q, want %q", ended.ID, session.ID)
	}
	if ended.EndedAt == nil {
		t.Fatal("ended session should have EndedAt")
	}

	pub.mu.Lock()
	_, endOK := pub.messages["tapgate/session/"+laser.ID+"/ended"]
	state = string(pub.retained[inUseTopic])
	pub.mu.Unlock()
	if !endOK {
		t.Error("no session-ended announcement")
	}
	if !strings.Contains(state, `"in_use":false`) {
		t.Errorf("retained state = %s, want in_use false", state)
	}

	tel.mu.Lock()
	defer tel.mu.Unlock()
	if len(tel.starts) != 1 || len(tel.ends) != 1 {
		t.Errorf("telemetry starts=%d ends=%d, want 1 each", len(tel.starts), len(tel.ends))
	}
}

func TestServiceEndWithoutActiveSession(t *testing.T) {
	svc, repo, _, _ := testService(t)
	laser := createTestResource(t, repo, "laser-cutter")

	_, err := svc.NotifySessionEnd(context.Background(), laser.ID)
	if !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("expected ErrNoActiveSession, got %v", err)
	}
}

func TestServiceStartClosesStaleSession(t *testing.T) {
	svc, repo, _, _ := testService(t)
	ctx := context.Background()
	laser := createTestResource(t, repo, "laser-cutter")

	first, err := svc.NotifySessionStart(ctx, laser.ID, "rdr-workshop", "04a1b2c3")
	if err != nil {
		t.Fatalf("first start: %v", err)
	}

	// A second start without an intervening end closes the first session.
	second, err := svc.NotifySessionStart(ctx, laser.ID, "rdr-workshop", "04d4e5f6")
	if err != nil {
		t.Fatalf("second start: %v", err)
	}

	active, err := repo.GetActiveSession(ctx, laser.ID)
	if err != nil {
		t.Fatalf("GetActiveSession: %v", err)
	}
	if active.ID != second.ID {
		t.Errorf("active session = %q, want %q", active.ID, second.ID)
	}

	sessions, _ := repo.ListSessions(ctx, laser.ID)
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	for _, s := range sessions {
		if s.ID == first.ID && s.Active() {
			t.Error("stale session should have been closed")
		}
	}
}

func TestServiceStartFailsWhenStaleCheckErrors(t *testing.T) {
	db := testDB(t)
	repo := NewSQLiteRepository(db)
	svc := NewService(repo, nil, nil, logging.Default())
	ctx := context.Background()

	laser := createTestResource(t, repo, "laser-cutter")

	// Break the sessions table so the stale-session check hits a real
	// database error rather than ErrNoActiveSession.
	if _, err := db.Exec(`DROP TABLE usage_sessions`); err != nil {
		t.Fatalf("dropping usage_sessions: %v", err)
	}

	_, err := svc.NotifySessionStart(ctx, laser.ID, "rdr-workshop", "04a1b2c3")
	if err == nil {
		t.Fatal("expected start to fail when the stale-session check errors")
	}
	if errors.Is(err, ErrNoActiveSession) {
		t.Errorf("error = %v, want a database failure, not ErrNoActiveSession", err)
	}
}

func TestServiceBrokerFailureDoesNotBlockTap(t *testing.T) {
	svc, repo, pub, _ := testService(t)
	ctx := context.Background()
	laser := createTestResource(t, repo, "laser-cutter")

	pub.mu.Lock()
	pub.failAll = true
	pub.mu.Unlock()

	session, err := svc.NotifySessionStart(ctx, laser.ID, "rdr-workshop", "04a1b2c3")
	if err != nil {
		t.Fatalf("NotifySessionStart with failing broker: %v", err)
	}

	// The authoritative record exists despite the broker being down.
	active, err := repo.GetActiveSession(ctx, laser.ID)
	if err != nil {
		t.Fatalf("GetActiveSession: %v", err)
	}
	if active.ID != session.ID {
		t.Errorf("active session = %q, want %q", active.ID, session.ID)
	}

	if _, err := svc.NotifySessionEnd(ctx, laser.ID); err != nil {
		t.Fatalf("NotifySessionEnd with failing broker: %v", err)
	}
}

func TestServiceNilCollaborators(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	svc := NewService(repo, nil, nil, logging.Default())
	ctx := context.Background()

	laser := createTestResource(t, repo, "laser-cutter")

	if _, err := svc.NotifySessionStart(ctx, laser.ID, "rdr-workshop", "04a1b2c3"); err != nil {
		t.Fatalf("NotifySessionStart without collaborators: %v", err)
	}
	if _, err := svc.NotifySessionEnd(ctx, laser.ID); err != nil {
		t.Fatalf("NotifySessionEnd without collaborators: %v", err)
	}
}

func TestServiceGetAttachedResources(t *testing.T) {
	svc, repo, _, _ := testService(t)
	ctx := context.Background()

	laser := createTestResource(t, repo, "laser-cutter")
	if err := repo.Attach(ctx, "rdr-workshop", laser.ID); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	attached, err := svc.GetAttachedResources(ctx, "rdr-workshop")
	if err != nil {
		t.Fatalf("GetAttachedResources: %v", err)
	}
	if len(attached) != 1 || attached[0].ID != laser.ID {
		t.Errorf("attached = %v, want [%s]", attached, laser.ID)
	}
}
