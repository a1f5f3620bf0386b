package reader

import (
	"context"
	"time"

	"github.com/tapgate-io/tapgate/internal/card"
	"github.com/tapgate-io/tapgate/internal/infrastructure/logging"
	"github.com/tapgate-io/tapgate/internal/keys"
	"github.com/tapgate-io/tapgate/internal/resource"
)

// StateKind identifies the machine's current state.
type StateKind string

// The closed set of states.
const (
	StateUnauthenticated     StateKind = "unauthenticated"
	StateNoResourcesAttached StateKind = "no_resources_attached"
	StateAwaitingCardTap     StateKind = "awaiting_card_tap"
	StateValidatingCard      StateKind = "validating_card"
	StateSessionActive       StateKind = "session_active"
)

// CardDirectory is the card-validation collaborator.
type CardDirectory interface {
	IsEnabled(ctx context.Context, uid string) (bool, error)
	Upsert(ctx context.Context, uid, ownerUserID, label string) (*card.Card, error)
}

// Attachments is the resource-attachment collaborator.
type Attachments interface {
	GetAttachedResources(ctx context.Context, readerID string) ([]resource.Resource, error)
	NotifySessionStart(ctx context.Context, resourceID, readerID, cardUID string) (*resource.UsageSession, error)
	NotifySessionEnd(ctx context.Context, resourceID string) (*resource.UsageSession, error)
}

// KeyDeriver produces per-card application keys.
type KeyDeriver interface {
	DeriveKey(cardUID string, slot int) (keys.Key, error)
}

// MachineConfig tunes machine behaviour per deployment.
type MachineConfig struct {
	// NoResourcesMessage is shown while the reader gates nothing.
	NoResourcesMessage string

	// DisplayErrorSeconds is how long error messages stay on the display.
	DisplayErrorSeconds int

	// KeySlot is the application key slot validated on each tap.
	KeySlot int
}

// DefaultMachineConfig returns the production defaults.
func DefaultMachineConfig() MachineConfig {
	return MachineConfig{
		NoResourcesMessage:  "Reader not assigned to a resource",
		DisplayErrorSeconds: 5,
		KeySlot:             1,
	}
}

// Machine is the state machine bound to one live reader connection.
//
// Not safe for concurrent use: the gateway delivers Start, OnEvent,
// OnResponse, ArmEnrollment, RefreshAttachments and Shutdown from a
// single goroutine per connection.
type Machine struct {
	readerID    string
	sender      Sender
	cards       CardDirectory
	attachments Attachments
	keys        KeyDeriver
	cfg         MachineConfig
	logger      *logging.Logger

	state      StateKind
	terminated bool

	// Card and resources backing the active session set.
	activeCardUID   string
	activeResources []resource.Resource

	// One-shot enrollment armed by the backend.
	enrollOwner   string
	enrollLabel   string
	enrollExpires time.Time
}

// NewMachine creates a machine in the Unauthenticated state. The gateway
// calls Start once authentication has succeeded.
func NewMachine(readerID string, sender Sender, cards CardDirectory, attachments Attachments, deriver KeyDeriver, cfg MachineConfig, logger *logging.Logger) *Machine {
	return &Machine{
		readerID:    readerID,
		sender:      sender,
		cards:       cards,
		attachments: attachments,
		keys:        deriver,
		cfg:         cfg,
		logger:      logger.With("component", "reader_machine", "reader_id", readerID),
		state:       StateUnauthenticated,
	}
}

// State returns the current state.
func (m *Machine) State() StateKind {
	return m.state
}

// Start performs the initial transition out of Unauthenticated: into
// AwaitingCardTap when the reader gates at least one resource, otherwise
// into NoResourcesAttached.
func (m *Machine) Start(ctx context.Context) {
	if m.state != StateUnauthenticated {
		m.logger.Warn("start ignored, machine already running", "state", string(m.state))
		return
	}
	m.transition(ctx, m.readyState(ctx))
}

// OnEvent processes one inbound device event. Events that are not valid
// for the current state are logged and ignored.
func (m *Machine) OnEvent(ctx context.Context, ev Event) {
	if m.terminated {
		return
	}

	switch {
	case m.state == StateAwaitingCardTap && ev.Kind == EventCardDetected:
		m.activeCardUID = ev.CardUID
		m.transition(ctx, StateValidatingCard)

	case m.state == StateSessionActive && (ev.Kind == EventCardRemoved || ev.Kind == EventStop):
		m.transition(ctx, StateAwaitingCardTap)

	default:
		m.logger.Info("event ignored in current state",
			"event", string(ev.Kind), "state", string(m.state))
	}
}

// OnResponse processes a device reply to a prior request. Responses
// carry no state transitions; they are recorded for diagnostics.
func (m *Machine) OnResponse(_ context.Context, resp Response) {
	if m.terminated {
		return
	}
	m.logger.Debug("device response",
		"request_id", resp.RequestID, "status", resp.Status, "state", string(m.state))
}

// RefreshAttachments re-checks the reader's attachments. Called on a
// timer while in NoResourcesAttached; a no-op in any other state.
func (m *Machine) RefreshAttachments(ctx context.Context) {
	if m.terminated || m.state != StateNoResourcesAttached {
		return
	}

	attached, err := m.attachments.GetAttachedResources(ctx, m.readerID)
	if err != nil {
		m.logger.Warn("attachment refresh failed", "error", err)
		return
	}
	if len(attached) > 0 {
		m.transition(ctx, StateAwaitingCardTap)
	}
}

// ArmEnrollment arms a one-shot enrollment: the next card tapped on this
// reader is registered to ownerUserID. The arming expires after window.
func (m *Machine) ArmEnrollment(ownerUserID, label string, window time.Duration) {
	if m.terminated {
		return
	}
	m.enrollOwner = ownerUserID
	m.enrollLabel = label
	m.enrollExpires = time.Now().Add(window)
	m.logger.Info("enrollment armed", "owner", ownerUserID)
}

// Shutdown is the terminal exit: the current state's exit action runs,
// then the machine accepts nothing further. Called exactly once by the
// gateway when the connection is torn down.
func (m *Machine) Shutdown(ctx context.Context) {
	if m.terminated {
		return
	}
	m.exitState(ctx, m.state)
	m.terminated = true
	m.logger.Info("machine shut down", "final_state", string(m.state))
}

// transition swaps states: exit of the old state completes before entry
// of the new one begins.
func (m *Machine) transition(ctx context.Context, next StateKind) {
	m.exitState(ctx, m.state)
	prev := m.state
	m.state = next
	m.logger.Debug("state transition", "from", string(prev), "to", string(next))
	m.enterState(ctx, next)
}

func (m *Machine) enterState(ctx context.Context, state StateKind) {
	switch state {
	case StateNoResourcesAttached:
		m.sender.Send(Outbound{
			Kind:            OutDisplayError,
			Message:         m.cfg.NoResourcesMessage,
			DurationSeconds: m.cfg.DisplayErrorSeconds,
		})

	case StateAwaitingCardTap:
		m.sender.Send(Outbound{Kind: OutDisplayIdle})

	case StateValidatingCard:
		m.validateCard(ctx)

	case StateSessionActive:
		m.startSessions(ctx)
	}
}

func (m *Machine) exitState(ctx context.Context, state StateKind) {
	if state == StateSessionActive {
		m.endSessions(ctx)
	}
}

// readyState decides between AwaitingCardTap and NoResourcesAttached.
func (m *Machine) readyState(ctx context.Context) StateKind {
	attached, err := m.attachments.GetAttachedResources(ctx, m.readerID)
	if err != nil {
		m.logger.Warn("attachment lookup failed", "error", err)
		return StateNoResourcesAttached
	}
	if len(attached) == 0 {
		return StateNoResourcesAttached
	}
	return StateAwaitingCardTap
}

// validateCard is the ValidatingCard entry action: enroll if armed,
// derive the card's application key, check the directory flag, and move
// to SessionActive or back to AwaitingCardTap with an error display.
func (m *Machine) validateCard(ctx context.Context) {
	uid := m.activeCardUID

	if m.enrollmentArmed() {
		c, err := m.cards.Upsert(ctx, uid, m.enrollOwner, m.enrollLabel)
		m.disarmEnrollment()
		if err != nil {
			m.logger.Warn("enrollment failed", "error", err)
			m.rejectCard(ctx, "Enrollment failed")
			return
		}
		m.logger.Info("card enrolled via reader", "card_id", c.ID)
	}

	// A card whose key cannot be derived cannot be mutually
	// authenticated, so it is rejected before the directory check.
	if _, err := m.keys.DeriveKey(uid, m.cfg.KeySlot); err != nil {
		m.logger.Warn("key derivation rejected card", "error", err)
		m.rejectCard(ctx, "Card not supported")
		return
	}

	enabled, err := m.cards.IsEnabled(ctx, uid)
	if err != nil {
		m.logger.Error("card directory lookup failed", "error", err)
		m.rejectCard(ctx, "Validation failed")
		return
	}
	if !enabled {
		m.rejectCard(ctx, "Card not authorised")
		return
	}

	attached, err := m.attachments.GetAttachedResources(ctx, m.readerID)
	if err != nil {
		m.logger.Error("attachment lookup failed", "error", err)
		m.rejectCard(ctx, "Validation failed")
		return
	}
	if len(attached) == 0 {
		// Attachments were removed while the card was in flight.
		m.transition(ctx, StateNoResourcesAttached)
		return
	}

	m.activeResources = attached
	m.transition(ctx, StateSessionActive)
}

// rejectCard shows an error on the appliance and returns to the tap
// state. No session is ever started on this path.
func (m *Machine) rejectCard(ctx context.Context, message string) {
	m.activeCardUID = ""
	m.sender.Send(Outbound{
		Kind:            OutDisplayError,
		Message:         message,
		DurationSeconds: m.cfg.DisplayErrorSeconds,
	})
	m.transition(ctx, StateAwaitingCardTap)
}

// startSessions is the SessionActive entry action: one usage session per
// attached resource, one session-started frame each.
func (m *Machine) startSessions(ctx context.Context) {
	for _, res := range m.activeResources {
		if _, err := m.attachments.NotifySessionStart(ctx, res.ID, m.readerID, m.activeCardUID); err != nil {
			m.logger.Error("session start failed", "resource_id", res.ID, "error", err)
			continue
		}
		m.sender.Send(Outbound{Kind: OutSessionStarted, ResourceID: res.ID})
	}
}

// endSessions is the SessionActive exit action. It runs both on the
// card-removed transition and on connection teardown, so a reader that
// drops mid-session still closes its sessions.
func (m *Machine) endSessions(ctx context.Context) {
	for _, res := range m.activeResources {
		if _, err := m.attachments.NotifySessionEnd(ctx, res.ID); err != nil {
			m.logger.Error("session end failed", "resource_id", res.ID, "error", err)
			continue
		}
		m.sender.Send(Outbound{Kind: OutSessionEnded, ResourceID: res.ID})
	}
	m.activeResources = nil
	m.activeCardUID = ""
}

func (m *Machine) enrollmentArmed() bool {
	if m.enrollOwner == "" {
		return false
	}
	if time.Now().After(m.enrollExpires) {
		m.logger.Info("enrollment window expired", "owner", m.enrollOwner)
		m.disarmEnrollment()
		return false
	}
	return true
}

func (m *Machine) disarmEnrollment() {
	m.enrollOwner = ""
	m.enrollLabel = ""
	m.enrollExpires = time.Time{}
}
