package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/relaydesk/labridge/internal/liveagent"
	"github.com/relaydesk/labridge/internal/store"
)

// Sentinel errors for orchestrator operations.
var (
	// ErrSessionActive indicates the room already has a session attempt in
	// flight; at most one poll loop may run per room.
	ErrSessionActive = errors.New("session: room already has an active session")

	// ErrNoSession indicates the room has no live backend session.
	ErrNoSession = errors.New("session: no active session for room")
)

// visitorCloseSignal is the literal message the widget sends when the visitor
// dismisses the chat.
const visitorCloseSignal = "Closed by visitor"

// Orchestrator drives the per-room session lifecycle. All public methods are
// safe for concurrent use.
type Orchestrator struct {
	backend Backend
	store   store.RoomStore
	relay   Relay
	handoff Handoff
	idle    IdleControl
	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer
	cfg     Config

	mu      sync.Mutex
	runners map[string]*runner
}

// runner is one room's poll loop. The stop channel interrupts the loop
// between polls; record deletion interrupts it between established-phase
// iterations.
type runner struct {
	roomID   string
	tokens   liveagent.SessionTokens // guarded by Orchestrator.mu
	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func (r *runner) stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

func (r *runner) stopped() bool {
	select {
	case <-r.stopCh:
		return true
	default:
		return false
	}
}

// New creates an Orchestrator. metrics may be nil (unregistered metrics are
// created); logger may be nil (slog.Default is used).
func New(backend Backend, st store.RoomStore, relay Relay, handoff Handoff, idle IdleControl, logger *slog.Logger, metrics *Metrics, cfg Config) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	cfg.Messages.Defaults()
	return &Orchestrator{
		backend: backend,
		store:   st,
		relay:   relay,
		handoff: handoff,
		idle:    idle,
		logger:  logger.With("component", "session"),
		metrics: metrics,
		tracer:  otel.Tracer("github.com/relaydesk/labridge/internal/session"),
		cfg:     cfg,
		runners: make(map[string]*runner),
	}
}

// StartSession acquires backend session tokens for the room, requests an
// agent chat, and starts the room's poll loop. Setup failures are terminal
// for this attempt: the visitor gets exactly one apology and no loop runs.
func (o *Orchestrator) StartSession(ctx context.Context, roomID string, visitor liveagent.Visitor) error {
	ctx, span := o.tracer.Start(ctx, "session.start",
		trace.WithAttributes(attribute.String("room.id", roomID)))
	defer span.End()

	r := &runner{
		roomID: roomID,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}

	o.mu.Lock()
	if _, exists := o.runners[roomID]; exists {
		o.mu.Unlock()
		return ErrSessionActive
	}
	o.runners[roomID] = r
	o.mu.Unlock()

	if _, err := o.store.Get(ctx, roomID); err == nil {
		o.removeRunner(roomID)
		close(r.done)
		return ErrSessionActive
	}

	tokens, err := o.backend.CreateSession(ctx)
	if err != nil {
		o.removeRunner(roomID)
		close(r.done)
		o.apology(ctx, roomID, o.cfg.Messages.TechnicalDifficulty, fmt.Sprintf("session creation failed for room %s: %v", roomID, err))
		return err
	}

	err = o.backend.RequestChat(ctx, tokens, liveagent.ChatRequest{
		OrganizationID: o.cfg.OrganizationID,
		DeploymentID:   o.cfg.DeploymentID,
		ButtonID:       o.cfg.ButtonID,
		Visitor:        visitor,
	})
	if err != nil {
		o.removeRunner(roomID)
		close(r.done)
		o.apology(ctx, roomID, o.cfg.Messages.TechnicalDifficulty, fmt.Sprintf("chat request failed for room %s: %v", roomID, err))
		return err
	}

	o.mu.Lock()
	r.tokens = tokens
	o.mu.Unlock()

	o.logger.Info("session requested, entering queue", "room", roomID)
	o.metrics.loopStarted()
	go o.runLoop(r, tokens, false)
	return nil
}

// Resume restarts poll loops for rooms whose session records survived a
// process restart. Records are only persisted on establishment, so every
// surviving record with tokens is an established session; its loop starts
// directly in the established phase. Returns the number of loops resumed.
func (o *Orchestrator) Resume(ctx context.Context) int {
	ids, err := o.store.List(ctx)
	if err != nil {
		o.logger.Error("listing persisted session records failed", "error", err)
		return 0
	}

	var resumed int
	for _, roomID := range ids {
		rec, err := o.store.Get(ctx, roomID)
		if err != nil || rec.Tokens == nil {
			continue
		}

		r := &runner{
			roomID: roomID,
			tokens: *rec.Tokens,
			stopCh: make(chan struct{}),
			done:   make(chan struct{}),
		}
		o.mu.Lock()
		if _, exists := o.runners[roomID]; exists {
			o.mu.Unlock()
			continue
		}
		o.runners[roomID] = r
		o.mu.Unlock()

		// Any app-scheduled timer armed before the restart died with the
		// process; restart the inactivity clock.
		o.idle.OnAgentMessage(ctx, roomID)

		o.logger.Info("resuming persisted session", "room", roomID)
		o.metrics.loopStarted()
		go o.runLoop(r, *rec.Tokens, true)
		resumed++
	}
	return resumed
}

// VisitorMessage forwards a visitor's text into the backend session. The
// widget's close signal is routed to CloseByVisitor instead.
func (o *Orchestrator) VisitorMessage(ctx context.Context, roomID, text string) error {
	if text == visitorCloseSignal {
		return o.CloseByVisitor(ctx, roomID)
	}

	tokens, ok := o.tokensFor(ctx, roomID)
	if !ok {
		return ErrNoSession
	}
	if err := o.backend.SendMessage(ctx, tokens, text); err != nil {
		o.logger.Error("forwarding visitor message failed", "room", roomID, "error", err)
		return err
	}
	o.idle.OnVisitorMessage(ctx, roomID)
	return nil
}

// VisitorTyping signals the visitor's typing state to the agent console,
// using sneak peek when enabled for the room.
func (o *Orchestrator) VisitorTyping(ctx context.Context, roomID string, typing bool, partial string) error {
	tokens, ok := o.tokensFor(ctx, roomID)
	if !ok {
		return ErrNoSession
	}

	sneakPeek := o.cfg.SneakPeek
	if rec, err := o.store.Get(ctx, roomID); err == nil {
		sneakPeek = rec.SneakPeekEnabled
	}

	if sneakPeek {
		return o.backend.SetSneakPeek(ctx, tokens, partial)
	}
	return o.backend.SetTyping(ctx, tokens, typing)
}

// CloseByVisitor ends the backend session because the visitor dismissed the
// chat: EndChat is called once, the record is cleared, and the room's poll
// loop stops without any further polling.
func (o *Orchestrator) CloseByVisitor(ctx context.Context, roomID string) error {
	tokens, ok := o.tokensFor(ctx, roomID)
	o.stopRunner(roomID)
	if !ok {
		return ErrNoSession
	}

	if err := o.backend.EndChat(ctx, tokens, endReasonClient); err != nil {
		o.logger.Error("ending backend session failed", "room", roomID, "error", err)
	}
	if err := o.store.Delete(ctx, roomID); err != nil {
		o.logger.Error("clearing session record failed", "room", roomID, "error", err)
	}
	o.idle.Cancel(ctx, roomID)
	o.metrics.recordEnded("visitor")
	o.logger.Info("chat closed by visitor", "room", roomID)
	return nil
}

// CloseByTimeout closes the room for inactivity: the idle timer (local or
// host-scheduled) fired with the session still live.
func (o *Orchestrator) CloseByTimeout(ctx context.Context, roomID string) error {
	rec, err := o.store.Get(ctx, roomID)
	if err != nil {
		return err
	}
	if rec.Tokens == nil {
		return ErrNoSession
	}
	o.stopRunner(roomID)

	if err := o.relay.SetRoomField(ctx, roomID, fieldClosedByTimeout, "true"); err != nil {
		o.logger.Error("setting timeout field failed", "room", roomID, "error", err)
	}
	if err := o.relay.CloseRoom(ctx, roomID, o.cfg.Messages.TimeoutClosed); err != nil {
		o.logger.Error("closing room failed", "room", roomID, "error", err)
	}
	if err := o.backend.EndChat(ctx, *rec.Tokens, endReasonTimeout); err != nil {
		o.logger.Error("ending backend session failed", "room", roomID, "error", err)
	}
	if err := o.store.Delete(ctx, roomID); err != nil {
		o.logger.Error("clearing session record failed", "room", roomID, "error", err)
	}
	o.idle.Cancel(ctx, roomID)
	o.metrics.recordEnded("timeout")
	o.logger.Info("chat closed by inactivity timeout", "room", roomID)
	return nil
}

// ActiveLoops returns the number of poll loops currently registered.
func (o *Orchestrator) ActiveLoops() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.runners)
}

// IsActive reports whether the room has a registered poll loop. The sweep
// job uses this to avoid reaping records of live sessions.
func (o *Orchestrator) IsActive(roomID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.runners[roomID]
	return ok
}

// Shutdown stops all poll loops and waits for them to drain.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	running := make([]*runner, 0, len(o.runners))
	for _, r := range o.runners {
		r.stop()
		running = append(running, r)
	}
	o.mu.Unlock()

	for _, r := range running {
		<-r.done
	}
}

// tokensFor resolves the room's current tokens: the persisted record wins,
// falling back to the in-flight runner for queued (not yet persisted)
// sessions.
func (o *Orchestrator) tokensFor(ctx context.Context, roomID string) (liveagent.SessionTokens, bool) {
	if rec, err := o.store.Get(ctx, roomID); err == nil && rec.Tokens != nil {
		return *rec.Tokens, true
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if r, ok := o.runners[roomID]; ok && r.tokens.Valid() {
		return r.tokens, true
	}
	return liveagent.SessionTokens{}, false
}

func (o *Orchestrator) stopRunner(roomID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if r, ok := o.runners[roomID]; ok {
		r.stop()
	}
}

func (o *Orchestrator) removeRunner(roomID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.runners, roomID)
}

// apology sends exactly one visitor-visible failure message and forwards the
// detailed cause to the debug channel.
func (o *Orchestrator) apology(ctx context.Context, roomID, msg, detail string) {
	if err := o.relay.SendToRoom(ctx, roomID, msg); err != nil {
		o.logger.Error("relaying apology failed", "room", roomID, "error", err)
	}
	o.debugNotify(ctx, detail)
}

// debugNotify logs the detail and, when the debug flag and room are
// configured, relays it to the debug channel. Detailed diagnostics never
// reach the visitor.
func (o *Orchestrator) debugNotify(ctx context.Context, detail string) {
	o.logger.Debug(detail)
	if o.cfg.Debug && o.cfg.DebugRoomID != "" {
		if err := o.relay.SendToRoom(ctx, o.cfg.DebugRoomID, detail); err != nil {
			o.logger.Error("relaying debug detail failed", "error", err)
		}
	}
}
