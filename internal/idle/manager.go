// Package idle maintains the per-room inactivity timer: armed when the agent
// speaks, disarmed when the visitor replies, closing the room when it fires.
// The timer can be owned by the bridge (app-scheduled) or by the host
// platform's one-shot job scheduler (host-scheduled).
package idle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relaydesk/labridge/internal/store"
)

// Notifier pushes the widget-side countdown UI signals.
type Notifier interface {
	StartCountdown(roomID string, warnAfter, closeAfter time.Duration)
	StopCountdown(roomID string)
}

// JobScheduler schedules one-shot jobs on the host platform for the
// host-scheduled timer mode. Implemented by *host.Bot.
type JobScheduler interface {
	ScheduleJob(ctx context.Context, roomID string, delay time.Duration) (string, error)
	CancelJob(ctx context.Context, jobID string) error
}

// Ender closes a room whose timer fired. Implemented by the session
// orchestrator; wired after construction to break the dependency cycle.
type Ender interface {
	CloseByTimeout(ctx context.Context, roomID string) error
}

// localTimer is one armed app-scheduled timer. The id ties a fire callback to
// the arming that created it: a stale callback whose id no longer matches the
// room's handle is ignored.
type localTimer struct {
	id    string
	timer *time.Timer
}

// Manager owns all room timers. At most one timer is live per room:
// re-arming always cancels first, never stacks.
type Manager struct {
	store    store.RoomStore
	notifier Notifier
	jobs     JobScheduler
	logger   *slog.Logger

	// afterFunc is time.AfterFunc, injectable in tests.
	afterFunc func(time.Duration, func()) *time.Timer

	mu     sync.Mutex
	ender  Ender
	timers map[string]*localTimer
}

// NewManager creates a Manager. jobs may be nil when no room uses the
// host-scheduled mode; notifier may be nil.
func NewManager(st store.RoomStore, notifier Notifier, jobs JobScheduler, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:     st,
		notifier:  notifier,
		jobs:      jobs,
		logger:    logger.With("component", "idle"),
		afterFunc: time.AfterFunc,
		timers:    make(map[string]*localTimer),
	}
}

// SetEnder wires the component that closes timed-out rooms. Must be called
// before any timer can fire.
func (m *Manager) SetEnder(e Ender) {
	m.mu.Lock()
	m.ender = e
	m.mu.Unlock()
}

// OnAgentMessage (re)arms the room's inactivity timer: the agent spoke, and
// the visitor now has TimeoutSeconds to reply. Arming is idempotent:
// cancel-then-rearm, never stacked.
func (m *Manager) OnAgentMessage(ctx context.Context, roomID string) {
	rec, err := m.store.Get(ctx, roomID)
	if err != nil || !rec.Idle.Enabled {
		return
	}

	timeout := time.Duration(rec.Idle.TimeoutSeconds) * time.Second
	warn := time.Duration(rec.Idle.WarningSeconds) * time.Second

	switch rec.Idle.Mode {
	case store.TimerAppScheduled:
		id := m.armLocal(roomID, timeout)
		m.writeHandle(ctx, roomID, store.TimerHandle{Scheduled: true, JobID: id})

	case store.TimerHostScheduled:
		if m.jobs == nil {
			m.logger.Warn("host-scheduled idle timeout configured but no job scheduler wired", "room", roomID)
			break
		}
		if rec.Timer.Scheduled && rec.Timer.JobID != "" {
			if err := m.jobs.CancelJob(ctx, rec.Timer.JobID); err != nil {
				m.logger.Error("cancelling host job failed", "room", roomID, "job", rec.Timer.JobID, "error", err)
			}
		}
		jobID, err := m.jobs.ScheduleJob(ctx, roomID, timeout)
		if err != nil {
			m.logger.Error("scheduling host job failed", "room", roomID, "error", err)
			break
		}
		m.writeHandle(ctx, roomID, store.TimerHandle{Scheduled: true, JobID: jobID})
	}

	if m.notifier != nil {
		m.notifier.StartCountdown(roomID, warn, timeout)
	}
}

// OnVisitorMessage disarms the room's timer: the visitor replied, so no
// timeout is pending until the agent speaks again.
func (m *Manager) OnVisitorMessage(ctx context.Context, roomID string) {
	rec, err := m.store.Get(ctx, roomID)
	if err != nil || !rec.Idle.Enabled {
		return
	}

	m.disarm(ctx, roomID, rec)

	if m.notifier != nil {
		m.notifier.StopCountdown(roomID)
	}
}

// Cancel disarms the room's timer unconditionally. Called on every terminal
// transition so no orphaned timer fires against a torn-down session.
func (m *Manager) Cancel(ctx context.Context, roomID string) {
	m.cancelLocal(roomID)

	if rec, err := m.store.Get(ctx, roomID); err == nil {
		m.disarm(ctx, roomID, rec)
	}

	if m.notifier != nil {
		m.notifier.StopCountdown(roomID)
	}
}

// disarm cancels whichever timer kind the record carries and clears the
// persisted handle.
func (m *Manager) disarm(ctx context.Context, roomID string, rec *store.RoomSessionRecord) {
	switch rec.Idle.Mode {
	case store.TimerAppScheduled:
		m.cancelLocal(roomID)
	case store.TimerHostScheduled:
		if m.jobs != nil && rec.Timer.Scheduled && rec.Timer.JobID != "" {
			if err := m.jobs.CancelJob(ctx, rec.Timer.JobID); err != nil {
				m.logger.Error("cancelling host job failed", "room", roomID, "job", rec.Timer.JobID, "error", err)
			}
		}
	}
	if rec.Timer.Scheduled {
		m.writeHandle(ctx, roomID, store.TimerHandle{})
	}
}

// armLocal starts a new app-scheduled timer, cancelling any existing one.
// Returns the new timer's id.
func (m *Manager) armLocal(roomID string, d time.Duration) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.timers[roomID]; ok {
		existing.timer.Stop()
	}
	id := uuid.NewString()
	m.timers[roomID] = &localTimer{
		id:    id,
		timer: m.afterFunc(d, func() { m.fire(roomID, id) }),
	}
	return id
}

// cancelLocal stops and forgets the room's local timer, if any.
func (m *Manager) cancelLocal(roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.timers[roomID]; ok {
		t.timer.Stop()
		delete(m.timers, roomID)
	}
}

// fire runs when an app-scheduled timer elapses. The persisted handle is
// re-checked: a fire whose id no longer matches is stale (the timer was
// re-armed or the session ended between scheduling and firing) and ignored.
func (m *Manager) fire(roomID, id string) {
	ctx := context.Background()

	m.mu.Lock()
	if t, ok := m.timers[roomID]; ok && t.id == id {
		delete(m.timers, roomID)
	}
	ender := m.ender
	m.mu.Unlock()

	rec, err := m.store.Get(ctx, roomID)
	if err != nil || rec.Tokens == nil {
		return
	}
	if !rec.Timer.Scheduled || rec.Timer.JobID != id {
		return
	}

	if ender == nil {
		m.logger.Warn("idle timer fired but no ender wired", "room", roomID)
		return
	}
	m.logger.Info("idle timeout fired", "room", roomID)
	if err := ender.CloseByTimeout(ctx, roomID); err != nil {
		m.logger.Error("closing room on timeout failed", "room", roomID, "error", err)
	}
}

// writeHandle persists the room's timer handle, tolerating a record deleted
// between read and write (the session ended; nothing to track).
func (m *Manager) writeHandle(ctx context.Context, roomID string, handle store.TimerHandle) {
	rec, err := m.store.Get(ctx, roomID)
	if err != nil {
		return
	}
	rec.Timer = handle
	if err := m.store.Put(ctx, roomID, rec); err != nil {
		m.logger.Error("persisting timer handle failed", "room", roomID, "error", err)
	}
}
