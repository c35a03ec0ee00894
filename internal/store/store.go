// Package store persists per-room session records. The record is the single
// source of truth for "does this room have a live backend session": the poll
// loop re-reads it on every iteration, and deleting it is how external actors
// (visitor close, host-scheduled timeout) cancel a running loop.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/relaydesk/labridge/internal/liveagent"
)

// ErrNotFound indicates no record exists for the room. Absence of a record is
// the authoritative signal that no backend session is active.
var ErrNotFound = errors.New("store: room record not found")

// TimerMode selects who owns the idle-timeout timer.
type TimerMode string

// Timer ownership modes.
const (
	// TimerHostScheduled means the host platform schedules the one-shot
	// timeout job; the bridge only signals the widget countdown.
	TimerHostScheduled TimerMode = "host"

	// TimerAppScheduled means the bridge arms and cancels its own timer.
	TimerAppScheduled TimerMode = "app"
)

// IdleTimeoutConfig is read-only configuration attached to a room record.
// The orchestrator never mutates it.
type IdleTimeoutConfig struct {
	Enabled        bool      `json:"enabled"`
	WarningSeconds int       `json:"warningSeconds"`
	TimeoutSeconds int       `json:"timeoutSeconds"`
	Mode           TimerMode `json:"mode"`
}

// TimerHandle tracks the room's armed inactivity timer, if any.
// At most one timer is live per room.
type TimerHandle struct {
	Scheduled bool   `json:"scheduled"`
	JobID     string `json:"jobId"`
}

// RoomSessionRecord is the per-room aggregate. Tokens == nil means the room
// has no live backend session (Queued records carry tokens too; only records
// with a pending or established session exist at all).
type RoomSessionRecord struct {
	Tokens           *liveagent.SessionTokens `json:"tokens,omitempty"`
	Idle             IdleTimeoutConfig        `json:"idle"`
	Timer            TimerHandle              `json:"timer"`
	SneakPeekEnabled bool                     `json:"sneakPeekEnabled"`
	UpdatedAt        time.Time                `json:"updatedAt"`
}

// RoomStore persists room session records keyed by room ID.
//
// Implementations must tolerate check-then-act races: a record can disappear
// between a Get and a subsequent Put or Delete, and callers treat that as
// session termination, not as an error.
type RoomStore interface {
	// Get returns the record for the room, or ErrNotFound.
	Get(ctx context.Context, roomID string) (*RoomSessionRecord, error)

	// Put creates or replaces the record for the room.
	Put(ctx context.Context, roomID string, rec *RoomSessionRecord) error

	// Delete removes the record. Deleting an absent record is not an error:
	// the caller only cares that the record is gone.
	Delete(ctx context.Context, roomID string) error

	// List returns the IDs of all rooms with a record. Used at startup to
	// resume poll loops for sessions that survived a restart.
	List(ctx context.Context) ([]string, error)

	// Stale returns the IDs of rooms whose records have not been touched
	// since the cutoff. Used by the sweep job to reap abandoned sessions.
	Stale(ctx context.Context, cutoff time.Time) ([]string, error)
}
