package cron

import (
	"context"
	"log/slog"
	"time"

	"github.com/relaydesk/labridge/internal/store"
)

// SessionChecker reports whether a room currently has a running poll loop.
// Implemented by the session orchestrator.
type SessionChecker interface {
	IsActive(roomID string) bool
}

// StaleSessionSweepJob deletes room records whose sessions died without a
// close webhook ever arriving: no poll loop is running for them and the
// record has not been touched within MaxAge.
type StaleSessionSweepJob struct {
	Store        store.RoomStore
	Sessions     SessionChecker
	MaxAge       time.Duration
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "*/5 * * * *"
}

var _ Job = (*StaleSessionSweepJob)(nil)

// Name implements Job.
func (j *StaleSessionSweepJob) Name() string { return "stale_session_sweep" }

// Schedule implements Job.
func (j *StaleSessionSweepJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/5 * * * *"
}

// Run reaps stale records.
func (j *StaleSessionSweepJob) Run(ctx context.Context) error {
	cutoff := time.Now().Add(-j.MaxAge)
	ids, err := j.Store.Stale(ctx, cutoff)
	if err != nil {
		return err
	}

	var swept int
	for _, id := range ids {
		if j.Sessions != nil && j.Sessions.IsActive(id) {
			continue
		}
		if err := j.Store.Delete(ctx, id); err != nil {
			j.Logger.Error("sweeping stale record failed", "room", id, "error", err)
			continue
		}
		swept++
	}
	if swept > 0 {
		j.Logger.Info("swept stale session records", "count", swept)
	}
	return nil
}
