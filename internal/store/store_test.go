package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/relaydesk/labridge/internal/liveagent"
)

func testRecord() *RoomSessionRecord {
	return &RoomSessionRecord{
		Tokens: &liveagent.SessionTokens{
			SessionID:     "sid",
			AffinityToken: "aff",
			SessionKey:    "key",
		},
		Idle: IdleTimeoutConfig{
			Enabled:        true,
			WarningSeconds: 240,
			TimeoutSeconds: 300,
			Mode:           TimerAppScheduled,
		},
		SneakPeekEnabled: true,
	}
}

// storeUnderTest runs the shared RoomStore contract against an implementation.
func storeUnderTest(t *testing.T, st RoomStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		_, err := st.Get(ctx, "nope")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("put and get", func(t *testing.T) {
		if err := st.Put(ctx, "room-1", testRecord()); err != nil {
			t.Fatalf("Put() error = %v", err)
		}

		rec, err := st.Get(ctx, "room-1")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if rec.Tokens == nil || rec.Tokens.SessionID != "sid" {
			t.Errorf("Tokens = %+v", rec.Tokens)
		}
		if rec.Idle.TimeoutSeconds != 300 || rec.Idle.Mode != TimerAppScheduled {
			t.Errorf("Idle = %+v", rec.Idle)
		}
		if !rec.SneakPeekEnabled {
			t.Error("SneakPeekEnabled = false")
		}
		if rec.UpdatedAt.IsZero() {
			t.Error("UpdatedAt not set on Put")
		}
	})

	t.Run("put replaces", func(t *testing.T) {
		rec := testRecord()
		rec.Timer = TimerHandle{Scheduled: true, JobID: "job-9"}
		if err := st.Put(ctx, "room-1", rec); err != nil {
			t.Fatalf("Put() error = %v", err)
		}

		got, err := st.Get(ctx, "room-1")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.Timer.JobID != "job-9" {
			t.Errorf("Timer.JobID = %q, want %q", got.Timer.JobID, "job-9")
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := st.Delete(ctx, "room-1"); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if _, err := st.Get(ctx, "room-1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get(deleted) error = %v, want ErrNotFound", err)
		}
		// Deleting an absent record is a no-op, not an error.
		if err := st.Delete(ctx, "room-1"); err != nil {
			t.Errorf("Delete(absent) error = %v", err)
		}
	})

	t.Run("stale", func(t *testing.T) {
		if err := st.Put(ctx, "room-fresh", testRecord()); err != nil {
			t.Fatalf("Put() error = %v", err)
		}

		ids, err := st.Stale(ctx, time.Now().Add(-time.Hour))
		if err != nil {
			t.Fatalf("Stale() error = %v", err)
		}
		if len(ids) != 0 {
			t.Errorf("Stale(old cutoff) = %v, want none", ids)
		}

		ids, err = st.Stale(ctx, time.Now().Add(time.Hour))
		if err != nil {
			t.Fatalf("Stale() error = %v", err)
		}
		if len(ids) != 1 || ids[0] != "room-fresh" {
			t.Errorf("Stale(future cutoff) = %v, want [room-fresh]", ids)
		}
	})

	t.Run("list", func(t *testing.T) {
		if err := st.Put(ctx, "room-extra", testRecord()); err != nil {
			t.Fatalf("Put() error = %v", err)
		}

		ids, err := st.List(ctx)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		seen := make(map[string]bool, len(ids))
		for _, id := range ids {
			seen[id] = true
		}
		if len(ids) != 2 || !seen["room-fresh"] || !seen["room-extra"] {
			t.Errorf("List() = %v, want room-fresh and room-extra", ids)
		}
	})
}

func TestMemoryStore_Contract(t *testing.T) {
	t.Parallel()
	storeUnderTest(t, NewMemoryStore())
}

func TestSQLiteStore_Contract(t *testing.T) {
	t.Parallel()

	st, err := OpenSQLite(filepath.Join(t.TempDir(), "labridge.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	defer func() { _ = st.Close() }()

	storeUnderTest(t, st)
}

func TestSQLiteStore_ReopenKeepsRecords(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "labridge.db")

	st, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	if err := st.Put(ctx, "room-1", testRecord()); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	st, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer func() { _ = st.Close() }()

	rec, err := st.Get(ctx, "room-1")
	if err != nil {
		t.Fatalf("Get() after reopen error = %v", err)
	}
	if rec.Tokens == nil || rec.Tokens.SessionKey != "key" {
		t.Errorf("Tokens = %+v", rec.Tokens)
	}
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := NewMemoryStore()
	if err := st.Put(ctx, "room-1", testRecord()); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	first, _ := st.Get(ctx, "room-1")
	first.Tokens.SessionID = "mutated"
	first.Timer.JobID = "mutated"

	second, _ := st.Get(ctx, "room-1")
	if second.Tokens.SessionID != "sid" {
		t.Error("mutation through Get result leaked into the store")
	}
	if second.Timer.JobID != "" {
		t.Error("timer mutation leaked into the store")
	}
}
