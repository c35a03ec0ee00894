package idle

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/relaydesk/labridge/internal/liveagent"
	"github.com/relaydesk/labridge/internal/store"
)

type fakeNotifier struct {
	mu     sync.Mutex
	starts int
	stops  int
}

func (n *fakeNotifier) StartCountdown(string, time.Duration, time.Duration) {
	n.mu.Lock()
	n.starts++
	n.mu.Unlock()
}

func (n *fakeNotifier) StopCountdown(string) {
	n.mu.Lock()
	n.stops++
	n.mu.Unlock()
}

type fakeScheduler struct {
	mu        sync.Mutex
	nextID    int
	scheduled []string
	cancelled []string
}

func (s *fakeScheduler) ScheduleJob(_ context.Context, roomID string, _ time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := "job-" + roomID + "-" + strconv.Itoa(s.nextID)
	s.scheduled = append(s.scheduled, id)
	return id, nil
}

func (s *fakeScheduler) CancelJob(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = append(s.cancelled, jobID)
	return nil
}

type fakeEnder struct {
	mu     sync.Mutex
	closed []string
}

func (e *fakeEnder) CloseByTimeout(_ context.Context, roomID string) error {
	e.mu.Lock()
	e.closed = append(e.closed, roomID)
	e.mu.Unlock()
	return nil
}

func (e *fakeEnder) closedRooms() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.closed...)
}

// capturingAfterFunc records scheduled callbacks instead of arming real
// timers, so tests fire them explicitly.
type capturingAfterFunc struct {
	mu  sync.Mutex
	fns []func()
}

func (c *capturingAfterFunc) afterFunc(_ time.Duration, fn func()) *time.Timer {
	c.mu.Lock()
	c.fns = append(c.fns, fn)
	c.mu.Unlock()
	// A real timer far in the future; Stop() on it is harmless.
	return time.AfterFunc(time.Hour, func() {})
}

func (c *capturingAfterFunc) fn(i int) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fns[i]
}

func (c *capturingAfterFunc) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.fns)
}

func putRecord(t *testing.T, st store.RoomStore, roomID string, mode store.TimerMode) {
	t.Helper()
	err := st.Put(context.Background(), roomID, &store.RoomSessionRecord{
		Tokens: &liveagent.SessionTokens{SessionID: "sid", AffinityToken: "aff", SessionKey: "key"},
		Idle: store.IdleTimeoutConfig{
			Enabled:        true,
			WarningSeconds: 4,
			TimeoutSeconds: 5,
			Mode:           mode,
		},
	})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func TestOnAgentMessage_AppMode_RearmReplacesTimer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := store.NewMemoryStore()
	putRecord(t, st, "room-1", store.TimerAppScheduled)

	notifier := &fakeNotifier{}
	m := NewManager(st, notifier, nil, quietLogger())
	capture := &capturingAfterFunc{}
	m.afterFunc = capture.afterFunc
	ender := &fakeEnder{}
	m.SetEnder(ender)

	m.OnAgentMessage(ctx, "room-1")
	rec, _ := st.Get(ctx, "room-1")
	if !rec.Timer.Scheduled || rec.Timer.JobID == "" {
		t.Fatalf("Timer handle = %+v, want scheduled with id", rec.Timer)
	}
	firstID := rec.Timer.JobID

	m.OnAgentMessage(ctx, "room-1")
	rec, _ = st.Get(ctx, "room-1")
	if rec.Timer.JobID == firstID {
		t.Error("re-arm kept the old timer id")
	}
	if capture.count() != 2 {
		t.Fatalf("scheduled callbacks = %d, want 2", capture.count())
	}

	// The superseded timer's callback is stale and must not close the room.
	capture.fn(0)()
	if closed := ender.closedRooms(); len(closed) != 0 {
		t.Errorf("stale fire closed rooms %v, want none", closed)
	}

	// The live timer fires.
	capture.fn(1)()
	if closed := ender.closedRooms(); len(closed) != 1 || closed[0] != "room-1" {
		t.Errorf("closed rooms = %v, want [room-1]", closed)
	}

	notifier.mu.Lock()
	starts := notifier.starts
	notifier.mu.Unlock()
	if starts != 2 {
		t.Errorf("StartCountdown calls = %d, want 2", starts)
	}
}

func TestOnVisitorMessage_Disarms(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := store.NewMemoryStore()
	putRecord(t, st, "room-1", store.TimerAppScheduled)

	notifier := &fakeNotifier{}
	m := NewManager(st, notifier, nil, quietLogger())
	capture := &capturingAfterFunc{}
	m.afterFunc = capture.afterFunc
	ender := &fakeEnder{}
	m.SetEnder(ender)

	m.OnAgentMessage(ctx, "room-1")
	m.OnVisitorMessage(ctx, "room-1")

	rec, _ := st.Get(ctx, "room-1")
	if rec.Timer.Scheduled {
		t.Errorf("Timer handle = %+v, want cleared", rec.Timer)
	}

	// A late fire of the cancelled timer is a no-op.
	capture.fn(0)()
	if closed := ender.closedRooms(); len(closed) != 0 {
		t.Errorf("cancelled fire closed rooms %v, want none", closed)
	}

	notifier.mu.Lock()
	stops := notifier.stops
	notifier.mu.Unlock()
	if stops != 1 {
		t.Errorf("StopCountdown calls = %d, want 1", stops)
	}
}

func TestFire_NoopAfterSessionEnded(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := store.NewMemoryStore()
	putRecord(t, st, "room-1", store.TimerAppScheduled)

	m := NewManager(st, nil, nil, quietLogger())
	capture := &capturingAfterFunc{}
	m.afterFunc = capture.afterFunc
	ender := &fakeEnder{}
	m.SetEnder(ender)

	m.OnAgentMessage(ctx, "room-1")
	if err := st.Delete(ctx, "room-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	capture.fn(0)()
	if closed := ender.closedRooms(); len(closed) != 0 {
		t.Errorf("fire after delete closed rooms %v, want none", closed)
	}
}

func TestOnAgentMessage_DisabledRecordIgnored(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := store.NewMemoryStore()
	if err := st.Put(ctx, "room-1", &store.RoomSessionRecord{
		Idle: store.IdleTimeoutConfig{Enabled: false},
	}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	notifier := &fakeNotifier{}
	m := NewManager(st, notifier, nil, quietLogger())
	capture := &capturingAfterFunc{}
	m.afterFunc = capture.afterFunc

	m.OnAgentMessage(ctx, "room-1")
	if capture.count() != 0 {
		t.Errorf("scheduled callbacks = %d, want 0 when idle disabled", capture.count())
	}
	notifier.mu.Lock()
	starts := notifier.starts
	notifier.mu.Unlock()
	if starts != 0 {
		t.Errorf("StartCountdown calls = %d, want 0", starts)
	}
}

func TestHostMode_SchedulesAndCancelsJobs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := store.NewMemoryStore()
	putRecord(t, st, "room-1", store.TimerHostScheduled)

	jobs := &fakeScheduler{}
	m := NewManager(st, nil, jobs, quietLogger())

	m.OnAgentMessage(ctx, "room-1")
	rec, _ := st.Get(ctx, "room-1")
	if !rec.Timer.Scheduled || rec.Timer.JobID == "" {
		t.Fatalf("Timer handle = %+v, want scheduled host job", rec.Timer)
	}
	firstJob := rec.Timer.JobID

	// Re-arm: the previous job is cancelled before a new one is scheduled.
	m.OnAgentMessage(ctx, "room-1")
	jobs.mu.Lock()
	cancelled := append([]string(nil), jobs.cancelled...)
	scheduled := len(jobs.scheduled)
	jobs.mu.Unlock()
	if len(cancelled) != 1 || cancelled[0] != firstJob {
		t.Errorf("cancelled jobs = %v, want [%s]", cancelled, firstJob)
	}
	if scheduled != 2 {
		t.Errorf("scheduled jobs = %d, want 2", scheduled)
	}

	// Visitor reply cancels the live job and clears the handle.
	m.OnVisitorMessage(ctx, "room-1")
	jobs.mu.Lock()
	cancelledCount := len(jobs.cancelled)
	jobs.mu.Unlock()
	if cancelledCount != 2 {
		t.Errorf("cancelled jobs = %d, want 2", cancelledCount)
	}
	rec, _ = st.Get(ctx, "room-1")
	if rec.Timer.Scheduled {
		t.Errorf("Timer handle = %+v, want cleared", rec.Timer)
	}
}

func TestCancel_ToleratesMissingRecord(t *testing.T) {
	t.Parallel()

	m := NewManager(store.NewMemoryStore(), &fakeNotifier{}, nil, quietLogger())
	// Must not panic or error; the session is simply gone.
	m.Cancel(context.Background(), "room-gone")
}
