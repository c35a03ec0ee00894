package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/relaydesk/labridge/internal/liveagent"
	"github.com/relaydesk/labridge/internal/session"
)

type orchCall struct {
	op     string
	roomID string
	arg    string
}

type fakeOrchestrator struct {
	mu       sync.Mutex
	calls    []orchCall
	startErr error
	msgErr   error
	active   int
}

func (o *fakeOrchestrator) StartSession(_ context.Context, roomID string, visitor liveagent.Visitor) error {
	o.record(orchCall{"start", roomID, visitor.Name})
	return o.startErr
}

func (o *fakeOrchestrator) VisitorMessage(_ context.Context, roomID, text string) error {
	o.record(orchCall{"message", roomID, text})
	return o.msgErr
}

func (o *fakeOrchestrator) VisitorTyping(_ context.Context, roomID string, typing bool, partial string) error {
	o.record(orchCall{"typing", roomID, partial})
	return nil
}

func (o *fakeOrchestrator) CloseByVisitor(_ context.Context, roomID string) error {
	o.record(orchCall{"close", roomID, ""})
	return nil
}

func (o *fakeOrchestrator) CloseByTimeout(_ context.Context, roomID string) error {
	o.record(orchCall{"timeout", roomID, ""})
	return nil
}

func (o *fakeOrchestrator) ActiveLoops() int { return o.active }

func (o *fakeOrchestrator) record(c orchCall) {
	o.mu.Lock()
	o.calls = append(o.calls, c)
	o.mu.Unlock()
}

func (o *fakeOrchestrator) callList() []orchCall {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]orchCall(nil), o.calls...)
}

func testGateway(orch Orchestrator) http.Handler {
	g := New(Config{AuthToken: "secret"}, orch, nil, nil, nil)
	return g.buildRouter()
}

func authedRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer secret")
	return req
}

func TestWebhooks_RequireAuth(t *testing.T) {
	t.Parallel()

	handler := testGateway(&fakeOrchestrator{})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/start", strings.NewReader(`{"roomId":"r"}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestWebhooks_InvalidToken(t *testing.T) {
	t.Parallel()

	handler := testGateway(&fakeOrchestrator{})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/start", strings.NewReader(`{"roomId":"r"}`))
	req.Header.Set("Authorization", "Bearer wrong")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestStartWebhook_DrivesOrchestrator(t *testing.T) {
	t.Parallel()

	orch := &fakeOrchestrator{}
	handler := testGateway(orch)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authedRequest(http.MethodPost, "/webhooks/start",
		`{"roomId":"room-1","visitorName":"Ada","visitorEmail":"ada@example.com"}`))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	calls := orch.callList()
	if len(calls) != 1 || calls[0].op != "start" || calls[0].roomID != "room-1" || calls[0].arg != "Ada" {
		t.Errorf("calls = %v", calls)
	}
}

func TestStartWebhook_ConflictMapping(t *testing.T) {
	t.Parallel()

	orch := &fakeOrchestrator{startErr: session.ErrSessionActive}
	handler := testGateway(orch)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authedRequest(http.MethodPost, "/webhooks/start", `{"roomId":"room-1"}`))

	if rr.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusConflict)
	}
}

func TestMessageWebhook_NoSessionMapping(t *testing.T) {
	t.Parallel()

	orch := &fakeOrchestrator{msgErr: session.ErrNoSession}
	handler := testGateway(orch)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authedRequest(http.MethodPost, "/webhooks/message",
		`{"roomId":"room-1","text":"hi"}`))

	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestWebhooks_MissingRoomID(t *testing.T) {
	t.Parallel()

	orch := &fakeOrchestrator{}
	handler := testGateway(orch)

	for _, path := range []string{"/webhooks/start", "/webhooks/message", "/webhooks/typing", "/webhooks/close", "/webhooks/timeout"} {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, authedRequest(http.MethodPost, path, `{}`))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want %d", path, rr.Code, http.StatusBadRequest)
		}
	}
	if calls := orch.callList(); len(calls) != 0 {
		t.Errorf("calls = %v, want none for invalid payloads", calls)
	}
}

func TestTypingWebhook_ForwardsPartial(t *testing.T) {
	t.Parallel()

	orch := &fakeOrchestrator{}
	handler := testGateway(orch)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authedRequest(http.MethodPost, "/webhooks/typing",
		`{"roomId":"room-1","typing":true,"partial":"dra"}`))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	calls := orch.callList()
	if len(calls) != 1 || calls[0].op != "typing" || calls[0].arg != "dra" {
		t.Errorf("calls = %v", calls)
	}
}

func TestCloseAndTimeoutWebhooks(t *testing.T) {
	t.Parallel()

	orch := &fakeOrchestrator{}
	handler := testGateway(orch)

	for _, tt := range []struct{ path, op string }{
		{"/webhooks/close", "close"},
		{"/webhooks/timeout", "timeout"},
	} {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, authedRequest(http.MethodPost, tt.path, `{"roomId":"room-1"}`))
		if rr.Code != http.StatusOK {
			t.Errorf("%s: status = %d", tt.path, rr.Code)
		}
	}

	calls := orch.callList()
	if len(calls) != 2 || calls[0].op != "close" || calls[1].op != "timeout" {
		t.Errorf("calls = %v", calls)
	}
}

func TestHealth_PublicAndReportsSessions(t *testing.T) {
	t.Parallel()

	handler := testGateway(&fakeOrchestrator{active: 3})

	// No auth header: health is public.
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp healthResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding health response: %v", err)
	}
	if resp.Status != "ok" || resp.Sessions != 3 {
		t.Errorf("health = %+v", resp)
	}
}
