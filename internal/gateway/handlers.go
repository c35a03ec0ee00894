package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/relaydesk/labridge/internal/liveagent"
	"github.com/relaydesk/labridge/internal/session"
)

// maxWebhookBody bounds webhook payload reads.
const maxWebhookBody = 64 * 1024

// startPayload is the body of POST /webhooks/start.
type startPayload struct {
	RoomID       string `json:"roomId"`
	VisitorName  string `json:"visitorName"`
	VisitorEmail string `json:"visitorEmail"`
}

// messagePayload is the body of POST /webhooks/message.
type messagePayload struct {
	RoomID string `json:"roomId"`
	Text   string `json:"text"`
}

// typingPayload is the body of POST /webhooks/typing.
type typingPayload struct {
	RoomID string `json:"roomId"`
	Typing bool   `json:"typing"`

	// Partial is the draft text shown to the agent when sneak peek is on.
	Partial string `json:"partial,omitempty"`
}

// roomPayload is the body of close and timeout webhooks.
type roomPayload struct {
	RoomID string `json:"roomId"`
}

// handleStart opens a new backend session for the room.
func (g *Gateway) handleStart() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p startPayload
		if !g.decode(w, r, &p) || !requireRoom(w, p.RoomID) {
			return
		}

		err := g.orch.StartSession(r.Context(), p.RoomID, liveagent.Visitor{
			Name:  p.VisitorName,
			Email: p.VisitorEmail,
		})
		g.respond(w, err)
	}
}

// handleMessage forwards a visitor message to the agent.
func (g *Gateway) handleMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p messagePayload
		if !g.decode(w, r, &p) || !requireRoom(w, p.RoomID) {
			return
		}
		g.respond(w, g.orch.VisitorMessage(r.Context(), p.RoomID, p.Text))
	}
}

// handleTyping forwards the visitor's typing state.
func (g *Gateway) handleTyping() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p typingPayload
		if !g.decode(w, r, &p) || !requireRoom(w, p.RoomID) {
			return
		}
		g.respond(w, g.orch.VisitorTyping(r.Context(), p.RoomID, p.Typing, p.Partial))
	}
}

// handleClose ends the session on the visitor's behalf.
func (g *Gateway) handleClose() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p roomPayload
		if !g.decode(w, r, &p) || !requireRoom(w, p.RoomID) {
			return
		}
		g.respond(w, g.orch.CloseByVisitor(r.Context(), p.RoomID))
	}
}

// handleTimeout closes the room as timed out. Called by the host platform's
// job scheduler when a host-scheduled idle timer fires.
func (g *Gateway) handleTimeout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p roomPayload
		if !g.decode(w, r, &p) || !requireRoom(w, p.RoomID) {
			return
		}
		g.respond(w, g.orch.CloseByTimeout(r.Context(), p.RoomID))
	}
}

// healthResponse is the JSON response for GET /health.
type healthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

// handleHealth reports liveness and the number of running poll loops.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := healthResponse{Status: "ok"}
		if g.orch != nil {
			resp.Sessions = g.orch.ActiveLoops()
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// decode parses a JSON body into v, writing a 400 on failure.
func (g *Gateway) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body := io.LimitReader(r.Body, maxWebhookBody)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return false
	}
	return true
}

func requireRoom(w http.ResponseWriter, roomID string) bool {
	if roomID == "" {
		http.Error(w, "roomId is required", http.StatusBadRequest)
		return false
	}
	return true
}

// respond maps orchestrator errors onto HTTP statuses and writes the result.
func (g *Gateway) respond(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	case errors.Is(err, session.ErrSessionActive):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, session.ErrNoSession):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		g.logger.Error("webhook failed", "error", err)
		http.Error(w, "internal error", http.StatusBadGateway)
	}
}
