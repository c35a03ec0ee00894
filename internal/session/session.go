// Package session owns the per-room chat session lifecycle: requesting a
// backend session, waiting in the agent queue, relaying messages while the
// chat is established, and tearing everything down when it ends.
//
// The package enforces at most one active poll loop per room and treats the
// persisted room record as the cancellation mechanism: every established-phase
// iteration re-reads the record, and deleting it stops the loop.
package session

import (
	"context"

	"github.com/relaydesk/labridge/internal/liveagent"
	"github.com/relaydesk/labridge/internal/store"
)

// Backend is the subset of the backend chat client the orchestrator needs.
// Implemented by *liveagent.Client.
type Backend interface {
	CreateSession(ctx context.Context) (liveagent.SessionTokens, error)
	RequestChat(ctx context.Context, tokens liveagent.SessionTokens, req liveagent.ChatRequest) error
	Poll(ctx context.Context, tokens liveagent.SessionTokens) liveagent.PollResult
	SendMessage(ctx context.Context, tokens liveagent.SessionTokens, text string) error
	EndChat(ctx context.Context, tokens liveagent.SessionTokens, reason string) error
	SetTyping(ctx context.Context, tokens liveagent.SessionTokens, typing bool) error
	SetSneakPeek(ctx context.Context, tokens liveagent.SessionTokens, partial string) error
}

// Relay delivers output to the visitor-facing room on the host platform.
type Relay interface {
	SendToRoom(ctx context.Context, roomID, text string) error
	SendTyping(ctx context.Context, roomID string, typing bool) error
	SetRoomField(ctx context.Context, roomID, key, value string) error
	CloseRoom(ctx context.Context, roomID, comment string) error
}

// Handoff is invoked when a session is established (agent accepted) and when
// it ends. Implementations live in the handoff package; which one is used is
// a configuration choice.
//
// Errors from Handoff never roll back the backend session: the orchestrator
// surfaces an apology and keeps going.
type Handoff interface {
	OnEstablished(ctx context.Context, roomID string) error
	OnEnded(ctx context.Context, roomID, message string) error
}

// IdleControl reacts to message traffic for the inactivity-timeout policy.
// Implemented by *idle.Manager.
type IdleControl interface {
	OnAgentMessage(ctx context.Context, roomID string)
	OnVisitorMessage(ctx context.Context, roomID string)
	Cancel(ctx context.Context, roomID string)
}

// End reasons forwarded to the backend on EndChat.
const (
	endReasonClient  = "client"
	endReasonTimeout = "idle-timeout"
)

// Room custom fields set on terminal transitions.
const (
	fieldAgentEndedChat  = "agentEndedChat"
	fieldClosedByTimeout = "idleTimeoutClosed"
)

// Config holds the orchestrator's backend identifiers and policies.
type Config struct {
	OrganizationID string
	DeploymentID   string
	ButtonID       string

	// Debug forwards typing indicators and failure details to the room and
	// debug channel. Off by default: visitors only ever see one apology per
	// terminal failure.
	Debug bool

	// DebugRoomID, when set together with Debug, receives diagnostic copies
	// of failure details.
	DebugRoomID string

	// SneakPeek selects ChasitorSneakPeek over plain typing signals.
	SneakPeek bool

	Idle     store.IdleTimeoutConfig
	Messages Messages
}
