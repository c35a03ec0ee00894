package liveagent

import "encoding/json"

// SessionTokens identifies one backend chat session. A room owns at most one
// live set of tokens at a time; the persisted record is the source of truth.
type SessionTokens struct {
	SessionID     string `json:"id"`
	AffinityToken string `json:"affinityToken"`
	SessionKey    string `json:"key"`
}

// Valid reports whether all three identifiers are present.
func (t SessionTokens) Valid() bool {
	return t.SessionID != "" && t.AffinityToken != "" && t.SessionKey != ""
}

// EventType discriminates the backend event kinds carried in a poll response.
type EventType string

// Backend event kinds.
const (
	EventQueueUpdate        EventType = "QueueUpdate"
	EventChatRequestSuccess EventType = "ChatRequestSuccess"
	EventChatRequestFail    EventType = "ChatRequestFail"
	EventChatEstablished    EventType = "ChatEstablished"
	EventChatMessage        EventType = "ChatMessage"
	EventAgentTyping        EventType = "AgentTyping"
	EventAgentNotTyping     EventType = "AgentNotTyping"
	EventChatEnded          EventType = "ChatEnded"
)

// Fail reasons reported by ChatRequestFail.
const (
	FailReasonUnavailable     = "Unavailable"
	FailReasonNoPost          = "NoPost"
	FailReasonInternalFailure = "InternalFailure"
)

// EndReasonAgent is the ChatEnded reason set when the human agent closed the
// chat from their console.
const EndReasonAgent = "agent"

// PollEvent is one backend event. Type discriminates which fields are
// meaningful: Position for queue events, Reason for fail/end events,
// Text and Name for chat messages.
type PollEvent struct {
	Type     EventType
	Position int
	Reason   string
	Text     string
	Name     string
}

// PollStatus classifies the outcome of one poll round trip.
type PollStatus int

// Poll outcomes. The distinction between EmptyRetry and SessionExpired is the
// central contract of this package: 204/409 mean "nothing yet, ask again",
// 403 means the tokens are dead.
const (
	PollEvents PollStatus = iota
	PollEmptyRetry
	PollSessionExpired
	PollTransportError
)

// PollResult is the normalized outcome of one Poll call.
type PollResult struct {
	Status PollStatus
	Events []PollEvent
	Err    error
}

// rawMessages is the wire shape of a poll response body.
type rawMessages struct {
	Messages []rawMessage `json:"messages"`
	Sequence int          `json:"sequence"`
}

type rawMessage struct {
	Type    EventType       `json:"type"`
	Message json.RawMessage `json:"message"`
}

// rawEventBody covers the union of per-event payload fields. Absent fields
// decode to zero values, which downstream code treats as "not present".
type rawEventBody struct {
	Position      *int   `json:"position"`
	QueuePosition *int   `json:"queuePosition"`
	Reason        string `json:"reason"`
	Text          string `json:"text"`
	Name          string `json:"name"`
}
