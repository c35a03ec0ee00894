package session

import (
	"strconv"
	"strings"
)

// Messages are the visitor-facing texts the orchestrator relays. All fields
// have defaults; deployments override them in configuration.
type Messages struct {
	QueueNext           string `yaml:"queue_next"`
	QueuePosition       string `yaml:"queue_position"`
	NoAgentAvailable    string `yaml:"no_agent_available"`
	TechnicalDifficulty string `yaml:"technical_difficulty"`
	SessionExpired      string `yaml:"session_expired"`
	AgentEnded          string `yaml:"agent_ended"`
	ChatEnded           string `yaml:"chat_ended"`
	TimeoutClosed       string `yaml:"timeout_closed"`
	HandoffApology      string `yaml:"handoff_apology"`
}

// Defaults fills unset message fields.
func (m *Messages) Defaults() {
	if m.QueueNext == "" {
		m.QueueNext = "An agent will be with you shortly."
	}
	if m.QueuePosition == "" {
		m.QueuePosition = "You are number %s in the queue. Current wait positions: %s."
	}
	if m.NoAgentAvailable == "" {
		m.NoAgentAvailable = "No agent is available right now. Please try again later."
	}
	if m.TechnicalDifficulty == "" {
		m.TechnicalDifficulty = "We are experiencing technical difficulties. Please try again later."
	}
	if m.SessionExpired == "" {
		m.SessionExpired = "Your chat session has expired."
	}
	if m.AgentEnded == "" {
		m.AgentEnded = "The agent has ended the chat."
	}
	if m.ChatEnded == "" {
		m.ChatEnded = "The chat has ended. You can close this window."
	}
	if m.TimeoutClosed == "" {
		m.TimeoutClosed = "The chat was closed due to inactivity."
	}
	if m.HandoffApology == "" {
		m.HandoffApology = "We could not connect you to an agent's queue, but your chat is still active."
	}
}

// renderQueuePosition renders the visitor-facing queue message for a given
// position. Position 1 means no queue ahead of the visitor and uses the
// distinct "you are next" variant. Position N > 1 substitutes N for every %s
// occurrence in the template. Positions below 1 are not a defined input and
// render to "" (the caller skips the relay and keeps polling).
func (m Messages) renderQueuePosition(position int) string {
	switch {
	case position < 1:
		return ""
	case position == 1:
		return m.QueueNext
	default:
		return strings.ReplaceAll(m.QueuePosition, "%s", strconv.Itoa(position))
	}
}

// endMessage maps a ChatEnded reason to the visitor-facing end text.
func (m Messages) endMessage(reason string) string {
	if reason == "agent" {
		return m.AgentEnded
	}
	return m.ChatEnded
}
