// Package relay delivers orchestrator output to the visitor: messages and
// room operations go to the host platform as the bridge bot, and a copy of
// every visitor-relevant event is published to the room's widget stream.
package relay

import (
	"context"
	"log/slog"
	"time"
)

// EventKind discriminates widget stream events.
type EventKind string

// Widget stream event kinds.
const (
	EventMessage        EventKind = "message"
	EventTyping         EventKind = "typing"
	EventCountdownStart EventKind = "countdown_start"
	EventCountdownStop  EventKind = "countdown_stop"
	EventClosed         EventKind = "closed"
)

// Event is one entry on a room's widget stream.
type Event struct {
	Kind           EventKind `json:"kind"`
	Text           string    `json:"text,omitempty"`
	Typing         bool      `json:"typing,omitempty"`
	WarnSeconds    int       `json:"warnSeconds,omitempty"`
	TimeoutSeconds int       `json:"timeoutSeconds,omitempty"`
}

// Publisher fans events out to the room's connected widget clients.
// Implemented by the gateway's WebSocket hub.
type Publisher interface {
	Publish(roomID string, ev Event)
}

// Platform is the subset of host-platform bot operations the relay needs.
// Implemented by *host.Bot.
type Platform interface {
	SendMessage(ctx context.Context, roomID, text string) error
	SetRoomField(ctx context.Context, roomID, key, value string) error
	CloseRoom(ctx context.Context, roomID, comment string) error
}

// RoomRelay implements the session package's Relay and the idle package's
// Notifier on top of the host platform bot and the widget stream.
type RoomRelay struct {
	platform Platform
	pub      Publisher
	logger   *slog.Logger
}

// New creates a RoomRelay. pub may be nil when no widget stream is exposed.
func New(platform Platform, pub Publisher, logger *slog.Logger) *RoomRelay {
	if logger == nil {
		logger = slog.Default()
	}
	return &RoomRelay{
		platform: platform,
		pub:      pub,
		logger:   logger.With("component", "relay"),
	}
}

// SendToRoom posts text into the room and mirrors it onto the widget stream.
func (r *RoomRelay) SendToRoom(ctx context.Context, roomID, text string) error {
	if err := r.platform.SendMessage(ctx, roomID, text); err != nil {
		return err
	}
	r.publish(roomID, Event{Kind: EventMessage, Text: text})
	return nil
}

// SendTyping pushes the agent's typing state to the widget stream. The host
// platform has no REST surface for third-party typing indicators, so this is
// widget-only.
func (r *RoomRelay) SendTyping(_ context.Context, roomID string, typing bool) error {
	r.publish(roomID, Event{Kind: EventTyping, Typing: typing})
	return nil
}

// SetRoomField sets one custom field on the room.
func (r *RoomRelay) SetRoomField(ctx context.Context, roomID, key, value string) error {
	return r.platform.SetRoomField(ctx, roomID, key, value)
}

// CloseRoom closes the room on the host platform and tells the widget.
func (r *RoomRelay) CloseRoom(ctx context.Context, roomID, comment string) error {
	if err := r.platform.CloseRoom(ctx, roomID, comment); err != nil {
		return err
	}
	r.publish(roomID, Event{Kind: EventClosed, Text: comment})
	return nil
}

// StartCountdown implements the idle package's Notifier.
func (r *RoomRelay) StartCountdown(roomID string, warnAfter, closeAfter time.Duration) {
	r.publish(roomID, Event{
		Kind:           EventCountdownStart,
		WarnSeconds:    int(warnAfter.Seconds()),
		TimeoutSeconds: int(closeAfter.Seconds()),
	})
}

// StopCountdown implements the idle package's Notifier.
func (r *RoomRelay) StopCountdown(roomID string) {
	r.publish(roomID, Event{Kind: EventCountdownStop})
}

func (r *RoomRelay) publish(roomID string, ev Event) {
	if r.pub != nil {
		r.pub.Publish(roomID, ev)
	}
}
