package session

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/relaydesk/labridge/internal/liveagent"
	"github.com/relaydesk/labridge/internal/store"
)

// runLoop is the room's single polling task. It is iterative, never
// recursive: a backend chat can stay open for tens of minutes and the backend
// paces the loop via long-poll semantics, so each response is followed
// immediately by the next request with no client-side delay.
//
// Before every established-phase poll the persisted record is re-read; the
// record is the single source of truth and can be deleted concurrently by an
// external actor, so trusting an in-memory copy would spin forever against a
// session the backend already discarded.
func (o *Orchestrator) runLoop(r *runner, tokens liveagent.SessionTokens, established bool) {
	defer close(r.done)
	defer o.removeRunner(r.roomID)
	defer o.metrics.loopStopped()

	ctx, span := o.tracer.Start(context.Background(), "session.poll_loop",
		trace.WithAttributes(attribute.String("room.id", r.roomID)))
	defer span.End()

	log := o.logger.With("room", r.roomID)

	for {
		if r.stopped() {
			return
		}

		if established {
			rec, err := o.store.Get(ctx, r.roomID)
			if err != nil || rec.Tokens == nil {
				// Record gone mid-session: an external actor ended the chat.
				o.terminateExpired(ctx, r.roomID, established, log)
				return
			}
			tokens = *rec.Tokens
		}

		res := o.backend.Poll(ctx, tokens)
		o.metrics.recordPoll()

		if r.stopped() {
			return
		}

		switch res.Status {
		case liveagent.PollEmptyRetry:
			// Nothing new; poll again immediately.
			continue

		case liveagent.PollSessionExpired:
			o.terminateExpired(ctx, r.roomID, established, log)
			return

		case liveagent.PollTransportError:
			if !established {
				log.Debug("poll transport error while queued, retrying", "error", res.Err)
				continue
			}
			// Retry only while the record persists; its absence means the
			// session was torn down under us.
			if rec, err := o.store.Get(ctx, r.roomID); err == nil && rec.Tokens != nil {
				log.Debug("poll transport error, retrying", "error", res.Err)
				continue
			}
			o.terminateExpired(ctx, r.roomID, established, log)
			return

		case liveagent.PollEvents:
			if o.handleEvents(ctx, r, &established, tokens, res.Events, log) {
				return
			}
		}
	}
}

// handleEvents processes one poll response in received order. It reports
// whether the loop reached a terminal state. The established flag can flip
// mid-response: events after a ChatEstablished in the same response are
// handled in the established phase.
func (o *Orchestrator) handleEvents(ctx context.Context, r *runner, established *bool, tokens liveagent.SessionTokens, events []liveagent.PollEvent, log *slog.Logger) bool {
	for _, ev := range events {
		o.metrics.recordEvent(string(ev.Type))

		if !*established {
			switch ev.Type {
			case liveagent.EventChatRequestSuccess, liveagent.EventQueueUpdate:
				if msg := o.cfg.Messages.renderQueuePosition(ev.Position); msg != "" {
					if err := o.relay.SendToRoom(ctx, r.roomID, msg); err != nil {
						log.Error("relaying queue position failed", "error", err)
					}
				}

			case liveagent.EventChatRequestFail:
				o.failQueued(ctx, r.roomID, ev.Reason, log)
				return true

			case liveagent.EventChatEstablished:
				o.establish(ctx, r.roomID, tokens, log)
				*established = true
			}
			continue
		}

		switch ev.Type {
		case liveagent.EventChatMessage:
			if err := o.relay.SendToRoom(ctx, r.roomID, ev.Text); err != nil {
				log.Error("relaying agent message failed", "error", err)
			}
			o.idle.OnAgentMessage(ctx, r.roomID)

		case liveagent.EventAgentTyping, liveagent.EventAgentNotTyping:
			if o.cfg.Debug {
				if err := o.relay.SendTyping(ctx, r.roomID, ev.Type == liveagent.EventAgentTyping); err != nil {
					log.Error("relaying typing indicator failed", "error", err)
				}
			}

		case liveagent.EventChatEnded:
			o.endFromBackend(ctx, r.roomID, ev.Reason, log)
			return true
		}
	}
	return false
}

// establish persists the session record (exactly once per session: the
// established flag guards re-entry) and runs the hand-off. Hand-off failures
// never roll back the backend session.
func (o *Orchestrator) establish(ctx context.Context, roomID string, tokens liveagent.SessionTokens, log *slog.Logger) {
	rec := &store.RoomSessionRecord{
		Tokens:           &tokens,
		Idle:             o.cfg.Idle,
		SneakPeekEnabled: o.cfg.SneakPeek,
	}
	if err := o.store.Put(ctx, roomID, rec); err != nil {
		log.Error("persisting session record failed", "error", err)
	}
	o.metrics.recordEstablished()
	log.Info("chat established, agent accepted")

	if err := o.handoff.OnEstablished(ctx, roomID); err != nil {
		log.Error("hand-off failed", "error", err)
		o.apology(ctx, roomID, o.cfg.Messages.HandoffApology, fmt.Sprintf("hand-off failed for room %s: %v", roomID, err))
	}
}

// failQueued handles a terminal ChatRequestFail. Unavailable maps to the
// no-agent message; every other reason maps to the generic message with the
// specific reason forwarded to the debug channel only.
func (o *Orchestrator) failQueued(ctx context.Context, roomID, reason string, log *slog.Logger) {
	log.Info("chat request failed", "reason", reason)

	switch reason {
	case liveagent.FailReasonUnavailable:
		o.metrics.recordFailed("unavailable")
		if err := o.relay.SendToRoom(ctx, roomID, o.cfg.Messages.NoAgentAvailable); err != nil {
			log.Error("relaying failure message failed", "error", err)
		}
	default:
		o.metrics.recordFailed("rejected")
		o.apology(ctx, roomID, o.cfg.Messages.TechnicalDifficulty, fmt.Sprintf("chat request for room %s rejected: %s", roomID, reason))
	}

	// Tokens were never persisted while queued; clear any record a
	// concurrent establish may have landed first.
	if err := o.store.Delete(ctx, roomID); err != nil {
		log.Error("clearing session record failed", "error", err)
	}
}

// endFromBackend handles a ChatEnded event from the agent side.
func (o *Orchestrator) endFromBackend(ctx context.Context, roomID, reason string, log *slog.Logger) {
	log.Info("chat ended by backend", "reason", reason)

	if reason == liveagent.EndReasonAgent {
		if err := o.relay.SetRoomField(ctx, roomID, fieldAgentEndedChat, "true"); err != nil {
			log.Error("setting room field failed", "error", err)
		}
	}

	if err := o.store.Delete(ctx, roomID); err != nil {
		log.Error("clearing session record failed", "error", err)
	}
	o.idle.Cancel(ctx, roomID)
	o.metrics.recordEnded("backend")

	if err := o.handoff.OnEnded(ctx, roomID, o.cfg.Messages.endMessage(reason)); err != nil {
		log.Error("hand-back failed", "error", err)
		o.debugNotify(ctx, fmt.Sprintf("hand-back failed for room %s: %v", roomID, err))
	}
}

// terminateExpired handles a dead session: 403 from the backend or a record
// deleted under a still-running loop.
func (o *Orchestrator) terminateExpired(ctx context.Context, roomID string, established bool, log *slog.Logger) {
	log.Info("session expired", "established", established)

	if err := o.store.Delete(ctx, roomID); err != nil {
		log.Error("clearing session record failed", "error", err)
	}
	o.idle.Cancel(ctx, roomID)

	if established {
		o.metrics.recordEnded("expired")
		if err := o.handoff.OnEnded(ctx, roomID, o.cfg.Messages.SessionExpired); err != nil {
			log.Error("hand-back failed", "error", err)
			o.debugNotify(ctx, fmt.Sprintf("hand-back failed for room %s: %v", roomID, err))
		}
		return
	}

	o.metrics.recordFailed("expired")
	o.apology(ctx, roomID, o.cfg.Messages.TechnicalDifficulty, fmt.Sprintf("session expired for room %s before an agent accepted", roomID))
}
