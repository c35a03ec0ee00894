package liveagent

import "encoding/json"

// DecodeEvents maps a raw poll response body to the ordered event list.
// Unknown event types are kept (with empty payload) so ordering stays intact;
// malformed bodies decode to an empty list rather than failing the poll.
func DecodeEvents(body []byte) []PollEvent {
	var raw rawMessages
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil
	}

	events := make([]PollEvent, 0, len(raw.Messages))
	for _, m := range raw.Messages {
		ev := PollEvent{Type: m.Type}

		var payload rawEventBody
		if len(m.Message) > 0 {
			// Absent or unexpected payload fields decode to zero values.
			_ = json.Unmarshal(m.Message, &payload)
		}

		switch m.Type {
		case EventQueueUpdate:
			if payload.Position != nil {
				ev.Position = *payload.Position
			}
		case EventChatRequestSuccess:
			if payload.QueuePosition != nil {
				ev.Position = *payload.QueuePosition
			}
		case EventChatRequestFail, EventChatEnded:
			ev.Reason = payload.Reason
		case EventChatMessage:
			ev.Text = payload.Text
			ev.Name = payload.Name
		}

		events = append(events, ev)
	}
	return events
}

// HasEvent reports whether any event of the given kind occurs.
// Scans in order, short-circuits on the first match.
func HasEvent(events []PollEvent, kind EventType) bool {
	for _, ev := range events {
		if ev.Type == kind {
			return true
		}
	}
	return false
}

// FirstEvent returns the first event of the given kind, if any.
// Ordering within a poll response is significant: when only one event of a
// kind matters, the first one wins.
func FirstEvent(events []PollEvent, kind EventType) (PollEvent, bool) {
	for _, ev := range events {
		if ev.Type == kind {
			return ev, true
		}
	}
	return PollEvent{}, false
}
