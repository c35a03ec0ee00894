package session

import "testing"

func TestRenderQueuePosition(t *testing.T) {
	t.Parallel()

	var m Messages
	m.Defaults()

	tests := []struct {
		name     string
		position int
		want     string
	}{
		{"negative", -2, ""},
		{"zero", 0, ""},
		{"next", 1, m.QueueNext},
		{"deeper", 4, "You are number 4 in the queue. Current wait positions: 4."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := m.renderQueuePosition(tt.position); got != tt.want {
				t.Errorf("renderQueuePosition(%d) = %q, want %q", tt.position, got, tt.want)
			}
		})
	}
}

func TestRenderQueuePosition_SubstitutesEveryOccurrence(t *testing.T) {
	t.Parallel()

	m := Messages{QueuePosition: "%s ahead, %s total, %s again"}
	if got := m.renderQueuePosition(7); got != "7 ahead, 7 total, 7 again" {
		t.Errorf("renderQueuePosition(7) = %q", got)
	}
}

func TestEndMessage(t *testing.T) {
	t.Parallel()

	var m Messages
	m.Defaults()

	if got := m.endMessage("agent"); got != m.AgentEnded {
		t.Errorf("endMessage(agent) = %q, want %q", got, m.AgentEnded)
	}
	if got := m.endMessage("operation"); got != m.ChatEnded {
		t.Errorf("endMessage(operation) = %q, want %q", got, m.ChatEnded)
	}
}
