package gateway

import (
	"time"

	"github.com/soyeahso/agentgen/internal/hooks"
)

// Frame types on the event stream.
const (
	FrameTypeHello = "hello"
	FrameTypeEvent = "event"
)

// Frame is one message pushed to a /ws/events subscriber.
type Frame struct {
	Type    string         `json:"type"`
	Event   string         `json:"event,omitempty"`
	Seq     int64          `json:"seq,omitempty"`
	Time    time.Time      `json:"time"`
	Payload map[string]any `json:"payload,omitempty"`
}

// NewEvent wraps a hook payload in an event frame.
func NewEvent(p hooks.Payload, seq int64) Frame {
	return Frame{
		Type:    FrameTypeEvent,
		Event:   p.Event,
		Seq:     seq,
		Time:    p.Time,
		Payload: p.Data,
	}
}

// newHello is the first frame a subscriber receives.
func newHello(connID, version string) Frame {
	return Frame{
		Type: FrameTypeHello,
		Time: time.Now().UTC(),
		Payload: map[string]any{
			"conn_id": connID,
			"version": version,
			"events":  hooks.AllEvents,
		},
	}
}
