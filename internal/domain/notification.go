package domain

import (
	"encoding/json"
	"time"
)

// Notification is a single live-update emission.
type Notification struct {
	Topic     Topic
	Payload   map[string]any
	Timestamp time.Time
	// Origin is the id of the bus that emitted the notification.
	Origin string
}

// marker is the value written to the shared key for cross-tab signaling.
type marker struct {
	TS      int64          `json:"ts"`
	Payload map[string]any `json:"payload"`
	Origin  string         `json:"origin,omitempty"`
}

// EncodeMarker renders the notification as the cross-tab marker record.
func (n Notification) EncodeMarker() ([]byte, error) {
	payload := n.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	return json.Marshal(marker{
		TS:      n.Timestamp.UnixMilli(),
		Payload: payload,
		Origin:  n.Origin,
	})
}

// DecodeMarker parses a marker written under topic's key. Anything that does
// not decode yields a notification with an empty payload and no origin.
func DecodeMarker(topic Topic, data []byte) Notification {
	n := Notification{Topic: topic, Payload: map[string]any{}}

	var m marker
	if err := json.Unmarshal(data, &m); err != nil {
		return n
	}
	if m.Payload != nil {
		n.Payload = m.Payload
	}
	if m.TS > 0 {
		n.Timestamp = time.UnixMilli(m.TS)
	}
	n.Origin = m.Origin
	return n
}
