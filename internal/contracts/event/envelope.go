package event

import "time"

// TrackingEnvelope is the canonical envelope for ad tracking traffic on the
// broker, both inbound (edge beacons) and outbound (recorded notifications).
// message_id drives consumer-side dedupe and may be absent on old producers.
type TrackingEnvelope[T any] struct {
	Version    int       `json:"version"`
	Producer   string    `json:"producer"`
	TraceID    string    `json:"trace_id,omitempty"`
	MessageID  string    `json:"message_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    T         `json:"payload"`
}

// BeaconPayload is an impression or click reported by an edge producer
// (pixel endpoint, CDN log tailer). timestamp falls back to the envelope's
// occurred_at when empty.
type BeaconPayload struct {
	AdID      string `json:"ad_id"`
	Timestamp string `json:"timestamp,omitempty"` // RFC3339
	SourceIP  string `json:"source_ip,omitempty"`
}

// RecordedPayload is published after an event is durably appended, for
// downstream reporting consumers.
type RecordedPayload struct {
	EventID    string `json:"event_id"`
	AdID       string `json:"ad_id"`
	Type       string `json:"type"` // impression | click
	OccurredAt string `json:"occurred_at"`
}
