// Package analytics collects query and reload events, ships them over Kafka,
// and aggregates them into the stats served at /api/v1/analytics.
package analytics

import "time"

type EventType string

const (
	EventQuery  EventType = "query"
	EventReload EventType = "reload"
)

// QueryEvent describes one answered search or lookup.
type QueryEvent struct {
	Type          EventType `json:"type"`
	Query         string    `json:"query"`
	Text          string    `json:"text"`
	Mode          string    `json:"mode"`
	Scope         string    `json:"scope,omitempty"`
	Generation    uint64    `json:"generation"`
	TotalHits     int       `json:"total_hits"`
	Returned      int       `json:"returned"`
	LatencyMicros int64     `json:"latency_us"`
	CacheHit      bool      `json:"cache_hit"`
	Timestamp     time.Time `json:"timestamp"`
	RequestID     string    `json:"request_id,omitempty"`
}

// ReloadEvent describes one attempt to replace the active index.
type ReloadEvent struct {
	Type       EventType `json:"type"`
	Trigger    string    `json:"trigger"`
	Success    bool      `json:"success"`
	Generation uint64    `json:"generation"`
	Entries    int       `json:"entries"`
	Targets    int       `json:"targets"`
	LatencyMs  int64     `json:"latency_ms"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Tracker accepts events. Collector ships them to Kafka; Aggregator records
// them in process.
type Tracker interface {
	Track(event any)
}

// Trackers fans each event out to every tracker in order.
type Trackers []Tracker

func (ts Trackers) Track(event any) {
	for _, t := range ts {
		t.Track(event)
	}
}
