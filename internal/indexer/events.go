// Package indexer defines the Kafka event schema shared by the index build
// pipeline and the search processes that reload from it.
package indexer

import "time"

// IndexPublished is produced after a new symbol index has been written to
// its durable stores. Search processes react by reloading.
type IndexPublished struct {
	Source      string    `json:"source"`
	Entries     int       `json:"entries"`
	Targets     int       `json:"targets"`
	Snapshot    string    `json:"snapshot,omitempty"`
	Postgres    bool      `json:"postgres"`
	PublishedAt time.Time `json:"published_at"`
}
