package reload

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/pkg/kafka"
)

// HandleNotification returns a Kafka MessageHandler that reloads on every
// IndexPublished event. Undecodable messages are logged and skipped.
func (r *Reloader) HandleNotification() kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[indexer.IndexPublished](value)
		if err != nil {
			r.logger.Error("failed to decode index notification", "key", string(key), "error", err)
			return nil
		}
		r.logger.Info("index published upstream",
			"source", event.Source,
			"entries", event.Entries,
			"snapshot", event.Snapshot,
			"published_at", event.PublishedAt,
		)
		if _, err := r.Reload(ctx, TriggerNotification); err != nil {
			return fmt.Errorf("reloading after notification from %s: %w", event.Source, err)
		}
		return nil
	}
}
