// Package publisher writes a freshly built symbol index to its durable
// stores and announces it on Kafka so running search processes reload.
package publisher

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/internal/symbolindex"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/internal/symbolindex/snapshot"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/pkg/kafka"
)

// TxRunner runs fn inside a database transaction. *postgres.Client
// satisfies it.
type TxRunner interface {
	InTx(ctx context.Context, fn func(tx *sql.Tx) error) error
}

// Publisher fans a built index out to the configured stores. Each store is
// optional; a Publisher with none of them only validates the index.
type Publisher struct {
	snapshotDir string
	db          TxRunner
	producer    kafka.Publisher
	logger      *slog.Logger
}

type Option func(*Publisher)

// WithSnapshotDir writes a .symx snapshot into dir on every Publish.
func WithSnapshotDir(dir string) Option {
	return func(p *Publisher) { p.snapshotDir = dir }
}

// WithPostgres replaces the symbol_targets table on every Publish.
func WithPostgres(db TxRunner) Option {
	return func(p *Publisher) { p.db = db }
}

// WithProducer announces every Publish as an IndexPublished event.
func WithProducer(producer kafka.Publisher) Option {
	return func(p *Publisher) { p.producer = producer }
}

func New(opts ...Option) *Publisher {
	p := &Publisher{logger: slog.Default().With("component", "index-publisher")}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish stores idx and returns the event describing what was written.
// Stores are written before the announcement, so a consumer reacting to the
// event always finds the new data. A failed announcement is logged but does
// not fail the publish: the data is already durable and watchers still see
// it.
func (p *Publisher) Publish(ctx context.Context, idx *symbolindex.Index, sourceName string) (indexer.IndexPublished, error) {
	event := indexer.IndexPublished{
		Source:  sourceName,
		Entries: idx.Len(),
		Targets: idx.TargetCount(),
	}

	if p.snapshotDir != "" {
		name, err := snapshot.Write(p.snapshotDir, idx)
		if err != nil {
			return event, fmt.Errorf("writing snapshot: %w", err)
		}
		event.Snapshot = filepath.Join(p.snapshotDir, name)
		p.logger.Info("snapshot written", "path", event.Snapshot, "entries", event.Entries)
	}

	if p.db != nil {
		if err := p.db.InTx(ctx, func(tx *sql.Tx) error {
			return replaceTargets(ctx, tx, idx.Records())
		}); err != nil {
			return event, fmt.Errorf("storing symbol targets: %w", err)
		}
		event.Postgres = true
		p.logger.Info("symbol targets stored", "entries", event.Entries, "targets", event.Targets)
	}

	event.PublishedAt = time.Now().UTC()
	if p.producer != nil {
		if err := p.producer.Publish(ctx, kafka.Event{Key: sourceName, Value: event}); err != nil {
			p.logger.Error("failed to announce published index",
				"source", sourceName,
				"error", err,
			)
		}
	}
	return event, nil
}

func replaceTargets(ctx context.Context, tx *sql.Tx, records []symbolindex.Record) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM symbol_targets`); err != nil {
		return fmt.Errorf("clearing symbol targets: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO symbol_targets (ordinal, target_ordinal, display_name, scope, reference)
		VALUES ($1, $2, $3, $4, $5)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, rec := range records {
		for j, t := range rec.Targets {
			if _, err := stmt.ExecContext(ctx, i, j, rec.DisplayName, t.Scope, t.Reference); err != nil {
				return fmt.Errorf("inserting %q target %d: %w", rec.DisplayName, j, err)
			}
		}
	}
	return nil
}
