package source

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/internal/symbolindex"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/pkg/resilience"
)

const selectTargets = `SELECT ordinal, display_name, scope, reference
	FROM symbol_targets
	ORDER BY ordinal, target_ordinal`

// PostgresSource reads the symbol_targets table written by the publisher.
// Queries go through a circuit breaker so a database outage fails reloads
// fast instead of piling up.
type PostgresSource struct {
	db      *sql.DB
	breaker *resilience.CircuitBreaker
}

// PostgresOption configures a PostgresSource.
type PostgresOption func(*PostgresSource)

// WithBreaker replaces the default circuit breaker.
func WithBreaker(cb *resilience.CircuitBreaker) PostgresOption {
	return func(s *PostgresSource) { s.breaker = cb }
}

func NewPostgres(db *sql.DB, opts ...PostgresOption) *PostgresSource {
	s := &PostgresSource{db: db}
	for _, opt := range opts {
		opt(s)
	}
	if s.breaker == nil {
		s.breaker = resilience.NewCircuitBreaker("postgres-source", resilience.CircuitBreakerConfig{})
	}
	return s
}

func (s *PostgresSource) Name() string { return "postgres:symbol_targets" }

func (s *PostgresSource) Records(ctx context.Context) ([]symbolindex.Record, error) {
	var rows []targetRow
	err := s.breaker.Execute(func() error {
		var err error
		rows, err = s.query(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return groupRows(rows), nil
}

type targetRow struct {
	ordinal     int
	displayName string
	scope       string
	reference   string
}

func (s *PostgresSource) query(ctx context.Context) ([]targetRow, error) {
	rows, err := s.db.QueryContext(ctx, selectTargets)
	if err != nil {
		return nil, fmt.Errorf("querying symbol_targets: %w", err)
	}
	defer rows.Close()

	var out []targetRow
	for rows.Next() {
		var r targetRow
		if err := rows.Scan(&r.ordinal, &r.displayName, &r.scope, &r.reference); err != nil {
			return nil, fmt.Errorf("scanning symbol_targets row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating symbol_targets: %w", err)
	}
	return out, nil
}

// groupRows folds consecutive rows sharing an ordinal into one record.
func groupRows(rows []targetRow) []symbolindex.Record {
	var records []symbolindex.Record
	for i, r := range rows {
		target := symbolindex.Target{Scope: r.scope, Reference: r.reference}
		if i > 0 && rows[i-1].ordinal == r.ordinal {
			last := &records[len(records)-1]
			last.Targets = append(last.Targets, target)
			continue
		}
		records = append(records, symbolindex.Record{
			DisplayName: r.displayName,
			Targets:     []symbolindex.Target{target},
		})
	}
	return records
}
