package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/maptitesalle/mylittlegymcoach/internal/database"
	"github.com/maptitesalle/mylittlegymcoach/internal/logger"
	"github.com/maptitesalle/mylittlegymcoach/internal/shared"
)

// ExecutionMetric records metadata for a single generator call.
type ExecutionMetric struct {
	AgentName        string
	Model            string
	Status           string
	PromptTokens     int
	CompletionTokens int
	LatencyMS        int64
	Timestamp        time.Time
}

// Store handles persistence of metrics to the database.
type Store struct {
	db        *database.DB
	collector *Collector
	log       *logger.Logger
}

// NewStore initializes the Store with an existing database connection.
// collector may be nil.
func NewStore(db *database.DB, collector *Collector, log *logger.Logger) *Store {
	return &Store{
		db:        db,
		collector: collector,
		log:       log.With("component", "MetricsStore"),
	}
}

// Collector returns the Prometheus collectors fed by RecordGeneration.
func (s *Store) Collector() *Collector {
	return s.collector
}

// Record saves a metric to the database.
func (s *Store) Record(ctx context.Context, m ExecutionMetric) error {
	ts := m.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	_, err := s.db.SQL.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO execution_metrics (agent_name, model, status, prompt_tokens, completion_tokens, latency_ms, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		m.AgentName, m.Model, m.Status, m.PromptTokens, m.CompletionTokens, m.LatencyMS, ts.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record execution metric: %w", err)
	}
	return nil
}

// RecordGeneration stores one generator call and updates the Prometheus
// collectors. Failures are logged, never returned to the generation path.
func (s *Store) RecordGeneration(ctx context.Context, meta shared.GenerationMeta) {
	if s.collector != nil {
		s.collector.Observe(meta)
	}
	if err := s.Record(ctx, MapUsage(meta)); err != nil {
		s.log.Warn("Failed to record generation metric", "agent", meta.AgentName, "error", err)
	}
}

// DailyUsage represents token totals for a single day.
type DailyUsage struct {
	Date            string
	TotalPrompt     int
	TotalCompletion int
	TotalExecution  int
	Failed          int
}

// GetDailyUsage retrieves usage for the last N days, most recent first.
func (s *Store) GetDailyUsage(ctx context.Context, days int) ([]DailyUsage, error) {
	since := time.Now().UTC().AddDate(0, 0, -days)

	day := "substr(timestamp, 1, 10)"
	if s.db.Dialect == database.Postgres {
		day = "to_char(timestamp, 'YYYY-MM-DD')"
	}

	rows, err := s.db.SQL.QueryContext(ctx, s.db.Rebind(`
		SELECT `+day+` AS day,
		       COALESCE(SUM(prompt_tokens), 0),
		       COALESCE(SUM(completion_tokens), 0),
		       COUNT(*),
		       COALESCE(SUM(CASE WHEN status = 'error' THEN 1 ELSE 0 END), 0)
		FROM execution_metrics
		WHERE timestamp >= ?
		GROUP BY day
		ORDER BY day DESC`), since)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily usage: %w", err)
	}
	defer rows.Close()

	var results []DailyUsage
	for rows.Next() {
		var u DailyUsage
		if err := rows.Scan(&u.Date, &u.TotalPrompt, &u.TotalCompletion, &u.TotalExecution, &u.Failed); err != nil {
			return nil, fmt.Errorf("failed to scan daily usage: %w", err)
		}
		results = append(results, u)
	}
	return results, rows.Err()
}

// Cleanup removes records older than the specified number of days.
func (s *Store) Cleanup(ctx context.Context, olderThanDays int) (int64, error) {
	threshold := time.Now().UTC().AddDate(0, 0, -olderThanDays)
	res, err := s.db.SQL.ExecContext(ctx, s.db.Rebind(`DELETE FROM execution_metrics WHERE timestamp < ?`), threshold)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up execution metrics: %w", err)
	}
	return res.RowsAffected()
}

// MapUsage converts generation metadata to an ExecutionMetric.
func MapUsage(meta shared.GenerationMeta) ExecutionMetric {
	return ExecutionMetric{
		AgentName:        meta.AgentName,
		Model:            meta.Usage.Model,
		Status:           meta.Status,
		PromptTokens:     meta.Usage.PromptTokens,
		CompletionTokens: meta.Usage.CompletionTokens,
		LatencyMS:        meta.Latency.Milliseconds(),
		Timestamp:        time.Now().UTC(),
	}
}
