package adminstore

import (
	"context"
	"time"
)

// AnalyticsEventRow is one persisted analytics event, feeding intent
// distribution and handler-outcome summaries for the admin surface.
type AnalyticsEventRow struct {
	Kind       string
	Category   string
	Intent     string
	Outcome    string
	LatencyMs  int
	SessionID  string
	OccurredAt time.Time
}

// InsertAnalyticsEvents bulk-inserts a batch of flushed analytics events.
func (s *Store) InsertAnalyticsEvents(ctx context.Context, events []AnalyticsEventRow) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO analytics_events (kind, category, intent, outcome, latency_ms, session_id, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.ExecContext(ctx, e.Kind, e.Category, e.Intent, e.Outcome, e.LatencyMs, e.SessionID, e.OccurredAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// CategorySummary is an aggregate row over a time window for one category.
type CategorySummary struct {
	Category      string
	TotalEvents   int64
	SuccessEvents int64
	AvgLatencyMs  float64
}

// SummarizeSince aggregates analytics events by category since a cutoff.
func (s *Store) SummarizeSince(ctx context.Context, since time.Time) ([]CategorySummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category,
			COUNT(*),
			COUNT(*) FILTER (WHERE outcome = 'success'),
			COALESCE(AVG(latency_ms), 0)
		FROM analytics_events
		WHERE occurred_at >= $1
		GROUP BY category ORDER BY category ASC`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CategorySummary
	for rows.Next() {
		var c CategorySummary
		if err := rows.Scan(&c.Category, &c.TotalEvents, &c.SuccessEvents, &c.AvgLatencyMs); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
