package database

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"market-advisor-bot/internal/advisor"
)

// RecommendationRecord is one row of recommendation history
type RecommendationRecord struct {
	ID             int64     `json:"id"`
	CycleID        string    `json:"cycle_id"`
	Signal         string    `json:"signal"`
	Confidence     int       `json:"confidence"`
	BullishCount   int       `json:"bullish_count"`
	BearishCount   int       `json:"bearish_count"`
	PopulatedCount int       `json:"populated_count"`
	EntryPrice     *float64  `json:"entry_price,omitempty"`
	StopLoss       *float64  `json:"stop_loss,omitempty"`
	Target1        *float64  `json:"target_1,omitempty"`
	Target2        *float64  `json:"target_2,omitempty"`
	Reasoning      string    `json:"reasoning"`
	Notified       bool      `json:"notified"`
	RecommendedAt  time.Time `json:"recommended_at"`
	CreatedAt      time.Time `json:"created_at"`
}

// Repository provides access to recommendation history
type Repository struct {
	db     *DB
	logger zerolog.Logger
}

// NewRepository creates a new repository
func NewRepository(db *DB, logger zerolog.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger.With().Str("component", "repository").Logger(),
	}
}

// RecordCycle stores a completed cycle's recommendation. It satisfies
// monitor.HistoryRecorder.
func (r *Repository) RecordCycle(ctx context.Context, cycleID string, rec advisor.Recommendation, notified bool) error {
	var entry, stop, t1, t2 *float64
	if rec.Levels != nil {
		entry = &rec.Levels.Entry
		stop = &rec.Levels.StopLoss
		t1 = &rec.Levels.Target1
		t2 = &rec.Levels.Target2
	}

	query := `
		INSERT INTO recommendation_history (
			cycle_id, signal, confidence, bullish_count, bearish_count,
			populated_count, entry_price, stop_loss, target_1, target_2,
			reasoning, notified, recommended_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := r.db.Pool.Exec(ctx, query,
		cycleID,
		rec.Signal.String(),
		rec.Confidence,
		rec.BullishCount,
		rec.BearishCount,
		rec.PopulatedCount,
		entry,
		stop,
		t1,
		t2,
		rec.Reasoning,
		notified,
		rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to record cycle: %w", err)
	}

	r.logger.Debug().Str("cycle_id", cycleID).Str("signal", rec.Signal.String()).Msg("cycle recorded")
	return nil
}

// GetRecentRecommendations returns the latest history rows, newest first
func (r *Repository) GetRecentRecommendations(ctx context.Context, limit int) ([]RecommendationRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, cycle_id, signal, confidence, bullish_count, bearish_count,
			populated_count, entry_price, stop_loss, target_1, target_2,
			reasoning, notified, recommended_at, created_at
		FROM recommendation_history
		ORDER BY recommended_at DESC
		LIMIT $1`

	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recommendation history: %w", err)
	}
	defer rows.Close()

	var records []RecommendationRecord
	for rows.Next() {
		var rec RecommendationRecord
		if err := rows.Scan(
			&rec.ID, &rec.CycleID, &rec.Signal, &rec.Confidence,
			&rec.BullishCount, &rec.BearishCount, &rec.PopulatedCount,
			&rec.EntryPrice, &rec.StopLoss, &rec.Target1, &rec.Target2,
			&rec.Reasoning, &rec.Notified, &rec.RecommendedAt, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan recommendation row: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// GetSignalCounts aggregates how often each signal was issued since a cutoff
func (r *Repository) GetSignalCounts(ctx context.Context, since time.Time) (map[string]int, error) {
	query := `
		SELECT signal, COUNT(*)
		FROM recommendation_history
		WHERE recommended_at >= $1
		GROUP BY signal`

	rows, err := r.db.Pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query signal counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var signal string
		var count int
		if err := rows.Scan(&signal, &count); err != nil {
			return nil, fmt.Errorf("failed to scan signal count: %w", err)
		}
		counts[signal] = count
	}

	return counts, rows.Err()
}
