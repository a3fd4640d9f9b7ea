package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"scholarag/internal/models"
)

type InteractionRepo struct {
	db *DB
}

func NewInteractionRepo(db *DB) *InteractionRepo {
	return &InteractionRepo{db: db}
}

// Insert appends one interaction row. Rows are never updated afterwards
// except for the feedback columns.
func (r *InteractionRepo) Insert(ctx context.Context, in models.Interaction) error {
	citations, err := json.Marshal(in.Citations)
	if err != nil {
		return fmt.Errorf("marshal citations: %w", err)
	}
	latencies, err := json.Marshal(in.StageLatencies)
	if err != nil {
		return fmt.Errorf("marshal stage latencies: %w", err)
	}
	_, err = r.db.Pool.Exec(ctx, `
INSERT INTO interactions (interaction_id, query, refined_query, paper_ids, answer,
                          citations, stage_latencies_ms, outcome, error_detail)
VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7::jsonb, $8, NULLIF($9,''))`,
		in.InteractionID, in.Query, in.RefinedQuery, in.PaperIDs, in.Answer,
		string(citations), string(latencies), in.Outcome, in.ErrorDetail,
	)
	if err != nil {
		return fmt.Errorf("insert interaction: %w", err)
	}
	return nil
}

// SetFeedback stores a thumbs rating for an interaction. Repeating the same
// rating is a no-op, a different rating overwrites the previous one.
func (r *InteractionRepo) SetFeedback(ctx context.Context, interactionID, rating string) error {
	if rating != models.FeedbackPositive && rating != models.FeedbackNegative {
		return fmt.Errorf("invalid feedback rating %q", rating)
	}
	if uuid.Validate(interactionID) != nil {
		return ErrNotFound
	}
	tag, err := r.db.Pool.Exec(ctx, `
UPDATE interactions
SET feedback=$2, feedback_at=NOW()
WHERE interaction_id=$1 AND feedback IS DISTINCT FROM $2`,
		interactionID, rating)
	if err != nil {
		return fmt.Errorf("set feedback: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the rating did not change or the interaction never existed.
		var exists bool
		err := r.db.Pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM interactions WHERE interaction_id=$1)`,
			interactionID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check interaction: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
	}
	return nil
}

func (r *InteractionRepo) GetInteraction(ctx context.Context, interactionID string) (models.Interaction, error) {
	if uuid.Validate(interactionID) != nil {
		return models.Interaction{}, ErrNotFound
	}
	var (
		in        models.Interaction
		citations []byte
		latencies []byte
	)
	err := r.db.Pool.QueryRow(ctx, `
SELECT interaction_id::text, query, refined_query, paper_ids, answer,
       citations, stage_latencies_ms, outcome, COALESCE(error_detail,''),
       feedback, feedback_at, created_at
FROM interactions
WHERE interaction_id=$1`, interactionID).
		Scan(&in.InteractionID, &in.Query, &in.RefinedQuery, &in.PaperIDs, &in.Answer,
			&citations, &latencies, &in.Outcome, &in.ErrorDetail,
			&in.Feedback, &in.FeedbackAt, &in.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Interaction{}, ErrNotFound
		}
		return models.Interaction{}, fmt.Errorf("get interaction: %w", err)
	}
	if err := json.Unmarshal(citations, &in.Citations); err != nil {
		return models.Interaction{}, fmt.Errorf("decode citations: %w", err)
	}
	if err := json.Unmarshal(latencies, &in.StageLatencies); err != nil {
		return models.Interaction{}, fmt.Errorf("decode stage latencies: %w", err)
	}
	return in, nil
}

func (r *InteractionRepo) ListRecent(ctx context.Context, limit int) ([]models.Interaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.db.Pool.Query(ctx, `
SELECT interaction_id::text, query, refined_query, paper_ids, answer,
       citations, stage_latencies_ms, outcome, COALESCE(error_detail,''),
       feedback, feedback_at, created_at
FROM interactions
ORDER BY created_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list interactions: %w", err)
	}
	defer rows.Close()

	out := make([]models.Interaction, 0, limit)
	for rows.Next() {
		var (
			in        models.Interaction
			citations []byte
			latencies []byte
		)
		if err := rows.Scan(&in.InteractionID, &in.Query, &in.RefinedQuery, &in.PaperIDs, &in.Answer,
			&citations, &latencies, &in.Outcome, &in.ErrorDetail,
			&in.Feedback, &in.FeedbackAt, &in.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		if err := json.Unmarshal(citations, &in.Citations); err != nil {
			return nil, fmt.Errorf("decode citations: %w", err)
		}
		if err := json.Unmarshal(latencies, &in.StageLatencies); err != nil {
			return nil, fmt.Errorf("decode stage latencies: %w", err)
		}
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate interactions: %w", err)
	}
	return out, nil
}
