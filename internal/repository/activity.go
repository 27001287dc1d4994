package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/requestping/requestping/internal/model"
)

// AppendActivity adds an audit entry. Entries are never updated or deleted.
func (r *Repository) AppendActivity(ctx context.Context, activity *model.Activity) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		return insertActivity(ctx, tx, activity)
	})
}

func insertActivity(ctx context.Context, tx pgx.Tx, activity *model.Activity) error {
	query := `
		INSERT INTO activity_log (id, request_id, activity_type, description, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
		RETURNING created_at
	`

	var createdAt any
	if !activity.CreatedAt.IsZero() {
		createdAt = activity.CreatedAt
	}

	err := tx.QueryRow(ctx, query,
		activity.ID,
		activity.RequestID,
		string(activity.Type),
		activity.Description,
		createdAt,
	).Scan(&activity.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append activity: %w", err)
	}
	return nil
}

// ListActivity returns a request's activity entries, newest first.
func (r *Repository) ListActivity(ctx context.Context, requestID string) ([]*model.Activity, error) {
	query := `
		SELECT id, request_id, activity_type, description, created_at
		FROM activity_log
		WHERE request_id = $1
		ORDER BY created_at DESC, id DESC
	`

	rows, err := r.pool.Query(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	defer rows.Close()

	var entries []*model.Activity
	for rows.Next() {
		var a model.Activity
		var activityType string
		if err := rows.Scan(&a.ID, &a.RequestID, &activityType, &a.Description, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		a.Type = model.ActivityType(activityType)
		entries = append(entries, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activity: %w", err)
	}
	return entries, nil
}
