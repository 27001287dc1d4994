package repository

import (
	"context"
	"fmt"

	"github.com/requestping/requestping/internal/model"
)

// CreateDocument records attachment metadata for a request.
func (r *Repository) CreateDocument(ctx context.Context, doc *model.Document) error {
	query := `
		INSERT INTO documents (id, request_id, filename, content_type, size_bytes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`

	err := r.pool.QueryRow(ctx, query,
		doc.ID,
		doc.RequestID,
		doc.Filename,
		doc.ContentType,
		doc.SizeBytes,
	).Scan(&doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

// ListDocuments returns attachment metadata for a request, newest first.
func (r *Repository) ListDocuments(ctx context.Context, requestID string) ([]*model.Document, error) {
	query := `
		SELECT id, request_id, filename, content_type, size_bytes, created_at
		FROM documents
		WHERE request_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*model.Document
	for rows.Next() {
		var d model.Document
		if err := rows.Scan(&d.ID, &d.RequestID, &d.Filename, &d.ContentType, &d.SizeBytes, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, &d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}
	return docs, nil
}
