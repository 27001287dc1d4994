package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/requestping/requestping/internal/model"
)

// Common errors for request repository operations.
var (
	ErrRequestNotFound  = errors.New("request not found")
	ErrStatusRegression = errors.New("request status cannot move backwards")
)

const requestColumns = `id, user_id, record_type, office_code, office_name, subject, description,
	record_title, record_author, record_recipient, date_range_start, date_range_end,
	delivery_format, request_fee_waiver, waiver_reason, requester_phone, requester_email,
	status, submit_attempts, next_attempt_at, last_error, created_at, submitted_at, updated_at`

// monthStart is the first instant of the store's current calendar month, UTC.
const monthStart = `(date_trunc('month', now() AT TIME ZONE 'UTC') AT TIME ZONE 'UTC')`

// QuotaCheck decides whether a user with used requests this month may add one.
type QuotaCheck func(used int) error

// CreateRequestWithQuota inserts req and its request_created activity entry
// in one transaction. Concurrent calls for the same user are serialized with
// an advisory lock, and check sees the count taken under that lock. If check
// returns an error nothing is written and the error is returned unchanged.
//
// created_at and updated_at are assigned by the database and copied back to
// req and activity.
func (r *Repository) CreateRequestWithQuota(ctx context.Context, req *model.Request, activity *model.Activity, check QuotaCheck) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, req.UserID); err != nil {
			return fmt.Errorf("lock user quota: %w", err)
		}

		used, err := countRequestsThisMonth(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		if err := check(used); err != nil {
			return err
		}

		insert := `
			INSERT INTO requests (
				id, user_id, record_type, office_code, office_name, subject, description,
				record_title, record_author, record_recipient, date_range_start, date_range_end,
				delivery_format, request_fee_waiver, waiver_reason, requester_phone, requester_email,
				status
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
			RETURNING created_at, updated_at
		`
		err = tx.QueryRow(ctx, insert,
			req.ID,
			req.UserID,
			req.RecordType,
			req.OfficeCode,
			req.OfficeName,
			req.Subject,
			req.Description,
			req.RecordTitle,
			req.RecordAuthor,
			req.RecordRecipient,
			req.DateRangeStart,
			req.DateRangeEnd,
			string(req.DeliveryFormat),
			req.FeeWaiver,
			req.WaiverReason,
			req.RequesterPhone,
			req.RequesterEmail,
			string(req.Status),
		).Scan(&req.CreatedAt, &req.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}

		activity.CreatedAt = req.CreatedAt
		return insertActivity(ctx, tx, activity)
	})
}

// CountRequestsThisMonth counts a user's requests created in the current
// calendar month according to the database clock.
func (r *Repository) CountRequestsThisMonth(ctx context.Context, userID string) (int, error) {
	return countRequestsThisMonth(ctx, r.pool, userID)
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func countRequestsThisMonth(ctx context.Context, q queryRower, userID string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM requests
		WHERE user_id = $1
		  AND created_at >= ` + monthStart + `
		  AND created_at < ` + monthStart + ` + interval '1 month'
	`

	var n int
	if err := q.QueryRow(ctx, query, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count requests: %w", err)
	}
	return n, nil
}

// GetRequestByID retrieves a request regardless of owner.
func (r *Repository) GetRequestByID(ctx context.Context, id string) (*model.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE id = $1`

	req, err := scanRequest(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	return req, nil
}

// GetRequestForOwner retrieves a request only if ownerID owns it.
func (r *Repository) GetRequestForOwner(ctx context.Context, id, ownerID string) (*model.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE id = $1 AND user_id = $2`

	req, err := scanRequest(r.pool.QueryRow(ctx, query, id, ownerID))
	if err != nil {
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	return req, nil
}

// GetRequestStatus reads the stored status of a request.
func (r *Repository) GetRequestStatus(ctx context.Context, id string) (model.RequestStatus, error) {
	var status string
	err := r.pool.QueryRow(ctx, `SELECT status FROM requests WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrRequestNotFound
		}
		return "", fmt.Errorf("failed to get request status: %w", err)
	}
	return model.RequestStatus(status), nil
}

// ListRequestsByOwner returns a page of the owner's requests, newest first,
// with DocumentsCount populated.
func (r *Repository) ListRequestsByOwner(ctx context.Context, ownerID, cursor string, limit int) ([]*model.Request, string, error) {
	var after *pageCursor
	if cursor != "" {
		var err error
		after, err = decodeCursor(cursor)
		if err != nil {
			return nil, "", err
		}
	}

	query := `
		SELECT ` + prefixed("r.", requestColumns) + `, COUNT(d.id)
		FROM requests r
		LEFT JOIN documents d ON d.request_id = r.id
		WHERE r.user_id = $1
	`
	args := []any{ownerID}
	argIndex := 2

	if after != nil {
		query += fmt.Sprintf(" AND (r.created_at, r.id) < ($%d, $%d)", argIndex, argIndex+1)
		args = append(args, after.CreatedAt, after.ID)
		argIndex += 2
	}

	query += fmt.Sprintf(" GROUP BY r.id ORDER BY r.created_at DESC, r.id DESC LIMIT $%d", argIndex)
	args = append(args, limit+1) // Fetch one extra to determine hasMore

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	var requests []*model.Request
	for rows.Next() {
		req, err := scanRequest(rows, &countDest{})
		if err != nil {
			return nil, "", fmt.Errorf("failed to scan request: %w", err)
		}
		requests = append(requests, req)
	}

	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("error iterating requests: %w", err)
	}

	var nextCursor string
	if len(requests) > limit {
		requests = requests[:limit]
		last := requests[len(requests)-1]
		nextCursor = encodeCursor(pageCursor{ID: last.ID, CreatedAt: last.CreatedAt})
	}

	return requests, nextCursor, nil
}

// UpdateRequestStatus applies a forward-only status transition and appends
// its activity entry in one transaction. It counts as a submission attempt.
// Returns ErrStatusRegression if the current status may not advance to
// change.Status.
func (r *Repository) UpdateRequestStatus(ctx context.Context, change model.StatusChange) error {
	predecessors := make([]string, 0, 2)
	for _, s := range model.AllowedPredecessors(change.Status) {
		predecessors = append(predecessors, string(s))
	}

	return r.withTx(ctx, func(tx pgx.Tx) error {
		query := `
			UPDATE requests
			SET status = $2::text,
			    submitted_at = CASE WHEN $2::text = 'submitted' THEN $3 ELSE submitted_at END,
			    submit_attempts = submit_attempts + 1,
			    last_error = $4,
			    next_attempt_at = $5,
			    updated_at = now()
			WHERE id = $1 AND status = ANY($6)
		`

		result, err := tx.Exec(ctx, query,
			change.RequestID,
			string(change.Status),
			change.At,
			change.LastError,
			change.NextAttemptAt,
			pq.Array(predecessors),
		)
		if err != nil {
			return fmt.Errorf("failed to update request status: %w", err)
		}

		if result.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM requests WHERE id = $1)`, change.RequestID).Scan(&exists); err != nil {
				return fmt.Errorf("failed to check request: %w", err)
			}
			if !exists {
				return ErrRequestNotFound
			}
			return ErrStatusRegression
		}

		activity := change.Activity
		activity.RequestID = change.RequestID
		return insertActivity(ctx, tx, &activity)
	})
}

// RecordSubmitAttempt counts an attempt that left the status unchanged.
func (r *Repository) RecordSubmitAttempt(ctx context.Context, requestID, lastError string, nextAttemptAt *time.Time) error {
	query := `
		UPDATE requests
		SET submit_attempts = submit_attempts + 1,
		    last_error = $2,
		    next_attempt_at = $3,
		    updated_at = now()
		WHERE id = $1 AND status <> 'submitted'
	`

	result, err := r.pool.Exec(ctx, query, requestID, lastError, nextAttemptAt)
	if err != nil {
		return fmt.Errorf("failed to record submit attempt: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrRequestNotFound
	}
	return nil
}

// ClaimResubmittable returns up to limit pending or failed requests that are
// due for another attempt and pushes their next_attempt_at forward by lease,
// so concurrent sweepers skip them. A pending request whose first attempt
// never recorded an outcome becomes due once it is older than lease.
func (r *Repository) ClaimResubmittable(ctx context.Context, limit, maxAttempts int, lease time.Duration) ([]*model.Request, error) {
	query := `
		UPDATE requests
		SET next_attempt_at = now() + make_interval(secs => $3)
		WHERE id IN (
			SELECT id
			FROM requests
			WHERE submit_attempts < $2
			  AND (
			    (status IN ('pending', 'failed')
			      AND next_attempt_at IS NOT NULL
			      AND next_attempt_at <= now())
			    OR (status = 'pending'
			      AND submit_attempts = 0
			      AND next_attempt_at IS NULL
			      AND created_at <= now() - make_interval(secs => $3))
			  )
			ORDER BY COALESCE(next_attempt_at, created_at)
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + requestColumns

	rows, err := r.pool.Query(ctx, query, limit, maxAttempts, lease.Seconds())
	if err != nil {
		return nil, fmt.Errorf("failed to claim requests: %w", err)
	}
	defer rows.Close()

	var requests []*model.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		requests = append(requests, req)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating requests: %w", err)
	}
	return requests, nil
}

type countDest struct {
	n int
}

// scanRequest scans requestColumns, plus a trailing documents count when
// count is given.
func scanRequest(row pgx.Row, count ...*countDest) (*model.Request, error) {
	var req model.Request
	var deliveryFormat, status string

	dest := []any{
		&req.ID,
		&req.UserID,
		&req.RecordType,
		&req.OfficeCode,
		&req.OfficeName,
		&req.Subject,
		&req.Description,
		&req.RecordTitle,
		&req.RecordAuthor,
		&req.RecordRecipient,
		&req.DateRangeStart,
		&req.DateRangeEnd,
		&deliveryFormat,
		&req.FeeWaiver,
		&req.WaiverReason,
		&req.RequesterPhone,
		&req.RequesterEmail,
		&status,
		&req.SubmitAttempts,
		&req.NextAttemptAt,
		&req.LastError,
		&req.CreatedAt,
		&req.SubmittedAt,
		&req.UpdatedAt,
	}
	if len(count) > 0 {
		dest = append(dest, &count[0].n)
	}

	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}

	req.DeliveryFormat = model.DeliveryFormat(deliveryFormat)
	req.Status = model.RequestStatus(status)
	if len(count) > 0 {
		req.DocumentsCount = count[0].n
	}
	return &req, nil
}

// prefixed qualifies a comma-separated column list with a table alias.
func prefixed(alias, columns string) string {
	cols := strings.Split(columns, ",")
	for i, c := range cols {
		cols[i] = alias + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}
