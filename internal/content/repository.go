package content

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/maptitesalle/mylittlegymcoach/internal/database"
)

// ErrNotProcessing is returned when a terminal write targets a record that
// is missing or already terminal.
var ErrNotProcessing = errors.New("generation record is not processing")

// Store is the access contract of the generation record table.
type Store interface {
	UpsertProcessing(ctx context.Context, requestID string, contentType Type, userID string) (bool, error)
	GetByRequestID(ctx context.Context, requestID string) (*Record, error)
	CompleteWithContent(ctx context.Context, requestID, content string) error
	CompleteWithError(ctx context.Context, requestID, message string) error
}

// Repository is the database-backed Store.
type Repository struct {
	db  *database.DB
	now func() time.Time
}

// NewRepository creates a new Repository.
func NewRepository(db *database.DB) *Repository {
	return &Repository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// UpsertProcessing records a processing attempt for requestID. A conflicting
// call leaves the existing row untouched and reports created=false, so only
// the caller that created the row should launch the generation.
func (r *Repository) UpsertProcessing(ctx context.Context, requestID string, contentType Type, userID string) (bool, error) {
	now := r.now()
	res, err := r.db.SQL.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO generated_content (request_id, content_type, status, user_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (request_id) DO NOTHING`),
		requestID, string(contentType), string(StatusProcessing), nullString(userID), now, now,
	)
	if err != nil {
		return false, fmt.Errorf("failed to upsert generation record %s: %w", requestID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read upsert result for %s: %w", requestID, err)
	}
	return n == 1, nil
}

// GetByRequestID returns the record or nil when none exists.
func (r *Repository) GetByRequestID(ctx context.Context, requestID string) (*Record, error) {
	row := r.db.SQL.QueryRowContext(ctx, r.db.Rebind(`
		SELECT request_id, content_type, status, content, user_id, created_at, updated_at
		FROM generated_content
		WHERE request_id = ?`), requestID)

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get generation record %s: %w", requestID, err)
	}
	return rec, nil
}

// CompleteWithContent moves a processing record to completed.
func (r *Repository) CompleteWithContent(ctx context.Context, requestID, content string) error {
	return r.finish(ctx, requestID, StatusCompleted, content)
}

// CompleteWithError moves a processing record to error with message as content.
func (r *Repository) CompleteWithError(ctx context.Context, requestID, message string) error {
	return r.finish(ctx, requestID, StatusError, message)
}

func (r *Repository) finish(ctx context.Context, requestID string, status Status, content string) error {
	res, err := r.db.SQL.ExecContext(ctx, r.db.Rebind(`
		UPDATE generated_content
		SET status = ?, content = ?, updated_at = ?
		WHERE request_id = ? AND status = ?`),
		string(status), content, r.now(), requestID, string(StatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("failed to mark %s as %s: %w", requestID, status, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result for %s: %w", requestID, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", requestID, ErrNotProcessing)
	}
	return nil
}

// MarkStale fails every processing record not touched since cutoff and
// returns the request ids it moved to error.
func (r *Repository) MarkStale(ctx context.Context, cutoff time.Time, message string) ([]string, error) {
	rows, err := r.db.SQL.QueryContext(ctx, r.db.Rebind(`
		SELECT request_id FROM generated_content
		WHERE status = ? AND updated_at < ?`),
		string(StatusProcessing), cutoff.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale generation records: %w", err)
	}
	var candidates []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		candidates = append(candidates, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var swept []string
	for _, id := range candidates {
		// A task finishing between the select and here wins the guard.
		if err := r.CompleteWithError(ctx, id, message); err != nil {
			if errors.Is(err, ErrNotProcessing) {
				continue
			}
			return swept, err
		}
		swept = append(swept, id)
	}
	return swept, nil
}

// CountByStatus returns the number of records per status.
func (r *Repository) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := r.db.SQL.QueryContext(ctx, `SELECT status, COUNT(*) FROM generated_content GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count generation records: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[Status(status)] = n
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec         Record
		contentType string
		status      string
		body        sql.NullString
		userID      sql.NullString
		createdAt   database.Time
		updatedAt   database.Time
	)
	if err := row.Scan(&rec.RequestID, &contentType, &status, &body, &userID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	rec.CreatedAt = createdAt.Time
	rec.UpdatedAt = updatedAt.Time
	rec.ContentType = Type(contentType)
	rec.Status = Status(status)
	rec.Content = body.String
	rec.UserID = userID.String
	return &rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
