package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zjrosen/forkchat/internal/chat/domain"
)

// threadColumns is the list of columns to select for thread queries.
const threadColumns = `id, title, active_root_id, created_at, updated_at`

// threadRepository implements domain.ThreadRepository using SQLite.
type threadRepository struct {
	db *sql.DB
}

// newThreadRepository creates a new threadRepository instance.
func newThreadRepository(db *sql.DB) *threadRepository {
	return &threadRepository{db: db}
}

// Ensure threadRepository implements domain.ThreadRepository.
var _ domain.ThreadRepository = (*threadRepository)(nil)

// scanThread scans a row into a ThreadModel.
func scanThread(scanner interface{ Scan(...any) error }) (*ThreadModel, error) {
	var model ThreadModel
	err := scanner.Scan(&model.ID, &model.Title, &model.ActiveRootID, &model.CreatedAt, &model.UpdatedAt)
	return &model, err
}

// getThread loads a thread through q. Returns NotFoundError if missing.
func getThread(ctx context.Context, q querier, id domain.ThreadID) (*domain.Thread, error) {
	row := q.QueryRowContext(ctx, `SELECT `+threadColumns+` FROM threads WHERE id = ?`, string(id))
	model, err := scanThread(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ThreadNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get thread: %w", err)
	}
	return model.toDomain(), nil
}

// touchThread bumps updated_at.
func touchThread(ctx context.Context, q querier, id domain.ThreadID) error {
	_, err := q.ExecContext(ctx,
		`UPDATE threads SET updated_at = ? WHERE id = ?`,
		time.Now().UnixMilli(), string(id),
	)
	if err != nil {
		return fmt.Errorf("failed to touch thread: %w", err)
	}
	return nil
}

// Create persists a new thread.
func (r *threadRepository) Create(ctx context.Context, thread *domain.Thread) error {
	if thread.ID() == "" {
		return &domain.ValidationError{Field: "thread_id", Reason: "is required"}
	}
	model := toThreadModel(thread)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO threads (id, title, active_root_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		model.ID, model.Title, model.ActiveRootID, model.CreatedAt, model.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert thread: %w", err)
	}
	return nil
}

// Get retrieves a thread by ID.
// Returns NotFoundError if no matching thread exists.
func (r *threadRepository) Get(ctx context.Context, id domain.ThreadID) (*domain.Thread, error) {
	return getThread(ctx, r.db, id)
}

// List retrieves threads ordered by created_at descending (newest first).
func (r *threadRepository) List(ctx context.Context, filter domain.ThreadFilter) ([]*domain.Thread, error) {
	query := `SELECT ` + threadColumns + ` FROM threads ORDER BY created_at DESC, id ASC`
	var args []any

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	} else if filter.Offset > 0 {
		query += ` LIMIT -1 OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var threads []*domain.Thread
	for rows.Next() {
		model, err := scanThread(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan thread: %w", err)
		}
		threads = append(threads, model.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate threads: %w", err)
	}
	return threads, nil
}

// Rename updates the thread title.
// Returns NotFoundError if no matching thread exists.
func (r *threadRepository) Rename(ctx context.Context, id domain.ThreadID, title string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE threads SET title = ?, updated_at = ? WHERE id = ?`,
		title, time.Now().UnixMilli(), string(id),
	)
	if err != nil {
		return fmt.Errorf("failed to rename thread: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ThreadNotFound(id)
	}
	return nil
}

// Delete removes a thread together with its messages, attachments and settings.
// Returns NotFoundError if no matching thread exists.
func (r *threadRepository) Delete(ctx context.Context, id domain.ThreadID) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := getThread(ctx, tx, id); err != nil {
			return err
		}
		// All messages go in one statement so parent references are checked
		// only once the whole tree is gone. Files cascade from messages.
		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE thread_id = ?`, string(id)); err != nil {
			return fmt.Errorf("failed to delete thread messages: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM threads WHERE id = ?`, string(id)); err != nil {
			return fmt.Errorf("failed to delete thread: %w", err)
		}
		return nil
	})
}
