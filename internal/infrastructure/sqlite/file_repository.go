package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ncruces/go-sqlite3"

	"github.com/zjrosen/forkchat/internal/chat/domain"
)

// fileRepository implements domain.FileRepository using SQLite.
type fileRepository struct {
	db *sql.DB
}

func newFileRepository(db *sql.DB) *fileRepository {
	return &fileRepository{db: db}
}

var _ domain.FileRepository = (*fileRepository)(nil)

// Open returns the attachment metadata and blob.
// Returns NotFoundError if no matching file exists.
func (r *fileRepository) Open(ctx context.Context, id domain.FileID) (*domain.FileRef, []byte, error) {
	var model FileModel
	var data []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT `+fileColumns+`, blob FROM files WHERE id = ?`,
		string(id),
	).Scan(&model.ID, &model.MessageID, &model.FileName, &model.MimeType, &model.Size, &model.CreatedAt, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, &domain.NotFoundError{Kind: "file", ID: string(id)}
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}
	ref := model.toDomain()
	return &ref, data, nil
}

// ListForMessage returns the attachment references of a message, oldest first.
func (r *fileRepository) ListForMessage(ctx context.Context, id domain.MessageID) ([]domain.FileRef, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE message_id = ? ORDER BY created_at ASC, id ASC`,
		int64(id),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var refs []domain.FileRef
	for rows.Next() {
		model, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		refs = append(refs, model.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate files: %w", err)
	}
	return refs, nil
}

// isForeignKeyError reports whether err is a SQLite foreign key violation.
func isForeignKeyError(err error) bool {
	return errors.Is(err, sqlite3.CONSTRAINT_FOREIGNKEY)
}
