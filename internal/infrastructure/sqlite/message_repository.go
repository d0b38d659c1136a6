package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zjrosen/forkchat/internal/chat/domain"
	"github.com/zjrosen/forkchat/internal/log"
)

// messageColumns is the list of columns to select for message queries.
const messageColumns = `id, thread_id, parent_id, active_child_id, role, content, model, error, created_at`

// fileColumns excludes the blob.
const fileColumns = `id, message_id, file_name, mime_type, size, created_at`

// maxBatch bounds the number of bound parameters in one IN (...) list.
const maxBatch = 500

// messageRepository implements domain.MessageRepository using SQLite.
type messageRepository struct {
	db *sql.DB
}

// newMessageRepository creates a new messageRepository instance.
func newMessageRepository(db *sql.DB) *messageRepository {
	return &messageRepository{db: db}
}

// Ensure messageRepository implements domain.MessageRepository.
var _ domain.MessageRepository = (*messageRepository)(nil)

// scanMessage scans a row into a MessageModel.
func scanMessage(scanner interface{ Scan(...any) error }) (*MessageModel, error) {
	var model MessageModel
	err := scanner.Scan(
		&model.ID, &model.ThreadID, &model.ParentID, &model.ActiveChildID,
		&model.Role, &model.Content, &model.Model, &model.Error, &model.CreatedAt,
	)
	return &model, err
}

// scanFile scans a row into a FileModel.
func scanFile(scanner interface{ Scan(...any) error }) (*FileModel, error) {
	var model FileModel
	err := scanner.Scan(&model.ID, &model.MessageID, &model.FileName, &model.MimeType, &model.Size, &model.CreatedAt)
	return &model, err
}

// getMessage loads one message without attachments.
// Returns NotFoundError if missing.
func getMessage(ctx context.Context, q querier, id domain.MessageID) (*domain.Message, error) {
	row := q.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, int64(id))
	model, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.MessageNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return model.toDomain(), nil
}

func queryMessages(ctx context.Context, q querier, query string, args ...any) ([]*domain.Message, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []*domain.Message
	for rows.Next() {
		model, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msgs = append(msgs, model.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return msgs, nil
}

func queryIDs(ctx context.Context, q querier, query string, args ...any) ([]int64, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// placeholders returns "?, ?, ..." with n markers.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// chunks splits ids into slices of at most maxBatch.
func chunks(ids []int64) [][]int64 {
	var out [][]int64
	for len(ids) > maxBatch {
		out = append(out, ids[:maxBatch])
		ids = ids[maxBatch:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// attachFiles loads attachment references for msgs in batched queries.
func attachFiles(ctx context.Context, q querier, msgs []*domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	byID := make(map[domain.MessageID]*domain.Message, len(msgs))
	ids := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		if _, ok := byID[m.ID()]; !ok {
			ids = append(ids, int64(m.ID()))
		}
		byID[m.ID()] = m
	}

	files := make(map[domain.MessageID][]domain.FileRef)
	for _, batch := range chunks(ids) {
		rows, err := q.QueryContext(ctx,
			`SELECT `+fileColumns+` FROM files WHERE message_id IN (`+placeholders(len(batch))+`) ORDER BY created_at ASC, id ASC`,
			int64Args(batch)...,
		)
		if err != nil {
			return fmt.Errorf("failed to query files: %w", err)
		}
		for rows.Next() {
			model, err := scanFile(rows)
			if err != nil {
				_ = rows.Close()
				return fmt.Errorf("failed to scan file: %w", err)
			}
			ref := model.toDomain()
			files[ref.MessageID] = append(files[ref.MessageID], ref)
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return fmt.Errorf("failed to iterate files: %w", err)
		}
	}

	for _, m := range msgs {
		m.SetFiles(files[m.ID()])
	}
	return nil
}

// insertFiles stores uploads against msgID and returns their references.
func insertFiles(ctx context.Context, q querier, msgID domain.MessageID, uploads []domain.FileUpload, now time.Time) ([]domain.FileRef, error) {
	refs := make([]domain.FileRef, 0, len(uploads))
	for _, f := range uploads {
		ref := domain.FileRef{
			ID:        domain.FileID(uuid.NewString()),
			MessageID: msgID,
			Name:      f.Name,
			MimeType:  f.MimeType,
			Size:      int64(len(f.Data)),
			CreatedAt: time.UnixMilli(now.UnixMilli()),
		}
		data := f.Data
		if data == nil {
			data = []byte{}
		}
		_, err := q.ExecContext(ctx,
			`INSERT INTO files (id, message_id, file_name, mime_type, size, blob, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			string(ref.ID), int64(msgID), ref.Name, ref.MimeType, ref.Size, data, now.UnixMilli(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert file: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// setActivePointer makes target the active child of parentID, or the active
// root of the thread when parentID is nil.
func setActivePointer(ctx context.Context, q querier, threadID domain.ThreadID, parentID *domain.MessageID, target domain.MessageID) error {
	var err error
	if parentID == nil {
		_, err = q.ExecContext(ctx,
			`UPDATE threads SET active_root_id = ? WHERE id = ?`,
			int64(target), string(threadID),
		)
	} else {
		_, err = q.ExecContext(ctx,
			`UPDATE messages SET active_child_id = ? WHERE id = ?`,
			int64(target), int64(*parentID),
		)
	}
	if err != nil {
		return fmt.Errorf("failed to set active pointer: %w", err)
	}
	return nil
}

// activateChain points the pointer at parentID (or the thread's root pointer)
// at id, then repeats for each ancestor up to the root.
func activateChain(ctx context.Context, q querier, threadID domain.ThreadID, id domain.MessageID, parentID *domain.MessageID) error {
	visited := make(map[domain.MessageID]bool)
	for {
		if visited[id] {
			return fmt.Errorf("cycle detected at message %d", id)
		}
		visited[id] = true

		if err := setActivePointer(ctx, q, threadID, parentID, id); err != nil {
			return err
		}
		if parentID == nil {
			return nil
		}
		parent, err := getMessage(ctx, q, *parentID)
		if err != nil {
			return err
		}
		id, parentID = parent.ID(), parent.ParentID()
	}
}

// Create persists a new message and makes it the end of the active path:
// its parent and every ancestor are repointed toward it.
func (r *messageRepository) Create(ctx context.Context, draft domain.MessageDraft) (*domain.Message, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	var parentID *domain.MessageID
	if draft.ParentID != nil {
		p := *draft.ParentID
		parentID = &p
	}

	var created *domain.Message
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := getThread(ctx, tx, draft.ThreadID); err != nil {
			return err
		}
		if parentID != nil {
			var parentThread string
			err := tx.QueryRowContext(ctx, `SELECT thread_id FROM messages WHERE id = ?`, int64(*parentID)).Scan(&parentThread)
			if errors.Is(err, sql.ErrNoRows) || (err == nil && parentThread != string(draft.ThreadID)) {
				return &domain.ValidationError{
					Field:  "parent_id",
					Reason: fmt.Sprintf("message %d is not in thread %s", *parentID, draft.ThreadID),
				}
			}
			if err != nil {
				return fmt.Errorf("failed to look up parent: %w", err)
			}
		}

		now := time.Now()
		result, err := tx.ExecContext(ctx,
			`INSERT INTO messages (thread_id, parent_id, role, content, model, error, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			string(draft.ThreadID), fromMessageIDPtr(parentID), string(draft.Role), draft.Content,
			nullableString(draft.Model), nullableString(draft.Error), now.UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		rawID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		id := domain.MessageID(rawID)

		files, err := insertFiles(ctx, tx, id, draft.Files, now)
		if err != nil {
			return err
		}
		if err := activateChain(ctx, tx, draft.ThreadID, id, parentID); err != nil {
			return err
		}
		if err := touchThread(ctx, tx, draft.ThreadID); err != nil {
			return err
		}

		created = domain.ReconstituteMessage(
			id, draft.ThreadID, parentID, nil, draft.Role, draft.Content,
			draft.Model, draft.Error, time.UnixMilli(now.UnixMilli()),
		)
		created.SetFiles(files)
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Debug(log.CatStore, "message created",
		"thread", draft.ThreadID, "id", created.ID(), "role", draft.Role, "files", len(draft.Files))
	return created, nil
}

// Get retrieves a message with its attachment references.
// Returns NotFoundError if no matching message exists.
func (r *messageRepository) Get(ctx context.Context, id domain.MessageID) (*domain.Message, error) {
	msg, err := getMessage(ctx, r.db, id)
	if err != nil {
		return nil, err
	}
	if err := attachFiles(ctx, r.db, []*domain.Message{msg}); err != nil {
		return nil, err
	}
	return msg, nil
}

// Children returns the children of id ordered by creation time, then ID.
func (r *messageRepository) Children(ctx context.Context, id domain.MessageID) ([]*domain.Message, error) {
	msgs, err := queryMessages(ctx, r.db,
		`SELECT `+messageColumns+` FROM messages WHERE parent_id = ? ORDER BY created_at ASC, id ASC`,
		int64(id),
	)
	if err != nil {
		return nil, err
	}
	if err := attachFiles(ctx, r.db, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// UpdateContent edits a message in place and applies attachment edits.
// The message keeps its parent, children and active-child pointer.
func (r *messageRepository) UpdateContent(ctx context.Context, id domain.MessageID, content string, edits *domain.FileEdits) error {
	if edits != nil {
		for _, f := range edits.Add {
			if err := f.Validate(); err != nil {
				return err
			}
		}
	}

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		msg, err := getMessage(ctx, tx, id)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `UPDATE messages SET content = ? WHERE id = ?`, content, int64(id)); err != nil {
			return fmt.Errorf("failed to update message content: %w", err)
		}

		if !edits.IsEmpty() {
			for _, fileID := range edits.Remove {
				result, err := tx.ExecContext(ctx,
					`DELETE FROM files WHERE id = ? AND message_id = ?`,
					string(fileID), int64(id),
				)
				if err != nil {
					return fmt.Errorf("failed to remove file: %w", err)
				}
				n, err := result.RowsAffected()
				if err != nil {
					return fmt.Errorf("failed to get rows affected: %w", err)
				}
				if n == 0 {
					return &domain.NotFoundError{Kind: "file", ID: string(fileID)}
				}
			}
			if _, err := insertFiles(ctx, tx, id, edits.Add, time.Now()); err != nil {
				return err
			}
		}

		if msg.Role() == domain.RoleUser && strings.TrimSpace(content) == "" {
			var count int
			if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM files WHERE message_id = ?`, int64(id)).Scan(&count); err != nil {
				return fmt.Errorf("failed to count files: %w", err)
			}
			if count == 0 {
				return &domain.ValidationError{Field: "content", Reason: "must not be empty without attachments"}
			}
		}

		return touchThread(ctx, tx, msg.ThreadID())
	})
}

// DeleteSubtree removes id and all of its descendants in one transaction.
// The tree is walked level by level with an explicit worklist, then deleted
// deepest level first so parent references never dangle.
func (r *messageRepository) DeleteSubtree(ctx context.Context, threadID domain.ThreadID, id domain.MessageID) (int, error) {
	deleted := 0
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		var owner string
		err := tx.QueryRowContext(ctx, `SELECT thread_id FROM messages WHERE id = ?`, int64(id)).Scan(&owner)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to look up message: %w", err)
		}
		if owner != string(threadID) {
			return &domain.ValidationError{
				Field:  "message_id",
				Reason: fmt.Sprintf("message %d is not in thread %s", id, threadID),
			}
		}

		levels := [][]int64{{int64(id)}}
		for frontier := levels[0]; len(frontier) > 0; {
			var next []int64
			for _, batch := range chunks(frontier) {
				ids, err := queryIDs(ctx, tx,
					`SELECT id FROM messages WHERE parent_id IN (`+placeholders(len(batch))+`)`,
					int64Args(batch)...,
				)
				if err != nil {
					return fmt.Errorf("failed to collect descendants: %w", err)
				}
				next = append(next, ids...)
			}
			if len(next) > 0 {
				levels = append(levels, next)
			}
			frontier = next
		}

		for i := len(levels) - 1; i >= 0; i-- {
			for _, batch := range chunks(levels[i]) {
				result, err := tx.ExecContext(ctx,
					`DELETE FROM messages WHERE id IN (`+placeholders(len(batch))+`)`,
					int64Args(batch)...,
				)
				if err != nil {
					return fmt.Errorf("failed to delete messages: %w", err)
				}
				n, err := result.RowsAffected()
				if err != nil {
					return fmt.Errorf("failed to get rows affected: %w", err)
				}
				deleted += int(n)
			}
		}
		return touchThread(ctx, tx, threadID)
	})
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		log.Debug(log.CatStore, "subtree deleted", "thread", threadID, "root", id, "count", deleted)
	}
	return deleted, nil
}

// SetActive re-points the active-child pointers from target up to the root so
// that target lies on the active path. Pointers below target are untouched.
func (r *messageRepository) SetActive(ctx context.Context, threadID domain.ThreadID, target domain.MessageID) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		msg, err := getMessage(ctx, tx, target)
		if err != nil {
			return err
		}
		if msg.ThreadID() != threadID {
			return domain.MessageNotFound(target)
		}

		if err := activateChain(ctx, tx, threadID, msg.ID(), msg.ParentID()); err != nil {
			return err
		}
		return touchThread(ctx, tx, threadID)
	})
}

// Snapshot runs fn inside a transaction so every read sees the same state.
func (r *messageRepository) Snapshot(ctx context.Context, fn func(domain.TreeReader) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin snapshot: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	return fn(&treeReader{q: tx})
}

// treeReader implements domain.TreeReader over a querier.
type treeReader struct {
	q querier
}

var _ domain.TreeReader = (*treeReader)(nil)

func (t *treeReader) Thread(ctx context.Context, id domain.ThreadID) (*domain.Thread, error) {
	return getThread(ctx, t.q, id)
}

func (t *treeReader) Message(ctx context.Context, id domain.MessageID) (*domain.Message, error) {
	return getMessage(ctx, t.q, id)
}

func (t *treeReader) Roots(ctx context.Context, threadID domain.ThreadID) ([]*domain.Message, error) {
	return queryMessages(ctx, t.q,
		`SELECT `+messageColumns+` FROM messages WHERE thread_id = ? AND parent_id IS NULL ORDER BY created_at ASC, id ASC`,
		string(threadID),
	)
}

func (t *treeReader) Children(ctx context.Context, parentID domain.MessageID) ([]*domain.Message, error) {
	return queryMessages(ctx, t.q,
		`SELECT `+messageColumns+` FROM messages WHERE parent_id = ? ORDER BY created_at ASC, id ASC`,
		int64(parentID),
	)
}

func (t *treeReader) LatestRoot(ctx context.Context, threadID domain.ThreadID) (*domain.Message, error) {
	return t.latest(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE thread_id = ? AND parent_id IS NULL ORDER BY created_at DESC, id DESC LIMIT 1`,
		string(threadID),
	)
}

func (t *treeReader) LatestChild(ctx context.Context, parentID domain.MessageID) (*domain.Message, error) {
	return t.latest(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE parent_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		int64(parentID),
	)
}

func (t *treeReader) latest(ctx context.Context, query string, arg any) (*domain.Message, error) {
	model, err := scanMessage(t.q.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest message: %w", err)
	}
	return model.toDomain(), nil
}

func (t *treeReader) AttachFiles(ctx context.Context, msgs []*domain.Message) error {
	return attachFiles(ctx, t.q, msgs)
}
