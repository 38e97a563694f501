package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"inkwell/api/internal/util"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// LoadContent returns a document's persisted content. found is false when
// the document does not exist.
func (s *PostgresStore) LoadContent(ctx context.Context, documentID string) (string, bool, error) {
	const query = `SELECT content FROM documents WHERE id = $1`
	var content string
	err := s.db.QueryRowContext(ctx, query, documentID).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load content: %w", err)
	}
	return content, true, nil
}

// CreateContent inserts a document record, tolerating a concurrent create.
func (s *PostgresStore) CreateContent(ctx context.Context, documentID, content, contentType string) error {
	const query = `
		INSERT INTO documents (id, content, content_type)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, documentID, content, contentType); err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

// UpdateContent overwrites a document's persisted content.
func (s *PostgresStore) UpdateContent(ctx context.Context, documentID, content string) error {
	const query = `UPDATE documents SET content = $2, updated_at = NOW() WHERE id = $1`
	result, err := s.db.ExecContext(ctx, query, documentID, content)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("update document %s: %w", documentID, sql.ErrNoRows)
	}
	return nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, documentID string) (Document, error) {
	const query = `SELECT id, content, content_type, created_at, updated_at FROM documents WHERE id = $1`
	var doc Document
	err := s.db.QueryRowContext(ctx, query, documentID).
		Scan(&doc.ID, &doc.Content, &doc.ContentType, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return Document{}, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

// InsertVersionRecord mirrors one committed version.
func (s *PostgresStore) InsertVersionRecord(ctx context.Context, record VersionRecord) error {
	const query = `
		INSERT INTO document_versions (id, document_id, branch, sequence, author, message, content_hash, content)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		record.ID, record.DocumentID, record.Branch, record.Sequence,
		record.Author, record.Message, record.ContentHash, record.Content)
	if err != nil {
		return fmt.Errorf("insert version record: %w", err)
	}
	return nil
}

// ListVersionRecords returns a document's mirrored versions, newest first.
func (s *PostgresStore) ListVersionRecords(ctx context.Context, documentID string, limit int) ([]VersionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT id, document_id, branch, sequence, author, message, content_hash, content, created_at
		FROM document_versions
		WHERE document_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, documentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list version records: %w", err)
	}
	defer rows.Close()

	var records []VersionRecord
	for rows.Next() {
		var r VersionRecord
		if err := rows.Scan(&r.ID, &r.DocumentID, &r.Branch, &r.Sequence,
			&r.Author, &r.Message, &r.ContentHash, &r.Content, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan version record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) (User, error) {
	if user.ID == "" {
		user.ID = util.NewID("usr")
	}
	const query = `
		INSERT INTO users (id, email, display_name, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING id, email, display_name, password_hash, created_at, updated_at
	`
	var created User
	err := s.db.QueryRowContext(ctx, query, user.ID, user.Email, user.DisplayName, user.PasswordHash).
		Scan(&created.ID, &created.Email, &created.DisplayName, &created.PasswordHash, &created.CreatedAt, &created.UpdatedAt)
	if err != nil {
		return User{}, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	const query = `SELECT id, email, display_name, password_hash, created_at, updated_at FROM users WHERE email = $1`
	var user User
	err := s.db.QueryRowContext(ctx, query, email).
		Scan(&user.ID, &user.Email, &user.DisplayName, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, fmt.Errorf("get user by email: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (User, error) {
	const query = `SELECT id, email, display_name, password_hash, created_at, updated_at FROM users WHERE id = $1`
	var user User
	err := s.db.QueryRowContext(ctx, query, id).
		Scan(&user.ID, &user.Email, &user.DisplayName, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, fmt.Errorf("get user by id: %w", err)
	}
	return user, nil
}
