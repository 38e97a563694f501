package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search runs plainto_tsquery over the mirrored version records, ranked by
// ts_rank with ts_headline snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	where := "v.search_vector @@ plainto_tsquery('english', $1)"
	args := []any{q.Text}
	argN := 2

	if q.FilterDocumentID != "" {
		where += fmt.Sprintf(" AND v.document_id = $%d", argN)
		args = append(args, q.FilterDocumentID)
		argN++
	}
	if q.FilterBranch != "" {
		where += fmt.Sprintf(" AND v.branch = $%d", argN)
		args = append(args, q.FilterBranch)
		argN++
	}
	if q.FilterAuthor != "" {
		where += fmt.Sprintf(" AND v.author = $%d", argN)
		args = append(args, q.FilterAuthor)
		argN++
	}

	ctx := context.Background()

	countSQL := "SELECT count(*) FROM document_versions v WHERE " + where
	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT v.id, v.document_id, v.branch, v.sequence, v.author, v.message, v.content_hash,
			ts_headline('english', coalesce(v.content, ''), plainto_tsquery('english', $1), 'MaxFragments=1,MaxWords=30') AS snippet
		FROM document_versions v
		WHERE %s
		ORDER BY ts_rank(v.search_vector, plainto_tsquery('english', $1)) DESC
		LIMIT %d OFFSET %d`, where, limit, offset)

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.VersionID, &r.DocumentID, &r.Branch, &r.Sequence,
			&r.Author, &r.Message, &r.ContentHash, &r.Snippet); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns every mirrored version record for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]VersionRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, document_id, branch, sequence, author, message, content, content_hash
		FROM document_versions
	`)
	if err != nil {
		return nil, fmt.Errorf("load version records: %w", err)
	}
	defer rows.Close()

	records := make([]VersionRecord, 0)
	for rows.Next() {
		var r VersionRecord
		if err := rows.Scan(&r.ID, &r.DocumentID, &r.Branch, &r.Sequence,
			&r.Author, &r.Message, &r.Content, &r.ContentHash); err != nil {
			return nil, fmt.Errorf("scan version record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate version records: %w", err)
	}
	return records, nil
}
