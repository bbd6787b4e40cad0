package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"scribe/core"
)

// SQLiteDocStorage implements DocStorageInterface on SQLite. Used as
// the fallback store when MongoDB is not configured.
type SQLiteDocStorage struct {
	db *SQLite
}

// NewSQLiteDocStorage creates the docs table if needed and returns a
// storage handler.
func NewSQLiteDocStorage(db *SQLite) (*SQLiteDocStorage, error) {
	schema := `
	CREATE TABLE IF NOT EXISTS docs (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		repo_id TEXT NOT NULL DEFAULT '',
		github_url TEXT NOT NULL,
		file_path TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL,
		status TEXT NOT NULL,
		markdown TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_docs_repo_id ON docs(repo_id);
	CREATE INDEX IF NOT EXISTS idx_docs_user_id ON docs(user_id, created_at DESC);
	`
	if _, err := db.WriteDB.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create docs schema: %w", err)
	}
	return &SQLiteDocStorage{db: db}, nil
}

// CreateDoc inserts a new documentation record
func (ds *SQLiteDocStorage) CreateDoc(doc *core.Doc) error {
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	_, err := ds.db.WriteDB.Exec(`
		INSERT INTO docs (id, user_id, repo_id, github_url, file_path, model, status, markdown, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.UserID, doc.RepoID, doc.GitHubURL, doc.FilePath,
		string(doc.Model), string(doc.Status), doc.Markdown, doc.Error,
		doc.CreatedAt.Format(time.RFC3339Nano), doc.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to insert doc: %w", err)
	}
	return nil
}

func scanDoc(row interface{ Scan(dest ...interface{}) error }) (*core.Doc, error) {
	var doc core.Doc
	var model, status, createdAt, updatedAt string

	err := row.Scan(&doc.ID, &doc.UserID, &doc.RepoID, &doc.GitHubURL, &doc.FilePath,
		&model, &status, &doc.Markdown, &doc.Error, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	doc.Model = core.LLMModel(model)
	doc.Status = core.DocStatus(status)
	if doc.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if doc.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return &doc, nil
}

const docColumns = "id, user_id, repo_id, github_url, file_path, model, status, markdown, error, created_at, updated_at"

// GetDoc retrieves a single documentation record by ID
func (ds *SQLiteDocStorage) GetDoc(id string) (*core.Doc, error) {
	row := ds.db.ReadDB.QueryRow("SELECT "+docColumns+" FROM docs WHERE id = ?", id)

	doc, err := scanDoc(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrDocNotFound
		}
		return nil, fmt.Errorf("failed to find doc: %w", err)
	}
	return doc, nil
}

func (ds *SQLiteDocStorage) queryDocs(query string, args ...interface{}) ([]core.Doc, error) {
	rows, err := ds.db.ReadDB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query docs: %w", err)
	}
	defer rows.Close()

	docs := make([]core.Doc, 0)
	for rows.Next() {
		doc, err := scanDoc(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan doc: %w", err)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return docs, nil
}

// GetDocsByRepo retrieves all documentation records for a repository
func (ds *SQLiteDocStorage) GetDocsByRepo(repoID string) ([]core.Doc, error) {
	return ds.queryDocs("SELECT "+docColumns+" FROM docs WHERE repo_id = ?", repoID)
}

// GetDocsByUser retrieves documentation records owned by a user, newest first
func (ds *SQLiteDocStorage) GetDocsByUser(userID string, limit, offset int) ([]core.Doc, error) {
	if limit <= 0 {
		limit = -1
	}
	return ds.queryDocs(
		"SELECT "+docColumns+" FROM docs WHERE user_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?",
		userID, limit, offset)
}

// UpdateDoc replaces the mutable fields of a documentation record
func (ds *SQLiteDocStorage) UpdateDoc(id string, doc *core.Doc) error {
	doc.UpdatedAt = time.Now().UTC()

	result, err := ds.db.WriteDB.Exec(`
		UPDATE docs SET model = ?, status = ?, markdown = ?, error = ?, updated_at = ?
		WHERE id = ?`,
		string(doc.Model), string(doc.Status), doc.Markdown, doc.Error,
		doc.UpdatedAt.Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("failed to update doc: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return core.ErrDocNotFound
	}
	return nil
}

// SetDocResult records the outcome of a generation job
func (ds *SQLiteDocStorage) SetDocResult(id string, status core.DocStatus, markdown, errMsg string) error {
	result, err := ds.db.WriteDB.Exec(`
		UPDATE docs SET status = ?, markdown = ?, error = ?, updated_at = ?
		WHERE id = ?`,
		string(status), markdown, errMsg, time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("failed to set doc result: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return core.ErrDocNotFound
	}
	return nil
}

// DeleteDoc deletes a documentation record by ID
func (ds *SQLiteDocStorage) DeleteDoc(id string) error {
	result, err := ds.db.WriteDB.Exec("DELETE FROM docs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete doc: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return core.ErrDocNotFound
	}
	return nil
}

// DeleteDocsByRepo deletes all documentation records of a repository
func (ds *SQLiteDocStorage) DeleteDocsByRepo(repoID string) (int64, error) {
	result, err := ds.db.WriteDB.Exec("DELETE FROM docs WHERE repo_id = ?", repoID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete docs: %w", err)
	}
	return result.RowsAffected()
}

// EnsureIndexes is a no-op: indexes are created with the schema
func (ds *SQLiteDocStorage) EnsureIndexes() error {
	return nil
}
