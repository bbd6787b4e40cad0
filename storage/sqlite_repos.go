package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"scribe/core"
)

// SQLiteRepoStorage implements RepoStorageInterface on SQLite. The
// file tree is stored as a JSON blob; it is always read and written
// whole, so a relational layout buys nothing.
type SQLiteRepoStorage struct {
	db *SQLite
}

// NewSQLiteRepoStorage creates the repos table if needed and returns a
// storage handler.
func NewSQLiteRepoStorage(db *SQLite) (*SQLiteRepoStorage, error) {
	schema := `
	CREATE TABLE IF NOT EXISTS repos (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		owner TEXT NOT NULL,
		name TEXT NOT NULL,
		default_branch TEXT NOT NULL DEFAULT '',
		tree TEXT NOT NULL DEFAULT '[]',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_repos_user_id ON repos(user_id, created_at DESC);
	`
	if _, err := db.WriteDB.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create repos schema: %w", err)
	}
	return &SQLiteRepoStorage{db: db}, nil
}

// CreateRepo inserts a new repository record
func (rs *SQLiteRepoStorage) CreateRepo(repo *core.Repo) error {
	now := time.Now().UTC()
	if repo.CreatedAt.IsZero() {
		repo.CreatedAt = now
	}
	repo.UpdatedAt = now

	tree, err := json.Marshal(repo.Tree)
	if err != nil {
		return fmt.Errorf("failed to encode tree: %w", err)
	}

	_, err = rs.db.WriteDB.Exec(`
		INSERT INTO repos (id, user_id, owner, name, default_branch, tree, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		repo.ID, repo.UserID, repo.Owner, repo.Name, repo.DefaultBranch, string(tree),
		repo.CreatedAt.Format(time.RFC3339Nano), repo.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to insert repo: %w", err)
	}
	return nil
}

func scanRepo(row interface{ Scan(dest ...interface{}) error }) (*core.Repo, error) {
	var repo core.Repo
	var tree, createdAt, updatedAt string

	err := row.Scan(&repo.ID, &repo.UserID, &repo.Owner, &repo.Name,
		&repo.DefaultBranch, &tree, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(tree), &repo.Tree); err != nil {
		return nil, fmt.Errorf("failed to decode tree: %w", err)
	}
	if repo.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if repo.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return &repo, nil
}

const repoColumns = "id, user_id, owner, name, default_branch, tree, created_at, updated_at"

// GetRepo retrieves a single repository record by ID
func (rs *SQLiteRepoStorage) GetRepo(id string) (*core.Repo, error) {
	row := rs.db.ReadDB.QueryRow("SELECT "+repoColumns+" FROM repos WHERE id = ?", id)

	repo, err := scanRepo(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrRepoNotFound
		}
		return nil, fmt.Errorf("failed to find repo: %w", err)
	}
	return repo, nil
}

// GetReposByUser retrieves all repository records owned by a user
func (rs *SQLiteRepoStorage) GetReposByUser(userID string) ([]core.Repo, error) {
	rows, err := rs.db.ReadDB.Query(
		"SELECT "+repoColumns+" FROM repos WHERE user_id = ? ORDER BY created_at DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query repos: %w", err)
	}
	defer rows.Close()

	repos := make([]core.Repo, 0)
	for rows.Next() {
		repo, err := scanRepo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan repo: %w", err)
		}
		repos = append(repos, *repo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return repos, nil
}

// UpdateRepo replaces the mutable fields of a repository record
func (rs *SQLiteRepoStorage) UpdateRepo(id string, repo *core.Repo) error {
	repo.UpdatedAt = time.Now().UTC()

	tree, err := json.Marshal(repo.Tree)
	if err != nil {
		return fmt.Errorf("failed to encode tree: %w", err)
	}

	result, err := rs.db.WriteDB.Exec(`
		UPDATE repos SET owner = ?, name = ?, default_branch = ?, tree = ?, updated_at = ?
		WHERE id = ?`,
		repo.Owner, repo.Name, repo.DefaultBranch, string(tree),
		repo.UpdatedAt.Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("failed to update repo: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return core.ErrRepoNotFound
	}
	return nil
}

// SetTreeNodeStatus updates the status of the tree node pointing at
// docID. The read and rewrite of the tree run in one transaction on
// the write pool; with a single write connection, concurrent updates
// serialize and neither can overwrite the other's node.
func (rs *SQLiteRepoStorage) SetTreeNodeStatus(repoID, docID string, status core.DocStatus) error {
	tx, err := rs.db.WriteDB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin tree update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var raw string
	if err := tx.QueryRow("SELECT tree FROM repos WHERE id = ?", repoID).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.ErrRepoNotFound
		}
		return fmt.Errorf("failed to read tree: %w", err)
	}

	var nodes []core.TreeNode
	if err := json.Unmarshal([]byte(raw), &nodes); err != nil {
		return fmt.Errorf("failed to decode tree: %w", err)
	}

	found := false
	for i := range nodes {
		if nodes[i].DocID == docID {
			nodes[i].Status = status
			found = true
		}
	}
	if !found {
		return core.ErrRepoNotFound
	}

	tree, err := json.Marshal(nodes)
	if err != nil {
		return fmt.Errorf("failed to encode tree: %w", err)
	}

	if _, err := tx.Exec("UPDATE repos SET tree = ?, updated_at = ? WHERE id = ?",
		string(tree), time.Now().UTC().Format(time.RFC3339Nano), repoID); err != nil {
		return fmt.Errorf("failed to update tree: %w", err)
	}
	return tx.Commit()
}

// DeleteRepo deletes a repository record by ID
func (rs *SQLiteRepoStorage) DeleteRepo(id string) error {
	result, err := rs.db.WriteDB.Exec("DELETE FROM repos WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete repo: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return core.ErrRepoNotFound
	}
	return nil
}

// EnsureIndexes is a no-op: indexes are created with the schema
func (rs *SQLiteRepoStorage) EnsureIndexes() error {
	return nil
}
