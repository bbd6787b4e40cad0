package storage

import (
	"scribe/core"
)

// DocStorageInterface defines the interface for documentation record storage
type DocStorageInterface interface {
	CreateDoc(doc *core.Doc) error
	GetDoc(id string) (*core.Doc, error)
	GetDocsByRepo(repoID string) ([]core.Doc, error)
	GetDocsByUser(userID string, limit, offset int) ([]core.Doc, error)
	UpdateDoc(id string, doc *core.Doc) error
	// SetDocResult records the outcome of a generation job: status plus
	// either the generated markdown or the failure message.
	SetDocResult(id string, status core.DocStatus, markdown, errMsg string) error
	DeleteDoc(id string) error
	DeleteDocsByRepo(repoID string) (int64, error)
	EnsureIndexes() error
}

// RepoStorageInterface defines the interface for repository record storage
type RepoStorageInterface interface {
	CreateRepo(repo *core.Repo) error
	GetRepo(id string) (*core.Repo, error)
	GetReposByUser(userID string) ([]core.Repo, error)
	UpdateRepo(id string, repo *core.Repo) error
	// SetTreeNodeStatus updates the status of the tree node that points
	// at docID, keeping the repo's file tree in step with job outcomes.
	SetTreeNodeStatus(repoID, docID string, status core.DocStatus) error
	DeleteRepo(id string) error
	EnsureIndexes() error
}
