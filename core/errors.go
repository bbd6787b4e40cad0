package core

import "errors"

var (
	// ErrDocNotFound is returned when a documentation record does not
	// exist or is not visible to the caller.
	ErrDocNotFound = errors.New("documentation not found")

	// ErrRepoNotFound is returned when a repository record does not
	// exist or is not visible to the caller.
	ErrRepoNotFound = errors.New("repository not found")

	// ErrDocInProgress is returned when an operation is rejected
	// because generation for the record has not finished.
	ErrDocInProgress = errors.New("documentation generation in progress")

	// ErrNamespaceExists is returned when a repository is embedded a
	// second time without an explicit reindex.
	ErrNamespaceExists = errors.New("namespace already indexed")
)
