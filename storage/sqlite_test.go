package storage

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"scribe/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "scribe.db")
	db, err := NewSQLite(dbPath, zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestValidateDatabasePath(t *testing.T) {
	assert.NoError(t, validateDatabasePath(":memory:"))
	assert.NoError(t, validateDatabasePath("/var/lib/scribe/scribe.db"))
	assert.NoError(t, validateDatabasePath("data/scribe.db"))
	assert.Error(t, validateDatabasePath(""))
	assert.Error(t, validateDatabasePath("../outside.db"))
}

func TestSQLiteHealthCheck(t *testing.T) {
	db := newTestSQLite(t)
	assert.NoError(t, db.HealthCheck())
}

func TestSQLiteDocStorage_CRUD(t *testing.T) {
	db := newTestSQLite(t)
	ds, err := NewSQLiteDocStorage(db)
	require.NoError(t, err)

	doc := &core.Doc{
		ID:        "doc-1",
		UserID:    "user-1",
		RepoID:    "repo-1",
		GitHubURL: "https://github.com/o/r/blob/main/a.go",
		FilePath:  "a.go",
		Model:     core.DefaultModel,
		Status:    core.DocStatusStarted,
	}
	require.NoError(t, ds.CreateDoc(doc))

	got, err := ds.GetDoc("doc-1")
	require.NoError(t, err)
	assert.Equal(t, doc.GitHubURL, got.GitHubURL)
	assert.Equal(t, core.DocStatusStarted, got.Status)
	assert.WithinDuration(t, time.Now().UTC(), got.CreatedAt, time.Minute)

	require.NoError(t, ds.SetDocResult("doc-1", core.DocStatusCompleted, "## Description\nok", ""))

	got, err = ds.GetDoc("doc-1")
	require.NoError(t, err)
	assert.Equal(t, core.DocStatusCompleted, got.Status)
	assert.Equal(t, "## Description\nok", got.Markdown)

	require.NoError(t, ds.DeleteDoc("doc-1"))

	_, err = ds.GetDoc("doc-1")
	assert.ErrorIs(t, err, core.ErrDocNotFound)
}

func TestSQLiteDocStorage_NotFound(t *testing.T) {
	db := newTestSQLite(t)
	ds, err := NewSQLiteDocStorage(db)
	require.NoError(t, err)

	_, err = ds.GetDoc("missing")
	assert.ErrorIs(t, err, core.ErrDocNotFound)

	assert.ErrorIs(t, ds.SetDocResult("missing", core.DocStatusFailed, "", "boom"), core.ErrDocNotFound)
	assert.ErrorIs(t, ds.DeleteDoc("missing"), core.ErrDocNotFound)
}

func TestSQLiteDocStorage_QueriesByRepoAndUser(t *testing.T) {
	db := newTestSQLite(t)
	ds, err := NewSQLiteDocStorage(db)
	require.NoError(t, err)

	for _, doc := range []*core.Doc{
		{ID: "doc-1", UserID: "user-1", RepoID: "repo-1", GitHubURL: "u1", Model: core.DefaultModel, Status: core.DocStatusCompleted},
		{ID: "doc-2", UserID: "user-1", RepoID: "repo-1", GitHubURL: "u2", Model: core.DefaultModel, Status: core.DocStatusStarted},
		{ID: "doc-3", UserID: "user-2", RepoID: "repo-2", GitHubURL: "u3", Model: core.DefaultModel, Status: core.DocStatusCompleted},
	} {
		require.NoError(t, ds.CreateDoc(doc))
	}

	byRepo, err := ds.GetDocsByRepo("repo-1")
	require.NoError(t, err)
	assert.Len(t, byRepo, 2)

	byUser, err := ds.GetDocsByUser("user-2", 10, 0)
	require.NoError(t, err)
	require.Len(t, byUser, 1)
	assert.Equal(t, "doc-3", byUser[0].ID)

	deleted, err := ds.DeleteDocsByRepo("repo-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
}

func TestSQLiteRepoStorage_CRUD(t *testing.T) {
	db := newTestSQLite(t)
	rs, err := NewSQLiteRepoStorage(db)
	require.NoError(t, err)

	repo := &core.Repo{
		ID:            "repo-1",
		UserID:        "user-1",
		Owner:         "octocat",
		Name:          "hello-world",
		DefaultBranch: "main",
		Tree: []core.TreeNode{
			{DocID: "doc-1", Path: "a.go", Status: core.DocStatusStarted},
			{DocID: "doc-2", Path: "b.go", Status: core.DocStatusStarted},
		},
	}
	require.NoError(t, rs.CreateRepo(repo))

	got, err := rs.GetRepo("repo-1")
	require.NoError(t, err)
	assert.Equal(t, "octocat", got.Owner)
	require.Len(t, got.Tree, 2)

	require.NoError(t, rs.SetTreeNodeStatus("repo-1", "doc-1", core.DocStatusCompleted))

	got, err = rs.GetRepo("repo-1")
	require.NoError(t, err)
	assert.Equal(t, core.DocStatusCompleted, got.Tree[0].Status)
	assert.Equal(t, core.DocStatusStarted, got.Tree[1].Status)

	byUser, err := rs.GetReposByUser("user-1")
	require.NoError(t, err)
	assert.Len(t, byUser, 1)

	require.NoError(t, rs.DeleteRepo("repo-1"))

	_, err = rs.GetRepo("repo-1")
	assert.ErrorIs(t, err, core.ErrRepoNotFound)
}

func TestSQLiteRepoStorage_SetTreeNodeStatus_Concurrent(t *testing.T) {
	db := newTestSQLite(t)
	rs, err := NewSQLiteRepoStorage(db)
	require.NoError(t, err)

	const nodes = 8
	tree := make([]core.TreeNode, nodes)
	for i := range tree {
		tree[i] = core.TreeNode{DocID: fmt.Sprintf("doc-%d", i), Path: fmt.Sprintf("file%d.go", i), Status: core.DocStatusStarted}
	}
	require.NoError(t, rs.CreateRepo(&core.Repo{
		ID: "repo-1", UserID: "user-1", Owner: "o", Name: "r", Tree: tree,
	}))

	// Workers finishing jobs for the same repo must not revert each
	// other's node updates.
	var wg sync.WaitGroup
	errs := make(chan error, nodes)
	for i := 0; i < nodes; i++ {
		wg.Add(1)
		go func(docID string) {
			defer wg.Done()
			errs <- rs.SetTreeNodeStatus("repo-1", docID, core.DocStatusCompleted)
		}(fmt.Sprintf("doc-%d", i))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := rs.GetRepo("repo-1")
	require.NoError(t, err)
	require.Len(t, got.Tree, nodes)
	for _, node := range got.Tree {
		assert.Equal(t, core.DocStatusCompleted, node.Status, "node %s lost its update", node.DocID)
	}
}

func TestSQLiteRepoStorage_SetTreeNodeStatus_UnknownDoc(t *testing.T) {
	db := newTestSQLite(t)
	rs, err := NewSQLiteRepoStorage(db)
	require.NoError(t, err)

	repo := &core.Repo{ID: "repo-1", UserID: "user-1", Owner: "o", Name: "r"}
	require.NoError(t, rs.CreateRepo(repo))

	err = rs.SetTreeNodeStatus("repo-1", "missing-doc", core.DocStatusCompleted)
	assert.ErrorIs(t, err, core.ErrRepoNotFound)
}
