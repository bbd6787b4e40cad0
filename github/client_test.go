package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseBlobURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    FileRef
		wantErr bool
	}{
		{
			name: "standard blob url",
			url:  "https://github.com/carlos-jmh/miniDiscord/blob/main/chat/storage.go",
			want: FileRef{Owner: "carlos-jmh", Repo: "miniDiscord", Ref: "main", Path: "chat/storage.go"},
		},
		{
			name: "nested path",
			url:  "https://github.com/owner/repo/blob/dev/a/b/c.py",
			want: FileRef{Owner: "owner", Repo: "repo", Ref: "dev", Path: "a/b/c.py"},
		},
		{name: "not github", url: "https://gitlab.com/o/r/blob/main/f.go", wantErr: true},
		{name: "repo root only", url: "https://github.com/owner/repo", wantErr: true},
		{name: "tree url", url: "https://github.com/owner/repo/tree/main/dir", wantErr: true},
		{name: "garbage", url: "://not-a-url", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBlobURL(tt.url)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidURL)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "test-token", 5*time.Second, zap.NewNop().Sugar())
}

func TestGetFileDecodesBase64(t *testing.T) {
	source := "package chat\n\nfunc Store() {}\n"

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/carlos-jmh/miniDiscord/contents/chat/storage.go", r.URL.Path)
		assert.Equal(t, "main", r.URL.Query().Get("ref"))
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"content":  base64.StdEncoding.EncodeToString([]byte(source)),
			"encoding": "base64",
			"sha":      "abc123",
			"size":     len(source),
			"type":     "file",
			"html_url": "https://github.com/carlos-jmh/miniDiscord/blob/main/chat/storage.go",
		})
	}))

	file, err := client.GetFile(context.Background(), "https://github.com/carlos-jmh/miniDiscord/blob/main/chat/storage.go")
	require.NoError(t, err)
	assert.Equal(t, source, file.Content)
	assert.Equal(t, "carlos-jmh/miniDiscord", file.FullName())
	assert.Equal(t, "abc123", file.SHA)
}

func TestGetFileNotFound(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	}))

	_, err := client.GetFile(context.Background(), "https://github.com/o/r/blob/main/nope.go")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetFileRateLimited(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "0")
		http.Error(w, `{"message":"rate limit exceeded"}`, http.StatusForbidden)
	}))

	_, err := client.GetFile(context.Background(), "https://github.com/o/r/blob/main/f.go")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestGetFileRejectsDirectories(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"type": "dir"})
	}))

	_, err := client.GetFile(context.Background(), "https://github.com/o/r/blob/main/dir")
	assert.ErrorIs(t, err, ErrInvalidURL)
}

func TestGetRepo(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/owner/repo", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"full_name":      "owner/repo",
			"default_branch": "main",
		})
	}))

	info, err := client.GetRepo(context.Background(), "owner", "repo")
	require.NoError(t, err)
	assert.Equal(t, "main", info.DefaultBranch)
}

func TestListTreeFiltersBlobs(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/owner/repo/git/trees/main", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("recursive"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"tree": []map[string]interface{}{
				{"path": "main.go", "type": "blob", "size": 120},
				{"path": "pkg", "type": "tree"},
				{"path": "pkg/util.go", "type": "blob", "size": 80},
			},
		})
	}))

	entries, err := client.ListTree(context.Background(), "owner", "repo", "main")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "main.go", entries[0].Path)
	assert.Equal(t, "pkg/util.go", entries[1].Path)
}
