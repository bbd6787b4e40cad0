package docgen

import (
	"context"
	"errors"
	"testing"

	"scribe/core"
	"scribe/github"
	"scribe/llm"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeFetcher struct {
	file    *core.GitHubFile
	fileErr error
	repo    *github.RepoInfo
	tree    []github.TreeEntry
}

func (f *fakeFetcher) GetFile(_ context.Context, _ string) (*core.GitHubFile, error) {
	return f.file, f.fileErr
}

func (f *fakeFetcher) GetRepo(_ context.Context, _, _ string) (*github.RepoInfo, error) {
	return f.repo, nil
}

func (f *fakeFetcher) ListTree(_ context.Context, _, _, _ string) ([]github.TreeEntry, error) {
	return f.tree, nil
}

type fakeLLM struct {
	content  string
	err      error
	calls    int
	lastText llm.TextRequest
}

func (f *fakeLLM) GenerateText(_ context.Context, req llm.TextRequest) (*llm.Completion, error) {
	f.calls++
	f.lastText = req
	return &llm.Completion{Content: f.content}, f.err
}

func (f *fakeLLM) GenerateJSON(_ context.Context, _ llm.JSONRequest) (*llm.Completion, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Completion{Content: f.content}, nil
}

func testFile() *core.GitHubFile {
	return &core.GitHubFile{
		Owner:   "octocat",
		Repo:    "hello-world",
		Ref:     "main",
		Path:    "main.go",
		Content: "package main",
	}
}

func TestGenerateForFile(t *testing.T) {
	client := &fakeLLM{content: `{"description": "An entry point.", "insights": ["uses package main", "tiny"]}`}
	svc := NewService(&fakeFetcher{file: testFile()}, client, llm.DefaultPrompts(), nil, zap.NewNop().Sugar())

	markdown, file, err := svc.GenerateForFile(context.Background(), "https://github.com/octocat/hello-world/blob/main/main.go", core.DefaultModel)

	require.NoError(t, err)
	assert.Equal(t, "main.go", file.Path)
	assert.Contains(t, markdown, "## Description\nAn entry point.")
	assert.Contains(t, markdown, "## Insights\n- uses package main\n- tiny")
}

func TestGenerateForFile_FetchError(t *testing.T) {
	svc := NewService(&fakeFetcher{fileErr: github.ErrNotFound}, &fakeLLM{}, llm.DefaultPrompts(), nil, zap.NewNop().Sugar())

	_, _, err := svc.GenerateForFile(context.Background(), "https://github.com/o/r/blob/main/gone.go", core.DefaultModel)

	assert.ErrorIs(t, err, github.ErrNotFound)
}

func TestGenerateForFile_BadJSON(t *testing.T) {
	client := &fakeLLM{content: "not json"}
	svc := NewService(&fakeFetcher{file: testFile()}, client, llm.DefaultPrompts(), nil, zap.NewNop().Sugar())

	_, _, err := svc.GenerateForFile(context.Background(), "https://github.com/o/r/blob/main/a.go", core.DefaultModel)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode documentation")
}

func TestGenerateForFile_CachesResult(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	cache := core.NewRedisCacheFromClient(rdb, zap.NewNop().Sugar())

	client := &fakeLLM{content: `{"description": "cached", "insights": []}`}
	svc := NewService(&fakeFetcher{file: testFile()}, client, llm.DefaultPrompts(), cache, zap.NewNop().Sugar())

	url := "https://github.com/octocat/hello-world/blob/main/main.go"
	first, _, err := svc.GenerateForFile(context.Background(), url, core.DefaultModel)
	require.NoError(t, err)

	second, _, err := svc.GenerateForFile(context.Background(), url, core.DefaultModel)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, client.calls, "second call should be served from cache")
}

func TestRenderMarkdown_NoInsights(t *testing.T) {
	markdown := renderMarkdown(FileDoc{Description: "just text"})

	assert.Equal(t, "## Description\njust text\n", markdown)
}

func TestRegisterRepo(t *testing.T) {
	fetcher := &fakeFetcher{
		repo: &github.RepoInfo{FullName: "octocat/hello-world", DefaultBranch: "main"},
		tree: []github.TreeEntry{
			{Path: "main.go", Type: "blob", Size: 120},
			{Path: "big.bin", Type: "blob", Size: core.MaxSourceFileBytes + 1},
			{Path: "util.go", Type: "blob", Size: 80},
		},
	}
	svc := NewService(fetcher, &fakeLLM{}, llm.DefaultPrompts(), nil, zap.NewNop().Sugar())

	ids := map[string]string{"main.go": "doc-1", "util.go": "doc-2"}
	repo, err := svc.RegisterRepo(context.Background(), "user-1", "octocat", "hello-world",
		func(path string) string { return ids[path] })

	require.NoError(t, err)
	assert.Equal(t, "main", repo.DefaultBranch)
	require.Len(t, repo.Tree, 2, "oversized file should be skipped")
	assert.Equal(t, "doc-1", repo.Tree[0].DocID)
	assert.Equal(t, core.DocStatusStarted, repo.Tree[0].Status)
}

func TestAnswer(t *testing.T) {
	client := &fakeLLM{content: "The parser uses a recursive splitter."}
	svc := NewService(&fakeFetcher{}, client, llm.DefaultPrompts(), nil, zap.NewNop().Sugar())

	answer, err := svc.Answer(context.Background(), "how does the parser split input?",
		[]RelevantDoc{
			{Path: "parser.go", Markdown: "## Description\nRecursive splitter.\n", Score: 0.88},
			{Path: "lexer.go", Markdown: "## Description\nTokenizer.\n", Score: 0.72},
		}, core.DefaultModel)

	require.NoError(t, err)
	assert.Equal(t, "The parser uses a recursive splitter.", answer)
	assert.Equal(t, llm.DefaultPrompts().Chat, client.lastText.SystemPrompt)
	assert.Contains(t, client.lastText.Prompt, "Question: how does the parser split input?")
	assert.Contains(t, client.lastText.Prompt, "There are 2 relevant document(s).")
	assert.Contains(t, client.lastText.Prompt, "1. parser.go with a relevancy score of 0.88.")
	assert.Contains(t, client.lastText.Prompt, "Recursive splitter.")
}

func TestAnswer_LLMError(t *testing.T) {
	client := &fakeLLM{err: errors.New("rate limited")}
	svc := NewService(&fakeFetcher{}, client, llm.DefaultPrompts(), nil, zap.NewNop().Sugar())

	_, err := svc.Answer(context.Background(), "anything", nil, core.DefaultModel)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to answer question")
}

func TestGenerateForFile_LLMError(t *testing.T) {
	client := &fakeLLM{err: errors.New("rate limited")}
	svc := NewService(&fakeFetcher{file: testFile()}, client, llm.DefaultPrompts(), nil, zap.NewNop().Sugar())

	_, _, err := svc.GenerateForFile(context.Background(), "https://github.com/o/r/blob/main/a.go", core.DefaultModel)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to generate documentation")
}
