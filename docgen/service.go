// Package docgen generates markdown documentation for GitHub-hosted
// source files with an LLM, synchronously for the blocking endpoint
// and through a worker pool for background jobs.
package docgen

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"scribe/core"
	"scribe/github"
	"scribe/llm"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
)

const (
	// resultTTL bounds how long a generated doc stays cached. Source
	// files change rarely relative to this.
	resultTTL = 24 * time.Hour

	schemaRetries = 2

	answerMaxTokens   = 512
	answerTemperature = 0.4
)

// FileFetcher is the slice of the GitHub client the generator needs.
type FileFetcher interface {
	GetFile(ctx context.Context, blobURL string) (*core.GitHubFile, error)
	GetRepo(ctx context.Context, owner, repo string) (*github.RepoInfo, error)
	ListTree(ctx context.Context, owner, repo, ref string) ([]github.TreeEntry, error)
}

// FileDoc is the structured shape the LLM must return for a file.
type FileDoc struct {
	Description string   `json:"description"`
	Insights    []string `json:"insights"`
}

// Service generates documentation for single source files.
type Service struct {
	github FileFetcher
	llm    llm.Client
	cache  *core.RedisCache // nil disables result caching
	logger *zap.SugaredLogger

	mu      sync.RWMutex
	prompts llm.Prompts
}

// NewService creates a documentation generator. cache may be nil.
func NewService(gh FileFetcher, client llm.Client, prompts llm.Prompts, cache *core.RedisCache, logger *zap.SugaredLogger) *Service {
	return &Service{
		github:  gh,
		llm:     client,
		cache:   cache,
		prompts: prompts,
		logger:  logger,
	}
}

// SetPrompts swaps the prompt pack. Called when the prompt file
// changes under --reload.
func (s *Service) SetPrompts(prompts llm.Prompts) {
	s.mu.Lock()
	s.prompts = prompts
	s.mu.Unlock()
}

func (s *Service) systemPrompt() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prompts.FileDocJSON
}

func (s *Service) chatPrompt() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prompts.Chat
}

func cacheKey(blobURL string, model core.LLMModel) string {
	return fmt.Sprintf("docgen:%016x", xxhash.Sum64String(blobURL+"|"+string(model)))
}

// GenerateForFile fetches the file behind a GitHub blob URL and
// produces its markdown documentation.
func (s *Service) GenerateForFile(ctx context.Context, blobURL string, model core.LLMModel) (string, *core.GitHubFile, error) {
	file, err := s.github.GetFile(ctx, blobURL)
	if err != nil {
		return "", nil, fmt.Errorf("failed to fetch %s: %w", blobURL, err)
	}

	key := cacheKey(blobURL, model)
	if s.cache != nil {
		var cached string
		if ok, err := s.cache.Get(ctx, key, &cached); err == nil && ok {
			return cached, file, nil
		}
	}

	completion, err := s.llm.GenerateJSON(ctx, llm.JSONRequest{
		Model:        model,
		SystemPrompt: s.systemPrompt(),
		Prompt:       file.Content,
		Schema:       llm.FileDocSchema(),
		MaxRetries:   schemaRetries,
	})
	if err != nil {
		return "", file, fmt.Errorf("failed to generate documentation for %s: %w", file.Path, err)
	}

	var doc FileDoc
	if err := json.Unmarshal([]byte(completion.Content), &doc); err != nil {
		return "", file, fmt.Errorf("failed to decode documentation for %s: %w", file.Path, err)
	}

	markdown := renderMarkdown(doc)

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, markdown, resultTTL); err != nil {
			s.logger.Warnw("Failed to cache generated doc", "key", key, "error", err)
		}
	}

	return markdown, file, nil
}

// renderMarkdown formats a structured file doc the same way the
// markdown-mode prompt asks for it.
func renderMarkdown(doc FileDoc) string {
	var b strings.Builder
	b.WriteString("## Description\n")
	b.WriteString(strings.TrimSpace(doc.Description))

	if len(doc.Insights) > 0 {
		b.WriteString("\n\n## Insights\n")
		for _, insight := range doc.Insights {
			b.WriteString("- ")
			b.WriteString(strings.TrimSpace(insight))
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

// RelevantDoc is a documentation record retrieved as relevant to a
// chat question.
type RelevantDoc struct {
	Path     string
	Markdown string
	Score    float64
}

// Answer responds to a question about a repository, grounded on the
// documentation retrieved for it. The retrieved docs are listed with
// their relevancy scores so the model can weigh them.
func (s *Service) Answer(ctx context.Context, question string, docs []RelevantDoc, model core.LLMModel) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", question)
	fmt.Fprintf(&b, "There are %d relevant document(s).\n", len(docs))
	for i, doc := range docs {
		fmt.Fprintf(&b, "%d. %s with a relevancy score of %.2f.\n", i+1, doc.Path, doc.Score)
	}
	for _, doc := range docs {
		b.WriteString("\n")
		b.WriteString(doc.Markdown)
		b.WriteString("\n")
	}

	completion, err := s.llm.GenerateText(ctx, llm.TextRequest{
		Model:        model,
		SystemPrompt: s.chatPrompt(),
		Prompt:       b.String(),
		MaxTokens:    answerMaxTokens,
		Temperature:  answerTemperature,
	})
	if err != nil {
		return "", fmt.Errorf("failed to answer question: %w", err)
	}
	return completion.Content, nil
}

// RegisterRepo fetches repository metadata and its file tree and
// builds a repo record with one pending tree node per source file.
// Doc records for the nodes are created by the caller when it
// enqueues generation jobs.
func (s *Service) RegisterRepo(ctx context.Context, userID, owner, name string, docIDs func(path string) string) (*core.Repo, error) {
	info, err := s.github.GetRepo(ctx, owner, name)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch repo %s/%s: %w", owner, name, err)
	}

	entries, err := s.github.ListTree(ctx, owner, name, info.DefaultBranch)
	if err != nil {
		return nil, fmt.Errorf("failed to list tree for %s/%s: %w", owner, name, err)
	}

	tree := make([]core.TreeNode, 0, len(entries))
	for _, entry := range entries {
		if entry.Size > core.MaxSourceFileBytes {
			s.logger.Debugw("Skipping oversized file", "path", entry.Path, "size", entry.Size)
			continue
		}
		tree = append(tree, core.TreeNode{
			DocID:  docIDs(entry.Path),
			Path:   entry.Path,
			Status: core.DocStatusStarted,
		})
	}

	return &core.Repo{
		UserID:        userID,
		Owner:         owner,
		Name:          name,
		DefaultBranch: info.DefaultBranch,
		Tree:          tree,
	}, nil
}
