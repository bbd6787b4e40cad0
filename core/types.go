// Package core contains the domain types shared by the Scribe service:
// generated documentation records, repository records, GitHub file
// snapshots and background job bookkeeping.
package core

import (
	"fmt"
	"time"
)

// DocStatus tracks the lifecycle of a generated documentation record.
type DocStatus string

const (
	DocStatusStarted   DocStatus = "STARTED"
	DocStatusCompleted DocStatus = "COMPLETED"
	DocStatusFailed    DocStatus = "FAILED"
)

// LLMModel identifies a chat model usable for documentation generation.
type LLMModel string

const (
	ModelMixtral     LLMModel = "mistralai/Mixtral-8x7B-Instruct-v0.1"
	ModelMistral     LLMModel = "mistralai/Mistral-7B-Instruct-v0.1"
	ModelMistralOrca LLMModel = "Open-Orca/Mistral-7B-OpenOrca"
	ModelLlama7B     LLMModel = "meta-llama/Llama-2-7b-chat-hf"
)

// DefaultModel is used when a request does not name a model.
const DefaultModel = ModelMixtral

// ParseModel validates a model name from a request. An empty name
// selects the default model.
func ParseModel(name string) (LLMModel, error) {
	switch LLMModel(name) {
	case "":
		return DefaultModel, nil
	case ModelMixtral, ModelMistral, ModelMistralOrca, ModelLlama7B:
		return LLMModel(name), nil
	default:
		return "", fmt.Errorf("unknown model %q", name)
	}
}

// Doc is a generated documentation record for a single source file.
type Doc struct {
	ID        string    `json:"id" bson:"_id"`
	UserID    string    `json:"user_id" bson:"user_id"`
	RepoID    string    `json:"repo_id,omitempty" bson:"repo_id,omitempty"`
	GitHubURL string    `json:"github_url" bson:"github_url"`
	FilePath  string    `json:"file_path,omitempty" bson:"file_path,omitempty"`
	Model     LLMModel  `json:"model" bson:"model"`
	Status    DocStatus `json:"status" bson:"status"`
	Markdown  string    `json:"content,omitempty" bson:"markdown"`
	Error     string    `json:"error,omitempty" bson:"error,omitempty"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// Repo is an indexed repository whose files have generated docs.
type Repo struct {
	ID            string     `json:"id" bson:"_id"`
	UserID        string     `json:"user_id" bson:"user_id"`
	Owner         string     `json:"owner" bson:"owner"`
	Name          string     `json:"name" bson:"name"`
	DefaultBranch string     `json:"default_branch,omitempty" bson:"default_branch,omitempty"`
	Tree          []TreeNode `json:"tree,omitempty" bson:"tree,omitempty"`
	CreatedAt     time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" bson:"updated_at"`
}

// TreeNode links a repository file to its documentation record.
type TreeNode struct {
	DocID    string    `json:"doc_id" bson:"doc_id"`
	Path     string    `json:"path" bson:"path"`
	Status   DocStatus `json:"status" bson:"status"`
	Children []string  `json:"children,omitempty" bson:"children,omitempty"`
}

// GitHubFile is a file snapshot fetched from the GitHub contents API.
type GitHubFile struct {
	Owner   string
	Repo    string
	Ref     string
	Path    string
	SHA     string
	Size    int64
	HTMLURL string
	Content string
}

// FullName returns owner/repo.
func (f *GitHubFile) FullName() string {
	return f.Owner + "/" + f.Repo
}

// Chunk is a slice of a document prepared for embedding.
type Chunk struct {
	DocID string `json:"doc_id" msgpack:"doc_id"`
	Index int    `json:"index" msgpack:"index"`
	Text  string `json:"text" msgpack:"text"`
}

// SearchHit is one ranked result from a vector similarity search.
type SearchHit struct {
	DocID string  `json:"doc_id"`
	Index int     `json:"index"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}
