package llm

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Prompts is the prompt pack used for documentation generation. It can
// be overridden from a YAML file so prompt tuning does not require a
// rebuild; with --reload the file is re-read on config change.
type Prompts struct {
	// FileDoc is the system prompt for documenting a single source file.
	FileDoc string `yaml:"file_doc"`
	// FileDocJSON is the system prompt for schema-constrained file
	// documentation used by the structured endpoint.
	FileDocJSON string `yaml:"file_doc_json"`
	// Chat is the system prompt for answering questions about a
	// repository, grounded on retrieved documentation.
	Chat string `yaml:"chat"`
}

// DefaultPrompts returns the built-in prompt pack.
func DefaultPrompts() Prompts {
	return Prompts{
		FileDoc: `Your job is to provide very high-level documentation of code provided to you.

You will respond in Markdown format, with the following sections:
## Description: (a string less than 100 words)
## Insights: ([string, string, ...] less than 3 strings)

Here is the code:
`,
		FileDocJSON: `Your job is to provide very high-level documentation of code provided to you.
Respond with a JSON object containing a short "description" (less than 100 words)
and an "insights" array of at most 3 strings.

Here is the code:
`,
		Chat: `You are a helpful assistant answering questions about a code repository.
You are given a question and the documentation retrieved as relevant to it.
Answer the question using only that documentation. If the documentation does
not cover the question, say so instead of guessing.
`,
	}
}

// LoadPrompts reads a prompt pack from a YAML file, filling missing
// entries from the defaults. A missing file yields the defaults.
func LoadPrompts(path string) (Prompts, error) {
	prompts := DefaultPrompts()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return prompts, nil
		}
		return prompts, fmt.Errorf("failed to read prompt pack %s: %w", path, err)
	}

	var override Prompts
	if err := yaml.Unmarshal(data, &override); err != nil {
		return prompts, fmt.Errorf("failed to parse prompt pack %s: %w", path, err)
	}

	if override.FileDoc != "" {
		prompts.FileDoc = override.FileDoc
	}
	if override.FileDocJSON != "" {
		prompts.FileDocJSON = override.FileDocJSON
	}
	if override.Chat != "" {
		prompts.Chat = override.Chat
	}
	return prompts, nil
}

// FileDocSchema is the JSON schema enforced on structured file
// documentation responses.
func FileDocSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"description": map[string]interface{}{
				"type":      "string",
				"maxLength": 1000,
			},
			"insights": map[string]interface{}{
				"type":     "array",
				"items":    map[string]interface{}{"type": "string"},
				"maxItems": 3,
			},
		},
		"required":             []interface{}{"description", "insights"},
		"additionalProperties": false,
	}
}
