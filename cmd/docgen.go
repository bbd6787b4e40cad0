// Package cmd provides command-line interface commands for Scribe.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"scribe/config"
	"scribe/core"
	"scribe/docgen"
	"scribe/github"
	"scribe/llm"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// CLI output formatters
var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	infoColor    = color.New(color.FgCyan)
)

// Global flags
var (
	outputJSON bool
	noColor    bool
	quiet      bool
)

const (
	maxInputFileSize = 10 * 1024 * 1024
	defaultTimeout   = 5 * time.Minute
)

// validateFilePath rejects paths that escape the working directory.
func validateFilePath(filename string) error {
	decoded, err := url.QueryUnescape(filename)
	if err != nil {
		decoded = filename
	}

	if strings.Contains(decoded, "..") || strings.Contains(filename, "..") {
		return fmt.Errorf("path traversal detected: '..' not allowed in file path")
	}

	absPath, err := filepath.Abs(filepath.Clean(decoded))
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	if !strings.HasPrefix(absPath, workDir) {
		return fmt.Errorf("path escapes current directory")
	}
	return nil
}

// NewDocgenCmd creates the docgen command for one-off generation
// without running the server.
func NewDocgenCmd() *cobra.Command {
	var (
		modelName string
		outFile   string
	)

	docgenCmd := &cobra.Command{
		Use:   "docgen <github-blob-url>",
		Short: "Generate documentation for a single GitHub file",
		Long: `Generate markdown documentation for one source file directly from the
command line, without starting the API server.

The URL must be a GitHub blob URL of the form
https://github.com/{owner}/{repo}/blob/{ref}/{path}.`,
		Args: cobra.ExactArgs(1),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			blobURL := args[0]
			if _, err := github.ParseBlobURL(blobURL); err != nil {
				errorColor.Fprintf(os.Stderr, "Invalid URL: %v\n", err)
				return err
			}

			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			model, err := core.ParseModel(modelName)
			if err != nil {
				return err
			}

			svc, err := buildService(cfg)
			if err != nil {
				return err
			}

			var s *spinner.Spinner
			if !outputJSON && !quiet {
				s = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
				s.Suffix = " Generating documentation..."
				s.Start()
			}

			markdown, file, err := svc.GenerateForFile(ctx, blobURL, model)
			if s != nil {
				s.Stop()
			}
			if err != nil {
				errorColor.Fprintf(os.Stderr, "Generation failed: %v\n", err)
				return err
			}

			if outFile != "" {
				if err := validateFilePath(outFile); err != nil {
					return err
				}
				if err := os.WriteFile(outFile, []byte(markdown), 0644); err != nil {
					return fmt.Errorf("failed to write %s: %w", outFile, err)
				}
				if !quiet {
					successColor.Printf("Documentation written to %s\n", outFile)
				}
				return nil
			}

			if outputJSON {
				return json.NewEncoder(os.Stdout).Encode(map[string]string{
					"path":    file.Path,
					"content": markdown,
				})
			}

			if !quiet {
				infoColor.Printf("%s @ %s\n\n", file.FullName(), file.Path)
			}
			fmt.Println(markdown)
			return nil
		},
	}

	docgenCmd.Flags().StringVar(&modelName, "model", "", "Chat model to use (default from config)")
	docgenCmd.Flags().StringVarP(&outFile, "out", "o", "", "Write markdown to a file instead of stdout")
	docgenCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output in JSON format")
	docgenCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	docgenCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "Suppress non-essential output")

	return docgenCmd
}

// buildService wires a docgen service for CLI use. No Redis cache:
// CLI invocations are one-shot.
func buildService(cfg *config.Config) (*docgen.Service, error) {
	logger := zap.NewNop().Sugar()

	gh := github.NewClient(cfg.GitHub.APIBaseURL, cfg.GitHub.Token,
		time.Duration(cfg.GitHub.Timeout)*time.Second, logger)

	model, err := core.ParseModel(cfg.LLM.Model)
	if err != nil {
		return nil, fmt.Errorf("invalid llm.model in config: %w", err)
	}
	client := llm.NewOpenAIClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, model,
		time.Duration(cfg.LLM.Timeout)*time.Second, logger)

	prompts, err := llm.LoadPrompts(cfg.DataPaths.PromptsPath)
	if err != nil {
		prompts = llm.DefaultPrompts()
	}

	return docgen.NewService(gh, client, prompts, nil, logger), nil
}
