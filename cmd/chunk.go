package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"scribe/rag"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// NewChunkCmd creates the chunk command, a debugging aid that shows
// how a markdown file would be split before embedding.
func NewChunkCmd() *cobra.Command {
	var (
		chunkSize    int
		chunkMinimum int
	)

	chunkCmd := &cobra.Command{
		Use:   "chunk <file>",
		Short: "Preview how a markdown file is chunked for indexing",
		Args:  cobra.ExactArgs(1),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if err := validateFilePath(path); err != nil {
				return err
			}

			info, err := os.Stat(path)
			if err != nil {
				return fmt.Errorf("cannot read %s: %w", path, err)
			}
			if info.Size() > maxInputFileSize {
				return fmt.Errorf("file %s exceeds %d bytes", path, maxInputFileSize)
			}

			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("cannot read %s: %w", path, err)
			}

			chunker := rag.NewChunker(chunkSize, chunkMinimum)
			chunks := chunker.Chunk(string(data), rag.MarkdownSeparators())

			if outputJSON {
				return json.NewEncoder(os.Stdout).Encode(chunks)
			}

			for i, chunk := range chunks {
				infoColor.Printf("--- chunk %d (%d bytes) ---\n", i+1, len(chunk))
				fmt.Println(chunk)
			}
			if !quiet {
				successColor.Printf("%d chunks\n", len(chunks))
			}
			return nil
		},
	}

	chunkCmd.Flags().IntVar(&chunkSize, "chunk-size", 250, "Token budget per chunk")
	chunkCmd.Flags().IntVar(&chunkMinimum, "chunk-minimum", 50, "Merge chunks smaller than this")
	chunkCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output in JSON format")
	chunkCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	chunkCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "Suppress non-essential output")

	return chunkCmd
}
