package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mnemo-labs/mnemo/internal/adapters/driving/watch"
	"github.com/mnemo-labs/mnemo/internal/core/domain"
)

var (
	processTitle string
	processKind  string
	processURI   string
)

var processCmd = &cobra.Command{
	Use:   "process [file]",
	Short: "Capture and process content",
	Long: `Captures a file into the knowledge base and runs the processing
pipeline: parse, chunk, embed, extract metadata, store, and queue
connection discovery. Use "-" to read content from stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

func init() {
	processCmd.Flags().StringVar(&processTitle, "title", "", "item title (default: file name)")
	processCmd.Flags().StringVar(&processKind, "kind", "", "content kind: webpage, note or file (default: by extension)")
	processCmd.Flags().StringVar(&processURI, "source", "", "original source URI")
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	if processorService == nil {
		return errors.New("processor not configured")
	}

	path := args[0]

	var content []byte
	var err error
	title := processTitle
	kind := domain.ContentKind(processKind)
	sourceURI := processURI

	if path == "-" {
		content, err = io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
		if kind == "" {
			kind = domain.KindNote
		}
	} else {
		content, err = os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		if title == "" {
			name := filepath.Base(path)
			title = strings.TrimSuffix(name, filepath.Ext(name))
		}
		if kind == "" {
			kind = watch.KindForPath(path)
			if kind == "" {
				kind = domain.KindFile
			}
		}
		if sourceURI == "" {
			sourceURI = path
		}
	}

	item, err := processorService.Capture(cmd.Context(), title, string(content), kind, sourceURI)
	if err != nil {
		return fmt.Errorf("capture failed: %w", err)
	}

	cmd.Printf("Item %s (%s): %s\n", item.ID, item.Kind, item.Status)
	if item.Status == domain.StatusFailed {
		cmd.Printf("Error: %s\n", item.Error)
		return nil
	}
	if item.Metadata != nil {
		cmd.Printf("Summary: %s\n", item.Metadata.Summary)
		if len(item.Metadata.Concepts) > 0 {
			cmd.Printf("Concepts: %s\n", strings.Join(item.Metadata.Concepts, ", "))
		}
		if len(item.Metadata.Entities) > 0 {
			cmd.Printf("Entities: %s\n", strings.Join(item.Metadata.Entities, ", "))
		}
	}
	return nil
}
