package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mnemo-labs/mnemo/internal/core/domain"
)

var (
	searchLimit int
	searchJSON  bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the knowledge base",
	Long: `Runs adaptive hybrid search across everything you stored.
Combines keyword (BM25) and semantic (vector) retrieval, decomposes
multi-faceted queries, and expands the query when results are poor.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum number of results")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if searchService == nil {
		return errors.New("search service not configured")
	}

	outcome, err := searchService.Search(cmd.Context(), args[0], searchLimit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return outputSearchJSON(cmd, outcome)
	}
	return outputSearchText(cmd, outcome)
}

func outputSearchJSON(cmd *cobra.Command, outcome *domain.SearchOutcome) error {
	data, err := json.MarshalIndent(outcome, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputSearchText(cmd *cobra.Command, outcome *domain.SearchOutcome) error {
	if outcome.NoResults || len(outcome.Results) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	if outcome.Expanded {
		cmd.Println("(query expanded with related terms)")
	}
	if len(outcome.SubQueries) > 0 {
		cmd.Printf("(decomposed into %d sub-queries)\n", len(outcome.SubQueries))
	}

	cmd.Println("Results:")
	cmd.Println()
	for i, result := range outcome.Results {
		title := result.ItemTitle
		if title == "" {
			title = result.ItemID
		}
		cmd.Printf("[%d] %s (%.4f)\n", i+1, title, result.Score)
		cmd.Printf("    %s\n", snippet(result.Chunk.Content, 160))
	}
	return nil
}

// snippet truncates text to at most n runes on a single line.
func snippet(text string, n int) string {
	runes := []rune(text)
	if len(runes) > n {
		runes = append(runes[:n], []rune("…")...)
	}
	out := make([]rune, 0, len(runes))
	for _, r := range runes {
		if r == '\n' || r == '\t' {
			r = ' '
		}
		out = append(out, r)
	}
	return string(out)
}
