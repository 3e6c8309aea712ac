package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemo-labs/mnemo/internal/core/domain"
)

func TestSearchCmd_Use(t *testing.T) {
	assert.Equal(t, "search [query]", searchCmd.Use)
}

func TestSearchCmd_Long(t *testing.T) {
	assert.Contains(t, searchCmd.Long, "BM25")
	assert.Contains(t, searchCmd.Long, "semantic")
}

func TestSearchCmd_RequiresExactlyOneArg(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"search"})
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestSearchCmd_HasLimitFlag(t *testing.T) {
	flag := searchCmd.Flags().Lookup("limit")
	require.NotNil(t, flag, "limit flag should exist")
	assert.Equal(t, "n", flag.Shorthand)
	assert.Equal(t, "10", flag.DefValue)
}

func TestSearchCmd_PrintsResults(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"search", "test query"})
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Results:")
	assert.Contains(t, buf.String(), "Test Item")
	assert.Contains(t, buf.String(), "matching content")
}

func TestSearchCmd_PassesLimit(t *testing.T) {
	search := &mockSearchService{outcome: &domain.SearchOutcome{}}
	cleanup := setupServices(search, &mockChatService{}, &mockProcessor{}, &mockConnectionService{}, &mockItemStore{items: map[string]*domain.Item{}})
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"search", "--limit", "25", "test query"})
	defer rootCmd.SetArgs(nil)
	defer func() { searchLimit = 10 }()

	require.NoError(t, rootCmd.Execute())
	require.Len(t, search.limits, 1)
	assert.Equal(t, 25, search.limits[0])
	assert.Equal(t, []string{"test query"}, search.queries)
}

func TestSearchCmd_ExplicitNoResults(t *testing.T) {
	search := &mockSearchService{outcome: &domain.SearchOutcome{Expanded: true, NoResults: true}}
	cleanup := setupServices(search, &mockChatService{}, &mockProcessor{}, &mockConnectionService{}, &mockItemStore{items: map[string]*domain.Item{}})
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"search", "nothing stored about this"})
	defer rootCmd.SetArgs(nil)

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), "No results found.")
}

func TestSearchCmd_JSONOutput(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"search", "--json", "test query"})
	defer rootCmd.SetArgs(nil)
	defer func() { searchJSON = false }()

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), `"Results"`)
	assert.Contains(t, buf.String(), `"item-1"`)
}

func TestSnippetTruncates(t *testing.T) {
	long := make([]rune, 200)
	for i := range long {
		long[i] = 'a'
	}
	out := snippet(string(long), 160)
	assert.Contains(t, out, "…")
	assert.LessOrEqual(t, len([]rune(out)), 161)

	assert.Equal(t, "tab and newline", snippet("tab\tand\nnewline", 160))
}
