package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"docrag/internal/usecase"
)

var (
	queryText    string
	queryTopK    int
	queryJSON    bool
	queryContext bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Retrieve the chunks most similar to a question",
	Long: `Embed the question, search the published index and print the most
similar chunks with their scores. The query and its citations are recorded.

Examples:
  docrag query -q "refund policy"
  docrag query -q "refund policy" -k 10 --json
  docrag query -q "refund policy" --context`,
	Args: cobra.NoArgs,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVarP(&queryText, "query", "q", "", "question (required)")
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of results (default from config)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	queryCmd.Flags().BoolVar(&queryContext, "context", false, "print the packed prompt context with citation markers")
	queryCmd.MarkFlagRequired("query")
}

func runQuery(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	retrieveUC, err := a.retrieveUseCase()
	if err != nil {
		return err
	}

	outcome, err := retrieveUC.Retrieve(cmd.Context(), queryText, queryTopK)
	if err != nil {
		return fmt.Errorf("retrieval failed: %w", err)
	}

	if queryJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(outcome)
	}

	if queryContext {
		fmt.Println(usecase.RenderContext(outcome.Context))
		fmt.Fprintf(os.Stderr, "query %s: %d snippets, %d/%d tokens\n",
			outcome.QueryID, len(outcome.Context.Snippets), outcome.Context.UsedTokens, outcome.Context.BudgetTokens)
		return nil
	}

	if len(outcome.Results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	boldCyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	for i, r := range outcome.Results {
		fmt.Printf("%s %s %s\n", boldCyan(fmt.Sprintf("%d.", i+1)), r.Filename, green(fmt.Sprintf("(%.4f)", r.Score)))
		fmt.Printf("   chunk %d, #%d\n", r.ChunkID, r.Ordinal)
		fmt.Printf("   %s\n\n", preview(r.Content, 240))
	}
	fmt.Printf("Query id: %s (model %s)\n", outcome.QueryID, outcome.Model)
	return nil
}

// preview collapses whitespace and truncates to max runes.
func preview(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}
