package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"docrag/internal/usecase"
)

var (
	queriesLimit int
	queriesJSON  bool
	exportFormat string
	exportOutput string
)

var queriesCmd = &cobra.Command{
	Use:   "queries",
	Short: "Inspect and export the query history",
}

var queriesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent queries",
	Args:  cobra.NoArgs,
	RunE:  runQueriesList,
}

var queriesShowCmd = &cobra.Command{
	Use:   "show <query-id>",
	Short: "Show a query with its citations",
	Args:  cobra.ExactArgs(1),
	RunE:  runQueriesShow,
}

var queriesExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export recent queries as CSV or JSON",
	Long: `Export recent queries with their citations.

Examples:
  docrag queries export --format csv -o queries.csv
  docrag queries export --format xlsx -o queries.xlsx
  docrag queries export --format json --limit 20`,
	Args: cobra.NoArgs,
	RunE: runQueriesExport,
}

func init() {
	rootCmd.AddCommand(queriesCmd)
	queriesCmd.AddCommand(queriesListCmd, queriesShowCmd, queriesExportCmd)
	queriesCmd.PersistentFlags().IntVarP(&queriesLimit, "limit", "n", 100, "maximum number of queries (0 = all)")
	queriesListCmd.Flags().BoolVar(&queriesJSON, "json", false, "output as JSON")
	queriesShowCmd.Flags().BoolVar(&queriesJSON, "json", false, "output as JSON")
	queriesExportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "csv, xlsx or json")
	queriesExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (default: stdout)")
}

func runQueriesList(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	records, err := usecase.NewQueryUseCase(a.store).List(queriesLimit)
	if err != nil {
		return err
	}

	if queriesJSON {
		return writeJSON(os.Stdout, records)
	}
	if len(records) == 0 {
		fmt.Println("No queries recorded.")
		return nil
	}
	dim := color.New(color.Faint).SprintFunc()
	for _, r := range records {
		fmt.Printf("%s  %s  %s\n", r.ID, dim(r.CreatedAt.Format("2006-01-02 15:04:05")), preview(r.Question, 80))
	}
	return nil
}

func runQueriesShow(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	detail, err := usecase.NewQueryUseCase(a.store).Show(args[0])
	if err != nil {
		return err
	}

	if queriesJSON {
		return writeJSON(os.Stdout, detail)
	}

	bold := color.New(color.Bold).SprintFunc()
	fmt.Printf("%s %s\n", bold("Question:"), detail.Query.Question)
	fmt.Printf("%s %s\n", bold("Model:"), detail.Query.Model)
	fmt.Printf("%s %s\n", bold("Asked:"), detail.Query.CreatedAt.Format("2006-01-02 15:04:05"))
	if detail.Query.Answer != "" {
		fmt.Printf("%s %s\n", bold("Answer:"), detail.Query.Answer)
	}
	fmt.Printf("\n%s\n", bold("Citations:"))
	if len(detail.Citations) == 0 {
		fmt.Println("  (none)")
	}
	for _, c := range detail.Citations {
		name := c.Filename
		if name == "" {
			name = "(deleted chunk)"
		}
		fmt.Printf("  %.4f  %s  chunk %d\n", c.Score, name, c.ChunkID)
	}
	return nil
}

func runQueriesExport(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	var w io.Writer = os.Stdout
	if exportOutput != "" {
		f, err := os.Create(exportOutput)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", exportOutput, err)
		}
		defer f.Close()
		w = f
	}

	n, err := usecase.NewQueryUseCase(a.store).Export(w, exportFormat, queriesLimit)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	if exportOutput != "" {
		fmt.Printf("Exported %d queries to %s\n", n, exportOutput)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
