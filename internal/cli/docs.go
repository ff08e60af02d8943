package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"docrag/internal/adapter/fs"
	"docrag/internal/usecase"
)

var docsListJSON bool

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Register and list documents",
}

var docsAddCmd = &cobra.Command{
	Use:   "add <path>...",
	Short: "Register .txt and .md files found under the given paths",
	Long: `Register plain-text documents. Directories are walked using the
ingest.includes and ingest.excludes glob patterns; files given directly are
registered if their type is supported. Changed files are updated in place and
picked up by the next 'docrag index build'.

Examples:
  docrag docs add ./handbook
  docrag docs add notes.md faq.txt`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDocsAdd,
}

var docsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered documents, newest first",
	Args:  cobra.NoArgs,
	RunE:  runDocsList,
}

func init() {
	rootCmd.AddCommand(docsCmd)
	docsCmd.AddCommand(docsAddCmd, docsListCmd)
	docsListCmd.Flags().BoolVar(&docsListJSON, "json", false, "output as JSON")
}

func runDocsAdd(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	walker := fs.NewWalker(a.cfg.Ingest.Includes, a.cfg.Ingest.Excludes)
	docUC := usecase.NewDocumentUseCase(a.store, walker)

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("Scanning"),
		progressbar.OptionShowCount(),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	result, err := docUC.Add(args, func(path string) {
		bar.Add(1)
		bar.Describe(filepath.Base(path))
	})
	bar.Finish()
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	fmt.Printf("Documents added:   %d\n", result.Added)
	fmt.Printf("Documents updated: %d\n", result.Updated)
	fmt.Printf("Files skipped:     %d\n", result.Skipped)

	if len(result.Errors) > 0 {
		fmt.Println(color.YellowString("\nWarnings:"))
		for _, e := range result.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}
	if result.Added+result.Updated > 0 {
		fmt.Println("\nRun 'docrag index build' to make them searchable.")
	}
	return nil
}

type docSummary struct {
	ID        uint64 `json:"id"`
	Filename  string `json:"filename"`
	Filetype  string `json:"filetype"`
	Path      string `json:"path"`
	Chars     int    `json:"chars"`
	CreatedAt string `json:"created_at"`
}

func runDocsList(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	docs, err := usecase.NewDocumentUseCase(a.store, nil).List()
	if err != nil {
		return err
	}

	summaries := make([]docSummary, 0, len(docs))
	for _, d := range docs {
		summaries = append(summaries, docSummary{
			ID:        d.ID,
			Filename:  d.Filename,
			Filetype:  d.Filetype,
			Path:      d.Path,
			Chars:     len([]rune(d.Text)),
			CreatedAt: d.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}

	if docsListJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summaries)
	}

	if len(summaries) == 0 {
		fmt.Println("No documents registered.")
		return nil
	}
	dim := color.New(color.Faint).SprintFunc()
	for _, s := range summaries {
		fmt.Printf("%4d  %-32s %8d chars  %s\n", s.ID, s.Filename, s.Chars, dim(s.CreatedAt))
	}
	return nil
}
