package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"docrag/internal/domain"
)

var indexInfoJSON bool

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build and inspect the vector index",
}

var indexBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Chunk and embed all documents and publish a new index generation",
	Long: `Chunk every registered document with text, embed the chunks with the
configured provider and publish the result as a new index generation under
.docrag/index. The previous generation stays in use until the new one is
complete.

Examples:
  docrag index build
  docrag index build --log-level debug`,
	Args: cobra.NoArgs,
	RunE: runIndexBuild,
}

var indexInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Describe the published index without loading its vectors",
	Args:  cobra.NoArgs,
	RunE:  runIndexInfo,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexBuildCmd, indexInfoCmd)
	indexInfoCmd.Flags().BoolVar(&indexInfoJSON, "json", false, "output as JSON")
}

func runIndexBuild(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	buildUC, err := a.buildUseCase()
	if err != nil {
		return err
	}

	fmt.Printf("Embedding with %s (%s)...\n", a.cfg.Embedding.Model, a.cfg.Embedding.Provider)

	var bar *progressbar.ProgressBar
	var barMu sync.Mutex
	var startTime time.Time

	progress := func(done, total int) {
		barMu.Lock()
		defer barMu.Unlock()

		if bar == nil {
			startTime = time.Now()
			bar = progressbar.NewOptions(total,
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowBytes(false),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]Embedding[reset]"),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionOnCompletion(func() {
					fmt.Println()
				}),
			)
		}

		bar.Set(done)

		elapsed := time.Since(startTime)
		if done > 0 && elapsed > 0 {
			rate := float64(done) / elapsed.Seconds()
			if rate > 0 {
				eta := time.Duration(float64(total-done)/rate) * time.Second
				bar.Describe(fmt.Sprintf("[cyan]Embedding[reset] ETA: %s", formatDuration(eta)))
			}
		}
	}

	start := time.Now()
	result, err := buildUC.Build(cmd.Context(), progress)
	if err != nil {
		return fmt.Errorf("index build failed: %w", err)
	}

	if err := a.store.RecordIndexConfig(a.cfg); err != nil {
		return fmt.Errorf("failed to record index config: %w", err)
	}

	green := color.New(color.FgGreen, color.Bold).SprintFunc()
	fmt.Printf("\n%s\n", green("Index published"))
	fmt.Printf("  Documents:  %d\n", result.Documents)
	fmt.Printf("  Chunks:     %d\n", result.Chunks)
	fmt.Printf("  Model:      %s\n", result.Model)
	fmt.Printf("  Dimension:  %d\n", result.Dimension)
	fmt.Printf("  Generation: %s\n", result.Location.Generation)
	fmt.Printf("  Took:       %s\n", formatDuration(time.Since(start)))
	fmt.Printf("\nIndex stored at: %s\n", result.Location.Dir)
	return nil
}

type indexInfo struct {
	Generation     string    `json:"generation"`
	Location       string    `json:"location"`
	EmbeddingModel string    `json:"embedding_model"`
	Dimension      int       `json:"dimension"`
	VectorCount    int       `json:"vector_count"`
	SizeBytes      int64     `json:"size_bytes"`
	BuiltAt        time.Time `json:"built_at"`
	Stale          bool      `json:"stale"`
	StaleReason    string    `json:"stale_reason,omitempty"`
	Documents      int       `json:"documents"`
	Chunks         int       `json:"chunks"`
	Queries        int       `json:"queries"`
}

func runIndexInfo(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	meta, err := a.index.Describe()
	if err != nil {
		if errors.Is(err, domain.ErrIndexNotFound) {
			return fmt.Errorf("%w: %w", domain.ErrIndexUnavailable, err)
		}
		return err
	}

	stale, reason, err := a.store.NeedsRebuild(a.cfg)
	if err != nil {
		return err
	}
	stats, err := a.store.GetStats()
	if err != nil {
		return err
	}

	info := indexInfo{
		Generation:     meta.Generation,
		Location:       a.index.Dir(),
		EmbeddingModel: meta.EmbeddingModel,
		Dimension:      meta.Dimension,
		VectorCount:    meta.VectorCount,
		SizeBytes:      meta.SizeBytes,
		BuiltAt:        meta.BuiltAt,
		Stale:          stale,
		StaleReason:    reason,
		Documents:      stats.TotalDocs,
		Chunks:         stats.TotalChunks,
		Queries:        stats.TotalQueries,
	}

	if indexInfoJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	bold := color.New(color.Bold).SprintFunc()
	fmt.Printf("%s %s\n", bold("Generation:"), info.Generation)
	fmt.Printf("  Location:   %s\n", info.Location)
	fmt.Printf("  Model:      %s\n", info.EmbeddingModel)
	fmt.Printf("  Dimension:  %d\n", info.Dimension)
	fmt.Printf("  Vectors:    %d\n", info.VectorCount)
	fmt.Printf("  Size:       %s\n", formatBytes(info.SizeBytes))
	fmt.Printf("  Built:      %s\n", info.BuiltAt.Local().Format(time.RFC1123))
	fmt.Printf("  Store:      %d documents, %d chunks, %d queries\n", info.Documents, info.Chunks, info.Queries)
	if info.Stale {
		fmt.Println(color.YellowString("  Stale: %s; run 'docrag index build'", info.StaleReason))
	}
	return nil
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
