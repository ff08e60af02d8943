package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"docrag/config"
	"docrag/internal/domain"
	"docrag/internal/logger"
)

var (
	cfgFile  string
	cfg      *config.Config
	rootDir  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "docrag",
	Short: "Document retrieval core - chunk, embed, index and retrieve documents with citations",
	Long: `docrag ingests plain-text documents, splits them into overlapping chunks,
embeds them and answers questions by exact nearest-neighbour search over the
published index. Every query is recorded together with its citations.

Example usage:
  docrag docs add ./notes              # Register .txt/.md documents
  docrag index build                   # Chunk, embed and publish an index
  docrag query -q "how do refunds work" --context`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error

		if rootDir == "" {
			rootDir, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
		}

		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
		} else {
			cfg, err = config.LoadFromDir(rootDir)
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		logger.Init(cfg.Logging.Level)
		return nil
	},
}

// Execute runs the root command. An interrupt cancels the running
// operation; a cancelled build publishes nothing.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		red := color.New(color.FgRed, color.Bold).SprintFunc()
		fmt.Fprintf(os.Stderr, "%s %v\n", red("Error:"), err)
		if hint := hintFor(err); hint != "" {
			fmt.Fprintln(os.Stderr, color.YellowString(hint))
		}
		stop()
		os.Exit(1)
	}
}

func hintFor(err error) string {
	switch {
	case errors.Is(err, domain.ErrIndexUnavailable):
		return "No usable index. Run 'docrag index build' first."
	case errors.Is(err, domain.ErrNoChunksAvailable):
		return "Register documents with text using 'docrag docs add <path>'."
	case errors.Is(err, domain.ErrModelMismatch):
		return "Rebuild the index with the configured model, or set retrieve.allow_model_mismatch."
	case errors.Is(err, domain.ErrConfiguration):
		return "Check docrag.yaml or .docrag/config.yaml."
	}
	return ""
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./docrag.yaml)")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "dir", "d", "", "project directory (default is current directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (default from config)")
}

func GetConfig() *config.Config {
	return cfg
}

func GetRootDir() string {
	return rootDir
}
