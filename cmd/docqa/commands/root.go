// Package commands defines all Cobra CLI commands for the docqa binary.
package commands

import (
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/audit"
	"github.com/54b3r/docqa-go/internal/config"
	"github.com/54b3r/docqa-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "docqa",
		Short: "Ask questions about your documents",
		Long: `docqa indexes a text document and answers questions about it, citing
the passages each answer is grounded on. Questions may be asked in
Vietnamese or English.

Embeddings default to the HuggingFace inference API (HF_API_KEY) and answers
to OpenRouter (OPENROUTER_API_KEY). Settings are read from the environment,
a .env file in the working directory, or a YAML config file
(~/.docqa/config.yaml). Environment variables always win.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// A missing .env is normal; values already exported are kept.
			_ = godotenv.Load()

			path, err := config.Load(configPath, slog.Default())
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// LOG_LEVEL and LOG_FORMAT may have come from the YAML file.
			log := logging.New()
			slog.SetDefault(log)

			audit.LogCommandStart(cmd.Context(), log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.docqa/config.yaml)")

	root.AddCommand(
		NewAskCmd(),
		NewChatCmd(),
		NewIngestCmd(),
		NewServeCmd(),
		NewVersionCmd(),
	)

	return root
}
