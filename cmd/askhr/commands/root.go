// Package commands defines all Cobra CLI commands for the askhr binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/zorbit-ai/askhr-go/internal/audit"
	"github.com/zorbit-ai/askhr-go/internal/config"
	"github.com/zorbit-ai/askhr-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "askhr",
		Short: "AskHR, the multi-tenant HR assistant backend",
		Long: `AskHR is the retrieval-augmented HR assistant backend for the Zorbit
employment platform.

It answers HR and platform questions from a tenant-scoped knowledge base,
ingests Q&A batches and policy documents, and routes conversational turns
between retrieval, web search, and support redirects.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.askhr/config.yaml).
See 'askhr --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.askhr/config.yaml)")

	root.AddCommand(
		NewAskCmd(),
		NewServeCmd(),
		NewIngestCmd(),
		NewVersionCmd(),
	)

	return root
}
