package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zorbit-ai/askhr-go/internal/logging"
	"github.com/zorbit-ai/askhr-go/internal/provider"
)

// NewAskCmd constructs the `askhr ask` command, which answers a single
// question from the knowledge base and prints the result to stdout.
func NewAskCmd() *cobra.Command {
	var userType string
	var strategy string

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask the HR assistant a question",
		Long: `Ask the assistant a single question against the tenant-scoped knowledge
base and print the generated answer.

Examples:
  askhr ask --user-type eor "How much annual leave do employees accrue?"
  askhr ask --user-type contractor --strategy information_collector "How do I invoice?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("ask: failed to initialise model provider: %w", err)
			}

			comps, err := buildComponents(ctx, log, chatModel)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer comps.close()

			answers, err := comps.svc.Query(ctx, userType, map[string]string{"q": args[0]}, strategy)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			fmt.Println(answers["q"].Answer)
			return nil
		},
	}

	cmd.Flags().StringVarP(&userType, "user-type", "u", "", "Tenant the question is scoped to (required)")
	cmd.Flags().StringVarP(&strategy, "strategy", "s", "", "Generation strategy: question_answer, information_collector, structured_output")
	_ = cmd.MarkFlagRequired("user-type")

	return cmd
}
