package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yairfalse/azalert/internal/blueprint"
	"github.com/yairfalse/azalert/internal/config"
)

var planOutput string

// planCmd represents the plan command
var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the payloads a run would send, without calling Azure",
	Long: `Build every request payload from the config, check it against the
policy guardrails and print it. No credentials are required; when
SUBSCRIPTION_ID is set it is used to render the expected resource IDs.

The command fails when a policy denies the run.`,
	Example: `  azalert plan                 # JSON to stdout
  azalert plan -o yaml         # YAML to stdout`,
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)

	planCmd.Flags().StringVarP(&planOutput, "output", "o", "json", "Output format: json or yaml")
}

func runPlan(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	e, err := newEnv(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer e.close(ctx)

	// only the subscription matters here, and it is optional
	preview := blueprint.New(e.cfg, uuid.NewString()).Preview(config.SubscriptionFromEnv())
	out, err := preview.Render(planOutput)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(cmd.OutOrStdout(), string(out)); err != nil {
		return err
	}

	return checkPolicy(ctx, e, preview)
}
