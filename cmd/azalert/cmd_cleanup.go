package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yairfalse/azalert/internal/provision"
)

var (
	cleanupDryRun      bool
	cleanupJournalPath string
)

// cleanupCmd represents the cleanup command
var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete resource groups left behind by interrupted runs",
	Long: `Read the run journal and delete the resource group of every run whose
cleanup never completed, for example because the process was killed.

Runs whose deletion fails stay in the journal and are retried next time.`,
	Example: `  azalert cleanup              # Delete leftovers
  azalert cleanup --dry-run    # Only list what would be deleted`,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)

	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "List leftover resource groups without deleting them")
	cleanupCmd.Flags().StringVar(&cleanupJournalPath, "journal", "", "Run journal path (overrides config)")
}

func runCleanup(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	e, err := newEnv(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer e.close(ctx)

	j, err := openJournal(e.cfg, cleanupJournalPath)
	if err != nil {
		return err
	}
	if j == nil {
		return provision.ErrNoJournal
	}
	defer func() { _ = j.Close() }()

	opts := provision.Options{
		Journal:        j,
		Telemetry:      e.telemetry,
		Logger:         e.log,
		CleanupTimeout: e.cfg.Cleanup.Timeout,
	}
	if !cleanupDryRun {
		creds, err := credentialsFromEnv()
		if err != nil {
			return err
		}
		cloud, err := newControlPlane(creds)
		if err != nil {
			return err
		}
		opts.Cloud = cloud
		opts.SubscriptionID = creds.SubscriptionID
	}

	results, err := provision.New(opts).Sweep(ctx, cleanupDryRun)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	if len(results) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Nothing to clean up")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tRESOURCE GROUP\tOUTCOME")
	for _, r := range results {
		outcome := string(r.Outcome)
		if cleanupDryRun {
			outcome = "would delete"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.RunID, r.GroupID, outcome)
	}
	return w.Flush()
}
