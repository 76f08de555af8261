package main

import (
	"context"
	"errors"
	"io"
	"os"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/run"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/yairfalse/azalert/internal/azure"
	"github.com/yairfalse/azalert/internal/blueprint"
	"github.com/yairfalse/azalert/internal/config"
	"github.com/yairfalse/azalert/internal/journal"
	"github.com/yairfalse/azalert/internal/policy"
	"github.com/yairfalse/azalert/internal/provision"
	"github.com/yairfalse/azalert/internal/telemetry"
)

const shutdownTimeout = 5 * time.Second

var (
	runFailOnError bool
	runJournalPath string
)

// Replaced in tests.
var (
	credentialsFromEnv = config.CredentialsFromEnv
	newControlPlane    = func(creds config.Credentials) (azure.ControlPlane, error) {
		cred, err := azure.NewCredential(creds)
		if err != nil {
			return nil, err
		}
		return azure.NewClient(creds.SubscriptionID, cred, nil)
	}
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Create the alert resources, then delete them",
	Long: `Create a resource group, an App Service plan, an action group and a
metric alert, in that order. A failing step aborts the remaining steps.
The resource group is deleted afterwards in every case.

Errors are logged and the command exits 0 unless --fail-on-error is set.`,
	Example: `  azalert run                          # Built-in defaults
  azalert run -c azalert.yaml          # Custom config
  azalert run --fail-on-error          # Exit 1 when any step fails`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runFailOnError, "fail-on-error", false, "Return a non-zero exit code when provisioning fails")
	runCmd.Flags().StringVar(&runJournalPath, "journal", "", "Run journal path (overrides config; \"-\" disables)")
}

func runRun(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	fail := func(log zerolog.Logger, err error) error {
		log.Error().Err(err).Msg("azalert run failed")
		if runFailOnError {
			return err
		}
		return nil
	}

	e, err := newEnv(ctx, cmd.ErrOrStderr())
	if err != nil {
		return fail(fallbackLogger(cmd.ErrOrStderr()), err)
	}
	defer e.close(ctx)

	creds, err := credentialsFromEnv()
	if err != nil {
		return fail(e.log, err)
	}

	bp := blueprint.New(e.cfg, uuid.NewString())
	log := e.log.With().Str("run_id", bp.RunID()).Logger()

	if err := checkPolicy(ctx, e, bp.Preview(creds.SubscriptionID)); err != nil {
		return fail(e.log, err)
	}

	cloud, err := newControlPlane(creds)
	if err != nil {
		return fail(e.log, err)
	}

	j, err := openJournal(e.cfg, runJournalPath)
	if err != nil {
		return fail(e.log, err)
	}
	if j != nil {
		defer func() { _ = j.Close() }()
	}

	opts := provision.Options{
		Cloud:          cloud,
		SubscriptionID: creds.SubscriptionID,
		Telemetry:      e.telemetry,
		Logger:         log,
		CleanupTimeout: e.cfg.Cleanup.Timeout,
	}
	if j != nil {
		opts.Journal = j
	}

	res, runErr := execute(ctx, provision.New(opts), bp, log)
	report(log, res)

	if err := e.telemetry.WriteTextfile(e.cfg.Metrics.Textfile); err != nil {
		log.Warn().Err(err).Msg("failed to write metrics textfile")
	}

	if runErr != nil {
		return fail(e.log, runErr)
	}
	return nil
}

// execute runs the provisioner next to a signal handler. A signal cancels
// provisioning; the provisioner's own cleanup still runs to completion.
func execute(ctx context.Context, p *provision.Provisioner, bp *blueprint.Blueprint, log zerolog.Logger) (*provision.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		res    *provision.Result
		runErr error
		g      run.Group
	)

	g.Add(func() error {
		res, runErr = p.Run(ctx, bp)
		return runErr
	}, func(error) {
		cancel()
	})
	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))

	if err := g.Run(); err != nil {
		var sig run.SignalError
		if errors.As(err, &sig) {
			log.Warn().Str("signal", sig.Signal.String()).Msg("interrupted, cleaning up")
		}
	}
	return res, runErr
}

func checkPolicy(ctx context.Context, e *env, preview blueprint.Preview) error {
	engine := policy.NewEngine(e.log)
	if err := engine.LoadDefaults(ctx); err != nil {
		return err
	}
	if dir := e.cfg.Policy.Dir; dir != "" {
		if err := engine.LoadDir(ctx, dir); err != nil {
			return err
		}
	}

	decision, err := engine.EvaluatePreview(ctx, preview)
	if err != nil {
		return err
	}
	e.telemetry.RecordPolicyViolations(ctx, len(decision.Violations))
	for _, v := range decision.Violations {
		e.log.Warn().Str("violation", v).Msg("policy violation")
	}
	return policy.Check(decision)
}

// fallbackLogger logs with the default settings when the config could not be
// loaded.
func fallbackLogger(w io.Writer) zerolog.Logger {
	cfg := config.Default().Log
	if logFormat != "" {
		cfg.Format = logFormat
	}
	return telemetry.SetupLogging(cfg, w)
}

// openJournal opens the configured journal. It returns nil when journaling
// is disabled.
func openJournal(cfg *config.Config, override string) (*journal.Journal, error) {
	path := cfg.Journal.Path
	if override != "" {
		path = override
	}
	if path == "" || path == "-" {
		return nil, nil
	}
	return journal.Open(path)
}

func report(log zerolog.Logger, res *provision.Result) {
	if res == nil {
		return
	}
	for _, r := range res.Resources {
		log.Debug().
			Str("resource_type", string(r.Type)).
			Str("resource_id", r.ID).
			Msg("resource")
	}
	log.Info().
		Int("created", len(res.Resources)).
		Int("steps", len(res.Steps)).
		Str("cleanup", string(res.Cleanup)).
		Dur("elapsed", res.FinishedAt.Sub(res.StartedAt)).
		Msg("run complete")
}
