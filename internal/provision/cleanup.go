package provision

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/azalert/internal/azure"
)

// ErrNothingToCleanUp is returned when no resource group was created.
var ErrNothingToCleanUp = errors.New("no resource group was created")

// ErrNoJournal is returned by Sweep when the provisioner has no journal.
var ErrNoJournal = errors.New("journal not configured")

// CleanupOutcome is the result of a cleanup attempt.
type CleanupOutcome string

const (
	CleanupSkipped CleanupOutcome = "skipped"
	CleanupDeleted CleanupOutcome = "deleted"
	CleanupGone    CleanupOutcome = "gone"
	CleanupFailed  CleanupOutcome = "failed"
)

// Cleanup deletes the resource group identified by groupID. An empty groupID
// means provisioning never got that far and nothing is deleted.
//
// Cleanup ignores cancellation of ctx and is bounded by the cleanup timeout
// instead, so an interrupted run still removes what it created. Failures are
// logged and reported in the outcome, never returned.
func (p *Provisioner) Cleanup(ctx context.Context, groupID string) CleanupOutcome {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cleanupTimeout)
	defer cancel()

	ctx, span := p.telemetry.StartSpan(ctx, "provision.cleanup",
		trace.WithAttributes(attribute.String("resource_group.id", groupID)))
	defer span.End()

	log := p.logger.WithContext(ctx)

	var outcome CleanupOutcome
	err := p.deleteGroup(ctx, groupID)
	switch {
	case err == nil:
		outcome = CleanupDeleted
	case errors.Is(err, ErrNothingToCleanUp):
		outcome = CleanupSkipped
		log.Info().Msg("Did not create any resources in Azure. No clean up is necessary")
	case azure.IsNotFound(err):
		outcome = CleanupGone
		log.Warn().Str("resource_group_id", groupID).Msg("resource group already deleted")
	default:
		outcome = CleanupFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error().Err(err).Str("resource_group_id", groupID).Msg("failed to delete resource group")
	}

	span.SetAttributes(attribute.String("cleanup.outcome", string(outcome)))
	p.telemetry.RecordCleanup(ctx, string(outcome))
	return outcome
}

func (p *Provisioner) deleteGroup(ctx context.Context, groupID string) error {
	if groupID == "" {
		return ErrNothingToCleanUp
	}

	log := p.logger.WithContext(ctx)
	log.Info().Str("resource_group_id", groupID).Msgf("Deleting Resource Group: %s", groupID)
	if err := p.cloud.DeleteResourceGroup(ctx, groupID); err != nil {
		return err
	}
	log.Info().Str("resource_group_id", groupID).Msgf("Deleted Resource Group: %s", groupID)
	return nil
}

// SweepResult is the cleanup outcome for one journaled run.
type SweepResult struct {
	RunID   string
	GroupID string
	Outcome CleanupOutcome
}

// Sweep deletes the resource groups of journaled runs whose cleanup never
// completed. With dryRun set it only reports what it would delete.
func (p *Provisioner) Sweep(ctx context.Context, dryRun bool) ([]SweepResult, error) {
	if p.journal == nil {
		return nil, ErrNoJournal
	}

	ctx, span := p.telemetry.StartSpan(ctx, "provision.sweep",
		trace.WithAttributes(attribute.Bool("dry_run", dryRun)))
	defer span.End()

	pending, err := p.journal.Pending()
	if err != nil {
		return nil, err
	}

	log := p.logger.WithContext(ctx)
	results := make([]SweepResult, 0, len(pending))
	for _, run := range pending {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}

		r := SweepResult{RunID: run.ID, GroupID: run.GroupID}
		if dryRun {
			log.Info().
				Str("run_id", run.ID).
				Str("resource_group_id", run.GroupID).
				Msg("would delete resource group")
			results = append(results, r)
			continue
		}

		r.Outcome = p.Cleanup(ctx, run.GroupID)
		if r.Outcome != CleanupFailed {
			if err := p.journal.SetCleanup(run.ID, string(r.Outcome)); err != nil {
				log.Warn().Err(err).Str("run_id", run.ID).Msg("failed to journal cleanup")
			}
		}
		results = append(results, r)
	}

	span.SetAttributes(attribute.Int("sweep.runs", len(results)))
	return results, nil
}
