// Package provision creates the monitoring resources in order and always
// tears the resource group down again.
package provision

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/azalert/internal/azure"
	"github.com/yairfalse/azalert/internal/blueprint"
	"github.com/yairfalse/azalert/internal/journal"
	"github.com/yairfalse/azalert/internal/telemetry"
	"github.com/yairfalse/azalert/pkg/resource"
)

// DefaultCleanupTimeout bounds resource group deletion when Options leaves
// CleanupTimeout unset.
const DefaultCleanupTimeout = 30 * time.Minute

// Journal records run progress. *journal.Journal implements it.
type Journal interface {
	Begin(run *journal.Run) error
	RecordGroup(runID, groupID string) error
	RecordResource(runID string, res resource.Resource) error
	RecordStep(runID string, step resource.Step) error
	Finish(runID string, status journal.Status, cleanup string, runErr error) error
	SetCleanup(runID, cleanup string) error
	Pending() ([]journal.Run, error)
}

var _ Journal = (*journal.Journal)(nil)

// Options configures a Provisioner. Journal and Telemetry are optional.
type Options struct {
	Cloud          azure.ControlPlane
	SubscriptionID string
	Journal        Journal
	Telemetry      *telemetry.Provider
	Logger         zerolog.Logger
	CleanupTimeout time.Duration
}

// Provisioner runs the create sequence against a ControlPlane.
type Provisioner struct {
	cloud          azure.ControlPlane
	subscriptionID string
	journal        Journal
	telemetry      *telemetry.Provider
	logger         *telemetry.Logger
	cleanupTimeout time.Duration
}

// Result describes one run.
type Result struct {
	RunID      string
	Names      blueprint.Names
	GroupID    string
	Resources  []resource.Resource
	Steps      []resource.Step
	Cleanup    CleanupOutcome
	StartedAt  time.Time
	FinishedAt time.Time
}

// New creates a provisioner.
func New(opts Options) *Provisioner {
	timeout := opts.CleanupTimeout
	if timeout <= 0 {
		timeout = DefaultCleanupTimeout
	}
	return &Provisioner{
		cloud:          opts.Cloud,
		subscriptionID: opts.SubscriptionID,
		journal:        opts.Journal,
		telemetry:      opts.Telemetry,
		logger:         telemetry.NewLogger(opts.Logger, "provision"),
		cleanupTimeout: timeout,
	}
}

// Run creates the resource group, plan, action group and metric alert in
// that order. Whatever happens, the resource group is deleted before Run
// returns. The returned error is the first provisioning failure; cleanup
// failures are reported through Result.Cleanup only.
func (p *Provisioner) Run(ctx context.Context, bp *blueprint.Blueprint) (res *Result, err error) {
	res = &Result{
		RunID:     bp.RunID(),
		Names:     bp.Names(),
		StartedAt: time.Now().UTC(),
	}

	ctx, span := p.telemetry.StartSpan(ctx, "provision.run",
		trace.WithAttributes(attribute.String("run.id", res.RunID)))
	defer span.End()

	if p.journal != nil {
		if err := p.journal.Begin(&journal.Run{ID: res.RunID, StartedAt: res.StartedAt}); err != nil {
			return res, fmt.Errorf("journal run: %w", err)
		}
	}

	defer func() {
		res.Cleanup = p.Cleanup(ctx, res.GroupID)
		res.FinishedAt = time.Now().UTC()
		p.finish(ctx, res, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	err = p.provision(ctx, bp, res)
	return res, err
}

func (p *Provisioner) provision(ctx context.Context, bp *blueprint.Blueprint, res *Result) error {
	names := bp.Names()

	groupID, err := p.step(ctx, res, resource.TypeResourceGroup, names.Group, "", func(ctx context.Context) (string, string, error) {
		rg, err := p.cloud.CreateResourceGroup(ctx, names.Group, bp.ResourceGroup())
		return idOr(rg.ID, azure.ResourceGroupID(p.subscriptionID, names.Group)), deref(rg.Location), err
	})
	if err != nil {
		return err
	}
	res.GroupID = groupID
	if p.journal != nil {
		if err := p.journal.RecordGroup(res.RunID, groupID); err != nil {
			p.logger.WithContext(ctx).Warn().Err(err).Msg("failed to journal resource group")
		}
	}

	planID, err := p.step(ctx, res, resource.TypePlan, names.Plan, names.Group, func(ctx context.Context) (string, string, error) {
		plan, err := p.cloud.CreatePlan(ctx, names.Group, names.Plan, bp.Plan())
		return idOr(plan.ID, azure.PlanID(p.subscriptionID, names.Group, names.Plan)), deref(plan.Location), err
	})
	if err != nil {
		return err
	}

	agID, err := p.step(ctx, res, resource.TypeActionGroup, names.ActionGroup, names.Group, func(ctx context.Context) (string, string, error) {
		ag, err := p.cloud.CreateActionGroup(ctx, names.Group, names.ActionGroup, bp.ActionGroup())
		return idOr(ag.ID, azure.ActionGroupID(p.subscriptionID, names.Group, names.ActionGroup)), deref(ag.Location), err
	})
	if err != nil {
		return err
	}

	_, err = p.step(ctx, res, resource.TypeMetricAlert, names.MetricAlert, names.Group, func(ctx context.Context) (string, string, error) {
		alert, err := p.cloud.CreateMetricAlert(ctx, names.Group, names.MetricAlert, bp.MetricAlert(planID, agID))
		return idOr(alert.ID, azure.MetricAlertID(p.subscriptionID, names.Group, names.MetricAlert)), deref(alert.Location), err
	})
	return err
}

// step runs one create call and records its outcome. create returns the
// created resource's ID and location.
func (p *Provisioner) step(ctx context.Context, res *Result, typ resource.Type, name, group string,
	create func(context.Context) (string, string, error)) (string, error) {
	ctx, span := p.telemetry.StartSpan(ctx, "provision."+string(typ),
		trace.WithAttributes(
			attribute.String("resource.type", string(typ)),
			attribute.String("resource.name", name),
		))
	defer span.End()

	log := p.logger.WithContext(ctx)
	log.Info().
		Str("resource_type", string(typ)).
		Str("name", name).
		Msgf("Creating %s", label(typ))

	start := time.Now()
	id, location, err := create(ctx)
	step := resource.Step{Type: typ, Name: name, Duration: time.Since(start)}
	p.telemetry.RecordStep(ctx, string(typ), step.Duration, err)

	if err != nil {
		step.Error = err.Error()
		res.Steps = append(res.Steps, step)
		p.recordStep(ctx, res.RunID, step)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("create %s %s: %w", label(typ), name, err)
	}

	step.ID = id
	res.Steps = append(res.Steps, step)
	p.recordStep(ctx, res.RunID, step)

	if group == "" {
		group = name
	}
	created := resource.Resource{
		ID:        id,
		Type:      typ,
		Name:      name,
		Group:     group,
		Location:  location,
		Tags:      map[string]string{blueprint.TagManagedBy: "azalert", blueprint.TagRunID: res.RunID},
		CreatedAt: time.Now().UTC(),
	}
	res.Resources = append(res.Resources, created)
	if p.journal != nil {
		if err := p.journal.RecordResource(res.RunID, created); err != nil {
			log.Warn().Err(err).Str("resource_id", id).Msg("failed to journal resource")
		}
	}

	log.Info().
		Str("resource_type", string(typ)).
		Str("name", name).
		Str("resource_id", id).
		Dur("duration", step.Duration).
		Msgf("Created %s", label(typ))

	return id, nil
}

func (p *Provisioner) recordStep(ctx context.Context, runID string, step resource.Step) {
	if p.journal == nil {
		return
	}
	if err := p.journal.RecordStep(runID, step); err != nil {
		p.logger.WithContext(ctx).Warn().Err(err).Msg("failed to journal step")
	}
}

func (p *Provisioner) finish(ctx context.Context, res *Result, runErr error) {
	log := p.logger.WithContext(ctx)
	if runErr != nil {
		log.Error().Err(runErr).Str("run_id", res.RunID).Msg("provisioning failed")
	}

	if p.journal == nil {
		return
	}
	status := journal.StatusSucceeded
	if runErr != nil {
		status = journal.StatusFailed
	}
	if err := p.journal.Finish(res.RunID, status, string(res.Cleanup), runErr); err != nil {
		log.Warn().Err(err).Msg("failed to journal run result")
	}
}

func idOr(id *string, fallback string) string {
	if id != nil && *id != "" {
		return *id
	}
	return fallback
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func label(typ resource.Type) string {
	switch typ {
	case resource.TypeResourceGroup:
		return "resource group"
	case resource.TypePlan:
		return "app service plan"
	case resource.TypeActionGroup:
		return "action group"
	case resource.TypeMetricAlert:
		return "metric alert"
	}
	return string(typ)
}
