// Package policy evaluates OPA guardrails against a run's payloads before
// anything is sent to Azure.
package policy

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/azalert/internal/blueprint"
	"github.com/yairfalse/azalert/internal/telemetry"
)

// ErrDenied is returned by Check when at least one policy denies the run.
var ErrDenied = errors.New("denied by policy")

// DefaultPolicyName names the built-in guardrail module.
const DefaultPolicyName = "default"

const denyQuery = "data.azalert.deny"

//go:embed default.rego
var defaultPolicy string

// Engine evaluates rego modules. Every module contributes to the
// data.azalert.deny set.
type Engine struct {
	logger  *telemetry.Logger
	tracer  trace.Tracer
	queries map[string]rego.PreparedEvalQuery
}

// NewEngine creates an engine with no policies loaded.
func NewEngine(log zerolog.Logger) *Engine {
	return &Engine{
		logger:  telemetry.NewLogger(log, "policy"),
		tracer:  otel.Tracer("azalert/policy"),
		queries: make(map[string]rego.PreparedEvalQuery),
	}
}

// LoadDefaults compiles the built-in guardrails.
func (e *Engine) LoadDefaults(ctx context.Context) error {
	return e.LoadPolicy(ctx, DefaultPolicyName, defaultPolicy)
}

// LoadPolicy compiles a rego module under name, replacing any module
// previously loaded with the same name.
func (e *Engine) LoadPolicy(ctx context.Context, name, module string) error {
	ctx, span := e.tracer.Start(ctx, "policy.load",
		trace.WithAttributes(attribute.String("policy.name", name)))
	defer span.End()

	prepared, err := rego.New(
		rego.Query(denyQuery),
		rego.Module(name+".rego", module),
	).PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("compile policy %s: %w", name, err)
	}

	e.queries[name] = prepared

	e.logger.WithContext(ctx).Debug().
		Str("policy_name", name).
		Msg("policy loaded")

	return nil
}

// LoadDir compiles every .rego file directly under dir. Modules are named
// after their file name without extension.
func (e *Engine) LoadDir(ctx context.Context, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read policy dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".rego" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		content, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return fmt.Errorf("read policy file %s: %w", path, err)
		}
		name := strings.TrimSuffix(entry.Name(), ".rego")
		if err := e.LoadPolicy(ctx, name, string(content)); err != nil {
			return err
		}
	}
	return nil
}

// Policies returns the names of loaded modules in sorted order.
func (e *Engine) Policies() []string {
	names := make([]string, 0, len(e.queries))
	for name := range e.queries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Evaluate runs every loaded module against input.
func (e *Engine) Evaluate(ctx context.Context, input any) (Decision, error) {
	ctx, span := e.tracer.Start(ctx, "policy.evaluate",
		trace.WithAttributes(attribute.Int("policy.count", len(e.queries))))
	defer span.End()

	decision := Decision{Result: ResultAllow}

	for _, name := range e.Policies() {
		rs, err := e.queries[name].Eval(ctx, rego.EvalInput(input))
		if err != nil {
			return Decision{}, fmt.Errorf("evaluate policy %s: %w", name, err)
		}
		msgs := denials(rs)
		if len(msgs) == 0 {
			continue
		}
		decision.Result = ResultDeny
		decision.Policies = append(decision.Policies, name)
		decision.Violations = append(decision.Violations, msgs...)
	}

	e.logger.WithContext(ctx).Info().
		Str("result", string(decision.Result)).
		Int("violations", len(decision.Violations)).
		Strs("policies", decision.Policies).
		Msg("policy evaluation complete")

	return decision, nil
}

// EvaluatePreview evaluates the payloads of a planned run.
func (e *Engine) EvaluatePreview(ctx context.Context, p blueprint.Preview) (Decision, error) {
	doc, err := p.Document()
	if err != nil {
		return Decision{}, err
	}
	return e.Evaluate(ctx, doc)
}

// denials extracts the sorted deny messages from a result set.
func denials(rs rego.ResultSet) []string {
	var msgs []string
	for _, r := range rs {
		for _, expr := range r.Expressions {
			set, ok := expr.Value.([]any)
			if !ok {
				continue
			}
			for _, v := range set {
				if s, ok := v.(string); ok {
					msgs = append(msgs, s)
				}
			}
		}
	}
	sort.Strings(msgs)
	return msgs
}
