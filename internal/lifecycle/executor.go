// Package lifecycle drives the story backlog one iteration at a time.
//
// The lifecycle package provides [Executor], which runs the iteration loop:
// load the snapshot, select a story, hand a directive to the [Worker], apply
// the reported outcome and commit the snapshot. When nothing is selectable,
// [Detect] decides between a run reset and global completion.
//
// Key concepts:
//   - One iteration touches at most one story and commits at most once
//   - Failed iterations commit nothing and can be re-run from the same snapshot
//   - Progress can be tracked via [ProgressCallback]
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"storyloop/internal/logging"
	"storyloop/internal/router"
	"storyloop/internal/store"
	"storyloop/internal/telemetry"
	"storyloop/internal/transition"
)

const scopeName = "storyloop/lifecycle"

// ErrInvalidBudget is returned by [Executor.RunLoop] for a non-positive
// iteration budget.
var ErrInvalidBudget = errors.New("iteration budget must be positive")

// Worker is the interface for the external executor that acts on a directive.
//
// Execute returns the outcome of acting on the directive. A returned error
// means no outcome could be produced; the iteration is aborted with no
// mutation and the error is treated as collaborator unavailability.
type Worker interface {
	Execute(ctx context.Context, d router.Directive) (transition.Outcome, error)
}

// IterationKind tells what an iteration did.
type IterationKind string

const (
	IterationTransition IterationKind = "transition"
	IterationReset      IterationKind = "reset"
	IterationComplete   IterationKind = "complete"
)

// IterationResult summarises one committed iteration.
type IterationResult struct {
	IterationID string
	LogPath     string
	Kind        IterationKind

	// Set when Kind is IterationTransition.
	Selection  router.Selection
	Action     router.Action
	Transition transition.Result

	// Set when Kind is IterationReset or IterationComplete.
	Decision Decision
}

// ProgressCallback is invoked after each completed iteration.
type ProgressCallback func(index int, result IterationResult)

// StopReason says why [Executor.RunLoop] returned.
type StopReason string

const (
	// StopComplete means every story is terminal.
	StopComplete StopReason = "complete"

	// StopBudgetExhausted means the iteration budget ran out first.
	StopBudgetExhausted StopReason = "budget_exhausted"

	// StopIdle means work remains but none of it is eligible now.
	StopIdle StopReason = "idle"
)

// Summary describes a finished driver loop.
type Summary struct {
	Iterations  int
	Transitions int
	Changes     int
	Reason      StopReason

	// Remaining counts the non-terminal stories left when Reason is StopIdle.
	Remaining int
}

// Executor runs iterations against a store and a worker.
//
// Executor uses dependency injection for testability: [store.Store] persists
// snapshots and [Worker] acts on directives. Use [NewExecutor] to create an
// instance, [Executor.Step] for a single iteration and [Executor.RunLoop] for
// the bounded driver loop.
type Executor struct {
	store            store.Store
	worker           Worker
	engine           *transition.Engine
	logDir           string
	now              func() time.Time
	newID            func() string
	progressCallback ProgressCallback

	tracer      trace.Tracer
	transitions metric.Int64Counter
	failures    metric.Int64Counter
}

// NewExecutor creates a new Executor with the required dependencies.
func NewExecutor(st store.Store, w Worker) *Executor {
	m := telemetry.Meter(scopeName)
	transitions, _ := m.Int64Counter("storyloop.transitions",
		metric.WithDescription("Outcomes applied to stories"),
	)
	failures, _ := m.Int64Counter("storyloop.iteration.failures",
		metric.WithDescription("Iterations aborted without a commit"),
	)
	return &Executor{
		store:       st,
		worker:      w,
		engine:      transition.NewEngine(),
		now:         time.Now,
		newID:       uuid.NewString,
		tracer:      telemetry.Tracer(scopeName),
		transitions: transitions,
		failures:    failures,
	}
}

// SetLogDir enables per-iteration audit logs under dir.
func (e *Executor) SetLogDir(dir string) {
	e.logDir = dir
}

// SetClock overrides the time source.
func (e *Executor) SetClock(now func() time.Time) {
	e.now = now
}

// SetIDGenerator overrides how iteration ids are minted.
func (e *Executor) SetIDGenerator(gen func() string) {
	e.newID = gen
}

// SetEngine replaces the transition engine.
func (e *Executor) SetEngine(engine *transition.Engine) {
	e.engine = engine
}

// SetProgressCallback configures an optional callback run after each iteration.
func (e *Executor) SetProgressCallback(cb ProgressCallback) {
	e.progressCallback = cb
}

// Step runs one iteration. On error nothing is committed.
func (e *Executor) Step(ctx context.Context) (IterationResult, error) {
	now := e.now().UTC()
	id := e.newID()

	ctx, span := e.tracer.Start(ctx, "lifecycle.iteration",
		trace.WithAttributes(attribute.String("storyloop.iteration.id", id)),
	)
	defer span.End()

	audit, err := logging.Open(e.logDir, id, now)
	if err != nil {
		return IterationResult{}, err
	}
	defer audit.Close()
	log := audit.Logger()

	result, err := e.step(ctx, log, id, audit.Path(), now)
	if err != nil {
		log.Error("iteration aborted", slog.String("error", err.Error()))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.failures.Add(ctx, 1)
		return IterationResult{}, err
	}

	span.SetAttributes(attribute.String("storyloop.iteration.kind", string(result.Kind)))
	return result, nil
}

func (e *Executor) step(ctx context.Context, log *slog.Logger, id, logPath string, now time.Time) (IterationResult, error) {
	snap, err := e.store.Load(ctx)
	if err != nil {
		return IterationResult{}, fmt.Errorf("failed to load snapshot: %w", err)
	}
	run := snap.Run
	if run.Begin(now) {
		log.Info("run started", slog.Time("run_id", *run.RunID))
	}
	run.CurrentIterationLogPath = logPath

	result := IterationResult{IterationID: id, LogPath: logPath}

	sel, ok := router.Select(snap.Stories, run, now)
	if !ok {
		decision := Detect(snap.Stories, run, now)
		result.Decision = decision
		if decision.Kind == DecisionGlobalCompletion {
			log.Info("global completion", slog.Int("stories", len(snap.Stories)))
			result.Kind = IterationComplete
			return result, nil
		}

		decision.Apply(run)
		log.Info("run reset",
			slog.Int("remaining", decision.Remaining),
			slog.Bool("waiting", decision.Waiting),
		)
		if err := e.store.Commit(ctx, snap); err != nil {
			return IterationResult{}, fmt.Errorf("failed to commit snapshot: %w", err)
		}
		result.Kind = IterationReset
		return result, nil
	}

	directive, err := router.DirectiveFor(sel.Story)
	if err != nil {
		return IterationResult{}, err
	}
	log.Info("story selected",
		slog.String("story", sel.Story.ID),
		slog.String("status", string(sel.Story.Status)),
		slog.String("bucket", sel.Bucket.String()),
		slog.String("reason", string(sel.Reason)),
		slog.String("action", string(directive.Action)),
	)

	outcome, err := e.worker.Execute(ctx, directive)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return IterationResult{}, ctxErr
		}
		return IterationResult{}, fmt.Errorf("%w: worker: %v", transition.ErrCollaboratorUnavailable, err)
	}
	log.Info("worker outcome",
		slog.String("story", sel.Story.ID),
		slog.String("kind", string(outcome.Kind)),
		slog.String("reason", outcome.Reason),
	)
	if !directive.Permits(outcome.Kind) {
		log.Warn("outcome not permitted by directive",
			slog.String("story", sel.Story.ID),
			slog.String("action", string(directive.Action)),
			slog.String("kind", string(outcome.Kind)),
			slog.Any("legal", directive.LegalOutcomes),
		)
		return IterationResult{}, fmt.Errorf("%w: %s directive does not permit %s for %s",
			transition.ErrIllegalTransition, directive.Action, outcome.Kind, sel.Story.ID)
	}

	applied, err := e.engine.Apply(snap.Stories, run, sel.Story.ID, outcome, id, now)
	if err != nil {
		return IterationResult{}, err
	}

	attrs := metric.WithAttributes(
		attribute.String("storyloop.outcome", string(applied.Kind)),
		attribute.Bool("storyloop.changed", applied.Changed),
	)
	e.transitions.Add(ctx, 1, attrs)

	log.Info("transition applied",
		slog.String("story", applied.StoryID),
		slog.String("from", string(applied.From)),
		slog.String("to", string(applied.To)),
		slog.String("activity", string(applied.ToActivity)),
		slog.Bool("changed", applied.Changed),
		slog.String("failure", string(applied.Failure)),
		slog.Bool("escalated", applied.Escalated),
		slog.Any("follow_ups", applied.FollowUps),
	)

	if err := e.store.Commit(ctx, snap); err != nil {
		return IterationResult{}, fmt.Errorf("failed to commit snapshot: %w", err)
	}

	result.Kind = IterationTransition
	result.Selection = sel
	result.Action = directive.Action
	result.Transition = applied
	return result, nil
}

// RunLoop runs iterations until global completion, an idle reset or the
// budget of maxIterations is spent. The first failing iteration stops the
// loop and its error is returned with the summary so far.
func (e *Executor) RunLoop(ctx context.Context, maxIterations int) (Summary, error) {
	var summary Summary
	if maxIterations <= 0 {
		return summary, fmt.Errorf("%w: %d", ErrInvalidBudget, maxIterations)
	}

	for summary.Iterations < maxIterations {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		result, err := e.Step(ctx)
		if err != nil {
			return summary, err
		}
		summary.Iterations++

		if e.progressCallback != nil {
			e.progressCallback(summary.Iterations, result)
		}

		switch result.Kind {
		case IterationComplete:
			summary.Reason = StopComplete
			return summary, nil
		case IterationReset:
			if result.Decision.Waiting {
				summary.Reason = StopIdle
				summary.Remaining = result.Decision.Remaining
				return summary, nil
			}
		case IterationTransition:
			summary.Transitions++
			if result.Transition.Changed {
				summary.Changes++
			}
		}
	}

	summary.Reason = StopBudgetExhausted
	return summary, nil
}

// PreviewResult is what the next iteration would do.
type PreviewResult struct {
	// Selected is false when nothing is selectable; Decision then describes
	// what the iteration would do instead.
	Selected  bool
	Selection router.Selection
	Directive router.Directive
	Decision  Decision
}

// Preview reports what the next iteration would select without running the
// worker or writing anything.
func (e *Executor) Preview(ctx context.Context) (PreviewResult, error) {
	snap, err := e.store.Load(ctx)
	if err != nil {
		return PreviewResult{}, fmt.Errorf("failed to load snapshot: %w", err)
	}
	now := e.now().UTC()
	run := snap.Run
	run.Begin(now)

	sel, ok := router.Select(snap.Stories, run, now)
	if !ok {
		return PreviewResult{Decision: Detect(snap.Stories, run, now)}, nil
	}
	directive, err := router.DirectiveFor(sel.Story)
	if err != nil {
		return PreviewResult{}, err
	}
	return PreviewResult{Selected: true, Selection: sel, Directive: directive}, nil
}
