// Package pipeline drives one trace through the QA evaluation state
// machine: sandbox verdict, reasoning chains, judge scoring, and the single
// merge-and-transition write.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tracelab-ai/tracelab/internal/chain"
	"github.com/tracelab-ai/tracelab/internal/sandbox"
	"github.com/tracelab-ai/tracelab/pkg/types"
)

// TestRunner produces the sandbox verdict for a trace's edits.
type TestRunner interface {
	Run(ctx context.Context, repoURL string, edits []types.EditDetail, testCommand string) sandbox.Result
}

// Evaluator scores reasoning quality given the chains and test verdict.
type Evaluator interface {
	Evaluate(ctx context.Context, bugDescription string, chains []chain.Chain, preamble []types.Event, testsPassed bool, testOutput string) (*types.QAResult, error)
}

// Store is the persistence collaborator. The orchestrator is the only
// write path to a trace's status and QAResult.
type Store interface {
	UpdateTraceStatus(ctx context.Context, traceID, status string) error
	SaveResult(ctx context.Context, traceID string, result *types.QAResult) error
	SaveFailure(ctx context.Context, traceID, detail string) error
}

// Orchestrator finalizes traces. At most one finalize is in flight per
// trace id; distinct traces evaluate independently.
type Orchestrator struct {
	runner TestRunner
	judge  Evaluator
	store  Store
	logger *slog.Logger

	// TestCommand overrides sandbox test-command detection when non-empty.
	TestCommand string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an Orchestrator. A nil logger is replaced with slog.Default().
func New(runner TestRunner, judge Evaluator, store Store, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		runner: runner,
		judge:  judge,
		store:  store,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

// traceLock returns the exclusion mutex for a trace id.
func (o *Orchestrator) traceLock(traceID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	lock, ok := o.locks[traceID]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[traceID] = lock
	}
	return lock
}

// Finalize runs the full QA pipeline for one pending trace and blocks
// until the trace is completed or failed. A second call on a trace that is
// already processing, or on one past pending, fails fast with
// types.ErrInvalidState and has no side effects.
func (o *Orchestrator) Finalize(ctx context.Context, trace *types.Trace) (*types.QAResult, error) {
	lock := o.traceLock(trace.TraceID)
	if !lock.TryLock() {
		return nil, fmt.Errorf("trace %s is already being finalized: %w", trace.TraceID, types.ErrInvalidState)
	}
	defer lock.Unlock()

	if trace.Status != types.StatusPending {
		return nil, fmt.Errorf("trace %s has status %q: %w", trace.TraceID, trace.Status, types.ErrInvalidState)
	}

	trace.Status = types.StatusProcessing
	if err := o.store.UpdateTraceStatus(ctx, trace.TraceID, types.StatusProcessing); err != nil {
		trace.Status = types.StatusPending
		return nil, fmt.Errorf("transition to processing: %w", err)
	}

	o.logger.Info("finalizing trace", "trace_id", trace.TraceID, "events", len(trace.Events))

	// The sandbox run and the chain build are independent; the judge needs
	// both, so the critical path is max(sandbox, chains) + judge.
	var (
		verdict  sandbox.Result
		chains   []chain.Chain
		preamble []types.Event
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		verdict = o.runner.Run(gctx, trace.RepoURL, editsOf(trace.Events), o.TestCommand)
		return nil
	})
	g.Go(func() error {
		chains, preamble = chain.Build(trace.Events)
		return nil
	})
	_ = g.Wait()

	result, err := o.judge.Evaluate(ctx, trace.BugDescription, chains, preamble, verdict.TestsPassed, verdict.Output)
	if err != nil {
		// The one terminal pipeline error: no complete QAResult exists
		// without the judge. The sandbox verdict is kept for diagnosis.
		detail := fmt.Sprintf("%v (sandbox verdict: tests_passed=%t, error=%q)", err, verdict.TestsPassed, verdict.Err)
		trace.Status = types.StatusFailed
		trace.ErrorDetail = detail
		if saveErr := o.store.SaveFailure(ctx, trace.TraceID, detail); saveErr != nil {
			o.logger.Error("failed to persist trace failure", "trace_id", trace.TraceID, "err", saveErr)
		}
		o.logger.Error("trace evaluation failed", "trace_id", trace.TraceID, "err", err)
		return nil, err
	}

	// Merge: the sandbox verdict is authoritative for the test fields.
	result.TestsPassed = verdict.TestsPassed
	result.TestOutput = verdict.Output

	trace.QAResult = result
	trace.Status = types.StatusCompleted
	if err := o.store.SaveResult(ctx, trace.TraceID, result); err != nil {
		return nil, fmt.Errorf("persist qa result: %w", err)
	}

	o.logger.Info("trace evaluation completed",
		"trace_id", trace.TraceID,
		"tests_passed", result.TestsPassed,
		"overall_score", result.OverallScore)
	return result, nil
}

// editsOf extracts edit payloads from the event sequence in recorded order.
func editsOf(events []types.Event) []types.EditDetail {
	var edits []types.EditDetail
	for _, ev := range events {
		if ev.Type == types.EventEdit && ev.Edit != nil {
			edits = append(edits, *ev.Edit)
		}
	}
	return edits
}
