package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/tracelab-ai/tracelab/internal/chain"
	"github.com/tracelab-ai/tracelab/internal/llm"
	"github.com/tracelab-ai/tracelab/pkg/types"
)

const (
	// judgeAttempts bounds service calls: one initial call plus one retry.
	judgeAttempts = 2

	maxResponseTokens = 1024
)

// chainDependentCriteria cannot be scored above the floor when the session
// recorded no reasoning at all.
var chainDependentCriteria = []string{
	types.CriterionHypothesisQuality,
	types.CriterionReasoningChain,
	types.CriterionAlternativeExploration,
	types.CriterionActionReasoningAlignment,
	types.CriterionConfidenceCalibration,
}

// Judge evaluates reasoning quality via an external judging service.
type Judge struct {
	provider llm.Provider
	model    string
	schema   *jsonschema.Schema
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Judge using the given provider. model "" uses the
// provider's default. The response schema is compiled once here.
func New(provider llm.Provider, model string, logger *slog.Logger) (*Judge, error) {
	if model == "" {
		model = provider.DefaultModel()
	}
	if logger == nil {
		logger = slog.Default()
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(responseSchema))
	if err != nil {
		return nil, fmt.Errorf("judge: parse response schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("judge_response.json", doc); err != nil {
		return nil, fmt.Errorf("judge: add schema resource: %w", err)
	}
	schema, err := compiler.Compile("judge_response.json")
	if err != nil {
		return nil, fmt.Errorf("judge: compile response schema: %w", err)
	}

	return &Judge{provider: provider, model: model, schema: schema, logger: logger, now: time.Now}, nil
}

// Evaluate renders the trace narrative, calls the judging service, and maps
// the response onto a QAResult. Malformed responses degrade locally; only
// service unavailability after the retry returns an error
// (*types.JudgeServiceError).
func (j *Judge) Evaluate(ctx context.Context, bugDescription string, chains []chain.Chain, preamble []types.Event, testsPassed bool, testOutput string) (*types.QAResult, error) {
	req := &llm.CompletionRequest{
		Model:        j.model,
		SystemPrompt: systemPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: renderNarrative(bugDescription, chains, preamble, testsPassed, testOutput)},
		},
		// Deterministic over creative: scores should be reproducible.
		Temperature:    0.0,
		MaxTokens:      maxResponseTokens,
		ResponseSchema: json.RawMessage(responseSchema),
		SchemaName:     "qa_evaluation",
	}

	resp, err := j.complete(ctx, req)
	if err != nil {
		return nil, &types.JudgeServiceError{Attempts: judgeAttempts, Err: err}
	}

	parsed := parseResponse(j.schema, resp.Content)
	result := j.buildResult(parsed, chains, testsPassed, testOutput)
	return result, nil
}

// complete calls the provider with at most one retry.
func (j *Judge) complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	var lastErr error
	for attempt := 1; attempt <= judgeAttempts; attempt++ {
		resp, err := j.provider.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		j.logger.Warn("judge service call failed", "attempt", attempt, "err", err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

// buildResult folds a parsed response and the sandbox verdict into one
// QAResult. The overall score is always recomputed from the per-criterion
// scores so it stays consistent with the stored breakdown.
func (j *Judge) buildResult(parsed parsedResponse, chains []chain.Chain, testsPassed bool, testOutput string) *types.QAResult {
	result := &types.QAResult{
		TestsPassed:     testsPassed,
		TestOutput:      testOutput,
		Strengths:       []string{},
		Weaknesses:      []string{},
		Recommendations: []string{},
		EvaluatedAt:     j.now().UTC().Format(time.RFC3339),
	}

	switch parsed.Status {
	case parseUnparsable:
		j.logger.Warn("judge response unparsable, storing degraded result")
		result.DetailedScores = types.MinimumRubricScore()
		result.JudgeComments = parsed.Raw
	case parseValidated, parseFallback:
		if parsed.Status == parseFallback {
			j.logger.Warn("judge response failed schema validation, recovered via fallback parse")
		}
		result.DetailedScores = sanitizeScores(parsed.Eval.DetailedScores)
		result.JudgeComments = parsed.Eval.Comments
		if parsed.Eval.Strengths != nil {
			result.Strengths = parsed.Eval.Strengths
		}
		if parsed.Eval.Weaknesses != nil {
			result.Weaknesses = parsed.Eval.Weaknesses
		}
		if parsed.Eval.Recommendations != nil {
			result.Recommendations = parsed.Eval.Recommendations
		}
	}

	// Without recorded reasoning there is nothing to score on the
	// reasoning criteria, whatever the service answered.
	if len(chains) == 0 {
		for _, criterion := range chainDependentCriteria {
			result.DetailedScores[criterion] = types.ScoreMin
		}
	}

	result.OverallScore = result.DetailedScores.Overall()
	return result
}

// sanitizeScores maps raw judge scores onto the fixed rubric: unknown
// criteria are dropped, missing ones floor to the minimum, and
// out-of-range values clamp to the bounds.
func sanitizeScores(raw map[string]float64) types.RubricScore {
	scores := make(types.RubricScore, len(types.CriterionWeights))
	for criterion := range types.CriterionWeights {
		score, ok := raw[criterion]
		if !ok {
			scores[criterion] = types.ScoreMin
			continue
		}
		if score < types.ScoreMin {
			score = types.ScoreMin
		}
		if score > types.ScoreMax {
			score = types.ScoreMax
		}
		scores[criterion] = score
	}
	return scores
}
