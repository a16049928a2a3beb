package judge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/tracelab-ai/tracelab/internal/chain"
	"github.com/tracelab-ai/tracelab/internal/llm"
	"github.com/tracelab-ai/tracelab/pkg/types"
)

const goodResponse = `{
	"detailed_scores": {
		"hypothesis_quality": 4.0,
		"reasoning_chain": 4.5,
		"alternative_exploration": 3.0,
		"action_reasoning_alignment": 4.0,
		"confidence_calibration": 3.5,
		"efficiency": 4.0
	},
	"strengths": ["clear initial hypothesis"],
	"weaknesses": ["alternatives dismissed quickly"],
	"recommendations": ["verify assumptions with a failing test first"],
	"comments": "Solid, evidence-driven session."
}`

func testChains() []chain.Chain {
	chains, _ := chain.Build([]types.Event{
		{
			Type:      types.EventReasoning,
			Timestamp: "2024-01-15T10:00:00Z",
			Reasoning: &types.ReasoningDetail{Text: "data may be nil at the boundary", ReasoningType: types.ReasoningHypothesis, Confidence: types.ConfidenceHigh},
		},
		{
			Type:      types.EventEdit,
			Timestamp: "2024-01-15T10:01:00Z",
			Edit:      &types.EditDetail{File: "src/processor.js", Change: "guard nil input", Diff: "@@ -1 +1 @@\n-a\n+b\n"},
		},
	})
	return chains
}

func newTestJudge(t *testing.T, provider llm.Provider) *Judge {
	t.Helper()
	j, err := New(provider, "", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	j.now = func() time.Time { return time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC) }
	return j
}

func TestEvaluateValidatedResponse(t *testing.T) {
	mock := llm.NewMockProvider([]*llm.CompletionResponse{{Content: goodResponse}}, nil)
	j := newTestJudge(t, mock)

	res, err := j.Evaluate(context.Background(), "null pointer in processing", testChains(), nil, true, "all tests passed")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	if !res.TestsPassed {
		t.Error("TestsPassed = false, want true")
	}
	if res.DetailedScores[types.CriterionReasoningChain] != 4.5 {
		t.Errorf("reasoning_chain = %v, want 4.5", res.DetailedScores[types.CriterionReasoningChain])
	}
	// 4.0*0.20 + 4.5*0.25 + 3.0*0.15 + 4.0*0.20 + 3.5*0.10 + 4.0*0.10 = 3.925 → 3.9
	if res.OverallScore != 3.9 {
		t.Errorf("OverallScore = %v, want 3.9", res.OverallScore)
	}
	if len(res.Strengths) != 1 || len(res.Weaknesses) != 1 || len(res.Recommendations) != 1 {
		t.Errorf("list lengths = %d/%d/%d, want 1/1/1", len(res.Strengths), len(res.Weaknesses), len(res.Recommendations))
	}
	if res.JudgeComments != "Solid, evidence-driven session." {
		t.Errorf("JudgeComments = %q", res.JudgeComments)
	}
	if res.EvaluatedAt != "2024-01-15T12:00:00Z" {
		t.Errorf("EvaluatedAt = %q", res.EvaluatedAt)
	}
}

func TestEvaluateNarrativeContents(t *testing.T) {
	mock := llm.NewMockProvider([]*llm.CompletionResponse{{Content: goodResponse}}, nil)
	j := newTestJudge(t, mock)

	if _, err := j.Evaluate(context.Background(), "off-by-one in pager", testChains(), nil, false, "1 test failed"); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	history := mock.GetRequestHistory()
	if len(history) != 1 {
		t.Fatalf("call count = %d, want 1", len(history))
	}
	req := history[0]
	if req.Temperature != 0.0 {
		t.Errorf("Temperature = %v, want 0 for deterministic scoring", req.Temperature)
	}
	if req.ResponseSchema == nil {
		t.Error("ResponseSchema not set on judge request")
	}
	prompt := req.Messages[0].Content
	for _, want := range []string{"off-by-one in pager", "data may be nil at the boundary", "confidence high", "src/processor.js", "Test verdict: FAILED", "1 test failed"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("narrative missing %q:\n%s", want, prompt)
		}
	}
}

func TestEvaluateNarrativeIncludesLeadingActions(t *testing.T) {
	mock := llm.NewMockProvider([]*llm.CompletionResponse{{Content: goodResponse}}, nil)
	j := newTestJudge(t, mock)

	preamble := []types.Event{
		{
			Type:      types.EventCommand,
			Timestamp: "2024-01-15T09:58:00Z",
			Command:   &types.CommandDetail{Command: "git log --oneline -5", Output: "abc123 fix cache"},
		},
		{
			Type:      types.EventEdit,
			Timestamp: "2024-01-15T09:59:00Z",
			Edit:      &types.EditDetail{File: "src/setup.js", Change: "bump timeout", Diff: "@@ -1 +1 @@\n-a\n+b\n"},
		},
	}
	if _, err := j.Evaluate(context.Background(), "bug", testChains(), preamble, true, "ok"); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	prompt := mock.GetRequestHistory()[0].Messages[0].Content
	for _, want := range []string{"before any reasoning", "git log --oneline -5", "src/setup.js"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("narrative missing %q:\n%s", want, prompt)
		}
	}
	if !strings.Contains(prompt, "data may be nil at the boundary") {
		t.Error("chain reasoning dropped from narrative")
	}
}

func TestEvaluateFallbackParse(t *testing.T) {
	wrapped := "Sure! Here is my evaluation:\n" + goodResponse + "\nHope that helps."
	mock := llm.NewMockProvider([]*llm.CompletionResponse{{Content: wrapped}}, nil)
	j := newTestJudge(t, mock)

	res, err := j.Evaluate(context.Background(), "bug", testChains(), nil, true, "")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.OverallScore != 3.9 {
		t.Errorf("OverallScore = %v, want 3.9 from recovered scores", res.OverallScore)
	}
	if res.JudgeComments != "Solid, evidence-driven session." {
		t.Errorf("JudgeComments = %q", res.JudgeComments)
	}
}

func TestEvaluateIgnoresServiceAggregate(t *testing.T) {
	// The service volunteers an inflated overall score; the stored score
	// must come from the weighted per-criterion breakdown instead.
	content := `{"overall_score": 5.0, "detailed_scores": {
		"hypothesis_quality": 1.0, "reasoning_chain": 1.0, "alternative_exploration": 1.0,
		"action_reasoning_alignment": 1.0, "confidence_calibration": 1.0, "efficiency": 1.0},
		"strengths": [], "weaknesses": [], "recommendations": [], "comments": "poor"}`
	mock := llm.NewMockProvider([]*llm.CompletionResponse{{Content: content}}, nil)
	j := newTestJudge(t, mock)

	res, err := j.Evaluate(context.Background(), "bug", testChains(), nil, false, "")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.OverallScore != 1.0 {
		t.Errorf("OverallScore = %v, want 1.0 recomputed from breakdown", res.OverallScore)
	}
}

func TestEvaluateUnparsableResponse(t *testing.T) {
	raw := "I am unable to evaluate this session."
	mock := llm.NewMockProvider([]*llm.CompletionResponse{{Content: raw}}, nil)
	j := newTestJudge(t, mock)

	res, err := j.Evaluate(context.Background(), "bug", testChains(), nil, false, "boom")
	if err != nil {
		t.Fatalf("Evaluate: %v (unparsable responses must not surface as errors)", err)
	}
	if res.JudgeComments != raw {
		t.Errorf("JudgeComments = %q, want raw text", res.JudgeComments)
	}
	if len(res.Strengths) != 0 || len(res.Weaknesses) != 0 || len(res.Recommendations) != 0 {
		t.Error("expected empty lists on degraded result")
	}
	if res.OverallScore != types.ScoreMin {
		t.Errorf("OverallScore = %v, want minimum", res.OverallScore)
	}
	if res.Strengths == nil || res.Weaknesses == nil || res.Recommendations == nil {
		t.Error("list fields must be empty, not nil")
	}
}

func TestEvaluatePartialScoresClampAndFloor(t *testing.T) {
	content := `Partial result: {"detailed_scores": {"hypothesis_quality": 7.0, "reasoning_chain": 0.2}, "comments": "odd"}`
	mock := llm.NewMockProvider([]*llm.CompletionResponse{{Content: content}}, nil)
	j := newTestJudge(t, mock)

	res, err := j.Evaluate(context.Background(), "bug", testChains(), nil, false, "")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if got := res.DetailedScores[types.CriterionHypothesisQuality]; got != types.ScoreMax {
		t.Errorf("hypothesis_quality = %v, want clamped to %v", got, types.ScoreMax)
	}
	if got := res.DetailedScores[types.CriterionReasoningChain]; got != types.ScoreMin {
		t.Errorf("reasoning_chain = %v, want clamped to %v", got, types.ScoreMin)
	}
	if got := res.DetailedScores[types.CriterionEfficiency]; got != types.ScoreMin {
		t.Errorf("efficiency = %v, want floor for missing criterion", got)
	}
}

func TestEvaluateRetriesOnce(t *testing.T) {
	mock := llm.NewMockProvider(
		[]*llm.CompletionResponse{nil, {Content: goodResponse}},
		[]error{fmt.Errorf("connection reset"), nil},
	)
	j := newTestJudge(t, mock)

	res, err := j.Evaluate(context.Background(), "bug", testChains(), nil, true, "")
	if err != nil {
		t.Fatalf("Evaluate after retry: %v", err)
	}
	if mock.GetCallCount() != 2 {
		t.Errorf("call count = %d, want 2", mock.GetCallCount())
	}
	if res.OverallScore != 3.9 {
		t.Errorf("OverallScore = %v, want 3.9", res.OverallScore)
	}
}

func TestEvaluateTerminalFailureAfterRetry(t *testing.T) {
	mock := llm.NewMockProvider(nil, []error{fmt.Errorf("down"), fmt.Errorf("still down")})
	j := newTestJudge(t, mock)

	_, err := j.Evaluate(context.Background(), "bug", testChains(), nil, true, "")
	if err == nil {
		t.Fatal("expected terminal error when the service stays unavailable")
	}
	var jse *types.JudgeServiceError
	if !errors.As(err, &jse) {
		t.Fatalf("error type = %T, want *types.JudgeServiceError", err)
	}
	if jse.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", jse.Attempts)
	}
	if mock.GetCallCount() != 2 {
		t.Errorf("call count = %d, want 2", mock.GetCallCount())
	}
}

func TestEvaluateAttemptCapWithRateLimitedProvider(t *testing.T) {
	// The production wiring wraps the provider in a pacing layer with
	// MaxRetries 0; an outage must still produce exactly two service
	// calls, one initial attempt plus one retry.
	mock := llm.NewMockProvider(nil, []error{fmt.Errorf("down"), fmt.Errorf("still down")})
	limited, err := llm.NewRateLimitedProvider(mock, llm.RateLimiterConfig{
		RequestsPerMinute: 6000,
		Burst:             2,
		MaxRetries:        0,
	})
	if err != nil {
		t.Fatalf("NewRateLimitedProvider: %v", err)
	}
	j := newTestJudge(t, limited)

	_, err = j.Evaluate(context.Background(), "bug", testChains(), nil, true, "")
	var jse *types.JudgeServiceError
	if !errors.As(err, &jse) {
		t.Fatalf("error = %v, want *types.JudgeServiceError", err)
	}
	if mock.GetCallCount() != 2 {
		t.Errorf("service calls = %d, want 2 (one attempt plus one retry)", mock.GetCallCount())
	}
}

func TestEvaluateZeroChainsFloorsReasoningCriteria(t *testing.T) {
	// Service (implausibly) scores an empty session highly; the
	// chain-dependent criteria still floor to the minimum.
	mock := llm.NewMockProvider([]*llm.CompletionResponse{{Content: strings.ReplaceAll(goodResponse, "3.0", "4.0")}}, nil)
	j := newTestJudge(t, mock)

	res, err := j.Evaluate(context.Background(), "bug", nil, nil, true, "ok")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	for _, criterion := range chainDependentCriteria {
		if got := res.DetailedScores[criterion]; got != types.ScoreMin {
			t.Errorf("%s = %v, want %v for a session without reasoning", criterion, got, types.ScoreMin)
		}
	}
	if got := res.DetailedScores[types.CriterionEfficiency]; got != 4.0 {
		t.Errorf("efficiency = %v, want judged value 4.0", got)
	}
}

func TestParseResponseShapes(t *testing.T) {
	j := newTestJudge(t, llm.NewMockProvider(nil, nil))

	cases := []struct {
		name string
		raw  string
		want parseStatus
	}{
		{"strict schema match", goodResponse, parseValidated},
		{"json with extra field", `{"extra": true, "detailed_scores": {"efficiency": 3.0}, "strengths": [], "weaknesses": [], "recommendations": [], "comments": "x"}`, parseFallback},
		{"json embedded in prose", "Evaluation follows. " + goodResponse + " Done.", parseFallback},
		{"object without scores then object with scores", `{"note": "ignore me"} {"detailed_scores": {"efficiency": 2.0}}`, parseFallback},
		{"plain prose", "no json here at all", parseUnparsable},
		{"unclosed object", `{"detailed_scores": {"efficiency": 2.0`, parseUnparsable},
	}

	for _, tc := range cases {
		got := parseResponse(j.schema, tc.raw)
		if got.Status != tc.want {
			t.Errorf("%s: status = %v, want %v", tc.name, got.Status, tc.want)
		}
	}
}
