package report_test

import (
	"strings"
	"testing"

	"github.com/segmentio/encoding/json"

	"github.com/tracelab-ai/tracelab/internal/report"
	"github.com/tracelab-ai/tracelab/pkg/types"
)

func completedTrace() *types.Trace {
	scores := types.MinimumRubricScore()
	scores[types.CriterionHypothesisQuality] = 4.0
	scores[types.CriterionEfficiency] = 3.0
	return &types.Trace{
		TraceID:        "trace-9",
		DeveloperID:    "dev-7",
		BugDescription: "race in session refresh",
		Status:         types.StatusCompleted,
		QAResult: &types.QAResult{
			TestsPassed:     true,
			OverallScore:    2.1,
			DetailedScores:  scores,
			Strengths:       []string{"early hypothesis"},
			Weaknesses:      []string{"no alternatives considered"},
			Recommendations: []string{"record confidence before edits"},
			JudgeComments:   "narrow but effective",
			EvaluatedAt:     "2026-01-02T11:00:00Z",
		},
	}
}

func TestGenerateMarkdown(t *testing.T) {
	var sb strings.Builder
	if err := report.GenerateMarkdown(&sb, completedTrace()); err != nil {
		t.Fatalf("GenerateMarkdown: %v", err)
	}
	out := sb.String()

	for _, want := range []string{
		"## QA Report: trace-9",
		":white_check_mark: passed",
		"**Overall reasoning score:** 2.1 / 5.0",
		"| hypothesis quality | 0.20 | 4.0 |",
		"| efficiency | 0.10 | 3.0 |",
		"- early hypothesis",
		"- no alternatives considered",
		"narrow but effective",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}

func TestGenerateMarkdownDeterministicCriteriaOrder(t *testing.T) {
	var first, second strings.Builder
	trace := completedTrace()
	if err := report.GenerateMarkdown(&first, trace); err != nil {
		t.Fatalf("GenerateMarkdown: %v", err)
	}
	if err := report.GenerateMarkdown(&second, trace); err != nil {
		t.Fatalf("GenerateMarkdown: %v", err)
	}
	if first.String() != second.String() {
		t.Error("markdown output is not deterministic")
	}
}

func TestGenerateMarkdownFailedTrace(t *testing.T) {
	trace := &types.Trace{
		TraceID:     "trace-10",
		Status:      types.StatusFailed,
		ErrorDetail: "judge unavailable after 2 attempts",
	}
	var sb strings.Builder
	if err := report.GenerateMarkdown(&sb, trace); err != nil {
		t.Fatalf("GenerateMarkdown: %v", err)
	}
	if !strings.Contains(sb.String(), "judge unavailable after 2 attempts") {
		t.Errorf("failed report missing error detail:\n%s", sb.String())
	}
	if strings.Contains(sb.String(), "| Criterion |") {
		t.Error("failed report must not render a score table")
	}
}

func TestGenerateJSONReport(t *testing.T) {
	out, err := report.GenerateJSONReport(completedTrace())
	if err != nil {
		t.Fatalf("GenerateJSONReport: %v", err)
	}

	var decoded report.JSONReport
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if decoded.Version != "1.0" {
		t.Errorf("version = %q", decoded.Version)
	}
	if decoded.Summary.Status != types.StatusCompleted || decoded.Summary.OverallScore != 2.1 {
		t.Errorf("summary = %+v", decoded.Summary)
	}
	if decoded.Trace == nil || decoded.Trace.TraceID != "trace-9" {
		t.Errorf("trace = %+v", decoded.Trace)
	}
}
