package store_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/tracelab-ai/tracelab/internal/store"
	"github.com/tracelab-ai/tracelab/pkg/types"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open in-memory sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s, err := store.New(db)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func sampleTrace(id string) *types.Trace {
	return &types.Trace{
		TraceID:        id,
		DeveloperID:    "dev-42",
		RepoURL:        "https://example.com/repo.git",
		BugDescription: "off-by-one in pagination",
		Status:         types.StatusPending,
		Events: []types.Event{
			{
				Type:      types.EventReasoning,
				Timestamp: "2026-01-02T10:00:00Z",
				Reasoning: &types.ReasoningDetail{Text: "limit looks wrong", ReasoningType: types.ReasoningHypothesis, Confidence: types.ConfidenceHigh},
			},
			{
				Type:      types.EventCommand,
				Timestamp: "2026-01-02T10:01:00Z",
				Command:   &types.CommandDetail{Command: "go test ./...", Output: "FAIL", WorkingDirectory: "/repo"},
			},
		},
	}
}

func sampleResult() *types.QAResult {
	scores := types.MinimumRubricScore()
	scores[types.CriterionHypothesisQuality] = 4.0
	return &types.QAResult{
		TestsPassed:     true,
		TestOutput:      "ok\t1 package",
		OverallScore:    2.5,
		DetailedScores:  scores,
		Strengths:       []string{"clear hypothesis"},
		Weaknesses:      []string{},
		Recommendations: []string{"state confidence"},
		JudgeComments:   "solid start",
		EvaluatedAt:     "2026-01-02T11:00:00Z",
	}
}

func TestStore_CreateAndGetTrace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	want := sampleTrace("trace-1")
	if err := s.CreateTrace(ctx, want); err != nil {
		t.Fatalf("CreateTrace: %v", err)
	}

	got, err := s.GetTrace(ctx, "trace-1")
	if err != nil {
		t.Fatalf("GetTrace: %v", err)
	}
	if got.DeveloperID != want.DeveloperID || got.RepoURL != want.RepoURL || got.BugDescription != want.BugDescription {
		t.Errorf("trace fields = %+v", got)
	}
	if got.Status != types.StatusPending {
		t.Errorf("status = %q, want pending", got.Status)
	}
	if len(got.Events) != 2 {
		t.Fatalf("events = %d, want 2", len(got.Events))
	}
	if got.Events[0].Type != types.EventReasoning || got.Events[0].Reasoning.Text != "limit looks wrong" {
		t.Errorf("first event = %+v", got.Events[0])
	}
	if got.Events[1].Type != types.EventCommand || got.Events[1].Command.Output != "FAIL" {
		t.Errorf("second event = %+v", got.Events[1])
	}
	if got.QAResult != nil {
		t.Error("fresh trace must have no QA result")
	}
}

func TestStore_GetTraceNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetTrace(context.Background(), "missing")
	if !errors.Is(err, types.ErrTraceNotFound) {
		t.Errorf("error = %v, want ErrTraceNotFound", err)
	}
}

func TestStore_AppendEventsPreservesOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.CreateTrace(ctx, sampleTrace("trace-2")); err != nil {
		t.Fatalf("CreateTrace: %v", err)
	}

	extra := []types.Event{
		{
			Type:      types.EventEdit,
			Timestamp: "2026-01-02T10:02:00Z",
			Edit:      &types.EditDetail{File: "page.go", Change: "fix limit", Diff: "@@ -1 +1 @@\n-n\n+n+1\n"},
		},
	}
	if err := s.AppendEvents(ctx, "trace-2", extra); err != nil {
		t.Fatalf("AppendEvents: %v", err)
	}

	got, err := s.GetTrace(ctx, "trace-2")
	if err != nil {
		t.Fatalf("GetTrace: %v", err)
	}
	if len(got.Events) != 3 {
		t.Fatalf("events = %d, want 3", len(got.Events))
	}
	if got.Events[2].Type != types.EventEdit || got.Events[2].Edit.File != "page.go" {
		t.Errorf("appended event = %+v", got.Events[2])
	}
}

func TestStore_AppendEventsRejectsNonPending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.AppendEvents(ctx, "missing", nil); !errors.Is(err, types.ErrTraceNotFound) {
		t.Errorf("unknown trace error = %v, want ErrTraceNotFound", err)
	}

	for _, status := range []string{types.StatusProcessing, types.StatusCompleted, types.StatusFailed} {
		id := "trace-" + status
		if err := s.CreateTrace(ctx, sampleTrace(id)); err != nil {
			t.Fatalf("CreateTrace: %v", err)
		}
		if err := s.UpdateTraceStatus(ctx, id, status); err != nil {
			t.Fatalf("UpdateTraceStatus: %v", err)
		}
		if err := s.AppendEvents(ctx, id, nil); !errors.Is(err, types.ErrTraceFrozen) {
			t.Errorf("status %q: error = %v, want ErrTraceFrozen", status, err)
		}
	}
}

func TestStore_SaveResultCompletesTrace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.CreateTrace(ctx, sampleTrace("trace-3")); err != nil {
		t.Fatalf("CreateTrace: %v", err)
	}
	if err := s.UpdateTraceStatus(ctx, "trace-3", types.StatusProcessing); err != nil {
		t.Fatalf("UpdateTraceStatus: %v", err)
	}

	want := sampleResult()
	if err := s.SaveResult(ctx, "trace-3", want); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}

	got, err := s.GetTrace(ctx, "trace-3")
	if err != nil {
		t.Fatalf("GetTrace: %v", err)
	}
	if got.Status != types.StatusCompleted {
		t.Errorf("status = %q, want completed", got.Status)
	}
	r := got.QAResult
	if r == nil {
		t.Fatal("QA result missing after SaveResult")
	}
	if !r.TestsPassed || r.OverallScore != 2.5 || r.JudgeComments != "solid start" {
		t.Errorf("result = %+v", r)
	}
	if r.DetailedScores[types.CriterionHypothesisQuality] != 4.0 {
		t.Errorf("detailed scores = %v", r.DetailedScores)
	}
	if len(r.Strengths) != 1 || r.Strengths[0] != "clear hypothesis" {
		t.Errorf("strengths = %v", r.Strengths)
	}
	if r.Weaknesses == nil || len(r.Weaknesses) != 0 {
		t.Errorf("weaknesses = %#v, want empty non-nil slice", r.Weaknesses)
	}
}

func TestStore_SaveFailureRecordsDetail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.CreateTrace(ctx, sampleTrace("trace-4")); err != nil {
		t.Fatalf("CreateTrace: %v", err)
	}

	if err := s.SaveFailure(ctx, "trace-4", "judge unavailable after 2 attempts"); err != nil {
		t.Fatalf("SaveFailure: %v", err)
	}

	got, err := s.GetTrace(ctx, "trace-4")
	if err != nil {
		t.Fatalf("GetTrace: %v", err)
	}
	if got.Status != types.StatusFailed {
		t.Errorf("status = %q, want failed", got.Status)
	}
	if got.ErrorDetail != "judge unavailable after 2 attempts" {
		t.Errorf("error detail = %q", got.ErrorDetail)
	}
	if got.QAResult != nil {
		t.Error("failed trace must have no QA result")
	}

	if err := s.SaveFailure(ctx, "missing", "x"); !errors.Is(err, types.ErrTraceNotFound) {
		t.Errorf("unknown trace error = %v, want ErrTraceNotFound", err)
	}
}

func TestStore_OpenCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qa.db")
	s, err := store.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	if err := s.CreateTrace(ctx, sampleTrace("trace-5")); err != nil {
		t.Fatalf("CreateTrace: %v", err)
	}
	if _, err := s.GetTrace(ctx, "trace-5"); err != nil {
		t.Fatalf("GetTrace: %v", err)
	}
}
