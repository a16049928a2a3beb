package report

import (
	"fmt"
	"time"

	"github.com/segmentio/encoding/json"

	"github.com/tracelab-ai/tracelab/pkg/types"
)

type JSONReport struct {
	Version   string       `json:"version"`
	Timestamp string       `json:"timestamp"`
	Trace     *types.Trace `json:"trace"`
	Summary   JSONSummary  `json:"summary"`
}

type JSONSummary struct {
	Status       string  `json:"status"`
	EventCount   int     `json:"event_count"`
	TestsPassed  bool    `json:"tests_passed"`
	OverallScore float64 `json:"overall_score"`
}

// GenerateJSONReport generates a structured JSON report for one trace.
func GenerateJSONReport(trace *types.Trace) ([]byte, error) {
	summary := JSONSummary{
		Status:     trace.Status,
		EventCount: len(trace.Events),
	}
	if r := trace.QAResult; r != nil {
		summary.TestsPassed = r.TestsPassed
		summary.OverallScore = r.OverallScore
	}

	report := JSONReport{
		Version:   "1.0",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Trace:     trace,
		Summary:   summary,
	}

	output, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return output, nil
}
