// Package report renders finalized trace evaluations for humans and
// machines.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/tracelab-ai/tracelab/pkg/types"
)

// GenerateMarkdown writes a Markdown-formatted evaluation report for one
// finalized trace to w.
func GenerateMarkdown(w io.Writer, trace *types.Trace) error {
	if _, err := fmt.Fprintf(w, "## QA Report: %s\n\n", trace.TraceID); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "**Developer:** %s\n\n", trace.DeveloperID); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "**Bug:** %s\n\n", trace.BugDescription); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "**Status:** %s\n\n", trace.Status); err != nil {
		return err
	}

	if trace.Status == types.StatusFailed {
		_, err := fmt.Fprintf(w, "_Evaluation failed: %s_\n", trace.ErrorDetail)
		return err
	}
	r := trace.QAResult
	if r == nil {
		_, err := fmt.Fprintln(w, "_Not yet evaluated._")
		return err
	}

	if _, err := fmt.Fprintf(w, "**Tests:** %s\n\n", verdictIcon(r.TestsPassed)); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "**Overall reasoning score:** %.1f / %.1f\n\n", r.OverallScore, types.ScoreMax); err != nil {
		return err
	}

	if _, err := fmt.Fprintln(w, "| Criterion | Weight | Score |"); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, "|-----------|--------|-------|"); err != nil {
		return err
	}
	for _, criterion := range types.Criteria() {
		if _, err := fmt.Fprintf(w, "| %s | %.2f | %.1f |\n",
			strings.ReplaceAll(criterion, "_", " "), types.CriterionWeights[criterion], r.DetailedScores[criterion]); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(w); err != nil {
		return err
	}

	for _, section := range []struct {
		title string
		items []string
	}{
		{"Strengths", r.Strengths},
		{"Weaknesses", r.Weaknesses},
		{"Recommendations", r.Recommendations},
	} {
		if len(section.items) == 0 {
			continue
		}
		if _, err := fmt.Fprintf(w, "### %s\n\n", section.title); err != nil {
			return err
		}
		for _, item := range section.items {
			if _, err := fmt.Fprintf(w, "- %s\n", item); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}

	if r.JudgeComments != "" {
		if _, err := fmt.Fprintf(w, "### Judge comments\n\n%s\n", r.JudgeComments); err != nil {
			return err
		}
	}
	return nil
}

func verdictIcon(passed bool) string {
	if passed {
		return ":white_check_mark: passed"
	}
	return ":x: failed"
}
