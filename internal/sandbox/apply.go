package sandbox

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/tracelab-ai/tracelab/pkg/types"
)

// applyEdits applies each edit's diff to the checkout in event order. A diff
// that fails to apply is recorded and skipped; later diffs still run.
// Returns a human-readable log of apply failures for the test output.
func (r *Runner) applyEdits(ctx context.Context, repoDir string, edits []types.EditDetail, result *Result) string {
	var failures []string

	for _, edit := range edits {
		if err := applyDiff(ctx, repoDir, edit); err != nil {
			result.FailedFiles = append(result.FailedFiles, edit.File)
			failures = append(failures, fmt.Sprintf("[diff for %s did not apply: %v]", edit.File, err))
			r.Logger.Warn("diff apply failed", "file", edit.File, "err", err)
		}
	}

	if len(result.FailedFiles) > 0 {
		result.Err = types.ErrKindPartialApplyFailure
	}
	return strings.Join(failures, "\n")
}

// applyDiff feeds one edit's unified diff to git apply. Recorded diffs are
// often bare hunk fragments without file headers, so headers naming the
// edit's file are synthesized when absent.
func applyDiff(ctx context.Context, repoDir string, edit types.EditDetail) error {
	diff := edit.Diff
	if strings.TrimSpace(diff) == "" {
		return fmt.Errorf("empty diff")
	}
	if needsHeaders(diff) {
		diff = fmt.Sprintf("--- a/%s\n+++ b/%s\n%s", edit.File, edit.File, diff)
	}
	if !strings.HasSuffix(diff, "\n") {
		diff += "\n"
	}

	cmd := exec.CommandContext(ctx, "git", "apply", "--whitespace=nowarn", "-")
	cmd.Dir = repoDir
	cmd.Stdin = strings.NewReader(diff)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%v: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// needsHeaders reports whether the diff fragment lacks ---/+++ file headers.
func needsHeaders(diff string) bool {
	trimmed := strings.TrimLeft(diff, "\n")
	return !strings.HasPrefix(trimmed, "---") && !strings.HasPrefix(trimmed, "diff ")
}
