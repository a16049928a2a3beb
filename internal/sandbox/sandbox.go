// Package sandbox applies a trace's edits to a fresh checkout of the target
// repository and runs its test suite inside a disposable working directory.
// Every failure mode is absorbed into the returned Result; the directory is
// removed on every exit path.
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/tracelab-ai/tracelab/pkg/types"
)

// Result is the sandbox verdict for one trace.
type Result struct {
	TestsPassed bool
	Output      string
	Err         types.ErrorKind
	FailedFiles []string
}

// Runner executes sandboxed test runs.
type Runner struct {
	// WorkRoot is the parent directory for disposable workspaces.
	// Empty uses the system temp dir.
	WorkRoot     string
	CloneTimeout time.Duration
	TestTimeout  time.Duration
	Logger       *slog.Logger
}

// NewRunner creates a Runner with the given timeouts. A nil logger is
// replaced with slog.Default().
func NewRunner(workRoot string, cloneTimeout, testTimeout time.Duration, logger *slog.Logger) *Runner {
	if cloneTimeout <= 0 {
		cloneTimeout = 2 * time.Minute
	}
	if testTimeout <= 0 {
		testTimeout = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{WorkRoot: workRoot, CloneTimeout: cloneTimeout, TestTimeout: testTimeout, Logger: logger}
}

// Run clones repoURL into a disposable directory, applies the edits in
// order, and executes the resolved test command. It never returns an error:
// every failure is reported through the Result so the pipeline can fold it
// into a non-passing verdict.
func (r *Runner) Run(ctx context.Context, repoURL string, edits []types.EditDetail, testCommand string) Result {
	dir, err := os.MkdirTemp(r.WorkRoot, "tracelab-sandbox-")
	if err != nil {
		return Result{Output: fmt.Sprintf("sandbox: create workspace: %v", err), Err: types.ErrKindCloneFailure}
	}
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			r.Logger.Error("sandbox workspace cleanup failed", "dir", dir, "err", rmErr)
		}
	}()

	repoDir, err := r.clone(ctx, repoURL, dir)
	if err != nil {
		return Result{Output: fmt.Sprintf("clone %s: %v", repoURL, err), Err: types.ErrKindCloneFailure}
	}

	result := Result{}
	applyLog := r.applyEdits(ctx, repoDir, edits, &result)

	cmdline, ok := resolveTestCommand(repoDir, testCommand)
	if !ok {
		result.TestsPassed = false
		result.Output = ""
		result.Err = types.ErrKindNoTestRunner
		return result
	}

	r.runTests(ctx, repoDir, cmdline, applyLog, &result)
	return result
}

// clone snapshots the repository into dir/repo with a bounded timeout.
func (r *Runner) clone(ctx context.Context, repoURL, dir string) (string, error) {
	cloneCtx, cancel := context.WithTimeout(ctx, r.CloneTimeout)
	defer cancel()

	repoDir := filepath.Join(dir, "repo")
	cmd := exec.CommandContext(cloneCtx, "git", "clone", "--depth", "1", "--quiet", repoURL, repoDir)
	out, err := cmd.CombinedOutput()
	if cloneCtx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("timed out after %s", r.CloneTimeout)
	}
	if err != nil {
		return "", fmt.Errorf("%v: %s", err, strings.TrimSpace(string(out)))
	}
	return repoDir, nil
}

// runTests executes the test command under the test timeout, terminating
// the whole process group if it runs over.
func (r *Runner) runTests(ctx context.Context, repoDir, cmdline, applyLog string, result *Result) {
	testCtx, cancel := context.WithTimeout(ctx, r.TestTimeout)
	defer cancel()

	cmd := exec.CommandContext(testCtx, "sh", "-c", cmdline)
	cmd.Dir = repoDir
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	configureCommandProcess(cmd)
	cmd.Cancel = func() error {
		terminateCommandProcess(cmd)
		return nil
	}

	runErr := cmd.Run()
	output := buf.String()
	if applyLog != "" {
		output = applyLog + "\n" + output
	}

	if testCtx.Err() == context.DeadlineExceeded {
		result.TestsPassed = false
		result.Output = output + fmt.Sprintf("\n[test run terminated after %s timeout]", r.TestTimeout)
		result.Err = types.ErrKindTimeout
		return
	}

	result.TestsPassed = runErr == nil
	result.Output = output
	if runErr != nil {
		if _, isExit := runErr.(*exec.ExitError); !isExit {
			result.Output += fmt.Sprintf("\n[test command failed to start: %v]", runErr)
		}
	}
}
