package judge

import (
	"fmt"
	"strings"

	"github.com/tracelab-ai/tracelab/internal/chain"
	"github.com/tracelab-ai/tracelab/pkg/types"
)

const (
	maxTestOutputChars    = 4000
	maxCommandOutputChars = 400
)

// renderNarrative turns the bug description, reasoning chains, preamble
// actions, and test verdict into the evaluation prompt for the judging
// service.
func renderNarrative(bugDescription string, chains []chain.Chain, preamble []types.Event, testsPassed bool, testOutput string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Bug description: %s\n\n", bugDescription)

	if len(preamble) > 0 {
		b.WriteString("Actions taken before any reasoning was recorded:\n")
		for _, a := range preamble {
			writeAction(&b, a)
		}
		b.WriteString("\n")
	}

	if len(chains) == 0 {
		b.WriteString("Debugging session: no reasoning was recorded.\n")
	} else {
		b.WriteString("Debugging session:\n")
		for i, c := range chains {
			r := c.Reasoning.Reasoning
			fmt.Fprintf(&b, "%d. [%s, confidence %s] %s\n", i+1, r.ReasoningType, r.Confidence, r.Text)
			if len(c.FollowingActions) == 0 {
				b.WriteString("   No actions followed this reasoning.\n")
				continue
			}
			fmt.Fprintf(&b, "   Gap to first action: %s\n", c.TimeGap)
			for _, a := range c.FollowingActions {
				writeAction(&b, a)
			}
		}
	}

	verdict := "FAILED"
	if testsPassed {
		verdict = "PASSED"
	}
	fmt.Fprintf(&b, "\nTest verdict: %s\n", verdict)
	if out := truncate(testOutput, maxTestOutputChars); out != "" {
		fmt.Fprintf(&b, "Test output:\n%s\n", out)
	}

	return b.String()
}

func writeAction(b *strings.Builder, a types.Event) {
	switch a.Type {
	case types.EventCommand:
		fmt.Fprintf(b, "   - ran: %s\n", a.Command.Command)
		if out := truncate(a.Command.Output, maxCommandOutputChars); out != "" {
			fmt.Fprintf(b, "     output: %s\n", out)
		}
	case types.EventEdit:
		fmt.Fprintf(b, "   - edited %s: %s\n", a.Edit.File, a.Edit.Change)
	}
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n[... truncated]"
}
