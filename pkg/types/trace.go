package types

// Trace statuses. The pipeline owns the only transitions:
// pending → processing → {completed | failed}. Both completed and failed
// are terminal.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Trace is one recorded debugging session: metadata plus the ordered event
// sequence. Events are append-only while the trace is pending and frozen
// once finalization starts.
type Trace struct {
	TraceID        string    `json:"trace_id"`
	DeveloperID    string    `json:"developer_id"`
	RepoURL        string    `json:"repo_url"`
	BugDescription string    `json:"bug_description"`
	Status         string    `json:"status"`
	CreatedAt      string    `json:"created_at"`
	UpdatedAt      string    `json:"updated_at"`
	Events         []Event   `json:"events"`
	QAResult       *QAResult `json:"qa_results,omitempty"`
	ErrorDetail    string    `json:"error_detail,omitempty"`
}

// TerminalStatus reports whether s is a state no transition may leave.
func TerminalStatus(s string) bool {
	return s == StatusCompleted || s == StatusFailed
}
