package types

// QAResult is the single evaluation record attached to a finalized trace.
// Created once, immutable after creation.
type QAResult struct {
	TestsPassed     bool        `json:"tests_passed"`
	TestOutput      string      `json:"test_output,omitempty"`
	OverallScore    float64     `json:"reasoning_score"`
	DetailedScores  RubricScore `json:"detailed_scores"`
	Strengths       []string    `json:"strengths"`
	Weaknesses      []string    `json:"weaknesses"`
	Recommendations []string    `json:"recommendations"`
	JudgeComments   string      `json:"judge_comments"`
	EvaluatedAt     string      `json:"evaluated_at"`
}
