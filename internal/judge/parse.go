package judge

import (
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/segmentio/encoding/json"
)

// parseStatus classifies how a judge response was recovered.
type parseStatus int

const (
	// parseValidated: the response satisfied the strict schema.
	parseValidated parseStatus = iota
	// parseFallback: the response was malformed, but a usable JSON object
	// was extracted from the raw text.
	parseFallback
	// parseUnparsable: nothing usable; the caller degrades the result.
	parseUnparsable
)

// judgeEvaluation is the decoded judge response. Any overall aggregate the
// service volunteers is ignored; the stored score is always recomputed from
// detailed_scores.
type judgeEvaluation struct {
	DetailedScores  map[string]float64 `json:"detailed_scores"`
	Strengths       []string           `json:"strengths"`
	Weaknesses      []string           `json:"weaknesses"`
	Recommendations []string           `json:"recommendations"`
	Comments        string             `json:"comments"`
}

// parsedResponse is the three-shape outcome of response handling: two
// success shapes (validated, fallback) and one failure shape.
type parsedResponse struct {
	Status parseStatus
	Eval   *judgeEvaluation
	Raw    string
}

// parseResponse validates raw against the response schema; failing that, it
// scans for the first well-formed JSON object carrying rubric scores. It
// never errors: an unusable response comes back as parseUnparsable.
func parseResponse(schema *jsonschema.Schema, raw string) parsedResponse {
	if inst, err := jsonschema.UnmarshalJSON(strings.NewReader(raw)); err == nil {
		if err := schema.Validate(inst); err == nil {
			var eval judgeEvaluation
			if err := json.Unmarshal([]byte(raw), &eval); err == nil {
				return parsedResponse{Status: parseValidated, Eval: &eval, Raw: raw}
			}
		}
	}

	if eval, ok := extractEvaluation(raw); ok {
		return parsedResponse{Status: parseFallback, Eval: eval, Raw: raw}
	}

	return parsedResponse{Status: parseUnparsable, Raw: raw}
}

// extractEvaluation scans raw for JSON objects, decoding each candidate
// until one carries at least one recognizable criterion score.
func extractEvaluation(raw string) (*judgeEvaluation, bool) {
	for start := 0; ; {
		open := strings.IndexByte(raw[start:], '{')
		if open < 0 {
			return nil, false
		}
		open += start

		candidate, end := balancedObject(raw, open)
		if candidate == "" {
			start = open + 1
			continue
		}

		var eval judgeEvaluation
		if err := json.Unmarshal([]byte(candidate), &eval); err == nil && len(eval.DetailedScores) > 0 {
			return &eval, true
		}
		start = end
	}
}

// balancedObject returns the brace-balanced substring starting at raw[open]
// and the index just past it, or "" when the object never closes. String
// literals and escapes are honored so braces inside them don't count.
func balancedObject(raw string, open int) (string, int) {
	depth := 0
	inString := false
	escaped := false

	for i := open; i < len(raw); i++ {
		c := raw[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			escaped = inString
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return raw[open : i+1], i + 1
				}
			}
		}
	}
	return "", len(raw)
}
