// Package judge scores the quality of a trace's reasoning by sending a
// rendered narrative to an external judging service and mapping its
// response onto the fixed six-criterion rubric.
package judge

// systemPrompt instructs the judging service. The criteria names and score
// range must match the rubric in pkg/types; the response shape must match
// responseSchema.
const systemPrompt = `You are an expert evaluator of software debugging sessions. You are given a bug description, the developer's recorded reasoning linked to the actions that followed it, and the final test verdict.

Score each criterion from 1.0 (poor) to 5.0 (excellent):
- hypothesis_quality: were hypotheses specific, testable, and grounded in the observed symptoms?
- reasoning_chain: did each reasoning step build logically on prior evidence?
- alternative_exploration: were plausible alternative explanations considered and ruled out?
- action_reasoning_alignment: did commands and edits actually follow from the stated reasoning?
- confidence_calibration: did stated confidence match the evidence available at the time?
- efficiency: was the fix reached without redundant or aimless activity?

Reasoning with no recorded follow-through is a weakness under action_reasoning_alignment. A session with no reasoning at all scores the minimum on every reasoning-dependent criterion.

Respond with a single JSON object containing "detailed_scores" (all six criteria), "strengths", "weaknesses", "recommendations" (arrays of short strings), and "comments" (free text). No prose outside the JSON object.`

// responseSchema constrains the judge response. Services that honor strict
// schema output return exactly this shape; everything else goes down the
// fallback parse path.
const responseSchema = `{
  "type": "object",
  "properties": {
    "detailed_scores": {
      "type": "object",
      "properties": {
        "hypothesis_quality": {"type": "number", "minimum": 1.0, "maximum": 5.0},
        "reasoning_chain": {"type": "number", "minimum": 1.0, "maximum": 5.0},
        "alternative_exploration": {"type": "number", "minimum": 1.0, "maximum": 5.0},
        "action_reasoning_alignment": {"type": "number", "minimum": 1.0, "maximum": 5.0},
        "confidence_calibration": {"type": "number", "minimum": 1.0, "maximum": 5.0},
        "efficiency": {"type": "number", "minimum": 1.0, "maximum": 5.0}
      },
      "required": [
        "hypothesis_quality",
        "reasoning_chain",
        "alternative_exploration",
        "action_reasoning_alignment",
        "confidence_calibration",
        "efficiency"
      ],
      "additionalProperties": false
    },
    "strengths": {"type": "array", "items": {"type": "string"}},
    "weaknesses": {"type": "array", "items": {"type": "string"}},
    "recommendations": {"type": "array", "items": {"type": "string"}},
    "comments": {"type": "string"}
  },
  "required": ["detailed_scores", "strengths", "weaknesses", "recommendations", "comments"],
  "additionalProperties": false
}`
