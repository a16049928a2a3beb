package types

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	EventReasoning = "reasoning"
	EventCommand   = "command"
	EventEdit      = "edit"
)

const (
	ReasoningHypothesis  = "hypothesis"
	ReasoningAlternative = "alternative"
	ReasoningNote        = "note"
)

const (
	ConfidenceLow    = "low"
	ConfidenceMedium = "medium"
	ConfidenceHigh   = "high"
)

// ReasoningDetail is the payload of a reasoning event.
type ReasoningDetail struct {
	Text          string `json:"text"`
	ReasoningType string `json:"reasoning_type"`
	Confidence    string `json:"confidence"`
}

// CommandDetail is the payload of a command event.
type CommandDetail struct {
	Command          string `json:"command"`
	Output           string `json:"output"`
	WorkingDirectory string `json:"working_directory,omitempty"`
}

// EditDetail is the payload of an edit event. Diff is a unified-diff
// fragment touching exactly the named file.
type EditDetail struct {
	File   string `json:"file"`
	Change string `json:"change"`
	Diff   string `json:"diff"`
}

// Event is one recorded entry in a debugging session: a reasoning note, a
// shell command, or a code edit. Exactly one of the detail pointers is
// non-nil, selected by Type.
type Event struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`

	Reasoning *ReasoningDetail `json:"-"`
	Command   *CommandDetail   `json:"-"`
	Edit      *EditDetail      `json:"-"`
}

// UnknownEventTypeError reports a wire event whose type tag is none of the
// three known variants. It is a distinct type so ingestion can map it to a
// semantic validation failure rather than a malformed-body failure.
type UnknownEventTypeError struct {
	Type string
}

func (e *UnknownEventTypeError) Error() string {
	return fmt.Sprintf("unknown event type: %q", e.Type)
}

// eventWire is the on-the-wire shape: a type tag plus an opaque details object.
type eventWire struct {
	Type      string          `json:"type"`
	Timestamp string          `json:"timestamp"`
	Details   json.RawMessage `json:"details"`
}

// UnmarshalJSON decodes the tagged-union wire form. Unknown event types are
// rejected so every consumer can match exhaustively on the three variants.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w eventWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	e.Type = w.Type
	e.Timestamp = w.Timestamp
	e.Reasoning, e.Command, e.Edit = nil, nil, nil

	switch w.Type {
	case EventReasoning:
		var d ReasoningDetail
		if err := json.Unmarshal(w.Details, &d); err != nil {
			return fmt.Errorf("reasoning details: %w", err)
		}
		e.Reasoning = &d
	case EventCommand:
		var d CommandDetail
		if err := json.Unmarshal(w.Details, &d); err != nil {
			return fmt.Errorf("command details: %w", err)
		}
		e.Command = &d
	case EventEdit:
		var d EditDetail
		if err := json.Unmarshal(w.Details, &d); err != nil {
			return fmt.Errorf("edit details: %w", err)
		}
		e.Edit = &d
	default:
		return &UnknownEventTypeError{Type: w.Type}
	}
	return nil
}

// MarshalJSON encodes the event back into the type/timestamp/details wire form.
func (e Event) MarshalJSON() ([]byte, error) {
	var details any
	switch e.Type {
	case EventReasoning:
		details = e.Reasoning
	case EventCommand:
		details = e.Command
	case EventEdit:
		details = e.Edit
	default:
		return nil, fmt.Errorf("unknown event type: %q", e.Type)
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return nil, err
	}
	return json.Marshal(eventWire{Type: e.Type, Timestamp: e.Timestamp, Details: raw})
}

// IsAction reports whether the event is a command or edit, i.e. something a
// developer did rather than something they thought.
func (e *Event) IsAction() bool {
	return e.Type == EventCommand || e.Type == EventEdit
}

// Time parses the event timestamp. The zero time is returned for timestamps
// that do not parse; ingestion validation rejects those before they reach
// the pipeline.
func (e *Event) Time() time.Time {
	t, err := time.Parse(time.RFC3339, e.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Validate checks the structural invariants of the tagged union: known type,
// parseable timestamp, and the matching detail payload present.
func (e *Event) Validate() error {
	if _, err := time.Parse(time.RFC3339, e.Timestamp); err != nil {
		return fmt.Errorf("timestamp %q is not RFC 3339: %w", e.Timestamp, err)
	}
	switch e.Type {
	case EventReasoning:
		if e.Reasoning == nil {
			return fmt.Errorf("reasoning event has no details")
		}
		if e.Reasoning.Text == "" {
			return fmt.Errorf("reasoning event has empty text")
		}
		switch e.Reasoning.ReasoningType {
		case ReasoningHypothesis, ReasoningAlternative, ReasoningNote:
		default:
			return fmt.Errorf("unknown reasoning type: %q", e.Reasoning.ReasoningType)
		}
		switch e.Reasoning.Confidence {
		case ConfidenceLow, ConfidenceMedium, ConfidenceHigh:
		default:
			return fmt.Errorf("unknown confidence level: %q", e.Reasoning.Confidence)
		}
	case EventCommand:
		if e.Command == nil {
			return fmt.Errorf("command event has no details")
		}
		if e.Command.Command == "" {
			return fmt.Errorf("command event has empty command")
		}
	case EventEdit:
		if e.Edit == nil {
			return fmt.Errorf("edit event has no details")
		}
		if e.Edit.File == "" {
			return fmt.Errorf("edit event has empty file")
		}
	default:
		return &UnknownEventTypeError{Type: e.Type}
	}
	return nil
}
