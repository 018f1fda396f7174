// Package generation implements the fan-out orchestrator: one model call
// per (unit, question) work item under a concurrency cap, with progress
// streaming, bounded retry, and cooperative cancellation.
package generation

import "encoding/json"

type EventType string

const (
	EventProcessing EventType = "processing"
	EventRetry      EventType = "retry"
	EventTokenUsage EventType = "token_usage"
	EventCompleted  EventType = "completed"
	EventError      EventType = "error"
	EventDone       EventType = "done"
)

// ProgressEvent is one element of a generation's serialized event stream.
// Fields are populated per type; zero values are omitted on the wire.
type ProgressEvent struct {
	Type         EventType       `json:"type"`
	UnitCode     string          `json:"unit_code,omitempty"`
	QuestionKey  string          `json:"question_key,omitempty"`
	Attempt      int             `json:"attempt,omitempty"`
	Section      string          `json:"section,omitempty"`
	InputTokens  int64           `json:"input_tokens,omitempty"`
	OutputTokens int64           `json:"output_tokens,omitempty"`
	Result       *QuestionResult `json:"result,omitempty"`
	Message      string          `json:"message,omitempty"`
	Fatal        bool            `json:"fatal,omitempty"`
	Results      ResultMap       `json:"results,omitempty"`
}

// DecodeProgressEvent parses one wire-encoded event.
func DecodeProgressEvent(data []byte) (ProgressEvent, error) {
	var event ProgressEvent
	err := json.Unmarshal(data, &event)
	return event, err
}
