package models

import (
	"math"
	"time"
)

// RunStatus represents the terminal state of a run.
type RunStatus string

const (
	// RunStatusDone indicates the run reached the end of the pipeline.
	RunStatusDone RunStatus = "done"
	// RunStatusFailed indicates a fatal stage aborted the run.
	RunStatusFailed RunStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusDone, RunStatusFailed:
		return true
	default:
		return false
	}
}

// Trace roles.
const (
	RoleDecomposer = "decomposer"
	RoleEmulator   = "emulator"
	RoleWriter     = "writer"
	RoleError      = "error"
)

// TraceEntry is one message in the run's conversation trace.
type TraceEntry struct {
	// Role names who produced the message, e.g. "writer (subtask 2)".
	Role string `json:"role"`
	// Content is the produced text, empty for failed subtasks.
	Content string `json:"content,omitempty"`
	// Error is set when the step failed.
	Error string `json:"error,omitempty"`
	// Emulated marks placeholder output that no backend produced.
	Emulated bool `json:"emulated,omitempty"`
}

// ArtifactRefs points at the stored document artifacts of a run.
type ArtifactRefs struct {
	// SourceRef is the reference of the marked-up source document.
	SourceRef string `json:"source_ref"`
	// RenderedRef is the reference of the rendered document.
	RenderedRef string `json:"rendered_ref"`
}

// RunRecord is the persisted summary of one run. Records are never
// mutated after they are appended to a history.
type RunRecord struct {
	// ID uniquely identifies the run.
	ID string `json:"id"`
	// RequestText is the user's request.
	RequestText string `json:"request_text"`
	// Status is the terminal state of the run.
	Status RunStatus `json:"status"`
	// Outcomes holds one entry per decomposed subtask, in order.
	Outcomes []SubtaskOutcome `json:"outcomes"`
	// Trace is the conversation log of the run.
	Trace []TraceEntry `json:"messages"`
	// Artifacts is set only when a document was rendered.
	Artifacts *ArtifactRefs `json:"artifacts,omitempty"`
	// Result is a short human-readable note, e.g. "no subtasks".
	Result string `json:"result,omitempty"`
	// Error is the top-level failure reason of a failed run.
	Error string `json:"error,omitempty"`
	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`
	// DurationSeconds is the wall time of the run rounded to hundredths.
	DurationSeconds float64 `json:"response_time"`
}

// Failed reports whether the run ended in the failed state.
func (r RunRecord) Failed() bool {
	return r.Status == RunStatusFailed
}

// FailedSubtasks returns the number of error outcomes.
func (r RunRecord) FailedSubtasks() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Failed() {
			n++
		}
	}
	return n
}

// RoundSeconds converts a duration to seconds rounded to two decimals.
func RoundSeconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*100) / 100
}
