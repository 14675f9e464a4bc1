package orchestrator

import "time"

// Phase is a state of the run state machine.
type Phase string

const (
	// PhaseDecomposing indicates the decomposer is being called.
	PhaseDecomposing Phase = "decomposing"
	// PhaseRouting indicates a subtask is being classified.
	PhaseRouting Phase = "routing"
	// PhaseEmulating indicates a subtask output is being synthesized.
	PhaseEmulating Phase = "emulating"
	// PhaseDelegating indicates the section writer is being called.
	PhaseDelegating Phase = "delegating"
	// PhaseAssembling indicates the document is being assembled and rendered.
	PhaseAssembling Phase = "assembling"
	// PhaseDone indicates the run finished.
	PhaseDone Phase = "done"
	// PhaseFailed indicates a fatal stage aborted the run.
	PhaseFailed Phase = "failed"
)

// Terminal reports whether no further transitions follow p.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseFailed
}

// PhaseEvent is emitted on every state transition of a run.
type PhaseEvent struct {
	// RunID is the ID of the run.
	RunID string
	// Phase is the state entered.
	Phase Phase
	// Index is the 1-based subtask index for per-subtask phases, 0 otherwise.
	Index int
	// Total is the number of subtasks, once known.
	Total int
	// Title is the subtask title for per-subtask phases.
	Title string
	// Error contains error details for the failed phase.
	Error error
	// Timestamp is when the transition happened.
	Timestamp time.Time
}

// PhaseObserver receives phase events synchronously on the run's goroutine.
type PhaseObserver func(PhaseEvent)
