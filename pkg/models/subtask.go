package models

import "strings"

// Request is a single free-form user request. One Request drives one run.
type Request struct {
	// Text is the user's request, trimmed of surrounding whitespace.
	Text string `json:"text"`
}

// NewRequest builds a Request from raw user input.
func NewRequest(text string) Request {
	return Request{Text: strings.TrimSpace(text)}
}

// Empty reports whether the request carries no text.
func (r Request) Empty() bool {
	return r.Text == ""
}

// SubtaskDescriptor describes one section of the report as planned by the decomposer.
type SubtaskDescriptor struct {
	// Title is the short name of the subtask; it becomes the section heading.
	Title string `json:"title"`
	// Purpose explains why the section exists.
	Purpose string `json:"purpose"`
	// ExpectedFormat describes the shape of the output the section needs.
	ExpectedFormat string `json:"expected_format"`
	// Instruction is the detailed instruction handed to the section writer.
	Instruction string `json:"instruction"`
}

// MissingFields returns the JSON names of required fields that are empty.
func (d SubtaskDescriptor) MissingFields() []string {
	var missing []string
	if strings.TrimSpace(d.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(d.Purpose) == "" {
		missing = append(missing, "purpose")
	}
	if strings.TrimSpace(d.ExpectedFormat) == "" {
		missing = append(missing, "expected_format")
	}
	if strings.TrimSpace(d.Instruction) == "" {
		missing = append(missing, "instruction")
	}
	return missing
}

// RoutingDecision says how a subtask is executed.
type RoutingDecision string

const (
	// RoutingDelegated sends the subtask to the section writer.
	RoutingDelegated RoutingDecision = "delegated"
	// RoutingEmulated synthesizes a placeholder output locally.
	RoutingEmulated RoutingDecision = "emulated"
)

// Valid returns true if the decision is a known value.
func (r RoutingDecision) Valid() bool {
	switch r {
	case RoutingDelegated, RoutingEmulated:
		return true
	default:
		return false
	}
}

// SubtaskOutcome is the result of executing one subtask.
// Exactly one of Output or Error is set.
type SubtaskOutcome struct {
	// Index is the 1-based position of the subtask in the decomposition.
	Index int `json:"index"`
	// Title is copied from the descriptor.
	Title string `json:"title"`
	// Routing records how the subtask was executed.
	Routing RoutingDecision `json:"routing"`
	// Output is the produced section text.
	Output string `json:"output,omitempty"`
	// Error is the failure message when the subtask could not be produced.
	Error string `json:"error,omitempty"`
}

// Failed reports whether the outcome is an error outcome.
func (o SubtaskOutcome) Failed() bool {
	return o.Error != ""
}
