package decompose

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrParseFailure marks decomposer output that cannot be turned into subtasks.
	ErrParseFailure = errors.New("decomposition parse failure")
	// ErrNoSubtasksExtracted is returned when neither parse tier finds any subtask.
	ErrNoSubtasksExtracted = fmt.Errorf("%w: no subtasks extracted", ErrParseFailure)
)

// ValidationError reports a decoded subtask that lacks required fields.
type ValidationError struct {
	// Position is the 1-based index of the subtask in the decoded list.
	Position int
	// Missing lists the absent field names.
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("subtask %d is missing required fields: %s", e.Position, strings.Join(e.Missing, ", "))
}

// Unwrap lets errors.Is(err, ErrParseFailure) match validation failures.
func (e *ValidationError) Unwrap() error {
	return ErrParseFailure
}
