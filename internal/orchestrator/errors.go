package orchestrator

import "fmt"

// Stage names a run stage whose failure is reported on the record.
type Stage string

const (
	StageDecompose Stage = "decompose"
	StageRender    Stage = "render"
	StagePersist   Stage = "persist"
)

// StageError tags a run-level failure with the stage that produced it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
