// Package orchestrator drives a report run from request to record.
//
// A run moves through a fixed sequence of phases:
//   - Decomposing: the decomposer model splits the request into subtasks
//   - Routing: each subtask is classified as emulated or delegated
//   - Emulating / Delegating: the subtask output is synthesized locally or
//     produced by the section writer model
//   - Assembling: produced sections are joined and rendered to a document
//
// Subtasks run strictly in order because every delegated prompt carries the
// text produced by all earlier subtasks (see RunContext). A failing subtask
// becomes an error outcome and the run continues; decomposition and render
// failures end the run in the failed state. Every run yields a RunRecord.
//
// Example usage:
//
//	exec := orchestrator.NewExecutor(orchestrator.ExecutorConfig{
//		Decomposer: decompose.New(gen, settings.Decomposer, logger),
//		Writer:     orchestrator.NewSectionWriter(gen, settings.Writer, logger),
//		Publisher:  assembler,
//		Recorder:   history,
//	})
//	record, err := exec.Run(ctx, identity, models.NewRequest("Summarize cluster health"))
package orchestrator
