// Package tui provides the terminal progress view for a single report run.
//
// The view is read-only. It follows the run's phase events as sections are
// routed, emulated or written, then shows the outcome of every section and
// the generated documents. Users can only quit with 'q' or Ctrl+C.
//
// Usage:
//
//	program, app := tui.NewRunProgram(request)
//	observer := tui.Observer(program.Send)
//
//	go func() {
//	    rec, err := executor.Run(ctx, identity, req) // with OnPhase: observer
//	    program.Send(tui.RunDoneMsg{Record: rec, Err: err})
//	}()
//	_, err := program.Run()
package tui
