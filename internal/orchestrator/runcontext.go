package orchestrator

import "strings"

// Context labels written ahead of each appended block.
const (
	LabelEmulated = "EMULATED"
	LabelWriter   = "WRITER"
)

// RunContext accumulates the text produced by earlier subtasks of one run.
// It is append-only and owned by a single run; it is not safe for
// concurrent use.
type RunContext struct {
	b strings.Builder
}

// Append adds text under the given label. Each block is written as
// "\n\n<LABEL> OUTPUT:\n<text>".
func (c *RunContext) Append(label, text string) {
	c.b.WriteString("\n\n")
	c.b.WriteString(label)
	c.b.WriteString(" OUTPUT:\n")
	c.b.WriteString(text)
}

// Snapshot returns the accumulated context.
func (c *RunContext) Snapshot() string {
	return c.b.String()
}

// Len returns the size of the accumulated context in bytes.
func (c *RunContext) Len() int {
	return c.b.Len()
}
