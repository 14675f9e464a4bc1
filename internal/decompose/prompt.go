package decompose

import (
	"fmt"
	"strings"
)

// decompositionPrompt frames the configured system prompt around the user
// request. The system prompt is expected to describe the subtask schema.
const decompositionPrompt = `%s

USER REQUEST:
%s

Return the list of subtasks in JSON format:
`

// schemaHint is appended when the configured system prompt does not
// mention the descriptor fields itself.
const schemaHint = `Each subtask is a JSON object with exactly these string fields:
[
  {
    "title": "Short section title",
    "purpose": "Why this section is needed",
    "expected_format": "Shape of the output, e.g. 'JSON summary' or 'Plain text output'",
    "instruction": "Detailed instruction for the writer of this section"
  }
]`

// BuildPrompt composes the decomposer prompt.
func BuildPrompt(systemPrompt, request string) string {
	system := strings.TrimSpace(systemPrompt)
	if !strings.Contains(system, "expected_format") {
		if system != "" {
			system += "\n\n"
		}
		system += schemaHint
	}
	return fmt.Sprintf(decompositionPrompt, system, strings.TrimSpace(request))
}
