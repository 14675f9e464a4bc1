package orchestrator

import (
	"strings"

	"github.com/digital-iq/llm-report/pkg/models"
)

// EmulationKeywords is the single source of truth for emulation routing.
// A subtask whose expected format or instruction mentions any of these
// (case-insensitive) asks for command output that no backend in this
// deployment can produce, so it is emulated.
var EmulationKeywords = []string{
	"command",
	"plain text",
	"provide commands",
	"command outputs",
}

// Classify decides how a subtask is executed. Any keyword match in the
// expected format or the instruction routes to emulation.
func Classify(d models.SubtaskDescriptor) models.RoutingDecision {
	format := strings.ToLower(d.ExpectedFormat)
	instruction := strings.ToLower(d.Instruction)
	for _, kw := range EmulationKeywords {
		if strings.Contains(format, kw) || strings.Contains(instruction, kw) {
			return models.RoutingEmulated
		}
	}
	return models.RoutingDelegated
}
