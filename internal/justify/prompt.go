package justify

import (
	"fmt"
	"strings"

	"github.com/optibot/optibot/internal/workflow"
)

const justifySystemPrompt = `You are an assistant that helps platform engineers document Kubernetes resource changes.

Write a clear, concise, professional justification for the change described by the user. Include the concrete before/after values and the computed deltas, and mention the expected cost and reliability implications. The text goes directly into an audit ticket and a team channel message, so write plain prose with no markdown headings and no preamble.`

// buildJustificationPrompt renders the structured change context sent to the
// model: per-resource before/after values and the computed percentage deltas.
func buildJustificationPrompt(ref workflow.WorkloadRef, current, proposed workflow.ResourceSpec, deltas []ResourceDelta) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("Workload: %s\n\n", ref))

	b.WriteString("Current resources:\n")
	b.WriteString(fmt.Sprintf("- CPU request: %s\n", current.CPURequest))
	b.WriteString(fmt.Sprintf("- CPU limit: %s\n", current.CPULimit))
	b.WriteString(fmt.Sprintf("- Memory request: %s\n", current.MemoryRequest))
	b.WriteString(fmt.Sprintf("- Memory limit: %s\n", current.MemoryLimit))
	b.WriteString("\n")

	b.WriteString("Proposed resources:\n")
	b.WriteString(fmt.Sprintf("- CPU request: %s\n", proposed.CPURequest))
	b.WriteString(fmt.Sprintf("- CPU limit: %s\n", proposed.CPULimit))
	b.WriteString(fmt.Sprintf("- Memory request: %s\n", proposed.MemoryRequest))
	b.WriteString(fmt.Sprintf("- Memory limit: %s\n", proposed.MemoryLimit))
	b.WriteString("\n")

	b.WriteString("Changes:\n")
	for _, d := range deltas {
		b.WriteString(fmt.Sprintf("- %s: %s\n", d.Field, d.Change))
	}
	b.WriteString("\n")

	b.WriteString("Write the justification for this change.\n")
	return b.String()
}
