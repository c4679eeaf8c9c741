package bot

import (
	"fmt"
	"strings"

	"github.com/optibot/optibot/internal/quantity"
	"github.com/optibot/optibot/internal/recommend"
	"github.com/optibot/optibot/internal/usage"
	"github.com/optibot/optibot/internal/workflow"
)

// Block Kit builders. Everything here is pure presentation: maps marshaled
// straight into Slack payloads.

type block = map[string]interface{}

func plainText(s string) block {
	return block{"type": "plain_text", "text": s, "emoji": true}
}

func mrkdwnSection(s string) block {
	return block{
		"type": "section",
		"text": block{"type": "mrkdwn", "text": s},
	}
}

func textInput(blockID, actionID, label, initial string) block {
	element := block{
		"type":      "plain_text_input",
		"action_id": actionID,
	}
	if initial != "" {
		element["initial_value"] = initial
	}
	return block{
		"type":     "input",
		"block_id": blockID,
		"element":  element,
		"label":    plainText(label),
	}
}

// modificationModal is the resource entry form. The request id rides in
// private_metadata so the submission can resume the right workflow.
func modificationModal(req *workflow.ChangeRequest) block {
	return block{
		"type":             "modal",
		"callback_id":      callbackModificationModal,
		"private_metadata": req.ID,
		"notify_on_close":  true,
		"title":            plainText("Optimize Resources"),
		"submit":           plainText("Preview Changes"),
		"close":            plainText("Cancel"),
		"blocks": []interface{}{
			mrkdwnSection(fmt.Sprintf("Adjusting *%s*. Current values are pre-filled.", req.Workload)),
			block{"type": "divider"},
			textInput("cpu_request", "value", "CPU Request", req.Current.CPURequest.Raw),
			textInput("cpu_limit", "value", "CPU Limit", req.Current.CPULimit.Raw),
			textInput("memory_request", "value", "Memory Request", req.Current.MemoryRequest.Raw),
			textInput("memory_limit", "value", "Memory Limit", req.Current.MemoryLimit.Raw),
		},
	}
}

// confirmationModal shows the per-resource diff and the generated
// justification before anything touches the cluster.
func confirmationModal(req *workflow.ChangeRequest) block {
	var diff strings.Builder
	rows := []struct {
		label    string
		from, to quantity.Quantity
	}{
		{"CPU Request", req.Current.CPURequest, req.Proposed.CPURequest},
		{"CPU Limit", req.Current.CPULimit, req.Proposed.CPULimit},
		{"Memory Request", req.Current.MemoryRequest, req.Proposed.MemoryRequest},
		{"Memory Limit", req.Current.MemoryLimit, req.Proposed.MemoryLimit},
	}
	for _, r := range rows {
		diff.WriteString(fmt.Sprintf("*%s:* %s\n", r.label, quantity.PercentChange(r.from, r.to)))
	}

	return block{
		"type":             "modal",
		"callback_id":      callbackConfirmationModal,
		"private_metadata": req.ID,
		"notify_on_close":  true,
		"title":            plainText("Confirm Resource Changes"),
		"submit":           plainText("Apply Changes"),
		"close":            plainText("Cancel"),
		"blocks": []interface{}{
			mrkdwnSection(fmt.Sprintf("About to update *%s*:", req.Workload)),
			mrkdwnSection(diff.String()),
			block{"type": "divider"},
			mrkdwnSection("*Justification:*\n" + req.Justification),
		},
	}
}

// optimizeButton is the per-workload entry point rendered in messages.
func optimizeButton(ref workflow.WorkloadRef) block {
	return block{
		"type": "actions",
		"elements": []interface{}{
			block{
				"type":      "button",
				"action_id": actionOptimizeWorkload,
				"text":      plainText("Optimize Workload"),
				"style":     "primary",
				"value":     ref.String(),
			},
		},
	}
}

func usageBlocks(u usage.WorkloadUsage) []interface{} {
	body := fmt.Sprintf(
		"*Replicas reporting:* %d\n*CPU:* %dm used of %dm requested (%.0f%%)\n*Memory:* %s used of %s requested (%.0f%%)",
		u.Replicas,
		u.CPUUsageMilli, u.CPUReqMilli, u.CPUUtilizationPct(),
		humanBytes(u.MemUsageBytes), humanBytes(u.MemReqBytes), u.MemUtilizationPct(),
	)
	return []interface{}{
		block{"type": "header", "text": plainText(fmt.Sprintf("Resource Usage: %s", u.Workload))},
		mrkdwnSection(body),
		optimizeButton(u.Workload),
	}
}

func suggestionBlocks(candidates []recommend.Candidate) []interface{} {
	blocks := []interface{}{
		block{"type": "header", "text": plainText("Suggested Workloads for Optimization")},
	}
	if len(candidates) == 0 {
		blocks = append(blocks, mrkdwnSection("No optimization candidates right now."))
		return blocks
	}
	for _, c := range candidates {
		body := fmt.Sprintf("*%s* (priority %s)\n%s", c.Workload, c.Priority, c.Justification)
		if c.MonthlySavingsUSD > 0 {
			body += fmt.Sprintf("\nEstimated savings: $%.2f/month", c.MonthlySavingsUSD)
		}
		blocks = append(blocks,
			block{"type": "divider"},
			mrkdwnSection(body),
			optimizeButton(c.Workload),
		)
	}
	return blocks
}

// outcomeText is the single final message for a terminal workflow outcome:
// it states exactly which of patch, ticket, and notification succeeded.
func outcomeText(o workflow.Outcome) string {
	if !o.Applied {
		reason := ""
		if o.Err != nil {
			reason = ": " + o.Err.Error()
		}
		return fmt.Sprintf("❌ Resource change for %s was not applied%s. No ticket was created and no notification was sent.", o.Workload, reason)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "✅ Resources for %s updated.\n", o.Workload)
	if o.Ticket.Placeholder {
		fmt.Fprintf(&b, "⚠️ Ticketing was unavailable; recorded under local placeholder %s.\n", o.Ticket.Key)
	} else {
		fmt.Fprintf(&b, "Ticket created: %s\n", o.Ticket.Key)
	}
	if o.Notified {
		b.WriteString("Notification sent to the team channel.")
	} else {
		b.WriteString("⚠️ The team channel notification could not be delivered.")
	}
	return b.String()
}

func humanBytes(n int64) string {
	const mi = 1024 * 1024
	if n >= 1024*mi {
		return fmt.Sprintf("%.1fGi", float64(n)/(1024*float64(mi)))
	}
	return fmt.Sprintf("%dMi", n/mi)
}
