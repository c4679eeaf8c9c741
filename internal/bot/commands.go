package bot

import (
	"context"
	"net/http"
	"strings"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/optibot/optibot/internal/notify"
	"github.com/optibot/optibot/internal/workflow"
)

// Slash command names.
const (
	cmdOptimizeResources = "/optimize-resources"
	cmdResourceUsage     = "/resource-usage"
	cmdSuggestWorkloads  = "/suggest-workloads"
)

// slashCommand is the form payload Slack posts for a slash command.
type slashCommand struct {
	Command   string
	Text      string
	UserID    string
	ChannelID string
	TriggerID string
}

func parseSlashCommand(r *http.Request) slashCommand {
	return slashCommand{
		Command:   r.PostFormValue("command"),
		Text:      strings.TrimSpace(r.PostFormValue("text")),
		UserID:    r.PostFormValue("user_id"),
		ChannelID: r.PostFormValue("channel_id"),
		TriggerID: r.PostFormValue("trigger_id"),
	}
}

// HandleCommand dispatches a slash command. The HTTP response is the
// acknowledgment; it goes out as soon as the handler returns, independent
// of workflow progress.
func (h *Handlers) HandleCommand(w http.ResponseWriter, r *http.Request) {
	cmd := parseSlashCommand(r)
	logger := log.FromContext(r.Context()).WithName("bot").WithValues("command", cmd.Command, "user", cmd.UserID)

	switch cmd.Command {
	case cmdOptimizeResources:
		h.handleOptimizeResources(r.Context(), w, cmd)
	case cmdResourceUsage:
		h.handleResourceUsage(r.Context(), w, cmd)
	case cmdSuggestWorkloads:
		h.handleSuggestWorkloads(r.Context(), w, cmd)
	default:
		logger.Info("Unknown slash command")
		ackText(w, "Unknown command.")
	}
}

// handleOptimizeResources starts the change workflow. With a recognizable
// workload in the text the modification modal opens immediately; otherwise
// the user gets usage instructions.
func (h *Handlers) handleOptimizeResources(ctx context.Context, w http.ResponseWriter, cmd slashCommand) {
	logger := log.FromContext(ctx).WithName("bot")

	ref, ok := h.resolveWorkload(ctx, cmd.Text)
	if !ok {
		ackText(w, "Tell me which workload to optimize, e.g. `/optimize-resources reduce memory for default/frontend-service`.")
		return
	}

	req, err := h.orchestrator.Begin(ctx, cmd.UserID, cmd.ChannelID, ref)
	if err != nil {
		logger.Error(err, "Starting change request failed", "workload", ref.String())
		ackText(w, "Could not read "+ref.String()+": "+err.Error())
		return
	}

	if err := h.slack.OpenView(ctx, cmd.TriggerID, modificationModal(req)); err != nil {
		logger.Error(err, "Opening modification modal failed", "id", req.ID)
		h.orchestrator.Cancel(req.ID)
		ackText(w, "Could not open the resource form, please retry.")
		return
	}
	ack(w)
}

func (h *Handlers) handleResourceUsage(ctx context.Context, w http.ResponseWriter, cmd slashCommand) {
	logger := log.FromContext(ctx).WithName("bot")

	if cmd.Text == "" {
		ackText(w, "Usage: `/resource-usage [namespace/]deployment-name`")
		return
	}
	ref := parseWorkloadArg(cmd.Text)

	u, err := h.usage.GetWorkloadUsage(ctx, ref)
	if err != nil {
		logger.Error(err, "Reading workload usage failed", "workload", ref.String())
		ackText(w, "Could not read usage for "+ref.String()+": "+err.Error())
		return
	}

	ack(w)
	if err := h.slack.PostMessage(ctx, notify.Message{
		Channel: cmd.ChannelID,
		Text:    "Resource usage for " + ref.String(),
		Blocks:  usageBlocks(u),
	}); err != nil {
		logger.Error(err, "Posting usage report failed", "workload", ref.String())
	}
}

func (h *Handlers) handleSuggestWorkloads(ctx context.Context, w http.ResponseWriter, cmd slashCommand) {
	logger := log.FromContext(ctx).WithName("bot")

	candidates, err := h.source.Candidates(ctx)
	if err != nil {
		logger.Error(err, "Listing optimization candidates failed")
		ackText(w, "Could not fetch optimization candidates: "+err.Error())
		return
	}

	ack(w)
	if err := h.slack.PostMessage(ctx, notify.Message{
		Channel: cmd.ChannelID,
		Text:    "Suggested workloads for optimization",
		Blocks:  suggestionBlocks(candidates),
	}); err != nil {
		logger.Error(err, "Posting suggestions failed")
	}
}

// resolveWorkload pulls a workload reference out of free-form command text,
// via NLU first and a plain "namespace/name" argument as a shortcut.
func (h *Handlers) resolveWorkload(ctx context.Context, text string) (workflow.WorkloadRef, bool) {
	if text == "" {
		return workflow.WorkloadRef{}, false
	}

	// A bare "ns/name" or "name" argument needs no language model.
	if !strings.Contains(text, " ") {
		return parseWorkloadArg(text), true
	}

	_, entities := h.nlu.Extract(ctx, text)
	if entities.Workload == "" {
		return workflow.WorkloadRef{}, false
	}
	return workflow.NewWorkloadRef(entities.Namespace, entities.Workload), true
}

// parseWorkloadArg splits "[namespace/]name", defaulting the namespace.
func parseWorkloadArg(arg string) workflow.WorkloadRef {
	if ns, name, ok := strings.Cut(arg, "/"); ok {
		return workflow.NewWorkloadRef(ns, name)
	}
	return workflow.NewWorkloadRef("", arg)
}

// ack sends the empty 200 acknowledgment Slack expects within its deadline.
func ack(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
}

// ackText acknowledges with an ephemeral text reply to the invoking user.
func ackText(w http.ResponseWriter, text string) {
	writeJSON(w, http.StatusOK, map[string]string{
		"response_type": "ephemeral",
		"text":          text,
	})
}
