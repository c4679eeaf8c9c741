package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/optibot/optibot/internal/notify"
	"github.com/optibot/optibot/internal/workflow"
)

// Interaction identifiers.
const (
	actionOptimizeWorkload    = "optimize_workload_btn"
	callbackModificationModal = "resource_modification_modal"
	callbackConfirmationModal = "confirmation_modal"
)

// interactionPayload is the subset of Slack's interaction JSON the bot
// needs. Block actions, view submissions, and view closes all share it.
type interactionPayload struct {
	Type      string `json:"type"`
	TriggerID string `json:"trigger_id"`
	User      struct {
		ID string `json:"id"`
	} `json:"user"`
	Channel struct {
		ID string `json:"id"`
	} `json:"channel"`
	Actions []struct {
		ActionID string `json:"action_id"`
		Value    string `json:"value"`
	} `json:"actions"`
	View struct {
		CallbackID      string `json:"callback_id"`
		PrivateMetadata string `json:"private_metadata"`
		State           struct {
			Values map[string]map[string]struct {
				Value string `json:"value"`
			} `json:"values"`
		} `json:"state"`
	} `json:"view"`
}

// fieldValue pulls one input value out of the modal state.
func (p *interactionPayload) fieldValue(blockID string) string {
	if actions, ok := p.View.State.Values[blockID]; ok {
		for _, v := range actions {
			return v.Value
		}
	}
	return ""
}

// HandleInteraction dispatches button clicks, modal submissions, and modal
// closes. Responses double as the acknowledgment.
func (h *Handlers) HandleInteraction(w http.ResponseWriter, r *http.Request) {
	logger := log.FromContext(r.Context()).WithName("bot")

	var payload interactionPayload
	if err := json.Unmarshal([]byte(r.PostFormValue("payload")), &payload); err != nil {
		logger.Error(err, "Unparsable interaction payload")
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}

	switch payload.Type {
	case "block_actions":
		h.handleBlockAction(r.Context(), w, &payload)
	case "view_submission":
		h.handleViewSubmission(r.Context(), w, &payload)
	case "view_closed":
		h.handleViewClosed(r.Context(), w, &payload)
	default:
		ack(w)
	}
}

func (h *Handlers) handleBlockAction(ctx context.Context, w http.ResponseWriter, p *interactionPayload) {
	logger := log.FromContext(ctx).WithName("bot")
	if len(p.Actions) == 0 {
		ack(w)
		return
	}

	action := p.Actions[0]
	switch action.ActionID {
	case actionOptimizeWorkload:
		ref := parseWorkloadArg(action.Value)
		req, err := h.orchestrator.Begin(ctx, p.User.ID, p.Channel.ID, ref)
		if err != nil {
			logger.Error(err, "Starting change request from button failed", "workload", ref.String())
			ack(w)
			h.ephemeral(ctx, p.Channel.ID, p.User.ID, "Could not read "+ref.String()+": "+err.Error())
			return
		}
		if err := h.slack.OpenView(ctx, p.TriggerID, modificationModal(req)); err != nil {
			logger.Error(err, "Opening modification modal failed", "id", req.ID)
			h.orchestrator.Cancel(req.ID)
			h.ephemeral(ctx, p.Channel.ID, p.User.ID, "Could not open the resource form, please retry.")
		}
		ack(w)
	default:
		ack(w)
	}
}

func (h *Handlers) handleViewSubmission(ctx context.Context, w http.ResponseWriter, p *interactionPayload) {
	switch p.View.CallbackID {
	case callbackModificationModal:
		h.handleProposalSubmission(ctx, w, p)
	case callbackConfirmationModal:
		h.handleConfirmationSubmission(ctx, w, p)
	default:
		ack(w)
	}
}

// handleProposalSubmission validates the entered values. Invalid fields come
// back as modal errors and the request stays awaiting the proposal; valid
// ones advance the workflow and swap the modal for the confirmation view.
func (h *Handlers) handleProposalSubmission(ctx context.Context, w http.ResponseWriter, p *interactionPayload) {
	logger := log.FromContext(ctx).WithName("bot")
	id := p.View.PrivateMetadata

	fields := workflow.ProposalFields{
		CPURequest:    p.fieldValue("cpu_request"),
		CPULimit:      p.fieldValue("cpu_limit"),
		MemoryRequest: p.fieldValue("memory_request"),
		MemoryLimit:   p.fieldValue("memory_limit"),
	}

	req, err := h.orchestrator.SubmitProposal(ctx, id, fields)
	if err != nil {
		var fieldErrs workflow.FieldErrors
		if errors.As(err, &fieldErrs) {
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"response_action": "errors",
				"errors":          fieldErrs,
			})
			return
		}
		logger.Error(err, "Proposal submission failed", "id", id)
		writeJSON(w, http.StatusOK, map[string]interface{}{"response_action": "clear"})
		h.dm(ctx, p.User.ID, "That optimization request is no longer active, please start over.")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"response_action": "update",
		"view":            confirmationModal(req),
	})
}

// handleConfirmationSubmission applies the change. The modal is cleared
// immediately; the terminal outcome arrives as a direct message once the
// patch, ticketing, and announcement have run.
func (h *Handlers) handleConfirmationSubmission(ctx context.Context, w http.ResponseWriter, p *interactionPayload) {
	logger := log.FromContext(ctx).WithName("bot")
	id := p.View.PrivateMetadata
	user := p.User.ID

	writeJSON(w, http.StatusOK, map[string]interface{}{"response_action": "clear"})

	// The acknowledgment above must not wait on cluster and ticketing
	// calls; the apply runs detached from the HTTP request's lifetime.
	go func() {
		ctx := log.IntoContext(context.Background(), logger)
		// No chi Recoverer covers this goroutine; a collaborator panic must
		// not take down the process.
		defer func() {
			if r := recover(); r != nil {
				logger.Error(fmt.Errorf("panic: %v", r), "Confirmation goroutine panicked", "id", id)
				h.dm(ctx, user, "Something went wrong while applying that change, please check the workload and start over.")
			}
		}()
		outcome, err := h.orchestrator.Confirm(ctx, id)
		if err != nil {
			logger.Error(err, "Confirmation failed", "id", id)
			h.dm(ctx, user, "That optimization request is no longer active, please start over.")
			return
		}
		h.dm(ctx, user, outcomeText(outcome))
	}()
}

// handleViewClosed cancels the in-flight request behind a dismissed modal.
// Cancellation before applying has no external effects.
func (h *Handlers) handleViewClosed(ctx context.Context, w http.ResponseWriter, p *interactionPayload) {
	logger := log.FromContext(ctx).WithName("bot")
	id := p.View.PrivateMetadata
	if id != "" {
		if err := h.orchestrator.Cancel(id); err != nil && !errors.Is(err, workflow.ErrUnknownRequest) {
			logger.Info("Modal close did not cancel request", "id", id, "reason", err.Error())
		}
	}
	ack(w)
}

func (h *Handlers) ephemeral(ctx context.Context, channel, user, text string) {
	if err := h.slack.PostEphemeral(ctx, notify.Message{Channel: channel, User: user, Text: text}); err != nil {
		log.FromContext(ctx).WithName("bot").Error(err, "Posting ephemeral message failed")
	}
}

// dm sends a direct message to a user (Slack opens the IM channel when the
// channel id is a user id).
func (h *Handlers) dm(ctx context.Context, user, text string) {
	if err := h.slack.PostMessage(ctx, notify.Message{Channel: user, Text: text}); err != nil {
		log.FromContext(ctx).WithName("bot").Error(err, "Posting direct message failed", "user", user)
	}
}
