package workflow

import (
	"context"
	"errors"
	"fmt"

	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/optibot/optibot/internal/metrics"
	"github.com/optibot/optibot/internal/quantity"
)

// WorkloadGateway reads and patches a workload's container resources.
type WorkloadGateway interface {
	FetchCurrent(ctx context.Context, ref WorkloadRef) (ResourceSpec, error)
	ApplyPatch(ctx context.Context, ref WorkloadRef, spec ResourceSpec) error
}

// Justifier produces descriptive text for a proposed change. It never fails:
// implementations fall back to a deterministic template instead.
type Justifier interface {
	Generate(ctx context.Context, ref WorkloadRef, current, proposed ResourceSpec) string
}

// TicketIssuer records an audit ticket for an applied change. It never
// fails: implementations degrade to a locally synthesized placeholder ref.
type TicketIssuer interface {
	CreateTicket(ctx context.Context, ref WorkloadRef, proposed ResourceSpec, justification, initiator string) TicketRef
}

// Notifier broadcasts a completed change to a channel. Best-effort; the
// returned error is logged and counted, never propagated into request state.
type Notifier interface {
	Announce(ctx context.Context, channel string, ref WorkloadRef, justification string, ticket TicketRef) error
}

// Recorder persists terminal outcomes for audit queries. Optional.
type Recorder interface {
	RecordOutcome(o Outcome, user string)
}

// Orchestrator sequences the change workflow across its collaborators. All
// external systems are injected so tests can substitute fakes.
type Orchestrator struct {
	gateway   WorkloadGateway
	justifier Justifier
	tickets   TicketIssuer
	notifier  Notifier
	recorder  Recorder // may be nil
	requests  *RequestStore
}

// New creates an orchestrator. recorder may be nil.
func New(store *RequestStore, gw WorkloadGateway, j Justifier, t TicketIssuer, n Notifier, rec Recorder) *Orchestrator {
	return &Orchestrator{
		gateway:   gw,
		justifier: j,
		tickets:   t,
		notifier:  n,
		recorder:  rec,
		requests:  store,
	}
}

// Requests exposes the underlying store for lifecycle management (sweeper).
func (o *Orchestrator) Requests() *RequestStore { return o.requests }

// Begin starts a change request for the given workload: it fetches the
// current resources and leaves the request awaiting the user's proposal.
// On fetch failure the request is terminal immediately and the raw reason
// is returned for the user.
func (o *Orchestrator) Begin(ctx context.Context, user, channel string, ref WorkloadRef) (*ChangeRequest, error) {
	logger := log.FromContext(ctx).WithName("workflow")

	req := o.requests.Create(user, channel, ref)
	logger.Info("Change request initiated", "id", req.ID, "workload", ref.String(), "user", user)

	current, err := o.gateway.FetchCurrent(ctx, ref)
	if err != nil {
		o.failAndRemove(req.ID, StageFetch, err)
		o.record(Outcome{RequestID: req.ID, Workload: ref, FailedAt: StageFetch, Err: err}, user)
		return nil, fmt.Errorf("fetching current resources for %s: %w", ref, err)
	}

	return o.requests.Update(req.ID, func(r *ChangeRequest) error {
		r.Current = current
		r.State = StateAwaitingProposal
		return nil
	})
}

// SubmitProposal validates the user-entered target values and, when they
// all parse, attaches the proposal, generates a justification, and moves
// the request to awaiting-confirmation. Invalid entries reject the
// transition: the request stays awaiting-proposal and the returned error is
// a FieldErrors with per-field messages. No external call is made for an
// invalid proposal.
func (o *Orchestrator) SubmitProposal(ctx context.Context, id string, fields ProposalFields) (*ChangeRequest, error) {
	req, err := o.requests.Get(id)
	if err != nil {
		return nil, err
	}
	if req.State != StateAwaitingProposal {
		return nil, fmt.Errorf("%w: request %s is %s, want %s", ErrInvalidTransition, id, req.State, StateAwaitingProposal)
	}

	proposed, fieldErrs := parseProposal(fields)
	if len(fieldErrs) > 0 {
		return nil, fieldErrs
	}

	req, err = o.requests.Update(id, func(r *ChangeRequest) error {
		if r.State != StateAwaitingProposal {
			return fmt.Errorf("%w: request %s is %s", ErrInvalidTransition, id, r.State)
		}
		r.Proposed = proposed
		r.HasProposal = true
		r.State = StateProposalReady
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Generation is degraded-success by contract: it always returns text.
	justification := o.justifier.Generate(ctx, req.Workload, req.Current, proposed)

	return o.requests.Update(id, func(r *ChangeRequest) error {
		r.Justification = justification
		r.State = StateAwaitingConfirmation
		return nil
	})
}

// Confirm applies the confirmed proposal. The patch must complete (success
// or defined failure) strictly before any ticket or notification attempt,
// so the audit trail never describes a change that was not applied. On
// patch success the workflow proceeds unconditionally through ticketing
// (degraded-success) and announcement (best-effort) to completion.
func (o *Orchestrator) Confirm(ctx context.Context, id string) (Outcome, error) {
	logger := log.FromContext(ctx).WithName("workflow")

	req, err := o.requests.Update(id, func(r *ChangeRequest) error {
		if r.State != StateAwaitingConfirmation {
			return fmt.Errorf("%w: request %s is %s, want %s", ErrInvalidTransition, id, r.State, StateAwaitingConfirmation)
		}
		r.State = StateApplying
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}

	outcome := Outcome{RequestID: req.ID, Workload: req.Workload}

	if err := o.applyWithRetry(ctx, req); err != nil {
		outcome.FailedAt = StageApply
		outcome.Err = err
		o.failAndRemove(req.ID, StageApply, err)
		logger.Error(err, "Resource patch failed", "id", req.ID, "workload", req.Workload.String())
		o.record(outcome, req.InitiatingUser)
		return outcome, nil
	}
	outcome.Applied = true
	metrics.ChangesApplied.Inc()
	logger.Info("Resource patch applied", "id", req.ID, "workload", req.Workload.String())

	outcome.Ticket = o.tickets.CreateTicket(ctx, req.Workload, req.Proposed, req.Justification, req.InitiatingUser)
	if outcome.Ticket.Placeholder {
		metrics.TicketsCreated.WithLabelValues("placeholder").Inc()
		logger.Info("Ticketing degraded to placeholder", "id", req.ID, "ticket", outcome.Ticket.Key)
	} else {
		metrics.TicketsCreated.WithLabelValues("real").Inc()
	}

	if err := o.notifier.Announce(ctx, req.Channel, req.Workload, req.Justification, outcome.Ticket); err != nil {
		metrics.NotificationsFailed.Inc()
		logger.Error(err, "Channel announcement failed", "id", req.ID)
	} else {
		outcome.Notified = true
	}

	o.requests.Update(req.ID, func(r *ChangeRequest) error {
		r.State = StateCompleted
		return nil
	})
	o.requests.Remove(req.ID)
	o.record(outcome, req.InitiatingUser)
	return outcome, nil
}

// Cancel discards the request. Only pre-apply states can be cancelled; once
// applying, the patch runs to completion or defined failure.
func (o *Orchestrator) Cancel(id string) error {
	req, err := o.requests.Get(id)
	if err != nil {
		return err
	}
	if req.State == StateApplying || req.State.Terminal() {
		return fmt.Errorf("%w: cannot cancel request in state %s", ErrInvalidTransition, req.State)
	}

	o.requests.Update(id, func(r *ChangeRequest) error {
		r.State = StateCancelled
		return nil
	})
	o.requests.Remove(id)
	metrics.ChangesCancelled.Inc()
	ctrl.Log.WithName("workflow").Info("Change request cancelled", "id", id, "workload", req.Workload.String())
	return nil
}

// Get returns a snapshot of an in-flight request.
func (o *Orchestrator) Get(id string) (*ChangeRequest, error) {
	return o.requests.Get(id)
}

// applyWithRetry patches the workload, retrying exactly once on a conflict
// by re-fetching and re-applying the same target spec. The patch is
// idempotent on the cluster side, so the retry is safe.
func (o *Orchestrator) applyWithRetry(ctx context.Context, req *ChangeRequest) error {
	err := o.gateway.ApplyPatch(ctx, req.Workload, req.Proposed)
	if err == nil || !errors.Is(err, ErrConflict) {
		return err
	}

	metrics.ApplyConflictRetries.Inc()
	if _, ferr := o.gateway.FetchCurrent(ctx, req.Workload); ferr != nil {
		return fmt.Errorf("re-fetching after conflict: %w", ferr)
	}
	return o.gateway.ApplyPatch(ctx, req.Workload, req.Proposed)
}

func (o *Orchestrator) failAndRemove(id string, stage FailureStage, cause error) {
	o.requests.Update(id, func(r *ChangeRequest) error {
		r.State = StateFailed
		r.FailedAt = stage
		return nil
	})
	o.requests.Remove(id)
	metrics.ChangesFailed.WithLabelValues(string(stage)).Inc()
}

func (o *Orchestrator) record(out Outcome, user string) {
	if o.recorder != nil {
		o.recorder.RecordOutcome(out, user)
	}
}

// parseProposal validates all four quantities, collecting field-level errors
// so the user can correct every invalid entry in one pass.
func parseProposal(fields ProposalFields) (ResourceSpec, FieldErrors) {
	fieldErrs := FieldErrors{}
	spec := ResourceSpec{}

	parse := func(field, value string, want quantity.Class) quantity.Quantity {
		q, err := quantity.Parse(value)
		if err != nil {
			fieldErrs[field] = err.Error()
			return quantity.Quantity{}
		}
		// A bare numeric is acceptable in either position; a suffixed value
		// must match the resource it was entered for.
		if q.Class != quantity.ClassBare && q.Class != want {
			fieldErrs[field] = fmt.Sprintf("%s is a %s quantity, expected %s", value, q.Class, want)
			return quantity.Quantity{}
		}
		return q
	}

	spec.CPURequest = parse("cpu_request", fields.CPURequest, quantity.ClassCPU)
	spec.CPULimit = parse("cpu_limit", fields.CPULimit, quantity.ClassCPU)
	spec.MemoryRequest = parse("memory_request", fields.MemoryRequest, quantity.ClassMemory)
	spec.MemoryLimit = parse("memory_limit", fields.MemoryLimit, quantity.ClassMemory)

	if len(fieldErrs) > 0 {
		return ResourceSpec{}, fieldErrs
	}
	return spec, nil
}
