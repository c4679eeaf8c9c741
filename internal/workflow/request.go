// Package workflow owns the lifecycle of a single resource-change request:
// initiation, proposal, confirmation, cluster mutation, ticketing, and
// notification. Each request is driven by discrete user events and suspends
// between them; state is held in an id-keyed store until the request reaches
// a terminal state or idles out.
package workflow

import (
	"fmt"
	"time"

	"github.com/optibot/optibot/internal/quantity"
)

// WorkloadRef identifies a target deployment.
type WorkloadRef struct {
	Namespace string
	Name      string
}

// NewWorkloadRef builds a ref, defaulting the namespace to "default" when
// the caller omitted it.
func NewWorkloadRef(namespace, name string) WorkloadRef {
	if namespace == "" {
		namespace = "default"
	}
	return WorkloadRef{Namespace: namespace, Name: name}
}

func (r WorkloadRef) String() string {
	return r.Namespace + "/" + r.Name
}

// ResourceSpec holds the four CPU/memory values of a workload's first
// container. Built once per proposal; never mutated.
type ResourceSpec struct {
	CPURequest    quantity.Quantity
	CPULimit      quantity.Quantity
	MemoryRequest quantity.Quantity
	MemoryLimit   quantity.Quantity
}

// ChangeState is the lifecycle state of a ChangeRequest.
type ChangeState string

const (
	StateInitiated            ChangeState = "initiated"
	StateAwaitingProposal     ChangeState = "awaiting-proposal"
	StateProposalReady        ChangeState = "proposal-ready"
	StateAwaitingConfirmation ChangeState = "awaiting-confirmation"
	StateApplying             ChangeState = "applying"
	StateCompleted            ChangeState = "completed"
	StateCancelled            ChangeState = "cancelled"
	StateFailed               ChangeState = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s ChangeState) Terminal() bool {
	switch s {
	case StateCompleted, StateCancelled, StateFailed:
		return true
	}
	return false
}

// FailureStage names the step a failed request died at. Ticket and
// notification failures never fail a request (the change was applied), so
// only fetch and apply appear on terminal requests.
type FailureStage string

const (
	StageFetch  FailureStage = "fetch"
	StageApply  FailureStage = "apply"
	StageTicket FailureStage = "ticket"
)

// TicketRef identifies the audit ticket recorded for a change. Placeholder
// is set when the ticketing backend was unavailable and a locally
// synthesized key was used instead.
type TicketRef struct {
	Key         string
	URL         string
	Placeholder bool
}

// ChangeRequest tracks one user-driven optimization attempt. It is owned
// exclusively by the orchestrator; callers receive snapshots via Clone.
type ChangeRequest struct {
	ID             string
	Workload       WorkloadRef
	Current        ResourceSpec
	Proposed       ResourceSpec
	HasProposal    bool
	Justification  string
	State          ChangeState
	FailedAt       FailureStage
	InitiatingUser string
	Channel        string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Clone returns a copy safe to hand outside the store's lock.
func (c *ChangeRequest) Clone() *ChangeRequest {
	cp := *c
	return &cp
}

// ProposalFields is the raw user-entered target, prior to validation.
type ProposalFields struct {
	CPURequest    string
	CPULimit      string
	MemoryRequest string
	MemoryLimit   string
}

// FieldErrors maps form field names to validation messages. It is returned
// as an error so callers can re-prompt with per-field feedback.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	return fmt.Sprintf("%d invalid field(s)", len(e))
}

// Outcome is the single terminal report for a request: exactly which of
// {patch applied, ticket created, notification sent} happened.
type Outcome struct {
	RequestID string
	Workload  WorkloadRef
	Applied   bool
	Ticket    TicketRef
	Notified  bool
	FailedAt  FailureStage
	Err       error
}
