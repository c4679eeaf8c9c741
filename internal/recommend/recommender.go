// Package recommend lists workloads that are candidates for resource
// optimization. The source of candidates is an external collaborator; this
// package defines the boundary and a static source used when no external
// recommender is wired.
package recommend

import (
	"context"

	"github.com/optibot/optibot/internal/workflow"
)

// Candidate seeds a change request: the workload, its current and suggested
// resources, and why.
type Candidate struct {
	Workload          workflow.WorkloadRef
	Current           workflow.ProposalFields
	Recommended       workflow.ProposalFields
	Justification     string
	Priority          string // HIGH, MEDIUM, LOW
	MonthlySavingsUSD float64
}

// Source produces optimization candidates.
type Source interface {
	Candidates(ctx context.Context) ([]Candidate, error)
}

// StaticSource serves a fixed candidate list. Used as the default when no
// external recommender is configured, and in tests.
type StaticSource struct {
	Items []Candidate
}

// Candidates implements Source.
func (s *StaticSource) Candidates(ctx context.Context) ([]Candidate, error) {
	return s.Items, nil
}

// DefaultCandidates is the built-in sample set served by the default static
// source.
func DefaultCandidates() []Candidate {
	return []Candidate{
		{
			Workload: workflow.NewWorkloadRef("default", "frontend-service"),
			Current: workflow.ProposalFields{
				CPURequest: "500m", CPULimit: "1000m",
				MemoryRequest: "512Mi", MemoryLimit: "1Gi",
			},
			Recommended: workflow.ProposalFields{
				CPURequest: "250m", CPULimit: "500m",
				MemoryRequest: "256Mi", MemoryLimit: "512Mi",
			},
			Justification:     "Consistently using less than 50% of requested CPU and memory over the past 30 days.",
			Priority:          "HIGH",
			MonthlySavingsUSD: 42.50,
		},
		{
			Workload: workflow.NewWorkloadRef("backend", "api-service"),
			Current: workflow.ProposalFields{
				CPURequest: "1000m", CPULimit: "2000m",
				MemoryRequest: "1Gi", MemoryLimit: "2Gi",
			},
			Recommended: workflow.ProposalFields{
				CPURequest: "500m", CPULimit: "1000m",
				MemoryRequest: "512Mi", MemoryLimit: "1Gi",
			},
			Justification:     "Consistently using less than 30% of requested CPU and memory over the past 30 days.",
			Priority:          "MEDIUM",
			MonthlySavingsUSD: 85.00,
		},
		{
			Workload: workflow.NewWorkloadRef("monitoring", "prometheus"),
			Current: workflow.ProposalFields{
				CPURequest: "250m", CPULimit: "500m",
				MemoryRequest: "1Gi", MemoryLimit: "2Gi",
			},
			Recommended: workflow.ProposalFields{
				CPURequest: "250m", CPULimit: "500m",
				MemoryRequest: "2Gi", MemoryLimit: "3Gi",
			},
			Justification:     "Repeatedly hitting memory limits and restarting. Increase memory allocation.",
			Priority:          "HIGH",
			MonthlySavingsUSD: -30.00,
		},
	}
}
