// Package usage reads live CPU/memory consumption for a workload from the
// Kubernetes Metrics API and relates it to the configured requests.
package usage

import (
	"context"
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	"k8s.io/apimachinery/pkg/types"
	metricsv1beta1 "k8s.io/metrics/pkg/apis/metrics/v1beta1"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/optibot/optibot/internal/workflow"
)

// WorkloadUsage aggregates live usage across a workload's pods.
type WorkloadUsage struct {
	Workload      workflow.WorkloadRef
	Replicas      int
	CPUUsageMilli int64
	MemUsageBytes int64
	CPUReqMilli   int64
	MemReqBytes   int64
}

// CPUUtilizationPct is usage over request, or zero when no request is set.
func (u WorkloadUsage) CPUUtilizationPct() float64 {
	if u.CPUReqMilli == 0 {
		return 0
	}
	return float64(u.CPUUsageMilli) / float64(u.CPUReqMilli) * 100
}

// MemUtilizationPct is usage over request, or zero when no request is set.
func (u WorkloadUsage) MemUtilizationPct() float64 {
	if u.MemReqBytes == 0 {
		return 0
	}
	return float64(u.MemUsageBytes) / float64(u.MemReqBytes) * 100
}

// Reader fetches workload usage.
type Reader struct {
	client client.Client
}

// NewReader creates a Reader.
func NewReader(c client.Client) *Reader {
	return &Reader{client: c}
}

// GetWorkloadUsage sums container usage across the pods selected by the
// deployment's label selector and the per-replica requests of its first
// container.
func (r *Reader) GetWorkloadUsage(ctx context.Context, ref workflow.WorkloadRef) (WorkloadUsage, error) {
	deploy := &appsv1.Deployment{}
	if err := r.client.Get(ctx, types.NamespacedName{Namespace: ref.Namespace, Name: ref.Name}, deploy); err != nil {
		return WorkloadUsage{}, fmt.Errorf("getting deployment %s: %w", ref, err)
	}
	if deploy.Spec.Selector == nil {
		return WorkloadUsage{}, fmt.Errorf("deployment %s has no selector", ref)
	}

	usage := WorkloadUsage{Workload: ref}
	if containers := deploy.Spec.Template.Spec.Containers; len(containers) > 0 {
		res := containers[0].Resources.Requests
		replicas := int64(1)
		if deploy.Spec.Replicas != nil {
			replicas = int64(*deploy.Spec.Replicas)
		}
		usage.CPUReqMilli = res.Cpu().MilliValue() * replicas
		usage.MemReqBytes = res.Memory().Value() * replicas
	}

	metricsList := &metricsv1beta1.PodMetricsList{}
	if err := r.client.List(ctx, metricsList,
		client.InNamespace(ref.Namespace),
		client.MatchingLabels(deploy.Spec.Selector.MatchLabels),
	); err != nil {
		return WorkloadUsage{}, fmt.Errorf("listing pod metrics for %s: %w", ref, err)
	}

	for _, m := range metricsList.Items {
		usage.Replicas++
		for _, c := range m.Containers {
			usage.CPUUsageMilli += c.Usage.Cpu().MilliValue()
			usage.MemUsageBytes += c.Usage.Memory().Value()
		}
	}
	return usage, nil
}
