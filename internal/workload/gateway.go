// Package workload adapts the cluster API for the change workflow: reading
// and patching the first container's resource block of a deployment.
package workload

import (
	"context"
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/optibot/optibot/internal/quantity"
	"github.com/optibot/optibot/internal/workflow"
)

// Gateway implements workflow.WorkloadGateway against a live cluster.
type Gateway struct {
	client client.Client
}

// NewGateway creates a Gateway backed by the given cluster client.
func NewGateway(c client.Client) *Gateway {
	return &Gateway{client: c}
}

// FetchCurrent reads the first container's resource block. Absent request or
// limit fields become declared zero quantities: the deployment genuinely has
// no value set, which is different from a parse failure.
func (g *Gateway) FetchCurrent(ctx context.Context, ref workflow.WorkloadRef) (workflow.ResourceSpec, error) {
	deploy := &appsv1.Deployment{}
	if err := g.client.Get(ctx, types.NamespacedName{Namespace: ref.Namespace, Name: ref.Name}, deploy); err != nil {
		return workflow.ResourceSpec{}, mapAPIError(ref, err)
	}

	containers := deploy.Spec.Template.Spec.Containers
	if len(containers) == 0 {
		return workflow.ResourceSpec{}, fmt.Errorf("deployment %s has no containers: %w", ref, workflow.ErrNotFound)
	}
	res := containers[0].Resources

	spec := workflow.ResourceSpec{
		CPURequest:    fromResourceList(res.Requests, corev1.ResourceCPU, quantity.ClassCPU),
		CPULimit:      fromResourceList(res.Limits, corev1.ResourceCPU, quantity.ClassCPU),
		MemoryRequest: fromResourceList(res.Requests, corev1.ResourceMemory, quantity.ClassMemory),
		MemoryLimit:   fromResourceList(res.Limits, corev1.ResourceMemory, quantity.ClassMemory),
	}
	return spec, nil
}

// ApplyPatch performs a read-modify-write update of the first container's
// resources. Reapplying the same target spec is a no-op on the cluster side.
// A concurrent modification surfaces as workflow.ErrConflict so the caller
// can retry once.
func (g *Gateway) ApplyPatch(ctx context.Context, ref workflow.WorkloadRef, spec workflow.ResourceSpec) error {
	logger := log.FromContext(ctx).WithName("workload-gateway")

	deploy := &appsv1.Deployment{}
	if err := g.client.Get(ctx, types.NamespacedName{Namespace: ref.Namespace, Name: ref.Name}, deploy); err != nil {
		return mapAPIError(ref, err)
	}
	if len(deploy.Spec.Template.Spec.Containers) == 0 {
		return fmt.Errorf("deployment %s has no containers: %w", ref, workflow.ErrNotFound)
	}

	requests, err := toResourceList(spec.CPURequest, spec.MemoryRequest)
	if err != nil {
		return fmt.Errorf("building requests for %s: %w", ref, err)
	}
	limits, err := toResourceList(spec.CPULimit, spec.MemoryLimit)
	if err != nil {
		return fmt.Errorf("building limits for %s: %w", ref, err)
	}

	container := &deploy.Spec.Template.Spec.Containers[0]
	container.Resources.Requests = requests
	container.Resources.Limits = limits

	if err := g.client.Update(ctx, deploy); err != nil {
		return mapAPIError(ref, err)
	}

	logger.Info("Updated workload resources",
		"workload", ref.String(),
		"container", container.Name,
		"cpuRequest", spec.CPURequest.Raw,
		"cpuLimit", spec.CPULimit.Raw,
		"memoryRequest", spec.MemoryRequest.Raw,
		"memoryLimit", spec.MemoryLimit.Raw,
	)
	return nil
}

// fromResourceList extracts one value from a resource list, defaulting to a
// declared zero of the right class when the field is absent.
func fromResourceList(list corev1.ResourceList, name corev1.ResourceName, class quantity.Class) quantity.Quantity {
	if list == nil {
		return quantity.Zero(class)
	}
	q, ok := list[name]
	if !ok {
		return quantity.Zero(class)
	}
	parsed, err := quantity.Parse(q.String())
	if err != nil {
		// The API server canonicalizes quantities into forms our codec may
		// not recognize (e.g. "1G", "500e6"). Fall back to the apimachinery
		// value rather than inventing a zero.
		switch class {
		case quantity.ClassCPU:
			return quantity.Quantity{Raw: q.String(), Class: class, Value: float64(q.MilliValue()) / 1000}
		default:
			return quantity.Quantity{Raw: q.String(), Class: class, Value: float64(q.Value()) / (1024 * 1024)}
		}
	}
	return parsed
}

// toResourceList converts codec quantities back to apimachinery quantities
// for the patch body.
func toResourceList(cpu, mem quantity.Quantity) (corev1.ResourceList, error) {
	cpuQty, err := resource.ParseQuantity(cpu.Raw)
	if err != nil {
		return nil, fmt.Errorf("cpu %q: %w", cpu.Raw, err)
	}
	memQty, err := resource.ParseQuantity(mem.Raw)
	if err != nil {
		return nil, fmt.Errorf("memory %q: %w", mem.Raw, err)
	}
	return corev1.ResourceList{
		corev1.ResourceCPU:    cpuQty,
		corev1.ResourceMemory: memQty,
	}, nil
}

// mapAPIError folds cluster API errors onto the workflow taxonomy.
func mapAPIError(ref workflow.WorkloadRef, err error) error {
	switch {
	case apierrors.IsNotFound(err):
		return fmt.Errorf("deployment %s: %w", ref, workflow.ErrNotFound)
	case apierrors.IsConflict(err):
		return fmt.Errorf("deployment %s: %w", ref, workflow.ErrConflict)
	default:
		return fmt.Errorf("deployment %s: %v: %w", ref, err, workflow.ErrUnavailable)
	}
}
