package workload

import (
	"context"
	"errors"
	"testing"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	"github.com/optibot/optibot/internal/quantity"
	"github.com/optibot/optibot/internal/workflow"
)

func testScheme(t *testing.T) *runtime.Scheme {
	t.Helper()
	scheme := runtime.NewScheme()
	if err := clientgoscheme.AddToScheme(scheme); err != nil {
		t.Fatalf("building scheme: %v", err)
	}
	return scheme
}

func testDeployment(resources corev1.ResourceRequirements) *appsv1.Deployment {
	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Namespace: "default",
			Name:      "frontend-service",
		},
		Spec: appsv1.DeploymentSpec{
			Template: corev1.PodTemplateSpec{
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{
						{Name: "app", Resources: resources},
					},
				},
			},
		},
	}
}

func TestFetchCurrent(t *testing.T) {
	deploy := testDeployment(corev1.ResourceRequirements{
		Requests: corev1.ResourceList{
			corev1.ResourceCPU:    resource.MustParse("500m"),
			corev1.ResourceMemory: resource.MustParse("512Mi"),
		},
		Limits: corev1.ResourceList{
			corev1.ResourceCPU:    resource.MustParse("1000m"),
			corev1.ResourceMemory: resource.MustParse("1Gi"),
		},
	})
	c := fake.NewClientBuilder().WithScheme(testScheme(t)).WithObjects(deploy).Build()
	g := NewGateway(c)

	spec, err := g.FetchCurrent(context.Background(), workflow.NewWorkloadRef("default", "frontend-service"))
	if err != nil {
		t.Fatalf("FetchCurrent() unexpected error: %v", err)
	}

	if spec.CPURequest.Value != 0.5 {
		t.Errorf("CPURequest.Value = %v, want 0.5", spec.CPURequest.Value)
	}
	if spec.CPULimit.Value != 1 {
		t.Errorf("CPULimit.Value = %v, want 1", spec.CPULimit.Value)
	}
	if spec.MemoryRequest.Value != 512 {
		t.Errorf("MemoryRequest.Value = %v, want 512", spec.MemoryRequest.Value)
	}
	if spec.MemoryLimit.Value != 1024 {
		t.Errorf("MemoryLimit.Value = %v, want 1024", spec.MemoryLimit.Value)
	}
}

func TestFetchCurrentAbsentFields(t *testing.T) {
	// No resources declared at all: every field is a declared zero of the
	// right class, never an error.
	deploy := testDeployment(corev1.ResourceRequirements{})
	c := fake.NewClientBuilder().WithScheme(testScheme(t)).WithObjects(deploy).Build()
	g := NewGateway(c)

	spec, err := g.FetchCurrent(context.Background(), workflow.NewWorkloadRef("default", "frontend-service"))
	if err != nil {
		t.Fatalf("FetchCurrent() unexpected error: %v", err)
	}

	if !spec.CPURequest.IsZero() || spec.CPURequest.Class != quantity.ClassCPU {
		t.Errorf("CPURequest = %+v, want zero cpu quantity", spec.CPURequest)
	}
	if !spec.MemoryLimit.IsZero() || spec.MemoryLimit.Class != quantity.ClassMemory {
		t.Errorf("MemoryLimit = %+v, want zero memory quantity", spec.MemoryLimit)
	}
}

func TestFetchCurrentNotFound(t *testing.T) {
	c := fake.NewClientBuilder().WithScheme(testScheme(t)).Build()
	g := NewGateway(c)

	_, err := g.FetchCurrent(context.Background(), workflow.NewWorkloadRef("default", "missing"))
	if !errors.Is(err, workflow.ErrNotFound) {
		t.Errorf("FetchCurrent() error = %v, want ErrNotFound", err)
	}
}

func TestFetchCurrentNoContainers(t *testing.T) {
	deploy := testDeployment(corev1.ResourceRequirements{})
	deploy.Spec.Template.Spec.Containers = nil
	c := fake.NewClientBuilder().WithScheme(testScheme(t)).WithObjects(deploy).Build()
	g := NewGateway(c)

	_, err := g.FetchCurrent(context.Background(), workflow.NewWorkloadRef("default", "frontend-service"))
	if !errors.Is(err, workflow.ErrNotFound) {
		t.Errorf("FetchCurrent() error = %v, want ErrNotFound", err)
	}
}

func TestApplyPatch(t *testing.T) {
	deploy := testDeployment(corev1.ResourceRequirements{
		Requests: corev1.ResourceList{
			corev1.ResourceCPU:    resource.MustParse("500m"),
			corev1.ResourceMemory: resource.MustParse("512Mi"),
		},
	})
	c := fake.NewClientBuilder().WithScheme(testScheme(t)).WithObjects(deploy).Build()
	g := NewGateway(c)
	ctx := context.Background()
	ref := workflow.NewWorkloadRef("default", "frontend-service")

	target := workflow.ResourceSpec{
		CPURequest:    mustParse(t, "250m"),
		CPULimit:      mustParse(t, "500m"),
		MemoryRequest: mustParse(t, "256Mi"),
		MemoryLimit:   mustParse(t, "512Mi"),
	}
	if err := g.ApplyPatch(ctx, ref, target); err != nil {
		t.Fatalf("ApplyPatch() unexpected error: %v", err)
	}

	got := &appsv1.Deployment{}
	if err := c.Get(ctx, types.NamespacedName{Namespace: "default", Name: "frontend-service"}, got); err != nil {
		t.Fatalf("reading patched deployment: %v", err)
	}
	res := got.Spec.Template.Spec.Containers[0].Resources
	if v := res.Requests.Cpu().MilliValue(); v != 250 {
		t.Errorf("patched cpu request = %dm, want 250m", v)
	}
	if v := res.Limits.Cpu().MilliValue(); v != 500 {
		t.Errorf("patched cpu limit = %dm, want 500m", v)
	}
	if v := res.Requests.Memory().Value(); v != 256*1024*1024 {
		t.Errorf("patched memory request = %d, want 256Mi", v)
	}
	if v := res.Limits.Memory().Value(); v != 512*1024*1024 {
		t.Errorf("patched memory limit = %d, want 512Mi", v)
	}
}

func TestApplyPatchNotFound(t *testing.T) {
	c := fake.NewClientBuilder().WithScheme(testScheme(t)).Build()
	g := NewGateway(c)

	target := workflow.ResourceSpec{
		CPURequest:    mustParse(t, "250m"),
		CPULimit:      mustParse(t, "500m"),
		MemoryRequest: mustParse(t, "256Mi"),
		MemoryLimit:   mustParse(t, "512Mi"),
	}
	err := g.ApplyPatch(context.Background(), workflow.NewWorkloadRef("default", "missing"), target)
	if !errors.Is(err, workflow.ErrNotFound) {
		t.Errorf("ApplyPatch() error = %v, want ErrNotFound", err)
	}
}

func TestMapAPIError(t *testing.T) {
	ref := workflow.NewWorkloadRef("default", "app")
	gr := schema.GroupResource{Group: "apps", Resource: "deployments"}

	tests := []struct {
		name string
		in   error
		want error
	}{
		{"not found", apierrors.NewNotFound(gr, "app"), workflow.ErrNotFound},
		{"conflict", apierrors.NewConflict(gr, "app", errors.New("modified")), workflow.ErrConflict},
		{"server error", apierrors.NewInternalError(errors.New("boom")), workflow.ErrUnavailable},
	}

	for _, tt := range tests {
		if got := mapAPIError(ref, tt.in); !errors.Is(got, tt.want) {
			t.Errorf("%s: mapAPIError() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func mustParse(t *testing.T, s string) quantity.Quantity {
	t.Helper()
	q, err := quantity.Parse(s)
	if err != nil {
		t.Fatalf("Parse(%q) unexpected error: %v", s, err)
	}
	return q
}
