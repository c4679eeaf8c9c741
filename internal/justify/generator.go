// Package justify produces the human-readable rationale attached to a
// resource change, for the confirmation dialog, the audit ticket, and the
// channel announcement.
package justify

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/optibot/optibot/internal/metrics"
	"github.com/optibot/optibot/internal/quantity"
	"github.com/optibot/optibot/internal/workflow"
)

const (
	DefaultModel   = "claude-sonnet-4-6"
	DefaultTimeout = 10 * time.Second
)

// Generator writes change justifications with a language model. Generation
// never fails from the caller's point of view: any error degrades to a
// deterministic templated justification built from the computed deltas.
type Generator struct {
	client  *anthropic.Client
	model   string
	timeout time.Duration
	enabled bool
}

// Config holds generator configuration. The API key is read by the SDK from
// the environment.
type Config struct {
	Enabled bool
	Model   string
	Timeout time.Duration
}

// NewGenerator creates a Generator. With Enabled false it serves only the
// templated fallback.
func NewGenerator(cfg Config) *Generator {
	g := &Generator{
		model:   cfg.Model,
		timeout: cfg.Timeout,
		enabled: cfg.Enabled,
	}
	if g.model == "" {
		g.model = DefaultModel
	}
	if g.timeout == 0 {
		g.timeout = DefaultTimeout
	}
	if cfg.Enabled {
		client := anthropic.NewClient()
		g.client = &client
	}
	return g
}

// Generate implements workflow.Justifier.
func (g *Generator) Generate(ctx context.Context, ref workflow.WorkloadRef, current, proposed workflow.ResourceSpec) string {
	logger := log.FromContext(ctx).WithName("justify")
	deltas := computeDeltas(current, proposed)

	if !g.enabled || g.client == nil {
		return fallbackJustification(ref, deltas)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	prompt := buildJustificationPrompt(ref, current, proposed, deltas)

	resp, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: int64(512),
		System: []anthropic.TextBlockParam{
			{Text: justifySystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		logger.Error(err, "Justification generation failed, using template", "workload", ref.String())
		metrics.JustificationFallbacks.Inc()
		return fallbackJustification(ref, deltas)
	}
	if len(resp.Content) == 0 || resp.Content[0].Text == "" {
		logger.Info("Empty justification response, using template", "workload", ref.String())
		metrics.JustificationFallbacks.Inc()
		return fallbackJustification(ref, deltas)
	}

	return resp.Content[0].Text
}

// ResourceDelta pairs a resource field with its computed change.
type ResourceDelta struct {
	Field  string
	Change quantity.ChangeDescription
}

func computeDeltas(current, proposed workflow.ResourceSpec) []ResourceDelta {
	return []ResourceDelta{
		{"CPU Request", quantity.PercentChange(current.CPURequest, proposed.CPURequest)},
		{"CPU Limit", quantity.PercentChange(current.CPULimit, proposed.CPULimit)},
		{"Memory Request", quantity.PercentChange(current.MemoryRequest, proposed.MemoryRequest)},
		{"Memory Limit", quantity.PercentChange(current.MemoryLimit, proposed.MemoryLimit)},
	}
}

// fallbackJustification is the deterministic template used when generation
// is unavailable. It still carries the concrete deltas so tickets and
// announcements remain informative.
func fallbackJustification(ref workflow.WorkloadRef, deltas []ResourceDelta) string {
	s := fmt.Sprintf("Resource adjustment for %s to align requests and limits with observed utilization.", ref)
	for _, d := range deltas {
		if d.Change.Direction == quantity.Unchanged {
			continue
		}
		s += fmt.Sprintf(" %s: %s.", d.Field, d.Change)
	}
	return s
}
