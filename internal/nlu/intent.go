// Package nlu extracts an intent and entities from free-form command text.
// It tries a language-model extraction first and falls back to rule-based
// parsing, so command handling works identically with or without model
// access.
package nlu

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// Intent classifies what the user asked for.
type Intent string

const (
	IntentOptimizeCPU      Intent = "optimize_cpu"
	IntentOptimizeMemory   Intent = "optimize_memory"
	IntentOptimizeBoth     Intent = "optimize_both"
	IntentGetUsage         Intent = "get_usage"
	IntentSuggestWorkloads Intent = "suggest_workloads"
	IntentUnknown          Intent = "unknown"
)

// Entities are the pieces of a request the parser could identify. Zero
// values mean "not mentioned".
type Entities struct {
	Workload     string `json:"workload_name,omitempty"`
	Namespace    string `json:"namespace,omitempty"`
	Direction    string `json:"direction,omitempty"`     // increase | decrease
	ResourceType string `json:"resource_type,omitempty"` // cpu | memory | both
	Percentage   string `json:"percentage,omitempty"`
}

// Extractor parses command text.
type Extractor struct {
	client  *anthropic.Client
	model   string
	timeout time.Duration
	enabled bool
}

// Config holds extractor settings.
type Config struct {
	Enabled bool
	Model   string
	Timeout time.Duration
}

// NewExtractor creates an Extractor. Disabled extractors use only the
// rule-based parser.
func NewExtractor(cfg Config) *Extractor {
	e := &Extractor{
		model:   cfg.Model,
		timeout: cfg.Timeout,
		enabled: cfg.Enabled,
	}
	if e.model == "" {
		e.model = "claude-sonnet-4-6"
	}
	if e.timeout == 0 {
		e.timeout = 8 * time.Second
	}
	if cfg.Enabled {
		client := anthropic.NewClient()
		e.client = &client
	}
	return e
}

// Extract returns the intent and entities for the given text.
func (e *Extractor) Extract(ctx context.Context, text string) (Intent, Entities) {
	if !e.enabled || e.client == nil {
		return extractRules(text)
	}

	intent, entities, err := e.extractModel(ctx, text)
	if err != nil {
		log.FromContext(ctx).WithName("nlu").V(1).Info("Model extraction failed, using rules", "error", err.Error())
		return extractRules(text)
	}
	return intent, entities
}

type modelResult struct {
	Intent   string   `json:"intent"`
	Entities Entities `json:"entities"`
}

func (e *Extractor) extractModel(ctx context.Context, text string) (Intent, Entities, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(e.model),
		MaxTokens: int64(256),
		System: []anthropic.TextBlockParam{
			{Text: nluSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(text)),
		},
	})
	if err != nil {
		return IntentUnknown, Entities{}, err
	}
	if len(resp.Content) == 0 {
		return IntentUnknown, Entities{}, errEmptyResponse
	}

	raw := resp.Content[0].Text
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return IntentUnknown, Entities{}, errNoJSON
	}

	var result modelResult
	if err := json.Unmarshal([]byte(raw[start:end+1]), &result); err != nil {
		return IntentUnknown, Entities{}, err
	}

	intent := Intent(result.Intent)
	switch intent {
	case IntentOptimizeCPU, IntentOptimizeMemory, IntentOptimizeBoth, IntentGetUsage, IntentSuggestWorkloads:
	default:
		intent = IntentUnknown
	}
	return intent, result.Entities, nil
}

var (
	workloadPattern   = regexp.MustCompile(`(?:for|on)\s+(?:the\s+)?([a-zA-Z0-9-]+(?:/[a-zA-Z0-9-]+)?)`)
	percentagePattern = regexp.MustCompile(`(\d+)%`)
	memoryPattern     = regexp.MustCompile(`\b(?:memory|mem|ram)\b`)
)

// extractRules is the deterministic fallback parser.
func extractRules(text string) (Intent, Entities) {
	lower := strings.ToLower(text)
	entities := Entities{}

	if m := workloadPattern.FindStringSubmatch(text); m != nil {
		if ns, name, ok := strings.Cut(m[1], "/"); ok {
			entities.Namespace = ns
			entities.Workload = name
		} else {
			entities.Workload = m[1]
		}
	}
	if m := percentagePattern.FindStringSubmatch(text); m != nil {
		entities.Percentage = m[1]
	}

	shrinking := strings.Contains(lower, "reduce") || strings.Contains(lower, "decrease")
	growing := strings.Contains(lower, "increase") || strings.Contains(lower, "raise")
	hasCPU := strings.Contains(lower, "cpu")
	hasMemory := memoryPattern.MatchString(lower)

	intent := IntentUnknown
	switch {
	case hasCPU && hasMemory && (shrinking || growing):
		intent = IntentOptimizeBoth
		entities.ResourceType = "both"
	case hasCPU && (shrinking || growing):
		intent = IntentOptimizeCPU
		entities.ResourceType = "cpu"
	case hasMemory && (shrinking || growing):
		intent = IntentOptimizeMemory
		entities.ResourceType = "memory"
	case strings.Contains(lower, "usage") || strings.Contains(lower, "show"):
		intent = IntentGetUsage
	case strings.Contains(lower, "suggest") || strings.Contains(lower, "recommend"):
		intent = IntentSuggestWorkloads
	}

	if intent == IntentOptimizeCPU || intent == IntentOptimizeMemory || intent == IntentOptimizeBoth {
		if shrinking {
			entities.Direction = "decrease"
		} else if growing {
			entities.Direction = "increase"
		}
	}

	return intent, entities
}

const nluSystemPrompt = `Extract the intent and entities from a Kubernetes resource optimization request.

Intents: optimize_cpu, optimize_memory, optimize_both, get_usage, suggest_workloads, unknown.
Entities: workload_name, namespace, direction (increase|decrease), resource_type (cpu|memory|both), percentage.

Respond with only a JSON object: {"intent": "...", "entities": {...}}. Omit entities that are not present.`
