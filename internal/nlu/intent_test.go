package nlu

import (
	"context"
	"testing"
)

func TestExtractRules(t *testing.T) {
	tests := []struct {
		text         string
		wantIntent   Intent
		wantWorkload string
		wantNS       string
		wantDir      string
		wantPct      string
	}{
		{
			text:       "reduce cpu by 50% for the frontend-service",
			wantIntent: IntentOptimizeCPU, wantWorkload: "frontend-service",
			wantDir: "decrease", wantPct: "50",
		},
		{
			text:       "increase memory for backend/api-service",
			wantIntent: IntentOptimizeMemory, wantWorkload: "api-service",
			wantNS: "backend", wantDir: "increase",
		},
		{
			text:       "decrease cpu and memory on the prometheus",
			wantIntent: IntentOptimizeBoth, wantWorkload: "prometheus",
			wantDir: "decrease",
		},
		{
			text:       "show usage for my-app",
			wantIntent: IntentGetUsage, wantWorkload: "my-app",
		},
		{
			text:       "suggest workloads to optimize",
			wantIntent: IntentSuggestWorkloads,
		},
		{
			// "mem" is recognized even as the final word.
			text:       "reduce the frontend-service mem",
			wantIntent: IntentOptimizeMemory, wantDir: "decrease",
		},
		{
			text:       "increase mem for cache-layer by 20%",
			wantIntent: IntentOptimizeMemory, wantWorkload: "cache-layer",
			wantDir: "increase", wantPct: "20",
		},
		{
			// "memo" must not read as a memory request.
			text:       "increase the memo",
			wantIntent: IntentUnknown,
		},
		{
			text:       "hello there",
			wantIntent: IntentUnknown,
		},
	}

	for _, tt := range tests {
		intent, entities := extractRules(tt.text)
		if intent != tt.wantIntent {
			t.Errorf("extractRules(%q) intent = %q, want %q", tt.text, intent, tt.wantIntent)
		}
		if entities.Workload != tt.wantWorkload {
			t.Errorf("extractRules(%q) workload = %q, want %q", tt.text, entities.Workload, tt.wantWorkload)
		}
		if entities.Namespace != tt.wantNS {
			t.Errorf("extractRules(%q) namespace = %q, want %q", tt.text, entities.Namespace, tt.wantNS)
		}
		if entities.Direction != tt.wantDir {
			t.Errorf("extractRules(%q) direction = %q, want %q", tt.text, entities.Direction, tt.wantDir)
		}
		if entities.Percentage != tt.wantPct {
			t.Errorf("extractRules(%q) percentage = %q, want %q", tt.text, entities.Percentage, tt.wantPct)
		}
	}
}

func TestExtractDisabledUsesRules(t *testing.T) {
	e := NewExtractor(Config{Enabled: false})

	intent, entities := e.Extract(context.Background(), "reduce cpu for the frontend-service")
	if intent != IntentOptimizeCPU {
		t.Errorf("intent = %q, want %q", intent, IntentOptimizeCPU)
	}
	if entities.Workload != "frontend-service" {
		t.Errorf("workload = %q, want frontend-service", entities.Workload)
	}
}
