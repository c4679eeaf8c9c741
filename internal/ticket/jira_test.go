package ticket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/optibot/optibot/internal/quantity"
	"github.com/optibot/optibot/internal/workflow"
)

func testSpec(t *testing.T) workflow.ResourceSpec {
	t.Helper()
	parse := func(s string) quantity.Quantity {
		q, err := quantity.Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q) unexpected error: %v", s, err)
		}
		return q
	}
	return workflow.ResourceSpec{
		CPURequest:    parse("250m"),
		CPULimit:      parse("500m"),
		MemoryRequest: parse("256Mi"),
		MemoryLimit:   parse("512Mi"),
	}
}

func TestCreateTicket(t *testing.T) {
	var gotPath, gotAuth string
	var gotPayload map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, gotAuth, _ = r.BasicAuth()
		json.NewDecoder(r.Body).Decode(&gotPayload)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"key": "OPS-42"})
	}))
	defer srv.Close()

	issuer := NewIssuer(Config{
		BaseURL:  srv.URL,
		Username: "bot@example.com",
		APIToken: "secret",
		Project:  "OPS",
	})

	ref := workflow.NewWorkloadRef("default", "frontend-service")
	ticket := issuer.CreateTicket(context.Background(), ref, testSpec(t), "Reduces overprovisioned CPU.", "U123")

	if ticket.Placeholder {
		t.Error("Placeholder = true, want real ticket")
	}
	if ticket.Key != "OPS-42" {
		t.Errorf("Key = %q, want %q", ticket.Key, "OPS-42")
	}
	if want := srv.URL + "/browse/OPS-42"; ticket.URL != want {
		t.Errorf("URL = %q, want %q", ticket.URL, want)
	}
	if gotPath != "/rest/api/2/issue" {
		t.Errorf("request path = %q, want /rest/api/2/issue", gotPath)
	}
	if gotAuth != "secret" {
		t.Errorf("basic auth token = %q, want the API token", gotAuth)
	}

	fields, _ := gotPayload["fields"].(map[string]interface{})
	if fields == nil {
		t.Fatalf("payload missing fields: %v", gotPayload)
	}
	if summary, _ := fields["summary"].(string); summary != "Resource optimization: default/frontend-service" {
		t.Errorf("summary = %q", summary)
	}
	desc, _ := fields["description"].(string)
	for _, want := range []string{"250m", "512Mi", "Reduces overprovisioned CPU.", "U123"} {
		if !strings.Contains(desc, want) {
			t.Errorf("description missing %q:\n%s", want, desc)
		}
	}
}

func TestCreateTicketServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	issuer := NewIssuer(Config{BaseURL: srv.URL, Username: "u", APIToken: "t", Project: "OPS"})
	ref := workflow.NewWorkloadRef("default", "frontend-service")

	ticket := issuer.CreateTicket(context.Background(), ref, testSpec(t), "j", "U123")
	if !ticket.Placeholder {
		t.Fatal("Placeholder = false, want placeholder on server error")
	}
	if !regexp.MustCompile(`^LOCAL-\d{3}$`).MatchString(ticket.Key) {
		t.Errorf("Key = %q, want LOCAL-NNN", ticket.Key)
	}
}

func TestCreateTicketUnconfigured(t *testing.T) {
	issuer := NewIssuer(Config{})
	ref := workflow.NewWorkloadRef("default", "frontend-service")

	ticket := issuer.CreateTicket(context.Background(), ref, testSpec(t), "j", "U123")
	if !ticket.Placeholder {
		t.Error("Placeholder = false, want placeholder when Jira is unconfigured")
	}
}

func TestPlaceholderRefDeterministic(t *testing.T) {
	ref := workflow.NewWorkloadRef("default", "frontend-service")

	a := PlaceholderRef(ref)
	b := PlaceholderRef(ref)
	if a.Key != b.Key {
		t.Errorf("PlaceholderRef keys differ for the same workload: %q vs %q", a.Key, b.Key)
	}
	if !a.Placeholder {
		t.Error("Placeholder = false, want true")
	}
	if !regexp.MustCompile(`^LOCAL-\d{3}$`).MatchString(a.Key) {
		t.Errorf("Key = %q, want LOCAL-NNN", a.Key)
	}

	other := PlaceholderRef(workflow.NewWorkloadRef("backend", "api-service"))
	if other.Key == a.Key {
		t.Logf("distinct workloads share key %q (1000-bucket hash); acceptable but rare", a.Key)
	}
}
