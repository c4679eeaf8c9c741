// Package ticket records audit tickets for applied resource changes via the
// Jira REST API, degrading to a locally synthesized placeholder reference
// when the backend is unavailable.
package ticket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"strings"
	"time"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/optibot/optibot/internal/workflow"
)

// Issuer implements workflow.TicketIssuer against a Jira instance.
type Issuer struct {
	baseURL    string
	username   string
	apiToken   string
	project    string
	httpClient *http.Client
}

// Config holds Jira connection settings. Any empty required field makes
// every CreateTicket call degrade to a placeholder.
type Config struct {
	BaseURL  string
	Username string
	APIToken string
	Project  string
	Timeout  time.Duration
}

// NewIssuer creates an Issuer.
func NewIssuer(cfg Config) *Issuer {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Issuer{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		username:   cfg.Username,
		apiToken:   cfg.APIToken,
		project:    cfg.Project,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type createIssueResponse struct {
	Key string `json:"key"`
}

// CreateTicket files an audit ticket for the change. It never fails: on any
// error (missing config, network, auth, bad response) it logs the
// degradation and returns a placeholder ref whose key is a deterministic
// function of the workload, so separate degraded attempts for the same
// workload produce the same identifier. The resource change itself has
// already been applied by the time this runs.
func (i *Issuer) CreateTicket(ctx context.Context, ref workflow.WorkloadRef, proposed workflow.ResourceSpec, justification, initiator string) workflow.TicketRef {
	logger := log.FromContext(ctx).WithName("ticket")

	if i.baseURL == "" || i.username == "" || i.apiToken == "" || i.project == "" {
		logger.Info("Jira not configured, recording placeholder ticket", "workload", ref.String())
		return PlaceholderRef(ref)
	}

	payload := map[string]interface{}{
		"fields": map[string]interface{}{
			"project":     map[string]string{"key": i.project},
			"summary":     fmt.Sprintf("Resource optimization: %s", ref),
			"description": buildDescription(ref, proposed, justification, initiator),
			"issuetype":   map[string]string{"name": "Task"},
			"labels":      []string{"resource-optimization", "automated"},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		logger.Error(err, "Marshaling ticket payload, recording placeholder", "workload", ref.String())
		return PlaceholderRef(ref)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.baseURL+"/rest/api/2/issue", bytes.NewReader(body))
	if err != nil {
		logger.Error(err, "Creating ticket request, recording placeholder", "workload", ref.String())
		return PlaceholderRef(ref)
	}
	req.SetBasicAuth(i.username, i.apiToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := i.httpClient.Do(req)
	if err != nil {
		logger.Error(err, "Jira unreachable, recording placeholder ticket", "workload", ref.String())
		return PlaceholderRef(ref)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		logger.Info("Jira rejected ticket, recording placeholder",
			"workload", ref.String(), "status", resp.StatusCode, "body", string(raw))
		return PlaceholderRef(ref)
	}

	var created createIssueResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil || created.Key == "" {
		logger.Info("Unparsable Jira response, recording placeholder ticket", "workload", ref.String())
		return PlaceholderRef(ref)
	}

	logger.Info("Created audit ticket", "workload", ref.String(), "ticket", created.Key)
	return workflow.TicketRef{
		Key: created.Key,
		URL: i.baseURL + "/browse/" + created.Key,
	}
}

// PlaceholderRef synthesizes a local ticket reference for a workload. The
// key is derived from namespace+name, not random, so degraded runs are
// recognizable and reproducible.
func PlaceholderRef(ref workflow.WorkloadRef) workflow.TicketRef {
	h := fnv.New32a()
	h.Write([]byte(ref.Namespace + "/" + ref.Name))
	return workflow.TicketRef{
		Key:         fmt.Sprintf("LOCAL-%03d", h.Sum32()%1000),
		Placeholder: true,
	}
}

func buildDescription(ref workflow.WorkloadRef, proposed workflow.ResourceSpec, justification, initiator string) string {
	var b strings.Builder
	b.WriteString("*Kubernetes Resource Optimization*\n\n")
	b.WriteString(fmt.Sprintf("*Workload*: %s\n\n", ref))
	b.WriteString("*New Resources*:\n")
	b.WriteString(fmt.Sprintf("- CPU Request: %s\n", proposed.CPURequest))
	b.WriteString(fmt.Sprintf("- CPU Limit: %s\n", proposed.CPULimit))
	b.WriteString(fmt.Sprintf("- Memory Request: %s\n", proposed.MemoryRequest))
	b.WriteString(fmt.Sprintf("- Memory Limit: %s\n", proposed.MemoryLimit))
	b.WriteString("\n*Justification*:\n")
	b.WriteString(justification)
	b.WriteString(fmt.Sprintf("\n\n*Initiated by*: %s\n", initiator))
	return b.String()
}
