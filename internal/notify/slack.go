// Package notify talks to the Slack Web API: channel announcements for
// applied changes, plus the message and modal primitives the bot layer
// needs (postMessage, ephemeral posts, views.open).
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/optibot/optibot/internal/workflow"
)

const defaultAPIBase = "https://slack.com/api"

// Client is a minimal Slack Web API client using a bot token.
type Client struct {
	apiBase        string
	token          string
	defaultChannel string
	httpClient     *http.Client
}

// Config holds Slack client settings.
type Config struct {
	BotToken       string
	DefaultChannel string
	APIBase        string // test override; defaults to the public API
	Timeout        time.Duration
}

// NewClient creates a Client.
func NewClient(cfg Config) *Client {
	base := cfg.APIBase
	if base == "" {
		base = defaultAPIBase
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		apiBase:        base,
		token:          cfg.BotToken,
		defaultChannel: cfg.DefaultChannel,
		httpClient:     &http.Client{Timeout: timeout},
	}
}

// Message is a chat.postMessage payload. Blocks is optional.
type Message struct {
	Channel string        `json:"channel"`
	Text    string        `json:"text"`
	Blocks  []interface{} `json:"blocks,omitempty"`
	User    string        `json:"user,omitempty"` // ephemeral target
}

type apiResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// PostMessage sends a message to a channel.
func (c *Client) PostMessage(ctx context.Context, msg Message) error {
	return c.call(ctx, "chat.postMessage", msg)
}

// PostEphemeral sends a message visible only to one user in a channel.
func (c *Client) PostEphemeral(ctx context.Context, msg Message) error {
	return c.call(ctx, "chat.postEphemeral", msg)
}

// OpenView opens a modal against a trigger id. The view is the raw modal
// definition built by the bot layer.
func (c *Client) OpenView(ctx context.Context, triggerID string, view interface{}) error {
	return c.call(ctx, "views.open", map[string]interface{}{
		"trigger_id": triggerID,
		"view":       view,
	})
}

// Announce implements workflow.Notifier: best-effort broadcast of an applied
// change. On failure it retries once with a plain-text message (rich block
// formatting is the usual culprit) and otherwise reports the error for the
// caller to log and swallow. It never affects request state.
func (c *Client) Announce(ctx context.Context, channel string, ref workflow.WorkloadRef, justification string, ticket workflow.TicketRef) error {
	logger := log.FromContext(ctx).WithName("notify")
	if channel == "" {
		channel = c.defaultChannel
	}
	if channel == "" {
		return fmt.Errorf("no notification channel configured")
	}

	text := announceText(ref, justification, ticket)
	msg := Message{
		Channel: channel,
		Text:    text,
		Blocks:  announceBlocks(ref, justification, ticket),
	}

	if err := c.PostMessage(ctx, msg); err != nil {
		logger.Error(err, "Announcement failed, retrying as plain text", "channel", channel)
		if err2 := c.PostMessage(ctx, Message{Channel: channel, Text: text}); err2 != nil {
			return fmt.Errorf("plain-text retry failed: %w", err2)
		}
	}
	return nil
}

func (c *Client) call(ctx context.Context, method string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling %s payload: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/"+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s returned status %d", method, resp.StatusCode)
	}

	var api apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&api); err != nil {
		return fmt.Errorf("decoding %s response: %w", method, err)
	}
	if !api.OK {
		return fmt.Errorf("%s failed: %s", method, api.Error)
	}
	return nil
}

func announceText(ref workflow.WorkloadRef, justification string, ticket workflow.TicketRef) string {
	ticketLine := ticket.Key
	if ticket.Placeholder {
		ticketLine += " (local placeholder, ticketing was unavailable)"
	}
	return fmt.Sprintf("Resource optimization applied: %s\nTicket: %s\nJustification: %s", ref, ticketLine, justification)
}

func announceBlocks(ref workflow.WorkloadRef, justification string, ticket workflow.TicketRef) []interface{} {
	ticketText := fmt.Sprintf("*Ticket:* %s", ticket.Key)
	if ticket.URL != "" {
		ticketText = fmt.Sprintf("*Ticket:* <%s|%s>", ticket.URL, ticket.Key)
	}
	if ticket.Placeholder {
		ticketText += " _(placeholder, ticketing backend unavailable)_"
	}

	return []interface{}{
		map[string]interface{}{
			"type": "header",
			"text": map[string]interface{}{
				"type":  "plain_text",
				"text":  fmt.Sprintf("Resource Optimization: %s", ref),
				"emoji": true,
			},
		},
		map[string]interface{}{"type": "divider"},
		map[string]interface{}{
			"type": "section",
			"text": map[string]interface{}{"type": "mrkdwn", "text": ticketText},
		},
		map[string]interface{}{
			"type": "section",
			"text": map[string]interface{}{"type": "mrkdwn", "text": "*Justification:*\n" + justification},
		},
		map[string]interface{}{
			"type": "context",
			"elements": []interface{}{
				map[string]interface{}{"type": "mrkdwn", "text": "Applied by the OptiBot resource optimizer."},
			},
		},
	}
}
