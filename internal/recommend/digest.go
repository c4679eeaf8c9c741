package recommend

import (
	"context"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/optibot/optibot/internal/notify"
)

// Digest posts a periodic summary of optimization candidates to the default
// notification channel.
type Digest struct {
	source   Source
	slack    *notify.Client
	channel  string
	schedule string
}

// NewDigest creates a Digest with a cron schedule expression.
func NewDigest(source Source, slack *notify.Client, channel, schedule string) *Digest {
	return &Digest{source: source, slack: slack, channel: channel, schedule: schedule}
}

// Start registers the cron job and runs it until ctx is cancelled.
func (d *Digest) Start(ctx context.Context) error {
	logger := ctrl.Log.WithName("digest")

	c := cron.New()
	_, err := c.AddFunc(d.schedule, func() {
		if err := d.post(ctx); err != nil {
			logger.Error(err, "Posting candidate digest failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid digest schedule %q: %w", d.schedule, err)
	}

	c.Start()
	go func() {
		<-ctx.Done()
		c.Stop()
	}()
	logger.Info("Candidate digest scheduled", "schedule", d.schedule, "channel", d.channel)
	return nil
}

func (d *Digest) post(ctx context.Context) error {
	candidates, err := d.source.Candidates(ctx)
	if err != nil {
		return fmt.Errorf("listing candidates: %w", err)
	}
	if len(candidates) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("Workloads worth a resource review:\n")
	for _, c := range candidates {
		b.WriteString(fmt.Sprintf("• %s [%s]: %s", c.Workload, c.Priority, c.Justification))
		if c.MonthlySavingsUSD > 0 {
			b.WriteString(fmt.Sprintf(" (~$%.2f/month)", c.MonthlySavingsUSD))
		}
		b.WriteString("\n")
	}
	b.WriteString("Run /optimize-resources to act on any of these.")

	return d.slack.PostMessage(ctx, notify.Message{Channel: d.channel, Text: b.String()})
}
